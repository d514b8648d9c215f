// Package chord is a worked exemplar of the finger-table algorithm spec §3
// and §4.10 call out as "genuinely non-trivial and used by the simulator's
// tests." It has no teacher analogue — theatre's (deleted) hashring.go
// solved a different problem, cluster member routing, not ring-position
// bookkeeping for a single node's view of a Chord overlay — so this package
// is built from spec text directly, with naming cross-checked against the
// Chord/DHT sketches in the retrieval pack's other_examples/ files.
package chord

import (
	"fmt"

	"github.com/offbynull-go/peernetic"
)

// RingID is a position on the Chord ring, modulo 2^Bits. Comparisons that
// need the modulus always take Bits explicitly rather than embedding it in
// the type, since a FingerTable is the only thing that needs to agree on
// Bits with itself.
type RingID uint64

// Pointer is one finger-table entry's payload: the ring id it currently
// answers for, plus the Address to forward to in order to reach it.
type Pointer struct {
	ID   RingID
	Addr peernetic.Address
}

func (p Pointer) String() string {
	return fmt.Sprintf("%d@%s", p.ID, p.Addr.String())
}

type fingerEntry struct {
	expected RingID
	current  Pointer
}

// FingerTable is one node's Chord routing table: Bits entries, entry i
// expected to point at base+2^i (mod 2^Bits), per spec §3.
type FingerTable struct {
	base Pointer
	bits uint
	mod  uint64 // 2^bits; 0 means "no wraparound" (bits == 64)
	entries []fingerEntry
}

// NewFingerTable constructs a table of size bits, every entry initially
// pointing at self (base). bits must be in [1, 64].
func NewFingerTable(base Pointer, bits uint) (*FingerTable, error) {
	if bits == 0 || bits > 64 {
		return nil, fmt.Errorf("chord: bits must be in [1, 64], got %d", bits)
	}
	ft := &FingerTable{base: base, bits: bits, entries: make([]fingerEntry, bits)}
	if bits < 64 {
		ft.mod = uint64(1) << bits
	}
	for i := uint(0); i < bits; i++ {
		ft.entries[i] = fingerEntry{expected: ft.wrap(uint64(base.ID) + (uint64(1) << i)), current: base}
	}
	return ft, nil
}

func (ft *FingerTable) wrap(v uint64) RingID {
	if ft.mod == 0 {
		return RingID(v)
	}
	return RingID(v % ft.mod)
}

// offset returns x's position on the ring as seen looking forward from
// base — the value comparePosition and every ring-order decision in this
// file is built from.
func (ft *FingerTable) offset(x RingID) uint64 {
	return uint64(ft.wrap(uint64(x) - uint64(ft.base.ID)))
}

// ComparePosition returns the signed distance, on the ring rooted at base,
// between a and b: negative if a comes before b walking clockwise from
// base, positive if after, zero if equal. This is spec §4.10's
// comparePosition(base, a, b).
func ComparePosition(base, a, b RingID, bits uint) int64 {
	ft := &FingerTable{base: Pointer{ID: base}, bits: bits}
	if bits < 64 {
		ft.mod = uint64(1) << bits
	}
	return int64(ft.offset(a)) - int64(ft.offset(b))
}

// Base returns this table's owning ring id and address.
func (ft *FingerTable) Base() Pointer { return ft.base }

// Bits returns the table's configured size.
func (ft *FingerTable) Bits() uint { return ft.bits }

// Entries returns a copy of every current pointer, indexed the same as the
// table itself. Exposed for tests and introspection; callers must not rely
// on mutating the returned slice to affect the table.
func (ft *FingerTable) Entries() []Pointer {
	out := make([]Pointer, len(ft.entries))
	for i, e := range ft.entries {
		out[i] = e.current
	}
	return out
}

// isSelf reports whether ptr is this table's own base pointer.
func (ft *FingerTable) isSelf(id RingID) bool {
	return id == ft.base.ID
}

// Put inserts ptr, per spec §3's insert algorithm: locate the smallest
// entry whose expected id is not closer to base than ptr, write it there,
// then propagate backwards over neighbours that are either still self or
// farther from base than ptr, stopping at the first neighbour already
// closer.
func (ft *FingerTable) Put(ptr Pointer) {
	target := ft.offset(ptr.ID)
	idx := ft.locate(target)

	ft.entries[idx].current = ptr
	for i := int(idx) - 1; i >= 0; i-- {
		cur := ft.entries[i].current
		if ft.isSelf(cur.ID) || ft.offset(cur.ID) > target {
			ft.entries[i].current = ptr
			continue
		}
		break
	}
}

// locate finds the smallest entry index whose expected offset from base is
// >= target, falling back to the last entry when target is beyond every
// expected offset (the table's own finger span never exceeds half the
// ring, so the last entry is always the closest the table can get without
// growing itself).
func (ft *FingerTable) locate(target uint64) uint {
	for i := uint(0); i < ft.bits; i++ {
		if uint64(1)<<i >= target {
			return i
		}
	}
	return ft.bits - 1
}

// Replace swaps every entry currently pointing at oldID for newPtr, without
// disturbing any other slot. Used when a peer's ring id is unchanged but
// its address has (e.g. it reconnected on a new port).
func (ft *FingerTable) Replace(oldID RingID, newPtr Pointer) {
	for i := range ft.entries {
		if ft.entries[i].current.ID == oldID {
			ft.entries[i].current = newPtr
		}
	}
}

// Remove undoes a Put(ptr) with the given id, per spec §3's removal
// algorithm: starting at the highest-index slot still holding id, overwrite
// each slot backwards with the slot immediately after it (or with self for
// the very last slot), stopping at the first slot that did not hold id.
func (ft *FingerTable) Remove(id RingID) {
	start := -1
	for i := int(ft.bits) - 1; i >= 0; i-- {
		if ft.entries[i].current.ID == id {
			start = i
			break
		}
	}
	if start == -1 {
		return
	}
	for i := start; i >= 0; i-- {
		if ft.entries[i].current.ID != id {
			break
		}
		if i == int(ft.bits)-1 {
			ft.entries[i].current = ft.base
		} else {
			ft.entries[i].current = ft.entries[i+1].current
		}
	}
}

// ClearBefore resets to self every entry whose current pointer lies
// strictly before p in ring order (offset(current) < offset(p)). Used when
// this node's own predecessor moves forward and every finger pointing
// short of the new predecessor is known stale.
func (ft *FingerTable) ClearBefore(p RingID) {
	threshold := ft.offset(p)
	for i := range ft.entries {
		if !ft.isSelf(ft.entries[i].current.ID) && ft.offset(ft.entries[i].current.ID) < threshold {
			ft.entries[i].current = ft.base
		}
	}
}

// FindClosestPreceding scans entries from the highest index down and
// returns the first current pointer strictly between base and id in ring
// order that is not in ignored, per spec §3. It returns the table's own
// base pointer if no entry qualifies.
func (ft *FingerTable) FindClosestPreceding(id RingID, ignored ...RingID) Pointer {
	targetOffset := ft.offset(id)
	for i := int(ft.bits) - 1; i >= 0; i-- {
		cur := ft.entries[i].current
		off := ft.offset(cur.ID)
		if off == 0 || off >= targetOffset {
			continue
		}
		if containsRingID(ignored, cur.ID) {
			continue
		}
		return cur
	}
	return ft.base
}

func containsRingID(haystack []RingID, needle RingID) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// GetMaximumNonBase returns the highest-index entry not currently pointing
// at self — the farthest peer this table knows about — and whether any
// such entry exists.
func (ft *FingerTable) GetMaximumNonBase() (Pointer, bool) {
	for i := int(ft.bits) - 1; i >= 0; i-- {
		if !ft.isSelf(ft.entries[i].current.ID) {
			return ft.entries[i].current, true
		}
	}
	return Pointer{}, false
}

// GetRouterID returns the ring id this table answers routing queries as —
// its own base id. It exists as a named accessor, mirroring spec §4.10's
// operation list, rather than requiring callers to reach into Base().ID.
func (ft *FingerTable) GetRouterID() RingID {
	return ft.base.ID
}
