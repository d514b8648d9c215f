package chord

import (
	"testing"

	"github.com/offbynull-go/peernetic"
	"github.com/stretchr/testify/require"
)

func addr(t *testing.T, s string) peernetic.Address {
	a, err := peernetic.ParseAddress(s)
	require.NoError(t, err)
	return a
}

func TestNewFingerTable_AllSelf(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 4)
	require.NoError(t, err)

	for _, p := range ft.Entries() {
		require.Equal(t, base.ID, p.ID)
	}
	_, ok := ft.GetMaximumNonBase()
	require.False(t, ok)
}

func TestFingerTable_SelfTail(t *testing.T) {
	// Entries pointing to self form a contiguous tail: scanning from the
	// lowest index up, once a self entry is seen every higher entry must
	// also be self, and every entry below that tail points at a real peer.
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 3, Addr: addr(t, "node:3")})

	entries := ft.Entries()
	minSelfIdx := len(entries)
	for i, p := range entries {
		if p.ID == base.ID && i < minSelfIdx {
			minSelfIdx = i
		}
	}
	for i, p := range entries {
		if i >= minSelfIdx {
			require.Equal(t, base.ID, p.ID, "tail entry %d must stay self", i)
		} else {
			require.NotEqual(t, base.ID, p.ID, "entry %d below the self tail unexpectedly points at self", i)
		}
	}
}

func TestFingerTable_PutThenFindClosestPreceding(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 10, Addr: addr(t, "node:10")})
	ft.Put(Pointer{ID: 50, Addr: addr(t, "node:50")})
	ft.Put(Pointer{ID: 100, Addr: addr(t, "node:100")})

	got := ft.FindClosestPreceding(120)
	require.Equal(t, RingID(100), got.ID)

	got = ft.FindClosestPreceding(60)
	require.Equal(t, RingID(50), got.ID)

	got = ft.FindClosestPreceding(11)
	require.Equal(t, RingID(10), got.ID)

	got = ft.FindClosestPreceding(10)
	require.Equal(t, base.ID, got.ID, "open interval excludes the boundary itself")
}

func TestFingerTable_FindClosestPreceding_Ignored(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 50, Addr: addr(t, "node:50")})
	ft.Put(Pointer{ID: 100, Addr: addr(t, "node:100")})

	got := ft.FindClosestPreceding(120, 100)
	require.Equal(t, RingID(50), got.ID)
}

func TestFingerTable_RemoveUnwindsToSelf(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 200, Addr: addr(t, "node:200")})
	_, ok := ft.GetMaximumNonBase()
	require.True(t, ok)

	ft.Remove(200)
	_, ok = ft.GetMaximumNonBase()
	require.False(t, ok, "removing the only known peer leaves every entry pointing at self")
}

func TestFingerTable_RemoveLeavesOtherPointersIntact(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 30, Addr: addr(t, "node:30")})
	ft.Put(Pointer{ID: 200, Addr: addr(t, "node:200")})

	ft.Remove(200)

	max, ok := ft.GetMaximumNonBase()
	require.True(t, ok)
	require.Equal(t, RingID(30), max.ID)
}

func TestFingerTable_Replace(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 30, Addr: addr(t, "node:30")})
	ft.Replace(30, Pointer{ID: 30, Addr: addr(t, "node:30:reconnected")})

	max, ok := ft.GetMaximumNonBase()
	require.True(t, ok)
	require.Equal(t, "node:30:reconnected", max.Addr.String())
}

func TestFingerTable_ClearBefore(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 8)
	require.NoError(t, err)

	ft.Put(Pointer{ID: 30, Addr: addr(t, "node:30")})
	ft.Put(Pointer{ID: 200, Addr: addr(t, "node:200")})

	ft.ClearBefore(100)

	max, ok := ft.GetMaximumNonBase()
	require.True(t, ok)
	require.Equal(t, RingID(200), max.ID, "entry below the clear threshold reverts to self")
}

// TestFingerTable_Monotonicity is the property spec §8 names directly:
// after any Put(p), FindClosestPreceding(p+1) returns p or a pointer closer
// to p in ring order than anything previously reachable.
func TestFingerTable_Monotonicity(t *testing.T) {
	base := Pointer{ID: 0, Addr: addr(t, "node:0")}
	ft, err := NewFingerTable(base, 10)
	require.NoError(t, err)

	before := ft.FindClosestPreceding(500)

	ft.Put(Pointer{ID: 499, Addr: addr(t, "node:499")})
	after := ft.FindClosestPreceding(500)

	require.Equal(t, RingID(499), after.ID)
	if before.ID != base.ID {
		require.GreaterOrEqual(t, ComparePosition(base.ID, after.ID, before.ID, ft.Bits()), int64(0))
	}
}

func TestComparePosition(t *testing.T) {
	require.Equal(t, int64(0), ComparePosition(0, 10, 10, 8))
	require.Negative(t, ComparePosition(0, 10, 20, 8))
	require.Positive(t, ComparePosition(0, 20, 10, 8))
	// Wraparound: with base=250 and bits=8 (mod 256), id 10 is "ahead" of
	// id 250 by 16 positions walking clockwise, not "behind" by 240.
	require.Equal(t, int64(16), ComparePosition(250, 10, 250, 8))
}
