package peernetic

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// ErrNonceCollision is returned by NonceManager.Generate in the
// astronomically unlikely event a freshly generated nonce already exists in
// the live set — surfaced as an error rather than silently retried forever,
// since a collision at this nonce width is itself worth knowing about.
var ErrNonceCollision = fmt.Errorf("nonce collision")

// Nonce is an opaque correlation token used by the Transmission subsystem
// to pair a request with its eventual response, and to detect duplicate
// delivery. Nonces compare by value, not by identity.
type Nonce struct {
	data string
}

// NewNonce wraps raw bytes as a Nonce.
func NewNonce(data []byte) Nonce {
	return Nonce{data: string(data)}
}

// Bytes returns the nonce's raw byte value.
func (n Nonce) Bytes() []byte {
	return []byte(n.data)
}

// String renders the nonce as a hex string, for logs and map keys.
func (n Nonce) String() string {
	return hex.EncodeToString([]byte(n.data))
}

// Equal reports whether two nonces carry the same value.
func (n Nonce) Equal(other Nonce) bool {
	return n.data == other.data
}

const nonceByteLength = 16

// NonceManager generates unique nonces and tracks when each was issued, so
// stale entries can be swept out once their TTL expires. It is a standalone
// component: Transmission keeps its own nonce-keyed state maps and does not
// use it.
//
// Grounded on original_source's use of a time-indexed nonce set inside
// TransmissionTask (the four outgoing/incoming state maps are themselves
// Nonce-keyed and swept on a schedule) — this type extracts that
// "generate, track by issue time, sweep on process(now)" pattern into a
// standalone reusable component.
type NonceManager struct {
	mu      sync.Mutex
	issued  map[string]time.Time
	ttl     time.Duration
	clock   Clock
}

// NewNonceManager constructs a NonceManager whose entries expire after ttl,
// using clock as its source of "now".
func NewNonceManager(ttl time.Duration, clock Clock) *NonceManager {
	return &NonceManager{
		issued: make(map[string]time.Time),
		ttl:    ttl,
		clock:  clock,
	}
}

// Generate produces a fresh, unused Nonce and records it as issued at the
// manager's current time.
func (m *NonceManager) Generate() (Nonce, error) {
	buf := make([]byte, nonceByteLength)
	if _, err := rand.Read(buf); err != nil {
		return Nonce{}, err
	}
	n := NewNonce(buf)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.issued[n.data]; exists {
		return Nonce{}, ErrNonceCollision
	}
	m.issued[n.data] = m.clock.Now()
	return n, nil
}

// Contains reports whether n is currently tracked as issued and unexpired.
func (m *NonceManager) Contains(n Nonce) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.issued[n.data]
	return ok
}

// Release immediately removes n from the tracked set, regardless of TTL.
func (m *NonceManager) Release(n Nonce) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.issued, n.data)
}

// Process sweeps every nonce whose TTL has elapsed as of the manager's
// current time. Nothing calls it automatically; expiry keeps pace with the
// Clock, real or virtual, only as often as the owner calls Process.
func (m *NonceManager) Process() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	for key, issuedAt := range m.issued {
		if now.Sub(issuedAt) >= m.ttl {
			delete(m.issued, key)
		}
	}
}
