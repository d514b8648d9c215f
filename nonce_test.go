package peernetic

import (
	"testing"
	"time"
)

// manualClock is a Clock a test can advance by hand, used wherever a test
// needs to control TTL expiry deterministically instead of racing real time.
type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }
func (c *manualClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestNonceManager_GenerateIsUniqueAndTracked(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	nm := NewNonceManager(time.Minute, clock)

	n1, err := nm.Generate()
	if err != nil {
		t.Fatal(err)
	}
	n2, err := nm.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if n1.Equal(n2) {
		t.Fatal("two successive Generate calls returned equal nonces")
	}
	if !nm.Contains(n1) || !nm.Contains(n2) {
		t.Error("freshly generated nonces should be tracked")
	}
}

func TestNonceManager_Release(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	nm := NewNonceManager(time.Minute, clock)
	n, _ := nm.Generate()

	nm.Release(n)
	if nm.Contains(n) {
		t.Error("Release should remove the nonce immediately, regardless of TTL")
	}
}

func TestNonceManager_ProcessSweepsExpired(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	nm := NewNonceManager(10*time.Second, clock)

	n1, _ := nm.Generate()
	clock.advance(5 * time.Second)
	n2, _ := nm.Generate()

	clock.advance(6 * time.Second) // n1 issued 11s ago, n2 issued 6s ago
	nm.Process()

	if nm.Contains(n1) {
		t.Error("n1 should have expired and been swept")
	}
	if !nm.Contains(n2) {
		t.Error("n2 has not reached its TTL yet and should still be tracked")
	}
}

func TestNonceManager_ProcessLeavesUnexpiredAlone(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	nm := NewNonceManager(time.Minute, clock)
	n, _ := nm.Generate()

	clock.advance(10 * time.Second)
	nm.Process()

	if !nm.Contains(n) {
		t.Error("Process swept a nonce before its TTL elapsed")
	}
}
