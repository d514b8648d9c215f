package peernetic

import (
	"testing"
	"time"
)

// echoCalculator returns realDuration unchanged, regardless of attempt — used
// to pin down exactly what delay Transmission hands to Host.SendAfter,
// without SimpleActorDurationCalculator's always-zero result masking it.
type echoCalculator struct{}

func (echoCalculator) CalculateDuration(_ int, realDuration time.Duration) (time.Duration, error) {
	return realDuration, nil
}

func TestTransmission_SendRequestTracksOutgoingState(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{
		ResendDelay:  time.Second,
		DiscardDelay: 10 * time.Second,
	})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "payload"); err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.outgoingRequests[nonce.String()]; !ok {
		t.Error("SendRequest should record outgoing request state")
	}
	if tr.outgoingRequests[nonce.String()].sendCount != 1 {
		t.Errorf("sendCount = %d, want 1", tr.outgoingRequests[nonce.String()].sendCount)
	}
}

func TestTransmission_SendRequestRejectsDuplicateNonce(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err == nil {
		t.Error("reusing a live nonce should error")
	}
}

func TestTransmission_HandleIncomingRequestDedup(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{DiscardDelay: time.Second})

	nonce := NewNonce([]byte("nonce-1"))
	env := RequestEnvelope{Nonce: nonce, Payload: "hi"}

	if deliver := tr.HandleIncomingRequest(MustAddress("peer"), env); !deliver {
		t.Error("first delivery of a fresh request should be delivered")
	}
	if deliver := tr.HandleIncomingRequest(MustAddress("peer"), env); deliver {
		t.Error("a duplicate request with the same nonce should not be re-delivered")
	}
}

func TestTransmission_HandleIncomingRequestDroppedWhenLoopedBackToSelf(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err != nil {
		t.Fatal(err)
	}

	// A request arriving under a nonce we ourselves have outstanding as a
	// request must never be treated as something to answer.
	if deliver := tr.HandleIncomingRequest(MustAddress("peer"), RequestEnvelope{Nonce: nonce}); deliver {
		t.Error("a request looping back to our own outstanding nonce should be dropped")
	}
}

func TestTransmission_HandleIncomingResponseClearsOutgoingAndDedups(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{DiscardDelay: time.Second})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err != nil {
		t.Fatal(err)
	}

	env := ResponseEnvelope{Nonce: nonce, Payload: "reply"}
	if deliver := tr.HandleIncomingResponse(env); !deliver {
		t.Error("first response to an outstanding request should be delivered")
	}
	if _, stillOutstanding := tr.outgoingRequests[nonce.String()]; stillOutstanding {
		t.Error("HandleIncomingResponse should clear the matching outgoing request")
	}
	if deliver := tr.HandleIncomingResponse(env); deliver {
		t.Error("a duplicate response should not be re-delivered")
	}
}

func TestTransmission_HandleIncomingResponseWithoutOutstandingRequestIgnored(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{})

	nonce := NewNonce([]byte("nonce-1"))
	env := ResponseEnvelope{Nonce: nonce, Payload: "reply"}
	if deliver := tr.HandleIncomingResponse(env); deliver {
		t.Error("a response with no matching outgoing request should be ignored")
	}
}

func TestTransmission_HandleResendStopsAtMaxResends(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{MaxResends: 3})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		tr.HandleResend(resendEvent{nonce: nonce})
	}

	if got := tr.outgoingRequests[nonce.String()].sendCount; got != 3 {
		t.Errorf("sendCount = %d, want 3 (capped at MaxResends)", got)
	}
}

func TestTransmission_HandleDiscardRemovesEveryStateKind(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	tr := NewTransmission(MustAddress("node1", "txn"), sim.Host(), WallClock{}, TransmissionConfig{DiscardDelay: time.Second})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err != nil {
		t.Fatal(err)
	}
	tr.HandleDiscard(discardEvent{nonce: nonce, kind: discardOutgoingRequest})
	if _, ok := tr.outgoingRequests[nonce.String()]; ok {
		t.Error("HandleDiscard(discardOutgoingRequest) should remove the outgoing request state")
	}

	if err := tr.SendResponse(nonce, MustAddress("peer"), "y"); err != nil {
		t.Fatal(err)
	}
	tr.HandleDiscard(discardEvent{nonce: nonce, kind: discardOutgoingResponse})
	if _, ok := tr.outgoingResponses[nonce.String()]; ok {
		t.Error("HandleDiscard(discardOutgoingResponse) should remove the outgoing response state")
	}
}

// TestTransmission_ArmResendSchedulesExactlyTheCalculatedDelay is a
// regression test: armResend previously scheduled resendDelay+calculated
// delay instead of just the calculated delay, double-counting the base
// delay on every resend.
func TestTransmission_ArmResendSchedulesExactlyTheCalculatedDelay(t *testing.T) {
	sim := NewSimulator(MustAddress("node1"))
	host := sim.Host()
	tr := NewTransmission(MustAddress("node1", "txn"), host, WallClock{}, TransmissionConfig{
		ResendCalculator: echoCalculator{},
		ResendDelay:      3 * time.Second,
		DiscardDelay:     10 * time.Second,
	})

	nonce := NewNonce([]byte("nonce-1"))
	if err := tr.SendRequest(nonce, MustAddress("peer"), "x"); err != nil {
		t.Fatal(err)
	}
	sim.drainBus()

	if got := sim.Pending(); got != 2 {
		t.Fatalf("pending scheduled events = %d, want 2 (one resend, one discard)", got)
	}

	base := sim.Now()
	var deltas []time.Duration
	for _, ev := range sim.queue {
		deltas = append(deltas, ev.deliverAt.Sub(base))
	}

	foundResendDelay := false
	for _, d := range deltas {
		if d == 3*time.Second {
			foundResendDelay = true
		}
		if d == 6*time.Second {
			t.Fatalf("found a scheduled delay of %v — looks like the resendDelay+calculated-delay double-count bug", d)
		}
	}
	if !foundResendDelay {
		t.Fatalf("deltas = %v, want one entry at exactly the echoed 3s resend delay", deltas)
	}
}
