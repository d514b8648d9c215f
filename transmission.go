package peernetic

import (
	"fmt"
	"log/slog"
	"time"
)

// DurationCalculator computes how long to wait before the next retry of a
// request, given the attempt number and the "real" (non-virtual) duration
// the caller suggested. Per spec §9 Open Question #3, a negative
// realDuration is a validation error, never silently clamped to zero.
//
// Grounded directly on original_source/core/SimpleActorDurationCalculator.java.
type DurationCalculator interface {
	CalculateDuration(attempt int, realDuration time.Duration) (time.Duration, error)
}

// ErrNegativeDuration is returned by a DurationCalculator when asked to
// calculate from a negative real duration.
var ErrNegativeDuration = fmt.Errorf("duration must not be negative")

// SimpleActorDurationCalculator always returns zero delay, after validating
// its input. It is the resend calculator NewTransmission uses by default.
// Grounded line-for-line on
// original_source/core/SimpleActorDurationCalculator.java.
type SimpleActorDurationCalculator struct{}

// CalculateDuration implements DurationCalculator.
func (SimpleActorDurationCalculator) CalculateDuration(_ int, realDuration time.Duration) (time.Duration, error) {
	if realDuration < 0 {
		return 0, ErrNegativeDuration
	}
	return 0, nil
}

// RequestEnvelope is the wire shape of an outgoing request: the
// Transmission subsystem's nonce plus the caller's opaque payload.
type RequestEnvelope struct {
	Nonce   Nonce
	Payload any
}

// ResponseEnvelope is the wire shape of a response to a RequestEnvelope.
type ResponseEnvelope struct {
	Nonce   Nonce
	Payload any
}

type outgoingRequestState struct {
	dest      Address
	payload   any
	sendCount int
}

type outgoingResponseState struct {
	dest    Address
	payload any
}

type incomingRequestState struct{}
type incomingResponseState struct{}

// resendEvent and discardEvent are the scheduled callbacks the Transmission
// subsystem arms for itself via Host.SendAfter, mirroring
// OutgoingRequestResendEvent / *DiscardEvent in the original.
type resendEvent struct {
	nonce Nonce
}

type discardKind int

const (
	discardOutgoingRequest discardKind = iota
	discardOutgoingResponse
	discardIncomingRequest
	discardIncomingResponse
)

type discardEvent struct {
	nonce Nonce
	kind  discardKind
}

// Transmission is the nonce-keyed request/response reliability layer
// described in spec §4.5/§4.6: it resends outgoing requests on a schedule
// until a response arrives, discards state after a TTL, and suppresses
// duplicate deliveries on both the outgoing and incoming side.
//
// Grounded directly on original_source/core/TransmissionTask.java: the same
// four state maps (outgoingRequestStates, outgoingResponseStates,
// incomingRequestStates, incomingResponseStates), the same
// handle(OutgoingMessageEvent)/handle(IncomingMessageEvent)/
// handle(*ResendEvent)/handle(*DiscardEvent) dispatch shape. Per
// SPEC_FULL.md §4.6's realization note, this type is driven from inside an
// actor's (or subcoroutine's) own message loop rather than running its own
// goroutine — the actor calls SendRequest/SendResponse for outgoing traffic
// and HandleIncomingRequest/HandleIncomingResponse/HandleResend/HandleDiscard
// as it receives the corresponding message types, which is what lets one
// actor multiplex ordinary request/response conversations through it while
// still handling other message types directly.
type Transmission struct {
	self  Address
	host  *Host
	clock Clock

	resendCalc   DurationCalculator
	discardDelay time.Duration
	resendDelay  time.Duration
	maxResends   int

	outgoingRequests  map[string]*outgoingRequestState
	outgoingResponses map[string]*outgoingResponseState
	incomingRequests  map[string]*incomingRequestState
	incomingResponses map[string]*incomingResponseState
}

// TransmissionConfig configures a Transmission instance.
type TransmissionConfig struct {
	ResendCalculator DurationCalculator
	ResendDelay      time.Duration
	DiscardDelay     time.Duration
	MaxResends       int
}

// NewTransmission constructs a Transmission bound to self (the address
// scheduled resend/discard events are delivered back to) and host.
func NewTransmission(self Address, host *Host, clock Clock, cfg TransmissionConfig) *Transmission {
	calc := cfg.ResendCalculator
	if calc == nil {
		calc = SimpleActorDurationCalculator{}
	}
	return &Transmission{
		self:              self,
		host:              host,
		clock:             clock,
		resendCalc:        calc,
		discardDelay:      cfg.DiscardDelay,
		resendDelay:        cfg.ResendDelay,
		maxResends:        cfg.MaxResends,
		outgoingRequests:  make(map[string]*outgoingRequestState),
		outgoingResponses: make(map[string]*outgoingResponseState),
		incomingRequests:  make(map[string]*incomingRequestState),
		incomingResponses: make(map[string]*incomingResponseState),
	}
}

// SendRequest begins tracking an outgoing request to dest, sending the
// first RequestEnvelope immediately and arming the first resend/discard
// schedule. It fails if nonce is already outstanding — a caller reusing a
// live nonce is a bug, mirroring the original's "drop duplicate outgoing
// request with warning" behavior except surfaced as an error here since
// Go callers expect one.
func (t *Transmission) SendRequest(nonce Nonce, dest Address, payload any) error {
	key := nonce.String()
	if _, exists := t.outgoingRequests[key]; exists {
		return fmt.Errorf("outgoing request with nonce %s already in flight", nonce)
	}
	t.outgoingRequests[key] = &outgoingRequestState{dest: dest, payload: payload, sendCount: 1}

	if err := t.host.Send(t.self, dest, RequestEnvelope{Nonce: nonce, Payload: payload}); err != nil {
		delete(t.outgoingRequests, key)
		return err
	}
	t.armResend(nonce, 1)
	t.armDiscard(nonce, discardOutgoingRequest)
	return nil
}

// SendResponse begins tracking an outgoing response to a request
// identified by nonce. Sending a second response for the same nonce is a
// caller bug — "Response already sent" in the original — surfaced here as
// an error.
func (t *Transmission) SendResponse(nonce Nonce, dest Address, payload any) error {
	key := nonce.String()
	if _, exists := t.outgoingResponses[key]; exists {
		return fmt.Errorf("response already sent for nonce %s", nonce)
	}
	t.outgoingResponses[key] = &outgoingResponseState{dest: dest, payload: payload}
	if err := t.host.Send(t.self, dest, ResponseEnvelope{Nonce: nonce, Payload: payload}); err != nil {
		delete(t.outgoingResponses, key)
		return err
	}
	t.armDiscard(nonce, discardOutgoingResponse)
	return nil
}

// HandleIncomingRequest processes an inbound RequestEnvelope arriving from
// source. It reports whether the caller should act on payload (false means
// this is a duplicate, or a request looping back to an outstanding request
// of our own, and was already handled/ignored here).
func (t *Transmission) HandleIncomingRequest(source Address, env RequestEnvelope) (deliver bool) {
	key := env.Nonce.String()

	if _, selfRequest := t.outgoingRequests[key]; selfRequest {
		slog.Warn("dropping request addressed to self", "nonce", env.Nonce.String())
		return false
	}
	if _, dup := t.incomingRequests[key]; dup {
		return false
	}
	t.incomingRequests[key] = &incomingRequestState{}
	t.armDiscard(env.Nonce, discardIncomingRequest)
	return true
}

// HandleIncomingResponse processes an inbound ResponseEnvelope. It reports
// whether payload is a fresh response the caller should act on, and clears
// the matching outgoing-request state so resends stop.
func (t *Transmission) HandleIncomingResponse(env ResponseEnvelope) (deliver bool) {
	key := env.Nonce.String()

	if _, dup := t.incomingResponses[key]; dup {
		return false
	}
	if _, outstanding := t.outgoingRequests[key]; !outstanding {
		return false
	}
	t.incomingResponses[key] = &incomingResponseState{}
	delete(t.outgoingRequests, key)
	t.armDiscard(env.Nonce, discardIncomingResponse)
	return true
}

// HandleResend is called when a previously armed resendEvent fires. It
// resends the outgoing request unless a response has already arrived.
func (t *Transmission) HandleResend(ev resendEvent) {
	key := ev.nonce.String()
	state, ok := t.outgoingRequests[key]
	if !ok {
		return
	}
	if t.maxResends > 0 && state.sendCount >= t.maxResends {
		return
	}
	state.sendCount++
	if err := t.host.Send(t.self, state.dest, RequestEnvelope{Nonce: ev.nonce, Payload: state.payload}); err != nil {
		slog.Warn("resend failed", "nonce", ev.nonce.String(), "error", err)
		return
	}
	t.armResend(ev.nonce, state.sendCount)
}

// HandleDiscard is called when a previously armed discardEvent fires. It
// removes the corresponding state-map entry unconditionally.
func (t *Transmission) HandleDiscard(ev discardEvent) {
	key := ev.nonce.String()
	switch ev.kind {
	case discardOutgoingRequest:
		delete(t.outgoingRequests, key)
	case discardOutgoingResponse:
		delete(t.outgoingResponses, key)
	case discardIncomingRequest:
		delete(t.incomingRequests, key)
	case discardIncomingResponse:
		delete(t.incomingResponses, key)
	}
}

func (t *Transmission) armResend(nonce Nonce, attempt int) {
	delay, err := t.resendCalc.CalculateDuration(attempt, t.resendDelay)
	if err != nil {
		slog.Warn("resend duration calculation failed", "nonce", nonce.String(), "error", err)
		return
	}
	if _, schedErr := t.host.SendAfter(t.self, resendEvent{nonce: nonce}, delay); schedErr != nil {
		slog.Warn("failed to arm resend", "nonce", nonce.String(), "error", schedErr)
	}
}

func (t *Transmission) armDiscard(nonce Nonce, kind discardKind) {
	if _, err := t.host.SendAfter(t.self, discardEvent{nonce: nonce, kind: kind}, t.discardDelay); err != nil {
		slog.Warn("failed to arm discard", "nonce", nonce.String(), "error", err)
	}
}
