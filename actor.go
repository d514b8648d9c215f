package peernetic

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// ErrStopActor is returned by an actor body to request its own clean
// termination — the host stops logging it as a failure and simply removes
// it, mirroring spec §4.4's "actor voluntarily finishes" case.
var ErrStopActor = fmt.Errorf("stop actor")

// Behavior is the body of an actor. It is invoked exactly once, on a
// dedicated goroutine, and runs for the actor's entire lifetime: Behavior
// calls ctx.Suspend to hand control back to the host and receive the next
// Message, looping for as long as the actor wants to stay alive. Returning
// nil or ErrStopActor ends the actor cleanly; any other error is logged and
// also ends the actor. A panic inside Behavior is recovered at the actor
// boundary and treated the same as a returned error.
type Behavior func(ctx *Context) error

// ActorStatus mirrors theatre's ActorStatus enum, generalized with a third
// terminal state since green-thread actors can finish on their own without
// ever being told to stop.
type ActorStatus int

const (
	ActorStatusActive ActorStatus = iota
	ActorStatusSuspended
	ActorStatusStopped
)

// stepResult is what the actor goroutine reports back to the host at the
// end of one step.
type stepResult struct {
	suspended bool
	err       error
}

// Actor is the runtime's realization of the suspendable-actor contract
// described in spec §4.3/§4.4: one goroutine per actor, rendezvousing with
// the host over two unbuffered channels so that at most one of {host,
// actor} is ever running. This gives the actor's Go call stack genuine
// persistence across suspends — the green thread named in SPEC_FULL.md
// §4.3/4.4 — while preserving the single-threaded-cooperative invariant of
// spec §5.
//
// Grounded on theatre's actor.go (goroutine-per-actor, atomic status, panic
// recovery via debug.PrintStack in (*Actor).receive), generalized from
// theatre's always-blocking-on-channel-receive model to one where the
// actor's own code chooses its suspension points via Context.Suspend.
type Actor struct {
	address  Address
	behavior Behavior
	status   ActorStatus

	resume   chan Message
	stepDone chan stepResult

	started bool
	ctx     *Context
}

// NewActor constructs an Actor bound to address, running behavior. The
// actor goroutine is not started until the first call to Step.
func NewActor(address Address, behavior Behavior, host *Host) *Actor {
	a := &Actor{
		address:  address,
		behavior: behavior,
		resume:   make(chan Message),
		stepDone: make(chan stepResult),
	}
	a.ctx = newContext(address, host, a.resume, a.stepDone)
	return a
}

// Address returns the actor's own address.
func (a *Actor) Address() Address {
	return a.address
}

// Status returns the actor's current lifecycle status.
func (a *Actor) Status() ActorStatus {
	return a.status
}

// Step delivers one Message to the actor and blocks until the actor either
// suspends again (awaiting its next message) or terminates. On first call
// this also starts the actor's goroutine. Step must never be called
// concurrently for the same Actor — this is the single-threaded-cooperative
// invariant of spec §5, enforced by construction: the host only ever calls
// Step from its one dispatch loop.
func (a *Actor) Step(msg Message) (terminated bool, err error) {
	if a.status == ActorStatusStopped {
		return true, fmt.Errorf("actor already stopped")
	}
	if !a.started {
		a.started = true
		a.status = ActorStatusActive
		go a.run()
	}
	a.resume <- msg
	result := <-a.stepDone
	if result.suspended {
		a.status = ActorStatusSuspended
		return false, nil
	}
	a.status = ActorStatusStopped
	return true, result.err
}

// run is the body of the actor goroutine. It waits for the first resume,
// then hands control to the behavior; the behavior suspends and resumes via
// Context.Suspend, which talks directly to these same two channels.
func (a *Actor) run() {
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			var err error
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
			slog.Error("actor panicked", "address", a.address.String(), "error", err)
			a.stepDone <- stepResult{err: err}
		}
	}()

	first := <-a.resume
	a.ctx.message = first

	err := a.behavior(a.ctx)
	if err != nil && err != ErrStopActor {
		slog.Error("actor terminated with error", "address", a.address.String(), "error", err)
		a.stepDone <- stepResult{err: err}
		return
	}
	a.stepDone <- stepResult{err: nil}
}
