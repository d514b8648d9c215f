package peernetic

import "fmt"

// ErrNotDirectChild is returned by SubcoroutineRouter.Add when key is not a
// single valid address element, so the child's address would not be exactly
// one element below the router's own address. Remove does not validate keys;
// an unknown key there yields ErrSubcoroutineNotFound.
var ErrNotDirectChild = fmt.Errorf("address is not a direct child of the router")

// ErrSubcoroutineExists is returned by AddBehaviour when a subcoroutine is
// already registered under the requested key.
var ErrSubcoroutineExists = fmt.Errorf("subcoroutine already registered")

// ErrSubcoroutineNotFound is returned by Remove when no subcoroutine is
// registered under the requested address.
var ErrSubcoroutineNotFound = fmt.Errorf("subcoroutine not found")

// AddBehaviour controls what happens immediately after a Subcoroutine is
// added to a SubcoroutineRouter, mirroring original_source's
// SubcoroutineRouter.Controller.AddBehaviour enum.
type AddBehaviour int

const (
	// AddOnly registers the subcoroutine; it is first stepped on the next
	// Forward call, same as any other entry.
	AddOnly AddBehaviour = iota
	// AddAndForceForward registers the subcoroutine and immediately steps
	// it once, asserting it must still be running afterward.
	AddAndForceForward
	// AddAndForceForwardNoFinishCheck is like AddAndForceForward but does
	// not assert the subcoroutine is still running — it may legitimately
	// finish on its very first step.
	AddAndForceForwardNoFinishCheck
)

// Subcoroutine is the body of a nested dialogue multiplexed by a
// SubcoroutineRouter. It has the exact same shape as Behavior — suspending
// via ctx.Suspend() — but is stepped by the router instead of directly by a
// Host.
type Subcoroutine func(ctx *Context) error

// subcoroutineInstance is one running (or not yet started) Subcoroutine,
// holding its own rendezvous channel pair exactly like an Actor does — a
// subcoroutine is a green thread nested inside its parent actor's green
// thread.
type subcoroutineInstance struct {
	ctx      *Context
	fn       Subcoroutine
	resume   chan Message
	stepDone chan stepResult
	started  bool
}

func newSubcoroutineInstance(self Address, host *Host, fn Subcoroutine) *subcoroutineInstance {
	resume := make(chan Message)
	stepDone := make(chan stepResult)
	return &subcoroutineInstance{
		ctx:      newContext(self, host, resume, stepDone),
		fn:       fn,
		resume:   resume,
		stepDone: stepDone,
	}
}

func (s *subcoroutineInstance) step(msg Message) (terminated bool, err error) {
	if !s.started {
		s.started = true
		go s.run()
	}
	s.resume <- msg
	result := <-s.stepDone
	if result.suspended {
		return false, nil
	}
	return true, result.err
}

func (s *subcoroutineInstance) run() {
	defer func() {
		if r := recover(); r != nil {
			var err error
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = fmt.Errorf("panic: %v", r)
			}
			s.stepDone <- stepResult{err: err}
		}
	}()

	first := <-s.resume
	s.ctx.message = first

	err := s.fn(s.ctx)
	s.stepDone <- stepResult{err: err}
}

// SubcoroutineRouter multiplexes any number of nested Subcoroutine
// dialogues inside one actor, dispatching by the first element of the
// destination address's suffix relative to the router's own address.
//
// Grounded directly on original_source/core/SubcoroutineRouter.java: the
// forward() method's "strip own prefix, take first remaining element as
// key, step the matching entry, drop it if finished" logic, and the
// Controller's add()/remove() direct-child validation.
type SubcoroutineRouter struct {
	self    Address
	host    *Host
	entries map[string]*subcoroutineInstance
}

// NewSubcoroutineRouter constructs a router whose own address is self.
func NewSubcoroutineRouter(self Address, host *Host) *SubcoroutineRouter {
	return &SubcoroutineRouter{self: self, host: host, entries: make(map[string]*subcoroutineInstance)}
}

// Add registers fn under key (a direct child element of the router's
// address) per behaviour.
func (r *SubcoroutineRouter) Add(key string, fn Subcoroutine, behaviour AddBehaviour) error {
	if _, exists := r.entries[key]; exists {
		return ErrSubcoroutineExists
	}
	childAddr, err := r.self.AppendElements(key)
	if err != nil {
		return ErrNotDirectChild
	}
	inst := newSubcoroutineInstance(childAddr, r.host, fn)
	r.entries[key] = inst

	switch behaviour {
	case AddAndForceForward:
		terminated, stepErr := inst.step(Message{})
		if stepErr != nil {
			delete(r.entries, key)
			return stepErr
		}
		if terminated {
			delete(r.entries, key)
			return fmt.Errorf("subcoroutine %q finished on forced forward, expected it to still be running", key)
		}
	case AddAndForceForwardNoFinishCheck:
		terminated, stepErr := inst.step(Message{})
		if stepErr != nil {
			delete(r.entries, key)
			return stepErr
		}
		if terminated {
			delete(r.entries, key)
		}
	}
	return nil
}

// Remove unregisters and discards the subcoroutine registered under key. It
// fails with ErrSubcoroutineNotFound if nothing is registered there — a
// double-remove is a caller bug, not a benign no-op, mirroring the
// original's assertion.
func (r *SubcoroutineRouter) Remove(key string) error {
	if _, exists := r.entries[key]; !exists {
		return ErrSubcoroutineNotFound
	}
	delete(r.entries, key)
	return nil
}

// Forward steps the subcoroutine whose key matches the first element of
// msg's destination address once that address has had the router's own
// prefix stripped off. It reports whether the message was routed to any
// subcoroutine at all.
func (r *SubcoroutineRouter) Forward(msg Message) (routed bool, err error) {
	relative, err := msg.Destination().RemovePrefix(r.self)
	if err != nil {
		return false, err
	}
	if relative.Size() < 1 {
		return false, fmt.Errorf("destination has no sub-address below router")
	}
	key := relative.Element(0)
	inst, ok := r.entries[key]
	if !ok {
		return false, nil
	}

	terminated, stepErr := inst.step(msg)
	if terminated {
		delete(r.entries, key)
	}
	return true, stepErr
}

// Size returns the number of currently active subcoroutines.
func (r *SubcoroutineRouter) Size() int {
	return len(r.entries)
}
