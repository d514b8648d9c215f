package peernetic

// Context is the handle a suspendable body (an Actor's top-level Behavior,
// or a nested Subcoroutine run by a SubcoroutineRouter) uses to interact
// with the rest of the fabric: inspect the message that resumed it,
// suspend to await the next one, and send messages of its own. It plays
// the role of theatre's Context, generalized from a single
// Send/Request/Reply trio into the fuller suspend/resume contract spec
// §4.4 requires, and shared between top-level actors and subcoroutines so
// both are written against the same API.
type Context struct {
	self     Address
	host     *Host
	message  Message
	resume   chan Message
	stepDone chan stepResult
}

// newContext constructs a Context bound to self, rendezvousing over the
// given channel pair. Both Actor and subcoroutineInstance build their
// Context this way — the only difference between a top-level actor and a
// nested subcoroutine is who owns and steps the channel pair.
func newContext(self Address, host *Host, resume chan Message, stepDone chan stepResult) *Context {
	return &Context{self: self, host: host, resume: resume, stepDone: stepDone}
}

// Self returns the address this context's body is running as.
func (c *Context) Self() Address {
	return c.self
}

// Message returns the most recently received Message — either the one that
// started this step, or the one delivered by the most recent Suspend call.
func (c *Context) Message() Message {
	return c.message
}

// Suspend hands control back to whoever is stepping this context (the host,
// or a SubcoroutineRouter) and blocks until the next Message is delivered.
// It is the only suspension point exposed to body code, per SPEC_FULL.md
// §4.3/4.4 — calling it is what makes a body's Go call stack persist across
// turns instead of being torn down and rebuilt on every message.
func (c *Context) Suspend() Message {
	c.stepDone <- stepResult{suspended: true}
	c.message = <-c.resume
	return c.message
}

// Send enqueues a fire-and-forget Message from this context to dst. The
// message is handed to the host's bus immediately; Send never blocks on
// delivery.
func (c *Context) Send(dst Address, payload any) error {
	msg, err := NewMessage(c.self, dst, payload)
	if err != nil {
		return err
	}
	c.host.enqueueOutgoing(msg)
	return nil
}

// Reply sends payload back to the source address of the currently held
// message — the common case of answering whoever just sent to this actor.
func (c *Context) Reply(payload any) error {
	return c.Send(c.message.Source(), payload)
}
