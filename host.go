package peernetic

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrUnregisteredActorType is returned when a message's destination names a
// type with no registered ActorFactory and no already-running actor at that
// address.
var ErrUnregisteredActorType = fmt.Errorf("unregistered actor type")

// ErrHostStopped is returned by Host API calls made after Stop.
var ErrHostStopped = fmt.Errorf("host is stopped")

// ActorFactory creates the Behavior for a newly activated actor at address.
// Registered per top-level address element (the "type"), mirroring
// theatre's Descriptor/Creator pair.
type ActorFactory func(address Address) Behavior

// Host is the production runtime described in spec §4.3: it owns a single
// dispatch loop that pulls BusRecords off a Bus and steps exactly one actor
// at a time, satisfying the single-threaded-cooperative invariant of spec
// §5 even though each actor runs on its own goroutine (see actor.go's green
// thread).
//
// Grounded on theatre's host.go (descriptors map, actor registry, request
// manager, inbox/outbox channel pair, cleanup loop, Start/Stop lifecycle),
// generalized from theatre's Ref/cluster-routing model to this fabric's
// Address/Bus/Shuttle model and trimmed of cluster placement machinery (see
// DESIGN.md for what was dropped and why).
type Host struct {
	self Address

	clock   Clock
	metrics *Metrics
	logger  *slog.Logger

	bus    *Bus
	output *OutputGateway

	mu        sync.Mutex
	factories map[string]ActorFactory
	actors    map[string]*Actor

	requests  *RequestManager
	schedules *scheduleRegistry

	cfg hostConfig

	done      chan struct{}
	stopOnce  sync.Once
	stoppedCh chan struct{}
}

// NewHost constructs a Host rooted at self, this host's own address prefix.
// Actor routing does not use self: an actor's address is the full message
// destination, whose first element names the registered type (e.g.
// "echo:1"). The host neither prepends self to actor addresses nor checks
// for it.
func NewHost(self Address, opts ...Option) *Host {
	cfg := defaultHostConfig()
	for _, o := range opts {
		o(&cfg)
	}

	clock := cfg.clock
	if clock == nil {
		clock = WallClock{}
	}

	h := &Host{
		self:      self,
		clock:     clock,
		metrics:   newMetrics(),
		logger:    cfg.logger,
		bus:       NewBus(),
		output:    NewOutputGateway(),
		factories: make(map[string]ActorFactory),
		actors:    make(map[string]*Actor),
		requests:  NewRequestManager(clock),
		schedules: newScheduleRegistry(),
		cfg:       cfg,
		done:      make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	scheduler := cfg.scheduler
	if scheduler == nil {
		scheduler = WallDelayScheduler{}
	}
	timerGateway := NewTimerGateway(h.bus, scheduler)
	if err := h.output.AddOutgoingShuttle(MustAddress("timer"), timerGateway); err != nil {
		panic(err)
	}
	return h
}

// Bus exposes the host's Bus so InputGateways can be wired to feed it.
func (h *Host) Bus() *Bus {
	return h.bus
}

// RegisterActor registers factory for addresses whose first element is
// typeName. Mirrors theatre's (*Host).RegisterActor.
func (h *Host) RegisterActor(typeName string, factory ActorFactory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.factories[typeName] = factory
}

// AddOutgoingShuttle registers shuttle for every outbound message whose
// destination begins with prefix. See spec §4.2.
func (h *Host) AddOutgoingShuttle(prefix Address, shuttle Shuttle) error {
	return h.output.AddOutgoingShuttle(prefix, shuttle)
}

// RemoveOutgoingShuttle undoes a prior AddOutgoingShuttle.
func (h *Host) RemoveOutgoingShuttle(prefix Address) error {
	return h.output.RemoveOutgoingShuttle(prefix)
}

// Metrics returns the host's operational counters.
func (h *Host) Metrics() *Metrics {
	return h.metrics
}

// Run drives the host's dispatch loop until Stop is called. It is meant to
// be run on its own goroutine; Run returns once the bus is closed and
// drained.
func (h *Host) Run() {
	ticker := time.NewTicker(h.cfg.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			h.drainOnce()
			close(h.stoppedCh)
			return
		default:
		}

		records, ok := h.bus.ReadAll()
		if !ok {
			close(h.stoppedCh)
			return
		}
		h.dispatch(records)

		select {
		case <-ticker.C:
			expired := h.requests.RemoveExpired(h.cfg.requestTimeout)
			if expired > 0 {
				h.metrics.RequestsTimedOut.Add(int64(expired))
			}
		default:
		}
	}
}

func (h *Host) drainOnce() {
	records, ok := h.bus.ReadAll()
	if ok {
		h.dispatch(records)
	}
}

func (h *Host) dispatch(records []BusRecord) {
	var outgoing []Message
	for _, rec := range records {
		switch {
		case rec.IsAddShuttle():
			if err := h.output.AddOutgoingShuttle(rec.Prefix(), rec.Shuttle()); err != nil {
				h.logger.Warn("add outgoing shuttle failed", "prefix", rec.Prefix().String(), "error", err)
			}
		case rec.IsRemoveShuttle():
			if err := h.output.RemoveOutgoingShuttle(rec.Prefix()); err != nil {
				h.logger.Warn("remove outgoing shuttle failed", "prefix", rec.Prefix().String(), "error", err)
			}
		case rec.IsMessage():
			h.deliverLocalOrQueue(rec.Message(), &outgoing)
		}
	}
	if len(outgoing) > 0 {
		undelivered := h.output.Route(outgoing)
		for _, m := range undelivered {
			h.metrics.MessagesDeadLettered.Add(1)
			h.logger.Warn("message undeliverable", "destination", m.Destination().String())
		}
	}
}

// deliverLocalOrQueue routes one message: to a pending Request if it
// targets the "requests:" namespace, to a local actor (activating one if
// needed), or onto outgoing for Shuttle routing if neither applies.
func (h *Host) deliverLocalOrQueue(msg Message, outgoing *[]Message) {
	dest := msg.Destination()
	if dest.IsEmpty() {
		return
	}

	if dest.Size() >= 1 && dest.Element(0) == "requests" {
		if h.requests.Resolve(dest, msg.Payload()) {
			h.metrics.MessagesReceived.Add(1)
			return
		}
	}

	if dest.Size() == 2 && dest.Element(0) == "schedule" {
		h.metrics.MessagesReceived.Add(1)
		h.fireSchedule(ScheduleID(dest.Element(1)))
		return
	}

	h.mu.Lock()
	actor := h.actors[dest.String()]
	if actor == nil {
		actor = h.activate(dest)
	}
	h.mu.Unlock()

	if actor == nil {
		*outgoing = append(*outgoing, msg)
		return
	}

	h.metrics.MessagesReceived.Add(1)
	terminated, err := actor.Step(msg)
	if err != nil {
		h.logger.Error("actor terminated with error", "address", dest.String(), "error", err)
	}
	if terminated {
		h.mu.Lock()
		delete(h.actors, dest.String())
		h.mu.Unlock()
	}
}

// activate looks up a factory by dest's first element and, if found,
// creates and registers a new actor at dest. Must be called with h.mu held.
func (h *Host) activate(dest Address) *Actor {
	if dest.Size() < 1 {
		return nil
	}
	factory, ok := h.factories[dest.Element(0)]
	if !ok {
		return nil
	}
	behavior := factory(dest)
	actor := NewActor(dest, behavior, h)
	h.actors[dest.String()] = actor
	h.metrics.ActivationsTotal.Add(1)
	return actor
}

// enqueueOutgoing is how Context.Send hands a Message to the host. It is
// always called from within a Step, with the host's dispatch loop parked on
// <-actor.stepDone — safe to touch host state directly.
func (h *Host) enqueueOutgoing(msg Message) {
	h.bus.Write(NewDeliverRecord(msg))
	h.metrics.MessagesSent.Add(1)
}

// Send injects an external message onto the bus, as if sent by source (may
// be the host's own empty address for system-originated sends).
func (h *Host) Send(source, dest Address, payload any) error {
	msg, err := NewMessage(source, dest, payload)
	if err != nil {
		return err
	}
	h.bus.Write(NewDeliverRecord(msg))
	h.metrics.MessagesSent.Add(1)
	return nil
}

// Request sends payload to dest and blocks until a reply is delivered back
// to the synthetic request address, or until the host's request timeout
// elapses.
func (h *Host) Request(dest Address, payload any) (any, error) {
	reqAddr, wait := h.requests.Create()
	msg, err := NewMessage(reqAddr, dest, payload)
	if err != nil {
		return nil, err
	}
	h.bus.Write(NewDeliverRecord(msg))
	h.metrics.MessagesSent.Add(1)
	h.metrics.RequestsTotal.Add(1)
	return wait()
}

// Stop drains and shuts down the host. It is idempotent and blocks until
// Run has returned.
func (h *Host) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.bus.Close()
		h.requests.FailAll(ErrHostStopped)
	})
	<-h.stoppedCh
}
