package peernetic

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrMalformedTimerAddress is returned when a destination under the
// "timer" prefix doesn't carry a valid millisecond count as its second
// element.
var ErrMalformedTimerAddress = fmt.Errorf("malformed timer address")

// ParseTimerAddress splits a "timer:<millis>:<rest...>" destination into
// the requested delay and the address the message should be redelivered to
// once the delay elapses. This is the wire convention described in spec
// §4.8/§6.
func ParseTimerAddress(dest Address) (delay time.Duration, rest Address, err error) {
	if dest.Size() < 2 || dest.Element(0) != "timer" {
		return 0, Address{}, ErrMalformedTimerAddress
	}
	var millis int64
	if _, scanErr := fmt.Sscanf(dest.Element(1), "%d", &millis); scanErr != nil || millis < 0 {
		return 0, Address{}, ErrMalformedTimerAddress
	}
	prefix, err := NewAddress(dest.Element(0), dest.Element(1))
	if err != nil {
		return 0, Address{}, err
	}
	rest, err = dest.RemovePrefix(prefix)
	if err != nil {
		return 0, Address{}, err
	}
	return time.Duration(millis) * time.Millisecond, rest, nil
}

// DelayScheduler abstracts "run fn after d elapses" so the Timer gateway
// can sit behind either a real wall-clock timer (production Host) or the
// Simulator's virtual-clock event queue, without the gateway itself caring
// which.
type DelayScheduler interface {
	After(d time.Duration, fn func())
}

// WallDelayScheduler schedules fn with the real-time runtime timer wheel,
// via time.AfterFunc.
type WallDelayScheduler struct{}

// After implements DelayScheduler.
func (WallDelayScheduler) After(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

// TimerGateway is the Shuttle registered under the "timer" address prefix:
// any message an actor sends to "timer:<millis>:<rest...>" is captured
// here, held for the requested delay, and then redelivered onto target
// with its destination rewritten to <rest...> and its source preserved —
// the one-shot scheduled-send contract of spec §4.8.
//
// Grounded on original_source/core/TimerGateway.java: a single scheduling
// facility keyed by a millisecond delay embedded in the address itself,
// generalized here to satisfy the plain Shuttle interface (per Open
// Question #1's resolution, no separate Transport-like abstraction) and to
// run atop a pluggable DelayScheduler rather than a hardcoded
// ScheduledExecutorService.
type TimerGateway struct {
	target    *Bus
	scheduler DelayScheduler
}

// NewTimerGateway constructs a TimerGateway that redelivers onto target
// after scheduler-managed delays.
func NewTimerGateway(target *Bus, scheduler DelayScheduler) *TimerGateway {
	return &TimerGateway{target: target, scheduler: scheduler}
}

// Send implements Shuttle. Malformed timer addresses are dropped; a Timer
// gateway never blocks its caller or returns an error, consistent with the
// fire-and-forget posture of Shuttle.
func (g *TimerGateway) Send(messages []Message) {
	for _, m := range messages {
		delay, rest, err := ParseTimerAddress(m.Destination())
		if err != nil {
			continue
		}
		redelivered := m.WithDestination(rest)
		g.scheduler.After(delay, func() {
			g.target.Write(NewDeliverRecord(redelivered))
		})
	}
}

// ScheduleID identifies a Host-level SendAfter/SendCron registration.
type ScheduleID string

type schedule struct {
	id        ScheduleID
	dest      Address
	payload   any
	cron      *cronSchedule
	cancelled bool
}

var scheduleSeq atomic.Int64

func newScheduleID() ScheduleID {
	return ScheduleID(fmt.Sprintf("sched-%d", scheduleSeq.Add(1)))
}

// scheduleRegistry tracks Host-level schedules created via SendAfter/
// SendCron so CancelSchedule and cron re-arming can find them again. It is
// the in-memory-only replacement for theatre's SQL-backed Scheduler
// ownership/recovery machinery — see DESIGN.md for why that machinery was
// dropped rather than adapted.
type scheduleRegistry struct {
	mu    sync.Mutex
	items map[ScheduleID]*schedule
}

func newScheduleRegistry() *scheduleRegistry {
	return &scheduleRegistry{items: make(map[ScheduleID]*schedule)}
}

func (r *scheduleRegistry) add(s *schedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[s.id] = s
}

func (r *scheduleRegistry) get(id ScheduleID) *schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[id]
}

func (r *scheduleRegistry) remove(id ScheduleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// SendAfter delivers payload to dest once, after delay elapses, by routing
// through the Host's TimerGateway — it is sugar over the plain timer:
// address convention, not a new wire primitive, per SPEC_FULL.md §4.11.
func (h *Host) SendAfter(dest Address, payload any, delay time.Duration) (ScheduleID, error) {
	id := newScheduleID()
	h.schedules.add(&schedule{id: id, dest: dest, payload: payload})
	if err := h.armTimer(id, delay); err != nil {
		h.schedules.remove(id)
		return "", err
	}
	return id, nil
}

// SendCron delivers payload to dest every time cronExpr next matches,
// starting from the Host's current clock reading, until CancelSchedule is
// called. Grounded on theatre's cron.go parser (kept essentially as-is,
// since it is pure value-level logic with no DB dependency) driving
// repeated SendAfter-style re-arming instead of theatre's DB-persisted
// fireDue loop.
func (h *Host) SendCron(dest Address, payload any, cronExpr string) (ScheduleID, error) {
	cs, err := parseCron(cronExpr)
	if err != nil {
		return "", err
	}
	id := newScheduleID()
	h.schedules.add(&schedule{id: id, dest: dest, payload: payload, cron: cs})
	if err := h.armCron(id); err != nil {
		h.schedules.remove(id)
		return "", err
	}
	return id, nil
}

// CancelSchedule stops a pending SendAfter or SendCron registration. Firing
// in flight when Cancel is called may still deliver once; no further
// deliveries follow.
func (h *Host) CancelSchedule(id ScheduleID) error {
	s := h.schedules.get(id)
	if s == nil {
		return fmt.Errorf("unknown schedule %q", id)
	}
	s.cancelled = true
	h.schedules.remove(id)
	h.metrics.SchedulesCancelled.Add(1)
	return nil
}

func (h *Host) armTimer(id ScheduleID, delay time.Duration) error {
	schedAddr, err := NewAddress("schedule", string(id))
	if err != nil {
		return err
	}
	millis := fmt.Sprintf("%d", delay.Milliseconds())
	timerAddr, err := NewAddress("timer", millis)
	if err != nil {
		return err
	}
	dest := timerAddr.Append(schedAddr)
	return h.Send(Address{}, dest, struct{}{})
}

func (h *Host) armCron(id ScheduleID) error {
	s := h.schedules.get(id)
	if s == nil || s.cancelled {
		return nil
	}
	now := h.clock.Now()
	fireAt := s.cron.next(now)
	if fireAt.IsZero() {
		return fmt.Errorf("cron schedule %q has no future occurrence", id)
	}
	return h.armTimer(id, fireAt.Sub(now))
}

// fireSchedule is invoked by the dispatch loop when a message addressed to
// "schedule:<id>" arrives back from the Timer gateway. It forwards the
// schedule's payload to its real destination and, for cron schedules,
// re-arms the next occurrence.
func (h *Host) fireSchedule(id ScheduleID) {
	s := h.schedules.get(id)
	if s == nil || s.cancelled {
		return
	}
	if err := h.Send(Address{}, s.dest, s.payload); err != nil {
		h.logger.Warn("failed to deliver scheduled message", "schedule", id, "error", err)
	}
	h.metrics.SchedulesFired.Add(1)
	if s.cron != nil {
		if err := h.armCron(id); err != nil {
			h.logger.Warn("failed to re-arm cron schedule", "schedule", id, "error", err)
		}
	} else {
		h.schedules.remove(id)
	}
}
