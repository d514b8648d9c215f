package peernetic

import (
	"sync"
)

// BusRecord is the sum type of everything that can be placed on a Bus: a
// Message to deliver, or a directive to add/remove an outgoing Shuttle
// registration. Exactly one of IsMessage, IsAddShuttle and IsRemoveShuttle
// reports true for a record, and that tells which accessors are meaningful.
type BusRecord struct {
	kind    busRecordKind
	message Message
	prefix  Address
	shuttle Shuttle
}

type busRecordKind int

const (
	busRecordMessage busRecordKind = iota
	busRecordAddShuttle
	busRecordRemoveShuttle
)

// NewDeliverRecord wraps a Message for delivery through a Bus.
func NewDeliverRecord(m Message) BusRecord {
	return BusRecord{kind: busRecordMessage, message: m}
}

// NewAddOutgoingShuttleRecord directs the Bus's owner to route every
// outbound message whose destination is prefixed by prefix to shuttle.
func NewAddOutgoingShuttleRecord(prefix Address, shuttle Shuttle) BusRecord {
	return BusRecord{kind: busRecordAddShuttle, prefix: prefix, shuttle: shuttle}
}

// NewRemoveOutgoingShuttleRecord undoes a prior AddOutgoingShuttleRecord for
// the given prefix.
func NewRemoveOutgoingShuttleRecord(prefix Address) BusRecord {
	return BusRecord{kind: busRecordRemoveShuttle, prefix: prefix}
}

// IsMessage reports whether this record carries a Message.
func (r BusRecord) IsMessage() bool { return r.kind == busRecordMessage }

// IsAddShuttle reports whether this record is an AddOutgoingShuttleRecord.
func (r BusRecord) IsAddShuttle() bool { return r.kind == busRecordAddShuttle }

// IsRemoveShuttle reports whether this record is a RemoveOutgoingShuttleRecord.
func (r BusRecord) IsRemoveShuttle() bool { return r.kind == busRecordRemoveShuttle }

// Message returns the carried Message. Only meaningful when IsMessage is true.
func (r BusRecord) Message() Message { return r.message }

// Prefix returns the shuttle-registration prefix. Only meaningful when
// IsAddShuttle or IsRemoveShuttle is true.
func (r BusRecord) Prefix() Address { return r.prefix }

// Shuttle returns the shuttle being registered. Only meaningful when
// IsAddShuttle is true.
func (r BusRecord) Shuttle() Shuttle { return r.shuttle }

// Bus is a multi-producer, single-consumer queue of BusRecords. Any number
// of actor goroutines may call Write concurrently; exactly one consumer (the
// Host's dispatch loop calling ReadAll, or the Simulator's event loop calling
// TryReadAll) drains it.
//
// This mirrors the role of theatre's Inbox/RingBuffer, generalized from
// InboxMessage to the richer BusRecord sum type the spec requires.
type Bus struct {
	mu      sync.Mutex
	cond    *sync.Cond
	records []BusRecord
	closed  bool
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	b := &Bus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write appends records to the bus and wakes any blocked reader. Write on a
// closed Bus is a silent no-op — producers are never required to know that
// the consumer has shut down.
func (b *Bus) Write(records ...BusRecord) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.records = append(b.records, records...)
	b.cond.Broadcast()
}

// ReadAll blocks until at least one record is available or the bus is
// closed, then drains and returns every pending record. It returns
// ok == false whenever it finds the bus both closed and empty, on that call
// and on every later one.
func (b *Bus) ReadAll() (records []BusRecord, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.records) == 0 && !b.closed {
		b.cond.Wait()
	}
	if len(b.records) == 0 && b.closed {
		return nil, false
	}
	records, b.records = b.records, nil
	return records, true
}

// TryReadAll drains and returns whatever records are currently pending
// without blocking. ok is false only when the bus is both closed and
// empty; an empty, non-blocking result on an open bus returns
// (nil, true) so callers can tell "nothing right now" apart from "never
// again". Used by the Simulator, whose event loop must never block on a
// production-style waiting reader.
func (b *Bus) TryReadAll() (records []BusRecord, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 && b.closed {
		return nil, false
	}
	records, b.records = b.records, nil
	return records, true
}

// Close marks the bus closed. Pending readers wake up and drain whatever
// remains; subsequent Writes are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.cond.Broadcast()
}
