package peernetic

import "fmt"

// ErrUnknownShuttlePrefix is returned by RemoveOutgoingShuttle when no
// shuttle is registered under the given prefix.
var ErrUnknownShuttlePrefix = fmt.Errorf("no outgoing shuttle registered for prefix")

// ErrDuplicateShuttlePrefix is returned by AddOutgoingShuttle when a shuttle
// is already registered under the given prefix.
var ErrDuplicateShuttlePrefix = fmt.Errorf("outgoing shuttle already registered for prefix")

// InputGateway accepts inbound Messages from the outside world (a socket, a
// timer firing, a replayed recording) and injects them onto a Bus for
// delivery to local actors.
type InputGateway interface {
	// Bus returns the bus this gateway feeds.
	Bus() *Bus
	// Close releases any resources (sockets, timer goroutines) held by the
	// gateway. Close is idempotent.
	Close() error
}

// OutputGateway accepts outbound Messages addressed to some external
// destination prefix and forwards them via a registered Shuttle. It
// maintains the prefix -> Shuttle routing table described in spec §4.2: a
// flat map keyed by the address's first element, since every spec-mandated
// lookup is a single-element prefix match.
//
// Grounded on original_source's TimerGateway, generalized from its
// single-purpose ConcurrentHashMap<String,Shuttle> to a reusable component
// any gateway can embed.
type OutputGateway struct {
	shuttles map[string]Shuttle
}

// NewOutputGateway constructs an empty OutputGateway.
func NewOutputGateway() *OutputGateway {
	return &OutputGateway{shuttles: make(map[string]Shuttle)}
}

// AddOutgoingShuttle registers shuttle to receive every Message whose
// destination's first element equals prefix.Element(0). prefix must be
// exactly one element long — this mirrors the original's single-level
// outgoing routing table.
func (g *OutputGateway) AddOutgoingShuttle(prefix Address, shuttle Shuttle) error {
	if prefix.Size() != 1 {
		return ErrMalformedAddress
	}
	key := prefix.Element(0)
	if _, exists := g.shuttles[key]; exists {
		return ErrDuplicateShuttlePrefix
	}
	g.shuttles[key] = shuttle
	return nil
}

// RemoveOutgoingShuttle undoes a prior AddOutgoingShuttle.
func (g *OutputGateway) RemoveOutgoingShuttle(prefix Address) error {
	if prefix.Size() != 1 {
		return ErrMalformedAddress
	}
	key := prefix.Element(0)
	if _, exists := g.shuttles[key]; !exists {
		return ErrUnknownShuttlePrefix
	}
	delete(g.shuttles, key)
	return nil
}

// Route dispatches each message to the Shuttle registered for its
// destination's first element. Messages with no matching registration are
// dropped and reported via the returned slice so the caller can log or
// dead-letter them — Route itself never logs, keeping this type
// policy-free.
func (g *OutputGateway) Route(messages []Message) (undelivered []Message) {
	byShuttle := make(map[Shuttle][]Message)
	for _, m := range messages {
		dest := m.Destination()
		if dest.IsEmpty() {
			undelivered = append(undelivered, m)
			continue
		}
		shuttle, ok := g.shuttles[dest.Element(0)]
		if !ok {
			undelivered = append(undelivered, m)
			continue
		}
		byShuttle[shuttle] = append(byShuttle[shuttle], m)
	}
	for shuttle, batch := range byShuttle {
		shuttle.Send(batch)
	}
	return undelivered
}
