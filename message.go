package peernetic

// Message is the immutable unit of communication between actors: a source
// address, a destination address, and an opaque payload. Neither the Bus nor
// any Shuttle ever inspects the payload — interpretation is entirely up to
// the actor that receives it.
type Message struct {
	source      Address
	destination Address
	payload     any
}

// NewMessage constructs a Message. destination must not be empty; source may
// be empty for synthetic/system-originated messages (e.g. timer fires).
func NewMessage(source, destination Address, payload any) (Message, error) {
	if destination.IsEmpty() {
		return Message{}, ErrMalformedAddress
	}
	return Message{source: source, destination: destination, payload: payload}, nil
}

// Source returns the message's source address.
func (m Message) Source() Address {
	return m.source
}

// Destination returns the message's destination address.
func (m Message) Destination() Address {
	return m.destination
}

// Payload returns the opaque application payload.
func (m Message) Payload() any {
	return m.payload
}

// WithSource returns a copy of m with its source address replaced. Used by
// routing layers (SubcoroutineRouter, Transmission) that rewrite the
// apparent origin of a message without mutating the original.
func (m Message) WithSource(source Address) Message {
	m.source = source
	return m
}

// WithDestination returns a copy of m with its destination address replaced.
func (m Message) WithDestination(destination Address) Message {
	m.destination = destination
	return m
}
