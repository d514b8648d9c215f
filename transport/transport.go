// Package transport holds the legacy byte-oriented escape hatch named in
// spec §9 Open Question #1: existing transports that only know how to push
// and pull raw bytes can be wrapped into a Shuttle with one adapter type,
// instead of every such transport reimplementing the Message-oriented
// contract itself. The concrete network-facing Shuttles (transport/udp,
// transport/quic) do not use this adapter — they satisfy Shuttle directly.
package transport

import (
	"fmt"
	"log/slog"

	"github.com/offbynull-go/peernetic"
)

// RawTransport is a minimal byte-pipe: something that can send and receive
// opaque frames with no notion of Address or Message.
type RawTransport interface {
	Send(b []byte) error
	Recv() ([]byte, error)
}

// RawAdapter wraps a RawTransport into a peernetic.Shuttle. It carries no
// independent logic beyond serializing outbound payloads and pumping
// inbound frames onto a Bus — per Open Question #1's resolution, the
// actor-based model stays canonical and this is purely a thin bridge, not
// a parallel transport abstraction.
type RawAdapter struct {
	Transport  RawTransport
	Serializer peernetic.Serializer
	Logger     *slog.Logger
}

// Send implements peernetic.Shuttle by marshalling each Message's payload
// and pushing it to the underlying RawTransport, one frame per Message.
func (a *RawAdapter) Send(messages []peernetic.Message) {
	logger := a.logger()
	for _, m := range messages {
		data, err := a.Serializer.Marshal(m.Payload())
		if err != nil {
			logger.Warn("raw adapter: marshal failed", "destination", m.Destination().String(), "error", err)
			continue
		}
		if err := a.Transport.Send(data); err != nil {
			logger.Warn("raw adapter: send failed", "destination", m.Destination().String(), "error", err)
		}
	}
}

// Pump loops Recv, deserializing each frame and writing it onto bus as a
// DeliverRecord addressed to dest, with source. Frames that fail to
// unmarshal are logged and skipped. It returns the first non-nil error from
// Recv, which callers typically just log:
// a RawTransport that has gone bad is a Delivery-kind failure, not one
// that should crash the owning actor.
func (a *RawAdapter) Pump(bus *peernetic.Bus, source, dest peernetic.Address) error {
	for {
		data, err := a.Transport.Recv()
		if err != nil {
			return fmt.Errorf("raw adapter: recv: %w", err)
		}
		var payload any
		if err := a.Serializer.Unmarshal(data, &payload); err != nil {
			a.logger().Warn("raw adapter: unmarshal failed", "error", err)
			continue
		}
		msg, err := peernetic.NewMessage(source, dest, payload)
		if err != nil {
			a.logger().Warn("raw adapter: malformed message", "error", err)
			continue
		}
		bus.Write(peernetic.NewDeliverRecord(msg))
	}
}

func (a *RawAdapter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
