// Package udp is the plain net.PacketConn-backed network Shuttle described
// in SPEC_FULL.md §4.12: each outbound Message becomes one UDP datagram,
// inbound datagrams are pushed onto the owning Gateway's Bus as
// DeliverRecords. Datagrams are not reassembled — payload size staying
// under the path MTU is the actor's responsibility, consistent with the
// framework's opaque-bytes stance on the wire.
package udp

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/offbynull-go/peernetic"
)

const defaultMaxDatagramSize = 64 * 1024

// Config configures a Shuttle.
type Config struct {
	// Conn is the already-bound UDP socket this Shuttle sends on and, if
	// Listen is run, receives from.
	Conn net.PacketConn
	// Remote is the fixed peer this Shuttle's Send writes every outbound
	// datagram to. A Shuttle is one-peer-per-instance, mirroring how
	// OutputGateway already keys Shuttles by destination prefix — one
	// udp.Shuttle per peer, e.g. built by a gossip ShuttleFactory.
	Remote net.Addr
	// Serializer turns payloads into datagram bytes. Required.
	Serializer peernetic.Serializer
	// MaxDatagramSize bounds Listen's read buffer. Default 64KiB.
	MaxDatagramSize int
	Logger          *slog.Logger
}

// Shuttle is a peernetic.Shuttle that writes to one fixed UDP peer.
type Shuttle struct {
	conn       net.PacketConn
	remote     net.Addr
	ser        peernetic.Serializer
	maxDgram   int
	logger     *slog.Logger
}

// New constructs a Shuttle from cfg.
func New(cfg Config) *Shuttle {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxDgram := cfg.MaxDatagramSize
	if maxDgram <= 0 {
		maxDgram = defaultMaxDatagramSize
	}
	return &Shuttle{
		conn:     cfg.Conn,
		remote:   cfg.Remote,
		ser:      cfg.Serializer,
		maxDgram: maxDgram,
		logger:   logger,
	}
}

// Send implements peernetic.Shuttle: one datagram per Message.
func (s *Shuttle) Send(messages []peernetic.Message) {
	for _, m := range messages {
		data, err := s.ser.Marshal(m.Payload())
		if err != nil {
			s.logger.Warn("udp shuttle: marshal failed", "destination", m.Destination().String(), "error", err)
			continue
		}
		if len(data) > s.maxDgram {
			s.logger.Warn("udp shuttle: payload exceeds max datagram size", "size", len(data), "max", s.maxDgram)
			continue
		}
		if _, err := s.conn.WriteTo(data, s.remote); err != nil {
			s.logger.Warn("udp shuttle: write failed", "remote", s.remote.String(), "error", err)
		}
	}
}

// Listen reads datagrams from the shuttle's Conn until ctx is done or the
// socket errors, pushing each successfully-decoded datagram onto bus as a
// DeliverRecord with the given source and destination. source is typically
// the remote peer's own prefix and dest the local gateway's address —
// callers run one Listen per registered peer Shuttle. The gossip Gateway
// only registers Shuttles; it never starts Listen.
func (s *Shuttle) Listen(ctx context.Context, bus *peernetic.Bus, source, dest peernetic.Address) error {
	buf := make([]byte, s.maxDgram)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("udp shuttle: read: %w", err)
		}

		var payload any
		if err := s.ser.Unmarshal(buf[:n], &payload); err != nil {
			s.logger.Warn("udp shuttle: unmarshal failed", "error", err)
			continue
		}
		msg, err := peernetic.NewMessage(source, dest, payload)
		if err != nil {
			s.logger.Warn("udp shuttle: malformed message", "error", err)
			continue
		}
		bus.Write(peernetic.NewDeliverRecord(msg))
	}
}
