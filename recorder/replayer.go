package recorder

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/offbynull-go/peernetic"
)

// Replayer reads a recorder file back and re-injects its messages into a
// Shuttle, sleeping the real wall-clock delta between consecutive blocks'
// recorded timestamps so replay reproduces the original message timing.
//
// Grounded on original_source's ReadRunnable.run(): read a block, compute
// the delta to the previous block's timestamp, sleep it, parentize each
// sub-message's destination suffix onto the replay's destination prefix,
// and forward the batch — driven from a background goroutine that
// ReplayerGateway.close() stops by cancelling its context (Java's
// interrupt()).
type Replayer struct {
	f   *os.File
	r   *bufio.Reader
	ser peernetic.Serializer

	// Dest is the address every recorded message's DstSuffix is re-parented
	// onto, mirroring ReadRunnable's dstAddress.
	Dest peernetic.Address
	// Out receives every reconstructed batch of messages.
	Out peernetic.Shuttle

	logger *slog.Logger
}

// Open opens path for replay.
func Open(path string, dest peernetic.Address, out peernetic.Shuttle, ser peernetic.Serializer, logger *slog.Logger) (*Replayer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{f: f, r: bufio.NewReader(f), ser: ser, Dest: dest, Out: out, logger: logger}, nil
}

// Close releases the underlying file. It does not stop a Run in progress;
// callers cancel Run's context first.
func (rp *Replayer) Close() error {
	return rp.f.Close()
}

// Run replays blocks until the file is exhausted or ctx is cancelled. It
// blocks the calling goroutine; callers that want ReplayerGateway's
// fire-and-forget semantics run it in its own goroutine.
func (rp *Replayer) Run(ctx context.Context) error {
	var prev time.Time
	first := true
	for {
		data, err := readFrame(rp.r)
		if err != nil {
			if err.Error() == "EOF" {
				return nil
			}
			return fmt.Errorf("recorder: read frame: %w", err)
		}

		var block RecordedBlock
		if err := rp.ser.Unmarshal(data, &block); err != nil {
			return fmt.Errorf("recorder: unmarshal block: %w", err)
		}

		if !first {
			delta := block.Time.Sub(prev)
			if delta > 0 {
				select {
				case <-time.After(delta):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		first = false
		prev = block.Time

		if ctx.Err() != nil {
			return ctx.Err()
		}
		rp.deliver(block)
	}
}

func (rp *Replayer) deliver(block RecordedBlock) {
	messages := make([]peernetic.Message, 0, len(block.Messages))
	for _, sub := range block.Messages {
		dest := rp.Dest.Append(sub.DstSuffix)
		msg, err := peernetic.NewMessage(sub.SrcAddress, dest, sub.Payload)
		if err != nil {
			rp.logger.Warn("recorder: malformed replayed message", "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) > 0 {
		rp.Out.Send(messages)
	}
}
