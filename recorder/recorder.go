// Package recorder implements the recorder/replayer pair described in
// spec §6: a file of length-prefixed, serialized RecordedBlocks, each
// carrying a wall-clock timestamp and the sub-messages that arrived in one
// Send batch. A Recorder is a Shuttle that appends every batch it receives;
// a Replayer reads the file back, sleeping the real inter-block deltas and
// re-injecting messages under a caller-chosen destination prefix.
//
// Grounded directly on original_source's ReadRunnable.java/
// ReplayerGateway.java for the replay side (read-sleep-reinject loop,
// interrupt-to-stop lifecycle); the Recorder/write side has no surviving
// original_source file to ground on (RecorderGateway.java/RecordedBlock.java
// were not part of the retrieval pack's filtered original_source index), so
// it is built as the straightforward inverse of ReadRunnable's own framing,
// using the same Serializer boundary spec §6 names.
package recorder

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/offbynull-go/peernetic"
)

const maxBlockSize = 64 * 1024 * 1024

// SubMessage is one message inside a RecordedBlock, per spec §6's
// {srcAddress, dstSuffix, payload} triple.
type SubMessage struct {
	SrcAddress peernetic.Address
	DstSuffix  peernetic.Address
	Payload    any
}

// RecordedBlock is one length-prefixed unit in a recorder file: a
// wall-clock timestamp plus every sub-message that arrived together in one
// Send call.
type RecordedBlock struct {
	Time     time.Time
	Messages []SubMessage
}

// Recorder is a peernetic.Shuttle that appends every Send batch to a file
// as one RecordedBlock. It is registered like any other outgoing Shuttle
// (Host.AddOutgoingShuttle) under whatever prefix should be captured.
type Recorder struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	ser  peernetic.Serializer
	clock peernetic.Clock
	self peernetic.Address
}

// Create opens path for writing (truncating any existing file) and returns
// a Recorder that records messages addressed under self, storing each
// destination's suffix relative to self as DstSuffix.
func Create(path string, self peernetic.Address, ser peernetic.Serializer, clock peernetic.Clock) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}
	if clock == nil {
		clock = peernetic.WallClock{}
	}
	return &Recorder{f: f, w: bufio.NewWriter(f), ser: ser, clock: clock, self: self}, nil
}

// Send implements peernetic.Shuttle.
func (r *Recorder) Send(messages []peernetic.Message) {
	if len(messages) == 0 {
		return
	}
	subs := make([]SubMessage, 0, len(messages))
	for _, m := range messages {
		suffix, err := m.Destination().RemovePrefix(r.self)
		if err != nil {
			suffix = m.Destination()
		}
		subs = append(subs, SubMessage{SrcAddress: m.Source(), DstSuffix: suffix, Payload: m.Payload()})
	}
	block := RecordedBlock{Time: r.clock.Now(), Messages: subs}

	data, err := r.ser.Marshal(block)
	if err != nil {
		slog.Default().Warn("recorder: marshal failed", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := writeFrame(r.w, data); err != nil {
		slog.Default().Warn("recorder: write failed", "error", err)
		return
	}
	if err := r.w.Flush(); err != nil {
		slog.Default().Warn("recorder: flush failed", "error", err)
	}
}

// Close flushes and closes the underlying file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return err
	}
	return r.f.Close()
}

func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxBlockSize {
		return fmt.Errorf("recorder: block of %d bytes exceeds max %d", len(data), maxBlockSize)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxBlockSize {
		return nil, fmt.Errorf("recorder: block of %d bytes exceeds max %d", n, maxBlockSize)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
