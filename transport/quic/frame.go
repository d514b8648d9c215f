package quic

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxFrameSize = 16 * 1024 * 1024

// writeFrame writes data as a {int32 length, bytes} frame per spec §6's
// wire framing, reused here for QUIC stream delimiting rather than just
// the recorder file format.
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("quic shuttle: frame of %d bytes exceeds max %d", len(data), maxFrameSize)
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
	if n > maxFrameSize {
		return nil, fmt.Errorf("quic shuttle: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
