package peernetic

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ErrNotProtoMessage is returned by ProtoSerializer when asked to marshal
// or unmarshal a payload that doesn't implement proto.Message.
var ErrNotProtoMessage = fmt.Errorf("payload does not implement proto.Message")

// Serializer is the boundary between an actor's in-process payload values
// and the opaque bytes that cross a network-facing Shuttle or land in a
// recorder file, per spec §3/§6.
type Serializer interface {
	// Marshal encodes payload to bytes.
	Marshal(payload any) ([]byte, error)
	// Unmarshal decodes data into out, which must be a pointer to the
	// expected payload type.
	Unmarshal(data []byte, out any) error
}

// GobSerializer is the default Serializer: encoding/gob, used by the
// recorder/replayer file format (§6) and wherever a Shuttle's payloads are
// ordinary Go values rather than protobuf-generated types. Payload types
// that aren't exported struct fields only, or that embed interfaces, must
// be registered with gob.Register by the caller before use — this mirrors
// theatre's own reliance on gob for its scheduler's persisted body
// encoding.
type GobSerializer struct{}

// Marshal implements Serializer.
func (GobSerializer) Marshal(payload any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Serializer.
func (GobSerializer) Unmarshal(data []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

// ProtoSerializer wraps google.golang.org/protobuf for Shuttles whose
// payloads are entirely protobuf-generated types. Callers choose this
// serializer only when every payload on that Shuttle satisfies
// proto.Message — it fails loudly with ErrNotProtoMessage otherwise rather
// than silently falling back to another encoding.
type ProtoSerializer struct{}

// Marshal implements Serializer.
func (ProtoSerializer) Marshal(payload any) ([]byte, error) {
	msg, ok := payload.(proto.Message)
	if !ok {
		return nil, ErrNotProtoMessage
	}
	return proto.Marshal(msg)
}

// Unmarshal implements Serializer.
func (ProtoSerializer) Unmarshal(data []byte, out any) error {
	msg, ok := out.(proto.Message)
	if !ok {
		return ErrNotProtoMessage
	}
	return proto.Unmarshal(data, msg)
}
