package transport

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/omnish-dev/omnish/internal/model"
)

// ErrProtocol marks a single malformed frame (bad magic, an implausible or
// mismatched length, invalid envelope JSON). It means exactly one frame was
// garbage, not that the connection is dead — callers log it and keep
// reading. Any other error from readFrame is a genuine socket I/O failure
// and does mean the connection is gone.
var ErrProtocol = errors.New("transport: protocol error")

// magic identifies the inner payload framing, a defense-in-depth check
// independent of the outer length prefix.
var magic = [2]byte{0x4F, 0x53} // "OS"

const maxFrameLen = 16 << 20 // 16MiB guards against a corrupt length prefix

// Frame is one message on the wire: a request id for correlation plus a
// tagged payload. Responses may arrive in any order; callers correlate by
// RequestID alone.
type Frame struct {
	RequestID uint64
	Kind      model.Kind
	Payload   json.RawMessage
}

// envelope is the self-describing inner encoding carried after the magic
// and length fields.
type envelope struct {
	Kind    model.Kind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// NewFrame marshals payload and wraps it as a Frame with the given kind.
func NewFrame(requestID uint64, kind model.Kind, payload any) (*Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Frame{RequestID: requestID, Kind: kind, Payload: raw}, nil
}

// Decode unmarshals the frame's payload into v.
func (f *Frame) Decode(v any) error {
	return json.Unmarshal(f.Payload, v)
}

// encode serializes the frame as:
//
//	u32_be(outer_len) || u64_be(request_id) || magic(2) || u32_be(inner_len) || inner_bytes
//
// where inner_bytes is the JSON-encoded envelope. The magic + inner length
// duplicate information already bounded by the outer length; they exist so
// a reader that loses outer-frame sync can still validate a candidate
// frame before trusting it.
func (f *Frame) encode() ([]byte, error) {
	inner, err := json.Marshal(envelope{Kind: f.Kind, Payload: f.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	innerLen := len(inner)
	frameBody := make([]byte, 8+2+4+innerLen)
	binary.BigEndian.PutUint64(frameBody[0:8], f.RequestID)
	copy(frameBody[8:10], magic[:])
	binary.BigEndian.PutUint32(frameBody[10:14], uint32(innerLen))
	copy(frameBody[14:], inner)

	out := make([]byte, 4+len(frameBody))
	binary.BigEndian.PutUint32(out[0:4], uint32(len(frameBody)))
	copy(out[4:], frameBody)
	return out, nil
}

// writeFrame writes one length-prefixed frame to w.
func writeFrame(w io.Writer, f *Frame) error {
	buf, err := f.encode()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// readFrame reads one length-prefixed frame from r. Returns io.EOF (wrapped)
// on a clean connection close.
func readFrame(r *bufio.Reader) (*Frame, error) {
	var outerLen uint32
	if err := binary.Read(r, binary.BigEndian, &outerLen); err != nil {
		return nil, err
	}
	if outerLen < 14 || outerLen > maxFrameLen {
		return nil, fmt.Errorf("%w: implausible frame length %d", ErrProtocol, outerLen)
	}

	body := make([]byte, outerLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	requestID := binary.BigEndian.Uint64(body[0:8])
	if body[8] != magic[0] || body[9] != magic[1] {
		return nil, fmt.Errorf("%w: bad magic %x", ErrProtocol, body[8:10])
	}
	innerLen := binary.BigEndian.Uint32(body[10:14])
	if int(14+innerLen) != len(body) {
		return nil, fmt.Errorf("%w: inner length mismatch (%d vs %d)", ErrProtocol, innerLen, len(body)-14)
	}

	var env envelope
	if err := json.Unmarshal(body[14:], &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %w", ErrProtocol, err)
	}

	return &Frame{RequestID: requestID, Kind: env.Kind, Payload: env.Payload}, nil
}
