// Package codec frames request/response envelopes over the daemon's IPC
// socket: a fixed-width big-endian length prefix followed by that many
// bytes of JSON payload.
package codec

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes is the ceiling applied when a codec is constructed
// with a zero MaxFrameBytes.
const DefaultMaxFrameBytes = 8 * 1024 * 1024

// FrameTooLargeError is returned when a declared frame length exceeds the
// configured maximum, or when an outgoing payload would exceed it.
type FrameTooLargeError struct {
	Declared uint32
	Max      uint32
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("frame length %d exceeds max %d", e.Declared, e.Max)
}

// Envelope is the wire shape for both requests and responses. Kind
// discriminates the payload; RequestID is echoed verbatim by the
// daemon in every response.
type Envelope struct {
	Kind      string          `json:"kind"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"-"`
}

// rawEnvelope mirrors Envelope but flattens Payload's fields inline, since
// the wire format embeds request/response fields alongside kind and
// request_id rather than nesting them under a payload key.
type rawEnvelope struct {
	Kind      string `json:"kind"`
	RequestID string `json:"request_id"`
}

// Codec frames and unframes envelopes over a byte stream.
type Codec struct {
	r            *bufio.Reader
	w            io.Writer
	maxFrameSize uint32
}

// New wraps rw with framing, enforcing maxFrameSize (0 selects
// DefaultMaxFrameBytes).
func New(rw io.ReadWriter, maxFrameSize uint32) *Codec {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameBytes
	}
	return &Codec{r: bufio.NewReader(rw), w: rw, maxFrameSize: maxFrameSize}
}

// ReadFrame reads one length-prefixed frame and returns its raw JSON bytes.
// A declared length over the configured maximum is a FrameTooLargeError;
// callers must close the connection on any error from ReadFrame.
func (c *Codec) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(c.r, lenBuf[:]); err != nil {
		return nil, err
	}
	declared := binary.BigEndian.Uint32(lenBuf[:])
	if declared > c.maxFrameSize {
		return nil, &FrameTooLargeError{Declared: declared, Max: c.maxFrameSize}
	}
	buf := make([]byte, declared)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes payload as one length-prefixed frame.
func (c *Codec) WriteFrame(payload []byte) error {
	if uint32(len(payload)) > c.maxFrameSize {
		return &FrameTooLargeError{Declared: uint32(len(payload)), Max: c.maxFrameSize}
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := c.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.w.Write(payload)
	return err
}

// ReadEnvelope reads a frame and decodes its kind/request_id, leaving the
// full decoded bytes in Payload for variant-specific unmarshaling by the
// caller.
func (c *Codec) ReadEnvelope() (Envelope, error) {
	raw, err := c.ReadFrame()
	if err != nil {
		return Envelope{}, err
	}
	var re rawEnvelope
	if err := json.Unmarshal(raw, &re); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return Envelope{Kind: re.Kind, RequestID: re.RequestID, Payload: raw}, nil
}

// WriteOK writes a successful response envelope: {"request_id":..., "ok":result}.
func (c *Codec) WriteOK(requestID string, result any) error {
	buf, err := json.Marshal(struct {
		RequestID string `json:"request_id"`
		OK        any    `json:"ok"`
	}{requestID, result})
	if err != nil {
		return err
	}
	return c.WriteFrame(buf)
}

// WireError is the structured error shape carried in a response envelope.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// WriteError writes an error response envelope for requestID.
func (c *Codec) WriteError(requestID string, wireErr WireError) error {
	buf, err := json.Marshal(struct {
		RequestID string    `json:"request_id"`
		Error     WireError `json:"error"`
	}{requestID, wireErr})
	if err != nil {
		return err
	}
	return c.WriteFrame(buf)
}
