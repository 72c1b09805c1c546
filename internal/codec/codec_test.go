package codec

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := New(struct {
		*bytes.Buffer
	}{&buf}, 0)

	payload := []byte(`{"kind":"Status","request_id":"r1"}`)
	require.NoError(t, c.WriteFrame(payload))

	c2 := New(struct{ *bytes.Buffer }{&buf}, 0)
	got, err := c2.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFrameTooLargeRejectsOnRead(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 100)
	buf.Write(lenBuf[:])
	buf.Write(make([]byte, 50)) // declared 100, only 50 delivered; also too large

	c := New(struct{ *bytes.Buffer }{&buf}, 10)
	_, err := c.ReadFrame()
	require.Error(t, err)
	var tooLarge *FrameTooLargeError
	require.ErrorAs(t, err, &tooLarge)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	c := New(struct{ *bytes.Buffer }{&buf}, 4)
	err := c.WriteFrame([]byte("12345"))
	require.Error(t, err)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	c := New(struct{ *bytes.Buffer }{&buf}, 0)
	require.NoError(t, c.WriteOK("req-1", map[string]int{"incoming": 3, "outgoing": 3}))

	c2 := New(struct{ *bytes.Buffer }{&buf}, 0)
	env, err := c2.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, "req-1", env.RequestID)
}

func TestReadEnvelopeRejectsMalformedJSON(t *testing.T) {
	var buf bytes.Buffer
	c := New(struct{ *bytes.Buffer }{&buf}, 0)
	require.NoError(t, c.WriteFrame([]byte(`{"kind": truncated`)))

	c2 := New(struct{ *bytes.Buffer }{&buf}, 0)
	_, err := c2.ReadEnvelope()
	require.Error(t, err)
}

func TestLargeFrameWithinLimitRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	c := New(struct{ *bytes.Buffer }{&buf}, 0)

	big := bytes.Repeat([]byte("x"), 2*1024*1024)
	payload := append([]byte(`{"kind":"extract","request_id":"r","blob":"`), big...)
	payload = append(payload, []byte(`"}`)...)
	require.NoError(t, c.WriteFrame(payload))

	c2 := New(struct{ *bytes.Buffer }{&buf}, 0)
	got, err := c2.ReadFrame()
	require.NoError(t, err)
	require.Equal(t, len(payload), len(got))
}

func TestErrorEnvelope(t *testing.T) {
	var buf bytes.Buffer
	c := New(struct{ *bytes.Buffer }{&buf}, 0)
	require.NoError(t, c.WriteError("req-2", WireError{Kind: "NotFound", Message: "missing"}))

	c2 := New(struct{ *bytes.Buffer }{&buf}, 0)
	env, err := c2.ReadEnvelope()
	require.NoError(t, err)
	require.Equal(t, "req-2", env.RequestID)
}
