package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/lspcore/mediator/internal/codec"
)

// client is a thin IPC client: one connection, sequential framed
// request/response exchanges.
type client struct {
	conn net.Conn
	c    *codec.Codec
}

func dial(socket string) (*client, error) {
	conn, err := net.DialTimeout("unix", socket, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is `mediator daemon` running?): %w", socket, err)
	}
	return &client{conn: conn, c: codec.New(conn, codec.DefaultMaxFrameBytes)}, nil
}

func (cl *client) Close() error { return cl.conn.Close() }

// responseEnvelope is the wire shape of every daemon reply.
type responseEnvelope struct {
	RequestID string           `json:"request_id"`
	OK        json.RawMessage  `json:"ok"`
	Error     *codec.WireError `json:"error"`
}

// call sends one request of the given kind and decodes the ok payload
// into out (a pointer), or returns the daemon's structured error.
func (cl *client) call(kind string, req, out any) error {
	requestID := uuid.NewString()

	body := map[string]any{"kind": kind, "request_id": requestID}
	if req != nil {
		reqBytes, err := json.Marshal(req)
		if err != nil {
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal(reqBytes, &fields); err != nil {
			return err
		}
		for k, v := range fields {
			body[k] = v
		}
	}
	frame, err := json.Marshal(body)
	if err != nil {
		return err
	}
	if err := cl.c.WriteFrame(frame); err != nil {
		return err
	}

	raw, err := cl.c.ReadFrame()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var resp responseEnvelope
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.RequestID != requestID {
		return fmt.Errorf("response id %q does not match request id %q", resp.RequestID, requestID)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s: %s", resp.Error.Kind, resp.Error.Message)
	}
	if out != nil {
		return json.Unmarshal(resp.OK, out)
	}
	return nil
}
