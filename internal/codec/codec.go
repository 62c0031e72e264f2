// Package codec frames commands and telemetry on the simulator socket.
//
// Each frame is one JSON object {"type", "requestId", "data"} followed by a
// single form-feed terminator byte. There is no length prefix.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/san-kum/simbridge/internal/state"
)

// Terminator ends every frame on the wire.
const Terminator byte = '\f'

const (
	TypePlaneState    = "PLANE_STATE"
	TypeSetElevator   = "SET_ELEVATOR"
	TypeSetPlaneState = "SET_PLANE_STATE"
)

var (
	ErrEmptyFrame  = errors.New("codec: empty frame")
	ErrMissingType = errors.New("codec: frame has no type")
	ErrDataNotMap  = errors.New("codec: data is not an object")
)

// Command is an outbound message. It must not be modified after Encode.
type Command struct {
	Type      string
	RequestID int64
	Data      state.Document
}

func NewCommand(msgType string, requestID int64, data state.Document) Command {
	return Command{Type: msgType, RequestID: requestID, Data: data}
}

// Envelope is a decoded inbound frame.
type Envelope struct {
	Type      string
	RequestID int64
	Data      state.Document
}

func (e Envelope) Command() Command {
	return Command(e)
}

func (e Envelope) IsState() bool {
	return e.Type == TypePlaneState
}

type wireFrame struct {
	Type      string         `json:"type"`
	RequestID int64          `json:"requestId"`
	Data      state.Document `json:"data"`
}

type wireFrameIn struct {
	Type      *string         `json:"type"`
	RequestID int64           `json:"requestId"`
	Data      json.RawMessage `json:"data"`
}

// DecodeError describes a frame that could not be decoded. The receive loop
// treats it as non-fatal.
type DecodeError struct {
	Reason string
	Frame  []byte
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("codec: decode %s: %v", e.Reason, e.Err)
	}
	return "codec: decode " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode renders cmd as one frame, terminator included.
func Encode(cmd Command) ([]byte, error) {
	data := cmd.Data
	if data == nil {
		data = state.Document{}
	}
	body, err := json.Marshal(wireFrame{Type: cmd.Type, RequestID: cmd.RequestID, Data: data})
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s: %w", cmd.Type, err)
	}
	return append(body, Terminator), nil
}

// Decode parses one frame. A single trailing terminator is stripped if
// present. Decode never panics; malformed input yields a *DecodeError.
func Decode(frame []byte) (Envelope, error) {
	body := frame
	if n := len(body); n > 0 && body[n-1] == Terminator {
		body = body[:n-1]
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Envelope{}, &DecodeError{Reason: "empty frame", Err: ErrEmptyFrame}
	}

	var in wireFrameIn
	if err := json.Unmarshal(body, &in); err != nil {
		return Envelope{}, &DecodeError{Reason: "malformed json", Frame: snippet(body), Err: err}
	}
	if in.Type == nil || *in.Type == "" {
		return Envelope{}, &DecodeError{Reason: "missing type", Frame: snippet(body), Err: ErrMissingType}
	}

	env := Envelope{Type: *in.Type, RequestID: in.RequestID, Data: state.Document{}}
	raw := bytes.TrimSpace(in.Data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return env, nil
	}
	if raw[0] != '{' {
		return Envelope{}, &DecodeError{Reason: "data for " + env.Type, Frame: snippet(body), Err: ErrDataNotMap}
	}
	if err := json.Unmarshal(raw, &env.Data); err != nil {
		return Envelope{}, &DecodeError{Reason: "data for " + env.Type, Frame: snippet(body), Err: err}
	}
	return env, nil
}

const maxSnippet = 128

func snippet(b []byte) []byte {
	if len(b) > maxSnippet {
		b = b[:maxSnippet]
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
