// Package protocol implements the JSON envelope spoken on room sockets:
//
//	{"type": "...", "data": {...}, "timestamp": "..."}
//
// The type field is the dispatch key, data is type specific, and timestamp
// is stamped on send when the sender left it empty.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Inbound message types.
const (
	TypePing          = "ping"
	TypeJoinTable     = "join_table"
	TypeOrderUpdate   = "order_update"
	TypeKitchenStatus = "kitchen_status"
)

// Outbound message types.
const (
	TypeConnected         = "connected"
	TypePong              = "pong"
	TypeCustomerJoined    = "customer_joined"
	TypeOrderStatusUpdate = "order_status_update"
	TypeError             = "error"
)

// TimeFormat is ISO 8601 with millisecond precision, always in UTC.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

var ErrMissingType = errors.New("missing message type")

// Envelope is the wire wrapper of every message.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
}

// Parse decodes one inbound frame. Text and binary frames are treated alike.
func Parse(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	if env.Type == "" {
		return nil, ErrMissingType
	}
	return &env, nil
}

// Encode serializes env, stamping the timestamp with now if it is empty.
func Encode(env Envelope, now time.Time) ([]byte, error) {
	if len(bytes.TrimSpace(env.Timestamp)) == 0 {
		ts, err := json.Marshal(FormatTime(now))
		if err != nil {
			return nil, err
		}
		env.Timestamp = ts
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s message: %w", env.Type, err)
	}
	return b, nil
}

// New builds and encodes an envelope of the given type around data.
func New(typ string, data any, now time.Time) ([]byte, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", typ, err)
		}
		env.Data = raw
	}
	return Encode(env, now)
}

// ErrorMessage returns an error envelope carrying msg.
func ErrorMessage(msg string, now time.Time) []byte {
	b, _ := New(TypeError, map[string]string{"message": msg}, now)
	return b
}

// PongMessage returns a pong with a fresh timestamp.
func PongMessage(now time.Time) []byte {
	b, _ := New(TypePong, nil, now)
	return b
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
