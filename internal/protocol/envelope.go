// Package protocol defines the wire format exchanged with the Dino realtime
// endpoint.
//
// Every frame in either direction is a JSON envelope:
//
//	{"type": "order_update", "payload": {...}, "timestamp": "2024-03-01T18:00:00Z"}
//
// Inbound kinds consumed by the domain bridge: order_update, table_update,
// notification, user_update, venue_update. Unknown kinds are valid envelopes.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Known message types.
const (
	TypeSubscribe    = "subscribe" // outbound handshake
	TypeOrderUpdate  = "order_update"
	TypeTableUpdate  = "table_update"
	TypeNotification = "notification"
	TypeUserUpdate   = "user_update"
	TypeVenueUpdate  = "venue_update"
)

// Errors
var (
	ErrMissingType  = errors.New("envelope has no type")
	ErrNotAnObject  = errors.New("envelope is not a JSON object")
	ErrBadTimestamp = errors.New("envelope timestamp is not ISO-8601")
)

// Envelope is the typed, timestamped message unit. Payload holds the raw JSON
// of the payload field so an Envelope never changes after construction.
type Envelope struct {
	Type      string
	Payload   json.RawMessage
	Timestamp time.Time
}

// envelopeWire is the JSON shape of an Envelope.
type envelopeWire struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEnvelope builds an envelope, marshalling payload once.
func NewEnvelope(msgType string, payload any, now time.Time) (Envelope, error) {
	if msgType == "" {
		return Envelope{}, ErrMissingType
	}

	var raw json.RawMessage
	switch p := payload.(type) {
	case nil:
		raw = json.RawMessage("null")
	case json.RawMessage:
		raw = append(json.RawMessage(nil), p...)
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		raw = data
	}

	return Envelope{
		Type:      msgType,
		Payload:   raw,
		Timestamp: now.UTC(),
	}, nil
}

// MarshalJSON encodes the envelope in wire format.
func (e Envelope) MarshalJSON() ([]byte, error) {
	payload := e.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return json.Marshal(envelopeWire{
		Type:      e.Type,
		Payload:   payload,
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// Parse decodes an inbound frame. receivedAt stamps envelopes that arrive
// without a timestamp.
func Parse(data []byte, receivedAt time.Time) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, ErrNotAnObject
	}

	var wire envelopeWire
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if wire.Type == "" {
		return Envelope{}, ErrMissingType
	}

	ts := receivedAt
	if wire.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339Nano, wire.Timestamp)
		if err != nil {
			return Envelope{}, fmt.Errorf("%w: %q", ErrBadTimestamp, wire.Timestamp)
		}
		ts = parsed
	}

	return Envelope{
		Type:      wire.Type,
		Payload:   wire.Payload,
		Timestamp: ts,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("decode %s payload: empty", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
