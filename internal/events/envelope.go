package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownKind = errors.New("unknown channel message kind")

// Envelope is the frame written on a room channel.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Origin  string          `json:"origin,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps m in an Envelope stamped with origin and the current time.
func Encode(m Message, origin string) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", m.Kind(), err)
	}
	return json.Marshal(Envelope{
		Kind:    m.Kind(),
		Origin:  origin,
		SentAt:  time.Now().UTC(),
		Payload: payload,
	})
}

// Decode parses a frame and returns its envelope and typed payload.
func Decode(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	m, err := decodePayload(env.Kind, env.Payload)
	if err != nil {
		return env, nil, err
	}
	return env, m, nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Message, error) {
	switch kind {
	case KindContent:
		var m Content
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("content payload: %w", err)
		}
		return m, nil
	case KindCursor:
		var m Cursor
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("cursor payload: %w", err)
		}
		return m, nil
	case KindRoster:
		var m Roster
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("roster payload: %w", err)
		}
		return m, nil
	case KindChat:
		var m Chat
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("chat payload: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
