package events

import (
	"time"

	"ephemera/internal/domain"
)

// Kind tags the payload carried by an Envelope.
type Kind string

const (
	KindContent Kind = "content"
	KindCursor  Kind = "cursor"
	KindRoster  Kind = "roster"
	KindChat    Kind = "chat"
)

// Message is the closed set of payloads that travel on a room channel:
// Content, Cursor, Roster and Chat.
type Message interface {
	Kind() Kind
}

// Content is a full-document broadcast. Timestamp is unix milliseconds.
type Content struct {
	Content   string `json:"content"`
	Author    string `json:"author"`
	Language  string `json:"language,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (Content) Kind() Kind { return KindContent }

// At returns the broadcast time.
func (c Content) At() time.Time { return time.UnixMilli(c.Timestamp) }

// Cursor is a live caret ping.
type Cursor struct {
	Username string `json:"username"`
	Color    string `json:"color"`
	Line     int    `json:"line"`
	Col      int    `json:"col"`
}

func (Cursor) Kind() Kind { return KindCursor }

type RosterAction string

const (
	RosterJoined   RosterAction = "joined"
	RosterLeft     RosterAction = "left"
	RosterKicked   RosterAction = "kicked"
	RosterPresence RosterAction = "presence"
)

// Roster tells live roster copies to refresh from the gateway.
type Roster struct {
	Action   RosterAction `json:"action"`
	Username string       `json:"username"`
	By       string       `json:"by,omitempty"`
}

func (Roster) Kind() Kind { return KindRoster }

// Chat carries a persisted chat message as it was appended.
type Chat struct {
	Message domain.ChatMessage `json:"message"`
}

func (Chat) Kind() Kind { return KindChat }

// ClientPublishable reports whether clients may originate frames of kind k.
// Roster and chat frames are only produced by the gateway.
func ClientPublishable(k Kind) bool {
	return k == KindContent || k == KindCursor
}
