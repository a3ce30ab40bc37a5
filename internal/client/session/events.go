package session

import (
	"time"

	"ephemera/internal/client/docsync"
	"ephemera/internal/client/reconnect"
	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

type EventKind string

const (
	EventChat       EventKind = "chat"
	EventHistory    EventKind = "history"
	EventRoster     EventKind = "roster"
	EventDocument   EventKind = "document"
	EventCursors    EventKind = "cursors"
	EventCountdown  EventKind = "countdown"
	EventExpired    EventKind = "expired"
	EventConnection EventKind = "connection"
	EventError      EventKind = "error"
	EventClosed     EventKind = "closed"
)

// CloseReason says which exit path ended a session.
type CloseReason string

const (
	ReasonLeft     CloseReason = "left"
	ReasonExpired  CloseReason = "expired"
	ReasonGone     CloseReason = "gone"
	ReasonKicked   CloseReason = "kicked"
	ReasonCanceled CloseReason = "canceled"
	ReasonFailed   CloseReason = "failed"
)

// Message is a chat message as shown to the user. Body is plaintext when it
// could be decrypted and the raw stored body otherwise.
type Message struct {
	domain.ChatMessage
	Undecryptable bool `json:"undecryptable,omitempty"`
}

// Event is one item of the session's typed event stream. Only the fields of
// its Kind are set.
type Event struct {
	Kind       EventKind
	Message    *Message
	History    []Message
	Roster     []domain.Participant
	Admin      string
	Document   *docsync.View
	Cursors    []domain.CursorState
	Remaining  time.Duration
	Connection reconnect.State
	Err        *apperrors.Error
	Reason     CloseReason
}
