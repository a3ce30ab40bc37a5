package domain

import (
	"time"

	"github.com/google/uuid"
)

// Document is the shared text buffer of a room. At most one active row exists
// per (room, name); concurrent writers converge by last write wins on UpdatedAt.
type Document struct {
	ID           uuid.UUID `json:"id"`
	RoomID       uuid.UUID `json:"room_id"`
	Name         string    `json:"name"`
	Language     string    `json:"language"`
	Content      string    `json:"content"`
	CreatedBy    string    `json:"created_by"`
	LastEditedBy string    `json:"last_edited_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Active       bool      `json:"active"`
}

// DocumentPatch carries the optional fields of an update. Nil means unchanged.
type DocumentPatch struct {
	Content      *string `json:"content,omitempty"`
	Language     *string `json:"language,omitempty"`
	LastEditedBy *string `json:"last_edited_by,omitempty"`
}

func (p DocumentPatch) Empty() bool {
	return p.Content == nil && p.Language == nil && p.LastEditedBy == nil
}

// Apply returns d with the patch applied.
func (p DocumentPatch) Apply(d Document) Document {
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.Language != nil {
		d.Language = *p.Language
	}
	if p.LastEditedBy != nil {
		d.LastEditedBy = *p.LastEditedBy
	}
	return d
}
