package domain

import "time"

// CursorState is a peer's live caret. It is never persisted.
type CursorState struct {
	Username string    `json:"username"`
	Color    string    `json:"color"`
	Line     int       `json:"line"`
	Col      int       `json:"col"`
	SeenAt   time.Time `json:"seen_at"`
}

// Stale reports whether the cursor has not been refreshed within maxAge.
func (c CursorState) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(c.SeenAt) > maxAge
}
