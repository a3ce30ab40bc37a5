package session

import (
	"time"

	"ephemera/internal/client/cursor"
	"ephemera/internal/client/docsync"
	"ephemera/internal/client/lifecycle"
	"ephemera/internal/client/reconnect"
	"ephemera/internal/client/roster"
	"ephemera/internal/domain"
)

// Config tunes one room session. Zero fields fall back to DefaultConfig.
type Config struct {
	Document         string
	Debounce         time.Duration
	GuardWindow      time.Duration
	CursorThrottle   time.Duration
	CursorStaleAfter time.Duration
	CursorSweepEvery time.Duration
	RosterRefresh    time.Duration
	CountdownTick    time.Duration
	ExpiryGrace      time.Duration
	HistoryLimit     int
	// Encrypt seals text and file messages with the room password.
	Encrypt bool
	// AutoSuffixOnConflict retries a taken username once as "name-NNNN".
	AutoSuffixOnConflict bool
	Reconnect            reconnect.Backoff
	EventBuffer          int
}

func DefaultConfig() Config {
	return Config{
		Document:         domain.MainDocument,
		Debounce:         docsync.DefaultDebounce,
		GuardWindow:      docsync.DefaultGuardWindow,
		CursorThrottle:   cursor.DefaultThrottle,
		CursorStaleAfter: cursor.DefaultStaleAfter,
		CursorSweepEvery: cursor.DefaultSweepEvery,
		RosterRefresh:    roster.DefaultRefreshEvery,
		CountdownTick:    lifecycle.DefaultTick,
		ExpiryGrace:      lifecycle.DefaultGrace,
		HistoryLimit:     100,
		Encrypt:          true,
		Reconnect:        reconnect.DefaultBackoff(),
		EventBuffer:      256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Document == "" {
		c.Document = d.Document
	}
	if c.Debounce <= 0 {
		c.Debounce = d.Debounce
	}
	if c.GuardWindow <= 0 {
		c.GuardWindow = d.GuardWindow
	}
	if c.CursorThrottle <= 0 {
		c.CursorThrottle = d.CursorThrottle
	}
	if c.CursorStaleAfter <= 0 {
		c.CursorStaleAfter = d.CursorStaleAfter
	}
	if c.CursorSweepEvery <= 0 {
		c.CursorSweepEvery = d.CursorSweepEvery
	}
	if c.RosterRefresh <= 0 {
		c.RosterRefresh = d.RosterRefresh
	}
	if c.CountdownTick <= 0 {
		c.CountdownTick = d.CountdownTick
	}
	if c.ExpiryGrace < 0 {
		c.ExpiryGrace = 0
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	if c.Reconnect == (reconnect.Backoff{}) {
		c.Reconnect = d.Reconnect
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}
