// Package cursor tracks peers' live carets. Nothing here is persisted.
package cursor

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"ephemera/internal/domain"
	"ephemera/internal/events"
)

const (
	DefaultThrottle   = 100 * time.Millisecond
	DefaultStaleAfter = 10 * time.Second
	DefaultSweepEvery = 2 * time.Second
)

var palette = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#42d4f4", "#f032e6", "#469990"}

// ColorFor picks a stable color for username.
func ColorFor(username string) string {
	h := fnv.New32a()
	h.Write([]byte(username))
	return palette[h.Sum32()%uint32(len(palette))]
}

type Broadcaster interface {
	Publish(ctx context.Context, m events.Message) error
}

type Config struct {
	Throttle   time.Duration
	StaleAfter time.Duration
	SweepEvery time.Duration
}

func DefaultConfig() Config {
	return Config{Throttle: DefaultThrottle, StaleAfter: DefaultStaleAfter, SweepEvery: DefaultSweepEvery}
}

type Tracker struct {
	username string
	color    string
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	out      Broadcaster
	peers    map[string]domain.CursorState
	lastSent time.Time
	pending  *events.Cursor
	timer    *time.Timer
	closed   bool
	onChange func([]domain.CursorState)
}

func New(username string, cfg Config, log *zap.Logger) *Tracker {
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = DefaultSweepEvery
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		username: username,
		color:    ColorFor(username),
		cfg:      cfg,
		log:      log.With(zap.String("component", "cursor")),
		now:      time.Now,
		peers:    make(map[string]domain.CursorState),
	}
}

func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.out = b
}

// OnChange receives the peer cursor set after every change.
func (t *Tracker) OnChange(fn func([]domain.CursorState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// ReportLocal publishes the local caret at most once per throttle interval.
// A position reported inside the interval replaces any earlier pending one
// and is sent when the interval ends, so the last position always goes out.
func (t *Tracker) ReportLocal(ctx context.Context, line, col int) (bool, error) {
	msg := events.Cursor{Username: t.username, Color: t.color, Line: line, Col: col}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false, nil
	}
	now := t.now()
	if wait := t.cfg.Throttle - now.Sub(t.lastSent); wait > 0 {
		t.pending = &msg
		if t.timer == nil {
			t.timer = time.AfterFunc(wait, t.flushPending)
		}
		t.mu.Unlock()
		return false, nil
	}
	t.lastSent = now
	out := t.out
	t.mu.Unlock()

	if out == nil {
		return false, nil
	}
	return true, out.Publish(ctx, msg)
}

func (t *Tracker) flushPending() {
	t.mu.Lock()
	t.timer = nil
	msg := t.pending
	t.pending = nil
	out := t.out
	if t.closed || msg == nil || out == nil {
		t.mu.Unlock()
		return
	}
	t.lastSent = t.now()
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Throttle*10)
	defer cancel()
	if err := out.Publish(ctx, *msg); err != nil {
		t.log.Debug("trailing cursor publish failed", zap.Error(err))
	}
}

// OnRemote upserts a peer cursor stamped with the receipt time.
func (t *Tracker) OnRemote(c events.Cursor) {
	if c.Username == "" || c.Username == t.username {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.peers[c.Username] = domain.CursorState{
		Username: c.Username,
		Color:    c.Color,
		Line:     c.Line,
		Col:      c.Col,
		SeenAt:   t.now(),
	}
	snap, fn := t.snapshotLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Remove drops a peer at once, for example when it leaves or is kicked.
func (t *Tracker) Remove(username string) {
	t.mu.Lock()
	if _, ok := t.peers[username]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.peers, username)
	snap, fn := t.snapshotLocked(), t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Sweep evicts cursors older than the staleness threshold and returns how
// many were removed.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	now := t.now()
	evicted := 0
	for name, c := range t.peers {
		if c.Stale(now, t.cfg.StaleAfter) {
			delete(t.peers, name)
			evicted++
		}
	}
	snap, fn := t.snapshotLocked(), t.onChange
	t.mu.Unlock()
	if evicted > 0 && fn != nil {
		fn(snap)
	}
	return evicted
}

// Run sweeps on a fixed interval until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

// Cursors returns the live peer cursors ordered by username.
func (t *Tracker) Cursors() []domain.CursorState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Close stops the trailing send and forgets all peers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.out = nil
	t.peers = make(map[string]domain.CursorState)
}

func (t *Tracker) snapshotLocked() []domain.CursorState {
	out := make([]domain.CursorState, 0, len(t.peers))
	for _, c := range t.peers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
