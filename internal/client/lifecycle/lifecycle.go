// Package lifecycle runs the local room expiry countdown and forces the
// session out when the room ends.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

const (
	DefaultTick  = time.Second
	DefaultGrace = 3 * time.Second
)

// Reason says why a session was forced out.
type Reason string

const (
	ReasonExpired Reason = "expired"
	ReasonGone    Reason = "gone"
)

type Hooks struct {
	// OnTick receives the remaining time once per tick.
	OnTick func(remaining time.Duration)
	// OnExpired is the user notice; the forced leave follows after the grace delay.
	OnExpired func(reason Reason)
	// OnForceLeave runs exactly once.
	OnForceLeave func(reason Reason)
}

type Config struct {
	Tick  time.Duration
	Grace time.Duration
}

type Controller struct {
	roomID uuid.UUID
	cfg    Config
	hooks  Hooks
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	room    domain.Room
	cancel  context.CancelFunc
	expired bool
	stopped bool
	grace   *time.Timer
	once    sync.Once
}

func New(roomID uuid.UUID, cfg Config, hooks Hooks, log *zap.Logger) *Controller {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		roomID: roomID,
		cfg:    cfg,
		hooks:  hooks,
		log:    log.With(zap.String("component", "lifecycle"), zap.String("room_id", roomID.String())),
		now:    time.Now,
	}
}

// StartWith begins the countdown for already fetched room metadata. The
// countdown is a local timer and keeps running whatever happens to the
// connections.
func (c *Controller) StartWith(room domain.Room) {
	runCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.room = room
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, room)
}

func (c *Controller) run(ctx context.Context, room domain.Room) {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		remaining := room.Remaining(c.now())
		if c.hooks.OnTick != nil {
			c.hooks.OnTick(remaining)
		}
		if remaining <= 0 {
			c.expire(ReasonExpired)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Remaining returns the time left on the countdown.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room.Remaining(c.now())
}

// Check maps an operation error to the forced leave path. It reports whether
// err means the room is gone.
func (c *Controller) Check(err error) bool {
	if err == nil || !errors.Is(err, apperrors.ErrGone) {
		return false
	}
	c.log.Info("room reported gone by the gateway")
	c.expire(ReasonGone)
	return true
}

// Expired reports whether the countdown or a Gone error ended the room.
func (c *Controller) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *Controller) expire(reason Reason) {
	c.mu.Lock()
	if c.expired {
		c.mu.Unlock()
		return
	}
	c.expired = true
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if c.hooks.OnExpired != nil {
		c.hooks.OnExpired(reason)
	}
	c.mu.Lock()
	if !c.stopped {
		c.grace = time.AfterFunc(c.cfg.Grace, func() { c.force(reason) })
	}
	c.mu.Unlock()
}

func (c *Controller) force(reason Reason) {
	c.once.Do(func() {
		c.log.Info("forcing leave", zap.String("reason", string(reason)))
		if c.hooks.OnForceLeave != nil {
			c.hooks.OnForceLeave(reason)
		}
	})
}

// Stop cancels the countdown and a pending forced leave. It does not run
// OnForceLeave.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.grace != nil {
		c.grace.Stop()
	}
	c.expired = true
	c.stopped = true
}
