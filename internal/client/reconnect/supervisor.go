// Package reconnect keeps a room channel subscription alive: a dropped or
// timed out channel is torn down, missed state is re-fetched, and the
// channel is reopened with capped exponential backoff.
package reconnect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"ephemera/internal/client/channel"
	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

type State string

const (
	Idle         State = "idle"
	Connected    State = "connected"
	Degraded     State = "degraded"
	Reconnecting State = "reconnecting"
	// Failed means reconnecting hit a non-transient error such as a gone room.
	Failed  State = "failed"
	Stopped State = "stopped"
)

// Backoff bounds the delay between reconnect attempts. MaxAttempts 0 keeps
// trying until stopped.
type Backoff struct {
	Base          time.Duration
	Max           time.Duration
	JitterPercent uint64
	MaxAttempts   uint64
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 500 * time.Millisecond, Max: 30 * time.Second, JitterPercent: 25}
}

func (b Backoff) build() retry.Backoff {
	base := b.Base
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	bo := retry.NewExponential(base)
	if b.JitterPercent > 0 {
		bo = retry.WithJitterPercent(b.JitterPercent, bo)
	}
	if b.Max > 0 {
		bo = retry.WithCappedDuration(b.Max, bo)
	}
	if b.MaxAttempts > 0 {
		bo = retry.WithMaxRetries(b.MaxAttempts-1, bo)
	}
	return bo
}

type Options struct {
	RoomID    uuid.UUID
	Token     func() string
	Transport channel.Transport
	// Handlers receive frames of whichever subscription is current. Their
	// OnStatus is not called; use OnState.
	Handlers channel.Handlers
	// Resync re-fetches what may have been missed while disconnected. It runs
	// before every reopen.
	Resync  func(ctx context.Context) error
	OnState func(State, error)
	Backoff Backoff
	Logger  *zap.Logger
}

type Supervisor struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	state   State
	sub     channel.Subscription
	gen     uint64
	ctx     context.Context
	cancel  context.CancelFunc
	looping bool
	wg      sync.WaitGroup
}

func New(opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		opts:   opts,
		log:    opts.Logger.With(zap.String("component", "reconnect"), zap.String("room_id", opts.RoomID.String())),
		state:  Idle,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect opens the first subscription. A transient failure is not returned:
// the supervisor goes on reconnecting in the background.
func (s *Supervisor) Connect(ctx context.Context) error {
	err := s.subscribe(ctx)
	if err == nil {
		return nil
	}
	if !apperrors.IsRetryable(err) {
		s.setState(Failed, err)
		return err
	}
	s.log.Warn("initial channel connect failed, retrying", zap.Error(err))
	s.degrade(err)
	return nil
}

// Publish sends on the current subscription. While disconnected it fails
// with a transient error.
func (s *Supervisor) Publish(ctx context.Context, m events.Message) error {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return apperrors.New(apperrors.CodeTransient, "channel is not connected")
	}
	return sub.Publish(ctx, m)
}

// Stop unsubscribes and cancels any pending reconnect. It is idempotent and
// waits for the reconnect loop to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = Stopped
	s.gen++
	sub := s.sub
	s.sub = nil
	s.cancel()
	s.mu.Unlock()

	if sub != nil {
		_ = sub.Unsubscribe()
	}
	s.wg.Wait()
	s.notify(Stopped, nil)
}

func (s *Supervisor) subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return apperrors.ErrClosed
	}
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	h := s.opts.Handlers
	h.OnStatus = func(st channel.Status, err error) { s.onStatus(gen, st, err) }

	sub, err := s.opts.Transport.Subscribe(ctx, s.opts.RoomID, s.opts.Token(), h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.state == Stopped || gen != s.gen {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return apperrors.ErrClosed
	}
	s.sub = sub
	s.state = Connected
	// a drop from here on must be able to start a fresh loop
	s.looping = false
	s.mu.Unlock()
	s.notify(Connected, nil)
	return nil
}

func (s *Supervisor) onStatus(gen uint64, st channel.Status, err error) {
	if !st.Terminal() {
		return
	}
	s.mu.Lock()
	current := gen == s.gen && s.state != Stopped
	if current {
		s.sub = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}
	if err == nil {
		err = apperrors.New(apperrors.CodeTransient, "channel "+string(st))
	}
	s.log.Warn("channel lost", zap.String("status", string(st)), zap.Error(err))
	s.degrade(err)
}

// degrade marks the session disconnected and starts the reconnect loop
// unless one is already running.
func (s *Supervisor) degrade(cause error) {
	s.mu.Lock()
	if s.state == Stopped || s.looping {
		s.mu.Unlock()
		return
	}
	s.state = Degraded
	s.looping = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.notify(Degraded, cause)
	go s.loop()
}

func (s *Supervisor) loop() {
	defer s.wg.Done()

	s.setState(Reconnecting, nil)
	attempt := 0
	err := retry.Do(s.ctx, s.opts.Backoff.build(), func(ctx context.Context) error {
		attempt++
		if err := s.attempt(ctx); err != nil {
			s.log.Debug("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			if apperrors.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err == nil {
		s.log.Info("channel restored", zap.Int("attempts", attempt))
		return
	}
	s.mu.Lock()
	s.looping = false
	s.mu.Unlock()
	if s.ctx.Err() != nil || errors.Is(err, apperrors.ErrClosed) {
		return
	}
	s.setState(Failed, err)
}

func (s *Supervisor) attempt(ctx context.Context) error {
	if s.opts.Resync != nil {
		if err := s.opts.Resync(ctx); err != nil {
			return err
		}
	}
	return s.subscribe(ctx)
}

func (s *Supervisor) setState(st State, err error) {
	s.mu.Lock()
	if s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	s.notify(st, err)
}

func (s *Supervisor) notify(st State, err error) {
	if s.opts.OnState != nil {
		s.opts.OnState(st, err)
	}
}
