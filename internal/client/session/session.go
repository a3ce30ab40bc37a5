// Package session drives one participant through one room: join, live
// document and cursors, chat, moderation, and a single teardown that runs on
// every exit path.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/client/channel"
	"ephemera/internal/client/cursor"
	"ephemera/internal/client/docsync"
	"ephemera/internal/client/gateway"
	"ephemera/internal/client/lifecycle"
	"ephemera/internal/client/reconnect"
	"ephemera/internal/client/roster"
	"ephemera/internal/domain"
	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

const teardownTimeout = 5 * time.Second

// Store is the client-local session record. *sessionstore.Store satisfies it.
type Store interface {
	Get(ctx context.Context, roomID uuid.UUID) (domain.Session, error)
	Save(ctx context.Context, sess domain.Session) error
	Delete(ctx context.Context, roomID uuid.UUID) error
}

type Deps struct {
	Gateway   gateway.Gateway
	Transport channel.Transport
	// Store is optional.
	Store  Store
	Logger *zap.Logger
}

type JoinParams struct {
	RoomID   uuid.UUID
	Password string
	// Username may be empty when a stored session exists for the room.
	Username string
}

// JoinResult holds either a live session or, with RequiresUsername set, only
// the room so the caller can ask for a name and join again.
type JoinResult struct {
	Room             domain.Room
	Session          *Session
	RequiresUsername bool
}

type Session struct {
	gw       gateway.Gateway
	store    Store
	cfg      Config
	log      *zap.Logger
	room     domain.Room
	me       domain.Participant
	password string
	token    string

	roster    *roster.Roster
	doc       *docsync.Synchronizer
	cursors   *cursor.Tracker
	life      *lifecycle.Controller
	supervise *reconnect.Supervisor

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	events    chan Event
	closed    bool
	reason    CloseReason
	adminHint bool
	once      sync.Once
	done      chan struct{}
}

// Join runs the join flow: restore a stored session, check the room, register
// the participant, then start the countdown, document, channel, presence and
// background refreshers. ctx bounds the join only; the session lives until
// Leave or another exit path.
func Join(ctx context.Context, deps Deps, cfg Config, p JoinParams) (JoinResult, error) {
	cfg = cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("room_id", p.RoomID.String()))

	username, userID := p.Username, uuid.Nil
	if deps.Store != nil {
		stored, err := deps.Store.Get(ctx, p.RoomID)
		switch {
		case err == nil && (username == "" || username == stored.Username):
			username, userID = stored.Username, stored.UserID
			if stored.Token != "" {
				deps.Gateway.UsePass(p.RoomID, stored.Token)
			}
			log.Info("restoring stored session", zap.String("username", username))
		case err != nil && !errors.Is(err, apperrors.ErrNotFound):
			log.Warn("session store read failed", zap.Error(err))
		}
	}
	if userID == uuid.Nil {
		userID = uuid.New()
	}

	room, err := deps.Gateway.GetRoom(ctx, p.RoomID)
	if err != nil {
		return JoinResult{}, err
	}

	r := roster.New(deps.Gateway, p.RoomID, log)
	res, err := r.Join(ctx, gateway.JoinRequest{
		Password: p.Password,
		Username: username,
		UserID:   userID,
	}, roster.JoinOptions{AutoSuffix: cfg.AutoSuffixOnConflict})
	if err != nil {
		return JoinResult{}, err
	}
	if res.RequiresUsername {
		return JoinResult{Room: res.Room, RequiresUsername: true}, nil
	}
	if !res.Room.ExpiresAt.IsZero() {
		room = res.Room
	}

	s := newSession(deps, cfg, log, room, res.Participant, p.Password, res.Token, r)
	if err := s.start(ctx); err != nil {
		s.teardown(ctx, ReasonFailed, false)
		return JoinResult{}, err
	}
	return JoinResult{Room: room, Session: s}, nil
}

func newSession(deps Deps, cfg Config, log *zap.Logger, room domain.Room, me domain.Participant, password, token string, r *roster.Roster) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		gw:       deps.Gateway,
		store:    deps.Store,
		cfg:      cfg,
		log:      log.With(zap.String("username", me.Username)),
		room:     room,
		me:       me,
		password: password,
		token:    token,
		roster:   r,
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan Event, cfg.EventBuffer),
		done:     make(chan struct{}),
	}

	s.life = lifecycle.New(room.ID, lifecycle.Config{Tick: cfg.CountdownTick, Grace: cfg.ExpiryGrace}, lifecycle.Hooks{
		OnTick:    func(d time.Duration) { s.emit(Event{Kind: EventCountdown, Remaining: d}) },
		OnExpired: func(lifecycle.Reason) { s.emit(Event{Kind: EventExpired}) },
		OnForceLeave: func(reason lifecycle.Reason) {
			if reason == lifecycle.ReasonGone {
				go s.teardown(context.Background(), ReasonGone, false)
				return
			}
			go s.teardown(context.Background(), ReasonExpired, false)
		},
	}, log)

	s.doc = docsync.New(deps.Gateway, room.ID, me.Username, docsync.Config{
		Name:        cfg.Document,
		Debounce:    cfg.Debounce,
		GuardWindow: cfg.GuardWindow,
	}, docsync.Hooks{
		OnChange: func(v docsync.View) { s.emit(Event{Kind: EventDocument, Document: &v}) },
		OnError:  s.fail,
	}, log)

	s.cursors = cursor.New(me.Username, cursor.Config{
		Throttle:   cfg.CursorThrottle,
		StaleAfter: cfg.CursorStaleAfter,
		SweepEvery: cfg.CursorSweepEvery,
	}, log)
	s.cursors.OnChange(func(cs []domain.CursorState) { s.emit(Event{Kind: EventCursors, Cursors: cs}) })

	s.supervise = reconnect.New(reconnect.Options{
		RoomID:    room.ID,
		Token:     func() string { return s.token },
		Transport: deps.Transport,
		Handlers: channel.Handlers{
			OnContent: func(c events.Content) { s.doc.ApplyRemote(c) },
			OnCursor:  s.cursors.OnRemote,
			OnRoster:  s.onRosterPush,
			OnChat:    s.onChatPush,
		},
		Resync:  s.resync,
		OnState: s.onConnection,
		Backoff: cfg.Reconnect,
		Logger:  log,
	})
	s.doc.SetBroadcaster(s.supervise)
	s.cursors.SetBroadcaster(s.supervise)
	return s
}

func (s *Session) start(ctx context.Context) error {
	list := s.roster.Snapshot()
	s.adminHint = domain.IsAdmin(list, s.me.Username)
	s.saveSession(ctx)
	s.roster.OnChange(s.onRoster)

	s.life.StartWith(s.room)

	if s.room.Kind != domain.RoomKindChat {
		if _, err := s.doc.Load(s.ctx); err != nil {
			s.life.Check(err)
			return err
		}
	}

	if err := s.supervise.Connect(ctx); err != nil {
		s.life.Check(err)
		return err
	}
	if err := s.roster.SetPresence(ctx, s.me.Username, s.me.UserID, true); err != nil {
		s.log.Warn("marking presence online failed", zap.Error(err))
	}

	go s.roster.Run(s.ctx, s.cfg.RosterRefresh, func(err error) { s.life.Check(err) })
	go s.cursors.Run(s.ctx)

	s.emit(Event{Kind: EventRoster, Roster: list, Admin: adminName(list)})
	return nil
}

// Events is the typed event stream. It is closed after the EventClosed event.
// Events are dropped rather than blocking when the buffer is full.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason reports how the session ended, or "" while it is live.
func (s *Session) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) Room() domain.Room { return s.room }
func (s *Session) Me() domain.Participant { return s.me }
func (s *Session) Remaining() time.Duration { return s.life.Remaining() }
func (s *Session) Connection() reconnect.State { return s.supervise.State() }

// Roster returns the cached roster ordered by join time.
func (s *Session) Roster() []domain.Participant { return s.roster.Snapshot() }

// Admin returns the admin of the cached roster.
func (s *Session) Admin() (domain.Participant, bool) { return s.roster.Admin() }

// IsAdmin reports admin status from the cached roster.
func (s *Session) IsAdmin() bool { return s.roster.IsAdmin(s.me.Username) }

func (s *Session) Document() docsync.View { return s.doc.View() }

func (s *Session) Cursors() []domain.CursorState { return s.cursors.Cursors() }

// Edit applies a local edit to the shared document.
func (s *Session) Edit(ctx context.Context, content string) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.doc.LocalEdit(ctx, content)
	if err != nil && apperrors.IsRetryable(err) {
		// the broadcast failed while disconnected; the debounced write still carries the edit
		s.log.Debug("edit not broadcast", zap.Error(err))
		return nil
	}
	return err
}

func (s *Session) ChangeLanguage(ctx context.Context, lang string) error {
	if err := s.writable(); err != nil {
		return err
	}
	err := s.doc.ChangeLanguage(ctx, lang)
	s.life.Check(err)
	return err
}

// MoveCursor reports the local caret. Delivery is best effort.
func (s *Session) MoveCursor(ctx context.Context, line, col int) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.cursors.ReportLocal(ctx, line, col)
	if err != nil && apperrors.IsRetryable(err) {
		return nil
	}
	return err
}

// Kick removes target. Only the admin may kick, and never themselves.
func (s *Session) Kick(ctx context.Context, target string) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.roster.Kick(ctx, target, s.me.Username, s.me.UserID)
	s.life.Check(err)
	if err == nil {
		s.cursors.Remove(target)
	}
	return err
}

// RefreshRoster fetches the roster now.
func (s *Session) RefreshRoster(ctx context.Context) ([]domain.Participant, error) {
	if err := s.live(); err != nil {
		return nil, err
	}
	list, err := s.roster.Fetch(ctx)
	s.life.Check(err)
	return list, err
}

type LeaveOptions struct {
	// Forget deletes the participant row and the stored session, so a later
	// join registers as a new participant.
	Forget bool
}

// Leave flushes a pending document write and tears the session down.
func (s *Session) Leave(ctx context.Context, opts LeaveOptions) error {
	if err := s.live(); err != nil {
		return err
	}
	s.teardown(ctx, ReasonLeft, opts.Forget)
	return nil
}

func (s *Session) live() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return apperrors.New(apperrors.CodeClosed, "session has ended")
	}
	return nil
}

// writable is live plus a room that has not ended. Writes are refused while
// the expiry notice is up and the forced leave is pending.
func (s *Session) writable() error {
	if err := s.live(); err != nil {
		return err
	}
	if s.life.Expired() {
		return apperrors.New(apperrors.CodeGone, "room has expired")
	}
	return nil
}

// teardown is the single exit path. Every step is best effort and the whole
// runs once whatever the trigger.
func (s *Session) teardown(parent context.Context, reason CloseReason, forget bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.reason = reason
		s.mu.Unlock()
		s.log.Info("leaving room", zap.String("reason", string(reason)))

		ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), teardownTimeout)
		defer cancel()

		s.cancel()
		s.life.Stop()
		s.supervise.Stop()
		if err := s.doc.Close(ctx, reason == ReasonLeft); err != nil {
			s.log.Warn("final document write failed", zap.Error(err))
		}
		s.cursors.Close()

		switch reason {
		case ReasonLeft, ReasonCanceled, ReasonFailed:
			if forget {
				if err := s.roster.Leave(ctx, s.me.Username, s.me.UserID); err != nil {
					s.log.Warn("leave cleanup failed", zap.Error(err))
				}
			} else if err := s.roster.SetPresence(ctx, s.me.Username, s.me.UserID, false); err != nil {
				s.log.Debug("marking presence offline failed", zap.Error(err))
			}
		}
		if s.store != nil && (forget || reason == ReasonKicked || reason == ReasonExpired || reason == ReasonGone) {
			if err := s.store.Delete(ctx, s.room.ID); err != nil {
				s.log.Warn("dropping stored session failed", zap.Error(err))
			}
		}

		s.mu.Lock()
		s.pushLocked(Event{Kind: EventClosed, Reason: reason})
		close(s.events)
		s.mu.Unlock()
		close(s.done)
	})
}

// Close ends the session for a cancelled caller without flushing.
func (s *Session) Close() {
	s.teardown(context.Background(), ReasonCanceled, false)
}

func (s *Session) emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pushLocked(e)
}

func (s *Session) pushLocked(e Event) {
	select {
	case s.events <- e:
	default:
		s.log.Warn("event buffer full, dropping event", zap.String("kind", string(e.Kind)))
	}
}

// fail routes a background error: a gone room takes the forced leave path,
// anything else is reported on the event stream.
func (s *Session) fail(err error) {
	if err == nil || s.life.Check(err) {
		return
	}
	s.emit(Event{Kind: EventError, Err: apperrors.Wrap(err)})
}

func (s *Session) onRoster(list []domain.Participant) {
	if _, ok := domain.Find(list, s.me.Username); !ok {
		s.log.Info("no longer on the roster")
		go s.teardown(context.Background(), ReasonKicked, false)
		return
	}
	s.emit(Event{Kind: EventRoster, Roster: list, Admin: adminName(list)})

	isAdmin := domain.IsAdmin(list, s.me.Username)
	s.mu.Lock()
	changed := isAdmin != s.adminHint
	s.adminHint = isAdmin
	s.mu.Unlock()
	if changed {
		s.saveSession(s.ctx)
	}
}

func (s *Session) onRosterPush(r events.Roster) {
	if r.Username == s.me.Username && r.Action == events.RosterKicked {
		s.log.Info("kicked from room", zap.String("by", r.By))
		go s.teardown(context.Background(), ReasonKicked, false)
		return
	}
	if r.Action == events.RosterKicked || r.Action == events.RosterLeft {
		s.cursors.Remove(r.Username)
	}
	s.roster.Poke()
}

func (s *Session) onConnection(st reconnect.State, err error) {
	s.emit(Event{Kind: EventConnection, Connection: st})
	if st != reconnect.Failed {
		return
	}
	if errors.Is(err, apperrors.ErrGone) || errors.Is(err, apperrors.ErrUnauthorized) {
		go s.teardown(context.Background(), ReasonGone, false)
		return
	}
	// the relay refuses a valid pass only once its holder left the roster
	if errors.Is(err, apperrors.ErrForbidden) {
		go s.teardown(context.Background(), ReasonKicked, false)
		return
	}
	s.emit(Event{Kind: EventError, Err: apperrors.Wrap(err)})
	go s.teardown(context.Background(), ReasonFailed, false)
}

// resync recovers what was missed while the channel was down.
func (s *Session) resync(ctx context.Context) error {
	if _, err := s.roster.Fetch(ctx); err != nil {
		return err
	}
	history, err := s.History(ctx)
	if err != nil {
		return err
	}
	s.emit(Event{Kind: EventHistory, History: history})
	return nil
}

func (s *Session) saveSession(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	isAdmin := s.adminHint
	s.mu.Unlock()
	err := s.store.Save(ctx, domain.Session{
		RoomID:    s.room.ID,
		Username:  s.me.Username,
		UserID:    s.me.UserID,
		IsAdmin:   isAdmin,
		Role:      domain.RoleFor(isAdmin),
		JoinedAt:  s.me.JoinedAt,
		ExpiresAt: s.room.ExpiresAt,
		Token:     s.token,
	})
	if err != nil {
		s.log.Warn("saving session failed", zap.Error(err))
	}
}

func adminName(list []domain.Participant) string {
	if a, ok := domain.AdminOf(list); ok {
		return a.Username
	}
	return ""
}
