// Package docsync owns the live text of a room's document: local edits are
// broadcast at once and persisted after a quiet period, remote broadcasts
// overwrite the local copy. Conflicts resolve by last writer wins.
package docsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/client/gateway"
	"ephemera/internal/domain"
	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

const (
	DefaultDebounce    = 400 * time.Millisecond
	DefaultGuardWindow = 150 * time.Millisecond
	persistTimeout     = 10 * time.Second
)

// Broadcaster publishes on the room channel. channel.Subscription satisfies it.
type Broadcaster interface {
	Publish(ctx context.Context, m events.Message) error
}

type Config struct {
	Name        string
	Debounce    time.Duration
	GuardWindow time.Duration
}

func DefaultConfig() Config {
	return Config{Name: domain.MainDocument, Debounce: DefaultDebounce, GuardWindow: DefaultGuardWindow}
}

// View is what an editor renders.
type View struct {
	Content      string
	Language     string
	LastEditedBy string
	State        State
	Remote       bool
}

type Hooks struct {
	OnChange func(View)
	// OnError receives failures of background writes.
	OnError func(error)
}

type Synchronizer struct {
	gw       gateway.Gateway
	roomID   uuid.UUID
	username string
	cfg      Config
	hooks    Hooks
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	state        State
	doc          domain.Document
	content      string
	language     string
	lastEditor   string
	out          Broadcaster
	baseCtx      context.Context
	timer        *time.Timer
	gen          uint64
	guardUntil   time.Time
	recentRemote []string
}

func New(gw gateway.Gateway, roomID uuid.UUID, username string, cfg Config, hooks Hooks, log *zap.Logger) *Synchronizer {
	if cfg.Name == "" {
		cfg.Name = domain.MainDocument
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.GuardWindow <= 0 {
		cfg.GuardWindow = DefaultGuardWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Synchronizer{
		gw:       gw,
		roomID:   roomID,
		username: username,
		cfg:      cfg,
		hooks:    hooks,
		log:      log.With(zap.String("component", "docsync"), zap.String("room_id", roomID.String())),
		now:      time.Now,
		baseCtx:  context.Background(),
	}
}

// SetBroadcaster attaches (or with nil detaches) the live channel.
func (s *Synchronizer) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = b
}

func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Synchronizer) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(false)
}

// Document returns the last row the gateway returned.
func (s *Synchronizer) Document() domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Load fetches the document, creating it empty when absent. ctx also bounds
// the lifetime of later background writes.
func (s *Synchronizer) Load(ctx context.Context) (domain.Document, error) {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return domain.Document{}, apperrors.ErrClosed
	}
	s.state = Loading
	s.baseCtx = ctx
	s.mu.Unlock()

	doc, err := s.gw.GetDocument(ctx, s.roomID, s.cfg.Name)
	if errors.Is(err, apperrors.ErrNotFound) {
		// creation is idempotent on (room, name): a racing creator's row comes back
		doc, err = s.gw.CreateDocument(ctx, gateway.CreateDocumentRequest{
			RoomID:    s.roomID,
			Name:      s.cfg.Name,
			Language:  domain.DefaultLanguage,
			CreatedBy: s.username,
		})
	}

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return domain.Document{}, apperrors.ErrClosed
	}
	if err != nil {
		s.state = Uninitialized
		s.mu.Unlock()
		return domain.Document{}, err
	}
	s.doc = doc
	s.content = doc.Content
	s.language = doc.Language
	s.lastEditor = doc.LastEditedBy
	s.state = Ready
	view := s.viewLocked(false)
	s.mu.Unlock()

	s.emit(view)
	return doc, nil
}

// LocalEdit records an edit made by this client. It reports false when the
// content is unchanged or echoes a remote overwrite inside the guard window.
// The broadcast happens before LocalEdit returns; the write is debounced.
func (s *Synchronizer) LocalEdit(ctx context.Context, content string) (bool, error) {
	s.mu.Lock()
	switch s.state {
	case Closed:
		s.mu.Unlock()
		return false, apperrors.ErrClosed
	case Uninitialized, Loading:
		s.mu.Unlock()
		return false, apperrors.New(apperrors.CodeInvalidRequest, "document is not loaded")
	}
	if content == s.content || s.echoLocked(content) {
		s.mu.Unlock()
		return false, nil
	}

	s.content = content
	s.lastEditor = s.username
	s.state = Editing
	s.scheduleLocked()
	msg := events.Content{
		Content:   content,
		Author:    s.username,
		Language:  s.language,
		Timestamp: s.now().UnixMilli(),
	}
	out := s.out
	view := s.viewLocked(false)
	s.mu.Unlock()

	s.emit(view)
	if out == nil {
		return true, nil
	}
	if err := out.Publish(ctx, msg); err != nil {
		s.log.Warn("content broadcast failed", zap.Error(err))
		return true, err
	}
	return true, nil
}

// ApplyRemote merges a content broadcast from a peer. Equal content is a
// no-op. Otherwise the broadcast overwrites the local copy and cancels any
// pending local write.
func (s *Synchronizer) ApplyRemote(c events.Content) bool {
	s.mu.Lock()
	if s.state == Closed || s.state == Uninitialized || s.state == Loading {
		s.mu.Unlock()
		return false
	}
	langChanged := c.Language != "" && c.Language != s.language
	if c.Content == s.content && !langChanged {
		s.mu.Unlock()
		return false
	}

	s.cancelLocked()
	s.content = c.Content
	if c.Language != "" {
		s.language = c.Language
	}
	s.lastEditor = c.Author
	now := s.now()
	if now.After(s.guardUntil) {
		s.recentRemote = s.recentRemote[:0]
	}
	s.recentRemote = append(s.recentRemote, c.Content)
	s.guardUntil = now.Add(s.cfg.GuardWindow)
	s.state = ReceivingRemote
	view := s.viewLocked(true)
	s.mu.Unlock()

	s.emit(view)
	return true
}

// ChangeLanguage switches the syntax mode locally and persists it at once.
// Content is not re-broadcast.
func (s *Synchronizer) ChangeLanguage(ctx context.Context, lang string) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return apperrors.ErrClosed
	}
	if s.doc.ID == uuid.Nil {
		s.mu.Unlock()
		return apperrors.New(apperrors.CodeInvalidRequest, "document is not loaded")
	}
	if lang == s.language {
		s.mu.Unlock()
		return nil
	}
	s.language = lang
	id := s.doc.ID
	view := s.viewLocked(false)
	s.mu.Unlock()

	s.emit(view)
	editor := s.username
	doc, err := s.gw.UpdateDocument(ctx, s.roomID, id, domain.DocumentPatch{Language: &lang, LastEditedBy: &editor})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.storeLocked(doc)
	s.mu.Unlock()
	return nil
}

// Flush writes a pending local edit now.
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer == nil {
		s.mu.Unlock()
		return nil
	}
	s.timer.Stop()
	s.timer = nil
	gen := s.gen
	s.mu.Unlock()
	return s.persist(ctx, gen)
}

// Close ends the session. With flush set a pending write is persisted first;
// otherwise it is dropped.
func (s *Synchronizer) Close(ctx context.Context, flush bool) error {
	var err error
	if flush {
		err = s.Flush(ctx)
	}
	s.mu.Lock()
	s.cancelLocked()
	s.state = Closed
	s.out = nil
	s.mu.Unlock()
	return err
}

func (s *Synchronizer) scheduleLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.cfg.Debounce, func() {
		s.mu.Lock()
		if gen != s.gen || s.state == Closed {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		base := s.baseCtx
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(base, persistTimeout)
		defer cancel()
		if err := s.persist(ctx, gen); err != nil && s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}
	})
}

func (s *Synchronizer) cancelLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

// persist writes the content as of generation gen. A newer edit or remote
// overwrite supersedes it.
func (s *Synchronizer) persist(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	if gen != s.gen || s.doc.ID == uuid.Nil {
		s.mu.Unlock()
		return nil
	}
	id := s.doc.ID
	content, lang, editor := s.content, s.language, s.username
	s.mu.Unlock()

	doc, err := s.gw.UpdateDocument(ctx, s.roomID, id, domain.DocumentPatch{
		Content:      &content,
		Language:     &lang,
		LastEditedBy: &editor,
	})
	if err != nil {
		s.log.Warn("document write failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.storeLocked(doc)
	if gen == s.gen && s.state == Editing {
		s.state = Ready
	}
	view := s.viewLocked(false)
	s.mu.Unlock()
	s.emit(view)
	return nil
}

func (s *Synchronizer) storeLocked(doc domain.Document) {
	if doc.UpdatedAt.Before(s.doc.UpdatedAt) {
		return
	}
	s.doc = doc
}

// echoLocked reports whether content is a remote overwrite seen inside the
// current guard window.
func (s *Synchronizer) echoLocked(content string) bool {
	if s.now().After(s.guardUntil) {
		return false
	}
	for _, c := range s.recentRemote {
		if c == content {
			return true
		}
	}
	return false
}

func (s *Synchronizer) stateLocked() State {
	if s.state == ReceivingRemote && s.now().After(s.guardUntil) {
		s.state = Ready
	}
	return s.state
}

func (s *Synchronizer) viewLocked(remote bool) View {
	return View{
		Content:      s.content,
		Language:     s.language,
		LastEditedBy: s.lastEditor,
		State:        s.stateLocked(),
		Remote:       remote,
	}
}

func (s *Synchronizer) emit(v View) {
	if s.hooks.OnChange != nil {
		s.hooks.OnChange(v)
	}
}
