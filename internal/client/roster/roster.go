// Package roster keeps a client's copy of a room's participant list and
// derives admin identity from it.
package roster

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/client/gateway"
	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

const DefaultRefreshEvery = 15 * time.Second

// Roster is a read-mostly cache of the durable roster. Mutations always go
// through the gateway and are followed by a fresh fetch.
type Roster struct {
	gw     gateway.Gateway
	roomID uuid.UUID
	log    *zap.Logger

	mu       sync.RWMutex
	list     []domain.Participant
	onChange func([]domain.Participant)

	poke chan struct{}
}

func New(gw gateway.Gateway, roomID uuid.UUID, log *zap.Logger) *Roster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Roster{
		gw:     gw,
		roomID: roomID,
		log:    log.With(zap.String("component", "roster"), zap.String("room_id", roomID.String())),
		poke:   make(chan struct{}, 1),
	}
}

// OnChange registers fn to receive every freshly fetched roster.
func (r *Roster) OnChange(fn func([]domain.Participant)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// JoinOptions controls conflict handling on join.
type JoinOptions struct {
	// AutoSuffix retries a USERNAME_EXISTS conflict once with "name-NNNN".
	AutoSuffix bool
}

// Join registers username. It never fabricates a local participant: on any
// failure the cached roster is left untouched.
func (r *Roster) Join(ctx context.Context, req gateway.JoinRequest, opts JoinOptions) (gateway.JoinResult, error) {
	req.RoomID = r.roomID
	res, err := r.gw.Join(ctx, req)
	if err != nil && opts.AutoSuffix && req.Username != "" && errors.Is(err, apperrors.ErrConflict) {
		original := req.Username
		req.Username = Suffixed(original)
		r.log.Info("username taken, retrying with suffix",
			zap.String("username", original), zap.String("retry_as", req.Username))
		res, err = r.gw.Join(ctx, req)
	}
	if err != nil {
		return gateway.JoinResult{}, err
	}
	if res.RequiresUsername {
		return res, nil
	}
	if _, err := r.Fetch(ctx); err != nil {
		r.log.Warn("roster fetch after join failed", zap.Error(err))
	}
	return res, nil
}

// Suffixed returns name with a random four digit suffix.
func Suffixed(name string) string {
	return fmt.Sprintf("%s-%04d", name, rand.IntN(10000))
}

// Fetch loads the roster ordered by join time and replaces the cache.
func (r *Roster) Fetch(ctx context.Context) ([]domain.Participant, error) {
	list, err := r.gw.ListParticipants(ctx, r.roomID)
	if err != nil {
		return nil, err
	}
	list = domain.SortRoster(list)

	r.mu.Lock()
	r.list = list
	fn := r.onChange
	r.mu.Unlock()

	if fn != nil {
		fn(Copy(list))
	}
	return Copy(list), nil
}

// Snapshot returns the cached roster.
func (r *Roster) Snapshot() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Copy(r.list)
}

// Admin returns the admin of the cached roster.
func (r *Roster) Admin() (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.AdminOf(r.list)
}

func (r *Roster) IsAdmin(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.IsAdmin(r.list, username)
}

func (r *Roster) SetPresence(ctx context.Context, username string, userID uuid.UUID, online bool) error {
	_, err := r.gw.SetPresence(ctx, r.roomID, username, userID, online)
	return err
}

// Kick removes target on behalf of requester. Authorization is checked
// against a fresh fetch, never the cache, and again by the gateway.
func (r *Roster) Kick(ctx context.Context, target, requester string, requesterID uuid.UUID) (domain.ChatMessage, error) {
	if target == requester {
		return domain.ChatMessage{}, apperrors.New(apperrors.CodeForbidden, "cannot kick yourself")
	}
	list, err := r.Fetch(ctx)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if !domain.CanKick(list, requester, target) {
		return domain.ChatMessage{}, apperrors.New(apperrors.CodeForbidden, "only the room admin can kick")
	}
	if _, ok := domain.Find(list, target); !ok {
		return domain.ChatMessage{}, apperrors.New(apperrors.CodeNotFound, "participant not found")
	}

	notice, err := r.gw.Kick(ctx, r.roomID, target, requester, requesterID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if _, err := r.Fetch(ctx); err != nil {
		r.log.Warn("roster fetch after kick failed", zap.Error(err))
	}
	return notice, nil
}

// Leave deletes the caller's own participant row.
func (r *Roster) Leave(ctx context.Context, username string, userID uuid.UUID) error {
	return r.gw.Leave(ctx, r.roomID, username, userID)
}

// Poke asks the refresh loop for an immediate fetch. It never blocks.
func (r *Roster) Poke() {
	select {
	case r.poke <- struct{}{}:
	default:
	}
}

// Run refreshes the roster every interval and whenever Poke is called, until
// ctx is done. Fetch errors are passed to onErr and do not stop the loop.
func (r *Roster) Run(ctx context.Context, every time.Duration, onErr func(error)) {
	if every <= 0 {
		every = DefaultRefreshEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.poke:
		}
		if _, err := r.Fetch(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Debug("roster refresh failed", zap.Error(err))
			if onErr != nil {
				onErr(err)
			}
		}
	}
}

func Copy(ps []domain.Participant) []domain.Participant {
	if ps == nil {
		return nil
	}
	out := make([]domain.Participant, len(ps))
	copy(out, ps)
	return out
}
