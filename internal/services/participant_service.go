package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ephemera/internal/domain"
	"ephemera/internal/events"
	"ephemera/internal/metrics"
	"ephemera/internal/repository"
	apperrors "ephemera/pkg/errors"
)

// MemberChecker reports whether a roster row still exists for an identity.
type MemberChecker interface {
	Exists(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) (bool, error)
}

func requireMember(ctx context.Context, members MemberChecker, roomID uuid.UUID, username string, userID uuid.UUID) error {
	ok, err := members.Exists(ctx, roomID, username, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.New(apperrors.CodeForbidden, "not a participant of this room")
	}
	return nil
}

// RoomBroadcaster pushes server-originated frames onto a room topic.
type RoomBroadcaster interface {
	PublishRoom(ctx context.Context, roomID uuid.UUID, m events.Message) error
}

type ParticipantService struct {
	rooms *RoomService
	auth  *AuthService
	repo  repository.ParticipantRepository
	bus   RoomBroadcaster
	log   *zap.Logger
}

func NewParticipantService(rooms *RoomService, auth *AuthService, repo repository.ParticipantRepository, bus RoomBroadcaster, log *zap.Logger) *ParticipantService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ParticipantService{rooms: rooms, auth: auth, repo: repo, bus: bus, log: log}
}

type JoinInput struct {
	RoomID   uuid.UUID
	Password string
	Username string
	UserID   uuid.UUID
}

type JoinResult struct {
	Room             domain.Room
	Participant      domain.Participant
	Token            string
	RequiresUsername bool
}

// Join verifies the room password and registers the participant. Without a
// username it stops after the password check and asks for one.
func (s *ParticipantService) Join(ctx context.Context, in JoinInput) (JoinResult, error) {
	room, err := s.rooms.Verify(ctx, in.RoomID, in.Password)
	if err != nil {
		return JoinResult{}, err
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return JoinResult{Room: room, RequiresUsername: true}, nil
	}
	if username == domain.SystemUsername {
		return JoinResult{}, apperrors.ErrConflict
	}
	userID := in.UserID
	if userID == uuid.Nil {
		userID = uuid.New()
	}

	p, created, err := s.repo.Join(ctx, room.ID, username, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			metrics.ParticipantsJoined.WithLabelValues("conflict").Inc()
		}
		return JoinResult{}, err
	}
	token, err := s.auth.Issue(room, p)
	if err != nil {
		return JoinResult{}, err
	}

	action, result := events.RosterJoined, "created"
	if !created {
		action, result = events.RosterPresence, "rejoined"
	}
	metrics.ParticipantsJoined.WithLabelValues(result).Inc()
	s.publish(ctx, room.ID, events.Roster{Action: action, Username: p.Username})
	s.log.Info("participant joined",
		zap.String("room_id", room.ID.String()),
		zap.String("username", p.Username),
		zap.Bool("rejoin", !created),
	)
	return JoinResult{Room: room, Participant: p, Token: token}, nil
}

// Admit checks that the holder of pass is still on the room's roster. A
// kicked or departed participant keeps a signed pass until the room expires.
func (s *ParticipantService) Admit(ctx context.Context, pass Pass) (domain.Room, error) {
	room, err := s.rooms.Accessible(ctx, pass.RoomID)
	if err != nil {
		return domain.Room{}, err
	}
	if err := requireMember(ctx, s.repo, pass.RoomID, pass.Username, pass.UserID); err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

func (s *ParticipantService) List(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	if _, err := s.rooms.Accessible(ctx, roomID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, roomID)
}

func (s *ParticipantService) SetPresence(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID, online bool) (domain.Participant, error) {
	if _, err := s.rooms.Accessible(ctx, roomID); err != nil {
		return domain.Participant{}, err
	}
	p, err := s.repo.SetPresence(ctx, roomID, username, userID, online)
	if err != nil {
		return domain.Participant{}, err
	}
	s.publish(ctx, roomID, events.Roster{Action: events.RosterPresence, Username: username})
	return p, nil
}

// Kick removes target when admin is the elected admin and not the target.
func (s *ParticipantService) Kick(ctx context.Context, roomID uuid.UUID, target, admin string, adminUserID uuid.UUID) (domain.ChatMessage, error) {
	if target == admin {
		return domain.ChatMessage{}, apperrors.ErrForbidden
	}
	if _, err := s.rooms.Accessible(ctx, roomID); err != nil {
		return domain.ChatMessage{}, err
	}
	notice, err := s.repo.Kick(ctx, roomID, target, admin, adminUserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrForbidden) {
			metrics.Kicks.WithLabelValues("forbidden").Inc()
		}
		return domain.ChatMessage{}, err
	}
	metrics.Kicks.WithLabelValues("ok").Inc()
	s.publish(ctx, roomID, events.Roster{Action: events.RosterKicked, Username: target, By: admin})
	s.publish(ctx, roomID, events.Chat{Message: notice})
	s.log.Info("participant kicked",
		zap.String("room_id", roomID.String()),
		zap.String("username", target),
		zap.String("by", admin),
	)
	return notice, nil
}

// Leave deletes the caller's own row. Leaving an expired room is allowed.
func (s *ParticipantService) Leave(ctx context.Context, roomID uuid.UUID, username string, userID uuid.UUID) error {
	if _, err := s.rooms.Get(ctx, roomID); err != nil {
		return err
	}
	if err := s.repo.Remove(ctx, roomID, username, userID); err != nil {
		return err
	}
	s.publish(ctx, roomID, events.Roster{Action: events.RosterLeft, Username: username})
	return nil
}

// publish is best effort: the durable write already happened and peers also
// refresh their roster periodically.
func (s *ParticipantService) publish(ctx context.Context, roomID uuid.UUID, m events.Message) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishRoom(ctx, roomID, m); err != nil {
		s.log.Warn("room broadcast failed",
			zap.String("room_id", roomID.String()),
			zap.String("kind", string(m.Kind())),
			zap.Error(err),
		)
	}
}
