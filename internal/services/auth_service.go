package services

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ephemera/config"
	"ephemera/internal/domain"
	apperrors "ephemera/pkg/errors"
)

// AuthService issues and checks room passes: bearer tokens that bind a
// participant to one room until the room expires.
// A pass outlives its room by passGrace so late calls reach the room check
// and are answered GONE rather than UNAUTHORIZED.
const passGrace = time.Hour

type AuthService struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewAuthService(cfg *config.Config) *AuthService {
	return &AuthService{jwtSecret: []byte(cfg.JWTSecret), now: time.Now}
}

type RoomClaims struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// Pass is the parsed form of a room pass.
type Pass struct {
	RoomID   uuid.UUID
	Username string
	UserID   uuid.UUID
}

func (s *AuthService) Issue(room domain.Room, p domain.Participant) (string, error) {
	claims := RoomClaims{
		RoomID:   room.ID.String(),
		Username: p.Username,
		UserID:   p.UserID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(room.ExpiresAt.Add(passGrace)),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) Parse(tokenString string) (Pass, error) {
	if tokenString == "" {
		return Pass{}, apperrors.ErrUnauthorized
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrUnauthorized
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Pass{}, apperrors.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*RoomClaims)
	if !ok || !parsed.Valid {
		return Pass{}, apperrors.ErrUnauthorized
	}
	roomID, err := uuid.Parse(claims.RoomID)
	if err != nil {
		return Pass{}, apperrors.ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Pass{}, apperrors.ErrUnauthorized
	}
	return Pass{RoomID: roomID, Username: claims.Username, UserID: userID}, nil
}
