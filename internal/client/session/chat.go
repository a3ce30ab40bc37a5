package session

import (
	"context"

	"go.uber.org/zap"

	"ephemera/internal/client/gateway"
	"ephemera/internal/crypto"
	"ephemera/internal/domain"
	"ephemera/internal/events"
	apperrors "ephemera/pkg/errors"
)

// SendMessage appends a text message. With encryption enabled the body
// leaves this process sealed with the room password.
func (s *Session) SendMessage(ctx context.Context, body string) (Message, error) {
	return s.send(ctx, body, domain.MessageKindText)
}

// SendFile appends a file reference message, sealed like text.
func (s *Session) SendFile(ctx context.Context, ref string) (Message, error) {
	return s.send(ctx, ref, domain.MessageKindFile)
}

func (s *Session) send(ctx context.Context, body string, kind domain.MessageKind) (Message, error) {
	if err := s.writable(); err != nil {
		return Message{}, err
	}
	if body == "" {
		return Message{}, apperrors.New(apperrors.CodeInvalidRequest, "message is empty")
	}
	wire := body
	if s.sealing() && kind.Encrypted() {
		sealed, err := crypto.Encrypt(body, s.password)
		if err != nil {
			return Message{}, apperrors.New(apperrors.CodeInternal, "sealing message: "+err.Error())
		}
		wire = sealed
	}

	msg, err := s.gw.AppendMessage(ctx, gateway.AppendRequest{
		RoomID:   s.room.ID,
		Username: s.me.Username,
		UserID:   s.me.UserID,
		Body:     wire,
		Kind:     kind,
	})
	if err != nil {
		s.life.Check(err)
		return Message{}, err
	}
	msg.Body = body
	return Message{ChatMessage: msg}, nil
}

// History returns the latest messages, oldest first, decrypted where possible.
func (s *Session) History(ctx context.Context) ([]Message, error) {
	msgs, err := s.gw.ListMessages(ctx, s.room.ID, s.cfg.HistoryLimit)
	if err != nil {
		s.life.Check(err)
		return nil, err
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.open(m))
	}
	return out, nil
}

func (s *Session) onChatPush(c events.Chat) {
	m := s.open(c.Message)
	s.emit(Event{Kind: EventChat, Message: &m})
}

// open decrypts a stored message. Bodies that do not decrypt are shown as is.
func (s *Session) open(m domain.ChatMessage) Message {
	if !s.sealing() || !m.Kind.Encrypted() {
		return Message{ChatMessage: m}
	}
	body, ok := crypto.DecryptOrRaw(m.Body, s.password)
	if !ok {
		s.log.Debug("showing undecryptable message as is",
			zap.String("message_id", m.ID.String()), zap.Bool("looks_sealed", crypto.LooksSealed(m.Body)))
		return Message{ChatMessage: m, Undecryptable: true}
	}
	m.Body = body
	return Message{ChatMessage: m}
}

func (s *Session) sealing() bool {
	return s.cfg.Encrypt && s.password != ""
}
