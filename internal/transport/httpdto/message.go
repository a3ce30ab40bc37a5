package httpdto

import "ephemera/internal/domain"

type AppendMessageRequest struct {
	Username string `json:"username" binding:"required"`
	UserID   string `json:"user_id"`
	Body     string `json:"body" binding:"required"`
	Kind     string `json:"kind"`
}

type MessageListResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

type KickResponse struct {
	Notice domain.ChatMessage `json:"notice"`
}
