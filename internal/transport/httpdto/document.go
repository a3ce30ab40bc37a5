package httpdto

import "ephemera/internal/domain"

type CreateDocumentRequest struct {
	Name      string `json:"name"`
	Language  string `json:"language"`
	Content   string `json:"content"`
	CreatedBy string `json:"created_by" binding:"required"`
}

type UpdateDocumentRequest = domain.DocumentPatch

type DocumentResponse struct {
	Document domain.Document `json:"document"`
	Created  bool            `json:"created,omitempty"`
}
