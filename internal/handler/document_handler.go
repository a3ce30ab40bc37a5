package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ephemera/internal/services"
	"ephemera/internal/transport/httpdto"
)

type DocumentHandler struct {
	service DocumentService
}

func NewDocumentHandler(service DocumentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

func (h *DocumentHandler) Get(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), pass.RoomID, c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DocumentResponse{Document: doc}))
}

// Create is idempotent on (room, name): a second call returns the existing
// document with created=false.
func (h *DocumentHandler) Create(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	var req httpdto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	doc, created, err := h.service.Create(c.Request.Context(), services.CreateDocumentInput{
		RoomID:    pass.RoomID,
		Name:      req.Name,
		Language:  req.Language,
		Content:   req.Content,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.DocumentResponse{Document: doc, Created: created}))
}

func (h *DocumentHandler) Update(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	docID, err := parseUUID(c.Param("documentID"))
	if err != nil {
		badRequest(c, "invalid document id")
		return
	}
	var req httpdto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	doc, err := h.service.Update(c.Request.Context(), pass.RoomID, docID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.DocumentResponse{Document: doc}))
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	pass, ok := requirePass(c)
	if !ok {
		return
	}
	docID, err := parseUUID(c.Param("documentID"))
	if err != nil {
		badRequest(c, "invalid document id")
		return
	}
	if err := h.service.Delete(c.Request.Context(), pass.RoomID, docID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse[any](nil))
}
