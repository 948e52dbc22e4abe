package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/coscribe/internal/artifact"
	"github.com/xxxsen/coscribe/internal/model"
	"github.com/xxxsen/coscribe/internal/pkg/errcode"
	"github.com/xxxsen/coscribe/internal/pkg/response"
	"github.com/xxxsen/coscribe/internal/service"
)

type DocumentHandler struct {
	documents *service.DocumentService
	sessions  *service.SessionManager
}

func NewDocumentHandler(documents *service.DocumentService, sessions *service.SessionManager) *DocumentHandler {
	return &DocumentHandler{documents: documents, sessions: sessions}
}

type documentSaveRequest struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

// Save appends a new version row. An empty id creates a new document.
func (h *DocumentHandler) Save(c *gin.Context) {
	var req documentSaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Title == "" {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "title required")
		return
	}
	doc, err := h.documents.Save(c.Request.Context(), service.DocumentSaveInput{
		ID:          req.ID,
		OwnerID:     getUserID(c),
		Title:       req.Title,
		Content:     req.Content,
		Kind:        req.Kind,
		VersionType: model.VersionExplicit,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

// Get returns the latest snapshot of one of the caller's documents.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.GetLatest(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	limit, offset := uint(0), uint(0)
	if value := c.Query("limit"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			limit = uint(parsed)
		}
	}
	if value := c.Query("offset"); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			offset = uint(parsed)
		}
	}
	docs, err := h.documents.ListByOwner(c.Request.Context(), getUserID(c), limit, offset)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

// Versions returns the full append-only history, newest first.
func (h *DocumentHandler) Versions(c *gin.Context) {
	docs, err := h.documents.ListVersions(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, docs)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.documents.Delete(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

type editRequest struct {
	Content *string `json:"content"`
	Title   *string `json:"title"`
}

// Edit applies a local human edit to the open artifact session; the
// autosave scheduler coalesces the resulting writes. Rejected with 409
// while a generation is streaming into the document.
func (h *DocumentHandler) Edit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()
	userID := getUserID(c)
	docID := c.Param("id")
	if req.Content != nil {
		if h.editErr(h.sessions.EditContent(ctx, userID, docID, *req.Content), c) {
			return
		}
	}
	if req.Title != nil {
		if h.editErr(h.sessions.EditTitle(ctx, userID, docID, *req.Title), c) {
			return
		}
	}
	state, err := h.sessions.Snapshot(userID, docID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"status": state.Status})
}

func (h *DocumentHandler) editErr(err error, c *gin.Context) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, artifact.ErrStreamingEdit) {
		response.Error(c, http.StatusConflict, errcode.ErrConflict, "document is streaming, edit rejected")
		return true
	}
	handleError(c, err)
	return true
}

// SaveNow persists the open session immediately as an explicit save.
func (h *DocumentHandler) SaveNow(c *gin.Context) {
	if err := h.sessions.SaveNow(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"saved": true})
}

// CloseSession flushes pending autosave and discards the session.
func (h *DocumentHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Request.Context(), getUserID(c), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"closed": true})
}
