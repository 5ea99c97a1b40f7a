package search

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/documents"
	"voterlist-backend/internal/shared/metrics"
	"voterlist-backend/internal/shared/server/middleware"
	"voterlist-backend/internal/shared/server/respond"
	"voterlist-backend/internal/shared/telemetry"
)

// DocumentGetter loads the document being searched.
type DocumentGetter interface {
	Get(ctx context.Context, id string) (documents.Document, error)
}

// Handler exposes search endpoints.
type Handler struct {
	Docs   DocumentGetter
	Engine Engine
}

// NewHandler constructs a Handler.
func NewHandler(docs DocumentGetter, engine Engine) *Handler {
	return &Handler{Docs: docs, Engine: engine}
}

type searchRequest struct {
	Query string `json:"query"`
}

type selectRequest struct {
	Page   int `json:"page"`
	Offset int `json:"offset"`
}

// RegisterRoutes attaches search routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents/:id/search", h.search)
	rg.POST("/documents/:id/search/select", h.selectResult)
}

func (h *Handler) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	doc, ok := h.loadReady(c)
	if !ok {
		return
	}

	results, err := h.Engine.Search(c.Request.Context(), req.Query, doc)
	if err != nil {
		switch {
		case errors.Is(err, ErrEmptyQuery):
			respond.Error(c, http.StatusBadRequest, "empty_query", "query is required", nil)
		case errors.Is(err, ErrNotReady):
			respond.Error(c, http.StatusConflict, "not_ready", "document is still being processed", nil)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			respond.Error(c, http.StatusRequestTimeout, "cancelled", "search cancelled", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "search failed", nil)
		}
		return
	}
	metrics.IncSearches()
	telemetry.Info("search.completed", map[string]any{
		"document_id": doc.ID,
		"results":     len(results),
	})
	respond.OK(c, gin.H{
		"items":        results,
		"capabilities": h.Engine.Capabilities(),
	})
}

func (h *Handler) selectResult(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Page < 1 || req.Offset < 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "page must be positive", nil)
		return
	}
	if _, ok := h.loadReady(c); !ok {
		return
	}
	respond.OK(c, h.Engine.SelectResult(Result{Page: req.Page, Offset: req.Offset}))
}

// loadReady fetches the path document and rejects it unless extraction
// finished.
func (h *Handler) loadReady(c *gin.Context) (documents.Document, bool) {
	id := c.Param("id")
	c.Set(middleware.LogDocumentIDKey, id)
	doc, err := h.Docs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, documents.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
			return documents.Document{}, false
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		return documents.Document{}, false
	}
	if doc.Status != documents.StatusOCRComplete {
		respond.Error(c, http.StatusConflict, "not_ready", "document is still being processed", gin.H{"status": doc.Status})
		return documents.Document{}, false
	}
	return doc, true
}
