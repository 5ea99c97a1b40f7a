package accounts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/shared/server/middleware"
	"voterlist-backend/internal/shared/server/respond"
)

const duplicateUsernameMessage = "এই নামের ইউজার ইতিমধ্যে আছে"

type Handler struct {
	Svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches the admin panel routes. The caller mounts rg under
// an admin-only group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/accounts", h.list)
	rg.POST("/accounts", h.create)
	rg.POST("/accounts/:username/toggle-block", h.toggleBlock)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.Svc.List(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list accounts", nil)
		return
	}
	out := make([]AccountResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a, h.Svc.IsAdmin(a.Username)))
	}
	respond.OK(c, gin.H{"items": out})
}

func (h *Handler) create(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	role, ok := ParseRole(req.Role)
	if !ok {
		respond.Error(c, http.StatusBadRequest, "validation_error", "role must be ADMIN or USER", nil)
		return
	}
	account, err := h.Svc.CreateAccount(c.Request.Context(), req.Username, req.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			respond.Error(c, http.StatusConflict, "duplicate_username", duplicateUsernameMessage, nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to create account", nil)
		}
		return
	}
	respond.Created(c, toResponse(account, false))
}

func (h *Handler) toggleBlock(c *gin.Context) {
	username := c.Param("username")
	account, err := h.Svc.ToggleBlock(c.Request.Context(), username)
	if err != nil {
		switch {
		case errors.Is(err, ErrProtectedAccount):
			respond.Error(c, http.StatusForbidden, "protected_account", "admin account cannot be blocked", nil)
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "account not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to update account", nil)
		}
		return
	}
	respond.OK(c, gin.H{
		"account":   toResponse(account, false),
		"changedBy": middleware.UserIDFromContext(c),
	})
}
