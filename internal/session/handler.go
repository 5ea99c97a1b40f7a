package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/accounts"
	"voterlist-backend/internal/shared/server/middleware"
	"voterlist-backend/internal/shared/server/respond"
	"voterlist-backend/internal/shared/telemetry"
)

const (
	invalidCredentialsMessage = "ভুল ইউজার বা পাসওয়ার্ড"
	accountBlockedMessage     = "আপনার অ্যাকাউন্ট ব্লক করা হয়েছে"
)

// Handler exposes login, logout and view gating.
type Handler struct {
	Sessions *Manager
}

// NewHandler constructs a Handler.
func NewHandler(m *Manager) *Handler {
	return &Handler{Sessions: m}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	Username  string        `json:"username"`
	Role      accounts.Role `json:"role"`
	View      View          `json:"view"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

type viewResponse struct {
	View       View `json:"view"`
	Redirected bool `json:"redirected"`
}

// RegisterRoutes attaches session routes. GET /me and GET /views/:name read
// the identity set by middleware.Auth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.login)
	rg.POST("/auth/logout", h.logout)
	rg.GET("/me", h.me)
	rg.GET("/views/:name", h.view)
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}

	s, err := h.Sessions.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrAccountBlocked):
			respond.Error(c, http.StatusForbidden, "account_blocked", accountBlockedMessage, nil)
		case errors.Is(err, accounts.ErrInvalidCredentials):
			respond.Error(c, http.StatusUnauthorized, "invalid_credentials", invalidCredentialsMessage, nil)
		case errors.Is(err, accounts.ErrNotInitialized):
			respond.Error(c, http.StatusServiceUnavailable, "not_ready", "service is starting", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "login failed", nil)
		}
		return
	}

	if err := h.Sessions.WriteCookie(c.Writer, c.Request, s); err != nil {
		telemetry.Error("session.cookie_failed", map[string]any{"error": err.Error()})
	}
	respond.OK(c, loginResponse{
		Token:     s.ID,
		Username:  s.Username,
		Role:      s.Role,
		View:      HomeView(s.Role),
		ExpiresAt: s.ExpiresAt,
	})
}

func (h *Handler) logout(c *gin.Context) {
	h.Sessions.Logout(h.Sessions.TokenFromRequest(c.Request))
	if err := h.Sessions.ClearCookie(c.Writer, c.Request); err != nil {
		telemetry.Error("session.cookie_failed", map[string]any{"error": err.Error()})
	}
	respond.OK(c, viewResponse{View: ViewLanding})
}

func (h *Handler) me(c *gin.Context) {
	username := middleware.UserIDFromContext(c)
	if username == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "login required", nil)
		return
	}
	role := accounts.Role(middleware.UserRoleFromContext(c))
	respond.OK(c, gin.H{
		"username": username,
		"role":     role,
		"view":     HomeView(role),
	})
}

func (h *Handler) view(c *gin.Context) {
	username := middleware.UserIDFromContext(c)
	role := accounts.Role(middleware.UserRoleFromContext(c))
	view, redirected := Resolve(View(c.Param("name")), username != "", role)
	respond.OK(c, viewResponse{View: view, Redirected: redirected})
}
