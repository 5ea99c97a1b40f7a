package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/shared/metrics"
	"voterlist-backend/internal/shared/server/middleware"
	"voterlist-backend/internal/shared/server/respond"
)

const (
	rateGroupDefault = "DEFAULT"
	rateGroupLogin   = "LOGIN"
	rateGroupSearch  = "SEARCH"
)

// RouteRegistrar mounts a feature's handlers on a route group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps lists everything the router mounts.
type RouterDeps struct {
	CORSAllowOrigin []string
	Resolver        middleware.IdentityResolver
	// Public routes run for anonymous callers too.
	Public []RouteRegistrar
	// User routes need a live session.
	User []RouteRegistrar
	// Admin routes are mounted under /admin and need the ADMIN role.
	Admin []RouteRegistrar
	// Health reports dependency readiness; nil means always healthy.
	Health      func(ctx context.Context) error
	RateLimiter *middleware.RateLimiter
	RateRules   map[string]middleware.RateLimitRule
}

// DefaultRateRules throttles login attempts hardest, then searches.
func DefaultRateRules() map[string]middleware.RateLimitRule {
	return map[string]middleware.RateLimitRule{
		rateGroupDefault: {Rate: 20, Burst: 40},
		rateGroupLogin:   {Rate: 0.2, Burst: 5},
		rateGroupSearch:  {Rate: 2, Burst: 5},
	}
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.CORSAllowOrigin),
		middleware.Auth(deps.Resolver),
	)

	rules := deps.RateRules
	if rules == nil {
		rules = DefaultRateRules()
	}
	limited := middleware.RateLimit(middleware.RateLimitConfig{
		Rules:        rules,
		DefaultGroup: rateGroupDefault,
		GroupFor:     rateGroupFor,
		Limiter:      deps.RateLimiter,
	})

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", health(deps.Health))

	public := api.Group("", limited)
	for _, reg := range deps.Public {
		reg.RegisterRoutes(public)
	}

	user := api.Group("", middleware.RequireUser(), limited)
	for _, reg := range deps.User {
		reg.RegisterRoutes(user)
	}

	admin := api.Group("/admin", middleware.RequireAdmin(), limited)
	for _, reg := range deps.Admin {
		reg.RegisterRoutes(admin)
	}

	return r
}

func rateGroupFor(c *gin.Context) string {
	path := c.FullPath()
	switch {
	case c.Request.Method == http.MethodPost && path == "/api/v1/auth/login":
		return rateGroupLogin
	case c.Request.Method == http.MethodPost && strings.HasSuffix(path, "/search"):
		return rateGroupSearch
	default:
		return rateGroupDefault
	}
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "unhealthy", err.Error(), nil)
				return
			}
		}
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
