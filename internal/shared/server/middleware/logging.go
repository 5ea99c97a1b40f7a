package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"voterlist-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log line.
const (
	LogDocumentIDKey  = "documentId"
	LogUploadCountKey = "uploadCount"
)

// quietPaths are polled by health checks and scrapers and are not logged.
var quietPaths = map[string]struct{}{
	"/metrics":       {},
	"/api/v1/health": {},
}

// Logging emits one request.complete line per request. Server errors are
// logged at error level.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if _, quiet := quietPaths[c.Request.URL.Path]; quiet {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"bytes_out":   c.Writer.Size(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"user_id":     UserIDFromContext(c),
			"user_role":   UserRoleFromContext(c),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if id := strings.TrimSpace(c.GetString(LogDocumentIDKey)); id != "" {
			fields["document_id"] = id
		}
		if n := c.GetInt(LogUploadCountKey); n > 0 {
			fields["upload_count"] = n
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			telemetry.Error("request.complete", fields)
			return
		}
		telemetry.Info("request.complete", fields)
	}
}
