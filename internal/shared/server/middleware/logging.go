package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/telemetry"
)

// Logging emits one request.complete line per request. Preflights and successful probe
// requests (health, metrics) are not logged.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()
		if status < http.StatusBadRequest && isProbe(c.Request.URL.Path) {
			return
		}

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"caller_id":   CallerIDFromContext(c),
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if id := c.Param("id"); id != "" {
			fields["subject_id"] = id
		}
		if raw, ok := c.Get("outcome"); ok {
			fields["outcome"] = raw
		}
		switch {
		case status >= http.StatusInternalServerError:
			telemetry.Error("request.complete", fields)
		case status >= http.StatusBadRequest:
			telemetry.Warn("request.complete", fields)
		default:
			telemetry.Info("request.complete", fields)
		}
	}
}

func isProbe(path string) bool {
	return path == "/metrics" || strings.HasSuffix(path, "/health")
}
