package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/metrics"
	"storygen-backend/internal/shared/server/respond"
	"storygen-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into the 500 error envelope. A panic after the response
// started only gets logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			metrics.IncPanicRecovered()
			telemetry.Error("http.panic", map[string]any{
				"request_id": RequestIDFromContext(c),
				"caller_id":  CallerIDFromContext(c),
				"route":      c.FullPath(),
				"subject_id": c.Param("id"),
				"panic":      rec,
				"stack":      string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "unexpected server error", nil)
		}()
		c.Next()
	}
}
