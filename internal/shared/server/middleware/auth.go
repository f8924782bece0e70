package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/server/respond"
)

const callerIDKey = "callerId"

// Auth checks the service bearer token. An empty token disables the check and every caller
// is identified by client IP.
func Auth(token string) gin.HandlerFunc {
	token = strings.TrimSpace(token)
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}
		if strings.HasSuffix(c.Request.URL.Path, "/health") {
			c.Next()
			return
		}
		if token == "" {
			c.Set(callerIDKey, "ip:"+c.ClientIP())
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(authHeader, "Bearer ") {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
			return
		}
		presented := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
			return
		}

		caller := strings.TrimSpace(c.GetHeader("X-Caller-Id"))
		if caller == "" {
			caller = "service"
		}
		c.Set(callerIDKey, caller)
		c.Next()
	}
}

// CallerIDFromContext fetches the caller identity set by the auth middleware.
func CallerIDFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	val, _ := c.Get(callerIDKey)
	if id, ok := val.(string); ok {
		return id
	}
	return ""
}
