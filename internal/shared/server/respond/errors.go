package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/telemetry"
	"storygen-backend/internal/shared/util"
)

// Error codes shared by the control API handlers.
const (
	CodeValidation        = "validation_error"
	CodeUnauthorized      = "unauthorized"
	CodeNotFound          = "not_found"
	CodeGenerationStarted = "generation_started"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

// ErrorBody defines the standardized error object.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorResponse wraps the error body.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Error aborts with the error envelope and logs http.error.
func Error(c *gin.Context, status int, code, message string, details any) {
	write(c, status, code, message, details, nil)
}

// Internal answers 500 with a client-safe message. The cause is only logged.
func Internal(c *gin.Context, message string, cause error) {
	write(c, http.StatusInternalServerError, CodeInternal, message, nil, cause)
}

func write(c *gin.Context, status int, code, message string, details any, cause error) {
	fields := map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"route":      c.FullPath(),
		"request_id": c.GetString("requestId"),
	}
	if callerID := c.GetString("callerId"); callerID != "" {
		fields["caller_id"] = callerID
	}
	if id := c.Param("id"); id != "" {
		fields["subject_id"] = id
	}
	if cause != nil {
		fields["cause"] = util.SanitizeMessage(cause.Error(), util.DefaultMessageLimit)
	}
	if status >= http.StatusInternalServerError {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Warn("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorBody{Code: code, Message: message, Details: details},
	})
}
