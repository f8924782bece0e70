package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/server/middleware"
	"storygen-backend/internal/shared/server/respond"
)

// registerMeRoutes attaches the /me endpoint, which echoes the resolved caller.
func registerMeRoutes(rg *gin.RouterGroup) {
	rg.GET("/me", meHandler)
}

func meHandler(c *gin.Context) {
	callerID := middleware.CallerIDFromContext(c)
	if callerID == "" {
		respond.Error(c, http.StatusUnauthorized, respond.CodeUnauthorized, "missing or invalid token", nil)
		return
	}
	respond.JSON(c, http.StatusOK, gin.H{
		"callerId":  callerID,
		"requestId": middleware.RequestIDFromContext(c),
	})
}
