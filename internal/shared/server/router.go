package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/documents"
	"storygen-backend/internal/generation"
	"storygen-backend/internal/services/health"
	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/metrics"
	"storygen-backend/internal/shared/server/middleware"
	"storygen-backend/internal/shared/server/respond"
	"storygen-backend/internal/subjects"
)

const (
	classDefault = "default"
	classStart   = "start"
	classPolling = "polling"
)

// RouterDeps carries the handlers mounted by NewRouter.
type RouterDeps struct {
	Config            config.Config
	SubjectHandler    *subjects.Handler
	GenerationHandler *generation.Handler
	DocumentHandler   *documents.Handler
	Health            *health.Service
	Buckets           *middleware.Buckets
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.IsDevLike() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Config.ControlAPIToken),
		middleware.Throttle(middleware.ThrottleConfig{
			Classify: classify,
			Buckets:  deps.Buckets,
			Policies: map[string]middleware.Policy{
				classDefault: {Rate: 2, Burst: 20},
				classStart:   {Rate: 0.2, Burst: 5},
				classPolling: {Rate: 5, Burst: 30},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Health))
	registerMeRoutes(api)
	if deps.SubjectHandler != nil {
		deps.SubjectHandler.RegisterRoutes(api)
	}
	if deps.GenerationHandler != nil {
		deps.GenerationHandler.RegisterRoutes(api)
	}
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}

	return r
}

func healthHandler(svc *health.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if svc == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		report := svc.Status(c.Request.Context())
		code := http.StatusOK
		if !report.OK {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, report)
	}
}

// classify gives routes that start LLM work a tight budget and status polls a loose one.
func classify(c *gin.Context) string {
	switch c.FullPath() {
	case "/api/v1/subjects/:id/generate", "/api/v1/subjects/:id/regenerate":
		return classStart
	case "/api/v1/subjects/:id/status":
		return classPolling
	}
	return classDefault
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
