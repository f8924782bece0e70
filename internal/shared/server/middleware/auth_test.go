package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/telemetry"
)

func authRouter(t *testing.T, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Cleanup(telemetry.SetOutput(io.Discard))
	router := gin.New()
	router.Use(Auth(token))
	router.GET("/api/v1/subjects/:id/status", func(c *gin.Context) {
		c.String(http.StatusOK, CallerIDFromContext(c))
	})
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.OPTIONS("/api/v1/subjects/:id/status", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestAuthAllowsOptionsWithoutIdentity(t *testing.T) {
	router := authRouter(t, "secret")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/subjects/s1/status", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
}

func TestAuthRejectsMissingOrWrongToken(t *testing.T) {
	router := authRouter(t, "secret")

	for _, header := range []string{"", "Bearer wrong", "Basic secret"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/s1/status", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, resp.Code)
		}
	}
}

func TestAuthAcceptsTokenAndCallerHeader(t *testing.T) {
	router := authRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/s1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Caller-Id", "wizard")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "wizard" {
		t.Fatalf("expected 200 wizard, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	router := authRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subjects/s1/status", nil)
	req.RemoteAddr = "10.0.0.7:5555"
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || resp.Body.String() != "ip:10.0.0.7" {
		t.Fatalf("expected 200 ip caller, got %d %q", resp.Code, resp.Body.String())
	}
}

func TestAuthSkipsHealth(t *testing.T) {
	router := authRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
