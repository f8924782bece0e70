package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/shared/telemetry"
)

func TestLoggingIncludesRequiredFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	t.Cleanup(telemetry.SetOutput(&buf))

	router := gin.New()
	router.Use(RequestID(), Auth(""), Logging())
	router.POST("/api/v1/subjects/:id/generate", func(c *gin.Context) {
		c.Set("outcome", "scheduled")
		c.JSON(http.StatusAccepted, gin.H{"status": "scheduled"})
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subjects/subject-1/generate", nil)
	req.Header.Set("X-Request-Id", "req-1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	last := lines[len(lines)-1]
	var payload map[string]any
	if err := json.Unmarshal([]byte(last), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}

	for _, key := range []string{"request_id", "caller_id", "subject_id", "duration_ms", "status", "route", "outcome"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("missing log field: %s", key)
		}
	}
	if payload["request_id"] != "req-1" {
		t.Fatalf("unexpected request_id: %v", payload["request_id"])
	}
	if payload["subject_id"] != "subject-1" {
		t.Fatalf("unexpected subject_id: %v", payload["subject_id"])
	}
	if payload["route"] != "/api/v1/subjects/:id/generate" {
		t.Fatalf("unexpected route: %v", payload["route"])
	}
	if payload["outcome"] != "scheduled" {
		t.Fatalf("unexpected outcome: %v", payload["outcome"])
	}
}

func TestLoggingSkipsHealthyProbesAndRaisesLevelOnErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	t.Cleanup(telemetry.SetOutput(&buf))

	router := gin.New()
	router.Use(Logging())
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/api/v1/subjects/:id/status", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected healthy probe to be silent, got %s", buf.String())
	}

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/subjects/s1/status", nil))
	var payload map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &payload); err != nil {
		t.Fatalf("decode log json: %v", err)
	}
	if payload["level"] != "error" {
		t.Fatalf("expected error level for 502, got %v", payload["level"])
	}
}
