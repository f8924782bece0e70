package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"storygen-backend/internal/services/health"
	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/telemetry"
)

func TestAddr(t *testing.T) {
	tests := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range tests {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRouterServesHealthAndMetricsWithoutToken(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	r := NewRouter(RouterDeps{Config: config.Config{Env: "production", ControlAPIToken: "secret"}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "generation_passes_started_total") {
		t.Fatalf("metrics: unexpected response %d", resp.Code)
	}
}

func TestRouterMeRequiresToken(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	r := NewRouter(RouterDeps{Config: config.Config{Env: "production", ControlAPIToken: "secret"}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"callerId":"service"`) {
		t.Fatalf("expected caller echo, got %d %s", resp.Code, resp.Body.String())
	}
}

type downDB struct{}

func (downDB) PingContext(ctx context.Context) error { return errors.New("connection refused") }

func TestRouterHealthReportsUnreachableDatabase(t *testing.T) {
	t.Cleanup(telemetry.SetOutput(io.Discard))
	r := NewRouter(RouterDeps{
		Config: config.Config{Env: "production"},
		Health: health.NewService(downDB{}, "timer", true),
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"database":"unreachable"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
