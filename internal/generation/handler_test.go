package generation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"storygen-backend/internal/pipeline"
	"storygen-backend/internal/shared/telemetry"
)

func newTestRouter(t *testing.T, proc Processor) (*gin.Engine, fixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Cleanup(telemetry.SetOutput(io.Discard))

	f := newFixture(t, proc, Settings{})
	r := gin.New()
	NewHandler(f.machine).RegisterRoutes(r.Group("/api/v1"))
	return r, f
}

func do(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeOutcome(t *testing.T, resp *httptest.ResponseRecorder) OutcomeResponse {
	t.Helper()
	var out OutcomeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestGenerateReturnsReady(t *testing.T) {
	r, _ := newTestRouter(t, &scriptedProcessor{})

	resp := do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if out := decodeOutcome(t, resp); out.Status != "ready" || out.SubjectID != "subject-1" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	resp = do(r, http.MethodGet, "/api/v1/subjects/subject-1/status")
	var snap StatusSnapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != SnapshotComplete || snap.Progress != 100 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestGenerateScheduledOnRateLimit(t *testing.T) {
	r, _ := newTestRouter(t, &scriptedProcessor{step: func(stage pipeline.Stage, in pipeline.Input) pipeline.Result {
		return pipeline.RateLimited(17*time.Second, errors.New("try again in 12s"))
	}})

	resp := do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	out := decodeOutcome(t, resp)
	if out.Status != "scheduled" || out.WaitSeconds != 17 || out.Stage != "stake_extraction" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestGenerateFailureMapsToBadGateway(t *testing.T) {
	r, _ := newTestRouter(t, &scriptedProcessor{step: func(stage pipeline.Stage, in pipeline.Input) pipeline.Result {
		return pipeline.Failed(pipeline.CodeUpstreamError, errors.New("model overloaded"))
	}})

	resp := do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	if out := decodeOutcome(t, resp); out.Code != "upstream_error" || out.Message != "model overloaded" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
}

func TestGenerateMissingInputIsUnprocessable(t *testing.T) {
	r, _ := newTestRouter(t, &scriptedProcessor{})

	resp := do(r, http.MethodPost, "/api/v1/subjects/nobody/generate")
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestGenerateAsyncOnlySchedules(t *testing.T) {
	proc := &scriptedProcessor{}
	r, f := newTestRouter(t, proc)

	resp := do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate?async=true")
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if proc.total() != 0 || len(f.scheduler.calls) != 1 {
		t.Fatalf("expected one scheduled continuation and no stage calls")
	}
}

func TestForceAndRegenerateStartOver(t *testing.T) {
	proc := &scriptedProcessor{}
	r, _ := newTestRouter(t, proc)

	do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate")
	resp := do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate?force=true")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	resp = do(r, http.MethodPost, "/api/v1/subjects/subject-1/regenerate")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := proc.count(pipeline.StageStakeExtraction); got != 3 {
		t.Fatalf("expected 3 full passes, got %d", got)
	}
}

func TestResetRoute(t *testing.T) {
	r, _ := newTestRouter(t, &scriptedProcessor{})
	do(r, http.MethodPost, "/api/v1/subjects/subject-1/generate")

	resp := do(r, http.MethodDelete, "/api/v1/subjects/subject-1/generation")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	resp = do(r, http.MethodGet, "/api/v1/subjects/subject-1/status")
	var snap StatusSnapshot
	if err := json.Unmarshal(resp.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != SnapshotNotStarted {
		t.Fatalf("expected not_started, got %s", snap.Status)
	}
}

func TestStatusRejectsInvalidID(t *testing.T) {
	r, _ := newTestRouter(t, &scriptedProcessor{})

	resp := do(r, http.MethodGet, "/api/v1/subjects/bad%20id/status")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
