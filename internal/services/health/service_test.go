package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) PingContext(ctx context.Context) error { return f.err }

func TestStatusWithoutDatabase(t *testing.T) {
	report := NewService(nil, "timer", false).Status(context.Background())
	if !report.OK {
		t.Fatalf("expected ok without database")
	}
	if report.Checks["database"] != "memory" || report.Checks["llm"] != "missing_credential" {
		t.Fatalf("unexpected checks: %v", report.Checks)
	}
}

func TestStatusFailsWhenDatabaseUnreachable(t *testing.T) {
	report := NewService(fakePinger{err: errors.New("dial tcp: refused")}, "sqs", true).Status(context.Background())
	if report.OK {
		t.Fatalf("expected not ok")
	}
	if report.Checks["database"] != "unreachable" || report.Checks["llm"] != "ok" {
		t.Fatalf("unexpected checks: %v", report.Checks)
	}
	if report.Scheduler != "sqs" {
		t.Fatalf("unexpected scheduler %q", report.Scheduler)
	}
}
