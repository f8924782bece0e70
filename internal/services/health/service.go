package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Report is the health payload.
type Report struct {
	OK        bool              `json:"ok"`
	Checks    map[string]string `json:"checks"`
	Scheduler string            `json:"scheduler"`
}

// Service encapsulates health-related checks.
type Service struct {
	db            Pinger
	scheduler     string
	llmConfigured bool
}

// NewService constructs a health service. db may be nil when running on memory repositories.
func NewService(db Pinger, scheduler string, llmConfigured bool) *Service {
	return &Service{db: db, scheduler: scheduler, llmConfigured: llmConfigured}
}

// Status pings the database and reports configuration gaps. A missing LLM key is reported
// but does not fail the check, since status reads still work without it.
func (s *Service) Status(ctx context.Context) Report {
	report := Report{OK: true, Checks: map[string]string{}, Scheduler: s.scheduler}

	switch {
	case s.db == nil:
		report.Checks["database"] = "memory"
	default:
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.db.PingContext(pingCtx); err != nil {
			report.OK = false
			report.Checks["database"] = "unreachable"
		} else {
			report.Checks["database"] = "ok"
		}
	}

	if s.llmConfigured {
		report.Checks["llm"] = "ok"
	} else {
		report.Checks["llm"] = "missing_credential"
	}
	return report
}
