package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SQS_QUEUE_URL", "")
	t.Setenv("SCHEDULER", "")
	t.Setenv("OBJECT_STORE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.SchedulerType != "timer" {
		t.Fatalf("expected timer scheduler, got %q", cfg.SchedulerType)
	}
	if cfg.LLMTimeout != 220*time.Second {
		t.Fatalf("expected 220s timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.LeaseStaleAfter != 15*time.Minute {
		t.Fatalf("expected 15m lease, got %s", cfg.LeaseStaleAfter)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.WorkerConcurrency != 4 || cfg.SQSVisibility != 20*time.Minute || cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("unexpected worker defaults: %d %s %s", cfg.WorkerConcurrency, cfg.SQSVisibility, cfg.ShutdownTimeout)
	}
}

func TestLoadRejectsZeroWorkerConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "0")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadPicksSQSWhenQueueConfigured(t *testing.T) {
	t.Setenv("SCHEDULER", "")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/continuations")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SchedulerType != "sqs" {
		t.Fatalf("expected sqs scheduler, got %q", cfg.SchedulerType)
	}
}

func TestLoadRejectsSQSWithoutQueue(t *testing.T) {
	t.Setenv("SCHEDULER", "sqs")
	t.Setenv("SQS_QUEUE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadRejectsS3WithoutBucket(t *testing.T) {
	t.Setenv("OBJECT_STORE", "s3")
	t.Setenv("S3_BUCKET", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestLoadProductionRequiresDatabase(t *testing.T) {
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNormalizeEnv(t *testing.T) {
	tests := map[string]string{
		"prod":        "production",
		" Production": "production",
		"staging":     "staging",
		"local":       "local",
		"development": "dev",
		"":            "dev",
		"weird":       "dev",
	}
	for in, want := range tests {
		if got := normalizeEnv(in); got != want {
			t.Fatalf("normalizeEnv(%q) = %q, want %q", in, got, want)
		}
	}
}
