package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"storygen-backend/internal/bootstrap"
	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/telemetry"
	"storygen-backend/internal/workerproc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		telemetry.Error("worker.exit", map[string]any{"error": err})
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.SchedulerType != "sqs" {
		return errors.New("worker needs SQS_QUEUE_URL or SCHEDULER=sqs")
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	poller := newPoller(app.Queue, app.Machine, cfg)
	telemetry.Info("worker.started", map[string]any{
		"queue":       cfg.SQSQueueURL,
		"concurrency": poller.Concurrency,
		"visibility":  cfg.SQSVisibility.String(),
	})

	err = poller.Run(ctx)
	telemetry.Info("worker.stopped", map[string]any{"drained": err == nil})
	return err
}

func newPoller(src workerproc.Source, adv workerproc.Advancer, cfg config.Config) *workerproc.Poller {
	return &workerproc.Poller{
		Source:      src,
		Advancer:    adv,
		Concurrency: cfg.WorkerConcurrency,
		Drain:       cfg.ShutdownTimeout,
	}
}
