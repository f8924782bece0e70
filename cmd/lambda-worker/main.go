package main

// Build the Lambda handler binary:
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=0 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"storygen-backend/internal/bootstrap"
	"storygen-backend/internal/shared/config"
	"storygen-backend/internal/shared/telemetry"
	"storygen-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg, err := config.Load()
	if err != nil {
		initErr = err
		return
	}
	app, initErr = bootstrap.Build(cfg)
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		// Failing the invocation returns the whole batch to the queue.
		telemetry.Error("lambda.worker.bootstrap_failed", map[string]any{"error": initErr, "records": len(event.Records)})
		return events.SQSEventResponse{}, initErr
	}
	return handleEvent(ctx, app.Machine, event), nil
}

// handleEvent reports only retryable records as batch item failures.
func handleEvent(ctx context.Context, advancer workerproc.Advancer, event events.SQSEvent) events.SQSEventResponse {
	var resp events.SQSEventResponse
	for _, record := range event.Records {
		res := workerproc.Process(ctx, advancer, record.Body, map[string]any{
			"sqs_message_id": record.MessageId,
			"receive_count":  record.Attributes["ApproximateReceiveCount"],
		})
		if res.Disposition == workerproc.Retry {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp
}

func main() {
	lambda.Start(handler)
}
