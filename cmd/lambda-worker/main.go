package main

// Build the Lambda handler binary (the WebP encoder needs cgo):
//   GOOS=linux GOARCH=amd64 CGO_ENABLED=1 go build -o bootstrap ./cmd/lambda-worker

import (
	"context"
	"log"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"brandkit-backend/internal/bootstrap"
	"brandkit-backend/internal/shared/config"
	"brandkit-backend/internal/shared/metrics"
	"brandkit-backend/internal/shared/telemetry"
	"brandkit-backend/internal/workerproc"
)

var (
	initOnce sync.Once
	initErr  error
	app      *bootstrap.App
)

func initApp() {
	cfg := config.Load()
	built, err := bootstrap.Build(cfg)
	if err != nil {
		initErr = err
		return
	}
	app = built
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	initOnce.Do(initApp)
	if initErr != nil {
		log.Printf("bootstrap error: %v", initErr)
		failures := make([]events.SQSBatchItemFailure, 0, len(event.Records))
		for _, record := range event.Records {
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
		return events.SQSEventResponse{BatchItemFailures: failures}, initErr
	}
	return processRecords(ctx, app.Formats, event), nil
}

// processRecords reports only retryable failures; poison messages are dropped.
func processRecords(ctx context.Context, p workerproc.Prewarmer, event events.SQSEvent) events.SQSEventResponse {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, record := range event.Records {
		metrics.IncPrewarmJobsReceived()
		err := workerproc.HandleMessage(ctx, p, record.Body)
		if err == nil {
			metrics.IncPrewarmJobsCompleted()
			continue
		}
		fields := map[string]any{
			"sqs_message_id": record.MessageId,
			"error":          err,
		}
		if workerproc.Unrecoverable(err) {
			telemetry.Error("lambda_worker.prewarm.dropped", fields)
			metrics.IncPrewarmJobsDeletedUnrecoverable()
			continue
		}
		telemetry.Warn("lambda_worker.prewarm.failed", fields)
		metrics.IncPrewarmJobsFailed()
		failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
	}
	return events.SQSEventResponse{BatchItemFailures: failures}
}

func main() {
	lambda.Start(handler)
}
