package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"brandkit-backend/internal/formats"
	"brandkit-backend/internal/queue"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakePrewarmer struct {
	err   error
	calls int
	got   []string
}

func (f *fakePrewarmer) Prewarm(ctx context.Context, assetID string, wanted []string) ([]formats.PrewarmResult, error) {
	f.calls++
	f.got = append([]string(nil), wanted...)
	return nil, f.err
}

func prewarmMessage(t *testing.T, id, receipt string, wanted ...string) sqstypes.Message {
	t.Helper()
	body, err := queue.EncodeMessage(queue.Message{AssetID: "asset-1", Formats: wanted, RequestID: "req-1", Version: queue.MessageVersion})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(string(body)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakePrewarmer{}

	handleMessage(context.Background(), client, "queue", proc, prewarmMessage(t, "m1", "r1", "png", "webp"))

	if len(client.deleted) != 1 || client.deleted[0] != "r1" {
		t.Fatalf("expected delete of r1, got %v", client.deleted)
	}
	if proc.calls != 1 || len(proc.got) != 2 {
		t.Fatalf("unexpected prewarm call %d %v", proc.calls, proc.got)
	}
}

func TestWorkerKeepsMessageOnRetryableFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakePrewarmer{err: errors.Join(
		&formats.ResolveError{AssetID: "asset-1", Format: "png", Op: "upload", Err: formats.ErrStoreWriteFailed},
	)}

	handleMessage(context.Background(), client, "queue", proc, prewarmMessage(t, "m2", "r2", "png"))

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %v", client.deleted)
	}
}

func TestWorkerDropsPermanentFailure(t *testing.T) {
	client := &fakeSQS{}
	proc := &fakePrewarmer{err: errors.Join(
		&formats.ResolveError{AssetID: "asset-1", Format: "png", Op: "load", Err: formats.ErrAssetNotFound},
		&formats.ResolveError{AssetID: "asset-1", Format: "svg", Op: "convert", Err: formats.ErrUnsupportedConversion},
	)}

	handleMessage(context.Background(), client, "queue", proc, prewarmMessage(t, "m3", "r3", "png", "svg"))

	if len(client.deleted) != 1 {
		t.Fatalf("expected permanent failure to be deleted, got %v", client.deleted)
	}
}

func TestWorkerDeletesInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: "{bad-json"},
		{name: "empty", body: "   "},
		{name: "no asset", body: `{"formats":["png"]}`},
		{name: "no formats", body: `{"assetId":"asset-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeSQS{}
			proc := &fakePrewarmer{}
			msg := sqstypes.Message{
				MessageId:     aws.String("m4"),
				ReceiptHandle: aws.String("r4"),
				Body:          aws.String(tt.body),
			}

			handleMessage(context.Background(), client, "queue", proc, msg)

			if len(client.deleted) != 1 {
				t.Fatalf("expected delete, got %v", client.deleted)
			}
			if proc.calls != 0 {
				t.Fatalf("invalid message must not reach the prewarmer")
			}
		})
	}
}
