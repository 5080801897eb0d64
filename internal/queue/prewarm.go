package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"brandkit-backend/internal/shared/telemetry"
)

// Prewarmer turns prewarm requests into queue messages.
type Prewarmer struct {
	Client Client
	Now    func() time.Time
}

// NewPrewarmer constructs a Prewarmer that sends through client.
func NewPrewarmer(client Client) *Prewarmer {
	return &Prewarmer{Client: client}
}

// EnqueuePrewarm sends one message covering every requested format.
func (p *Prewarmer) EnqueuePrewarm(ctx context.Context, assetID string, formats []string, requestID string) error {
	if p == nil || p.Client == nil {
		return errors.New("prewarm queue not configured")
	}
	assetID = strings.TrimSpace(assetID)
	if assetID == "" || len(formats) == 0 {
		return errors.New("asset id and formats are required")
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	msg := Message{
		AssetID:    assetID,
		Formats:    append([]string(nil), formats...),
		RequestID:  requestID,
		EnqueuedAt: now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
	if err := p.Client.Send(ctx, msg); err != nil {
		telemetry.Error("queue.prewarm.send_failed", map[string]any{
			"asset_id":   assetID,
			"request_id": requestID,
			"error":      err,
		})
		return err
	}
	telemetry.Info("queue.prewarm.enqueued", map[string]any{
		"asset_id":   assetID,
		"formats":    msg.Formats,
		"request_id": requestID,
	})
	return nil
}
