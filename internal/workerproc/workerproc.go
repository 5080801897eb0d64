// Package workerproc validates prewarm queue messages and runs them against
// the format manager. Both the long-polling worker and the Lambda consumer use it.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"brandkit-backend/internal/formats"
	"brandkit-backend/internal/queue"
)

// Prewarmer generates formats for one asset.
type Prewarmer interface {
	Prewarm(ctx context.Context, assetID string, formats []string) ([]formats.PrewarmResult, error)
}

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrMissingAssetID indicates a message missing the asset id.
type ErrMissingAssetID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingAssetID) Error() string { return "missing asset id" }

// ErrMissingFormats indicates a message with no formats to generate.
type ErrMissingFormats struct {
	AssetID   string
	RequestID string
}

func (e ErrMissingFormats) Error() string { return "missing formats" }

// ErrProcess indicates processing failed after successful parsing.
// Permanent is set when retrying cannot change the outcome.
type ErrProcess struct {
	AssetID   string
	RequestID string
	Permanent bool
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process prewarm"
	}
	return "process prewarm: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.AssetID) == "" {
		return msg, meta, ErrMissingAssetID{Meta: meta, RequestID: msg.RequestID}
	}
	if len(msg.Formats) == 0 {
		return msg, meta, ErrMissingFormats{AssetID: msg.AssetID, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, p Prewarmer, body string) error {
	if p == nil {
		return errors.New("format manager not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}
	if strings.TrimSpace(msg.AssetID) == "" {
		return ErrMissingAssetID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	if _, err := p.Prewarm(ctx, msg.AssetID, msg.Formats); err != nil {
		return ErrProcess{AssetID: msg.AssetID, RequestID: msg.RequestID, Permanent: Permanent(err), Err: err}
	}
	return nil
}

// Unrecoverable reports whether a message that failed with err should be
// dropped instead of redelivered.
func Unrecoverable(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		noID    ErrMissingAssetID
		noFmt   ErrMissingFormats
		process ErrProcess
	)
	switch {
	case errors.As(err, &empty), errors.As(err, &decode), errors.As(err, &noID), errors.As(err, &noFmt):
		return true
	case errors.As(err, &process):
		return process.Permanent
	default:
		return false
	}
}

// Permanent reports whether every failure joined in err is one a retry cannot fix.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs := joined.Unwrap()
		if len(errs) == 0 {
			return false
		}
		for _, e := range errs {
			if !Permanent(e) {
				return false
			}
		}
		return true
	}
	return errors.Is(err, formats.ErrAssetNotFound) ||
		errors.Is(err, formats.ErrUnsupportedConversion) ||
		errors.Is(err, formats.ErrOriginalURLMissing) ||
		errors.Is(err, formats.ErrEncodedTooLarge) ||
		errors.Is(err, formats.ErrInvalidInput)
}
