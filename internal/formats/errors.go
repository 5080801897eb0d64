package formats

import (
	"errors"
	"fmt"

	"brandkit-backend/internal/imageconv"
)

var (
	ErrAssetNotFound         = errors.New("asset not found")
	ErrFormatNotFound        = errors.New("format not generated")
	ErrOriginalURLMissing    = errors.New("original url missing")
	ErrUnsupportedConversion = errors.New("unsupported conversion")
	ErrStoreWriteFailed      = errors.New("store write failed")
	ErrNotConfigured         = errors.New("format manager not configured")
	ErrInvalidInput          = errors.New("invalid input")

	// Converter failures are propagated as-is.
	ErrDecodeFailed    = imageconv.ErrDecodeFailed
	ErrEncodedTooLarge = imageconv.ErrEncodedTooLarge
)

// ResolveError carries the asset and format a failure belongs to.
type ResolveError struct {
	AssetID string
	Format  string
	Op      string
	Err     error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s for asset %s: %s: %v", e.Format, e.AssetID, e.Op, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Kind returns the error code string for err, or "internal" when it matches no known kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrAssetNotFound):
		return "asset_not_found"
	case errors.Is(err, ErrFormatNotFound):
		return "format_not_found"
	case errors.Is(err, ErrOriginalURLMissing):
		return "original_url_missing"
	case errors.Is(err, ErrUnsupportedConversion), errors.Is(err, imageconv.ErrUnsupportedTargetFormat):
		return "unsupported_conversion"
	case errors.Is(err, ErrDecodeFailed):
		return "decode_failed"
	case errors.Is(err, ErrEncodedTooLarge):
		return "encoded_too_large"
	case errors.Is(err, ErrStoreWriteFailed):
		return "store_write_failed"
	case errors.Is(err, ErrNotConfigured):
		return "not_configured"
	case errors.Is(err, ErrInvalidInput):
		return "validation_error"
	default:
		return "internal"
	}
}
