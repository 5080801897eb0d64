// Package imageconv re-encodes raster images into the delivery formats served
// by the format cache.
package imageconv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"brandkit-backend/internal/shared/telemetry"
)

const (
	// DefaultMaxBytes caps the encoded output at 10 MiB.
	DefaultMaxBytes = 10 * 1024 * 1024

	jpegQuality = 92
	webpQuality = 85
)

var (
	ErrDecodeFailed            = errors.New("decode failed")
	ErrUnsupportedTargetFormat = errors.New("unsupported target format")
	ErrEncodedTooLarge         = errors.New("encoded output too large")
)

// Result is a converted rendition.
type Result struct {
	Data        []byte
	Size        int64
	Width       int
	Height      int
	ContentType string
}

// Converter decodes any registered raster format and encodes png, jpg/jpeg or webp.
type Converter struct {
	// MaxBytes overrides DefaultMaxBytes when positive.
	MaxBytes int64
}

// New returns a Converter with the default size cap.
func New() *Converter {
	return &Converter{MaxBytes: DefaultMaxBytes}
}

// Supported reports whether target is an encodable format token.
func Supported(target string) bool {
	_, ok := contentTypes[normalize(target)]
	return ok
}

var contentTypes = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// Convert decodes src and re-encodes it as target. The size cap is checked
// after encoding, so oversized outputs are fully encoded before being rejected.
func (c *Converter) Convert(ctx context.Context, src []byte, target string) (Result, error) {
	format := normalize(target)
	contentType, ok := contentTypes[format]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedTargetFormat, target)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(src) == 0 {
		return Result{}, fmt.Errorf("%w: empty source", ErrDecodeFailed)
	}

	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Result{}, fmt.Errorf("%w: empty image", ErrDecodeFailed)
	}

	limit := c.limit()
	if surface := int64(width) * int64(height) * 4; surface > limit {
		telemetry.Warn("imageconv.large_surface", map[string]any{
			"width":         width,
			"height":        height,
			"surface_bytes": surface,
			"max_bytes":     limit,
			"format":        format,
		})
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	surface := imaging.Clone(img)
	var buf bytes.Buffer
	if err := encode(&buf, surface, format); err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", format, err)
	}

	size := int64(buf.Len())
	if size > limit {
		return Result{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrEncodedTooLarge, size, limit)
	}

	return Result{
		Data:        buf.Bytes(),
		Size:        size,
		Width:       width,
		Height:      height,
		ContentType: contentType,
	}, nil
}

func encode(buf *bytes.Buffer, img *image.NRGBA, format string) error {
	switch format {
	case "png":
		return imaging.Encode(buf, img, imaging.PNG)
	case "jpg", "jpeg":
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	case "webp":
		return webp.Encode(buf, img, &webp.Options{Lossless: false, Quality: webpQuality})
	default:
		return ErrUnsupportedTargetFormat
	}
}

func (c *Converter) limit() int64 {
	if c == nil || c.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return c.MaxBytes
}

func normalize(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
