package formats

import (
	"path"
	"strings"

	"brandkit-backend/internal/assets"
)

// Format tokens accepted by ResolveFormat.
const (
	Original = "original"
	PNG      = "png"
	JPG      = "jpg"
	JPEG     = "jpeg"
	WebP     = "webp"
	SVG      = "svg"
)

const defaultCategory = assets.CategoryTemplate

var tokens = map[string]struct{}{
	Original: {}, PNG: {}, JPG: {}, JPEG: {}, WebP: {}, SVG: {},
}

// Normalize lowercases and trims a format token.
func Normalize(format string) string {
	return strings.ToLower(strings.TrimSpace(format))
}

// Valid reports whether the normalized token is a supported format.
func Valid(format string) bool {
	_, ok := tokens[format]
	return ok
}

// Extension maps a format to its file extension: jpg and jpeg share "jpg".
func Extension(format string) string {
	switch format {
	case JPG, JPEG:
		return "jpg"
	default:
		return format
	}
}

// ContentType maps a format to the MIME type used on upload.
func ContentType(format string) string {
	switch format {
	case JPG, JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	case SVG:
		return "image/svg+xml"
	default:
		return "image/png"
	}
}

// StoragePath returns assets/{category}/{assetID}/formats/{format}.{ext}.
// A blank category falls back to "template".
func StoragePath(category, assetID, format string) string {
	if strings.TrimSpace(category) == "" {
		category = defaultCategory
	}
	return path.Join("assets", category, assetID, "formats", format+"."+Extension(format))
}

// IsSVG reports whether the MIME type or URL of an original points at a vector source.
func IsSVG(fileType, fileURL string) bool {
	if strings.Contains(strings.ToLower(fileType), "svg") {
		return true
	}
	lower := strings.ToLower(fileURL)
	return strings.HasSuffix(lower, ".svg") || strings.Contains(lower, ".svg?")
}

// DownloadOptions lists the formats offered for a file type: none for
// non-images, svg only for vectors, and original plus the raster targets otherwise.
func DownloadOptions(fileType string) []string {
	lower := strings.ToLower(strings.TrimSpace(fileType))
	if !strings.HasPrefix(lower, "image/") {
		return []string{}
	}
	if strings.Contains(lower, "svg") {
		return []string{SVG}
	}
	return []string{Original, PNG, JPG, WebP}
}
