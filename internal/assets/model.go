package assets

import (
	"strings"
	"time"
)

// Collection is the document store collection holding asset records.
const Collection = "assets"

// Asset categories.
const (
	CategoryLogo       = "logo"
	CategoryTypography = "typography"
	CategoryColor      = "color"
	CategoryTemplate   = "template"
	CategoryIcon       = "icon"
)

var categories = map[string]struct{}{
	CategoryLogo:       {},
	CategoryTypography: {},
	CategoryColor:      {},
	CategoryTemplate:   {},
	CategoryIcon:       {},
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c string) bool {
	_, ok := categories[c]
	return ok
}

// NormalizeCategory lowercases and trims a category token.
func NormalizeCategory(c string) string {
	return strings.ToLower(strings.TrimSpace(c))
}

// FormatEntry is one cached rendition of an asset. Size and GeneratedAt are
// null on the synthesized "original" entry.
type FormatEntry struct {
	URL         string     `json:"url"`
	Format      string     `json:"format"`
	Size        *int64     `json:"size"`
	GeneratedAt *time.Time `json:"generatedAt"`
}

// Asset is one brand asset record. ID is the document key and is not stored in the body.
type Asset struct {
	ID               string                 `json:"-"`
	Name             string                 `json:"name"`
	Category         string                 `json:"category,omitempty"`
	FileName         string                 `json:"fileName,omitempty"`
	FileURL          string                 `json:"fileUrl,omitempty"`
	FileType         string                 `json:"fileType,omitempty"`
	StoragePath      string                 `json:"storagePath,omitempty"`
	UploadedBy       string                 `json:"uploadedBy,omitempty"`
	UploadedAt       time.Time              `json:"uploadedAt"`
	AvailableFormats map[string]FormatEntry `json:"availableFormats"`
}

// OriginalEntry synthesizes the read-only "original" format entry from the record.
func (a Asset) OriginalEntry() FormatEntry {
	entry := FormatEntry{URL: a.FileURL, Format: "original"}
	if !a.UploadedAt.IsZero() {
		ts := a.UploadedAt
		entry.GeneratedAt = &ts
	}
	return entry
}
