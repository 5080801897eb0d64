// Package formats lazily converts asset originals into delivery formats and
// caches each rendition in the blob store with its entry on the asset record.
package formats

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"brandkit-backend/internal/assets"
	"brandkit-backend/internal/imageconv"
	"brandkit-backend/internal/shared/metrics"
	"brandkit-backend/internal/shared/storage/object"
	"brandkit-backend/internal/shared/telemetry"
)

const defaultPrewarmConcurrency = 2

// AssetStore reads asset records and writes single format entries.
type AssetStore interface {
	GetByID(ctx context.Context, id string) (assets.Asset, error)
	SetFormat(ctx context.Context, id, format string, entry assets.FormatEntry) error
}

// Converter re-encodes raster bytes into a target format.
type Converter interface {
	Convert(ctx context.Context, src []byte, target string) (imageconv.Result, error)
}

// Fetcher loads the bytes behind an original's URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options wires a Manager's collaborators.
type Options struct {
	Assets             AssetStore
	Blobs              object.ObjectStore
	Converter          Converter
	Fetcher            Fetcher
	Observer           Observer
	Now                func() time.Time
	PrewarmConcurrency int
}

// Manager implements the lazy generate-and-cache protocol. It holds no locks:
// concurrent misses for the same format both convert and upload, and the last
// entry write wins.
type Manager struct {
	assets             AssetStore
	blobs              object.ObjectStore
	converter          Converter
	fetcher            Fetcher
	observer           Observer
	now                func() time.Time
	prewarmConcurrency int
}

// NewManager constructs a Manager. Missing collaborators surface as
// ErrNotConfigured on first use.
func NewManager(opts Options) *Manager {
	m := &Manager{
		assets:             opts.Assets,
		blobs:              opts.Blobs,
		converter:          opts.Converter,
		fetcher:            opts.Fetcher,
		observer:           opts.Observer,
		now:                opts.Now,
		prewarmConcurrency: opts.PrewarmConcurrency,
	}
	if m.observer == nil {
		m.observer = nopObserver{}
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	if m.prewarmConcurrency <= 0 {
		m.prewarmConcurrency = defaultPrewarmConcurrency
	}
	return m
}

func (m *Manager) configured() error {
	if m == nil || m.assets == nil {
		return fmt.Errorf("%w: asset store", ErrNotConfigured)
	}
	if m.blobs == nil {
		return fmt.Errorf("%w: blob store", ErrNotConfigured)
	}
	if m.converter == nil {
		return fmt.Errorf("%w: converter", ErrNotConfigured)
	}
	if m.fetcher == nil {
		return fmt.Errorf("%w: fetcher", ErrNotConfigured)
	}
	return nil
}

// ResolveFormat returns the URL of assetID rendered as targetFormat,
// converting and caching it on first request.
func (m *Manager) ResolveFormat(ctx context.Context, assetID, targetFormat string) (string, error) {
	start := time.Now()
	format := Normalize(targetFormat)
	assetID = strings.TrimSpace(assetID)
	if m == nil {
		return "", &ResolveError{AssetID: assetID, Format: format, Op: "configure", Err: ErrNotConfigured}
	}

	url, outcome, err := m.resolve(ctx, assetID, format)
	if err != nil {
		outcome = metrics.OutcomeFailed
	}
	m.observer.RecordResolve(format, outcome, time.Since(start))
	m.logResolve(assetID, format, outcome, time.Since(start), err)
	return url, err
}

func (m *Manager) resolve(ctx context.Context, assetID, format string) (string, string, error) {
	fail := func(op string, err error) (string, string, error) {
		return "", metrics.OutcomeFailed, &ResolveError{AssetID: assetID, Format: format, Op: op, Err: err}
	}

	if err := m.configured(); err != nil {
		return fail("configure", err)
	}
	if assetID == "" || format == "" {
		return fail("validate", fmt.Errorf("%w: asset id and format are required", ErrInvalidInput))
	}
	if !Valid(format) {
		return fail("validate", fmt.Errorf("%w: unknown format %q", ErrUnsupportedConversion, format))
	}

	asset, err := m.load(ctx, assetID)
	if err != nil {
		return fail("load", err)
	}

	if format == Original {
		if asset.FileURL == "" {
			return fail("original", ErrOriginalURLMissing)
		}
		return asset.FileURL, metrics.OutcomeOriginal, nil
	}

	if entry, ok := asset.AvailableFormats[format]; ok && entry.URL != "" {
		return entry.URL, metrics.OutcomeHit, nil
	}

	if asset.FileURL == "" {
		return fail("original", ErrOriginalURLMissing)
	}
	if IsSVG(asset.FileType, asset.FileURL) {
		if format == SVG {
			return asset.FileURL, metrics.OutcomeVector, nil
		}
		return fail("guard", fmt.Errorf("%w: cannot rasterize a vector source", ErrUnsupportedConversion))
	}
	if format == SVG {
		return fail("guard", fmt.Errorf("%w: cannot vectorize a raster source", ErrUnsupportedConversion))
	}

	src, err := m.fetcher.Fetch(ctx, asset.FileURL)
	if err != nil {
		if !errors.Is(err, ErrDecodeFailed) {
			err = fmt.Errorf("%w: %w", ErrDecodeFailed, err)
		}
		m.observer.RecordConversion(format, 0, err)
		return fail("fetch", err)
	}

	res, err := m.converter.Convert(ctx, src, format)
	m.observer.RecordConversion(format, res.Size, err)
	if err != nil {
		return fail("convert", err)
	}

	key := StoragePath(asset.Category, assetID, format)
	ref, err := m.blobs.Put(ctx, key, ContentType(format), bytes.NewReader(res.Data))
	if err != nil {
		return fail("upload", fmt.Errorf("%w: %w", ErrStoreWriteFailed, err))
	}
	url, err := m.blobs.PublicURL(ctx, ref)
	if err != nil {
		return fail("upload", fmt.Errorf("%w: %w", ErrStoreWriteFailed, err))
	}

	size := res.Size
	generatedAt := m.now().UTC()
	entry := assets.FormatEntry{URL: url, Format: format, Size: &size, GeneratedAt: &generatedAt}
	if err := m.assets.SetFormat(ctx, assetID, format, entry); err != nil {
		// The uploaded blob stays behind unreferenced.
		return fail("record", fmt.Errorf("%w: %w", ErrStoreWriteFailed, err))
	}
	return url, metrics.OutcomeMiss, nil
}

func (m *Manager) load(ctx context.Context, assetID string) (assets.Asset, error) {
	asset, err := m.assets.GetByID(ctx, assetID)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return assets.Asset{}, ErrAssetNotFound
		}
		return assets.Asset{}, err
	}
	return asset, nil
}

func (m *Manager) logResolve(assetID, format, outcome string, elapsed time.Duration, err error) {
	fields := map[string]any{
		"asset_id":    assetID,
		"format":      format,
		"outcome":     outcome,
		"duration_ms": elapsed.Milliseconds(),
	}
	if err == nil {
		telemetry.Info("formats.resolve", fields)
		return
	}
	fields["error"] = err
	fields["kind"] = Kind(err)
	if Kind(err) == "internal" || errors.Is(err, ErrStoreWriteFailed) {
		telemetry.Error("formats.resolve_failed", fields)
		return
	}
	telemetry.Warn("formats.resolve_failed", fields)
}

// FormatInfo returns the cached entry for format, or the synthesized original
// entry. It never generates anything.
func (m *Manager) FormatInfo(ctx context.Context, assetID, format string) (assets.FormatEntry, error) {
	if m == nil || m.assets == nil {
		return assets.FormatEntry{}, fmt.Errorf("%w: asset store", ErrNotConfigured)
	}
	format = Normalize(format)
	if strings.TrimSpace(assetID) == "" || format == "" {
		return assets.FormatEntry{}, ErrInvalidInput
	}
	asset, err := m.load(ctx, assetID)
	if err != nil {
		return assets.FormatEntry{}, err
	}
	if format == Original {
		if asset.FileURL == "" {
			return assets.FormatEntry{}, ErrFormatNotFound
		}
		return asset.OriginalEntry(), nil
	}
	entry, ok := asset.AvailableFormats[format]
	if !ok || entry.URL == "" {
		return assets.FormatEntry{}, ErrFormatNotFound
	}
	return entry, nil
}

// IsFormatAvailable reports whether FormatInfo would find an entry. A missing
// asset reports false; other lookup failures are returned.
func (m *Manager) IsFormatAvailable(ctx context.Context, assetID, format string) (bool, error) {
	_, err := m.FormatInfo(ctx, assetID, format)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrFormatNotFound), errors.Is(err, ErrAssetNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Summary is the format view of one asset.
type Summary struct {
	AssetID         string                        `json:"assetId"`
	FileType        string                        `json:"fileType"`
	Formats         map[string]assets.FormatEntry `json:"formats"`
	DownloadOptions []string                      `json:"downloadOptions"`
}

// Summarize loads the asset once and returns its cached formats merged with
// the original entry, plus the download options for its file type.
func (m *Manager) Summarize(ctx context.Context, assetID string) (Summary, error) {
	if m == nil || m.assets == nil {
		return Summary{}, fmt.Errorf("%w: asset store", ErrNotConfigured)
	}
	if strings.TrimSpace(assetID) == "" {
		return Summary{}, ErrInvalidInput
	}
	asset, err := m.load(ctx, assetID)
	if err != nil {
		return Summary{}, err
	}
	merged := make(map[string]assets.FormatEntry, len(asset.AvailableFormats)+1)
	for k, v := range asset.AvailableFormats {
		merged[k] = v
	}
	merged[Original] = asset.OriginalEntry()
	return Summary{
		AssetID:         assetID,
		FileType:        asset.FileType,
		Formats:         merged,
		DownloadOptions: DownloadOptions(asset.FileType),
	}, nil
}

// ListAvailableFormats returns the cached formats plus the synthesized original.
func (m *Manager) ListAvailableFormats(ctx context.Context, assetID string) (map[string]assets.FormatEntry, error) {
	s, err := m.Summarize(ctx, assetID)
	if err != nil {
		return nil, err
	}
	return s.Formats, nil
}

// PrewarmResult is the outcome for one format of a Prewarm call.
type PrewarmResult struct {
	Format string `json:"format"`
	URL    string `json:"url,omitempty"`
	Err    error  `json:"-"`
}

// Prewarm resolves every format concurrently, bounded by the configured
// concurrency. One failing format does not stop the others; the returned
// error joins every failure.
func (m *Manager) Prewarm(ctx context.Context, assetID string, formats []string) ([]PrewarmResult, error) {
	wanted := dedupe(formats)
	if strings.TrimSpace(assetID) == "" || len(wanted) == 0 {
		return nil, fmt.Errorf("%w: asset id and at least one format are required", ErrInvalidInput)
	}

	results := make([]PrewarmResult, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency())
	for i, format := range wanted {
		i, format := i, format
		g.Go(func() error {
			url, err := m.ResolveFormat(gctx, assetID, format)
			results[i] = PrewarmResult{Format: format, URL: url, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return results, errors.Join(errs...)
}

func (m *Manager) concurrency() int {
	if m == nil || m.prewarmConcurrency <= 0 {
		return defaultPrewarmConcurrency
	}
	return m.prewarmConcurrency
}

func dedupe(formats []string) []string {
	seen := make(map[string]struct{}, len(formats))
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		n := Normalize(f)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
