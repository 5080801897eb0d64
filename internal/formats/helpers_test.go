package formats

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"brandkit-backend/internal/assets"
	"brandkit-backend/internal/imageconv"
	"brandkit-backend/internal/shared/storage/docstore"
	"brandkit-backend/internal/shared/storage/object"
)

var fixedNow = time.Date(2026, time.March, 4, 10, 30, 0, 0, time.UTC)

type setCall struct {
	ID     string
	Format string
	Entry  assets.FormatEntry
}

// countingAssets wraps the real repo over an in-memory document store.
type countingAssets struct {
	repo *assets.Repo

	mu     sync.Mutex
	gets   int
	sets   []setCall
	getErr error
	setErr error
}

func (c *countingAssets) GetByID(ctx context.Context, id string) (assets.Asset, error) {
	c.mu.Lock()
	c.gets++
	err := c.getErr
	c.mu.Unlock()
	if err != nil {
		return assets.Asset{}, err
	}
	return c.repo.GetByID(ctx, id)
}

func (c *countingAssets) SetFormat(ctx context.Context, id, format string, entry assets.FormatEntry) error {
	c.mu.Lock()
	c.sets = append(c.sets, setCall{ID: id, Format: format, Entry: entry})
	err := c.setErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.repo.SetFormat(ctx, id, format, entry)
}

func (c *countingAssets) setCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets)
}

type fakeConverter struct {
	mu      sync.Mutex
	calls   int
	targets []string
	err     error
	// real, when set, performs an actual conversion.
	real *imageconv.Converter
}

func (f *fakeConverter) Convert(ctx context.Context, src []byte, target string) (imageconv.Result, error) {
	f.mu.Lock()
	f.calls++
	f.targets = append(f.targets, target)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return imageconv.Result{}, err
	}
	if f.real != nil {
		return f.real.Convert(ctx, src, target)
	}
	data := append([]byte(target+":"), src...)
	return imageconv.Result{Data: data, Size: int64(len(data)), Width: 1, Height: 1, ContentType: ContentType(target)}, nil
}

func (f *fakeConverter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type putCall struct {
	Key         string
	ContentType string
	Data        []byte
}

type fakeBlobs struct {
	mu     sync.Mutex
	puts   []putCall
	putErr error
	urlErr error
}

func (f *fakeBlobs) Put(ctx context.Context, key, contentType string, r io.Reader) (object.Ref, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return object.Ref{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return object.Ref{}, f.putErr
	}
	f.puts = append(f.puts, putCall{Key: key, ContentType: contentType, Data: data})
	return object.Ref{Key: key, Size: int64(len(data)), ContentType: contentType}, nil
}

func (f *fakeBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.puts) - 1; i >= 0; i-- {
		if f.puts[i].Key == key {
			return io.NopCloser(bytes.NewReader(f.puts[i].Data)), nil
		}
	}
	return nil, object.ErrNotFound
}

func (f *fakeBlobs) PublicURL(ctx context.Context, ref object.Ref) (string, error) {
	if f.urlErr != nil {
		return "", f.urlErr
	}
	return "https://blobs.test/" + ref.Key, nil
}

func (f *fakeBlobs) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	data  []byte
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordingObserver) RecordResolve(format, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, format+":"+outcome)
}

func (r *recordingObserver) RecordConversion(string, int64, error) {}

type fixture struct {
	manager   *Manager
	assets    *countingAssets
	repo      *assets.Repo
	converter *fakeConverter
	blobs     *fakeBlobs
	fetcher   *fakeFetcher
	observer  *recordingObserver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := assets.NewRepo(docstore.NewMemoryStore())
	f := &fixture{
		assets:    &countingAssets{repo: repo},
		repo:      repo,
		converter: &fakeConverter{},
		blobs:     &fakeBlobs{},
		fetcher:   &fakeFetcher{data: []byte("original-bytes")},
		observer:  &recordingObserver{},
	}
	f.manager = NewManager(Options{
		Assets:    f.assets,
		Blobs:     f.blobs,
		Converter: f.converter,
		Fetcher:   f.fetcher,
		Observer:  f.observer,
		Now:       func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) seed(t *testing.T, a assets.Asset) {
	t.Helper()
	if err := f.repo.Create(context.Background(), a); err != nil {
		t.Fatalf("seed asset %s: %v", a.ID, err)
	}
}

func (f *fixture) reload(t *testing.T, id string) assets.Asset {
	t.Helper()
	a, err := f.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload asset %s: %v", id, err)
	}
	return a
}

func pngAsset(id string) assets.Asset {
	return assets.Asset{
		ID:         id,
		Name:       "Primary logo",
		Category:   assets.CategoryLogo,
		FileURL:    "https://store/" + id + "/original.png",
		FileType:   "image/png",
		UploadedAt: fixedNow.Add(-time.Hour),
	}
}
