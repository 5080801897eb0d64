package formats

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"brandkit-backend/internal/shared/storage/object"
)

const (
	defaultFetchMaxBytes  = 50 << 20
	defaultFetchCacheSize = 64
	// DefaultFetchCacheBytes caps the bytes held by the originals cache.
	DefaultFetchCacheBytes = 256 << 20
	defaultFetchTimeout    = 30 * time.Second
)

// FetcherOptions configures a SourceFetcher.
type FetcherOptions struct {
	// Store serves URLs it recognizes directly when it also implements object.URLResolver.
	Store      object.ObjectStore
	HTTPClient *http.Client
	Timeout    time.Duration
	// CacheSize is the number of originals kept in memory; negative disables the cache.
	CacheSize int
	// CacheBytes bounds the total size of cached originals. Zero means
	// DefaultFetchCacheBytes. Bodies larger than the budget are not cached.
	CacheBytes int64
	MaxBytes   int64
}

// SourceFetcher loads original bytes from the object store or over HTTP.
// Every failure is reported as ErrDecodeFailed.
type SourceFetcher struct {
	store    object.ObjectStore
	resolver object.URLResolver
	client   *http.Client
	cache    *sourceCache
	maxBytes int64
}

// NewSourceFetcher constructs a SourceFetcher.
func NewSourceFetcher(opts FetcherOptions) (*SourceFetcher, error) {
	f := &SourceFetcher{
		store:    opts.Store,
		client:   opts.HTTPClient,
		maxBytes: opts.MaxBytes,
	}
	if r, ok := opts.Store.(object.URLResolver); ok {
		f.resolver = r
	}
	if f.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		f.client = &http.Client{Timeout: timeout}
	}
	if f.maxBytes <= 0 {
		f.maxBytes = defaultFetchMaxBytes
	}

	size := opts.CacheSize
	if size == 0 {
		size = defaultFetchCacheSize
	}
	if size > 0 {
		budget := opts.CacheBytes
		if budget <= 0 {
			budget = DefaultFetchCacheBytes
		}
		cache, err := newSourceCache(size, budget)
		if err != nil {
			return nil, fmt.Errorf("create fetch cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch returns the bytes at rawURL.
func (f *SourceFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty url", ErrDecodeFailed)
	}
	if f.cache != nil {
		if data, ok := f.cache.get(rawURL); ok {
			return data, nil
		}
	}

	var (
		data []byte
		err  error
	)
	if key, ok := f.localKey(rawURL); ok {
		data, err = f.fromStore(ctx, key)
	} else {
		data, err = f.fromHTTP(ctx, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}

	if f.cache != nil {
		f.cache.add(rawURL, data)
	}
	return data, nil
}

func (f *SourceFetcher) localKey(rawURL string) (string, bool) {
	if f.store == nil || f.resolver == nil {
		return "", false
	}
	return f.resolver.KeyFromURL(rawURL)
}

func (f *SourceFetcher) fromStore(ctx context.Context, key string) ([]byte, error) {
	rc, err := f.store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	return f.readLimited(rc)
}

func (f *SourceFetcher) fromHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get original: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("get original: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, errOriginalTooLarge(f.maxBytes)
	}
	return f.readLimited(resp.Body)
}

func (f *SourceFetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read original: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errOriginalTooLarge(f.maxBytes)
	}
	return data, nil
}

func errOriginalTooLarge(limit int64) error {
	return fmt.Errorf("original exceeds %d bytes", limit)
}

// sourceCache is an LRU of original bytes bounded by entry count and by
// total bytes.
type sourceCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, []byte]
	used   int64
	budget int64
}

func newSourceCache(entries int, budget int64) (*sourceCache, error) {
	c := &sourceCache{budget: budget}
	l, err := lru.NewWithEvict[string, []byte](entries, func(_ string, data []byte) {
		c.used -= int64(len(data))
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

func (c *sourceCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *sourceCache) add(key string, data []byte) {
	size := int64(len(data))
	if size > c.budget {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	c.lru.Add(key, data)
	c.used += size
	for c.used > c.budget {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// usage reports the cached entry count and bytes.
func (c *sourceCache) usage() (int, int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.used
}
