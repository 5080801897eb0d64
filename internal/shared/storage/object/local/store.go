package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"brandkit-backend/internal/shared/storage/object"
	"brandkit-backend/internal/shared/util"
)

// Store implements ObjectStore using the local filesystem.
type Store struct {
	baseDir       string
	publicBaseURL string
}

// New creates a local object store rooted at baseDir whose objects are
// published under publicBaseURL (for example http://localhost:8080/files).
func New(baseDir, publicBaseURL string) *Store {
	return &Store{baseDir: baseDir, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Put writes the reader to disk at key, replacing any existing object.
// The write goes to a temp file first so readers never observe a partial object.
func (s *Store) Put(ctx context.Context, key string, contentType string, r io.Reader) (object.Ref, error) {
	if err := ctx.Err(); err != nil {
		return object.Ref{}, err
	}

	clean, err := util.CleanKey(key)
	if err != nil {
		return object.Ref{}, err
	}

	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return object.Ref{}, fmt.Errorf("mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return object.Ref{}, fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return object.Ref{}, fmt.Errorf("write body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return object.Ref{}, fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return object.Ref{}, fmt.Errorf("rename: %w", err)
	}

	return object.Ref{Key: clean, Size: written, ContentType: contentType}, nil
}

// Open opens a stored object for reading.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean, err := util.CleanKey(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.baseDir, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, object.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// PublicURL returns the URL the HTTP server exposes the object under.
func (s *Store) PublicURL(ctx context.Context, ref object.Ref) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := util.CleanKey(ref.Key)
	if err != nil {
		return "", err
	}
	return s.publicBaseURL + "/" + escapeKey(clean), nil
}

// KeyFromURL maps a URL produced by PublicURL back to its key.
func (s *Store) KeyFromURL(raw string) (string, bool) {
	prefix := s.publicBaseURL + "/"
	if s.publicBaseURL == "" || !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(raw, prefix)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	unescaped, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	clean, err := util.CleanKey(unescaped)
	if err != nil {
		return "", false
	}
	return clean, true
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

var (
	_ object.ObjectStore = (*Store)(nil)
	_ object.URLResolver = (*Store)(nil)
)
