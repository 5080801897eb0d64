package object

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Open when no object exists for the key.
var ErrNotFound = errors.New("object not found")

// Ref identifies an uploaded object.
type Ref struct {
	Key         string
	Size        int64
	ContentType string
}

// ObjectStore defines the contract for saving and retrieving binary objects by hierarchical key.
type ObjectStore interface {
	Put(ctx context.Context, key string, contentType string, r io.Reader) (Ref, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PublicURL(ctx context.Context, ref Ref) (string, error)
}

// URLResolver is implemented by stores that can map one of their public URLs back to a key.
type URLResolver interface {
	KeyFromURL(url string) (string, bool)
}
