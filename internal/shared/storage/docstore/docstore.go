// Package docstore is a small document database: JSON documents addressed by
// (collection, id) with partial updates on dotted field paths.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no document exists for the collection and id.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates Create was called for an existing id.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrInvalidPath indicates a malformed field path or collection name.
	ErrInvalidPath = errors.New("invalid field path")
)

// Document is a stored record.
type Document struct {
	Collection string
	ID         string
	Data       json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode unmarshals the document data into dst.
func (d Document) Decode(dst any) error {
	if len(d.Data) == 0 {
		return json.Unmarshal([]byte("{}"), dst)
	}
	return json.Unmarshal(d.Data, dst)
}

// OrderKind selects how List compares the OrderBy field.
type OrderKind int

const (
	OrderText OrderKind = iota
	OrderTime
)

// ListOptions controls List ordering and paging. An empty OrderBy orders by creation time.
type ListOptions struct {
	OrderBy   string
	OrderKind OrderKind
	Desc      bool
	Limit     int
	Offset    int
}

// Store is the document store contract.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Create(ctx context.Context, collection, id string, data any) error
	// Update sets each field path to its value. A path like "availableFormats.webp"
	// replaces only that key, creating missing parent objects and leaving siblings intact.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	List(ctx context.Context, collection string, opts ListOptions) ([]Document, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func normalizeListOptions(opts ListOptions) (ListOptions, error) {
	if opts.OrderBy != "" {
		if _, err := SplitPath(opts.OrderBy); err != nil {
			return opts, err
		}
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	if opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return opts, nil
}
