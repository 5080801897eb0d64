package assets

import (
	"context"
	"errors"
	"fmt"

	"brandkit-backend/internal/shared/storage/docstore"
)

// Repo persists asset records in the document store.
type Repo struct {
	Docs docstore.Store
}

// NewRepo constructs a Repo over docs.
func NewRepo(docs docstore.Store) *Repo {
	return &Repo{Docs: docs}
}

// Create stores a new asset record under a.ID.
func (r *Repo) Create(ctx context.Context, a Asset) error {
	if a.AvailableFormats == nil {
		a.AvailableFormats = map[string]FormatEntry{}
	}
	return r.Docs.Create(ctx, Collection, a.ID, a)
}

// GetByID loads one asset record.
func (r *Repo) GetByID(ctx context.Context, id string) (Asset, error) {
	doc, err := r.Docs.Get(ctx, Collection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return Asset{}, ErrNotFound
		}
		return Asset{}, err
	}
	return decodeAsset(doc)
}

// List returns assets newest upload first.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]Asset, error) {
	docs, err := r.Docs.List(ctx, Collection, docstore.ListOptions{
		OrderBy:   "uploadedAt",
		OrderKind: docstore.OrderTime,
		Desc:      true,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	out := make([]Asset, 0, len(docs))
	for _, doc := range docs {
		a, err := decodeAsset(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Update applies a partial update of top-level or dotted fields.
func (r *Repo) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := r.Docs.Update(ctx, Collection, id, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// SetFormat writes availableFormats.<format> without touching sibling entries.
func (r *Repo) SetFormat(ctx context.Context, id, format string, entry FormatEntry) error {
	return r.Update(ctx, id, map[string]any{"availableFormats." + format: entry})
}

func decodeAsset(doc docstore.Document) (Asset, error) {
	var a Asset
	if err := doc.Decode(&a); err != nil {
		return Asset{}, fmt.Errorf("decode asset %s: %w", doc.ID, err)
	}
	a.ID = doc.ID
	if a.AvailableFormats == nil {
		a.AvailableFormats = map[string]FormatEntry{}
	}
	return a, nil
}
