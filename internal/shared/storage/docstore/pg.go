package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGStore implements Store on a Postgres JSONB table.
type PGStore struct {
	DB  *sql.DB
	now func() time.Time
}

// NewPGStore constructs a Postgres-backed document store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PGStore) Get(ctx context.Context, collection, id string) (Document, error) {
	doc := Document{Collection: collection, ID: id}
	var data []byte
	row := s.DB.QueryRowContext(ctx, `
SELECT data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err := row.Scan(&data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.Data = json.RawMessage(data)
	return doc, nil
}

func (s *PGStore) Create(ctx context.Context, collection, id string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := s.now()
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO documents (collection, id, data, created_at, updated_at)
VALUES ($1, $2, $3::jsonb, $4, $4)
ON CONFLICT (collection, id) DO NOTHING`, collection, id, string(raw), now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Update runs one jsonb_set statement per field inside a single transaction.
func (s *PGStore) Update(ctx context.Context, collection, id string, fields map[string]any) (err error) {
	paths, err := sortedPaths(fields)
	if err != nil {
		return err
	}
	values := make([]string, len(paths))
	for i, p := range paths {
		raw, err := json.Marshal(fields[p])
		if err != nil {
			return fmt.Errorf("encode field %s: %w", p, err)
		}
		values[i] = string(raw)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := s.now()
	for i, p := range paths {
		segs, _ := SplitPath(p)
		expr, pathArgs := setExpr(segs, 4)
		args := append([]any{collection, id, now, values[i]}, pathArgs...)
		query := "UPDATE documents SET data = " + expr +
			", updated_at = $3 WHERE collection = $1 AND id = $2"
		res, execErr := tx.ExecContext(ctx, query, args...)
		if execErr != nil {
			err = fmt.Errorf("update %s: %w", p, execErr)
			return err
		}
		n, rowsErr := res.RowsAffected()
		if rowsErr != nil {
			err = rowsErr
			return err
		}
		if n == 0 {
			err = ErrNotFound
			return err
		}
	}
	err = tx.Commit()
	return err
}

func (s *PGStore) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	opts, err := normalizeListOptions(opts)
	if err != nil {
		return nil, err
	}
	query := `
SELECT id, data, created_at, updated_at FROM documents
WHERE collection = $1
ORDER BY ` + orderClause(opts) + `
LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, collection, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc := Document{Collection: collection}
		var data []byte
		if err := rows.Scan(&doc.ID, &data, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.Data = json.RawMessage(data)
		out = append(out, doc)
	}
	return out, rows.Err()
}

// setExpr builds a nested jsonb_set expression for segs. Every proper prefix is
// first coerced to an object so the leaf write never hits a scalar parent.
// The leaf value is bound at $valueParam; path arrays follow it.
func setExpr(segs []string, valueParam int) (string, []any) {
	expr := "data"
	args := []any{}
	next := valueParam + 1
	for depth := 1; depth < len(segs); depth++ {
		p := fmt.Sprintf("$%d::text[]", next)
		next++
		args = append(args, pathLiteral(segs[:depth]))
		expr = fmt.Sprintf(
			"jsonb_set(%s, %s, CASE WHEN jsonb_typeof(%s #> %s) = 'object' THEN %s #> %s ELSE '{}'::jsonb END, true)",
			expr, p, expr, p, expr, p)
	}
	leaf := fmt.Sprintf("$%d::text[]", next)
	args = append(args, pathLiteral(segs))
	expr = fmt.Sprintf("jsonb_set(%s, %s, $%d::jsonb, true)", expr, leaf, valueParam)
	return expr, args
}

// pathLiteral renders segments as a Postgres array literal. Segments are
// already restricted to characters that need no quoting.
func pathLiteral(segs []string) string {
	return "{" + strings.Join(segs, ",") + "}"
}

func orderClause(opts ListOptions) string {
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}
	if opts.OrderBy == "" {
		return "created_at " + dir + ", id " + dir
	}
	segs, _ := SplitPath(opts.OrderBy)
	field := "data #>> '" + pathLiteral(segs) + "'"
	if opts.OrderKind == OrderTime {
		field = "(" + field + ")::timestamptz"
	}
	// Missing values sort first ascending, matching MemoryStore.
	nulls := "NULLS FIRST"
	if opts.Desc {
		nulls = "NULLS LAST"
	}
	return field + " " + dir + " " + nulls + ", id " + dir
}

var _ Store = (*PGStore)(nil)
