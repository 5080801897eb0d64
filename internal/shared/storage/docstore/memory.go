package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memoryEntry struct {
	data      map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*memoryEntry // collection -> id -> entry
	now  func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]*memoryEntry),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a copy of the stored document.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return entry.document(collection, id)
}

// Create stores data under id.
func (s *MemoryStore) Create(ctx context.Context, collection, id string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	generic, err := toGeneric(data)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	doc, ok := generic.(map[string]any)
	if !ok {
		return fmt.Errorf("document must encode to a JSON object")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	coll := s.data[collection]
	if coll == nil {
		coll = make(map[string]*memoryEntry)
		s.data[collection] = coll
	}
	if _, exists := coll[id]; exists {
		return ErrAlreadyExists
	}
	now := s.now()
	coll[id] = &memoryEntry{data: doc, createdAt: now, updatedAt: now}
	return nil
}

// Update applies the dotted-path fields to an existing document. All fields are
// validated and encoded before the document is touched.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	paths, err := sortedPaths(fields)
	if err != nil {
		return err
	}
	values := make([]any, len(paths))
	for i, p := range paths {
		v, err := toGeneric(fields[p])
		if err != nil {
			return fmt.Errorf("encode field %s: %w", p, err)
		}
		values[i] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	for i, p := range paths {
		segs, _ := SplitPath(p)
		applyPath(entry.data, segs, values[i])
	}
	entry.updatedAt = s.now()
	return nil
}

// List returns documents of a collection ordered per opts.
func (s *MemoryStore) List(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts, err := normalizeListOptions(opts)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type row struct {
		id    string
		entry *memoryEntry
	}
	rows := make([]row, 0, len(s.data[collection]))
	for id, entry := range s.data[collection] {
		rows = append(rows, row{id: id, entry: entry})
	}

	var segs []string
	if opts.OrderBy != "" {
		segs, _ = SplitPath(opts.OrderBy)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareEntries(rows[i].entry, rows[j].entry, segs, opts.OrderKind)
		if c == 0 {
			c = compareStrings(rows[i].id, rows[j].id)
		}
		if opts.Desc {
			return c > 0
		}
		return c < 0
	})

	if opts.Offset >= len(rows) {
		return []Document{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(rows) {
		end = len(rows)
	}

	out := make([]Document, 0, end-opts.Offset)
	for _, r := range rows[opts.Offset:end] {
		doc, err := r.entry.document(collection, r.id)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (e *memoryEntry) document(collection, id string) (Document, error) {
	raw, err := json.Marshal(e.data)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Collection: collection,
		ID:         id,
		Data:       raw,
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.updatedAt,
	}, nil
}

func compareEntries(a, b *memoryEntry, segs []string, kind OrderKind) int {
	if segs == nil {
		return compareTimes(a.createdAt, true, b.createdAt, true)
	}
	av, aok := lookupPath(a.data, segs)
	bv, bok := lookupPath(b.data, segs)
	if kind == OrderTime {
		at, aok := parseTime(av, aok)
		bt, bok := parseTime(bv, bok)
		return compareTimes(at, aok, bt, bok)
	}
	as, _ := av.(string)
	bs, _ := bv.(string)
	return compareStrings(as, bs)
}

func parseTime(v any, ok bool) (time.Time, bool) {
	if !ok {
		return time.Time{}, false
	}
	s, isString := v.(string)
	if !isString {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// compareTimes orders missing values before present ones.
func compareTimes(a time.Time, aok bool, b time.Time, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

var _ Store = (*MemoryStore)(nil)
