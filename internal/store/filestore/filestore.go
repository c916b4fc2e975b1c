// Package filestore persists one whole collection as a single JSON document
// on disk. Every mutating call is a read-modify-write cycle over the full
// document under a collection-wide guard; the write itself is a temp-file
// plus rename, so a crash mid-write always leaves the prior complete
// document behind.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"

	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/store"
)

// guardKey is the single key mutations contend on: the unit of persistence
// is the whole document, not a per-row resource.
const guardKey = "collection"

// document is the persisted layout: the collection name and an array of
// entities with version metadata inlined.
type document struct {
	Collection string          `json:"collection"`
	Entities   []domain.Entity `json:"entities"`
}

// Store implements store.EntityStore over a single JSON document.
type Store struct {
	path   string
	schema *domain.Schema
	guard  *store.Guard
	now    func() time.Time
}

// Option customizes a file store.
type Option func(*Store)

// WithClock injects the timestamp source, used by tests to pin audit
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithGuardWait bounds how long mutations wait for the collection guard.
func WithGuardWait(maxWait time.Duration) Option {
	return func(s *Store) {
		s.guard = store.NewGuard(maxWait)
	}
}

// New creates a file-backed store for one collection document. The document
// is created lazily on the first mutation.
func New(path string, schema *domain.Schema, opts ...Option) *Store {
	s := &Store{
		path:   path,
		schema: schema,
		guard:  store.NewGuard(0),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create appends a new entity to the document.
func (s *Store) Create(ctx context.Context, id string, fields map[string]any, actor string) (domain.Entity, error) {
	release, err := s.guard.Acquire(ctx, guardKey)
	if err != nil {
		return domain.Entity{}, err
	}
	defer release()

	doc, err := s.load()
	if err != nil {
		return domain.Entity{}, err
	}
	if _, ok := indexOf(doc, id); ok {
		return domain.Entity{}, fmt.Errorf("create %s %q: %w", s.schema.Collection(), id, domain.ErrConflict)
	}

	entity, err := store.NewEntity(s.schema, id, fields, actor, s.now())
	if err != nil {
		return domain.Entity{}, err
	}

	doc.Entities = append(doc.Entities, entity)
	if err := s.commit(ctx, doc); err != nil {
		return domain.Entity{}, err
	}
	return entity.Clone(), nil
}

// Get reads the entity without touching the guard. Thanks to the atomic
// rename, an unguarded read always sees either the old or the new complete
// document.
func (s *Store) Get(ctx context.Context, id string) (domain.Entity, error) {
	doc, err := s.load()
	if err != nil {
		return domain.Entity{}, err
	}
	idx, ok := indexOf(doc, id)
	if !ok {
		return domain.Entity{}, fmt.Errorf("get %s %q: %w", s.schema.Collection(), id, domain.ErrNotFound)
	}
	return doc.Entities[idx].Clone(), nil
}

// Update runs the shared classification pipeline over the stored entity and
// rewrites the document only when the payload actually changed something.
func (s *Store) Update(ctx context.Context, id string, partial map[string]any, actor string) (domain.Entity, bool, error) {
	release, err := s.guard.Acquire(ctx, guardKey)
	if err != nil {
		return domain.Entity{}, false, err
	}
	defer release()

	doc, err := s.load()
	if err != nil {
		return domain.Entity{}, false, err
	}
	idx, ok := indexOf(doc, id)
	if !ok {
		return domain.Entity{}, false, fmt.Errorf("update %s %q: %w", s.schema.Collection(), id, domain.ErrNotFound)
	}

	updated, changed, err := store.ApplyUpdate(s.schema, doc.Entities[idx], partial, actor, s.now())
	if err != nil {
		return domain.Entity{}, false, err
	}
	if !changed {
		return updated.Clone(), false, nil
	}

	doc.Entities[idx] = updated
	if err := s.commit(ctx, doc); err != nil {
		return domain.Entity{}, false, err
	}
	return updated.Clone(), true, nil
}

// Delete removes the entity and its entire history from the document.
func (s *Store) Delete(ctx context.Context, id string, _ string) error {
	release, err := s.guard.Acquire(ctx, guardKey)
	if err != nil {
		return err
	}
	defer release()

	doc, err := s.load()
	if err != nil {
		return err
	}
	idx, ok := indexOf(doc, id)
	if !ok {
		return fmt.Errorf("delete %s %q: %w", s.schema.Collection(), id, domain.ErrNotFound)
	}

	doc.Entities = append(doc.Entities[:idx], doc.Entities[idx+1:]...)
	return s.commit(ctx, doc)
}

// List yields matching entities in document order. The document is re-read
// on every range, so the sequence is restartable and always reflects the
// collection at the time of iteration.
func (s *Store) List(_ context.Context, filter domain.Filter) iter.Seq2[domain.Entity, error] {
	return func(yield func(domain.Entity, error) bool) {
		doc, err := s.load()
		if err != nil {
			yield(domain.Entity{}, err)
			return
		}
		for _, entity := range doc.Entities {
			if !filter.Matches(entity) {
				continue
			}
			if !yield(entity.Clone(), nil) {
				return
			}
		}
	}
}

// Restore upserts entities with their version metadata preserved verbatim.
// Used by the import path; the classification pipeline is bypassed.
func (s *Store) Restore(ctx context.Context, entities []domain.Entity) error {
	release, err := s.guard.Acquire(ctx, guardKey)
	if err != nil {
		return err
	}
	defer release()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for _, entity := range entities {
		entity.Collection = s.schema.Collection()
		if idx, ok := indexOf(doc, entity.ID); ok {
			doc.Entities[idx] = entity.Clone()
		} else {
			doc.Entities = append(doc.Entities, entity.Clone())
		}
	}
	return s.commit(ctx, doc)
}

func indexOf(doc *document, id string) (int, bool) {
	for i, entity := range doc.Entities {
		if entity.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{Collection: s.schema.Collection()}, nil
		}
		return nil, fmt.Errorf("failed to read %s document: %w", s.schema.Collection(), err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s document: %w", s.schema.Collection(), err)
	}
	return &doc, nil
}

// commit writes the document to a temporary file in the same directory and
// renames it over the target path. The rename is the commit point: readers
// see either the prior or the new complete document, never a truncated one.
// The caller context is re-checked first so an operation whose caller has
// already given up is never committed.
func (s *Store) commit(ctx context.Context, doc *document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w before commit: %v", domain.ErrGuardTimeout, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s document: %w", s.schema.Collection(), err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp document: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp document: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace %s document: %w", s.schema.Collection(), err)
	}
	return nil
}
