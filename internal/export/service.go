// Package export moves whole collections between backends. A Document is a
// lossless snapshot: importing it into the other backend preserves version
// and change history exactly, which is what makes the two persisted layouts
// interconvertible.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/store"
)

// Document is the portable snapshot of one collection.
type Document struct {
	SnapshotID string          `json:"snapshot_id"`
	Collection string          `json:"collection"`
	ExportedAt time.Time       `json:"exported_at"`
	Entities   []domain.Entity `json:"entities"`
}

// Service exports and imports collection snapshots.
type Service struct {
	now func() time.Time
}

// Option customizes the service.
type Option func(*Service)

// WithClock injects the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates an export service.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export snapshots every entity of a collection, metadata included.
func (s *Service) Export(ctx context.Context, st store.EntityStore, collection string) (Document, error) {
	doc := Document{
		SnapshotID: uuid.NewString(),
		Collection: collection,
		ExportedAt: s.now(),
		Entities:   []domain.Entity{},
	}
	for entity, err := range st.List(ctx, domain.Filter{}) {
		if err != nil {
			return Document{}, fmt.Errorf("failed to export %s: %w", collection, err)
		}
		doc.Entities = append(doc.Entities, entity)
	}
	return doc, nil
}

// Import restores a snapshot into a store, preserving each entity's version
// metadata verbatim. The target backend must support restoration.
func (s *Service) Import(ctx context.Context, st store.EntityStore, doc Document) error {
	restorer, ok := st.(store.Restorer)
	if !ok {
		return fmt.Errorf("store for %s does not support import", doc.Collection)
	}
	if err := restorer.Restore(ctx, doc.Entities); err != nil {
		return fmt.Errorf("failed to import %s snapshot %s: %w", doc.Collection, doc.SnapshotID, err)
	}
	return nil
}

// WriteFile persists a snapshot as indented JSON, using the same temp-file
// plus rename discipline as the file backend so a crash never truncates an
// existing snapshot.
func WriteFile(doc Document, path string) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return doc, nil
}
