// Package store defines the entity store contract shared by the file and
// relational backends, plus the classify→bump→append pipeline both delegate
// to. Keeping the pipeline here is what guarantees the two backends produce
// identical versions and change history for the same call sequence.
package store

import (
	"context"
	"iter"
	"time"

	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/versioning"
)

// EntityStore is the full programmatic surface consumed by outer layers.
// Mutating operations on the same id are strictly serialized; Get and List
// never block on the guard and observe either the pre- or post-update state
// of an in-flight write, never a partial one.
type EntityStore interface {
	// Create initializes version metadata per the creation rules and fails
	// with domain.ErrConflict when the natural id already exists.
	Create(ctx context.Context, id string, fields map[string]any, actor string) (domain.Entity, error)

	// Get fails with domain.ErrNotFound when the id is absent.
	Get(ctx context.Context, id string) (domain.Entity, error)

	// Update runs the classification pipeline against current state. A
	// payload that classifies to zero changed fields returns the unchanged
	// entity with changed=false and performs no persistence write.
	Update(ctx context.Context, id string, partial map[string]any, actor string) (entity domain.Entity, changed bool, err error)

	// Delete removes the entity and its entire history. Deletion is not
	// versioned and leaves no tombstone.
	Delete(ctx context.Context, id string, actor string) error

	// List yields entities matching the filter. The sequence is lazy and
	// restartable: each range re-reads the backing collection.
	List(ctx context.Context, filter domain.Filter) iter.Seq2[domain.Entity, error]
}

// Restorer is the optional import surface used by the export/import service
// to move whole collections between backends. Restored entities keep their
// version metadata verbatim; the pipeline is bypassed.
type Restorer interface {
	Restore(ctx context.Context, entities []domain.Entity) error
}

// NewEntity validates a creation payload against the schema and assembles
// the entity with its initial metadata block. Classification is bypassed on
// creation; the synthetic history entry is fixed at major with the "*"
// sentinel.
func NewEntity(schema *domain.Schema, id string, fields map[string]any, actor string, now time.Time) (domain.Entity, error) {
	if id == "" {
		return domain.Entity{}, &domain.ValidationError{Reason: "entity id is required"}
	}
	if err := versioning.NewClassifier(schema).Validate(fields); err != nil {
		return domain.Entity{}, err
	}
	return domain.Entity{
		ID:         id,
		Collection: schema.Collection(),
		Fields:     domain.CloneFields(fields),
		Meta:       versioning.NewMetadata(actor, now),
	}, nil
}

// ApplyUpdate runs the full pipeline for one update: classify the partial
// payload against current state, short-circuit no-ops, bump the version and
// append the audit entry. The returned entity is a new value; current is not
// mutated. changed=false is a distinguished successful outcome, not an
// error.
func ApplyUpdate(schema *domain.Schema, current domain.Entity, partial map[string]any, actor string, now time.Time) (domain.Entity, bool, error) {
	result, err := versioning.NewClassifier(schema).Classify(current.Fields, partial)
	if err != nil {
		return domain.Entity{}, false, err
	}
	if result.Severity == domain.SeverityNone {
		return current, false, nil
	}

	meta, err := versioning.Advance(current.Meta.Clone(), result, "", actor, now)
	if err != nil {
		return domain.Entity{}, false, err
	}

	updated := current.WithFields(partial)
	updated.Meta = meta
	return updated, true, nil
}
