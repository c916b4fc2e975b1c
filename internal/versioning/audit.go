package versioning

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/metriq/internal/domain"
)

// NewMetadata builds the metadata block for a freshly created entity:
// version 1.0.0 and one synthetic major entry with the "*" sentinel in
// fields_changed. Creation counts as the first history entry.
func NewMetadata(actor string, now time.Time) domain.VersionMetadata {
	return domain.VersionMetadata{
		Version:       InitialVersion,
		CreatedAt:     now,
		CreatedBy:     actor,
		LastUpdated:   now,
		LastUpdatedBy: actor,
		ChangeHistory: []domain.ChangeEntry{{
			Seq:            1,
			Version:        InitialVersion,
			Timestamp:      now,
			ChangedBy:      actor,
			ChangeType:     domain.SeverityMajor,
			ChangesSummary: "Created",
			FieldsChanged:  []string{domain.CreationFieldsSentinel},
		}},
	}
}

// Advance appends one audit entry for a classified change and returns the
// updated metadata block. The input block is treated as immutable: the
// returned value carries a new history slice and the caller's copy is never
// mutated in place. CreatedAt/CreatedBy are untouched after creation.
func Advance(meta domain.VersionMetadata, result Classification, summary, actor string, now time.Time) (domain.VersionMetadata, error) {
	if result.Severity == domain.SeverityNone {
		return domain.VersionMetadata{}, fmt.Errorf("cannot record an audit entry for an unchanged payload")
	}

	next, err := Bump(meta.Version, result.Severity)
	if err != nil {
		return domain.VersionMetadata{}, err
	}

	if summary == "" {
		summary = "Updated " + strings.Join(result.Fields, ", ")
	}

	entry := domain.ChangeEntry{
		Seq:            meta.NextSeq(),
		Version:        next,
		Timestamp:      now,
		ChangedBy:      actor,
		ChangeType:     result.Severity,
		ChangesSummary: summary,
		FieldsChanged:  append([]string(nil), result.Fields...),
	}

	history := make([]domain.ChangeEntry, 0, len(meta.ChangeHistory)+1)
	history = append(history, meta.ChangeHistory...)
	history = append(history, entry)

	meta.Version = next
	meta.LastUpdated = now
	meta.LastUpdatedBy = actor
	meta.ChangeHistory = history
	return meta, nil
}
