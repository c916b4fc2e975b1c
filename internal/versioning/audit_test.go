package versioning

import (
	"reflect"
	"testing"
	"time"

	"github.com/rpattn/metriq/internal/domain"
)

var auditTime = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func TestNewMetadata(t *testing.T) {
	meta := NewMetadata("alice", auditTime)

	if meta.Version != "1.0.0" {
		t.Errorf("version = %s, want 1.0.0", meta.Version)
	}
	if meta.CreatedBy != "alice" || meta.LastUpdatedBy != "alice" {
		t.Errorf("creation attribution wrong: created_by=%s last_updated_by=%s", meta.CreatedBy, meta.LastUpdatedBy)
	}
	if !meta.CreatedAt.Equal(auditTime) || !meta.LastUpdated.Equal(auditTime) {
		t.Errorf("creation timestamps wrong: %v / %v", meta.CreatedAt, meta.LastUpdated)
	}
	if len(meta.ChangeHistory) != 1 {
		t.Fatalf("expected one synthetic creation entry, got %d", len(meta.ChangeHistory))
	}

	entry := meta.ChangeHistory[0]
	if entry.Seq != 1 {
		t.Errorf("creation seq = %d, want 1", entry.Seq)
	}
	if entry.ChangeType != domain.SeverityMajor {
		t.Errorf("creation change type = %s, want major", entry.ChangeType)
	}
	if !reflect.DeepEqual(entry.FieldsChanged, []string{"*"}) {
		t.Errorf("creation fields_changed = %v, want [*]", entry.FieldsChanged)
	}
}

func TestAdvance(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	later := auditTime.Add(time.Hour)

	next, err := Advance(meta, Classification{
		Fields:   []string{"name"},
		Severity: domain.SeverityMinor,
	}, "", "bob", later)
	if err != nil {
		t.Fatalf("unexpected advance error: %v", err)
	}

	if next.Version != "1.1.0" {
		t.Errorf("version = %s, want 1.1.0", next.Version)
	}
	if next.LastUpdatedBy != "bob" || !next.LastUpdated.Equal(later) {
		t.Errorf("last update attribution wrong: %s at %v", next.LastUpdatedBy, next.LastUpdated)
	}
	if next.CreatedBy != "alice" || !next.CreatedAt.Equal(auditTime) {
		t.Errorf("creation attribution must be untouched: %s at %v", next.CreatedBy, next.CreatedAt)
	}
	if len(next.ChangeHistory) != 2 {
		t.Fatalf("history length = %d, want 2", len(next.ChangeHistory))
	}

	entry := next.ChangeHistory[1]
	if entry.Seq != 2 {
		t.Errorf("seq = %d, want 2", entry.Seq)
	}
	if entry.Version != "1.1.0" {
		t.Errorf("entry version = %s, want 1.1.0", entry.Version)
	}
	if entry.ChangesSummary != "Updated name" {
		t.Errorf("default summary = %q", entry.ChangesSummary)
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	historyBefore := len(meta.ChangeHistory)
	versionBefore := meta.Version

	if _, err := Advance(meta, Classification{
		Fields:   []string{"formula"},
		Severity: domain.SeverityMajor,
	}, "", "bob", auditTime.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected advance error: %v", err)
	}

	if len(meta.ChangeHistory) != historyBefore {
		t.Errorf("input history mutated: %d entries", len(meta.ChangeHistory))
	}
	if meta.Version != versionBefore {
		t.Errorf("input version mutated: %s", meta.Version)
	}
}

func TestAdvanceSummaryDefaultJoinsFields(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	next, err := Advance(meta, Classification{
		Fields:   []string{"name", "tags"},
		Severity: domain.SeverityMinor,
	}, "", "bob", auditTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected advance error: %v", err)
	}
	if got := next.ChangeHistory[1].ChangesSummary; got != "Updated name, tags" {
		t.Errorf("summary = %q, want %q", got, "Updated name, tags")
	}
}

func TestAdvanceKeepsCallerSummary(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	next, err := Advance(meta, Classification{
		Fields:   []string{"owner"},
		Severity: domain.SeverityPatch,
	}, "Handover to finance", "bob", auditTime.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected advance error: %v", err)
	}
	if got := next.ChangeHistory[1].ChangesSummary; got != "Handover to finance" {
		t.Errorf("summary = %q", got)
	}
}

func TestAdvanceRejectsNone(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	if _, err := Advance(meta, Classification{Severity: domain.SeverityNone}, "", "bob", auditTime); err == nil {
		t.Fatal("expected error advancing with none severity")
	}
}

func TestAdvancePropagatesVersioningError(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	meta.Version = "not-a-version"

	_, err := Advance(meta, Classification{
		Fields:   []string{"name"},
		Severity: domain.SeverityMinor,
	}, "", "bob", auditTime)
	if err == nil {
		t.Fatal("expected versioning error")
	}
	if !domain.IsVersioning(err) {
		t.Errorf("expected VersioningError, got %v", err)
	}
}

func TestVersionFoldsOverSeverities(t *testing.T) {
	meta := NewMetadata("alice", auditTime)
	severities := []domain.Severity{
		domain.SeverityMinor,
		domain.SeverityMajor,
		domain.SeverityPatch,
		domain.SeverityPatch,
		domain.SeverityMinor,
	}

	now := auditTime
	for i, sev := range severities {
		now = now.Add(time.Minute)
		next, err := Advance(meta, Classification{Fields: []string{"name"}, Severity: sev}, "", "bob", now)
		if err != nil {
			t.Fatalf("advance %d failed: %v", i, err)
		}
		meta = next
	}

	// 1.0.0 -> 1.1.0 -> 2.0.0 -> 2.0.1 -> 2.0.2 -> 2.1.0
	if meta.Version != "2.1.0" {
		t.Errorf("folded version = %s, want 2.1.0", meta.Version)
	}
	if len(meta.ChangeHistory) != len(severities)+1 {
		t.Errorf("history length = %d, want %d", len(meta.ChangeHistory), len(severities)+1)
	}
	for i, entry := range meta.ChangeHistory {
		if entry.Seq != int64(i+1) {
			t.Errorf("entry %d seq = %d, want %d", i, entry.Seq, i+1)
		}
	}
}
