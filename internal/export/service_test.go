package export

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/metriq/internal/catalog"
	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/store/filestore"
)

// readOnlyStore satisfies the store contract without the restore surface.
type readOnlyStore struct{}

func (readOnlyStore) Create(context.Context, string, map[string]any, string) (domain.Entity, error) {
	return domain.Entity{}, nil
}

func (readOnlyStore) Get(context.Context, string) (domain.Entity, error) {
	return domain.Entity{}, nil
}

func (readOnlyStore) Update(context.Context, string, map[string]any, string) (domain.Entity, bool, error) {
	return domain.Entity{}, false, nil
}

func (readOnlyStore) Delete(context.Context, string, string) error { return nil }

func (readOnlyStore) List(context.Context, domain.Filter) iter.Seq2[domain.Entity, error] {
	return func(func(domain.Entity, error) bool) {}
}

func seededStore(t *testing.T) *filestore.Store {
	t.Helper()
	ctx := context.Background()
	s := filestore.New(filepath.Join(t.TempDir(), "metrics.json"), catalog.MetricSchema())

	_, err := s.Create(ctx, "conversion-rate", map[string]any{
		"name":    "Conversion Rate",
		"formula": "A/B",
		"owner":   "alice",
		"tier":    "gold",
		"tags":    []any{"core"},
	}, "alice")
	require.NoError(t, err)
	_, _, err = s.Update(ctx, "conversion-rate", map[string]any{"name": "Conversion Rate (v2)"}, "bob")
	require.NoError(t, err)
	_, _, err = s.Update(ctx, "conversion-rate", map[string]any{"formula": "(A+B)/C"}, "carol")
	require.NoError(t, err)

	_, err = s.Create(ctx, "churn-rate", map[string]any{"name": "Churn Rate", "owner": "bob"}, "bob")
	require.NoError(t, err)

	return s
}

func TestExportSnapshot(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(WithClock(func() time.Time { return fixed }))

	doc, err := svc.Export(context.Background(), seededStore(t), catalog.CollectionMetrics)
	require.NoError(t, err)

	require.Equal(t, catalog.CollectionMetrics, doc.Collection)
	require.True(t, fixed.Equal(doc.ExportedAt))
	require.Len(t, doc.Entities, 2)

	_, err = uuid.Parse(doc.SnapshotID)
	require.NoError(t, err, "snapshot id must be a uuid")
}

// TestRoundTripAcrossStores: exporting from one file store and importing into
// a fresh one preserves versions and history verbatim.
func TestRoundTripAcrossStores(t *testing.T) {
	ctx := context.Background()
	svc := NewService()
	source := seededStore(t)

	doc, err := svc.Export(ctx, source, catalog.CollectionMetrics)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "metrics-snapshot.json")
	require.NoError(t, WriteFile(doc, path))

	loaded, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, doc.SnapshotID, loaded.SnapshotID)

	target := filestore.New(filepath.Join(t.TempDir(), "metrics.json"), catalog.MetricSchema())
	require.NoError(t, svc.Import(ctx, target, loaded))

	want, err := source.Get(ctx, "conversion-rate")
	require.NoError(t, err)
	got, err := target.Get(ctx, "conversion-rate")
	require.NoError(t, err)

	require.Equal(t, "2.0.0", got.Meta.Version)
	require.Equal(t, want.Meta.CreatedBy, got.Meta.CreatedBy)
	require.Equal(t, len(want.Meta.ChangeHistory), len(got.Meta.ChangeHistory))
	for i := range want.Meta.ChangeHistory {
		w, g := want.Meta.ChangeHistory[i], got.Meta.ChangeHistory[i]
		require.Equal(t, w.Seq, g.Seq)
		require.Equal(t, w.Version, g.Version)
		require.Equal(t, w.ChangedBy, g.ChangedBy)
		require.Equal(t, w.ChangeType, g.ChangeType)
		require.Equal(t, w.FieldsChanged, g.FieldsChanged)
		require.True(t, w.Timestamp.Equal(g.Timestamp))
	}

	// The imported entity keeps versioning from where the source left off.
	updated, changed, err := target.Update(ctx, "conversion-rate", map[string]any{"owner": "dana"}, "dana")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "2.0.1", updated.Meta.Version)
	require.EqualValues(t, 4, updated.Meta.ChangeHistory[3].Seq)
}

func TestImportRequiresRestorer(t *testing.T) {
	svc := NewService()
	err := svc.Import(context.Background(), readOnlyStore{}, Document{Collection: "metrics"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not support import")
}

func TestWriteFileDoesNotClobberOnEncodeError(t *testing.T) {
	// Snapshot writes go through a temp file; the target only ever holds a
	// complete document.
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	require.NoError(t, WriteFile(Document{Collection: "metrics"}, path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = ReadFile(path)
	require.NoError(t, err)
}

func TestWriteReport(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	doc, err := svc.Export(ctx, seededStore(t), catalog.CollectionMetrics)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, WriteReport(path, []Document{doc, {Collection: "domains"}}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"metrics", "domains"}, f.GetSheetList())

	rows, err := f.GetRows("metrics")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "ID", rows[0][0])
	require.Equal(t, "Version", rows[0][2])

	byID := map[string]string{}
	for _, row := range rows[1:] {
		byID[row[0]] = row[2]
	}
	require.Equal(t, "2.0.0", byID["conversion-rate"])
	require.Equal(t, "1.0.0", byID["churn-rate"])
}
