// Package storetest holds the conformance suite every store backend must
// pass. The file and relational backends share their versioning pipeline;
// this suite pins the behavior that must not diverge between them: version
// bumps, history content, no-op handling and the error taxonomy.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/metriq/internal/domain"
	"github.com/rpattn/metriq/internal/store"
)

// Factory returns a fresh, empty store for the metrics schema.
type Factory func(t *testing.T) store.EntityStore

func metricFields() map[string]any {
	return map[string]any{
		"name":     "Conversion Rate",
		"formula":  "(A+B)/C",
		"unit":     "percent",
		"category": "growth",
		"owner":    "alice",
		"tier":     "gold",
		"tags":     []any{"core"},
	}
}

// Run executes the full conformance suite against a backend.
func Run(t *testing.T, factory Factory) {
	t.Run("CreateInitializesMetadata", func(t *testing.T) { testCreate(t, factory(t)) })
	t.Run("CreateConflict", func(t *testing.T) { testCreateConflict(t, factory(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, factory(t)) })
	t.Run("UpdateBumpScenarios", func(t *testing.T) { testUpdateScenarios(t, factory(t)) })
	t.Run("UpdateNoOp", func(t *testing.T) { testUpdateNoOp(t, factory(t)) })
	t.Run("UpdateValidation", func(t *testing.T) { testUpdateValidation(t, factory(t)) })
	t.Run("UpdateNotFound", func(t *testing.T) { testUpdateNotFound(t, factory(t)) })
	t.Run("DeleteRemovesHistory", func(t *testing.T) { testDelete(t, factory(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, factory(t)) })
	t.Run("ListRestartable", func(t *testing.T) { testListRestartable(t, factory(t)) })
	t.Run("ConcurrentUpdatesDistinctVersions", func(t *testing.T) { testConcurrentUpdates(t, factory(t)) })
}

func testCreate(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	entity, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	require.Equal(t, "conversion-rate", entity.ID)
	require.Equal(t, "1.0.0", entity.Meta.Version)
	require.Equal(t, "alice", entity.Meta.CreatedBy)
	require.Equal(t, "alice", entity.Meta.LastUpdatedBy)
	require.Len(t, entity.Meta.ChangeHistory, 1)
	require.Equal(t, domain.SeverityMajor, entity.Meta.ChangeHistory[0].ChangeType)
	require.Equal(t, []string{"*"}, entity.Meta.ChangeHistory[0].FieldsChanged)
	require.EqualValues(t, 1, entity.Meta.ChangeHistory[0].Seq)

	got, err := st.Get(ctx, "conversion-rate")
	require.NoError(t, err)
	require.Equal(t, entity.Meta.Version, got.Meta.Version)
	require.Equal(t, "Conversion Rate", got.Fields["name"])
}

func testCreateConflict(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	_, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	_, err = st.Create(ctx, "conversion-rate", metricFields(), "bob")
	require.ErrorIs(t, err, domain.ErrConflict)
}

func testGetNotFound(t *testing.T, st store.EntityStore) {
	_, err := st.Get(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// testUpdateScenarios walks the canonical bump sequence: minor rename, major
// formula change, patch tag change, covering the classification table end to
// end through a backend.
func testUpdateScenarios(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	_, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	entity, changed, err := st.Update(ctx, "conversion-rate", map[string]any{"name": "New Name"}, "bob")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "1.1.0", entity.Meta.Version)
	require.Len(t, entity.Meta.ChangeHistory, 2)
	require.Equal(t, domain.SeverityMinor, entity.Meta.ChangeHistory[1].ChangeType)
	require.Equal(t, []string{"name"}, entity.Meta.ChangeHistory[1].FieldsChanged)

	entity, changed, err = st.Update(ctx, "conversion-rate", map[string]any{"formula": "(A*B)/C"}, "bob")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "2.0.0", entity.Meta.Version)

	entity, changed, err = st.Update(ctx, "conversion-rate", map[string]any{"tags": []any{"finance"}}, "carol")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, "2.0.1", entity.Meta.Version)
	require.Len(t, entity.Meta.ChangeHistory, 4)
	require.Equal(t, "carol", entity.Meta.LastUpdatedBy)

	// History invariants: version matches last entry, seqs strictly increase.
	last := entity.Meta.ChangeHistory[len(entity.Meta.ChangeHistory)-1]
	require.Equal(t, entity.Meta.Version, last.Version)
	for i := 1; i < len(entity.Meta.ChangeHistory); i++ {
		require.Greater(t, entity.Meta.ChangeHistory[i].Seq, entity.Meta.ChangeHistory[i-1].Seq)
	}
	require.Equal(t, "alice", entity.Meta.CreatedBy, "creation attribution must survive updates")
}

func testUpdateNoOp(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	created, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	// A payload structurally identical to current state is a no-op, not an
	// error, and must not touch version or history.
	entity, changed, err := st.Update(ctx, "conversion-rate", map[string]any{
		"name": "Conversion Rate",
		"tags": []any{"core"},
	}, "bob")
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, created.Meta.Version, entity.Meta.Version)
	require.Len(t, entity.Meta.ChangeHistory, 1)

	got, err := st.Get(ctx, "conversion-rate")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", got.Meta.Version)
	require.Equal(t, "alice", got.Meta.LastUpdatedBy, "no-op must not rewrite attribution")
}

func testUpdateValidation(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	_, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	_, _, err = st.Update(ctx, "conversion-rate", map[string]any{"unknown_field": 1}, "bob")
	require.True(t, domain.IsValidation(err), "unknown field must fail validation, got %v", err)

	_, _, err = st.Update(ctx, "conversion-rate", map[string]any{"name": 42}, "bob")
	require.True(t, domain.IsValidation(err), "wrong shape must fail validation, got %v", err)

	// Failed validation leaves no trace.
	got, err := st.Get(ctx, "conversion-rate")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", got.Meta.Version)
	require.Len(t, got.Meta.ChangeHistory, 1)
}

func testUpdateNotFound(t *testing.T, st store.EntityStore) {
	_, _, err := st.Update(context.Background(), "missing", map[string]any{"name": "x"}, "bob")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func testDelete(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	_, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, "conversion-rate", "alice"))

	_, err = st.Get(ctx, "conversion-rate")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.ErrorIs(t, st.Delete(ctx, "conversion-rate", "alice"), domain.ErrNotFound)

	// Recreating after delete starts history from scratch: deletion leaves
	// no tombstone and the old history is unrecoverable.
	entity, err := st.Create(ctx, "conversion-rate", metricFields(), "bob")
	require.NoError(t, err)
	require.Equal(t, "1.0.0", entity.Meta.Version)
	require.Len(t, entity.Meta.ChangeHistory, 1)
	require.Equal(t, "bob", entity.Meta.CreatedBy)
}

func testListFilters(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	seed := []struct {
		id     string
		fields map[string]any
	}{
		{"conversion-rate", map[string]any{"name": "Conversion Rate", "category": "growth", "owner": "alice", "tier": "gold", "tags": []any{"core"}}},
		{"churn-rate", map[string]any{"name": "Churn Rate", "category": "retention", "owner": "bob", "tier": "silver", "tags": []any{"core", "ml"}}},
		{"revenue", map[string]any{"name": "Monthly Revenue", "category": "growth", "owner": "alice", "tier": "gold", "tags": []any{"finance"}}},
	}
	for _, item := range seed {
		_, err := st.Create(ctx, item.id, item.fields, "alice")
		require.NoError(t, err)
	}

	collect := func(filter domain.Filter) []string {
		var ids []string
		for entity, err := range st.List(ctx, filter) {
			require.NoError(t, err)
			ids = append(ids, entity.ID)
		}
		return ids
	}

	require.ElementsMatch(t, []string{"conversion-rate", "churn-rate", "revenue"}, collect(domain.Filter{}))
	require.ElementsMatch(t, []string{"conversion-rate", "revenue"}, collect(domain.Filter{Category: "growth"}))
	require.ElementsMatch(t, []string{"churn-rate"}, collect(domain.Filter{Owner: "bob"}))
	require.ElementsMatch(t, []string{"conversion-rate", "churn-rate"}, collect(domain.Filter{Tag: "core"}))
	require.ElementsMatch(t, []string{"conversion-rate", "churn-rate"}, collect(domain.Filter{NameContains: "rate"}))
	require.ElementsMatch(t, []string{"conversion-rate"}, collect(domain.Filter{Category: "growth", Tag: "core"}))
	require.Empty(t, collect(domain.Filter{Owner: "nobody"}))
}

func testListRestartable(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	_, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	seq := st.List(ctx, domain.Filter{})

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	require.Equal(t, 1, count())

	// A second range over the same sequence re-reads the collection and
	// observes entities created in between.
	_, err = st.Create(ctx, "churn-rate", map[string]any{"name": "Churn Rate"}, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, count())
}

func testConcurrentUpdates(t *testing.T, st store.EntityStore) {
	ctx := context.Background()

	_, err := st.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)

	const updates = 8
	var wg sync.WaitGroup
	errs := make(chan error, updates)

	for i := 0; i < updates; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := st.Update(ctx, "conversion-rate", map[string]any{
				"description": fmt.Sprintf("revision %d", i),
			}, fmt.Sprintf("actor-%d", i))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entity, err := st.Get(ctx, "conversion-rate")
	require.NoError(t, err)
	require.Len(t, entity.Meta.ChangeHistory, updates+1, "each update must append exactly one entry")

	// Versions strictly increase; no two entries share a version.
	seen := map[string]bool{}
	for _, entry := range entity.Meta.ChangeHistory {
		require.False(t, seen[entry.Version], "duplicate version %s in history", entry.Version)
		seen[entry.Version] = true
	}
	require.Equal(t, entity.Meta.ChangeHistory[len(entity.Meta.ChangeHistory)-1].Version, entity.Meta.Version)
}

// RunRoundTrip verifies the cross-backend invariant: exporting from one
// backend and restoring into another preserves version and change history
// exactly.
func RunRoundTrip(t *testing.T, source, target store.EntityStore) {
	ctx := context.Background()

	_, err := source.Create(ctx, "conversion-rate", metricFields(), "alice")
	require.NoError(t, err)
	_, _, err = source.Update(ctx, "conversion-rate", map[string]any{"name": "New Name"}, "bob")
	require.NoError(t, err)
	_, _, err = source.Update(ctx, "conversion-rate", map[string]any{"formula": "(A*B)/C"}, "carol")
	require.NoError(t, err)

	var exported []domain.Entity
	for entity, err := range source.List(ctx, domain.Filter{}) {
		require.NoError(t, err)
		exported = append(exported, entity)
	}

	restorer, ok := target.(store.Restorer)
	require.True(t, ok, "target backend must support restore")
	require.NoError(t, restorer.Restore(ctx, exported))

	want, err := source.Get(ctx, "conversion-rate")
	require.NoError(t, err)
	got, err := target.Get(ctx, "conversion-rate")
	require.NoError(t, err)

	require.Equal(t, want.Meta.Version, got.Meta.Version)
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
}
