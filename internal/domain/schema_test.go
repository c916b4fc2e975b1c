package domain

import "testing"

func TestSchemaSeverityDefaultsToPatch(t *testing.T) {
	schema, err := NewSchema("metrics", []FieldSpec{
		{Name: "formula", Kind: FieldString, Severity: SeverityMajor},
		{Name: "docs_url", Kind: FieldString},
	})
	if err != nil {
		t.Fatalf("failed to build schema: %v", err)
	}

	if got := schema.SeverityFor("docs_url"); got != SeverityPatch {
		t.Errorf("unlisted field severity = %s, want patch", got)
	}
	if got := schema.SeverityFor("formula"); got != SeverityMajor {
		t.Errorf("formula severity = %s, want major", got)
	}
}

func TestSchemaDuplicateFieldHighestSeverityWins(t *testing.T) {
	// A field can plausibly belong to more than one severity group; the
	// declared policy is that the highest-ranked severity takes precedence,
	// regardless of declaration order.
	cases := []struct {
		name  string
		specs []FieldSpec
	}{
		{"higher first", []FieldSpec{
			{Name: "status", Kind: FieldString, Severity: SeverityMinor},
			{Name: "status", Kind: FieldString, Severity: SeverityPatch},
		}},
		{"higher last", []FieldSpec{
			{Name: "status", Kind: FieldString, Severity: SeverityPatch},
			{Name: "status", Kind: FieldString, Severity: SeverityMinor},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schema, err := NewSchema("metrics", tc.specs)
			if err != nil {
				t.Fatalf("failed to build schema: %v", err)
			}
			if got := schema.SeverityFor("status"); got != SeverityMinor {
				t.Errorf("severity = %s, want minor", got)
			}
		})
	}
}

func TestSchemaRejectsInvalidDeclarations(t *testing.T) {
	if _, err := NewSchema("", []FieldSpec{{Name: "name"}}); err == nil {
		t.Error("expected error for empty collection name")
	}
	if _, err := NewSchema("metrics", []FieldSpec{{Name: ""}}); err == nil {
		t.Error("expected error for empty field name")
	}
}

func TestFilterMatches(t *testing.T) {
	entity := Entity{
		ID: "conversion-rate",
		Fields: map[string]any{
			"name":     "Conversion Rate",
			"category": "growth",
			"owner":    "alice",
			"tier":     "gold",
			"tags":     []any{"finance", "core"},
		},
	}

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter matches all", Filter{}, true},
		{"category equality", Filter{Category: "growth"}, true},
		{"category mismatch", Filter{Category: "ops"}, false},
		{"owner equality", Filter{Owner: "alice"}, true},
		{"tier equality", Filter{Tier: "gold"}, true},
		{"tag membership", Filter{Tag: "core"}, true},
		{"tag absent", Filter{Tag: "ml"}, false},
		{"name substring case-insensitive", Filter{NameContains: "conversion"}, true},
		{"name substring mismatch", Filter{NameContains: "revenue"}, false},
		{"combined predicates", Filter{Category: "growth", Tag: "finance", NameContains: "Rate"}, true},
		{"combined with one miss", Filter{Category: "growth", Owner: "bob"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(entity); got != tc.want {
				t.Errorf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestVersionMetadataCloneIsDeep(t *testing.T) {
	meta := VersionMetadata{
		Version: "1.1.0",
		ChangeHistory: []ChangeEntry{
			{Seq: 1, Version: "1.0.0", FieldsChanged: []string{"*"}},
			{Seq: 2, Version: "1.1.0", FieldsChanged: []string{"name"}},
		},
	}

	clone := meta.Clone()
	clone.ChangeHistory[0].FieldsChanged[0] = "mutated"
	clone.ChangeHistory = append(clone.ChangeHistory, ChangeEntry{Seq: 3})

	if meta.ChangeHistory[0].FieldsChanged[0] != "*" {
		t.Error("clone aliases original fields_changed")
	}
	if len(meta.ChangeHistory) != 2 {
		t.Errorf("original history length changed to %d", len(meta.ChangeHistory))
	}
}

func TestEntityWithFieldsDoesNotMutateReceiver(t *testing.T) {
	entity := Entity{
		ID: "m",
		Fields: map[string]any{
			"name": "Original",
			"tags": []any{"a"},
		},
	}

	updated := entity.WithFields(map[string]any{"name": "Changed"})
	if entity.Fields["name"] != "Original" {
		t.Error("receiver fields mutated")
	}
	if updated.Fields["name"] != "Changed" {
		t.Error("update not applied")
	}
	if updated.Fields["tags"].([]any)[0] != "a" {
		t.Error("unchanged fields not carried over")
	}
}
