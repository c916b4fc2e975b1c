package domain

import "strings"

// Filter narrows a List call with simple predicates over the indexed fields.
// Scalar predicates are exact matches, Tag matches membership in the tags
// list, and NameContains is a case-insensitive substring match. A zero
// Filter matches every entity.
type Filter struct {
	Category     string
	Owner        string
	Tier         string
	Tag          string
	NameContains string
}

// IsZero reports whether the filter applies no predicates.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Matches evaluates the filter against an entity's fields. The file backend
// applies this directly; the relational backend compiles the same predicates
// to SQL, so the two must stay in lockstep.
func (f Filter) Matches(e Entity) bool {
	if f.Category != "" && StringField(e, "category") != f.Category {
		return false
	}
	if f.Owner != "" && StringField(e, "owner") != f.Owner {
		return false
	}
	if f.Tier != "" && StringField(e, "tier") != f.Tier {
		return false
	}
	if f.Tag != "" && !hasTag(e, f.Tag) {
		return false
	}
	if f.NameContains != "" {
		name := strings.ToLower(StringField(e, "name"))
		if !strings.Contains(name, strings.ToLower(f.NameContains)) {
			return false
		}
	}
	return true
}

// StringField extracts a string-valued field, returning "" when absent or of
// another type. The relational backend projects these into indexed columns.
func StringField(e Entity, name string) string {
	value, ok := e.Fields[name].(string)
	if !ok {
		return ""
	}
	return value
}

// StringListField extracts a list-of-strings field, tolerating both the
// []any shape produced by JSON decoding and native []string payloads.
func StringListField(e Entity, name string) []string {
	switch typed := e.Fields[name].(type) {
	case []string:
		return typed
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok {
				items = append(items, s)
			}
		}
		return items
	default:
		return nil
	}
}

func hasTag(e Entity, tag string) bool {
	for _, t := range StringListField(e, "tags") {
		if t == tag {
			return true
		}
	}
	return false
}
