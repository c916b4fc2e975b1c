package domain

import (
	"fmt"
	"sort"
)

// FieldKind constrains the structural shape a field value may take.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldBool   FieldKind = "bool"
	FieldList   FieldKind = "list"
	FieldMap    FieldKind = "map"
	FieldAny    FieldKind = "any"
)

// FieldSpec declares one schema field: its structural kind and the severity
// a change to it classifies as. A zero Severity means the field is known but
// unlisted in the severity table; such fields classify as patch. That default
// is an explicit policy, not an omission.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Severity Severity
}

// Schema is the declared classification table for one collection, fixed at
// store initialization. Payload fields absent from the schema are rejected
// rather than silently defaulted.
type Schema struct {
	collection string
	fields     map[string]FieldSpec
}

// NewSchema builds a schema from field declarations. When the same field
// name is declared more than once (a field can plausibly sit in more than
// one severity group), the highest-ranked severity wins; the precedence is a
// deliberate policy choice and is pinned by tests.
func NewSchema(collection string, specs []FieldSpec) (*Schema, error) {
	if collection == "" {
		return nil, fmt.Errorf("schema requires a collection name")
	}
	fields := make(map[string]FieldSpec, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("schema %s: field with empty name", collection)
		}
		if spec.Kind == "" {
			spec.Kind = FieldAny
		}
		if existing, ok := fields[spec.Name]; ok {
			if existing.Severity >= spec.Severity {
				continue
			}
		}
		fields[spec.Name] = spec
	}
	return &Schema{collection: collection, fields: fields}, nil
}

// Collection returns the collection name this schema governs.
func (s *Schema) Collection() string {
	return s.collection
}

// Field looks up the declaration for a payload field name.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	spec, ok := s.fields[name]
	return spec, ok
}

// SeverityFor returns the classification severity for a known field. Fields
// declared without an explicit severity classify as patch.
func (s *Schema) SeverityFor(name string) Severity {
	spec, ok := s.fields[name]
	if !ok || spec.Severity == SeverityNone {
		return SeverityPatch
	}
	return spec.Severity
}

// FieldNames returns the declared field names in sorted order.
func (s *Schema) FieldNames() []string {
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
