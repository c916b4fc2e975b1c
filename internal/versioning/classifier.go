package versioning

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/rpattn/metriq/internal/domain"
)

// Classification is the outcome of diffing a proposed payload against
// current state: which fields changed and the worst-case severity among
// them. Severity is SeverityNone when nothing changed.
type Classification struct {
	Fields   []string
	Severity domain.Severity
}

// Classifier diffs proposed payloads against current entity fields using the
// collection schema's classification table.
type Classifier struct {
	schema *domain.Schema
}

// NewClassifier wraps a schema in a classifier.
func NewClassifier(schema *domain.Schema) *Classifier {
	return &Classifier{schema: schema}
}

// Classify compares current fields against a proposed partial payload. Two
// values count as changed under deep structural equality: nested maps and
// lists are compared recursively, and list comparison is order-sensitive.
// Each changed field contributes the severity from the schema table; the
// overall severity is the highest among them. The creation path never calls
// Classify; creation is fixed at major with the "*" sentinel.
func (c *Classifier) Classify(current map[string]any, proposed map[string]any) (Classification, error) {
	if err := c.Validate(proposed); err != nil {
		return Classification{}, err
	}

	result := Classification{Severity: domain.SeverityNone}
	for name, value := range proposed {
		if equalValues(current[name], value) {
			continue
		}
		result.Fields = append(result.Fields, name)
		if sev := c.schema.SeverityFor(name); sev > result.Severity {
			result.Severity = sev
		}
	}
	sort.Strings(result.Fields)
	return result, nil
}

// Validate checks a payload against the schema without diffing: every field
// must be declared and every value must match its declared structural kind.
func (c *Classifier) Validate(payload map[string]any) error {
	for name, value := range payload {
		spec, ok := c.schema.Field(name)
		if !ok {
			return &domain.ValidationError{Field: name, Reason: fmt.Sprintf("not declared in the %s schema", c.schema.Collection())}
		}
		if err := checkShape(spec, value); err != nil {
			return err
		}
	}
	return nil
}

func checkShape(spec domain.FieldSpec, value any) error {
	if value == nil {
		return &domain.ValidationError{Field: spec.Name, Reason: "null values are not accepted; omit the field instead"}
	}
	switch spec.Kind {
	case domain.FieldString:
		if _, ok := value.(string); !ok {
			return shapeError(spec, value)
		}
	case domain.FieldNumber:
		if _, ok := asFloat(value); !ok {
			return shapeError(spec, value)
		}
	case domain.FieldBool:
		if _, ok := value.(bool); !ok {
			return shapeError(spec, value)
		}
	case domain.FieldList:
		switch value.(type) {
		case []any, []string:
		default:
			return shapeError(spec, value)
		}
	case domain.FieldMap:
		if _, ok := value.(map[string]any); !ok {
			return shapeError(spec, value)
		}
	case domain.FieldAny:
	}
	return nil
}

func shapeError(spec domain.FieldSpec, value any) error {
	return &domain.ValidationError{
		Field:  spec.Name,
		Reason: fmt.Sprintf("expected %s, got %T", spec.Kind, value),
	}
}

// equalValues implements deep structural equality over the JSON value space.
// Numeric values compare by magnitude so an int payload matches the float64
// the same number decodes to after a persistence round-trip.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for key, av := range at {
			bv, ok := bt[key]
			if !ok || !equalValues(av, bv) {
				return false
			}
		}
		return true
	case []any:
		bs, ok := asSlice(b)
		if !ok {
			return false
		}
		return equalSlices(at, bs)
	case []string:
		as := asStringSlice(at)
		bs, ok := asSlice(b)
		if !ok {
			return false
		}
		return equalSlices(as, bs)
	default:
		return reflect.DeepEqual(a, b)
	}
}

func equalSlices(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !equalValues(a[i], b[i]) {
			return false
		}
	}
	return true
}

func asSlice(value any) ([]any, bool) {
	switch typed := value.(type) {
	case []any:
		return typed, true
	case []string:
		return asStringSlice(typed), true
	default:
		return nil, false
	}
}

func asStringSlice(items []string) []any {
	out := make([]any, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	default:
		return 0, false
	}
}
