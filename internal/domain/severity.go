package domain

import (
	"encoding/json"
	"fmt"
)

// Severity ranks how disruptive a field change is. Higher values dominate
// when multiple fields change in one update.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityPatch
	SeverityMinor
	SeverityMajor
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityPatch:
		return "patch"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity maps the persisted change_type string back to a Severity.
func ParseSeverity(value string) (Severity, error) {
	switch value {
	case "patch":
		return SeverityPatch, nil
	case "minor":
		return SeverityMinor, nil
	case "major":
		return SeverityMajor, nil
	case "none":
		return SeverityNone, nil
	default:
		return SeverityNone, fmt.Errorf("unknown change type %q", value)
	}
}

// MarshalJSON persists the severity as its lowercase name so both backends
// store the same change_type representation.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
