package versioning

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rpattn/metriq/internal/domain"
)

// InitialVersion is the version every entity starts its life at.
const InitialVersion = "1.0.0"

// ParseVersion splits a MAJOR.MINOR.PATCH string into its components. A
// string that does not parse as three non-negative integers yields a
// VersioningError; callers must treat that as fatal to the operation.
func ParseVersion(version string) (major, minor, patch int, err error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return 0, 0, 0, &domain.VersioningError{Version: version, Reason: "expected three dot-separated components"}
	}
	components := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil || n < 0 || (len(part) > 1 && strings.HasPrefix(part, "0")) {
			return 0, 0, 0, &domain.VersioningError{
				Version: version,
				Reason:  fmt.Sprintf("component %q is not a non-negative integer", part),
			}
		}
		components[i] = n
	}
	return components[0], components[1], components[2], nil
}

// Bump computes the next semantic version for a classified severity. It is
// pure and deterministic: major resets minor and patch, minor resets patch.
// SeverityNone is a caller bug; no-op updates short-circuit before reaching
// this function.
func Bump(current string, severity domain.Severity) (string, error) {
	major, minor, patch, err := ParseVersion(current)
	if err != nil {
		return "", err
	}
	switch severity {
	case domain.SeverityMajor:
		return fmt.Sprintf("%d.0.0", major+1), nil
	case domain.SeverityMinor:
		return fmt.Sprintf("%d.%d.0", major, minor+1), nil
	case domain.SeverityPatch:
		return fmt.Sprintf("%d.%d.%d", major, minor, patch+1), nil
	default:
		return "", fmt.Errorf("cannot bump version for severity %s", severity)
	}
}

// Compare orders two well-formed versions: -1, 0 or 1 as a is before, equal
// to, or after b.
func Compare(a, b string) (int, error) {
	aMajor, aMinor, aPatch, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	bMajor, bMinor, bPatch, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	for _, pair := range [][2]int{{aMajor, bMajor}, {aMinor, bMinor}, {aPatch, bPatch}} {
		if pair[0] < pair[1] {
			return -1, nil
		}
		if pair[0] > pair[1] {
			return 1, nil
		}
	}
	return 0, nil
}
