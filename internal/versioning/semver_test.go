package versioning

import (
	"errors"
	"testing"

	"github.com/rpattn/metriq/internal/domain"
)

func TestBump(t *testing.T) {
	cases := []struct {
		name     string
		current  string
		severity domain.Severity
		want     string
	}{
		{"major resets minor and patch", "1.4.2", domain.SeverityMajor, "2.0.0"},
		{"minor resets patch", "1.4.2", domain.SeverityMinor, "1.5.0"},
		{"patch increments", "1.4.2", domain.SeverityPatch, "1.4.3"},
		{"major from initial", "1.0.0", domain.SeverityMajor, "2.0.0"},
		{"minor from initial", "1.0.0", domain.SeverityMinor, "1.1.0"},
		{"patch from initial", "1.0.0", domain.SeverityPatch, "1.0.1"},
		{"large components", "10.20.30", domain.SeverityPatch, "10.20.31"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Bump(tc.current, tc.severity)
			if err != nil {
				t.Fatalf("unexpected error bumping %s: %v", tc.current, err)
			}
			if got != tc.want {
				t.Errorf("Bump(%s, %s) = %s, want %s", tc.current, tc.severity, got, tc.want)
			}
		})
	}
}

func TestBumpMalformedVersion(t *testing.T) {
	malformed := []string{
		"",
		"1",
		"1.2",
		"1.2.3.4",
		"a.b.c",
		"1.2.x",
		"-1.0.0",
		"1.-2.0",
		"1.2.03",
		"1..3",
	}

	for _, version := range malformed {
		t.Run(version, func(t *testing.T) {
			_, err := Bump(version, domain.SeverityPatch)
			if err == nil {
				t.Fatalf("expected error for malformed version %q", version)
			}
			var ve *domain.VersioningError
			if !errors.As(err, &ve) {
				t.Errorf("expected VersioningError, got %T: %v", err, err)
			}
		})
	}
}

func TestBumpRejectsNoneSeverity(t *testing.T) {
	if _, err := Bump("1.0.0", domain.SeverityNone); err == nil {
		t.Fatal("expected error bumping with none severity")
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "1.9.9", 1},
		{"1.9.9", "2.0.0", -1},
	}

	for _, tc := range cases {
		got, err := Compare(tc.a, tc.b)
		if err != nil {
			t.Fatalf("unexpected error comparing %s and %s: %v", tc.a, tc.b, err)
		}
		if got != tc.want {
			t.Errorf("Compare(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
