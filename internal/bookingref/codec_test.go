package bookingref

import (
	"strings"
	"testing"
	"time"

	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
)

func sampleRange(t *testing.T) interval.TimeRange {
	t.Helper()
	start := time.Date(2026, time.September, 7, 10, 0, 0, 0, time.UTC)
	r, err := interval.NewTimeRange(start, start.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("NewTimeRange: %v", err)
	}
	return r
}

func TestGenerateStableAcrossRetries(t *testing.T) {
	r := sampleRange(t)

	first := Generate("consultation", "Maria Santos", "+14165550101", r, "retry-key-1")
	second := Generate("consultation", "Maria Santos", "+14165550101", r, "retry-key-1")
	if first != second {
		t.Fatalf("same idempotency key produced different references: %s vs %s", first, second)
	}

	// The key dominates: a retry that re-typed the name still lands on the
	// same reference.
	retyped := Generate("consultation", "maria santos", "+14165550101", r, "retry-key-1")
	if first != retyped {
		t.Fatalf("idempotency key did not dominate payload: %s vs %s", first, retyped)
	}
}

func TestGenerateWithoutKeyDerivesFromTuple(t *testing.T) {
	r := sampleRange(t)

	a := Generate("consultation", "Maria Santos", "+14165550101", r, "")
	b := Generate("consultation", "Maria Santos", "+14165550101", r, "")
	if a != b {
		t.Fatalf("identical tuples produced different references: %s vs %s", a, b)
	}

	other := Generate("flu-shot", "Maria Santos", "+14165550101", r, "")
	if a == other {
		t.Fatalf("different appointment types must not collide: %s", a)
	}
}

func TestGenerateShape(t *testing.T) {
	ref := string(Generate("consultation", "Maria Santos", "+14165550101", sampleRange(t), ""))
	if len(ref) != 7 || ref[3] != '-' {
		t.Fatalf("expected XXX-XXX shape, got %q", ref)
	}
	if ref != strings.ToUpper(ref) {
		t.Fatalf("expected upper-case reference, got %q", ref)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want Reference
	}{
		{"abc-123", "ABC-123"},
		{"  ABC-123  ", "ABC-123"},
		{"abc–123", "ABC-123"}, // en dash
		{"abc—123", "ABC-123"}, // em dash
		{"abc−123", "ABC-123"}, // minus sign
		{"AB--12", "AB-12"},
		{"AB-–-12", "AB-12"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.raw); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"abc–123", " xy—z ", "AB--12", "plain"}
	for _, raw := range inputs {
		once := Normalize(raw)
		twice := Normalize(string(once))
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", raw, once, twice)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("abc–123", "ABC-123") {
		t.Error("expected dash/case-insensitive equality")
	}
	if Equal("ABC-123", "ABC-124") {
		t.Error("distinct references must not compare equal")
	}
}
