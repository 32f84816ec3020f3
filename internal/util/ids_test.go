package util

import (
	"strings"
	"testing"
)

func TestDeterministicID(t *testing.T) {
	a := DeterministicID("ent", "chest pain", "SYMPTOM")
	b := DeterministicID("ent", "chest pain", "SYMPTOM")
	if a != b {
		t.Fatalf("expected identical IDs, got %q and %q", a, b)
	}
	if !strings.HasPrefix(a, "ent_") {
		t.Fatalf("expected ent_ prefix, got %q", a)
	}

	c := DeterministicID("ent", "chest pain", "DISEASE")
	if a == c {
		t.Fatalf("expected different IDs for different parts, got %q", a)
	}

	// part boundaries must matter
	d := DeterministicID("", "ab", "c")
	e := DeterministicID("", "a", "bc")
	if d == e {
		t.Fatalf("expected different IDs for shifted boundaries, got %q", d)
	}
}

func TestNewRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	if len(a) != 12 {
		t.Fatalf("expected 12 characters, got %q", a)
	}
	if a == b {
		t.Fatalf("expected unique run IDs, got %q twice", a)
	}
}
