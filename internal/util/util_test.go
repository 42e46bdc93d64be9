package util

import (
	"strings"
	"testing"
)

func TestDedupeKeyStable(t *testing.T) {
	got1 := DedupeKey("7|2025-01-01", "r1")
	got2 := DedupeKey("7|2025-01-01", "r1")
	if got1 != got2 {
		t.Fatalf("expected stable dedupe key, got %q vs %q", got1, got2)
	}
	if got1 == DedupeKey("6|2025-01-01", "r1") {
		t.Fatalf("expected different key for a different countdown day")
	}
	if got1 == DedupeKey("7|2025-01-01", "r2") {
		t.Fatalf("expected different key for a different recipient")
	}
}

func TestIDPrefixes(t *testing.T) {
	if id := NewRecordID(); !strings.HasPrefix(id, "trk_") || len(id) != 4+26 {
		t.Fatalf("unexpected record id %q", id)
	}
	if id := NewRunID(); !strings.HasPrefix(id, "run_") {
		t.Fatalf("unexpected run id %q", id)
	}
	if NewRecordID() == NewRecordID() {
		t.Fatalf("expected unique record ids")
	}
}
