package vault

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kernel/cellruntime/internal/kerneltypes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// --- Put / Get ---

func TestGet_ReturnsFalseForMissingKey(t *testing.T) {
	// Get reports found=false for a key that was never Put
	s := openTestStore(t)
	_, found, err := s.Get(context.Background(), "billing|missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected found=false for a missing key")
	}
}

func TestPut_ThenGetRoundTripsTheBlob(t *testing.T) {
	// Get returns the exact blob passed to a prior Put for the same key
	s := openTestStore(t)
	if err := s.Put(context.Background(), "billing|invoice-1", []byte("payload"), 0); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, found, err := s.Get(context.Background(), "billing|invoice-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found || string(got) != "payload" {
		t.Errorf("got (%q, %v), want (payload, true)", got, found)
	}
}

func TestPut_DefaultsToDefaultNamespaceWithoutPrefix(t *testing.T) {
	// A key with no "namespace|" prefix is stored under the "default" namespace
	s := openTestStore(t)
	s.Put(context.Background(), "bare-key", []byte("v"), 0)
	out, err := s.Query(context.Background(), "default", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || string(out[0]) != "v" {
		t.Errorf("got %v, want one entry under default", out)
	}
}

// --- Query ---

func TestQuery_ScansOnlyMatchingNamespace(t *testing.T) {
	// Query returns only entries whose key falls under the requested namespace
	s := openTestStore(t)
	s.Put(context.Background(), "billing|a", []byte("1"), 0)
	s.Put(context.Background(), "search|b", []byte("2"), 0)

	out, err := s.Query(context.Background(), "billing", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || string(out[0]) != "1" {
		t.Errorf("got %v, want only the billing entry", out)
	}
}

func TestQuery_AppliesFilterToBareKey(t *testing.T) {
	// Query excludes entries for which filter(bareKey) returns false
	s := openTestStore(t)
	s.Put(context.Background(), "billing|keep", []byte("1"), 0)
	s.Put(context.Background(), "billing|drop", []byte("2"), 0)

	out, err := s.Query(context.Background(), "billing", func(key string) bool { return key == "keep" })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || string(out[0]) != "1" {
		t.Errorf("got %v, want only the kept entry", out)
	}
}

// --- KeyFor ---

func TestKeyFor_QualifiesSuffixWithIdentityDomain(t *testing.T) {
	// KeyFor builds a "<domain>|<suffix>" key from the cell's identity domain
	got := KeyFor(kerneltypes.Identity{Domain: "billing"}, "invoice-1")
	if got != "billing|invoice-1" {
		t.Errorf("got %q, want billing|invoice-1", got)
	}
}
