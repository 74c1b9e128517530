package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"ledger/internal/storage"
)

func TestMemoryStoreSetGetRemove(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, ok, err := s.Get(ctx, "expenses"); ok || err != nil {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := s.Set(ctx, "expenses", []byte(`[]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := s.Get(ctx, "expenses")
	if err != nil || !ok || string(v) != `[]` {
		t.Fatalf("unexpected get: v=%q ok=%v err=%v", v, ok, err)
	}

	// returned slice must not alias the stored value
	v[0] = 'x'
	v, _, _ = s.Get(ctx, "expenses")
	if string(v) != `[]` {
		t.Fatalf("stored value was mutated through returned slice: %q", v)
	}

	if err := s.Remove(ctx, "expenses"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "expenses"); ok {
		t.Fatalf("expected key to be gone after remove")
	}
	if err := s.Remove(ctx, "expenses"); err != nil {
		t.Fatalf("removing a missing key should be a no-op, got %v", err)
	}
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	s := New()
	if err := s.Set(context.Background(), " ", nil); !errors.Is(err, storage.ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := New()
	_ = s.Close()
	if _, _, err := s.Get(context.Background(), "k"); !errors.Is(err, storage.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestNewFromDirSeeds(t *testing.T) {
	dir := t.TempDir()
	// No files -> empty store
	s := NewFromDir(dir)
	if len(s.Keys()) != 0 {
		t.Fatalf("expected empty store, got %v", s.Keys())
	}

	mustWrite := func(name, content string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	mustWrite("expenses.json", `[{"id":1,"amount":"1.00","item":"a"}]`)
	mustWrite("notes.txt", "ignored")
	mustWrite("other.json", `{}`)

	s = NewFromDir(dir)
	keys := s.Keys()
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "expenses" || keys[1] != "other" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	if s := NewFromDir(filepath.Join(dir, "missing")); len(s.Keys()) != 0 {
		t.Fatalf("expected empty store for missing dir")
	}
}
