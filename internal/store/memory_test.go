package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/Hom4ikTop4ik/PO-ChatBots/internal/store"
	"github.com/Hom4ikTop4ik/PO-ChatBots/pkg/models"
)

// newTestStore creates a fresh in-memory store for tests with no persistence
// bleeding across test runs.
func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	os.Setenv("SCENARIO_DATA_DIR", dir)
	defer os.Unsetenv("SCENARIO_DATA_DIR")
	s := store.NewMemoryStore()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{
		UserKey:      "user-1",
		CurrentBlock: "block-a",
		Variables:    map[string]any{"age": 30.0},
		Active:       true,
	}

	if err := s.Save(ctx, "user-1", sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, ok, err := s.Load(ctx, "user-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatalf("Load() ok = false, want true")
	}
	if got.CurrentBlock != "block-a" {
		t.Errorf("CurrentBlock = %q, want %q", got.CurrentBlock, "block-a")
	}
	if got.Variables["age"] != 30.0 {
		t.Errorf("Variables[age] = %v, want 30.0", got.Variables["age"])
	}
}

func TestLoad_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Load(ctx, "nobody")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Errorf("Load() ok = true for unknown key, want false")
	}
}

func TestSave_CopyOnWrite(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{
		UserKey:   "user-2",
		Variables: map[string]any{"count": 1.0},
		Active:    true,
	}
	if err := s.Save(ctx, "user-2", sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	// Mutating the caller's copy after Save must not affect what is stored.
	sess.Variables["count"] = 2.0

	got, _, err := s.Load(ctx, "user-2")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Variables["count"] != 1.0 {
		t.Errorf("Variables[count] = %v, want 1.0 (stored copy mutated)", got.Variables["count"])
	}
}

func TestLoad_CopyOnRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{
		UserKey:   "user-3",
		Variables: map[string]any{"count": 1.0},
		Active:    true,
	}
	if err := s.Save(ctx, "user-3", sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, _, err := s.Load(ctx, "user-3")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got.Variables["count"] = 99.0

	got2, _, err := s.Load(ctx, "user-3")
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if got2.Variables["count"] != 1.0 {
		t.Errorf("Variables[count] = %v, want 1.0 (returned copy shared storage)", got2.Variables["count"])
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := &models.Session{UserKey: "user-4", Active: true}
	if err := s.Save(ctx, "user-4", sess); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx, "user-4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, ok, err := s.Load(ctx, "user-4")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Errorf("Load() ok = true after Delete, want false")
	}
}

func TestPersistenceAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	os.Setenv("SCENARIO_DATA_DIR", dir)
	defer os.Unsetenv("SCENARIO_DATA_DIR")

	ctx := context.Background()
	s1 := store.NewMemoryStore()
	if err := s1.Save(ctx, "user-5", &models.Session{UserKey: "user-5", CurrentBlock: "b1", Active: true}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2 := store.NewMemoryStore()
	defer s2.Close()
	got, ok, err := s2.Load(ctx, "user-5")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok {
		t.Fatalf("Load() ok = false after restart, want true")
	}
	if got.CurrentBlock != "b1" {
		t.Errorf("CurrentBlock = %q, want %q", got.CurrentBlock, "b1")
	}
}
