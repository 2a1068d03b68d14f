package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFindModelFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.gguf", "alpha.gguf", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	got, err := FindModelFile(dir)
	if err != nil {
		t.Fatalf("FindModelFile err: %v", err)
	}
	if got != filepath.Join(dir, "alpha.gguf") {
		t.Fatalf("expected first model in name order, got %s", got)
	}
}

func TestFindModelFileSearchesInOrder(t *testing.T) {
	empty := t.TempDir()
	second := t.TempDir()
	if err := os.WriteFile(filepath.Join(second, "model.GGUF"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := FindModelFile(empty, second)
	if err != nil {
		t.Fatalf("FindModelFile err: %v", err)
	}
	if got != filepath.Join(second, "model.GGUF") {
		t.Fatalf("unexpected match: %s", got)
	}
}

func TestFindModelFileMissing(t *testing.T) {
	_, err := FindModelFile(t.TempDir(), filepath.Join(t.TempDir(), "does-not-exist"))
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(NewMockClient())

	if _, ok := r.Get("mock"); !ok {
		t.Fatal("expected mock binding to be registered")
	}
	if _, ok := r.Get("llama"); ok {
		t.Fatal("did not expect llama binding")
	}
	names := r.Names()
	if len(names) != 1 || names[0] != "mock" {
		t.Fatalf("unexpected names: %v", names)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close err: %v", err)
	}
}
