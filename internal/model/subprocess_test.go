package model

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"LocalChat/internal/session"
)

// writeStubBinary writes an executable shell script that speaks the
// line-JSON inference protocol and returns its path plus a model file path.
func writeStubBinary(t *testing.T, script string) (binary, modelPath string) {
	t.Helper()
	dir := t.TempDir()

	binary = filepath.Join(dir, "fake-inference")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub binary: %v", err)
	}

	modelPath = filepath.Join(dir, "stub.gguf")
	if err := os.WriteFile(modelPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write model file: %v", err)
	}
	return binary, modelPath
}

func TestSubprocessComplete(t *testing.T) {
	binary, modelPath := writeStubBinary(t, `
i=0
while read line; do
  i=$((i+1))
  printf '{"id":%d,"content":"hello ","done":false}\n' "$i"
  printf '{"id":%d,"content":"world","done":true}\n' "$i"
done
`)
	c, err := NewSubprocessClient(binary, modelPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSubprocessClient err: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	msgs := []session.Message{session.NewMessage(session.RoleUser, "hi")}
	got, err := c.Complete(context.Background(), msgs, session.DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("unexpected completion: %q", got)
	}
}

func TestSubprocessStreamFragments(t *testing.T) {
	binary, modelPath := writeStubBinary(t, `
i=0
while read line; do
  i=$((i+1))
  printf '{"id":%d,"content":"one "}\n' "$i"
  printf '{"id":%d,"content":"two"}\n' "$i"
  printf '{"id":%d,"done":true}\n' "$i"
done
`)
	c, err := NewSubprocessClient(binary, modelPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSubprocessClient err: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	msgs := []session.Message{session.NewMessage(session.RoleUser, "hi")}
	fragments, err := c.Stream(context.Background(), msgs, session.DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}

	var collected string
	for frag := range fragments {
		if frag.Err != nil {
			t.Fatalf("unexpected fragment error: %v", frag.Err)
		}
		collected += frag.Text
	}
	if collected != "one two" {
		t.Fatalf("unexpected streamed text: %q", collected)
	}
}

func TestSubprocessInferenceError(t *testing.T) {
	binary, modelPath := writeStubBinary(t, `
i=0
while read line; do
  i=$((i+1))
  printf '{"id":%d,"error":"out of memory"}\n' "$i"
done
`)
	c, err := NewSubprocessClient(binary, modelPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSubprocessClient err: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	msgs := []session.Message{session.NewMessage(session.RoleUser, "hi")}
	if _, err := c.Complete(context.Background(), msgs, session.DefaultGenerationConfig()); err == nil {
		t.Fatal("expected inference error")
	}
}

func TestSubprocessMissingModelFile(t *testing.T) {
	binary, _ := writeStubBinary(t, "cat >/dev/null\n")

	_, err := NewSubprocessClient(binary, filepath.Join(t.TempDir(), "absent.gguf"), discardLogger())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestSubprocessMissingBinary(t *testing.T) {
	_, modelPath := writeStubBinary(t, "cat >/dev/null\n")

	_, err := NewSubprocessClient(filepath.Join(t.TempDir(), "no-such-binary"), modelPath, discardLogger())
	if !errors.Is(err, ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
}

// A generation abandoned mid-stream leaves its remaining lines in the
// stdout pipe; the next exchange must not mistake them for its own reply.
func TestSubprocessCancelDoesNotLeakIntoNextTurn(t *testing.T) {
	binary, modelPath := writeStubBinary(t, `
i=0
while read line; do
  i=$((i+1))
  if [ "$i" -eq 1 ]; then
    printf '{"id":1,"content":"r1a ","done":false}\n'
    printf '{"id":1,"content":"r1b ","done":false}\n'
    printf '{"id":1,"content":"r1c ","done":false}\n'
    printf '{"id":1,"done":true}\n'
  else
    printf '{"id":%d,"content":"second reply","done":true}\n' "$i"
  fi
done
`)
	c, err := NewSubprocessClient(binary, modelPath, discardLogger())
	if err != nil {
		t.Fatalf("NewSubprocessClient err: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	msgs := []session.Message{session.NewMessage(session.RoleUser, "hi")}

	ctx, cancel := context.WithCancel(context.Background())
	fragments, err := c.Stream(ctx, msgs, session.DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("Stream err: %v", err)
	}
	first := <-fragments
	if first.Err != nil || first.Text != "r1a " {
		t.Fatalf("unexpected first fragment: %+v", first)
	}
	// With no receiver on the channel, cancellation is the goroutine's only
	// exit; request 1's remaining lines stay unread in the pipe.
	cancel()

	got, err := c.Complete(context.Background(), msgs, session.DefaultGenerationConfig())
	if err != nil {
		t.Fatalf("Complete err: %v", err)
	}
	if got != "second reply" {
		t.Fatalf("second exchange read the aborted generation's output: %q", got)
	}
}
