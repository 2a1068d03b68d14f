// Package model wraps the local inference capability behind a small
// interface so the rest of the core never touches a specific binding's API.
package model

import (
	"context"
	"errors"

	"LocalChat/internal/session"
)

// ErrModelUnavailable signals the local model cannot serve: the model file
// is absent, the inference server is unreachable, or the binary is missing.
var ErrModelUnavailable = errors.New("model unavailable")

// Fragment is one incremental piece of a streamed completion. A terminal
// error, if any, arrives in the last fragment before the channel closes.
type Fragment struct {
	Text string
	Err  error
}

// Client produces completions from a prompt transcript plus generation
// parameters.
type Client interface {
	// Name identifies the binding (llama, ollama, subprocess, mock).
	Name() string

	// Complete returns the full assistant reply in one call.
	Complete(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (string, error)

	// Stream delivers the reply incrementally. The channel is closed when
	// generation finishes, fails, or ctx is cancelled.
	Stream(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (<-chan Fragment, error)

	// Close releases any resources held by the binding.
	Close() error
}

// Lister is implemented by bindings that can enumerate installed models.
type Lister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo describes one locally installed model.
type ModelInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// chatMessage is the wire shape shared by the llama.cpp and Ollama chat
// endpoints.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toChatMessages(msgs []session.Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}
