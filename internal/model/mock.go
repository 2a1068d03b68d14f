package model

import (
	"context"
	"strings"

	"LocalChat/internal/session"
)

const mockReply = "Mocked assistant reply: no model is loaded. Place a .gguf file in the model/ directory to enable local inference."

// MockClient answers with a canned reply. It stands in when no model file
// exists so the assistant stays usable end to end.
type MockClient struct {
	// Reply overrides the default canned text when non-empty.
	Reply string
}

// NewMockClient returns a mock binding with the default canned reply.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Complete(_ context.Context, _ []session.Message, _ session.GenerationConfig) (string, error) {
	return m.reply(), nil
}

func (m *MockClient) Stream(ctx context.Context, _ []session.Message, _ session.GenerationConfig) (<-chan Fragment, error) {
	out := make(chan Fragment)
	go func() {
		defer close(out)
		// Word-at-a-time fragments exercise the same paths a real stream does.
		words := strings.SplitAfter(m.reply(), " ")
		for _, w := range words {
			select {
			case out <- Fragment{Text: w}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *MockClient) Close() error { return nil }

func (m *MockClient) reply() string {
	if m.Reply != "" {
		return m.Reply
	}
	return mockReply
}
