package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single chat turn. Messages are immutable once
// appended to a session.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage builds a message stamped with the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Session represents one conversation with ordered, append-only messages.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages,omitempty"`
}

// New creates an empty session bound to a model binding name.
func New(model string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Model:     model,
		CreatedAt: time.Now().UTC(),
	}
}

// GenerationConfig holds sampling parameters passed through to the model
// binding. The core does not interpret them beyond range validation.
type GenerationConfig struct {
	MaxTokens     int      `json:"max_tokens"`
	Temperature   float64  `json:"temperature"`
	TopP          float64  `json:"top_p"`
	StopSequences []string `json:"stop,omitempty"`
}

// DefaultGenerationConfig mirrors the defaults the desktop shell uses.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:   256,
		Temperature: 0.2,
		TopP:        0.95,
	}
}

// Validate checks parameter ranges.
func (c GenerationConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be in [0, 2], got %g", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return fmt.Errorf("top_p must be in (0, 1], got %g", c.TopP)
	}
	return nil
}
