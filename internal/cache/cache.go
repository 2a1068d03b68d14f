package cache

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"LocalChat/internal/session"
)

// CachedResponse represents a cached completion.
type CachedResponse struct {
	Response  string
	Timestamp time.Time
}

// Cache memoizes completions keyed on the transcript and the generation
// parameters, so repeating a prompt does not re-run inference.
type Cache struct {
	entries sync.Map
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{}
}

// Key derives a cache key from messages and generation parameters. The
// parameters are part of the key: the same prompt with different sampling
// settings must miss.
func Key(messages []session.Message, cfg session.GenerationConfig) string {
	h := sha256.New()
	for _, msg := range messages {
		h.Write([]byte(msg.Role))
		h.Write([]byte{0})
		h.Write([]byte(msg.Content))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "%d|%g|%g", cfg.MaxTokens, cfg.Temperature, cfg.TopP)
	for _, stop := range cfg.StopSequences {
		h.Write([]byte{0})
		h.Write([]byte(stop))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns a cached response for the key.
func (c *Cache) Get(key string) (string, bool) {
	if val, ok := c.entries.Load(key); ok {
		return val.(CachedResponse).Response, true
	}
	return "", false
}

// Put stores a response under the key.
func (c *Cache) Put(key, response string) {
	c.entries.Store(key, CachedResponse{
		Response:  response,
		Timestamp: time.Now(),
	})
}
