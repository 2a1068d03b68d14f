// Package assistant orchestrates chat turns: it owns the windowed prompt,
// invokes the model binding, and records both sides of the exchange.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"LocalChat/internal/cache"
	"LocalChat/internal/model"
	"LocalChat/internal/session"
	"LocalChat/internal/store"
)

// ErrGenerationInFlight is returned when a turn is requested on a session
// that already has a generation running.
var ErrGenerationInFlight = errors.New("generation already in progress")

// DefaultSystemPrompt frames every conversation.
const DefaultSystemPrompt = "You are a helpful, concise assistant that runs locally."

// DefaultMaxTurns bounds how many user/assistant exchanges are replayed to
// the model per turn.
const DefaultMaxTurns = 16

const titleLimit = 80

// Controller composes the conversation store and the model bindings to
// answer user turns.
type Controller struct {
	store    store.Store
	registry *model.Registry
	binding  string
	cache    *cache.Cache
	logger   *slog.Logger
	tracer   trace.Tracer

	systemPrompt string
	maxTurns     int

	turns     metric.Int64Counter
	cacheHits metric.Int64Counter
	duration  metric.Float64Histogram

	mu       sync.Mutex
	inflight map[string]bool
}

// Option adjusts controller construction.
type Option func(*Controller)

// WithSystemPrompt overrides the default framing prompt.
func WithSystemPrompt(prompt string) Option {
	return func(c *Controller) { c.systemPrompt = prompt }
}

// WithMaxTurns overrides how many exchanges fit in the prompt window.
func WithMaxTurns(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.maxTurns = n
		}
	}
}

// WithTelemetry supplies a tracer and meter; defaults come from the global
// otel providers.
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(c *Controller) {
		c.tracer = tracer
		c.initInstruments(meter)
	}
}

// New builds a controller. defaultBinding is used when a session's binding
// name is not registered.
func New(st store.Store, registry *model.Registry, defaultBinding string, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:        st,
		registry:     registry,
		binding:      defaultBinding,
		cache:        cache.New(),
		logger:       logger,
		tracer:       otel.Tracer("localchat"),
		systemPrompt: DefaultSystemPrompt,
		maxTurns:     DefaultMaxTurns,
		inflight:     make(map[string]bool),
	}
	c.initInstruments(otel.Meter("localchat"))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) initInstruments(meter metric.Meter) {
	var err error
	c.turns, err = meter.Int64Counter("assistant.turns",
		metric.WithDescription("Completed chat turns"))
	if err != nil {
		c.logger.Warn("failed to create turns counter", "error", err)
	}
	c.cacheHits, err = meter.Int64Counter("assistant.cache.hits",
		metric.WithDescription("Turns answered from the response cache"))
	if err != nil {
		c.logger.Warn("failed to create cache hit counter", "error", err)
	}
	c.duration, err = meter.Float64Histogram("model.generation.duration",
		metric.WithDescription("Model generation duration in milliseconds"))
	if err != nil {
		c.logger.Warn("failed to create duration histogram", "error", err)
	}
}

// Respond runs one blocking turn: append the user message, invoke the
// model with the windowed history, append and return the assistant reply.
func (c *Controller) Respond(ctx context.Context, sessionID, userText string, cfg session.GenerationConfig) (session.Message, error) {
	if err := cfg.Validate(); err != nil {
		return session.Message{}, err
	}
	if err := c.acquire(sessionID); err != nil {
		return session.Message{}, err
	}
	defer c.release(sessionID)

	ctx, span := c.tracer.Start(ctx, "assistant.respond",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	client, window, firstReply, err := c.prepareTurn(ctx, sessionID, userText)
	if err != nil {
		return session.Message{}, err
	}

	key := cache.Key(window, cfg)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Info("cache hit", "session_id", sessionID, "key", key[:16])
		if c.cacheHits != nil {
			c.cacheHits.Add(ctx, 1)
		}
		return c.finishTurn(ctx, sessionID, cached, firstReply)
	}

	start := time.Now()
	reply, err := client.Complete(ctx, window, cfg)
	c.recordDuration(ctx, client.Name(), start)
	if err != nil {
		return session.Message{}, fmt.Errorf("generation failed: %w", err)
	}

	c.cache.Put(key, reply)
	if c.turns != nil {
		c.turns.Add(ctx, 1)
	}
	return c.finishTurn(ctx, sessionID, reply, firstReply)
}

// RespondStream runs one turn with incremental delivery. The returned
// channel closes when generation finishes, fails, or ctx is cancelled;
// whatever text accumulated by then is appended to the session.
func (c *Controller) RespondStream(ctx context.Context, sessionID, userText string, cfg session.GenerationConfig) (<-chan model.Fragment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := c.acquire(sessionID); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "assistant.respond_stream",
		trace.WithAttributes(attribute.String("session.id", sessionID)))

	client, window, firstReply, err := c.prepareTurn(ctx, sessionID, userText)
	if err != nil {
		span.End()
		c.release(sessionID)
		return nil, err
	}

	key := cache.Key(window, cfg)
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Info("cache hit", "session_id", sessionID, "key", key[:16])
		if c.cacheHits != nil {
			c.cacheHits.Add(ctx, 1)
		}
		ch := make(chan model.Fragment, 1)
		ch <- model.Fragment{Text: cached}
		close(ch)
		_, err := c.finishTurn(ctx, sessionID, cached, firstReply)
		span.End()
		c.release(sessionID)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}

	start := time.Now()
	fragments, err := client.Stream(ctx, window, cfg)
	if err != nil {
		span.End()
		c.release(sessionID)
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	out := make(chan model.Fragment)
	go func() {
		defer c.release(sessionID)
		defer span.End()
		defer close(out)

		var sb strings.Builder
		var streamErr error
		for frag := range fragments {
			if frag.Err != nil {
				streamErr = frag.Err
			}
			sb.WriteString(frag.Text)
			select {
			case out <- frag:
			case <-ctx.Done():
				streamErr = ctx.Err()
			}
			if streamErr != nil {
				break
			}
		}
		c.recordDuration(ctx, client.Name(), start)

		reply := sb.String()
		if reply == "" {
			// Nothing generated: no assistant message is recorded.
			return
		}

		// Persist even when the caller cancelled mid-stream; the partial
		// text is what the user saw.
		persistCtx := context.WithoutCancel(ctx)
		if _, err := c.finishTurn(persistCtx, sessionID, reply, firstReply); err != nil {
			c.logger.Error("failed to persist assistant message", "session_id", sessionID, "error", err)
		}
		if streamErr == nil && ctx.Err() == nil {
			c.cache.Put(key, reply)
			if c.turns != nil {
				c.turns.Add(persistCtx, 1)
			}
		}
	}()
	return out, nil
}

// prepareTurn appends the user message, loads the session, resolves the
// binding, and builds the prompt window. firstReply reports whether the
// assistant has never spoken in this session.
func (c *Controller) prepareTurn(ctx context.Context, sessionID, userText string) (model.Client, []session.Message, bool, error) {
	userMsg := session.NewMessage(session.RoleUser, userText)
	if err := c.store.Append(ctx, sessionID, userMsg); err != nil {
		return nil, nil, false, err
	}

	sess, err := c.store.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, false, err
	}

	binding := sess.Model
	client, ok := c.registry.Get(binding)
	if !ok {
		client, ok = c.registry.Get(c.binding)
	}
	if !ok {
		return nil, nil, false, fmt.Errorf("%w: no binding registered for %q", model.ErrModelUnavailable, binding)
	}

	firstReply := true
	for _, m := range sess.Messages {
		if m.Role == session.RoleAssistant {
			firstReply = false
			break
		}
	}

	return client, c.window(sess.Messages), firstReply, nil
}

// finishTurn appends the assistant reply and assigns a title on the first
// exchange of a session.
func (c *Controller) finishTurn(ctx context.Context, sessionID, reply string, firstReply bool) (session.Message, error) {
	asstMsg := session.NewMessage(session.RoleAssistant, reply)
	if err := c.store.Append(ctx, sessionID, asstMsg); err != nil {
		return session.Message{}, err
	}

	if firstReply {
		if err := c.store.SetTitle(ctx, sessionID, TitleFor(reply)); err != nil {
			c.logger.Warn("failed to set session title", "session_id", sessionID, "error", err)
		}
	}
	return asstMsg, nil
}

// window prepends the system prompt and keeps only the most recent turns.
func (c *Controller) window(history []session.Message) []session.Message {
	limit := c.maxTurns * 2
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	window := make([]session.Message, 0, len(history)+1)
	window = append(window, session.Message{
		Role:      session.RoleSystem,
		Content:   c.systemPrompt,
		Timestamp: time.Now().UTC(),
	})
	return append(window, history...)
}

// TitleFor derives a session title from the first assistant reply: its
// first line, trimmed to 80 runes.
func TitleFor(reply string) string {
	title := strings.TrimSpace(reply)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > titleLimit {
		title = string(runes[:titleLimit])
	}
	return title
}

func (c *Controller) acquire(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[sessionID] {
		return fmt.Errorf("%w: session %s", ErrGenerationInFlight, sessionID)
	}
	c.inflight[sessionID] = true
	return nil
}

func (c *Controller) release(sessionID string) {
	c.mu.Lock()
	delete(c.inflight, sessionID)
	c.mu.Unlock()
}

func (c *Controller) recordDuration(ctx context.Context, binding string, start time.Time) {
	if c.duration == nil {
		return
	}
	c.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("binding", binding)))
}
