package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"LocalChat/internal/session"
)

// OllamaClient talks to a local Ollama daemon.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// ollamaRequest represents the request body for the Ollama chat API.
type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ollamaResponse represents one response object; in streaming mode every
// NDJSON line has this shape.
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// ollamaTagsResponse represents the response from the /api/tags endpoint.
type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
	} `json:"models"`
}

// NewOllamaClient creates a binding against an Ollama daemon, defaulting to
// the standard localhost address when baseURL is empty.
func NewOllamaClient(baseURL, model string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (c *OllamaClient) Name() string { return "ollama" }

// SetModel switches the active model specification (e.g. "llama3:latest").
func (c *OllamaClient) SetModel(model string) { c.model = model }

// Model returns the current model specification.
func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) Complete(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (string, error) {
	body, err := c.post(ctx, c.request(msgs, cfg, false))
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var resp ollamaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return resp.Message.Content, nil
}

func (c *OllamaClient) Stream(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (<-chan Fragment, error) {
	body, err := c.post(ctx, c.request(msgs, cfg, true))
	if err != nil {
		return nil, err
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var chunk ollamaResponse
			if err := json.Unmarshal(scanner.Bytes(), &chunk); err != nil {
				c.logger.Warn("skipping malformed stream chunk", "error", err)
				continue
			}
			if chunk.Message.Content != "" {
				select {
				case out <- Fragment{Text: chunk.Message.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- Fragment{Err: fmt.Errorf("stream read failed: %w", err)}
		}
	}()
	return out, nil
}

// ListModels fetches the locally installed models from /api/tags.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: is Ollama running? %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(data))
	}

	var tags ollamaTagsResponse
	if err := json.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	models := make([]ModelInfo, len(tags.Models))
	for i, m := range tags.Models {
		models[i] = ModelInfo{Name: m.Name, Size: m.Size}
	}
	return models, nil
}

func (c *OllamaClient) Close() error { return nil }

func (c *OllamaClient) request(msgs []session.Message, cfg session.GenerationConfig, stream bool) ollamaRequest {
	return ollamaRequest{
		Model:    c.model,
		Messages: toChatMessages(msgs),
		Stream:   stream,
		Options: map[string]any{
			"num_predict": cfg.MaxTokens,
			"temperature": cfg.Temperature,
			"top_p":       cfg.TopP,
			"stop":        cfg.StopSequences,
		},
	}
}

func (c *OllamaClient) post(ctx context.Context, reqBody ollamaRequest) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: is Ollama running? %v", ErrModelUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: model %q not installed: %s", ErrModelUnavailable, c.model, string(body))
		}
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}
	return resp.Body, nil
}
