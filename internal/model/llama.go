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
	"time"

	"LocalChat/internal/session"
)

// LlamaClient talks to a local llama.cpp server through its
// OpenAI-compatible chat endpoint.
type LlamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// llamaRequest is the request body for /v1/chat/completions.
type llamaRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream"`
}

// llamaResponse covers both the blocking response and streamed chunks.
type llamaResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// NewLlamaClient creates a binding against a llama.cpp server base URL,
// e.g. http://127.0.0.1:8080.
func NewLlamaClient(baseURL string, logger *slog.Logger) *LlamaClient {
	return &LlamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // streams can run for minutes; cancellation comes from ctx
		},
		logger: logger,
	}
}

func (c *LlamaClient) Name() string { return "llama" }

func (c *LlamaClient) Complete(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (string, error) {
	body, err := c.post(ctx, llamaRequest{
		Model:       "local",
		Messages:    toChatMessages(msgs),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Stop:        cfg.StopSequences,
	})
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var resp llamaResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from llama server")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *LlamaClient) Stream(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (<-chan Fragment, error) {
	body, err := c.post(ctx, llamaRequest{
		Model:       "local",
		Messages:    toChatMessages(msgs),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Stop:        cfg.StopSequences,
		Stream:      true,
	})
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
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunk llamaResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.logger.Warn("skipping malformed stream chunk", "error", err)
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				select {
				case out <- Fragment{Text: text}:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			out <- Fragment{Err: fmt.Errorf("stream read failed: %w", err)}
		}
	}()
	return out, nil
}

func (c *LlamaClient) Close() error { return nil }

// post sends the chat request and returns the response body, classifying
// connection failures as ErrModelUnavailable.
func (c *LlamaClient) post(ctx context.Context, reqBody llamaRequest) (io.ReadCloser, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: llama server at %s: %v", ErrModelUnavailable, c.baseURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: llama server: %s - %s", ErrModelUnavailable, resp.Status, string(body))
		}
		return nil, fmt.Errorf("API error: %s - %s", resp.Status, string(body))
	}

	c.logger.Debug("llama request accepted", "elapsed", time.Since(start))
	return resp.Body, nil
}
