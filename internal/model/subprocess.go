package model

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"LocalChat/internal/session"
)

// SubprocessClient drives a local inference binary over stdin/stdout. The
// binary receives one JSON request per line and answers with JSON lines of
// the form {"id": n, "content": "...", "done": bool, "error": "..."} until
// done. Chunks echo the request id; a cancelled generation leaves its
// remaining lines in the pipe, and the id is what keeps them out of the
// next exchange's reply.
type SubprocessClient struct {
	modelPath string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	scanner   *bufio.Scanner
	logger    *slog.Logger
	mu        sync.Mutex
	nextID    uint64
	closed    bool
}

type subprocessRequest struct {
	ID          uint64        `json:"id"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stop        []string      `json:"stop,omitempty"`
}

type subprocessChunk struct {
	ID      uint64 `json:"id"`
	Content string `json:"content"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

// NewSubprocessClient launches the inference binary with the model file.
// A missing binary or model file surfaces as ErrModelUnavailable.
func NewSubprocessClient(binary, modelPath string, logger *slog.Logger) (*SubprocessClient, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model file %s: %v", ErrModelUnavailable, modelPath, err)
	}

	cmd := exec.Command(binary, "--model", modelPath)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return nil, fmt.Errorf("%w: failed to start %s: %v", ErrModelUnavailable, binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	c := &SubprocessClient{
		modelPath: modelPath,
		cmd:       cmd,
		stdin:     stdin,
		scanner:   scanner,
		logger:    logger,
	}

	go c.logStderr(stderr)

	logger.Info("started inference subprocess", "binary", binary, "model", modelPath)
	return c, nil
}

func (c *SubprocessClient) Name() string { return "subprocess" }

func (c *SubprocessClient) Complete(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (string, error) {
	fragments, err := c.Stream(ctx, msgs, cfg)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for frag := range fragments {
		if frag.Err != nil {
			return "", frag.Err
		}
		sb.WriteString(frag.Text)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (c *SubprocessClient) Stream(ctx context.Context, msgs []session.Message, cfg session.GenerationConfig) (<-chan Fragment, error) {
	// The binary handles one generation at a time; the lock holds for the
	// whole exchange so interleaved requests cannot corrupt the protocol.
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: subprocess closed", ErrModelUnavailable)
	}

	c.nextID++
	id := c.nextID

	req := subprocessRequest{
		ID:          id,
		Messages:    toChatMessages(msgs),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Stop:        cfg.StopSequences,
	}
	requestJSON, err := json.Marshal(req)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(requestJSON, '\n')); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: failed to write request: %v", ErrModelUnavailable, err)
	}

	out := make(chan Fragment)
	go func() {
		defer c.mu.Unlock()
		defer close(out)

		for c.scanner.Scan() {
			var chunk subprocessChunk
			if err := json.Unmarshal(c.scanner.Bytes(), &chunk); err != nil {
				c.logger.Warn("skipping malformed subprocess chunk", "error", err)
				continue
			}
			if chunk.ID != id {
				// Leftover line from a generation the caller abandoned.
				continue
			}
			if chunk.Error != "" {
				out <- Fragment{Err: fmt.Errorf("inference failed: %s", chunk.Error)}
				return
			}
			if chunk.Content != "" {
				select {
				case out <- Fragment{Text: chunk.Content}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := c.scanner.Err(); err != nil {
			out <- Fragment{Err: fmt.Errorf("%w: subprocess read failed: %v", ErrModelUnavailable, err)}
			return
		}
		out <- Fragment{Err: fmt.Errorf("%w: EOF from subprocess", ErrModelUnavailable)}
	}()
	return out, nil
}

func (c *SubprocessClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.stdin != nil {
		c.stdin.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			c.logger.Warn("failed to kill inference subprocess", "error", err)
		}
		c.cmd.Wait()
	}

	c.logger.Info("closed inference subprocess", "model", c.modelPath)
	return nil
}

func (c *SubprocessClient) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		c.logger.Warn("inference subprocess stderr", "message", scanner.Text())
	}
}
