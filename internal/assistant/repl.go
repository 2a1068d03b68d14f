package assistant

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"LocalChat/internal/memory"
	"LocalChat/internal/model"
	"LocalChat/internal/session"
	"LocalChat/internal/store"
)

// REPL is the interactive terminal front-end. The desktop GUI replaces it
// when one is attached over the local API.
type REPL struct {
	ctrl     *Controller
	store    store.Store
	facts    memory.Store
	registry *model.Registry
	logger   *slog.Logger

	binding  string
	genCfg   session.GenerationConfig
	current  *session.Session
	resumeID string

	in  io.Reader
	out io.Writer
}

// NewREPL wires the interactive loop. binding names the model binding used
// for new sessions.
func NewREPL(ctrl *Controller, st store.Store, facts memory.Store, registry *model.Registry, binding string, logger *slog.Logger) *REPL {
	return &REPL{
		ctrl:     ctrl,
		store:    st,
		facts:    facts,
		registry: registry,
		logger:   logger,
		binding:  binding,
		genCfg:   session.DefaultGenerationConfig(),
		in:       os.Stdin,
		out:      os.Stdout,
	}
}

// Resume makes Run pick up an existing session instead of starting a new one.
func (r *REPL) Resume(id string) {
	r.resumeID = id
}

// Run starts the interactive loop and blocks until /quit, EOF, or ctx
// cancellation.
func (r *REPL) Run(ctx context.Context) error {
	var sess *session.Session
	var err error
	if r.resumeID != "" {
		sess, err = r.store.Get(ctx, r.resumeID)
		if err != nil {
			return fmt.Errorf("failed to resume session %s: %w", r.resumeID, err)
		}
	} else {
		sess, err = r.store.NewSession(ctx, r.binding)
		if err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}
	r.current = sess

	fmt.Fprintln(r.out, "=== LocalChat ===")
	fmt.Fprintf(r.out, "Session: %s\n", sess.ID)
	fmt.Fprintf(r.out, "Binding: %s\n", r.binding)
	fmt.Fprintln(r.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(r.out)

	scanner := bufio.NewScanner(r.in)
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.out, "You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				r.logger.Error("command error", "error", err)
			}
			if quit {
				break
			}
			continue
		}

		if err := r.sendTurn(ctx, input); err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
			r.logger.Error("failed to send message", "error", err)
		}
	}

	fmt.Fprintln(r.out, "Goodbye!")
	return scanner.Err()
}

// sendTurn streams one reply to the terminal as it generates.
func (r *REPL) sendTurn(ctx context.Context, input string) error {
	fragments, err := r.ctrl.RespondStream(ctx, r.current.ID, input, r.genCfg)
	if err != nil {
		return err
	}

	fmt.Fprint(r.out, "Bot: ")
	var failed error
	for frag := range fragments {
		if frag.Err != nil {
			failed = frag.Err
			break
		}
		fmt.Fprint(r.out, frag.Text)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out)
	return failed
}

func (r *REPL) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new-session":
		sess, err := r.store.NewSession(ctx, r.binding)
		if err != nil {
			return false, err
		}
		r.current = sess
		fmt.Fprintln(r.out, "Started new session:", sess.ID)
		return false, nil

	case "/sessions":
		sessions, err := r.store.List(ctx, 20)
		if err != nil {
			return false, err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(r.out, "No sessions yet.")
			return false, nil
		}
		fmt.Fprintln(r.out, "\nRecent sessions:")
		for i, sess := range sessions {
			title := sess.Title
			if title == "" {
				title = "(untitled)"
			}
			current := ""
			if sess.ID == r.current.ID {
				current = " (current)"
			}
			fmt.Fprintf(r.out, "%d. %s - %s%s\n", i+1, sess.ID, title, current)
		}
		fmt.Fprintln(r.out)
		return false, nil

	case "/load":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /load <session-id>")
		}
		sess, err := r.store.Get(ctx, parts[1])
		if err != nil {
			return false, err
		}
		r.current = sess
		fmt.Fprintf(r.out, "Loaded session %s (%d messages)\n", sess.ID, len(sess.Messages))
		for _, msg := range sess.Messages {
			switch msg.Role {
			case session.RoleUser:
				fmt.Fprintf(r.out, "You: %s\n", msg.Content)
			case session.RoleAssistant:
				fmt.Fprintf(r.out, "Bot: %s\n", msg.Content)
			}
		}
		fmt.Fprintln(r.out)
		return false, nil

	case "/remember":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /remember <key> <value>")
		}
		key := parts[1]
		value := strings.Join(parts[2:], " ")
		if err := r.facts.Remember(ctx, key, value); err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "Remembered %s = %s\n", key, value)
		return false, nil

	case "/recall":
		if len(parts) < 2 {
			facts, err := r.facts.All(ctx)
			if err != nil {
				return false, err
			}
			if len(facts) == 0 {
				fmt.Fprintln(r.out, "Nothing remembered yet.")
				return false, nil
			}
			for _, f := range facts {
				fmt.Fprintf(r.out, "%s = %s\n", f.Key, f.Value)
			}
			return false, nil
		}
		value, err := r.facts.Recall(ctx, parts[1])
		if errors.Is(err, memory.ErrNoFact) {
			fmt.Fprintf(r.out, "Nothing remembered for %q\n", parts[1])
			return false, nil
		}
		if err != nil {
			return false, err
		}
		fmt.Fprintf(r.out, "%s = %s\n", parts[1], value)
		return false, nil

	case "/forget":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /forget <key>")
		}
		if err := r.facts.Forget(ctx, parts[1]); err != nil {
			if errors.Is(err, memory.ErrNoFact) {
				fmt.Fprintf(r.out, "Nothing remembered for %q\n", parts[1])
				return false, nil
			}
			return false, err
		}
		fmt.Fprintf(r.out, "Forgot %s\n", parts[1])
		return false, nil

	case "/switch":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /switch <binding> (%s)", strings.Join(r.registry.Names(), "|"))
		}
		name := parts[1]
		if _, ok := r.registry.Get(name); !ok {
			return false, fmt.Errorf("unknown binding: %s", name)
		}
		r.binding = name
		fmt.Fprintf(r.out, "New sessions will use the %s binding (/new-session to start one)\n", name)
		return false, nil

	case "/models":
		client, ok := r.registry.Get(r.binding)
		if !ok {
			return false, fmt.Errorf("unknown binding: %s", r.binding)
		}
		lister, ok := client.(model.Lister)
		if !ok {
			fmt.Fprintf(r.out, "The %s binding does not list models.\n", r.binding)
			return false, nil
		}
		models, err := lister.ListModels(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to list models: %w", err)
		}
		fmt.Fprintln(r.out, "\nAvailable models:")
		for i, m := range models {
			sizeGB := float64(m.Size) / (1024 * 1024 * 1024)
			fmt.Fprintf(r.out, "%d. %s - %.2f GB\n", i+1, m.Name, sizeGB)
		}
		fmt.Fprintln(r.out)
		return false, nil

	case "/set-model":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /set-model <model:version>")
		}
		client, ok := r.registry.Get(r.binding)
		if !ok {
			return false, fmt.Errorf("unknown binding: %s", r.binding)
		}
		ollama, ok := client.(*model.OllamaClient)
		if !ok {
			fmt.Fprintf(r.out, "The %s binding has a fixed model.\n", r.binding)
			return false, nil
		}
		ollama.SetModel(parts[1])
		fmt.Fprintf(r.out, "Model set to: %s\n", parts[1])
		return false, nil

	case "/help":
		fmt.Fprintln(r.out, "Available commands:")
		fmt.Fprintln(r.out, "  /quit, /exit              - Exit")
		fmt.Fprintln(r.out, "  /new-session              - Start a new chat session")
		fmt.Fprintln(r.out, "  /sessions                 - List recent sessions")
		fmt.Fprintln(r.out, "  /load <id>                - Resume a saved session")
		fmt.Fprintln(r.out, "  /remember <key> <value>   - Store a fact")
		fmt.Fprintln(r.out, "  /recall [key]             - Recall a fact (or all)")
		fmt.Fprintln(r.out, "  /forget <key>             - Delete a fact")
		fmt.Fprintln(r.out, "  /switch <binding>         - Choose binding for new sessions")
		fmt.Fprintln(r.out, "  /models                   - List installed models")
		fmt.Fprintln(r.out, "  /set-model <model>        - Set the Ollama model")
		fmt.Fprintln(r.out, "  /help                     - Show this help message")
		return false, nil

	default:
		fmt.Fprintf(r.out, "Unknown command %s (try /help)\n", parts[0])
		return false, nil
	}
}
