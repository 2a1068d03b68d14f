package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"LocalChat/internal/api"
	"LocalChat/internal/assistant"
	"LocalChat/internal/config"
	"LocalChat/internal/memory"
	"LocalChat/internal/model"
	"LocalChat/internal/store"
	"LocalChat/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to a TOML config file")
	binding := flag.String("binding", "", "Model binding: llama, ollama, subprocess, or mock")
	modelPath := flag.String("model", "", "Path to a .gguf model file (default: auto-discover)")
	storeKind := flag.String("store", "", "Session store: sqlite or memory")
	dbPath := flag.String("db", "", "Path to the sqlite database file")
	addr := flag.String("addr", "", "Serve the local HTTP API on this address instead of the REPL")
	sessionID := flag.String("session-id", "", "Resume an existing session in the REPL")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Warning: failed to load .env file:", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// Flags win over file and environment.
	if *binding != "" {
		cfg.Binding = *binding
	}
	if *modelPath != "" {
		cfg.ModelPath = *modelPath
	}
	if *storeKind != "" {
		cfg.Store = *storeKind
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *sessionID != "" {
		cfg.SessionID = *sessionID
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("starting localchat", "binding", cfg.Binding, "store", cfg.Store)

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer cleanup()

	var (
		st    store.Store
		facts memory.Store
	)
	switch cfg.Store {
	case config.StoreSQLite:
		sqlStore, err := store.OpenSQLite(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		facts, err = memory.NewSQLiteStore(sqlStore.DB())
		if err != nil {
			return fmt.Errorf("failed to open memory store: %w", err)
		}
		st = sqlStore
	case config.StoreMemory:
		st = store.NewMemoryStore()
		facts = memory.NewMapStore()
	}
	defer st.Close()

	registry, activeBinding := buildRegistry(cfg, logger)
	defer registry.Close()

	ctrl := assistant.New(st, registry, activeBinding, logger,
		assistant.WithTelemetry(tracer, meter),
		assistant.WithMaxTurns(cfg.MaxTurns),
		assistant.WithSystemPrompt(systemPrompt(cfg)),
	)

	if cfg.Addr != "" {
		return serve(ctx, cfg, ctrl, st, facts, activeBinding, logger)
	}

	repl := assistant.NewREPL(ctrl, st, facts, registry, activeBinding, logger)
	if cfg.SessionID != "" {
		repl.Resume(cfg.SessionID)
	}
	return repl.Run(ctx)
}

// buildRegistry registers every usable binding and returns the one new
// sessions should use. A missing model file or binary falls back to the
// mock binding with a notice rather than aborting startup.
func buildRegistry(cfg config.Config, logger *slog.Logger) (*model.Registry, string) {
	registry := model.NewRegistry()
	registry.Register(model.NewMockClient())
	registry.Register(model.NewLlamaClient(cfg.LlamaURL, logger))
	registry.Register(model.NewOllamaClient(cfg.OllamaURL, cfg.OllamaModel, logger))

	active := cfg.Binding
	if cfg.Binding == config.BindingSubprocess {
		path := cfg.ModelPath
		var err error
		if path == "" {
			path, err = model.FindModelFile(model.DefaultSearchPaths(cfg.ModelDir)...)
		}
		var sub *model.SubprocessClient
		if err == nil {
			sub, err = model.NewSubprocessClient(cfg.Binary, path, logger)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "No local model available, using mocked replies:", err)
			logger.Warn("subprocess binding unavailable, falling back to mock", "error", err)
			active = config.BindingMock
		} else {
			registry.Register(sub)
		}
	}
	return registry, active
}

func systemPrompt(cfg config.Config) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return assistant.DefaultSystemPrompt
}

// serve runs the local HTTP API used by GUI front ends.
func serve(ctx context.Context, cfg config.Config, ctrl *assistant.Controller, st store.Store, facts memory.Store, binding string, logger *slog.Logger) error {
	server := api.NewServer(ctrl, st, facts, binding, logger)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
