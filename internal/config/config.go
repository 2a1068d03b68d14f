package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Model binding names.
const (
	BindingLlama      = "llama"
	BindingOllama     = "ollama"
	BindingSubprocess = "subprocess"
	BindingMock       = "mock"
)

// Store kinds.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds application configuration.
type Config struct {
	Binding     string `toml:"binding"`      // model binding for new sessions
	ModelPath   string `toml:"model_path"`   // explicit .gguf path; empty = auto-discover
	ModelDir    string `toml:"model_dir"`    // directory scanned for .gguf files
	Binary      string `toml:"binary"`       // inference binary for the subprocess binding
	LlamaURL    string `toml:"llama_url"`    // llama.cpp server base URL
	OllamaURL   string `toml:"ollama_url"`   // Ollama daemon base URL
	OllamaModel string `toml:"ollama_model"` // model spec, format "model:version"

	Store  string `toml:"store"`   // sqlite | memory
	DBPath string `toml:"db_path"` // sqlite database file

	SystemPrompt string `toml:"system_prompt"`
	MaxTurns     int    `toml:"max_turns"` // exchanges replayed to the model

	Addr   string `toml:"addr"` // listen address for the GUI API; empty = REPL only
	LogDir string `toml:"log_dir"`
	Debug  bool   `toml:"debug"`

	SessionID string `toml:"-"` // resume an existing session (flag only)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Binding:     BindingLlama,
		ModelDir:    "model",
		Binary:      "llama-cli",
		LlamaURL:    "http://127.0.0.1:8080",
		OllamaURL:   "http://localhost:11434",
		OllamaModel: "llama3:latest",
		Store:       StoreSQLite,
		DBPath:      "localchat.db",
		MaxTurns:    16,
		LogDir:      "logs",
	}
}

// Load reads defaults, then the TOML file at path (if non-empty), then
// LOCALCHAT_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&c.Binding, "LOCALCHAT_BINDING")
	setString(&c.ModelPath, "LOCALCHAT_MODEL_PATH")
	setString(&c.ModelDir, "LOCALCHAT_MODEL_DIR")
	setString(&c.Binary, "LOCALCHAT_BINARY")
	setString(&c.LlamaURL, "LOCALCHAT_LLAMA_URL")
	setString(&c.OllamaURL, "LOCALCHAT_OLLAMA_URL")
	setString(&c.OllamaModel, "LOCALCHAT_OLLAMA_MODEL")
	setString(&c.Store, "LOCALCHAT_STORE")
	setString(&c.DBPath, "LOCALCHAT_DB")
	setString(&c.SystemPrompt, "LOCALCHAT_SYSTEM_PROMPT")
	setString(&c.Addr, "LOCALCHAT_ADDR")
	setString(&c.LogDir, "LOCALCHAT_LOG_DIR")

	if v := strings.TrimSpace(os.Getenv("LOCALCHAT_MAX_TURNS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxTurns = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOCALCHAT_DEBUG")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	switch c.Binding {
	case BindingLlama, BindingOllama, BindingSubprocess, BindingMock:
	default:
		return fmt.Errorf("unknown binding: %s", c.Binding)
	}
	switch c.Store {
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown store: %s", c.Store)
	}
	if c.Store == StoreSQLite && c.DBPath == "" {
		return fmt.Errorf("db_path is required for the sqlite store")
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("max_turns must be positive, got %d", c.MaxTurns)
	}
	return nil
}
