package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "localchat.toml")
	data := `
binding = "ollama"
ollama_model = "qwen2:7b"
store = "memory"
max_turns = 4
debug = true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Binding != BindingOllama {
		t.Errorf("binding = %q, want %q", cfg.Binding, BindingOllama)
	}
	if cfg.OllamaModel != "qwen2:7b" {
		t.Errorf("ollama_model = %q", cfg.OllamaModel)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("store = %q, want memory", cfg.Store)
	}
	if cfg.MaxTurns != 4 {
		t.Errorf("max_turns = %d, want 4", cfg.MaxTurns)
	}
	if !cfg.Debug {
		t.Error("debug not set")
	}
	// Untouched fields keep their defaults.
	if cfg.LlamaURL != Default().LlamaURL {
		t.Errorf("llama_url = %q, want default", cfg.LlamaURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "localchat.toml")
	if err := os.WriteFile(path, []byte(`binding = "llama"`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOCALCHAT_BINDING", "mock")
	t.Setenv("LOCALCHAT_MAX_TURNS", "8")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Binding != BindingMock {
		t.Errorf("binding = %q, want mock", cfg.Binding)
	}
	if cfg.MaxTurns != 8 {
		t.Errorf("max_turns = %d, want 8", cfg.MaxTurns)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"binding", func(c *Config) { c.Binding = "cloud" }},
		{"store", func(c *Config) { c.Store = "postgres" }},
		{"db path", func(c *Config) { c.DBPath = "" }},
		{"max turns", func(c *Config) { c.MaxTurns = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.toml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
