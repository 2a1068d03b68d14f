package session

import "testing"

func TestGenerationConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*GenerationConfig)
		wantErr bool
	}{
		{"defaults", func(*GenerationConfig) {}, false},
		{"zero max tokens", func(c *GenerationConfig) { c.MaxTokens = 0 }, true},
		{"negative temperature", func(c *GenerationConfig) { c.Temperature = -0.1 }, true},
		{"temperature too high", func(c *GenerationConfig) { c.Temperature = 2.5 }, true},
		{"greedy temperature", func(c *GenerationConfig) { c.Temperature = 0 }, false},
		{"zero top_p", func(c *GenerationConfig) { c.TopP = 0 }, true},
		{"top_p of one", func(c *GenerationConfig) { c.TopP = 1 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultGenerationConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	a := New("llama")
	b := New("llama")
	if a.ID == b.ID {
		t.Fatal("session IDs must be unique")
	}
	if a.Model != "llama" || len(a.Messages) != 0 {
		t.Fatalf("unexpected session: %+v", a)
	}
}
