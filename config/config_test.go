package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.ModelID != "ollama/mistral" {
		t.Fatalf("model: %q", cfg.LLM.ModelID)
	}
	if cfg.LLM.BaseURL != "http://127.0.0.1:11434" {
		t.Fatalf("base url: %q", cfg.LLM.BaseURL)
	}
	if cfg.Content.MinWords != 300 {
		t.Fatalf("min words: %d", cfg.Content.MinWords)
	}
	if len(cfg.Content.AllowedDomains) != 1 || cfg.Content.AllowedDomains[0] != "wikipedia.org" {
		t.Fatalf("allowed domains: %v", cfg.Content.AllowedDomains)
	}
	if cfg.Runs.Timeout != 15*time.Minute {
		t.Fatalf("run timeout: %v", cfg.Runs.Timeout)
	}
	if cfg.Storage.Backend != "memory" {
		t.Fatalf("backend: %q", cfg.Storage.Backend)
	}
	if len(cfg.Server.AllowOrigins) != 1 || cfg.Server.AllowOrigins[0] != "http://localhost:3000" {
		t.Fatalf("origins: %v", cfg.Server.AllowOrigins)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `{
		"llm": {"model_id": "ollama/llama3", "temperature": 0.5},
		"content": {"min_words": 50, "allowed_domains": [" Britannica.com ", ""]},
		"runs": {"workers": 4, "timeout": "2m"},
		"storage": {"backend": "REDIS", "redis": {"host": "cache", "port": "6380"}}
	}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.ModelID != "ollama/llama3" || cfg.LLM.Temperature != 0.5 {
		t.Fatalf("llm: %+v", cfg.LLM)
	}
	if cfg.Content.MinWords != 50 {
		t.Fatalf("min words: %d", cfg.Content.MinWords)
	}
	if len(cfg.Content.AllowedDomains) != 1 || cfg.Content.AllowedDomains[0] != "britannica.com" {
		t.Fatalf("allowed domains: %v", cfg.Content.AllowedDomains)
	}
	if cfg.Runs.Workers != 4 || cfg.Runs.Timeout != 2*time.Minute {
		t.Fatalf("runs: %+v", cfg.Runs)
	}
	if cfg.Storage.Backend != "redis" || cfg.Storage.Redis.Host != "cache" || cfg.Storage.Redis.Port != "6380" {
		t.Fatalf("storage: %+v", cfg.Storage)
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfigEnvAliases(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MODEL_ID", "ollama/phi3")
	t.Setenv("OLLAMA_HOST", "10.0.0.5:11434")
	t.Setenv("ALLOW_ORIGINS", `["https://a.example","https://b.example"]`)
	t.Setenv("WIKIWRITER_RUNS_QUEUE_SIZE", "7")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.ModelID != "ollama/phi3" {
		t.Fatalf("model: %q", cfg.LLM.ModelID)
	}
	if cfg.LLM.BaseURL != "http://10.0.0.5:11434" {
		t.Fatalf("base url: %q", cfg.LLM.BaseURL)
	}
	if len(cfg.Server.AllowOrigins) != 2 || cfg.Server.AllowOrigins[1] != "https://b.example" {
		t.Fatalf("origins: %v", cfg.Server.AllowOrigins)
	}
	if cfg.Runs.QueueSize != 7 {
		t.Fatalf("queue size: %d", cfg.Runs.QueueSize)
	}
}

func TestLoadConfigPrefixedEnvWinsOverAlias(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MODEL_ID", "ollama/phi3")
	t.Setenv("WIKIWRITER_LLM_MODEL_ID", "ollama/gemma")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LLM.ModelID != "ollama/gemma" {
		t.Fatalf("model: %q", cfg.LLM.ModelID)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative words", `{"content": {"min_words": -1}}`},
		{"unknown backend", `{"storage": {"backend": "postgres"}}`},
		{"redis without host", `{"storage": {"backend": "redis", "redis": {"host": " "}}}`},
		{"negative workers", `{"runs": {"workers": -2}}`},
		{"temperature", `{"llm": {"temperature": 3}}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore cwd: %v", err)
		}
	})
}
