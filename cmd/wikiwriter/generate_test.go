package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/wikiwriter/config"
	"github.com/mohammad-safakhou/wikiwriter/internal/runs"
	srv "github.com/mohammad-safakhou/wikiwriter/internal/server"
)

func fakeOllama(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": answer, "done": true})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func loadTestConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"llm": {"base_url": "` + baseURL + `"}, "wikipedia": {"enabled": false}, "storage": {"backend": "memory"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

func TestGenerateOneWritesReports(t *testing.T) {
	doc, _ := json.Marshal(map[string]any{
		"title":      "Octopus",
		"summary":    "An eight-limbed mollusc.",
		"sections":   []map[string]string{{"heading": "Biology", "content": strings.TrimSpace(strings.Repeat("tentacle ", 310))}},
		"references": []map[string]string{{"title": "Octopus", "url": "https://en.wikipedia.org/wiki/Octopus"}},
	})
	ts := fakeOllama(t, string(doc))
	cfg := loadTestConfig(t, ts.URL)

	ctx := context.Background()
	app, err := srv.NewApp(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	out := t.TempDir()
	var stdout bytes.Buffer
	if err := generateOne(ctx, app, "Octopus", "en", out, &stdout); err != nil {
		t.Fatalf("generateOne: %v", err)
	}
	md, err := os.ReadFile(filepath.Join(out, "report.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(md), "# Octopus\n") {
		t.Fatalf("report.md = %q", string(md)[:40])
	}
	if _, err := os.Stat(filepath.Join(out, "report.json")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "Octopus (310 words)") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestGenerateOneReportsFailure(t *testing.T) {
	ts := fakeOllama(t, `{"title": "Octopus", "summary": "s", "sections": [{"heading": "Short", "content": "too short"}]}`)
	cfg := loadTestConfig(t, ts.URL)

	ctx := context.Background()
	app, err := srv.NewApp(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	defer app.Close()

	err = generateOne(ctx, app, "Octopus", "en", t.TempDir(), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "at least 300 words (got 2)") {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(err.Error(), "goroutine") {
		t.Fatalf("stack leaked: %v", err)
	}
}

func TestGenerateRejectsUnsupportedLanguage(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "unused.json")
	cmd := generateCMD(&cfgPath)
	cmd.SetArgs([]string{"--topic", "Octopus", "--language", "fr"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	if !errors.Is(err, runs.ErrUnsupportedLanguage) {
		t.Fatalf("err = %v", err)
	}
}
