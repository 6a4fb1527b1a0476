package crew

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mohammad-safakhou/wikiwriter/internal/stage"
	"github.com/mohammad-safakhou/wikiwriter/internal/wikipedia"
)

type fakeResearcher struct {
	page wikipedia.Page
	err  error
}

func (f fakeResearcher) Lookup(context.Context, string, string) (wikipedia.Page, error) {
	return f.page, f.err
}

const finalJSON = `{"title":"Octopus","summary":"s","sections":[{"heading":"Anatomy","content":"Three hearts."}]}`

func scriptedLLM(t *testing.T, seen *[]Request) LLM {
	t.Helper()
	var mu sync.Mutex
	return LLMFunc(func(_ context.Context, req Request) (string, error) {
		mu.Lock()
		*seen = append(*seen, req)
		n := len(*seen)
		mu.Unlock()
		switch n {
		case 1:
			return "- Octopuses have three hearts. https://en.wikipedia.org/wiki/Octopus", nil
		case 2:
			return "```json\n" + finalJSON + "\n```", nil
		case 3:
			return `{"overall_status":"needs_fixes","issues":[{"section_heading":"Anatomy","excerpt_or_claim":"Three hearts.","verdict":"missing_citation","suggested_fix":"cite it"}]}`, nil
		default:
			return finalJSON, nil
		}
	})
}

func TestPipelineGenerate(t *testing.T) {
	t.Parallel()
	var seen []Request
	researcher := fakeResearcher{page: wikipedia.Page{Language: "en", Title: "Octopus", URL: "https://en.wikipedia.org/wiki/Octopus", Extract: "Octopus notes."}}
	p, err := NewPipeline(scriptedLLM(t, &seen), researcher, 300, nil)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	res, err := p.Generate(context.Background(), stage.Inputs{Topic: "Octopus", Language: "en"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(res.Tasks) != 4 {
		t.Fatalf("expected 4 task outputs, got %d", len(res.Tasks))
	}
	names := []string{res.Tasks[0].Name, res.Tasks[1].Name, res.Tasks[2].Name, res.Tasks[3].Name}
	if strings.Join(names, ",") != "research,write,fact_check,edit" {
		t.Fatalf("stage order = %v", names)
	}
	if res.Raw != finalJSON {
		t.Fatalf("root output = %q", res.Raw)
	}

	if !strings.Contains(seen[0].Prompt, "Octopus notes.") {
		t.Fatalf("research prompt missing notes: %q", seen[0].Prompt)
	}
	if seen[0].JSON || !seen[1].JSON {
		t.Fatalf("json flags wrong: research=%v write=%v", seen[0].JSON, seen[1].JSON)
	}
	if !strings.Contains(seen[1].Prompt, "at least 300 words") || !strings.Contains(seen[1].Prompt, "https://en.wikipedia.org/wiki/Octopus") {
		t.Fatalf("write prompt = %q", seen[1].Prompt)
	}
	if strings.Contains(seen[2].Prompt, "```") {
		t.Fatalf("fact check prompt should see the unfenced draft: %q", seen[2].Prompt)
	}
	if !strings.Contains(seen[3].Prompt, "[missing_citation] Anatomy: Three hearts. (fix: cite it)") {
		t.Fatalf("edit prompt missing fact check issues: %q", seen[3].Prompt)
	}

	d, err := stage.Collector{}.Draft(res)
	if err != nil || d.Title != "Octopus" {
		t.Fatalf("collect = %+v, %v", d, err)
	}
}

func TestPipelineResearchFailureIsNotFatal(t *testing.T) {
	t.Parallel()
	var seen []Request
	p, err := NewPipeline(scriptedLLM(t, &seen), fakeResearcher{err: wikipedia.ErrNoResults}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Generate(context.Background(), stage.Inputs{Topic: "Octopus", Language: "pt"}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(seen[0].Prompt, "no notes were found") || !strings.Contains(seen[0].Prompt, "Portuguese") {
		t.Fatalf("research prompt = %q", seen[0].Prompt)
	}
}

func TestPipelineStageError(t *testing.T) {
	t.Parallel()
	boom := errors.New("model offline")
	calls := 0
	llm := LLMFunc(func(context.Context, Request) (string, error) {
		calls++
		if calls == 2 {
			return "", boom
		}
		return "notes", nil
	})
	p, err := NewPipeline(llm, nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Generate(context.Background(), stage.Inputs{Topic: "Octopus"})
	var genErr *stage.GenerationError
	if !errors.As(err, &genErr) || genErr.Stage != StageWrite || !errors.Is(err, boom) {
		t.Fatalf("expected write-stage GenerationError, got %v", err)
	}
	if len(res.Tasks) != 1 {
		t.Fatalf("completed stages should be kept, got %d", len(res.Tasks))
	}
}

func TestParseFactCheck(t *testing.T) {
	t.Parallel()
	report, err := ParseFactCheck("Report:\n" + `{"overall_status":"needs_fixes","issue_count":7,"issues":[{"section_heading":"A","excerpt_or_claim":"x","verdict":"supported"}]}`)
	if err != nil {
		t.Fatalf("ParseFactCheck() error = %v", err)
	}
	if report.OverallStatus != "pass" || report.IssueCount != 0 || report.NeedsFixes() {
		t.Fatalf("report = %+v", report)
	}
	if _, err := ParseFactCheck(`{"issues":[{"verdict":"maybe"}]}`); err == nil {
		t.Fatalf("expected unknown verdict error")
	}
	if _, err := ParseFactCheck("no json"); err == nil {
		t.Fatalf("expected extraction error")
	}
}

func TestLoadPromptsRequiresAllStages(t *testing.T) {
	t.Parallel()
	_, err := LoadPrompts([]byte("stages:\n  - name: research\n    template: hi\n"))
	if err == nil || !strings.Contains(err.Error(), "write") {
		t.Fatalf("expected missing stage error, got %v", err)
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"":               "mistral",
		"ollama/mistral": "mistral",
		"llama3":         "llama3",
		" ollama/qwen2 ": "qwen2",
	}
	for in, want := range tests {
		if got := ModelName(in); got != want {
			t.Fatalf("ModelName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOllamaComplete(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if body.Model != "mistral" || body.Stream || body.Format != "json" || body.System != "sys" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"unexpected request"}`)
			return
		}
		_, _ = io.WriteString(w, `{"response":"{\"ok\":true}","done":true}`)
	}))
	defer srv.Close()

	o := NewOllama(srv.URL+"/", "ollama/mistral", 0.2, 0)
	got, err := o.Complete(context.Background(), Request{System: "sys", Prompt: "p", JSON: true})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("Complete() = %q", got)
	}

	_, err = o.Complete(context.Background(), Request{System: "other", Prompt: "p"})
	if err == nil || !strings.Contains(err.Error(), "unexpected request") {
		t.Fatalf("expected server error message, got %v", err)
	}
}
