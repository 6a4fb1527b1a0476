package stage

import (
	"errors"
	"testing"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
)

const draftJSON = `{"title":"Octopus","summary":"s","sections":[{"heading":"Anatomy","content":"Three hearts."}]}`

func TestPickOutput(t *testing.T) {
	t.Parallel()
	draft := &article.Draft{Title: "typed"}
	tests := []struct {
		name   string
		in     Result
		kind   Kind
		text   string
		absent bool
	}{
		{
			name: "structured wins over everything",
			in:   Result{Output: Output{Structured: draft, Mapping: map[string]any{"a": 1}, Raw: "raw"}},
			kind: KindStructured,
		},
		{
			name: "mapping before json",
			in:   Result{Output: Output{Mapping: map[string]any{"a": 1}, JSON: "{}"}},
			kind: KindMapping,
		},
		{
			name: "empty mapping does not shadow raw",
			in:   Result{Output: Output{Mapping: map[string]any{}, Raw: "raw"}},
			kind: KindRaw,
			text: "raw",
		},
		{
			name: "json before raw and text",
			in:   Result{Output: Output{JSON: "{}", Raw: "raw", Text: "text"}},
			kind: KindJSON,
			text: "{}",
		},
		{
			name: "blank root falls through to last task",
			in: Result{
				Output: Output{Raw: "   "},
				Tasks:  []Output{{Text: "first"}, {Raw: "last"}},
			},
			kind: KindRaw,
			text: "last",
		},
		{
			name: "only the last task is inspected",
			in: Result{
				Tasks: []Output{{Text: "first"}, {}},
			},
			absent: true,
		},
		{
			name:   "nothing at all",
			in:     Result{},
			absent: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := PickOutput(tt.in)
			if tt.absent {
				if ok {
					t.Fatalf("expected absent, got %+v", got)
				}
				return
			}
			if !ok || got.Kind != tt.kind {
				t.Fatalf("PickOutput() = %v (%v), want kind %v", got.Kind, ok, tt.kind)
			}
			if tt.text != "" && got.Text != tt.text {
				t.Fatalf("text = %q, want %q", got.Text, tt.text)
			}
		})
	}
}

func TestCollectorDraftFromProse(t *testing.T) {
	t.Parallel()
	r := Result{Output: Output{Raw: "Here you go:\n```json\n" + draftJSON + "\n```\nThanks!"}}
	d, err := Collector{}.Draft(r)
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if d.Title != "Octopus" || d.WordCount != 2 || d.Language != "en" {
		t.Fatalf("unexpected draft %+v", d)
	}
}

func TestCollectorEmptyMappingFallsBackToRaw(t *testing.T) {
	t.Parallel()
	r := Result{Output: Output{Mapping: map[string]any{}, Raw: draftJSON}}
	d, err := Collector{}.Draft(r)
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if d.Title != "Octopus" {
		t.Fatalf("unexpected draft %+v", d)
	}
}

func TestCollectorStructured(t *testing.T) {
	t.Parallel()
	typed := &article.Draft{Title: "Typed", Summary: "s", Sections: []article.Section{{Heading: "h", Content: "one two"}}}
	d, err := Collector{}.Draft(Result{Output: Output{Structured: typed}})
	if err != nil {
		t.Fatalf("Draft() error = %v", err)
	}
	if d.Slug != "typed" || d.WordCount != 2 {
		t.Fatalf("defaults not applied: %+v", d)
	}
	if typed.Slug != "" {
		t.Fatalf("input draft was modified")
	}
}

func TestCollectorAbsent(t *testing.T) {
	t.Parallel()
	_, err := Collector{}.Draft(Result{})
	var extractErr *helpers.ExtractionError
	if !errors.As(err, &extractErr) || !errors.Is(err, helpers.ErrNoJSONObject) {
		t.Fatalf("expected ExtractionError(ErrNoJSONObject), got %v", err)
	}
}

func TestCollectorTolerant(t *testing.T) {
	t.Parallel()
	broken := `{"title":"Octopus","summary":"s","sections":[{"heading":"h","content":"Three hearts."}],}`
	r := Result{Output: Output{Text: broken}}

	var extractErr *helpers.ExtractionError
	if _, err := (Collector{}).Draft(r); !errors.As(err, &extractErr) {
		t.Fatalf("strict collector should fail extraction, got %v", err)
	}

	d, err := Collector{Tolerant: true}.Draft(r)
	if err != nil {
		t.Fatalf("tolerant Draft() error = %v", err)
	}
	if d.Title != "Octopus" {
		t.Fatalf("unexpected draft %+v", d)
	}

	fallback := Result{
		Output: Output{Text: "no json here"},
		Tasks:  []Output{{Raw: draftJSON}, {Text: "still nothing"}},
	}
	if d, err := (Collector{Tolerant: true}).Draft(fallback); err != nil || d.Title != "Octopus" {
		t.Fatalf("tolerant fallback = %+v, %v", d, err)
	}
}

func TestCollectorSchemaErrorNotRetried(t *testing.T) {
	t.Parallel()
	r := Result{Output: Output{Mapping: map[string]any{"title": "x"}}}
	_, err := Collector{Tolerant: true}.Draft(r)
	var schemaErr *article.SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestGenerationError(t *testing.T) {
	t.Parallel()
	base := errors.New("connection refused")
	err := error(&GenerationError{Stage: "write", Err: base})
	if !errors.Is(err, base) {
		t.Fatalf("GenerationError should unwrap")
	}
	if err.Error() != "generation failed at write: connection refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
