// Package stage models what a generation pipeline hands back and turns it into
// an article draft.
package stage

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
)

// Kind tags which field of an Output a Value came from.
type Kind int

const (
	KindAbsent Kind = iota
	KindStructured
	KindMapping
	KindJSON
	KindRaw
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindMapping:
		return "mapping"
	case KindJSON:
		return "json"
	case KindRaw:
		return "raw"
	case KindText:
		return "text"
	default:
		return "absent"
	}
}

// Output is what one stage produced. Any subset of the fields may be set.
type Output struct {
	Name       string
	Structured *article.Draft
	Mapping    map[string]any
	JSON       string
	Raw        string
	Text       string
}

// Result is the root output of a pipeline plus the outputs of its sub-tasks in
// execution order.
type Result struct {
	Output
	Tasks []Output
}

// Value is the output picked from a Result.
type Value struct {
	Kind       Kind
	Structured *article.Draft
	Mapping    map[string]any
	Text       string
}

// Inputs are the parameters of one generation.
type Inputs struct {
	Topic    string
	Language string
}

// Generator produces a stage Result for a topic. Implementations block until
// the whole pipeline has completed or failed.
type Generator interface {
	Generate(ctx context.Context, in Inputs) (Result, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, in Inputs) (Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, in Inputs) (Result, error) {
	return f(ctx, in)
}

// GenerationError wraps a failure of the generation capability.
type GenerationError struct {
	Stage string
	Err   error
}

func (e *GenerationError) Error() string {
	if e.Stage == "" {
		return "generation failed: " + e.Err.Error()
	}
	return "generation failed at " + e.Stage + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// pick returns the first populated field in priority order: structured,
// mapping, json, raw, text. Empty mappings and blank strings count as absent.
func (o Output) pick() (Value, bool) {
	switch {
	case o.Structured != nil:
		return Value{Kind: KindStructured, Structured: o.Structured}, true
	case len(o.Mapping) > 0:
		return Value{Kind: KindMapping, Mapping: o.Mapping}, true
	case strings.TrimSpace(o.JSON) != "":
		return Value{Kind: KindJSON, Text: o.JSON}, true
	case strings.TrimSpace(o.Raw) != "":
		return Value{Kind: KindRaw, Text: o.Raw}, true
	case strings.TrimSpace(o.Text) != "":
		return Value{Kind: KindText, Text: o.Text}, true
	}
	return Value{}, false
}

// PickOutput returns the root output if it has one, otherwise the output of the
// last sub-task. Absence is reported with ok=false and is not an error.
func PickOutput(r Result) (Value, bool) {
	if v, ok := r.Output.pick(); ok {
		return v, true
	}
	if n := len(r.Tasks); n > 0 {
		return r.Tasks[n-1].pick()
	}
	return Value{}, false
}
