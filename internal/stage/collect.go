package stage

import (
	"errors"
	"strings"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
)

// Collector turns a pipeline Result into a validated draft.
type Collector struct {
	Validator *article.Validator
	// Tolerant lets the collector repair malformed JSON and fall back to other
	// outputs when the picked one holds no usable object.
	Tolerant bool
}

// Draft picks the output of r and validates it as an article draft. When r has
// no output at all the root raw text is tried as a last resort.
func (c Collector) Draft(r Result) (*article.Draft, error) {
	v := c.validator()
	picked, ok := PickOutput(r)
	if !ok {
		picked = Value{Kind: KindRaw, Text: r.Raw}
	}

	draft, err := c.fromValue(v, picked)
	if err == nil || !c.Tolerant {
		return draft, err
	}
	var extractErr *helpers.ExtractionError
	if !errors.As(err, &extractErr) {
		return nil, err
	}
	for _, text := range candidates(r) {
		data, rerr := helpers.RepairJSONObject(text)
		if rerr != nil {
			continue
		}
		return v.ValidateDraft(data)
	}
	return nil, err
}

func (c Collector) fromValue(v *article.Validator, picked Value) (*article.Draft, error) {
	switch picked.Kind {
	case KindStructured:
		d := *picked.Structured
		if err := v.CheckDraft(&d); err != nil {
			return nil, err
		}
		return &d, nil
	case KindMapping:
		return v.ValidateDraft(picked.Mapping)
	default:
		data, err := helpers.ExtractFirstJSONObject(picked.Text)
		if err != nil {
			return nil, err
		}
		return v.ValidateDraft(data)
	}
}

func (c Collector) validator() *article.Validator {
	if c.Validator != nil {
		return c.Validator
	}
	return article.NewValidator(nil, 0)
}

// candidates lists every text output of r, root first, then sub-tasks from last
// to first.
func candidates(r Result) []string {
	var out []string
	add := func(o Output) {
		for _, s := range []string{o.JSON, o.Raw, o.Text} {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}
	add(r.Output)
	for i := len(r.Tasks) - 1; i >= 0; i-- {
		add(r.Tasks[i])
	}
	return out
}
