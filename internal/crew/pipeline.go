// Package crew generates article drafts with a sequence of LLM stages:
// research, write, fact check and edit.
package crew

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
	"github.com/mohammad-safakhou/wikiwriter/internal/stage"
	"github.com/mohammad-safakhou/wikiwriter/internal/wikipedia"
)

// Researcher gathers background for a topic.
type Researcher interface {
	Lookup(ctx context.Context, lang, query string) (wikipedia.Page, error)
}

// Pipeline runs the stages in order. Each stage sees the output of the stages
// before it; the edit stage's answer becomes the root output.
type Pipeline struct {
	LLM        LLM
	Researcher Researcher
	Prompts    Prompts
	MinWords   int
	Logger     *log.Logger
}

// NewPipeline wires a pipeline with the embedded prompts.
func NewPipeline(llm LLM, researcher Researcher, minWords int, logger *log.Logger) (*Pipeline, error) {
	prompts, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if minWords <= 0 {
		minWords = helpers.MinWords
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Pipeline{LLM: llm, Researcher: researcher, Prompts: prompts, MinWords: minWords, Logger: logger}, nil
}

var languageNames = map[string]string{"en": "English", "pt": "Portuguese"}

// Generate implements stage.Generator.
func (p *Pipeline) Generate(ctx context.Context, in stage.Inputs) (stage.Result, error) {
	if p.LLM == nil {
		return stage.Result{}, &stage.GenerationError{Err: fmt.Errorf("no language model configured")}
	}
	lang := strings.ToLower(strings.TrimSpace(in.Language))
	if lang == "" {
		lang = "en"
	}
	vars := promptVars{
		Topic:        strings.TrimSpace(in.Topic),
		Language:     lang,
		LanguageName: languageNames[lang],
		MinWords:     p.MinWords,
	}
	if vars.LanguageName == "" {
		vars.LanguageName = lang
	}

	if p.Researcher != nil {
		page, err := p.Researcher.Lookup(ctx, lang, vars.Topic)
		if err != nil {
			p.Logger.Printf("research lookup for %q failed: %v", vars.Topic, err)
		} else {
			vars.Notes = page.Text()
			vars.SourceURL = page.URL
		}
	}

	var result stage.Result
	research, err := p.run(ctx, StageResearch, vars)
	if err != nil {
		return result, err
	}
	result.Tasks = append(result.Tasks, stage.Output{Name: StageResearch, Raw: research})
	vars.Research = strings.TrimSpace(research)

	draft, err := p.run(ctx, StageWrite, vars)
	if err != nil {
		return result, err
	}
	result.Tasks = append(result.Tasks, stage.Output{Name: StageWrite, JSON: draft})
	vars.Draft = helpers.StripCodeFences(draft)

	check, err := p.run(ctx, StageFactCheck, vars)
	if err != nil {
		return result, err
	}
	result.Tasks = append(result.Tasks, stage.Output{Name: StageFactCheck, JSON: check})
	if report, perr := ParseFactCheck(check); perr != nil {
		p.Logger.Printf("fact check output unusable: %v", perr)
	} else {
		p.Logger.Printf("fact check for %q: %s (%d issues)", vars.Topic, report.OverallStatus, report.IssueCount)
		vars.Issues = report.Summary()
	}

	edited, err := p.run(ctx, StageEdit, vars)
	if err != nil {
		return result, err
	}
	final := stage.Output{Name: StageEdit, JSON: edited}
	result.Tasks = append(result.Tasks, final)
	result.Output = stage.Output{Raw: edited}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, name string, vars promptVars) (string, error) {
	prompt, ok := p.Prompts[name]
	if !ok {
		return "", &stage.GenerationError{Stage: name, Err: fmt.Errorf("no prompt defined")}
	}
	text, err := prompt.render(vars)
	if err != nil {
		return "", &stage.GenerationError{Stage: name, Err: err}
	}
	p.Logger.Printf("stage %s started for %q", name, vars.Topic)
	out, err := p.LLM.Complete(ctx, Request{System: prompt.System, Prompt: text, JSON: prompt.JSON})
	if err != nil {
		return "", &stage.GenerationError{Stage: name, Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return "", &stage.GenerationError{Stage: name, Err: fmt.Errorf("empty response")}
	}
	return out, nil
}
