package crew

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

// Stage names in execution order.
const (
	StageResearch  = "research"
	StageWrite     = "write"
	StageFactCheck = "fact_check"
	StageEdit      = "edit"
)

var stageOrder = []string{StageResearch, StageWrite, StageFactCheck, StageEdit}

// Prompt is one stage definition.
type Prompt struct {
	Name     string `yaml:"name"`
	System   string `yaml:"system"`
	Template string `yaml:"template"`
	JSON     bool   `yaml:"json"`

	tmpl *template.Template
}

type promptFile struct {
	Stages []Prompt `yaml:"stages"`
}

// Prompts maps stage names to their prompts.
type Prompts map[string]*Prompt

// LoadPrompts parses a prompts document. Every stage of the pipeline must be
// present.
func LoadPrompts(data []byte) (Prompts, error) {
	var file promptFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	out := make(Prompts, len(file.Stages))
	for i := range file.Stages {
		p := file.Stages[i]
		tmpl, err := template.New(p.Name).Option("missingkey=error").Parse(p.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt %s: %w", p.Name, err)
		}
		p.tmpl = tmpl
		out[p.Name] = &p
	}
	for _, name := range stageOrder {
		if _, ok := out[name]; !ok {
			return nil, fmt.Errorf("prompt for stage %q is missing", name)
		}
	}
	return out, nil
}

// DefaultPrompts returns the embedded prompts.
func DefaultPrompts() (Prompts, error) {
	return LoadPrompts(promptsYAML)
}

// promptVars is the data every template sees.
type promptVars struct {
	Topic        string
	Language     string
	LanguageName string
	Notes        string
	SourceURL    string
	Research     string
	Draft        string
	Issues       string
	MinWords     int
}

func (p *Prompt) render(vars promptVars) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", p.Name, err)
	}
	return buf.String(), nil
}
