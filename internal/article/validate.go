package article

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
)

// DefaultAllowedDomains is the reference allow-list used when none is configured.
var DefaultAllowedDomains = []string{"wikipedia.org"}

// Validator checks drafts and promotes them to final records.
type Validator struct {
	AllowedDomains []string
	MinWords       int
}

// NewValidator returns a Validator, falling back to the defaults for empty arguments.
func NewValidator(allowedDomains []string, minWords int) *Validator {
	if len(allowedDomains) == 0 {
		allowedDomains = DefaultAllowedDomains
	}
	if minWords <= 0 {
		minWords = helpers.MinWords
	}
	return &Validator{AllowedDomains: allowedDomains, MinWords: minWords}
}

var defaultValidator = NewValidator(nil, 0)

// ValidateDraft validates data with the default allow-list.
func ValidateDraft(data map[string]any) (*Draft, error) {
	return defaultValidator.ValidateDraft(data)
}

// PromoteToFinal promotes d with the default minimum word count.
func PromoteToFinal(d *Draft) (*Record, error) {
	return defaultValidator.PromoteToFinal(d)
}

// ValidateDraft checks the shape of data and returns the typed draft. Missing
// optional fields get defaults: language "en", a slug derived from the title and
// a word_count computed from the sections.
func (v *Validator) ValidateDraft(data map[string]any) (*Draft, error) {
	if data == nil {
		return nil, &SchemaError{Fields: []FieldError{{Field: "/", Message: "expected an object"}}}
	}
	doc, err := normalizeDocument(data)
	if err != nil {
		return nil, &SchemaError{Fields: []FieldError{{Field: "/", Message: err.Error()}}}
	}
	if fields := validateShape(doc); len(fields) > 0 {
		return nil, &SchemaError{Fields: fields}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, &SchemaError{Fields: []FieldError{{Field: "/", Message: err.Error()}}}
	}
	var draft Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, &SchemaError{Fields: []FieldError{{Field: "/", Message: err.Error()}}}
	}
	if err := v.CheckDraft(&draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// CheckDraft applies defaults and the checks the schema cannot express to an
// already typed draft.
func (v *Validator) CheckDraft(d *Draft) error {
	if d == nil {
		return &SchemaError{Fields: []FieldError{{Field: "/", Message: "draft is nil"}}}
	}
	var fields []FieldError
	if strings.TrimSpace(d.Title) == "" {
		fields = append(fields, FieldError{Field: "/title", Message: "must not be blank"})
	}
	if len(d.Sections) == 0 {
		fields = append(fields, FieldError{Field: "/sections", Message: "must contain at least one section"})
	}
	if d.Language == "" {
		d.Language = "en"
	}
	if d.Language != "en" && d.Language != "pt" {
		fields = append(fields, FieldError{Field: "/language", Message: fmt.Sprintf("unsupported language %q", d.Language)})
	}
	fields = append(fields, v.checkReferences(d.References)...)
	if len(fields) > 0 {
		return &SchemaError{Fields: fields}
	}

	if d.Slug == "" {
		d.Slug = Slugify(d.Title)
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	if d.References == nil {
		d.References = []Citation{}
	}
	if d.WordCount <= 0 {
		d.WordCount = helpers.BodyWordCount(d.Body())
		if d.WordCount < 1 {
			return &SchemaError{Fields: []FieldError{{Field: "/word_count", Message: "sections contain no words"}}}
		}
	}
	return nil
}

// PromoteToFinal recomputes the word count from the section contents and
// requires it to reach MinWords. Any upstream word_count is discarded.
func (v *Validator) PromoteToFinal(d *Draft) (*Record, error) {
	if d == nil {
		return nil, &SchemaError{Fields: []FieldError{{Field: "/", Message: "draft is nil"}}}
	}
	if fields := v.checkReferences(d.References); len(fields) > 0 {
		return nil, &SchemaError{Fields: fields}
	}
	actual := helpers.BodyWordCount(d.Body())
	if actual < v.minWords() {
		return nil, &WordCountError{Actual: actual, Required: v.minWords()}
	}
	rec := &Record{Draft: *d}
	rec.Tags = append(make([]string, 0, len(d.Tags)), d.Tags...)
	rec.Sections = append(make([]Section, 0, len(d.Sections)), d.Sections...)
	rec.References = append(make([]Citation, 0, len(d.References)), d.References...)
	rec.WordCount = actual
	return rec, nil
}

func (v *Validator) minWords() int {
	if v.MinWords <= 0 {
		return helpers.MinWords
	}
	return v.MinWords
}

func (v *Validator) checkReferences(refs []Citation) []FieldError {
	allowed := v.AllowedDomains
	if len(allowed) == 0 {
		allowed = DefaultAllowedDomains
	}
	var fields []FieldError
	for i, ref := range refs {
		if err := helpers.HostAllowed(ref.URL, allowed); err != nil {
			fields = append(fields, FieldError{Field: fmt.Sprintf("/references/%d/url", i), Message: err.Error()})
		}
	}
	return fields
}

// normalizeDocument round-trips data through JSON so the schema sees plain JSON
// values, then folds in the input aliases the generators are known to emit.
func normalizeDocument(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("draft is not JSON-encodable: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	for _, key := range []string{"word_count", "slug", "language", "tags", "references"} {
		if v, ok := doc[key]; ok && v == nil {
			delete(doc, key)
		}
	}
	if lang, ok := doc["language"].(string); ok {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			delete(doc, "language")
		} else {
			doc["language"] = lang
		}
	}
	if sections, ok := doc["sections"].([]any); ok {
		for _, item := range sections {
			section, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if _, has := section["content"]; !has {
				if md, ok := section["content_md"]; ok {
					section["content"] = md
				}
			}
			delete(section, "content_md")
		}
	}
	return doc, nil
}
