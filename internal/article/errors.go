package article

import (
	"fmt"
	"strings"
)

// FieldError is a single validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) String() string {
	return f.Field + ": " + f.Message
}

// SchemaError means the structured data is malformed: required fields are
// missing or mistyped, sections are empty, or a reference is off the allow-list.
type SchemaError struct {
	Fields []FieldError
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return "article schema violation: " + strings.Join(parts, "; ")
}

// WordCountError means the article body is shorter than required.
type WordCountError struct {
	Actual   int
	Required int
}

func (e *WordCountError) Error() string {
	return fmt.Sprintf("article body must have at least %d words (got %d)", e.Required, e.Actual)
}
