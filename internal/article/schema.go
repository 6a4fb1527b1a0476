package article

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed article_draft.schema.json
var draftSchemaJSON string

var (
	compileOnce sync.Once
	draftSchema *jsonschema.Schema
	compileErr  error
)

// DraftSchema returns the compiled JSON Schema for article drafts.
func DraftSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("article_draft.schema.json", strings.NewReader(draftSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("article_draft.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile article schema: %w", err)
			return
		}
		draftSchema = schema
	})
	return draftSchema, compileErr
}

// validateShape checks doc against the draft schema and reports every leaf
// violation as a FieldError.
func validateShape(doc any) []FieldError {
	schema, err := DraftSchema()
	if err != nil {
		return []FieldError{{Field: "/", Message: err.Error()}}
	}
	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []FieldError{{Field: "/", Message: err.Error()}}
	}
	var fields []FieldError
	collectLeaves(verr, &fields)
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	return fields
}

func collectLeaves(verr *jsonschema.ValidationError, out *[]FieldError) {
	if len(verr.Causes) == 0 {
		field := verr.InstanceLocation
		if field == "" {
			field = "/"
		}
		*out = append(*out, FieldError{Field: field, Message: verr.Message})
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, out)
	}
}
