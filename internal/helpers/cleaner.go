package helpers

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var (
	// ErrNoJSONObject is returned when the text contains no '{' at all.
	ErrNoJSONObject = errors.New("no JSON object found in generated text")
	// ErrUnbalancedJSON is returned when an opening brace is never closed.
	ErrUnbalancedJSON = errors.New("unbalanced braces; cannot extract JSON")
)

// ExtractionError reports why structured data could not be recovered from generated text.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return "extract json: " + e.Err.Error()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// codeFenceRe matches an opening fence (optionally tagged json) at the start of any
// line and a closing fence at the end of any line.
var codeFenceRe = regexp.MustCompile("(?im)^[ \\t]*```(?:json)?\\s*|\\s*```[ \\t]*$")

// StripCodeFences removes Markdown code-fence markers and an optional BOM.
func StripCodeFences(s string) string {
	s = trimBOM(s)
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(s, ""))
}

// ExtractFirstJSONObject recovers the first JSON object embedded in s.
// Fences are stripped first; if the whole remainder is one object it is returned
// directly, otherwise the first balanced {...} segment is parsed.
func ExtractFirstJSONObject(s string) (map[string]any, error) {
	cleaned := StripCodeFences(s)

	var direct map[string]any
	if err := json.Unmarshal([]byte(cleaned), &direct); err == nil && direct != nil {
		return direct, nil
	}

	candidate, err := firstBalancedObject(cleaned)
	if err != nil {
		return nil, &ExtractionError{Err: err}
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("malformed JSON object: %w", err)}
	}
	return obj, nil
}

// RepairJSONObject is the tolerant variant of ExtractFirstJSONObject: when strict
// extraction fails it repairs the text from the first '{' onwards and parses that.
func RepairJSONObject(s string) (map[string]any, error) {
	obj, strictErr := ExtractFirstJSONObject(s)
	if strictErr == nil {
		return obj, nil
	}
	cleaned := StripCodeFences(s)
	start := strings.IndexByte(cleaned, '{')
	if start == -1 {
		return nil, strictErr
	}
	candidate := cleaned[start:]
	if balanced, err := firstBalancedObject(candidate); err == nil {
		candidate = balanced
	}
	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("repair failed: %w (strict: %v)", err, strictErr)}
	}
	if err := json.Unmarshal([]byte(repaired), &obj); err != nil || obj == nil {
		return nil, strictErr
	}
	return obj, nil
}

// firstBalancedObject returns s from the first '{' to its matching '}'.
// Braces inside string literals are ignored.
func firstBalancedObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", ErrNoJSONObject
	}

	var (
		depth    int
		inString bool
		escape   bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			switch c {
			case '\\':
				escape = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrUnbalancedJSON
}

// trimBOM removes an optional UTF-8 BOM.
func trimBOM(s string) string {
	if strings.HasPrefix(s, "\uFEFF") {
		return strings.TrimPrefix(s, "\uFEFF")
	}
	return s
}
