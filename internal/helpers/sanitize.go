package helpers

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicyOnce sync.Once
	strictPolicy     *bluemonday.Policy

	footnoteRe   = regexp.MustCompile(`\[\d+\]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// StrictHTMLPolicy returns a singleton bluemonday policy that strips every HTML
// element and attribute.
func StrictHTMLPolicy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// PlainText converts an HTML fragment into a single line of plain text: tags are
// removed, entities decoded, footnote markers like [12] dropped and whitespace
// collapsed.
func PlainText(fragment string) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	text := html.UnescapeString(StrictHTMLPolicy().Sanitize(fragment))
	text = footnoteRe.ReplaceAllString(text, "")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}
