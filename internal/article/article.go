package article

import (
	"regexp"
	"strings"
)

// Section is one headed block of article body text.
type Section struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// Citation is a reference backing the article.
type Citation struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Source     string `json:"source,omitempty"`
	AccessedAt string `json:"accessed_at,omitempty"`
}

// Draft is an article validated for shape but not yet held to the length bar.
type Draft struct {
	Title      string     `json:"title"`
	Slug       string     `json:"slug"`
	Language   string     `json:"language"`
	Summary    string     `json:"summary"`
	Tags       []string   `json:"tags"`
	Author     string     `json:"author,omitempty"`
	Sections   []Section  `json:"sections"`
	References []Citation `json:"references"`
	WordCount  int        `json:"word_count"`
}

// Record is a promoted draft: its WordCount was recomputed from the sections and
// met the minimum.
type Record struct {
	Draft
}

// Body joins all section contents with a single space.
func (d Draft) Body() string {
	parts := make([]string, 0, len(d.Sections))
	for _, s := range d.Sections {
		parts = append(parts, s.Content)
	}
	return strings.Join(parts, " ")
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-friendly slug from a title.
func Slugify(title string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "article"
	}
	return s
}
