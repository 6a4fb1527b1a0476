package helpers

import (
	"net/url"
	"strings"
)

// Citation is the metadata needed to list one referenced source.
type Citation struct {
	Title    string
	URL      string
	Source   string
	Accessed string
}

// citationConfig controls formatting behaviour.
type citationConfig struct {
	maxTitle int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxTitleLength truncates titles to n runes (default 160).
func WithMaxTitleLength(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n > 0 {
			cfg.maxTitle = n
		}
	}
}

// FormatCitation renders a citation as a Markdown link followed by its
// source and access date: [Title](URL) (Source, accessed YYYY-MM-DD).
// A missing title falls back to the URL's host.
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxTitle: 160}
	for _, opt := range opts {
		opt(&cfg)
	}

	link := strings.TrimSpace(c.URL)
	title := strings.Join(strings.Fields(c.Title), " ")
	if title == "" {
		title = extractDomain(link)
	}
	if title == "" {
		title = link
	}
	if r := []rune(title); len(r) > cfg.maxTitle {
		title = string(r[:cfg.maxTitle]) + "…"
	}
	title = strings.NewReplacer("[", `\[`, "]", `\]`).Replace(title)

	var meta []string
	if source := strings.TrimSpace(c.Source); source != "" {
		meta = append(meta, source)
	}
	if accessed := strings.TrimSpace(c.Accessed); accessed != "" {
		meta = append(meta, "accessed "+accessed)
	}

	out := "[" + title + "](" + link + ")"
	if len(meta) > 0 {
		out += " (" + strings.Join(meta, ", ") + ")"
	}
	return out
}

// FormatCitations renders a collection of citations.
func FormatCitations(citations []Citation, opts ...CitationOption) []string {
	if len(citations) == 0 {
		return nil
	}
	out := make([]string, 0, len(citations))
	for _, c := range citations {
		out = append(out, FormatCitation(c, opts...))
	}
	return out
}

func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return strings.TrimPrefix(host, "www.")
}
