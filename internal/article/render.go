package article

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
)

// RenderMarkdown renders a record as a Markdown document: title, TL;DR summary,
// one level-2 heading per section and a references list.
func RenderMarkdown(r *Record) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", strings.TrimSpace(r.Title))
	if summary := strings.TrimSpace(r.Summary); summary != "" {
		fmt.Fprintf(&b, "## TL;DR\n\n%s\n\n", summary)
	}
	for _, s := range r.Sections {
		heading := strings.TrimSpace(s.Heading)
		if heading == "" {
			heading = "Section"
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", heading, strings.TrimSpace(s.Content))
	}
	if len(r.References) > 0 {
		b.WriteString("## References\n\n")
		for _, ref := range r.References {
			b.WriteString("- " + helpers.FormatCitation(helpers.Citation{
				Title:    ref.Title,
				URL:      ref.URL,
				Source:   ref.Source,
				Accessed: ref.AccessedAt,
			}) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
