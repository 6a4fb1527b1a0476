package crew

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
)

// Verdict classifies one checked claim.
type Verdict string

const (
	VerdictSupported       Verdict = "supported"
	VerdictMissingCitation Verdict = "missing_citation"
	VerdictContradicted    Verdict = "contradicted"
)

// FactIssue is a claim the fact checker looked at.
type FactIssue struct {
	SectionHeading string   `json:"section_heading"`
	Claim          string   `json:"excerpt_or_claim"`
	Verdict        Verdict  `json:"verdict"`
	SupportingURLs []string `json:"supporting_urls,omitempty"`
	SuggestedFix   string   `json:"suggested_fix,omitempty"`
}

// FactCheckReport is the output of the fact-check stage.
type FactCheckReport struct {
	OverallStatus string      `json:"overall_status"`
	IssueCount    int         `json:"issue_count"`
	Issues        []FactIssue `json:"issues"`
}

// ParseFactCheck extracts a report from model output. Unknown verdicts are
// rejected; issue_count is recomputed from the issues that need fixing.
func ParseFactCheck(text string) (*FactCheckReport, error) {
	obj, err := helpers.ExtractFirstJSONObject(text)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var report FactCheckReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("decode fact check: %w", err)
	}
	for i, issue := range report.Issues {
		switch issue.Verdict {
		case VerdictSupported, VerdictMissingCitation, VerdictContradicted:
		default:
			return nil, fmt.Errorf("fact check issue %d: unknown verdict %q", i, issue.Verdict)
		}
	}
	report.IssueCount = len(report.Problems())
	if report.IssueCount > 0 {
		report.OverallStatus = "needs_fixes"
	} else {
		report.OverallStatus = "pass"
	}
	return &report, nil
}

// Problems returns the issues whose verdict is not "supported".
func (r *FactCheckReport) Problems() []FactIssue {
	if r == nil {
		return nil
	}
	var out []FactIssue
	for _, issue := range r.Issues {
		if issue.Verdict != VerdictSupported {
			out = append(out, issue)
		}
	}
	return out
}

// NeedsFixes reports whether any claim is unsupported.
func (r *FactCheckReport) NeedsFixes() bool {
	return len(r.Problems()) > 0
}

// Summary renders the problems as a bullet list for the edit prompt.
func (r *FactCheckReport) Summary() string {
	problems := r.Problems()
	if len(problems) == 0 {
		return ""
	}
	lines := make([]string, 0, len(problems))
	for _, p := range problems {
		line := fmt.Sprintf("- [%s] %s: %s", p.Verdict, p.SectionHeading, p.Claim)
		if p.SuggestedFix != "" {
			line += " (fix: " + p.SuggestedFix + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
