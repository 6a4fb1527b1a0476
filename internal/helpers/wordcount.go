package helpers

import (
	"regexp"
	"strings"
)

// MinWords is the default minimum body length of a final article.
const MinWords = 300

// wordChars covers ASCII letters, digits, underscore, the Latin-1 supplement
// letters (× and ÷ excluded) and Latin Extended-A.
const wordChars = `A-Za-z0-9_\x{C0}-\x{D6}\x{D8}-\x{F6}\x{F8}-\x{FF}\x{100}-\x{17F}`

// A word may be joined to one following run by a single apostrophe or hyphen.
var wordRe = regexp.MustCompile(`[` + wordChars + `]+(?:['\-][` + wordChars + `]+)?`)

// CountWords counts the words in text.
func CountWords(text string) int {
	return len(wordRe.FindAllStringIndex(text, -1))
}

// ExtractBody returns the article body of a Markdown document: heading lines,
// the TL;DR section and everything from "## References" onwards are removed.
func ExtractBody(markdown string) string {
	lines := strings.Split(strings.ReplaceAll(markdown, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	inTLDR := false

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)
		low := strings.ToLower(trimmed)

		if strings.HasPrefix(low, "## references") {
			break
		}
		if isHeading(trimmed) {
			switch {
			case isTLDRHeading(low):
				inTLDR = true
			case inTLDR && strings.HasPrefix(trimmed, "## "):
				inTLDR = false
			}
			continue
		}
		if !inTLDR {
			out = append(out, line)
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// BodyWordCount counts the words of ExtractBody(markdown).
func BodyWordCount(markdown string) int {
	return CountWords(ExtractBody(markdown))
}

func isHeading(trimmed string) bool {
	return strings.HasPrefix(trimmed, "#")
}

func isTLDRHeading(low string) bool {
	text := strings.TrimSpace(strings.TrimLeft(low, "#"))
	return strings.HasPrefix(text, "tl;dr")
}
