package feed

import (
	"html"
	"regexp"
	"strings"
)

var (
	openQuoteRe  = regexp.MustCompile(`<\s*<`)
	closeQuoteRe = regexp.MustCompile(`>\s*>`)
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// CleanHTML strips tags and entities from feed markup. Doubled angle brackets
// produced by NLP models are repaired into guillemets before tag removal so
// they survive as quotes instead of being eaten as broken tags.
func CleanHTML(raw string) string {
	if raw == "" {
		return ""
	}

	clean := openQuoteRe.ReplaceAllString(raw, "«")
	clean = closeQuoteRe.ReplaceAllString(clean, "»")
	clean = tagRe.ReplaceAllString(clean, "")
	clean = html.UnescapeString(clean)

	return CollapseWhitespace(clean)
}

// CollapseWhitespace folds runs of whitespace into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
