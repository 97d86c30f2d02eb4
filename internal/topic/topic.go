// ABOUTME: Derives a short conversation title from the first user message
// ABOUTME: Pure function: strip URLs, cut at the first clause end, strip decorations, truncate

package topic

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxRunes is the longest title returned before the ellipsis.
const MaxRunes = 14

// Ellipsis marks a truncated title.
const Ellipsis = "…"

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	decorationPattern = regexp.MustCompile(`[\[\]()『』“”"'<>]`)
	listMarkerPattern = regexp.MustCompile(`^[-*・●\d.)(]+\s*`)
)

// Title derives a title from text. Rules, in order:
//
//  1. remove http(s) URLs
//  2. keep the text before the first clause terminator
//  3. drop bracket and quote characters, then any leading list marker
//  4. truncate to MaxRunes runes, appending Ellipsis when cut
//
// When step 3 leaves nothing, the URL-free text is used instead. The result
// is empty only for blank input.
func Title(text string) string {
	stripped := strings.TrimSpace(urlPattern.ReplaceAllString(text, ""))

	// A leading "1." marker must not be mistaken for a sentence end.
	body := listMarkerPattern.ReplaceAllString(stripped, "")
	first := strings.TrimSpace(firstClause(body))
	cleaned := decorationPattern.ReplaceAllString(first, "")
	cleaned = listMarkerPattern.ReplaceAllString(cleaned, "")

	s := cleaned
	if s == "" {
		s = stripped
	}
	return truncate(s, MaxRunes)
}

// firstClause cuts s at the first line break or sentence/clause terminator.
// Full-width terminators always end a clause. ASCII '.' and ',' only do so
// when followed by whitespace or the end of the text, so "v1.2" and "1,000"
// stay intact.
func firstClause(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		switch r {
		case '\n', '\r', '。', '．', '！', '？', '、', '，', '!', '?':
			return string(runes[:i])
		case '.', ',':
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				return string(runes[:i])
			}
		}
	}
	return s
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + Ellipsis
}
