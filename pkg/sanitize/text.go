package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	percentOctet    = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
	whitespaceRun   = regexp.MustCompile(`[\r\n\t ]+`)
	spaceRun        = regexp.MustCompile(` +`)
	angleEscaper    = strings.NewReplacer("<", "&lt;", ">", "&gt;")
	textInlineBreak = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Text reduces a submitted value to a single line of plain text. Invalid UTF-8
// yields an empty string. Markup is removed, stray angle brackets are escaped,
// control characters and percent-encoded octets are dropped and whitespace runs
// collapse to a single space.
func Text(raw string) string {
	return sanitizeText(raw, false)
}

// Textarea behaves like Text but preserves line breaks and inner whitespace.
func Textarea(raw string) string {
	return sanitizeText(raw, true)
}

// HTML keeps a safe subset of markup suitable for rich text fragments.
func HTML(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(fragmentSanitizer().Sanitize(trimmed))
}

// Key lowercases raw and keeps only ASCII letters, digits, underscores and
// hyphens.
func Key(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		if isKeyRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitizeText(raw string, keepNewlines bool) string {
	if raw == "" || !utf8.ValidString(raw) {
		return ""
	}

	filtered := dropControls(raw)
	if strings.ContainsAny(filtered, "<>&") {
		filtered = stripTags(filtered)
	}

	if keepNewlines {
		filtered = textInlineBreak.Replace(filtered)
	} else {
		filtered = whitespaceRun.ReplaceAllString(filtered, " ")
	}

	found := false
	for percentOctet.MatchString(filtered) {
		filtered = percentOctet.ReplaceAllString(filtered, "")
		found = true
	}
	if found {
		filtered = spaceRun.ReplaceAllString(filtered, " ")
	}

	return strings.TrimSpace(filtered)
}

// stripTags removes markup and decodes the entities bluemonday produced, then
// re-escapes angle brackets so no markup survives the round trip.
func stripTags(raw string) string {
	cleaned := textSanitizer().Sanitize(raw)
	return angleEscaper.Replace(html.UnescapeString(cleaned))
}

func dropControls(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, raw)
}

func isKeyRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}
