package sanitize

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug normalizes raw into an identifier safe for form names, storage keys and
// registration ids: markup is stripped, accents are folded, the result is
// lowercased and separators (whitespace, dots, slashes, hyphens) collapse into
// single hyphens. Anything outside [a-z0-9_-] is removed.
func Slug(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := raw
	if strings.ContainsAny(s, "<>&") {
		s = html.UnescapeString(textSanitizer().Sanitize(s))
	}
	s = strings.ToLower(foldAccents(s))

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '-' || r == '.' || r == '/' || unicode.IsSpace(r):
			pendingHyphen = true
		}
	}
	return b.String()
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
