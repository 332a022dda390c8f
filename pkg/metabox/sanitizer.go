package metabox

import (
	"strings"

	"github.com/goliatone/go-metaboxes/pkg/sanitize"
)

type sanitizerKind int

const (
	sanitizeDefault sanitizerKind = iota
	sanitizeText
	sanitizeTextarea
	sanitizeHTML
	sanitizeNone
	sanitizeCustom
)

// Sanitizer selects how a submitted value is cleaned before persistence. The
// zero value defers to the Metabox's default text sanitizer.
type Sanitizer struct {
	kind sanitizerKind
	fn   func(string) string
}

// Named sanitizer variants.
var (
	SanitizeDefault  = Sanitizer{kind: sanitizeDefault}
	SanitizeText     = Sanitizer{kind: sanitizeText}
	SanitizeTextarea = Sanitizer{kind: sanitizeTextarea}
	SanitizeHTML     = Sanitizer{kind: sanitizeHTML}
	// SanitizeNone stores submissions verbatim. Use only for values validated
	// elsewhere.
	SanitizeNone = Sanitizer{kind: sanitizeNone}
)

// SanitizeWith wraps a caller supplied function. A nil fn is the default.
func SanitizeWith(fn func(string) string) Sanitizer {
	if fn == nil {
		return SanitizeDefault
	}
	return Sanitizer{kind: sanitizeCustom, fn: fn}
}

// SanitizerNamed resolves the variant names accepted in configuration files:
// "default", "text", "textarea", "html" and "none".
func SanitizerNamed(name string) (Sanitizer, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return SanitizeDefault, true
	case "text":
		return SanitizeText, true
	case "textarea":
		return SanitizeTextarea, true
	case "html":
		return SanitizeHTML, true
	case "none", "raw":
		return SanitizeNone, true
	default:
		return Sanitizer{}, false
	}
}

// Name reports the variant name; custom sanitizers report "custom".
func (s Sanitizer) Name() string {
	switch s.kind {
	case sanitizeText:
		return "text"
	case sanitizeTextarea:
		return "textarea"
	case sanitizeHTML:
		return "html"
	case sanitizeNone:
		return "none"
	case sanitizeCustom:
		return "custom"
	default:
		return "default"
	}
}

// IsDefault reports whether the variant falls back to the default sanitizer.
func (s Sanitizer) IsDefault() bool {
	return s.kind == sanitizeDefault || (s.kind == sanitizeCustom && s.fn == nil)
}

// Apply cleans raw. fallback is used by the default variant; a nil fallback
// means sanitize.Text.
func (s Sanitizer) Apply(raw string, fallback func(string) string) string {
	switch s.kind {
	case sanitizeText:
		return sanitize.Text(raw)
	case sanitizeTextarea:
		return sanitize.Textarea(raw)
	case sanitizeHTML:
		return sanitize.HTML(raw)
	case sanitizeNone:
		return raw
	case sanitizeCustom:
		if s.fn != nil {
			return s.fn(raw)
		}
	}
	if fallback == nil {
		return sanitize.Text(raw)
	}
	return fallback(raw)
}
