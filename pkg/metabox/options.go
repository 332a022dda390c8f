package metabox

import (
	"log/slog"

	"github.com/goliatone/go-metaboxes/pkg/sanitize"
)

// Option customises a Metabox at construction.
type Option func(*config)

type config struct {
	logger *slog.Logger
	slug   func(string) string
	text   func(string) string
	notes  func(string) string
}

func defaultConfig() config {
	return config{
		logger: slog.New(slog.DiscardHandler),
		slug:   sanitize.Slug,
		text:   sanitize.Text,
	}
}

// WithLogger routes diagnostic output (failed gate checks, skipped work).
// Nothing is logged by default.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSlugger overrides the identifier normalizer used for metabox and field
// ids.
func WithSlugger(fn func(string) string) Option {
	return func(cfg *config) {
		if fn != nil {
			cfg.slug = fn
		}
	}
}

// Slugger returns the identifier normalizer a Metabox built with options
// would use.
func Slugger(options ...Option) func(string) string {
	cfg := defaultConfig()
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg.slug
}

// WithTextSanitizer overrides the default sanitizer applied to titles and to
// submitted values of fields without an explicit Sanitizer.
func WithTextSanitizer(fn func(string) string) Option {
	return func(cfg *config) {
		if fn != nil {
			cfg.text = fn
		}
	}
}

// WithNotesSanitizer filters the Notes fragment before it is emitted. Notes
// are written verbatim without it.
func WithNotesSanitizer(fn func(string) string) Option {
	return func(cfg *config) {
		cfg.notes = fn
	}
}

// WithSafeNotes is WithNotesSanitizer(sanitize.HTML).
func WithSafeNotes() Option {
	return WithNotesSanitizer(sanitize.HTML)
}
