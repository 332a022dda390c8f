// Package loader reads metabox definitions from YAML documents. A loaded
// Catalog is a metaboxset.Provider: each entry may be limited to entity types
// and guarded by an expr-lang condition evaluated against the entity.
//
//	metaboxes:
//	  - id: pricing
//	    title: Pricing
//	    context: side
//	    types: [product]
//	    when: entity.id > 0
//	    fields:
//	      - id: price
//	        label: Price
//	        sanitize: text
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
	"github.com/goliatone/go-metaboxes/pkg/metaboxset"
	"github.com/goliatone/go-metaboxes/pkg/sanitize"
)

// Option configures loading.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	expandEnv bool
}

// WithLogger routes load and evaluation diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithoutEnvExpansion keeps "$VAR" sequences in the document verbatim.
func WithoutEnvExpansion() Option {
	return func(o *options) {
		o.expandEnv = false
	}
}

type document struct {
	Metaboxes []rawMetabox `yaml:"metaboxes"`
}

type rawMetabox struct {
	ID       string           `yaml:"id"`
	Title    string           `yaml:"title"`
	Screen   any              `yaml:"screen"`
	Context  string           `yaml:"context"`
	Priority string           `yaml:"priority"`
	Notes    string           `yaml:"notes"`
	Types    []string         `yaml:"types"`
	When     string           `yaml:"when"`
	Fields   []map[string]any `yaml:"fields"`
}

// Validate implements validation.Validatable.
func (m rawMetabox) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.ID, validation.Required, validation.By(sluggable)),
		validation.Field(&m.Types, validation.Each(validation.Required)),
		validation.Field(&m.When, validation.By(compiles)),
		validation.Field(&m.Fields, validation.Each(validation.By(fieldHasID))),
	)
}

func sluggable(value any) error {
	if id, _ := value.(string); id != "" && sanitize.Slug(id) == "" {
		return errors.New("must contain at least one letter or digit")
	}
	return nil
}

func compiles(value any) error {
	source, _ := value.(string)
	if source == "" {
		return nil
	}
	_, err := compileWhen(source)
	return err
}

func fieldHasID(value any) error {
	field, _ := value.(map[string]any)
	id, ok := field["id"]
	if !ok || id == nil || sanitize.Slug(fmt.Sprint(id)) == "" {
		return errors.New("field id is required")
	}
	return nil
}

// whenEnv is the environment "when" conditions run against.
type whenEnv struct {
	Entity whenEntity `expr:"entity"`
}

type whenEntity struct {
	ID   int64  `expr:"id"`
	Type string `expr:"type"`
}

func compileWhen(source string) (*vm.Program, error) {
	return expr.Compile(source, expr.Env(whenEnv{}), expr.AsBool())
}

// Entry is one loaded definition plus its applicability rules.
type Entry struct {
	Definition metabox.Definition
	Types      []string
	When       string

	program *vm.Program
}

// Applies reports whether the entry should be offered for entity.
func (e Entry) Applies(entity metabox.Entity) (bool, error) {
	if len(e.Types) > 0 && !slices.Contains(e.Types, entity.Type) {
		return false, nil
	}
	if e.program == nil {
		return true, nil
	}
	out, err := expr.Run(e.program, whenEnv{Entity: whenEntity{ID: entity.ID, Type: entity.Type}})
	if err != nil {
		return false, fmt.Errorf("loader: evaluate when for %q: %w", e.Definition.ID, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Catalog is an ordered set of loaded definitions.
type Catalog struct {
	entries []Entry
	logger  *slog.Logger
}

var _ metaboxset.Provider = (*Catalog)(nil)

// Load reads and parses the YAML file at path.
func Load(path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return Parse(data, opts...)
}

// LoadFS reads and parses name from fsys.
func LoadFS(fsys fs.FS, name string, opts ...Option) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", name, err)
	}
	return Parse(data, opts...)
}

// Parse decodes a YAML document. Unknown keys at the metabox level, invalid
// sanitizer names, uncompilable conditions and duplicate ids are errors.
func Parse(data []byte, opts ...Option) (*Catalog, error) {
	o := options{logger: slog.New(slog.DiscardHandler), expandEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.expandEnv {
		data = []byte(os.ExpandEnv(string(data)))
	}

	var doc document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("loader: decode: %w", err)
	}

	catalog := &Catalog{logger: o.logger}
	seen := make(map[string]int, len(doc.Metaboxes))
	for idx, raw := range doc.Metaboxes {
		if err := raw.Validate(); err != nil {
			return nil, fmt.Errorf("loader: metabox %d (%q): %w", idx, raw.ID, err)
		}
		slug := sanitize.Slug(raw.ID)
		if first, dup := seen[slug]; dup {
			return nil, fmt.Errorf("loader: metabox %d: id %q already used by metabox %d", idx, slug, first)
		}
		seen[slug] = idx

		entry, err := raw.entry()
		if err != nil {
			return nil, fmt.Errorf("loader: metabox %q: %w", raw.ID, err)
		}
		catalog.entries = append(catalog.entries, entry)
	}

	o.logger.Debug("loader: definitions parsed", slog.Int("count", len(catalog.entries)))
	return catalog, nil
}

func (m rawMetabox) entry() (Entry, error) {
	def := metabox.Definition{
		ID:       m.ID,
		Title:    m.Title,
		Screen:   m.Screen,
		Context:  m.Context,
		Priority: m.Priority,
		Notes:    m.Notes,
	}
	for idx, raw := range m.Fields {
		field, err := metabox.FieldFromMap(raw)
		if err != nil {
			return Entry{}, fmt.Errorf("field %d: %w", idx, err)
		}
		def.Fields = append(def.Fields, field)
	}

	entry := Entry{Definition: def, Types: m.Types, When: m.When}
	if m.When != "" {
		program, err := compileWhen(m.When)
		if err != nil {
			return Entry{}, err
		}
		entry.program = program
	}
	return entry, nil
}

// Entries returns the loaded entries in document order.
func (c *Catalog) Entries() []Entry {
	return slices.Clone(c.entries)
}

// Metaboxes implements metaboxset.Provider.
func (c *Catalog) Metaboxes(_ context.Context, entity metabox.Entity) ([]metabox.Definition, error) {
	var out []metabox.Definition
	for _, entry := range c.entries {
		ok, err := entry.Applies(entity)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.logger.Debug("loader: definition not applicable",
				slog.String("metabox", entry.Definition.ID),
				slog.String("entity_type", entity.Type),
				slog.Int64("entity_id", entity.ID))
			continue
		}
		out = append(out, entry.Definition)
	}
	return out, nil
}
