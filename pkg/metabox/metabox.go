package metabox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/goliatone/go-metaboxes/pkg/sanitize"
)

// NonceAction is the action every metabox token is scoped to. The per-box
// NonceName keeps submissions of different boxes apart.
const NonceAction = "metabox"

// NoncePrefix prefixes the metabox id to form the token input name.
const NoncePrefix = "_nonce-"

// Metabox is one normalized, self-contained form block.
type Metabox struct {
	id       string
	title    string
	screen   any
	context  Context
	priority Priority
	fields   []FieldSpec
	notes    string

	host Host
	cfg  config
}

// New normalizes def and binds it to host. An empty Definition yields a
// disabled Metabox whose operations are all no-ops.
func New(def Definition, host Host, options ...Option) *Metabox {
	cfg := defaultConfig()
	for _, opt := range options {
		if opt != nil {
			opt(&cfg)
		}
	}

	fields := make([]FieldSpec, len(def.Fields))
	for idx, field := range def.Fields {
		fields[idx] = field.clone()
	}

	return &Metabox{
		id:       cfg.slug(def.ID),
		title:    cfg.text(def.Title),
		screen:   def.Screen,
		context:  ParseContext(def.Context),
		priority: ParsePriority(def.Priority),
		fields:   fields,
		notes:    def.Notes,
		host:     host,
		cfg:      cfg,
	}
}

// ID returns the normalized identifier.
func (m *Metabox) ID() string { return m.id }

// Title returns the sanitized title.
func (m *Metabox) Title() string { return m.title }

// Context returns the validated placement, possibly ContextUnset.
func (m *Metabox) Context() Context { return m.context }

// Priority returns the validated priority, possibly PriorityUnset.
func (m *Metabox) Priority() Priority { return m.priority }

// Fields returns a copy of the declared fields.
func (m *Metabox) Fields() []FieldSpec {
	out := make([]FieldSpec, len(m.fields))
	for idx, field := range m.fields {
		out[idx] = field.clone()
	}
	return out
}

// NonceName is the submission field carrying this metabox's token. The id is
// reduced to characters safe in a form field name.
func (m *Metabox) NonceName() string {
	return NoncePrefix + sanitize.Key(m.id)
}

// FieldKey is the storage key of field, normalized with the metabox's slugger.
// An empty key means the field is never stored.
func (m *Metabox) FieldKey(field FieldSpec) string {
	return m.cfg.slug(field.ID)
}

// Add registers the metabox with the host for display. Metaboxes without an
// id are never registered.
func (m *Metabox) Add(ctx context.Context) error {
	if m.id == "" {
		m.cfg.logger.Debug("metabox: skipping registration without id")
		return nil
	}
	if m.host.Registrar == nil {
		return fmt.Errorf("metabox %q: registrar is required", m.id)
	}

	reg := Registration{
		ID:       m.id,
		Title:    m.title,
		Render:   m.Render,
		Screen:   m.screen,
		Context:  m.context,
		Priority: m.priority,
		Fields:   m.Fields(),
	}
	if err := m.host.Registrar.AddMetabox(ctx, reg); err != nil {
		return fmt.Errorf("metabox %q: register: %w", m.id, err)
	}
	return nil
}

// Render writes the nonce field, every field hydrated with the entity's stored
// values and the trailing notes to w. Output is assembled first and written
// once, so a failing collaborator leaves w untouched. args is ignored; the
// declared fields are authoritative.
func (m *Metabox) Render(ctx context.Context, w io.Writer, entity Entity, _ []FieldSpec) error {
	if len(m.fields) == 0 {
		return nil
	}
	if m.host.Nonces == nil || m.host.Store == nil || m.host.Fields == nil {
		return fmt.Errorf("metabox %q: render requires nonces, store and field renderer", m.id)
	}

	var html strings.Builder

	token, err := m.host.Nonces.Field(ctx, NonceAction, m.NonceName(), true)
	if err != nil {
		return fmt.Errorf("metabox %q: nonce field: %w", m.id, err)
	}
	html.WriteString(token)

	for _, spec := range m.fields {
		field, err := m.hydrate(ctx, entity.ID, spec)
		if err != nil {
			return err
		}
		markup, err := m.host.Fields.RenderField(ctx, field)
		if err != nil {
			return fmt.Errorf("metabox %q: render field %q: %w", m.id, field.ID, err)
		}
		html.WriteString(markup)
	}

	if notes := m.renderNotes(); notes != "" {
		html.WriteString(notes)
	}

	if _, err := io.WriteString(w, html.String()); err != nil {
		return fmt.Errorf("metabox %q: write: %w", m.id, err)
	}
	return nil
}

func (m *Metabox) hydrate(ctx context.Context, entityID int64, spec FieldSpec) (FieldSpec, error) {
	field := spec.clone()
	field.ID = m.FieldKey(spec)
	if field.Name == "" {
		field.Name = field.ID
	}
	if field.ID == "" {
		field.Value = []string{}
		return field, nil
	}

	stored, err := m.host.Store.Values(ctx, entityID, field.ID)
	if err != nil {
		return FieldSpec{}, fmt.Errorf("metabox %q: load %q: %w", m.id, field.ID, err)
	}
	switch len(stored) {
	case 0:
		field.Value = []string{}
	case 1:
		field.Value = stored[0]
	default:
		field.Value = append([]string(nil), stored...)
	}
	return field, nil
}

func (m *Metabox) renderNotes() string {
	if m.notes == "" {
		return ""
	}
	if m.cfg.notes != nil {
		return m.cfg.notes(m.notes)
	}
	return m.notes
}

// Save persists submitted values for entityID. Nothing is written unless every
// gate check passes. Each field's stored values are replaced wholesale: old
// values are deleted, and when the first submitted value is non-blank every
// submitted value is sanitized and appended in order.
func (m *Metabox) Save(ctx context.Context, entityID int64, req Request, actor Actor) error {
	if len(m.fields) == 0 {
		return nil
	}

	ok, reason, err := m.checkGate(ctx, entityID, req, actor)
	if err != nil {
		return err
	}
	if !ok {
		m.cfg.logger.Debug("metabox: save skipped",
			slog.String("metabox", m.id),
			slog.Int64("entity_id", entityID),
			slog.String("reason", reason))
		return nil
	}

	for _, spec := range m.fields {
		key := m.FieldKey(spec)
		if key == "" {
			m.cfg.logger.Debug("metabox: skipping field without id", slog.String("metabox", m.id))
			continue
		}
		name := spec.Name
		if name == "" {
			name = key
		}

		submitted, _ := req.Values(name)

		if err := m.host.Store.Delete(ctx, entityID, key); err != nil {
			return fmt.Errorf("metabox %q: delete %q: %w", m.id, key, err)
		}

		if len(submitted) == 0 || isBlank(submitted[0]) {
			continue
		}

		for _, raw := range submitted {
			value := spec.Sanitizer.Apply(raw, m.cfg.text)
			if err := m.host.Store.Append(ctx, entityID, key, value, false); err != nil {
				return fmt.Errorf("metabox %q: append %q: %w", m.id, key, err)
			}
		}
	}
	return nil
}

// isBlank mirrors the loose emptiness test used to clear fields: an empty
// string or "0".
func isBlank(value string) bool {
	return value == "" || value == "0"
}
