package metabox

import (
	"context"
	"errors"
	"io"
	"net/url"
)

// ErrEntityNotFound is returned by EntityLookup implementations when no entity
// exists for the requested id. Save treats it as a failed gate check.
var ErrEntityNotFound = errors.New("metabox: entity not found")

// Entity is the record a metabox's values are attached to.
type Entity struct {
	ID   int64
	Type string
}

// RenderFunc is the delegate handed to the host at registration. args echoes
// Registration.Fields back from the host and is informational only.
type RenderFunc func(ctx context.Context, w io.Writer, entity Entity, args []FieldSpec) error

// Registration is everything the host needs to display a metabox.
type Registration struct {
	ID       string
	Title    string
	Render   RenderFunc
	Screen   any
	Context  Context
	Priority Priority
	Fields   []FieldSpec
}

// Registrar accepts metabox display registrations.
type Registrar interface {
	AddMetabox(ctx context.Context, reg Registration) error
}

// RegistrarFunc adapts a function into a Registrar.
type RegistrarFunc func(ctx context.Context, reg Registration) error

// AddMetabox delegates to the underlying function.
func (fn RegistrarFunc) AddMetabox(ctx context.Context, reg Registration) error {
	return fn(ctx, reg)
}

// Store is the per-entity multi-valued key/value store. Values must be
// returned in insertion order.
type Store interface {
	Values(ctx context.Context, entityID int64, key string) ([]string, error)
	Delete(ctx context.Context, entityID int64, key string) error
	Append(ctx context.Context, entityID int64, key, value string, unique bool) error
}

// Nonces issues and verifies anti-forgery tokens scoped to an action.
type Nonces interface {
	// Field returns hidden input markup carrying a token for action under the
	// given input name, optionally followed by a referer field.
	Field(ctx context.Context, action, name string, withReferer bool) (string, error)
	// Verify reports whether token is valid for action.
	Verify(ctx context.Context, token, action string) bool
}

// FieldRenderer produces the markup for one hydrated field.
type FieldRenderer interface {
	RenderField(ctx context.Context, field FieldSpec) (string, error)
}

// FieldRendererFunc adapts a function into a FieldRenderer.
type FieldRendererFunc func(ctx context.Context, field FieldSpec) (string, error)

// RenderField delegates to the underlying function.
func (fn FieldRendererFunc) RenderField(ctx context.Context, field FieldSpec) (string, error) {
	return fn(ctx, field)
}

// EntityLookup resolves an entity from its id.
type EntityLookup interface {
	Entity(ctx context.Context, id int64) (Entity, error)
}

// CapabilityResolver maps an entity type to the capability required to edit
// a single entity of that type.
type CapabilityResolver interface {
	EditCapability(ctx context.Context, entityType string) (string, error)
}

// CapabilityMap is a static CapabilityResolver. Types missing from the map
// resolve to "edit_<type>".
type CapabilityMap map[string]string

// EditCapability implements CapabilityResolver.
func (m CapabilityMap) EditCapability(_ context.Context, entityType string) (string, error) {
	if capability, ok := m[entityType]; ok && capability != "" {
		return capability, nil
	}
	return "edit_" + entityType, nil
}

// Actor is the user performing a save.
type Actor interface {
	Can(capability string, entityID int64) bool
}

// ActorFunc adapts a function into an Actor.
type ActorFunc func(capability string, entityID int64) bool

// Can delegates to the underlying function.
func (fn ActorFunc) Can(capability string, entityID int64) bool {
	return fn(capability, entityID)
}

// Capabilities is an Actor granted a fixed capability set for every entity.
type Capabilities []string

// Can implements Actor.
func (c Capabilities) Can(capability string, _ int64) bool {
	for _, granted := range c {
		if granted == capability {
			return true
		}
	}
	return false
}

// Request exposes the submitted payload of a save.
type Request interface {
	// Values returns every submitted value for a field name.
	Values(name string) ([]string, bool)
	// Autosave reports whether the save was triggered by a background autosave.
	Autosave() bool
}

// Submission is a Request backed by decoded form values.
type Submission struct {
	Form       url.Values
	IsAutosave bool
}

// Values implements Request.
func (s Submission) Values(name string) ([]string, bool) {
	values, ok := s.Form[name]
	return values, ok
}

// Autosave implements Request.
func (s Submission) Autosave() bool {
	return s.IsAutosave
}

// Host bundles the collaborators a Metabox talks to. Registrar is needed by
// Add; Store, Nonces and Fields by Render; Store, Nonces, Entities and
// Capabilities by Save.
type Host struct {
	Registrar    Registrar
	Store        Store
	Nonces       Nonces
	Fields       FieldRenderer
	Entities     EntityLookup
	Capabilities CapabilityResolver
}
