// Package metaboxset lets a host drive several metabox definitions through the
// shared lifecycle hooks: one Set registers itself once, resolves the
// definition list lazily and fans Add and Save out to a fresh Metabox per
// definition, in declaration order.
package metaboxset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goliatone/go-metaboxes/pkg/hooks"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

// Provider supplies the ordered metabox definitions for an entity. An empty
// result means there is nothing to do.
type Provider interface {
	Metaboxes(ctx context.Context, entity metabox.Entity) ([]metabox.Definition, error)
}

// ProviderFunc adapts a function into a Provider.
type ProviderFunc func(ctx context.Context, entity metabox.Entity) ([]metabox.Definition, error)

// Metaboxes delegates to the underlying function.
func (fn ProviderFunc) Metaboxes(ctx context.Context, entity metabox.Entity) ([]metabox.Definition, error) {
	return fn(ctx, entity)
}

// Definitions is a Provider returning the same list for every entity.
type Definitions []metabox.Definition

// Metaboxes implements Provider.
func (d Definitions) Metaboxes(context.Context, metabox.Entity) ([]metabox.Definition, error) {
	return d, nil
}

// Option configures a Set.
type Option func(*Set)

// WithLogger routes diagnostics for the set and, unless overridden through
// WithMetaboxOptions, for every Metabox it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithoutCache resolves definitions on every Add and Save instead of once per
// Set.
func WithoutCache() Option {
	return func(s *Set) {
		s.cache = false
	}
}

// WithMetaboxOptions forwards options to every Metabox the set constructs.
func WithMetaboxOptions(options ...metabox.Option) Option {
	return func(s *Set) {
		s.boxOptions = append(s.boxOptions, options...)
	}
}

// resolution is the memoized outcome of asking the provider. A nil
// *resolution means "not resolved yet"; an empty definitions slice means
// "resolved to nothing".
type resolution struct {
	definitions []metabox.Definition
}

// Set is the composition layer. A Set memoizes the first resolved definition
// list for its whole lifetime, so hosts should create one per request.
type Set struct {
	provider   Provider
	host       metabox.Host
	logger     *slog.Logger
	boxOptions []metabox.Option
	cache      bool

	mu       sync.Mutex
	resolved *resolution
}

// New builds a Set resolving definitions through provider and binding every
// Metabox to host.
func New(provider Provider, host metabox.Host, options ...Option) *Set {
	s := &Set{
		provider: provider,
		host:     host,
		logger:   slog.New(slog.DiscardHandler),
		cache:    true,
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Setup registers Add for the build event and Save for both save events.
// Calling it twice registers the handlers twice.
func (s *Set) Setup(registrar hooks.Registrar) {
	registrar.Register(hooks.EventBuildMetaboxes, func(ctx context.Context, p hooks.Payload) error {
		return s.Add(ctx, p.EntityType, p.Entity)
	})
	save := func(ctx context.Context, p hooks.Payload) error {
		return s.Save(ctx, p.EntityID, p.Request, p.Actor)
	}
	registrar.Register(hooks.EventEntitySaved, save)
	registrar.Register(hooks.EventAttachmentSaved, save)
}

// Add registers every metabox defined for entity with the host.
func (s *Set) Add(ctx context.Context, entityType string, entity metabox.Entity) error {
	boxes, err := s.Metaboxes(ctx, entity)
	if err != nil {
		return err
	}
	for _, box := range boxes {
		if err := box.Add(ctx); err != nil {
			return err
		}
	}
	if len(boxes) > 0 {
		s.logger.Debug("metaboxset: metaboxes added",
			slog.String("entity_type", entityType),
			slog.Int64("entity_id", entity.ID),
			slog.Int("count", len(boxes)))
	}
	return nil
}

// Save resolves entityID and runs Save on every metabox defined for it. An
// unknown entity is a silent no-op.
func (s *Set) Save(ctx context.Context, entityID int64, req metabox.Request, actor metabox.Actor) error {
	if entityID < 1 {
		return nil
	}
	if s.host.Entities == nil {
		return errors.New("metaboxset: entity lookup is required")
	}

	entity, err := s.host.Entities.Entity(ctx, entityID)
	if errors.Is(err, metabox.ErrEntityNotFound) {
		s.logger.Debug("metaboxset: save skipped for unknown entity", slog.Int64("entity_id", entityID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("metaboxset: resolve entity %d: %w", entityID, err)
	}

	boxes, err := s.Metaboxes(ctx, entity)
	if err != nil {
		return err
	}
	for _, box := range boxes {
		if err := box.Save(ctx, entityID, req, actor); err != nil {
			return err
		}
	}
	return nil
}

// Metaboxes constructs a fresh Metabox for each resolved definition.
func (s *Set) Metaboxes(ctx context.Context, entity metabox.Entity) ([]*metabox.Metabox, error) {
	definitions, err := s.Definitions(ctx, entity)
	if err != nil {
		return nil, err
	}
	if len(definitions) == 0 {
		return nil, nil
	}

	options := make([]metabox.Option, 0, len(s.boxOptions)+1)
	options = append(options, metabox.WithLogger(s.logger))
	options = append(options, s.boxOptions...)

	boxes := make([]*metabox.Metabox, 0, len(definitions))
	for _, def := range definitions {
		boxes = append(boxes, metabox.New(def, s.host, options...))
	}
	return boxes, nil
}

// Definitions returns the resolved definition list, asking the provider only
// on first use unless the set was built WithoutCache. Later definitions that
// reuse an earlier id are dropped.
func (s *Set) Definitions(ctx context.Context, entity metabox.Entity) ([]metabox.Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache && s.resolved != nil {
		return s.resolved.definitions, nil
	}
	if s.provider == nil {
		return nil, nil
	}

	definitions, err := s.provider.Metaboxes(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("metaboxset: resolve definitions: %w", err)
	}
	definitions = s.dedupe(definitions)

	if s.cache {
		s.resolved = &resolution{definitions: definitions}
	}
	return definitions, nil
}

// Resolved reports whether the memoized definition list has been populated.
func (s *Set) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved != nil
}

func (s *Set) dedupe(definitions []metabox.Definition) []metabox.Definition {
	if len(definitions) < 2 {
		return definitions
	}
	slug := metabox.Slugger(s.boxOptions...)
	seen := make(map[string]struct{}, len(definitions))
	out := make([]metabox.Definition, 0, len(definitions))
	for _, def := range definitions {
		id := slug(def.ID)
		if id != "" {
			if _, dup := seen[id]; dup {
				s.logger.Warn("metaboxset: duplicate metabox id dropped", slog.String("metabox", id))
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, def)
	}
	return out
}
