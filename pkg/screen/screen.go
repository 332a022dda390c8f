// Package screen serves a minimal HTML edit screen for entities. It plays the
// host role for metaboxes over HTTP: every request gets a fresh lifecycle
// dispatcher and metabox set, the build event collects registrations that are
// rendered grouped by context, and form submissions fire the save event that
// matches the entity type.
package screen

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/goliatone/go-metaboxes/pkg/fields"
	"github.com/goliatone/go-metaboxes/pkg/hooks"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
	"github.com/goliatone/go-metaboxes/pkg/metaboxset"
	"github.com/goliatone/go-metaboxes/pkg/nonce"
)

//go:embed templates/screen/*.tpl
var templateFS embed.FS

const editTemplate = "screen/edit"

// ActorResolver identifies the user behind a request. The id scopes nonces;
// the Actor answers capability checks.
type ActorResolver func(r *http.Request) (string, metabox.Actor)

// Option configures a Server.
type Option func(*Server)

// WithLogger routes request diagnostics and is forwarded to every set.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithActorResolver sets how requests map to actors. Without it every request
// is anonymous and holds no capabilities, so saves are skipped.
func WithActorResolver(resolve ActorResolver) Option {
	return func(s *Server) {
		if resolve != nil {
			s.actor = resolve
		}
	}
}

// WithSetOptions forwards options to the per request metabox set.
func WithSetOptions(options ...metaboxset.Option) Option {
	return func(s *Server) {
		s.setOptions = append(s.setOptions, options...)
	}
}

// WithEngine renders the page through engine instead of the embedded layout.
// engine must provide "screen/edit".
func WithEngine(engine *fields.Engine) Option {
	return func(s *Server) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// Server is the edit screen HTTP handler.
type Server struct {
	provider   metaboxset.Provider
	host       metabox.Host
	logger     *slog.Logger
	actor      ActorResolver
	setOptions []metaboxset.Option
	engine     *fields.Engine
	router     chi.Router
}

// New builds a Server. host supplies every collaborator except the
// Registrar, which is provided per request.
func New(provider metaboxset.Provider, host metabox.Host, options ...Option) (*Server, error) {
	if host.Entities == nil {
		return nil, errors.New("screen: entity lookup is required")
	}
	s := &Server{
		provider: provider,
		host:     host,
		logger:   slog.New(slog.DiscardHandler),
		actor: func(*http.Request) (string, metabox.Actor) {
			return "", metabox.Capabilities(nil)
		},
	}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	if s.engine == nil {
		sub, err := fs.Sub(templateFS, "templates")
		if err != nil {
			return nil, fmt.Errorf("screen: templates: %w", err)
		}
		engine, err := fields.NewEngine(fields.WithFS(sub))
		if err != nil {
			return nil, fmt.Errorf("screen: engine: %w", err)
		}
		s.engine = engine
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/entities/{id}/edit", s.edit)
	r.Post("/entities/{id}", s.save)

	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// collector is the per request Registrar.
type collector struct {
	registrations []metabox.Registration
}

func (c *collector) AddMetabox(_ context.Context, reg metabox.Registration) error {
	c.registrations = append(c.registrations, reg)
	return nil
}

func (s *Server) lifecycle(registrar metabox.Registrar) *hooks.Dispatcher {
	host := s.host
	host.Registrar = registrar

	options := append([]metaboxset.Option{metaboxset.WithLogger(s.logger)}, s.setOptions...)
	set := metaboxset.New(s.provider, host, options...)

	dispatcher := hooks.NewDispatcher()
	set.Setup(dispatcher)
	return dispatcher
}

func (s *Server) entity(w http.ResponseWriter, r *http.Request) (metabox.Entity, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "invalid entity id", http.StatusBadRequest)
		return metabox.Entity{}, false
	}
	entity, err := s.host.Entities.Entity(r.Context(), id)
	if errors.Is(err, metabox.ErrEntityNotFound) {
		http.Error(w, "entity not found", http.StatusNotFound)
		return metabox.Entity{}, false
	}
	if err != nil {
		s.fail(w, r, "load entity", err)
		return metabox.Entity{}, false
	}
	return entity, true
}

func (s *Server) edit(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}
	actorID, _ := s.actor(r)
	ctx := nonce.WithReferer(nonce.WithActor(r.Context(), actorID), r.URL.RequestURI())

	registrations := &collector{}
	dispatcher := s.lifecycle(registrations)
	if err := dispatcher.Dispatch(ctx, hooks.EventBuildMetaboxes, hooks.Payload{
		EntityType: entity.Type,
		Entity:     entity,
	}); err != nil {
		s.fail(w, r, "build metaboxes", err)
		return
	}

	groups, err := renderGroups(ctx, entity, registrations.registrations)
	if err != nil {
		s.fail(w, r, "render metaboxes", err)
		return
	}

	page, err := s.engine.Render(editTemplate, map[string]any{
		"entity": map[string]any{"id": entity.ID, "type": entity.Type},
		"action": fmt.Sprintf("/entities/%d", entity.ID),
		"groups": groups,
	})
	if err != nil {
		s.fail(w, r, "render page", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(page))
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	entity, ok := s.entity(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	actorID, actor := s.actor(r)
	ctx := nonce.WithActor(r.Context(), actorID)

	submission := metabox.Submission{
		Form:       r.PostForm,
		IsAutosave: r.PostForm.Get("autosave") == "1" || r.Header.Get("X-Autosave") == "1",
	}
	event := hooks.SaveEvent(entity.Type)
	dispatcher := s.lifecycle(&collector{})
	if err := dispatcher.Dispatch(ctx, event, hooks.Payload{
		EntityType: entity.Type,
		Entity:     entity,
		EntityID:   entity.ID,
		Request:    submission,
		Actor:      actor,
	}); err != nil {
		s.fail(w, r, "save metaboxes", err)
		return
	}

	s.logger.Info("screen: entity saved",
		slog.Int64("entity_id", entity.ID),
		slog.String("event", string(event)),
		slog.String("request_id", middleware.GetReqID(r.Context())))

	http.Redirect(w, r, redirectTarget(r.PostForm.Get(nonce.RefererField), entity.ID), http.StatusSeeOther)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error("screen: "+op+" failed",
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetReqID(r.Context())))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// redirectTarget only follows referers that are a path on this host. Browsers
// read a backslash as a slash, so "/\host" is treated like "//host".
func redirectTarget(referer string, entityID int64) string {
	fallback := fmt.Sprintf("/entities/%d/edit", entityID)
	if strings.ContainsRune(referer, '\\') {
		return fallback
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return fallback
	}
	if !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(u.Path, "//") || !strings.HasPrefix(referer, "/") {
		return fallback
	}
	return referer
}

var contextOrder = []metabox.Context{metabox.ContextNormal, metabox.ContextSide, metabox.ContextAdvanced}

func priorityRank(p metabox.Priority) int {
	switch p {
	case metabox.PriorityHigh:
		return 0
	case metabox.PriorityLow:
		return 2
	default:
		return 1
	}
}

func renderGroups(ctx context.Context, entity metabox.Entity, registrations []metabox.Registration) ([]map[string]any, error) {
	byContext := make(map[metabox.Context][]metabox.Registration)
	for _, reg := range registrations {
		placement := reg.Context
		if placement == metabox.ContextUnset {
			placement = metabox.ContextNormal
		}
		byContext[placement] = append(byContext[placement], reg)
	}

	var groups []map[string]any
	for _, placement := range contextOrder {
		regs := byContext[placement]
		if len(regs) == 0 {
			continue
		}
		sort.SliceStable(regs, func(i, j int) bool {
			return priorityRank(regs[i].Priority) < priorityRank(regs[j].Priority)
		})

		boxes := make([]map[string]any, 0, len(regs))
		for _, reg := range regs {
			var buf bytes.Buffer
			if reg.Render != nil {
				if err := reg.Render(ctx, &buf, entity, reg.Fields); err != nil {
					return nil, err
				}
			}
			boxes = append(boxes, map[string]any{
				"id":    reg.ID,
				"title": reg.Title,
				"html":  buf.String(),
			})
		}
		groups = append(groups, map[string]any{
			"context": string(placement),
			"boxes":   boxes,
		})
	}
	return groups, nil
}
