// Package app wires configuration, storage, definitions and the HTTP edit
// screen into the metaboxctl application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-metaboxes/internal/prompt"
	"github.com/goliatone/go-metaboxes/pkg/config"
	"github.com/goliatone/go-metaboxes/pkg/fields"
	"github.com/goliatone/go-metaboxes/pkg/loader"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
	"github.com/goliatone/go-metaboxes/pkg/metaboxset"
	"github.com/goliatone/go-metaboxes/pkg/nonce"
	"github.com/goliatone/go-metaboxes/pkg/screen"
	"github.com/goliatone/go-metaboxes/pkg/store/sqlite"
)

// Option is a functional option for configuring the application.
type Option func(*App)

// WithConfig sets the application configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) {
		a.config = cfg
	}
}

// WithLogger overrides the logger built from the configured level.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// App holds the long lived collaborators shared by every command.
type App struct {
	config   *config.Config
	logger   *slog.Logger
	store    *sqlite.Store
	catalog  *loader.Catalog
	nonces   *nonce.Manager
	renderer *fields.Renderer
}

// New opens the store and loads definitions. Callers must Close the App.
func New(opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}

	catalog, err := loader.Load(cfg.Definitions.Path, loader.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	a.catalog = catalog

	nonces, err := nonce.New([]byte(cfg.Nonce.Secret), nonce.WithLifetime(cfg.Nonce.Lifetime))
	if err != nil {
		return nil, fmt.Errorf("init nonces: %w", err)
	}
	a.nonces = nonces

	renderer, err := fields.NewRenderer(nil)
	if err != nil {
		return nil, fmt.Errorf("init field renderer: %w", err)
	}
	a.renderer = renderer

	store, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.store = store

	a.logger.Debug("Application initialised",
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("definitions_path", cfg.Definitions.Path),
		slog.Int("definitions", len(catalog.Entries())))
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

func (a *App) host(registrar metabox.Registrar) metabox.Host {
	return metabox.Host{
		Registrar:    registrar,
		Store:        a.store,
		Nonces:       a.nonces,
		Fields:       a.renderer,
		Entities:     a.store,
		Capabilities: a.config.Capabilities(),
	}
}

func (a *App) actor() metabox.Actor {
	return metabox.Capabilities(a.config.Actor.Capabilities)
}

func (a *App) actorContext(ctx context.Context) context.Context {
	return nonce.WithActor(ctx, a.config.Actor.ID)
}

func (a *App) set(registrar metabox.Registrar) *metaboxset.Set {
	return metaboxset.New(a.catalog, a.host(registrar), metaboxset.WithLogger(a.logger))
}

// PutEntity records an entity so metaboxes can be attached to it.
func (a *App) PutEntity(ctx context.Context, entity metabox.Entity) error {
	return a.store.PutEntity(ctx, entity)
}

// Render writes every metabox of the entity to w, each under a heading.
func (a *App) Render(ctx context.Context, w io.Writer, entityID int64) error {
	entity, err := a.store.Entity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("entity %d: %w", entityID, err)
	}
	ctx = a.actorContext(ctx)

	boxes, err := a.set(nil).Metaboxes(ctx, entity)
	if err != nil {
		return err
	}
	for _, box := range boxes {
		if _, err := fmt.Fprintf(w, "<!-- metabox %s: %s -->\n", box.ID(), box.Title()); err != nil {
			return err
		}
		if err := box.Render(ctx, w, entity, box.Fields()); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Show writes every stored key and its values for the entity to w.
func (a *App) Show(ctx context.Context, w io.Writer, entityID int64) error {
	entity, err := a.store.Entity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("entity %d: %w", entityID, err)
	}
	if _, err := fmt.Fprintf(w, "entity %d (%s)\n", entity.ID, entity.Type); err != nil {
		return err
	}
	keys, err := a.store.Keys(ctx, entityID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		values, err := a.store.Values(ctx, entityID, key)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "  %s = %s\n", key, strings.Join(values, " | ")); err != nil {
			return err
		}
	}
	return nil
}

// Fill prompts for every field of the entity's metaboxes, optionally limited
// to one metabox id, and saves the answers through the regular save path.
func (a *App) Fill(ctx context.Context, driver prompt.Driver, entityID int64, only string) error {
	entity, err := a.store.Entity(ctx, entityID)
	if err != nil {
		return fmt.Errorf("entity %d: %w", entityID, err)
	}
	ctx = a.actorContext(ctx)

	set := a.set(nil)
	boxes, err := set.Metaboxes(ctx, entity)
	if err != nil {
		return err
	}

	lookup := func(ctx context.Context, key string) ([]string, error) {
		return a.store.Values(ctx, entityID, key)
	}
	form := make(map[string][]string)
	for _, box := range boxes {
		if only != "" && box.ID() != only {
			continue
		}
		answers, err := prompt.Fill(ctx, driver, box, lookup, a.nonces.Token(ctx, metabox.NonceAction))
		if err != nil {
			return err
		}
		for name, values := range answers {
			form[name] = values
		}
	}

	return set.Save(ctx, entityID, metabox.Submission{Form: form}, a.actor())
}

// Handler builds the HTTP edit screen.
func (a *App) Handler() (http.Handler, error) {
	actorID, actor := a.config.Actor.ID, a.actor()
	return screen.New(a.catalog, a.host(nil),
		screen.WithLogger(a.logger),
		screen.WithActorResolver(func(*http.Request) (string, metabox.Actor) {
			return actorID, actor
		}),
	)
}

// Serve runs the HTTP edit screen until ctx is cancelled or a shutdown signal
// arrives.
func (a *App) Serve(ctx context.Context) error {
	logger := a.logger
	handler, err := a.Handler()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              a.config.HTTP.Address(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("Server stopped successfully")
	return nil
}
