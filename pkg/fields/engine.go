package fields

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// EngineOption configures the template engine before construction.
type EngineOption func(*engineConfig)

type engineConfig struct {
	baseDir    string
	templates  []fs.FS
	extension  string
	globalData map[string]any
}

// WithBaseDir loads templates from a directory on disk. Callers' templates take
// precedence over the embedded defaults.
func WithBaseDir(dir string) EngineOption {
	return func(cfg *engineConfig) {
		cfg.baseDir = strings.TrimSpace(dir)
	}
}

// WithFS adds an fs.FS to the template search path, ahead of the embedded
// defaults.
func WithFS(files fs.FS) EngineOption {
	return func(cfg *engineConfig) {
		if files != nil {
			cfg.templates = append(cfg.templates, files)
		}
	}
}

// WithExtension overrides the template extension (default ".tpl").
func WithExtension(ext string) EngineOption {
	return func(cfg *engineConfig) {
		trimmed := strings.TrimSpace(ext)
		if trimmed == "" {
			return
		}
		if !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		cfg.extension = trimmed
	}
}

// WithGlobalData seeds values available to every template.
func WithGlobalData(data map[string]any) EngineOption {
	return func(cfg *engineConfig) {
		if len(data) == 0 {
			return
		}
		if cfg.globalData == nil {
			cfg.globalData = make(map[string]any, len(data))
		}
		for key, value := range data {
			cfg.globalData[strings.TrimSpace(key)] = value
		}
	}
}

// Engine renders named pongo2 templates. Output is autoescaped.
type Engine struct {
	mu sync.RWMutex

	loaders     []pongo2.TemplateLoader
	templateSet *pongo2.TemplateSet
	templates   map[string]*pongo2.Template
	ext         string
}

// NewEngine builds an Engine that searches, in order, the base directory, any
// WithFS file systems and the embedded widget templates.
func NewEngine(options ...EngineOption) (*Engine, error) {
	cfg := &engineConfig{extension: ".tpl"}
	for _, opt := range options {
		if opt != nil {
			opt(cfg)
		}
	}

	var loaders []pongo2.TemplateLoader
	if cfg.baseDir != "" {
		loader, err := pongo2.NewLocalFileSystemLoader(cfg.baseDir)
		if err != nil {
			return nil, fmt.Errorf("fields: create local loader: %w", err)
		}
		loaders = append(loaders, loader)
	}
	for _, files := range cfg.templates {
		loaders = append(loaders, pongo2.NewFSLoader(files))
	}
	loaders = append(loaders, pongo2.NewFSLoader(TemplatesFS()))

	e := &Engine{
		loaders:     loaders,
		templateSet: pongo2.NewSet("metaboxes", loaders...),
		templates:   make(map[string]*pongo2.Template),
		ext:         cfg.extension,
	}
	if len(cfg.globalData) > 0 {
		if e.templateSet.Globals == nil {
			e.templateSet.Globals = make(pongo2.Context)
		}
		e.templateSet.Globals.Update(pongo2.Context(cfg.globalData))
	}
	return e, nil
}

// Has reports whether a template named name can be loaded.
func (e *Engine) Has(name string) bool {
	_, err := e.template(name)
	return err == nil
}

// Render executes the named template with data.
func (e *Engine) Render(name string, data map[string]any) (string, error) {
	if e == nil || e.templateSet == nil {
		return "", errors.New("fields: engine is nil")
	}
	tmpl, err := e.template(name)
	if err != nil {
		return "", err
	}

	e.mu.RLock()
	out, err := tmpl.Execute(pongo2.Context(data))
	e.mu.RUnlock()
	if err != nil {
		return "", fmt.Errorf("fields: execute template %q: %w", name, err)
	}
	return out, nil
}

func (e *Engine) template(name string) (*pongo2.Template, error) {
	path := strings.TrimSpace(name)
	if !strings.HasSuffix(path, e.ext) {
		path += e.ext
	}

	e.mu.RLock()
	if tmpl, ok := e.templates[path]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if tmpl, ok := e.templates[path]; ok {
		return tmpl, nil
	}
	if !e.exists(path) {
		return nil, fmt.Errorf("fields: template %q not found", path)
	}
	tmpl, err := e.templateSet.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("fields: load template %q: %w", path, err)
	}
	e.templates[path] = tmpl
	return tmpl, nil
}

func (e *Engine) exists(path string) bool {
	for _, loader := range e.loaders {
		reader, err := loader.Get(loader.Abs("", path))
		if err != nil || reader == nil {
			continue
		}
		if closer, ok := reader.(io.Closer); ok {
			_ = closer.Close()
		}
		return true
	}
	return false
}
