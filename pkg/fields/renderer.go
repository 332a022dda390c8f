// Package fields renders hydrated metabox fields through pongo2 templates. The
// widget template is picked from the field's "widget" option, then its "type"
// option, and falls back to the generic input template. Only a minimal set of
// widgets (input, textarea, select) is embedded; callers add their own by
// placing "widgets/<name>.tpl" in a directory or fs.FS ahead of the defaults.
package fields

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

const (
	widgetInput    = "input"
	widgetTextarea = "textarea"
	widgetSelect   = "select"
)

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithFallbackWidget sets the widget used when the resolved one has no
// template.
func WithFallbackWidget(name string) RendererOption {
	return func(r *Renderer) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			r.fallback = trimmed
		}
	}
}

// WithWidgetAlias maps a field type onto a widget template, for example
// "wysiwyg" onto "textarea".
func WithWidgetAlias(fieldType, widget string) RendererOption {
	return func(r *Renderer) {
		r.aliases[strings.ToLower(strings.TrimSpace(fieldType))] = strings.TrimSpace(widget)
	}
}

// Renderer implements metabox.FieldRenderer.
type Renderer struct {
	engine   *Engine
	fallback string
	aliases  map[string]string
}

var _ metabox.FieldRenderer = (*Renderer)(nil)

// NewRenderer builds a Renderer on engine. A nil engine uses the embedded
// templates only.
func NewRenderer(engine *Engine, options ...RendererOption) (*Renderer, error) {
	if engine == nil {
		var err error
		if engine, err = NewEngine(); err != nil {
			return nil, err
		}
	}
	r := &Renderer{
		engine:   engine,
		fallback: widgetInput,
		aliases: map[string]string{
			"textarea": widgetTextarea,
			"select":   widgetSelect,
		},
	}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// RenderField implements metabox.FieldRenderer.
func (r *Renderer) RenderField(_ context.Context, field metabox.FieldSpec) (string, error) {
	widget := r.resolveWidget(field)
	if !r.engine.Has(templateName(widget)) {
		widget = r.fallback
	}
	out, err := r.engine.Render(templateName(widget), fieldData(field))
	if err != nil {
		return "", fmt.Errorf("fields: render %q as %s: %w", field.ID, widget, err)
	}
	return out, nil
}

func templateName(widget string) string {
	return "widgets/" + widget
}

func (r *Renderer) resolveWidget(field metabox.FieldSpec) string {
	if widget := optionString(field, "widget"); widget != "" {
		return widget
	}
	fieldType := strings.ToLower(optionString(field, "type"))
	if widget, ok := r.aliases[fieldType]; ok && widget != "" {
		return widget
	}
	if fieldType != "" && r.engine.Has(templateName(fieldType)) {
		return fieldType
	}
	return widgetInput
}

func fieldData(field metabox.FieldSpec) map[string]any {
	values := field.Values()
	if values == nil {
		values = []string{}
	}
	value := ""
	if len(values) > 0 {
		value = values[0]
	}

	inputType := strings.ToLower(optionString(field, "type"))
	switch inputType {
	case "", widgetTextarea, widgetSelect:
		inputType = "text"
	}

	data := map[string]any{
		"id":          field.ID,
		"name":        field.Name,
		"value":       value,
		"values":      values,
		"type":        inputType,
		"label":       optionString(field, "label"),
		"description": optionString(field, "description"),
		"placeholder": optionString(field, "placeholder"),
		"class":       optionString(field, "class"),
		"required":    optionBool(field, "required"),
		"multiple":    optionBool(field, "multiple"),
		"rows":        optionString(field, "rows"),
		"input_value": value,
		"checked":     false,
		"choices":     choices(field, values),
	}
	if data["rows"] == "" {
		data["rows"] = "4"
	}

	if inputType == "checkbox" || inputType == "radio" {
		checkedValue := optionString(field, "checked_value")
		if checkedValue == "" {
			checkedValue = "1"
		}
		data["input_value"] = checkedValue
		data["checked"] = contains(values, checkedValue)
	}

	// Extra options stay reachable as opts.<key> for custom widgets.
	data["opts"] = field.Options
	return data
}

func choices(field metabox.FieldSpec, selected []string) []map[string]any {
	raw, ok := field.Option("choices")
	if !ok || raw == nil {
		return nil
	}

	var out []map[string]any
	add := func(value, label string) {
		if label == "" {
			label = value
		}
		out = append(out, map[string]any{
			"value":    value,
			"label":    label,
			"selected": contains(selected, value),
		})
	}

	switch list := raw.(type) {
	case []string:
		for _, v := range list {
			add(v, v)
		}
	case []any:
		for _, item := range list {
			switch entry := item.(type) {
			case map[string]any:
				add(fmt.Sprint(entry["value"]), stringOf(entry["label"]))
			default:
				add(fmt.Sprint(entry), "")
			}
		}
	case map[string]string:
		for _, key := range sortedKeys(list) {
			add(key, list[key])
		}
	case map[string]any:
		keys := make([]string, 0, len(list))
		for key := range list {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			add(key, stringOf(list[key]))
		}
	}
	return out
}

func optionString(field metabox.FieldSpec, key string) string {
	v, ok := field.Option(key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringOf(v))
}

func optionBool(field metabox.FieldSpec, key string) bool {
	v, ok := field.Option(key)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == "1" || b == "yes"
	default:
		return false
	}
}

func stringOf(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func contains(values []string, needle string) bool {
	for _, v := range values {
		if v == needle {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
