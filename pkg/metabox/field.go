package metabox

import (
	"fmt"
	"maps"
)

// FieldSpec configures one form field inside a metabox.
type FieldSpec struct {
	// ID is the raw key. Its slug is the storage key.
	ID string
	// Name is the submission field name. Empty means the slugged ID.
	Name string
	// Value is populated from storage during Render: a string when exactly one
	// value is stored, otherwise a []string (possibly empty). Anything the
	// author sets here is overwritten.
	Value any
	// Sanitizer is applied to every submitted value before it is stored. The
	// zero value selects the host default text sanitizer.
	Sanitizer Sanitizer
	// Options carries widget specific settings (type, label, choices...) that
	// only the FieldRenderer interprets.
	Options map[string]any
}

// Values returns the hydrated value as a list, regardless of whether Render
// unwrapped it to a scalar.
func (f FieldSpec) Values() []string {
	switch v := f.Value.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Option returns a widget option by key.
func (f FieldSpec) Option(key string) (any, bool) {
	if f.Options == nil {
		return nil, false
	}
	v, ok := f.Options[key]
	return v, ok
}

func (f FieldSpec) clone() FieldSpec {
	out := f
	if f.Options != nil {
		out.Options = maps.Clone(f.Options)
	}
	return out
}

// FieldFromMap builds a FieldSpec from a loosely typed mapping. "id" and
// "name" are copied, "sanitize" names a sanitizer variant, "sanitize_callback"
// may carry a func(string) string, and every other key becomes a widget
// option. "value" is dropped because Render always hydrates it from storage.
func FieldFromMap(raw map[string]any) (FieldSpec, error) {
	field := FieldSpec{
		ID:   stringValue(raw["id"]),
		Name: stringValue(raw["name"]),
	}

	if name := stringValue(raw["sanitize"]); name != "" {
		sanitizer, ok := SanitizerNamed(name)
		if !ok {
			return FieldSpec{}, fmt.Errorf("unknown sanitizer %q", name)
		}
		field.Sanitizer = sanitizer
	}

	if cb, ok := raw["sanitize_callback"]; ok && cb != nil {
		fn, ok := cb.(func(string) string)
		if !ok {
			return FieldSpec{}, fmt.Errorf("sanitize_callback must be func(string) string, got %T", cb)
		}
		field.Sanitizer = SanitizeWith(fn)
	}

	for key, value := range raw {
		switch key {
		case "id", "name", "value", "sanitize", "sanitize_callback":
			continue
		}
		if field.Options == nil {
			field.Options = make(map[string]any)
		}
		field.Options[key] = value
	}

	return field, nil
}
