package metabox

import (
	"fmt"
	"sort"
	"strings"
)

// Context selects the region of the editing screen a metabox is placed in.
type Context string

// Supported contexts. ContextUnset leaves placement to the host default.
const (
	ContextUnset    Context = ""
	ContextNormal   Context = "normal"
	ContextSide     Context = "side"
	ContextAdvanced Context = "advanced"
)

// Priority orders metaboxes within a context.
type Priority string

// Supported priorities. PriorityUnset leaves ordering to the host default.
const (
	PriorityUnset Priority = ""
	PriorityHigh  Priority = "high"
	PriorityLow   Priority = "low"
)

// ParseContext returns the matching Context or ContextUnset when raw is not
// one of the supported values.
func ParseContext(raw string) Context {
	switch c := Context(raw); c {
	case ContextNormal, ContextSide, ContextAdvanced:
		return c
	default:
		return ContextUnset
	}
}

// ParsePriority returns the matching Priority or PriorityUnset when raw is not
// one of the supported values.
func ParsePriority(raw string) Priority {
	switch p := Priority(raw); p {
	case PriorityHigh, PriorityLow:
		return p
	default:
		return PriorityUnset
	}
}

// Definition is the author-supplied configuration for one metabox. It is
// normalized when a Metabox is constructed and never mutated afterwards.
type Definition struct {
	// ID identifies the metabox within its set. It is slugged and doubles as
	// the host registration id and the nonce name suffix.
	ID string
	// Title is reduced to plain text before display.
	Title string
	// Screen is an opaque selector (string, []string or a host descriptor)
	// handed to the host as is.
	Screen any
	// Context and Priority are coerced to their enums; anything else is unset.
	Context  string
	Priority string
	// Fields are rendered and saved in declaration order.
	Fields []FieldSpec
	// Notes is a trailing HTML fragment appended after the fields. It is
	// emitted verbatim unless the Metabox is built WithNotesSanitizer.
	Notes string
}

var definitionKeys = map[string]struct{}{
	"id": {}, "title": {}, "screen": {}, "context": {},
	"priority": {}, "fields": {}, "notes": {},
}

// DefinitionFromMap builds a Definition from a loosely typed configuration map,
// the shape produced by decoding YAML or JSON into map[string]any. Known keys
// are copied; missing keys keep their zero value. Unknown keys are ignored and
// returned, sorted, so callers can report them.
func DefinitionFromMap(raw map[string]any) (Definition, []string, error) {
	var def Definition
	var ignored []string

	for key := range raw {
		if _, ok := definitionKeys[key]; !ok {
			ignored = append(ignored, key)
		}
	}
	sort.Strings(ignored)

	def.ID = stringValue(raw["id"])
	def.Title = stringValue(raw["title"])
	def.Screen = raw["screen"]
	def.Context = stringValue(raw["context"])
	def.Priority = stringValue(raw["priority"])
	def.Notes = stringValue(raw["notes"])

	switch fields := raw["fields"].(type) {
	case nil:
	case []FieldSpec:
		def.Fields = append([]FieldSpec(nil), fields...)
	case []map[string]any:
		for idx, entry := range fields {
			field, err := FieldFromMap(entry)
			if err != nil {
				return Definition{}, ignored, fmt.Errorf("metabox: field %d: %w", idx, err)
			}
			def.Fields = append(def.Fields, field)
		}
	case []any:
		for idx, entry := range fields {
			m, ok := entry.(map[string]any)
			if !ok {
				return Definition{}, ignored, fmt.Errorf("metabox: field %d: expected mapping, got %T", idx, entry)
			}
			field, err := FieldFromMap(m)
			if err != nil {
				return Definition{}, ignored, fmt.Errorf("metabox: field %d: %w", idx, err)
			}
			def.Fields = append(def.Fields, field)
		}
	default:
		return Definition{}, ignored, fmt.Errorf("metabox: fields must be a list, got %T", fields)
	}

	return def, ignored, nil
}

func stringValue(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case fmt.Stringer:
		return value.String()
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}
