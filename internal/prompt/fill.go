package prompt

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

// Lookup returns the stored values for a field key.
type Lookup func(ctx context.Context, key string) ([]string, error)

// Fill asks for every field of box and returns the form a browser would have
// submitted for it, including token under the box's nonce name. Stored values
// are offered as defaults.
func Fill(ctx context.Context, d Driver, box *metabox.Metabox, lookup Lookup, token string) (url.Values, error) {
	form := url.Values{}
	if box == nil {
		return form, nil
	}
	if title := box.Title(); title != "" {
		if err := d.Info(ctx, title); err != nil {
			return nil, err
		}
	}

	for _, field := range box.Fields() {
		key := box.FieldKey(field)
		if key == "" {
			continue
		}
		name := field.Name
		if name == "" {
			name = key
		}

		var current []string
		if lookup != nil {
			stored, err := lookup(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("prompt: load %q: %w", key, err)
			}
			current = stored
		}

		values, err := ask(ctx, d, field, key, current)
		if err != nil {
			return nil, fmt.Errorf("prompt: field %q: %w", key, err)
		}
		form[name] = values
	}

	form.Set(box.NonceName(), token)
	return form, nil
}

func ask(ctx context.Context, d Driver, field metabox.FieldSpec, key string, current []string) ([]string, error) {
	message := optionString(field, "label")
	if message == "" {
		message = key
	}
	help := optionString(field, "description")
	first := ""
	if len(current) > 0 {
		first = current[0]
	}

	switch strings.ToLower(optionString(field, "type")) {
	case "textarea":
		out, err := d.TextArea(ctx, TextAreaConfig{Message: message, Default: first, Help: help})
		return []string{out}, err

	case "checkbox":
		checked := optionString(field, "checked_value")
		if checked == "" {
			checked = "1"
		}
		ok, err := d.Confirm(ctx, ConfirmConfig{Message: message, Default: first == checked, Help: help})
		if err != nil || !ok {
			return []string{""}, err
		}
		return []string{checked}, nil

	case "select":
		options := choiceValues(field)
		if len(options) == 0 {
			break
		}
		if multiple, _ := field.Option("multiple"); multiple == true {
			var defaults []int
			for _, v := range current {
				if idx := slices.Index(options, v); idx >= 0 {
					defaults = append(defaults, idx)
				}
			}
			picked, err := d.MultiSelect(ctx, SelectConfig{Message: message, Options: options, Defaults: defaults, Help: help})
			if err != nil {
				return nil, err
			}
			if len(picked) == 0 {
				return []string{""}, nil
			}
			out := make([]string, 0, len(picked))
			for _, idx := range picked {
				out = append(out, options[idx])
			}
			return out, nil
		}
		idx, err := d.Select(ctx, SelectConfig{Message: message, Options: options, DefaultIndex: slices.Index(options, first), Help: help})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(options) {
			return []string{""}, nil
		}
		return []string{options[idx]}, nil
	}

	out, err := d.Input(ctx, InputConfig{Message: message, Default: first, Help: help})
	return []string{out}, err
}

func choiceValues(field metabox.FieldSpec) []string {
	raw, _ := field.Option("choices")
	switch list := raw.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if entry, ok := item.(map[string]any); ok {
				out = append(out, fmt.Sprint(entry["value"]))
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case map[string]any:
		out := make([]string, 0, len(list))
		for key := range list {
			out = append(out, key)
		}
		sort.Strings(out)
		return out
	}
	return nil
}

func optionString(field metabox.FieldSpec, key string) string {
	v, ok := field.Option(key)
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
