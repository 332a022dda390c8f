// Package metaboxes is the top-level entry point for declaring metaboxes and
// composing them into sets. The pkg/ tree holds the full API.
package metaboxes

import (
	"github.com/goliatone/go-metaboxes/pkg/fields"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
	"github.com/goliatone/go-metaboxes/pkg/metaboxset"
	"github.com/goliatone/go-metaboxes/pkg/nonce"
	"github.com/goliatone/go-metaboxes/pkg/store/memory"
)

// Definition aliases metabox.Definition so callers can declare metaboxes from
// the top-level module.
type Definition = metabox.Definition

// FieldSpec aliases metabox.FieldSpec.
type FieldSpec = metabox.FieldSpec

// Host aliases metabox.Host, the collaborator bundle every metabox talks to.
type Host = metabox.Host

// Entity aliases metabox.Entity.
type Entity = metabox.Entity

// Set aliases metaboxset.Set.
type Set = metaboxset.Set

// New exposes the Metabox constructor.
func New(def Definition, host Host, options ...metabox.Option) *metabox.Metabox {
	return metabox.New(def, host, options...)
}

// NewSet exposes the MetaboxSet constructor.
func NewSet(provider metaboxset.Provider, host Host, options ...metaboxset.Option) *Set {
	return metaboxset.New(provider, host, options...)
}

// NewMemoryHost wires an in-memory store, an HMAC nonce manager signing with
// secret and the embedded template field renderer. The store is returned so
// callers can seed entities. The Registrar is left for the caller.
func NewMemoryHost(secret []byte) (Host, *memory.Store, error) {
	nonces, err := nonce.New(secret)
	if err != nil {
		return Host{}, nil, err
	}
	renderer, err := fields.NewRenderer(nil)
	if err != nil {
		return Host{}, nil, err
	}
	store := memory.New()
	return Host{
		Store:        store,
		Nonces:       nonces,
		Fields:       renderer,
		Entities:     store,
		Capabilities: metabox.CapabilityMap(nil),
	}, store, nil
}
