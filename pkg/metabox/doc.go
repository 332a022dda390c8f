// Package metabox implements a single configurable form block attached to a
// content-editing screen. A Metabox is built from a Definition, registers
// itself with the host (Add), renders its fields hydrated from the per-entity
// store (Render) and persists submitted values after an authorization and
// anti-forgery gate (Save).
//
// The host environment is reached only through the ports declared in host.go.
// Misconfiguration and failed gate checks degrade to silent no-ops; only
// collaborator faults (store, entity lookup, field rendering) surface as errors.
//
// Metabox instances are cheap and meant to be constructed per operation from
// the same static Definition; they hold no state between calls.
package metabox
