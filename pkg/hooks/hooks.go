// Package hooks names the host lifecycle events metaboxes react to and
// provides an in-process Dispatcher. Hosts with their own event system only
// need to satisfy Registrar.
package hooks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

// Event names a host lifecycle event.
type Event string

// Lifecycle events.
const (
	// EventBuildMetaboxes fires while an edit screen is assembled. Payload
	// carries EntityType and Entity.
	EventBuildMetaboxes Event = "add_meta_boxes"
	// EventEntitySaved fires after an entity is saved. Payload carries
	// EntityID, Request and Actor.
	EventEntitySaved Event = "save_post"
	// EventAttachmentSaved fires when an attachment-style entity is edited.
	// Hosts fire it instead of EventEntitySaved for those entities.
	EventAttachmentSaved Event = "edit_attachment"
)

// Payload is the argument bag handed to every handler. Fields irrelevant to an
// event are left zero.
type Payload struct {
	EntityType string
	Entity     metabox.Entity
	EntityID   int64
	Request    metabox.Request
	Actor      metabox.Actor
}

// Handler reacts to an event.
type Handler func(ctx context.Context, payload Payload) error

// Registrar is the lifecycle registration port.
type Registrar interface {
	Register(event Event, handler Handler)
}

// Dispatcher is a synchronous Registrar that invokes handlers in registration
// order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Event][]Handler
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Event][]Handler),
	}
}

// Register appends handler to the event's handler list. Nil handlers and blank
// event names are ignored.
func (d *Dispatcher) Register(event Event, handler Handler) {
	if d == nil || handler == nil || strings.TrimSpace(string(event)) == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[event] = append(d.handlers[event], handler)
}

// Dispatch runs every handler registered for event and stops at the first
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, payload Payload) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[event]...)
	d.mu.RUnlock()

	for idx, handler := range handlers {
		if err := handler(ctx, payload); err != nil {
			return fmt.Errorf("hooks: %s handler %d: %w", event, idx, err)
		}
	}
	return nil
}

// Has reports whether any handler is registered for event.
func (d *Dispatcher) Has(event Event) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[event]) > 0
}

// SaveEvent picks the save event a host fires for an entity type.
func SaveEvent(entityType string) Event {
	if entityType == "attachment" {
		return EventAttachmentSaved
	}
	return EventEntitySaved
}
