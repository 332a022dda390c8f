// Package memory provides an in-memory metabox store and entity lookup,
// suitable for tests, previews and single-process tools.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

type metaKey struct {
	entityID int64
	key      string
}

// Store is a concurrency-safe ordered multi-map keyed by entity and meta key.
// It also implements metabox.EntityLookup for entities added with PutEntity.
type Store struct {
	mu       sync.RWMutex
	values   map[metaKey][]string
	entities map[int64]metabox.Entity
}

var (
	_ metabox.Store        = (*Store)(nil)
	_ metabox.EntityLookup = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		values:   make(map[metaKey][]string),
		entities: make(map[int64]metabox.Entity),
	}
}

// Values returns a copy of the stored values in insertion order.
func (s *Store) Values(_ context.Context, entityID int64, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.values[metaKey{entityID, key}]), nil
}

// Delete removes every value stored under key.
func (s *Store) Delete(_ context.Context, entityID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, metaKey{entityID, key})
	return nil
}

// Append adds value under key. With unique set the value is only added when
// the key holds no values yet.
func (s *Store) Append(_ context.Context, entityID int64, key, value string, unique bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := metaKey{entityID, key}
	if unique && len(s.values[k]) > 0 {
		return nil
	}
	s.values[k] = append(s.values[k], value)
	return nil
}

// Keys lists the meta keys holding values for an entity, sorted.
func (s *Store) Keys(_ context.Context, entityID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if k.entityID == entityID {
			keys = append(keys, k.key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// PutEntity adds or replaces an entity.
func (s *Store) PutEntity(_ context.Context, entity metabox.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities[entity.ID] = entity
	return nil
}

// Entity implements metabox.EntityLookup.
func (s *Store) Entity(_ context.Context, id int64) (metabox.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entity, ok := s.entities[id]
	if !ok {
		return metabox.Entity{}, metabox.ErrEntityNotFound
	}
	return entity, nil
}
