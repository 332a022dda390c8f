package metabox_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

type storeCall struct {
	Op       string
	EntityID int64
	Key      string
	Value    string
}

// recordingStore is an ordered multi-map that logs every call.
type recordingStore struct {
	mu       sync.Mutex
	values   map[string][]string
	calls    []storeCall
	failWith error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{values: make(map[string][]string)}
}

func storeKey(entityID int64, key string) string {
	return fmt.Sprintf("%d/%s", entityID, key)
}

func (s *recordingStore) Values(_ context.Context, entityID int64, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "values", EntityID: entityID, Key: key})
	if s.failWith != nil {
		return nil, s.failWith
	}
	return append([]string(nil), s.values[storeKey(entityID, key)]...), nil
}

func (s *recordingStore) Delete(_ context.Context, entityID int64, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "delete", EntityID: entityID, Key: key})
	if s.failWith != nil {
		return s.failWith
	}
	delete(s.values, storeKey(entityID, key))
	return nil
}

func (s *recordingStore) Append(_ context.Context, entityID int64, key, value string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{Op: "append", EntityID: entityID, Key: key, Value: value})
	if s.failWith != nil {
		return s.failWith
	}
	k := storeKey(entityID, key)
	s.values[k] = append(s.values[k], value)
	return nil
}

func (s *recordingStore) seed(entityID int64, key string, values ...string) {
	s.values[storeKey(entityID, key)] = append([]string(nil), values...)
}

func (s *recordingStore) stored(entityID int64, key string) []string {
	return s.values[storeKey(entityID, key)]
}

func (s *recordingStore) mutations() []storeCall {
	var out []storeCall
	for _, call := range s.calls {
		if call.Op != "values" {
			out = append(out, call)
		}
	}
	return out
}

// staticNonces accepts exactly one token per action.
type staticNonces struct{}

func (staticNonces) Field(_ context.Context, action, name string, withReferer bool) (string, error) {
	markup := fmt.Sprintf(`<input type="hidden" name="%s" value="token-%s" />`, name, action)
	if withReferer {
		markup += `<input type="hidden" name="_http_referer" value="/edit" />`
	}
	return markup, nil
}

func (staticNonces) Verify(_ context.Context, token, action string) bool {
	return token == "token-"+action
}

type entities map[int64]metabox.Entity

func (e entities) Entity(_ context.Context, id int64) (metabox.Entity, error) {
	entity, ok := e[id]
	if !ok {
		return metabox.Entity{}, metabox.ErrEntityNotFound
	}
	return entity, nil
}

// capturingFields renders "[name=value]" and keeps every field it saw.
type capturingFields struct {
	seen []metabox.FieldSpec
}

func (c *capturingFields) RenderField(_ context.Context, field metabox.FieldSpec) (string, error) {
	c.seen = append(c.seen, field)
	return fmt.Sprintf("[%s=%s]", field.Name, strings.Join(field.Values(), ",")), nil
}

type recordingRegistrar struct {
	registrations []metabox.Registration
}

func (r *recordingRegistrar) AddMetabox(_ context.Context, reg metabox.Registration) error {
	r.registrations = append(r.registrations, reg)
	return nil
}

type harness struct {
	store     *recordingStore
	fields    *capturingFields
	registrar *recordingRegistrar
	host      metabox.Host
}

func newHarness() *harness {
	h := &harness{
		store:     newRecordingStore(),
		fields:    &capturingFields{},
		registrar: &recordingRegistrar{},
	}
	h.host = metabox.Host{
		Registrar:    h.registrar,
		Store:        h.store,
		Nonces:       staticNonces{},
		Fields:       h.fields,
		Entities:     entities{42: {ID: 42, Type: "post"}, 7: {ID: 7, Type: "attachment"}},
		Capabilities: metabox.CapabilityMap{"post": "edit_post"},
	}
	return h
}

var editor = metabox.Capabilities{"edit_post", "edit_attachment"}

func submission(boxID string, fields map[string][]string) metabox.Submission {
	form := url.Values{}
	for name, values := range fields {
		form[name] = values
	}
	form.Set(metabox.NoncePrefix+boxID, "token-"+metabox.NonceAction)
	return metabox.Submission{Form: form}
}

var errStoreDown = errors.New("store down")
