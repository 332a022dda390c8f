package metaboxset_test

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-metaboxes/pkg/hooks"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
	"github.com/goliatone/go-metaboxes/pkg/metaboxset"
	"github.com/goliatone/go-metaboxes/pkg/store/memory"
)

// loggingStore records mutations in call order on top of the memory store.
type loggingStore struct {
	*memory.Store
	log []string
}

func (s *loggingStore) Delete(ctx context.Context, entityID int64, key string) error {
	s.log = append(s.log, fmt.Sprintf("delete %d %s", entityID, key))
	return s.Store.Delete(ctx, entityID, key)
}

func (s *loggingStore) Append(ctx context.Context, entityID int64, key, value string, unique bool) error {
	s.log = append(s.log, fmt.Sprintf("append %d %s=%s", entityID, key, value))
	return s.Store.Append(ctx, entityID, key, value, unique)
}

type acceptAllNonces struct{}

func (acceptAllNonces) Field(_ context.Context, _, name string, _ bool) (string, error) {
	return `<input type="hidden" name="` + name + `" value="ok" />`, nil
}

func (acceptAllNonces) Verify(_ context.Context, token, _ string) bool { return token == "ok" }

type countingProvider struct {
	calls       int
	definitions []metabox.Definition
	err         error
}

func (p *countingProvider) Metaboxes(context.Context, metabox.Entity) ([]metabox.Definition, error) {
	p.calls++
	return p.definitions, p.err
}

type fixture struct {
	store      *loggingStore
	registered []string
	host       metabox.Host
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: &loggingStore{Store: memory.New()}}
	ctx := context.Background()
	for _, e := range []metabox.Entity{{ID: 10, Type: "post"}, {ID: 11, Type: "attachment"}} {
		if err := f.store.PutEntity(ctx, e); err != nil {
			t.Fatalf("put entity: %v", err)
		}
	}
	f.host = metabox.Host{
		Registrar: metabox.RegistrarFunc(func(_ context.Context, reg metabox.Registration) error {
			f.registered = append(f.registered, reg.ID)
			return nil
		}),
		Store:    f.store,
		Nonces:   acceptAllNonces{},
		Fields:   metabox.FieldRendererFunc(func(context.Context, metabox.FieldSpec) (string, error) { return "", nil }),
		Entities: f.store,
	}
	return f
}

var editor = metabox.Capabilities{"edit_post", "edit_attachment"}

func twoBoxes() []metabox.Definition {
	return []metabox.Definition{
		{ID: "first", Fields: []metabox.FieldSpec{{ID: "a"}}},
		{ID: "second", Fields: []metabox.FieldSpec{{ID: "b"}}},
	}
}

func validRequest() metabox.Submission {
	return metabox.Submission{Form: url.Values{
		"a":             {"1"},
		"b":             {"2"},
		"_nonce-first":  {"ok"},
		"_nonce-second": {"ok"},
	}}
}

func TestSet_SetupWiresLifecycleEvents(t *testing.T) {
	f := newFixture(t)
	set := metaboxset.New(metaboxset.Definitions(twoBoxes()), f.host)
	d := hooks.NewDispatcher()
	set.Setup(d)

	for _, event := range []hooks.Event{hooks.EventBuildMetaboxes, hooks.EventEntitySaved, hooks.EventAttachmentSaved} {
		if !d.Has(event) {
			t.Fatalf("expected handler for %s", event)
		}
	}

	ctx := context.Background()
	if err := d.Dispatch(ctx, hooks.EventBuildMetaboxes, hooks.Payload{EntityType: "post", Entity: metabox.Entity{ID: 10, Type: "post"}}); err != nil {
		t.Fatalf("dispatch build: %v", err)
	}
	if diff := cmp.Diff([]string{"first", "second"}, f.registered); diff != "" {
		t.Fatalf("registration order mismatch (-want +got):\n%s", diff)
	}

	if err := d.Dispatch(ctx, hooks.EventAttachmentSaved, hooks.Payload{EntityID: 11, Request: validRequest(), Actor: editor}); err != nil {
		t.Fatalf("dispatch attachment save: %v", err)
	}
	got, _ := f.store.Values(ctx, 11, "b")
	if diff := cmp.Diff([]string{"2"}, got); diff != "" {
		t.Fatalf("attachment save mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_SavesInDeclarationOrder(t *testing.T) {
	f := newFixture(t)
	set := metaboxset.New(metaboxset.Definitions(twoBoxes()), f.host)

	if err := set.Save(context.Background(), 10, validRequest(), editor); err != nil {
		t.Fatalf("save: %v", err)
	}

	want := []string{"delete 10 a", "append 10 a=1", "delete 10 b", "append 10 b=2"}
	if diff := cmp.Diff(want, f.store.log); diff != "" {
		t.Fatalf("storage call order mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_ResolvesOncePerInstance(t *testing.T) {
	f := newFixture(t)
	provider := &countingProvider{definitions: twoBoxes()}
	set := metaboxset.New(provider, f.host)
	ctx := context.Background()

	if set.Resolved() {
		t.Fatalf("set should start unresolved")
	}
	if err := set.Add(ctx, "post", metabox.Entity{ID: 10, Type: "post"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := set.Save(ctx, 10, validRequest(), editor); err != nil {
		t.Fatalf("save: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected one resolution, got %d", provider.calls)
	}

	fresh := metaboxset.New(provider, f.host)
	if _, err := fresh.Definitions(ctx, metabox.Entity{ID: 10}); err != nil {
		t.Fatalf("definitions: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("a new set must resolve again, got %d calls", provider.calls)
	}
}

func TestSet_EmptyResolutionIsCached(t *testing.T) {
	f := newFixture(t)
	provider := &countingProvider{}
	set := metaboxset.New(provider, f.host)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := set.Add(ctx, "post", metabox.Entity{ID: 10}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if provider.calls != 1 || !set.Resolved() {
		t.Fatalf("expected empty result to be memoized, got %d calls", provider.calls)
	}
	if len(f.registered) != 0 {
		t.Fatalf("expected no registrations, got %v", f.registered)
	}
}

func TestSet_WithoutCacheResolvesEveryCall(t *testing.T) {
	f := newFixture(t)
	provider := &countingProvider{definitions: twoBoxes()}
	set := metaboxset.New(provider, f.host, metaboxset.WithoutCache())
	ctx := context.Background()

	_ = set.Add(ctx, "post", metabox.Entity{ID: 10, Type: "post"})
	_ = set.Save(ctx, 10, validRequest(), editor)
	if provider.calls != 2 {
		t.Fatalf("expected two resolutions, got %d", provider.calls)
	}
}

func TestSet_UnknownEntityIsNoop(t *testing.T) {
	f := newFixture(t)
	provider := &countingProvider{definitions: twoBoxes()}
	set := metaboxset.New(provider, f.host)

	for _, id := range []int64{0, 404} {
		if err := set.Save(context.Background(), id, validRequest(), editor); err != nil {
			t.Fatalf("save %d: %v", id, err)
		}
	}
	if provider.calls != 0 || len(f.store.log) != 0 {
		t.Fatalf("expected no work, got %d provider calls and %v", provider.calls, f.store.log)
	}
}

func TestSet_DropsDuplicateIDs(t *testing.T) {
	f := newFixture(t)
	defs := []metabox.Definition{
		{ID: "price", Fields: []metabox.FieldSpec{{ID: "a"}}},
		{ID: "Price", Fields: []metabox.FieldSpec{{ID: "b"}}},
		{ID: "other", Fields: []metabox.FieldSpec{{ID: "b"}}},
	}
	set := metaboxset.New(metaboxset.Definitions(defs), f.host)

	resolved, err := set.Definitions(context.Background(), metabox.Entity{ID: 10})
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	var ids []string
	for _, def := range resolved {
		ids = append(ids, def.ID)
	}
	if diff := cmp.Diff([]string{"price", "other"}, ids); diff != "" {
		t.Fatalf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_DedupeFollowsMetaboxSlugger(t *testing.T) {
	f := newFixture(t)
	defs := []metabox.Definition{
		{ID: "Price", Fields: []metabox.FieldSpec{{ID: "a"}}},
		{ID: "price", Fields: []metabox.FieldSpec{{ID: "b"}}},
		{ID: "Price", Fields: []metabox.FieldSpec{{ID: "c"}}},
	}
	set := metaboxset.New(metaboxset.Definitions(defs), f.host,
		metaboxset.WithMetaboxOptions(metabox.WithSlugger(strings.TrimSpace)))

	resolved, err := set.Definitions(context.Background(), metabox.Entity{ID: 10})
	if err != nil {
		t.Fatalf("definitions: %v", err)
	}
	var fields []string
	for _, def := range resolved {
		fields = append(fields, def.Fields[0].ID)
	}
	if diff := cmp.Diff([]string{"a", "b"}, fields); diff != "" {
		t.Fatalf("dedupe mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_ProviderErrorPropagates(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("definitions unavailable")
	set := metaboxset.New(&countingProvider{err: boom}, f.host)

	if err := set.Add(context.Background(), "post", metabox.Entity{ID: 10}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if set.Resolved() {
		t.Fatalf("failed resolution must not be cached")
	}
}
