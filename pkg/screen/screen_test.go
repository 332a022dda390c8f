package screen

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-metaboxes/pkg/fields"
	"github.com/goliatone/go-metaboxes/pkg/metabox"
	"github.com/goliatone/go-metaboxes/pkg/metaboxset"
	"github.com/goliatone/go-metaboxes/pkg/nonce"
	"github.com/goliatone/go-metaboxes/pkg/store/memory"
)

type testEnv struct {
	store   *memory.Store
	nonces  *nonce.Manager
	handler http.Handler
}

func definitions() metaboxset.Definitions {
	return metaboxset.Definitions{
		{ID: "Sidebar Notes", Title: "Sidebar", Context: "side", Fields: []metabox.FieldSpec{{ID: "memo"}}},
		{ID: "details", Title: "Details <em>box</em>", Priority: "low", Fields: []metabox.FieldSpec{{ID: "subtitle", Options: map[string]any{"label": "Subtitle"}}}},
		{ID: "headline", Title: "Headline", Priority: "high", Fields: []metabox.FieldSpec{{ID: "kicker"}}},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	require.NoError(t, store.PutEntity(ctx, metabox.Entity{ID: 1, Type: "post"}))
	require.NoError(t, store.PutEntity(ctx, metabox.Entity{ID: 2, Type: "attachment"}))
	require.NoError(t, store.Append(ctx, 1, "subtitle", "Stored <subtitle>", false))

	nonces, err := nonce.New([]byte("screen-test-secret"))
	require.NoError(t, err)
	renderer, err := fields.NewRenderer(nil)
	require.NoError(t, err)

	srv, err := New(definitions(), metabox.Host{
		Store:    store,
		Nonces:   nonces,
		Fields:   renderer,
		Entities: store,
	}, WithActorResolver(func(*http.Request) (string, metabox.Actor) {
		return "editor", metabox.Capabilities{"edit_post", "edit_attachment"}
	}))
	require.NoError(t, err)

	return &testEnv{store: store, nonces: nonces, handler: srv}
}

func (e *testEnv) token() string {
	return e.nonces.Token(nonce.WithActor(context.Background(), "editor"), metabox.NonceAction)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestEdit_RendersGroupedMetaboxes(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/entities/1/edit", nil)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, `<form method="post" action="/entities/1"`)
	assert.Contains(t, body, `id="_nonce-details" name="_nonce-details"`)
	assert.Contains(t, body, `name="_http_referer" value="/entities/1/edit"`)
	assert.Contains(t, body, `value="Stored &lt;subtitle&gt;"`)
	assert.Contains(t, body, `<label for="subtitle">Subtitle</label>`)
	assert.NotContains(t, body, "<em>")

	normal := strings.Index(body, `id="normal-sortables"`)
	side := strings.Index(body, `id="side-sortables"`)
	headline := strings.Index(body, `id="headline"`)
	details := strings.Index(body, `id="details"`)
	require.True(t, normal >= 0 && side >= 0, "both context groups should render")
	assert.Less(t, normal, side, "normal context renders before side")
	assert.Less(t, headline, details, "high priority renders first")
	assert.Contains(t, body, `id="sidebar-notes"`)
}

func TestEdit_Errors(t *testing.T) {
	env := newTestEnv(t)

	for path, want := range map[string]int{
		"/entities/abc/edit": http.StatusBadRequest,
		"/entities/0/edit":   http.StatusBadRequest,
		"/entities/99/edit":  http.StatusNotFound,
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, path)
	}
}

func TestSave_PersistsWithValidToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.post(t, "/entities/1", url.Values{
		"subtitle":        {"<b>New</b> subtitle"},
		"kicker":          {"Breaking"},
		"_nonce-details":  {env.token()},
		"_nonce-headline": {env.token()},
		"_http_referer":   {"/entities/1/edit?saved=1"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/entities/1/edit?saved=1", w.Header().Get("Location"))

	subtitle, _ := env.store.Values(ctx, 1, "subtitle")
	assert.Equal(t, []string{"New subtitle"}, subtitle)
	kicker, _ := env.store.Values(ctx, 1, "kicker")
	assert.Equal(t, []string{"Breaking"}, kicker)

	// The sidebar box had no token, so its field was left alone.
	memo, _ := env.store.Values(ctx, 1, "memo")
	assert.Empty(t, memo)
}

func TestSave_SkipsForgedAndAutosaveSubmissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.post(t, "/entities/1", url.Values{
		"subtitle":       {"forged"},
		"_nonce-details": {"not-a-token"},
		"_http_referer":  {"https://evil.example/"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/entities/1/edit", w.Header().Get("Location"))

	env.post(t, "/entities/1", url.Values{
		"subtitle":       {"autosaved"},
		"autosave":       {"1"},
		"_nonce-details": {env.token()},
	})

	subtitle, _ := env.store.Values(ctx, 1, "subtitle")
	assert.Equal(t, []string{"Stored <subtitle>"}, subtitle)
}

func TestSave_AttachmentsUseTheirOwnEvent(t *testing.T) {
	env := newTestEnv(t)

	w := env.post(t, "/entities/2", url.Values{
		"memo":                 {"caption"},
		"_nonce-sidebar-notes": {env.token()},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)

	memo, _ := env.store.Values(context.Background(), 2, "memo")
	assert.Equal(t, []string{"caption"}, memo)
}

func TestNew_RequiresEntityLookup(t *testing.T) {
	_, err := New(definitions(), metabox.Host{})
	assert.Error(t, err)
}

func TestSave_RedirectsOnlyToLocalPaths(t *testing.T) {
	env := newTestEnv(t)

	for _, referer := range []string{
		`/\evil.example`,
		`/\/evil.example`,
		`//evil.example/path`,
		`https://evil.example/`,
		`javascript:alert(1)`,
		`evil.example`,
		``,
	} {
		t.Run(referer, func(t *testing.T) {
			w := env.post(t, "/entities/1", url.Values{"_http_referer": {referer}})
			require.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, "/entities/1/edit", w.Header().Get("Location"))
		})
	}
}

func TestRedirectTarget_KeepsLocalReferers(t *testing.T) {
	cases := map[string]string{
		"/entities/1/edit?saved=1": "/entities/1/edit?saved=1",
		"/entities/1/edit#seo":     "/entities/1/edit#seo",
		`/a\b`:                     "/entities/7/edit",
		"/%2F%2Fevil.example":      "/entities/7/edit",
	}
	for referer, want := range cases {
		assert.Equal(t, want, redirectTarget(referer, 7), referer)
	}
}
