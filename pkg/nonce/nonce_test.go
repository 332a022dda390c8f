package nonce

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	m, err := New([]byte("secret"), WithLifetime(2*time.Hour), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m
}

func TestManager_VerifiesWithinLifetime(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)}
	m := newManager(t, clock)
	ctx := WithActor(context.Background(), "editor-1")

	token := m.Token(ctx, "metabox")
	if len(token) != tokenLength {
		t.Fatalf("unexpected token length %d", len(token))
	}
	if !m.Verify(ctx, token, "metabox") {
		t.Fatalf("fresh token should verify")
	}

	clock.now = clock.now.Add(time.Hour)
	if !m.Verify(ctx, token, "metabox") {
		t.Fatalf("token should survive into the next tick")
	}

	clock.now = clock.now.Add(2 * time.Hour)
	if m.Verify(ctx, token, "metabox") {
		t.Fatalf("token should expire after two ticks")
	}
}

func TestManager_RejectsForeignTokens(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 1, time.UTC)}
	m := newManager(t, clock)
	ctx := WithActor(context.Background(), "editor-1")
	token := m.Token(ctx, "metabox")

	if m.Verify(ctx, token, "other-action") {
		t.Fatalf("token must be scoped to its action")
	}
	if m.Verify(WithActor(context.Background(), "editor-2"), token, "metabox") {
		t.Fatalf("token must be scoped to its actor")
	}
	if m.Verify(ctx, "", "metabox") || m.Verify(ctx, "deadbeef", "metabox") {
		t.Fatalf("blank or forged tokens must fail")
	}

	other, _ := New([]byte("different"), WithClock(clock.Now), WithLifetime(2*time.Hour))
	if other.Verify(ctx, token, "metabox") {
		t.Fatalf("token must be bound to the secret")
	}
}

func TestManager_FieldMarkup(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 10, 0, 0, 1, time.UTC)}
	m := newManager(t, clock)
	ctx := WithReferer(context.Background(), `/entities/1/edit?x="y"`)

	markup, err := m.Field(ctx, "metabox", "_nonce-price", true)
	if err != nil {
		t.Fatalf("field: %v", err)
	}

	token := m.Token(ctx, "metabox")
	wantNonce := `<input type="hidden" id="_nonce-price" name="_nonce-price" value="` + token + `" />`
	wantReferer := `<input type="hidden" name="_http_referer" value="/entities/1/edit?x=&#34;y&#34;" />`
	if markup != wantNonce+wantReferer {
		t.Fatalf("markup mismatch\nwant: %q\n got: %q", wantNonce+wantReferer, markup)
	}

	plain, _ := m.Field(ctx, "metabox", "_nonce-price", false)
	if strings.Contains(plain, RefererField) {
		t.Fatalf("referer should be omitted, got %q", plain)
	}
	if _, err := m.Field(ctx, "metabox", " ", false); err == nil {
		t.Fatalf("expected error for blank name")
	}
}

func TestNew_RequiresSecret(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
