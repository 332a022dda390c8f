// Package nonce issues action-scoped anti-forgery tokens. Tokens are HMACs of
// the action, the acting user and a time tick; a token stays valid for the tick
// it was issued in and the one after it, so its lifetime is between half and
// all of the configured Lifetime.
package nonce

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

// RefererField is the hidden input carrying the rendering page's URI.
const RefererField = "_http_referer"

// DefaultLifetime matches a working day of editing.
const DefaultLifetime = 24 * time.Hour

const tokenLength = 20

type contextKey int

const (
	actorKey contextKey = iota
	refererKey
)

// WithActor scopes tokens issued or verified under ctx to an actor identity.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFrom returns the actor identity stored by WithActor.
func ActorFrom(ctx context.Context) string {
	id, _ := ctx.Value(actorKey).(string)
	return id
}

// WithReferer records the URI of the page being rendered so Field can emit it.
func WithReferer(ctx context.Context, uri string) context.Context {
	return context.WithValue(ctx, refererKey, uri)
}

// RefererFrom returns the URI stored by WithReferer.
func RefererFrom(ctx context.Context) string {
	uri, _ := ctx.Value(refererKey).(string)
	return uri
}

// Option configures a Manager.
type Option func(*Manager)

// WithLifetime sets how long a token stays valid at most.
func WithLifetime(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.lifetime = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager implements metabox.Nonces.
type Manager struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

var _ metabox.Nonces = (*Manager)(nil)

// New creates a Manager signing with secret.
func New(secret []byte, options ...Option) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("nonce: secret is required")
	}
	m := &Manager{
		secret:   append([]byte(nil), secret...),
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Token issues a token for action and the actor in ctx.
func (m *Manager) Token(ctx context.Context, action string) string {
	return m.sign(m.tick(), action, ActorFrom(ctx))
}

// Verify reports whether token was issued for action and the actor in ctx
// during the current or the previous tick.
func (m *Manager) Verify(ctx context.Context, token, action string) bool {
	token = strings.TrimSpace(token)
	if token == "" {
		return false
	}
	actor := ActorFrom(ctx)
	tick := m.tick()
	for _, candidate := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(token), []byte(m.sign(candidate, action, actor))) {
			return true
		}
	}
	return false
}

// Field returns hidden input markup carrying a fresh token under name. With
// withReferer set and a referer recorded in ctx, a second hidden input carries
// the referer.
func (m *Manager) Field(ctx context.Context, action, name string, withReferer bool) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("nonce: field name is required")
	}

	var b strings.Builder
	writeHidden(&b, name, m.Token(ctx, action), true)
	if withReferer {
		if uri := RefererFrom(ctx); uri != "" {
			writeHidden(&b, RefererField, uri, false)
		}
	}
	return b.String(), nil
}

func (m *Manager) tick() int64 {
	half := int64(m.lifetime / 2)
	if half <= 0 {
		half = int64(time.Second)
	}
	now := m.now().UnixNano()
	return (now + half - 1) / half
}

func (m *Manager) sign(tick int64, action, actor string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	mac.Write([]byte{0})
	mac.Write([]byte(action))
	mac.Write([]byte{0})
	mac.Write([]byte(actor))
	return hex.EncodeToString(mac.Sum(nil))[:tokenLength]
}

func writeHidden(b *strings.Builder, name, value string, withID bool) {
	b.WriteString(`<input type="hidden"`)
	if withID {
		b.WriteString(` id="`)
		b.WriteString(html.EscapeString(name))
		b.WriteByte('"')
	}
	b.WriteString(` name="`)
	b.WriteString(html.EscapeString(name))
	b.WriteString(`" value="`)
	b.WriteString(html.EscapeString(value))
	b.WriteString(`" />`)
}
