package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

type execCall struct {
	sql  string
	args []any
}

// recordingDB captures Exec calls and answers QueryRow with a fixed error.
type recordingDB struct {
	execs   []execCall
	execErr error
	rowErr  error
}

func (db *recordingDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	db.execs = append(db.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, db.execErr
}

func (db *recordingDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not supported")
}

func (db *recordingDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{err: db.rowErr}
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func TestStore_AppendQueries(t *testing.T) {
	db := &recordingDB{}
	s := New(db)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, 4, "tags", "go", false))
	require.NoError(t, s.Append(ctx, 4, "flag", "on", true))
	require.Len(t, db.execs, 2)

	assert.NotContains(t, db.execs[0].sql, "NOT EXISTS")
	assert.Contains(t, db.execs[1].sql, "NOT EXISTS")
	assert.Equal(t, []any{int64(4), "flag", "on"}, db.execs[1].args)
}

func TestStore_WrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	s := New(&recordingDB{execErr: boom, rowErr: boom})
	ctx := context.Background()

	err := s.Delete(ctx, 1, "tags")
	assert.ErrorIs(t, err, boom)
	assert.True(t, strings.HasPrefix(err.Error(), "postgres: delete"))

	_, err = s.Entity(ctx, 1)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Migrate(ctx), boom)
}

func TestStore_MissingEntity(t *testing.T) {
	s := New(&recordingDB{rowErr: pgx.ErrNoRows})

	_, err := s.Entity(context.Background(), 9)
	assert.ErrorIs(t, err, metabox.ErrEntityNotFound)
	assert.Error(t, s.PutEntity(context.Background(), metabox.Entity{}))
}

func TestStore_Integration(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(ctx) })

	s := New(tx)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.PutEntity(ctx, metabox.Entity{ID: 77, Type: "post"}))

	for _, v := range []string{"b", "a", "b"} {
		require.NoError(t, s.Append(ctx, 77, "tags", v, false))
	}
	require.NoError(t, s.Append(ctx, 77, "tags", "ignored", true))

	values, err := s.Values(ctx, 77, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "b"}, values)

	entity, err := s.Entity(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, "post", entity.Type)

	require.NoError(t, s.Delete(ctx, 77, "tags"))
	values, err = s.Values(ctx, 77, "tags")
	require.NoError(t, err)
	assert.Empty(t, values)
}
