// Package postgres stores metabox values and entities in PostgreSQL through
// pgx. The Store accepts a pool, a single connection or a transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

// Schema creates the tables the Store expects.
const Schema = `
CREATE TABLE IF NOT EXISTS entities (
	id   BIGINT PRIMARY KEY,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entity_meta (
	id         BIGSERIAL PRIMARY KEY,
	entity_id  BIGINT NOT NULL,
	meta_key   TEXT NOT NULL,
	meta_value TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entity_meta_lookup ON entity_meta(entity_id, meta_key);
`

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store implements metabox.Store and metabox.EntityLookup on PostgreSQL.
type Store struct {
	db DBTX
}

var (
	_ metabox.Store        = (*Store)(nil)
	_ metabox.EntityLookup = (*Store)(nil)
)

// New wraps db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// Values returns the values stored under key in insertion order.
func (s *Store) Values(ctx context.Context, entityID int64, key string) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT meta_value FROM entity_meta WHERE entity_id = $1 AND meta_key = $2 ORDER BY id`,
		entityID, key)
	if err != nil {
		return nil, fmt.Errorf("postgres: query %q: %w", key, err)
	}
	values, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan %q: %w", key, err)
	}
	return values, nil
}

// Delete removes every value stored under key.
func (s *Store) Delete(ctx context.Context, entityID int64, key string) error {
	if _, err := s.db.Exec(ctx,
		`DELETE FROM entity_meta WHERE entity_id = $1 AND meta_key = $2`, entityID, key); err != nil {
		return fmt.Errorf("postgres: delete %q: %w", key, err)
	}
	return nil
}

// Append adds value under key. With unique set the value is only added when
// the key holds no values yet.
func (s *Store) Append(ctx context.Context, entityID int64, key, value string, unique bool) error {
	query := `INSERT INTO entity_meta (entity_id, meta_key, meta_value) VALUES ($1, $2, $3)`
	if unique {
		query = `INSERT INTO entity_meta (entity_id, meta_key, meta_value)
			SELECT $1::bigint, $2::text, $3::text WHERE NOT EXISTS (
				SELECT 1 FROM entity_meta WHERE entity_id = $1 AND meta_key = $2
			)`
	}
	if _, err := s.db.Exec(ctx, query, entityID, key, value); err != nil {
		return fmt.Errorf("postgres: append %q: %w", key, err)
	}
	return nil
}

// PutEntity creates or updates an entity record.
func (s *Store) PutEntity(ctx context.Context, entity metabox.Entity) error {
	if entity.ID < 1 {
		return fmt.Errorf("postgres: invalid entity id %d", entity.ID)
	}
	if _, err := s.db.Exec(ctx,
		`INSERT INTO entities (id, type) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET type = EXCLUDED.type`,
		entity.ID, entity.Type); err != nil {
		return fmt.Errorf("postgres: put entity %d: %w", entity.ID, err)
	}
	return nil
}

// Entity implements metabox.EntityLookup.
func (s *Store) Entity(ctx context.Context, id int64) (metabox.Entity, error) {
	entity := metabox.Entity{ID: id}
	err := s.db.QueryRow(ctx, `SELECT type FROM entities WHERE id = $1`, id).Scan(&entity.Type)
	if errors.Is(err, pgx.ErrNoRows) {
		return metabox.Entity{}, metabox.ErrEntityNotFound
	}
	if err != nil {
		return metabox.Entity{}, fmt.Errorf("postgres: load entity %d: %w", id, err)
	}
	return entity, nil
}
