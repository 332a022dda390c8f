// Package sqlite stores metabox values and entities in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-metaboxes/pkg/metabox"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entities (
	id   INTEGER PRIMARY KEY,
	type TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS entity_meta (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_id  INTEGER NOT NULL,
	meta_key   TEXT NOT NULL,
	meta_value TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_entity_meta_lookup ON entity_meta(entity_id, meta_key);
`

// Store implements metabox.Store and metabox.EntityLookup on SQLite.
type Store struct {
	conn *sql.DB
}

var (
	_ metabox.Store        = (*Store)(nil)
	_ metabox.EntityLookup = (*Store)(nil)
)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Values returns the values stored under key in insertion order.
func (s *Store) Values(ctx context.Context, entityID int64, key string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT meta_value FROM entity_meta WHERE entity_id = ? AND meta_key = ? ORDER BY id`,
		entityID, key)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query %q: %w", key, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqlite: scan %q: %w", key, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Delete removes every value stored under key.
func (s *Store) Delete(ctx context.Context, entityID int64, key string) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM entity_meta WHERE entity_id = ? AND meta_key = ?`, entityID, key); err != nil {
		return fmt.Errorf("sqlite: delete %q: %w", key, err)
	}
	return nil
}

// Append adds value under key. With unique set the value is only added when
// the key holds no values yet.
func (s *Store) Append(ctx context.Context, entityID int64, key, value string, unique bool) error {
	query := `INSERT INTO entity_meta (entity_id, meta_key, meta_value) VALUES (?, ?, ?)`
	args := []any{entityID, key, value}
	if unique {
		query = `INSERT INTO entity_meta (entity_id, meta_key, meta_value)
			SELECT ?, ?, ? WHERE NOT EXISTS (
				SELECT 1 FROM entity_meta WHERE entity_id = ? AND meta_key = ?
			)`
		args = append(args, entityID, key)
	}
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("sqlite: append %q: %w", key, err)
	}
	return nil
}

// Keys lists the distinct meta keys stored for an entity, sorted.
func (s *Store) Keys(ctx context.Context, entityID int64) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT DISTINCT meta_key FROM entity_meta WHERE entity_id = ? ORDER BY meta_key`, entityID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("sqlite: scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// PutEntity creates or updates an entity record.
func (s *Store) PutEntity(ctx context.Context, entity metabox.Entity) error {
	if entity.ID < 1 {
		return fmt.Errorf("sqlite: invalid entity id %d", entity.ID)
	}
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO entities (id, type) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET type = excluded.type`,
		entity.ID, entity.Type); err != nil {
		return fmt.Errorf("sqlite: put entity %d: %w", entity.ID, err)
	}
	return nil
}

// Entity implements metabox.EntityLookup.
func (s *Store) Entity(ctx context.Context, id int64) (metabox.Entity, error) {
	entity := metabox.Entity{ID: id}
	err := s.conn.QueryRowContext(ctx, `SELECT type FROM entities WHERE id = ?`, id).Scan(&entity.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return metabox.Entity{}, metabox.ErrEntityNotFound
	}
	if err != nil {
		return metabox.Entity{}, fmt.Errorf("sqlite: load entity %d: %w", id, err)
	}
	return entity, nil
}
