package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema creates the backing table for PostgresStore.
const Schema = `CREATE TABLE IF NOT EXISTS record_collections (
	name       TEXT PRIMARY KEY,
	payload    JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	selectCollection = `SELECT payload FROM record_collections WHERE name = $1`
	lockCollection   = `SELECT payload FROM record_collections WHERE name = $1 FOR UPDATE`
	seedCollection   = `INSERT INTO record_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`
	upsertCollection = `INSERT INTO record_collections (name, payload, updated_at) VALUES ($1, $2, NOW()) ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()`
)

// PostgresStore keeps each collection as one JSONB row.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure record_collections: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context, collection string) (Records, error) {
	if err := Validate(collection); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.db.GetContext(ctx, &payload, selectCollection, collection)
	if errors.Is(err, sql.ErrNoRows) {
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", collection, err)
	}
	return decode(payload)
}

func (s *PostgresStore) SetAll(ctx context.Context, collection string, records Records) error {
	if err := Validate(collection); err != nil {
		return err
	}
	payload, err := encode(records)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, upsertCollection, collection, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", collection, err)
	}
	return nil
}

// Update locks the collection row for the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, collection string, fn UpdateFunc) (err error) {
	if err := Validate(collection); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, seedCollection, collection); err != nil {
		return fmt.Errorf("seed %s: %w", collection, err)
	}
	var payload []byte
	if err = tx.GetContext(ctx, &payload, lockCollection, collection); err != nil {
		return fmt.Errorf("lock %s: %w", collection, err)
	}
	current, err := decode(payload)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	encoded, err := encode(next)
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, upsertCollection, collection, encoded); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", collection, err)
	}
	return nil
}
