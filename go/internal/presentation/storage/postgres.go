package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"
)

// ErrNotJSON is returned by Postgres.Set for values that are not JSON
// documents. Every value the state store writes is JSON, including the
// stringified index.
var ErrNotJSON = errors.New("value is not a JSON document")

// Postgres stores keys in a jsonb table so operator and presenter hosts on
// different machines can share state.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection and ensures the table exists.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	p := &Postgres{db: db}
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS presentation_kv (
		key        TEXT PRIMARY KEY,
		value      JSONB,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create presentation_kv: %w", err)
	}
	return p, nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, bool, error) {
	var value pqtype.NullRawMessage
	err := p.db.QueryRowContext(ctx, `SELECT value FROM presentation_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if !value.Valid {
		return "", false, nil
	}
	return string(value.RawMessage), true, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	if !json.Valid([]byte(value)) {
		return fmt.Errorf("set %s: %w", key, ErrNotJSON)
	}
	doc := pqtype.NullRawMessage{RawMessage: json.RawMessage(value), Valid: true}
	_, err := p.db.ExecContext(ctx, `
	INSERT INTO presentation_kv (key, value, updated_at) VALUES ($1, $2, now())
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`, key, doc)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM presentation_kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
