package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"auditflow/internal/ports"
)

// KV is a ports.KeyValueStore over the client_state table, shared by every session of a
// deployment.
type KV struct{ db *DB }

var _ ports.KeyValueStore = KV{}

func (db *DB) KV() KV { return KV{db: db} }

func (s KV) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.Pool.QueryRow(ctx, `SELECT value FROM client_state WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s KV) Set(ctx context.Context, key, value string) error {
	_, err := s.db.Pool.Exec(ctx, `
        INSERT INTO client_state (key, value) VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
    `, key, value)
	return err
}

func (s KV) Delete(ctx context.Context, key string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM client_state WHERE key = $1`, key)
	return err
}
