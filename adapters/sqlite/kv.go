package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/codewandler/esgo/ports/kv"
)

func (s *Store) Put(ctx context.Context, key string, entry kv.Entry, opts kv.PutOptions) error {
	var meta sql.NullString
	if entry.Meta != nil {
		data, err := json.Marshal(entry.Meta)
		if err != nil {
			return err
		}
		meta = sql.NullString{String: string(data), Valid: true}
	}
	var expiresAt sql.NullInt64
	if opts.TTL > 0 {
		expiresAt = sql.NullInt64{Int64: s.now().Add(opts.TTL).UnixMilli(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, data, meta, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT (key) DO UPDATE SET data = excluded.data, meta = excluded.meta, expires_at = excluded.expires_at`,
		key, entry.Data, meta, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (kv.Entry, error) {
	var (
		entry     kv.Entry
		meta      sql.NullString
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, meta, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&entry.Data, &meta, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kv.Entry{}, kv.ErrNotFound
		}
		return kv.Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	if expiresAt.Valid && s.now().UnixMilli() >= expiresAt.Int64 {
		_ = s.Delete(ctx, key)
		return kv.Entry{}, kv.ErrNotFound
	}
	if meta.Valid {
		if err := json.Unmarshal([]byte(meta.String), &entry.Meta); err != nil {
			return kv.Entry{}, fmt.Errorf("decode meta of %s: %w", key, err)
		}
	}
	return entry, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

var _ kv.Store = (*Store)(nil)
