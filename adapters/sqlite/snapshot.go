package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codewandler/esgo/core/es"
)

func (s *Store) SaveSnapshot(ctx context.Context, snap *es.Snapshot) error {
	state, err := json.Marshal(snap.State)
	if err != nil {
		return err
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO snapshots (aggregate_type, aggregate_id, id, version, state, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (aggregate_type, aggregate_id) DO UPDATE SET
    id = excluded.id,
    version = excluded.version,
    state = excluded.state,
    created_at = excluded.created_at`,
		snap.AggregateType, snap.AggregateID, snap.ID, int64(snap.Version),
		string(state), createdAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *Store) LoadSnapshot(ctx context.Context, aggType, aggID string) (*es.Snapshot, error) {
	var (
		snap             = &es.Snapshot{AggregateType: aggType, AggregateID: aggID}
		version          int64
		state, createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, version, state, created_at FROM snapshots WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&snap.ID, &version, &state, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, es.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	snap.Version = es.Version(version)
	if err := json.Unmarshal([]byte(state), &snap.State); err != nil {
		return nil, fmt.Errorf("decode snapshot state: %w", err)
	}
	if snap.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse snapshot created_at: %w", err)
	}
	return snap, nil
}

var _ es.Snapshotter = (*Store)(nil)
