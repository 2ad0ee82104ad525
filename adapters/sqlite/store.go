package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/codewandler/esgo/adapters/sqlite/migrations"
	"github.com/codewandler/esgo/core/es"
)

const timeFormat = time.RFC3339Nano

type Config struct {
	// Path of the database file, created when missing.
	Path string
	Log  *slog.Logger
}

// Store keeps events, snapshots and key-value entries in one SQLite
// database. It serves as es.EventStore, es.Snapshotter and kv.Store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	dsn := filepath.Clean(cfg.Path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer at a time; appends check and insert inside one transaction
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With(slog.String("store", "sqlite"), slog.String("path", cfg.Path)),
		now: time.Now,
	}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, aggType, aggID string, opts ...es.StoreLoadOption) ([]es.Event, error) {
	if aggType == "" || aggID == "" {
		return nil, errors.New("aggregate type and id are required")
	}
	startVersion := es.NewStoreLoadOptions(opts...)

	rows, err := s.db.QueryContext(ctx, `
SELECT id, version, name, event_version, payload, meta, occurred_at
FROM events
WHERE aggregate_type = ? AND aggregate_id = ? AND version >= ?
ORDER BY version`, aggType, aggID, int64(startVersion))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []es.Event
	for rows.Next() {
		var (
			evt                       es.Event
			version                   int64
			payload, meta, occurredAt string
		)
		if err := rows.Scan(&evt.ID, &version, &evt.Name, &evt.EventVersion, &payload, &meta, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt.Version = es.Version(version)
		if err := json.Unmarshal([]byte(payload), &evt.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s v%d: %w", evt.Name, version, err)
		}
		if err := json.Unmarshal([]byte(meta), &evt.Meta); err != nil {
			return nil, fmt.Errorf("decode meta of %s v%d: %w", evt.Name, version, err)
		}
		if evt.OccurredAt, err = time.Parse(timeFormat, occurredAt); err != nil {
			return nil, fmt.Errorf("parse occurred_at of %s v%d: %w", evt.Name, version, err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func (s *Store) Append(
	ctx context.Context,
	aggType string,
	aggID string,
	expectedVersion es.Version,
	events []es.Event,
) (*es.StoreAppendResult, error) {
	if err := es.ValidateAppend(aggType, aggID, expectedVersion, events); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_type = ? AND aggregate_id = ?`,
		aggType, aggID,
	).Scan(&current); err != nil {
		return nil, fmt.Errorf("read stream head: %w", err)
	}
	if es.Version(current) != expectedVersion {
		return nil, conflict(aggType, aggID, expectedVersion, es.Version(current))
	}

	var lastSeq int64
	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return nil, err
		}
		meta, err := json.Marshal(evt.Meta)
		if err != nil {
			return nil, err
		}
		occurredAt := evt.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = s.now()
		}

		res, err := tx.ExecContext(ctx, `
INSERT INTO events (id, aggregate_type, aggregate_id, version, name, event_version, payload, meta, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			evt.ID, aggType, aggID, int64(evt.Version), evt.Name, evt.EventVersion,
			string(payload), string(meta), occurredAt.UTC().Format(timeFormat),
		)
		if err != nil {
			if isConstraintError(err) {
				return nil, conflict(aggType, aggID, expectedVersion, evt.Version)
			}
			return nil, fmt.Errorf("insert %s v%d: %w", evt.Name, evt.Version, err)
		}
		if lastSeq, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isConstraintError(err) {
			return nil, conflict(aggType, aggID, expectedVersion, es.Version(current))
		}
		return nil, fmt.Errorf("commit append: %w", err)
	}

	s.log.Debug(
		"append",
		slog.String("agg_type", aggType),
		slog.String("agg_id", aggID),
		slog.Int64("last_seq", lastSeq),
		slog.Int("num_events", len(events)),
	)

	return &es.StoreAppendResult{
		LastVersion: events[len(events)-1].Version,
		LastSeq:     uint64(lastSeq),
	}, nil
}

func conflict(aggType, aggID string, expected, got es.Version) error {
	return fmt.Errorf(
		"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
		es.ErrConcurrencyConflict, expected, got, aggType, aggID,
	)
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

var _ es.EventStore = (*Store)(nil)
