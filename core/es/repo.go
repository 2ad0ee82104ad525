package es

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Repository implements the commit protocol around a Stream: load committed
// events, let an Aggregate append uncommitted ones, persist them with
// optimistic concurrency and only then mark them committed.
type Repository struct {
	log         *slog.Logger
	store       EventStore
	snapshotter Snapshotter
	bus         MessageBus
	metrics     ESMetrics
}

func NewRepository(store EventStore, opts ...RepositoryOption) (*Repository, error) {
	if store == nil {
		return nil, configErrorf("event store is required")
	}
	options := newRepoOpts(opts...)
	return &Repository{
		log:         options.log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:       store,
		snapshotter: options.snapshotter,
		bus:         options.bus,
		metrics:     options.metrics,
	}, nil
}

func (r *Repository) Store() EventStore        { return r.store }
func (r *Repository) Snapshotter() Snapshotter { return r.snapshotter }

// Load rebuilds the stream of one aggregate instance. An instance without
// events yields an empty stream, which is how new aggregates start.
func (r *Repository) Load(ctx context.Context, aggType, aggID string, opts ...LoadOption) (*Stream, error) {
	if aggType == "" {
		return nil, configErrorf("aggregate type is empty")
	}
	if aggID == "" {
		return nil, configErrorf("aggregate id is empty")
	}
	loadOptions := newLoadOpts(opts...)

	log := r.log.With(slog.Group("agg", slog.String("type", aggType), slog.String("id", aggID)))

	var snap *Snapshot
	if loadOptions.snapshot && r.snapshotter != nil {
		loaded, err := r.loadSnapshot(ctx, aggType, aggID)
		switch {
		case errors.Is(err, ErrSnapshotNotFound):
			log.Debug("no snapshot")
		case err != nil:
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		default:
			snap = loaded
			log.Debug("snapshot loaded", snap.logAttrs())
		}
	}

	minVersion := snapshotVersion(snap) + 1
	events, err := r.loadEvents(ctx, aggType, aggID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load events agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}

	s, err := NewStream(StreamOpts{
		AggregateID:   aggID,
		AggregateType: aggType,
		Snapshot:      snap,
		Events:        events,
	})
	if err != nil {
		return nil, err
	}

	log.Debug(
		"loaded",
		minVersion.SlogAttrWithKey("min_version"),
		s.CommittedVersion().SlogAttr(),
		slog.Int("num_events", len(events)),
	)
	return s, nil
}

func (r *Repository) loadSnapshot(ctx context.Context, aggType, aggID string) (*Snapshot, error) {
	defer r.metrics.SnapshotLoadDuration(aggType).ObserveDuration()
	return r.snapshotter.LoadSnapshot(ctx, aggType, aggID)
}

func (r *Repository) loadEvents(ctx context.Context, aggType, aggID string, minVersion Version) ([]Event, error) {
	defer r.metrics.StoreLoadDuration(aggType).ObserveDuration()
	return r.store.Load(ctx, aggType, aggID, WithStartAtVersion(minVersion))
}

// Save appends the uncommitted events of s at its committed version. Only a
// successful append commits them; on any error s keeps them uncommitted.
// Committed events are published on the bus afterwards.
func (r *Repository) Save(ctx context.Context, s *Stream) error {
	if s == nil {
		return configErrorf("stream is required")
	}
	if !s.HasUncommitted() {
		return nil
	}

	var (
		aggType       = s.AggregateType()
		aggID         = s.AggregateID()
		expectVersion = s.CommittedVersion()
		pending       = s.Uncommitted()
	)

	timer := r.metrics.StoreAppendDuration(aggType)
	res, err := r.store.Append(ctx, aggType, aggID, expectVersion, pending)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	if res == nil {
		return errors.New("append returned nil result")
	}

	s.CommitAll()
	r.metrics.EventsAppended(aggType, len(pending))

	r.log.Debug(
		"saved",
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
			slog.Uint64("seq", res.LastSeq),
			res.LastVersion.SlogAttr(),
		),
		slog.Int("num_events", len(pending)),
	)

	if r.bus != nil {
		if err := r.bus.Publish(ctx, pending...); err != nil {
			// events are durable at this point; delivery is best effort
			r.log.Error("failed to publish events", slog.Any("error", err))
		}
	}

	return nil
}

// Execute loads the stream of aggID, runs cmd on agg and saves the result.
// A concurrency conflict discards the attempt, reloads and re-executes the
// command against the fresh stream, up to WithMaxRetries times.
func (r *Repository) Execute(
	ctx context.Context,
	agg *Aggregate,
	aggID string,
	cmd Command,
	opts ...LoadOption,
) (*Stream, error) {
	if !IsValidAggregate(agg) {
		return nil, configErrorf("aggregate is required")
	}
	loadOptions := newLoadOpts(opts...)

	for attempt := 0; ; attempt++ {
		s, err := r.Load(ctx, agg.AggregateType(), aggID, opts...)
		if err != nil {
			return nil, err
		}
		if _, err := agg.Execute(ctx, cmd, s); err != nil {
			return nil, err
		}

		err = r.Save(ctx, s)
		if err == nil {
			if loadOptions.snapshot && r.snapshotter != nil {
				if _, err := r.CreateSnapshot(ctx, agg, s); err != nil {
					r.log.Warn("failed to create snapshot", slog.Any("error", err))
				}
			}
			return s, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt >= loadOptions.maxRetries {
			return nil, err
		}

		r.metrics.CommandRetried(agg.AggregateType())
		r.log.Debug(
			"retrying command after conflict",
			slog.String("command", cmd.Name),
			slog.String("agg_id", aggID),
			slog.Int("attempt", attempt+1),
		)
	}
}

// CreateSnapshot projects the committed events of s and stores the result.
func (r *Repository) CreateSnapshot(ctx context.Context, agg *Aggregate, s *Stream) (*Snapshot, error) {
	if r.snapshotter == nil {
		return nil, configErrorf("no snapshotter configured")
	}
	if s.HasUncommitted() {
		return nil, configErrorf("cannot snapshot stream %s/%s with uncommitted events", s.AggregateType(), s.AggregateID())
	}
	state, err := agg.Project(s)
	if err != nil {
		return nil, fmt.Errorf("failed to project state: %w", err)
	}

	snap := &Snapshot{
		ID:            gonanoid.Must(),
		AggregateType: s.AggregateType(),
		AggregateID:   s.AggregateID(),
		Version:       s.CommittedVersion(),
		State:         state,
		CreatedAt:     time.Now(),
	}

	timer := r.metrics.SnapshotSaveDuration(snap.AggregateType)
	err = r.snapshotter.SaveSnapshot(ctx, snap)
	timer.ObserveDuration()
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", snap.logAttrs())
	return snap, nil
}
