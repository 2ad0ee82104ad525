package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/esgo/core/es"
)

const (
	defaultSubjectPrefix = "esgo.es"
	defaultStreamName    = "ESGO_ES"

	headerEventName     = "x-event-name"
	headerEventVersion  = "x-event-version"
	headerAggregateType = "x-aggregate-type"
	headerAggregateID   = "x-aggregate-id"
)

// RetentionPolicy defines how messages are retained in the stream.
type RetentionPolicy int

const (
	// RetentionLimits keeps messages until limits (MaxMsgs, MaxBytes, MaxAge) are reached.
	RetentionLimits RetentionPolicy = iota

	// RetentionInterest keeps messages only while there are consumers with interest.
	RetentionInterest
)

func (r RetentionPolicy) toJetStream() jetstream.RetentionPolicy {
	if r == RetentionInterest {
		return jetstream.InterestPolicy
	}
	return jetstream.LimitsPolicy
}

type EventStoreConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix is the prefix of every aggregate subject
	StreamName    string
	Retention     RetentionPolicy
	MaxAge        time.Duration // 0 keeps events forever
	MemoryStorage bool          // use memory instead of file storage, for tests
}

// EventStore keeps each aggregate stream on its own subject
// <prefix>.<aggregate type>.<aggregate id> of one JetStream stream.
// Appends are guarded by the expected last sequence per subject, so a
// concurrent writer makes Append fail with es.ErrConcurrencyConflict.
type EventStore struct {
	js            jetstream.JetStream
	stream        jetstream.Stream
	closeNc       closeFunc
	log           *slog.Logger
	subjectPrefix string
}

func NewEventStore(cfg EventStoreConfig) (*EventStore, error) {
	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	streamName := strings.ToUpper(cfg.StreamName)
	if streamName == "" {
		streamName = defaultStreamName
	}
	subjectPrefix := cfg.SubjectPrefix
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	storage := jetstream.FileStorage
	if cfg.MemoryStorage {
		storage = jetstream.MemoryStorage
	}

	log = log.With(
		slog.String("store", "nats_js"),
		slog.String("stream", streamName),
		slog.String("subject_prefix", subjectPrefix),
	)

	stream, streamInfo, err := ensureStream(js, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Retention: cfg.Retention.toJetStream(),
		Storage:   storage,
		MaxAge:    cfg.MaxAge,
		FirstSeq:  1,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	log.Debug("ensured", slog.Uint64("msgs", streamInfo.State.Msgs))

	return &EventStore{
		js:            js,
		stream:        stream,
		closeNc:       closeNc,
		log:           log,
		subjectPrefix: subjectPrefix,
	}, nil
}

func (e *EventStore) Close() error {
	e.js.CleanupPublisher()
	e.closeNc()
	e.log.Debug("closed event store")
	return nil
}

func (e *EventStore) subjectForAggregate(aggType, aggID string) string {
	return e.subjectPrefix + "." + aggType + "." + aggID
}

func (e *EventStore) Load(
	ctx context.Context,
	aggType string,
	aggID string,
	opts ...es.StoreLoadOption,
) ([]es.Event, error) {
	if aggType == "" || aggID == "" {
		return nil, errors.New("aggregate type and id are required")
	}
	startVersion := es.NewStoreLoadOptions(opts...)
	subject := e.subjectForAggregate(aggType, aggID)

	last, err := e.stream.GetLastMsgForSubject(ctx, subject)
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return nil, nil
		}
		return nil, err
	}

	cc, err := e.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		FilterSubjects: []string{subject},
	})
	if err != nil {
		return nil, err
	}

	var events []es.Event
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := cc.FetchNoWait(100)
		if err != nil {
			return nil, err
		}

		empty := true
		for msg := range batch.Messages() {
			empty = false
			evt, seq, err := decodeMsg(msg)
			if err != nil {
				return nil, fmt.Errorf("failed to decode message on %s: %w", subject, err)
			}
			if evt.Version >= startVersion {
				events = append(events, evt)
			}
			if seq >= last.Sequence {
				return events, nil
			}
		}
		if batch.Error() != nil {
			return nil, batch.Error()
		}
		if empty {
			return events, nil
		}
	}
}

func (e *EventStore) Append(
	ctx context.Context,
	aggType string,
	aggID string,
	expectedVersion es.Version,
	events []es.Event,
) (*es.StoreAppendResult, error) {
	if err := es.ValidateAppend(aggType, aggID, expectedVersion, events); err != nil {
		return nil, err
	}

	subject := e.subjectForAggregate(aggType, aggID)

	// the subject sequence pins the stream position the version was read at
	var lastSubjectSeq uint64
	last, err := e.stream.GetLastMsgForSubject(ctx, subject)
	switch {
	case errors.Is(err, jetstream.ErrMsgNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to read stream head: %w", err)
	default:
		var head es.Event
		if err := json.Unmarshal(last.Data, &head); err != nil {
			return nil, fmt.Errorf("failed to decode stream head: %w", err)
		}
		if head.Version != expectedVersion {
			return nil, conflict(aggType, aggID, expectedVersion, head.Version)
		}
		lastSubjectSeq = last.Sequence
	}
	if lastSubjectSeq == 0 && expectedVersion != 0 {
		return nil, conflict(aggType, aggID, expectedVersion, 0)
	}

	for _, evt := range events {
		msg := natsgo.NewMsg(subject)
		msg.Header.Set(headerEventName, evt.Name)
		msg.Header.Set(headerEventVersion, fmt.Sprint(evt.Version))
		msg.Header.Set(headerAggregateType, aggType)
		msg.Header.Set(headerAggregateID, aggID)
		if msg.Data, err = json.Marshal(evt); err != nil {
			return nil, err
		}

		pubOpts := []jetstream.PublishOpt{jetstream.WithExpectLastSequencePerSubject(lastSubjectSeq)}
		if evt.ID != "" {
			pubOpts = append(pubOpts, jetstream.WithMsgID(evt.ID))
		}
		ack, err := e.js.PublishMsg(ctx, msg, pubOpts...)
		if err != nil {
			var apiErr *jetstream.APIError
			if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
				return nil, conflict(aggType, aggID, expectedVersion, evt.Version-1)
			}
			return nil, fmt.Errorf("failed to append %s to %s: %w", evt.Name, subject, err)
		}
		lastSubjectSeq = ack.Sequence
	}

	e.log.Debug(
		"append",
		slog.String("subject", subject),
		slog.Uint64("last_seq", lastSubjectSeq),
		slog.Int("num_events", len(events)),
	)

	return &es.StoreAppendResult{
		LastVersion: events[len(events)-1].Version,
		LastSeq:     lastSubjectSeq,
	}, nil
}

func conflict(aggType, aggID string, expected, got es.Version) error {
	return fmt.Errorf(
		"%w: expected version %d, got %d (agg_type=%s agg_id=%s)",
		es.ErrConcurrencyConflict, expected, got, aggType, aggID,
	)
}

func ensureStream(js jetstream.JetStream, cfg jetstream.StreamConfig) (jetstream.Stream, *jetstream.StreamInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*natsgo.DefaultTimeout)
	defer cancel()

	s, err := js.CreateOrUpdateStream(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	si, err := s.Info(ctx)
	if err != nil {
		return nil, nil, err
	}
	return s, si, nil
}

func decodeMsg(msg jetstream.Msg) (es.Event, uint64, error) {
	md, err := msg.Metadata()
	if err != nil {
		return es.Event{}, 0, err
	}
	var evt es.Event
	if err := json.Unmarshal(msg.Data(), &evt); err != nil {
		return es.Event{}, 0, err
	}
	return evt, md.Sequence.Stream, nil
}

var _ es.EventStore = (*EventStore)(nil)
