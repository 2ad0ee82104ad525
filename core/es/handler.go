package es

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/codewandler/esgo/core/schema"
)

// MessageKind describes the message type a handler registry serves. It is
// fixed when the registry is built.
type MessageKind struct {
	Name         string
	VersionField string
}

var (
	CommandKind = MessageKind{Name: "command", VersionField: "commandVersion"}
	EventKind   = MessageKind{Name: "event", VersionField: "eventVersion"}
)

func (k MessageKind) Title() string {
	if k.Name == "" {
		return "Message"
	}
	return strings.ToUpper(k.Name[:1]) + k.Name[1:]
}

type (
	// CommandFunc turns a command into events. agg gives access to CreateEvent.
	CommandFunc func(ctx context.Context, cmd Command, state State, agg *Aggregate) ([]Event, error)

	// EventFunc folds one event payload into state. Returning nil keeps state.
	EventFunc func(payload Payload, state State) (State, error)

	// CompleteFunc runs after an event was applied by a Projection.
	CompleteFunc func(ctx context.Context, state State, evt Event) error
)

// HandlerConfig is the registration input for a single handler version.
type HandlerConfig[F any] struct {
	Name       string
	Version    int
	Schema     schema.Validator
	Callback   F
	OnComplete CompleteFunc
}

// Handler is one named, versioned unit of behaviour. Immutable once built.
type Handler[F any] struct {
	kind MessageKind
	cfg  HandlerConfig[F]

	validOnce sync.Once
	valid     bool
}

// NewHandler validates cfg and returns the handler. All missing fields are
// reported at once.
func NewHandler[F any](kind MessageKind, cfg HandlerConfig[F]) (*Handler[F], error) {
	h := &Handler[F]{kind: kind, cfg: cfg}
	if violations := h.ValidateConfig(); len(violations) > 0 {
		return nil, NewValidationError(fmt.Sprintf("cannot create %s handler", kind.Name), violations...)
	}
	return h, nil
}

func (h *Handler[F]) Name() string             { return h.cfg.Name }
func (h *Handler[F]) Version() int             { return h.cfg.Version }
func (h *Handler[F]) Kind() MessageKind        { return h.kind }
func (h *Handler[F]) Schema() schema.Validator { return h.cfg.Schema }
func (h *Handler[F]) Callback() F              { return h.cfg.Callback }

func (h *Handler[F]) ValidateConfig() []string {
	var missing []string
	if h.cfg.Name == "" {
		missing = append(missing, "name")
	}
	if h.cfg.Version <= 0 {
		missing = append(missing, h.kind.VersionField)
	}
	if isNilFunc(h.cfg.Callback) {
		missing = append(missing, "callback")
	}
	if len(missing) == 0 {
		return nil
	}
	return []string{
		fmt.Sprintf("missing required fields for %s handler: [%s]", h.kind.Title(), strings.Join(missing, ",")),
	}
}

// IsValidHandler memoizes the ValidateConfig outcome.
func (h *Handler[F]) IsValidHandler() bool {
	h.validOnce.Do(func() {
		h.valid = len(h.ValidateConfig()) == 0
	})
	return h.valid
}

// ValidateMessage checks name, payload presence and payload schema. The
// message version is not checked: the registry picked this version already.
func (h *Handler[F]) ValidateMessage(msg Message) []string {
	var violations []string
	title := h.kind.Title()

	if msg.MessageName() != h.cfg.Name {
		violations = append(violations, fmt.Sprintf(
			"%s name ('%s') does not match the handler name ('%s')", title, msg.MessageName(), h.cfg.Name,
		))
	}

	payload := msg.MessagePayload()
	if payload == nil {
		violations = append(violations, fmt.Sprintf("'%s' is missing a payload object", title))
		return violations
	}

	if h.cfg.Schema == nil {
		return violations
	}
	res := h.cfg.Schema.Validate(payload)
	for _, m := range res.Missing {
		violations = append(violations, "Missing "+m)
	}
	for _, e := range res.Errors {
		violations = append(violations, fmt.Sprintf("%s - Path: '%s'", e.Message, e.Path))
	}
	return violations
}

// Complete runs the optional OnComplete hook.
func (h *Handler[F]) Complete(ctx context.Context, state State, evt Event) error {
	if h.cfg.OnComplete == nil {
		return nil
	}
	return h.cfg.OnComplete(ctx, state, evt)
}

func (h *Handler[F]) hasOnComplete() bool { return h.cfg.OnComplete != nil }

func isNilFunc(f any) bool {
	if f == nil {
		return true
	}
	rv := reflect.ValueOf(f)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
