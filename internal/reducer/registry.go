// Package reducer applies chat response events to conversation drafts. It
// holds the dispatch table mapping each event kind to its mutation handler
// and optional post-commit hook.
package reducer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

// Ctx carries per-dispatch context into handlers.
type Ctx struct {
	// MessageID targets the in-flight assistant placeholder.
	MessageID string
	Log       *logger.Logger
}

// Side carries results from a primary handler to its after hook.
type Side struct {
	// PreviousKey is the map key the conversation was stored under before
	// the primary handler changed its identity.
	PreviousKey string
}

// StoreOps is the slice of store behavior after hooks may use. Hooks run
// once the conversation-scoped mutation is committed; restructuring the
// outer map cannot safely happen from inside that mutation.
type StoreOps interface {
	PromoteIdentity(tempKey, permanentID string) error
}

// HandlerFunc mutates a conversation draft for one event.
type HandlerFunc func(conv *model.Conversation, ev model.Event, ctx Ctx) (*Side, error)

// AfterFunc performs cross-conversation bookkeeping after commit.
type AfterFunc func(ops StoreOps, ev model.Event, side *Side) error

// After is a bound post-commit hook produced by Dispatch.
type After func(ops StoreOps) error

type entry struct {
	primary HandlerFunc
	after   AfterFunc
}

// Registry maps event kinds to handlers.
type Registry struct {
	handlers map[model.EventKind]entry
	log      *logger.Logger
}

// NewRegistry creates an empty registry. Most callers want Default.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		handlers: make(map[model.EventKind]entry),
		log:      log,
	}
}

// Register installs a handler for a kind. Registering a kind twice is a
// programmer error; it is logged and the last registration wins so tests
// can override individual handlers.
func (r *Registry) Register(kind model.EventKind, primary HandlerFunc, after AfterFunc) {
	if _, exists := r.handlers[kind]; exists {
		r.log.Warn("handler registered twice, last registration wins",
			zap.String("kind", string(kind)),
		)
	}
	r.handlers[kind] = entry{primary: primary, after: after}
}

// Dispatch runs the primary handler for the event against the draft and
// returns the bound after hook, if any. Dispatching a kind with no handler
// fails fast.
func (r *Registry) Dispatch(conv *model.Conversation, ev model.Event, ctx Ctx) (After, error) {
	e, ok := r.handlers[ev.Kind()]
	if !ok {
		return nil, fmt.Errorf("no handler registered for event kind %q", ev.Kind())
	}

	side, err := e.primary(conv, ev, ctx)
	if err != nil {
		return nil, err
	}
	metrics.RecordEvent(string(ev.Kind()))

	if e.after == nil {
		return nil, nil
	}
	after := e.after
	return func(ops StoreOps) error {
		return after(ops, ev, side)
	}, nil
}
