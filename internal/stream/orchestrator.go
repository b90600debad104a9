// Package stream drives response streams: it starts sends, wires transport
// callbacks into event dispatch, and owns cancellation and loading state.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/internal/model"
	"github.com/capitalize-ai/conversation-core/internal/reducer"
	"github.com/capitalize-ai/conversation-core/internal/store"
	"github.com/capitalize-ai/conversation-core/internal/transport"
	"github.com/capitalize-ai/conversation-core/pkg/logger"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

// Persister is notified after every committed mutation so it can coalesce
// snapshot writes.
type Persister interface {
	Notify()
}

// Observer sees every event after it has been applied and committed. It
// runs on the dispatch path and must not call back into the orchestrator.
type Observer func(conversationID string, ev model.Event)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPersister attaches a persistence writer.
func WithPersister(p Persister) Option {
	return func(o *Orchestrator) { o.persister = p }
}

// WithObserver attaches a post-commit event observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithRegistry replaces the default handler registry.
func WithRegistry(r *reducer.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// Orchestrator serializes all conversation mutations through one mutex,
// the Go analogue of the single-threaded reducer loop: events for a given
// conversation apply in exactly the order the transport delivers them, and
// no two handlers ever mutate the same conversation concurrently.
type Orchestrator struct {
	mu        sync.Mutex
	store     *store.Store
	registry  *reducer.Registry
	transport transport.Transport
	persister Persister
	observer  Observer
	log       *logger.Logger

	// streams tracks in-flight sends by conversation key.
	streams map[string]*streamState
}

type streamState struct {
	key       string
	messageID string
	started   time.Time
	errored   bool
	canceled  bool
	finished  bool
}

// New creates an orchestrator over the given store and transport.
func New(st *store.Store, tr transport.Transport, log *logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		registry:  reducer.Default(log),
		transport: tr,
		log:       log,
		streams:   make(map[string]*streamState),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SendMessage appends the user message and an empty assistant placeholder
// to the active conversation and opens a response stream. A send while the
// same conversation is already streaming is a no-op; different
// conversations may stream concurrently.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) error {
	o.mu.Lock()

	key, conv := o.store.CurrentSnapshot()
	if conv.Loading {
		o.mu.Unlock()
		o.log.Debug("send ignored, conversation already streaming",
			zap.String("conversation_id", key),
		)
		return nil
	}

	draft := conv.Clone()
	userMsg := model.NewChatMessage(model.RoleUser, text)
	placeholder := model.NewChatMessage(model.RoleAssistant, "")
	draft.AppendMessage(userMsg)
	draft.AppendMessage(placeholder)

	req := draft.Request(text)
	draft.BeginTurn()

	streamCtx, cancel := context.WithCancel(ctx)
	draft.Loading = true
	draft.Cancel = cancel
	if !o.store.CommitIfPresent(key, draft) {
		cancel()
		o.mu.Unlock()
		o.log.Debug("send ignored, conversation deleted",
			zap.String("conversation_id", key),
		)
		return nil
	}

	st := &streamState{key: key, messageID: placeholder.ID, started: time.Now()}
	o.streams[key] = st
	metrics.StreamsActive.Inc()
	o.mu.Unlock()

	handle, err := o.transport.Open(streamCtx, req, transport.Callbacks{
		OnEvent: func(ev model.Event) { o.handleEvent(st, ev) },
		OnError: func(streamErr error) {
			o.handleEvent(st, model.ErrorEvent{Message: streamErr.Error()})
		},
		OnClose: func() { o.finish(st) },
	})
	if err != nil {
		cancel()
		// Same path as a mid-stream transport failure: a synthetic error
		// event on the placeholder, then close out.
		o.handleEvent(st, model.ErrorEvent{Message: err.Error()})
		o.finish(st)
		metrics.SendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	o.attachHandle(st, handle, cancel)
	metrics.SendsTotal.WithLabelValues("ok").Inc()
	return nil
}

// attachHandle folds the transport handle into the conversation's cancel
// handle so Delete and StopAnswering stop event delivery too.
func (o *Orchestrator) attachHandle(st *streamState, handle transport.Handle, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()

	conv, ok := o.store.Get(st.key)
	if !ok || st.finished {
		return
	}
	draft := conv.Clone()
	draft.Cancel = func() {
		handle.Cancel()
		cancel()
	}
	o.store.CommitIfPresent(st.key, draft)
}

// handleEvent applies one incoming event: log it into the current turn,
// dispatch the mutation, commit the new snapshot, then run the after hook.
func (o *Orchestrator) handleEvent(st *streamState, ev model.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	conv, ok := o.store.Get(st.key)
	if !ok {
		// The conversation was deleted while an event was in flight.
		o.log.Warn("event dropped, conversation gone",
			zap.String("conversation_id", st.key),
			zap.String("kind", string(ev.Kind())),
		)
		return
	}

	if ev.Kind() == model.EventError {
		st.errored = true
	}

	draft := conv.Clone()
	draft.LogEvent(ev)

	after, err := o.registry.Dispatch(draft, ev, reducer.Ctx{MessageID: st.messageID, Log: o.log})
	if err != nil {
		// Integrity violation or unregistered kind: nothing is committed
		// and the stream is aborted rather than left to corrupt state.
		o.log.Error("event dispatch failed, aborting stream",
			zap.String("conversation_id", st.key),
			zap.String("kind", string(ev.Kind())),
			zap.Error(err),
		)
		st.errored = true
		if conv.Cancel != nil {
			conv.Cancel()
		}
		return
	}

	if !o.store.CommitIfPresent(st.key, draft) {
		// The conversation was deleted while this event was mid-dispatch;
		// committing would resurrect it.
		o.log.Warn("event dropped, conversation deleted during dispatch",
			zap.String("conversation_id", st.key),
			zap.String("kind", string(ev.Kind())),
		)
		return
	}

	if after != nil {
		if err := after(o.store); err != nil {
			o.log.Error("after hook failed",
				zap.String("kind", string(ev.Kind())),
				zap.Error(err),
			)
		} else if ev.Kind() == model.EventConversationID {
			o.rekeyStream(st, draft.Identity.Key())
		}
	}

	if o.observer != nil {
		o.observer(st.key, ev)
	}
	o.notifyPersist()
}

func (o *Orchestrator) rekeyStream(st *streamState, newKey string) {
	delete(o.streams, st.key)
	st.key = newKey
	o.streams[newKey] = st
}

// finish closes out a stream: clear the cancel handle and loading flag and,
// when the identity changed during the stream without the map being
// re-keyed yet, finalize that promotion here.
func (o *Orchestrator) finish(st *streamState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if st.finished {
		return
	}
	st.finished = true
	delete(o.streams, st.key)
	metrics.StreamsActive.Dec()

	conv, ok := o.store.Get(st.key)
	if ok {
		if conv.Identity.Key() != st.key {
			if err := o.store.PromoteIdentity(st.key, conv.Identity.Key()); err != nil {
				o.log.Error("failed to finalize identity promotion", zap.Error(err))
			} else {
				st.key = conv.Identity.Key()
				conv, _ = o.store.Get(st.key)
			}
		}
		if conv != nil && (conv.Loading || conv.Cancel != nil) {
			draft := conv.Clone()
			draft.Loading = false
			draft.Cancel = nil
			o.store.CommitIfPresent(st.key, draft)
		}
	}

	status := "ok"
	switch {
	case st.errored:
		status = "error"
	case st.canceled:
		status = "canceled"
	}
	metrics.RecordStream(status, time.Since(st.started).Seconds())
	o.log.Debug("stream closed",
		zap.String("conversation_id", st.key),
		zap.String("status", status),
	)
	o.notifyPersist()
}

// StopAnswering cancels the active conversation's in-flight stream, if any.
// Loading state clears synchronously; the transport's close callback firing
// later finds nothing left to do. Cancellation is not an error: partial
// content stays on the message.
func (o *Orchestrator) StopAnswering() {
	o.mu.Lock()
	defer o.mu.Unlock()

	key, conv := o.store.CurrentSnapshot()
	if !conv.Loading && conv.Cancel == nil {
		return
	}

	if st, exists := o.streams[key]; exists {
		st.canceled = true
	}
	if conv.Cancel != nil {
		conv.Cancel()
	}

	draft := conv.Clone()
	draft.Loading = false
	draft.Cancel = nil
	o.store.CommitIfPresent(key, draft)
	o.notifyPersist()
}

func (o *Orchestrator) notifyPersist() {
	if o.persister != nil {
		o.persister.Notify()
	}
}
