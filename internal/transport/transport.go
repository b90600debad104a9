// Package transport opens chat response streams. Implementations deliver
// decoded events through callbacks; the orchestrator owns all state.
package transport

import (
	"context"

	"github.com/capitalize-ai/conversation-core/internal/model"
)

// Callbacks receive stream delivery. OnEvent fires once per event in
// delivery order. OnError reports a transport failure; OnClose always fires
// exactly once when the stream ends, whether by success, failure or
// cancellation.
type Callbacks struct {
	OnEvent func(ev model.Event)
	OnError func(err error)
	OnClose func()
}

// Handle cancels an open stream. Cancellation is cooperative: events
// already in flight may still be delivered afterwards.
type Handle interface {
	Cancel()
}

// HandleFunc adapts a plain function to Handle.
type HandleFunc func()

// Cancel invokes the function.
func (f HandleFunc) Cancel() { f() }

// Transport opens a response stream for one outgoing chat request.
type Transport interface {
	Open(ctx context.Context, req *model.ChatRequest, cb Callbacks) (Handle, error)
}
