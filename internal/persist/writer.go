package persist

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversation-core/pkg/logger"
	"github.com/capitalize-ai/conversation-core/pkg/metrics"
)

// SnapshotFunc produces the current durable snapshot.
type SnapshotFunc func() ([]byte, error)

// Writer coalesces snapshot writes: every Notify marks the state dirty and
// (re)arms a trailing-edge timer, so a burst of mutations during streaming
// produces one write once the burst quiets down. Flush forces a pending
// write out, and Close flushes during teardown.
type Writer struct {
	adapter  Adapter
	key      string
	interval time.Duration
	snapshot SnapshotFunc
	log      *logger.Logger

	mu     sync.Mutex
	dirty  bool
	timer  *time.Timer
	closed bool
}

// NewWriter creates a write-coalescing persistence writer.
func NewWriter(adapter Adapter, key string, interval time.Duration, snapshot SnapshotFunc, log *logger.Logger) *Writer {
	return &Writer{
		adapter:  adapter,
		key:      key,
		interval: interval,
		snapshot: snapshot,
		log:      log,
	}
}

// Notify marks the snapshot dirty and schedules a write after the debounce
// interval. Calls while a write is already pending are absorbed.
func (w *Writer) Notify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.dirty {
		metrics.PersistCoalesced.Inc()
	}
	w.dirty = true

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.interval, func() {
		if err := w.Flush(context.Background()); err != nil {
			w.log.Error("snapshot write failed", zap.Error(err))
		}
	})
}

// Flush writes the latest snapshot if anything changed since the last
// write.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if !w.dirty {
		w.mu.Unlock()
		return nil
	}
	w.dirty = false
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	data, err := w.snapshot()
	if err != nil {
		metrics.PersistWrites.WithLabelValues("error").Inc()
		return err
	}
	if err := w.adapter.Set(ctx, w.key, data); err != nil {
		metrics.PersistWrites.WithLabelValues("error").Inc()
		return err
	}
	metrics.PersistWrites.WithLabelValues("ok").Inc()
	return nil
}

// Load reads the stored snapshot, returning ErrNotFound on first run.
func (w *Writer) Load(ctx context.Context) ([]byte, error) {
	return w.adapter.Get(ctx, w.key)
}

// Close flushes any pending snapshot and stops the writer.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	return w.Flush(ctx)
}
