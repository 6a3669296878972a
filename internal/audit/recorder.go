package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"opstrack.org/internal/ids"
	"opstrack.org/internal/obs"
)

const (
	defaultBatchSize      = 50
	defaultMaxBufferAge   = 30 * time.Second
	defaultFlushTimeout   = 5 * time.Second
	defaultMaxDetailBytes = 8 * 1024
)

// Recorder buffers audit events and persists them in batches. Events are
// masked on entry and never dropped: a failed or timed-out flush puts the
// batch back at the front of the buffer for the next trigger.
type Recorder struct {
	store          Store
	masker         *Masker
	batchSize      int
	maxBufferAge   time.Duration
	flushTimeout   time.Duration
	maxDetailBytes int
	now            func() time.Time

	mu        sync.Mutex
	buf       []Event
	lastFlush time.Time
}

// RecorderOption configures Recorder behavior.
type RecorderOption func(*Recorder)

// WithBatchSize sets the buffer size that triggers a flush.
func WithBatchSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMaxBufferAge sets how long events may sit in the buffer before an
// append forces a flush.
func WithMaxBufferAge(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.maxBufferAge = d
		}
	}
}

// WithFlushTimeout bounds each durable write.
func WithFlushTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.flushTimeout = d
		}
	}
}

// WithMaxDetailBytes bounds the serialized size of a detail payload.
func WithMaxDetailBytes(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.maxDetailBytes = n
		}
	}
}

// WithMasker overrides the sensitive-field masker.
func WithMasker(m *Masker) RecorderOption {
	return func(r *Recorder) {
		if m != nil {
			r.masker = m
		}
	}
}

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	r := &Recorder{
		store:          store,
		masker:         NewMasker(nil),
		batchSize:      defaultBatchSize,
		maxBufferAge:   defaultMaxBufferAge,
		flushTimeout:   defaultFlushTimeout,
		maxDetailBytes: defaultMaxDetailBytes,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastFlush = r.now()
	return r, nil
}

// Record masks the event's detail, appends it to the buffer and flushes
// when a trigger fires. Persistence failures are logged and retried on the
// next trigger; they are never surfaced to the caller.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now().UTC()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	event.Detail = r.boundDetail(r.masker.Mask(event.Detail))

	r.mu.Lock()
	r.buf = append(r.buf, event)
	depth := len(r.buf)
	trigger := depth >= r.batchSize ||
		event.Severity == SeverityCritical ||
		r.now().Sub(r.lastFlush) > r.maxBufferAge
	r.mu.Unlock()

	obs.AuditBufferDepth.Set(float64(depth))
	if trigger {
		if err := r.flush(ctx); err != nil {
			obs.LogError("audit", err, map[string]any{"op": "flush"})
		}
	}
}

// ForceFlush drains and persists whatever is buffered. Used on shutdown and
// by the maintenance sweeper.
func (r *Recorder) ForceFlush(ctx context.Context) error {
	return r.flush(ctx)
}

// BufferLen reports the number of events currently buffered.
func (r *Recorder) BufferLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// SweepRetention deletes persisted events older than the horizon.
func (r *Recorder) SweepRetention(ctx context.Context, horizon time.Duration) (int, error) {
	return r.store.DeleteBefore(ctx, r.now().UTC().Add(-horizon))
}

// flush atomically swaps the buffer for an empty one, then persists the
// swapped-out batch outside the lock. The swap happens under the mutex, so
// two concurrent triggers can never drain the same batch twice. On failure
// the batch is prepended back ahead of anything appended meanwhile, and
// lastFlush stays put so the age trigger retries on the very next append.
func (r *Recorder) flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.buf) == 0 {
		r.mu.Unlock()
		return nil
	}
	batch := r.buf
	r.buf = nil
	r.mu.Unlock()

	fctx := ctx
	if r.flushTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, r.flushTimeout)
		defer cancel()
	}

	if err := r.store.Append(fctx, batch); err != nil {
		r.mu.Lock()
		r.buf = append(batch, r.buf...)
		depth := len(r.buf)
		r.mu.Unlock()
		obs.AuditBufferDepth.Set(float64(depth))
		obs.AuditFlushesTotal.WithLabelValues("error").Inc()
		return err
	}

	r.mu.Lock()
	r.lastFlush = r.now()
	depth := len(r.buf)
	r.mu.Unlock()
	obs.AuditBufferDepth.Set(float64(depth))
	obs.AuditFlushesTotal.WithLabelValues("ok").Inc()
	return nil
}

// boundDetail replaces oversized or unserializable payloads with a small
// error marker so one event cannot bloat the durable store.
func (r *Recorder) boundDetail(detail map[string]any) map[string]any {
	if detail == nil {
		return nil
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return map[string]any{"error": "detail not serializable"}
	}
	if len(data) > r.maxDetailBytes {
		return map[string]any{"error": "detail too large"}
	}
	return detail
}
