package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/mikepea/succession/pkg/succession/metrics"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is reported when the async queue cannot take an entry
	ErrQueueFull = errors.New("audit queue full")
	// ErrClosed is reported for entries recorded after Close
	ErrClosed = errors.New("audit recorder closed")
)

// Recorder accepts audit entries. Recording never fails the caller: write
// problems go to the failure channel configured on the recorder.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// FailureFunc is the operator channel for entries that could not be stored
type FailureFunc func(e Entry, err error)

// Reporter logs failures at error level with the whole entry and keeps the
// prometheus counters current
type Reporter struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewReporter creates a reporter; m may be nil
func NewReporter(log *zap.Logger, m *metrics.Metrics) *Reporter {
	return &Reporter{log: log, metrics: m}
}

// Failure reports an entry that was not persisted
func (r *Reporter) Failure(e Entry, err error) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("action", e.Action),
		zap.String("table", e.Table),
		zap.String("actor_name", e.ActorName),
		zap.String("actor_email", e.ActorEmail),
		zap.Any("old_values", e.OldValues),
		zap.Any("new_values", e.NewValues),
		zap.String("info", e.Info),
		zap.String("request_id", e.RequestID),
		zap.Time("timestamp", e.Timestamp),
	}
	if e.ActorID != nil {
		fields = append(fields, zap.Uint("actor_id", *e.ActorID))
	}
	if e.RecordID != nil {
		fields = append(fields, zap.Uint("record_id", *e.RecordID))
	}
	r.log.Error("audit entry not recorded", fields...)
	if r.metrics != nil {
		r.metrics.AuditFailures.Inc()
	}
}

func (r *Reporter) recorded() {
	if r.metrics != nil {
		r.metrics.AuditRecorded.Inc()
	}
}

func write(ctx context.Context, sink Sink, e Entry) error {
	log, err := ToLog(e)
	if err != nil {
		return err
	}
	return sink.Write(ctx, log)
}

// SyncRecorder writes each entry before returning
type SyncRecorder struct {
	sink     Sink
	reporter *Reporter
}

// NewSyncRecorder creates a recorder that writes inline
func NewSyncRecorder(sink Sink, reporter *Reporter) *SyncRecorder {
	return &SyncRecorder{sink: sink, reporter: reporter}
}

// Record writes e, reporting rather than returning any error
func (r *SyncRecorder) Record(ctx context.Context, e Entry) {
	if err := write(context.WithoutCancel(ctx), r.sink, e); err != nil {
		r.reporter.Failure(e, err)
		return
	}
	r.reporter.recorded()
}

type queued struct {
	ctx   context.Context
	entry Entry
}

// AsyncRecorder hands entries to a single background writer. A full queue
// drops the entry to the failure channel instead of blocking the request.
type AsyncRecorder struct {
	sink     Sink
	reporter *Reporter
	queue    chan queued
	done     chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncRecorder starts the background writer
func NewAsyncRecorder(sink Sink, reporter *Reporter, size int) *AsyncRecorder {
	if size <= 0 {
		size = 1
	}
	r := &AsyncRecorder{
		sink:     sink,
		reporter: reporter,
		queue:    make(chan queued, size),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e without blocking
func (r *AsyncRecorder) Record(ctx context.Context, e Entry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.reporter.Failure(e, ErrClosed)
		return
	}
	select {
	case r.queue <- queued{ctx: context.WithoutCancel(ctx), entry: e}:
		r.setDepth()
	default:
		r.reporter.Failure(e, ErrQueueFull)
	}
}

func (r *AsyncRecorder) run() {
	defer close(r.done)
	for q := range r.queue {
		if err := write(q.ctx, r.sink, q.entry); err != nil {
			r.reporter.Failure(q.entry, err)
		} else {
			r.reporter.recorded()
		}
		r.setDepth()
	}
}

func (r *AsyncRecorder) setDepth() {
	if r.reporter.metrics != nil {
		r.reporter.metrics.AuditQueueDepth.Set(float64(len(r.queue)))
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx to end
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
