package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fintuitive/fintuitive/internal/model"
)

// FlushFunc delivers a batch of sanitized patterns to the aggregation layer.
type FlushFunc func(ctx context.Context, patterns []model.SanitizedPattern) error

// ReportQueue batches sanitized patterns and flushes them either when the
// batch-size threshold is reached or when the interval timer fires, whichever
// comes first. At most one flush is in flight; patterns enqueued while a
// flush runs wait for the next batch. Flush errors are logged and the batch
// is dropped: collaborative reporting is strictly best-effort.
type ReportQueue struct {
	flush     FlushFunc
	timer     *time.Timer
	pending   []model.SanitizedPattern
	interval  time.Duration
	batchSize int
	mu        sync.Mutex
	flushing  bool
	closed    bool
}

// NewReportQueue creates a queue with the given flush thresholds.
func NewReportQueue(batchSize int, interval time.Duration, flush FlushFunc) *ReportQueue {
	return &ReportQueue{
		flush:     flush,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Enqueue adds a pattern and flushes if the batch threshold is reached,
// otherwise (re)arms the interval timer.
func (q *ReportQueue) Enqueue(pattern model.SanitizedPattern) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.pending = append(q.pending, pattern)

	if len(q.pending) >= q.batchSize && !q.flushing {
		batch := q.takeBatchLocked()
		q.mu.Unlock()
		q.deliver(batch)
		return
	}

	if q.timer == nil {
		q.timer = time.AfterFunc(q.interval, q.onTimer)
	}
	q.mu.Unlock()
}

// Flush delivers everything pending immediately. Used on shutdown and by
// hosts that want to force a report cycle.
func (q *ReportQueue) Flush() {
	q.mu.Lock()
	if q.flushing || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.takeBatchLocked()
	q.mu.Unlock()
	q.deliver(batch)
}

// Close flushes any remainder and stops the timer. The queue accepts no
// patterns afterward.
func (q *ReportQueue) Close() {
	q.mu.Lock()
	q.closed = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	var batch []model.SanitizedPattern
	if !q.flushing && len(q.pending) > 0 {
		batch = q.takeBatchLocked()
	}
	q.mu.Unlock()

	if len(batch) > 0 {
		q.deliver(batch)
	}
}

// Pending returns how many patterns await the next flush.
func (q *ReportQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *ReportQueue) onTimer() {
	q.mu.Lock()
	q.timer = nil
	if q.closed || q.flushing || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.takeBatchLocked()
	q.mu.Unlock()
	q.deliver(batch)
}

// takeBatchLocked detaches the pending batch and marks a flush in flight.
// Callers must hold q.mu.
func (q *ReportQueue) takeBatchLocked() []model.SanitizedPattern {
	batch := q.pending
	q.pending = nil
	q.flushing = true
	return batch
}

func (q *ReportQueue) deliver(batch []model.SanitizedPattern) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := q.flush(ctx, batch); err != nil {
		slog.Warn("Collaborative report flush failed, dropping batch",
			"patterns", len(batch),
			"error", err)
	}

	q.mu.Lock()
	q.flushing = false
	rearm := !q.closed && len(q.pending) > 0 && q.timer == nil
	if rearm {
		q.timer = time.AfterFunc(q.interval, q.onTimer)
	}
	q.mu.Unlock()
}
