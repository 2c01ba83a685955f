package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintuitive/fintuitive/internal/model"
)

type captureFlush struct {
	mu      sync.Mutex
	batches [][]model.SanitizedPattern
	err     error
}

func (c *captureFlush) flush(_ context.Context, patterns []model.SanitizedPattern) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.batches = append(c.batches, patterns)
	return nil
}

func (c *captureFlush) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *captureFlush) delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, b := range c.batches {
		total += len(b)
	}
	return total
}

func pattern(key string) model.SanitizedPattern {
	return model.SanitizedPattern{
		ReportedAt: time.Now(),
		UserHash:   "abcdef0123456789",
		ModuleID:   "category",
		DomainKey:  key,
		Label:      "Coffee Shops",
	}
}

func TestQueueFlushesAtBatchSize(t *testing.T) {
	capture := &captureFlush{}
	q := NewReportQueue(3, time.Hour, capture.flush)
	defer q.Close()

	q.Enqueue(pattern("a"))
	q.Enqueue(pattern("b"))
	assert.Zero(t, capture.batchCount(), "below threshold nothing flushes")
	assert.Equal(t, 2, q.Pending())

	q.Enqueue(pattern("c"))
	assert.Equal(t, 1, capture.batchCount())
	assert.Equal(t, 3, capture.delivered())
	assert.Zero(t, q.Pending())
}

func TestQueueFlushesOnInterval(t *testing.T) {
	capture := &captureFlush{}
	q := NewReportQueue(100, 20*time.Millisecond, capture.flush)
	defer q.Close()

	q.Enqueue(pattern("a"))
	require.Equal(t, 1, q.Pending())

	assert.Eventually(t, func() bool {
		return capture.batchCount() == 1 && q.Pending() == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, capture.delivered())
}

func TestQueueDropsFailedBatch(t *testing.T) {
	capture := &captureFlush{err: errors.New("transport down")}
	q := NewReportQueue(2, time.Hour, capture.flush)
	defer q.Close()

	q.Enqueue(pattern("a"))
	q.Enqueue(pattern("b"))

	// The failed batch is logged and dropped, never re-queued.
	assert.Zero(t, q.Pending())
	assert.Zero(t, capture.batchCount())
}

func TestQueueCloseFlushesRemainder(t *testing.T) {
	capture := &captureFlush{}
	q := NewReportQueue(100, time.Hour, capture.flush)

	q.Enqueue(pattern("a"))
	q.Enqueue(pattern("b"))
	q.Close()

	assert.Equal(t, 1, capture.batchCount())
	assert.Equal(t, 2, capture.delivered())

	q.Enqueue(pattern("c"))
	assert.Zero(t, q.Pending(), "closed queue accepts nothing")
}

func TestQueueManualFlush(t *testing.T) {
	capture := &captureFlush{}
	q := NewReportQueue(100, time.Hour, capture.flush)
	defer q.Close()

	q.Flush()
	assert.Zero(t, capture.batchCount(), "empty flush is a no-op")

	q.Enqueue(pattern("a"))
	q.Flush()
	assert.Equal(t, 1, capture.batchCount())
	assert.Zero(t, q.Pending())
}
