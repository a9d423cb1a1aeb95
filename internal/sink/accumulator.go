package sink

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/szibis/prwsink/internal/prw"
)

// batch is one accumulated write request. Ownership passes from the
// accumulator to the writer on handoff and the batch is released at its
// terminal outcome.
type batch struct {
	id      string
	series  []prw.TimeSeries
	samples int
	opened  time.Time
}

// accumulator groups offered records into batches bounded by sample count.
// A batch is handed to the writer when it is full, when it has been open
// for the linger interval, or on an explicit flush. The handoff blocks
// while the delivery queue is full, which is the backpressure the sink
// applies to producers.
type accumulator struct {
	maxBatch  int
	maxRecord int
	linger    time.Duration

	metrics *sinkMetrics
	series  *seriesTracker
	emit    func(context.Context, *batch) error

	mu     sync.Mutex
	closed bool
	cur    *batch
	timer  *time.Timer
}

func newAccumulator(cfg Config, m *sinkMetrics, tracker *seriesTracker, emit func(context.Context, *batch) error) *accumulator {
	return &accumulator{
		maxBatch:  cfg.MaxBatchSizeInSamples,
		maxRecord: cfg.MaxRecordSizeInSamples,
		linger:    cfg.MaxTimeInBuffer,
		metrics:   m,
		series:    tracker,
		emit:      emit,
	}
}

// offer appends one record to the open batch. A record that would overflow
// the batch flushes it first; a batch filled to exactly the limit flushes
// immediately. Records over the per-record sample limit are rejected whole.
// Records without samples are a no-op. After close every offer is refused
// with ErrClosed, whatever the record looks like.
func (a *accumulator) offer(ctx context.Context, ts prw.TimeSeries) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}

	n := len(ts.Samples)
	if n > a.maxRecord {
		a.metrics.oversizedRecords.Inc()
		return &OversizedRecordError{Samples: n, Limit: a.maxRecord}
	}
	if n == 0 {
		return nil
	}

	// Remote write requires name-sorted labels within a series, and
	// LabelsHash assumes that order. An unsorted record gets a sorted
	// copy; the caller's slice keeps the order it was offered in.
	if !ts.LabelsSorted() {
		labels := make([]prw.Label, len(ts.Labels))
		copy(labels, ts.Labels)
		ts.Labels = labels
		ts.SortLabels()
	}

	if a.cur != nil && a.cur.samples+n > a.maxBatch {
		if err := a.flushLocked(ctx); err != nil {
			return err
		}
	}
	if a.cur == nil {
		a.cur = &batch{id: uuid.NewString(), opened: time.Now()}
		a.armTimerLocked()
	}

	a.cur.series = append(a.cur.series, ts)
	a.cur.samples += n
	a.series.observe(ts.LabelsHash())
	a.metrics.openBatchSamples.Set(float64(a.cur.samples))

	if a.cur.samples >= a.maxBatch {
		return a.flushLocked(ctx)
	}
	return nil
}

// flush forces the open batch out without closing the accumulator.
// Flushing an empty batch is a no-op.
func (a *accumulator) flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	return a.flushLocked(ctx)
}

// close rejects further input and flushes the partial batch.
func (a *accumulator) close(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}
	return a.flushLocked(ctx)
}

// flushLocked hands the open batch to the writer. On a failed handoff the
// batch stays open so accepted records are not silently lost.
func (a *accumulator) flushLocked(ctx context.Context) error {
	if a.cur == nil {
		return nil
	}
	b := a.cur
	a.cur = nil
	if a.timer != nil {
		a.timer.Stop()
	}

	a.metrics.openBatchSamples.Set(0)
	a.metrics.distinctSeries.Set(float64(a.series.estimate()))

	if err := a.emit(ctx, b); err != nil {
		a.cur = b
		a.metrics.openBatchSamples.Set(float64(b.samples))
		a.armTimerLocked()
		return err
	}
	return nil
}

// armTimerLocked schedules the age flush for the open batch.
func (a *accumulator) armTimerLocked() {
	if a.linger <= 0 {
		return
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.linger, a.onLinger)
		return
	}
	a.timer.Reset(a.linger)
}

// onLinger flushes the open batch once it has been buffered for the full
// linger interval. A stale fire for a batch that was already flushed
// re-arms for the younger batch or does nothing.
func (a *accumulator) onLinger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.cur == nil {
		return
	}
	if remaining := a.linger - time.Since(a.cur.opened); remaining > 0 {
		a.timer.Reset(remaining)
		return
	}
	// The writer records any terminal failure; producers observe it on
	// their next call.
	_ = a.flushLocked(context.Background())
}
