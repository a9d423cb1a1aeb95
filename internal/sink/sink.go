// Package sink delivers time series samples to a Prometheus remote write
// endpoint with bounded buffering, strict batch ordering, bounded retry
// with exponential backoff, pluggable request signing, and a configurable
// failure policy per error class.
//
// Records are accumulated into batches bounded by sample count and age. At
// most one batch is in flight at any time; the next batch is not dequeued
// until the current one reaches a terminal outcome, so batches arrive at
// the remote endpoint in the order they were flushed. Producers block once
// the delivery queue is full.
package sink

import (
	"context"
	"errors"
	"sync"

	"github.com/szibis/prwsink/internal/logging"
	"github.com/szibis/prwsink/internal/prw"
)

// Sink accepts time series records, groups them into bounded batches, and
// delivers them in order to the configured remote write endpoint. A Sink is
// safe for concurrent use by multiple producers.
type Sink struct {
	cfg     Config
	acc     *accumulator
	writer  *writer
	metrics *sinkMetrics
	log     *logging.Logger

	closeOnce sync.Once
	closeErr  error
}

// New validates the configuration, applies defaults, and starts the
// delivery loop. The returned sink must be closed to release its goroutine
// and idle connections.
func New(cfg Config) (*Sink, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	m := newSinkMetrics(cfg.Registerer, cfg.MetricGroupName)
	w := newWriter(cfg, tr, m)
	s := &Sink{
		cfg:     cfg,
		writer:  w,
		metrics: m,
		log:     cfg.Logger,
	}
	s.acc = newAccumulator(cfg, m, newSeriesTracker(), w.enqueue)
	go w.run()

	s.log.Info("remote write sink started", logging.F(
		"url", cfg.RemoteWriteURL,
		"max_batch_samples", cfg.MaxBatchSizeInSamples,
		"max_buffered_requests", cfg.MaxBufferedRequests,
		"max_time_in_buffer", cfg.MaxTimeInBuffer.String(),
		"compression", string(cfg.Compression),
		"group", cfg.MetricGroupName,
	))
	return s, nil
}

// Offer appends one record to the open batch. It blocks for backpressure
// when it triggers a flush while the delivery queue is full. Records whose
// sample count exceeds the record limit are rejected whole with
// OversizedRecordError. After a terminal delivery failure every call
// returns that failure.
func (s *Sink) Offer(ctx context.Context, ts prw.TimeSeries) error {
	if err := s.writer.terminalError(); err != nil {
		return err
	}
	return s.acc.offer(ctx, ts)
}

// Flush forces the open batch into the delivery queue without waiting for
// the size or time threshold. Flushing an empty batch is a no-op.
func (s *Sink) Flush(ctx context.Context) error {
	if err := s.writer.terminalError(); err != nil {
		return err
	}
	return s.acc.flush(ctx)
}

// Err returns the terminal failure that stopped the sink, if any.
func (s *Sink) Err() error {
	return s.writer.terminalError()
}

// Done returns a channel that is closed when a delivery failure becomes
// terminal and the sink stops accepting work. Err reports the failure.
func (s *Sink) Done() <-chan struct{} {
	return s.writer.failedCh
}

// Close drains the sink: it stops accepting input, flushes the partial
// batch, delivers everything queued including in-flight retries, and stops
// the delivery loop. When ctx expires first, the in-flight attempt is
// canceled and undelivered batches are abandoned. Close returns the
// terminal delivery failure when the sink failed, the context error when
// the drain deadline expired, and nil otherwise.
func (s *Sink) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closeErr = s.drain(ctx)
		s.writer.transport.closeIdle()
	})
	return s.closeErr
}

func (s *Sink) drain(ctx context.Context) error {
	// The final flush can block on a full queue, so it runs aside while we
	// watch the deadline.
	flushCh := make(chan error, 1)
	go func() {
		flushCh <- s.acc.close(ctx)
	}()

	var flushErr error
	select {
	case flushErr = <-flushCh:
	case <-ctx.Done():
		s.writer.stop()
		flushErr = <-flushCh
	}

	close(s.writer.drainCh)

	select {
	case <-s.writer.doneCh:
	case <-ctx.Done():
		s.writer.stop()
		<-s.writer.doneCh
	}

	if err := s.writer.terminalError(); err != nil {
		return err
	}
	if flushErr != nil && !errors.Is(flushErr, ErrClosed) && !errors.Is(flushErr, context.Canceled) && !errors.Is(flushErr, context.DeadlineExceeded) {
		return flushErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("remote write sink drained", logging.F("url", s.cfg.RemoteWriteURL))
	return nil
}
