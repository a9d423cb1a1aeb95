package sink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/szibis/prwsink/internal/compression"
	"github.com/szibis/prwsink/internal/logging"
	"github.com/szibis/prwsink/internal/prw"
	"github.com/szibis/prwsink/internal/signer"
)

// errStopped aborts delivery when the sink is stopped past its drain
// deadline. It is not a delivery failure.
var errStopped = errors.New("sink stopped during delivery")

// writer is the single delivery loop. Exactly one batch is in flight at any
// time and the next is not dequeued until the current one reaches a
// terminal outcome. This is what preserves inter-batch ordering.
type writer struct {
	cfg       Config
	transport *transport
	signer    signer.Signer
	log       *logging.Logger
	metrics   *sinkMetrics

	ctx    context.Context
	cancel context.CancelFunc

	sendCh   chan *batch
	drainCh  chan struct{} // closed by the sink: deliver what is queued, then exit
	stopCh   chan struct{} // closed by the sink: abandon everything now
	doneCh   chan struct{} // closed by run on exit
	failedCh chan struct{} // closed by fail, after the failure is stored

	stopOnce sync.Once
	failure  atomic.Value
}

func newWriter(cfg Config, tr *transport, m *sinkMetrics) *writer {
	ctx, cancel := context.WithCancel(context.Background())
	return &writer{
		cfg:       cfg,
		transport: tr,
		signer:    cfg.Signer,
		log:       cfg.Logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
		sendCh:    make(chan *batch, cfg.MaxBufferedRequests),
		drainCh:   make(chan struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		failedCh:  make(chan struct{}),
	}
}

// enqueue hands one batch to the delivery loop, blocking while the queue is
// at capacity. This block is the backpressure the sink applies upstream.
func (w *writer) enqueue(ctx context.Context, b *batch) error {
	if err := w.terminalError(); err != nil {
		return err
	}
	select {
	case w.sendCh <- b:
		w.metrics.bufferedRequests.Inc()
		return nil
	case <-w.failedCh:
		return w.terminalError()
	case <-w.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminalError returns the failure that stopped the sink, if any.
func (w *writer) terminalError() error {
	select {
	case <-w.failedCh:
		return w.failure.Load().(error)
	default:
		return nil
	}
}

// fail records the terminal failure. Producers observe it through
// terminalError and unblock through failedCh.
func (w *writer) fail(err error) {
	w.failure.Store(err)
	close(w.failedCh)
	w.metrics.terminalFailures.Inc()
}

// stop aborts delivery immediately: the in-flight request is canceled,
// backoff is cut short, and queued batches are abandoned.
func (w *writer) stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.cancel()
	})
}

// run progresses the delivery loop until drained, stopped, or terminally
// failed.
func (w *writer) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case b := <-w.sendCh:
			w.metrics.bufferedRequests.Dec()
			if !w.handle(b) {
				return
			}
		case <-w.drainCh:
			for {
				select {
				case b := <-w.sendCh:
					w.metrics.bufferedRequests.Dec()
					if !w.handle(b) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// handle delivers one batch and reports whether the loop should continue.
func (w *writer) handle(b *batch) bool {
	err := w.deliver(b)
	if err == nil {
		return true
	}
	if errors.Is(err, errStopped) {
		return false
	}
	w.fail(err)
	return false
}

// deliver drives one batch to its terminal outcome: delivered, discarded by
// policy, or a terminal error that fails the sink.
func (w *writer) deliver(b *batch) error {
	req := prw.WriteRequest{Timeseries: b.series}
	raw, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("marshal batch %s: %w", b.id, err)
	}
	body, err := compression.Compress(raw, w.cfg.Compression)
	if err != nil {
		return fmt.Errorf("compress batch %s: %w", b.id, err)
	}

	attempt := 0
	for {
		select {
		case <-w.stopCh:
			return errStopped
		default:
		}
		attempt++

		outcome, err := w.attempt(body)
		if err != nil {
			// Signing failures are structural and never retried.
			return err
		}

		if outcome.Success() {
			w.metrics.requestsOut.Inc()
			w.metrics.samplesOut.Add(float64(b.samples))
			return nil
		}

		kind := classifyOutcome(outcome)
		if kind == KindNonRetriableRemote {
			return w.resolve(b, kind, outcome, attempt)
		}

		// Retriable, but only while budget remains.
		if attempt > w.cfg.Retry.MaxRetryCount {
			if kind == KindRetriableRemote {
				kind = KindRetryBudgetExhausted
			}
			return w.resolve(b, kind, outcome, attempt)
		}

		delay := w.cfg.Retry.Delay(attempt)
		w.metrics.retries.Inc()
		w.log.Warn("retrying remote write", retryFields(b, attempt, delay, outcome))
		if !w.sleep(delay) {
			return errStopped
		}
	}
}

// attempt signs and sends the batch body once. The signer runs on every
// attempt because signatures may be time bound.
func (w *writer) attempt(body []byte) (Outcome, error) {
	hdr, err := w.signer.Sign(w.ctx, &signer.Request{
		Method: http.MethodPost,
		URL:    w.transport.url,
		Body:   body,
	})
	if err != nil {
		return Outcome{}, &SignerError{Err: err}
	}

	outcome := w.transport.send(w.ctx, body, hdr)
	w.metrics.requestDuration.WithLabelValues(outcomeLabel(outcome)).Observe(outcome.Duration.Seconds())
	return outcome, nil
}

// resolve applies the configured behavior to a terminal delivery error:
// discard the batch and continue, or fail the sink.
func (w *writer) resolve(b *batch, kind ErrorKind, o Outcome, attempts int) error {
	derr := &DeliveryError{
		BatchID:    b.id,
		Kind:       kind,
		StatusCode: o.StatusCode,
		Attempts:   attempts,
		Samples:    b.samples,
		Message:    o.Body,
		Err:        o.Err,
	}

	if w.cfg.ErrorHandling.For(kind) == DiscardAndContinue {
		w.metrics.observeDrop(kind, b.samples)
		w.log.Warn("dropping undeliverable batch", logging.F(
			"batch", b.id,
			"kind", string(kind),
			"attempts", attempts,
			"samples", b.samples,
			"status", o.StatusCode,
		))
		return nil
	}

	w.log.Error("remote write failed terminally", logging.F(
		"batch", b.id,
		"kind", string(kind),
		"attempts", attempts,
		"samples", b.samples,
		"status", o.StatusCode,
	))
	return derr
}

// sleep waits out a backoff delay, returning false when stopped meanwhile.
func (w *writer) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-w.stopCh:
		return false
	}
}

func retryFields(b *batch, attempt int, delay time.Duration, o Outcome) map[string]interface{} {
	fields := logging.F(
		"batch", b.id,
		"attempt", attempt,
		"delay", delay.String(),
	)
	if o.Err != nil {
		fields["error"] = o.Err.Error()
	} else {
		fields["status"] = o.StatusCode
	}
	return fields
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Success():
		return outcomeSuccess
	case o.IOFailure():
		return outcomeIOError
	default:
		return outcomeHTTPError
	}
}
