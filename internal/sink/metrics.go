package sink

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels on the request duration histogram.
const (
	outcomeSuccess   = "success"
	outcomeHTTPError = "http_error"
	outcomeIOError   = "io_error"
)

// sinkMetrics is the per-sink instrumentation, registered on the injected
// registerer with the metric group as a constant label.
type sinkMetrics struct {
	samplesOut       prometheus.Counter
	requestsOut      prometheus.Counter
	retries          prometheus.Counter
	samplesDropped   *prometheus.CounterVec
	requestsDropped  *prometheus.CounterVec
	oversizedRecords prometheus.Counter
	terminalFailures prometheus.Counter
	bufferedRequests prometheus.Gauge
	openBatchSamples prometheus.Gauge
	distinctSeries   prometheus.Gauge
	requestDuration  *prometheus.HistogramVec
}

func newSinkMetrics(reg prometheus.Registerer, group string) *sinkMetrics {
	constLabels := prometheus.Labels{"group": group}

	m := &sinkMetrics{
		samplesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "prwsink_samples_out_total",
			Help:        "Total number of samples delivered to the remote write endpoint",
			ConstLabels: constLabels,
		}),
		requestsOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "prwsink_write_requests_out_total",
			Help:        "Total number of write requests delivered to the remote write endpoint",
			ConstLabels: constLabels,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "prwsink_write_request_retries_total",
			Help:        "Total number of write request retry attempts",
			ConstLabels: constLabels,
		}),
		samplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "prwsink_samples_dropped_total",
			Help:        "Total number of samples dropped by terminal error kind",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		requestsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "prwsink_write_requests_dropped_total",
			Help:        "Total number of write requests dropped by terminal error kind",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		oversizedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "prwsink_oversized_records_total",
			Help:        "Total number of records rejected for exceeding the record sample limit",
			ConstLabels: constLabels,
		}),
		terminalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "prwsink_terminal_failures_total",
			Help:        "Total number of terminal delivery failures that stopped the sink",
			ConstLabels: constLabels,
		}),
		bufferedRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "prwsink_buffered_write_requests",
			Help:        "Number of write requests queued for delivery",
			ConstLabels: constLabels,
		}),
		openBatchSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "prwsink_open_batch_samples",
			Help:        "Number of samples accumulated in the open batch",
			ConstLabels: constLabels,
		}),
		distinctSeries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "prwsink_distinct_series",
			Help:        "Estimated number of distinct series offered to the sink",
			ConstLabels: constLabels,
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "prwsink_write_request_duration_seconds",
			Help:        "Duration of write request attempts by outcome",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.samplesOut,
		m.requestsOut,
		m.retries,
		m.samplesDropped,
		m.requestsDropped,
		m.oversizedRecords,
		m.terminalFailures,
		m.bufferedRequests,
		m.openBatchSamples,
		m.distinctSeries,
		m.requestDuration,
	)

	// Initialize everything with 0 so all series appear in /metrics
	// immediately.
	m.samplesOut.Add(0)
	m.requestsOut.Add(0)
	m.retries.Add(0)
	m.oversizedRecords.Add(0)
	m.terminalFailures.Add(0)
	for _, kind := range []ErrorKind{KindRetryBudgetExhausted, KindTransportIO, KindNonRetriableRemote} {
		m.samplesDropped.WithLabelValues(string(kind)).Add(0)
		m.requestsDropped.WithLabelValues(string(kind)).Add(0)
	}
	for _, outcome := range []string{outcomeSuccess, outcomeHTTPError, outcomeIOError} {
		m.requestDuration.WithLabelValues(outcome)
	}

	return m
}

// observeDrop records one discarded batch and its samples.
func (m *sinkMetrics) observeDrop(kind ErrorKind, samples int) {
	m.requestsDropped.WithLabelValues(string(kind)).Inc()
	m.samplesDropped.WithLabelValues(string(kind)).Add(float64(samples))
}
