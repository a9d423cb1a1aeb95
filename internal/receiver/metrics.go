package receiver

import "github.com/prometheus/client_golang/prometheus"

type receiverMetrics struct {
	requests prometheus.Counter
	errors   *prometheus.CounterVec
	samples  prometheus.Counter
}

func newReceiverMetrics(reg prometheus.Registerer) *receiverMetrics {
	m := &receiverMetrics{
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prwsink_receiver_requests_total",
			Help: "Total number of write requests received",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "prwsink_receiver_errors_total",
			Help: "Total number of receive failures by type",
		}, []string{"type"}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "prwsink_receiver_samples_in_total",
			Help: "Total number of samples accepted from write requests",
		}),
	}

	reg.MustRegister(m.requests, m.errors, m.samples)

	// Initialize everything with 0 so all series appear in /metrics
	// immediately.
	m.requests.Add(0)
	m.samples.Add(0)
	for _, t := range []string{"read", "decompress", "decode", "oversized", "sink"} {
		m.errors.WithLabelValues(t).Add(0)
	}

	return m
}
