package sink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/szibis/prwsink/internal/compression"
	"github.com/szibis/prwsink/internal/logging"
	"github.com/szibis/prwsink/internal/signer"
	tlspkg "github.com/szibis/prwsink/internal/tls"
)

// Defaults applied by New for unset optional fields.
const (
	DefaultMaxBatchSizeInSamples = 500
	DefaultMaxBufferedRequests   = 1000
	DefaultMaxTimeInBuffer       = 5 * time.Second
	DefaultSocketTimeout         = 5 * time.Second
	DefaultUserAgent             = "prwsink/0.1.0"
	DefaultMetricGroupName       = "Prometheus"
)

// Config configures a Sink. RemoteWriteURL is the only field without a
// working default.
type Config struct {
	// RemoteWriteURL is the full remote write endpoint URL. Required.
	RemoteWriteURL string

	// Retry bounds per-batch delivery retries. The zero value is replaced
	// by DefaultRetryConfig; to disable retries set MaxRetryCount to zero
	// alongside a nonzero delay.
	Retry RetryConfig

	// MaxBatchSizeInSamples caps the samples accumulated into one write
	// request.
	MaxBatchSizeInSamples int

	// MaxRecordSizeInSamples caps the samples in a single offered record.
	// Defaults to MaxBatchSizeInSamples and must not exceed it.
	MaxRecordSizeInSamples int

	// MaxBufferedRequests caps the batches queued for delivery. Producers
	// block once the queue is full.
	MaxBufferedRequests int

	// MaxTimeInBuffer flushes a non-empty batch this long after its first
	// record was accepted.
	MaxTimeInBuffer time.Duration

	// SocketTimeout bounds one delivery attempt end to end.
	SocketTimeout time.Duration

	// UserAgent is sent with every outgoing request.
	UserAgent string

	// Signer authenticates outgoing requests. Defaults to signer.NoOp,
	// meaning unauthenticated delivery.
	Signer signer.Signer

	// ErrorHandling decides discard versus fail per terminal error kind.
	// The zero value fails on every kind.
	ErrorHandling ErrorHandlingConfig

	// MetricGroupName becomes the group label on all sink metrics. Must be
	// unique per Registerer when several sinks share one.
	MetricGroupName string

	// Compression selects the wire compression. Defaults to snappy.
	Compression compression.Type

	// TLS configures the outbound client for https endpoints.
	TLS tlspkg.ClientConfig

	// Logger receives delivery logs. Defaults to the process logger.
	Logger *logging.Logger

	// Registerer receives sink metrics. Defaults to a private registry, so
	// metrics are kept but exposed nowhere.
	Registerer prometheus.Registerer
}

// withDefaults returns a copy with unset optional fields filled in.
func (c Config) withDefaults() Config {
	if c.Retry == (RetryConfig{}) {
		c.Retry = DefaultRetryConfig()
	}
	if c.MaxBatchSizeInSamples == 0 {
		c.MaxBatchSizeInSamples = DefaultMaxBatchSizeInSamples
	}
	if c.MaxRecordSizeInSamples == 0 {
		c.MaxRecordSizeInSamples = c.MaxBatchSizeInSamples
	}
	if c.MaxBufferedRequests == 0 {
		c.MaxBufferedRequests = DefaultMaxBufferedRequests
	}
	if c.MaxTimeInBuffer == 0 {
		c.MaxTimeInBuffer = DefaultMaxTimeInBuffer
	}
	if c.SocketTimeout == 0 {
		c.SocketTimeout = DefaultSocketTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Signer == nil {
		c.Signer = signer.NoOp{}
	}
	if c.MetricGroupName == "" {
		c.MetricGroupName = DefaultMetricGroupName
	}
	if c.Compression == "" {
		c.Compression = compression.TypeSnappy
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	return c
}

// Validate checks the configuration. New never returns a partial sink from
// an invalid configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RemoteWriteURL) == "" {
		return errors.New("remote write URL is required")
	}
	u, err := url.Parse(c.RemoteWriteURL)
	if err != nil {
		return fmt.Errorf("malformed remote write URL %q: %w", c.RemoteWriteURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("remote write URL %q must use http or https", c.RemoteWriteURL)
	}
	if u.Host == "" {
		return fmt.Errorf("remote write URL %q has no host", c.RemoteWriteURL)
	}
	if c.MaxBatchSizeInSamples <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSizeInSamples)
	}
	if c.MaxRecordSizeInSamples <= 0 {
		return fmt.Errorf("max record size must be positive, got %d", c.MaxRecordSizeInSamples)
	}
	if c.MaxRecordSizeInSamples > c.MaxBatchSizeInSamples {
		return fmt.Errorf("max record size %d exceeds max batch size %d",
			c.MaxRecordSizeInSamples, c.MaxBatchSizeInSamples)
	}
	if c.MaxBufferedRequests <= 0 {
		return fmt.Errorf("max buffered requests must be positive, got %d", c.MaxBufferedRequests)
	}
	if c.MaxTimeInBuffer < 0 {
		return fmt.Errorf("max time in buffer must not be negative, got %s", c.MaxTimeInBuffer)
	}
	if c.SocketTimeout < 0 {
		return fmt.Errorf("socket timeout must not be negative, got %s", c.SocketTimeout)
	}
	if err := c.Retry.validate(); err != nil {
		return fmt.Errorf("retry configuration: %w", err)
	}
	return nil
}
