// Package receiver accepts Prometheus remote write over HTTP and feeds each
// decoded series into the delivery sink.
package receiver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/szibis/prwsink/internal/compression"
	"github.com/szibis/prwsink/internal/logging"
	"github.com/szibis/prwsink/internal/prw"
	"github.com/szibis/prwsink/internal/sink"
	tlspkg "github.com/szibis/prwsink/internal/tls"
)

// Offerer is the sink surface the receiver feeds. Offer blocks while the
// sink's delivery queue is full, which carries the backpressure through to
// the writing client.
type Offerer interface {
	Offer(ctx context.Context, ts prw.TimeSeries) error
}

// ServerConfig holds HTTP server settings for the listener.
type ServerConfig struct {
	// MaxRequestBodySize limits the request body size in bytes, before
	// decompression. Zero means no limit.
	MaxRequestBodySize int64
	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. Zero means no timeout.
	ReadTimeout time.Duration
	// ReadHeaderTimeout is the maximum duration for reading request headers.
	ReadHeaderTimeout time.Duration
	// WriteTimeout is the maximum duration before timing out response writes.
	WriteTimeout time.Duration
	// IdleTimeout is the maximum time to wait for the next request on a
	// kept-alive connection.
	IdleTimeout time.Duration
}

// Config holds the receiver configuration.
type Config struct {
	// Addr is the listen address.
	Addr string
	// Path is the URL path for receiving remote write data. If empty, both
	// /api/v1/write and /write are registered.
	Path string
	// TLS configuration for the listener.
	TLS tlspkg.ServerConfig
	// Server configuration for HTTP server settings.
	Server ServerConfig
	// Logger receives request handling logs. Defaults to the process logger.
	Logger *logging.Logger
	// Registerer receives receiver metrics. Defaults to the global registerer.
	Registerer prometheus.Registerer
}

// Receiver is the remote write HTTP listener in front of a sink.
type Receiver struct {
	server    *http.Server
	sink      Offerer
	addr      string
	tlsConfig *tls.Config
	maxBody   int64
	log       *logging.Logger
	metrics   *receiverMetrics
}

// New creates a receiver that feeds s. The server is not listening until
// Start.
func New(cfg Config, s Offerer) (*Receiver, error) {
	log := cfg.Logger
	if log == nil {
		log = logging.Default()
	}
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Receiver{
		sink:    s,
		addr:    cfg.Addr,
		maxBody: cfg.Server.MaxRequestBodySize,
		log:     log,
		metrics: newReceiverMetrics(reg),
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := tlspkg.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("receiver TLS: %w", err)
		}
		r.tlsConfig = tlsConfig
	}

	mux := http.NewServeMux()
	if cfg.Path != "" {
		mux.HandleFunc(cfg.Path, r.handleWrite)
	} else {
		mux.HandleFunc("/api/v1/write", r.handleWrite)
		mux.HandleFunc("/write", r.handleWrite)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})

	readHeaderTimeout := cfg.Server.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 1 * time.Minute
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := cfg.Server.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 1 * time.Minute
	}

	r.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		TLSConfig:         r.tlsConfig,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return r, nil
}

// Handler exposes the receiver's HTTP handler for tests and embedding.
func (r *Receiver) Handler() http.Handler {
	return r.server.Handler
}

func (r *Receiver) handleWrite(w http.ResponseWriter, req *http.Request) {
	r.metrics.requests.Inc()

	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if ct := req.Header.Get("Content-Type"); ct != "" && ct != "application/x-protobuf" {
		r.metrics.errors.WithLabelValues("decode").Inc()
		http.Error(w, "unsupported content type, expected application/x-protobuf", http.StatusUnsupportedMediaType)
		return
	}

	var bodyReader io.Reader = req.Body
	if r.maxBody > 0 {
		bodyReader = io.LimitReader(req.Body, r.maxBody)
	}
	body, err := io.ReadAll(bodyReader)
	if err != nil {
		r.metrics.errors.WithLabelValues("read").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if enc := req.Header.Get("Content-Encoding"); enc != "" {
		if t := compression.ParseContentEncoding(enc); t != compression.TypeNone {
			body, err = compression.Decompress(body, t)
			if err != nil {
				r.metrics.errors.WithLabelValues("decompress").Inc()
				r.log.Error("failed to decompress write request", logging.F(
					"encoding", enc,
					"error", err.Error(),
				))
				http.Error(w, "failed to decompress body", http.StatusBadRequest)
				return
			}
		}
	}

	writeReq, err := prw.UnmarshalWriteRequest(body)
	if err != nil {
		r.metrics.errors.WithLabelValues("decode").Inc()
		r.log.Error("failed to unmarshal write request", logging.F("error", err.Error()))
		http.Error(w, "failed to unmarshal protobuf", http.StatusBadRequest)
		return
	}

	// Remote write is not transactional: series offered before a failure
	// stay accepted.
	written := 0
	for _, ts := range writeReq.Timeseries {
		if err := r.sink.Offer(req.Context(), ts); err != nil {
			r.reject(w, err)
			return
		}
		written += len(ts.Samples)
	}
	r.metrics.samples.Add(float64(written))

	if written > 0 {
		w.Header().Set("X-Prometheus-Remote-Write-Samples-Written", strconv.Itoa(written))
	}
	w.WriteHeader(http.StatusNoContent)
}

// reject maps a sink error to a response status.
func (r *Receiver) reject(w http.ResponseWriter, err error) {
	var oversized *sink.OversizedRecordError
	switch {
	case errors.As(err, &oversized):
		r.metrics.errors.WithLabelValues("oversized").Inc()
		http.Error(w, oversized.Error(), http.StatusBadRequest)
	case errors.Is(err, sink.ErrClosed):
		http.Error(w, "sink is shutting down", http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// The client went away while blocked on backpressure.
		http.Error(w, "request canceled", http.StatusServiceUnavailable)
	default:
		r.metrics.errors.WithLabelValues("sink").Inc()
		r.log.Error("sink rejected write request", logging.F("error", err.Error()))
		http.Error(w, "delivery sink unavailable", http.StatusServiceUnavailable)
	}
}

// Start starts the HTTP server and blocks until it stops.
func (r *Receiver) Start() error {
	r.log.Info("remote write receiver started", logging.F(
		"addr", r.addr,
		"tls", r.tlsConfig != nil,
	))
	if r.tlsConfig != nil {
		// Certificates are already loaded into the server's TLSConfig.
		return r.server.ListenAndServeTLS("", "")
	}
	return r.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server.
func (r *Receiver) Stop(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// HealthCheck returns nil if the receiver port is accepting connections.
func (r *Receiver) HealthCheck() error {
	conn, err := net.DialTimeout("tcp", r.addr, 1*time.Second)
	if err != nil {
		return fmt.Errorf("receiver not reachable on %s: %w", r.addr, err)
	}
	conn.Close()
	return nil
}
