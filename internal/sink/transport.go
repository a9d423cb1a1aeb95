package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	tlspkg "github.com/szibis/prwsink/internal/tls"
)

// remoteWriteVersion is the protocol version header for remote write 1.0.
const remoteWriteVersion = "0.1.0"

// maxErrorBodyBytes caps how much of an error response body is kept for
// error messages and logs.
const maxErrorBodyBytes = 1024

// Outcome is the result of one delivery attempt: a well-formed remote
// response with any status, or an I/O failure before a response was
// obtained. The transport never interprets status codes beyond the 2xx
// check; classification is the writer's job.
type Outcome struct {
	// StatusCode is the remote response status, zero when Err is set.
	StatusCode int
	// Body is a bounded excerpt of a non-2xx response body.
	Body string
	// Err is the transport failure, nil when a response was received.
	Err error
	// Duration is the attempt round trip time.
	Duration time.Duration
}

// Success reports whether the attempt got a 2xx response.
func (o Outcome) Success() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 300
}

// IOFailure reports whether the attempt failed before a response was
// obtained.
func (o Outcome) IOFailure() bool {
	return o.Err != nil
}

// transport executes single delivery attempts against the remote write
// endpoint.
type transport struct {
	client    *http.Client
	url       string
	userAgent string
	encoding  string
}

func newTransport(cfg Config) (*transport, error) {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := tlspkg.NewClientTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		tr.TLSClientConfig = tlsConfig
	} else {
		tr.TLSClientConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	if h2, err := http2.ConfigureTransports(tr); err == nil && h2 != nil {
		h2.ReadIdleTimeout = 30 * time.Second
	}

	return &transport{
		client: &http.Client{
			Transport: tr,
			Timeout:   cfg.SocketTimeout,
		},
		url:       cfg.RemoteWriteURL,
		userAgent: cfg.UserAgent,
		encoding:  cfg.Compression.ContentEncoding(),
	}, nil
}

// send performs one POST of the compressed body with the signed headers
// merged in. The client timeout bounds the whole attempt.
func (t *transport) send(ctx context.Context, body []byte, signed http.Header) Outcome {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: fmt.Errorf("build request: %w", err), Duration: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", t.encoding)
	req.Header.Set("X-Prometheus-Remote-Write-Version", remoteWriteVersion)
	req.Header.Set("User-Agent", t.userAgent)
	for k, vs := range signed {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return Outcome{Err: err, Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	var excerpt string
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		excerpt = strings.TrimSpace(string(b))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	return Outcome{StatusCode: resp.StatusCode, Body: excerpt, Duration: time.Since(start)}
}

func (t *transport) closeIdle() {
	t.client.CloseIdleConnections()
}
