// Package signer provides pluggable request signing for remote write delivery.
//
// A Signer computes the authentication headers for one outgoing request.
// Signatures may be time bound, so the delivery path calls Sign once per
// attempt and never reuses a header set across attempts.
package signer

import (
	"context"
	"encoding/base64"
	"net/http"
)

// Request describes one outgoing remote write request to be signed.
type Request struct {
	// Method is the HTTP method, always POST for remote write.
	Method string
	// URL is the full remote write endpoint URL.
	URL string
	// Body is the request body after compression, as it goes on the wire.
	// Content-hash based schemes sign over these bytes.
	Body []byte
}

// Signer computes authentication headers for one delivery attempt.
type Signer interface {
	// Sign returns headers to merge into the outgoing request. A nil header
	// map means unauthenticated delivery. Errors are structural (missing
	// credentials, misconfiguration) and are not retried by callers.
	Sign(ctx context.Context, req *Request) (http.Header, error)
}

// NoOp is the default signer: unauthenticated delivery.
type NoOp struct{}

// Sign returns no headers.
func (NoOp) Sign(context.Context, *Request) (http.Header, error) {
	return nil, nil
}

// StaticConfig holds static authentication settings.
type StaticConfig struct {
	// BearerToken is sent as "Authorization: Bearer <token>".
	BearerToken string
	// BasicAuthUsername is the username for basic authentication.
	BasicAuthUsername string
	// BasicAuthPassword is the password for basic authentication.
	BasicAuthPassword string
	// Headers is a map of custom headers to send with requests.
	Headers map[string]string
}

// Static signs requests with fixed credentials or headers.
type Static struct {
	cfg StaticConfig
}

// NewStatic returns a signer that attaches the configured static headers.
func NewStatic(cfg StaticConfig) *Static {
	return &Static{cfg: cfg}
}

// Sign returns the configured headers. It never fails.
func (s *Static) Sign(_ context.Context, _ *Request) (http.Header, error) {
	h := make(http.Header)

	if s.cfg.BearerToken != "" {
		h.Set("Authorization", "Bearer "+s.cfg.BearerToken)
	}

	if s.cfg.BasicAuthUsername != "" && s.cfg.BasicAuthPassword != "" {
		h.Set("Authorization", "Basic "+basicAuthEncoded(s.cfg.BasicAuthUsername, s.cfg.BasicAuthPassword))
	}

	for k, v := range s.cfg.Headers {
		h.Set(k, v)
	}

	return h, nil
}

// basicAuthEncoded returns the base64 encoded basic auth string.
func basicAuthEncoded(username, password string) string {
	auth := username + ":" + password
	return base64.StdEncoding.EncodeToString([]byte(auth))
}
