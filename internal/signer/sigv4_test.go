package signer

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestSigV4(t *testing.T) *SigV4 {
	t.Helper()
	s, err := NewSigV4(context.Background(), SigV4Config{
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	})
	if err != nil {
		t.Fatalf("NewSigV4() error = %v", err)
	}
	s.now = func() time.Time {
		return time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	}
	return s
}

func TestSigV4RequiresRegion(t *testing.T) {
	_, err := NewSigV4(context.Background(), SigV4Config{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "key"})
	if err == nil {
		t.Fatal("NewSigV4() without region expected error")
	}
}

func TestSigV4DefaultsToAPSService(t *testing.T) {
	s := newTestSigV4(t)
	h, err := s.Sign(context.Background(), &Request{
		Method: "POST",
		URL:    "https://aps-workspaces.us-east-1.amazonaws.com/workspaces/ws-1/api/v1/remote_write",
		Body:   []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	auth := h.Get("Authorization")
	if !strings.Contains(auth, "/us-east-1/aps/aws4_request") {
		t.Errorf("Authorization credential scope = %q, want aps service", auth)
	}
}

func TestSigV4SignedHeaders(t *testing.T) {
	s := newTestSigV4(t)
	h, err := s.Sign(context.Background(), &Request{
		Method: "POST",
		URL:    "https://aps-workspaces.us-east-1.amazonaws.com/workspaces/ws-1/api/v1/remote_write",
		Body:   []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	auth := h.Get("Authorization")
	if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 ") {
		t.Errorf("Authorization = %q, want AWS4-HMAC-SHA256 scheme", auth)
	}
	if !strings.Contains(auth, "Credential=AKIDEXAMPLE/20240115/us-east-1/aps/aws4_request") {
		t.Errorf("Authorization = %q, want credential scope for fixed date", auth)
	}
	if !strings.Contains(auth, "SignedHeaders=") || !strings.Contains(auth, "x-amz-content-sha256") {
		t.Errorf("Authorization = %q, want x-amz-content-sha256 in signed headers", auth)
	}
	if !strings.Contains(auth, "Signature=") {
		t.Errorf("Authorization = %q, want signature", auth)
	}

	if got := h.Get("X-Amz-Date"); got != "20240115T103000Z" {
		t.Errorf("X-Amz-Date = %q, want 20240115T103000Z", got)
	}
	if h.Get("X-Amz-Content-Sha256") == "" {
		t.Error("X-Amz-Content-Sha256 header missing")
	}
}

func TestSigV4SessionTokenHeader(t *testing.T) {
	s, err := NewSigV4(context.Background(), SigV4Config{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		SessionToken:    "session-token",
	})
	if err != nil {
		t.Fatalf("NewSigV4() error = %v", err)
	}
	h, err := s.Sign(context.Background(), &Request{
		Method: "POST",
		URL:    "https://aps-workspaces.eu-west-1.amazonaws.com/workspaces/ws-1/api/v1/remote_write",
		Body:   []byte("payload"),
	})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if got := h.Get("X-Amz-Security-Token"); got != "session-token" {
		t.Errorf("X-Amz-Security-Token = %q, want session token", got)
	}
}

func TestSigV4SignatureChangesWithBody(t *testing.T) {
	s := newTestSigV4(t)
	url := "https://aps-workspaces.us-east-1.amazonaws.com/workspaces/ws-1/api/v1/remote_write"

	h1, err := s.Sign(context.Background(), &Request{Method: "POST", URL: url, Body: []byte("one")})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	h2, err := s.Sign(context.Background(), &Request{Method: "POST", URL: url, Body: []byte("two")})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if h1.Get("Authorization") == h2.Get("Authorization") {
		t.Error("signatures for different bodies should differ")
	}
	if h1.Get("X-Amz-Content-Sha256") == h2.Get("X-Amz-Content-Sha256") {
		t.Error("payload hashes for different bodies should differ")
	}
}

func TestSigV4ResignsPerAttempt(t *testing.T) {
	s := newTestSigV4(t)
	url := "https://aps-workspaces.us-east-1.amazonaws.com/workspaces/ws-1/api/v1/remote_write"
	body := []byte("payload")

	times := []time.Time{
		time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 31, 0, 0, time.UTC),
	}
	i := 0
	s.now = func() time.Time {
		ts := times[i]
		i++
		return ts
	}

	h1, err := s.Sign(context.Background(), &Request{Method: "POST", URL: url, Body: body})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	h2, err := s.Sign(context.Background(), &Request{Method: "POST", URL: url, Body: body})
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if h1.Get("X-Amz-Date") == h2.Get("X-Amz-Date") {
		t.Error("re-signing at a later time should produce a new X-Amz-Date")
	}
	if h1.Get("Authorization") == h2.Get("Authorization") {
		t.Error("re-signing at a later time should produce a new signature")
	}
}
