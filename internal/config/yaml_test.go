package config

import (
	"os"
	"testing"
	"time"
)

func TestParseYAMLMinimal(t *testing.T) {
	yaml := `
remote_write:
  url: "http://localhost:9090/api/v1/write"
`
	cfg, err := ParseYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("failed to parse yaml: %v", err)
	}

	// Verify defaults applied
	if cfg.Receiver.Listen != ":9201" {
		t.Errorf("expected default listen ':9201', got %s", cfg.Receiver.Listen)
	}
	if cfg.Batch.MaxBatchSizeInSamples != 500 {
		t.Errorf("expected default batch size 500, got %d", cfg.Batch.MaxBatchSizeInSamples)
	}
	if cfg.RemoteWrite.Compression != "snappy" {
		t.Errorf("expected default compression 'snappy', got %s", cfg.RemoteWrite.Compression)
	}

	// Verify override applied
	if cfg.RemoteWrite.URL != "http://localhost:9090/api/v1/write" {
		t.Errorf("expected url override, got %s", cfg.RemoteWrite.URL)
	}
}

func TestParseYAMLFull(t *testing.T) {
	yaml := `
receiver:
  listen: ":8201"
  path: "/push"
  tls:
    enabled: true
    cert_file: "/etc/tls/server.crt"
    key_file: "/etc/tls/server.key"
    ca_file: "/etc/tls/ca.crt"
    client_auth: true
  server:
    max_request_body_size: 10Mi
    read_timeout: "30s"
    read_header_timeout: "2m"
    write_timeout: "1m"
    idle_timeout: "2m"

remote_write:
  url: "https://mimir.example.com/api/v1/push"
  socket_timeout: "10s"
  user_agent: "custom-agent/1.0"
  compression: "zstd"
  tls:
    enabled: true
    cert_file: "/etc/tls/client.crt"
    key_file: "/etc/tls/client.key"
    ca_file: "/etc/tls/ca.crt"
    skip_verify: true
    server_name: "mimir.internal"
  auth:
    bearer_token: "remote-token"
    basic_username: "user"
    basic_password: "pass"
    headers:
      X-Scope-OrgID: "tenant-1"
  sigv4:
    enabled: true
    region: "eu-west-1"
    access_key_id: "AKIAEXAMPLE"
    secret_access_key: "secret"

batch:
  max_batch_size_in_samples: 2000
  max_record_size_in_samples: 200
  max_buffered_requests: 5000
  max_time_in_buffer: "10s"

retry:
  initial_delay: "50ms"
  max_delay: "30s"
  max_count: 10

error_handling:
  on_max_retry_exceeded: "discard_and_continue"
  on_http_client_io_fail: "discard_and_continue"
  on_non_retriable_error: "fail"

metrics:
  address: ":8080"
  group_name: "Mimir"

telemetry:
  endpoint: "collector:4317"
  protocol: "http"
  insecure: false
  push_interval: "1m"
  compression: "gzip"
  headers:
    X-Auth: "telemetry-token"

shutdown:
  drain_timeout: "1m"
`
	cfg, err := ParseYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("failed to parse yaml: %v", err)
	}

	if cfg.Receiver.Listen != ":8201" {
		t.Errorf("expected listen ':8201', got %s", cfg.Receiver.Listen)
	}
	if cfg.Receiver.Path != "/push" {
		t.Errorf("expected path '/push', got %s", cfg.Receiver.Path)
	}
	if !cfg.Receiver.TLS.Enabled || !cfg.Receiver.TLS.ClientAuth {
		t.Error("expected receiver TLS with client auth")
	}
	if cfg.Receiver.Server.MaxRequestBodySize != 10*1048576 {
		t.Errorf("expected max body 10Mi, got %d", cfg.Receiver.Server.MaxRequestBodySize)
	}
	if cfg.Receiver.Server.ReadTimeout != Duration(30*time.Second) {
		t.Errorf("expected read timeout 30s, got %v", time.Duration(cfg.Receiver.Server.ReadTimeout))
	}
	if cfg.Receiver.Server.ReadHeaderTimeout != Duration(2*time.Minute) {
		t.Errorf("expected read header timeout 2m, got %v", time.Duration(cfg.Receiver.Server.ReadHeaderTimeout))
	}

	if cfg.RemoteWrite.URL != "https://mimir.example.com/api/v1/push" {
		t.Errorf("unexpected url: %s", cfg.RemoteWrite.URL)
	}
	if cfg.RemoteWrite.SocketTimeout != Duration(10*time.Second) {
		t.Errorf("expected socket timeout 10s, got %v", time.Duration(cfg.RemoteWrite.SocketTimeout))
	}
	if cfg.RemoteWrite.UserAgent != "custom-agent/1.0" {
		t.Errorf("unexpected user agent: %s", cfg.RemoteWrite.UserAgent)
	}
	if cfg.RemoteWrite.Compression != "zstd" {
		t.Errorf("expected compression 'zstd', got %s", cfg.RemoteWrite.Compression)
	}
	if !cfg.RemoteWrite.TLS.SkipVerify || cfg.RemoteWrite.TLS.ServerName != "mimir.internal" {
		t.Errorf("TLS client settings not parsed: %+v", cfg.RemoteWrite.TLS)
	}
	if cfg.RemoteWrite.Auth.BearerToken != "remote-token" {
		t.Errorf("unexpected bearer token: %s", cfg.RemoteWrite.Auth.BearerToken)
	}
	if cfg.RemoteWrite.Auth.Headers["X-Scope-OrgID"] != "tenant-1" {
		t.Errorf("headers not parsed: %v", cfg.RemoteWrite.Auth.Headers)
	}
	if !cfg.RemoteWrite.SigV4.Enabled || cfg.RemoteWrite.SigV4.Region != "eu-west-1" {
		t.Errorf("sigv4 not parsed: %+v", cfg.RemoteWrite.SigV4)
	}
	if cfg.RemoteWrite.SigV4.Service != "aps" {
		t.Errorf("expected default sigv4 service 'aps', got %s", cfg.RemoteWrite.SigV4.Service)
	}

	if cfg.Batch.MaxBatchSizeInSamples != 2000 {
		t.Errorf("expected batch size 2000, got %d", cfg.Batch.MaxBatchSizeInSamples)
	}
	if cfg.Batch.MaxRecordSizeInSamples != 200 {
		t.Errorf("expected record size 200, got %d", cfg.Batch.MaxRecordSizeInSamples)
	}
	if cfg.Batch.MaxBufferedRequests != 5000 {
		t.Errorf("expected buffered requests 5000, got %d", cfg.Batch.MaxBufferedRequests)
	}
	if cfg.Batch.MaxTimeInBuffer != Duration(10*time.Second) {
		t.Errorf("expected max time in buffer 10s, got %v", time.Duration(cfg.Batch.MaxTimeInBuffer))
	}

	if cfg.Retry.InitialDelay != Duration(50*time.Millisecond) {
		t.Errorf("expected initial delay 50ms, got %v", time.Duration(cfg.Retry.InitialDelay))
	}
	if cfg.Retry.MaxDelay != Duration(30*time.Second) {
		t.Errorf("expected max delay 30s, got %v", time.Duration(cfg.Retry.MaxDelay))
	}
	if *cfg.Retry.MaxCount != 10 {
		t.Errorf("expected max count 10, got %d", *cfg.Retry.MaxCount)
	}

	if cfg.ErrorHandling.OnMaxRetryExceeded != "discard_and_continue" {
		t.Errorf("unexpected on_max_retry_exceeded: %s", cfg.ErrorHandling.OnMaxRetryExceeded)
	}
	if cfg.ErrorHandling.OnNonRetriableError != "fail" {
		t.Errorf("unexpected on_non_retriable_error: %s", cfg.ErrorHandling.OnNonRetriableError)
	}

	if cfg.Metrics.Address != ":8080" || cfg.Metrics.GroupName != "Mimir" {
		t.Errorf("metrics settings not parsed: %+v", cfg.Metrics)
	}

	if cfg.Telemetry.Endpoint != "collector:4317" || cfg.Telemetry.Protocol != "http" {
		t.Errorf("telemetry settings not parsed: %+v", cfg.Telemetry)
	}
	if *cfg.Telemetry.Insecure != false {
		t.Error("expected telemetry insecure false")
	}
	if cfg.Telemetry.PushInterval != Duration(time.Minute) {
		t.Errorf("expected push interval 1m, got %v", time.Duration(cfg.Telemetry.PushInterval))
	}

	if cfg.Shutdown.DrainTimeout != Duration(time.Minute) {
		t.Errorf("expected drain timeout 1m, got %v", time.Duration(cfg.Shutdown.DrainTimeout))
	}
}

func TestParseYAMLZeroRetryCount(t *testing.T) {
	yaml := `
retry:
  max_count: 0
`
	cfg, err := ParseYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("failed to parse yaml: %v", err)
	}

	// An explicit zero survives defaulting: one attempt, no retries.
	if cfg.Retry.MaxCount == nil || *cfg.Retry.MaxCount != 0 {
		t.Errorf("expected explicit max_count 0, got %v", cfg.Retry.MaxCount)
	}
	if cfg.ToConfig().MaxRetryCount != 0 {
		t.Errorf("expected MaxRetryCount 0 after conversion, got %d", cfg.ToConfig().MaxRetryCount)
	}
}

func TestParseYAMLInvalid(t *testing.T) {
	if _, err := ParseYAML([]byte("{invalid yaml")); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestParseYAMLInvalidDuration(t *testing.T) {
	yaml := `
batch:
  max_time_in_buffer: "not-a-duration"
`
	if _, err := ParseYAML([]byte(yaml)); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestYAMLConfigToConfig(t *testing.T) {
	yaml := `
receiver:
  listen: ":8201"
remote_write:
  url: "http://remote:9090/api/v1/write"
  compression: "zstd"
  auth:
    headers:
      X-B: "2"
      X-A: "1"
batch:
  max_batch_size_in_samples: 300
retry:
  max_count: 7
error_handling:
  on_http_client_io_fail: "discard_and_continue"
`
	yc, err := ParseYAML([]byte(yaml))
	if err != nil {
		t.Fatalf("failed to parse yaml: %v", err)
	}

	cfg := yc.ToConfig()

	if cfg.ListenAddr != ":8201" {
		t.Errorf("expected ListenAddr ':8201', got %s", cfg.ListenAddr)
	}
	if cfg.RemoteWriteURL != "http://remote:9090/api/v1/write" {
		t.Errorf("unexpected RemoteWriteURL: %s", cfg.RemoteWriteURL)
	}
	if cfg.Compression != "zstd" {
		t.Errorf("expected Compression 'zstd', got %s", cfg.Compression)
	}
	if cfg.MaxBatchSizeInSamples != 300 {
		t.Errorf("expected MaxBatchSizeInSamples 300, got %d", cfg.MaxBatchSizeInSamples)
	}
	if cfg.MaxRetryCount != 7 {
		t.Errorf("expected MaxRetryCount 7, got %d", cfg.MaxRetryCount)
	}
	if cfg.OnHTTPClientIOFail != "discard_and_continue" {
		t.Errorf("unexpected OnHTTPClientIOFail: %s", cfg.OnHTTPClientIOFail)
	}
	// Defaults flow through conversion
	if cfg.SocketTimeout != 5*time.Second {
		t.Errorf("expected SocketTimeout 5s, got %v", cfg.SocketTimeout)
	}
	if cfg.MaxTimeInBuffer != 5*time.Second {
		t.Errorf("expected MaxTimeInBuffer 5s, got %v", cfg.MaxTimeInBuffer)
	}
	// Header maps flatten with sorted keys
	if cfg.AuthHeaders != "X-A=1,X-B=2" {
		t.Errorf("expected sorted flattened headers, got %s", cfg.AuthHeaders)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	content := `
remote_write:
  url: "http://file-test:9090/api/v1/write"
batch:
  max_batch_size_in_samples: 123
`
	tmpfile, err := os.CreateTemp("", "prwsink-*.yaml")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatalf("failed to close temp file: %v", err)
	}

	cfg, err := LoadYAML(tmpfile.Name())
	if err != nil {
		t.Fatalf("failed to load yaml file: %v", err)
	}

	if cfg.RemoteWrite.URL != "http://file-test:9090/api/v1/write" {
		t.Errorf("unexpected url: %s", cfg.RemoteWrite.URL)
	}
	if cfg.Batch.MaxBatchSizeInSamples != 123 {
		t.Errorf("expected batch size 123, got %d", cfg.Batch.MaxBatchSizeInSamples)
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	if _, err := LoadYAML("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &YAMLConfig{}
	cfg.ApplyDefaults()

	if cfg.Receiver.Listen != ":9201" {
		t.Errorf("expected default listen ':9201', got %s", cfg.Receiver.Listen)
	}
	if cfg.Receiver.Server.ReadHeaderTimeout != Duration(time.Minute) {
		t.Errorf("expected default read header timeout 1m, got %v", time.Duration(cfg.Receiver.Server.ReadHeaderTimeout))
	}
	if cfg.RemoteWrite.SocketTimeout != Duration(5*time.Second) {
		t.Errorf("expected default socket timeout 5s, got %v", time.Duration(cfg.RemoteWrite.SocketTimeout))
	}
	if cfg.RemoteWrite.Compression != "snappy" {
		t.Errorf("expected default compression 'snappy', got %s", cfg.RemoteWrite.Compression)
	}
	if cfg.RemoteWrite.SigV4.Service != "aps" {
		t.Errorf("expected default sigv4 service 'aps', got %s", cfg.RemoteWrite.SigV4.Service)
	}
	if cfg.Batch.MaxBatchSizeInSamples != 500 {
		t.Errorf("expected default batch size 500, got %d", cfg.Batch.MaxBatchSizeInSamples)
	}
	if cfg.Batch.MaxBufferedRequests != 1000 {
		t.Errorf("expected default buffered requests 1000, got %d", cfg.Batch.MaxBufferedRequests)
	}
	if cfg.Retry.InitialDelay != Duration(30*time.Millisecond) {
		t.Errorf("expected default initial delay 30ms, got %v", time.Duration(cfg.Retry.InitialDelay))
	}
	if cfg.Retry.MaxCount == nil || *cfg.Retry.MaxCount != 100 {
		t.Errorf("expected default max count 100, got %v", cfg.Retry.MaxCount)
	}
	if cfg.ErrorHandling.OnMaxRetryExceeded != "fail" {
		t.Errorf("expected default behavior 'fail', got %s", cfg.ErrorHandling.OnMaxRetryExceeded)
	}
	if cfg.Metrics.Address != ":9090" {
		t.Errorf("expected default metrics address ':9090', got %s", cfg.Metrics.Address)
	}
	if cfg.Metrics.GroupName != "Prometheus" {
		t.Errorf("expected default group name 'Prometheus', got %s", cfg.Metrics.GroupName)
	}
	if cfg.Telemetry.Protocol != "grpc" {
		t.Errorf("expected default telemetry protocol 'grpc', got %s", cfg.Telemetry.Protocol)
	}
	if cfg.Telemetry.Insecure == nil || !*cfg.Telemetry.Insecure {
		t.Error("expected default telemetry insecure true")
	}
	if cfg.Shutdown.DrainTimeout != Duration(30*time.Second) {
		t.Errorf("expected default drain timeout 30s, got %v", time.Duration(cfg.Shutdown.DrainTimeout))
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"1024", 1024, false},
		{"1Ki", 1024, false},
		{"10Mi", 10485760, false},
		{"1Gi", 1073741824, false},
		{"2Ti", 2199023255552, false},
		{"1.5Gi", 1610612736, false},
		{" 64Ki ", 65536, false},
		{"256MB", 0, true},
		{"abc", 0, true},
		{"Ki", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseByteSize(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseByteSize(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatByteSize(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0"},
		{512, "512"},
		{1024, "1Ki"},
		{10485760, "10Mi"},
		{1073741824, "1Gi"},
		{2199023255552, "2Ti"},
		{1500, "1500"}, // not a clean multiple
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatByteSize(tt.input); got != tt.want {
				t.Errorf("FormatByteSize(%d) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestHeadersMapToString(t *testing.T) {
	headers := map[string]string{
		"X-Header-Two": "value2",
		"X-Header-One": "value1",
	}

	// Keys are sorted, so output is deterministic.
	if got := headersMapToString(headers); got != "X-Header-One=value1,X-Header-Two=value2" {
		t.Errorf("unexpected result: %s", got)
	}
}

func TestHeadersMapToStringEmpty(t *testing.T) {
	if got := headersMapToString(nil); got != "" {
		t.Errorf("expected empty string for nil map, got %s", got)
	}
	if got := headersMapToString(map[string]string{}); got != "" {
		t.Errorf("expected empty string for empty map, got %s", got)
	}
}
