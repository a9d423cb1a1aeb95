package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the YAML configuration file structure.
type YAMLConfig struct {
	Receiver      ReceiverYAMLConfig      `yaml:"receiver"`
	RemoteWrite   RemoteWriteYAMLConfig   `yaml:"remote_write"`
	Batch         BatchYAMLConfig         `yaml:"batch"`
	Retry         RetryYAMLConfig         `yaml:"retry"`
	ErrorHandling ErrorHandlingYAMLConfig `yaml:"error_handling"`
	Metrics       MetricsYAMLConfig       `yaml:"metrics"`
	Telemetry     TelemetryYAMLConfig     `yaml:"telemetry"`
	Shutdown      ShutdownYAMLConfig      `yaml:"shutdown"`
}

// ReceiverYAMLConfig holds remote write receiver configuration.
type ReceiverYAMLConfig struct {
	Listen string               `yaml:"listen"`
	Path   string               `yaml:"path"` // empty = /api/v1/write and /write
	TLS    TLSServerYAMLConfig  `yaml:"tls"`
	Server HTTPServerYAMLConfig `yaml:"server"`
}

// HTTPServerYAMLConfig holds HTTP server timeout settings.
type HTTPServerYAMLConfig struct {
	MaxRequestBodySize ByteSize `yaml:"max_request_body_size"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	ReadHeaderTimeout  Duration `yaml:"read_header_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
}

// TLSServerYAMLConfig holds TLS server configuration.
type TLSServerYAMLConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	ClientAuth bool   `yaml:"client_auth"`
}

// RemoteWriteYAMLConfig holds the delivery endpoint configuration.
type RemoteWriteYAMLConfig struct {
	URL           string              `yaml:"url"`
	SocketTimeout Duration            `yaml:"socket_timeout"`
	UserAgent     string              `yaml:"user_agent"`
	Compression   string              `yaml:"compression"` // snappy or zstd
	TLS           TLSClientYAMLConfig `yaml:"tls"`
	Auth          AuthYAMLConfig      `yaml:"auth"`
	SigV4         SigV4YAMLConfig     `yaml:"sigv4"`
}

// TLSClientYAMLConfig holds TLS client configuration.
type TLSClientYAMLConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`
	SkipVerify bool   `yaml:"skip_verify"`
	ServerName string `yaml:"server_name"`
}

// AuthYAMLConfig holds static authentication configuration.
type AuthYAMLConfig struct {
	BearerToken   string            `yaml:"bearer_token"`
	BasicUsername string            `yaml:"basic_username"`
	BasicPassword string            `yaml:"basic_password"`
	Headers       map[string]string `yaml:"headers"`
}

// SigV4YAMLConfig holds AWS SigV4 signing configuration.
type SigV4YAMLConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Service         string `yaml:"service"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// BatchYAMLConfig holds batch accumulation configuration.
type BatchYAMLConfig struct {
	MaxBatchSizeInSamples  int      `yaml:"max_batch_size_in_samples"`
	MaxRecordSizeInSamples int      `yaml:"max_record_size_in_samples"` // 0 = batch size
	MaxBufferedRequests    int      `yaml:"max_buffered_requests"`
	MaxTimeInBuffer        Duration `yaml:"max_time_in_buffer"`
}

// RetryYAMLConfig holds retry backoff configuration.
type RetryYAMLConfig struct {
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
	// MaxCount is a pointer so an explicit 0 (no retries) survives
	// defaulting.
	MaxCount *int `yaml:"max_count"`
}

// ErrorHandlingYAMLConfig maps terminal error kinds to behaviors.
type ErrorHandlingYAMLConfig struct {
	OnMaxRetryExceeded  string `yaml:"on_max_retry_exceeded"`
	OnHTTPClientIOFail  string `yaml:"on_http_client_io_fail"`
	OnNonRetriableError string `yaml:"on_non_retriable_error"`
}

// MetricsYAMLConfig holds the metrics endpoint configuration.
type MetricsYAMLConfig struct {
	Address   string `yaml:"address"`
	GroupName string `yaml:"group_name"`
}

// TelemetryYAMLConfig holds OTLP self-monitoring telemetry configuration.
type TelemetryYAMLConfig struct {
	Endpoint     string            `yaml:"endpoint"` // OTLP endpoint (empty = disabled)
	Protocol     string            `yaml:"protocol"` // "grpc" or "http" (default: "grpc")
	Insecure     *bool             `yaml:"insecure"` // Use insecure connection (default: true)
	PushInterval Duration          `yaml:"push_interval"`
	Timeout      Duration          `yaml:"timeout"`
	Compression  string            `yaml:"compression"` // "gzip" or "" (default: "")
	Headers      map[string]string `yaml:"headers"`
}

// ShutdownYAMLConfig holds graceful shutdown configuration.
type ShutdownYAMLConfig struct {
	DrainTimeout Duration `yaml:"drain_timeout"`
}

// Duration is a wrapper for time.Duration that supports YAML unmarshaling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize is a wrapper for int64 that supports human-readable YAML values.
// Accepted formats: raw integer (bytes), or suffixed: Ki, Mi, Gi, Ti.
type ByteSize int64

// UnmarshalYAML implements yaml.Unmarshaler for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	// Try integer first
	var n int64
	if err := value.Decode(&n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	// Try string with unit suffix
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		*b = 0
		return nil
	}
	parsed, err := ParseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for ByteSize.
func (b ByteSize) MarshalYAML() (interface{}, error) {
	return FormatByteSize(int64(b)), nil
}

// ParseByteSize parses a human-readable byte size string.
// Accepted suffixes: Ki (1024), Mi (1048576), Gi (1073741824), Ti (1099511627776).
// Plain integers are treated as bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	type suffix struct {
		name string
		mult int64
	}
	suffixes := []suffix{
		{"Ti", 1099511627776},
		{"Gi", 1073741824},
		{"Mi", 1048576},
		{"Ki", 1024},
	}
	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.name) {
			numStr := strings.TrimSpace(strings.TrimSuffix(s, sf.name))
			// Support float values like "1.5Gi"
			var f float64
			if _, err := fmt.Sscanf(numStr, "%f", &f); err != nil {
				return 0, fmt.Errorf("invalid byte size: %q", s)
			}
			return int64(f * float64(sf.mult)), nil
		}
	}
	// Plain integer — reject strings with non-numeric trailing characters (e.g. "256MB")
	var n int64
	var trail string
	if _, err := fmt.Sscanf(s, "%d%s", &n, &trail); err == nil && trail != "" {
		return 0, fmt.Errorf("invalid byte size: %q (use Ki, Mi, Gi, or Ti suffixes)", s)
	}
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("invalid byte size: %q", s)
	}
	return n, nil
}

// FormatByteSize formats bytes as a human-readable string with binary suffix.
func FormatByteSize(b int64) string {
	if b >= 1099511627776 && b%1099511627776 == 0 {
		return fmt.Sprintf("%dTi", b/1099511627776)
	}
	if b >= 1073741824 && b%1073741824 == 0 {
		return fmt.Sprintf("%dGi", b/1073741824)
	}
	if b >= 1048576 && b%1048576 == 0 {
		return fmt.Sprintf("%dMi", b/1048576)
	}
	if b >= 1024 && b%1024 == 0 {
		return fmt.Sprintf("%dKi", b/1024)
	}
	return fmt.Sprintf("%d", b)
}

// LoadYAML loads configuration from a YAML file.
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseYAML(data)
}

// ParseYAML parses YAML configuration from bytes.
func ParseYAML(data []byte) (*YAMLConfig, error) {
	cfg := &YAMLConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// ApplyDefaults sets default values for unspecified fields.
func (y *YAMLConfig) ApplyDefaults() {
	// Receiver defaults
	if y.Receiver.Listen == "" {
		y.Receiver.Listen = ":9201"
	}
	if y.Receiver.Server.ReadHeaderTimeout == 0 {
		y.Receiver.Server.ReadHeaderTimeout = Duration(1 * time.Minute)
	}
	if y.Receiver.Server.WriteTimeout == 0 {
		y.Receiver.Server.WriteTimeout = Duration(30 * time.Second)
	}
	if y.Receiver.Server.IdleTimeout == 0 {
		y.Receiver.Server.IdleTimeout = Duration(1 * time.Minute)
	}

	// Remote write defaults
	if y.RemoteWrite.SocketTimeout == 0 {
		y.RemoteWrite.SocketTimeout = Duration(5 * time.Second)
	}
	if y.RemoteWrite.Compression == "" {
		y.RemoteWrite.Compression = "snappy"
	}
	if y.RemoteWrite.SigV4.Service == "" {
		y.RemoteWrite.SigV4.Service = "aps"
	}

	// Batch defaults
	if y.Batch.MaxBatchSizeInSamples == 0 {
		y.Batch.MaxBatchSizeInSamples = 500
	}
	if y.Batch.MaxBufferedRequests == 0 {
		y.Batch.MaxBufferedRequests = 1000
	}
	if y.Batch.MaxTimeInBuffer == 0 {
		y.Batch.MaxTimeInBuffer = Duration(5 * time.Second)
	}

	// Retry defaults
	if y.Retry.InitialDelay == 0 {
		y.Retry.InitialDelay = Duration(30 * time.Millisecond)
	}
	if y.Retry.MaxDelay == 0 {
		y.Retry.MaxDelay = Duration(5 * time.Second)
	}
	if y.Retry.MaxCount == nil {
		count := 100
		y.Retry.MaxCount = &count
	}

	// Error handling defaults
	if y.ErrorHandling.OnMaxRetryExceeded == "" {
		y.ErrorHandling.OnMaxRetryExceeded = "fail"
	}
	if y.ErrorHandling.OnHTTPClientIOFail == "" {
		y.ErrorHandling.OnHTTPClientIOFail = "fail"
	}
	if y.ErrorHandling.OnNonRetriableError == "" {
		y.ErrorHandling.OnNonRetriableError = "fail"
	}

	// Metrics defaults
	if y.Metrics.Address == "" {
		y.Metrics.Address = ":9090"
	}
	if y.Metrics.GroupName == "" {
		y.Metrics.GroupName = "Prometheus"
	}

	// Telemetry defaults
	if y.Telemetry.Protocol == "" {
		y.Telemetry.Protocol = "grpc"
	}
	if y.Telemetry.Insecure == nil {
		insecure := true
		y.Telemetry.Insecure = &insecure
	}
	if y.Telemetry.PushInterval == 0 {
		y.Telemetry.PushInterval = Duration(30 * time.Second)
	}

	// Shutdown defaults
	if y.Shutdown.DrainTimeout == 0 {
		y.Shutdown.DrainTimeout = Duration(30 * time.Second)
	}
}

// ToConfig converts the YAML configuration to the flat Config.
func (y *YAMLConfig) ToConfig() *Config {
	return &Config{
		// Receiver
		ListenAddr:   y.Receiver.Listen,
		ReceiverPath: y.Receiver.Path,

		// Receiver TLS
		ReceiverTLSEnabled:    y.Receiver.TLS.Enabled,
		ReceiverTLSCertFile:   y.Receiver.TLS.CertFile,
		ReceiverTLSKeyFile:    y.Receiver.TLS.KeyFile,
		ReceiverTLSCAFile:     y.Receiver.TLS.CAFile,
		ReceiverTLSClientAuth: y.Receiver.TLS.ClientAuth,

		// Receiver HTTP server
		ReceiverMaxRequestBodySize: int64(y.Receiver.Server.MaxRequestBodySize),
		ReceiverReadTimeout:        time.Duration(y.Receiver.Server.ReadTimeout),
		ReceiverReadHeaderTimeout:  time.Duration(y.Receiver.Server.ReadHeaderTimeout),
		ReceiverWriteTimeout:       time.Duration(y.Receiver.Server.WriteTimeout),
		ReceiverIdleTimeout:        time.Duration(y.Receiver.Server.IdleTimeout),

		// Remote write
		RemoteWriteURL: y.RemoteWrite.URL,
		SocketTimeout:  time.Duration(y.RemoteWrite.SocketTimeout),
		UserAgent:      y.RemoteWrite.UserAgent,
		Compression:    y.RemoteWrite.Compression,

		// Remote write TLS
		RemoteTLSEnabled:            y.RemoteWrite.TLS.Enabled,
		RemoteTLSCertFile:           y.RemoteWrite.TLS.CertFile,
		RemoteTLSKeyFile:            y.RemoteWrite.TLS.KeyFile,
		RemoteTLSCAFile:             y.RemoteWrite.TLS.CAFile,
		RemoteTLSInsecureSkipVerify: y.RemoteWrite.TLS.SkipVerify,
		RemoteTLSServerName:         y.RemoteWrite.TLS.ServerName,

		// Batch
		MaxBatchSizeInSamples:  y.Batch.MaxBatchSizeInSamples,
		MaxRecordSizeInSamples: y.Batch.MaxRecordSizeInSamples,
		MaxBufferedRequests:    y.Batch.MaxBufferedRequests,
		MaxTimeInBuffer:        time.Duration(y.Batch.MaxTimeInBuffer),

		// Retry
		InitialRetryDelay: time.Duration(y.Retry.InitialDelay),
		MaxRetryDelay:     time.Duration(y.Retry.MaxDelay),
		MaxRetryCount:     *y.Retry.MaxCount,

		// Error handling
		OnMaxRetryExceeded:  y.ErrorHandling.OnMaxRetryExceeded,
		OnHTTPClientIOFail:  y.ErrorHandling.OnHTTPClientIOFail,
		OnNonRetriableError: y.ErrorHandling.OnNonRetriableError,

		// Auth
		AuthBearerToken:   y.RemoteWrite.Auth.BearerToken,
		AuthBasicUsername: y.RemoteWrite.Auth.BasicUsername,
		AuthBasicPassword: y.RemoteWrite.Auth.BasicPassword,
		AuthHeaders:       headersMapToString(y.RemoteWrite.Auth.Headers),

		// SigV4
		SigV4Enabled:         y.RemoteWrite.SigV4.Enabled,
		SigV4Region:          y.RemoteWrite.SigV4.Region,
		SigV4Service:         y.RemoteWrite.SigV4.Service,
		SigV4AccessKeyID:     y.RemoteWrite.SigV4.AccessKeyID,
		SigV4SecretAccessKey: y.RemoteWrite.SigV4.SecretAccessKey,
		SigV4SessionToken:    y.RemoteWrite.SigV4.SessionToken,

		// Metrics
		MetricsAddr:     y.Metrics.Address,
		MetricGroupName: y.Metrics.GroupName,

		// Telemetry
		TelemetryEndpoint:     y.Telemetry.Endpoint,
		TelemetryProtocol:     y.Telemetry.Protocol,
		TelemetryInsecure:     *y.Telemetry.Insecure,
		TelemetryPushInterval: time.Duration(y.Telemetry.PushInterval),
		TelemetryTimeout:      time.Duration(y.Telemetry.Timeout),
		TelemetryCompression:  y.Telemetry.Compression,
		TelemetryHeaders:      headersMapToString(y.Telemetry.Headers),

		// Shutdown
		DrainTimeout: time.Duration(y.Shutdown.DrainTimeout),
	}
}

// headersMapToString converts a header map to the flat flag format
// "key1=value1,key2=value2". Keys are sorted for a stable result.
func headersMapToString(headers map[string]string) string {
	if len(headers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+headers[k])
	}
	return strings.Join(pairs, ",")
}
