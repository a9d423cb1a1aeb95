package config

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/szibis/prwsink/internal/compression"
	"github.com/szibis/prwsink/internal/receiver"
	"github.com/szibis/prwsink/internal/signer"
	"github.com/szibis/prwsink/internal/sink"
	"github.com/szibis/prwsink/internal/telemetry"
	tlspkg "github.com/szibis/prwsink/internal/tls"
)

// version is set at build time via ldflags
var version = "dev"

// Config holds the application configuration.
type Config struct {
	// Receiver settings
	ListenAddr   string
	ReceiverPath string // Custom receiver path (empty = /api/v1/write and /write)

	// Receiver TLS settings
	ReceiverTLSEnabled    bool
	ReceiverTLSCertFile   string
	ReceiverTLSKeyFile    string
	ReceiverTLSCAFile     string
	ReceiverTLSClientAuth bool

	// Receiver HTTP server settings
	ReceiverMaxRequestBodySize int64
	ReceiverReadTimeout        time.Duration
	ReceiverReadHeaderTimeout  time.Duration
	ReceiverWriteTimeout       time.Duration
	ReceiverIdleTimeout        time.Duration

	// Remote write settings
	RemoteWriteURL string
	SocketTimeout  time.Duration
	UserAgent      string
	Compression    string

	// Remote write TLS settings
	RemoteTLSEnabled            bool
	RemoteTLSCertFile           string
	RemoteTLSKeyFile            string
	RemoteTLSCAFile             string
	RemoteTLSInsecureSkipVerify bool
	RemoteTLSServerName         string

	// Batch settings
	MaxBatchSizeInSamples  int
	MaxRecordSizeInSamples int // 0 = same as batch size
	MaxBufferedRequests    int
	MaxTimeInBuffer        time.Duration

	// Retry settings
	InitialRetryDelay time.Duration
	MaxRetryDelay     time.Duration
	MaxRetryCount     int

	// Error handling settings: "fail" or "discard_and_continue"
	OnMaxRetryExceeded  string
	OnHTTPClientIOFail  string
	OnNonRetriableError string

	// Auth settings
	AuthBearerToken   string
	AuthBasicUsername string
	AuthBasicPassword string
	AuthHeaders       string // Custom headers (format: key1=value1,key2=value2)

	// SigV4 settings (Amazon Managed Service for Prometheus)
	SigV4Enabled         bool
	SigV4Region          string
	SigV4Service         string
	SigV4AccessKeyID     string
	SigV4SecretAccessKey string
	SigV4SessionToken    string

	// Metrics settings
	MetricsAddr     string
	MetricGroupName string

	// Telemetry settings (OTLP self-monitoring)
	TelemetryEndpoint     string
	TelemetryProtocol     string
	TelemetryInsecure     bool
	TelemetryPushInterval time.Duration
	TelemetryTimeout      time.Duration
	TelemetryCompression  string
	TelemetryHeaders      string

	// Shutdown settings
	DrainTimeout time.Duration

	// Help and version
	ShowHelp    bool
	ShowVersion bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:                ":9201",
		ReceiverPath:              "",
		ReceiverReadHeaderTimeout: 1 * time.Minute,
		ReceiverWriteTimeout:      30 * time.Second,
		ReceiverIdleTimeout:       1 * time.Minute,
		SocketTimeout:             sink.DefaultSocketTimeout,
		UserAgent:                 sink.DefaultUserAgent,
		Compression:               "snappy",
		MaxBatchSizeInSamples:     sink.DefaultMaxBatchSizeInSamples,
		MaxRecordSizeInSamples:    0, // same as batch size
		MaxBufferedRequests:       sink.DefaultMaxBufferedRequests,
		MaxTimeInBuffer:           sink.DefaultMaxTimeInBuffer,
		InitialRetryDelay:         30 * time.Millisecond,
		MaxRetryDelay:             5 * time.Second,
		MaxRetryCount:             100,
		OnMaxRetryExceeded:        "fail",
		OnHTTPClientIOFail:        "fail",
		OnNonRetriableError:       "fail",
		SigV4Service:              "aps",
		MetricsAddr:               ":9090",
		MetricGroupName:           sink.DefaultMetricGroupName,
		TelemetryProtocol:         "grpc",
		TelemetryInsecure:         true,
		TelemetryPushInterval:     30 * time.Second,
		DrainTimeout:              30 * time.Second,
	}
}

// ParseFlags parses command line flags and an optional YAML config file.
// Precedence: defaults < config file < explicitly set flags.
func ParseFlags() *Config {
	cfg := DefaultConfig()

	// Config file flag
	var configFile string
	flag.StringVar(&configFile, "config", "", "Path to YAML configuration file")

	// Receiver flags
	flag.StringVar(&cfg.ListenAddr, "listen", ":9201", "Remote write receiver listen address")
	flag.StringVar(&cfg.ReceiverPath, "receiver-path", "", "Receiver path (empty = /api/v1/write and /write)")

	// Receiver TLS flags
	flag.BoolVar(&cfg.ReceiverTLSEnabled, "receiver-tls-enabled", false, "Enable TLS for the receiver")
	flag.StringVar(&cfg.ReceiverTLSCertFile, "receiver-tls-cert", "", "Path to receiver TLS certificate file")
	flag.StringVar(&cfg.ReceiverTLSKeyFile, "receiver-tls-key", "", "Path to receiver TLS private key file")
	flag.StringVar(&cfg.ReceiverTLSCAFile, "receiver-tls-ca", "", "Path to CA certificate for client verification (mTLS)")
	flag.BoolVar(&cfg.ReceiverTLSClientAuth, "receiver-tls-client-auth", false, "Require client certificates (mTLS)")

	// Receiver HTTP server flags
	flag.Int64Var(&cfg.ReceiverMaxRequestBodySize, "receiver-max-body-size", 0, "Maximum request body size in bytes (0 = no limit)")
	flag.DurationVar(&cfg.ReceiverReadTimeout, "receiver-read-timeout", 0, "HTTP server read timeout (0 = no timeout)")
	flag.DurationVar(&cfg.ReceiverReadHeaderTimeout, "receiver-read-header-timeout", 1*time.Minute, "HTTP server read header timeout")
	flag.DurationVar(&cfg.ReceiverWriteTimeout, "receiver-write-timeout", 30*time.Second, "HTTP server write timeout")
	flag.DurationVar(&cfg.ReceiverIdleTimeout, "receiver-idle-timeout", 1*time.Minute, "HTTP server idle timeout")

	// Remote write flags
	flag.StringVar(&cfg.RemoteWriteURL, "remote-write-url", "", "Remote write endpoint URL (required)")
	flag.DurationVar(&cfg.SocketTimeout, "socket-timeout", sink.DefaultSocketTimeout, "Per-attempt request timeout")
	flag.StringVar(&cfg.UserAgent, "user-agent", sink.DefaultUserAgent, "User-Agent header for outgoing requests")
	flag.StringVar(&cfg.Compression, "compression", "snappy", "Wire compression: snappy (standard) or zstd")

	// Remote write TLS flags
	flag.BoolVar(&cfg.RemoteTLSEnabled, "remote-tls-enabled", false, "Enable custom TLS config for remote write")
	flag.StringVar(&cfg.RemoteTLSCertFile, "remote-tls-cert", "", "Path to client certificate file (mTLS)")
	flag.StringVar(&cfg.RemoteTLSKeyFile, "remote-tls-key", "", "Path to client private key file (mTLS)")
	flag.StringVar(&cfg.RemoteTLSCAFile, "remote-tls-ca", "", "Path to CA certificate for server verification")
	flag.BoolVar(&cfg.RemoteTLSInsecureSkipVerify, "remote-tls-skip-verify", false, "Skip TLS certificate verification")
	flag.StringVar(&cfg.RemoteTLSServerName, "remote-tls-server-name", "", "Override server name for TLS verification")

	// Batch flags
	flag.IntVar(&cfg.MaxBatchSizeInSamples, "batch-size", sink.DefaultMaxBatchSizeInSamples, "Maximum samples per remote write request")
	flag.IntVar(&cfg.MaxRecordSizeInSamples, "record-size", 0, "Maximum samples per offered record (0 = batch size)")
	flag.IntVar(&cfg.MaxBufferedRequests, "buffered-requests", sink.DefaultMaxBufferedRequests, "Maximum batches queued for delivery before offers block")
	flag.DurationVar(&cfg.MaxTimeInBuffer, "max-time-in-buffer", sink.DefaultMaxTimeInBuffer, "Maximum time a record waits before a partial batch is flushed")

	// Retry flags
	flag.DurationVar(&cfg.InitialRetryDelay, "initial-retry-delay", 30*time.Millisecond, "Delay before the first retry")
	flag.DurationVar(&cfg.MaxRetryDelay, "max-retry-delay", 5*time.Second, "Maximum retry backoff delay")
	flag.IntVar(&cfg.MaxRetryCount, "max-retry-count", 100, "Maximum retries per batch after the first attempt")

	// Error handling flags
	flag.StringVar(&cfg.OnMaxRetryExceeded, "on-max-retry-exceeded", "fail", "Behavior when the retry budget runs out: fail or discard_and_continue")
	flag.StringVar(&cfg.OnHTTPClientIOFail, "on-http-client-io-fail", "fail", "Behavior on transport I/O failure: fail or discard_and_continue")
	flag.StringVar(&cfg.OnNonRetriableError, "on-non-retriable-error", "fail", "Behavior on non-retriable remote errors: fail or discard_and_continue")

	// Auth flags
	flag.StringVar(&cfg.AuthBearerToken, "auth-bearer-token", "", "Bearer token for remote write authentication")
	flag.StringVar(&cfg.AuthBasicUsername, "auth-basic-username", "", "Basic auth username for remote write")
	flag.StringVar(&cfg.AuthBasicPassword, "auth-basic-password", "", "Basic auth password for remote write")
	flag.StringVar(&cfg.AuthHeaders, "auth-headers", "", "Custom headers for remote write (format: key1=value1,key2=value2)")

	// SigV4 flags
	flag.BoolVar(&cfg.SigV4Enabled, "sigv4-enabled", false, "Sign requests with AWS Signature Version 4")
	flag.StringVar(&cfg.SigV4Region, "sigv4-region", "", "AWS region of the remote write endpoint")
	flag.StringVar(&cfg.SigV4Service, "sigv4-service", "aps", "AWS signing service name")
	flag.StringVar(&cfg.SigV4AccessKeyID, "sigv4-access-key-id", "", "Static AWS access key ID (empty = default credential chain)")
	flag.StringVar(&cfg.SigV4SecretAccessKey, "sigv4-secret-access-key", "", "Static AWS secret access key")
	flag.StringVar(&cfg.SigV4SessionToken, "sigv4-session-token", "", "Static AWS session token")

	// Metrics flags
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":9090", "Metrics/health HTTP endpoint address")
	flag.StringVar(&cfg.MetricGroupName, "metric-group-name", sink.DefaultMetricGroupName, "Value of the group label on sink metrics")

	// Telemetry flags
	flag.StringVar(&cfg.TelemetryEndpoint, "telemetry-endpoint", "", "OTLP endpoint for self-telemetry (empty = disabled)")
	flag.StringVar(&cfg.TelemetryProtocol, "telemetry-protocol", "grpc", "Telemetry protocol: grpc or http")
	flag.BoolVar(&cfg.TelemetryInsecure, "telemetry-insecure", true, "Use insecure connection for telemetry")
	flag.DurationVar(&cfg.TelemetryPushInterval, "telemetry-push-interval", 30*time.Second, "Telemetry metric push interval")
	flag.DurationVar(&cfg.TelemetryTimeout, "telemetry-timeout", 0, "Telemetry per-export timeout (0 = SDK default)")
	flag.StringVar(&cfg.TelemetryCompression, "telemetry-compression", "", "Telemetry compression: gzip or empty")
	flag.StringVar(&cfg.TelemetryHeaders, "telemetry-headers", "", "Custom headers for telemetry (format: key1=value1,key2=value2)")

	// Shutdown flags
	flag.DurationVar(&cfg.DrainTimeout, "drain-timeout", 30*time.Second, "Time allowed for the sink to drain on shutdown")

	// Help and version
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help message")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help message (shorthand)")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version (shorthand)")

	flag.Usage = PrintUsage

	flag.Parse()

	// Load YAML config if specified
	if configFile != "" {
		yamlCfg, err := LoadYAML(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config file %s: %v\n", configFile, err)
			os.Exit(1)
		}
		cfg = yamlCfg.ToConfig()
	}

	// Apply CLI overrides for explicitly set flags
	applyFlagOverrides(cfg)

	return cfg
}

// applyFlagOverrides applies CLI flag values that were explicitly set.
func applyFlagOverrides(cfg *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = f.Value.String()
		case "receiver-path":
			cfg.ReceiverPath = f.Value.String()
		case "receiver-tls-enabled":
			cfg.ReceiverTLSEnabled = f.Value.String() == "true"
		case "receiver-tls-cert":
			cfg.ReceiverTLSCertFile = f.Value.String()
		case "receiver-tls-key":
			cfg.ReceiverTLSKeyFile = f.Value.String()
		case "receiver-tls-ca":
			cfg.ReceiverTLSCAFile = f.Value.String()
		case "receiver-tls-client-auth":
			cfg.ReceiverTLSClientAuth = f.Value.String() == "true"
		case "receiver-max-body-size":
			if v, ok := f.Value.(flag.Getter); ok {
				if i, ok := v.Get().(int64); ok {
					cfg.ReceiverMaxRequestBodySize = i
				}
			}
		case "receiver-read-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.ReceiverReadTimeout = d
			}
		case "receiver-read-header-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.ReceiverReadHeaderTimeout = d
			}
		case "receiver-write-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.ReceiverWriteTimeout = d
			}
		case "receiver-idle-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.ReceiverIdleTimeout = d
			}
		case "remote-write-url":
			cfg.RemoteWriteURL = f.Value.String()
		case "socket-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.SocketTimeout = d
			}
		case "user-agent":
			cfg.UserAgent = f.Value.String()
		case "compression":
			cfg.Compression = f.Value.String()
		case "remote-tls-enabled":
			cfg.RemoteTLSEnabled = f.Value.String() == "true"
		case "remote-tls-cert":
			cfg.RemoteTLSCertFile = f.Value.String()
		case "remote-tls-key":
			cfg.RemoteTLSKeyFile = f.Value.String()
		case "remote-tls-ca":
			cfg.RemoteTLSCAFile = f.Value.String()
		case "remote-tls-skip-verify":
			cfg.RemoteTLSInsecureSkipVerify = f.Value.String() == "true"
		case "remote-tls-server-name":
			cfg.RemoteTLSServerName = f.Value.String()
		case "batch-size":
			if v, ok := f.Value.(flag.Getter); ok {
				if i, ok := v.Get().(int); ok {
					cfg.MaxBatchSizeInSamples = i
				}
			}
		case "record-size":
			if v, ok := f.Value.(flag.Getter); ok {
				if i, ok := v.Get().(int); ok {
					cfg.MaxRecordSizeInSamples = i
				}
			}
		case "buffered-requests":
			if v, ok := f.Value.(flag.Getter); ok {
				if i, ok := v.Get().(int); ok {
					cfg.MaxBufferedRequests = i
				}
			}
		case "max-time-in-buffer":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.MaxTimeInBuffer = d
			}
		case "initial-retry-delay":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.InitialRetryDelay = d
			}
		case "max-retry-delay":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.MaxRetryDelay = d
			}
		case "max-retry-count":
			if v, ok := f.Value.(flag.Getter); ok {
				if i, ok := v.Get().(int); ok {
					cfg.MaxRetryCount = i
				}
			}
		case "on-max-retry-exceeded":
			cfg.OnMaxRetryExceeded = f.Value.String()
		case "on-http-client-io-fail":
			cfg.OnHTTPClientIOFail = f.Value.String()
		case "on-non-retriable-error":
			cfg.OnNonRetriableError = f.Value.String()
		case "auth-bearer-token":
			cfg.AuthBearerToken = f.Value.String()
		case "auth-basic-username":
			cfg.AuthBasicUsername = f.Value.String()
		case "auth-basic-password":
			cfg.AuthBasicPassword = f.Value.String()
		case "auth-headers":
			cfg.AuthHeaders = f.Value.String()
		case "sigv4-enabled":
			cfg.SigV4Enabled = f.Value.String() == "true"
		case "sigv4-region":
			cfg.SigV4Region = f.Value.String()
		case "sigv4-service":
			cfg.SigV4Service = f.Value.String()
		case "sigv4-access-key-id":
			cfg.SigV4AccessKeyID = f.Value.String()
		case "sigv4-secret-access-key":
			cfg.SigV4SecretAccessKey = f.Value.String()
		case "sigv4-session-token":
			cfg.SigV4SessionToken = f.Value.String()
		case "metrics-addr":
			cfg.MetricsAddr = f.Value.String()
		case "metric-group-name":
			cfg.MetricGroupName = f.Value.String()
		case "telemetry-endpoint":
			cfg.TelemetryEndpoint = f.Value.String()
		case "telemetry-protocol":
			cfg.TelemetryProtocol = f.Value.String()
		case "telemetry-insecure":
			cfg.TelemetryInsecure = f.Value.String() == "true"
		case "telemetry-push-interval":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.TelemetryPushInterval = d
			}
		case "telemetry-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.TelemetryTimeout = d
			}
		case "telemetry-compression":
			cfg.TelemetryCompression = f.Value.String()
		case "telemetry-headers":
			cfg.TelemetryHeaders = f.Value.String()
		case "drain-timeout":
			if d, err := time.ParseDuration(f.Value.String()); err == nil {
				cfg.DrainTimeout = d
			}
		case "help", "h":
			cfg.ShowHelp = f.Value.String() == "true"
		case "version", "v":
			cfg.ShowVersion = f.Value.String() == "true"
		}
	})
}

// Validate checks settings the translation methods would otherwise swallow.
// Deep validation of the delivery parameters happens in sink.New.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RemoteWriteURL) == "" {
		return fmt.Errorf("remote-write-url is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.MetricsAddr == "" {
		return fmt.Errorf("metrics address must not be empty")
	}
	if _, err := compression.ParseType(c.Compression); err != nil {
		return fmt.Errorf("compression: %w", err)
	}
	if _, err := sink.ParseOnErrorBehavior(c.OnMaxRetryExceeded); err != nil {
		return fmt.Errorf("on-max-retry-exceeded: %w", err)
	}
	if _, err := sink.ParseOnErrorBehavior(c.OnHTTPClientIOFail); err != nil {
		return fmt.Errorf("on-http-client-io-fail: %w", err)
	}
	if _, err := sink.ParseOnErrorBehavior(c.OnNonRetriableError); err != nil {
		return fmt.Errorf("on-non-retriable-error: %w", err)
	}
	if c.SigV4Enabled && c.SigV4Region == "" {
		return fmt.Errorf("sigv4-region is required when sigv4 is enabled")
	}
	if c.SigV4Enabled && (c.AuthBearerToken != "" || c.AuthBasicUsername != "") {
		return fmt.Errorf("sigv4 and static authentication are mutually exclusive")
	}
	switch c.TelemetryProtocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry-protocol must be grpc or http, got %q", c.TelemetryProtocol)
	}
	if c.DrainTimeout < 0 {
		return fmt.Errorf("drain-timeout must not be negative")
	}
	return nil
}

// SinkConfig returns the delivery sink configuration. The signer is built
// separately with BuildSigner; logger and registry are wired by the caller.
func (c *Config) SinkConfig() sink.Config {
	comp, _ := compression.ParseType(c.Compression)
	onRetry, _ := sink.ParseOnErrorBehavior(c.OnMaxRetryExceeded)
	onIO, _ := sink.ParseOnErrorBehavior(c.OnHTTPClientIOFail)
	onNonRetriable, _ := sink.ParseOnErrorBehavior(c.OnNonRetriableError)

	return sink.Config{
		RemoteWriteURL: c.RemoteWriteURL,
		Retry: sink.RetryConfig{
			InitialRetryDelay: c.InitialRetryDelay,
			MaxRetryDelay:     c.MaxRetryDelay,
			MaxRetryCount:     c.MaxRetryCount,
		},
		MaxBatchSizeInSamples:  c.MaxBatchSizeInSamples,
		MaxRecordSizeInSamples: c.MaxRecordSizeInSamples,
		MaxBufferedRequests:    c.MaxBufferedRequests,
		MaxTimeInBuffer:        c.MaxTimeInBuffer,
		SocketTimeout:          c.SocketTimeout,
		UserAgent:              c.UserAgent,
		ErrorHandling: sink.ErrorHandlingConfig{
			OnMaxRetryExceeded:  onRetry,
			OnHTTPClientIOFail:  onIO,
			OnNonRetriableError: onNonRetriable,
		},
		MetricGroupName: c.MetricGroupName,
		Compression:     comp,
		TLS: tlspkg.ClientConfig{
			Enabled:            c.RemoteTLSEnabled,
			CertFile:           c.RemoteTLSCertFile,
			KeyFile:            c.RemoteTLSKeyFile,
			CAFile:             c.RemoteTLSCAFile,
			InsecureSkipVerify: c.RemoteTLSInsecureSkipVerify,
			ServerName:         c.RemoteTLSServerName,
		},
	}
}

// ReceiverConfig returns the remote write receiver configuration.
func (c *Config) ReceiverConfig() receiver.Config {
	return receiver.Config{
		Addr: c.ListenAddr,
		Path: c.ReceiverPath,
		TLS: tlspkg.ServerConfig{
			Enabled:    c.ReceiverTLSEnabled,
			CertFile:   c.ReceiverTLSCertFile,
			KeyFile:    c.ReceiverTLSKeyFile,
			CAFile:     c.ReceiverTLSCAFile,
			ClientAuth: c.ReceiverTLSClientAuth,
		},
		Server: receiver.ServerConfig{
			MaxRequestBodySize: c.ReceiverMaxRequestBodySize,
			ReadTimeout:        c.ReceiverReadTimeout,
			ReadHeaderTimeout:  c.ReceiverReadHeaderTimeout,
			WriteTimeout:       c.ReceiverWriteTimeout,
			IdleTimeout:        c.ReceiverIdleTimeout,
		},
	}
}

// TelemetryConfig returns the OTLP self-telemetry configuration. Export
// retry stays on with the SDK's stock intervals.
func (c *Config) TelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Endpoint:     c.TelemetryEndpoint,
		Protocol:     c.TelemetryProtocol,
		Insecure:     c.TelemetryInsecure,
		Timeout:      c.TelemetryTimeout,
		PushInterval: c.TelemetryPushInterval,
		Compression:  c.TelemetryCompression,
		Headers:      parseHeaderList(c.TelemetryHeaders),
		RetryEnabled: true,
	}
}

// BuildSigner constructs the request signer for the configured
// authentication scheme. SigV4 resolves AWS credentials, so it may block
// on the credential chain and can fail.
func (c *Config) BuildSigner(ctx context.Context) (signer.Signer, error) {
	if c.SigV4Enabled {
		return signer.NewSigV4(ctx, signer.SigV4Config{
			Region:          c.SigV4Region,
			Service:         c.SigV4Service,
			AccessKeyID:     c.SigV4AccessKeyID,
			SecretAccessKey: c.SigV4SecretAccessKey,
			SessionToken:    c.SigV4SessionToken,
		})
	}
	if c.AuthBearerToken != "" || c.AuthBasicUsername != "" || c.AuthHeaders != "" {
		return signer.NewStatic(signer.StaticConfig{
			BearerToken:       c.AuthBearerToken,
			BasicAuthUsername: c.AuthBasicUsername,
			BasicAuthPassword: c.AuthBasicPassword,
			Headers:           parseHeaderList(c.AuthHeaders),
		}), nil
	}
	return signer.NoOp{}, nil
}

// parseHeaderList parses "key1=value1,key2=value2" into a header map.
// Malformed pairs are skipped.
func parseHeaderList(s string) map[string]string {
	if s == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			headers[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}

// PrintUsage prints the help message.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `prwsink - Prometheus remote write delivery sink

USAGE:
    prwsink [OPTIONS]

DESCRIPTION:
    Receives Prometheus remote write requests, batches the time series,
    and delivers them to a remote write endpoint with ordered retries
    and configurable failure handling.

OPTIONS:
    Configuration:
        -config <path>                   Path to YAML configuration file
                                         CLI flags override config file values

    Receiver:
        -listen <addr>                   Receiver listen address (default: ":9201")
        -receiver-path <path>            Receiver path (default: /api/v1/write and /write)

    Receiver TLS:
        -receiver-tls-enabled            Enable TLS for the receiver (default: false)
        -receiver-tls-cert <path>        Path to server certificate file
        -receiver-tls-key <path>         Path to server private key file
        -receiver-tls-ca <path>          Path to CA certificate for client verification (mTLS)
        -receiver-tls-client-auth        Require client certificates (mTLS) (default: false)

    Receiver HTTP Server:
        -receiver-max-body-size <n>      Maximum request body size in bytes (0 = no limit)
        -receiver-read-timeout <dur>     HTTP server read timeout (default: 0/no timeout)
        -receiver-read-header-timeout <dur>  HTTP server read header timeout (default: 1m)
        -receiver-write-timeout <dur>    HTTP server write timeout (default: 30s)
        -receiver-idle-timeout <dur>     HTTP server idle timeout (default: 1m)

    Remote Write:
        -remote-write-url <url>          Remote write endpoint URL (required)
        -socket-timeout <dur>            Per-attempt request timeout (default: 5s)
        -user-agent <ua>                 User-Agent header (default: "prwsink/0.1.0")
        -compression <type>              Wire compression: snappy or zstd (default: snappy)

    Remote Write TLS:
        -remote-tls-enabled              Enable custom TLS config (default: false)
        -remote-tls-cert <path>          Path to client certificate file (mTLS)
        -remote-tls-key <path>           Path to client private key file (mTLS)
        -remote-tls-ca <path>            Path to CA certificate for server verification
        -remote-tls-skip-verify          Skip TLS certificate verification (default: false)
        -remote-tls-server-name <name>   Override server name for TLS verification

    Batching:
        -batch-size <n>                  Maximum samples per request (default: 500)
        -record-size <n>                 Maximum samples per offered record (default: batch size)
        -buffered-requests <n>           Batches queued before offers block (default: 1000)
        -max-time-in-buffer <dur>        Partial batch flush deadline (default: 5s)

    Retry:
        -initial-retry-delay <dur>       Delay before the first retry (default: 30ms)
        -max-retry-delay <dur>           Maximum retry backoff delay (default: 5s)
        -max-retry-count <n>             Retries per batch after the first attempt (default: 100)

    Error Handling (fail or discard_and_continue):
        -on-max-retry-exceeded <b>       Behavior when the retry budget runs out (default: fail)
        -on-http-client-io-fail <b>      Behavior on transport I/O failure (default: fail)
        -on-non-retriable-error <b>      Behavior on non-retriable remote errors (default: fail)

    Authentication:
        -auth-bearer-token <token>       Bearer token for remote write
        -auth-basic-username <user>      Basic auth username
        -auth-basic-password <pass>      Basic auth password
        -auth-headers <headers>          Custom headers (format: key1=value1,key2=value2)

    AWS SigV4 (Amazon Managed Service for Prometheus):
        -sigv4-enabled                   Sign requests with SigV4 (default: false)
        -sigv4-region <region>           AWS region of the endpoint (required with sigv4)
        -sigv4-service <service>         AWS signing service name (default: "aps")
        -sigv4-access-key-id <id>        Static access key (empty = default credential chain)
        -sigv4-secret-access-key <key>   Static secret key
        -sigv4-session-token <token>     Static session token

    Metrics:
        -metrics-addr <addr>             Metrics/health HTTP endpoint address (default: ":9090")
        -metric-group-name <name>        Value of the group label on sink metrics (default: "Prometheus")

    Telemetry (OTLP self-monitoring):
        -telemetry-endpoint <addr>       OTLP endpoint (empty = disabled)
        -telemetry-protocol <proto>      Protocol: grpc or http (default: grpc)
        -telemetry-insecure              Use insecure connection (default: true)
        -telemetry-push-interval <dur>   Metric push interval (default: 30s)
        -telemetry-timeout <dur>         Per-export timeout (0 = SDK default)
        -telemetry-compression <type>    Compression: gzip or empty
        -telemetry-headers <headers>     Custom headers (format: key1=value1,key2=value2)

    Shutdown:
        -drain-timeout <dur>             Time allowed for the sink to drain (default: 30s)

    Other:
        -help, -h                        Show this help message
        -version, -v                     Show version

EXAMPLES:
    # Forward to a local Prometheus with remote write receiver enabled
    prwsink -remote-write-url http://localhost:9090/api/v1/write

    # Deliver with bearer token auth and zstd compression
    prwsink -remote-write-url https://mimir.example.com/api/v1/push \
        -auth-bearer-token "secret-token" \
        -compression zstd

    # Amazon Managed Service for Prometheus
    prwsink -remote-write-url https://aps-workspaces.eu-west-1.amazonaws.com/workspaces/ws-1/api/v1/remote_write \
        -sigv4-enabled -sigv4-region eu-west-1

    # Tolerate a flaky remote: drop batches instead of stopping
    prwsink -remote-write-url http://localhost:9090/api/v1/write \
        -on-max-retry-exceeded discard_and_continue \
        -on-http-client-io-fail discard_and_continue

    # Tune batching for high throughput
    prwsink -remote-write-url http://localhost:9090/api/v1/write \
        -batch-size 2000 -buffered-requests 5000 -max-time-in-buffer 10s

    # Load settings from a file, override the endpoint
    prwsink -config /etc/prwsink/config.yaml \
        -remote-write-url http://localhost:9090/api/v1/write

`)
}

// PrintVersion prints the version.
func PrintVersion() {
	fmt.Printf("prwsink version %s\n", version)
}

// Version returns the build version string.
func Version() string {
	return version
}
