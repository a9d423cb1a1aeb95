package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	otellog "go.opentelemetry.io/otel/log"

	"github.com/szibis/prwsink/internal/logging"
)

func TestInit_Disabled(t *testing.T) {
	tel, err := Init(context.Background(), Config{}, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tel != nil {
		t.Error("expected nil telemetry when endpoint is empty")
	}
}

func TestInit_DefaultProtocol(t *testing.T) {
	cfg := Config{
		Endpoint: "localhost:4317",
		Insecure: true,
	}
	// Init will fail to connect (no server) but should not error on setup.
	tel, err := Init(context.Background(), cfg, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tel == nil {
		t.Fatal("expected non-nil telemetry")
	}
	defer tel.Shutdown(context.Background())

	if !tel.Enabled() {
		t.Error("expected telemetry to be enabled")
	}
	if tel.Logger() == nil {
		t.Error("expected logger to be non-nil")
	}
}

func TestInit_HTTPProtocol(t *testing.T) {
	cfg := Config{
		Endpoint: "localhost:4318",
		Protocol: "http",
		Insecure: true,
	}
	tel, err := Init(context.Background(), cfg, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tel == nil {
		t.Fatal("expected non-nil telemetry")
	}
	defer tel.Shutdown(context.Background())

	if !tel.Enabled() {
		t.Error("expected telemetry to be enabled")
	}
}

func TestInit_UnknownProtocolFallsBackToGRPC(t *testing.T) {
	cfg := Config{
		Endpoint: "localhost:4317",
		Protocol: "carrier-pigeon",
		Insecure: true,
	}
	tel, err := Init(context.Background(), cfg, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error for unknown protocol: %v", err)
	}
	if tel == nil {
		t.Fatal("expected non-nil telemetry (falls back to gRPC)")
	}
	defer tel.Shutdown(context.Background())
}

func TestInit_CustomGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "bridge_test_total"})
	reg.MustRegister(c)
	c.Inc()

	cfg := Config{
		Endpoint: "localhost:4317",
		Insecure: true,
		Gatherer: reg,
	}
	tel, err := Init(context.Background(), cfg, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tel == nil {
		t.Fatal("expected non-nil telemetry")
	}
	// The periodic reader holds the bridge; shutdown forces a final
	// collect which walks the custom gatherer.
	defer tel.Shutdown(context.Background())
}

func TestTelemetry_Nil(t *testing.T) {
	var tel *Telemetry
	if tel.Enabled() {
		t.Error("nil telemetry should not be enabled")
	}
	if tel.Logger() != nil {
		t.Error("nil telemetry logger should be nil")
	}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("nil telemetry shutdown should not error: %v", err)
	}
}

func TestNewLogHook_Nil(t *testing.T) {
	var tel *Telemetry
	if hook := tel.NewLogHook(); hook != nil {
		t.Error("nil telemetry should return nil hook")
	}
}

func TestNewLogHook_Emits(t *testing.T) {
	cfg := Config{
		Endpoint: "localhost:4317",
		Insecure: true,
	}
	tel, err := Init(context.Background(), cfg, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	hook := tel.NewLogHook()
	if hook == nil {
		t.Fatal("expected non-nil hook")
	}

	// Should not panic — the record is batched but the exporter
	// will fail to send (no server); that's fine for a unit test.
	hook(logging.LevelInfo, "delivery succeeded", map[string]interface{}{
		"samples":  int64(500),
		"attempts": 1,
	})
	hook(logging.LevelWarn, "retrying batch", nil)
	hook(logging.LevelError, "batch dropped", map[string]interface{}{
		"elapsed": 3.14,
		"final":   true,
		"cause":   nil,
	})
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		level    logging.Level
		expected otellog.Severity
	}{
		{logging.LevelInfo, otellog.SeverityInfo},
		{logging.LevelWarn, otellog.SeverityWarn},
		{logging.LevelError, otellog.SeverityError},
		{logging.LevelFatal, otellog.SeverityFatal},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			got := severity(tt.level)
			if got != tt.expected {
				t.Errorf("severity(%s) = %v, want %v", tt.level, got, tt.expected)
			}
			// The logging package numbers levels on the same scale.
			if int(got) != logging.SeverityNumber(tt.level) {
				t.Errorf("severity(%s) = %d, want the logging severity number %d",
					tt.level, int(got), logging.SeverityNumber(tt.level))
			}
		})
	}

	if got := severity(logging.Level("TRACE")); got != otellog.SeverityInfo {
		t.Errorf("severity of an unknown level = %v, want SeverityInfo", got)
	}
}

func TestAttrValue(t *testing.T) {
	if got := attrValue("hello").AsString(); got != "hello" {
		t.Errorf("string attr = %q, want %q", got, "hello")
	}
	if got := attrValue(42).AsInt64(); got != 42 {
		t.Errorf("int attr = %d, want 42", got)
	}
	if got := attrValue(int64(100)).AsInt64(); got != 100 {
		t.Errorf("int64 attr = %d, want 100", got)
	}
	if got := attrValue(uint64(7)).AsInt64(); got != 7 {
		t.Errorf("uint64 attr = %d, want 7", got)
	}
	if got := attrValue(3.14).AsFloat64(); got != 3.14 {
		t.Errorf("float64 attr = %v, want 3.14", got)
	}
	if got := attrValue(true).AsBool(); !got {
		t.Error("bool attr = false, want true")
	}
	if got := attrValue(nil).AsString(); got != "<nil>" {
		t.Errorf("nil attr = %q, want %q", got, "<nil>")
	}
	// Terminal delivery failures are logged as raw error values.
	if got := attrValue(errors.New("connection refused")).AsString(); got != "connection refused" {
		t.Errorf("error attr = %q, want the error message", got)
	}
	if got := attrValue(struct{ A int }{1}).AsString(); got == "" {
		t.Error("fallback attr formatted to an empty string")
	}
}

func TestAttrKVs(t *testing.T) {
	if got := attrKVs(nil); got != nil {
		t.Errorf("attrKVs(nil) = %v, want nil", got)
	}
	kvs := attrKVs(map[string]interface{}{"batch": "7f3a", "samples": 500})
	if len(kvs) != 2 {
		t.Fatalf("attrKVs produced %d attributes, want 2", len(kvs))
	}
	for _, kv := range kvs {
		switch kv.Key {
		case "batch":
			if kv.Value.AsString() != "7f3a" {
				t.Errorf("batch attr = %q, want %q", kv.Value.AsString(), "7f3a")
			}
		case "samples":
			if kv.Value.AsInt64() != 500 {
				t.Errorf("samples attr = %d, want 500", kv.Value.AsInt64())
			}
		default:
			t.Errorf("unexpected attribute key %q", kv.Key)
		}
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	cfg := Config{
		Endpoint: "localhost:4317",
		Insecure: true,
	}
	tel, err := Init(context.Background(), cfg, "test", "1.0.0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Shutdown twice should not panic. Connection errors are expected since
	// there's no real OTLP collector at localhost:4317 in unit tests.
	err = tel.Shutdown(context.Background())
	t.Logf("first shutdown: %v", err)
	err = tel.Shutdown(context.Background())
	t.Logf("second shutdown: %v", err)
}
