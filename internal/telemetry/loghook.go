package telemetry

import (
	"context"
	"fmt"

	"github.com/szibis/prwsink/internal/logging"
	otellog "go.opentelemetry.io/otel/log"
)

// NewLogHook returns a hook that mirrors every log record to the OTLP log
// exporter. Nil when telemetry is disabled; logging.SetHook treats nil as
// no hook at all.
func (t *Telemetry) NewLogHook() logging.LogHook {
	if t == nil || t.logger == nil {
		return nil
	}
	logger := t.logger

	return func(level logging.Level, msg string, attrs map[string]interface{}) {
		var rec otellog.Record
		rec.SetBody(otellog.StringValue(msg))
		rec.SetSeverityText(string(level))
		rec.SetSeverity(severity(level))
		rec.AddAttributes(attrKVs(attrs)...)
		logger.Emit(context.Background(), rec)
	}
}

// severity maps a logging level to its OTEL severity. The logging package
// already numbers levels on the OTEL severity scale, so the number is the
// severity.
func severity(level logging.Level) otellog.Severity {
	if n := logging.SeverityNumber(level); n > 0 {
		return otellog.Severity(n)
	}
	return otellog.SeverityInfo
}

// attrKVs converts one record's attribute map to OTEL log attributes.
func attrKVs(attrs map[string]interface{}) []otellog.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	kvs := make([]otellog.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, otellog.KeyValue{Key: k, Value: attrValue(v)})
	}
	return kvs
}

// attrValue converts a single log attribute. The typed cases cover what the
// delivery and receiver paths feed logging.F; anything else is formatted.
func attrValue(v interface{}) otellog.Value {
	switch val := v.(type) {
	case nil:
		return otellog.StringValue("<nil>")
	case string:
		return otellog.StringValue(val)
	case int:
		return otellog.IntValue(val)
	case int64:
		return otellog.Int64Value(val)
	case uint64:
		return otellog.Int64Value(int64(val))
	case float64:
		return otellog.Float64Value(val)
	case bool:
		return otellog.BoolValue(val)
	case error:
		return otellog.StringValue(val.Error())
	default:
		return otellog.StringValue(fmt.Sprint(val))
	}
}
