package otlp

import (
	"os"

	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	otlpCommon "go.opentelemetry.io/proto/otlp/common/v1"
	otlpRes "go.opentelemetry.io/proto/otlp/resource/v1"
)

const (
	ServiceName = "paoi-subscriber"
	ScopeName   = "paoi/measurement"

	AttrPolicy   = "paoi.policy"
	AttrRunIndex = "paoi.run_index"
	AttrMu       = "paoi.mu"
)

// NewResource describes the subscriber measuring one sweep point.
func NewResource(policy string, runIndex int, mu float64) *otlpRes.Resource {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}

	return &otlpRes.Resource{
		Attributes: []*otlpCommon.KeyValue{
			StringAttr(string(semconv.ServiceNameKey), ServiceName),
			StringAttr(string(semconv.HostNameKey), host),
			StringAttr(AttrPolicy, policy),
			IntAttr(AttrRunIndex, int64(runIndex)),
			DoubleAttr(AttrMu, mu),
		},
	}
}

func NewScope(version string) *otlpCommon.InstrumentationScope {
	return &otlpCommon.InstrumentationScope{
		Name:    ScopeName,
		Version: version,
		Attributes: []*otlpCommon.KeyValue{
			StringAttr(string(semconv.TelemetrySDKNameKey), "go"),
		},
	}
}

func StringAttr(key, v string) *otlpCommon.KeyValue {
	return &otlpCommon.KeyValue{
		Key:   key,
		Value: &otlpCommon.AnyValue{Value: &otlpCommon.AnyValue_StringValue{StringValue: v}},
	}
}

func IntAttr(key string, v int64) *otlpCommon.KeyValue {
	return &otlpCommon.KeyValue{
		Key:   key,
		Value: &otlpCommon.AnyValue{Value: &otlpCommon.AnyValue_IntValue{IntValue: v}},
	}
}

func DoubleAttr(key string, v float64) *otlpCommon.KeyValue {
	return &otlpCommon.KeyValue{
		Key:   key,
		Value: &otlpCommon.AnyValue{Value: &otlpCommon.AnyValue_DoubleValue{DoubleValue: v}},
	}
}

// Lookup returns the attribute with the given key, or nil.
func Lookup(attrs []*otlpCommon.KeyValue, key string) *otlpCommon.AnyValue {
	for _, kv := range attrs {
		if kv.GetKey() == key {
			return kv.GetValue()
		}
	}
	return nil
}
