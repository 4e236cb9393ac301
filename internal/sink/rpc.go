package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/otlp"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/telemetry"
	v1_metrics "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"go.uber.org/zap"
)

// Point is one received PAoI value with the sweep point it belongs to.
type Point struct {
	Policy   string
	RunIndex int64
	At       time.Time
	PAoI     float64
}

type otlpMetricsRPCService struct {
	log *zap.Logger
	v1_metrics.UnimplementedMetricsServiceServer

	points atomic.Int64

	mu   sync.Mutex
	last *Point
}

func (o *otlpMetricsRPCService) Export(ctx context.Context, request *v1_metrics.ExportMetricsServiceRequest) (*v1_metrics.ExportMetricsServiceResponse, error) {
	for _, rm := range request.ResourceMetrics {
		attrs := rm.GetResource().GetAttributes()
		policy := otlp.Lookup(attrs, otlp.AttrPolicy).GetStringValue()
		runIndex := otlp.Lookup(attrs, otlp.AttrRunIndex).GetIntValue()

		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				if m.GetName() != telemetry.MetricPAoI {
					continue
				}

				for _, dp := range m.GetGauge().GetDataPoints() {
					p := Point{
						Policy:   policy,
						RunIndex: runIndex,
						At:       time.Unix(0, int64(dp.GetTimeUnixNano())),
						PAoI:     dp.GetAsDouble(),
					}

					o.log.Info("Received PAoI",
						zap.String("policy", p.Policy),
						zap.Int64("run", p.RunIndex),
						zap.Float64("paoi", p.PAoI),
					)

					o.mu.Lock()
					o.last = &p
					o.mu.Unlock()
					o.points.Add(1)
				}
			}
		}
	}

	return &v1_metrics.ExportMetricsServiceResponse{}, nil
}

func (o *otlpMetricsRPCService) lastPoint() (Point, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.last == nil {
		return Point{}, false
	}
	return *o.last, true
}
