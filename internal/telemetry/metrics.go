package telemetry

import (
	"bytes"
	gzip2 "compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/otlp"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"

	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	otlpMetricsColl "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	otlpCommon "go.opentelemetry.io/proto/otlp/common/v1"
	otlpMetrics "go.opentelemetry.io/proto/otlp/metrics/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding/gzip"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	MetricPAoI         = "paoi.measured"
	MetricServiceDelay = "paoi.service_delay"

	exportTimeout = 5 * time.Second
)

type Config struct {
	Endpoint     *url.URL
	UseGRPC      bool
	Headers      map[string]string
	PushInterval time.Duration
	Version      string
}

type runKey struct {
	policy string
	index  int
	mu     float64
}

type sample struct {
	run   runKey
	at    time.Time
	paoi  time.Duration
	delay time.Duration
}

// Exporter buffers logged samples and pushes them as OTLP gauges on every
// push interval. Delivery is best effort: a failed batch is dropped.
type Exporter struct {
	cfg   Config
	log   *zap.Logger
	scope *otlpCommon.InstrumentationScope

	mu      sync.Mutex
	run     runKey
	pending []sample

	client        *http.Client
	conn          *grpc.ClientConn
	metricsClient otlpMetricsColl.MetricsServiceClient

	statPointsSent  stats.Stat
	statBatchesSent stats.Stat
	statBytesSent   stats.Stat
	statErrors      stats.Stat
}

func NewExporter(cfg Config, log *zap.Logger) (*Exporter, error) {
	if cfg.Endpoint == nil {
		return nil, errors.New("missing OTLP endpoint")
	}
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = time.Second
	}

	e := &Exporter{
		cfg:    cfg,
		log:    log,
		scope:  otlp.NewScope(cfg.Version),
		client: &http.Client{Timeout: exportTimeout},
	}

	if cfg.UseGRPC {
		opts := []grpc.DialOption{
			grpc.WithDefaultCallOptions(grpc.UseCompressor(gzip.Name)),
		}

		if cfg.Endpoint.Scheme != "https" {
			opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		}

		conn, err := grpc.NewClient(fmt.Sprintf("%s:%s", cfg.Endpoint.Hostname(), cfg.Endpoint.Port()), opts...)
		if err != nil {
			return nil, err
		}

		e.conn = conn
		e.metricsClient = otlpMetricsColl.NewMetricsServiceClient(conn)
	}

	return e, nil
}

func (e *Exporter) Init(statsBuilder stats.Builder) error {
	e.statPointsSent = statsBuilder.NewStat(stats.StatPointsSent)
	e.statBatchesSent = statsBuilder.NewStat(stats.StatBatchesSent)
	e.statBytesSent = statsBuilder.NewStat(stats.StatBytesSent)
	e.statErrors = statsBuilder.NewStat(stats.StatExportErrors)
	return nil
}

// SetRun tags subsequently recorded samples with the sweep point.
func (e *Exporter) SetRun(run config.Run) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.run = runKey{policy: run.Policy.String(), index: run.Index, mu: run.Mu}
}

func (e *Exporter) Record(at time.Time, paoi, serviceDelay time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, sample{run: e.run, at: at, paoi: paoi, delay: serviceDelay})
}

// Run pushes on every interval until ctx is done, then flushes what is
// left.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), exportTimeout)
			defer cancel()

			if err := e.Flush(flushCtx); err != nil {
				e.log.Error("Final OTLP flush failed", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := e.Flush(ctx); err != nil {
				e.log.Error("Failed to push PAoI metrics", zap.Error(err))
			}
		}
	}
}

// Flush pushes every pending sample in a single request.
func (e *Exporter) Flush(ctx context.Context) error {
	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	batch := e.buildBatch(pending)

	var err error
	if e.cfg.UseGRPC {
		err = e.pushBatchGRPC(ctx, batch)
	} else {
		err = e.pushBatchHTTP(ctx, batch)
	}
	if err != nil {
		e.statErrors.Incr(1)
		return err
	}

	e.statPointsSent.Incr(uint64(2 * len(pending)))
	e.statBatchesSent.Incr(1)
	return nil
}

func (e *Exporter) Close() error {
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

func (e *Exporter) pushBatchGRPC(ctx context.Context, batch []*otlpMetrics.ResourceMetrics) error {
	ctx, cancel := context.WithTimeout(ctx, exportTimeout)
	defer cancel()

	if len(e.cfg.Headers) > 0 {
		ctx = metadata.NewOutgoingContext(ctx, metadata.New(e.cfg.Headers))
	}

	msg := &otlpMetricsColl.ExportMetricsServiceRequest{ResourceMetrics: batch}
	resp, err := e.metricsClient.Export(ctx, msg)
	if err != nil {
		return err
	}

	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedDataPoints() != 0 {
		return fmt.Errorf("rejected data points: %d (%s)", ps.GetRejectedDataPoints(), ps.GetErrorMessage())
	}

	e.statBytesSent.Incr(uint64(proto.Size(msg)))
	return nil
}

func (e *Exporter) pushBatchHTTP(ctx context.Context, batch []*otlpMetrics.ResourceMetrics) error {
	msg := &otlpMetricsColl.ExportMetricsServiceRequest{ResourceMetrics: batch}

	buf, err := protojson.Marshal(msg)
	if err != nil {
		return err
	}

	bufOut := bytes.NewBuffer(nil)
	gr := gzip2.NewWriter(bufOut)
	if _, err := gr.Write(buf); err != nil {
		return err
	}
	if err := gr.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.Endpoint.String(), bufOut)
	if err != nil {
		return err
	}

	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	e.statBytesSent.Incr(uint64(len(buf)))
	return nil
}

// buildBatch groups samples by sweep point, one resource per point.
func (e *Exporter) buildBatch(samples []sample) []*otlpMetrics.ResourceMetrics {
	var (
		out   []*otlpMetrics.ResourceMetrics
		index = make(map[runKey]int)
	)

	for _, s := range samples {
		i, ok := index[s.run]
		if !ok {
			i = len(out)
			index[s.run] = i
			out = append(out, &otlpMetrics.ResourceMetrics{
				Resource: otlp.NewResource(s.run.policy, s.run.index, s.run.mu),
				ScopeMetrics: []*otlpMetrics.ScopeMetrics{
					{
						Scope: e.scope,
						Metrics: []*otlpMetrics.Metric{
							newGauge(MetricPAoI, "Measured peak age of information."),
							newGauge(MetricServiceDelay, "Simulated service delay."),
						},
						SchemaUrl: semconv.SchemaURL,
					},
				},
				SchemaUrl: semconv.SchemaURL,
			})
		}

		metrics := out[i].ScopeMetrics[0].Metrics
		ts := uint64(s.at.UnixNano())
		appendPoint(metrics[0], ts, s.paoi.Seconds())
		appendPoint(metrics[1], ts, s.delay.Seconds())
	}

	return out
}

func newGauge(name, desc string) *otlpMetrics.Metric {
	return &otlpMetrics.Metric{
		Name:        name,
		Description: desc,
		Unit:        "s",
		Data:        &otlpMetrics.Metric_Gauge{Gauge: &otlpMetrics.Gauge{}},
	}
}

func appendPoint(m *otlpMetrics.Metric, ts uint64, v float64) {
	g := m.GetGauge()
	g.DataPoints = append(g.DataPoints, &otlpMetrics.NumberDataPoint{
		TimeUnixNano: ts,
		Value:        &otlpMetrics.NumberDataPoint_AsDouble{AsDouble: v},
	})
}
