package telemetry

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/otlp"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	otlpMetricsColl "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protojson"
)

type capture struct {
	mu       sync.Mutex
	requests []*otlpMetricsColl.ExportMetricsServiceRequest
	headers  []http.Header
}

func (c *capture) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Errorf("gzip: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(zr)
		if err != nil {
			t.Errorf("read: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		req := &otlpMetricsColl.ExportMetricsServiceRequest{}
		if err := protojson.Unmarshal(body, req); err != nil {
			t.Errorf("unmarshal: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		c.mu.Lock()
		c.requests = append(c.requests, req)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func newHTTPExporter(t *testing.T, rawURL string, interval time.Duration) (*Exporter, stats.Tracker) {
	t.Helper()

	endpoint, err := url.Parse(rawURL)
	if err != nil {
		t.Fatal(err)
	}

	exp, err := NewExporter(Config{
		Endpoint:     endpoint,
		Headers:      map[string]string{"Authorization": "Bearer token"},
		PushInterval: interval,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}

	tracker := stats.NewStatTracker()
	if err := exp.Init(tracker.NewDomain("Exporter")); err != nil {
		t.Fatal(err)
	}
	return exp, tracker
}

func TestExporter_HTTPGroupsByRun(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	exp, tracker := newHTTPExporter(t, srv.URL+"/v1/metrics", time.Hour)

	now := time.Now()
	exp.SetRun(config.Run{Index: 1, Policy: config.PolicyCU, Mu: 1})
	exp.Record(now, time.Second, 100*time.Millisecond)
	exp.SetRun(config.Run{Index: 2, Policy: config.PolicyCU, Mu: 0.5})
	exp.Record(now, 2*time.Second, 200*time.Millisecond)
	exp.Record(now, 3*time.Second, 300*time.Millisecond)

	if err := exp.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(c.requests))
	}
	if got := c.headers[0].Get("Authorization"); got != "Bearer token" {
		t.Errorf("Expected custom header, got %q", got)
	}

	rms := c.requests[0].ResourceMetrics
	if len(rms) != 2 {
		t.Fatalf("Expected one resource per run, got %d", len(rms))
	}
	if idx := otlp.Lookup(rms[1].Resource.Attributes, otlp.AttrRunIndex).GetIntValue(); idx != 2 {
		t.Errorf("Expected run index 2, got %d", idx)
	}

	metrics := rms[1].ScopeMetrics[0].Metrics
	if metrics[0].Name != MetricPAoI || metrics[1].Name != MetricServiceDelay {
		t.Fatalf("Unexpected metrics %s, %s", metrics[0].Name, metrics[1].Name)
	}
	points := metrics[0].GetGauge().GetDataPoints()
	if len(points) != 2 || points[0].GetAsDouble() != 2 || points[1].GetAsDouble() != 3 {
		t.Errorf("Unexpected PAoI points %v", points)
	}

	if n := tracker.Totals()["Exporter"][stats.StatBatchesSent]; n != 1 {
		t.Errorf("Expected 1 batch, got %d", n)
	}
}

func TestExporter_FlushEmptyIsNoop(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	exp, _ := newHTTPExporter(t, srv.URL, time.Hour)
	if err := exp.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) != 0 {
		t.Errorf("Expected no request, got %d", len(c.requests))
	}
}

func TestExporter_ErrorStatusDropsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	exp, tracker := newHTTPExporter(t, srv.URL, time.Hour)
	exp.Record(time.Now(), time.Second, time.Millisecond)

	if err := exp.Flush(context.Background()); err == nil {
		t.Fatal("Expected an error for a 503 response")
	}
	if n := tracker.Totals()["Exporter"][stats.StatExportErrors]; n != 1 {
		t.Errorf("Expected 1 export error, got %d", n)
	}

	// nothing left to retry
	if err := exp.Flush(context.Background()); err != nil {
		t.Errorf("Expected empty flush after a dropped batch, got %v", err)
	}
}

func TestExporter_RunFlushesOnCancel(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	exp, _ := newHTTPExporter(t, srv.URL, time.Hour)
	exp.Record(time.Now(), time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exp.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Expected Run to return after cancel")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) != 1 {
		t.Errorf("Expected the final flush to push, got %d requests", len(c.requests))
	}
}
