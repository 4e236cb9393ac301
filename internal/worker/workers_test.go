package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"go.uber.org/zap"
)

type fakeWorker struct {
	stat    stats.Stat
	err     error
	blocked bool
	ran     bool
}

func (f *fakeWorker) Init(sb stats.Builder) error {
	f.stat = sb.NewStat(stats.StatUpdatesPublished)
	return nil
}

func (f *fakeWorker) Run(ctx context.Context) error {
	f.ran = true
	f.stat.Incr(1)
	if f.blocked {
		<-ctx.Done()
		return nil
	}
	return f.err
}

func TestWorkers_RunAll(t *testing.T) {
	tracker := stats.NewStatTracker()
	w := New(Config{ReportInterval: 5 * time.Millisecond}, zap.NewNop(), tracker)

	a, b := &fakeWorker{}, &fakeWorker{}
	if err := w.Add("A", a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.Add("B", b); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !a.ran || !b.ran {
		t.Fatal("Expected both workers to run")
	}

	totals := tracker.Totals()
	if totals["A"][stats.StatUpdatesPublished] != 1 || totals["B"][stats.StatUpdatesPublished] != 1 {
		t.Errorf("Unexpected totals %v", totals)
	}
}

func TestWorkers_FailureCancelsOthers(t *testing.T) {
	w := New(Config{}, zap.NewNop(), nil)

	boom := errors.New("boom")
	failing := &fakeWorker{err: boom}
	blocked := &fakeWorker{blocked: true}
	_ = w.Add("failing", failing)
	_ = w.Add("blocked", blocked)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Errorf("Expected boom error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected failing worker to cancel the group")
	}
}
