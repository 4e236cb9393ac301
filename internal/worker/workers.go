package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/stats"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Workers struct {
	cfg     Config
	log     *zap.Logger
	names   []string
	workers []Worker
	stats   stats.Tracker
}

type Config struct {
	ReportInterval time.Duration
}

// New creates a worker group. A nil tracker gets a fresh one; passing the
// same tracker across sweep runs keeps totals accumulating.
func New(cfg Config, log *zap.Logger, tracker stats.Tracker) *Workers {
	if tracker == nil {
		tracker = stats.NewStatTracker()
	}

	return &Workers{
		cfg:   cfg,
		log:   log,
		stats: tracker,
	}
}

func (w *Workers) Add(domain string, worker Worker) error {
	sb := w.stats.NewDomain(domain)
	if err := worker.Init(sb); err != nil {
		return fmt.Errorf("init %s: %w", domain, err)
	}

	w.names = append(w.names, domain)
	w.workers = append(w.workers, worker)
	return nil
}

// Run starts every worker and waits for all of them. The first worker to
// fail cancels the others.
func (w *Workers) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	statsStop := make(chan struct{})
	statsWg := &sync.WaitGroup{}
	if w.cfg.ReportInterval > 0 {
		ticker := time.NewTicker(w.cfg.ReportInterval)

		statsWg.Add(1)
		go func() {
			defer func() {
				ticker.Stop()
				statsWg.Done()
			}()

			w.printStats(ticker, statsStop)
		}()
	}

	var (
		mu   sync.Mutex
		errs error
		wg   sync.WaitGroup
	)
	for i, worker := range w.workers {
		wg.Add(1)
		go func(name string, worker Worker) {
			defer wg.Done()

			if err := worker.Run(ctx); err != nil {
				w.log.Error("worker failed", zap.String("worker", name), zap.Error(err))

				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}(w.names[i], worker)
	}
	wg.Wait()

	close(statsStop)
	statsWg.Wait()

	return errs
}

func (w *Workers) printStats(ticker *time.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case <-ticker.C:
			reports := w.stats.Report(time.Now())
			if len(reports) == 0 {
				continue
			}

			domains := make([]string, 0, len(reports))
			for domain := range reports {
				domains = append(domains, domain)
			}
			sort.Strings(domains)

			for _, domain := range domains {
				reportOuts := make([]string, 0)
				for _, r := range reports[domain] {
					reportOuts = append(reportOuts, r.Report())
				}
				if len(reportOuts) > 0 {
					fmt.Printf("REPORT: [%s] %s\n", domain, strings.Join(reportOuts, ", "))
				}
			}
		}
	}
}
