package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	SamplesTotal         = "paoi_samples_total"
	SamplesDroppedTotal  = "paoi_samples_dropped_total"
	UpdatesReceivedTotal = "paoi_updates_received_total"
	AcksSentTotal        = "paoi_acks_sent_total"

	LastPAoI = "paoi_last_seconds"
	RunIndex = "paoi_run_index"

	PAoIHistogram         = "paoi_seconds"
	ServiceDelayHistogram = "paoi_service_delay_seconds"
)

// Recorder is the subset of the collectors the measurement loop feeds.
type Recorder interface {
	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	Observe(name string, seconds float64)
}

type PromObs struct {
	registry *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the collectors on a private registry so that
// several observers can live in one process.
func NewPromObs() *PromObs {
	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SamplesTotal,
		Help: "PAoI samples appended to the run log.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SamplesDroppedTotal,
		Help: "PAoI samples discarded because they were negative.",
	})
	received := prometheus.NewCounter(prometheus.CounterOpts{
		Name: UpdatesReceivedTotal,
		Help: "Status updates received from the broker.",
	})
	acks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: AcksSentTotal,
		Help: "Acknowledgements published under the zero-wait policy.",
	})
	last := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: LastPAoI,
		Help: "Most recent PAoI sample.",
	})
	runIdx := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: RunIndex,
		Help: "Index of the sweep point being measured.",
	})
	paoi := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    PAoIHistogram,
		Help:    "Distribution of measured PAoI.",
		Buckets: prometheus.ExponentialBuckets(0.5, 1.5, 14),
	})
	service := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ServiceDelayHistogram,
		Help:    "Distribution of the simulated service delay.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(samples, dropped, received, acks, last, runIdx, paoi, service)

	return &PromObs{
		registry: reg,
		counters: map[string]prometheus.Counter{
			SamplesTotal:         samples,
			SamplesDroppedTotal:  dropped,
			UpdatesReceivedTotal: received,
			AcksSentTotal:        acks,
		},
		gauges: map[string]prometheus.Gauge{
			LastPAoI: last,
			RunIndex: runIdx,
		},
		histos: map[string]prometheus.Observer{
			PAoIHistogram:         paoi,
			ServiceDelayHistogram: service,
		},
	}
}

func (p *PromObs) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) Observe(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, float64) {}
func (Nop) SetGauge(string, float64)   {}
func (Nop) Observe(string, float64)    {}
