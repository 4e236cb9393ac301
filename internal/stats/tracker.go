package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type Tracker interface {
	NewDomain(domain string) Builder
	Report(now time.Time) map[string][]StatReport
	Totals() map[string]map[StatType]uint64
}

type Builder interface {
	NewStat(statType StatType) Stat
}

type StatReport struct {
	statType StatType

	total uint64
	delta uint64
	dur   time.Duration
}

type statTracker struct {
	sync.RWMutex
	domains map[string]*statDomain
}

type statDomain struct {
	sync.Mutex
	stats map[StatType]*stat
}

type statBuilder struct {
	domain *statDomain
}

func NewStatTracker() Tracker {
	return &statTracker{
		domains: make(map[string]*statDomain),
	}
}

func (s *statTracker) NewDomain(domain string) Builder {
	s.Lock()
	defer s.Unlock()

	d, ok := s.domains[domain]
	if !ok {
		d = &statDomain{stats: make(map[StatType]*stat)}
		s.domains[domain] = d
	}

	return &statBuilder{domain: d}
}

// NewStat returns the existing stat of that type in the domain, so that
// successive runs keep accumulating into the same counter.
func (s *statBuilder) NewStat(statType StatType) Stat {
	s.domain.Lock()
	defer s.domain.Unlock()

	if existing, ok := s.domain.stats[statType]; ok {
		return existing
	}

	newStat := &stat{statType: statType}
	s.domain.stats[statType] = newStat

	return newStat
}

func (d *statDomain) snapshot() []*stat {
	d.Lock()
	defer d.Unlock()

	out := make([]*stat, 0, len(d.stats))
	for _, v := range d.stats {
		out = append(out, v)
	}
	return out
}

func (d *statDomain) report(now time.Time) []StatReport {
	stats := d.snapshot()

	reports := make([]StatReport, 0, len(stats))
	for _, s := range stats {
		s.lastReportMut.Lock()

		if s.lastReportTime.IsZero() {
			// first tick only records the baseline
			s.lastReportTime = now
			s.lastReportValue = s.value.Load()
			s.lastReportMut.Unlock()
			continue
		}

		currValue := s.value.Load()

		reports = append(reports, StatReport{
			statType: s.statType,
			total:    currValue,
			delta:    currValue - s.lastReportValue,
			dur:      now.Sub(s.lastReportTime),
		})

		s.lastReportTime = now
		s.lastReportValue = currValue

		s.lastReportMut.Unlock()
	}

	sort.Slice(reports, func(i, j int) bool {
		return strings.Compare(reports[i].statType.desc(), reports[j].statType.desc()) < 0
	})

	return reports
}

func (s *statTracker) domainsCopy() map[string]*statDomain {
	s.RLock()
	defer s.RUnlock()

	domains := make(map[string]*statDomain, len(s.domains))
	for k, d := range s.domains {
		domains[k] = d
	}
	return domains
}

func (s *statTracker) Report(now time.Time) map[string][]StatReport {
	reports := make(map[string][]StatReport)
	for k, d := range s.domainsCopy() {
		reports[k] = d.report(now)
	}

	return reports
}

func (s *statTracker) Totals() map[string]map[StatType]uint64 {
	totals := make(map[string]map[StatType]uint64)
	for k, d := range s.domainsCopy() {
		m := make(map[StatType]uint64)
		for _, st := range d.snapshot() {
			m[st.statType] = st.value.Load()
		}
		totals[k] = m
	}

	return totals
}

func (s *StatReport) Report() string {
	return fmt.Sprintf("%d %s (total %d, %4.2f %s/sec)",
		s.delta, s.statType.desc(), s.total,
		float64(s.delta)/s.dur.Seconds(), s.statType.unit(),
	)
}
