package config

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"
)

type Policy int

const (
	PolicyCU Policy = iota
	PolicyZW
)

func (p Policy) String() string {
	switch p {
	case PolicyCU:
		return "CU"
	case PolicyZW:
		return "ZW"
	default:
		return "unknown"
	}
}

// Sweep is an inclusive range of mean service times in seconds.
type Sweep struct {
	Start float64 `json:"start"`
	Stop  float64 `json:"stop"`
	Step  float64 `json:"step"`
}

// Points expands the sweep. A non-positive step yields just Start.
func (s Sweep) Points() []float64 {
	if s.Step <= 0 || s.Stop < s.Start {
		return []float64{s.Start}
	}

	n := int(math.Floor((s.Stop-s.Start)/s.Step+1e-9)) + 1
	points := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		// round away float accumulation so file names stay stable
		p := math.Round((s.Start+float64(i)*s.Step)*1e9) / 1e9
		points = append(points, p)
	}
	return points
}

// Run is the immutable parameter set of one sweep point.
type Run struct {
	Index       int
	ServiceTime float64
	Mu          float64
	Lamb        float64

	Policy      Policy
	StatusTopic string
	AckTopic    string
	QoS         byte

	ArrivalInterval time.Duration
	AckTimeout      time.Duration

	NumSamples  int
	MinSamples  int
	ServiceMode string
	SimOffset   time.Duration

	LogPath         string
	MatPath         string
	ServiceTimePath string
}

// Runs returns one Run per sweep point, indexed from 1.
func (c *Config) Runs() []Run {
	points := c.Sweep.Points()
	runs := make([]Run, 0, len(points))
	for i, p := range points {
		runs = append(runs, c.Run(i+1, p))
	}
	return runs
}

// Run derives the parameters for sweep point idx with the given mean
// service time. A non-positive service time falls back to Mu.
func (c *Config) Run(idx int, serviceTime float64) Run {
	mu := c.Mu
	if serviceTime > 0 {
		mu = 1 / serviceTime
	} else {
		serviceTime = 1 / c.Mu
	}

	policy := c.Policy()
	suffix := "/" + policy.String()

	return Run{
		Index:           idx,
		ServiceTime:     serviceTime,
		Mu:              mu,
		Lamb:            c.Lamb,
		Policy:          policy,
		StatusTopic:     c.StatusUpdateTopic + suffix,
		AckTopic:        c.AckTopic + suffix,
		QoS:             c.QoS,
		ArrivalInterval: seconds(c.Lamb),
		AckTimeout:      seconds(c.AckTimeout),
		NumSamples:      c.NumSamples,
		MinSamples:      c.MinSamples,
		ServiceMode:     c.ServiceMode,
		SimOffset:       seconds(c.SimOffset),
		LogPath:         c.runFile(policy, c.LogFilename, idx),
		MatPath:         c.runFile(policy, c.MatFilename, idx),
		ServiceTimePath: c.runFile(policy, c.ServiceTimeFilename, idx),
	}
}

// ResultPath is the result file of a given policy and sweep index.
func (c *Config) ResultPath(policy Policy, idx int) string {
	return c.runFile(policy, c.MatFilename, idx)
}

// runFile maps "PAoI.txt" to "<dir>/ZW_PAoI-3.txt"
func (c *Config) runFile(policy Policy, name string, idx int) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return filepath.Join(c.EmpiricalDirpath, fmt.Sprintf("%s_%s-%d%s", policy, base, idx, ext))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
