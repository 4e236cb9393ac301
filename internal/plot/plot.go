// Package plot renders the sweep results as SVG figures.
package plot

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/results"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	MeanFigure      = "mean_PAoI_vs_service_time.svg"
	ViolationFigure = "PAoI_violation_probability.svg"
)

var (
	figWidth  = 6 * vg.Inch
	figHeight = 4 * vg.Inch
)

// Policies is the order in which series are drawn.
var Policies = []config.Policy{config.PolicyCU, config.PolicyZW}

// Series is a named set of points, e.g. one policy.
type Series struct {
	Name   string
	Points plotter.XYs
}

// LoadMeans returns the mean PAoI per sweep point for every policy. Points
// without a result file are skipped with a warning.
func LoadMeans(c *config.Config, log *zap.Logger) ([]Series, error) {
	points := c.Sweep.Points()

	out := make([]Series, 0, len(Policies))
	for _, policy := range Policies {
		s := Series{Name: policy.String()}
		for i, serviceTime := range points {
			path := c.ResultPath(policy, i+1)
			samples, err := results.Load(path)
			if errors.Is(err, os.ErrNotExist) {
				log.Warn("Skipping missing result file", zap.String("path", path))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
			if len(samples) == 0 {
				log.Warn("Skipping empty result file", zap.String("path", path))
				continue
			}

			s.Points = append(s.Points, plotter.XY{X: serviceTime, Y: stat.Mean(samples, nil)})
		}
		out = append(out, s)
	}
	return out, nil
}

// MeanVsServiceTime plots the mean PAoI of each series against the mean
// service time on a logarithmic y axis.
func MeanVsServiceTime(series []Series, path string) error {
	p := plot.New()
	p.Title.Text = "Mean PAoI vs mean service time"
	p.X.Label.Text = "Mean service time (s)"
	p.Y.Label.Text = "Mean PAoI (s)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var args []interface{}
	for _, s := range series {
		// log scale cannot place non-positive values
		pts := positive(s.Points)
		if len(pts) == 0 {
			continue
		}
		args = append(args, s.Name, pts)
	}
	if len(args) == 0 {
		return errors.New("no data to plot")
	}

	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return err
	}
	return save(p, path)
}

// ViolationProbability plots P(PAoI > threshold) for each named sample
// set over the given thresholds.
func ViolationProbability(samples map[string][]float64, order []string, thresholds []float64, path string) error {
	if len(thresholds) == 0 {
		return errors.New("no thresholds")
	}

	p := plot.New()
	p.Title.Text = "PAoI violation probability"
	p.X.Label.Text = "Threshold (s)"
	p.Y.Label.Text = "P(PAoI > threshold)"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	var args []interface{}
	for _, name := range order {
		values, ok := samples[name]
		if !ok || len(values) == 0 {
			continue
		}

		probs := results.ViolationProbability(values, thresholds)
		pts := make(plotter.XYs, len(thresholds))
		for i := range thresholds {
			pts[i] = plotter.XY{X: thresholds[i], Y: probs[i]}
		}
		args = append(args, name, pts)
	}
	if len(args) == 0 {
		return errors.New("no data to plot")
	}

	if err := plotutil.AddLinePoints(p, args...); err != nil {
		return err
	}
	return save(p, path)
}

// Thresholds expands an inclusive threshold range.
func Thresholds(start, stop, step float64) []float64 {
	return config.Sweep{Start: start, Stop: stop, Step: step}.Points()
}

func positive(pts plotter.XYs) plotter.XYs {
	out := make(plotter.XYs, 0, len(pts))
	for _, pt := range pts {
		if pt.Y > 0 && !math.IsNaN(pt.Y) && !math.IsInf(pt.Y, 0) {
			out = append(out, pt)
		}
	}
	return out
}

func save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(figWidth, figHeight, path)
}
