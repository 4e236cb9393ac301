package results

import (
	"math"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/paoilog"
	"gonum.org/v1/gonum/stat"
)

// Field is the variable name of the PAoI array inside a result file.
const Field = "PAoI"

// Summary holds the trimmed samples of a run and their population
// statistics.
type Summary struct {
	Samples  []float64
	Mean     float64
	Variance float64
	StdDev   float64
}

// Summarize drops the first minSamples values as warm-up and computes the
// statistics of the remainder. The input is not modified.
func Summarize(values []float64, minSamples int) Summary {
	if minSamples < 0 {
		minSamples = 0
	}
	if minSamples > len(values) {
		minSamples = len(values)
	}

	trimmed := append([]float64{}, values[minSamples:]...)
	if len(trimmed) == 0 {
		return Summary{
			Samples:  trimmed,
			Mean:     math.NaN(),
			Variance: math.NaN(),
			StdDev:   math.NaN(),
		}
	}

	mean, variance := stat.PopMeanVariance(trimmed, nil)
	return Summary{
		Samples:  trimmed,
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
	}
}

// Process reads a PAoI log, summarizes it and writes the trimmed samples to
// a result file at matPath. An empty matPath skips the write.
func Process(logPath, matPath string, minSamples int) (Summary, error) {
	values, err := paoilog.ReadValues(logPath)
	if err != nil {
		return Summary{}, err
	}

	summary := Summarize(values, minSamples)
	if matPath == "" {
		return summary, nil
	}

	if err := WriteMat(matPath, Field, summary.Samples); err != nil {
		return summary, err
	}
	return summary, nil
}

// Load reads the PAoI array of a result file.
func Load(matPath string) ([]float64, error) {
	return ReadMat(matPath, Field)
}

// ViolationProbability returns, for each threshold, the fraction of samples
// strictly greater than it.
func ViolationProbability(samples []float64, thresholds []float64) []float64 {
	out := make([]float64, len(thresholds))
	if len(samples) == 0 {
		return out
	}

	for i, th := range thresholds {
		var n int
		for _, v := range samples {
			if v > th {
				n++
			}
		}
		out[i] = float64(n) / float64(len(samples))
	}
	return out
}
