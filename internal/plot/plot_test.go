package plot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/config"
	"github.com/AryanSethi20/Empirical-PAoI-Measurement-with-MQTT/internal/results"
	"go.uber.org/zap"
	"gonum.org/v1/plot/plotter"
)

func assertSVG(t *testing.T, path string) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !strings.Contains(string(data), "<svg") {
		t.Errorf("Expected SVG output in %s", path)
	}
}

func TestLoadMeans_SkipsMissingPoints(t *testing.T) {
	c := config.Default()
	c.EmpiricalDirpath = t.TempDir()
	c.Sweep = config.Sweep{Start: 1, Stop: 2, Step: 0.5}

	if err := results.WriteMat(c.ResultPath(config.PolicyCU, 1), results.Field, []float64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := results.WriteMat(c.ResultPath(config.PolicyCU, 3), results.Field, []float64{4, 6}); err != nil {
		t.Fatal(err)
	}
	if err := results.WriteMat(c.ResultPath(config.PolicyZW, 2), results.Field, []float64{2}); err != nil {
		t.Fatal(err)
	}

	series, err := LoadMeans(c, zap.NewNop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(series) != 2 || series[0].Name != "CU" || series[1].Name != "ZW" {
		t.Fatalf("Unexpected series %+v", series)
	}

	want := plotter.XYs{{X: 1, Y: 2}, {X: 2, Y: 5}}
	if len(series[0].Points) != len(want) {
		t.Fatalf("Expected %d CU points, got %d", len(want), len(series[0].Points))
	}
	for i := range want {
		if series[0].Points[i] != want[i] {
			t.Errorf("Expected point %v, got %v", want[i], series[0].Points[i])
		}
	}
	if len(series[1].Points) != 1 || series[1].Points[0].X != 1.5 {
		t.Errorf("Unexpected ZW points %v", series[1].Points)
	}
}

func TestMeanVsServiceTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "figures", MeanFigure)
	series := []Series{
		{Name: "CU", Points: plotter.XYs{{X: 1, Y: 4}, {X: 1.5, Y: 5}, {X: 2, Y: 7}}},
		{Name: "ZW", Points: plotter.XYs{{X: 1, Y: 3}, {X: 1.5, Y: 0}, {X: 2, Y: 4}}},
	}

	if err := MeanVsServiceTime(series, path); err != nil {
		t.Fatalf("plot: %v", err)
	}
	assertSVG(t, path)
}

func TestMeanVsServiceTime_NoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), MeanFigure)
	if err := MeanVsServiceTime([]Series{{Name: "CU"}}, path); err == nil {
		t.Error("Expected an error without data")
	}
}

func TestViolationProbability(t *testing.T) {
	path := filepath.Join(t.TempDir(), ViolationFigure)
	samples := map[string][]float64{
		"CU": {1, 2, 3, 4},
		"ZW": {2, 2, 2, 8},
	}

	if err := ViolationProbability(samples, []string{"CU", "ZW"}, Thresholds(0, 10, 0.5), path); err != nil {
		t.Fatalf("plot: %v", err)
	}
	assertSVG(t, path)
}

func TestThresholds(t *testing.T) {
	got := Thresholds(0, 1, 0.25)
	want := []float64{0, 0.25, 0.5, 0.75, 1}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, got)
		}
	}
}
