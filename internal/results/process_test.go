package results

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleLog = `2024-01-01|10-00-00.000000: header
2024-01-01|10-00-01.000000: 1.5000
2024-01-01|10-00-02.000000: 2.0000
2024-01-01|10-00-03.000000: 2.5000
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "CU_PAoI-1.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestProcess_TrimsWarmup(t *testing.T) {
	logPath := writeLog(t, sampleLog)
	matPath := filepath.Join(filepath.Dir(logPath), "CU_PAoI-1.mat")

	summary, err := Process(logPath, matPath, 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if want := []float64{2.0, 2.5}; !reflect.DeepEqual(summary.Samples, want) {
		t.Fatalf("Expected trimmed %v, got %v", want, summary.Samples)
	}
	if summary.Mean != 2.25 {
		t.Errorf("Expected mean 2.25, got %v", summary.Mean)
	}
	if math.Abs(summary.Variance-0.0625) > 1e-12 {
		t.Errorf("Expected variance 0.0625, got %v", summary.Variance)
	}
	if math.Abs(summary.StdDev-0.25) > 1e-12 {
		t.Errorf("Expected std 0.25, got %v", summary.StdDev)
	}

	loaded, err := Load(matPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, summary.Samples) {
		t.Errorf("Expected result file to hold %v, got %v", summary.Samples, loaded)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	logPath := writeLog(t, sampleLog)
	matPath := filepath.Join(filepath.Dir(logPath), "out.mat")

	first, err := Process(logPath, matPath, 1)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	firstFile, err := Load(matPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	second, err := Process(logPath, matPath, 1)
	if err != nil {
		t.Fatalf("process again: %v", err)
	}
	secondFile, err := Load(matPath)
	if err != nil {
		t.Fatalf("load again: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical summaries, got %+v and %+v", first, second)
	}
	if !reflect.DeepEqual(firstFile, secondFile) {
		t.Errorf("Expected identical result arrays")
	}
}

func TestSummarize_TrimmedCount(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	for minSamples, want := range map[int]int{0: 5, 2: 3, 5: 0, 9: 0} {
		s := Summarize(values, minSamples)
		if len(s.Samples) != want {
			t.Errorf("minSamples=%d: expected %d samples, got %d", minSamples, want, len(s.Samples))
		}
	}

	empty := Summarize(values, 10)
	if !math.IsNaN(empty.Mean) {
		t.Errorf("Expected NaN mean for empty remainder, got %v", empty.Mean)
	}
	if len(values) != 5 || values[0] != 1 {
		t.Errorf("Expected input to be left untouched")
	}
}

func TestReadMat_SmallElementName(t *testing.T) {
	// name "PAoI" in the small element format, as other MAT writers emit it
	path := filepath.Join(t.TempDir(), "small.mat")

	var body []byte
	body = append(body, le32(miUINT32)...)
	body = append(body, le32(8)...)
	body = append(body, le32(mxDOUBLE_CLASS)...)
	body = append(body, le32(0)...)
	body = append(body, le32(miINT32)...)
	body = append(body, le32(8)...)
	body = append(body, le32(1)...)
	body = append(body, le32(1)...)
	body = append(body, le32(4<<16|miINT8)...)
	body = append(body, 'P', 'A', 'o', 'I')
	body = append(body, le32(miDOUBLE)...)
	body = append(body, le32(8)...)
	body = append(body, le64(math.Float64bits(4.5))...)

	raw := append(matHeader(), le32(miMATRIX)...)
	raw = append(raw, le32(uint32(len(body)))...)
	raw = append(raw, body...)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	values, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(values) != 1 || values[0] != 4.5 {
		t.Errorf("Expected [4.5], got %v", values)
	}
}

func TestViolationProbability(t *testing.T) {
	samples := []float64{1, 2, 3, 4}
	got := ViolationProbability(samples, []float64{0, 2, 4})
	if want := []float64{1, 0.5, 0}; !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func le64(v uint64) []byte {
	return append(le32(uint32(v)), le32(uint32(v>>32))...)
}
