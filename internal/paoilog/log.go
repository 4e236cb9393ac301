// Package paoilog reads and writes the per-run sample logs. Each line is
// "<date>|<time>: <value>" with the value in seconds to 4 decimals. The
// first line of a log is a header and never holds a sample.
package paoilog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DateFormat = "2006-01-02"
	TimeFormat = "15-04-05.000000"
)

func Stamp(t time.Time) string {
	return t.Format(DateFormat + "|" + TimeFormat)
}

// Writer appends samples to a log file. Every Append reaches the file
// before returning.
type Writer struct {
	mu    sync.Mutex
	f     *os.File
	count int
}

// Create truncates or creates the log at path and writes the header line.
func Create(path string, header string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(f, "%s: %s\n", Stamp(time.Now()), header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}

	return &Writer{f: f}, nil
}

func (w *Writer) Append(at time.Time, value float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.f, "%s: %.4f\n", Stamp(at), value); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count is the number of samples appended, excluding the header.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

func (w *Writer) Close() error {
	return w.f.Close()
}

// ReadValues returns the samples of a log in file order, header excluded.
func ReadValues(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if line == 1 {
			continue
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		v, err := ParseLine(text)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return values, nil
}

func ParseLine(line string) (float64, error) {
	i := strings.LastIndexByte(line, ':')
	if i < 0 {
		return 0, fmt.Errorf("no value separator in %q", line)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(line[i+1:]), 64)
	if err != nil {
		return 0, fmt.Errorf("parse value: %w", err)
	}
	return v, nil
}
