// Package tracefile reads and writes movement traces as CSV with the header
// "Timestamp,X,Y", one sample per row.
package tracefile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/okian/humancheck/internal/domain/motion"
)

// Header is the column row of a trace file.
var Header = []string{"Timestamp", "X", "Y"}

// Read parses a trace. Whitespace around fields is ignored.
func Read(r io.Reader) ([]motion.Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedTrace)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedTrace, err)
	}
	for i, want := range Header {
		if !strings.EqualFold(strings.TrimSpace(head[i]), want) {
			return nil, fmt.Errorf("%w: header column %d is %q, want %q", ErrMalformedTrace, i+1, head[i], want)
		}
	}

	var out []motion.Sample
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedTrace, err)
		}
		line, _ := cr.FieldPos(0)

		var vals [3]float64
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d: %s %q", ErrMalformedTrace, line, Header[i], field)
			}
			vals[i] = v
		}
		s := motion.Sample{Timestamp: vals[0], X: vals[1], Y: vals[2]}
		if n := len(out); n > 0 && s.Timestamp <= out[n-1].Timestamp {
			return nil, fmt.Errorf("%w: line %d: timestamp %v after %v", ErrUnorderedTrace, line, s.Timestamp, out[n-1].Timestamp)
		}
		out = append(out, s)
	}
}

// Write emits samples in trace format.
func Write(w io.Writer, samples []motion.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	row := make([]string, len(Header))
	for _, s := range samples {
		row[0] = strconv.FormatFloat(s.Timestamp, 'f', -1, 64)
		row[1] = strconv.FormatFloat(s.X, 'f', -1, 64)
		row[2] = strconv.FormatFloat(s.Y, 'f', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFile reads the trace stored at path.
func ReadFile(path string) ([]motion.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	samples, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return samples, nil
}

// WriteFile writes samples to path, replacing any existing file.
func WriteFile(path string, samples []motion.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, samples); err != nil {
		_ = f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
