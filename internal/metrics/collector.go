package metrics

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNoElapsed is returned when execution output lacks the elapsed marker.
var ErrNoElapsed = errors.New("elapsed time not found in output")

// ErrBadElapsed is returned when the reported elapsed time is not positive.
var ErrBadElapsed = errors.New("elapsed time not positive")

var elapsedRe = regexp.MustCompile(`\belapsed: ([-+0-9.e]+)\b`)

// ParseElapsed extracts the seconds value following the first "elapsed:"
// marker in the output of a single execution. The value must be positive.
func ParseElapsed(output []byte) (float64, error) {
	m := elapsedRe.FindSubmatch(output)
	if m == nil {
		return 0, fmt.Errorf("%w (%d bytes of output)", ErrNoElapsed, len(output))
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("parse elapsed %q: %w", m[1], err)
	}
	if !(v > 0) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s", ErrBadElapsed, m[1])
	}
	return v, nil
}

// RawSummary is the machine-readable summary line of one sampler run:
// "n mean_i stdev_i mean_c stdev_c". Values of a mode that was not run are 0.
type RawSummary struct {
	Iterations       int
	InterpretedMean  float64
	InterpretedStdev float64
	CompiledMean     float64
	CompiledStdev    float64
}

// ParseRawSummary parses the last non-empty line of output as a RawSummary.
func ParseRawSummary(output string) (RawSummary, error) {
	lines := strings.Split(strings.TrimRight(output, "\n\r\t "), "\n")
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) != 5 {
		return RawSummary{}, fmt.Errorf("parse raw summary: expected 5 fields, got %d", len(fields))
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return RawSummary{}, fmt.Errorf("parse raw summary count: %w", err)
	}
	var vals [4]float64
	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return RawSummary{}, fmt.Errorf("parse raw summary field %d: %w", i+2, err)
		}
		vals[i] = v
	}
	return RawSummary{
		Iterations:       n,
		InterpretedMean:  vals[0],
		InterpretedStdev: vals[1],
		CompiledMean:     vals[2],
		CompiledStdev:    vals[3],
	}, nil
}

// String formats the summary the way ParseRawSummary reads it.
func (r RawSummary) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f",
		r.Iterations, r.InterpretedMean, r.InterpretedStdev, r.CompiledMean, r.CompiledStdev)
}

// Summary holds the statistics of the retained samples of one mode.
type Summary struct {
	Mean         float64 `json:"mean"`
	Stdev        float64 `json:"stdev"`
	StdevPercent float64 `json:"stdev_percent"`
	Median       float64 `json:"median"`
	P90          float64 `json:"p90"`
	Count        int     `json:"count"`
	// Retained are the samples the statistics were computed over, sorted
	// ascending when outliers were stripped.
	Retained []float64 `json:"retained"`
}

// Summarize computes statistics over samples, stripping the upper half
// first when strip is set. The input is not modified.
func Summarize(samples []float64, strip bool) Summary {
	kept := make([]float64, len(samples))
	copy(kept, samples)
	if strip {
		kept = StripOutliers(kept)
	}
	s := Summary{
		Mean:     Mean(kept),
		Stdev:    Stdev(kept),
		Count:    len(kept),
		Retained: kept,
	}
	if s.Mean != 0 {
		s.StdevPercent = 100 * s.Stdev / s.Mean
	}
	sorted := make([]float64, len(kept))
	copy(sorted, kept)
	sort.Float64s(sorted)
	s.Median = percentile(sorted, 50)
	s.P90 = percentile(sorted, 90)
	return s
}

// StripOutliers returns the ceil(n/2) smallest samples in ascending order.
func StripOutliers(samples []float64) []float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	return sorted[:(len(sorted)+1)/2]
}

// Sum returns the total of vals.
func Sum(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum
}

// Mean returns the arithmetic mean of vals, or 0 for an empty slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return Sum(vals) / float64(len(vals))
}

// Stdev returns the sample standard deviation (n-1 denominator). It is 0
// when fewer than two values are given.
func Stdev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := Mean(vals)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// percentile computes the p-th percentile from a sorted slice using
// the nearest-rank method.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100.0) * float64(len(sorted))
	idx := int(math.Ceil(rank)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
