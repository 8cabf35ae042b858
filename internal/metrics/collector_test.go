package metrics

import (
	"errors"
	"math"
	"testing"
)

func TestPercentile_Empty(t *testing.T) {
	got := percentile(nil, 50)
	if got != 0 {
		t.Errorf("percentile of empty slice: got %f, want 0", got)
	}
}

func TestPercentile_Known(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		p    float64
		want float64
	}{
		{50, 5},
		{90, 9},
		{99, 10},
		{10, 1},
	}
	for _, tt := range tests {
		got := percentile(sorted, tt.p)
		if got != tt.want {
			t.Errorf("percentile(%v, %.0f) = %f, want %f", sorted, tt.p, got, tt.want)
		}
	}
}

func TestParseElapsed(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{"plain", "\nelapsed: 0.123456\n", 0.123456},
		{"noise around", "warming caches\nelapsed: 1.5e-3\ndone\n", 0.0015},
		{"first marker wins", "elapsed: 2.0\nelapsed: 3.0\n", 2.0},
		{"integer", "elapsed: 4\n", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseElapsed([]byte(tt.output))
			if err != nil {
				t.Fatalf("ParseElapsed: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %g, want %g", got, tt.want)
			}
		})
	}
}

func TestParseElapsed_Missing(t *testing.T) {
	for _, out := range []string{"", "time: 0.3\n", "elapsed:0.3\n", "unelapsed: 1\n"} {
		_, err := ParseElapsed([]byte(out))
		if !errors.Is(err, ErrNoElapsed) {
			t.Errorf("ParseElapsed(%q): expected ErrNoElapsed, got %v", out, err)
		}
	}
}

func TestParseElapsed_NotPositive(t *testing.T) {
	for _, out := range []string{"elapsed: 0\n", "elapsed: 0.0\n", "elapsed: -1.5\n"} {
		_, err := ParseElapsed([]byte(out))
		if !errors.Is(err, ErrBadElapsed) {
			t.Errorf("ParseElapsed(%q): expected ErrBadElapsed, got %v", out, err)
		}
	}
}

func TestParseRawSummary(t *testing.T) {
	out := "compiling...\n10 0.296000 0.004183 0.050000 0.001000\n"
	r, err := ParseRawSummary(out)
	if err != nil {
		t.Fatalf("ParseRawSummary: %v", err)
	}
	if r.Iterations != 10 || r.InterpretedMean != 0.296 || r.CompiledStdev != 0.001 {
		t.Errorf("unexpected summary: %+v", r)
	}
	if r.String() != "10 0.296000 0.004183 0.050000 0.001000" {
		t.Errorf("String() = %q", r.String())
	}

	if _, err := ParseRawSummary("1 2 3\n"); err == nil {
		t.Error("expected error for short line")
	}
	if _, err := ParseRawSummary("x 1 2 3 4\n"); err == nil {
		t.Error("expected error for non-numeric count")
	}
}

func TestStripOutliers(t *testing.T) {
	for n := 1; n <= 11; n++ {
		samples := make([]float64, n)
		for i := range samples {
			samples[i] = float64((i*7)%n) + 0.5
		}
		got := StripOutliers(samples)
		if want := (n + 1) / 2; len(got) != want {
			t.Errorf("n=%d: kept %d samples, want %d", n, len(got), want)
		}
		if got[len(got)-1] > maxOf(samples) {
			t.Errorf("n=%d: stripped max exceeds original max", n)
		}
		for _, v := range got {
			if !contains(samples, v) {
				t.Errorf("n=%d: %f not in original samples", n, v)
			}
		}
	}
}

func TestStripOutliers_DoesNotMutate(t *testing.T) {
	vals := []float64{0.5, 0.1, 0.3}
	StripOutliers(vals)
	if vals[0] != 0.5 || vals[1] != 0.1 || vals[2] != 0.3 {
		t.Errorf("input mutated: %v", vals)
	}
}

func TestStdev(t *testing.T) {
	if got := Stdev([]float64{0.3}); got != 0 {
		t.Errorf("stdev of single sample = %f, want 0", got)
	}
	if got := Stdev(nil); got != 0 {
		t.Errorf("stdev of no samples = %f, want 0", got)
	}
	// Sample stdev of 2,4,4,4,5,5,7,9 is sqrt(32/7).
	got := Stdev([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(got-math.Sqrt(32.0/7.0)) > 1e-12 {
		t.Errorf("stdev = %f, want %f", got, math.Sqrt(32.0/7.0))
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		vals []float64
		want float64
	}{
		{nil, 0},
		{[]float64{10}, 10},
		{[]float64{10, 20, 30}, 20},
		{[]float64{1, 2, 3, 4}, 2.5},
	}
	for _, tt := range tests {
		got := Mean(tt.vals)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Mean(%v) = %f, want %f", tt.vals, got, tt.want)
		}
	}
}

func TestSummarize_StripsOutlier(t *testing.T) {
	samples := []float64{0.30, 0.31, 0.29, 0.50, 0.30, 0.31, 0.29, 0.30, 0.31, 0.30}
	s := Summarize(samples, true)

	if s.Count != 5 {
		t.Fatalf("count = %d, want 5", s.Count)
	}
	want := []float64{0.29, 0.29, 0.30, 0.30, 0.30}
	for i, v := range want {
		if s.Retained[i] != v {
			t.Errorf("retained[%d] = %f, want %f", i, s.Retained[i], v)
		}
	}
	if math.Abs(s.Mean-0.296) > 1e-9 {
		t.Errorf("mean = %f, want 0.296", s.Mean)
	}
	if math.Abs(s.StdevPercent-100*s.Stdev/s.Mean) > 1e-9 {
		t.Errorf("stdev percent inconsistent: %+v", s)
	}
	if s.Median != 0.30 {
		t.Errorf("median = %f, want 0.30", s.Median)
	}
}

func TestSummarize_NoStrip(t *testing.T) {
	s := Summarize([]float64{1, 3}, false)
	if s.Count != 2 || s.Mean != 2 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if math.Abs(s.Stdev-math.Sqrt2) > 1e-12 {
		t.Errorf("stdev = %f, want sqrt(2)", s.Stdev)
	}
}

func TestSummarize_SingleRetained(t *testing.T) {
	s := Summarize([]float64{0.4, 0.2}, true)
	if s.Count != 1 || s.Stdev != 0 || s.StdevPercent != 0 {
		t.Errorf("unexpected summary: %+v", s)
	}
}

func maxOf(vals []float64) float64 {
	m := math.Inf(-1)
	for _, v := range vals {
		m = math.Max(m, v)
	}
	return m
}

func contains(vals []float64, x float64) bool {
	for _, v := range vals {
		if v == x {
			return true
		}
	}
	return false
}
