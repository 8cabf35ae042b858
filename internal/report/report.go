// Package report derives report rows from recorded measurements: relative
// performance against the interpreted baseline and significant changes
// between consecutive runs.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benchscale/benchscale/internal/database"
)

// Thresholds, in percent, for workloads whose noise differs from the
// default of their kind.
var significanceOverrides = map[string]float64{
	"sieve":           3.0,
	"str_methods_2":   3.0,
	"str_format":      10.0,
	"str_methods":     10.0,
	"matrix_multiply": 10.0,
}

const (
	microThreshold   = 15.0
	defaultThreshold = 3.0
)

// SignificantPercentChange returns the smallest change, in percent, that
// counts as significant for workload.
func SignificantPercentChange(workload string, micro bool) float64 {
	if t, ok := significanceOverrides[workload]; ok {
		return t
	}
	if micro {
		return microThreshold
	}
	return defaultThreshold
}

// IsSignificant reports whether delta (in percent) is a significant change.
func IsSignificant(workload string, delta float64, micro bool) bool {
	return math.Abs(delta) >= SignificantPercentChange(workload, micro)
}

// Row describes one compiled run of a workload.
type Row struct {
	Workload  string    `json:"workload"`
	Timestamp time.Time `json:"timestamp"`
	Revision  string    `json:"revision"`
	// Perf is "<relative>x", "error" for failed runs, or "<runtime>s" when
	// no baseline matches the run's configuration.
	Perf string `json:"perf"`
	// Relative is baseline runtime / runtime, 0 when unavailable.
	Relative float64 `json:"relative"`
	// Change is the significant change against the previous run, formatted
	// as "+4.2%", or empty.
	Change        string  `json:"change,omitempty"`
	ChangePercent float64 `json:"change_percent"`
	Failed        bool    `json:"failed"`
}

// WorkloadRows returns one row per run, newest first. runs must already
// be ordered newest first.
func WorkloadRows(baselines, runs []database.DataItem, micro bool) []Row {
	rows := make([]Row, len(runs))
	var prevRuntime, prevBaseline float64
	for i := len(runs) - 1; i >= 0; i-- {
		run := runs[i]
		row := Row{
			Workload:  run.Workload,
			Timestamp: run.Timestamp,
			Revision:  run.Revision,
			Failed:    run.Failed(),
		}
		base, ok := database.FindBaseline(baselines, run)
		switch {
		case !ok:
			row.Perf = fmt.Sprintf("%.2fs", run.Runtime)
		case run.Failed():
			row.Perf = "error"
		default:
			row.Relative = base.Runtime / run.Runtime
			row.Perf = fmt.Sprintf("%.2fx", row.Relative)
			if prevRuntime != 0 && prevBaseline != 0 {
				change := 100 * (row.Relative/(prevBaseline/prevRuntime) - 1)
				row.ChangePercent = change
				if IsSignificant(run.Workload, change, micro) {
					row.Change = fmt.Sprintf("%+.1f%%", change)
				}
			}
		}
		rows[i] = row
		prevRuntime = run.Runtime
		if ok {
			prevBaseline = base.Runtime
		}
	}
	return rows
}

// SummaryRow is the current state of one workload.
type SummaryRow struct {
	Workload string  `json:"workload"`
	Relative float64 `json:"relative"`
	Micro    bool    `json:"micro"`
	// Change is the significant change since the oldest run recorded at or
	// after the summary's start time, or empty.
	Change        string  `json:"change,omitempty"`
	ChangePercent float64 `json:"change_percent"`
}

// SummaryRows returns the newest relative performance of every workload
// that has a baseline, sorted by descending performance. order ranks
// revisions newest first; nil orders runs by timestamp. Changes are
// computed against the oldest run at or after since.
func SummaryRows(data *database.BenchmarkData, order map[string]int, micro map[string]bool, since time.Time) []SummaryRow {
	var out []SummaryRow
	for name, runs := range data.Runs {
		baselines := data.Baselines[name]
		if len(baselines) == 0 || len(runs) == 0 {
			continue
		}
		sorted := NewestFirst(runs, order)
		newest := sorted[0]
		base, ok := database.FindBaseline(baselines, newest)
		if !ok {
			continue
		}
		row := SummaryRow{Workload: name, Micro: micro[name]}
		if !newest.Failed() {
			row.Relative = base.Runtime / newest.Runtime
		}
		if old, ok := oldestSince(sorted, since); ok && !old.Failed() && !newest.Failed() {
			if oldBase, ok := database.FindBaseline(baselines, old); ok {
				change := 100 * (row.Relative/(oldBase.Runtime/old.Runtime) - 1)
				row.ChangePercent = change
				if IsSignificant(name, change, micro[name]) {
					row.Change = fmt.Sprintf("%+.1f%%", change)
				}
			}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Relative != out[j].Relative {
			return out[i].Relative > out[j].Relative
		}
		return out[i].Workload < out[j].Workload
	})
	return out
}

// NewestFirst returns a copy of runs ordered newest first, by revision
// order when given and by timestamp otherwise.
func NewestFirst(runs []database.DataItem, order map[string]int) []database.DataItem {
	if order != nil {
		return database.SortByRevision(runs, order)
	}
	out := append([]database.DataItem(nil), runs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func oldestSince(newestFirst []database.DataItem, since time.Time) (database.DataItem, bool) {
	if since.IsZero() {
		return database.DataItem{}, false
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if !newestFirst[i].Timestamp.Before(since) {
			return newestFirst[i], true
		}
	}
	return database.DataItem{}, false
}
