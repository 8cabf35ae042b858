package scaling

import (
	"sort"

	"github.com/benchscale/benchscale/internal/database"
)

// Calibrate derives the factors converting runtimes measured in from into
// runtimes in to. A workload gets a factor when it has a non-failed
// baseline and a non-failed compiled run at revision in both
// configurations:
//
//	factor = (new_baseline / new_compiled) / (old_baseline / old_compiled)
//
// Results are sorted by workload.
func Calibrate(data *database.BenchmarkData, revision string, from, to Node) []database.ScalingItem {
	type pair struct{ from, to float64 }

	baselines := make(map[string]pair)
	for name, items := range data.Baselines {
		o, ok1 := findRuntime(items, from, "")
		n, ok2 := findRuntime(items, to, "")
		if ok1 && ok2 {
			baselines[name] = pair{from: o, to: n}
		}
	}

	var out []database.ScalingItem
	names := make([]string, 0, len(baselines))
	for name := range baselines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		o, ok1 := findRuntime(data.Runs[name], from, revision)
		n, ok2 := findRuntime(data.Runs[name], to, revision)
		if !ok1 || !ok2 {
			continue
		}
		b := baselines[name]
		oldRatio := b.from / o
		newRatio := b.to / n
		out = append(out, database.ScalingItem{
			Workload:          name,
			Factor:            newRatio / oldRatio,
			OldHardware:       from.Hardware,
			OldRuntimeVersion: from.RuntimeVersion,
			NewHardware:       to.Hardware,
			NewRuntimeVersion: to.RuntimeVersion,
		})
	}
	return out
}

// findRuntime returns the runtime of the first item taken in configuration
// n (and at revision, if set). Failed runs do not count.
func findRuntime(items []database.DataItem, n Node, revision string) (float64, bool) {
	for _, it := range items {
		if !n.Matches(it) {
			continue
		}
		if revision != "" && it.Revision != revision {
			continue
		}
		if it.Failed() {
			return 0, false
		}
		return it.Runtime, true
	}
	return 0, false
}
