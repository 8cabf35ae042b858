package scaling

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/metrics"
)

// Lookup returns the edge converting run's configuration to current.
func Lookup(edges []database.ScalingItem, run database.DataItem, current Node) (database.ScalingItem, bool) {
	for _, e := range edges {
		if NewNode(e) == current && OldNode(e).Matches(run) {
			return e, true
		}
	}
	return database.ScalingItem{}, false
}

// Normalize returns runs expressed in the current configuration. Runs
// already in current, or with no edge to it, are copied unchanged. The
// input slice and its items are never modified.
func Normalize(runs []database.DataItem, edges []database.ScalingItem, current Node) []database.DataItem {
	out, _ := normalize(runs, edges, current)
	return out
}

func normalize(runs []database.DataItem, edges []database.ScalingItem, current Node) ([]database.DataItem, int) {
	out := make([]database.DataItem, len(runs))
	unscaled := 0
	for i, r := range runs {
		out[i] = r
		if current.Matches(r) {
			continue
		}
		e, ok := Lookup(edges, r, current)
		if !ok {
			unscaled++
			continue
		}
		out[i] = r.WithRuntime(r.Runtime / e.Factor)
	}
	return out, unscaled
}

// Engine normalizes the runs of many workloads, each against its own
// scaling graph.
type Engine struct {
	// Concurrency bounds the number of workloads processed at once.
	// Zero means no limit.
	Concurrency int
	Logger      *slog.Logger
}

// Outcome is the result of NormalizeAll.
type Outcome struct {
	// Runs holds every workload's runs, normalized where possible.
	Runs map[string][]database.DataItem
	// Current is the current configuration per normalized workload.
	Current map[string]Node
	// Failed holds workloads whose scaling graph could not be resolved.
	// Their runs are returned unnormalized.
	Failed map[string]error
	// Unscaled counts runs left unchanged for lack of calibration data.
	Unscaled map[string]int
}

// NormalizeWorkload infers missing edges and normalizes runs of a single
// workload. Without scaling data the runs pass through unchanged.
func (e *Engine) NormalizeWorkload(runs []database.DataItem, edges []database.ScalingItem) ([]database.DataItem, Node, int, error) {
	if len(edges) == 0 {
		return append([]database.DataItem(nil), runs...), Node{}, 0, nil
	}
	full, err := InferMissingEdges(edges)
	if err != nil {
		return nil, Node{}, 0, err
	}
	current, err := CurrentNode(full)
	if err != nil {
		return nil, Node{}, 0, err
	}
	out, unscaled := normalize(runs, full, current)
	return out, current, unscaled, nil
}

// NormalizeAll normalizes every workload in runs using edges of the same
// workload. Failures are per workload and do not affect the others. The
// only error returned is cancellation of ctx.
func (e *Engine) NormalizeAll(ctx context.Context, runs map[string][]database.DataItem, edges map[string][]database.ScalingItem) (*Outcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := &Outcome{
		Runs:     make(map[string][]database.DataItem, len(runs)),
		Current:  make(map[string]Node),
		Failed:   make(map[string]error),
		Unscaled: make(map[string]int),
	}
	var mu sync.Mutex

	names := make([]string, 0, len(runs))
	for name := range runs {
		names = append(names, name)
	}
	sort.Strings(names)

	g, ctx := errgroup.WithContext(ctx)
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	}
	for _, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, current, unscaled, err := e.NormalizeWorkload(runs[name], edges[name])

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("normalization failed", "workload", name, "err", err)
				metrics.CountNormalizationFailure(name)
				res.Failed[name] = err
				res.Runs[name] = append([]database.DataItem(nil), runs[name]...)
				return nil
			}
			if unscaled > 0 {
				logger.Info("runs left unnormalized, no calibration data",
					"workload", name, "runs", unscaled, "current", current.String())
			}
			res.Runs[name] = out
			if len(edges[name]) > 0 {
				res.Current[name] = current
			}
			res.Unscaled[name] = unscaled
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
