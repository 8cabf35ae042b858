// Package orchestrator drives workload executions: locally through the
// sampler, or remotely as Kubernetes Jobs, and records the results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/sampler"
	"github.com/benchscale/benchscale/internal/workload"
)

// DefaultMinInterpretedIterations is the minimum iteration count of
// interpreted collections. Interpreted measurements are noisier than
// compiled ones.
const DefaultMinInterpretedIterations = 300

// DefaultIterationOverrides lowers the interpreted count for slow workloads.
var DefaultIterationOverrides = map[string]int{
	"binary_trees": 20,
}

// Compiler builds a workload and returns the path of its artifact.
type Compiler interface {
	Compile(ctx context.Context, w workload.Workload) (string, error)
}

// artifactUser is implemented by executors that need the compiled
// artifact location, such as *sampler.ProcessExecutor.
type artifactUser interface {
	UseArtifact(name, path string)
}

// CollectRequest selects what to collect.
type CollectRequest struct {
	Workloads       []string
	Mode            database.Mode
	Revision        string
	HarnessRevision string
	// MinIterations overrides the per-mode default when positive.
	MinIterations int
}

// Outcome is the result of collecting a single workload.
type Outcome struct {
	Workload string
	Item     database.DataItem
	// Err is the execution error that produced a sentinel item.
	Err error
}

// Collector measures workloads in a single mode and appends the results
// to a store: interpreted results as baselines, compiled ones as runs.
type Collector struct {
	Repo     database.Repo
	Registry *workload.Registry
	Executor sampler.Executor
	// Compiler, if set, builds compiled artifacts before each compiled
	// measurement.
	Compiler Compiler
	Host     database.ConfigKey
	// CompilerVersion is recorded with compiled runs.
	CompilerVersion string

	MinInterpretedIterations int
	IterationOverrides       map[string]int
	Logger                   *slog.Logger
	Now                      func() time.Time
}

// Collect measures each requested workload in turn. Usage errors abort
// before any work. An execution failure is recorded as a run with zero
// runtime, and collection continues with the next workload. Storage
// errors abort.
func (c *Collector) Collect(ctx context.Context, req CollectRequest) ([]Outcome, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	if _, ok := database.ParseMode(string(req.Mode)); !ok {
		return nil, fmt.Errorf("%w: unknown mode %q", sampler.ErrUsage, req.Mode)
	}
	if len(req.Workloads) == 0 {
		return nil, fmt.Errorf("%w: no workloads given", sampler.ErrUsage)
	}
	modes := sampler.Only(req.Mode)
	ws := make([]workload.Workload, 0, len(req.Workloads))
	for _, name := range req.Workloads {
		w, err := c.Registry.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", sampler.ErrUsage, err)
		}
		if err := modes.Validate(w); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		ws = append(ws, w)
	}

	var outcomes []Outcome
	for i, w := range ws {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		logger.Info("collecting", "workload", w.Name, "mode", req.Mode,
			"progress", fmt.Sprintf("%d/%d", i+1, len(ws)))
		started := now().UTC()

		runtime, stdevPct, err := c.measure(ctx, w, req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return outcomes, err
			}
			logger.Error("workload failed, recording zero runtime", "workload", w.Name, "err", err)
			runtime, stdevPct = 0, 0
		}

		item := database.DataItem{
			Workload:        w.Name,
			Timestamp:       started,
			Runtime:         runtime,
			StdevPercent:    stdevPct,
			Revision:        req.Revision,
			HarnessRevision: req.HarnessRevision,
			RuntimeVersion:  c.Host.RuntimeVersion,
			HardwareID:      c.Host.HardwareID,
			OSVersion:       c.Host.OSVersion,
		}
		if req.Mode == database.ModeCompiled {
			item.Compiler = c.CompilerVersion
		}
		if aerr := c.Repo.AppendRun(ctx, req.Mode, item); aerr != nil {
			return outcomes, fmt.Errorf("store %s: %w", w.Name, aerr)
		}
		outcomes = append(outcomes, Outcome{Workload: w.Name, Item: item, Err: err})
	}
	return outcomes, nil
}

func (c *Collector) measure(ctx context.Context, w workload.Workload, req CollectRequest) (float64, float64, error) {
	if req.Mode == database.ModeCompiled && c.Compiler != nil {
		path, err := c.Compiler.Compile(ctx, w)
		if err != nil {
			return 0, 0, err
		}
		if u, ok := c.Executor.(artifactUser); ok {
			u.UseArtifact(w.Name, path)
		}
	}

	settings := c.Registry.Settings()
	res, err := sampler.New(c.Executor, sampler.Options{
		MinIterations:       c.minIterations(w.Name, req),
		GlobalMinIterations: settings.MinIterations,
		MinTime:             settings.MinTime,
		Logger:              c.Logger,
	}).Run(ctx, w, sampler.Only(req.Mode))
	if err != nil {
		return 0, 0, err
	}
	s, _ := res.Summary(req.Mode)
	return s.Mean, s.StdevPercent, nil
}

func (c *Collector) minIterations(name string, req CollectRequest) int {
	if req.MinIterations > 0 {
		return req.MinIterations
	}
	if req.Mode != database.ModeInterpreted {
		return 0
	}
	overrides := c.IterationOverrides
	if overrides == nil {
		overrides = DefaultIterationOverrides
	}
	if n, ok := overrides[name]; ok {
		return n
	}
	if c.MinInterpretedIterations > 0 {
		return c.MinInterpretedIterations
	}
	return DefaultMinInterpretedIterations
}
