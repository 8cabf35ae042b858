// Package sampler measures the per-iteration runtime of a workload.
//
// A Sampler runs the workload repeatedly, one fresh process per execution,
// until both a minimum iteration count and a minimum accumulated runtime
// are reached, then strips the slow half of the samples and summarizes
// the rest. Executions are strictly sequential.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchscale/benchscale/internal/metrics"
	"github.com/benchscale/benchscale/internal/workload"
)

// Executor runs a workload once in a given mode and reports the elapsed
// seconds printed by the workload.
type Executor interface {
	// Prepare runs the workload's preparation hooks.
	Prepare(ctx context.Context, w workload.Workload) error
	Execute(ctx context.Context, w workload.Workload, mode Mode) (float64, error)
}

// Options control the stopping criterion and progress reporting.
type Options struct {
	// MinIterations overrides the workload's minimum iteration count when
	// positive.
	MinIterations int
	// GlobalMinIterations is used when neither the override nor the
	// workload sets a count. Zero means workload.DefaultMinIterations.
	GlobalMinIterations int
	// MinTime is the accumulated runtime one mode must reach. Zero means
	// workload.DefaultMinTime.
	MinTime time.Duration
	// Observer, if set, is called for every state entered.
	Observer func(State)
	// OnIteration, if set, is called after each completed iteration.
	OnIteration func(n int)
	Logger      *slog.Logger
}

// Result is the outcome of a successful measurement.
type Result struct {
	Workload   string
	Modes      ModeSet
	Iterations int
	// Raw holds every sample per mode in execution order, before stripping.
	Raw       map[Mode][]float64
	Summaries map[Mode]metrics.Summary
	State     State
}

// Sampler runs adaptive measurements through an Executor.
type Sampler struct {
	exec Executor
	opts Options
}

// New creates a Sampler.
func New(exec Executor, opts Options) *Sampler {
	if opts.MinTime <= 0 {
		opts.MinTime = workload.DefaultMinTime
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sampler{exec: exec, opts: opts}
}

// Run measures w in the requested modes. Usage errors are returned before
// the executor is called. Any execution failure aborts the measurement and
// no partial result is returned.
func (s *Sampler) Run(ctx context.Context, w workload.Workload, modes ModeSet) (*Result, error) {
	if err := modes.Validate(w); err != nil {
		return nil, err
	}

	sm := &stateMachine{state: StateNotStarted, observer: s.opts.Observer}
	log := s.opts.Logger.With("workload", w.Name)
	minIter := w.EffectiveMinIterations(s.opts.MinIterations, s.opts.GlobalMinIterations)
	minTime := s.opts.MinTime.Seconds()

	sm.enter(StatePreparing)
	if len(w.Prepare) > 0 {
		log.Info("preparing workload", "hooks", len(w.Prepare))
		if err := s.exec.Prepare(ctx, w); err != nil {
			sm.enter(StateFailed)
			return nil, fmt.Errorf("prepare %s: %w", w.Name, err)
		}
	}

	// Interpreted warm-up first, then compiled.
	sm.enter(StateWarmingUp)
	for _, mode := range []Mode{Interpreted, Compiled} {
		if !modes.Has(mode) {
			continue
		}
		if _, err := s.execute(ctx, w, mode); err != nil {
			sm.enter(StateFailed)
			return nil, fmt.Errorf("warm up %s (%s): %w", w.Name, mode, err)
		}
	}

	sm.enter(StateSampling)
	log.Debug("sampling", "min_iterations", minIter, "min_time", s.opts.MinTime)
	raw := make(map[Mode][]float64)
	sums := make(map[Mode]float64)
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			sm.enter(StateFailed)
			return nil, fmt.Errorf("sample %s: %w", w.Name, err)
		}
		for _, mode := range modes.Modes() {
			t, err := s.execute(ctx, w, mode)
			if err != nil {
				sm.enter(StateFailed)
				return nil, fmt.Errorf("sample %s (%s) iteration %d: %w", w.Name, mode, n+1, err)
			}
			metrics.ObserveExecution(w.Name, string(mode), t)
			raw[mode] = append(raw[mode], t)
			sums[mode] += t
		}
		n++
		if s.opts.OnIteration != nil {
			s.opts.OnIteration(n)
		}
		longEnough := sums[Interpreted] >= minTime || sums[Compiled] >= minTime
		if longEnough && n >= minIter {
			break
		}
	}

	if w.StripOutliers {
		sm.enter(StateStripping)
	}
	sm.enter(StateSummarizing)
	res := &Result{
		Workload:   w.Name,
		Modes:      modes,
		Iterations: n,
		Raw:        raw,
		Summaries:  make(map[Mode]metrics.Summary),
	}
	for _, mode := range modes.Modes() {
		sum := metrics.Summarize(raw[mode], w.StripOutliers)
		res.Summaries[mode] = sum
		log.Info("measured",
			"mode", string(mode),
			"mean", sum.Mean,
			"stdev_percent", sum.StdevPercent,
			"samples", sum.Count,
		)
	}
	sm.enter(StateDone)
	res.State = StateDone
	return res, nil
}

func (s *Sampler) execute(ctx context.Context, w workload.Workload, mode Mode) (float64, error) {
	t, err := s.exec.Execute(ctx, w, mode)
	if err != nil {
		metrics.CountExecutionFailure(w.Name, string(mode))
		return 0, err
	}
	return t, nil
}

// Summary returns the statistics of mode, if it was measured.
func (r *Result) Summary(mode Mode) (metrics.Summary, bool) {
	s, ok := r.Summaries[mode]
	return s, ok
}

// RawSummary returns the machine-readable summary. Means are sums of the
// retained samples divided by the larger retained count; standard
// deviations are absolute. Modes that were not run report zeros.
func (r *Result) RawSummary() metrics.RawSummary {
	n := 0
	for _, s := range r.Summaries {
		n = max(n, s.Count)
	}
	out := metrics.RawSummary{Iterations: n}
	if n == 0 {
		return out
	}
	if s, ok := r.Summaries[Interpreted]; ok {
		out.InterpretedMean = metrics.Sum(s.Retained) / float64(n)
		out.InterpretedStdev = s.Stdev
	}
	if s, ok := r.Summaries[Compiled]; ok {
		out.CompiledMean = metrics.Sum(s.Retained) / float64(n)
		out.CompiledStdev = s.Stdev
	}
	return out
}

// RawLine formats RawSummary as "n mean_i stdev_i mean_c stdev_c".
func (r *Result) RawLine() string {
	return r.RawSummary().String()
}

// Relative returns how many times faster compiled ran than interpreted,
// over the retained samples. It is 0 unless both modes were measured.
func (r *Result) Relative() float64 {
	i, iok := r.Summaries[Interpreted]
	c, cok := r.Summaries[Compiled]
	if !iok || !cok {
		return 0
	}
	cs := metrics.Sum(c.Retained)
	if cs == 0 {
		return 0
	}
	return metrics.Sum(i.Retained) / cs
}
