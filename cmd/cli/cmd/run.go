package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/metrics"
	"github.com/benchscale/benchscale/internal/sampler"
)

var runCmd = &cobra.Command{
	Use:   "run <workload>",
	Short: "Measure one workload compiled and interpreted",
	Long: `Measure a workload until enough iterations and enough runtime have
accumulated, and report the mean runtime per mode.

Both modes run by default. Stale compiled artifacts are removed first, and
the workload is compiled unless only the interpreted mode is requested.

Examples:
  benchscale run richards
  benchscale run richards -c --min-iter 50
  benchscale run mypy_self_check -c --raw
  benchscale run richards --executor kube --image registry/benchscale-runner:latest`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkload,
}

var (
	runCompiled    bool
	runInterpreted bool
	runMinIter     int
	runRaw         bool
)

func init() {
	runCmd.Flags().BoolVarP(&runCompiled, "compiled", "c", false, "Only measure the compiled mode")
	runCmd.Flags().BoolVarP(&runInterpreted, "interpreted", "i", false, "Only measure the interpreted mode")
	runCmd.Flags().IntVar(&runMinIter, "min-iter", 0, "Minimum number of iterations (default: per workload)")
	runCmd.Flags().BoolVar(&runRaw, "raw", false, "Machine-readable output: n mean_i stdev_i mean_c stdev_c")
	addExecutorFlags(runCmd)
	RootCmd.AddCommand(runCmd)
}

func runModes() (sampler.ModeSet, error) {
	switch {
	case runCompiled && runInterpreted:
		return sampler.ModeSet{}, fmt.Errorf("%w: only give one of -c and -i", sampler.ErrUsage)
	case runCompiled:
		return sampler.Only(sampler.Compiled), nil
	case runInterpreted:
		return sampler.Only(sampler.Interpreted), nil
	}
	return sampler.Both, nil
}

func runWorkload(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	modes, err := runModes()
	if err != nil {
		return err
	}
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	w, err := reg.Lookup(args[0])
	if err != nil {
		return fmt.Errorf("%w: %v", sampler.ErrUsage, err)
	}
	if err := modes.Validate(w); err != nil {
		if w.CompiledOnly {
			return fmt.Errorf("%w (use -c)", err)
		}
		return err
	}

	ex, err := newWorkloadExecutor(reg.Settings())
	if err != nil {
		return err
	}
	if err := ex.clean(); err != nil {
		return err
	}
	if modes.Has(sampler.Compiled) {
		if err := ex.compile(ctx, w); err != nil {
			return err
		}
	}

	settings := reg.Settings()
	opts := sampler.Options{
		MinIterations:       runMinIter,
		GlobalMinIterations: settings.MinIterations,
		MinTime:             settings.MinTime,
	}
	if !runRaw && getFormat() == format.FormatTable {
		opts.OnIteration = func(int) { fmt.Fprint(os.Stderr, ".") }
	}
	res, err := sampler.New(ex.exec, opts).Run(ctx, w, modes)
	if opts.OnIteration != nil {
		fmt.Fprintln(os.Stderr)
	}
	if err != nil {
		return err
	}
	if w.CompiledOnly {
		sorted := slices.Clone(res.Raw[sampler.Compiled])
		slices.Sort(sorted)
		slog.Debug("compiled runtimes", "workload", w.Name, "runtimes", sorted)
	}

	switch {
	case runRaw:
		_, err := fmt.Fprintln(stdout(), res.RawLine())
		return err
	case getFormat() == format.FormatJSON:
		return format.JSONTo(stdout(), runResult{
			Workload:   w.Name,
			Iterations: res.Iterations,
			Summaries:  res.Summaries,
			Relative:   res.Relative(),
		})
	default:
		printRunSummary(stdout(), res)
		return nil
	}
}

type runResult struct {
	Workload   string                           `json:"workload"`
	Iterations int                              `json:"iterations"`
	Summaries  map[sampler.Mode]metrics.Summary `json:"summaries"`
	Relative   float64                          `json:"relative,omitempty"`
}

func printRunSummary(w io.Writer, res *sampler.Result) {
	raw := res.RawSummary()
	if res.Modes.Interpreted {
		fmt.Fprintf(w, "interpreted: %.6fs (avg of %d iterations; stdev %.2g%%)\n",
			raw.InterpretedMean, raw.Iterations, stdevPercent(raw.InterpretedStdev, raw.InterpretedMean))
	}
	if res.Modes.Compiled {
		fmt.Fprintf(w, "compiled:    %.6fs (avg of %d iterations; stdev %.2g%%)\n",
			raw.CompiledMean, raw.Iterations, stdevPercent(raw.CompiledStdev, raw.CompiledMean))
	}
	if res.Modes.Compiled && res.Modes.Interpreted {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "compiled is %.3fx faster\n", res.Relative())
	}
}

func stdevPercent(stdev, mean float64) float64 {
	if mean == 0 {
		return 0
	}
	return 100 * stdev / mean
}
