package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/hostinfo"
	"github.com/benchscale/benchscale/internal/orchestrator"
	"github.com/benchscale/benchscale/internal/workload"
)

var collectCmd = &cobra.Command{
	Use:   "collect [workload...]",
	Short: "Measure workloads and record the results",
	Long: `Measure each workload in a single mode and append the result to the
store. Compiled runs are recorded against --revision; --baseline records
interpreted baselines instead. A workload that fails is recorded with a
zero runtime and collection continues.

Without arguments every workload is collected (compiled-only workloads are
skipped for baselines).

Examples:
  benchscale collect --revision 1a2b3c richards nqueens
  benchscale collect --baseline
  benchscale collect --revision 1a2b3c --database-url postgres://...`,
	RunE: runCollect,
}

var (
	collectBaseline        bool
	collectRevision        string
	collectHarnessRevision string
	collectMinIter         int
)

func init() {
	collectCmd.Flags().BoolVar(&collectBaseline, "baseline", false, "Record interpreted baselines instead of compiled runs")
	collectCmd.Flags().StringVar(&collectRevision, "revision", "", "Compiler revision the runs are recorded against")
	collectCmd.Flags().StringVar(&collectHarnessRevision, "harness-revision", "", "Revision of the benchmark harness")
	collectCmd.Flags().IntVar(&collectMinIter, "min-iter", 0, "Minimum number of iterations (default: 300 for baselines)")
	addExecutorFlags(collectCmd)
	RootCmd.AddCommand(collectCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	mode := database.ModeCompiled
	if collectBaseline {
		mode = database.ModeInterpreted
	}
	names := args
	if len(names) == 0 {
		names = defaultCollectNames(reg, mode)
	}

	repo, closeRepo, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	ex, err := newWorkloadExecutor(reg.Settings())
	if err != nil {
		return err
	}
	if err := ex.clean(); err != nil {
		return err
	}

	host, cc, err := (&hostinfo.Detector{}).Detect(ctx, reg.Settings())
	if err != nil {
		return fmt.Errorf("detect host configuration: %w", err)
	}
	slog.Info("host configuration", "hardware", host.HardwareID, "os", host.OSVersion,
		"runtime", host.RuntimeVersion, "compiler", cc)

	c := &orchestrator.Collector{
		Repo:            repo,
		Registry:        reg,
		Executor:        ex.exec,
		Host:            host,
		CompilerVersion: cc,
	}
	if ex.compiler != nil {
		c.Compiler = ex.compiler
	}
	outcomes, err := c.Collect(ctx, orchestrator.CollectRequest{
		Workloads:       names,
		Mode:            mode,
		Revision:        collectRevision,
		HarnessRevision: collectHarnessRevision,
		MinIterations:   collectMinIter,
	})
	if len(outcomes) > 0 {
		if perr := printOutcomes(outcomes); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func defaultCollectNames(reg *workload.Registry, mode database.Mode) []string {
	var names []string
	for _, w := range reg.All() {
		if mode == database.ModeInterpreted && w.CompiledOnly {
			continue
		}
		names = append(names, w.Name)
	}
	return names
}

func printOutcomes(outcomes []orchestrator.Outcome) error {
	items := make([]database.DataItem, len(outcomes))
	rows := make([][]string, len(outcomes))
	for i, o := range outcomes {
		items[i] = o.Item
		status := "ok"
		if o.Err != nil {
			status = "failed"
		}
		rows[i] = []string{o.Workload, format.Runtime(o.Item.Runtime), format.Percent(o.Item.StdevPercent), status}
	}
	return format.Render(stdout(), getFormat(), items, []string{"WORKLOAD", "RUNTIME", "STDEV", "STATUS"}, rows)
}
