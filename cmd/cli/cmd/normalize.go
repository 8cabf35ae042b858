package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/scaling"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize [workload]",
	Short: "Show runs converted to the current configuration",
	Long: `Convert recorded compiled runs into runtimes of each workload's current
configuration using the scaling data. Runs without calibration data are
shown unchanged.

With a workload the converted runs are listed. Without one, every workload
is normalized and a per-workload summary is printed; workloads whose
scaling data is inconsistent are reported and do not affect the others.

Examples:
  benchscale normalize richards
  benchscale normalize -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runNormalize,
}

func init() {
	RootCmd.AddCommand(normalizeCmd)
}

func runNormalize(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	repo, closeRepo, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	engine := &scaling.Engine{}
	if len(args) == 1 {
		name := args[0]
		runs, err := repo.ListRuns(ctx, database.RunFilter{Workload: name, Mode: database.ModeCompiled})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs recorded for %s", name)
		}
		edges, err := repo.ListScalingItems(ctx, name)
		if err != nil {
			return err
		}
		out, current, unscaled, err := engine.NormalizeWorkload(runs, edges)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", name, err)
		}
		if len(edges) > 0 {
			fmt.Fprintf(os.Stderr, "current configuration: %s (%d run(s) without calibration data)\n", current, unscaled)
		}
		return printRuns(out)
	}

	data, err := repo.LoadData(ctx)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	items, err := repo.ListScalingItems(ctx, "")
	if err != nil {
		return err
	}
	edges := make(map[string][]database.ScalingItem)
	for _, it := range items {
		edges[it.Workload] = append(edges[it.Workload], it)
	}
	res, err := engine.NormalizeAll(ctx, data.Runs, edges)
	if err != nil {
		return err
	}
	return printNormalizeSummary(res)
}

func printNormalizeSummary(res *scaling.Outcome) error {
	names := make([]string, 0, len(res.Runs))
	for name := range res.Runs {
		names = append(names, name)
	}
	sort.Strings(names)

	headers := []string{"WORKLOAD", "RUNS", "UNSCALED", "CURRENT", "STATUS"}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		current, status := "-", "ok"
		if n, ok := res.Current[name]; ok {
			current = n.String()
		}
		if err, ok := res.Failed[name]; ok {
			status = err.Error()
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", len(res.Runs[name])),
			fmt.Sprintf("%d", res.Unscaled[name]),
			current,
			status,
		})
	}
	if len(res.Failed) > 0 {
		fmt.Fprintf(os.Stderr, "%d workload(s) could not be normalized\n", len(res.Failed))
	}
	return format.Render(stdout(), getFormat(), res.Runs, headers, rows)
}
