package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [workload]",
	Short: "Report performance relative to the interpreted baseline",
	Long: `Without arguments, print the newest performance of every workload
relative to its interpreted baseline, fastest first, with significant
changes over the --since window.

With a workload, print every recorded run of it, newest first, with
significant changes against the previous run.

Examples:
  benchscale report
  benchscale report --since 720h -o csv
  benchscale report richards --revisions c3,b2,a1`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

var (
	reportSince     time.Duration
	reportRevisions string
)

func init() {
	reportCmd.Flags().DurationVar(&reportSince, "since", 90*24*time.Hour, "Window for the change column of the summary")
	reportCmd.Flags().StringVar(&reportRevisions, "revisions", "", "Comma-separated revisions, newest first, to order runs by (default: by timestamp)")
	RootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	reg, err := loadRegistry()
	if err != nil {
		return err
	}
	repo, closeRepo, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	data, err := repo.LoadData(ctx)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	order := revisionOrder(reportRevisions)
	micro := reg.Micro()

	if len(args) == 1 {
		name := args[0]
		runs := data.Runs[name]
		if len(runs) == 0 {
			return fmt.Errorf("no runs recorded for %s", name)
		}
		return printReportRows(report.WorkloadRows(data.Baselines[name], report.NewestFirst(runs, order), micro[name]))
	}
	return printSummaryRows(report.SummaryRows(data, order, micro, time.Now().Add(-reportSince)))
}

// revisionOrder ranks a comma-separated newest-first revision list.
func revisionOrder(list string) map[string]int {
	if list == "" {
		return nil
	}
	order := make(map[string]int)
	for i, rev := range strings.Split(list, ",") {
		if rev = strings.TrimSpace(rev); rev != "" {
			order[rev] = i
		}
	}
	return order
}

func printReportRows(rows []report.Row) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.Timestamp.UTC().Format("2006-01-02"),
			shortRevision(r.Revision),
			r.Perf,
			r.Change,
		}
	}
	return format.Render(stdout(), getFormat(), rows, []string{"DATE", "REVISION", "PERF", "CHANGE"}, out)
}

func printSummaryRows(rows []report.SummaryRow) error {
	out := make([][]string, len(rows))
	for i, r := range rows {
		name := r.Workload
		if r.Micro {
			name += " (micro)"
		}
		perf := "error"
		if r.Relative > 0 {
			perf = fmt.Sprintf("%.2fx", r.Relative)
		}
		out[i] = []string{name, perf, r.Change}
	}
	return format.Render(stdout(), getFormat(), rows, []string{"WORKLOAD", "PERF", "CHANGE"}, out)
}
