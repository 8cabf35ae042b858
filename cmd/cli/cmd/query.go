package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/internal/database"
)

var queryCmd = &cobra.Command{
	Use:   "query <workload>",
	Short: "Query recorded runs of a workload from the API",
	Long: `Query measurements of a workload from the benchscale API.

Examples:
  benchscale query richards
  benchscale query richards --mode interpreted --hardware "AMD Ryzen 9 3950X (64-bit)"
  benchscale query richards --normalized -o json
  benchscale query richards --report`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

var (
	queryMode       string
	queryRevision   string
	queryHardware   string
	queryNormalized bool
	queryReport     bool
)

func init() {
	queryCmd.Flags().StringVar(&queryMode, "mode", "compiled", "Mode: compiled or interpreted")
	queryCmd.Flags().StringVar(&queryRevision, "revision", "", "Filter by compiler revision")
	queryCmd.Flags().StringVar(&queryHardware, "hardware", "", "Filter by hardware id")
	queryCmd.Flags().BoolVar(&queryNormalized, "normalized", false, "Show runs converted to the current configuration")
	queryCmd.Flags().BoolVar(&queryReport, "report", false, "Show performance relative to the baseline")
	RootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	c := newClient()
	name := args[0]

	switch {
	case queryNormalized && queryReport:
		return fmt.Errorf("only give one of --normalized and --report")
	case queryNormalized:
		resp, err := c.Normalized(ctx, name)
		if err != nil {
			return err
		}
		if resp.Current != nil {
			fmt.Fprintf(os.Stderr, "current configuration: %s (%d run(s) without calibration data)\n", resp.Current, resp.Unscaled)
		}
		return printRuns(resp.Runs)
	case queryReport:
		rows, err := c.WorkloadReport(ctx, name)
		if err != nil {
			return err
		}
		return printReportRows(rows)
	}

	items, err := c.ListRuns(ctx, database.RunFilter{
		Workload:   name,
		Mode:       database.Mode(queryMode),
		Revision:   queryRevision,
		HardwareID: queryHardware,
	})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "No results found.")
		return nil
	}
	return printRuns(items)
}
