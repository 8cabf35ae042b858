package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/database"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded measurements to JSON or CSV",
	Long: `Export recorded measurements from the API in JSON or CSV format.

By default exports to stdout. Use --file to write to a file.

Examples:
  benchscale export -o json > runs.json
  benchscale export -o csv --file runs.csv
  benchscale export --workload richards --mode interpreted -o csv`,
	RunE: runExport,
}

var (
	exportWorkload string
	exportMode     string
	exportRevision string
	exportHardware string
	exportFile     string
)

func init() {
	exportCmd.Flags().StringVar(&exportWorkload, "workload", "", "Filter by workload")
	exportCmd.Flags().StringVar(&exportMode, "mode", "", "Filter by mode (compiled or interpreted)")
	exportCmd.Flags().StringVar(&exportRevision, "revision", "", "Filter by compiler revision")
	exportCmd.Flags().StringVar(&exportHardware, "hardware", "", "Filter by hardware id")
	exportCmd.Flags().StringVar(&exportFile, "file", "", "Output file path (default: stdout)")
	RootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	c := newClient()

	items, err := c.ListRuns(commandContext(cmd), database.RunFilter{
		Workload:   exportWorkload,
		Mode:       database.Mode(exportMode),
		Revision:   exportRevision,
		HardwareID: exportHardware,
	})
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "No results to export.")
		return nil
	}

	// Determine output destination.
	out := stdout()
	if exportFile != "" {
		f, err := os.Create(exportFile)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	switch getFormat() {
	case format.FormatCSV:
		return format.CSV(out, exportHeaders(), exportRows(items))
	default:
		// Default to JSON for export.
		return format.JSONTo(out, items)
	}
}

func exportHeaders() []string {
	return []string{
		"workload", "timestamp", "runtime", "stdev_percent",
		"revision", "harness_revision", "runtime_version",
		"hardware_id", "os_version", "compiler",
	}
}

func exportRows(items []database.DataItem) [][]string {
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{
			it.Workload,
			it.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatFloat(it.Runtime, 'f', -1, 64),
			strconv.FormatFloat(it.StdevPercent, 'f', -1, 64),
			it.Revision,
			it.HarnessRevision,
			it.RuntimeVersion,
			it.HardwareID,
			it.OSVersion,
			it.Compiler,
		}
	}
	return rows
}

// printRuns renders measurements in the selected output format. CSV output
// has the export columns.
func printRuns(items []database.DataItem) error {
	if getFormat() == format.FormatCSV {
		return format.CSV(stdout(), exportHeaders(), exportRows(items))
	}
	headers := []string{"TIMESTAMP", "REVISION", "RUNTIME", "STDEV", "HARDWARE", "RUNTIME VERSION"}
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{
			it.Timestamp.UTC().Format("2006-01-02 15:04"),
			shortRevision(it.Revision),
			format.Runtime(it.Runtime),
			format.Percent(it.StdevPercent),
			it.HardwareID,
			it.RuntimeVersion,
		}
	}
	return format.Render(stdout(), getFormat(), items, headers, rows)
}

func shortRevision(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	if rev == "" {
		return "-"
	}
	return rev
}
