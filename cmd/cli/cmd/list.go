package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/api"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workloads in the catalogue",
	Long: `List every workload in the catalogue, sorted by name.

Microbenchmarks are marked "(micro)" and workloads that have no
interpreted mode "(compiled only)". Use --raw for bare names.

Examples:
  benchscale list
  benchscale list --raw
  benchscale list --catalogue ./catalogue.yaml -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var listRaw bool

func init() {
	listCmd.Flags().BoolVar(&listRaw, "raw", false, "Print names only")
	RootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	reg, err := loadRegistry()
	if err != nil {
		return err
	}

	if getFormat() == format.FormatJSON {
		out := make([]api.WorkloadInfo, 0)
		for _, w := range reg.All() {
			out = append(out, api.WorkloadInfo{Name: w.Name, Micro: w.Micro, CompiledOnly: w.CompiledOnly})
		}
		return format.JSONTo(stdout(), out)
	}

	for _, w := range reg.All() {
		line := w.Name
		if !listRaw {
			if w.Micro {
				line += " (micro)"
			}
			if w.CompiledOnly {
				line += " (compiled only)"
			}
		}
		fmt.Fprintln(stdout(), line)
	}
	return nil
}
