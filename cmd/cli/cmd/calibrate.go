package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/scaling"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <revision> <old-hardware> <old-runtime> <new-hardware> <new-runtime>",
	Short: "Derive scaling factors between two configurations",
	Long: `Compute, for every workload measured at <revision> in both
configurations (baseline and compiled run), the factor converting runtimes
from the old configuration to the new one, and append the factors to the
scaling data.

Runtime versions are given as "X.Y"; they match any recorded "X.Y.Z".

Examples:
  benchscale calibrate 1a2b3c "Intel Core i7-2600K (64-bit)" 3.8 "AMD Ryzen 9 3950X (64-bit)" 3.8
  benchscale calibrate 1a2b3c hwA 3.8 hwA 3.10 --dry-run
  benchscale calibrate 1a2b3c hwA 3.8 hwB 3.8 --remote`,
	Args: cobra.ExactArgs(5),
	RunE: runCalibrate,
}

var (
	calibrateDryRun bool
	calibrateRemote bool
)

func init() {
	calibrateCmd.Flags().BoolVar(&calibrateDryRun, "dry-run", false, "Print the factors without recording them")
	calibrateCmd.Flags().BoolVar(&calibrateRemote, "remote", false, "Record the factors through the API instead of the local store")
	RootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	revision := args[0]
	from := scaling.Node{Hardware: args[1], RuntimeVersion: args[2]}
	to := scaling.Node{Hardware: args[3], RuntimeVersion: args[4]}

	repo, closeRepo, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	data, err := repo.LoadData(ctx)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	items := scaling.Calibrate(data, revision, from, to)
	if len(items) == 0 {
		return fmt.Errorf("no workload has measurements at %s in both %s and %s", revision, from, to)
	}

	if err := printScalingItems(items); err != nil {
		return err
	}
	if calibrateDryRun {
		return nil
	}
	if calibrateRemote {
		n, err := newClient().AppendScaling(ctx, items)
		if err != nil {
			return err
		}
		slog.Info("recorded scaling factors", "count", n, "via", apiURL)
		return nil
	}
	if err := repo.AppendScalingItems(ctx, items); err != nil {
		return fmt.Errorf("record scaling factors: %w", err)
	}
	slog.Info("recorded scaling factors", "count", len(items))
	return nil
}

func printScalingItems(items []database.ScalingItem) error {
	headers := []string{"WORKLOAD", "FACTOR", "OLD HARDWARE", "OLD RUNTIME", "NEW HARDWARE", "NEW RUNTIME"}
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{
			it.Workload,
			fmt.Sprintf("%.4f", it.Factor),
			it.OldHardware,
			it.OldRuntimeVersion,
			it.NewHardware,
			it.NewRuntimeVersion,
		}
	}
	return format.Render(stdout(), getFormat(), items, headers, rows)
}
