package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/cmd/cli/client"
	"github.com/benchscale/benchscale/cmd/cli/format"
	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/workload"
)

var (
	apiURL        string
	outputFormat  string
	dataDir       string
	databaseURL   string
	cataloguePath string
	verbose       bool
)

// RootCmd is the top-level CLI command.
var RootCmd = &cobra.Command{
	Use:           "benchscale",
	Short:         "benchscale CLI: measure compiled vs interpreted workloads and track them over time",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOrDefault("BENCHSCALE_API_URL", "http://localhost:8080"), "benchscale API base URL")
	RootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, csv")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", envOrDefault("BENCHSCALE_DATA_DIR", "."), "Directory of the CSV data store")
	RootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL; overrides --data-dir when set")
	RootCmd.PersistentFlags().StringVar(&cataloguePath, "catalogue", os.Getenv("BENCHSCALE_CATALOGUE"), "Workload catalogue YAML (default: built-in catalogue)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func newClient() *client.Client {
	return client.New(apiURL)
}

func getFormat() format.OutputFormat {
	switch outputFormat {
	case "json":
		return format.FormatJSON
	case "csv":
		return format.FormatCSV
	default:
		return format.FormatTable
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// commandContext returns cmd's context, or a background context when the
// command runs outside of Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd == nil || cmd.Context() == nil {
		return context.Background()
	}
	return cmd.Context()
}

// stdout is where command results go. Logs go to stderr.
func stdout() io.Writer {
	return RootCmd.OutOrStdout()
}

// openStore returns the Postgres repository when a database URL is
// configured and the CSV store in --data-dir otherwise.
func openStore(ctx context.Context) (database.Repo, func(), error) {
	if databaseURL == "" {
		return database.NewFileStore(dataDir), func() {}, nil
	}
	repo, err := database.NewRepository(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		repo.Close()
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

func loadRegistry() (*workload.Registry, error) {
	if cataloguePath == "" {
		return workload.DefaultCatalogue()
	}
	return workload.LoadCatalogueFile(cataloguePath)
}
