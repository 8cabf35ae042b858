package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/benchscale/benchscale/internal/archive"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Upload a snapshot of the store to S3",
	Long: `Write every recorded measurement and scaling factor in the CSV data
layout and upload the files to S3 under <prefix>/<timestamp>-<id>/.

Examples:
  benchscale archive --bucket my-bench-data
  benchscale archive --bucket my-bench-data --prefix nightly --database-url postgres://...`,
	Args: cobra.NoArgs,
	RunE: runArchive,
}

var (
	archiveBucket      string
	archivePrefix      string
	archiveRegion      string
	archiveConcurrency int
)

func init() {
	archiveCmd.Flags().StringVar(&archiveBucket, "bucket", envOrDefault("BENCHSCALE_S3_BUCKET", ""), "Destination S3 bucket")
	archiveCmd.Flags().StringVar(&archivePrefix, "prefix", "snapshots", "Key prefix of the snapshot")
	archiveCmd.Flags().StringVar(&archiveRegion, "region", "", "AWS region (default: from the AWS configuration)")
	archiveCmd.Flags().IntVar(&archiveConcurrency, "concurrency", 0, "Parallel uploads (default 8)")
	RootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	if archiveBucket == "" {
		return fmt.Errorf("--bucket or BENCHSCALE_S3_BUCKET is required")
	}
	repo, closeRepo, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	u, err := archive.NewUploader(ctx, archiveBucket, archive.SessionPrefix(archivePrefix, time.Now()), archiveRegion)
	if err != nil {
		return err
	}
	u.Concurrency = archiveConcurrency
	n, err := u.Publish(ctx, repo)
	if err != nil {
		return err
	}
	slog.Info("archive uploaded", "files", n, "bucket", archiveBucket, "prefix", u.Prefix)
	fmt.Fprintf(stdout(), "s3://%s/%s\n", archiveBucket, u.Prefix)
	return nil
}
