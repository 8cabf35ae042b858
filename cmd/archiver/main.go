// Command archiver uploads a snapshot of the measurement store to S3. It
// is meant to run as a scheduled job next to the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/benchscale/benchscale/internal/archive"
	"github.com/benchscale/benchscale/internal/database"
)

var errNoBucket = errors.New("BENCHSCALE_S3_BUCKET is required")

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	if err := run(context.Background()); err != nil {
		slog.Error("archive failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	bucket := os.Getenv("BENCHSCALE_S3_BUCKET")
	if bucket == "" {
		return errNoBucket
	}
	prefix := getEnv("BENCHSCALE_S3_PREFIX", "snapshots")
	concurrency, err := strconv.Atoi(getEnv("ARCHIVE_CONCURRENCY", "8"))
	if err != nil {
		return fmt.Errorf("invalid ARCHIVE_CONCURRENCY: %w", err)
	}

	var repo database.Repo
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		r, err := database.NewRepository(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer r.Close()
		repo = r
	} else {
		repo = database.NewFileStore(getEnv("BENCHSCALE_DATA_DIR", "."))
	}

	u, err := archive.NewUploader(ctx, bucket, archive.SessionPrefix(prefix, time.Now()), os.Getenv("AWS_REGION"))
	if err != nil {
		return fmt.Errorf("create uploader: %w", err)
	}
	u.Concurrency = concurrency

	start := time.Now()
	n, err := u.Publish(ctx, repo)
	if err != nil {
		return err
	}
	slog.Info("archive complete", "files", n, "bucket", bucket, "prefix", u.Prefix,
		"duration", time.Since(start).Round(time.Millisecond))
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
