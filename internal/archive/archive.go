// Package archive publishes measurement data to S3.
package archive

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/benchscale/benchscale/internal/database"
)

const defaultConcurrency = 8

// S3API is the subset of the S3 client used by Uploader.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies directory trees to an S3 bucket.
type Uploader struct {
	Client S3API
	Bucket string
	// Prefix is prepended to every key.
	Prefix      string
	Concurrency int
	Logger      *slog.Logger
}

// NewUploader creates an Uploader using the default AWS credential chain.
// An empty region uses the configured default.
func NewUploader(ctx context.Context, bucket, prefix, region string) (*Uploader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &Uploader{
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Prefix: prefix,
	}, nil
}

// SessionPrefix returns a unique key prefix below base for one upload,
// e.g. "runs/20210501T120000Z-1a2b3c4d".
func SessionPrefix(base string, now time.Time) string {
	session := now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
	if base == "" {
		return session
	}
	return strings.TrimSuffix(base, "/") + "/" + session
}

// UploadDir uploads every regular file below dir, keyed by its path
// relative to dir. It returns the number of files uploaded.
func (u *Uploader) UploadDir(ctx context.Context, dir string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}

	limit := u.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var uploaded atomic.Int64
	for _, f := range files {
		g.Go(func() error {
			rel, err := filepath.Rel(dir, f)
			if err != nil {
				return err
			}
			if err := u.uploadFile(ctx, f, u.key(rel)); err != nil {
				return err
			}
			uploaded.Add(1)
			return nil
		})
	}
	err = g.Wait()
	return int(uploaded.Load()), err
}

func (u *Uploader) key(rel string) string {
	rel = filepath.ToSlash(rel)
	if u.Prefix == "" {
		return rel
	}
	return path.Join(u.Prefix, rel)
}

func (u *Uploader) uploadFile(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(file))
	if filepath.Ext(file) == ".csv" {
		contentType = "text/csv"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = u.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	u.logger().Debug("uploaded", "bucket", u.Bucket, "key", key)
	return nil
}

func (u *Uploader) logger() *slog.Logger {
	if u.Logger == nil {
		return slog.Default()
	}
	return u.Logger
}

// Snapshot writes the contents of repo to dir in the CSV data layout:
// data/<workload>.csv, data/<workload>-cpython.csv and scaling.csv.
func Snapshot(ctx context.Context, repo database.Repo, dir string) error {
	data, err := repo.LoadData(ctx)
	if err != nil {
		return fmt.Errorf("load data: %w", err)
	}
	items, err := repo.ListScalingItems(ctx, "")
	if err != nil {
		return fmt.Errorf("list scaling items: %w", err)
	}

	out := database.NewFileStore(dir)
	for mode, byName := range map[database.Mode]map[string][]database.DataItem{
		database.ModeInterpreted: data.Baselines,
		database.ModeCompiled:    data.Runs,
	} {
		for _, runs := range byName {
			for _, it := range runs {
				if err := out.AppendRun(ctx, mode, it); err != nil {
					return err
				}
			}
		}
	}
	if len(items) > 0 {
		if err := out.AppendScalingItems(ctx, items); err != nil {
			return err
		}
	}
	return nil
}

// Publish snapshots repo into a temporary directory and uploads it. It
// returns the number of files uploaded.
func (u *Uploader) Publish(ctx context.Context, repo database.Repo) (int, error) {
	dir, err := os.MkdirTemp("", "benchscale-archive-")
	if err != nil {
		return 0, fmt.Errorf("create snapshot dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := Snapshot(ctx, repo, dir); err != nil {
		return 0, err
	}
	return u.UploadDir(ctx, dir)
}
