package database

import "context"

// Repo defines the interface for measurement storage.
// *Repository (Postgres) and *FileStore (CSV files) both satisfy it. Use
// this interface as a dependency in consumers to enable testing with mocks.
type Repo interface {
	AppendRun(ctx context.Context, mode Mode, item DataItem) error
	ListRuns(ctx context.Context, f RunFilter) ([]DataItem, error)
	ListWorkloads(ctx context.Context) ([]string, error)
	AppendScalingItems(ctx context.Context, items []ScalingItem) error
	ListScalingItems(ctx context.Context, workload string) ([]ScalingItem, error)
	LoadData(ctx context.Context) (*BenchmarkData, error)
}

// Compile-time checks that the concrete stores implement Repo.
var (
	_ Repo = (*Repository)(nil)
	_ Repo = (*FileStore)(nil)
	_ Repo = (*MockRepo)(nil)
)
