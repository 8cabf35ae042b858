package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id               BIGSERIAL PRIMARY KEY,
    workload         TEXT NOT NULL,
    mode             TEXT NOT NULL,
    recorded_at      TIMESTAMPTZ NOT NULL,
    runtime          DOUBLE PRECISION NOT NULL,
    stdev_percent    DOUBLE PRECISION NOT NULL,
    revision         TEXT NOT NULL DEFAULT '',
    harness_revision TEXT NOT NULL DEFAULT '',
    runtime_version  TEXT NOT NULL,
    hardware_id      TEXT NOT NULL,
    os_version       TEXT NOT NULL,
    compiler         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_workload_mode ON runs (workload, mode);

CREATE TABLE IF NOT EXISTS scaling_items (
    id                  BIGSERIAL PRIMARY KEY,
    workload            TEXT NOT NULL,
    factor              DOUBLE PRECISION NOT NULL,
    old_hardware        TEXT NOT NULL,
    old_runtime_version TEXT NOT NULL,
    new_hardware        TEXT NOT NULL,
    new_runtime_version TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS scaling_items_workload ON scaling_items (workload);
`

// Repository provides Postgres storage for measurements and scaling data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with a connection pool.
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Migrate creates the tables if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// AppendRun records a measurement taken in the given mode.
func (r *Repository) AppendRun(ctx context.Context, mode Mode, item DataItem) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO runs
		    (workload, mode, recorded_at, runtime, stdev_percent, revision,
		     harness_revision, runtime_version, hardware_id, os_version, compiler)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		item.Workload, string(mode), item.Timestamp, item.Runtime, item.StdevPercent,
		item.Revision, item.HarnessRevision, item.RuntimeVersion, item.HardwareID,
		item.OSVersion, item.Compiler,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// AppendScalingItems inserts calibration factors within a single transaction.
func (r *Repository) AppendScalingItems(ctx context.Context, items []ScalingItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO scaling_items
			    (workload, factor, old_hardware, old_runtime_version, new_hardware, new_runtime_version)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			it.Workload, it.Factor, it.OldHardware, it.OldRuntimeVersion,
			it.NewHardware, it.NewRuntimeVersion,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert scaling items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListScalingItems returns calibration factors for a workload, in insertion
// order. An empty workload returns the factors of every workload.
func (r *Repository) ListScalingItems(ctx context.Context, workload string) ([]ScalingItem, error) {
	query := `SELECT workload, factor, old_hardware, old_runtime_version, new_hardware, new_runtime_version
	          FROM scaling_items`
	var args []any
	if workload != "" {
		query += ` WHERE workload = $1`
		args = append(args, workload)
	}
	query += ` ORDER BY id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scaling items: %w", err)
	}
	defer rows.Close()

	var items []ScalingItem
	for rows.Next() {
		var it ScalingItem
		if err := rows.Scan(&it.Workload, &it.Factor, &it.OldHardware, &it.OldRuntimeVersion,
			&it.NewHardware, &it.NewRuntimeVersion); err != nil {
			return nil, fmt.Errorf("scan scaling row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// LoadData returns every recorded run split into baselines and compiled runs.
func (r *Repository) LoadData(ctx context.Context) (*BenchmarkData, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT mode, workload, recorded_at, runtime, stdev_percent, revision,
		        harness_revision, runtime_version, hardware_id, os_version, compiler
		 FROM runs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	data := &BenchmarkData{
		Baselines: make(map[string][]DataItem),
		Runs:      make(map[string][]DataItem),
	}
	for rows.Next() {
		var mode string
		item, err := scanItem(rows, &mode)
		if err != nil {
			return nil, err
		}
		if Mode(mode) == ModeInterpreted {
			data.Baselines[item.Workload] = append(data.Baselines[item.Workload], item)
		} else {
			data.Runs[item.Workload] = append(data.Runs[item.Workload], item)
		}
	}
	return data, rows.Err()
}

func scanItem(rows pgx.Rows, mode *string) (DataItem, error) {
	var item DataItem
	err := rows.Scan(mode, &item.Workload, &item.Timestamp, &item.Runtime, &item.StdevPercent,
		&item.Revision, &item.HarnessRevision, &item.RuntimeVersion, &item.HardwareID,
		&item.OSVersion, &item.Compiler)
	if err != nil {
		return DataItem{}, fmt.Errorf("scan run row: %w", err)
	}
	return item, nil
}
