package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ListRuns returns recorded runs matching the given filter, oldest first.
func (r *Repository) ListRuns(ctx context.Context, f RunFilter) ([]DataItem, error) {
	var (
		conditions []string
		args       []any
		argIdx     int
	)

	if f.Workload != "" {
		argIdx++
		conditions = append(conditions, fmt.Sprintf("workload = $%d", argIdx))
		args = append(args, f.Workload)
	}
	if f.Mode != "" {
		argIdx++
		conditions = append(conditions, fmt.Sprintf("mode = $%d", argIdx))
		args = append(args, string(f.Mode))
	}
	if f.Revision != "" {
		argIdx++
		conditions = append(conditions, fmt.Sprintf("revision = $%d", argIdx))
		args = append(args, f.Revision)
	}
	if f.HardwareID != "" {
		argIdx++
		conditions = append(conditions, fmt.Sprintf("hardware_id = $%d", argIdx))
		args = append(args, f.HardwareID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT mode, workload, recorded_at, runtime, stdev_percent, revision,
		       harness_revision, runtime_version, hardware_id, os_version, compiler
		FROM runs
		%s
		ORDER BY id
	`, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var items []DataItem
	for rows.Next() {
		var mode string
		item, err := scanItem(rows, &mode)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListWorkloads returns the names of all workloads with recorded runs.
func (r *Repository) ListWorkloads(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT workload FROM runs ORDER BY workload`)
	if err != nil {
		return nil, fmt.Errorf("query workloads: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan workload row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SortByRevision returns items ordered by revision age, most recent first,
// using order (revision -> position, 0 = newest). Items whose revision is
// not in order sort last, keeping their relative order.
func SortByRevision(items []DataItem, order map[string]int) []DataItem {
	out := make([]DataItem, len(items))
	copy(out, items)
	rank := func(d DataItem) int {
		if i, ok := order[d.Revision]; ok {
			return i
		}
		return len(order)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}
