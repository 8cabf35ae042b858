package database

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DataDir is the subdirectory of a FileStore root holding per-workload files.
	DataDir = "data"
	// ScalingFile is the name of the calibration factor file below the root.
	ScalingFile = "scaling.csv"

	baselineSuffix  = "-cpython"
	timestampLayout = "2006-01-02 15:04:05.999999"
)

// CSVHeader is the first line of every per-workload data file.
var CSVHeader = []string{
	"Timestamp", "Runtime (s)", "Runtime (stddev)", "Revision", "Harness revision",
	"Runtime version", "Hardware", "OS", "Compiler",
}

// FileStore keeps measurements in CSV files below a root directory:
// data/<workload>.csv for compiled runs, data/<workload>-cpython.csv for
// interpreted baselines and scaling.csv for calibration factors.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore returns a FileStore rooted at dir. The directory is created
// on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: dir}
}

// Root returns the root directory of the store.
func (s *FileStore) Root() string {
	return s.root
}

// DataPath returns the file holding runs of workload in mode.
func (s *FileStore) DataPath(workload string, mode Mode) string {
	name := workload
	if mode == ModeInterpreted {
		name += baselineSuffix
	}
	return filepath.Join(s.root, DataDir, name+".csv")
}

func (s *FileStore) AppendRun(_ context.Context, mode Mode, item DataItem) error {
	if err := ValidateWorkloadName(item.Workload); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(s.root, DataDir), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	path := s.DataPath(item.Workload, mode)
	_, statErr := os.Stat(path)
	needHeader := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(CSVHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := w.Write(encodeItem(item)); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func (s *FileStore) ListRuns(ctx context.Context, f RunFilter) ([]DataItem, error) {
	data, err := s.LoadData(ctx)
	if err != nil {
		return nil, err
	}

	var items []DataItem
	for _, name := range sortedKeys(data.Baselines) {
		for _, it := range data.Baselines[name] {
			if f.Match(ModeInterpreted, it) {
				items = append(items, it)
			}
		}
	}
	for _, name := range sortedKeys(data.Runs) {
		for _, it := range data.Runs[name] {
			if f.Match(ModeCompiled, it) {
				items = append(items, it)
			}
		}
	}
	return items, nil
}

func (s *FileStore) ListWorkloads(ctx context.Context) ([]string, error) {
	data, err := s.LoadData(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	for name := range data.Baselines {
		seen[name] = true
	}
	for name := range data.Runs {
		seen[name] = true
	}
	return sortedKeys(seen), nil
}

// LoadData reads every data file below the root. A missing data directory
// yields empty data.
func (s *FileStore) LoadData(_ context.Context) (*BenchmarkData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &BenchmarkData{
		Baselines: make(map[string][]DataItem),
		Runs:      make(map[string][]DataItem),
	}
	files, err := filepath.Glob(filepath.Join(s.root, DataDir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("glob data files: %w", err)
	}
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".csv")
		workload, isBaseline := strings.CutSuffix(name, baselineSuffix)
		items, err := readDataFile(path, workload)
		if err != nil {
			return nil, err
		}
		if isBaseline {
			data.Baselines[workload] = items
		} else {
			data.Runs[workload] = items
		}
	}
	return data, nil
}

func (s *FileStore) AppendScalingItems(_ context.Context, items []ScalingItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create root dir: %w", err)
	}
	path := filepath.Join(s.root, ScalingFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, it := range items {
		rec := []string{
			it.Workload,
			strconv.FormatFloat(it.Factor, 'g', -1, 64),
			it.OldHardware, it.OldRuntimeVersion,
			it.NewHardware, it.NewRuntimeVersion,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write scaling item: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

// ListScalingItems returns calibration factors in file order. A missing
// scaling file yields no items.
func (s *FileStore) ListScalingItems(_ context.Context, workload string) ([]ScalingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.root, ScalingFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open scaling file: %w", err)
	}
	defer f.Close()

	all, err := ReadScalingItems(f)
	if err != nil {
		return nil, err
	}
	if workload == "" {
		return all, nil
	}
	var items []ScalingItem
	for _, it := range all {
		if it.Workload == workload {
			items = append(items, it)
		}
	}
	return items, nil
}

// ReadScalingItems parses lines of the form
// workload,factor,old_hw,old_rt,new_hw,new_rt. Blank lines are skipped.
func ReadScalingItems(r io.Reader) ([]ScalingItem, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6
	cr.TrimLeadingSpace = true

	var items []ScalingItem
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read scaling items: %w", err)
		}
		factor, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			return nil, fmt.Errorf("parse factor for %s: %w", rec[0], err)
		}
		if factor <= 0 {
			return nil, fmt.Errorf("parse factor for %s: factor %v is not positive", rec[0], factor)
		}
		items = append(items, ScalingItem{
			Workload:          rec[0],
			Factor:            factor,
			OldHardware:       rec[2],
			OldRuntimeVersion: rec[3],
			NewHardware:       rec[4],
			NewRuntimeVersion: rec[5],
		})
	}
	return items, nil
}

func readDataFile(path, workload string) ([]DataItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	// Older files lack the compiler column.
	cr.FieldsPerRecord = -1
	recs, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	items := make([]DataItem, 0, len(recs)-1)
	for i, rec := range recs[1:] {
		item, err := decodeItem(workload, rec)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func encodeItem(item DataItem) []string {
	return []string{
		item.Timestamp.UTC().Format(timestampLayout),
		strconv.FormatFloat(item.Runtime, 'f', 6, 64),
		strconv.FormatFloat(item.StdevPercent, 'f', 6, 64),
		item.Revision,
		item.HarnessRevision,
		item.RuntimeVersion,
		item.HardwareID,
		item.OSVersion,
		item.Compiler,
	}
}

func decodeItem(workload string, rec []string) (DataItem, error) {
	if len(rec) < 8 {
		return DataItem{}, fmt.Errorf("expected at least 8 fields, got %d", len(rec))
	}
	ts, err := parseTimestamp(rec[0])
	if err != nil {
		return DataItem{}, err
	}
	runtime, err := strconv.ParseFloat(rec[1], 64)
	if err != nil {
		return DataItem{}, fmt.Errorf("parse runtime: %w", err)
	}
	stdev, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return DataItem{}, fmt.Errorf("parse stdev: %w", err)
	}
	item := DataItem{
		Workload:        workload,
		Timestamp:       ts,
		Runtime:         runtime,
		StdevPercent:    stdev,
		Revision:        rec[3],
		HarnessRevision: rec[4],
		RuntimeVersion:  rec[5],
		HardwareID:      rec[6],
		OSVersion:       rec[7],
	}
	if len(rec) > 8 {
		item.Compiler = rec[8]
	}
	return item, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{timestampLayout, "2006-01-02T15:04:05.999999", time.RFC3339Nano} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
