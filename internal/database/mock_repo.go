package database

import (
	"context"
	"sort"
	"sync"
)

// MockRepo is an in-memory implementation of Repo for testing.
type MockRepo struct {
	mu        sync.Mutex
	baselines []DataItem
	runs      []DataItem
	scaling   []ScalingItem

	// AppendErr, when set, is returned by AppendRun.
	AppendErr error
}

// NewMockRepo creates a new MockRepo.
func NewMockRepo() *MockRepo {
	return &MockRepo{}
}

// Seed adds recorded runs to the mock store.
func (m *MockRepo) Seed(mode Mode, items ...DataItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode == ModeInterpreted {
		m.baselines = append(m.baselines, items...)
	} else {
		m.runs = append(m.runs, items...)
	}
}

// Count returns the number of stored runs in a mode (for test assertions).
func (m *MockRepo) Count(mode Mode) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mode == ModeInterpreted {
		return len(m.baselines)
	}
	return len(m.runs)
}

func (m *MockRepo) AppendRun(_ context.Context, mode Mode, item DataItem) error {
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.Seed(mode, item)
	return nil
}

func (m *MockRepo) ListRuns(_ context.Context, f RunFilter) ([]DataItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []DataItem
	for _, it := range m.baselines {
		if f.Match(ModeInterpreted, it) {
			items = append(items, it)
		}
	}
	for _, it := range m.runs {
		if f.Match(ModeCompiled, it) {
			items = append(items, it)
		}
	}
	return items, nil
}

func (m *MockRepo) ListWorkloads(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var names []string
	for _, list := range [][]DataItem{m.baselines, m.runs} {
		for _, it := range list {
			if !seen[it.Workload] {
				seen[it.Workload] = true
				names = append(names, it.Workload)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockRepo) AppendScalingItems(_ context.Context, items []ScalingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scaling = append(m.scaling, items...)
	return nil
}

func (m *MockRepo) ListScalingItems(_ context.Context, workload string) ([]ScalingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []ScalingItem
	for _, it := range m.scaling {
		if workload == "" || it.Workload == workload {
			items = append(items, it)
		}
	}
	return items, nil
}

func (m *MockRepo) LoadData(_ context.Context) (*BenchmarkData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data := &BenchmarkData{
		Baselines: make(map[string][]DataItem),
		Runs:      make(map[string][]DataItem),
	}
	for _, it := range m.baselines {
		data.Baselines[it.Workload] = append(data.Baselines[it.Workload], it)
	}
	for _, it := range m.runs {
		data.Runs[it.Workload] = append(data.Runs[it.Workload], it)
	}
	return data, nil
}
