package database

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidWorkload is returned for workload names that cannot name a
// data file.
var ErrInvalidWorkload = errors.New("invalid workload name")

// ValidateWorkloadName rejects empty names and names containing path
// separators or "..".
func ValidateWorkloadName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidWorkload, name)
	}
	return nil
}

// Mode is the execution mode a measurement was taken in.
type Mode string

const (
	ModeCompiled    Mode = "compiled"
	ModeInterpreted Mode = "interpreted"
)

// ParseMode converts a string such as "compiled" or "interpreted" to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeCompiled, ModeInterpreted:
		return Mode(s), true
	}
	return "", false
}

// ConfigKey identifies the configuration a measurement was taken under.
// Baselines and compiled runs are only comparable when their keys are equal.
type ConfigKey struct {
	RuntimeVersion string `json:"runtime_version"`
	HardwareID     string `json:"hardware_id"`
	OSVersion      string `json:"os_version"`
}

// DataItem is one recorded measurement of a workload. Values are never
// modified after creation; use WithRuntime to derive an adjusted copy.
type DataItem struct {
	Workload        string    `json:"workload"`
	Timestamp       time.Time `json:"timestamp"`
	Runtime         float64   `json:"runtime"` // seconds per iteration, 0 if the run failed
	StdevPercent    float64   `json:"stdev_percent"`
	Revision        string    `json:"revision"`
	HarnessRevision string    `json:"harness_revision"`
	RuntimeVersion  string    `json:"runtime_version"`
	HardwareID      string    `json:"hardware_id"`
	OSVersion       string    `json:"os_version"`
	Compiler        string    `json:"compiler,omitempty"`
}

// Key returns the configuration key of the item.
func (d DataItem) Key() ConfigKey {
	return ConfigKey{
		RuntimeVersion: d.RuntimeVersion,
		HardwareID:     d.HardwareID,
		OSVersion:      d.OSVersion,
	}
}

// Failed reports whether the item records a failed run.
func (d DataItem) Failed() bool {
	return d.Runtime == 0
}

// WithRuntime returns a copy of d with the runtime replaced.
func (d DataItem) WithRuntime(runtime float64) DataItem {
	d.Runtime = runtime
	return d
}

// ScalingItem is a conversion factor between two configurations, valid for
// a single workload: new_runtime = old_runtime / Factor.
type ScalingItem struct {
	Workload          string  `json:"workload"`
	Factor            float64 `json:"factor"`
	OldHardware       string  `json:"old_hardware"`
	OldRuntimeVersion string  `json:"old_runtime_version"`
	NewHardware       string  `json:"new_hardware"`
	NewRuntimeVersion string  `json:"new_runtime_version"`
}

// RunFilter holds optional filters for listing recorded runs.
type RunFilter struct {
	Workload   string
	Mode       Mode // "" matches both modes
	Revision   string
	HardwareID string
}

// Match reports whether item recorded in mode passes the filter.
func (f RunFilter) Match(mode Mode, item DataItem) bool {
	if f.Workload != "" && item.Workload != f.Workload {
		return false
	}
	if f.Mode != "" && mode != f.Mode {
		return false
	}
	if f.Revision != "" && item.Revision != f.Revision {
		return false
	}
	if f.HardwareID != "" && item.HardwareID != f.HardwareID {
		return false
	}
	return true
}

// BenchmarkData is every recorded measurement, keyed by workload name.
type BenchmarkData struct {
	// Interpreted baseline runs.
	Baselines map[string][]DataItem `json:"baselines"`
	// Compiled runs.
	Runs map[string][]DataItem `json:"runs"`
}

// FindBaseline returns the first baseline recorded under exactly the same
// configuration as run.
func FindBaseline(baselines []DataItem, run DataItem) (DataItem, bool) {
	key := run.Key()
	for _, b := range baselines {
		if b.Key() == key {
			return b, true
		}
	}
	return DataItem{}, false
}
