// Package workload holds the catalogue of benchmarked programs.
//
// A Registry is built once from a catalogue file and is read-only afterwards,
// so it can be shared between goroutines without locking.
package workload

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultMinIterations is used when neither the caller nor the workload
	// sets a minimum iteration count.
	DefaultMinIterations = 10
	// DefaultMinTime is the minimum summed runtime of one mode before
	// sampling may stop.
	DefaultMinTime = 2 * time.Second

	microPrefix = "microbenchmarks."
)

var (
	ErrUnknownWorkload   = errors.New("unknown workload")
	ErrDuplicateWorkload = errors.New("duplicate workload")
)

// Hook is an external command run once before a workload is sampled.
type Hook struct {
	Command []string `json:"command"`
}

// Workload describes one benchmarked program.
type Workload struct {
	Name   string `json:"name"`
	Module string `json:"module"`
	// Micro marks noisy microbenchmarks; reports use a wider significance
	// threshold for them.
	Micro          bool   `json:"micro"`
	CompiledOnly   bool   `json:"compiled_only"`
	MinIterations  *int   `json:"min_iterations,omitempty"`
	StripOutliers  bool   `json:"strip_outliers"`
	StableHashSeed bool   `json:"stable_hash_seed"`
	Prepare        []Hook `json:"prepare,omitempty"`
}

// SourcePath returns the path of the workload's source file relative to
// the source directory, e.g. "benchmarks/bm_richards.py".
func (w Workload) SourcePath() string {
	return strings.ReplaceAll(w.Module, ".", "/") + ".py"
}

// EffectiveMinIterations resolves the minimum iteration count: a positive
// override wins, then the workload's own default, then global.
func (w Workload) EffectiveMinIterations(override, global int) int {
	if override > 0 {
		return override
	}
	if w.MinIterations != nil {
		return *w.MinIterations
	}
	if global > 0 {
		return global
	}
	return DefaultMinIterations
}

// Settings are catalogue-wide execution settings. Command templates may
// contain the placeholders {name}, {module}, {path}, {dir} and {base}.
type Settings struct {
	MinTime               time.Duration
	MinIterations         int
	RunCommand            []string
	CompileCommand        []string
	ArtifactGlob          string
	RuntimeVersionCommand []string
	HashSeedEnv           string
	CC                    string
}

// DefaultSettings returns the settings used for values the catalogue omits.
func DefaultSettings() Settings {
	return Settings{
		MinTime:       DefaultMinTime,
		MinIterations: DefaultMinIterations,
		RunCommand: []string{"python3", "-c",
			`import {module}; import benchmarking as bm; print("\nelapsed:", bm.run_once("{name}"))`},
		CompileCommand:        []string{"python3", "-m", "mypyc", "{path}"},
		ArtifactGlob:          "{dir}/{base}.*.so",
		RuntimeVersionCommand: []string{"python3", "-c", "import sys; print(sys.version.split()[0])"},
		HashSeedEnv:           "PYTHONHASHSEED",
		CC:                    "clang",
	}
}

// Expand substitutes the workload placeholders in args.
func (w Workload) Expand(args []string) []string {
	path := w.SourcePath()
	dir, base := ".", strings.TrimSuffix(path, ".py")
	if i := strings.LastIndex(base, "/"); i >= 0 {
		dir, base = base[:i], base[i+1:]
	}
	r := strings.NewReplacer(
		"{name}", w.Name,
		"{module}", w.Module,
		"{path}", path,
		"{dir}", dir,
		"{base}", base,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

// Registry is an immutable workload catalogue.
type Registry struct {
	settings Settings
	byName   map[string]Workload
	names    []string
}

// NewRegistry builds a registry. Names must be non-empty and unique.
func NewRegistry(settings Settings, workloads ...Workload) (*Registry, error) {
	r := &Registry{
		settings: settings,
		byName:   make(map[string]Workload, len(workloads)),
	}
	for _, w := range workloads {
		if w.Name == "" {
			return nil, fmt.Errorf("workload with module %q has no name", w.Module)
		}
		if _, ok := r.byName[w.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorkload, w.Name)
		}
		w.Prepare = append([]Hook(nil), w.Prepare...)
		r.byName[w.Name] = w
		r.names = append(r.names, w.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Lookup returns the workload with the given name.
func (r *Registry) Lookup(name string) (Workload, error) {
	w, ok := r.byName[name]
	if !ok {
		return Workload{}, fmt.Errorf("%w: %q", ErrUnknownWorkload, name)
	}
	return w, nil
}

// All returns every workload sorted by name.
func (r *Registry) All() []Workload {
	out := make([]Workload, len(r.names))
	for i, n := range r.names {
		out[i] = r.byName[n]
	}
	return out
}

// Names returns the sorted workload names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Micro returns the set of microbenchmark names.
func (r *Registry) Micro() map[string]bool {
	out := make(map[string]bool)
	for n, w := range r.byName {
		if w.Micro {
			out[n] = true
		}
	}
	return out
}

// Settings returns the catalogue-wide settings.
func (r *Registry) Settings() Settings {
	return r.settings
}
