package workload

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalogue = `
settings:
  min_time: 1.5
  min_iterations: 12
  run_command: ["python3", "run.py", "{name}"]
workloads:
  - name: richards
    module: benchmarks.bm_richards
    min_iterations: 20
  - name: str_format
    module: microbenchmarks.strings
  - name: mypy_self_check
    module: benchmarks.mypy_self_check
    compiled_only: true
    strip_outliers: false
    stable_hash_seed: true
    prepare:
      - ["./prepare.sh", "--fast"]
`

func TestLoadCatalogue(t *testing.T) {
	reg, err := LoadCatalogue(strings.NewReader(sampleCatalogue))
	require.NoError(t, err)

	assert.Equal(t, []string{"mypy_self_check", "richards", "str_format"}, reg.Names())

	s := reg.Settings()
	assert.Equal(t, 1500*time.Millisecond, s.MinTime)
	assert.Equal(t, 12, s.MinIterations)
	assert.Equal(t, []string{"python3", "run.py", "{name}"}, s.RunCommand)
	assert.Equal(t, DefaultSettings().CompileCommand, s.CompileCommand, "omitted keys keep defaults")

	r, err := reg.Lookup("richards")
	require.NoError(t, err)
	require.NotNil(t, r.MinIterations)
	assert.Equal(t, 20, *r.MinIterations)
	assert.True(t, r.StripOutliers, "strip_outliers defaults to true")
	assert.False(t, r.Micro)

	m, err := reg.Lookup("mypy_self_check")
	require.NoError(t, err)
	assert.True(t, m.CompiledOnly)
	assert.False(t, m.StripOutliers)
	assert.True(t, m.StableHashSeed)
	require.Len(t, m.Prepare, 1)
	assert.Equal(t, []string{"./prepare.sh", "--fast"}, m.Prepare[0].Command)

	assert.Equal(t, map[string]bool{"str_format": true}, reg.Micro())
}

func TestLoadCatalogue_UnknownField(t *testing.T) {
	_, err := LoadCatalogue(strings.NewReader("workloads:\n  - name: x\n    modul: y\n"))
	require.Error(t, err)
}

func TestLoadCatalogue_Duplicate(t *testing.T) {
	src := "workloads:\n  - name: x\n    module: a\n  - name: x\n    module: b\n"
	_, err := LoadCatalogue(strings.NewReader(src))
	require.ErrorIs(t, err, ErrDuplicateWorkload)
}

func TestLoadCatalogue_InvalidMinIterations(t *testing.T) {
	src := "workloads:\n  - name: x\n    module: a\n    min_iterations: 0\n"
	_, err := LoadCatalogue(strings.NewReader(src))
	require.Error(t, err)
}

func TestNewRegistry_EmptyName(t *testing.T) {
	_, err := NewRegistry(DefaultSettings(), Workload{Module: "benchmarks.x"})
	require.Error(t, err)
}

func TestLookup_Unknown(t *testing.T) {
	reg, err := NewRegistry(DefaultSettings())
	require.NoError(t, err)
	_, err = reg.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownWorkload)
}

func TestRegistry_Immutable(t *testing.T) {
	hooks := []Hook{{Command: []string{"a"}}}
	reg, err := NewRegistry(DefaultSettings(), Workload{Name: "w", Prepare: hooks})
	require.NoError(t, err)

	hooks[0] = Hook{Command: []string{"changed"}}
	names := reg.Names()
	names[0] = "changed"

	w, err := reg.Lookup("w")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, w.Prepare[0].Command)
	assert.Equal(t, []string{"w"}, reg.Names())
}

func TestEffectiveMinIterations(t *testing.T) {
	twenty := 20
	tests := []struct {
		name     string
		w        Workload
		override int
		global   int
		want     int
	}{
		{"override wins", Workload{MinIterations: &twenty}, 5, 12, 5},
		{"workload default", Workload{MinIterations: &twenty}, -1, 12, 20},
		{"global", Workload{}, 0, 12, 12},
		{"fallback", Workload{}, -1, 0, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.w.EffectiveMinIterations(tc.override, tc.global))
		})
	}
}

func TestExpand(t *testing.T) {
	w := Workload{Name: "richards", Module: "benchmarks.bm_richards"}
	got := w.Expand([]string{"{module}:{name}", "{path}", "{dir}/{base}.*.so"})
	assert.Equal(t, []string{
		"benchmarks.bm_richards:richards",
		"benchmarks/bm_richards.py",
		"benchmarks/bm_richards.*.so",
	}, got)
}

func TestDefaultCatalogue(t *testing.T) {
	reg, err := DefaultCatalogue()
	require.NoError(t, err)

	w, err := reg.Lookup("mypy_startup")
	require.NoError(t, err)
	assert.True(t, w.CompiledOnly)
	assert.Len(t, w.Prepare, 2)

	assert.True(t, reg.Micro()["sieve"])
	assert.Equal(t, DefaultMinTime, reg.Settings().MinTime)
}
