package sampler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchscale/benchscale/internal/metrics"
	"github.com/benchscale/benchscale/internal/workload"
)

// newScriptExecutor writes script to run.sh in a temp dir and returns an
// executor that runs it for every execution.
func newScriptExecutor(t *testing.T, script string) (*ProcessExecutor, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0o755))
	settings := workload.DefaultSettings()
	settings.RunCommand = []string{"sh", "run.sh", "{name}"}
	return NewProcessExecutor(settings, dir), dir
}

const artifactCheckScript = `
if [ -e art.so ]; then echo "elapsed: 1.5"; else echo "elapsed: 3.0"; fi
`

func TestProcessExecutor_ArtifactSwap(t *testing.T) {
	p, dir := newScriptExecutor(t, artifactCheckScript)
	art := filepath.Join(dir, "art.so")
	require.NoError(t, os.WriteFile(art, []byte("bin"), 0o644))
	p.UseArtifact("w", art)
	w := workload.Workload{Name: "w"}

	c, err := p.Execute(context.Background(), w, Compiled)
	require.NoError(t, err)
	assert.Equal(t, 1.5, c)

	i, err := p.Execute(context.Background(), w, Interpreted)
	require.NoError(t, err)
	assert.Equal(t, 3.0, i, "artifact must be disabled during interpreted runs")

	_, err = os.Stat(art)
	assert.NoError(t, err, "artifact restored after interpreted run")
	_, err = os.Stat(art + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestProcessExecutor_RestoresArtifactOnFailure(t *testing.T) {
	p, dir := newScriptExecutor(t, "echo boom >&2\nexit 3\n")
	art := filepath.Join(dir, "art.so")
	require.NoError(t, os.WriteFile(art, []byte("bin"), 0o644))
	p.UseArtifact("w", art)

	_, err := p.Execute(context.Background(), workload.Workload{Name: "w"}, Interpreted)
	require.ErrorIs(t, err, ErrExecution)

	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Contains(t, string(execErr.Output), "boom")
	assert.Equal(t, Interpreted, execErr.Mode)

	_, err = os.Stat(art)
	assert.NoError(t, err, "artifact restored after failed run")
}

func TestProcessExecutor_MissingElapsed(t *testing.T) {
	p, _ := newScriptExecutor(t, "echo done\n")
	_, err := p.Execute(context.Background(), workload.Workload{Name: "w"}, Interpreted)
	require.ErrorIs(t, err, ErrExecution)
	require.ErrorIs(t, err, metrics.ErrNoElapsed)
}

func TestProcessExecutor_ZeroElapsed(t *testing.T) {
	p, _ := newScriptExecutor(t, "echo 'elapsed: 0'\n")
	_, err := p.Execute(context.Background(), workload.Workload{Name: "w"}, Interpreted)
	require.ErrorIs(t, err, ErrExecution)
	require.ErrorIs(t, err, metrics.ErrBadElapsed)
}

func TestProcessExecutor_CompiledNeedsArtifact(t *testing.T) {
	p, dir := newScriptExecutor(t, artifactCheckScript)
	w := workload.Workload{Name: "w"}

	_, err := p.Execute(context.Background(), w, Compiled)
	require.ErrorIs(t, err, ErrNoArtifact)

	p.UseArtifact("w", filepath.Join(dir, "gone.so"))
	_, err = p.Execute(context.Background(), w, Compiled)
	require.ErrorIs(t, err, ErrNoArtifact)
}

func TestProcessExecutor_InterpretedWithoutArtifact(t *testing.T) {
	p, _ := newScriptExecutor(t, artifactCheckScript)
	got, err := p.Execute(context.Background(), workload.Workload{Name: "w"}, Interpreted)
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestProcessExecutor_StableHashSeed(t *testing.T) {
	p, _ := newScriptExecutor(t, `echo "elapsed: ${PYTHONHASHSEED}.25"`+"\n")
	w := workload.Workload{Name: "w", StableHashSeed: true}
	got, err := p.Execute(context.Background(), w, Interpreted)
	require.NoError(t, err)
	assert.Equal(t, 1.25, got)
}

func TestProcessExecutor_SubstitutesName(t *testing.T) {
	p, _ := newScriptExecutor(t, `[ "$1" = "richards" ] && echo "elapsed: 0.5"`+"\n")
	got, err := p.Execute(context.Background(), workload.Workload{Name: "richards"}, Interpreted)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
}

func TestProcessExecutor_Prepare(t *testing.T) {
	p, dir := newScriptExecutor(t, "")
	w := workload.Workload{Name: "w", Prepare: []workload.Hook{
		{Command: []string{"sh", "-c", "echo one > hook.txt"}},
		{Command: []string{"sh", "-c", "echo two >> hook.txt"}},
	}}
	require.NoError(t, p.Prepare(context.Background(), w))
	data, err := os.ReadFile(filepath.Join(dir, "hook.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))

	w.Prepare = []workload.Hook{{Command: []string{"sh", "-c", "exit 2"}}, {Command: []string{"sh", "-c", "touch never"}}}
	err = p.Prepare(context.Background(), w)
	require.ErrorIs(t, err, ErrExecution)
	_, statErr := os.Stat(filepath.Join(dir, "never"))
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "hooks after a failure do not run")
}

func TestProcessExecutor_WithSampler(t *testing.T) {
	p, dir := newScriptExecutor(t, artifactCheckScript)
	art := filepath.Join(dir, "art.so")
	require.NoError(t, os.WriteFile(art, []byte("bin"), 0o644))
	p.UseArtifact("w", art)

	w := workload.Workload{Name: "w", MinIterations: intPtr(2), StripOutliers: true}
	res, err := New(p, Options{}).Run(context.Background(), w, Both)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	assert.InDelta(t, 2.0, res.Relative(), 1e-9)
}

func TestCommandCompiler(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "benchmarks"), 0o755))
	settings := workload.DefaultSettings()
	settings.CompileCommand = []string{"sh", "-c", "touch {dir}/{base}.cpython-38.so"}
	c := &CommandCompiler{Settings: settings, Dir: dir}
	w := workload.Workload{Name: "richards", Module: "benchmarks.bm_richards"}

	path, err := c.Compile(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "benchmarks", "bm_richards.cpython-38.so"), path)

	// A second artifact for the same module is ambiguous.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "benchmarks", "bm_richards.other.so"), nil, 0o644))
	_, err = c.Compile(context.Background(), w)
	require.ErrorIs(t, err, ErrArtifactCount)

	n, err := DeleteArtifacts(dir, "benchmarks/*.so")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCommandCompiler_NoArtifact(t *testing.T) {
	settings := workload.DefaultSettings()
	settings.CompileCommand = []string{"true"}
	c := &CommandCompiler{Settings: settings, Dir: t.TempDir()}
	_, err := c.Compile(context.Background(), workload.Workload{Name: "x", Module: "benchmarks.x"})
	require.ErrorIs(t, err, ErrArtifactCount)
}

func TestCommandCompiler_Failure(t *testing.T) {
	settings := workload.DefaultSettings()
	settings.CompileCommand = []string{"sh", "-c", "exit 1"}
	c := &CommandCompiler{Settings: settings, Dir: t.TempDir()}
	_, err := c.Compile(context.Background(), workload.Workload{Name: "x", Module: "benchmarks.x"})
	require.ErrorIs(t, err, ErrExecution)
}
