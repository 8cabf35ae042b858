package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/benchscale/benchscale/internal/workload"
)

// ErrArtifactCount is returned when compiling does not leave exactly one
// artifact matching the configured pattern.
var ErrArtifactCount = errors.New("expected exactly one compiled artifact")

// CommandCompiler compiles workloads with the catalogue's compile command.
type CommandCompiler struct {
	Settings workload.Settings
	// Dir is the source directory the command runs in.
	Dir string
	// CompilerRepo, if set, is put on PYTHONPATH so the compiler is taken
	// from that checkout.
	CompilerRepo string
	// CC selects the C compiler used by the build.
	CC     string
	Logger *slog.Logger
}

// Compile builds w and returns the path of its compiled artifact.
func (c *CommandCompiler) Compile(ctx context.Context, w workload.Workload) (string, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := w.Expand(c.Settings.CompileCommand)
	if len(args) == 0 {
		return "", fmt.Errorf("%w: no compile command configured", ErrUsage)
	}
	logger.Info("compiling workload", "workload", w.Name, "module", w.Module)

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = os.Environ()
	if c.CompilerRepo != "" {
		cmd.Env = append(cmd.Env, "PYTHONPATH="+c.CompilerRepo)
	}
	if c.CC != "" {
		cmd.Env = append(cmd.Env, "CC="+c.CC)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &ExecError{Workload: w.Name, Command: args, ExitCode: code, Output: out, Err: err}
	}

	pattern := w.Expand([]string{c.Settings.ArtifactGlob})[0]
	if c.Dir != "" && !filepath.IsAbs(pattern) {
		pattern = filepath.Join(c.Dir, pattern)
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("glob artifacts: %w", err)
	}
	if len(paths) != 1 {
		return "", fmt.Errorf("%w: %d match %s", ErrArtifactCount, len(paths), pattern)
	}
	return paths[0], nil
}

// DeleteArtifacts removes files below dir matching any of the patterns and
// returns how many were removed. Stale artifacts from earlier builds would
// otherwise shadow the interpreted source.
func DeleteArtifacts(dir string, patterns ...string) (int, error) {
	removed := 0
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return removed, fmt.Errorf("glob %s: %w", p, err)
		}
		for _, m := range matches {
			if err := os.Remove(m); err != nil {
				return removed, fmt.Errorf("remove %s: %w", m, err)
			}
			removed++
		}
	}
	return removed, nil
}
