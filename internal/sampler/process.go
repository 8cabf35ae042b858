package sampler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/benchscale/benchscale/internal/metrics"
	"github.com/benchscale/benchscale/internal/workload"
)

var (
	// ErrExecution marks a failed workload execution: non-zero exit or
	// missing elapsed marker.
	ErrExecution = errors.New("execution failed")
	// ErrNoArtifact is returned for compiled runs when the workload has no
	// compiled artifact on disk.
	ErrNoArtifact = errors.New("compiled artifact not found")
)

// priorityPrefix raises scheduling priority of the child process.
var priorityPrefix = []string{"sudo", "nice", "-n", "-5"}

// ExecError describes a failed external process.
type ExecError struct {
	Workload string
	Mode     Mode // empty for preparation hooks
	Command  []string
	ExitCode int // -1 if the process did not exit normally
	Output   []byte
	Err      error
}

func (e *ExecError) Error() string {
	what := e.Workload
	if e.Mode != "" {
		what += " (" + string(e.Mode) + ")"
	}
	if e.ExitCode > 0 {
		return fmt.Sprintf("%s: %s: exit status %d", ErrExecution, what, e.ExitCode)
	}
	return fmt.Sprintf("%s: %s: %v", ErrExecution, what, e.Err)
}

// Unwrap exposes both ErrExecution and the underlying cause.
func (e *ExecError) Unwrap() []error {
	return []error{ErrExecution, e.Err}
}

// ProcessExecutor runs each execution as a local child process.
type ProcessExecutor struct {
	Settings workload.Settings
	// Dir is the working directory of the child processes.
	Dir string
	// Priority prefixes commands with "sudo nice -n -5".
	Priority bool
	// Env is appended to the parent environment.
	Env    []string
	Logger *slog.Logger

	mu        sync.Mutex
	artifacts map[string]string
}

// NewProcessExecutor creates a ProcessExecutor running in dir.
func NewProcessExecutor(settings workload.Settings, dir string) *ProcessExecutor {
	return &ProcessExecutor{
		Settings:  settings,
		Dir:       dir,
		Logger:    slog.Default(),
		artifacts: make(map[string]string),
	}
}

// UseArtifact registers the compiled artifact of a workload. Compiled runs
// require it; interpreted runs move it aside while they execute.
func (p *ProcessExecutor) UseArtifact(name, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artifacts == nil {
		p.artifacts = make(map[string]string)
	}
	p.artifacts[name] = path
}

func (p *ProcessExecutor) artifact(name string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifacts[name]
}

// Prepare runs each preparation hook in order. The first failure stops.
func (p *ProcessExecutor) Prepare(ctx context.Context, w workload.Workload) error {
	for _, h := range w.Prepare {
		args := w.Expand(h.Command)
		p.Logger.Debug("running prepare hook", "workload", w.Name, "command", args)
		if _, err := p.run(ctx, w, "", args, nil); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs w once in mode and returns the elapsed seconds it printed.
func (p *ProcessExecutor) Execute(ctx context.Context, w workload.Workload, mode Mode) (elapsed float64, err error) {
	art := p.artifact(w.Name)
	switch mode {
	case Compiled:
		if art == "" {
			return 0, fmt.Errorf("%w: %s", ErrNoArtifact, w.Name)
		}
		if _, err := os.Stat(art); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrNoArtifact, err)
		}
	case Interpreted:
		if art != "" {
			restore, err := disableArtifact(art)
			if err != nil {
				return 0, err
			}
			defer func() {
				if rerr := restore(); rerr != nil && err == nil {
					err = rerr
				}
			}()
		}
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrUsage, mode)
	}

	args := w.Expand(p.Settings.RunCommand)
	if p.Priority {
		args = append(append([]string(nil), priorityPrefix...), args...)
	}
	var env []string
	if w.StableHashSeed && p.Settings.HashSeedEnv != "" {
		env = append(env, p.Settings.HashSeedEnv+"=1")
	}

	out, err := p.run(ctx, w, mode, args, env)
	if err != nil {
		return 0, err
	}
	t, err := metrics.ParseElapsed(out)
	if err != nil {
		return 0, &ExecError{Workload: w.Name, Mode: mode, Command: args, Output: out, Err: err}
	}
	return t, nil
}

func (p *ProcessExecutor) run(ctx context.Context, w workload.Workload, mode Mode, args, env []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command for %s", ErrUsage, w.Name)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = p.Dir
	cmd.Env = append(append(os.Environ(), p.Env...), env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &ExecError{
			Workload: w.Name,
			Mode:     mode,
			Command:  args,
			ExitCode: code,
			Output:   append(stdout.Bytes(), stderr.Bytes()...),
			Err:      err,
		}
	}
	return stdout.Bytes(), nil
}

// disableArtifact renames path to path+".tmp" and returns a function that
// moves it back.
func disableArtifact(path string) (func() error, error) {
	tmp := path + ".tmp"
	if err := os.Rename(path, tmp); err != nil {
		return nil, fmt.Errorf("disable artifact: %w", err)
	}
	return func() error {
		if err := os.Rename(tmp, path); err != nil {
			return fmt.Errorf("restore artifact: %w", err)
		}
		return nil
	}, nil
}
