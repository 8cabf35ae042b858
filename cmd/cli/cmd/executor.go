package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/benchscale/benchscale/internal/orchestrator"
	"github.com/benchscale/benchscale/internal/sampler"
	"github.com/benchscale/benchscale/internal/workload"
)

const (
	executorLocal = "local"
	executorKube  = "kube"
)

// Stale artifacts that would shadow the interpreted sources.
var staleArtifacts = []string{"benchmarks/*.so", "microbenchmarks/*.so"}

var (
	execKind      string
	execSourceDir string
	execCompiler  string
	execPriority  bool
	execImage     string
	execNamespace string
	execInstance  string
	execCPU       string
	execMemory    string
	kubeconfig    string
)

// addExecutorFlags registers the flags selecting where workloads run.
func addExecutorFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&execKind, "executor", executorLocal, "Where executions run: local or kube")
	f.StringVar(&execSourceDir, "source-dir", ".", "Directory holding the workload sources (local executor)")
	f.StringVar(&execCompiler, "compiler-repo", "", "Use the compiler from this checkout instead of the installed one")
	f.BoolVar(&execPriority, "priority", false, "Run executions at raised priority (uses sudo)")
	f.StringVar(&execImage, "image", envOrDefault("BENCHSCALE_IMAGE", ""), "Runner image (kube executor)")
	f.StringVar(&execNamespace, "namespace", envOrDefault("BENCHSCALE_NAMESPACE", "benchscale"), "Namespace for execution jobs (kube executor)")
	f.StringVar(&execInstance, "instance-type", "", "Pin execution jobs to this node instance type (kube executor)")
	f.StringVar(&execCPU, "cpu", "", "CPU request and limit of execution jobs (kube executor)")
	f.StringVar(&execMemory, "memory", "", "Memory request and limit of execution jobs (kube executor)")
	f.StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (default: in-cluster, then ~/.kube/config)")
}

// workloadExecutor is what run and collect need from an executor.
type workloadExecutor struct {
	exec sampler.Executor
	// compiler is nil when the runner builds its own artifacts.
	compiler *sampler.CommandCompiler
	local    *sampler.ProcessExecutor
}

func newWorkloadExecutor(settings workload.Settings) (*workloadExecutor, error) {
	switch execKind {
	case executorLocal:
		pe := sampler.NewProcessExecutor(settings, execSourceDir)
		pe.Priority = execPriority
		if execCompiler != "" {
			pe.Env = append(pe.Env, "PYTHONPATH="+execCompiler)
		}
		return &workloadExecutor{
			exec:  pe,
			local: pe,
			compiler: &sampler.CommandCompiler{
				Settings:     settings,
				Dir:          execSourceDir,
				CompilerRepo: execCompiler,
				CC:           settings.CC,
			},
		}, nil
	case executorKube:
		if execImage == "" {
			return nil, fmt.Errorf("%w: --image is required with --executor=kube", sampler.ErrUsage)
		}
		client, err := kubeClient()
		if err != nil {
			return nil, err
		}
		k := orchestrator.NewKubeExecutor(client, settings, execNamespace, execImage)
		k.InstanceType = execInstance
		k.CPU = execCPU
		k.Memory = execMemory
		return &workloadExecutor{exec: k}, nil
	default:
		return nil, fmt.Errorf("%w: unknown executor %q", sampler.ErrUsage, execKind)
	}
}

// clean removes stale artifacts left by earlier local builds.
func (e *workloadExecutor) clean() error {
	if e.local == nil {
		return nil
	}
	n, err := sampler.DeleteArtifacts(execSourceDir, staleArtifacts...)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Debug("removed stale artifacts", "count", n)
	}
	return nil
}

// compile builds w locally and registers the artifact with the executor.
func (e *workloadExecutor) compile(ctx context.Context, w workload.Workload) error {
	if e.compiler == nil {
		return nil
	}
	path, err := e.compiler.Compile(ctx, w)
	if err != nil {
		return err
	}
	e.local.UseArtifact(w.Name, path)
	return nil
}

func kubeClient() (kubernetes.Interface, error) {
	var (
		cfg *rest.Config
		err error
	)
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
	}
	if kubeconfig != "" || err != nil {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = kubeconfig
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return client, nil
}
