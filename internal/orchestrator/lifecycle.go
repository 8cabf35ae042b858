package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/benchscale/benchscale/internal/manifest"
	"github.com/benchscale/benchscale/internal/metrics"
	"github.com/benchscale/benchscale/internal/sampler"
	"github.com/benchscale/benchscale/internal/workload"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/kubernetes"
)

const (
	defaultJobTimeout = 2 * time.Hour
	defaultJobPoll    = 2 * time.Second
	defaultNamespace  = "benchscale"
	containerName     = "workload"
	phasePrepare      = "prepare"
)

// KubeExecutor runs every execution as a fresh Kubernetes Job and reads
// the elapsed time from the pod log. The runner image decides how to
// hide compiled artifacts; it receives the phase in BENCHSCALE_PHASE.
type KubeExecutor struct {
	Settings     workload.Settings
	Namespace    string
	Image        string
	InstanceType string
	CPU          string
	Memory       string
	PollInterval time.Duration
	Timeout      time.Duration
	Logger       *slog.Logger

	client kubernetes.Interface
	logs   func(ctx context.Context, ns, jobName string) ([]byte, error)
}

var _ sampler.Executor = (*KubeExecutor)(nil)

// NewKubeExecutor creates a KubeExecutor running image in namespace ns.
func NewKubeExecutor(client kubernetes.Interface, settings workload.Settings, ns, image string) *KubeExecutor {
	if ns == "" {
		ns = defaultNamespace
	}
	k := &KubeExecutor{
		Settings:     settings,
		Namespace:    ns,
		Image:        image,
		PollInterval: defaultJobPoll,
		Timeout:      defaultJobTimeout,
		Logger:       slog.Default(),
		client:       client,
	}
	k.logs = k.readJobLogs
	return k
}

// Prepare runs each preparation hook as its own Job, in order.
func (k *KubeExecutor) Prepare(ctx context.Context, w workload.Workload) error {
	for _, h := range w.Prepare {
		args := w.Expand(h.Command)
		if _, err := k.runJob(ctx, w, phasePrepare, args, nil); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs w once in mode: deploy job → wait → read logs → teardown.
func (k *KubeExecutor) Execute(ctx context.Context, w workload.Workload, mode sampler.Mode) (float64, error) {
	if mode != sampler.Compiled && mode != sampler.Interpreted {
		return 0, fmt.Errorf("%w: unknown mode %q", sampler.ErrUsage, mode)
	}
	args := w.Expand(k.Settings.RunCommand)
	var env []manifest.EnvVar
	if w.StableHashSeed && k.Settings.HashSeedEnv != "" {
		env = append(env, manifest.EnvVar{Name: k.Settings.HashSeedEnv, Value: "1"})
	}

	out, err := k.runJob(ctx, w, string(mode), args, env)
	if err != nil {
		return 0, err
	}
	t, err := metrics.ParseElapsed(out)
	if err != nil {
		return 0, &sampler.ExecError{Workload: w.Name, Mode: mode, Command: args, ExitCode: -1, Output: out, Err: err}
	}
	return t, nil
}

func (k *KubeExecutor) runJob(ctx context.Context, w workload.Workload, phase string, args []string, env []manifest.EnvVar) ([]byte, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: empty command for %s", sampler.ErrUsage, w.Name)
	}
	name := jobName(w.Name)
	yamlStr, err := manifest.RenderWorkloadJob(manifest.WorkloadJobParams{
		Name:          name,
		Namespace:     k.Namespace,
		Image:         k.Image,
		Workload:      w.Name,
		Phase:         phase,
		Command:       args,
		Env:           env,
		InstanceType:  k.InstanceType,
		CPURequest:    k.CPU,
		MemoryRequest: k.Memory,
	})
	if err != nil {
		return nil, err
	}

	// Ensure teardown happens regardless of outcome.
	defer k.teardown(context.Background(), k.Namespace, name)

	k.logger().Debug("launching job", "job", name, "workload", w.Name, "phase", phase)
	if err := k.applyYAML(ctx, k.Namespace, yamlStr); err != nil {
		return nil, fmt.Errorf("launch job %s: %w", name, err)
	}

	out, err := k.waitAndCollect(ctx, k.Namespace, name)
	if err != nil {
		var m sampler.Mode
		if phase != phasePrepare {
			m = sampler.Mode(phase)
		}
		return nil, &sampler.ExecError{Workload: w.Name, Mode: m, Command: args, ExitCode: -1, Output: out, Err: err}
	}
	return out, nil
}

// waitAndCollect polls the Job until it completes or fails and returns the
// pod log. On failure the log is returned too when it can be read.
func (k *KubeExecutor) waitAndCollect(ctx context.Context, ns, jobName string) ([]byte, error) {
	timeout := k.Timeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	poll := k.PollInterval
	if poll <= 0 {
		poll = defaultJobPoll
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := k.client.BatchV1().Jobs(ns).Get(ctx, jobName, metav1.GetOptions{})
		if err != nil {
			return nil, err
		}
		for _, cond := range job.Status.Conditions {
			if cond.Type == batchv1.JobComplete && cond.Status == corev1.ConditionTrue {
				return k.logs(ctx, ns, jobName)
			}
			if cond.Type == batchv1.JobFailed && cond.Status == corev1.ConditionTrue {
				out, _ := k.logs(ctx, ns, jobName)
				return out, fmt.Errorf("job failed: %s", cond.Message)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
	return nil, fmt.Errorf("job %s timed out after %v", jobName, timeout)
}

func (k *KubeExecutor) readJobLogs(ctx context.Context, ns, jobName string) ([]byte, error) {
	pods, err := k.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", jobName),
	})
	if err != nil {
		return nil, fmt.Errorf("list job pods: %w", err)
	}
	if len(pods.Items) == 0 {
		return nil, fmt.Errorf("no pods found for job %s", jobName)
	}

	req := k.client.CoreV1().Pods(ns).GetLogs(pods.Items[0].Name, &corev1.PodLogOptions{
		Container: containerName,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("stream pod logs: %w", err)
	}
	defer stream.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, stream); err != nil {
		return nil, fmt.Errorf("read pod logs: %w", err)
	}
	return buf.Bytes(), nil
}

func (k *KubeExecutor) teardown(ctx context.Context, ns, jobName string) {
	propagation := metav1.DeletePropagationBackground
	err := k.client.BatchV1().Jobs(ns).Delete(ctx, jobName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		k.logger().Warn("job teardown failed", "job", jobName, "err", err)
	}
}

// applyYAML parses multi-document YAML and creates each Job.
func (k *KubeExecutor) applyYAML(ctx context.Context, ns, yamlStr string) error {
	decoder := yaml.NewYAMLOrJSONDecoder(io.NopCloser(strings.NewReader(yamlStr)), 4096)
	for {
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decode YAML: %w", err)
		}
		if len(raw) == 0 {
			continue
		}

		var meta struct{ Kind string }
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("unmarshal kind: %w", err)
		}
		if meta.Kind != "Job" {
			return fmt.Errorf("unsupported resource kind: %s", meta.Kind)
		}
		var job batchv1.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode job: %w", err)
		}
		if _, err := k.client.BatchV1().Jobs(ns).Create(ctx, &job, metav1.CreateOptions{}); err != nil {
			return err
		}
	}
	return nil
}

func (k *KubeExecutor) logger() *slog.Logger {
	if k.Logger == nil {
		return slog.Default()
	}
	return k.Logger
}

// jobName returns a unique DNS-1123 name for a Job running workload.
func jobName(workload string) string {
	name := strings.ToLower(strings.ReplaceAll(workload, "_", "-"))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, name)
	if len(name) > 40 {
		name = name[:40]
	}
	name = strings.Trim(name, "-")
	return fmt.Sprintf("bench-%s-%s", name, uuid.NewString()[:8])
}
