package manifest

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"text/template"
)

//go:embed templates/*.yaml.tmpl
var templateFS embed.FS

var templates *template.Template

func init() {
	var err error
	templates, err = template.New("").Funcs(template.FuncMap{
		"quote": quote,
	}).ParseFS(templateFS, "templates/*.yaml.tmpl")
	if err != nil {
		panic(fmt.Sprintf("parse manifest templates: %v", err))
	}
}

// EnvVar is a container environment variable.
type EnvVar struct {
	Name  string
	Value string
}

// WorkloadJobParams holds values for rendering a workload execution Job.
type WorkloadJobParams struct {
	Name      string
	Namespace string
	Image     string // full image URI
	Workload  string
	Phase     string // "compiled", "interpreted" or "prepare"
	Command   []string
	Env       []EnvVar
	// InstanceType pins the pod to nodes of one instance type so every
	// sample is taken on the same hardware. Empty means any node.
	InstanceType  string
	CPURequest    string
	MemoryRequest string
}

// RenderWorkloadJob renders the Job manifest for one workload execution.
func RenderWorkloadJob(params WorkloadJobParams) (string, error) {
	if len(params.Command) == 0 {
		return "", fmt.Errorf("render job %s: empty command", params.Name)
	}
	return renderTemplate("workload-job.yaml.tmpl", params)
}

func renderTemplate(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// quote renders s as a double-quoted scalar. JSON strings are valid YAML.
func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
