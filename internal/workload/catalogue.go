package workload

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalogue.yaml
var defaultCatalogueYAML []byte

type catalogueYAML struct {
	Settings  settingsYAML   `yaml:"settings"`
	Workloads []workloadYAML `yaml:"workloads"`
}

// settingsYAML mirrors Settings with pointer fields so omitted keys fall
// back to DefaultSettings.
type settingsYAML struct {
	MinTime               *string  `yaml:"min_time"`
	MinIterations         *int     `yaml:"min_iterations"`
	RunCommand            []string `yaml:"run_command"`
	CompileCommand        []string `yaml:"compile_command"`
	ArtifactGlob          *string  `yaml:"artifact_glob"`
	RuntimeVersionCommand []string `yaml:"runtime_version_command"`
	HashSeedEnv           *string  `yaml:"hash_seed_env"`
	CC                    *string  `yaml:"cc"`
}

type workloadYAML struct {
	Name           string     `yaml:"name"`
	Module         string     `yaml:"module"`
	Micro          *bool      `yaml:"micro"`
	CompiledOnly   bool       `yaml:"compiled_only"`
	MinIterations  *int       `yaml:"min_iterations"`
	StripOutliers  *bool      `yaml:"strip_outliers"`
	StableHashSeed bool       `yaml:"stable_hash_seed"`
	Prepare        [][]string `yaml:"prepare"`
}

// LoadCatalogue parses a YAML catalogue and builds a Registry.
func LoadCatalogue(r io.Reader) (*Registry, error) {
	var raw catalogueYAML
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode catalogue: %w", err)
	}

	settings, err := raw.Settings.resolve()
	if err != nil {
		return nil, err
	}

	workloads := make([]Workload, 0, len(raw.Workloads))
	for _, wy := range raw.Workloads {
		w := Workload{
			Name:           wy.Name,
			Module:         wy.Module,
			Micro:          strings.HasPrefix(wy.Module, microPrefix),
			CompiledOnly:   wy.CompiledOnly,
			MinIterations:  wy.MinIterations,
			StripOutliers:  true,
			StableHashSeed: wy.StableHashSeed,
		}
		if wy.Micro != nil {
			w.Micro = *wy.Micro
		}
		if wy.StripOutliers != nil {
			w.StripOutliers = *wy.StripOutliers
		}
		if w.MinIterations != nil && *w.MinIterations <= 0 {
			return nil, fmt.Errorf("workload %s: min_iterations must be positive", w.Name)
		}
		for _, cmd := range wy.Prepare {
			if len(cmd) == 0 {
				return nil, fmt.Errorf("workload %s: empty prepare command", w.Name)
			}
			w.Prepare = append(w.Prepare, Hook{Command: cmd})
		}
		workloads = append(workloads, w)
	}
	return NewRegistry(settings, workloads...)
}

// LoadCatalogueFile reads the catalogue at path.
func LoadCatalogueFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalogue: %w", err)
	}
	defer f.Close()
	return LoadCatalogue(f)
}

// DefaultCatalogue returns the built-in catalogue.
func DefaultCatalogue() (*Registry, error) {
	return LoadCatalogue(bytes.NewReader(defaultCatalogueYAML))
}

func (s settingsYAML) resolve() (Settings, error) {
	out := DefaultSettings()
	if s.MinTime != nil {
		d, err := parseDuration(*s.MinTime)
		if err != nil {
			return Settings{}, fmt.Errorf("settings.min_time: %w", err)
		}
		out.MinTime = d
	}
	if s.MinIterations != nil {
		if *s.MinIterations <= 0 {
			return Settings{}, fmt.Errorf("settings.min_iterations must be positive")
		}
		out.MinIterations = *s.MinIterations
	}
	if len(s.RunCommand) > 0 {
		out.RunCommand = s.RunCommand
	}
	if len(s.CompileCommand) > 0 {
		out.CompileCommand = s.CompileCommand
	}
	if s.ArtifactGlob != nil {
		out.ArtifactGlob = *s.ArtifactGlob
	}
	if len(s.RuntimeVersionCommand) > 0 {
		out.RuntimeVersionCommand = s.RuntimeVersionCommand
	}
	if s.HashSeedEnv != nil {
		out.HashSeedEnv = *s.HashSeedEnv
	}
	if s.CC != nil {
		out.CC = *s.CC
	}
	return out, nil
}

// parseDuration accepts Go durations ("2s", "500ms") and bare seconds ("2.5").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
