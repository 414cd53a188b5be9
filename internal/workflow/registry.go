// Package workflow holds the catalog of nightly end-to-end workflows whose run history is aggregated.
package workflow

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Definition struct {
	Repo         string `yaml:"repo" json:"repo"`
	WorkflowFile string `yaml:"workflowFile" json:"workflowFile"`
	Guide        string `yaml:"guide" json:"guide"`
	Acronym      string `yaml:"acronym" json:"acronym"`
	Platform     string `yaml:"platform" json:"platform"`
	Model        string `yaml:"model" json:"model"`
	GPUType      string `yaml:"gpuType" json:"gpuType"`
	GPUCount     int    `yaml:"gpuCount" json:"gpuCount"`
}

// ID identifies a definition by repo and workflow file.
func (d Definition) ID() string {
	return d.Repo + "/" + d.WorkflowFile
}

func (d Definition) Owner() string {
	owner, _, _ := strings.Cut(d.Repo, "/")
	return owner
}

func (d Definition) Name() string {
	_, name, _ := strings.Cut(d.Repo, "/")
	return name
}

// Registry is an ordered, read-only list of monitored workflows.
type Registry struct {
	defs []Definition
}

func NewRegistry(defs []Definition) (*Registry, error) {
	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if err := d.validate(); err != nil {
			return nil, fmt.Errorf("workflow %d: %w", i, err)
		}
		if _, dup := seen[d.ID()]; dup {
			return nil, fmt.Errorf("workflow %d: duplicate definition %s", i, d.ID())
		}
		seen[d.ID()] = struct{}{}
	}

	cp := make([]Definition, len(defs))
	copy(cp, defs)
	return &Registry{defs: cp}, nil
}

// Definitions returns a copy so callers cannot mutate the registry.
func (r *Registry) Definitions() []Definition {
	cp := make([]Definition, len(r.defs))
	copy(cp, r.defs)
	return cp
}

func (r *Registry) Len() int {
	return len(r.defs)
}

func (d Definition) validate() error {
	owner, name, ok := strings.Cut(d.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("repo %q must be in owner/repo format", d.Repo)
	}
	if d.WorkflowFile == "" {
		return errors.New("workflowFile is required")
	}
	if d.Guide == "" {
		return errors.New("guide is required")
	}
	if d.GPUCount < 0 {
		return fmt.Errorf("gpuCount must not be negative, got %d", d.GPUCount)
	}
	return nil
}

type registryFile struct {
	Workflows []Definition `yaml:"workflows"`
}

// LoadFile reads a YAML registry of the form `workflows: [...]`.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry file: %w", err)
	}

	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse registry file: %w", err)
	}
	if len(f.Workflows) == 0 {
		return nil, fmt.Errorf("registry file %s defines no workflows", path)
	}

	return NewRegistry(f.Workflows)
}

// Default returns the built-in catalog of nightly guides.
func Default() *Registry {
	r, err := NewRegistry(defaultDefinitions)
	if err != nil {
		panic(err)
	}
	return r
}
