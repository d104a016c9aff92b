// Package strategy reads a processing strategy file and turns it into the
// step tree a master dispatches.
//
// A strategy names its work domain and lists steps; a step with operation
// "multi" nests further steps. The optional file_system restricts dispatch
// to workers whose node reaches it, as listed in a cluster description:
//
//	name = "calibrate"
//	file_system = "/data1"
//
//	[work_domain]
//	in_column = "DATA"
//	ant_nrs = [0, 1, 2]
//	shape = { freq_size = 1e6, time_size = 3600 }
//
//	[[steps]]
//	operation = "predict"
//	output_data = "MODEL_DATA"
//	sources = ["CasA"]
//
//	[[steps]]
//	operation = "multi"
//	  [[steps.steps]]
//	  operation = "solve"
//	  parms = ["gain:*"]
//	  max_iter = 20
//
// The same structure can be written in YAML.
package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/step"
)

// Format is the syntax of a strategy file.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatOf derives the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("strategy %s: unsupported extension, want .toml, .yaml or .yml", path)
	}
}

// StepSpec is one entry of a strategy's step list.
type StepSpec struct {
	Name       string              `toml:"name" yaml:"name"`
	Operation  string              `toml:"operation" yaml:"operation"`
	OutputData string              `toml:"output_data" yaml:"output_data"`
	Sources    []string            `toml:"sources" yaml:"sources"`
	Parms      []string            `toml:"parms" yaml:"parms"`
	ExclParms  []string            `toml:"excl_parms" yaml:"excl_parms"`
	MaxIter    int32               `toml:"max_iter" yaml:"max_iter"`
	Epsilon    float64             `toml:"epsilon" yaml:"epsilon"`
	Shape      cluster.DomainShape `toml:"shape" yaml:"shape"`
	Steps      []StepSpec          `toml:"steps" yaml:"steps"`
}

// Strategy is a parsed strategy file.
type Strategy struct {
	Name       string                 `toml:"name" yaml:"name"`
	FileSystem string                 `toml:"file_system" yaml:"file_system"`
	WorkDomain cluster.WorkDomainSpec `toml:"work_domain" yaml:"work_domain"`
	Steps      []StepSpec             `toml:"steps" yaml:"steps"`
}

// Load reads and parses the strategy at path.
func Load(path string) (*Strategy, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategy: %w", err)
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a strategy in the given format.
func Parse(data []byte, format Format) (*Strategy, error) {
	var s Strategy
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &s)
	case FormatYAML:
		err = yaml.Unmarshal(data, &s)
	default:
		return nil, fmt.Errorf("unknown strategy format %d", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse strategy: %w", err)
	}
	return &s, nil
}

// Build converts the step list into one Multi step and validates it.
func (s *Strategy) Build() (*step.Step, error) {
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("strategy %q has no steps", s.Name)
	}
	root := step.NewMulti()
	for i := range s.Steps {
		child, err := s.Steps[i].build(fmt.Sprintf("steps[%d]", i))
		if err != nil {
			return nil, err
		}
		root.Push(child)
	}
	if err := root.Validate(); err != nil {
		return nil, fmt.Errorf("strategy %q: %w", s.Name, err)
	}
	return root, nil
}

func (sp *StepSpec) build(path string) (*step.Step, error) {
	if sp.Name != "" {
		path += " (" + sp.Name + ")"
	}
	kind, err := step.ParseKind(sp.Operation)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	switch kind {
	case step.KindMulti:
		m := step.NewMulti()
		for i := range sp.Steps {
			child, err := sp.Steps[i].build(fmt.Sprintf("%s.steps[%d]", path, i))
			if err != nil {
				return nil, err
			}
			m.Push(child)
		}
		return m, nil
	case step.KindSolve:
		if len(sp.Steps) > 0 {
			return nil, fmt.Errorf("%s: solve step cannot have nested steps", path)
		}
		return step.NewSolve(step.SolveParams{
			Parms:     sp.Parms,
			ExclParms: sp.ExclParms,
			MaxIter:   sp.MaxIter,
			Epsilon:   sp.Epsilon,
			Shape:     sp.Shape,
		}), nil
	default:
		if len(sp.Steps) > 0 {
			return nil, fmt.Errorf("%s: %s step cannot have nested steps", path, kind)
		}
		if sp.OutputData == "" {
			return nil, fmt.Errorf("%s: %s step requires output_data", path, kind)
		}
		return &step.Step{Kind: kind, OutputData: sp.OutputData, Sources: sp.Sources}, nil
	}
}
