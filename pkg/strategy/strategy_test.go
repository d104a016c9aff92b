package strategy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mwdispatch/pkg/cluster"
	"github.com/bft-labs/mwdispatch/pkg/step"
)

const tomlStrategy = `
name = "calibrate"
file_system = "/data1"

[work_domain]
in_column = "DATA"
ant_nrs = [0, 1, 2]
corr = [true, false, false, true]
shape = { freq_size = 1e6, time_size = 3600 }

[[steps]]
name = "model"
operation = "predict"
output_data = "MODEL_DATA"
sources = ["CasA"]

[[steps]]
operation = "multi"

  [[steps.steps]]
  operation = "solve"
  parms = ["gain:*"]
  excl_parms = ["gain:CS001"]
  max_iter = 20
  epsilon = 1e-6
  shape = { freq_size = 2e6, time_size = 60 }

  [[steps.steps]]
  operation = "correct"
  output_data = "CORRECTED_DATA"
`

const yamlStrategy = `
name: calibrate
file_system: /data1
work_domain:
  in_column: DATA
  ant_nrs: [0, 1, 2]
  corr: [true, false, false, true]
  shape: {freq_size: 1e6, time_size: 3600}
steps:
  - name: model
    operation: predict
    output_data: MODEL_DATA
    sources: [CasA]
  - operation: multi
    steps:
      - operation: solve
        parms: ["gain:*"]
        excl_parms: ["gain:CS001"]
        max_iter: 20
        epsilon: 1.0e-6
        shape: {freq_size: 2e6, time_size: 60}
      - operation: correct
        output_data: CORRECTED_DATA
`

func wantTree() *step.Step {
	return step.NewMulti(
		step.NewPredict("MODEL_DATA", "CasA"),
		step.NewMulti(
			step.NewSolve(step.SolveParams{
				Parms:     []string{"gain:*"},
				ExclParms: []string{"gain:CS001"},
				MaxIter:   20,
				Epsilon:   1e-6,
				Shape:     cluster.DomainShape{FreqSize: 2e6, TimeSize: 60},
			}),
			step.NewCorrect("CORRECTED_DATA"),
		),
	)
}

func TestLoad_TOMLAndYAML(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"strategy.toml": tomlStrategy,
		"strategy.yaml": yamlStrategy,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			s, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "calibrate", s.Name)
			assert.Equal(t, "/data1", s.FileSystem)
			assert.Equal(t, "DATA", s.WorkDomain.InColumn)
			assert.Equal(t, []int32{0, 1, 2}, s.WorkDomain.AntNrs)
			assert.Equal(t, cluster.DomainShape{FreqSize: 1e6, TimeSize: 3600}, s.WorkDomain.Shape)

			tree, err := s.Build()
			require.NoError(t, err)
			assert.True(t, step.Equal(wantTree(), tree), "got %v", tree)
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		steps   []StepSpec
		wantErr string
	}{
		{"no steps", nil, "no steps"},
		{"unknown operation", []StepSpec{{Operation: "image"}}, "unknown step operation"},
		{"missing output", []StepSpec{{Name: "p", Operation: "predict"}}, "steps[0] (p): predict step requires output_data"},
		{"nested leaf", []StepSpec{{Operation: "correct", OutputData: "X", Steps: []StepSpec{{Operation: "predict"}}}}, "cannot have nested steps"},
		{"nested error path", []StepSpec{{Operation: "multi", Steps: []StepSpec{{Operation: "subtract"}}}}, "steps[0].steps[0]"},
		{"negative iterations", []StepSpec{{Operation: "solve", MaxIter: -2}}, "negative max iterations"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Strategy{Name: "s", Steps: tt.steps}).Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"a.toml", FormatTOML, false},
		{"a.YAML", FormatYAML, false},
		{"a.yml", FormatYAML, false},
		{"a.ini", 0, true},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("FormatOf(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("FormatOf(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("steps = ["), FormatTOML)
	assert.Error(t, err)
	_, err = Parse([]byte("steps: [\n"), FormatYAML)
	assert.Error(t, err)
}
