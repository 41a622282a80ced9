package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/tsguard/pkg/errors"
)

func TestLoadInlineJSON(t *testing.T) {
	doc := `{
		"executionType": "train",
		"dataInput": "data.csv",
		"modelOutput": "model.bin",
		"customParameters": {"tol": 2.5, "target_channels": ["cpu", "mem"]}
	}`

	args, err := Load(doc, DefaultBaselineParams())
	require.NoError(t, err)

	assert.Equal(t, Train, args.ExecutionType)
	assert.Equal(t, "data.csv", args.DataInput)
	assert.Equal(t, "model.bin", args.ModelOutput)

	p := args.Params.(*BaselineParams)
	assert.Equal(t, 2.5, p.Tol)
	assert.Equal(t, []string{"cpu", "mem"}, p.TargetChannels)
	assert.EqualValues(t, 42, p.RandomState, "untouched fields keep defaults")
}

func TestLoadDefaultsWithoutCustomParameters(t *testing.T) {
	doc := `{"executionType": "train", "dataInput": "d.csv", "modelOutput": "m"}`

	args, err := Load(doc, DefaultSubIFParams())
	require.NoError(t, err)

	p := args.Params.(*SubIFParams)
	assert.Equal(t, 100, p.WindowSize)
	assert.Equal(t, 100, p.NTrees)
	assert.Nil(t, p.MaxSamples)
	assert.Equal(t, 1.0, p.MaxFeatures)
	assert.False(t, p.Bootstrap)
	assert.Equal(t, 1, p.NJobs)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "unknown top-level field",
			doc:  `{"executionType": "train", "dataInput": "d", "modelOutput": "m", "hyperdrive": true}`,
		},
		{
			name: "unknown custom parameter",
			doc:  `{"executionType": "train", "dataInput": "d", "modelOutput": "m", "customParameters": {"tolerance": 3}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.doc, DefaultBaselineParams())
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err))
		})
	}
}

func TestLoadYAMLMatchesJSON(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "run.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{
		"executionType": "execute",
		"dataInput": "d.csv",
		"dataOutput": "scores.csv",
		"modelInput": "model.bin",
		"customParameters": {"window_size": 5, "n_trees": 10}
	}`), 0644))

	yamlPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
executionType: execute
dataInput: d.csv
dataOutput: scores.csv
modelInput: model.bin
customParameters:
  window_size: 5
  n_trees: 10
`), 0644))

	fromJSON, err := Load(jsonPath, DefaultSubIFParams())
	require.NoError(t, err)
	fromYAML, err := Load(yamlPath, DefaultSubIFParams())
	require.NoError(t, err)

	assert.Equal(t, fromJSON, fromYAML)
}

func TestEcho(t *testing.T) {
	doc := `{"executionType": "train", "dataInput": "d.csv", "modelOutput": "m"}`
	args, err := Load(doc, DefaultBaselineParams())
	require.NoError(t, err)

	fields := args.Echo()
	assert.Equal(t, Train, fields["executionType"])
	assert.Equal(t, "d.csv", fields["dataInput"])
	assert.Equal(t, "m", fields["modelOutput"])
	assert.Same(t, args.Params, fields["customParameters"])
}

func TestArgsValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "unknown execution type",
			doc:     `{"executionType": "predict", "dataInput": "d"}`,
			wantErr: "unknown executionType",
		},
		{
			name:    "missing dataInput",
			doc:     `{"executionType": "train", "modelOutput": "m"}`,
			wantErr: "dataInput is required",
		},
		{
			name:    "train without modelOutput",
			doc:     `{"executionType": "train", "dataInput": "d"}`,
			wantErr: "modelOutput is required",
		},
		{
			name:    "execute without modelInput",
			doc:     `{"executionType": "execute", "dataInput": "d", "dataOutput": "o"}`,
			wantErr: "modelInput is required",
		},
		{
			name:    "execute without dataOutput",
			doc:     `{"executionType": "execute", "dataInput": "d", "modelInput": "m"}`,
			wantErr: "dataOutput is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.doc, DefaultBaselineParams())
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParamsValidate(t *testing.T) {
	maxSamples := func(f float64) *float64 { return &f }

	tests := []struct {
		name    string
		params  Params
		wantErr string
	}{
		{
			name: "tol zero",
			params: func() Params {
				p := DefaultBaselineParams()
				p.Tol = 0
				return p
			}(),
			wantErr: "tol must be > 0",
		},
		{
			name: "even window",
			params: func() Params {
				p := DefaultSubIFParams()
				p.WindowSize = 4
				return p
			}(),
			wantErr: "window_size must be odd",
		},
		{
			name: "max_samples above one",
			params: func() Params {
				p := DefaultSubIFParams()
				p.MaxSamples = maxSamples(1.5)
				return p
			}(),
			wantErr: "max_samples must be in (0, 1]",
		},
		{
			name: "split at one",
			params: func() Params {
				p := DefaultDAEParams()
				p.Split = 1
				return p
			}(),
			wantErr: "split must be in (0, 1)",
		},
		{
			name: "negative learning rate",
			params: func() Params {
				p := DefaultDAEParams()
				p.LearningRate = -0.1
				return p
			}(),
			wantErr: "learning_rate must be > 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
