package dae

import (
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/tsguard/pkg/artifact"
	"github.com/hed1ad/tsguard/pkg/config"
	"github.com/hed1ad/tsguard/pkg/dataset"
	"github.com/hed1ad/tsguard/pkg/errors"
)

func makeRes(channels []string, data [][]float64) *dataset.Resolution {
	res := &dataset.Resolution{
		Channels: channels,
		Indices:  make([]int, len(channels)),
		ByName:   make(map[string]int, len(channels)),
		Data:     data,
		Labels:   make([][]uint8, len(data)),
	}
	for i, name := range channels {
		res.Indices[i] = i
		res.ByName[name] = i
	}
	for i := range res.Labels {
		res.Labels[i] = make([]uint8, len(channels))
	}
	return res
}

// lineRes builds rows that are scalar multiples of (1, 1, 1, 1), so a
// one-dimensional bottleneck can reconstruct them.
func lineRes(rows int) *dataset.Resolution {
	data := make([][]float64, rows)
	for i := range data {
		k := 2 * math.Sin(float64(i)*0.37)
		data[i] = []float64{k, k, k, k}
	}
	return makeRes([]string{"a", "b", "c", "d"}, data)
}

func testParams() *config.DAEParams {
	p := config.DefaultDAEParams()
	p.LatentSize = 1
	p.Epochs = 30
	return p
}

func TestCorrupt(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	rng := rand.New(rand.NewSource(1))

	noisy := corrupt(rows, 0.5, rng)
	require.Len(t, noisy, 4)

	var zeroed int
	for i, row := range noisy {
		if row[0] == 0 && row[1] == 0 {
			zeroed++
			continue
		}
		assert.Equal(t, rows[i], row, "row %d should be untouched", i)
	}
	assert.Equal(t, 2, zeroed)
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}, rows, "input must not be mutated")
}

func TestCorruptZeroRatioLeavesAll(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}}
	noisy := corrupt(rows, 0, rand.New(rand.NewSource(1)))
	assert.Equal(t, rows, noisy)
}

func TestTrainThenExecute(t *testing.T) {
	res := lineRes(120)
	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	out := filepath.Join(dir, "scores.csv")
	det := New(testParams(), zerolog.Nop())

	require.NoError(t, det.Train(&config.Args{ExecutionType: config.Train, DataInput: "in.csv", ModelOutput: model}, res))
	if _, err := os.Stat(model); err != nil {
		t.Fatalf("training should leave a model archive: %v", err)
	}

	require.NoError(t, det.Execute(&config.Args{ExecutionType: config.Execute, DataInput: "in.csv", ModelInput: model, DataOutput: out}, res))

	scores, err := artifact.ReadVector(out)
	require.NoError(t, err)
	require.Len(t, scores, 120)
	for i, s := range scores {
		assert.Falsef(t, math.IsNaN(s) || math.IsInf(s, 0), "score %d = %v", i, s)
		assert.GreaterOrEqualf(t, s, 0.0, "score %d", i)
	}
}

func TestSpikeScoresHighest(t *testing.T) {
	// Train on rows confined to the (1,1,1,1) direction, then score a
	// series holding one row orthogonal to it. A one-dimensional bottleneck
	// cannot reconstruct the orthogonal row, so its error must dominate.
	train := lineRes(120)

	scored := lineRes(40)
	spike := 20
	scored.Data[spike] = []float64{10, -10, 10, -10}

	p := testParams()
	p.Epochs = 300
	p.EarlyStoppingPatience = 50
	p.EarlyStoppingDelta = 0

	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	out := filepath.Join(dir, "scores.csv")
	det := New(p, zerolog.Nop())

	require.NoError(t, det.Train(&config.Args{ExecutionType: config.Train, DataInput: "in.csv", ModelOutput: model}, train))
	require.NoError(t, det.Execute(&config.Args{ExecutionType: config.Execute, DataInput: "in.csv", ModelInput: model, DataOutput: out}, scored))

	scores, err := artifact.ReadVector(out)
	require.NoError(t, err)
	require.Len(t, scores, 40)

	var maxOther float64
	for i, s := range scores {
		if i == spike {
			continue
		}
		maxOther = math.Max(maxOther, s)
	}
	assert.Greater(t, scores[spike], 3*maxOther, "orthogonal row must score far above the rest")
}

func TestEarlyStoppedRunLeavesLoadableModel(t *testing.T) {
	// An absurd improvement threshold stops training right after the first
	// epoch, which has already archived its checkpoint. The artifact must
	// still be complete enough to execute.
	res := lineRes(120)
	p := testParams()
	p.Epochs = 100
	p.EarlyStoppingPatience = 1
	p.EarlyStoppingDelta = 1e9

	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	out := filepath.Join(dir, "scores.csv")
	det := New(p, zerolog.Nop())

	require.NoError(t, det.Train(&config.Args{ExecutionType: config.Train, DataInput: "in.csv", ModelOutput: model}, res))
	require.NoError(t, det.Execute(&config.Args{ExecutionType: config.Execute, DataInput: "in.csv", ModelInput: model, DataOutput: out}, res))

	scores, err := artifact.ReadVector(out)
	require.NoError(t, err)
	assert.Len(t, scores, 120)
}

func TestNoImprovementProducesNoModel(t *testing.T) {
	// NaN inputs keep every validation loss incomparable, so no epoch ever
	// checkpoints and training finishes without an artifact.
	data := make([][]float64, 20)
	for i := range data {
		data[i] = []float64{math.NaN(), math.NaN()}
	}
	res := makeRes([]string{"a", "b"}, data)

	p := testParams()
	p.EarlyStoppingPatience = 1

	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	det := New(p, zerolog.Nop())

	require.NoError(t, det.Train(&config.Args{ExecutionType: config.Train, DataInput: "in.csv", ModelOutput: model}, res))

	_, err := os.Stat(model)
	assert.True(t, os.IsNotExist(err), "no artifact should exist after a run with no improving epoch")

	err = det.Execute(&config.Args{
		ExecutionType: config.Execute,
		DataInput:     "in.csv",
		ModelInput:    model,
		DataOutput:    filepath.Join(dir, "scores.csv"),
	}, res)
	require.Error(t, err)
	assert.True(t, errors.IsMissingArtifact(err))
}

func TestCheckpointDirectoryRemoved(t *testing.T) {
	res := lineRes(120)
	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	det := New(testParams(), zerolog.Nop())

	require.NoError(t, det.Train(&config.Args{ExecutionType: config.Train, DataInput: "in.csv", ModelOutput: model}, res))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the archive should remain")
	assert.Equal(t, "model", entries[0].Name())
}

func TestExecuteChannelMismatch(t *testing.T) {
	res := lineRes(120)
	dir := t.TempDir()
	model := filepath.Join(dir, "model")
	det := New(testParams(), zerolog.Nop())

	require.NoError(t, det.Train(&config.Args{ExecutionType: config.Train, DataInput: "in.csv", ModelOutput: model}, res))

	narrow := makeRes([]string{"a", "b"}, [][]float64{{1, 2}, {3, 4}})
	err := det.Execute(&config.Args{
		ExecutionType: config.Execute,
		DataInput:     "in.csv",
		ModelInput:    model,
		DataOutput:    filepath.Join(dir, "scores.csv"),
	}, narrow)
	require.Error(t, err)
	assert.True(t, errors.IsDataShape(err))
}
