package iforest

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsolationForest(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantNTrees int
	}{
		{
			name:       "default configuration",
			opts:       nil,
			wantNTrees: 100,
		},
		{
			name:       "custom trees",
			opts:       []Option{WithTrees(50)},
			wantNTrees: 50,
		},
		{
			name:       "multiple options",
			opts:       []Option{WithTrees(200), WithContamination(0.05), WithSeed(123), WithJobs(4)},
			wantNTrees: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.opts...)
			assert.Equal(t, tt.wantNTrees, f.nTrees)
		})
	}
}

func TestFit(t *testing.T) {
	tests := []struct {
		name    string
		data    [][]float64
		opts    []Option
		wantErr bool
	}{
		{
			name:    "empty data",
			data:    [][]float64{},
			wantErr: true,
		},
		{
			name:    "zero contamination rejected",
			data:    generateTestData(50, 3),
			opts:    []Option{WithContamination(0)},
			wantErr: true,
		},
		{
			name:    "contamination above one rejected",
			data:    generateTestData(50, 3),
			opts:    []Option{WithContamination(1.5)},
			wantErr: true,
		},
		{
			name:    "single sample",
			data:    [][]float64{{1.0, 2.0, 3.0}},
			wantErr: false,
		},
		{
			name:    "normal data",
			data:    generateTestData(100, 5),
			wantErr: false,
		},
		{
			name:    "bootstrap sampling",
			data:    generateTestData(100, 5),
			opts:    []Option{WithBootstrap(true)},
			wantErr: false,
		},
		{
			name:    "feature subsetting",
			data:    generateTestData(100, 10),
			opts:    []Option{WithMaxFeatures(0.3)},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithTrees(10), WithSeed(42)}, tt.opts...)
			f := New(opts...)
			err := f.Fit(tt.data)

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.True(t, f.trained)
				assert.Len(t, f.trees, f.nTrees)
			}
		})
	}
}

func TestSampleSize(t *testing.T) {
	tests := []struct {
		name     string
		fraction float64
		nSamples int
		want     int
	}{
		{name: "auto below cap", fraction: 0, nSamples: 100, want: 100},
		{name: "auto above cap", fraction: 0, nSamples: 10000, want: 256},
		{name: "half", fraction: 0.5, nSamples: 100, want: 50},
		{name: "full", fraction: 1.0, nSamples: 100, want: 100},
		{name: "tiny fraction keeps one row", fraction: 0.001, nSamples: 100, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(WithMaxSamples(tt.fraction))
			assert.Equal(t, tt.want, f.sampleSize(tt.nSamples))
		})
	}
}

func TestFeatureCount(t *testing.T) {
	f := New(WithMaxFeatures(0.5))
	assert.Equal(t, 5, f.featureCount(10))

	full := New()
	assert.Equal(t, 10, full.featureCount(10))

	tiny := New(WithMaxFeatures(0.01))
	assert.Equal(t, 1, tiny.featureCount(10))
}

func TestScore(t *testing.T) {
	trainData := generateTestData(500, 5)
	f := New(WithTrees(50), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("scores on normal data", func(t *testing.T) {
		testData := generateTestData(100, 5)
		scores, err := f.Score(testData)

		require.NoError(t, err)
		assert.Len(t, scores, len(testData))

		// All scores should be in [0, 1]
		for _, score := range scores {
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})

	t.Run("scores on anomalies", func(t *testing.T) {
		// Anomalous data: very different from training
		anomalies := [][]float64{
			{1000, 1000, 1000, 1000, 1000},
			{-500, -500, -500, -500, -500},
		}
		scores, err := f.Score(anomalies)

		require.NoError(t, err)
		for _, score := range scores {
			assert.Greater(t, score, 0.4, "anomalies should have high scores")
		}
	})

	t.Run("score before fit", func(t *testing.T) {
		untrained := New()
		_, err := untrained.Score(trainData)
		assert.Error(t, err)
	})

	t.Run("width mismatch", func(t *testing.T) {
		_, err := f.Score([][]float64{{1, 2, 3}})
		assert.Error(t, err)

		_, err = f.ScoreOne([]float64{1, 2})
		assert.Error(t, err)
	})
}

func TestScoreOne(t *testing.T) {
	trainData := generateTestData(200, 3)
	f := New(WithTrees(20), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	score, err := f.ScoreOne([]float64{0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestPredictLabels(t *testing.T) {
	trainData := generateTestData(300, 4)
	f := New(WithTrees(50), WithContamination(0.1), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	t.Run("labels are plus or minus one", func(t *testing.T) {
		labels, err := f.Predict(trainData)
		require.NoError(t, err)
		require.Len(t, labels, len(trainData))
		for _, l := range labels {
			assert.Contains(t, []int{-1, 1}, l)
		}
	})

	t.Run("gross outlier is anomalous", func(t *testing.T) {
		labels, err := f.Predict([][]float64{{1e6, 1e6, 1e6, 1e6}})
		require.NoError(t, err)
		assert.Equal(t, []int{-1}, labels)
	})
}

func TestTinyContaminationFlagsNothing(t *testing.T) {
	// The substitute contamination used when a training set has no labeled
	// anomalies pins the threshold at the maximum training score, so
	// re-scoring the training data labels every sample normal.
	trainData := generateTestData(200, 3)
	f := New(WithTrees(30), WithContamination(math.Nextafter(0, 1)), WithSeed(42))
	require.NoError(t, f.Fit(trainData))

	labels, err := f.Predict(trainData)
	require.NoError(t, err)
	for i, l := range labels {
		assert.Equalf(t, 1, l, "sample %d", i)
	}
}

func TestFitDeterministicAcrossJobs(t *testing.T) {
	data := generateTestData(400, 6)

	serial := New(WithTrees(40), WithSeed(7), WithJobs(1))
	require.NoError(t, serial.Fit(data))
	parallel := New(WithTrees(40), WithSeed(7), WithJobs(4))
	require.NoError(t, parallel.Fit(data))

	serialBytes, err := serial.Save()
	require.NoError(t, err)
	parallelBytes, err := parallel.Save()
	require.NoError(t, err)

	assert.True(t, bytes.Equal(serialBytes, parallelBytes), "worker count must not change the fitted forest")
	assert.Equal(t, serial.Threshold(), parallel.Threshold())
}

func TestSaveLoad(t *testing.T) {
	trainData := generateTestData(200, 4)
	original := New(WithTrees(30), WithContamination(0.15), WithSeed(42))
	require.NoError(t, original.Fit(trainData))

	testData := generateTestData(50, 4)
	originalScores, err := original.Score(testData)
	require.NoError(t, err)

	data, err := original.Save()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := New()
	require.NoError(t, loaded.Load(data))

	loadedScores, err := loaded.Score(testData)
	require.NoError(t, err)

	assert.Equal(t, originalScores, loadedScores)
	assert.Equal(t, original.Threshold(), loaded.Threshold())
	assert.Equal(t, original.Contamination(), loaded.Contamination())
}

func TestSaveBeforeFit(t *testing.T) {
	_, err := New().Save()
	assert.Error(t, err)
}

func BenchmarkFit(b *testing.B) {
	data := generateTestData(10000, 10)
	f := New(WithTrees(100))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Fit(data)
	}
}

func BenchmarkScore(b *testing.B) {
	trainData := generateTestData(5000, 10)
	testData := generateTestData(1000, 10)

	f := New(WithTrees(100))
	f.Fit(trainData)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Score(testData)
	}
}

func generateTestData(n, features int) [][]float64 {
	rng := rand.New(rand.NewSource(1))
	data := make([][]float64, n)
	for i := 0; i < n; i++ {
		data[i] = make([]float64, features)
		for j := 0; j < features; j++ {
			data[i][j] = rng.NormFloat64()
		}
	}
	return data
}
