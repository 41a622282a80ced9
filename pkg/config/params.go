package config

import "github.com/hed1ad/tsguard/pkg/errors"

// CommonParams holds the customParameters fields shared by every algorithm.
type CommonParams struct {
	// RandomState seeds every randomized step of a run so results reproduce.
	RandomState int64 `json:"random_state"`
	// TargetChannels restricts the run to the named channels. Empty, or a
	// list sharing no names with the data, selects all channels.
	TargetChannels []string `json:"target_channels"`
	// TargetChannelIndices is filled in during channel resolution; do not set.
	TargetChannelIndices []int `json:"target_channel_indices"`
}

func defaultCommon() CommonParams {
	return CommonParams{RandomState: 42}
}

// BaselineParams configures the statistical baseline detector.
type BaselineParams struct {
	CommonParams
	// Tol is the tolerated deviation in standard deviations around the
	// per-channel mean.
	Tol float64 `json:"tol"`
}

// DefaultBaselineParams returns BaselineParams with the documented defaults.
func DefaultBaselineParams() *BaselineParams {
	return &BaselineParams{CommonParams: defaultCommon(), Tol: 3.0}
}

// Validate implements Params.
func (p *BaselineParams) Validate() error {
	if p.Tol <= 0 {
		return errors.Configurationf("tol must be > 0, got %v", p.Tol)
	}
	return nil
}

// SubIFParams configures the windowed ensemble detector.
type SubIFParams struct {
	CommonParams
	// WindowSize is the width of the sliding context window; it must be odd
	// so every sample has a well-defined center timestamp.
	WindowSize int `json:"window_size"`
	// NTrees is the number of isolation trees in the ensemble.
	NTrees int `json:"n_trees"`
	// MaxSamples is the fraction of windowed samples drawn per tree. Unset
	// selects the ensemble's auto heuristic.
	MaxSamples *float64 `json:"max_samples"`
	// MaxFeatures is the fraction of window features considered per tree.
	MaxFeatures float64 `json:"max_features"`
	// Bootstrap switches per-tree sampling to drawing with replacement.
	Bootstrap bool `json:"bootstrap"`
	// Verbose raises per-tree fit logging from debug to info.
	Verbose int `json:"verbose"`
	// NJobs is the number of goroutines fitting trees. Results are identical
	// at any parallelism.
	NJobs int `json:"n_jobs"`
}

// DefaultSubIFParams returns SubIFParams with the documented defaults.
func DefaultSubIFParams() *SubIFParams {
	return &SubIFParams{
		CommonParams: defaultCommon(),
		WindowSize:   100,
		NTrees:       100,
		MaxFeatures:  1.0,
		NJobs:        1,
	}
}

// Validate implements Params.
func (p *SubIFParams) Validate() error {
	if p.WindowSize < 1 {
		return errors.Configurationf("window_size must be >= 1, got %d", p.WindowSize)
	}
	if p.WindowSize%2 == 0 {
		return errors.Configurationf("window_size must be odd, got %d", p.WindowSize)
	}
	if p.NTrees < 1 {
		return errors.Configurationf("n_trees must be >= 1, got %d", p.NTrees)
	}
	if p.MaxSamples != nil && (*p.MaxSamples <= 0 || *p.MaxSamples > 1) {
		return errors.Configurationf("max_samples must be in (0, 1], got %v", *p.MaxSamples)
	}
	if p.MaxFeatures <= 0 || p.MaxFeatures > 1 {
		return errors.Configurationf("max_features must be in (0, 1], got %v", p.MaxFeatures)
	}
	if p.NJobs < 1 {
		return errors.Configurationf("n_jobs must be >= 1, got %d", p.NJobs)
	}
	return nil
}

// DAEParams configures the checkpointed reconstruction detector.
type DAEParams struct {
	CommonParams
	// LatentSize is the width of the bottleneck between encoder and decoder.
	LatentSize int `json:"latent_size"`
	// Epochs is the training budget.
	Epochs int `json:"epochs"`
	// LearningRate for the Adam optimizer.
	LearningRate float64 `json:"learning_rate"`
	// NoiseRatio is the fraction of rows zeroed out in the corrupted copy.
	NoiseRatio float64 `json:"noise_ratio"`
	// EarlyStoppingPatience is the number of consecutive epochs without a
	// validation-loss improvement greater than EarlyStoppingDelta before
	// training halts.
	EarlyStoppingPatience int     `json:"early_stopping_patience"`
	EarlyStoppingDelta    float64 `json:"early_stopping_delta"`
	// Split is the fraction of rows used for training; the trailing
	// remainder is held out for validation.
	Split float64 `json:"split"`
}

// DefaultDAEParams returns DAEParams with the documented defaults.
func DefaultDAEParams() *DAEParams {
	return &DAEParams{
		CommonParams:          defaultCommon(),
		LatentSize:            32,
		Epochs:                10,
		LearningRate:          0.005,
		NoiseRatio:            0.1,
		EarlyStoppingPatience: 10,
		EarlyStoppingDelta:    1e-2,
		Split:                 0.8,
	}
}

// Validate implements Params.
func (p *DAEParams) Validate() error {
	if p.LatentSize < 1 {
		return errors.Configurationf("latent_size must be >= 1, got %d", p.LatentSize)
	}
	if p.Epochs < 1 {
		return errors.Configurationf("epochs must be >= 1, got %d", p.Epochs)
	}
	if p.LearningRate <= 0 {
		return errors.Configurationf("learning_rate must be > 0, got %v", p.LearningRate)
	}
	if p.NoiseRatio < 0 || p.NoiseRatio > 1 {
		return errors.Configurationf("noise_ratio must be in [0, 1], got %v", p.NoiseRatio)
	}
	if p.EarlyStoppingPatience < 1 {
		return errors.Configurationf("early_stopping_patience must be >= 1, got %d", p.EarlyStoppingPatience)
	}
	if p.EarlyStoppingDelta < 0 {
		return errors.Configurationf("early_stopping_delta must be >= 0, got %v", p.EarlyStoppingDelta)
	}
	if p.Split <= 0 || p.Split >= 1 {
		return errors.Configurationf("split must be in (0, 1), got %v", p.Split)
	}
	return nil
}
