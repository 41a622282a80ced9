// Package baseline implements the statistical baseline detector: per-channel
// mean and standard deviation estimated on non-anomalous rows, with
// execute-time deviation flagging against a tolerance multiple.
package baseline

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/hed1ad/tsguard/pkg/artifact"
	"github.com/hed1ad/tsguard/pkg/config"
	"github.com/hed1ad/tsguard/pkg/dataset"
	"github.com/hed1ad/tsguard/pkg/detectors"
	"github.com/hed1ad/tsguard/pkg/errors"
)

// Detector scores each (row, channel) cell against the channel's trained
// mean and standard deviation.
type Detector struct {
	params *config.BaselineParams
	log    zerolog.Logger
}

var _ detectors.Detector = (*Detector)(nil)

// New returns a baseline detector with the given parameters.
func New(params *config.BaselineParams, log zerolog.Logger) *Detector {
	return &Detector{params: params, log: log}
}

// Name implements detectors.Detector.
func (d *Detector) Name() string { return "baseline" }

// Common implements detectors.Detector.
func (d *Detector) Common() *config.CommonParams { return &d.params.CommonParams }

// MeansPath returns the sidecar path holding the per-channel means.
func MeansPath(model string) string { return model + ".means.txt" }

// StdsPath returns the sidecar path holding the per-channel standard
// deviations.
func StdsPath(model string) string { return model + ".stds.txt" }

// Train computes per-channel statistics over the rows labeled non-anomalous
// for that channel and persists them as two sidecar vectors in channel order.
func (d *Detector) Train(args *config.Args, res *dataset.Resolution) error {
	means, stds := fitStats(res)

	meansPath, stdsPath := MeansPath(args.ModelOutput), StdsPath(args.ModelOutput)
	if err := artifact.WriteVector(meansPath, means); err != nil {
		return err
	}
	if err := artifact.WriteVector(stdsPath, stds); err != nil {
		return err
	}

	d.log.Info().
		Str("means", meansPath).
		Str("stds", stdsPath).
		Str("size", detectors.ArtifactSize(meansPath)).
		Int("channels", len(res.Channels)).
		Msg("baseline statistics saved")
	return nil
}

// fitStats derives each channel's mean and population standard deviation
// from its non-anomalous rows. A channel whose values never vary gets a
// standard deviation of 1 so constant signals are not divided by zero; a
// channel with no normal rows gets NaN statistics and flags nothing.
func fitStats(res *dataset.Resolution) (means, stds []float64) {
	c := len(res.Channels)
	means = make([]float64, c)
	stds = make([]float64, c)

	for i := 0; i < c; i++ {
		var sum float64
		var n int
		for row := range res.Data {
			if res.Labels[row][i] == 0 {
				sum += res.Data[row][i]
				n++
			}
		}
		if n == 0 {
			means[i] = math.NaN()
			stds[i] = math.NaN()
			continue
		}
		mean := sum / float64(n)

		var sq float64
		for row := range res.Data {
			if res.Labels[row][i] == 0 {
				d := res.Data[row][i] - mean
				sq += d * d
			}
		}
		std := math.Sqrt(sq / float64(n))
		if std == 0 {
			std = 1
		}

		means[i] = mean
		stds[i] = std
	}
	return means, stds
}

// Execute loads the trained statistics and emits one binary flag per
// (row, channel): 1 when the value falls outside mean ± tol·std.
func (d *Detector) Execute(args *config.Args, res *dataset.Resolution) error {
	means, err := artifact.ReadVector(MeansPath(args.ModelInput))
	if err != nil {
		return err
	}
	stds, err := artifact.ReadVector(StdsPath(args.ModelInput))
	if err != nil {
		return err
	}
	if len(means) != len(res.Channels) || len(stds) != len(res.Channels) {
		return errors.DataShapef("model covers %d/%d channels, data has %d",
			len(means), len(stds), len(res.Channels))
	}

	tol := d.params.Tol
	scores := make([][]float64, res.Rows())
	for row := range res.Data {
		flags := make([]float64, len(res.Channels))
		for i, v := range res.Data[row] {
			if v > means[i]+tol*stds[i] || v < means[i]-tol*stds[i] {
				flags[i] = 1
			}
		}
		scores[row] = flags
	}

	if err := artifact.WriteMatrix(args.DataOutput, scores); err != nil {
		return err
	}
	d.log.Info().
		Str("path", args.DataOutput).
		Str("size", detectors.ArtifactSize(args.DataOutput)).
		Int("rows", len(scores)).
		Msg("scores written")
	return nil
}
