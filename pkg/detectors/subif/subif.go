// Package subif implements the windowed ensemble detector: an isolation
// forest fit over sliding-window context vectors, with contamination derived
// from the label columns and boundary padding at execute time.
package subif

import (
	"math"
	"os"

	"github.com/rs/zerolog"

	"github.com/hed1ad/tsguard/pkg/artifact"
	"github.com/hed1ad/tsguard/pkg/config"
	"github.com/hed1ad/tsguard/pkg/dataset"
	"github.com/hed1ad/tsguard/pkg/detectors"
	"github.com/hed1ad/tsguard/pkg/errors"
	"github.com/hed1ad/tsguard/pkg/iforest"
	"github.com/hed1ad/tsguard/pkg/window"
)

// Detector scores fixed-width subsequences with an isolation forest and pads
// the windowed prediction back to series length.
type Detector struct {
	params *config.SubIFParams
	log    zerolog.Logger
}

var _ detectors.Detector = (*Detector)(nil)

// New returns a windowed ensemble detector with the given parameters.
func New(params *config.SubIFParams, log zerolog.Logger) *Detector {
	return &Detector{params: params, log: log}
}

// Name implements detectors.Detector.
func (d *Detector) Name() string { return "subif" }

// Common implements detectors.Detector.
func (d *Detector) Common() *config.CommonParams { return &d.params.CommonParams }

// contamination is the fraction of rows any of whose channels is labeled
// anomalous. An all-normal label set yields the smallest representable
// positive value instead of zero, which the ensemble rejects.
func contamination(labels [][]uint8) float64 {
	anomalous := 0
	for _, row := range labels {
		for _, l := range row {
			if l > 0 {
				anomalous++
				break
			}
		}
	}
	c := float64(anomalous) / float64(len(labels))
	if c == 0 {
		c = math.Nextafter(0, 1)
	}
	return c
}

// slide expands the resolved series into window vectors, logging the shape
// change the way train and execute both need it.
func (d *Detector) slide(res *dataset.Resolution) ([][]float64, error) {
	samples, err := window.Slide(res.Data, d.params.WindowSize)
	if err != nil {
		return nil, err
	}
	d.log.Debug().
		Int("rows", res.Rows()).
		Int("samples", len(samples)).
		Int("width", d.params.WindowSize*len(res.Channels)).
		Msg("windowed series")
	return samples, nil
}

// Train fits the ensemble on the windowed series and persists it as one
// opaque artifact.
func (d *Detector) Train(args *config.Args, res *dataset.Resolution) error {
	p := d.params
	c := contamination(res.Labels)

	samples, err := d.slide(res)
	if err != nil {
		return err
	}

	opts := []iforest.Option{
		iforest.WithTrees(p.NTrees),
		iforest.WithContamination(c),
		iforest.WithMaxFeatures(p.MaxFeatures),
		iforest.WithBootstrap(p.Bootstrap),
		iforest.WithSeed(p.RandomState),
		iforest.WithJobs(p.NJobs),
	}
	if p.MaxSamples != nil {
		opts = append(opts, iforest.WithMaxSamples(*p.MaxSamples))
	}
	forest := iforest.New(opts...)

	fitLog := d.log.Debug()
	if p.Verbose > 0 {
		fitLog = d.log.Info()
	}
	fitLog.
		Int("trees", p.NTrees).
		Float64("contamination", c).
		Int("jobs", p.NJobs).
		Msg("fitting ensemble")

	if err := forest.Fit(samples); err != nil {
		return err
	}

	blob, err := forest.Save()
	if err != nil {
		return err
	}
	if err := os.WriteFile(args.ModelOutput, blob, 0644); err != nil {
		return errors.Wrapf(err, "writing model to %s", args.ModelOutput)
	}

	d.log.Info().
		Str("path", args.ModelOutput).
		Str("size", detectors.ArtifactSize(args.ModelOutput)).
		Float64("threshold", forest.Threshold()).
		Msg("model saved")
	return nil
}

// Execute loads the persisted ensemble, windows the input identically to
// train, and writes one binary score per original timestamp, padding the
// window margins with the normal value.
func (d *Detector) Execute(args *config.Args, res *dataset.Resolution) error {
	samples, err := d.slide(res)
	if err != nil {
		return err
	}

	blob, err := os.ReadFile(args.ModelInput)
	if os.IsNotExist(err) {
		return errors.MissingArtifactf("no model at %s, run train first", args.ModelInput)
	}
	if err != nil {
		return errors.Wrapf(err, "reading model from %s", args.ModelInput)
	}
	forest := iforest.New()
	if err := forest.Load(blob); err != nil {
		return errors.Wrapf(err, "decoding model from %s", args.ModelInput)
	}
	d.log.Debug().Str("path", args.ModelInput).Msg("model loaded")

	labels, err := forest.Predict(samples)
	if err != nil {
		return err
	}

	// The ensemble speaks the ±1 convention; translate to {0,1} here so the
	// padding value and the persisted scores agree.
	preds := make([]float64, len(labels))
	for i, l := range labels {
		if l == -1 {
			preds[i] = 1
		}
	}

	scores, err := window.Pad(preds, d.params.WindowSize, 0)
	if err != nil {
		return err
	}

	if err := artifact.WriteVector(args.DataOutput, scores); err != nil {
		return err
	}
	d.log.Info().
		Str("path", args.DataOutput).
		Str("size", detectors.ArtifactSize(args.DataOutput)).
		Int("rows", len(scores)).
		Msg("scores written")
	return nil
}
