// Package dae implements the checkpointed reconstruction detector: a
// denoising autoencoder trained with early stopping, where every epoch that
// improves the validation loss refreshes an archived best-weights model, so
// an interrupted run still leaves a complete, loadable artifact.
package dae

import (
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/hed1ad/tsguard/pkg/artifact"
	"github.com/hed1ad/tsguard/pkg/config"
	"github.com/hed1ad/tsguard/pkg/dataset"
	"github.com/hed1ad/tsguard/pkg/detectors"
	"github.com/hed1ad/tsguard/pkg/errors"
	"github.com/hed1ad/tsguard/pkg/neural"
)

// checkpointFile is the network snapshot inside the checkpoint directory
// and the archived model.
const checkpointFile = "network.gob"

// Detector trains a reconstruction network on a corrupted copy of the series
// and scores rows by reconstruction error.
type Detector struct {
	params *config.DAEParams
	log    zerolog.Logger
}

var _ detectors.Detector = (*Detector)(nil)

// New returns a reconstruction detector with the given parameters.
func New(params *config.DAEParams, log zerolog.Logger) *Detector {
	return &Detector{params: params, log: log}
}

// Name implements detectors.Detector.
func (d *Detector) Name() string { return "dae" }

// Common implements detectors.Detector.
func (d *Detector) Common() *config.CommonParams { return &d.params.CommonParams }

// corrupt copies rows and zeroes every channel value in a noiseRatio
// fraction of them, chosen uniformly without replacement.
func corrupt(rows [][]float64, noiseRatio float64, rng *rand.Rand) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = append([]float64(nil), row...)
	}

	n := int(float64(len(rows)) * noiseRatio)
	for _, idx := range rng.Perm(len(rows))[:n] {
		for j := range out[idx] {
			out[idx][j] = 0
		}
	}
	return out
}

// Train fits the network to reconstruct clean rows from the corrupted copy.
// After every improving epoch the best weights are checkpointed and packed
// into the model archive, replacing it atomically.
func (d *Detector) Train(args *config.Args, res *dataset.Resolution) error {
	p := d.params
	rng := rand.New(rand.NewSource(p.RandomState))

	noisy := corrupt(res.Data, p.NoiseRatio, rng)
	net := neural.NewNetwork(len(res.Channels), p.LatentSize, rng)

	ckptDir := args.ModelOutput + ".ckpt"
	if err := os.MkdirAll(ckptDir, 0755); err != nil {
		return errors.Wrapf(err, "creating checkpoint directory %s", ckptDir)
	}
	defer os.RemoveAll(ckptDir)
	ckptPath := filepath.Join(ckptDir, checkpointFile)

	hist, err := neural.Fit(net, noisy, res.Data, neural.FitConfig{
		Epochs:          p.Epochs,
		LearningRate:    p.LearningRate,
		ValidationSplit: 1 - p.Split,
		Patience:        p.EarlyStoppingPatience,
		MinDelta:        p.EarlyStoppingDelta,
		Seed:            p.RandomState,
		Checkpoint: func(net *neural.Network, valLoss float64) error {
			if err := artifact.EncodeGob(ckptPath, net); err != nil {
				return err
			}
			d.log.Debug().Float64("val_loss", valLoss).Msg("checkpoint updated")
			return nil
		},
		PostEpoch: func(epoch int, trainLoss, valLoss float64) error {
			d.log.Debug().
				Int("epoch", epoch).
				Float64("train_loss", trainLoss).
				Float64("val_loss", valLoss).
				Msg("epoch finished")
			if _, err := os.Stat(ckptPath); err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return errors.Wrapf(err, "inspecting checkpoint %s", ckptPath)
			}
			if err := artifact.Archive(ckptDir, args.ModelOutput); err != nil {
				return err
			}
			d.log.Debug().
				Int("epoch", epoch).
				Float64("val_loss", valLoss).
				Msg("model archived")
			return nil
		},
	})
	if err != nil {
		return err
	}

	if hist.StoppedEarly {
		d.log.Info().
			Int("epoch", len(hist.ValLoss)).
			Int("patience", p.EarlyStoppingPatience).
			Msg("early stopping triggered")
	}

	if hist.BestEpoch == 0 {
		d.log.Warn().
			Int("epochs", len(hist.ValLoss)).
			Msg("no epoch improved the validation loss, no model artifact was produced")
		return nil
	}

	d.log.Info().
		Str("path", args.ModelOutput).
		Str("size", detectors.ArtifactSize(args.ModelOutput)).
		Int("epochs", len(hist.ValLoss)).
		Int("best_epoch", hist.BestEpoch).
		Float64("best_val_loss", hist.BestValLoss).
		Bool("stopped_early", hist.StoppedEarly).
		Msg("model saved")
	return nil
}

// Execute unpacks the archived best network and writes one reconstruction
// error per timestamp.
func (d *Detector) Execute(args *config.Args, res *dataset.Resolution) error {
	tmp, err := os.MkdirTemp("", "dae-model-*")
	if err != nil {
		return errors.Wrapf(err, "creating scratch directory")
	}
	defer os.RemoveAll(tmp)

	if err := artifact.Unarchive(args.ModelInput, tmp); err != nil {
		return err
	}

	var net neural.Network
	if err := artifact.DecodeGob(filepath.Join(tmp, checkpointFile), &net); err != nil {
		return err
	}
	if net.Inputs != len(res.Channels) {
		return errors.DataShapef("model reconstructs %d channels, data has %d", net.Inputs, len(res.Channels))
	}
	d.log.Debug().Str("path", args.ModelInput).Int("latent", net.Latent).Msg("model loaded")

	scores := net.ReconstructionErrors(res.Data)

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
