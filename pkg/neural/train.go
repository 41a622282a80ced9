package neural

import (
	"math"
	"math/rand"

	"github.com/hed1ad/tsguard/pkg/errors"
)

const defaultBatchSize = 32

// FitConfig drives one training run.
type FitConfig struct {
	Epochs          int
	BatchSize       int // defaults to 32 when unset
	LearningRate    float64
	ValidationSplit float64 // trailing fraction of rows held out
	Patience        int     // epochs without improvement before stopping; 0 disables
	MinDelta        float64 // improvements at or below this do not reset patience
	Seed            int64

	// Checkpoint runs after every epoch whose validation loss improves on
	// the best seen so far. The best starts at +Inf, so a NaN loss never
	// checkpoints.
	Checkpoint func(net *Network, valLoss float64) error

	// PostEpoch runs at the end of every epoch, after any checkpoint, with
	// that epoch's mean training loss and validation loss.
	PostEpoch func(epoch int, trainLoss, valLoss float64) error
}

// History records one training run.
type History struct {
	TrainLoss []float64
	ValLoss   []float64

	// BestValLoss is the lowest validation loss seen; +Inf when no epoch
	// produced a comparable loss. BestEpoch is 1-based, 0 when no epoch
	// improved.
	BestValLoss  float64
	BestEpoch    int
	StoppedEarly bool
}

// Fit trains net to reconstruct targets from inputs with mini-batch Adam.
// The trailing ValidationSplit fraction of the rows is held out and scored
// after every epoch; the leading rows are shuffled into batches each epoch.
func Fit(net *Network, inputs, targets [][]float64, cfg FitConfig) (*History, error) {
	if len(inputs) != len(targets) {
		return nil, errors.DataShapef("inputs and targets differ in length: %d vs %d", len(inputs), len(targets))
	}
	if len(inputs) == 0 {
		return nil, errors.DataShapef("no training rows")
	}
	if err := net.checkRows(inputs); err != nil {
		return nil, err
	}
	if err := net.checkRows(targets); err != nil {
		return nil, err
	}
	if cfg.Epochs < 1 {
		return nil, errors.Configurationf("epochs must be >= 1, got %d", cfg.Epochs)
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	splitAt := int(float64(len(inputs)) * (1 - cfg.ValidationSplit))
	if splitAt < 1 {
		return nil, errors.DataShapef("validation split %v leaves no training rows", cfg.ValidationSplit)
	}
	if splitAt >= len(inputs) {
		return nil, errors.DataShapef("validation split %v leaves no validation rows", cfg.ValidationSplit)
	}
	trainX, trainY := inputs[:splitAt], targets[:splitAt]
	valX, valY := inputs[splitAt:], targets[splitAt:]

	rng := rand.New(rand.NewSource(cfg.Seed))
	params := [][]float64{net.W1, net.B1, net.W2, net.B2}
	grads := [][]float64{
		make([]float64, len(net.W1)),
		make([]float64, len(net.B1)),
		make([]float64, len(net.W2)),
		make([]float64, len(net.B2)),
	}
	opt := newAdam(cfg.LearningRate, params...)

	h := make([]float64, net.Latent)
	y := make([]float64, net.Inputs)
	dy := make([]float64, net.Inputs)
	dh := make([]float64, net.Latent)

	hist := &History{BestValLoss: math.Inf(1)}
	bestStop := math.Inf(1)
	wait := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		perm := rng.Perm(len(trainX))
		var epochLoss float64
		for start := 0; start < len(perm); start += batch {
			end := start + batch
			if end > len(perm) {
				end = len(perm)
			}
			idx := perm[start:end]
			loss := trainBatch(net, trainX, trainY, idx, opt, params, grads, h, y, dy, dh)
			epochLoss += loss * float64(len(idx))
		}
		epochLoss /= float64(len(trainX))
		valLoss := net.Loss(valX, valY)
		hist.TrainLoss = append(hist.TrainLoss, epochLoss)
		hist.ValLoss = append(hist.ValLoss, valLoss)

		// Early-stopping bookkeeping keeps its own best, separate from the
		// checkpoint best: patience only resets on improvements beyond
		// MinDelta, while checkpoints fire on any strict improvement.
		if valLoss < bestStop-cfg.MinDelta {
			bestStop = valLoss
			wait = 0
		} else {
			wait++
		}

		if valLoss < hist.BestValLoss {
			hist.BestValLoss = valLoss
			hist.BestEpoch = epoch
			if cfg.Checkpoint != nil {
				if err := cfg.Checkpoint(net, valLoss); err != nil {
					return hist, errors.Wrapf(err, "checkpoint at epoch %d", epoch)
				}
			}
		}
		if cfg.PostEpoch != nil {
			if err := cfg.PostEpoch(epoch, epochLoss, valLoss); err != nil {
				return hist, errors.Wrapf(err, "post-epoch hook at epoch %d", epoch)
			}
		}

		if cfg.Patience > 0 && wait >= cfg.Patience {
			hist.StoppedEarly = true
			break
		}
	}

	return hist, nil
}

// trainBatch runs one forward/backward pass over the rows named by idx and
// applies a single Adam update. Returns the batch's pre-update loss.
func trainBatch(net *Network, xs, ts [][]float64, idx []int, opt *adam, params, grads [][]float64, h, y, dy, dh []float64) float64 {
	for _, g := range grads {
		for k := range g {
			g[k] = 0
		}
	}
	gW1, gB1, gW2, gB2 := grads[0], grads[1], grads[2], grads[3]

	scale := 2 / (float64(len(idx)) * float64(net.Inputs))
	var loss float64
	for _, r := range idx {
		x, t := xs[r], ts[r]
		net.forward(x, h, y)
		loss += rowError(y, t)

		for i := 0; i < net.Inputs; i++ {
			dy[i] = scale * (y[i] - t[i])
			gB2[i] += dy[i]
		}
		for j := 0; j < net.Latent; j++ {
			var sum float64
			for i := 0; i < net.Inputs; i++ {
				gW2[j*net.Inputs+i] += h[j] * dy[i]
				sum += net.W2[j*net.Inputs+i] * dy[i]
			}
			dh[j] = sum
			gB1[j] += dh[j]
		}
		for i := 0; i < net.Inputs; i++ {
			for j := 0; j < net.Latent; j++ {
				gW1[i*net.Latent+j] += x[i] * dh[j]
			}
		}
	}

	opt.update(params, grads)
	return loss / float64(len(idx))
}
