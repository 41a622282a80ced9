// Package neural implements the small feed-forward reconstruction network
// used by the denoising autoencoder detector: a linear encoder into a latent
// bottleneck, a linear decoder back out, and a mini-batch Adam training loop
// with early stopping and checkpoint hooks.
package neural

import (
	"math"
	"math/rand"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// Network is a single-bottleneck reconstruction network. Weights are stored
// flat: W1[i*Latent+j] connects input i to latent unit j, W2[j*Inputs+i]
// connects latent unit j to output i. All fields are exported so a fitted
// network serializes as a checkpoint.
type Network struct {
	Inputs int
	Latent int

	W1 []float64
	B1 []float64
	W2 []float64
	B2 []float64
}

// NewNetwork builds a network with Glorot-uniform weights drawn from rng and
// zero biases.
func NewNetwork(inputs, latent int, rng *rand.Rand) *Network {
	n := &Network{
		Inputs: inputs,
		Latent: latent,
		W1:     make([]float64, inputs*latent),
		B1:     make([]float64, latent),
		W2:     make([]float64, latent*inputs),
		B2:     make([]float64, inputs),
	}

	glorot(n.W1, inputs, latent, rng)
	glorot(n.W2, latent, inputs, rng)

	return n
}

// glorot fills w uniformly from [-limit, limit] with limit derived from the
// layer fan-in and fan-out.
func glorot(w []float64, fanIn, fanOut int, rng *rand.Rand) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (2*rng.Float64() - 1) * limit
	}
}

// Forward reconstructs one row.
func (n *Network) Forward(x []float64) []float64 {
	h := make([]float64, n.Latent)
	y := make([]float64, n.Inputs)
	n.forward(x, h, y)
	return y
}

// forward writes the latent activation into h and the reconstruction into y.
func (n *Network) forward(x, h, y []float64) {
	for j := 0; j < n.Latent; j++ {
		sum := n.B1[j]
		for i := 0; i < n.Inputs; i++ {
			sum += x[i] * n.W1[i*n.Latent+j]
		}
		h[j] = sum
	}
	for i := 0; i < n.Inputs; i++ {
		sum := n.B2[i]
		for j := 0; j < n.Latent; j++ {
			sum += h[j] * n.W2[j*n.Inputs+i]
		}
		y[i] = sum
	}
}

// Loss returns the mean squared reconstruction error of targets from inputs,
// averaged over rows and features.
func (n *Network) Loss(inputs, targets [][]float64) float64 {
	if len(inputs) == 0 {
		return math.NaN()
	}

	h := make([]float64, n.Latent)
	y := make([]float64, n.Inputs)
	var total float64
	for r := range inputs {
		n.forward(inputs[r], h, y)
		total += rowError(y, targets[r])
	}
	return total / float64(len(inputs))
}

// ReconstructionErrors returns the per-row mean squared error between each
// row and its reconstruction. This is the anomaly score at execute time.
func (n *Network) ReconstructionErrors(rows [][]float64) []float64 {
	h := make([]float64, n.Latent)
	y := make([]float64, n.Inputs)
	scores := make([]float64, len(rows))
	for r, row := range rows {
		n.forward(row, h, y)
		scores[r] = rowError(y, row)
	}
	return scores
}

// rowError is the mean squared difference between a reconstruction and its
// target row.
func rowError(y, t []float64) float64 {
	var sum float64
	for i := range y {
		d := y[i] - t[i]
		sum += d * d
	}
	return sum / float64(len(y))
}

// checkRows verifies every row matches the network's input width.
func (n *Network) checkRows(rows [][]float64) error {
	for r, row := range rows {
		if len(row) != n.Inputs {
			return errors.DataShapef("row %d has %d values, network expects %d", r, len(row), n.Inputs)
		}
	}
	return nil
}
