package neural

import "math"

// adam implements the Adam update rule with the usual moment decay rates.
type adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

// newAdam prepares moment buffers shaped after the given parameter groups.
func newAdam(lr float64, groups ...[]float64) *adam {
	a := &adam{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-7,
		m:     make([][]float64, len(groups)),
		v:     make([][]float64, len(groups)),
	}
	for g, params := range groups {
		a.m[g] = make([]float64, len(params))
		a.v[g] = make([]float64, len(params))
	}
	return a
}

// update applies one Adam step to every parameter group. params and grads
// must be ordered like the groups given to newAdam.
func (a *adam) update(params, grads [][]float64) {
	a.step++
	mCorr := 1 - math.Pow(a.beta1, float64(a.step))
	vCorr := 1 - math.Pow(a.beta2, float64(a.step))

	for g := range params {
		p, gr := params[g], grads[g]
		m, v := a.m[g], a.v[g]
		for k := range p {
			m[k] = a.beta1*m[k] + (1-a.beta1)*gr[k]
			v[k] = a.beta2*v[k] + (1-a.beta2)*gr[k]*gr[k]
			mHat := m[k] / mCorr
			vHat := v[k] / vCorr
			p[k] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}
