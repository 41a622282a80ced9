// Package window expands a multichannel series into overlapping fixed-width
// context vectors and pads windowed predictions back to series length.
//
// Both operations are pure, stateless reshapes: no information beyond the
// w-row neighborhood enters a sample, and sample i's center timestamp sits
// (w-1)/2 rows into the original series.
package window

import "github.com/hed1ad/tsguard/pkg/errors"

// Slide expands data[T][C] into T-w+1 channel-major samples of width w*C:
// sample[i][c*w+k] = data[i+k][c].
//
// w must be odd so every sample has a well-defined center, and must not
// exceed the series length.
func Slide(data [][]float64, w int) ([][]float64, error) {
	if err := validate(w); err != nil {
		return nil, err
	}
	t := len(data)
	if w > t {
		return nil, errors.DataShapef("window size %d exceeds series length %d", w, t)
	}

	c := len(data[0])
	samples := make([][]float64, t-w+1)
	for i := range samples {
		s := make([]float64, w*c)
		for ch := 0; ch < c; ch++ {
			for k := 0; k < w; k++ {
				s[ch*w+k] = data[i+k][ch]
			}
		}
		samples[i] = s
	}
	return samples, nil
}

// Pad restores a windowed prediction to series length by padding w/2
// copies of fill onto each side.
func Pad(preds []float64, w int, fill float64) ([]float64, error) {
	if err := validate(w); err != nil {
		return nil, err
	}

	half := w / 2
	out := make([]float64, 0, len(preds)+2*half)
	for i := 0; i < half; i++ {
		out = append(out, fill)
	}
	out = append(out, preds...)
	for i := 0; i < half; i++ {
		out = append(out, fill)
	}
	return out, nil
}

func validate(w int) error {
	if w < 1 {
		return errors.Configurationf("window size must be >= 1, got %d", w)
	}
	if w%2 == 0 {
		return errors.Configurationf("window size must be odd, got %d", w)
	}
	return nil
}
