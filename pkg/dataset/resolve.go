package dataset

import (
	"github.com/rs/zerolog"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// Resolution is the output of channel and label resolution: the selected
// data matrix, one label column per selected channel, and the recomputed
// index mapping downstream transforms rely on.
type Resolution struct {
	// Channels are the effective channel names, always in source column order.
	Channels []string
	// Indices holds each selected channel's column index in the source
	// table, recorded for the effective-configuration echo.
	Indices []int
	// ByName maps a selected channel name to its column index in Data.
	ByName map[string]int
	// Data is the selected-channel data matrix, column order matching Channels.
	Data [][]float64
	// Labels has exactly one column per selected channel, aligned with Channels.
	Labels [][]uint8
}

// Rows returns the number of timestamps in the resolution.
func (r *Resolution) Rows() int { return len(r.Data) }

// Resolve restricts the table to the requested channels and normalizes the
// label schema to one label column per selected channel.
//
// An empty request, or one sharing no names with the data, selects all
// channels in source order (and logs the effective selection). A request
// that partially overlaps drops the unrequested channels and their labels.
// A single global label column is broadcast to every selected channel and
// then discarded.
func (t *Table) Resolve(requested []string, log zerolog.Logger) (*Resolution, error) {
	if len(t.Channels) == 0 {
		return nil, errors.Configurationf("no channels remain after resolution")
	}
	selected := intersect(t.Channels, requested)
	if len(selected) == 0 {
		selected = append([]string(nil), t.Channels...)
		log.Info().Strs("channels", selected).
			Msg("input channels not given or not present in the data, selecting all channels")
	}

	labelIdx, err := t.labelIndices(selected)
	if err != nil {
		return nil, err
	}

	res := &Resolution{
		Channels: selected,
		Indices:  make([]int, len(selected)),
		ByName:   make(map[string]int, len(selected)),
		Data:     make([][]float64, t.Rows()),
		Labels:   make([][]uint8, t.Rows()),
	}

	srcIdx := make([]int, len(selected))
	for i, name := range selected {
		srcIdx[i] = index(t.Channels, name)
		res.Indices[i] = srcIdx[i]
		res.ByName[name] = i
	}

	for row := range t.Data {
		data := make([]float64, len(selected))
		labels := make([]uint8, len(selected))
		for i := range selected {
			data[i] = t.Data[row][srcIdx[i]]
			labels[i] = t.Labels[row][labelIdx[i]]
		}
		res.Data[row] = data
		res.Labels[row] = labels
	}
	return res, nil
}

// labelIndices maps each selected channel to its label column in t.Labels.
// The single-global-column schema broadcasts one column to every channel.
func (t *Table) labelIndices(selected []string) ([]int, error) {
	idx := make([]int, len(selected))

	if len(t.LabelColumns) == 1 && t.LabelColumns[0] == LabelPrefix {
		return idx, nil // every channel reads column 0
	}

	for i, name := range selected {
		col := index(t.LabelColumns, LabelPrefix+"_"+name)
		if col < 0 {
			return nil, errors.DataShapef("no %s_%s label column for channel %s", LabelPrefix, name, name)
		}
		idx[i] = col
	}
	return idx, nil
}

// intersect returns the members of want found in have, preserving have's
// order and dropping duplicates. A nil result means no overlap.
func intersect(have, want []string) []string {
	if len(want) == 0 {
		return nil
	}
	wanted := make(map[string]bool, len(want))
	for _, w := range want {
		wanted[w] = true
	}
	var out []string
	for _, h := range have {
		if wanted[h] {
			out = append(out, h)
			wanted[h] = false
		}
	}
	return out
}

func index(haystack []string, needle string) int {
	for i, s := range haystack {
		if s == needle {
			return i
		}
	}
	return -1
}
