// Package dataset loads the harness's tabular input file and resolves its
// heterogeneous label schemas into a per-channel signal.
package dataset

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// LabelPrefix marks the reserved label columns at the end of the header.
const LabelPrefix = "is_anomaly"

// indexColumn is the required name of the leading timestamp column. The
// index is consumed for ordering only and is not part of the data matrix.
const indexColumn = "timestamp"

// Table is the loaded tabular input: channel columns followed by one or more
// label columns, indexed by a timestamp column.
type Table struct {
	// Channels are the channel column names in source order.
	Channels []string
	// LabelColumns are the trailing label column names in source order.
	LabelColumns []string
	// Data holds one row per timestamp, one column per channel.
	Data [][]float64
	// Labels holds one row per timestamp, one column per label column,
	// aligned with LabelColumns.
	Labels [][]uint8
}

// Rows returns the number of timestamps in the table.
func (t *Table) Rows() int { return len(t.Data) }

// Load reads the tabular input at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	tbl, err := parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}
	return tbl, nil
}

func parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.DataShapef("input is empty")
	}
	if err != nil {
		return nil, err
	}
	if len(header) < 1 || header[0] != indexColumn {
		return nil, errors.DataShapef("first column must be %q", indexColumn)
	}

	channels, labelCols, err := splitColumns(header[1:])
	if err != nil {
		return nil, err
	}

	tbl := &Table{Channels: channels, LabelColumns: labelCols}
	width := 1 + len(channels) + len(labelCols)

	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != width {
			return nil, errors.DataShapef("line %d has %d fields, header has %d", line, len(record), width)
		}

		row := make([]float64, len(channels))
		for i := range channels {
			v, err := strconv.ParseFloat(record[1+i], 64)
			if err != nil {
				return nil, errors.DataShapef("line %d channel %s: %v", line, channels[i], err)
			}
			row[i] = v
		}

		labels := make([]uint8, len(labelCols))
		for i := range labelCols {
			v, err := parseLabel(record[1+len(channels)+i])
			if err != nil {
				return nil, errors.DataShapef("line %d label %s: %v", line, labelCols[i], err)
			}
			labels[i] = v
		}

		tbl.Data = append(tbl.Data, row)
		tbl.Labels = append(tbl.Labels, labels)
	}

	if len(tbl.Data) == 0 {
		return nil, errors.DataShapef("input has a header but no rows")
	}
	return tbl, nil
}

// splitColumns separates channel columns from the trailing label columns and
// verifies the labels really are trailing.
func splitColumns(columns []string) (channels, labels []string, err error) {
	nLabels := 0
	for _, c := range columns {
		if strings.HasPrefix(c, LabelPrefix) {
			nLabels++
		}
	}
	if nLabels == 0 {
		return nil, nil, errors.DataShapef("no %s* label columns in header", LabelPrefix)
	}

	split := len(columns) - nLabels
	for i, c := range columns {
		if strings.HasPrefix(c, LabelPrefix) != (i >= split) {
			return nil, nil, errors.DataShapef("label columns must trail the channel columns, found %q at position %d", c, i)
		}
	}
	return columns[:split], columns[split:], nil
}

// parseLabel accepts integer labels, tolerating integral floats the way the
// harness's loaders cast them.
func parseLabel(s string) (uint8, error) {
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		return uint8(v), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f > 255 {
		return 0, errors.New("label value %v is not a small non-negative integer", f)
	}
	return uint8(f), nil
}
