package artifact

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/hed1ad/tsguard/pkg/errors"
)

// formatValue renders one number the way the persisted artifacts expect:
// full-precision scientific notation, one value per field.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'e', 18, 64)
}

// WriteVector writes one value per line in full-precision scientific
// notation.
func WriteVector(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	w := bufio.NewWriter(f)
	for _, v := range values {
		if _, err := w.WriteString(formatValue(v) + "\n"); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.WrapfOrNil(f.Close(), "closing %s", path)
}

// ReadVector reads a vector written by WriteVector. A file holding a single
// value still yields a one-element slice, so single-channel models load the
// same way as multichannel ones.
func ReadVector(path string) ([]float64, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var values []float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", path, line)
		}
		values = append(values, v)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(values) == 0 {
		return nil, errors.DataShapef("artifact %s holds no values", path)
	}
	return values, nil
}

// ReadMatrix reads a matrix written by WriteMatrix.
func ReadMatrix(path string) ([][]float64, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s line %d", path, line)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(rows) == 0 {
		return nil, errors.DataShapef("artifact %s holds no rows", path)
	}
	return rows, nil
}

// WriteMatrix writes one comma-delimited row per line in full-precision
// scientific notation.
func WriteMatrix(path string, rows [][]float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}

	w := bufio.NewWriter(f)
	fields := make([]string, 0, 8)
	for _, row := range rows {
		fields = fields[:0]
		for _, v := range row {
			fields = append(fields, formatValue(v))
		}
		if _, err := w.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing %s", path)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return errors.WrapfOrNil(f.Close(), "closing %s", path)
}
