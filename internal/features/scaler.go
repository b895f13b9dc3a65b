package features

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes columns to zero mean and unit variance using the
// population standard deviation of the rows it was fit on. Constant columns
// get a scale of 1 so they pass through centered.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ErrScalerWidth is returned when a row does not match the scaler's width.
var ErrScalerWidth = errors.New("scaler width mismatch")

// FitScaler computes per-column mean and scale over rows.
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}
	width := len(rows[0])
	s := &Scaler{Mean: make([]float64, width), Scale: make([]float64, width)}
	col := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if !finite(std) || std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return s
}

// Transform returns a standardized copy of row. A nil scaler is the identity.
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	out := make([]float64, len(row))
	if s == nil {
		copy(out, row)
		return out, nil
	}
	if len(row) != len(s.Mean) || len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("%w: row has %d columns, scaler has %d", ErrScalerWidth, len(row), len(s.Mean))
	}
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformAll standardizes every row.
func (s *Scaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		t, err := s.Transform(r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Width reports the number of columns the scaler expects, or -1 for the
// identity scaler.
func (s *Scaler) Width() int {
	if s == nil {
		return -1
	}
	return len(s.Mean)
}
