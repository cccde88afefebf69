package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

type ColumnStats struct {
	Min float64 `json:"min"`
	Avg float64 `json:"avg"`
	Max float64 `json:"max"`
}

// ComputeColumnStats summarizes every column of a row-major matrix.
func ComputeColumnStats(rows [][]float64) ([]ColumnStats, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	width := len(rows[0])
	if width == 0 {
		return nil, fmt.Errorf("matrix has no columns")
	}
	columns := make([][]float64, width)
	for i := range columns {
		columns[i] = make([]float64, len(rows))
	}
	for r, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), width)
		}
		for i, v := range row {
			columns[i][r] = v
		}
	}
	out := make([]ColumnStats, width)
	for i, col := range columns {
		out[i] = ColumnStats{
			Min: floats.Min(col),
			Avg: stat.Mean(col, nil),
			Max: floats.Max(col),
		}
	}
	return out, nil
}

// MinMaxScaler maps each column onto [0, 1] using the range it was fitted on.
// Constant columns map to 0.
type MinMaxScaler struct {
	Stats []ColumnStats `json:"stats"`
}

func FitMinMax(rows [][]float64) (MinMaxScaler, error) {
	stats, err := ComputeColumnStats(rows)
	if err != nil {
		return MinMaxScaler{}, err
	}
	return MinMaxScaler{Stats: stats}, nil
}

func (s MinMaxScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for r, row := range rows {
		if len(row) != len(s.Stats) {
			return nil, fmt.Errorf("row %d has %d values, scaler was fitted on %d", r, len(row), len(s.Stats))
		}
		scaled := make([]float64, len(row))
		for i, value := range row {
			span := s.Stats[i].Max - s.Stats[i].Min
			if span == 0 {
				continue
			}
			scaled[i] = (value - s.Stats[i].Min) / span
		}
		out[r] = scaled
	}
	return out, nil
}
