// Package ml provides the per-letter classifier bank and its training
// pipeline for the Soletra recognition engine.
package ml

import (
	"gonum.org/v1/gonum/stat"
)

// minStd guards against dividing by the spread of a constant feature.
const minStd = 1e-12

// Scaler standardizes feature vectors to zero mean and unit variance. It is
// fitted on a training split only and persisted alongside the classifier it
// was fitted for; mixing a classifier with another letter's scaler would
// silently corrupt predictions.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column mean and standard deviation over rows.
// All rows must have equal length.
func FitScaler(rows [][]float64) *Scaler {
	if len(rows) == 0 {
		return &Scaler{}
	}

	dim := len(rows[0])
	s := &Scaler{
		Mean: make([]float64, dim),
		Std:  make([]float64, dim),
	}

	column := make([]float64, len(rows))
	for j := 0; j < dim; j++ {
		for i, row := range rows {
			column[i] = row[j]
		}
		s.Mean[j], s.Std[j] = stat.MeanStdDev(column, nil)
	}

	return s
}

// Transform returns the standardized copy of x. Constant features pass
// through centered but unscaled.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j := range x {
		std := s.Std[j]
		if std < minStd {
			std = 1
		}
		out[j] = (x[j] - s.Mean[j]) / std
	}
	return out
}

// TransformAll standardizes every row.
func (s *Scaler) TransformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}
