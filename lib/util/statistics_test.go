package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   Stats
	}{
		{"empty", nil, Stats{}},
		{"single", []float64{4}, Stats{Min: 4, Max: 4, Mean: 4, MinMaxRatio: 1}},
		{"spread", []float64{2, 4, 4, 4, 5, 5, 7, 9}, Stats{StdDeviation: 2, Min: 2, Max: 9, Mean: 5, MinMaxRatio: 2.0 / 9.0}},
		{"zeros", []float64{0, 0}, Stats{MinMaxRatio: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewStats(tt.values)
			if !approxEqual(got.Mean, tt.want.Mean) || !approxEqual(got.StdDeviation, tt.want.StdDeviation) ||
				!approxEqual(got.Min, tt.want.Min) || !approxEqual(got.Max, tt.want.Max) || !approxEqual(got.MinMaxRatio, tt.want.MinMaxRatio) {
				t.Errorf("NewStats(%v) = %+v, want %+v", tt.values, got, tt.want)
			}
		})
	}
}

func TestFairness(t *testing.T) {
	if f := NewFairnessStats([]float64{3, 3, 3}).Fairness; !approxEqual(f, 1) {
		t.Errorf("even spread has fairness %f, want 1", f)
	}
	if f := NewFairnessStats([]float64{0, 10}).Fairness; !approxEqual(f, 0) {
		t.Errorf("extreme spread has fairness %f, want 0", f)
	}
	even := NewFairnessStats([]float64{4, 5, 6}).Fairness
	skewed := NewFairnessStats([]float64{1, 5, 9}).Fairness
	if skewed >= even {
		t.Errorf("skewed spread (%f) rated at least as fair as even spread (%f)", skewed, even)
	}
	if f := NewFairnessStats(nil).Fairness; f != 0 {
		t.Errorf("empty input has fairness %f", f)
	}
}

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
