package vmath

import (
	"math"
	"testing"
)

const epsilon = 1e-5

func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a        []float32
		b        []float32
		expected float64
	}{
		{
			name:     "identical",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2, 3},
			expected: 1,
		},
		{
			name:     "perpendicular",
			a:        []float32{1, 0, 0},
			b:        []float32{0, 1, 0},
			expected: 0,
		},
		{
			name:     "opposite",
			a:        []float32{1, 0},
			b:        []float32{-1, 0},
			expected: -1,
		},
		{
			name:     "scaled copies",
			a:        []float32{1, 2},
			b:        []float32{10, 20},
			expected: 1,
		},
		{
			name:     "zero vector maps NaN to zero",
			a:        []float32{0, 0, 0},
			b:        []float32{1, 2, 3},
			expected: 0,
		},
		{
			name:     "empty",
			a:        []float32{},
			b:        []float32{},
			expected: 0,
		},
		{
			name:     "mismatched lengths",
			a:        []float32{1, 2, 3},
			b:        []float32{1, 2},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if !approxEqual(got, tt.expected, epsilon) {
				t.Errorf("CosineSimilarity() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCosineSimilarityNeverNaN(t *testing.T) {
	inputs := [][]float32{
		{0, 0, 0},
		{},
		{1},
	}
	for _, a := range inputs {
		for _, b := range inputs {
			if got := CosineSimilarity(a, b); math.IsNaN(got) {
				t.Errorf("CosineSimilarity(%v, %v) = NaN", a, b)
			}
		}
	}
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	NormalizeInPlace(v)
	if !approxEqual(float64(Norm(v)), 1, epsilon) {
		t.Errorf("norm after normalize = %v, want 1", Norm(v))
	}

	zero := []float32{0, 0}
	NormalizeInPlace(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector changed by normalize: %v", zero)
	}
}
