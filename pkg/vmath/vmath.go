// Package vmath provides the vector math used by semantic linking.
//
// All similarity scoring in Matric goes through this package so the choice
// of kernel lives in one place. The implementation delegates to viterin/vek,
// which picks AVX2/NEON accelerated paths at runtime and falls back to
// optimized pure Go elsewhere.
package vmath

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// CosineSimilarity returns the cosine similarity of two vectors.
//
// Returns 0 for empty, mismatched-length, or zero-norm inputs. vek32 yields
// NaN for zero vectors, which would poison every downstream comparison, so
// the NaN is mapped to 0 here.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	result := vek32.CosineSimilarity(a, b)
	if math.IsNaN(float64(result)) {
		return 0
	}
	return float64(result)
}

// Dot returns the dot product of two vectors.
func Dot(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return vek32.Dot(a, b)
}

// Norm returns the Euclidean norm of a vector.
func Norm(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	return vek32.Norm(v)
}

// NormalizeInPlace scales v to unit length. Zero vectors are left alone.
func NormalizeInPlace(v []float32) {
	if len(v) == 0 {
		return
	}
	n := vek32.Norm(v)
	if n == 0 {
		return
	}
	vek32.DivNumber_Inplace(v, n)
}
