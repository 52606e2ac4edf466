package utils

import "math"

// Dot returns the inner product of a and b, accumulated in float64. Vectors of
// different or zero length score 0. For unit vectors this is cosine similarity.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// L2Norm returns the Euclidean length of x.
func L2Norm(x []float32) float64 {
	return math.Sqrt(Dot(x, x))
}

// NormalizeL2 scales x in place to unit length and returns its original norm.
// A zero or non-finite norm leaves x unchanged.
func NormalizeL2(x []float32) float64 {
	norm := L2Norm(x)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return norm
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
	return norm
}
