package embeddings

import "math"

// NormalizeL2 returns a new vector normalized to unit L2 norm and reports
// whether the input had a non-zero norm.
func NormalizeL2(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	n := math.Sqrt(sum)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		copy(out, v)
		return out, false
	}
	inv := 1.0 / n
	for i := range v {
		out[i] = float32(float64(v[i]) * inv)
	}
	return out, true
}

// Dot computes the inner product of two equal-length vectors in float64.
func Dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
