package memory

import (
	"fmt"
	"math"
)

type float interface {
	~float32 | ~float64
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Mismatched lengths, empty vectors and zero norms yield 0.
func Cosine[T float](a, b []T) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return sim
}

// Rescale maps a cosine in [-1, 1] onto [0, 1].
func Rescale(cos float64) float64 {
	return (cos + 1) / 2
}

// Norm returns the Euclidean norm of v.
func Norm[T float](v []T) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Finite reports whether v has no NaN or Inf element.
func Finite[T float](v []T) bool {
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Usable reports whether v is non-empty, finite and has a non-zero norm.
func Usable[T float](v []T) bool {
	if len(v) == 0 || !Finite(v) {
		return false
	}
	n := Norm(v)
	return n > 0 && !math.IsInf(n, 0)
}

// CheckVector validates v against the store dimension.
func CheckVector(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), dim)
	}
	if !Usable(v) {
		return ErrInvalidVector
	}
	return nil
}

// Normalize returns v scaled to unit length as float64.
// A zero vector is returned unchanged.
func Normalize[T float](v []T) []float64 {
	out := make([]float64, len(v))
	n := Norm(v)
	for i, x := range v {
		if n == 0 {
			out[i] = float64(x)
			continue
		}
		out[i] = float64(x) / n
	}
	return out
}
