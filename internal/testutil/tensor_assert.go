package testutil

import (
	"math"
	"slices"
	"testing"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
)

// AssertTensorClose fails the test unless got has want's shape and every
// element lies within tol of want's.
func AssertTensorClose(tb testing.TB, want, got *tensor.Tensor, tol float64) {
	tb.Helper()

	if got == nil {
		tb.Fatalf("tensor is nil, want shape %v", want.Shape())
	}

	if !slices.Equal(want.Shape(), got.Shape()) {
		tb.Fatalf("shape = %v, want %v", got.Shape(), want.Shape())
	}

	w, g := want.Data(), got.Data()
	for i := range w {
		if math.Abs(float64(w[i]-g[i])) > tol {
			tb.Fatalf("element %d = %v, want %v (tol %g)", i, g[i], w[i], tol)
		}
	}
}
