// Package testutil provides shared fixtures and assertions for tests that
// exchange tensors through safetensors files.
//
// Typical usage:
//
//	func TestMyCommand(t *testing.T) {
//	    in := testutil.WriteBatch(t, t.TempDir(), "batch.safetensors", map[string]*tensor.Tensor{
//	        "features": testutil.MustTensor(t, []float32{1, 2}, 1, 2, 1),
//	    })
//	    ...
//	    testutil.AssertTensorClose(t, want, testutil.ReadTensor(t, out, "features_upsampled"), 1e-6)
//	}
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/example/go-ttstrain/internal/runtime/tensor"
	"github.com/example/go-ttstrain/internal/safetensors"
)

// MustTensor builds a tensor or fails the test.
func MustTensor(tb testing.TB, data []float32, shape ...int64) *tensor.Tensor {
	tb.Helper()

	t, err := tensor.New(data, shape)
	if err != nil {
		tb.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return t
}

// WriteBatch stores tensors as dir/name and returns the path.
func WriteBatch(tb testing.TB, dir, name string, tensors map[string]*tensor.Tensor) string {
	tb.Helper()

	path := filepath.Join(dir, name)
	if err := safetensors.SaveTensors(path, tensors); err != nil {
		tb.Fatalf("write batch %s: %v", path, err)
	}

	return path
}

// ReadTensor loads one tensor from a safetensors file or fails the test.
func ReadTensor(tb testing.TB, path, name string) *tensor.Tensor {
	tb.Helper()

	tensors, err := safetensors.LoadNamed(path, name)
	if err != nil {
		tb.Fatalf("read %q from %s: %v", name, path, err)
	}

	return tensors[name]
}
