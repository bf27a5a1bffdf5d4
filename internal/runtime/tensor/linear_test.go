package tensor

import "testing"

func TestLinear(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 2})
	w, _ := New([]float32{1, 0, 0, 1, 1, 1}, []int64{3, 2})
	b, _ := New([]float32{0.5, -0.5, 1}, []int64{3})

	out, err := Linear(x, w, b)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{2, 3}) {
		t.Fatalf("shape = %v, want [2 3]", got)
	}

	want := []float32{1.5, 1.5, 4, 3.5, 3.5, 8}
	if got := out.Data(); !equalF32(got, want, 0) {
		t.Fatalf("data = %v, want %v", got, want)
	}
}

func TestLinearNoBiasRank3(t *testing.T) {
	x, _ := New([]float32{1, 2, 3, 4}, []int64{2, 1, 2})
	w, _ := New([]float32{1, 1}, []int64{1, 2})

	out, err := Linear(x, w, nil)
	if err != nil {
		t.Fatalf("linear: %v", err)
	}

	if got := out.Shape(); !equalI64(got, []int64{2, 1, 1}) {
		t.Fatalf("shape = %v, want [2 1 1]", got)
	}

	if got := out.Data(); !equalF32(got, []float32{3, 7}, 0) {
		t.Fatalf("data = %v, want [3 7]", got)
	}
}

func TestLinearShapeErrors(t *testing.T) {
	x, _ := Zeros([]int64{2, 3})
	w, _ := Zeros([]int64{4, 2})

	if _, err := Linear(x, w, nil); err == nil {
		t.Fatal("expected in-dim mismatch error")
	}

	w2, _ := Zeros([]int64{4, 3})
	bias, _ := Zeros([]int64{3})

	if _, err := Linear(x, w2, bias); err == nil {
		t.Fatal("expected bias shape error")
	}
}
