package main

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// approx compares float slices to within 1e-9.
var approx = cmpopts.EquateApprox(0, 1e-9)

// tensorsEqual reports whether a and b share a shape and agree within tol.
func tensorsEqual(a, b *Tensor, tol float64) bool {
	if !shapeEqual(a.shape, b.shape) {
		return false
	}
	for i := range a.data {
		if math.Abs(a.data[i]-b.data[i]) > tol {
			return false
		}
	}
	return true
}

// expectPanic fails the test if fn returns normally.
func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

// TestTensorBasics tests basic tensor creation and access.
func TestTensorBasics(t *testing.T) {
	tensor := NewTensor(2, 3)

	if diff := cmp.Diff([]int{2, 3}, tensor.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if tensor.Size() != 6 {
		t.Errorf("expected size 6, got %d", tensor.Size())
	}
	if tensor.Dim(-1) != 3 {
		t.Errorf("expected Dim(-1)=3, got %d", tensor.Dim(-1))
	}

	tensor.Set(1.5, 0, 0)
	tensor.Set(2.5, 1, 2)

	if v := tensor.At(0, 0); v != 1.5 {
		t.Errorf("expected 1.5, got %f", v)
	}
	if v := tensor.At(1, 2); v != 2.5 {
		t.Errorf("expected 2.5, got %f", v)
	}

	// Shape() must not expose internal state.
	tensor.Shape()[0] = 99
	if tensor.Dim(0) != 2 {
		t.Error("Shape() returned the internal slice")
	}
}

func TestNewTensorInvalidShape(t *testing.T) {
	expectPanic(t, "empty shape", func() { NewTensor() })
	expectPanic(t, "zero dim", func() { NewTensor(2, 0) })
	expectPanic(t, "negative dim", func() { NewTensor(-1) })
}

// TestMatMul tests matrix multiplication.
func TestMatMul(t *testing.T) {
	a := NewTensorFrom([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	b := NewTensorFrom([]float64{1, 2, 3, 4, 5, 6}, 3, 2)

	// C[0,0] = 1*1 + 2*3 + 3*5 = 22
	// C[0,1] = 1*2 + 2*4 + 3*6 = 28
	// C[1,0] = 4*1 + 5*3 + 6*5 = 49
	// C[1,1] = 4*2 + 5*4 + 6*6 = 64
	c := MatMul(a, b)
	if diff := cmp.Diff([]int{2, 2}, c.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{22, 28, 49, 64}, c.Data(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	expectPanic(t, "incompatible", func() { MatMul(a, a) })
}

func TestLinearAnyRank(t *testing.T) {
	x := NewTensorFrom([]float64{1, 2, 3, 4}, 2, 1, 2)
	w := NewTensorFrom([]float64{1, 0, 1, 0, 1, 1}, 2, 3)
	bias := NewTensorFrom([]float64{10, 20, 30}, 3)

	out := Linear(x, w, bias)
	if diff := cmp.Diff([]int{2, 1, 3}, out.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	want := []float64{11, 22, 33, 13, 24, 37}
	if diff := cmp.Diff(want, out.Data(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}

	noBias := Linear(x, w, nil)
	if noBias.At(0, 0, 2) != 3 {
		t.Errorf("expected 3 without bias, got %f", noBias.At(0, 0, 2))
	}
}

func TestReshapeSharesData(t *testing.T) {
	a := NewTensor(2, 3)
	r := a.Reshape(3, 2)
	r.Set(7, 2, 1)
	if a.At(1, 2) != 7 {
		t.Error("Reshape should share storage")
	}
	expectPanic(t, "size change", func() { a.Reshape(4, 2) })
}

func TestIndexView(t *testing.T) {
	a := NewTensorFrom([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	row := a.Index(1)
	if diff := cmp.Diff([]int{2}, row.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{3, 4}, row.Data()); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
	expectPanic(t, "out of range", func() { a.Index(3) })
	expectPanic(t, "rank 1", func() { row.Index(0) })
}

func TestConcatAndStack(t *testing.T) {
	a := NewTensorFrom([]float64{1, 2}, 1, 2)
	b := NewTensorFrom([]float64{3, 4, 5, 6}, 2, 2)

	c := Concat(a, b)
	if diff := cmp.Diff([]int{3, 2}, c.Shape()); diff != "" {
		t.Errorf("concat shape mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, c.Data()); diff != "" {
		t.Errorf("concat values mismatch (-want +got):\n%s", diff)
	}

	s := Stack([]*Tensor{b, b.Clone()})
	if diff := cmp.Diff([]int{2, 2, 2}, s.Shape()); diff != "" {
		t.Errorf("stack shape mismatch (-want +got):\n%s", diff)
	}
	expectPanic(t, "stack mismatched", func() { Stack([]*Tensor{a, b}) })
}

func TestAddBroadcast(t *testing.T) {
	a := NewTensor(2, 3, 2)
	b := NewTensorFrom([]float64{1, 2, 3, 4, 5, 6}, 3, 2)
	out := AddBroadcast(a, b)
	if out.At(1, 2, 1) != 6 || out.At(0, 0, 0) != 1 {
		t.Errorf("unexpected broadcast result %v", out.Data())
	}
	expectPanic(t, "not a suffix", func() { AddBroadcast(a, NewTensor(2, 3)) })
}

func TestSoftmax(t *testing.T) {
	x := NewTensorFrom([]float64{1, 2, 3, 1000, 1000, 1000}, 2, 3)
	out := Softmax(x)

	for r := 0; r < 2; r++ {
		sum := 0.0
		for c := 0; c < 3; c++ {
			v := out.At(r, c)
			if math.IsNaN(v) || v < 0 {
				t.Fatalf("invalid probability %f at (%d,%d)", v, r, c)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-12 {
			t.Errorf("row %d sums to %f", r, sum)
		}
	}
	if out.At(0, 2) <= out.At(0, 1) {
		t.Error("softmax should preserve ordering")
	}
	if math.Abs(out.At(1, 0)-1.0/3) > 1e-12 {
		t.Errorf("equal large inputs should give uniform weights, got %f", out.At(1, 0))
	}
}

func TestActivations(t *testing.T) {
	x := NewTensorFrom([]float64{-2, 0, 2}, 3)

	if diff := cmp.Diff([]float64{0, 0, 2}, ReLU(x).Data()); diff != "" {
		t.Errorf("ReLU mismatch (-want +got):\n%s", diff)
	}

	g := GELU(x)
	if g.At(1) != 0 {
		t.Errorf("GELU(0) should be 0, got %f", g.At(1))
	}
	// GELU(2) = 2 * Φ(2) ≈ 1.9545
	if math.Abs(g.At(2)-1.954499736) > 1e-6 {
		t.Errorf("GELU(2) ≈ 1.9545, got %f", g.At(2))
	}
}

func TestRandNDeterministic(t *testing.T) {
	a := NewTensorRandN(rand.New(rand.NewSource(1)), 0.5, 4, 4)
	b := NewTensorRandN(rand.New(rand.NewSource(1)), 0.5, 4, 4)
	if diff := cmp.Diff(a.Data(), b.Data()); diff != "" {
		t.Errorf("same seed should give same values (-a +b):\n%s", diff)
	}
}
