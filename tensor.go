package main

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// The forward-only tensor layer every PROSE module is written against.
//
// A Tensor is a flat float64 slice plus a shape, stored row-major. Every
// spatiotemporal field, time stamp and latent sequence in the model is one
// of these:
//
//   field (2D)  (bs, t, x_num, x_num, data_dim)
//   field (1D)  (bs, t, x_num, data_dim)
//   times       (bs, t, 1)
//   latent      (bs, seq, dim)
//
// There is no autograd: weights are read-only after construction, so a
// built model can serve concurrent forward passes.
//
// Matrix products go through gonum's mat.Dense, wrapping the tensor's own
// backing slice so no copy is made on the way in or out.
//
// Shape misuse inside the model is a programmer error and panics with a
// "tensor:" prefix. User-facing entry points (Forward, Encode) validate
// shapes first and return ErrShapeMismatch instead.
// ===========================================================================

// Tensor represents a multi-dimensional array of float64 values.
// It stores data in row-major (C-contiguous) order.
type Tensor struct {
	data  []float64 // Flat array storing all elements
	shape []int     // Dimensions [batch, seq_len, features, etc.]
}

// NewTensor creates a tensor with the given shape, initialized to zero.
// Panics if shape is invalid (empty or contains non-positive dimensions).
func NewTensor(shape ...int) *Tensor {
	size := shapeSize(shape)

	shapeCopy := make([]int, len(shape))
	copy(shapeCopy, shape)

	return &Tensor{
		data:  make([]float64, size),
		shape: shapeCopy,
	}
}

// NewTensorFrom creates a tensor holding a copy of data.
func NewTensorFrom(data []float64, shape ...int) *Tensor {
	t := NewTensor(shape...)
	if len(data) != len(t.data) {
		panic(fmt.Sprintf("tensor: %d values cannot fill shape %v", len(data), shape))
	}
	copy(t.data, data)
	return t
}

// NewTensorRandN creates a tensor with values drawn from N(0, std²).
// The caller owns rng, which keeps model construction reproducible.
func NewTensorRandN(rng *rand.Rand, std float64, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.data {
		t.data[i] = rng.NormFloat64() * std
	}
	return t
}

// NewTensorFilled creates a tensor with every element set to v.
func NewTensorFilled(v float64, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

func shapeSize(shape []int) int {
	if len(shape) == 0 {
		panic("tensor: shape cannot be empty")
	}
	size := 1
	for i, dim := range shape {
		if dim <= 0 {
			panic(fmt.Sprintf("tensor: shape[%d] must be positive, got %d", i, dim))
		}
		size *= dim
	}
	return size
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	shape := make([]int, len(t.shape))
	copy(shape, t.shape)
	return shape
}

// Dims returns the number of dimensions (rank) of the tensor.
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Dim returns the size of axis i. Negative i counts from the end.
func (t *Tensor) Dim(i int) int {
	if i < 0 {
		i += len(t.shape)
	}
	return t.shape[i]
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return len(t.data)
}

// Data returns the backing slice. Writes through it are visible to the
// tensor and to every view sharing its storage.
func (t *Tensor) Data() []float64 {
	return t.data
}

// At returns the element at the given indices.
// Panics if indices are invalid - this is a programmer error.
func (t *Tensor) At(indices ...int) float64 {
	return t.data[t.flatIndex(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are invalid.
func (t *Tensor) Set(value float64, indices ...int) {
	t.data[t.flatIndex(indices)] = value
}

// flatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) flatIndex(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("tensor: expected %d indices, got %d", len(t.shape), len(indices)))
	}

	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.shape[i] {
			panic(fmt.Sprintf("tensor: index[%d]=%d out of bounds [0,%d)", i, indices[i], t.shape[i]))
		}
		idx += indices[i] * stride
		stride *= t.shape[i]
	}

	return idx
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	return NewTensorFrom(t.data, t.shape...)
}

// Reshape returns a new view of the tensor with a different shape.
// The total number of elements must remain the same.
// The returned tensor shares the underlying data.
func (t *Tensor) Reshape(newShape ...int) *Tensor {
	if newSize := shapeSize(newShape); newSize != len(t.data) {
		panic(fmt.Sprintf("tensor: cannot reshape size %d to %v (size %d)", len(t.data), newShape, newSize))
	}

	shapeCopy := make([]int, len(newShape))
	copy(shapeCopy, newShape)

	return &Tensor{data: t.data, shape: shapeCopy}
}

// Index returns a view of element i along the leading axis.
// (bs, seq, dim).Index(b) is (seq, dim) and shares storage.
func (t *Tensor) Index(i int) *Tensor {
	if len(t.shape) < 2 {
		panic("tensor: Index requires rank >= 2")
	}
	if i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("tensor: index %d out of bounds [0,%d)", i, t.shape[0]))
	}
	inner := len(t.data) / t.shape[0]
	return &Tensor{
		data:  t.data[i*inner : (i+1)*inner],
		shape: append([]int(nil), t.shape[1:]...),
	}
}

// String returns a string representation of the tensor for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, size=%d)", t.shape, len(t.data))
}

// ===========================================================================
// OPERATIONS
// ===========================================================================

// Add performs element-wise addition: out = a + b.
// Panics if shapes don't match.
func Add(a, b *Tensor) *Tensor {
	if !shapeEqual(a.shape, b.shape) {
		panic(fmt.Sprintf("tensor: cannot add shapes %v and %v", a.shape, b.shape))
	}

	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i]
	}
	return out
}

// AddBroadcast adds b to every trailing block of a. b's shape must be a
// suffix of a's shape, e.g. (bs, t, p, dim) + (p, dim).
func AddBroadcast(a, b *Tensor) *Tensor {
	if len(b.shape) > len(a.shape) || !shapeEqual(a.shape[len(a.shape)-len(b.shape):], b.shape) {
		panic(fmt.Sprintf("tensor: cannot broadcast %v onto %v", b.shape, a.shape))
	}

	out := NewTensor(a.shape...)
	n := len(b.data)
	for i := range out.data {
		out.data[i] = a.data[i] + b.data[i%n]
	}
	return out
}

// Scale multiplies all elements by a scalar: out = a * scalar.
func Scale(a *Tensor, scalar float64) *Tensor {
	out := NewTensor(a.shape...)
	for i := range out.data {
		out.data[i] = a.data[i] * scalar
	}
	return out
}

// MatMul performs matrix multiplication: C = A @ B.
// A must be (M, K), B must be (K, N), result is (M, N).
func MatMul(a, b *Tensor) *Tensor {
	if len(a.shape) != 2 || len(b.shape) != 2 {
		panic("tensor: MatMul requires 2D tensors")
	}

	m, k := a.shape[0], a.shape[1]
	if b.shape[0] != k {
		panic(fmt.Sprintf("tensor: incompatible dimensions for matmul %v @ %v", a.shape, b.shape))
	}
	n := b.shape[1]

	out := NewTensor(m, n)
	dst := mat.NewDense(m, n, out.data)
	dst.Mul(mat.NewDense(m, k, a.data), mat.NewDense(k, n, b.data))
	return out
}

// Linear applies x @ w + bias over the last axis of x.
// x: (..., in), w: (in, out), bias: (out) or nil. Result: (..., out).
func Linear(x, w, bias *Tensor) *Tensor {
	in, outDim := w.shape[0], w.shape[1]
	if x.shape[len(x.shape)-1] != in {
		panic(fmt.Sprintf("tensor: linear expects last dim %d, got shape %v", in, x.shape))
	}

	rows := len(x.data) / in
	out := MatMul(x.Reshape(rows, in), w)
	if bias != nil {
		for r := 0; r < rows; r++ {
			row := out.data[r*outDim : (r+1)*outDim]
			for j := range row {
				row[j] += bias.data[j]
			}
		}
	}

	shape := append([]int(nil), x.shape...)
	shape[len(shape)-1] = outDim
	return out.Reshape(shape...)
}

// Transpose returns the transpose of a 2D matrix: A^T.
// A: (M, N) -> A^T: (N, M).
func Transpose(a *Tensor) *Tensor {
	if len(a.shape) != 2 {
		panic("tensor: Transpose requires 2D tensor")
	}

	m, n := a.shape[0], a.shape[1]
	out := NewTensor(n, m)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			out.data[j*m+i] = a.data[i*n+j]
		}
	}
	return out
}

// Concat joins tensors along the leading axis. Trailing dims must agree.
func Concat(ts ...*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("tensor: Concat needs at least one tensor")
	}

	trailing := ts[0].shape[1:]
	lead := 0
	for _, t := range ts {
		if !shapeEqual(t.shape[1:], trailing) {
			panic(fmt.Sprintf("tensor: cannot concat shapes %v and %v", ts[0].shape, t.shape))
		}
		lead += t.shape[0]
	}

	shape := append([]int{lead}, trailing...)
	out := NewTensor(shape...)
	offset := 0
	for _, t := range ts {
		copy(out.data[offset:], t.data)
		offset += len(t.data)
	}
	return out
}

// Stack joins equally shaped tensors along a new leading axis.
func Stack(ts []*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("tensor: Stack needs at least one tensor")
	}
	for _, t := range ts[1:] {
		if !shapeEqual(t.shape, ts[0].shape) {
			panic(fmt.Sprintf("tensor: cannot stack shapes %v and %v", ts[0].shape, t.shape))
		}
	}
	inner := ts[0].shape
	return Concat(ts...).Reshape(append([]int{len(ts)}, inner...)...)
}

// ===========================================================================
// ACTIVATION FUNCTIONS
// ===========================================================================

// ReLU applies Rectified Linear Unit: f(x) = max(0, x).
func ReLU(x *Tensor) *Tensor {
	out := NewTensor(x.shape...)
	for i, v := range x.data {
		out.data[i] = math.Max(0, v)
	}
	return out
}

// GELU applies the exact Gaussian Error Linear Unit:
//
//	GELU(x) = 0.5 * x * (1 + erf(x / √2))
func GELU(x *Tensor) *Tensor {
	out := NewTensor(x.shape...)
	for i, v := range x.data {
		out.data[i] = 0.5 * v * (1 + math.Erf(v/math.Sqrt2))
	}
	return out
}

// Softmax applies softmax to each row of a 2D tensor.
//
// Numerically stable version: subtract max before exp to prevent overflow.
func Softmax(x *Tensor) *Tensor {
	if len(x.shape) != 2 {
		panic("tensor: Softmax currently requires 2D tensor")
	}

	rows, cols := x.shape[0], x.shape[1]
	out := NewTensor(rows, cols)
	for r := 0; r < rows; r++ {
		softmaxRow(out.data[r*cols:(r+1)*cols], x.data[r*cols:(r+1)*cols])
	}
	return out
}

func softmaxRow(dst, src []float64) {
	maxVal := src[0]
	for _, v := range src[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := 0.0
	for i, v := range src {
		e := math.Exp(v - maxVal)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}

// ===========================================================================
// HELPERS
// ===========================================================================

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
