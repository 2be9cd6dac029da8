package main

import (
	"fmt"
	"math"
	"math/rand"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// Parameterised building blocks shared by the embedder, encoders, fusion
// and decoder:
//
//   Linear       x @ W + b over the last axis
//   MLP          Linear -> activation -> Linear (time and patch projections)
//   FeedForward  the transformer position-wise block
//   LayerNorm    y = γ * (x - μ) / σ + β
//   RMSNorm      y = γ * x / RMS(x)
//   Embedding    (vocab, dim) lookup table
//
// All layers accept any-rank input and act on the last axis, so the same
// Linear serves (bs, t, 1) time stamps and (bs, seq, dim) latents.
//
// Each layer reports NumParams so the model summary can count trainable
// parameters per module.
// ===========================================================================

// Activation selects the nonlinearity used inside MLPs and feed-forward blocks.
type Activation string

const (
	ActivationGELU Activation = "gelu"
	ActivationReLU Activation = "relu"
)

// Apply runs the activation element-wise.
func (a Activation) Apply(x *Tensor) *Tensor {
	switch a {
	case ActivationReLU:
		return ReLU(x)
	case ActivationGELU:
		return GELU(x)
	default:
		panic(fmt.Sprintf("layers: unknown activation %q", string(a)))
	}
}

// Valid reports whether a names a supported activation.
func (a Activation) Valid() bool {
	return a == ActivationGELU || a == ActivationReLU
}

// LinearLayer is a fully connected layer with weight (in, out) and bias (out).
type LinearLayer struct {
	in, out int
	weight  *Tensor
	bias    *Tensor
}

// NewLinearLayer creates a linear layer. Weights are N(0, 1/in) and the
// bias starts at zero.
func NewLinearLayer(rng *rand.Rand, in, out int) *LinearLayer {
	return &LinearLayer{
		in:     in,
		out:    out,
		weight: NewTensorRandN(rng, 1/math.Sqrt(float64(in)), in, out),
		bias:   NewTensor(out),
	}
}

// Forward applies the layer to the last axis of x.
func (l *LinearLayer) Forward(x *Tensor) *Tensor {
	return Linear(x, l.weight, l.bias)
}

// NumParams returns in*out + out.
func (l *LinearLayer) NumParams() int {
	return l.weight.Size() + l.bias.Size()
}

// MLP is a two-layer perceptron: fc2(act(fc1(x))).
type MLP struct {
	fc1, fc2 *LinearLayer
	act      Activation
}

// NewMLP creates in -> hidden -> out.
func NewMLP(rng *rand.Rand, in, hidden, out int, act Activation) *MLP {
	return &MLP{
		fc1: NewLinearLayer(rng, in, hidden),
		fc2: NewLinearLayer(rng, hidden, out),
		act: act,
	}
}

// Forward applies the MLP to the last axis of x.
func (m *MLP) Forward(x *Tensor) *Tensor {
	return m.fc2.Forward(m.act.Apply(m.fc1.Forward(x)))
}

// NumParams returns the parameter count of both layers.
func (m *MLP) NumParams() int {
	return m.fc1.NumParams() + m.fc2.NumParams()
}

// FeedForward implements the position-wise feed-forward network:
//
//	FFN(x) = act(x @ W1 + b1) @ W2 + b2
//
// It is an MLP whose output width equals its input width.
type FeedForward struct {
	*MLP
}

// NewFeedForward creates a feed-forward layer.
func NewFeedForward(rng *rand.Rand, dim, hiddenDim int, act Activation) *FeedForward {
	return &FeedForward{MLP: NewMLP(rng, dim, hiddenDim, dim, act)}
}

// Norm normalises the last axis of its input.
type Norm interface {
	Forward(x *Tensor) *Tensor
	NumParams() int
}

// NormKind selects the normalisation used by transformer layers.
type NormKind string

const (
	NormLayer NormKind = "layer"
	NormRMS   NormKind = "rms"
)

// NewNorm builds the normalisation named by kind.
func NewNorm(kind NormKind, dim int) Norm {
	if kind == NormRMS {
		return NewRMSNorm(dim)
	}
	return NewLayerNorm(dim)
}

// LayerNorm implements layer normalization.
//
// PAPER: "Layer Normalization" by Ba, Kiros, Hinton (2016)
// https://arxiv.org/abs/1607.06450
type LayerNorm struct {
	dim   int
	eps   float64
	gamma *Tensor // Scale parameter
	beta  *Tensor // Shift parameter
}

// NewLayerNorm creates a layer normalization layer with gamma=1, beta=0.
func NewLayerNorm(dim int) *LayerNorm {
	return &LayerNorm{
		dim:   dim,
		eps:   1e-5,
		gamma: NewTensorFilled(1, dim),
		beta:  NewTensor(dim),
	}
}

// Forward normalises each position independently.
func (ln *LayerNorm) Forward(x *Tensor) *Tensor {
	features := x.Dim(-1)
	if features != ln.dim {
		panic(fmt.Sprintf("layernorm: expected last dim %d, got shape %v", ln.dim, x.shape))
	}

	out := NewTensor(x.shape...)
	for start := 0; start < len(x.data); start += features {
		row := x.data[start : start+features]

		mean := 0.0
		for _, v := range row {
			mean += v
		}
		mean /= float64(features)

		variance := 0.0
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float64(features)

		std := math.Sqrt(variance + ln.eps)
		dst := out.data[start : start+features]
		for j, v := range row {
			dst[j] = (v-mean)/std*ln.gamma.data[j] + ln.beta.data[j]
		}
	}
	return out
}

// NumParams returns the size of gamma and beta.
func (ln *LayerNorm) NumParams() int {
	return ln.gamma.Size() + ln.beta.Size()
}

// RMSNorm implements root mean square layer normalization.
//
// PAPER: "Root Mean Square Layer Normalization"
// https://arxiv.org/abs/1910.07467
//
// No mean subtraction and no beta: y = γ * x / sqrt(mean(x²) + ε).
type RMSNorm struct {
	dim   int
	eps   float64
	gamma *Tensor
}

// NewRMSNorm creates an RMSNorm layer.
func NewRMSNorm(dim int) *RMSNorm {
	return &RMSNorm{
		dim:   dim,
		eps:   1e-5,
		gamma: NewTensorFilled(1, dim),
	}
}

// Forward applies RMSNorm to each position independently.
func (rms *RMSNorm) Forward(x *Tensor) *Tensor {
	features := x.Dim(-1)
	if features != rms.dim {
		panic(fmt.Sprintf("rmsnorm: expected last dim %d, got shape %v", rms.dim, x.shape))
	}

	out := NewTensor(x.shape...)
	for start := 0; start < len(x.data); start += features {
		row := x.data[start : start+features]

		sumSquares := 0.0
		for _, v := range row {
			sumSquares += v * v
		}
		rmsValue := math.Sqrt(sumSquares/float64(features) + rms.eps)

		dst := out.data[start : start+features]
		for j, v := range row {
			dst[j] = v / rmsValue * rms.gamma.data[j]
		}
	}
	return out
}

// NumParams returns the size of gamma.
func (rms *RMSNorm) NumParams() int {
	return rms.gamma.Size()
}

// Embedding maps integer ids to rows of a (vocab, dim) table.
type Embedding struct {
	vocab, dim int
	weight     *Tensor
}

// NewEmbedding creates an embedding table with N(0, 1/dim) entries.
func NewEmbedding(rng *rand.Rand, vocab, dim int) *Embedding {
	return &Embedding{
		vocab:  vocab,
		dim:    dim,
		weight: NewTensorRandN(rng, 1/math.Sqrt(float64(dim)), vocab, dim),
	}
}

// Lookup returns (len(ids), dim). Ids must lie in [0, vocab).
func (e *Embedding) Lookup(ids []int) *Tensor {
	out := NewTensor(len(ids), e.dim)
	for i, id := range ids {
		if id < 0 || id >= e.vocab {
			panic(fmt.Sprintf("embedding: id %d out of range [0,%d)", id, e.vocab))
		}
		copy(out.data[i*e.dim:(i+1)*e.dim], e.weight.data[id*e.dim:(id+1)*e.dim])
	}
	return out
}

// NumParams returns vocab*dim.
func (e *Embedding) NumParams() int {
	return e.weight.Size()
}
