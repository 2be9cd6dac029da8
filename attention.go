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
// Multi-head attention with separate query and key/value streams.
//
// One type covers all three uses in PROSE:
//
//   self-attention   query == memory       (data/symbol encoders, fusion)
//   cross-attention  query = decoder queries, memory = fused context
//   masked           keyPadding marks memory rows to ignore (symbol pads)
//
// Mechanism, per head h:
//   1. Q = query @ Wq, K = memory @ Wk, V = memory @ Wv (all with bias)
//   2. scores = Q_h · K_h^T / √headDim, plus -1e9 on padded keys
//   3. out_h = softmax(scores) · V_h
// then concatenate heads and project with Wo.
//
// A row whose keys are all padded still gets a finite softmax: the -1e9
// shift is shared by every key, so the weights fall back to the unmasked
// scores instead of producing NaN.
// ===========================================================================

const maskedScore = -1e9

// MultiHeadAttention implements scaled dot-product attention over
// numHeads parallel subspaces of width dim/numHeads.
type MultiHeadAttention struct {
	dim      int
	numHeads int
	headDim  int

	wq, wk, wv, wo *LinearLayer
}

// NewMultiHeadAttention creates an attention layer.
func NewMultiHeadAttention(rng *rand.Rand, dim, numHeads int) *MultiHeadAttention {
	if numHeads <= 0 || dim%numHeads != 0 {
		panic(fmt.Sprintf("attention: dim (%d) must be divisible by numHeads (%d)", dim, numHeads))
	}

	return &MultiHeadAttention{
		dim:      dim,
		numHeads: numHeads,
		headDim:  dim / numHeads,
		wq:       NewLinearLayer(rng, dim, dim),
		wk:       NewLinearLayer(rng, dim, dim),
		wv:       NewLinearLayer(rng, dim, dim),
		wo:       NewLinearLayer(rng, dim, dim),
	}
}

// Forward attends from query (Lq, dim) into memory (Lk, dim).
// keyPadding, when non-nil, has length Lk; true entries are ignored.
// Returns (Lq, dim).
func (a *MultiHeadAttention) Forward(query, memory *Tensor, keyPadding []bool) *Tensor {
	if query.Dims() != 2 || memory.Dims() != 2 {
		panic("attention: query and memory must be 2D (seqLen, dim)")
	}
	lq, lk := query.shape[0], memory.shape[0]
	if keyPadding != nil && len(keyPadding) != lk {
		panic(fmt.Sprintf("attention: key padding length %d != memory length %d", len(keyPadding), lk))
	}

	q := a.wq.Forward(query)
	k := a.wk.Forward(memory)
	v := a.wv.Forward(memory)

	scale := 1.0 / math.Sqrt(float64(a.headDim))
	concat := NewTensor(lq, a.dim)

	for h := 0; h < a.numHeads; h++ {
		qh := headColumns(q, h, a.headDim)
		kh := headColumns(k, h, a.headDim)
		vh := headColumns(v, h, a.headDim)

		scores := Scale(MatMul(qh, Transpose(kh)), scale) // (Lq, Lk)
		if keyPadding != nil {
			for i := 0; i < lq; i++ {
				row := scores.data[i*lk : (i+1)*lk]
				for j, padded := range keyPadding {
					if padded {
						row[j] += maskedScore
					}
				}
			}
		}

		ctx := MatMul(Softmax(scores), vh) // (Lq, headDim)
		for i := 0; i < lq; i++ {
			copy(concat.data[i*a.dim+h*a.headDim:i*a.dim+(h+1)*a.headDim], ctx.data[i*a.headDim:(i+1)*a.headDim])
		}
	}

	return a.wo.Forward(concat)
}

// NumParams counts the four projection weights and biases.
func (a *MultiHeadAttention) NumParams() int {
	return a.wq.NumParams() + a.wk.NumParams() + a.wv.NumParams() + a.wo.NumParams()
}

// headColumns copies columns [h*headDim, (h+1)*headDim) of a (L, dim) tensor.
func headColumns(t *Tensor, h, headDim int) *Tensor {
	rows, dim := t.shape[0], t.shape[1]
	out := NewTensor(rows, headDim)
	for i := 0; i < rows; i++ {
		copy(out.data[i*headDim:(i+1)*headDim], t.data[i*dim+h*headDim:i*dim+(h+1)*headDim])
	}
	return out
}
