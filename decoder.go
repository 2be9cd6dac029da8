package main

import "math/rand"

// ===========================================================================
// Data/Operator Decoder (cross-attention from output-time queries)
// ===========================================================================
//
// The decoder never sees the target field. Its queries are built purely
// from the requested output times and the patch layout:
//
//   query[t, p] = time_proj(output_time[t]) + patch_position[p]
//
// giving output_len * patch_count query vectors. Each layer then lets the
// queries attend into the fused context (keys/values from the encoder
// side), optionally after attending to each other:
//
//   [self-attn over queries]  (self_attn: true only)
//   cross-attn into context   (context padding mask applied)
//   feed-forward
//
// Because queries depend only on times, any set of output times can be
// asked for in one pass: the decoder is an operator, not an
// autoregressive generator.

// OperatorDecoderLayer is one cross-attention decoder block.
type OperatorDecoderLayer struct {
	selfAttn  *MultiHeadAttention // nil when query self-attention is off
	crossAttn *MultiHeadAttention
	ff        *FeedForward

	normSelf  Norm
	normCross Norm
	normFF    Norm
	normFirst bool
}

// NewOperatorDecoderLayer creates a decoder layer from cfg.
func NewOperatorDecoderLayer(rng *rand.Rand, cfg DecoderConfig) *OperatorDecoderLayer {
	l := &OperatorDecoderLayer{
		crossAttn: NewMultiHeadAttention(rng, cfg.Dim, cfg.NumHeads),
		ff:        NewFeedForward(rng, cfg.Dim, cfg.FFNDim, cfg.Activation),
		normCross: NewNorm(cfg.Norm, cfg.Dim),
		normFF:    NewNorm(cfg.Norm, cfg.Dim),
		normFirst: cfg.NormFirst,
	}
	if cfg.SelfAttn {
		l.selfAttn = NewMultiHeadAttention(rng, cfg.Dim, cfg.NumHeads)
		l.normSelf = NewNorm(cfg.Norm, cfg.Dim)
	}
	return l
}

// Forward updates queries (queryLen, dim) against memory (memLen, dim).
func (l *OperatorDecoderLayer) Forward(x, memory *Tensor, memoryPadding []bool) *Tensor {
	if l.normFirst {
		if l.selfAttn != nil {
			normed := l.normSelf.Forward(x)
			x = Add(x, l.selfAttn.Forward(normed, normed, nil))
		}
		x = Add(x, l.crossAttn.Forward(l.normCross.Forward(x), memory, memoryPadding))
		return Add(x, l.ff.Forward(l.normFF.Forward(x)))
	}

	if l.selfAttn != nil {
		x = l.normSelf.Forward(Add(x, l.selfAttn.Forward(x, x, nil)))
	}
	x = l.normCross.Forward(Add(x, l.crossAttn.Forward(x, memory, memoryPadding)))
	return l.normFF.Forward(Add(x, l.ff.Forward(x)))
}

// NumParams returns the layer's trainable parameter count.
func (l *OperatorDecoderLayer) NumParams() int {
	n := l.crossAttn.NumParams() + l.ff.NumParams() + l.normCross.NumParams() + l.normFF.NumParams()
	if l.selfAttn != nil {
		n += l.selfAttn.NumParams() + l.normSelf.NumParams()
	}
	return n
}

// DataOperatorDecoder turns output times into predicted latent patches.
type DataOperatorDecoder struct {
	dim        int
	patchCount int

	timeProj       *MLP    // 1 -> dim -> dim
	patchPositions *Tensor // (patchCount, dim)

	layers []*OperatorDecoderLayer
	final  Norm
}

// NewDataOperatorDecoder creates a decoder producing patchCount queries
// per output time.
func NewDataOperatorDecoder(rng *rand.Rand, cfg DecoderConfig, patchCount int, act Activation) *DataOperatorDecoder {
	d := &DataOperatorDecoder{
		dim:            cfg.Dim,
		patchCount:     patchCount,
		timeProj:       NewMLP(rng, 1, cfg.Dim, cfg.Dim, act),
		patchPositions: NewTensorRandN(rng, 0.02, patchCount, cfg.Dim),
		layers:         make([]*OperatorDecoderLayer, cfg.NumLayers),
	}
	for i := range d.layers {
		d.layers[i] = NewOperatorDecoderLayer(rng, cfg)
	}
	if cfg.NormFirst && cfg.NumLayers > 0 {
		d.final = NewNorm(cfg.Norm, cfg.Dim)
	}
	return d
}

// QueryEmbedding maps output times (outputLen, 1) to queries
// (outputLen*patchCount, dim), time-major.
func (d *DataOperatorDecoder) QueryEmbedding(outputTimes *Tensor) *Tensor {
	outputLen := outputTimes.shape[0]
	timeEmb := d.timeProj.Forward(outputTimes) // (outputLen, dim)

	query := NewTensor(outputLen*d.patchCount, d.dim)
	for t := 0; t < outputLen; t++ {
		tRow := timeEmb.data[t*d.dim : (t+1)*d.dim]
		for p := 0; p < d.patchCount; p++ {
			pRow := d.patchPositions.data[p*d.dim : (p+1)*d.dim]
			dst := query.data[(t*d.patchCount+p)*d.dim:]
			for j := 0; j < d.dim; j++ {
				dst[j] = tRow[j] + pRow[j]
			}
		}
	}
	return query
}

// Forward decodes queries (queryLen, dim) against the fused context
// src (srcLen, dim). srcPadding may be nil.
func (d *DataOperatorDecoder) Forward(src, queryEmb *Tensor, srcPadding []bool) *Tensor {
	x := queryEmb
	for _, layer := range d.layers {
		x = layer.Forward(x, src, srcPadding)
	}
	if d.final != nil {
		x = d.final.Forward(x)
	}
	return x
}

// NumParams includes the query embeddings, every layer and the final norm.
func (d *DataOperatorDecoder) NumParams() int {
	n := d.timeProj.NumParams() + d.patchPositions.Size()
	for _, layer := range d.layers {
		n += layer.NumParams()
	}
	if d.final != nil {
		n += d.final.NumParams()
	}
	return n
}
