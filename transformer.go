package main

import (
	"math"
	"math/rand"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// The self-attention stacks of the PROSE encoder side:
//
//   DataEncoder    refines the embedded field sequence (no mask)
//   SymbolEncoder  token + position embeddings, then a masked stack over
//                  the equation tokens
//   Fusion         [data; symbols] with type embeddings, one joint stack,
//                  merged padding mask
//
// All three share EncoderLayer. Two layouts are supported:
//
//   pre-norm  (norm_first: true)    x = x + Attn(Norm1(x))
//                                   x = x + FFN(Norm2(x))
//                                   ... then a final Norm after the stack
//
//   post-norm (norm_first: false)   x = Norm1(x + Attn(x))
//                                   x = Norm2(x + FFN(x))
//
// Every Forward here works on one sample: (seqLen, dim) in, (seqLen, dim)
// out. The model wrappers fan a batch out over the TensorPool.
//
// RECOMMENDED READING:
// - "Attention Is All You Need" by Vaswani et al. (2017)
//   https://arxiv.org/abs/1706.03762
// - "On Layer Normalization in the Transformer Architecture" by Xiong et al. (2020)
//   https://arxiv.org/abs/2002.04745 (pre-norm vs post-norm)
// ===========================================================================

// EncoderLayer is one self-attention + feed-forward block.
type EncoderLayer struct {
	attn      *MultiHeadAttention
	ff        *FeedForward
	norm1     Norm
	norm2     Norm
	normFirst bool
}

// NewEncoderLayer creates an encoder layer from cfg.
func NewEncoderLayer(rng *rand.Rand, cfg EncoderConfig) *EncoderLayer {
	return &EncoderLayer{
		attn:      NewMultiHeadAttention(rng, cfg.Dim, cfg.NumHeads),
		ff:        NewFeedForward(rng, cfg.Dim, cfg.FFNDim, cfg.Activation),
		norm1:     NewNorm(cfg.Norm, cfg.Dim),
		norm2:     NewNorm(cfg.Norm, cfg.Dim),
		normFirst: cfg.NormFirst,
	}
}

// Forward applies the layer. padding marks keys to ignore and may be nil.
func (l *EncoderLayer) Forward(x *Tensor, padding []bool) *Tensor {
	if l.normFirst {
		normed := l.norm1.Forward(x)
		x = Add(x, l.attn.Forward(normed, normed, padding))
		return Add(x, l.ff.Forward(l.norm2.Forward(x)))
	}

	x = l.norm1.Forward(Add(x, l.attn.Forward(x, x, padding)))
	return l.norm2.Forward(Add(x, l.ff.Forward(x)))
}

// NumParams returns the layer's trainable parameter count.
func (l *EncoderLayer) NumParams() int {
	return l.attn.NumParams() + l.ff.NumParams() + l.norm1.NumParams() + l.norm2.NumParams()
}

// TransformerEncoder stacks EncoderLayers. In pre-norm mode a final norm
// follows the last layer; an empty stack is the identity.
type TransformerEncoder struct {
	layers []*EncoderLayer
	final  Norm
}

// NewTransformerEncoder creates cfg.NumLayers layers.
func NewTransformerEncoder(rng *rand.Rand, cfg EncoderConfig) *TransformerEncoder {
	enc := &TransformerEncoder{layers: make([]*EncoderLayer, cfg.NumLayers)}
	for i := range enc.layers {
		enc.layers[i] = NewEncoderLayer(rng, cfg)
	}
	if cfg.NormFirst && cfg.NumLayers > 0 {
		enc.final = NewNorm(cfg.Norm, cfg.Dim)
	}
	return enc
}

// Forward runs every layer with the same key padding mask.
func (e *TransformerEncoder) Forward(x *Tensor, padding []bool) *Tensor {
	for _, layer := range e.layers {
		x = layer.Forward(x, padding)
	}
	if e.final != nil {
		x = e.final.Forward(x)
	}
	return x
}

// NumParams sums every layer plus the final norm, if any.
func (e *TransformerEncoder) NumParams() int {
	n := 0
	for _, layer := range e.layers {
		n += layer.NumParams()
	}
	if e.final != nil {
		n += e.final.NumParams()
	}
	return n
}

// DataEncoder refines the embedded data sequence.
type DataEncoder struct {
	encoder *TransformerEncoder
}

// NewDataEncoder creates the data encoder.
func NewDataEncoder(rng *rand.Rand, cfg EncoderConfig) *DataEncoder {
	return &DataEncoder{encoder: NewTransformerEncoder(rng, cfg)}
}

// Forward maps (dataLen, dim) to (dataLen, dim).
func (d *DataEncoder) Forward(x *Tensor) *Tensor {
	return d.encoder.Forward(x, nil)
}

// NumParams returns the trainable parameter count.
func (d *DataEncoder) NumParams() int {
	return d.encoder.NumParams()
}

// SymbolEncoder encodes a token sequence describing the equation.
type SymbolEncoder struct {
	dim       int
	maxLen    int
	scaleEmb  bool
	learnable bool

	words     *Embedding
	positions *Tensor // (maxLen, dim)
	encoder   *TransformerEncoder
}

// NewSymbolEncoder creates a symbol encoder over a vocabulary of vocabSize words.
func NewSymbolEncoder(rng *rand.Rand, cfg SymbolEncoderConfig, vocabSize int) *SymbolEncoder {
	s := &SymbolEncoder{
		dim:       cfg.Dim,
		maxLen:    cfg.MaxLen,
		scaleEmb:  cfg.ScaleEmb,
		learnable: cfg.Positional == PositionalLearnable,
		words:     NewEmbedding(rng, vocabSize, cfg.Dim),
	}

	if s.learnable {
		s.positions = NewTensorRandN(rng, 0.02, cfg.MaxLen, cfg.Dim)
	} else {
		s.positions = SinusoidalPositions(cfg.MaxLen, cfg.Dim)
	}

	s.encoder = NewTransformerEncoder(rng, cfg.EncoderConfig)
	return s
}

// MaxLen returns the longest token sequence the encoder accepts.
func (s *SymbolEncoder) MaxLen() int {
	return s.maxLen
}

// Forward maps symbolLen token ids to (symbolLen, dim).
// Callers must keep len(tokens) <= MaxLen().
func (s *SymbolEncoder) Forward(tokens []int, padding []bool) *Tensor {
	x := s.words.Lookup(tokens)
	if s.scaleEmb {
		x = Scale(x, math.Sqrt(float64(s.dim)))
	}

	n := len(tokens)
	x = Add(x, NewTensorFrom(s.positions.data[:n*s.dim], n, s.dim))

	return s.encoder.Forward(x, padding)
}

// NumParams counts position embeddings only when they are learnable.
func (s *SymbolEncoder) NumParams() int {
	n := s.words.NumParams() + s.encoder.NumParams()
	if s.learnable {
		n += s.positions.Size()
	}
	return n
}

// SinusoidalPositions returns the fixed (maxLen, dim) table
//
//	PE[pos, 2i]   = sin(pos / 10000^(2i/dim))
//	PE[pos, 2i+1] = cos(pos / 10000^(2i/dim))
func SinusoidalPositions(maxLen, dim int) *Tensor {
	pe := NewTensor(maxLen, dim)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dim; i += 2 {
			angle := float64(pos) / math.Pow(10000, float64(i)/float64(dim))
			pe.data[pos*dim+i] = math.Sin(angle)
			if i+1 < dim {
				pe.data[pos*dim+i+1] = math.Cos(angle)
			}
		}
	}
	return pe
}

// Fusion merges the data and symbol streams into one sequence.
type Fusion struct {
	dim     int
	typeEmb *Embedding // (2, dim): row 0 data, row 1 symbols; nil when disabled
	encoder *TransformerEncoder
}

// NewFusion creates the fusion block.
func NewFusion(rng *rand.Rand, cfg FusionConfig) *Fusion {
	f := &Fusion{
		dim:     cfg.Dim,
		encoder: NewTransformerEncoder(rng, cfg.EncoderConfig),
	}
	if cfg.TypeEmbeddings {
		f.typeEmb = NewEmbedding(rng, 2, cfg.Dim)
	}
	return f
}

// Forward concatenates x0 (len0, dim) and x1 (len1, dim), runs the joint
// stack and returns (len0+len1, dim) plus the merged mask (nil when
// neither input is padded).
func (f *Fusion) Forward(x0, x1 *Tensor, mask0, mask1 []bool) (*Tensor, []bool) {
	if f.typeEmb != nil {
		x0 = AddBroadcast(x0, f.typeEmb.Lookup([]int{0}).Reshape(f.dim))
		x1 = AddBroadcast(x1, f.typeEmb.Lookup([]int{1}).Reshape(f.dim))
	}

	fusedMask := ConcatMasks(mask0, x0.shape[0], mask1, x1.shape[0])
	fused := f.encoder.Forward(Concat(x0, x1), fusedMask)
	return fused, fusedMask
}

// NumParams returns the stack plus type embedding parameters.
func (f *Fusion) NumParams() int {
	n := f.encoder.NumParams()
	if f.typeEmb != nil {
		n += f.typeEmb.NumParams()
	}
	return n
}
