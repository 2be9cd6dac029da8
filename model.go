package main

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// The end-to-end PROSE wrappers. Both run the same pipeline per sample:
//
//   1. embed     field (t, grid..., c) + times (t, 1) -> (t*P, dim)
//   2. encode    data encoder                         -> (t*P, dim)
//   3. fuse      [symbol encoder + fusion]            -> (t*P + L, dim)
//   4. query     decoder queries from output times    -> (T*P, dim)
//   5. decode    cross-attention into fused context   -> (T*P, dim)
//   6. unembed   inverse embedding                    -> (T, grid..., c)
//
// where P is the patch count per step, L the symbol length and T the
// number of requested output times.
//
// FluidsModel (2D fields) skips step 3: the fused context is the data
// encoding and has no mask. PDE1DModel (1D fields) runs the symbol
// encoder and fusion and also reports every intermediate stream.
//
// Forward selects a mode by name. "generate" is an alias of "fwd", so
// both return identical outputs; anything else is ErrUnknownMode.
// ===========================================================================

// Mode names a forward mode.
type Mode string

const (
	ModeFwd      Mode = "fwd"
	ModeGenerate Mode = "generate"
)

// Inputs is one batch of model inputs.
type Inputs struct {
	Data        *Tensor // (bs, input_len, x_num[, x_num], data_dim)
	InputTimes  *Tensor // (bs, input_len, 1)
	OutputTimes *Tensor // (bs, output_len, 1)

	// Symbol path, used by PDE1DModel only.
	Symbols       [][]int  // (bs, symbol_len) vocabulary ids
	SymbolPadding [][]bool // (bs, symbol_len), true = padded; nil masks nothing
}

// Output holds the prediction and, where produced, intermediate streams.
type Output struct {
	DataOutput *Tensor // (bs, output_len, x_num[, x_num], data_dim)

	DataEmbedded  *Tensor  // (bs, data_len, dim)
	DataEncoded   *Tensor  // (bs, data_len, dim)
	SymbolEncoded *Tensor  // (bs, symbol_len, dim)
	Fused         *Tensor  // (bs, data_len+symbol_len, dim)
	FusedMask     [][]bool // (bs, data_len+symbol_len)
}

// Surrogate is a PROSE model wrapper.
type Surrogate interface {
	Forward(mode Mode, in *Inputs) (*Output, error)
	Summary() string
	NumParams() int
	Close()
}

// NewModel builds the wrapper selected by cfg.Model.Variant. vocab is only
// used by the 1D variant; nil means DefaultVocabulary.
func NewModel(cfg *Config, vocab *Vocabulary, rng *rand.Rand) (Surrogate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model.Variant == VariantFluids {
		return NewFluidsModel(cfg, rng), nil
	}
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return NewPDE1DModel(cfg, vocab, rng), nil
}

// pipeline holds the modules shared by both wrappers.
type pipeline struct {
	cfg         *Config
	embedder    *LinearEmbedder
	dataEncoder *DataEncoder
	dataDecoder *DataOperatorDecoder
	pool        *TensorPool
}

func newPipeline(cfg *Config, embedder *LinearEmbedder, rng *rand.Rand) pipeline {
	return pipeline{
		cfg:         cfg,
		embedder:    embedder,
		dataEncoder: NewDataEncoder(rng, cfg.DataEncoder),
		dataDecoder: NewDataOperatorDecoder(rng, cfg.DataDecoder, embedder.PatchCount(), cfg.Embedder.Activation),
		pool:        cfg.Compute.newPool(),
	}
}

// Close stops the worker pool. The model must not be used afterwards.
func (p *pipeline) Close() {
	if p.pool != nil {
		p.pool.Stop()
	}
}

// validateData checks the field and time tensors against the config and
// each other and returns the batch size.
func (p *pipeline) validateData(in *Inputs) (int, error) {
	if in == nil || in.Data == nil || in.InputTimes == nil || in.OutputTimes == nil {
		return 0, errors.Wrap(ErrShapeMismatch, "data, input times and output times are required")
	}

	spatial := p.embedder.SpatialDims()
	data := in.Data.Shape()
	if len(data) != 3+spatial {
		return 0, errors.Wrapf(ErrShapeMismatch, "data must have rank %d, got shape %v", 3+spatial, data)
	}
	bs, inputLen := data[0], data[1]
	if want := append([]int{bs}, p.embedder.FieldShape(inputLen)...); !shapeEqual(data, want) {
		return 0, errors.Wrapf(ErrShapeMismatch, "data shape %v, want %v", data, want)
	}

	if got := in.InputTimes.Shape(); !shapeEqual(got, []int{bs, inputLen, 1}) {
		return 0, errors.Wrapf(ErrShapeMismatch, "input times shape %v, want [%d %d 1]", got, bs, inputLen)
	}
	out := in.OutputTimes.Shape()
	if len(out) != 3 || out[0] != bs || out[2] != 1 {
		return 0, errors.Wrapf(ErrShapeMismatch, "output times shape %v, want [%d output_len 1]", out, bs)
	}
	return bs, nil
}

// decode builds queries from output times and decodes them against the
// fused context of one sample.
func (p *pipeline) decode(fused *Tensor, fusedMask []bool, outputTimes *Tensor) *Tensor {
	query := p.dataDecoder.QueryEmbedding(outputTimes)
	latent := p.dataDecoder.Forward(fused, query, fusedMask)
	return p.embedder.Decode(latent)
}

// FluidsModel is the 2D wrapper: embed, encode data, decode.
type FluidsModel struct {
	pipeline
}

// NewFluidsModel builds the 2D model. cfg must already be valid.
func NewFluidsModel(cfg *Config, rng *rand.Rand) *FluidsModel {
	embedder := NewLinearEmbedder(rng, cfg.Embedder, cfg.Model.XNum, cfg.Model.DataDim)
	return &FluidsModel{pipeline: newPipeline(cfg, embedder, rng)}
}

// Forward runs the model in the named mode.
func (m *FluidsModel) Forward(mode Mode, in *Inputs) (*Output, error) {
	switch mode {
	case ModeFwd:
		return m.Fwd(in)
	case ModeGenerate:
		return m.Generate(in)
	default:
		return nil, unknownMode(mode)
	}
}

// Fwd predicts fields at in.OutputTimes.
func (m *FluidsModel) Fwd(in *Inputs) (*Output, error) {
	bs, err := m.validateData(in)
	if err != nil {
		return nil, err
	}

	outs := make([]*Tensor, bs)
	m.cfg.Compute.forEachSample(m.pool, bs, func(b int) {
		embedded := m.embedder.Encode(in.Data.Index(b), in.InputTimes.Index(b))
		encoded := m.dataEncoder.Forward(embedded)
		outs[b] = m.decode(encoded, nil, in.OutputTimes.Index(b))
	})

	return &Output{DataOutput: Stack(outs)}, nil
}

// Generate is an alias of Fwd.
func (m *FluidsModel) Generate(in *Inputs) (*Output, error) {
	return m.Fwd(in)
}

// NumParams returns the total number of trainable parameters.
func (m *FluidsModel) NumParams() int {
	return m.embedder.NumParams() + m.dataEncoder.NumParams() + m.dataDecoder.NumParams()
}

// Summary lists trainable parameters per module.
func (m *FluidsModel) Summary() string {
	return formatSummary([]summaryLine{
		{"Embedder", m.embedder.NumParams()},
		{"Data Encoder", m.dataEncoder.NumParams()},
		{"Data Decoder", m.dataDecoder.NumParams()},
	})
}

// PDE1DModel is the 1D wrapper with the symbol encoder and fusion active.
type PDE1DModel struct {
	pipeline
	vocab         *Vocabulary
	symbolEncoder *SymbolEncoder
	fusion        *Fusion
}

// NewPDE1DModel builds the 1D model. cfg must already be valid.
func NewPDE1DModel(cfg *Config, vocab *Vocabulary, rng *rand.Rand) *PDE1DModel {
	embedder := NewLinearEmbedder1D(rng, cfg.Embedder, cfg.Model.XNum, cfg.Model.DataDim)
	return &PDE1DModel{
		pipeline:      newPipeline(cfg, embedder, rng),
		vocab:         vocab,
		symbolEncoder: NewSymbolEncoder(rng, cfg.SymbolEncoder, vocab.Size()),
		fusion:        NewFusion(rng, cfg.Fusion),
	}
}

// Vocabulary returns the vocabulary symbol ids refer to.
func (m *PDE1DModel) Vocabulary() *Vocabulary {
	return m.vocab
}

// Forward runs the model in the named mode.
func (m *PDE1DModel) Forward(mode Mode, in *Inputs) (*Output, error) {
	switch mode {
	case ModeFwd:
		return m.Fwd(in)
	case ModeGenerate:
		return m.Generate(in)
	default:
		return nil, unknownMode(mode)
	}
}

// Fwd predicts fields at in.OutputTimes and reports every intermediate
// stream.
func (m *PDE1DModel) Fwd(in *Inputs) (*Output, error) {
	bs, err := m.validateData(in)
	if err != nil {
		return nil, err
	}
	padding, err := m.validateSymbols(in, bs)
	if err != nil {
		return nil, err
	}

	var (
		embedded  = make([]*Tensor, bs)
		encoded   = make([]*Tensor, bs)
		symbols   = make([]*Tensor, bs)
		fused     = make([]*Tensor, bs)
		fusedMask [][]bool
		outs      = make([]*Tensor, bs)
	)
	if padding != nil {
		fusedMask = make([][]bool, bs)
	}
	m.cfg.Compute.forEachSample(m.pool, bs, func(b int) {
		var symbolMask []bool
		if padding != nil {
			symbolMask = padding[b]
		}

		embedded[b] = m.embedder.Encode(in.Data.Index(b), in.InputTimes.Index(b))
		encoded[b] = m.dataEncoder.Forward(embedded[b])
		symbols[b] = m.symbolEncoder.Forward(in.Symbols[b], symbolMask)

		var mask []bool
		fused[b], mask = m.fusion.Forward(encoded[b], symbols[b], nil, symbolMask)
		if fusedMask != nil {
			fusedMask[b] = mask
		}
		outs[b] = m.decode(fused[b], mask, in.OutputTimes.Index(b))
	})

	return &Output{
		DataOutput:    Stack(outs),
		DataEmbedded:  Stack(embedded),
		DataEncoded:   Stack(encoded),
		SymbolEncoded: Stack(symbols),
		Fused:         Stack(fused),
		FusedMask:     fusedMask,
	}, nil
}

// Generate is an alias of Fwd.
func (m *PDE1DModel) Generate(in *Inputs) (*Output, error) {
	return m.Fwd(in)
}

// validateSymbols checks token ids and mask, and returns the padding mask.
// A nil mask masks nothing; callers wanting pad ids masked pass
// MaskFromTokens(Symbols, PadIndex) themselves.
func (m *PDE1DModel) validateSymbols(in *Inputs, bs int) ([][]bool, error) {
	if len(in.Symbols) != bs {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %d symbol rows for batch size %d", len(in.Symbols), bs)
	}

	symbolLen := len(in.Symbols[0])
	if symbolLen == 0 {
		return nil, errors.Wrap(ErrShapeMismatch, "symbol sequences must not be empty")
	}
	if symbolLen > m.symbolEncoder.MaxLen() {
		return nil, errors.Wrapf(ErrShapeMismatch, "symbol length %d exceeds max_len %d", symbolLen, m.symbolEncoder.MaxLen())
	}
	for b, row := range in.Symbols {
		if len(row) != symbolLen {
			return nil, errors.Wrapf(ErrShapeMismatch, "symbol row %d has length %d, want %d", b, len(row), symbolLen)
		}
		for i, id := range row {
			if id < 0 || id >= m.vocab.Size() {
				return nil, errors.Wrapf(ErrShapeMismatch, "symbol[%d][%d]=%d outside vocabulary of %d", b, i, id, m.vocab.Size())
			}
		}
	}

	if in.SymbolPadding == nil {
		return nil, nil
	}
	if len(in.SymbolPadding) != bs {
		return nil, errors.Wrapf(ErrShapeMismatch, "got %d padding rows for batch size %d", len(in.SymbolPadding), bs)
	}
	for b, row := range in.SymbolPadding {
		if len(row) != symbolLen {
			return nil, errors.Wrapf(ErrShapeMismatch, "padding row %d has length %d, want %d", b, len(row), symbolLen)
		}
	}
	return in.SymbolPadding, nil
}

// NumParams returns the total number of trainable parameters.
func (m *PDE1DModel) NumParams() int {
	return m.embedder.NumParams() + m.dataEncoder.NumParams() + m.symbolEncoder.NumParams() +
		m.fusion.NumParams() + m.dataDecoder.NumParams()
}

// Summary lists trainable parameters per module.
func (m *PDE1DModel) Summary() string {
	return formatSummary([]summaryLine{
		{"Embedder", m.embedder.NumParams()},
		{"Data Encoder", m.dataEncoder.NumParams()},
		{"Symbol Encoder", m.symbolEncoder.NumParams()},
		{"Fusion", m.fusion.NumParams()},
		{"Data Decoder", m.dataDecoder.NumParams()},
	})
}

func unknownMode(mode Mode) error {
	return errors.Wrapf(ErrUnknownMode, "forward mode %q", string(mode))
}

type summaryLine struct {
	name  string
	count int
}

// formatSummary renders one tab-indented "Name:   1,234" line per module.
func formatSummary(lines []summaryLine) string {
	var sb strings.Builder
	sb.WriteString("\n")
	for i, l := range lines {
		fmt.Fprintf(&sb, "\t%-16s %s", l.name+":", formatCount(l.count))
		if i < len(lines)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// formatCount renders n with thousands separators: 1234567 -> "1,234,567".
func formatCount(n int) string {
	if n < 0 {
		return "-" + formatCount(-n)
	}
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
