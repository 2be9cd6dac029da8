package main

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testEncoderConfig() EncoderConfig {
	return EncoderConfig{
		NumLayers:  2,
		Dim:        16,
		FFNDim:     32,
		NumHeads:   4,
		NormFirst:  true,
		Norm:       NormLayer,
		Activation: ActivationGELU,
	}
}

func TestEncoderLayerNormPlacement(t *testing.T) {
	for _, normFirst := range []bool{true, false} {
		cfg := testEncoderConfig()
		cfg.NormFirst = normFirst

		rng := rand.New(rand.NewSource(1))
		layer := NewEncoderLayer(rng, cfg)
		out := layer.Forward(NewTensorRandN(rng, 1, 5, 16), nil)

		if diff := cmp.Diff([]int{5, 16}, out.Shape()); diff != "" {
			t.Errorf("normFirst=%v: shape mismatch (-want +got):\n%s", normFirst, diff)
		}
	}
}

func TestTransformerEncoderParams(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := testEncoderConfig()
	enc := NewTransformerEncoder(rng, cfg)

	perLayer := 4*(16*16+16) + (16*32 + 32) + (32*16 + 16) + 2*(2*16)
	want := 2*perLayer + 2*16 // final pre-norm LayerNorm
	if enc.NumParams() != want {
		t.Errorf("expected %d params, got %d", want, enc.NumParams())
	}

	cfg.NormFirst = false
	if post := NewTransformerEncoder(rng, cfg); post.NumParams() != 2*perLayer {
		t.Errorf("post-norm stack should have no final norm, got %d params", post.NumParams())
	}
}

func TestEmptyEncoderIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := testEncoderConfig()
	cfg.NumLayers = 0
	enc := NewTransformerEncoder(rng, cfg)

	x := NewTensorRandN(rng, 1, 3, 16)
	if out := enc.Forward(x, nil); !tensorsEqual(x, out, 0) {
		t.Error("zero-layer encoder should return its input")
	}
	if enc.NumParams() != 0 {
		t.Errorf("expected 0 params, got %d", enc.NumParams())
	}
}

func TestSymbolEncoder(t *testing.T) {
	cfg := SymbolEncoderConfig{
		EncoderConfig: testEncoderConfig(),
		Positional:    PositionalSinusoidal,
		MaxLen:        8,
		ScaleEmb:      true,
	}
	rng := rand.New(rand.NewSource(1))
	enc := NewSymbolEncoder(rng, cfg, 10)

	out := enc.Forward([]int{2, 3, 4, 0}, []bool{false, false, false, true})
	if diff := cmp.Diff([]int{4, 16}, out.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	if enc.MaxLen() != 8 {
		t.Errorf("expected MaxLen 8, got %d", enc.MaxLen())
	}

	// Sinusoidal positions are fixed, learnable ones are counted.
	cfg.Positional = PositionalLearnable
	learnable := NewSymbolEncoder(rng, cfg, 10)
	if learnable.NumParams()-enc.NumParams() != 8*16 {
		t.Errorf("learnable positions should add %d params, got %d", 8*16, learnable.NumParams()-enc.NumParams())
	}
}

// TestSymbolEncoderPaddingInvariance verifies that unpadded positions do
// not depend on the ids at padded positions.
func TestSymbolEncoderPaddingInvariance(t *testing.T) {
	cfg := SymbolEncoderConfig{
		EncoderConfig: testEncoderConfig(),
		Positional:    PositionalSinusoidal,
		MaxLen:        8,
	}
	enc := NewSymbolEncoder(rand.New(rand.NewSource(4)), cfg, 10)
	padding := []bool{false, false, true, true}

	a := enc.Forward([]int{5, 6, 0, 0}, padding)
	b := enc.Forward([]int{5, 6, 7, 9}, padding)

	for i := 0; i < 2; i++ {
		if !tensorsEqual(a.Index(i), b.Index(i), 1e-12) {
			t.Errorf("position %d changed with padded ids", i)
		}
	}
}

func TestSinusoidalPositions(t *testing.T) {
	pe := SinusoidalPositions(4, 6)
	if pe.At(0, 0) != 0 || pe.At(0, 1) != 1 {
		t.Errorf("position 0 should be [sin 0, cos 0, ...], got %v", pe.Index(0).Data())
	}
	odd := SinusoidalPositions(2, 5)
	if diff := cmp.Diff([]int{2, 5}, odd.Shape()); diff != "" {
		t.Errorf("odd dim shape mismatch (-want +got):\n%s", diff)
	}
}

func TestFusion(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	fusion := NewFusion(rng, FusionConfig{EncoderConfig: testEncoderConfig(), TypeEmbeddings: true})

	x0 := NewTensorRandN(rng, 1, 6, 16)
	x1 := NewTensorRandN(rng, 1, 3, 16)

	out, mask := fusion.Forward(x0, x1, nil, []bool{false, false, true})
	if diff := cmp.Diff([]int{9, 16}, out.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	want := []bool{false, false, false, false, false, false, false, false, true}
	if diff := cmp.Diff(want, mask); diff != "" {
		t.Errorf("mask mismatch (-want +got):\n%s", diff)
	}

	_, noMask := fusion.Forward(x0, x1, nil, nil)
	if noMask != nil {
		t.Errorf("expected nil mask, got %v", noMask)
	}

	plain := NewFusion(rng, FusionConfig{EncoderConfig: testEncoderConfig()})
	if fusion.NumParams()-plain.NumParams() != 2*16 {
		t.Errorf("type embeddings should add %d params", 2*16)
	}
}
