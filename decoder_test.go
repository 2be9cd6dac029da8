package main

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testDecoderConfig(selfAttn bool) DecoderConfig {
	return DecoderConfig{EncoderConfig: testEncoderConfig(), SelfAttn: selfAttn}
}

func TestQueryEmbedding(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	dec := NewDataOperatorDecoder(rng, testDecoderConfig(false), 3, ActivationGELU)

	times := NewTensorFrom([]float64{0.5, 0.5}, 2, 1)
	query := dec.QueryEmbedding(times)

	if diff := cmp.Diff([]int{6, 16}, query.Shape()); diff != "" {
		t.Errorf("shape mismatch (-want +got):\n%s", diff)
	}
	// Time-major order: equal times repeat the same patch block.
	for p := 0; p < 3; p++ {
		if !tensorsEqual(query.Index(p), query.Index(3+p), 0) {
			t.Errorf("patch %d differs between equal time steps", p)
		}
	}
	if tensorsEqual(query.Index(0), query.Index(1), 1e-9) {
		t.Error("patch positions should distinguish queries")
	}
}

func TestDataOperatorDecoderForward(t *testing.T) {
	for _, selfAttn := range []bool{false, true} {
		rng := rand.New(rand.NewSource(2))
		dec := NewDataOperatorDecoder(rng, testDecoderConfig(selfAttn), 4, ActivationGELU)

		src := NewTensorRandN(rng, 1, 10, 16)
		query := dec.QueryEmbedding(NewTensorFrom([]float64{0.1, 0.2, 0.3}, 3, 1))
		out := dec.Forward(src, query, nil)

		if diff := cmp.Diff([]int{12, 16}, out.Shape()); diff != "" {
			t.Errorf("selfAttn=%v: shape mismatch (-want +got):\n%s", selfAttn, diff)
		}
	}
}

// TestDecoderQueriesIndependentWithoutSelfAttn checks that without query
// self-attention each output time is decoded on its own, so asking for
// extra times leaves earlier predictions unchanged.
func TestDecoderQueriesIndependentWithoutSelfAttn(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	dec := NewDataOperatorDecoder(rng, testDecoderConfig(false), 2, ActivationGELU)
	src := NewTensorRandN(rng, 1, 5, 16)

	short := dec.Forward(src, dec.QueryEmbedding(NewTensorFrom([]float64{0.1}, 1, 1)), nil)
	long := dec.Forward(src, dec.QueryEmbedding(NewTensorFrom([]float64{0.1, 0.9}, 2, 1)), nil)

	for p := 0; p < 2; p++ {
		if !tensorsEqual(short.Index(p), long.Index(p), 1e-12) {
			t.Errorf("query %d changed when another time was added", p)
		}
	}
}

func TestDecoderSelfAttnParams(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	without := NewDataOperatorDecoder(rng, testDecoderConfig(false), 2, ActivationGELU)
	with := NewDataOperatorDecoder(rng, testDecoderConfig(true), 2, ActivationGELU)

	perLayer := 4*(16*16+16) + 2*16
	if with.NumParams()-without.NumParams() != 2*perLayer {
		t.Errorf("self-attention should add %d params, got %d", 2*perLayer, with.NumParams()-without.NumParams())
	}
}
