package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/multierr"
)

// testConfig returns a small, valid configuration for the given variant
// with single-threaded compute.
func testConfig(variant Variant) *Config {
	const dim = 16
	enc := EncoderConfig{
		NumLayers:  1,
		Dim:        dim,
		FFNDim:     32,
		NumHeads:   2,
		NormFirst:  true,
		Norm:       NormLayer,
		Activation: ActivationGELU,
	}

	cfg := DefaultConfig()
	cfg.Model = ModelConfig{Variant: variant, XNum: 8, DataDim: 2}
	cfg.Embedder = EmbedderConfig{Dim: dim, PatchNum: 4, Activation: ActivationGELU}
	cfg.DataEncoder = enc
	cfg.SymbolEncoder = SymbolEncoderConfig{EncoderConfig: enc, Positional: PositionalSinusoidal, MaxLen: 16, ScaleEmb: true}
	cfg.Fusion = FusionConfig{EncoderConfig: enc, TypeEmbeddings: true}
	cfg.DataDecoder = DecoderConfig{EncoderConfig: enc}
	cfg.Compute = SingleThreadedConfig()
	return cfg
}

func TestDefaultConfigValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
	for _, v := range []Variant{VariantFluids, VariantPDE1D} {
		if err := testConfig(v).Validate(); err != nil {
			t.Errorf("test config %s should be valid: %v", v, err)
		}
	}
}

func TestPatchCount(t *testing.T) {
	if n := testConfig(VariantFluids).PatchCount(); n != 16 {
		t.Errorf("fluids: expected 16 patches, got %d", n)
	}
	if n := testConfig(VariantPDE1D).PatchCount(); n != 4 {
		t.Errorf("pde1d: expected 4 patches, got %d", n)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := testConfig(VariantPDE1D)
	cfg.Model.Variant = "navier"
	cfg.Model.XNum = 10          // not divisible by patch_num 4
	cfg.DataEncoder.NumHeads = 3 // 16 % 3 != 0
	cfg.DataDecoder.Dim = 32     // != embedder.dim
	cfg.SymbolEncoder.Norm = "batch"

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		t.Fatalf("expected a joined error, got %T", err)
	}
	if n := len(multierr.Errors(joined.Unwrap()[1])); n < 4 {
		t.Errorf("expected at least 4 aggregated errors, got %d: %v", n, err)
	}
	for _, want := range []string{"model.variant", "divisible by embedder.patch_num", "data_encoder.dim_emb", "data_decoder.dim_emb"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestValidateSkipsSymbolPathForFluids(t *testing.T) {
	cfg := testConfig(VariantFluids)
	cfg.SymbolEncoder.MaxLen = 0
	cfg.Fusion.NumHeads = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("fluids should ignore symbol sections: %v", err)
	}
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
model:
  variant: fluids
  x_num: 32
data_decoder:
  self_attn: true
compute:
  parallel: false
`))
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	want := DefaultConfig()
	want.Model.Variant = VariantFluids
	want.Model.XNum = 32
	want.DataDecoder.SelfAttn = true
	want.Compute.Parallel = false

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigInvalid(t *testing.T) {
	if _, err := ParseConfig([]byte("model: [")); err == nil {
		t.Error("malformed YAML should fail")
	}
	if _, err := ParseConfig([]byte("embedder:\n  patch_num: 7\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadConfigNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Errorf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestConfigSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prose.yaml")
	cfg := testConfig(VariantPDE1D)
	cfg.SymbolEncoder.Positional = PositionalLearnable

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
