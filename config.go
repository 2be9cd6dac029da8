package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// Model hyperparameters, one YAML section per module:
//
//   model:          variant (fluids | pde1d), grid size, channel count
//   embedder:       latent width, patch count, projection activation
//   data_encoder:   self-attention stack over embedded data
//   symbol_encoder: self-attention stack over equation tokens
//   fusion:         joint stack over [data; symbols]
//   data_decoder:   cross-attention stack from time queries
//   compute:        batch-level parallelism
//
// LoadConfig starts from DefaultConfig and lets the file override any
// subset of fields, so a config file only needs to name what it changes.
// Validate reports every problem at once rather than stopping at the first.
// ===========================================================================

// Variant selects the model wrapper.
type Variant string

const (
	// VariantFluids is the 2D field model without the symbol path.
	VariantFluids Variant = "fluids"
	// VariantPDE1D is the 1D field model with symbol encoder and fusion.
	VariantPDE1D Variant = "pde1d"
)

// PositionalKind selects how symbol positions are encoded.
type PositionalKind string

const (
	PositionalSinusoidal PositionalKind = "sinusoidal"
	PositionalLearnable  PositionalKind = "learnable"
)

// Config holds the full model configuration.
type Config struct {
	Model         ModelConfig         `yaml:"model"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	DataEncoder   EncoderConfig       `yaml:"data_encoder"`
	SymbolEncoder SymbolEncoderConfig `yaml:"symbol_encoder"`
	Fusion        FusionConfig        `yaml:"fusion"`
	DataDecoder   DecoderConfig       `yaml:"data_decoder"`
	Compute       ComputeConfig       `yaml:"compute"`
}

// ModelConfig describes the data the model consumes.
type ModelConfig struct {
	Variant Variant `yaml:"variant"`
	XNum    int     `yaml:"x_num"`          // Grid points per spatial axis
	DataDim int     `yaml:"max_output_dim"` // Channels per grid point
}

// EmbedderConfig configures the linear patch embedder.
type EmbedderConfig struct {
	Dim        int        `yaml:"dim"`
	PatchNum   int        `yaml:"patch_num"` // Patches per spatial axis
	Activation Activation `yaml:"activation"`
}

// EncoderConfig configures a transformer stack.
type EncoderConfig struct {
	NumLayers  int        `yaml:"n_layer"`
	Dim        int        `yaml:"dim_emb"`
	FFNDim     int        `yaml:"dim_ffn"`
	NumHeads   int        `yaml:"n_head"`
	NormFirst  bool       `yaml:"norm_first"`
	Norm       NormKind   `yaml:"norm"`
	Activation Activation `yaml:"activation"`
}

// SymbolEncoderConfig adds token-specific settings to EncoderConfig.
type SymbolEncoderConfig struct {
	EncoderConfig `yaml:",inline"`
	Positional    PositionalKind `yaml:"positional_embedding"`
	MaxLen        int            `yaml:"max_len"`
	ScaleEmb      bool           `yaml:"scale_emb"`
}

// FusionConfig adds type embeddings to EncoderConfig.
type FusionConfig struct {
	EncoderConfig  `yaml:",inline"`
	TypeEmbeddings bool `yaml:"type_embeddings"`
}

// DecoderConfig adds optional query self-attention to EncoderConfig.
type DecoderConfig struct {
	EncoderConfig `yaml:",inline"`
	SelfAttn      bool `yaml:"self_attn"`
}

func defaultEncoder(dim int) EncoderConfig {
	return EncoderConfig{
		NumLayers:  2,
		Dim:        dim,
		FFNDim:     2 * dim,
		NumHeads:   4,
		NormFirst:  true,
		Norm:       NormLayer,
		Activation: ActivationGELU,
	}
}

// DefaultConfig returns a small 1D configuration suitable for CPU runs.
func DefaultConfig() *Config {
	const dim = 64
	return &Config{
		Model: ModelConfig{
			Variant: VariantPDE1D,
			XNum:    64,
			DataDim: 1,
		},
		Embedder: EmbedderConfig{
			Dim:        dim,
			PatchNum:   8,
			Activation: ActivationGELU,
		},
		DataEncoder: defaultEncoder(dim),
		SymbolEncoder: SymbolEncoderConfig{
			EncoderConfig: defaultEncoder(dim),
			Positional:    PositionalSinusoidal,
			MaxLen:        128,
			ScaleEmb:      true,
		},
		Fusion: FusionConfig{
			EncoderConfig:  defaultEncoder(dim),
			TypeEmbeddings: true,
		},
		DataDecoder: DecoderConfig{
			EncoderConfig: defaultEncoder(dim),
			SelfAttn:      false,
		},
		Compute: DefaultComputeConfig(),
	}
}

// PatchCount returns the number of patches per time step.
func (c *Config) PatchCount() int {
	if c.Model.Variant == VariantFluids {
		return c.Embedder.PatchNum * c.Embedder.PatchNum
	}
	return c.Embedder.PatchNum
}

// Validate checks every field and returns all problems joined together.
// The returned error matches ErrInvalidConfig.
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, errors.Errorf(format, args...))
	}

	switch c.Model.Variant {
	case VariantFluids, VariantPDE1D:
	default:
		add("model.variant must be %q or %q, got %q", VariantFluids, VariantPDE1D, c.Model.Variant)
	}
	if c.Model.XNum <= 0 {
		add("model.x_num must be positive, got %d", c.Model.XNum)
	}
	if c.Model.DataDim <= 0 {
		add("model.max_output_dim must be positive, got %d", c.Model.DataDim)
	}

	dim := c.Embedder.Dim
	if dim <= 0 {
		add("embedder.dim must be positive, got %d", dim)
	}
	if c.Embedder.PatchNum <= 0 {
		add("embedder.patch_num must be positive, got %d", c.Embedder.PatchNum)
	} else if c.Model.XNum > 0 && c.Model.XNum%c.Embedder.PatchNum != 0 {
		add("model.x_num (%d) must be divisible by embedder.patch_num (%d)", c.Model.XNum, c.Embedder.PatchNum)
	}
	if !c.Embedder.Activation.Valid() {
		add("embedder.activation %q is not supported", c.Embedder.Activation)
	}

	errs = multierr.Append(errs, c.DataEncoder.validate("data_encoder", dim))
	errs = multierr.Append(errs, c.DataDecoder.validate("data_decoder", dim))

	if c.Model.Variant == VariantPDE1D {
		errs = multierr.Append(errs, c.SymbolEncoder.validate("symbol_encoder", dim))
		errs = multierr.Append(errs, c.Fusion.validate("fusion", dim))

		switch c.SymbolEncoder.Positional {
		case PositionalSinusoidal, PositionalLearnable:
		default:
			add("symbol_encoder.positional_embedding must be %q or %q, got %q",
				PositionalSinusoidal, PositionalLearnable, c.SymbolEncoder.Positional)
		}
		if c.SymbolEncoder.MaxLen <= 0 {
			add("symbol_encoder.max_len must be positive, got %d", c.SymbolEncoder.MaxLen)
		}
	}

	if c.Compute.NumWorkers < 0 {
		add("compute.num_workers must be >= 0, got %d", c.Compute.NumWorkers)
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

func (e EncoderConfig) validate(section string, dim int) error {
	var errs error
	add := func(format string, args ...interface{}) {
		errs = multierr.Append(errs, errors.Errorf(section+"."+format, args...))
	}

	if e.NumLayers < 0 {
		add("n_layer must be >= 0, got %d", e.NumLayers)
	}
	if e.Dim != dim {
		add("dim_emb (%d) must equal embedder.dim (%d)", e.Dim, dim)
	}
	if e.NumHeads <= 0 {
		add("n_head must be positive, got %d", e.NumHeads)
	} else if e.Dim > 0 && e.Dim%e.NumHeads != 0 {
		add("dim_emb (%d) must be divisible by n_head (%d)", e.Dim, e.NumHeads)
	}
	if e.FFNDim <= 0 {
		add("dim_ffn must be positive, got %d", e.FFNDim)
	}
	if e.Norm != NormLayer && e.Norm != NormRMS {
		add("norm must be %q or %q, got %q", NormLayer, NormRMS, e.Norm)
	}
	if !e.Activation.Valid() {
		add("activation %q is not supported", e.Activation)
	}
	return errs
}

// LoadConfig reads a YAML file over DefaultConfig and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrConfigNotFound, path)
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write config %s", path)
}
