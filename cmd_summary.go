package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"gopkg.in/yaml.v3"
)

// RunSummaryCommand prints per-module parameter counts for a config.
func RunSummaryCommand(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (default: built-in config)")
	variant := fs.String("variant", "", "Override model.variant: fluids or pde1d")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadCommandConfig(*configPath, *variant)
	if err != nil {
		return err
	}
	cfg.Compute = SingleThreadedConfig()

	model, err := NewModel(cfg, nil, rand.New(rand.NewSource(0)))
	if err != nil {
		return err
	}
	defer model.Close()

	fmt.Printf("Model: %s (x_num=%d, channels=%d, patches/step=%d, dim=%d)\n",
		cfg.Model.Variant, cfg.Model.XNum, cfg.Model.DataDim, cfg.PatchCount(), cfg.Embedder.Dim)
	fmt.Printf("Parameters:%s\n", model.Summary())
	fmt.Printf("\t%-16s %s\n", "Total:", formatCount(model.NumParams()))
	return nil
}

// RunConfigCommand prints the effective configuration as YAML, or writes it
// to -out.
func RunConfigCommand(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config to validate and print")
	variant := fs.String("variant", "", "Override model.variant: fluids or pde1d")
	out := fs.String("out", "", "Write the configuration to this path instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadCommandConfig(*configPath, *variant)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := cfg.Save(*out); err != nil {
			return err
		}
		fmt.Printf("✓ Configuration written to %s\n", *out)
		return nil
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
