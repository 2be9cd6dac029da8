package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

// RunBenchmarkCommand times serial against pooled forward passes.
func RunBenchmarkCommand(args []string) error {
	fs := flag.NewFlagSet("benchmark", flag.ExitOnError)

	configPath := fs.String("config", "", "Path to YAML config (default: built-in config)")
	variant := fs.String("variant", "", "Override model.variant: fluids or pde1d")
	batchesStr := fs.String("batches", "1,4,16", "Batch sizes to benchmark (comma-separated)")
	iterations := fs.Int("iterations", 5, "Forward passes per measurement")
	inputLen := fs.Int("input-len", 4, "Number of input time steps")
	outputLen := fs.Int("output-len", 4, "Number of output time steps")
	outputJSON := fs.String("json", "", "Write results to this JSON file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	var batches []int
	for _, s := range strings.Split(*batchesStr, ",") {
		bs, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || bs <= 0 {
			return fmt.Errorf("invalid batch size %q", s)
		}
		batches = append(batches, bs)
	}
	if *iterations <= 0 {
		return fmt.Errorf("-iterations must be positive")
	}

	cfg, err := loadCommandConfig(*configPath, *variant)
	if err != nil {
		return err
	}

	fmt.Printf("Benchmarking %s model: batches=%v iterations=%d\n", cfg.Model.Variant, batches, *iterations)
	suite, err := RunBenchmarkSuite(cfg, batches, *iterations, *inputLen, *outputLen)
	if err != nil {
		return err
	}
	suite.PrintSummary()

	if *outputJSON != "" {
		if err := suite.SaveJSON(*outputJSON); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		fmt.Printf("✓ Results written to %s\n", *outputJSON)
	}
	return nil
}
