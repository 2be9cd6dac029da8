package main

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// Forward-pass throughput measurements.
//
// For each batch size the suite builds two copies of the same model (same
// seed, so identical weights), one single-threaded and one using the
// worker pool, runs each for a fixed number of iterations on the same
// synthetic inputs, and reports:
//
//   - average time per forward pass
//   - samples per second
//   - speedup of the pooled run over the serial one
//
// Batch-level parallelism only pays off once there are at least as many
// samples as workers, so small batches are expected to show ~1x.
// ===========================================================================

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"time"
)

// BenchmarkResult is one (strategy, batch size) measurement.
type BenchmarkResult struct {
	Strategy         string        `json:"strategy"`
	BatchSize        int           `json:"batch_size"`
	Iterations       int           `json:"iterations"`
	TotalTime        time.Duration `json:"total_time_ns"`
	AvgTime          time.Duration `json:"avg_time_ns"`
	SamplesPerSecond float64       `json:"samples_per_second"`
	SpeedupVsSerial  float64       `json:"speedup_vs_serial"`
}

// BenchmarkSuite collects every measurement of one run.
type BenchmarkSuite struct {
	Timestamp time.Time         `json:"timestamp"`
	Variant   Variant           `json:"variant"`
	NumCPU    int               `json:"num_cpu"`
	Params    int               `json:"params"`
	Results   []BenchmarkResult `json:"results"`
}

// RunBenchmarkSuite times forward passes of cfg's model at every batch size.
func RunBenchmarkSuite(cfg *Config, batchSizes []int, iterations, inputLen, outputLen int) (*BenchmarkSuite, error) {
	serialCfg, pooledCfg := *cfg, *cfg
	serialCfg.Compute = SingleThreadedConfig()
	pooledCfg.Compute = DefaultComputeConfig()

	serial, err := NewModel(&serialCfg, nil, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, err
	}
	defer serial.Close()
	pooled, err := NewModel(&pooledCfg, nil, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, err
	}
	defer pooled.Close()

	suite := &BenchmarkSuite{
		Timestamp: time.Now(),
		Variant:   cfg.Model.Variant,
		NumCPU:    runtime.NumCPU(),
		Params:    serial.NumParams(),
	}

	vocab := DefaultVocabulary()
	for _, bs := range batchSizes {
		in := SyntheticInputs(cfg, vocab, rand.New(rand.NewSource(int64(bs))), bs, inputLen, outputLen)

		base, err := timeForward("serial", serial, in, bs, iterations)
		if err != nil {
			return nil, err
		}
		base.SpeedupVsSerial = 1
		suite.Results = append(suite.Results, base)

		par, err := timeForward("parallel", pooled, in, bs, iterations)
		if err != nil {
			return nil, err
		}
		par.SpeedupVsSerial = float64(base.AvgTime) / float64(par.AvgTime)
		suite.Results = append(suite.Results, par)
	}
	return suite, nil
}

func timeForward(strategy string, model Surrogate, in *Inputs, bs, iterations int) (BenchmarkResult, error) {
	// Warm-up
	if _, err := model.Forward(ModeFwd, in); err != nil {
		return BenchmarkResult{}, err
	}

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := model.Forward(ModeFwd, in); err != nil {
			return BenchmarkResult{}, err
		}
	}
	total := time.Since(start)
	avg := total / time.Duration(iterations)

	return BenchmarkResult{
		Strategy:         strategy,
		BatchSize:        bs,
		Iterations:       iterations,
		TotalTime:        total,
		AvgTime:          avg,
		SamplesPerSecond: float64(bs) / avg.Seconds(),
	}, nil
}

// PrintSummary prints the results as a table.
func (s *BenchmarkSuite) PrintSummary() {
	fmt.Println("=== Benchmark Results ===")
	fmt.Printf("Variant: %s   Params: %s   CPUs: %d\n", s.Variant, formatCount(s.Params), s.NumCPU)
	fmt.Println()
	fmt.Printf("%-10s %6s %14s %14s %9s\n", "Strategy", "Batch", "Avg", "Samples/s", "Speedup")
	for _, r := range s.Results {
		fmt.Printf("%-10s %6d %14v %14.1f %8.2fx\n",
			r.Strategy, r.BatchSize, r.AvgTime.Round(time.Microsecond), r.SamplesPerSecond, r.SpeedupVsSerial)
	}
	fmt.Println()
}

// SaveJSON writes the suite to path.
func (s *BenchmarkSuite) SaveJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
