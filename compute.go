package main

import (
	"runtime"
	"sync"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// Parallelism settings for the forward pass.
//
// A PROSE forward pass is embarrassingly parallel across the batch: samples
// never interact. The model therefore parallelises at the batch level,
// one TensorPool task per sample, and leaves each sample's matmuls to
// gonum on a single goroutine.
//
// Single-threaded mode is kept for determinism checks and debugging. The
// numbers are identical either way because each sample's arithmetic is the
// same sequence of operations regardless of which worker runs it.
// ===========================================================================

// ComputeConfig controls parallelization behavior for forward passes.
type ComputeConfig struct {
	// Parallel enables multi-threaded execution across batch elements.
	Parallel bool `yaml:"parallel"`

	// NumWorkers specifies the number of worker goroutines to use.
	// If 0, defaults to runtime.NumCPU().
	NumWorkers int `yaml:"num_workers"`

	// MinBatchForParallel is the smallest batch that is split across
	// workers. Smaller batches run on the calling goroutine.
	MinBatchForParallel int `yaml:"min_batch_for_parallel"`
}

// DefaultComputeConfig returns a sensible default configuration.
func DefaultComputeConfig() ComputeConfig {
	return ComputeConfig{
		Parallel:            true,
		NumWorkers:          0, // Use all available CPUs
		MinBatchForParallel: 2,
	}
}

// SingleThreadedConfig returns a configuration for single-threaded execution.
func SingleThreadedConfig() ComputeConfig {
	return ComputeConfig{
		Parallel:            false,
		NumWorkers:          1,
		MinBatchForParallel: 0,
	}
}

// numWorkers returns the actual number of workers to use.
func (c ComputeConfig) numWorkers() int {
	if !c.Parallel {
		return 1
	}
	if c.NumWorkers > 0 {
		return c.NumWorkers
	}
	return runtime.NumCPU()
}

// shouldParallelize reports whether a batch of the given size is split.
func (c ComputeConfig) shouldParallelize(batch int) bool {
	return c.Parallel && batch >= c.MinBatchForParallel && batch > 1
}

// newPool returns a started pool, or nil in single-threaded mode.
func (c ComputeConfig) newPool() *TensorPool {
	if !c.Parallel {
		return nil
	}
	pool := NewTensorPool(c.numWorkers())
	pool.Start()
	return pool
}

// forEachSample runs fn for every batch index, on pool when the batch is
// large enough and pool is non-nil, otherwise sequentially.
func (c ComputeConfig) forEachSample(pool *TensorPool, batch int, fn func(b int)) {
	if pool == nil || !c.shouldParallelize(batch) {
		for b := 0; b < batch; b++ {
			fn(b)
		}
		globalStats.RecordBatch(false)
		return
	}
	pool.Map(batch, fn)
	globalStats.RecordBatch(true)
}

// ComputeStats counts batches by execution mode.
type ComputeStats struct {
	mu                sync.Mutex
	ParallelBatches   int64
	SequentialBatches int64
}

var globalStats ComputeStats

// RecordBatch records one forward batch.
func (cs *ComputeStats) RecordBatch(parallel bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if parallel {
		cs.ParallelBatches++
	} else {
		cs.SequentialBatches++
	}
}

// GetStats returns a copy of the current statistics.
func (cs *ComputeStats) GetStats() (parallel, sequential int64) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.ParallelBatches, cs.SequentialBatches
}

// Reset clears all statistics.
func (cs *ComputeStats) Reset() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.ParallelBatches = 0
	cs.SequentialBatches = 0
}
