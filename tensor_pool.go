package main

import (
	"runtime"
	"sync"
)

// ===========================================================================
// WHAT'S GOING ON HERE
// ===========================================================================
//
// A fixed-size worker pool for running independent pieces of a forward
// pass in parallel. The model uses it to process batch elements
// concurrently: every sample goes through embed -> encode -> fuse ->
// decode on its own, and the results are stacked back into a batch.
//
// Work is distributed via a buffered channel; completion is tracked per
// call with a local WaitGroup, so several goroutines can share one pool
// (e.g. concurrent Forward calls on the same model) without waiting on
// each other's tasks.
//
// Panics are NOT caught (fail-fast for debugging). Model entry points
// validate shapes before any task is submitted.
// ===========================================================================

// TensorTask is a function that performs a tensor operation.
type TensorTask func()

type pooledTask struct {
	fn   TensorTask
	done *sync.WaitGroup
}

// TensorPool manages a pool of worker goroutines for parallel tensor operations.
type TensorPool struct {
	numWorkers int
	tasks      chan pooledTask
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewTensorPool creates a new worker pool with the specified number of workers.
// If numWorkers <= 0, defaults to runtime.NumCPU().
//
// The task queue is buffered at 10x workers so a batch can be queued
// without blocking on busy workers.
func NewTensorPool(numWorkers int) *TensorPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &TensorPool{
		numWorkers: numWorkers,
		tasks:      make(chan pooledTask, numWorkers*10),
	}
}

// Start spawns worker goroutines. Calling it more than once has no effect.
func (p *TensorPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.numWorkers; i++ {
			go p.worker()
		}
	})
}

func (p *TensorPool) worker() {
	for task := range p.tasks {
		task.fn()
		task.done.Done()
	}
}

// NumWorkers returns the number of worker goroutines.
func (p *TensorPool) NumWorkers() int {
	return p.numWorkers
}

// Run executes every task on the pool and blocks until all have finished.
// Safe to call concurrently from multiple goroutines. Starts the workers
// if Start has not been called yet.
func (p *TensorPool) Run(tasks ...TensorTask) {
	p.Start()

	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for _, fn := range tasks {
		p.tasks <- pooledTask{fn: fn, done: &wg}
	}
	wg.Wait()
}

// Map runs fn(i) for i in [0, n) on the pool and waits for completion.
func (p *TensorPool) Map(n int, fn func(i int)) {
	tasks := make([]TensorTask, n)
	for i := range tasks {
		i := i
		tasks[i] = func() { fn(i) }
	}
	p.Run(tasks...)
}

// Stop shuts the workers down once queued tasks drain.
// Idempotent. The pool cannot be restarted; Run after Stop panics.
func (p *TensorPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.tasks)
	})
}
