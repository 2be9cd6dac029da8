package main

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestTensorPoolRun verifies that Run executes every task before returning.
func TestTensorPoolRun(t *testing.T) {
	pool := NewTensorPool(2)
	pool.Start()
	defer pool.Stop()

	var counter int32
	tasks := make([]TensorTask, 10)
	for i := range tasks {
		tasks[i] = func() { atomic.AddInt32(&counter, 1) }
	}
	pool.Run(tasks...)

	if counter != 10 {
		t.Errorf("expected counter=10, got %d", counter)
	}
}

// TestTensorPoolConcurrency verifies that tasks run concurrently.
func TestTensorPoolConcurrency(t *testing.T) {
	numWorkers := 4
	pool := NewTensorPool(numWorkers)
	defer pool.Stop()

	started := make(chan struct{}, numWorkers)
	proceed := make(chan struct{})

	done := make(chan struct{})
	go func() {
		pool.Map(numWorkers, func(int) {
			started <- struct{}{}
			<-proceed
		})
		close(done)
	}()

	// Every task must be running at once before any can finish.
	for i := 0; i < numWorkers; i++ {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d tasks started concurrently", i, numWorkers)
		}
	}
	close(proceed)
	<-done
}

// TestTensorPoolSharedCallers verifies that concurrent Map calls on one
// pool each wait only for their own work.
func TestTensorPoolSharedCallers(t *testing.T) {
	pool := NewTensorPool(3)
	defer pool.Stop()

	const callers, perCaller = 5, 20
	results := make([][]int, callers)

	var wg sync.WaitGroup
	for c := 0; c < callers; c++ {
		c := c
		results[c] = make([]int, perCaller)
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Map(perCaller, func(i int) { results[c][i] = c*100 + i })
			for i, v := range results[c] {
				if v != c*100+i {
					t.Errorf("caller %d: index %d not done when Map returned", c, i)
				}
			}
		}()
	}
	wg.Wait()
}

func TestTensorPoolDefaults(t *testing.T) {
	pool := NewTensorPool(0)
	if pool.NumWorkers() != runtime.NumCPU() {
		t.Errorf("expected %d workers, got %d", runtime.NumCPU(), pool.NumWorkers())
	}

	// Start and Stop are idempotent.
	pool.Start()
	pool.Start()
	pool.Stop()
	pool.Stop()
}
