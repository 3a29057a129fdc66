// Copyright 2025 The go-numbridge Authors. SPDX-License-Identifier: Apache-2.0

// Package workerpool runs the engine's parallel iterations on a persistent
// set of goroutines. A Pool is created once per engine session and reused
// by every ParallelDo, so launching a kernel costs a channel send per
// worker rather than a goroutine spawn.
//
// Usage:
//
//	pool := workerpool.New(runtime.GOMAXPROCS(0))
//	defer pool.Close()
//
//	pool.ParallelDo([]int{rows, cols}, workerpool.Linear, func(l kern.Lane) {
//	    out[kern.Pos2Ind(dims, l.Pos)] = f(l.Pos[0], l.Pos[1])
//	})
package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ajroetker/go-numbridge/kern"
)

// Complexity is the declared per-element cost of a kernel. Together with
// the data volume it decides how many workers a launch uses.
type Complexity int

const (
	// Trivial kernels do a handful of operations per element.
	Trivial Complexity = iota

	// Linear kernels do work proportional to a small neighbourhood.
	Linear

	// Heavy kernels do expensive per-element work (search, iteration).
	Heavy
)

// grain is the minimum number of elements worth a worker.
func (c Complexity) grain() int {
	switch c {
	case Trivial:
		return 1 << 16
	case Linear:
		return 1 << 12
	default:
		return 1 << 8
	}
}

// Hint returns the degree of parallelism for numel elements of the given
// complexity, between 1 and maxWorkers.
func Hint(numel int, c Complexity, maxWorkers int) int {
	if numel <= 0 || maxWorkers <= 1 {
		return 1
	}
	g := c.grain()
	return max(1, min(maxWorkers, (numel+g-1)/g))
}

// Pool is a persistent worker pool. Workers are spawned once at creation
// and live until Close.
type Pool struct {
	numWorkers int
	workC      chan workItem
	closeOnce  sync.Once
	closed     atomic.Bool
}

type workItem struct {
	fn      func()
	barrier *sync.WaitGroup
}

// New creates a pool with numWorkers workers; numWorkers <= 0 means
// GOMAXPROCS.
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workC:      make(chan workItem, numWorkers*2),
	}
	for range numWorkers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for item := range p.workC {
		item.fn()
		item.barrier.Done()
	}
}

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// Close shuts the pool down. Later calls run sequentially on the caller's
// goroutine. Calling Close more than once is safe.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.workC)
	})
}

// run splits [0, n) into at most workers contiguous chunks and blocks until
// every chunk has run. fn receives the chunk's worker index.
func (p *Pool) run(n, workers int, fn func(worker, start, end int)) int {
	if n <= 0 {
		return 0
	}
	workers = min(workers, p.numWorkers, n)
	if workers <= 1 || p.closed.Load() {
		fn(0, 0, n)
		return 1
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	used := 0
	for w := range workers {
		start := w * chunk
		if start >= n {
			break
		}
		end := min(start+chunk, n)
		used++
		wg.Add(1)
		p.workC <- workItem{
			fn:      func() { fn(w, start, end) },
			barrier: &wg,
		}
	}
	wg.Wait()
	return used
}

// ParallelFor executes fn over contiguous sub-ranges of [0, n) using every
// worker. Blocks until all work completes.
func (p *Pool) ParallelFor(n int, fn func(start, end int)) {
	p.run(n, p.numWorkers, func(_, start, end int) { fn(start, end) })
}

// ParallelForAtomic executes fn for each index in [0, n), handing indices
// out through an atomic counter so uneven work balances itself.
func (p *Pool) ParallelForAtomic(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	var next atomic.Int64
	p.run(p.numWorkers, p.numWorkers, func(_, _, _ int) {
		for {
			i := int(next.Add(1)) - 1
			if i >= n {
				return
			}
			fn(i)
		}
	})
}

// ParallelDo invokes fn once for every position of the grid dims, using
// Hint(Prod(dims), c, NumWorkers()) workers. The Lane's Pos slice is reused
// between invocations on the same worker and must not be retained.
func (p *Pool) ParallelDo(dims []int, c Complexity, fn func(kern.Lane)) {
	n := kern.Prod(dims)
	if len(dims) == 0 {
		n = 0
	}
	workers := Hint(n, c, p.numWorkers)
	count := max(1, min(workers, n))
	if p.closed.Load() {
		count = 1
	}
	p.run(n, workers, func(worker, start, end int) {
		l := kern.Lane{Pos: make([]int, len(dims)), Block: worker, Count: count}
		for i := start; i < end; i++ {
			kern.Ind2Pos(dims, i, l.Pos)
			fn(l)
		}
	})
}

// SerialDo invokes fn for every position of dims in row-major order on the
// calling goroutine.
func SerialDo(dims []int, fn func(kern.Lane)) {
	n := kern.Prod(dims)
	if len(dims) == 0 {
		return
	}
	l := kern.Lane{Pos: make([]int, len(dims)), Count: 1}
	for i := range n {
		kern.Ind2Pos(dims, i, l.Pos)
		fn(l)
	}
}
