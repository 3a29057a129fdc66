// Copyright 2025 The go-numbridge Authors. SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ajroetker/go-numbridge/kern"
)

func TestNewDefault(t *testing.T) {
	pool := New(0)
	defer pool.Close()

	if pool.NumWorkers() != runtime.GOMAXPROCS(0) {
		t.Errorf("NumWorkers() = %d, want %d", pool.NumWorkers(), runtime.GOMAXPROCS(0))
	}
}

func TestParallelFor(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	n := 100
	results := make([]int, n)
	pool.ParallelFor(n, func(start, end int) {
		for i := start; i < end; i++ {
			results[i] = i * 2
		}
	})

	for i := range n {
		if results[i] != i*2 {
			t.Errorf("results[%d] = %d, want %d", i, results[i], i*2)
		}
	}
}

func TestParallelForAtomic(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	var sum atomic.Int64
	pool.ParallelForAtomic(1000, func(i int) {
		sum.Add(int64(i))
	})
	if sum.Load() != 999*1000/2 {
		t.Errorf("sum = %d, want %d", sum.Load(), 999*1000/2)
	}

	pool.ParallelForAtomic(0, func(int) {
		t.Error("ParallelForAtomic with n=0 should not call fn")
	})
}

func TestHint(t *testing.T) {
	tests := []struct {
		name       string
		numel      int
		c          Complexity
		maxWorkers int
		want       int
	}{
		{"Empty", 0, Heavy, 8, 1},
		{"TinyTrivial", 1000, Trivial, 8, 1},
		{"LargeTrivial", 1 << 20, Trivial, 8, 8},
		{"MidLinear", 3 << 12, Linear, 8, 3},
		{"HeavyCapped", 1 << 12, Heavy, 4, 4},
		{"SingleWorker", 1 << 30, Heavy, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Hint(tt.numel, tt.c, tt.maxWorkers); got != tt.want {
				t.Errorf("Hint(%d, %d, %d) = %d, want %d", tt.numel, tt.c, tt.maxWorkers, got, tt.want)
			}
		})
	}
}

func TestParallelDoVisitsEveryPosition(t *testing.T) {
	pool := New(4)
	defer pool.Close()

	dims := []int{8, 16, 33}
	seen := make([]atomic.Int32, kern.Prod(dims))
	var mu sync.Mutex
	blocks := map[int]bool{}

	pool.ParallelDo(dims, Heavy, func(l kern.Lane) {
		seen[l.ThreadIdx(dims)].Add(1)
		if l.Count < 1 || l.Block >= l.Count {
			t.Errorf("lane %+v outside its worker count", l)
		}
		mu.Lock()
		blocks[l.Block] = true
		mu.Unlock()
	})

	for i := range seen {
		if seen[i].Load() != 1 {
			t.Fatalf("position %d visited %d times", i, seen[i].Load())
		}
	}
	if len(blocks) < 2 {
		t.Errorf("heavy grid of %d elements should use several workers, used %d", len(seen), len(blocks))
	}
}

func TestSerialDoOrder(t *testing.T) {
	dims := []int{2, 3}
	var order []int
	SerialDo(dims, func(l kern.Lane) {
		order = append(order, l.ThreadIdx(dims))
	})
	for i, v := range order {
		if v != i {
			t.Fatalf("SerialDo order = %v, want row-major", order)
		}
	}
	if len(order) != 6 {
		t.Errorf("SerialDo visited %d positions, want 6", len(order))
	}
}

func TestClosedPoolFallback(t *testing.T) {
	pool := New(4)
	pool.Close()
	pool.Close()

	var count atomic.Int32
	pool.ParallelDo([]int{10, 10}, Heavy, func(l kern.Lane) {
		if l.Count != 1 {
			t.Errorf("closed pool should run on one lane, got %d", l.Count)
		}
		count.Add(1)
	})
	if count.Load() != 100 {
		t.Errorf("count = %d, want 100", count.Load())
	}
}

func BenchmarkParallelDo(b *testing.B) {
	pool := New(0)
	defer pool.Close()

	dims := []int{256, 256}
	out := make([]float32, kern.Prod(dims))
	b.ResetTimer()
	for range b.N {
		pool.ParallelDo(dims, Linear, func(l kern.Lane) {
			out[l.ThreadIdx(dims)] = float32(l.Pos[0] * l.Pos[1])
		})
	}
}
