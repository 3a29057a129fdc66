// Copyright 2025 go-numbridge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package atomicop provides atomic read-modify-write arithmetic for the
// element types kernels store in shared arrays.
//
// Every operation is the same compare-and-swap retry loop: read the current
// bit pattern, compute the candidate value, swap it in if the bits are
// unchanged, and retry otherwise. The loop is written once per storage
// width (16, 32 and 64 bits) and reused through bit reinterpretation, so
// floats and half floats get atomics the hardware does not provide. There
// is no backoff. Every operation returns the value it stored.
//
// 16-bit elements are updated through a CAS on their enclosing aligned
// 32-bit word and must therefore live inside an array or struct, as
// engine buffers do.
//
// Usage:
//
//	hist := make([]int32, bins)
//	pool.ParallelFor(n, func(start, end int) {
//	    for i := start; i < end; i++ {
//	        atomicop.Add(&hist[bin(x[i])], 1)
//	    }
//	})
package atomicop

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/ajroetker/go-numbridge/kern"
)

// Number is the set of element types with atomic arithmetic.
type Number interface {
	int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// Integer is the set of element types with atomic bitwise operations.
type Integer interface {
	int16 | uint16 | int32 | uint32 | int64 | uint64
}

var littleEndian = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// word16 locates the aligned 32-bit word holding *p and the bit offset of
// *p inside it.
func word16(p *uint16) (*uint32, uint) {
	off := uintptr(unsafe.Pointer(p)) & 3
	w := (*uint32)(unsafe.Add(unsafe.Pointer(p), -int(off)))
	shift := uint(off) * 8
	if !littleEndian {
		shift = 16 - shift
	}
	return w, shift
}

func load16(p *uint16) uint16 {
	w, shift := word16(p)
	return uint16(atomic.LoadUint32(w) >> shift)
}

// cas16 swaps *p from old to new. Changes to the neighbouring half of the
// word are retried rather than reported as a mismatch.
func cas16(p *uint16, old, new uint16) bool {
	w, shift := word16(p)
	mask := uint32(0xFFFF) << shift
	for {
		cur := atomic.LoadUint32(w)
		if uint16(cur>>shift) != old {
			return false
		}
		next := cur&^mask | uint32(new)<<shift
		if atomic.CompareAndSwapUint32(w, cur, next) {
			return true
		}
	}
}

// update runs the CAS retry loop for any 2, 4 or 8 byte type.
func update[T any](addr *T, f func(T) T) T {
	switch unsafe.Sizeof(*addr) {
	case 2:
		p := (*uint16)(unsafe.Pointer(addr))
		for {
			oldBits := load16(p)
			next := f(*(*T)(unsafe.Pointer(&oldBits)))
			if cas16(p, oldBits, *(*uint16)(unsafe.Pointer(&next))) {
				return next
			}
		}
	case 4:
		p := (*uint32)(unsafe.Pointer(addr))
		for {
			oldBits := atomic.LoadUint32(p)
			next := f(*(*T)(unsafe.Pointer(&oldBits)))
			if atomic.CompareAndSwapUint32(p, oldBits, *(*uint32)(unsafe.Pointer(&next))) {
				return next
			}
		}
	case 8:
		p := (*uint64)(unsafe.Pointer(addr))
		for {
			oldBits := atomic.LoadUint64(p)
			next := f(*(*T)(unsafe.Pointer(&oldBits)))
			if atomic.CompareAndSwapUint64(p, oldBits, *(*uint64)(unsafe.Pointer(&next))) {
				return next
			}
		}
	}
	panic("atomicop: unsupported element width")
}

// Update atomically replaces *addr with f(*addr) and returns the stored
// value. f may run more than once and must not have side effects.
func Update[T Number](addr *T, f func(T) T) T {
	return update(addr, f)
}

// Load atomically reads *addr.
func Load[T Number](addr *T) T {
	return update(addr, func(v T) T { return v })
}

func Add[T Number](addr *T, v T) T {
	return update(addr, func(old T) T { return old + v })
}

func Sub[T Number](addr *T, v T) T {
	return update(addr, func(old T) T { return old - v })
}

func Mul[T Number](addr *T, v T) T {
	return update(addr, func(old T) T { return old * v })
}

// Div divides *addr by v. An integer division by zero leaves *addr
// unchanged.
func Div[T Number](addr *T, v T) T {
	if v == 0 && !isFloat[T]() {
		return Load(addr)
	}
	return update(addr, func(old T) T { return old / v })
}

// Pow raises *addr to the power v. Integer powers are exact and wrap on
// overflow; negative integer exponents truncate toward zero.
func Pow[T Number](addr *T, v T) T {
	if isFloat[T]() {
		return update(addr, func(old T) T { return T(math.Pow(float64(old), float64(v))) })
	}
	return update(addr, func(old T) T { return ipow(old, v) })
}

func Min[T Number](addr *T, v T) T {
	return update(addr, func(old T) T { return min(old, v) })
}

func Max[T Number](addr *T, v T) T {
	return update(addr, func(old T) T { return max(old, v) })
}

func Xor[T Integer](addr *T, v T) T {
	return update(addr, func(old T) T { return old ^ v })
}

func And[T Integer](addr *T, v T) T {
	return update(addr, func(old T) T { return old & v })
}

func Or[T Integer](addr *T, v T) T {
	return update(addr, func(old T) T { return old | v })
}

func ipow[T Number](base, exp T) T {
	var zero, one T = 0, 1
	if exp < zero {
		switch {
		case base == one:
			return one
		case base == zero-one:
			if isOdd(exp) {
				return base
			}
			return one
		}
		return zero
	}
	result := one
	for exp > zero {
		if isOdd(exp) {
			result *= base
		}
		base *= base
		exp /= 2
	}
	return result
}

func isOdd[T Number](v T) bool {
	return v-(v/2)*2 != 0
}

func isFloat[T Number]() bool {
	var one T = 1
	return one/2 != 0
}

// halfOp is the half-float update loop; arithmetic runs in float32
// and rounds back to the nearest half.
func halfOp(addr *kern.Float16, f func(old float32) float32) kern.Float16 {
	return update(addr, func(old kern.Float16) kern.Float16 {
		return kern.NewFloat16(f(old.Float32()))
	})
}

func AddHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := v.Float32()
	return halfOp(addr, func(old float32) float32 { return old + x })
}

func SubHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := v.Float32()
	return halfOp(addr, func(old float32) float32 { return old - x })
}

func MulHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := v.Float32()
	return halfOp(addr, func(old float32) float32 { return old * x })
}

func DivHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := v.Float32()
	return halfOp(addr, func(old float32) float32 { return old / x })
}

func PowHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := float64(v.Float32())
	return halfOp(addr, func(old float32) float32 { return float32(math.Pow(float64(old), x)) })
}

func MinHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := v.Float32()
	return halfOp(addr, func(old float32) float32 { return min(old, x) })
}

func MaxHalf(addr *kern.Float16, v kern.Float16) kern.Float16 {
	x := v.Float32()
	return halfOp(addr, func(old float32) float32 { return max(old, x) })
}
