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

package kern

import (
	"math"
	"unsafe"
)

// This file provides the three narrowing conversions generated kernels use:
// unchecked (Go conversion semantics), saturating, and checked. The checked
// form records CodeOverflow and yields 0 instead of a wrapped value.

// Convert narrows s to D with Go's conversion semantics.
func Convert[D Integers, S Lanes](s S) D {
	return D(s)
}

// ConvertSat narrows s to D, clamping to D's range. NaN converts to 0.
func ConvertSat[D Integers, S Lanes](s S) D {
	lo, hi := intBounds[D]()
	if isFloat[S]() {
		f := float64(s)
		switch {
		case math.IsNaN(f):
			return 0
		case f < lo:
			return minOf[D]()
		case f >= hi:
			return maxOf[D]()
		}
		return D(f)
	}
	if isSigned[S]() {
		v := int64(s)
		if float64(v) < lo {
			return minOf[D]()
		}
		if v > 0 && uint64(v) > uint64(maxOf[D]()) {
			return maxOf[D]()
		}
		return D(v)
	}
	if uint64(s) > uint64(maxOf[D]()) {
		return maxOf[D]()
	}
	return D(s)
}

// ConvertChecked narrows s to D. When s does not fit, it records
// CodeOverflow in sink and returns 0.
func ConvertChecked[D Integers, S Lanes](s S, sink *ErrorSink) D {
	if Fits[D](s) {
		return D(s)
	}
	var d D
	sink.Record(ErrorRecord{Code: CodeOverflow, TargetBytes: int(unsafe.Sizeof(d))})
	return 0
}

// Fits reports whether s, truncated toward zero, is representable in D.
func Fits[D Integers, S Lanes](s S) bool {
	lo, hi := intBounds[D]()
	if isFloat[S]() {
		t := math.Trunc(float64(s))
		return t >= lo && t < hi
	}
	if isSigned[S]() {
		v := int64(s)
		if v < 0 {
			return float64(v) >= lo
		}
		return uint64(v) <= uint64(maxOf[D]())
	}
	return uint64(s) <= uint64(maxOf[D]())
}

// intBounds returns D's range as [lo, hi) in float64, both exact.
func intBounds[D Integers]() (lo, hi float64) {
	var d D
	bits := int(unsafe.Sizeof(d)) * 8
	if isSigned[D]() {
		return -math.Ldexp(1, bits-1), math.Ldexp(1, bits-1)
	}
	return 0, math.Ldexp(1, bits)
}

func maxOf[D Integers]() D {
	var d D
	bits := uint(unsafe.Sizeof(d)) * 8
	if isSigned[D]() {
		return D(uint64(1)<<(bits-1) - 1)
	}
	return ^D(0)
}

func minOf[D Integers]() D {
	if isSigned[D]() {
		return ^maxOf[D]()
	}
	return 0
}

func isFloat[S Lanes]() bool {
	var one S = 1
	return one/2 != 0
}

func isSigned[S Lanes]() bool {
	var z S
	z--
	return z < 0
}
