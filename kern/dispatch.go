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
	"os"
	"strconv"
	"unsafe"
)

// DispatchLevel names the widest vector instruction set the host CPU
// offers. Kernels use it to size vector-lane accesses; the engine uses it
// to report the device it runs on.
type DispatchLevel int

const (
	// DispatchScalar indicates no usable vector unit, or NUMBRIDGE_NO_SIMD.
	DispatchScalar DispatchLevel = iota

	// DispatchSSE2 indicates 128-bit x86 vectors.
	DispatchSSE2

	// DispatchAVX2 indicates 256-bit x86 vectors.
	DispatchAVX2

	// DispatchAVX512 indicates 512-bit x86 vectors.
	DispatchAVX512

	// DispatchNEON indicates 128-bit ARM vectors.
	DispatchNEON
)

// String returns a human-readable name for the dispatch level.
func (d DispatchLevel) String() string {
	switch d {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	case DispatchNEON:
		return "neon"
	default:
		return "unknown"
	}
}

// Set by init() in dispatch_*.go files.
var (
	currentLevel DispatchLevel
	currentWidth = 16

	// hasHalfConvert reports hardware float16 <-> float32 conversion.
	hasHalfConvert bool
)

// CurrentLevel returns the detected dispatch level.
func CurrentLevel() DispatchLevel {
	return currentLevel
}

// CurrentWidth returns the vector register width in bytes.
func CurrentWidth() int {
	return currentWidth
}

// HasHalfConvert reports whether the CPU converts half floats natively
// (F16C on x86, FPHP on ARM).
func HasHalfConvert() bool {
	return hasHalfConvert
}

// NoSimdEnv reports whether NUMBRIDGE_NO_SIMD forces the scalar level.
func NoSimdEnv() bool {
	val := os.Getenv("NUMBRIDGE_NO_SIMD")
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

func setScalarMode() {
	currentLevel = DispatchScalar
	currentWidth = 16 // keep 16-byte lanes so vector accessors stay exercised
}

// MaxLanes returns how many T fit in one vector register at the current
// level. This is the natural width for GetVecAt/SetVecAt buffers.
//
// For example, with AVX2 (32 bytes): float32 has 8 lanes, float64 has 4.
func MaxLanes[T any]() int {
	var dummy T
	size := int(unsafe.Sizeof(dummy))
	if size == 0 {
		return 0
	}
	return max(1, currentWidth/size)
}
