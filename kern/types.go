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

// Package kern is the portable core consumed by numeric kernels that run
// against arrays shared with the engine.
//
// It provides non-owning container views over locked buffers, element
// accessors with pluggable boundary policies, index folding, narrowing
// conversions, and an explicit error sink that replaces a process-wide
// error slot. Platform capabilities (lane width, half-float hardware) are
// detected once at init by the dispatch_*.go shims.
//
// Basic usage:
//
//	import "github.com/ajroetker/go-numbridge/kern"
//
//	m := kern.MakeMatrix(data, 3, 4)
//	var sink kern.ErrorSink
//	acc := kern.Accessor{Policy: kern.Checked, Sink: &sink}
//
//	v := kern.MatrixGetAt(acc, m, 2, 3)
//	if err := sink.Err(); err != nil {
//		// out-of-bounds access recorded
//	}
package kern

// Floats is a constraint for floating-point types.
type Floats interface {
	~float32 | ~float64
}

// Complexes is a constraint for complex types.
type Complexes interface {
	~complex64 | ~complex128
}

// SignedInts is a constraint for signed integer types.
type SignedInts interface {
	~int8 | ~int16 | ~int32 | ~int64
}

// UnsignedInts is a constraint for unsigned integer types.
type UnsignedInts interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Integers is a constraint for all fixed-width integer types.
type Integers interface {
	SignedInts | UnsignedInts
}

// Lanes is a constraint for all real types that can be stored in array
// elements and vector lanes.
type Lanes interface {
	Floats | Integers
}

// Elements is a constraint for every element kind an engine array can hold.
type Elements interface {
	Lanes | Complexes
}
