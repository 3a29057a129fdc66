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

package abi

import "fmt"

// Value is the tagged value exchanged across the boundary. Type selects the
// valid payload:
//
//   - scalar and integer tags use Real, Imag or Int inline;
//   - every other non-void tag uses Handle;
//   - array tags also mirror their first three dimensions in Dims.
type Value struct {
	Type   Tag
	Handle Handle
	Real   float64
	Imag   float64
	Int    int64
	Dims   [3]int
}

// Scalar returns an inline SCALAR value.
func Scalar(f float64) Value { return Value{Type: TypeScalar, Real: f} }

// Complex returns an inline COMPLEXSCALAR value.
func Complex(c complex128) Value {
	return Value{Type: TypeComplexScalar, Real: real(c), Imag: imag(c)}
}

// Int returns an inline INT value.
func Int(i int64) Value { return Value{Type: TypeInt, Int: i} }

// IntOf returns an inline integer value of the given integer tag.
func IntOf(t Tag, i int64) Value { return Value{Type: t, Int: i} }

// Void is the empty value.
func Void() Value { return Value{} }

// IsNull reports whether a handle-carrying value has lost its handle, or
// whether the value is void.
func (v Value) IsNull() bool {
	return v.Type == TypeVoid || (v.Type.HasHandle() && v.Handle == 0)
}

// Complex128 returns the complex payload.
func (v Value) Complex128() complex128 { return complex(v.Real, v.Imag) }

// Float returns the numeric payload widened to float64. Integer tags
// convert from Int; everything else reads Real.
func (v Value) Float() float64 {
	if v.Type.IsInteger() {
		return float64(v.Int)
	}
	return v.Real
}

func (v Value) String() string {
	switch {
	case v.Type == TypeScalar:
		return fmt.Sprintf("scalar(%g)", v.Real)
	case v.Type == TypeComplexScalar:
		return fmt.Sprintf("cscalar(%g%+gi)", v.Real, v.Imag)
	case v.Type.IsInteger():
		return fmt.Sprintf("%s(%d)", v.Type, v.Int)
	case v.Type.IsArray():
		return fmt.Sprintf("%s#%d[%dx%dx%d]", v.Type, v.Handle, v.Dims[0], v.Dims[1], v.Dims[2])
	case v.Type.HasHandle():
		return fmt.Sprintf("%s#%d", v.Type, v.Handle)
	default:
		return v.Type.String()
	}
}
