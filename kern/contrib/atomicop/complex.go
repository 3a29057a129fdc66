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

package atomicop

import "unsafe"

// Complex atomics update the real and imaginary parts as two independent
// scalar atomics. A concurrent reader can observe the new real part with
// the old imaginary part; only the per-component results are exact.
//
// MulComplex, DivComplex, MinComplex and MaxComplex are component-wise:
// the real part combines with real(v) and the imaginary part with imag(v).
// They are not complex multiplication or division.

func components[C complex64 | complex128](addr *C, v C,
	op32 func(*float32, float32) float32, op64 func(*float64, float64) float64) C {
	switch p := any(addr).(type) {
	case *complex64:
		parts := (*[2]float32)(unsafe.Pointer(p))
		w := any(v).(complex64)
		re := op32(&parts[0], real(w))
		im := op32(&parts[1], imag(w))
		return any(complex(re, im)).(C)
	case *complex128:
		parts := (*[2]float64)(unsafe.Pointer(p))
		w := any(v).(complex128)
		re := op64(&parts[0], real(w))
		im := op64(&parts[1], imag(w))
		return any(complex(re, im)).(C)
	}
	panic("unreachable")
}

// AddComplex atomically adds v to *addr component by component.
func AddComplex[C complex64 | complex128](addr *C, v C) C {
	return components(addr, v, Add[float32], Add[float64])
}

// SubComplex atomically subtracts v from *addr component by component.
func SubComplex[C complex64 | complex128](addr *C, v C) C {
	return components(addr, v, Sub[float32], Sub[float64])
}

// MulComplex scales each component of *addr by the matching component of v.
func MulComplex[C complex64 | complex128](addr *C, v C) C {
	return components(addr, v, Mul[float32], Mul[float64])
}

// DivComplex divides each component of *addr by the matching component of v.
func DivComplex[C complex64 | complex128](addr *C, v C) C {
	return components(addr, v, Div[float32], Div[float64])
}

// MinComplex keeps the smaller value per component.
func MinComplex[C complex64 | complex128](addr *C, v C) C {
	return components(addr, v, Min[float32], Min[float64])
}

// MaxComplex keeps the larger value per component.
func MaxComplex[C complex64 | complex128](addr *C, v C) C {
	return components(addr, v, Max[float32], Max[float64])
}

// LoadComplex reads both components; the pair may be torn.
func LoadComplex[C complex64 | complex128](addr *C) C {
	return AddComplex(addr, 0)
}
