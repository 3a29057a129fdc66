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
	"strconv"
)

// Float16 is an IEEE 754 binary16 value as stored in half-precision engine
// arrays. Arithmetic goes through float32; atomics operate on the raw bits.
//
//	S | EEEEE | MMMMMMMMMM
type Float16 uint16

// Float16 constants for special values.
const (
	Float16Zero     Float16 = 0x0000
	Float16NegZero  Float16 = 0x8000
	Float16One      Float16 = 0x3C00
	Float16MaxValue Float16 = 0x7BFF // 65504
	Float16Inf      Float16 = 0x7C00
	Float16NegInf   Float16 = 0xFC00
	Float16NaN      Float16 = 0x7E00
)

// NewFloat16 rounds f to the nearest Float16, ties to even.
// Values beyond the finite range become infinities.
func NewFloat16(f float32) Float16 {
	b := math.Float32bits(f)
	sign := uint32(b>>16) & 0x8000
	exp := int32(b>>23) & 0xFF
	frac := b & 0x7FFFFF

	if exp == 0xFF {
		if frac != 0 {
			return Float16(sign | 0x7E00 | frac>>13)
		}
		return Float16(sign | 0x7C00)
	}

	e := exp - 127 + 15
	switch {
	case e >= 0x1F:
		return Float16(sign | 0x7C00)
	case e <= 0:
		if e < -10 {
			return Float16(sign)
		}
		// Subnormal: the implicit leading bit becomes explicit.
		m := frac | 0x800000
		shift := uint32(14 - e)
		h := m >> shift
		rem := m & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && h&1 == 1) {
			h++
		}
		return Float16(sign | h)
	}

	h := uint32(e)<<10 | frac>>13
	rem := frac & 0x1FFF
	if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
		h++ // a carry into the exponent field is the correct rounding
	}
	return Float16(sign | h)
}

// NewFloat16FromFloat64 rounds f through float32.
func NewFloat16FromFloat64(f float64) Float16 {
	return NewFloat16(float32(f))
}

// Float32 widens h exactly.
func (h Float16) Float32() float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h) & 0x3FF

	switch {
	case exp == 0x1F:
		return math.Float32frombits(sign | 0x7F800000 | frac<<13)
	case exp != 0:
		return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
	case frac == 0:
		return math.Float32frombits(sign)
	}

	f := float32(frac) * (1.0 / (1 << 24))
	if sign != 0 {
		f = -f
	}
	return f
}

// Float64 widens h exactly.
func (h Float16) Float64() float64 {
	return float64(h.Float32())
}

// IsNaN reports whether h is a NaN.
func (h Float16) IsNaN() bool {
	return h&0x7C00 == 0x7C00 && h&0x3FF != 0
}

// IsInf reports whether h is an infinity of either sign.
func (h Float16) IsInf() bool {
	return h&0x7FFF == 0x7C00
}

// Bits returns the raw encoding.
func (h Float16) Bits() uint16 {
	return uint16(h)
}

// String formats h through its float32 value.
func (h Float16) String() string {
	return strconv.FormatFloat(float64(h.Float32()), 'g', -1, 32)
}
