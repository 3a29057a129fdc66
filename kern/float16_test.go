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
	"testing"
)

func TestFloat16ToFloat32(t *testing.T) {
	tests := []struct {
		name     string
		input    Float16
		expected float32
	}{
		{"Zero", 0x0000, 0},
		{"One", 0x3C00, 1},
		{"Two", 0x4000, 2},
		{"NegTwo", 0xC000, -2},
		{"Third", 0x3555, 0.33325195},
		{"Max", Float16MaxValue, 65504},
		{"MinNormal", 0x0400, 6.1035156e-05},
		{"MinDenormal", 0x0001, 5.9604645e-08},
		{"NegDenormal", 0x8200, -3.0517578e-05},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.input.Float32()
			if got != tt.expected {
				t.Errorf("Float16(%#04x).Float32(): got %v, want %v", uint16(tt.input), got, tt.expected)
			}
		})
	}

	if !math.IsInf(float64(Float16Inf.Float32()), 1) {
		t.Error("Float16Inf should widen to +Inf")
	}
	if !math.IsNaN(float64(Float16NaN.Float32())) {
		t.Error("Float16NaN should widen to NaN")
	}
}

func TestNewFloat16Rounding(t *testing.T) {
	tests := []struct {
		name     string
		input    float32
		expected Float16
	}{
		{"One", 1, Float16One},
		{"TieToEvenDown", 1 + 1.0/2048, 0x3C00},
		{"TieToEvenUp", 1 + 3.0/2048, 0x3C02},
		{"AboveTie", 1 + 1.0/2048 + 1.0/65536, 0x3C01},
		{"OverflowTie", 65520, Float16Inf},
		{"Overflow", 1e6, Float16Inf},
		{"NegOverflow", -1e6, Float16NegInf},
		{"Underflow", 1e-9, Float16Zero},
		{"NegUnderflow", -1e-9, Float16NegZero},
		{"Denormal", 5.9604645e-08, 0x0001},
		{"LargestDenormal", 6.1e-05, 0x03FF},
		{"DenormalCarry", 6.103e-05, 0x0400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFloat16(tt.input)
			if got != tt.expected {
				t.Errorf("NewFloat16(%v): got %#04x, want %#04x", tt.input, uint16(got), uint16(tt.expected))
			}
		})
	}

	if !NewFloat16(float32(math.NaN())).IsNaN() {
		t.Error("NaN should narrow to NaN")
	}
}

// TestFloat16RoundTrip widens and narrows every encoding.
func TestFloat16RoundTrip(t *testing.T) {
	for bits := 0; bits <= 0xFFFF; bits++ {
		h := Float16(bits)
		if h.IsNaN() {
			if !NewFloat16(h.Float32()).IsNaN() {
				t.Fatalf("%#04x: NaN lost in round trip", bits)
			}
			continue
		}
		if got := NewFloat16(h.Float32()); got != h {
			t.Fatalf("%#04x: got %#04x after round trip", bits, uint16(got))
		}
	}
}
