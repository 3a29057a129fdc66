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

import "fmt"

// Policy selects how an accessor treats an index outside its axis.
type Policy uint8

const (
	// Unchecked performs no range test. An out-of-range index may alias
	// another element or panic on the slice bound. When Accessor.Debug is
	// set, out-of-range reads return the zero value and writes are
	// dropped instead.
	Unchecked Policy = iota

	// Checked records CodeOutOfBounds in the accessor's sink (first error
	// wins) and returns the zero value. Writes are dropped, and checked
	// writes of NaN or Inf record CodeNaNOrInf without blocking the store.
	Checked

	// Safe returns the zero value and drops writes without recording.
	Safe

	// Circular folds the index modulo the axis length.
	Circular

	// Mirror reflects the index about the axis edges.
	Mirror

	// Clamped saturates the index into [0, dim-1].
	Clamped
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case Unchecked:
		return "unchecked"
	case Checked:
		return "checked"
	case Safe:
		return "safe"
	case Circular:
		return "circular"
	case Mirror:
		return "mirror"
	case Clamped:
		return "clamped"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// Folds reports whether the policy maps every index onto a valid one.
func (p Policy) Folds() bool {
	return p == Circular || p == Mirror || p == Clamped
}

// fold maps i onto [0, n). ok is false when i is out of range and the
// policy does not fold; i is then returned unchanged.
func (p Policy) fold(i, n int) (int, bool) {
	if uint(i) < uint(n) {
		return i, true
	}
	if n <= 0 {
		return i, false
	}
	switch p {
	case Circular:
		return Periodize(i, n), true
	case Mirror:
		return MirrorExt(i, n), true
	case Clamped:
		return Saturate(i, n-1), true
	}
	return i, false
}

// BoundaryAccessMode is the engine-side numbering of boundary handling,
// as carried in kernel metadata.
type BoundaryAccessMode int

const (
	ModeDefault BoundaryAccessMode = iota
	ModeUnchecked
	ModeZero
	ModeCircular
	ModeMirror
	ModeClamp
)

// Policy returns the accessor policy for m. The default mode is checked.
func (m BoundaryAccessMode) Policy() Policy {
	switch m {
	case ModeUnchecked:
		return Unchecked
	case ModeZero:
		return Safe
	case ModeCircular:
		return Circular
	case ModeMirror:
		return Mirror
	case ModeClamp:
		return Clamped
	default:
		return Checked
	}
}

// ParsePolicy maps a policy name back to its value.
func ParsePolicy(s string) (Policy, error) {
	for p := Unchecked; p <= Clamped; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return Checked, fmt.Errorf("kern: unknown boundary policy %q", s)
}
