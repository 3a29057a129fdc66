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
	"fmt"
	"math"
	"math/cmplx"
	"unsafe"
)

// Accessor carries the boundary policy and error sink used by the generic
// element accessors. The zero Accessor is unchecked with no sink.
//
// Debug turns checked out-of-range accesses into panics after the failure
// is recorded, and guards unchecked accesses so that they read the zero
// value instead of aliasing other elements.
type Accessor struct {
	Policy Policy
	Sink   *ErrorSink
	Debug  bool
}

// offset folds pos onto a linear index into dims. width is the number of
// contiguous lanes that start at pos along the last axis; lanes are only
// range-checked here, folding policies handle them one lane at a time.
func (a Accessor) offset(dims, pos []int, width int) (int, bool) {
	if len(pos) != len(dims) {
		panic(fmt.Sprintf("kern: %d-index access into rank-%d view", len(pos), len(dims)))
	}
	last := len(dims) - 1
	ind := 0
	for i, p := range pos {
		n := dims[i]
		if i == last {
			n -= width - 1
		}
		q, ok := a.Policy.fold(p, n)
		if !ok && (a.Policy != Unchecked || a.Debug) {
			return 0, false
		}
		ind = ind*dims[i] + q
	}
	return ind, true
}

// outOfBounds applies the policy's out-of-range behaviour.
func outOfBounds[T any](a Accessor, data []T) {
	if a.Policy != Checked {
		return
	}
	var zero T
	r := ErrorRecord{
		Target:      uintptr(unsafe.Pointer(unsafe.SliceData(data))),
		TargetBytes: len(data) * int(unsafe.Sizeof(zero)),
		Code:        CodeOutOfBounds,
	}
	a.Sink.Record(r)
	if a.Debug {
		panic(&KernelError{ErrorRecord: r})
	}
}

// GetAt reads the element at pos.
func GetAt[T any](a Accessor, v View[T], pos ...int) T {
	data := v.Elems()
	ind, ok := a.offset(v.Shape(), pos, 1)
	if !ok {
		outOfBounds(a, data)
		var zero T
		return zero
	}
	return data[ind]
}

// RefAt returns a pointer to the element at pos. An out-of-range access
// under a non-folding policy returns a pointer to a detached zero value, so
// writes through it are lost.
func RefAt[T any](a Accessor, v View[T], pos ...int) *T {
	data := v.Elems()
	ind, ok := a.offset(v.Shape(), pos, 1)
	if !ok {
		outOfBounds(a, data)
		return new(T)
	}
	return &data[ind]
}

// SetAt stores val at pos.
func SetAt[T any](a Accessor, v View[T], val T, pos ...int) {
	data := v.Elems()
	ind, ok := a.offset(v.Shape(), pos, 1)
	if !ok {
		outOfBounds(a, data)
		return
	}
	if a.Policy == Checked && !isFinite(val) {
		a.Sink.Record(ErrorRecord{
			Target:      uintptr(unsafe.Pointer(&data[ind])),
			TargetBytes: int(unsafe.Sizeof(val)),
			Code:        CodeNaNOrInf,
		})
	}
	data[ind] = val
}

// GetVecAt reads len(dst) contiguous elements along the last axis starting
// at pos into dst and returns dst. Under non-folding policies the start must
// lie in [0, dim-len(dst)]; otherwise dst is zeroed.
func GetVecAt[T any](a Accessor, v View[T], dst []T, pos ...int) []T {
	data := v.Elems()
	dims := v.Shape()
	if a.Policy.Folds() {
		lane := append([]int(nil), pos...)
		last := len(lane) - 1
		for k := range dst {
			lane[last] = pos[last] + k
			ind, ok := a.offset(dims, lane, 1)
			if !ok {
				var zero T
				dst[k] = zero
				continue
			}
			dst[k] = data[ind]
		}
		return dst
	}
	ind, ok := a.offset(dims, pos, len(dst))
	if !ok {
		outOfBounds(a, data)
		clear(dst)
		return dst
	}
	copy(dst, data[ind:ind+len(dst)])
	return dst
}

// SetVecAt stores the elements of src contiguously along the last axis
// starting at pos, with the same start range as GetVecAt.
func SetVecAt[T any](a Accessor, v View[T], src []T, pos ...int) {
	data := v.Elems()
	dims := v.Shape()
	if a.Policy.Folds() {
		lane := append([]int(nil), pos...)
		last := len(lane) - 1
		for k, val := range src {
			lane[last] = pos[last] + k
			if ind, ok := a.offset(dims, lane, 1); ok {
				data[ind] = val
			}
		}
		return
	}
	ind, ok := a.offset(dims, pos, len(src))
	if !ok {
		outOfBounds(a, data)
		return
	}
	if a.Policy == Checked {
		for k, val := range src {
			if !isFinite(val) {
				a.Sink.Record(ErrorRecord{
					Target:      uintptr(unsafe.Pointer(&data[ind+k])),
					TargetBytes: int(unsafe.Sizeof(val)),
					Code:        CodeNaNOrInf,
				})
				break
			}
		}
	}
	copy(data[ind:], src)
}

func isFinite(v any) bool {
	switch x := v.(type) {
	case float32:
		return !math.IsNaN(float64(x)) && !math.IsInf(float64(x), 0)
	case float64:
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	case Float16:
		return !x.IsNaN() && !x.IsInf()
	case complex64:
		c := complex128(x)
		return !cmplx.IsNaN(c) && !cmplx.IsInf(c)
	case complex128:
		return !cmplx.IsNaN(x) && !cmplx.IsInf(x)
	}
	return true
}

// Rank-specific forms, named after the kernel accessor families. Each one
// forwards to GetAt, SetAt, RefAt, GetVecAt or SetVecAt.

// VectorGetAt reads v[i].
func VectorGetAt[T any](a Accessor, v Vector[T], i int) T {
	return GetAt[T](a, v, i)
}

// VectorSetAt stores val at v[i].
func VectorSetAt[T any](a Accessor, v Vector[T], val T, i int) {
	SetAt[T](a, v, val, i)
}

// VectorRefAt returns a pointer to v[i], or to a detached zero when the
// index is rejected.
func VectorRefAt[T any](a Accessor, v Vector[T], i int) *T {
	return RefAt[T](a, v, i)
}

// VectorGetVecAt reads len(dst) elements of v starting at i.
func VectorGetVecAt[T any](a Accessor, v Vector[T], dst []T, i int) []T {
	return GetVecAt[T](a, v, dst, i)
}

// VectorSetVecAt stores src into v starting at i.
func VectorSetVecAt[T any](a Accessor, v Vector[T], src []T, i int) {
	SetVecAt[T](a, v, src, i)
}

// MatrixGetAt reads m[i, j].
func MatrixGetAt[T any](a Accessor, m Matrix[T], i, j int) T {
	return GetAt[T](a, m, i, j)
}

// MatrixSetAt stores val at m[i, j].
func MatrixSetAt[T any](a Accessor, m Matrix[T], val T, i, j int) {
	SetAt[T](a, m, val, i, j)
}

// MatrixRefAt returns a pointer to m[i, j], or to a detached zero when the
// index is rejected.
func MatrixRefAt[T any](a Accessor, m Matrix[T], i, j int) *T {
	return RefAt[T](a, m, i, j)
}

// MatrixGetVecAt reads len(dst) elements of row i starting at column j.
func MatrixGetVecAt[T any](a Accessor, m Matrix[T], dst []T, i, j int) []T {
	return GetVecAt[T](a, m, dst, i, j)
}

// MatrixSetVecAt stores src into row i starting at column j.
func MatrixSetVecAt[T any](a Accessor, m Matrix[T], src []T, i, j int) {
	SetVecAt[T](a, m, src, i, j)
}

// CubeGetAt reads c[i, j, k].
func CubeGetAt[T any](a Accessor, c Cube[T], i, j, k int) T {
	return GetAt[T](a, c, i, j, k)
}

// CubeSetAt stores val at c[i, j, k].
func CubeSetAt[T any](a Accessor, c Cube[T], val T, i, j, k int) {
	SetAt[T](a, c, val, i, j, k)
}

// CubeRefAt returns a pointer to c[i, j, k], or to a detached zero when
// the index is rejected.
func CubeRefAt[T any](a Accessor, c Cube[T], i, j, k int) *T {
	return RefAt[T](a, c, i, j, k)
}

// CubeGetVecAt reads len(dst) elements along the last axis from (i, j, k).
func CubeGetVecAt[T any](a Accessor, c Cube[T], dst []T, i, j, k int) []T {
	return GetVecAt[T](a, c, dst, i, j, k)
}

// CubeSetVecAt stores src along the last axis from (i, j, k).
func CubeSetVecAt[T any](a Accessor, c Cube[T], src []T, i, j, k int) {
	SetVecAt[T](a, c, src, i, j, k)
}

// NCubeGetAt reads the element at pos.
func NCubeGetAt[T any](a Accessor, c NCube[T], pos ...int) T {
	return GetAt[T](a, c, pos...)
}

// NCubeSetAt stores val at pos.
func NCubeSetAt[T any](a Accessor, c NCube[T], val T, pos ...int) {
	SetAt[T](a, c, val, pos...)
}

// NCubeRefAt returns a pointer to the element at pos, or to a detached zero
// when the index is rejected.
func NCubeRefAt[T any](a Accessor, c NCube[T], pos ...int) *T {
	return RefAt[T](a, c, pos...)
}

// NCubeGetVecAt reads len(dst) elements along the last axis from pos.
func NCubeGetVecAt[T any](a Accessor, c NCube[T], dst []T, pos ...int) []T {
	return GetVecAt[T](a, c, dst, pos...)
}

// NCubeSetVecAt stores src along the last axis from pos.
func NCubeSetVecAt[T any](a Accessor, c NCube[T], src []T, pos ...int) {
	SetVecAt[T](a, c, src, pos...)
}
