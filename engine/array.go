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

package engine

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
)

// cacheLine is the alignment of every array buffer.
const cacheLine = 64

// alignedBytes returns a zeroed buffer of size bytes whose first element
// sits on a cache-line boundary.
func alignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+cacheLine-1)
	off := 0
	if mod := uintptr(unsafe.Pointer(&buf[0])) % cacheLine; mod != 0 {
		off = int(cacheLine - mod)
	}
	return buf[off : off+size : off+size]
}

// elemSize returns the storage width of one element of tag t.
func elemSize(t abi.Tag, p abi.Precision) (int, bool) {
	switch t {
	case abi.TypeScalar:
		return p.ScalarBytes(), true
	case abi.TypeComplexScalar:
		return 2 * p.ScalarBytes(), true
	case abi.TypeInt8, abi.TypeUInt8:
		return 1, true
	case abi.TypeInt16, abi.TypeUInt16:
		return 2, true
	case abi.TypeInt, abi.TypeUInt32:
		return 4, true
	case abi.TypeInt64, abi.TypeUInt64:
		return 8, true
	}
	return 0, false
}

// array is the engine-side storage of every array tag. The host copy and
// the simulated accelerator copy are kept separately; valid flags record
// which side holds current contents. At least one side is always valid.
type array struct {
	elem  abi.Tag
	esize int
	dims  []int
	numel int
	prec  abi.Precision

	mu        sync.Mutex
	host      []byte
	dev       []byte
	hostValid bool
	devValid  bool

	locked   bool
	lockMode abi.LockMode
	lockRes  abi.MemResource
	side     abi.MemResource
}

func (e *Engine) newArray(elem abi.Tag, dims []int) (*array, error) {
	size, ok := elemSize(elem, e.prec)
	if !ok {
		return nil, errors.Errorf("%s is not an element type", elem)
	}
	for _, d := range dims {
		if d < 0 {
			return nil, errors.Errorf("negative dimension in %v", dims)
		}
	}
	if len(dims) == 0 {
		return nil, errors.New("array needs at least one dimension")
	}
	n := kern.Prod(dims)
	a := &array{
		elem:      elem,
		esize:     size,
		dims:      append([]int(nil), dims...),
		numel:     n,
		prec:      e.prec,
		host:      alignedBytes(n * size),
		hostValid: true,
	}
	if e.flags == abi.AllocForceGPULoad && e.dev.hasAccel() {
		if e.reserve(len(a.host)) {
			a.dev = alignedBytes(len(a.host))
			a.devValid = true
		} else {
			e.log.WithField("bytes", len(a.host)).Warn("device budget exhausted, array stays on host")
		}
	}
	return a, nil
}

func (a *array) bytes() int { return a.numel * a.esize }

func (a *array) complex() bool { return a.elem == abi.TypeComplexScalar }

// tag returns the value tag an array of this shape is exchanged as.
func (a *array) tag() abi.Tag {
	rank := len(a.dims)
	if rank == 2 && a.dims[0] == 1 {
		rank = 1
	}
	return abi.ArrayTag(rank, a.complex())
}

// value wraps h as a Value carrying a's inline dims.
func (a *array) value(h abi.Handle) abi.Value {
	v := abi.Value{Type: a.tag(), Handle: h, Dims: [3]int{1, 1, 1}}
	for i := 0; i < len(a.dims) && i < 3; i++ {
		v.Dims[i] = a.dims[i]
	}
	if len(a.dims) == 1 {
		v.Dims = [3]int{1, a.dims[0], 1}
	}
	return v
}

// syncHost makes the host copy current. Callers hold a.mu.
func (a *array) syncHost() {
	if !a.hostValid {
		copy(a.host, a.dev)
		a.hostValid = true
	}
}

// withHost runs fn over the current host bytes. A write marks the host
// authoritative. Locked arrays belong to the host program and are refused.
func (a *array) withHost(write bool, fn func(b []byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return errors.New("array is locked by the host")
	}
	a.syncHost()
	fn(a.host)
	if write {
		a.devValid = false
	}
	return nil
}

// floats decodes the real elements, or the real parts of complex ones,
// into float64. For complex arrays it also returns the imaginary parts.
func (a *array) floats() (re, im []float64, err error) {
	re = make([]float64, a.numel)
	if a.complex() {
		im = make([]float64, a.numel)
	}
	err = a.withHost(false, func(b []byte) {
		decode(a.elem, a.esize, b, re, im)
	})
	return re, im, err
}

// setFloats encodes re (and im for complex arrays) into the host copy.
// Integer elements saturate.
func (a *array) setFloats(re, im []float64) error {
	return a.withHost(true, func(b []byte) {
		encode(a.elem, a.esize, b, re, im)
	})
}

func view[T any](b []byte) []T {
	if len(b) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), len(b)/int(unsafe.Sizeof(zero)))
}

func widen[T kern.Lanes](src []T, dst []float64) {
	for i, v := range src {
		dst[i] = float64(v)
	}
}

func narrowFloat[T kern.Floats](dst []T, src []float64) {
	for i, v := range src {
		dst[i] = T(v)
	}
}

func narrowInt[T kern.Integers](dst []T, src []float64) {
	for i, v := range src {
		dst[i] = kern.ConvertSat[T](v)
	}
}

func decode(elem abi.Tag, esize int, b []byte, re, im []float64) {
	switch elem {
	case abi.TypeScalar:
		if esize == 4 {
			widen(view[float32](b), re)
		} else {
			widen(view[float64](b), re)
		}
	case abi.TypeComplexScalar:
		if esize == 8 {
			for i, c := range view[complex64](b) {
				re[i], im[i] = float64(real(c)), float64(imag(c))
			}
		} else {
			for i, c := range view[complex128](b) {
				re[i], im[i] = real(c), imag(c)
			}
		}
	case abi.TypeInt:
		widen(view[int32](b), re)
	case abi.TypeInt8:
		widen(view[int8](b), re)
	case abi.TypeInt16:
		widen(view[int16](b), re)
	case abi.TypeInt64:
		widen(view[int64](b), re)
	case abi.TypeUInt8:
		widen(view[uint8](b), re)
	case abi.TypeUInt16:
		widen(view[uint16](b), re)
	case abi.TypeUInt32:
		widen(view[uint32](b), re)
	case abi.TypeUInt64:
		widen(view[uint64](b), re)
	}
}

func encode(elem abi.Tag, esize int, b []byte, re, im []float64) {
	switch elem {
	case abi.TypeScalar:
		if esize == 4 {
			narrowFloat(view[float32](b), re)
		} else {
			narrowFloat(view[float64](b), re)
		}
	case abi.TypeComplexScalar:
		if esize == 8 {
			dst := view[complex64](b)
			for i := range dst {
				dst[i] = complex(float32(re[i]), float32(part(im, i)))
			}
		} else {
			dst := view[complex128](b)
			for i := range dst {
				dst[i] = complex(re[i], part(im, i))
			}
		}
	case abi.TypeInt:
		narrowInt(view[int32](b), re)
	case abi.TypeInt8:
		narrowInt(view[int8](b), re)
	case abi.TypeInt16:
		narrowInt(view[int16](b), re)
	case abi.TypeInt64:
		narrowInt(view[int64](b), re)
	case abi.TypeUInt8:
		narrowInt(view[uint8](b), re)
	case abi.TypeUInt16:
		narrowInt(view[uint16](b), re)
	case abi.TypeUInt32:
		narrowInt(view[uint32](b), re)
	case abi.TypeUInt64:
		narrowInt(view[uint64](b), re)
	}
}

func part(s []float64, i int) float64 {
	if s == nil {
		return 0
	}
	return s[i]
}
