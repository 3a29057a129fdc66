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

package bridge

import (
	"fmt"
	"unsafe"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
)

// LockError reports a Lock that did not return LockOK.
type LockError struct {
	Result abi.LockResult
}

func (e *LockError) Error() string {
	return fmt.Sprintf("bridge: lock failed: %s", e.Result)
}

func lockErr(r abi.LockResult) error {
	if r == abi.LockOK {
		return nil
	}
	return &LockError{Result: r}
}

// Lock makes the array data of v addressable in res. elemType may be 0 to
// skip the element check. The pointer stays valid until the matching
// Unlock; a second Lock before that returns LockInUse.
func (h *Host) Lock(v Value, elemType Handle, mode abi.LockMode, res abi.MemResource) (unsafe.Pointer, abi.LockResult) {
	if v.IsNull() || !v.Type.HasHandle() {
		return nil, abi.LockInvalid
	}
	if h.closed.Load() {
		return nil, abi.LockInvalid
	}
	return h.b.Lock(v.Handle, elemType, mode, res)
}

// Unlock ends a Lock made with the same mode and resource.
func (h *Host) Unlock(v Value, mode abi.LockMode, res abi.MemResource) {
	if v.IsNull() || h.closed.Load() {
		return
	}
	h.b.Unlock(v.Handle, mode, res)
}

// LockSlice locks v and returns its elements as a []T. T must match the
// array's element type and the session precision.
func LockSlice[T kern.Elements](h *Host, v Value, mode abi.LockMode, res abi.MemResource) ([]T, abi.LockResult) {
	et := TypeHandleOf[T](h)
	if et == 0 {
		return nil, abi.LockInvalid
	}
	p, r := h.Lock(v, et, mode, res)
	if r != abi.LockOK {
		return nil, r
	}
	_, dims := h.GetNDims(v)
	n := kern.Prod(dims)
	if n == 0 || p == nil {
		return []T{}, r
	}
	return unsafe.Slice((*T)(p), n), r
}

// LockNCube locks v and wraps it in a view of its full shape.
func LockNCube[T kern.Elements](h *Host, v Value, mode abi.LockMode, res abi.MemResource) (kern.NCube[T], abi.LockResult) {
	data, r := LockSlice[T](h, v, mode, res)
	if r != abi.LockOK {
		return kern.NCube[T]{}, r
	}
	_, dims := h.GetNDims(v)
	return kern.MakeNCube(data, dims...), r
}

// AutoLock locks v and returns its view and the matching unlock, meant for
// defer:
//
//	x, unlock, err := bridge.AutoLock[float32](h, v, abi.LockRead, abi.MemCPU)
//	if err != nil {
//		return err
//	}
//	defer unlock()
func AutoLock[T kern.Elements](h *Host, v Value, mode abi.LockMode, res abi.MemResource) (kern.NCube[T], func(), error) {
	view, r := LockNCube[T](h, v, mode, res)
	if err := lockErr(r); err != nil {
		return kern.NCube[T]{}, func() {}, err
	}
	return view, func() { h.Unlock(v, mode, res) }, nil
}

// Cooperative keeps an array referenced and locked for as long as the
// host side works on it. Close unlocks and drops the reference.
type Cooperative[T kern.Elements] struct {
	h    *Host
	v    Value
	mode abi.LockMode
	res  abi.MemResource
	view kern.NCube[T]
}

// NewCooperative takes a reference to v and locks it.
func NewCooperative[T kern.Elements](h *Host, v Value, mode abi.LockMode, res abi.MemResource) (*Cooperative[T], error) {
	h.AddRef(v)
	view, r := LockNCube[T](h, v, mode, res)
	if err := lockErr(r); err != nil {
		_ = h.ReleaseRef(&v)
		return nil, err
	}
	return &Cooperative[T]{h: h, v: v, mode: mode, res: res, view: view}, nil
}

// View returns the locked data.
func (c *Cooperative[T]) View() kern.NCube[T] { return c.view }

// Elems returns the locked data as a flat slice.
func (c *Cooperative[T]) Elems() []T { return c.view.Elems() }

// Value returns a new reference to the array; the caller releases it.
func (c *Cooperative[T]) Value() Value {
	c.h.AddRef(c.v)
	return c.v
}

// Close unlocks the array and drops the reference. It is idempotent.
func (c *Cooperative[T]) Close() error {
	if c.v.IsNull() {
		return nil
	}
	c.h.Unlock(c.v, c.mode, c.res)
	c.view = kern.NCube[T]{}
	err := c.h.ReleaseRef(&c.v)
	c.v = Value{}
	return err
}

func coop[T kern.Elements](h *Host, dims []int) (*Cooperative[T], error) {
	et := TypeHandleOf[T](h)
	if et == 0 {
		return nil, &LockError{Result: abi.LockInvalid}
	}
	v, err := h.CreateNCube(et, dims...)
	if err != nil {
		return nil, err
	}
	c, err := NewCooperative[T](h, v, abi.LockReadWrite, abi.MemCPU)
	// The cooperative holds its own reference.
	if rerr := h.ReleaseRef(&v); err == nil {
		err = rerr
	}
	return c, err
}

// Uninit allocates an array of T and returns it locked for read-write on
// the CPU. Its contents are unspecified.
func Uninit[T kern.Elements](h *Host, dims ...int) (*Cooperative[T], error) {
	return coop[T](h, dims)
}

// Zeros is Uninit with every element set to zero.
func Zeros[T kern.Elements](h *Host, dims ...int) (*Cooperative[T], error) {
	c, err := coop[T](h, dims)
	if err != nil {
		return nil, err
	}
	clear(c.Elems())
	return c, nil
}

// Ones is Uninit with every element set to one.
func Ones[T kern.Elements](h *Host, dims ...int) (*Cooperative[T], error) {
	c, err := coop[T](h, dims)
	if err != nil {
		return nil, err
	}
	data := c.Elems()
	for i := range data {
		data[i] = T(1)
	}
	return c, nil
}
