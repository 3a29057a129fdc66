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
	"github.com/lthibault/log"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// Inline values carry no handle and need no release.
var (
	Scalar  = abi.Scalar
	Complex = abi.Complex
	Int     = abi.Int
)

// CreateVector allocates a zeroed vector of n elements of elemType.
func (h *Host) CreateVector(elemType Handle, n int) (Value, error) {
	return h.createArray(elemType, []int{1, n})
}

// CreateMatrix allocates a zeroed d1 x d2 matrix.
func (h *Host) CreateMatrix(elemType Handle, d1, d2 int) (Value, error) {
	return h.createArray(elemType, []int{d1, d2})
}

// CreateCube allocates a zeroed d1 x d2 x d3 cube.
func (h *Host) CreateCube(elemType Handle, d1, d2, d3 int) (Value, error) {
	return h.createArray(elemType, []int{d1, d2, d3})
}

// CreateNCube allocates a zeroed array of any rank. The value carries the
// first three dims inline; GetNDims reports the rest. A single dim makes a
// vector.
func (h *Host) CreateNCube(elemType Handle, dims ...int) (Value, error) {
	if len(dims) == 1 {
		return h.CreateVector(elemType, dims[0])
	}
	return h.createArray(elemType, dims)
}

func (h *Host) createArray(elemType Handle, dims []int) (Value, error) {
	if err := h.live(); err != nil {
		return Value{}, err
	}
	if elemType == 0 {
		return Value{}, errors.New("null element type")
	}
	ah, err := h.b.CreateNDMatrix(elemType, dims)
	if err != nil {
		return Value{}, errors.Wrapf(err, "create %v array", dims)
	}
	rank := len(dims)
	if rank == 2 && dims[0] == 1 {
		rank = 1
	}
	v := Value{
		Type:   abi.ArrayTag(rank, elemType == h.prims[abi.TypeComplexScalar]),
		Handle: ah,
		Dims:   [3]int{1, 1, 1},
	}
	copy(v.Dims[:], dims)
	return v, nil
}

// CreateString stores the first length runes of text in the engine. A
// negative length stores all of it.
func (h *Host) CreateString(text string, length int) Value {
	if length >= 0 {
		if r := []rune(text); length < len(r) {
			text = string(r[:length])
		}
	}
	return Value{Type: abi.TypeString, Handle: h.b.CreateString(text)}
}

// CreateTypedObject instantiates a finalized user type.
func (h *Host) CreateTypedObject(objType Handle) (Value, error) {
	oh, err := h.b.CreateObject(objType)
	if err != nil {
		return Value{}, errors.Wrap(err, "create typed object")
	}
	return Value{Type: abi.TypeTypedObject, Handle: oh}, nil
}

// CreateUntypedObject creates an object that accepts any field. objType
// may be 0 or the handle of the object primitive.
func (h *Host) CreateUntypedObject(objType Handle) (Value, error) {
	if objType == 0 {
		objType = h.prims[abi.TypeUntypedObject]
	}
	oh, err := h.b.CreateObject(objType)
	if err != nil {
		return Value{}, errors.Wrap(err, "create untyped object")
	}
	return Value{Type: abi.TypeUntypedObject, Handle: oh}, nil
}

// CreateLambda exposes fn to the engine as a LAMBDAEXPR of type fnType.
func (h *Host) CreateLambda(fnType Handle, fn abi.Delegate) (Value, error) {
	lh, err := h.b.CreateLambda(fnType, fn)
	if err != nil {
		return Value{}, errors.Wrap(err, "create lambda")
	}
	return Value{Type: abi.TypeLambdaExpr, Handle: lh}, nil
}

// AddRef adds a reference to a refcounted value. Other values are left
// alone.
func (h *Host) AddRef(v Value) {
	if v.Type.IsRefCounted() && !v.IsNull() {
		h.b.AddRef(v.Handle)
	}
}

// ReleaseRef drops a reference to a refcounted value and nulls its handle
// once the engine frees it.
func (h *Host) ReleaseRef(v *Value) error {
	if v.IsNull() || !v.Type.IsRefCounted() {
		return nil
	}
	if err := h.live(); err != nil {
		return err
	}
	if h.b.Release(v.Handle) {
		h.log.With(log.F{"handle": v.Handle, "type": v.Type}).Trace("freed")
		v.Handle = 0
	}
	return nil
}

// DeleteValue releases v whatever its kind. A null handle is a no-op;
// refcounted values drop a reference; other handle-carrying values are
// deleted and nulled.
func (h *Host) DeleteValue(v *Value) error {
	if v.IsNull() || !v.Type.HasHandle() {
		return nil
	}
	if v.Type.IsRefCounted() {
		return h.ReleaseRef(v)
	}
	if err := h.live(); err != nil {
		return err
	}
	if err := h.b.Delete(v.Handle); err != nil {
		return errors.Wrapf(err, "delete %s", v.Type)
	}
	v.Handle = 0
	return nil
}

// GetNDims reports the rank and full dims of an array value. Values that
// are not refcounted have rank 0.
func (h *Host) GetNDims(v Value) (int, []int) {
	if !v.Type.IsRefCounted() || v.IsNull() {
		return 0, nil
	}
	dims := make([]int, 16)
	rank := h.b.GetNDims(v.Handle, dims)
	if rank > len(dims) {
		dims = make([]int, rank)
		rank = h.b.GetNDims(v.Handle, dims)
	}
	return rank, dims[:rank]
}
