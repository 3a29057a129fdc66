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
	"unsafe"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
)

func (h *Host) registerPrimitives() error {
	for t := abi.TypeVoid; t < abi.NumTags; t++ {
		name := t.TypeName()
		if name == "" {
			continue
		}
		th := h.b.ParseType(name)
		if th == 0 {
			return errors.Errorf("engine does not know primitive type %q", name)
		}
		h.prims[t] = th
	}
	return nil
}

// GetPrimitiveTypeHandle returns the type handle registered for t when the
// session opened. TYPEDOBJECT has no primitive type and yields 0.
func (h *Host) GetPrimitiveTypeHandle(t Tag) Handle {
	if !t.Valid() {
		return 0
	}
	return h.prims[t]
}

// LookupTypeHandle resolves a type by name, module-qualified names first.
// It returns 0 for unregistered types.
func (h *Host) LookupTypeHandle(name string) Handle {
	return h.b.ParseType(name)
}

// NCubeHandle resolves the type of an n-dimensional array, cube{n} or
// ccube{n}.
func (h *Host) NCubeHandle(rank int, complex bool) Handle {
	return h.b.ParseType(abi.NCubeTypeName(rank, complex))
}

// IsRefCounted reports whether values tagged t carry a refcounted handle.
func IsRefCounted(t Tag) bool { return t.IsRefCounted() }

// TagOf returns the element tag used for arrays of T. Scalar tags depend on
// the session precision; see TypeHandleOf.
func TagOf[T kern.Elements]() Tag {
	var zero T
	switch any(zero).(type) {
	case float32, float64:
		return abi.TypeScalar
	case complex64, complex128:
		return abi.TypeComplexScalar
	case int32:
		return abi.TypeInt
	case int8:
		return abi.TypeInt8
	case int16:
		return abi.TypeInt16
	case int64:
		return abi.TypeInt64
	case uint8:
		return abi.TypeUInt8
	case uint16:
		return abi.TypeUInt16
	case uint32:
		return abi.TypeUInt32
	case uint64:
		return abi.TypeUInt64
	}
	return abi.TypeVoid
}

// TypeHandleOf maps a Go element type to the handle of its engine type.
// It returns 0 when T does not match the engine's element layout, for
// instance float64 in a single-precision session.
func TypeHandleOf[T kern.Elements](h *Host) Handle {
	t := TagOf[T]()
	if t == abi.TypeVoid || !fits[T](t, h.Precision()) {
		return 0
	}
	return h.prims[t]
}

// fits reports whether T has the byte width of elements tagged t.
func fits[T kern.Elements](t Tag, prec abi.Precision) bool {
	var zero T
	size := int(unsafe.Sizeof(zero))
	switch t {
	case abi.TypeScalar:
		return size == prec.ScalarBytes()
	case abi.TypeComplexScalar:
		return size == 2*prec.ScalarBytes()
	case abi.TypeInt:
		return size == 4
	}
	return true
}
