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

	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

func mustObject(op string, obj Value) {
	if obj.Type != abi.TypeTypedObject && obj.Type != abi.TypeUntypedObject {
		panic(fmt.Sprintf("bridge: %s on a %s value", op, obj.Type))
	}
}

// GetField returns a field of obj. The caller owns the returned value and
// releases it. GetField panics if obj is not an object.
func (h *Host) GetField(obj Value, name string) (Value, error) {
	mustObject("GetField", obj)
	if err := h.live(); err != nil {
		return Value{}, err
	}
	v, err := h.b.GetField(obj.Handle, name)
	return v, errors.Wrapf(err, "field %q", name)
}

// SetField stores v in a field of obj. The engine keeps its own reference;
// the caller still owns v. SetField panics if obj is not an object.
func (h *Host) SetField(obj Value, name string, v Value) error {
	mustObject("SetField", obj)
	if err := h.live(); err != nil {
		return err
	}
	return errors.Wrapf(h.b.SetField(obj.Handle, name, v), "field %q", name)
}

// ReadVariable returns a named value from the engine namespace, owned by
// the caller.
func (h *Host) ReadVariable(name string) (Value, bool) {
	if h.closed.Load() {
		return Value{}, false
	}
	return h.b.ReadVariable(name)
}

// WriteVariable binds name to v in the engine namespace. The caller still
// owns v.
func (h *Host) WriteVariable(name string, v Value) error {
	if err := h.live(); err != nil {
		return err
	}
	return errors.Wrapf(h.b.WriteVariable(name, v), "variable %q", name)
}

// GetType returns the TYPEINFO of a value held by the engine.
func (h *Host) GetType(obj Value) Value {
	if obj.IsNull() || !obj.Type.HasHandle() {
		return Value{Type: abi.TypeTypeInfo, Handle: h.GetPrimitiveTypeHandle(obj.Type)}
	}
	return Value{Type: abi.TypeTypeInfo, Handle: h.b.GetType(obj.Handle)}
}
