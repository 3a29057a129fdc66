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

	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// typeInfo backs a TYPEINFO handle. Primitive types are created finalized;
// user types accept fields, parameters and methods until Finalize.
type typeInfo struct {
	tag    abi.Tag
	module string
	name   string

	mu        sync.RWMutex
	fields    []fieldInfo
	params    []abi.Handle
	methods   map[string]*funcRecord
	finalized bool
}

type fieldInfo struct {
	name string
	typ  *typeInfo
}

func (t *typeInfo) qualified() string {
	if t.module == "" {
		return t.name
	}
	return t.module + "." + t.name
}

func (t *typeInfo) field(name string) (fieldInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, f := range t.fields {
		if f.name == name {
			return f, true
		}
	}
	return fieldInfo{}, false
}

func (t *typeInfo) isFinal() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.finalized
}

// instance backs TYPEDOBJECT and UNTYPEDOBJECT handles. Typed instances
// have exactly the fields of their type; untyped ones grow on SetField.
type instance struct {
	typ   *typeInfo
	typeH abi.Handle

	mu     sync.Mutex
	fields map[string]abi.Value
}

// CreateType registers an empty user type in module.
func (e *Engine) CreateType(module, name string) (abi.Handle, error) {
	if name == "" {
		return 0, errors.New("type needs a name")
	}
	t := &typeInfo{tag: abi.TypeTypedObject, module: module, name: name, methods: map[string]*funcRecord{}}
	if _, ok := e.primitive(t.qualified()); ok {
		return 0, errors.Errorf("%s is a primitive type", name)
	}
	h := e.arena.pin(abi.TypeTypeInfo, t)
	if err := e.cat.insertType(&typeRecord{Qualified: t.qualified(), Name: name, Module: module, Handle: h}); err != nil {
		e.arena.unpin(h)
		return 0, err
	}
	return h, nil
}

func (e *Engine) openType(th abi.Handle) (*typeInfo, error) {
	t, ok := lookup[*typeInfo](e.arena, th)
	if !ok || t.tag != abi.TypeTypedObject {
		return nil, errors.Errorf("handle %d is not a user type", th)
	}
	return t, nil
}

// AddField appends a field of type ft to th.
func (e *Engine) AddField(th abi.Handle, name string, ft abi.Handle) error {
	t, err := e.openType(th)
	if err != nil {
		return err
	}
	ftype, ok := lookup[*typeInfo](e.arena, ft)
	if !ok {
		return errors.Errorf("field %s: unknown type handle %d", name, ft)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return errors.Errorf("type %s is finalized", t.qualified())
	}
	for _, f := range t.fields {
		if f.name == name {
			return errors.Errorf("type %s already has field %s", t.qualified(), name)
		}
	}
	t.fields = append(t.fields, fieldInfo{name: name, typ: ftype})
	return nil
}

// AddParameter declares a generic parameter of th and returns the handle
// of the placeholder type that stands for it.
func (e *Engine) AddParameter(th abi.Handle, name string) (abi.Handle, error) {
	t, err := e.openType(th)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return 0, errors.Errorf("type %s is finalized", t.qualified())
	}
	ph := e.arena.pin(abi.TypeTypeInfo, &typeInfo{tag: abi.TypeVoid, module: t.qualified(), name: name, finalized: true})
	t.params = append(t.params, ph)
	return ph, nil
}

func (e *Engine) addMethod(th abi.Handle, module, sig, builtin string) error {
	t, err := e.openType(th)
	if err != nil {
		return err
	}
	name, params, variadic, err := parseSignature(sig)
	if err != nil {
		return err
	}
	rec := &funcRecord{
		Signature: canonical(name, params, variadic),
		Name:      name,
		Module:    module,
		Builtin:   builtin,
		Params:    params,
		Variadic:  variadic,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalized {
		return errors.Errorf("type %s is finalized", t.qualified())
	}
	t.methods[rec.Signature] = rec
	return nil
}

// FinalizeType makes th immutable and instantiable.
func (e *Engine) FinalizeType(th abi.Handle) error {
	t, err := e.openType(th)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.finalized = true
	t.mu.Unlock()
	return nil
}

// CreateObject instantiates th. A user type yields a typed object with
// every field set to its zero value; anything else, including the null
// handle, yields an empty untyped object.
func (e *Engine) CreateObject(th abi.Handle) (abi.Handle, error) {
	t, ok := lookup[*typeInfo](e.arena, th)
	if !ok || t.tag != abi.TypeTypedObject {
		if th != 0 && !ok {
			return 0, errors.Errorf("unknown type handle %d", th)
		}
		oh, _ := e.primitive("object")
		return e.arena.put(abi.TypeUntypedObject, &instance{typeH: oh, fields: map[string]abi.Value{}}), nil
	}
	if !t.isFinal() {
		return 0, errors.Errorf("type %s is not finalized", t.qualified())
	}

	inst := &instance{typ: t, typeH: th, fields: make(map[string]abi.Value, len(t.fields))}
	t.mu.RLock()
	for _, f := range t.fields {
		inst.fields[f.name] = zeroValue(f.typ.tag)
	}
	t.mu.RUnlock()
	return e.arena.put(abi.TypeTypedObject, inst), nil
}

func zeroValue(t abi.Tag) abi.Value {
	switch {
	case t == abi.TypeScalar:
		return abi.Scalar(0)
	case t == abi.TypeComplexScalar:
		return abi.Complex(0)
	case t.IsInteger():
		return abi.IntOf(t, 0)
	}
	return abi.Void()
}

// coerce converts v to a value acceptable for a slot of type ft.
func (e *Engine) coerce(ft *typeInfo, v abi.Value) (abi.Value, bool) {
	switch {
	case ft.tag == abi.TypeVoid || ft.tag == v.Type:
		if ft.tag == abi.TypeTypedObject {
			inst, ok := lookup[*instance](e.arena, v.Handle)
			return v, ok && inst.typ == ft
		}
		return v, true
	case ft.tag == abi.TypeScalar && v.Type.IsInteger():
		return abi.Scalar(float64(v.Int)), true
	case ft.tag == abi.TypeComplexScalar && (v.Type == abi.TypeScalar || v.Type.IsInteger()):
		return abi.Complex(complex(v.Float(), 0)), true
	case ft.tag.IsInteger() && v.Type.IsInteger():
		return abi.IntOf(ft.tag, v.Int), true
	case ft.tag.IsArray() && v.Type.IsArray():
		return v, ft.tag.IsComplexArray() == v.Type.IsComplexArray()
	}
	return v, false
}

func (e *Engine) instance(obj abi.Handle) (*instance, error) {
	inst, ok := lookup[*instance](e.arena, obj)
	if !ok {
		return nil, errors.Errorf("handle %d is not an object", obj)
	}
	return inst, nil
}

// GetField returns a retained copy of the field: the caller owns the
// result.
func (e *Engine) GetField(obj abi.Handle, name string) (abi.Value, error) {
	inst, err := e.instance(obj)
	if err != nil {
		return abi.Value{}, err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	v, ok := inst.fields[name]
	if !ok {
		return abi.Value{}, errors.Errorf("object has no field %s", name)
	}
	return e.retain(v), nil
}

// SetField stores a retained copy of v. The previous value is released.
func (e *Engine) SetField(obj abi.Handle, name string, v abi.Value) error {
	inst, err := e.instance(obj)
	if err != nil {
		return err
	}
	if inst.typ != nil {
		f, ok := inst.typ.field(name)
		if !ok {
			return errors.Errorf("type %s has no field %s", inst.typ.qualified(), name)
		}
		if v, ok = e.coerce(f.typ, v); !ok {
			return errors.Errorf("field %s.%s: cannot store %s", inst.typ.qualified(), name, v.Type)
		}
	}

	inst.mu.Lock()
	old, had := inst.fields[name]
	inst.fields[name] = e.retain(v)
	inst.mu.Unlock()
	if had {
		e.drop(old)
	}
	return nil
}

// GetType returns the TYPEINFO handle describing h.
func (e *Engine) GetType(h abi.Handle) abi.Handle {
	o, ok := e.arena.get(h)
	if !ok {
		return 0
	}
	var name string
	switch v := o.val.(type) {
	case *instance:
		return v.typeH
	case *array:
		if len(v.dims) > 3 {
			name = abi.NCubeTypeName(len(v.dims), v.complex())
		} else {
			name = v.tag().TypeName()
		}
	default:
		name = o.kind.TypeName()
	}
	t, _ := e.primitive(name)
	return t
}

type method struct {
	typ *typeInfo
	rec *funcRecord
}

type methodKey struct {
	typ abi.Handle
	sig string
}

// LookupMethod resolves sig among the methods of th. Results are cached
// until Close.
func (e *Engine) LookupMethod(th abi.Handle, sig string) abi.Handle {
	t, err := e.openType(th)
	if err != nil {
		return 0
	}
	key := methodKey{th, Canonical(sig)}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.methods[key]; ok {
		return h
	}

	t.mu.RLock()
	rec, ok := t.methods[key.sig]
	if !ok {
		for _, m := range t.methods {
			if m.Name == key.sig {
				rec, ok = m, true
				break
			}
		}
	}
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	if h, ok := e.methods[methodKey{th, rec.Signature}]; ok {
		e.methods[key] = h
		return h
	}
	h := e.arena.pin(abi.TypeMethod, &method{typ: t, rec: rec})
	e.methods[key] = h
	e.methods[methodKey{th, rec.Signature}] = h
	return h
}

// MethodCall invokes method m on target. The target is passed to the
// builtin as its first argument.
func (e *Engine) MethodCall(m abi.Handle, target abi.Value, in []abi.Value, out []abi.Value) error {
	md, ok := lookup[*method](e.arena, m)
	if !ok {
		return errors.Errorf("handle %d is not a method", m)
	}
	inst, ok := lookup[*instance](e.arena, target.Handle)
	if !ok || inst.typ != md.typ {
		return errors.Errorf("method %s needs a %s target", md.rec.Signature, md.typ.qualified())
	}
	args := append([]abi.Value{target}, in...)
	if !accepts(e, md.rec, in) {
		return errors.Errorf("arguments do not match %s", md.rec.Signature)
	}
	fn, ok := e.builtins[md.rec.Builtin]
	if !ok {
		return errors.Errorf("method %s: builtin %s not registered", md.rec.Signature, md.rec.Builtin)
	}
	return e.run(md.typ.qualified()+"."+md.rec.Signature, fn, args, out)
}
