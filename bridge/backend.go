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
	"github.com/ajroetker/go-numbridge/kern/contrib/workerpool"
)

type (
	Value  = abi.Value
	Handle = abi.Handle
	Tag    = abi.Tag
)

// Backend is the engine as the host sees it. *engine.Engine implements it
// directly; engines reached through an abi.Table are adapted with
// tableBackend.
type Backend interface {
	FunctionExists(name string) bool
	FunctionCall(name string, in, out []Value) error
	FunctionCallIndirect(fn Handle, in, out []Value) error
	Close() error
	ParseType(name string) Handle
	Delete(h Handle) error

	CreateNDMatrix(elemType Handle, dims []int) (Handle, error)
	CreateString(text string) Handle
	CreateObject(objType Handle) (Handle, error)
	CreateLambda(fnType Handle, fn abi.Delegate) (Handle, error)
	AddRef(h Handle)
	Release(h Handle) bool

	Lock(h, elemType Handle, mode abi.LockMode, res abi.MemResource) (unsafe.Pointer, abi.LockResult)
	Unlock(h Handle, mode abi.LockMode, res abi.MemResource)

	RunApp()
	DoEvents()

	ReadVariable(name string) (Value, bool)
	WriteVariable(name string, v Value) error
	GetField(obj Handle, name string) (Value, error)
	SetField(obj Handle, name string, v Value) error
	GetNDims(h Handle, dims []int) int
	GetType(obj Handle) Handle

	CreateType(module, name string) (Handle, error)
	AddField(t Handle, name string, fieldType Handle) error
	AddParameter(t Handle, name string) (Handle, error)
	FinalizeType(t Handle) error

	LoadSourceModule(path string) error
	LoadBinaryModule(path string) error
	LoadModuleFromSource(name, src string) error
	UnloadModule(name string) bool

	LookupFunction(sig string) Handle
	LookupMethod(t Handle, sig string) Handle
	MethodCall(m Handle, target Value, in, out []Value) error
	EnableProfiling(mode abi.ProfilingMode, output string) error
	QueryProperty(prop abi.HostProperty, param int) ([]byte, bool)

	EngineName() string
	ParallelDo(dims []int, cx workerpool.Complexity, fn func(kern.Lane)) error
	SerialDo(dims []int, fn func(kern.Lane)) error
	Synchronize()
	Precision() abi.Precision

	NewStack() Handle
	StackPush(s Handle, vals []Value) error
	StackPop(s Handle, out []Value) error
	StackClear(s Handle)
	StackCount(s Handle) int
	StackCall(s Handle, name string, nin, nout int) error

	AddReduction(pattern, target string) error
	RemoveReduction(pattern string) bool
}

// tableBackend adapts a bootstrapped function table. Entries that report
// failure with false or a null handle are turned into errors built from
// the table's LastError.
type tableBackend struct {
	t *abi.Table
}

func newTableBackend(b *abi.Block) *tableBackend {
	return &tableBackend{t: &b.Table}
}

// fail converts the engine's last failure into an error. A recorded kernel
// failure comes back as a *kern.KernelError.
func (tb *tableBackend) fail(op string) error {
	msg, rec := tb.t.LastError()
	if rec.Code != kern.CodeNone {
		return errors.WithMessage(&kern.KernelError{ErrorRecord: rec}, op)
	}
	if msg == "" {
		msg = "engine reported failure"
	}
	return errors.Errorf("%s: %s", op, msg)
}

func (tb *tableBackend) check(ok bool, op string) error {
	if ok {
		return nil
	}
	return tb.fail(op)
}

func (tb *tableBackend) handle(h Handle, op string) (Handle, error) {
	if h == 0 {
		return 0, tb.fail(op)
	}
	return h, nil
}

func (tb *tableBackend) FunctionExists(name string) bool { return tb.t.FunctionExists(name) }

func (tb *tableBackend) FunctionCall(name string, in, out []Value) error {
	return tb.check(tb.t.FunctionCall(name, in, out), name)
}

func (tb *tableBackend) FunctionCallIndirect(fn Handle, in, out []Value) error {
	return tb.check(tb.t.FunctionCallIndirect(fn, in, out), "call indirect")
}

func (tb *tableBackend) Close() error { return tb.check(tb.t.Close(), "close") }

func (tb *tableBackend) ParseType(name string) Handle { return tb.t.ParseType(name) }

func (tb *tableBackend) Delete(h Handle) error { return tb.check(tb.t.Delete(h), "delete") }

func (tb *tableBackend) CreateNDMatrix(elemType Handle, dims []int) (Handle, error) {
	return tb.handle(tb.t.CreateNDMatrix(elemType, dims), "create array")
}

func (tb *tableBackend) CreateString(text string) Handle { return tb.t.CreateString(text) }

func (tb *tableBackend) CreateObject(objType Handle) (Handle, error) {
	return tb.handle(tb.t.CreateObject(objType), "create object")
}

func (tb *tableBackend) CreateLambda(fnType Handle, fn abi.Delegate) (Handle, error) {
	return tb.handle(tb.t.CreateLambda(fnType, fn), "create lambda")
}

func (tb *tableBackend) AddRef(h Handle)       { tb.t.AddRef(h) }
func (tb *tableBackend) Release(h Handle) bool { return tb.t.Release(h) }

func (tb *tableBackend) Lock(h, elemType Handle, mode abi.LockMode, res abi.MemResource) (unsafe.Pointer, abi.LockResult) {
	return tb.t.Lock(h, elemType, mode, res)
}

func (tb *tableBackend) Unlock(h Handle, mode abi.LockMode, res abi.MemResource) {
	tb.t.Unlock(h, mode, res)
}

func (tb *tableBackend) RunApp()   { tb.t.RunApp() }
func (tb *tableBackend) DoEvents() { tb.t.DoEvents() }

func (tb *tableBackend) ReadVariable(name string) (Value, bool) {
	var v Value
	ok := tb.t.ReadVariable(name, &v)
	return v, ok
}

func (tb *tableBackend) WriteVariable(name string, v Value) error {
	return tb.check(tb.t.WriteVariable(name, &v), "write "+name)
}

func (tb *tableBackend) GetField(obj Handle, name string) (Value, error) {
	var v Value
	if !tb.t.GetField(obj, name, &v) {
		return Value{}, tb.fail("get field " + name)
	}
	return v, nil
}

func (tb *tableBackend) SetField(obj Handle, name string, v Value) error {
	return tb.check(tb.t.SetField(obj, name, &v), "set field "+name)
}

func (tb *tableBackend) GetNDims(h Handle, dims []int) int { return tb.t.GetNDims(h, dims) }
func (tb *tableBackend) GetType(obj Handle) Handle         { return tb.t.GetType(obj) }

func (tb *tableBackend) CreateType(module, name string) (Handle, error) {
	return tb.handle(tb.t.CreateType(module, name), "create type "+name)
}

func (tb *tableBackend) AddField(t Handle, name string, fieldType Handle) error {
	return tb.check(tb.t.TypeAddField(t, name, fieldType), "add field "+name)
}

func (tb *tableBackend) AddParameter(t Handle, name string) (Handle, error) {
	return tb.handle(tb.t.TypeAddParameter(t, name), "add parameter "+name)
}

func (tb *tableBackend) FinalizeType(t Handle) error {
	return tb.check(tb.t.TypeFinalize(t), "finalize type")
}

func (tb *tableBackend) LoadSourceModule(path string) error {
	return tb.check(tb.t.LoadSourceModule(path), "load "+path)
}

func (tb *tableBackend) LoadBinaryModule(path string) error {
	return tb.check(tb.t.LoadBinaryModule(path), "load "+path)
}

func (tb *tableBackend) LoadModuleFromSource(name, src string) error {
	return tb.check(tb.t.LoadModuleFromSource(name, src), "load module "+name)
}

func (tb *tableBackend) UnloadModule(name string) bool { return tb.t.UnloadModule(name) }

func (tb *tableBackend) LookupFunction(sig string) Handle { return tb.t.LookupFunction(sig) }

func (tb *tableBackend) LookupMethod(t Handle, sig string) Handle {
	return tb.t.LookupMethod(t, sig)
}

func (tb *tableBackend) MethodCall(m Handle, target Value, in, out []Value) error {
	return tb.check(tb.t.MethodCall(m, &target, in, out), "method call")
}

func (tb *tableBackend) EnableProfiling(mode abi.ProfilingMode, output string) error {
	return tb.check(tb.t.EnableProfiling(mode, output), "enable profiling")
}

func (tb *tableBackend) QueryProperty(prop abi.HostProperty, param int) ([]byte, bool) {
	return tb.t.QueryProperty(prop, param)
}

func (tb *tableBackend) EngineName() string { return tb.t.EngineName() }

func (tb *tableBackend) ParallelDo(dims []int, cx workerpool.Complexity, fn func(kern.Lane)) error {
	return tb.check(tb.t.ParallelDo(dims, int(cx), fn), "parallel do")
}

func (tb *tableBackend) SerialDo(dims []int, fn func(kern.Lane)) error {
	return tb.check(tb.t.SerialDo(dims, fn), "serial do")
}

func (tb *tableBackend) Synchronize()             { tb.t.Synchronize() }
func (tb *tableBackend) Precision() abi.Precision { return tb.t.ScalarType() }

func (tb *tableBackend) NewStack() Handle { return tb.t.StackNew() }

func (tb *tableBackend) StackPush(s Handle, vals []Value) error {
	return tb.check(tb.t.StackPush(s, vals), "stack push")
}

func (tb *tableBackend) StackPop(s Handle, out []Value) error {
	return tb.check(tb.t.StackPop(s, out), "stack pop")
}

func (tb *tableBackend) StackClear(s Handle)     { tb.t.StackClear(s) }
func (tb *tableBackend) StackCount(s Handle) int { return tb.t.StackCount(s) }

func (tb *tableBackend) StackCall(s Handle, name string, nin, nout int) error {
	return tb.check(tb.t.StackCall(s, name, nin, nout), "stack call "+name)
}

func (tb *tableBackend) AddReduction(pattern, target string) error {
	return tb.check(tb.t.ReductionAdd(pattern, target), "add reduction")
}

func (tb *tableBackend) RemoveReduction(pattern string) bool {
	return tb.t.ReductionRemove(pattern)
}
