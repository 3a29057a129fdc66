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

package abi

import (
	"unsafe"

	"github.com/ajroetker/go-numbridge/kern"
)

// Delegate is a host function exposed to the engine as a LAMBDAEXPR. It
// fills out from in and reports failure through the returned error.
type Delegate func(in, out []Value) error

// Table is the flat function table an engine fills in during bootstrap.
// Calls that return bool report success; the message of the most recent
// failure is available through LastError.
//
// Every field must be set after a successful init. Bootstrap checks that.
type Table struct {
	// Core.
	FunctionExists       func(name string) bool
	FunctionCall         func(name string, in, out []Value) bool
	FunctionCallIndirect func(fn Handle, in, out []Value) bool
	Close                func() bool
	ParseType            func(name string) Handle
	Delete               func(h Handle) bool
	CreateNDMatrix       func(elemType Handle, dims []int) Handle
	CreateString         func(text string) Handle
	CreateObject         func(objType Handle) Handle
	CreateLambda         func(fnType Handle, fn Delegate) Handle
	AddRef               func(h Handle)
	Release              func(h Handle) bool
	Lock                 func(h Handle, elemType Handle, mode LockMode, res MemResource) (unsafe.Pointer, LockResult)
	Unlock               func(h Handle, mode LockMode, res MemResource)
	RunApp               func()
	DoEvents             func()
	ReadVariable         func(name string, v *Value) bool
	WriteVariable        func(name string, v *Value) bool
	GetField             func(obj Handle, name string, v *Value) bool
	SetField             func(obj Handle, name string, v *Value) bool
	GetNDims             func(h Handle, dims []int) int
	GetType              func(obj Handle) Handle
	LastError            func() (string, kern.ErrorRecord)

	// Types and modules.
	CreateType           func(module, name string) Handle
	TypeAddField         func(t Handle, name string, fieldType Handle) bool
	TypeAddParameter     func(t Handle, name string) Handle
	TypeFinalize         func(t Handle) bool
	LoadSourceModule     func(path string) bool
	LoadBinaryModule     func(path string) bool
	LoadModuleFromSource func(name, src string) bool
	UnloadModule         func(name string) bool
	LookupFunction       func(signature string) Handle
	LookupMethod         func(t Handle, signature string) Handle
	MethodCall           func(m Handle, target *Value, in, out []Value) bool
	EnableProfiling      func(mode ProfilingMode, output string) bool
	QueryProperty        func(prop HostProperty, param int) ([]byte, bool)

	// Computation engine.
	EngineName  func() string
	ParallelDo  func(dims []int, complexity int, fn func(kern.Lane)) bool
	SerialDo    func(dims []int, fn func(kern.Lane)) bool
	Synchronize func()
	ScalarType  func() Precision

	// Evaluation stack.
	StackNew   func() Handle
	StackPush  func(s Handle, vals []Value) bool
	StackPop   func(s Handle, out []Value) bool
	StackClear func(s Handle)
	StackCount func(s Handle) int
	StackCall  func(s Handle, name string, nin, nout int) bool

	// Reductions.
	ReductionAdd    func(pattern, target string) bool
	ReductionRemove func(pattern string) bool
}
