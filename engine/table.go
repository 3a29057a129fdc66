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
	"errors"
	"sync"
	"unsafe"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
	"github.com/ajroetker/go-numbridge/kern/contrib/workerpool"
)

// Init is an abi.InitFunc that starts a session with DefaultConfig, taking
// device, precision and allocation flags from the block.
func Init(b *abi.Block) int {
	return NewInit(DefaultConfig())(b)
}

// NewInit returns an abi.InitFunc that starts a session with cfg. The
// block's device, precision and non-zero flags override cfg.
func NewInit(cfg Config, opt ...Option) abi.InitFunc {
	return func(b *abi.Block) int {
		if d := b.Device(); d != "" {
			cfg.Device = d
		}
		cfg.DoublePrecision = b.DoublePrecision()
		switch b.Flags {
		case abi.AllocForceGPULoad:
			cfg.Allocation = "gpu"
		case abi.AllocForceCPULoad:
			cfg.Allocation = "cpu"
		}

		e, err := New(cfg, opt...)
		if err != nil {
			b.SetError(err.Error())
			return 1
		}
		e.Fill(&b.Table, b)
		return 0
	}
}

// ParallelDo runs fn over dims on the engine pool.
func (e *Engine) ParallelDo(dims []int, cx workerpool.Complexity, fn func(kern.Lane)) error {
	if e.closed.Load() {
		return ErrClosed
	}
	var sink kern.ErrorSink
	e.pool.ParallelDo(dims, cx, guard(&sink, fn))
	return sink.Err()
}

// SerialDo runs fn over dims on the calling goroutine.
func (e *Engine) SerialDo(dims []int, fn func(kern.Lane)) error {
	var sink kern.ErrorSink
	workerpool.SerialDo(dims, guard(&sink, fn))
	return sink.Err()
}

// Synchronize waits for outstanding device work. Pool calls block until
// done, so only queued events remain.
func (e *Engine) Synchronize() { e.DoEvents() }

// lastError holds the failure reported by the most recent table call that
// returned false.
type lastError struct {
	mu    sync.Mutex
	msg   string
	rec   kern.ErrorRecord
	block *abi.Block
}

// report records err and returns whether the call succeeded.
func (l *lastError) report(err error) bool {
	if err == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msg = err.Error()
	l.rec = kern.ErrorRecord{}
	var ke *kern.KernelError
	if errors.As(err, &ke) {
		l.rec = ke.ErrorRecord
	}
	if l.block != nil {
		l.block.SetError(l.msg)
	}
	return false
}

func (l *lastError) load() (string, kern.ErrorRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.msg, l.rec
}

// Fill points every entry of t at e. Failures are described by
// t.LastError and, when b is not nil, b.ErrorMsg.
func (e *Engine) Fill(t *abi.Table, b *abi.Block) {
	last := &lastError{block: b}
	ok := last.report

	*t = abi.Table{
		FunctionExists: e.FunctionExists,
		FunctionCall: func(name string, in, out []abi.Value) bool {
			return ok(e.FunctionCall(name, in, out))
		},
		FunctionCallIndirect: func(fn abi.Handle, in, out []abi.Value) bool {
			return ok(e.FunctionCallIndirect(fn, in, out))
		},
		Close:     func() bool { return ok(e.Close()) },
		ParseType: e.ParseType,
		Delete:    func(h abi.Handle) bool { return ok(e.Delete(h)) },
		CreateNDMatrix: func(elemType abi.Handle, dims []int) abi.Handle {
			h, err := e.CreateNDMatrix(elemType, dims)
			ok(err)
			return h
		},
		CreateString: e.CreateString,
		CreateObject: func(objType abi.Handle) abi.Handle {
			h, err := e.CreateObject(objType)
			ok(err)
			return h
		},
		CreateLambda: func(fnType abi.Handle, fn abi.Delegate) abi.Handle {
			h, err := e.CreateLambda(fnType, fn)
			ok(err)
			return h
		},
		AddRef:  e.AddRef,
		Release: e.Release,
		Lock: func(h, elemType abi.Handle, mode abi.LockMode, res abi.MemResource) (unsafe.Pointer, abi.LockResult) {
			return e.Lock(h, elemType, mode, res)
		},
		Unlock:   e.Unlock,
		RunApp:   e.RunApp,
		DoEvents: e.DoEvents,
		ReadVariable: func(name string, v *abi.Value) bool {
			val, found := e.ReadVariable(name)
			if found {
				*v = val
			}
			return found
		},
		WriteVariable: func(name string, v *abi.Value) bool {
			return ok(e.WriteVariable(name, *v))
		},
		GetField: func(obj abi.Handle, name string, v *abi.Value) bool {
			val, err := e.GetField(obj, name)
			if err == nil {
				*v = val
			}
			return ok(err)
		},
		SetField: func(obj abi.Handle, name string, v *abi.Value) bool {
			return ok(e.SetField(obj, name, *v))
		},
		GetNDims:  e.GetNDims,
		GetType:   e.GetType,
		LastError: last.load,

		CreateType: func(module, name string) abi.Handle {
			h, err := e.CreateType(module, name)
			ok(err)
			return h
		},
		TypeAddField: func(th abi.Handle, name string, ft abi.Handle) bool {
			return ok(e.AddField(th, name, ft))
		},
		TypeAddParameter: func(th abi.Handle, name string) abi.Handle {
			h, err := e.AddParameter(th, name)
			ok(err)
			return h
		},
		TypeFinalize:     func(th abi.Handle) bool { return ok(e.FinalizeType(th)) },
		LoadSourceModule: func(path string) bool { return ok(e.LoadSourceModule(path)) },
		LoadBinaryModule: func(path string) bool { return ok(e.LoadBinaryModule(path)) },
		LoadModuleFromSource: func(name, src string) bool {
			return ok(e.LoadModuleFromSource(name, src))
		},
		UnloadModule:   e.UnloadModule,
		LookupFunction: e.LookupFunction,
		LookupMethod:   e.LookupMethod,
		MethodCall: func(m abi.Handle, target *abi.Value, in, out []abi.Value) bool {
			return ok(e.MethodCall(m, *target, in, out))
		},
		EnableProfiling: func(mode abi.ProfilingMode, output string) bool {
			return ok(e.EnableProfiling(mode, output))
		},
		QueryProperty: e.QueryProperty,

		EngineName: e.EngineName,
		ParallelDo: func(dims []int, cx int, fn func(kern.Lane)) bool {
			return ok(e.ParallelDo(dims, workerpool.Complexity(cx), fn))
		},
		SerialDo: func(dims []int, fn func(kern.Lane)) bool {
			return ok(e.SerialDo(dims, fn))
		},
		Synchronize: e.Synchronize,
		ScalarType:  e.Precision,

		StackNew: e.NewStack,
		StackPush: func(s abi.Handle, vals []abi.Value) bool {
			return ok(e.StackPush(s, vals))
		},
		StackPop: func(s abi.Handle, out []abi.Value) bool {
			return ok(e.StackPop(s, out))
		},
		StackClear: e.StackClear,
		StackCount: e.StackCount,
		StackCall: func(s abi.Handle, name string, nin, nout int) bool {
			return ok(e.StackCall(s, name, nin, nout))
		},

		ReductionAdd: func(pattern, target string) bool {
			return ok(e.AddReduction(pattern, target))
		},
		ReductionRemove: e.RemoveReduction,
	}
}
