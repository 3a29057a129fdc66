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
	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
	"github.com/ajroetker/go-numbridge/kern/contrib/workerpool"
)

// FunctionExists reports whether name resolves to at least one engine
// function.
func (h *Host) FunctionExists(name string) bool {
	return !h.closed.Load() && h.b.FunctionExists(name)
}

// FunctionCall calls an engine function by name or full signature. The
// engine fills out, and the caller owns what it returns. Arguments stay
// owned by the caller.
func (h *Host) FunctionCall(name string, in, out []Value) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.b.FunctionCall(name, in, out)
}

// FunctionCallIndirect calls a LAMBDAEXPR value.
func (h *Host) FunctionCallIndirect(fn Value, in, out []Value) error {
	if fn.Type != abi.TypeLambdaExpr || fn.IsNull() {
		return errors.Errorf("bridge: cannot call a %s value", fn.Type)
	}
	if err := h.live(); err != nil {
		return err
	}
	return h.b.FunctionCallIndirect(fn.Handle, in, out)
}

// LookupFunction resolves a signature such as "sum(??)" to a LAMBDAEXPR.
// A bare name picks the first overload. Results are cached until Close.
func (h *Host) LookupFunction(sig string) (Value, error) {
	if err := h.live(); err != nil {
		return Value{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	fh, ok := h.fns[sig]
	if !ok {
		if fh = h.b.LookupFunction(sig); fh == 0 {
			return Value{}, errors.Wrap(ErrUnresolved, sig)
		}
		h.fns[sig] = fh
	}
	return Value{Type: abi.TypeLambdaExpr, Handle: fh}, nil
}

// LookupMethod resolves a method of type t. Results are cached until
// Close.
func (h *Host) LookupMethod(t Handle, sig string) (Value, error) {
	if err := h.live(); err != nil {
		return Value{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	key := methodKey{typ: t, sig: sig}
	mh, ok := h.methods[key]
	if !ok {
		if mh = h.b.LookupMethod(t, sig); mh == 0 {
			return Value{}, errors.Wrapf(ErrUnresolved, "method %s", sig)
		}
		h.methods[key] = mh
	}
	return Value{Type: abi.TypeMethod, Handle: mh}, nil
}

// MethodCall invokes method m on target.
func (h *Host) MethodCall(m, target Value, in, out []Value) error {
	if m.Type != abi.TypeMethod || m.IsNull() {
		return errors.Errorf("bridge: cannot call a %s value as a method", m.Type)
	}
	mustObject("MethodCall", target)
	if err := h.live(); err != nil {
		return err
	}
	return h.b.MethodCall(m.Handle, target, in, out)
}

// ParallelDo runs fn once per position of dims on the engine's workers.
// Kernel failures recorded by fn come back as a *kern.KernelError.
func (h *Host) ParallelDo(dims []int, cx workerpool.Complexity, fn func(kern.Lane)) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.b.ParallelDo(dims, cx, fn)
}

// SerialDo is ParallelDo on a single lane at a time.
func (h *Host) SerialDo(dims []int, fn func(kern.Lane)) error {
	if err := h.live(); err != nil {
		return err
	}
	return h.b.SerialDo(dims, fn)
}

// AddReduction redirects calls of pattern to target.
func (h *Host) AddReduction(pattern, target string) error {
	return errors.Wrapf(h.b.AddReduction(pattern, target), "reduction %s", pattern)
}

// RemoveReduction drops a redirect and reports whether it existed.
func (h *Host) RemoveReduction(pattern string) bool {
	return h.b.RemoveReduction(pattern)
}

// Stack is an engine evaluation stack. Values pushed onto it are retained
// by the engine.
type Stack struct {
	h      *Host
	handle Handle
}

// NewStack creates an evaluation stack. Close frees it.
func (h *Host) NewStack() *Stack {
	return &Stack{h: h, handle: h.b.NewStack()}
}

// Push pushes vals in order.
func (s *Stack) Push(vals ...Value) error {
	return s.h.b.StackPush(s.handle, vals)
}

// Pop removes the top n values and returns them oldest first. The caller
// owns them.
func (s *Stack) Pop(n int) ([]Value, error) {
	out := make([]Value, n)
	if err := s.h.b.StackPop(s.handle, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Call pops nin arguments, calls name and pushes nout results.
func (s *Stack) Call(name string, nin, nout int) error {
	return s.h.b.StackCall(s.handle, name, nin, nout)
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int { return s.h.b.StackCount(s.handle) }

// Clear releases every value on the stack.
func (s *Stack) Clear() { s.h.b.StackClear(s.handle) }

// Close clears and frees the stack.
func (s *Stack) Close() error {
	if s.handle == 0 {
		return nil
	}
	err := s.h.b.Delete(s.handle)
	s.handle = 0
	return err
}
