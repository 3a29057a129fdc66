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

// stack is an evaluation stack. It owns the values pushed on it until they
// are popped.
type stack struct {
	mu   sync.Mutex
	vals []abi.Value
}

func (s *stack) clear() []abi.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := s.vals
	s.vals = nil
	return vals
}

// pop removes the top n values, oldest first.
func (s *stack) pop(n int) ([]abi.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.vals) {
		return nil, false
	}
	k := len(s.vals) - n
	out := append([]abi.Value(nil), s.vals[k:]...)
	s.vals = s.vals[:k]
	return out, true
}

func (s *stack) push(vals ...abi.Value) {
	s.mu.Lock()
	s.vals = append(s.vals, vals...)
	s.mu.Unlock()
}

func (s *stack) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vals)
}

// NewStack creates an evaluation stack, freed by Delete.
func (e *Engine) NewStack() abi.Handle {
	return e.arena.put(abi.TypeVoid, &stack{})
}

func (e *Engine) stack(h abi.Handle) (*stack, error) {
	s, ok := lookup[*stack](e.arena, h)
	if !ok {
		return nil, errors.Errorf("handle %d is not a stack", h)
	}
	return s, nil
}

// StackPush pushes retained copies of vals.
func (e *Engine) StackPush(h abi.Handle, vals []abi.Value) error {
	s, err := e.stack(h)
	if err != nil {
		return err
	}
	for _, v := range vals {
		s.push(e.retain(v))
	}
	return nil
}

// StackPop moves the top len(out) values into out, the deepest first.
// The caller takes ownership of them.
func (e *Engine) StackPop(h abi.Handle, out []abi.Value) error {
	s, err := e.stack(h)
	if err != nil {
		return err
	}
	vals, ok := s.pop(len(out))
	if !ok {
		return errors.Errorf("stack holds %d values, %d requested", s.count(), len(out))
	}
	copy(out, vals)
	return nil
}

// StackClear releases every value on the stack.
func (e *Engine) StackClear(h abi.Handle) {
	if s, err := e.stack(h); err == nil {
		for _, v := range s.clear() {
			e.drop(v)
		}
	}
}

// StackCount returns the depth of the stack, or -1 for a bad handle.
func (e *Engine) StackCount(h abi.Handle) int {
	s, err := e.stack(h)
	if err != nil {
		return -1
	}
	return s.count()
}

// StackCall pops nin arguments, calls name with them and pushes its nout
// results. The arguments are released whether or not the call succeeds.
func (e *Engine) StackCall(h abi.Handle, name string, nin, nout int) error {
	s, err := e.stack(h)
	if err != nil {
		return err
	}
	if nin < 0 || nout < 0 {
		return errors.Errorf("negative arity %d/%d", nin, nout)
	}
	in, ok := s.pop(nin)
	if !ok {
		return errors.Errorf("%s: stack holds %d values, needs %d", name, s.count(), nin)
	}
	defer func() {
		for _, v := range in {
			e.drop(v)
		}
	}()

	out := make([]abi.Value, nout)
	if err := e.FunctionCall(name, in, out); err != nil {
		return err
	}
	s.push(out...)
	return nil
}
