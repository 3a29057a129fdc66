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
	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
	"github.com/ajroetker/go-numbridge/kern/contrib/workerpool"
)

// Builtin is a kernel a module manifest can bind signatures to. It reads
// c.In, writes c.Out and reports kernel failures through c.Sink.
type Builtin func(c *Call) error

// Call is the context of one builtin invocation.
type Call struct {
	e    *Engine
	In   []abi.Value
	Out  []abi.Value
	Sink *kern.ErrorSink
}

// Arg returns argument i.
func (c *Call) Arg(i int) (abi.Value, error) {
	if i >= len(c.In) {
		return abi.Value{}, errors.Errorf("missing argument %d", i)
	}
	return c.In[i], nil
}

// Float returns argument i as a float64. Scalars and integers qualify.
func (c *Call) Float(i int) (float64, error) {
	v, err := c.Arg(i)
	if err != nil {
		return 0, err
	}
	if v.Type != abi.TypeScalar && !v.Type.IsInteger() {
		return 0, errors.Errorf("argument %d: want scalar, got %s", i, v.Type)
	}
	return v.Float(), nil
}

// Int returns argument i as an int. Scalars are truncated.
func (c *Call) Int(i int) (int, error) {
	f, err := c.Float(i)
	return int(f), err
}

// String returns the text of a STRING argument.
func (c *Call) String(i int) (string, error) {
	v, err := c.Arg(i)
	if err != nil {
		return "", err
	}
	s, ok := c.e.String(v.Handle)
	if v.Type != abi.TypeString || !ok {
		return "", errors.Errorf("argument %d: want string, got %s", i, v.Type)
	}
	return s, nil
}

// Array is the decoded contents of an array argument. Im is nil for real
// element types.
type Array struct {
	Elem abi.Tag
	Dims []int
	Re   []float64
	Im   []float64
}

// Complex reports whether the array has complex elements.
func (a Array) Complex() bool { return a.Im != nil }

// Array decodes array argument i into float64 working copies.
func (c *Call) Array(i int) (Array, error) {
	v, err := c.Arg(i)
	if err != nil {
		return Array{}, err
	}
	a, ok := lookup[*array](c.e.arena, v.Handle)
	if !v.Type.IsArray() || !ok {
		return Array{}, errors.Errorf("argument %d: want array, got %s", i, v.Type)
	}
	re, im, err := a.floats()
	if err != nil {
		return Array{}, errors.Wrapf(err, "argument %d", i)
	}
	return Array{Elem: a.elem, Dims: append([]int(nil), a.dims...), Re: re, Im: im}, nil
}

// NewArray allocates an array with the contents of src.
func (c *Call) NewArray(src Array) (abi.Value, error) {
	a, err := c.e.newArray(src.Elem, src.Dims)
	if err != nil {
		return abi.Value{}, err
	}
	if err := a.setFloats(src.Re, src.Im); err != nil {
		return abi.Value{}, err
	}
	return a.value(c.e.arena.put(a.tag(), a)), nil
}

// Return stores v as result i. Results beyond len(c.Out) are not wanted
// and are dropped.
func (c *Call) Return(i int, v abi.Value) {
	if i < len(c.Out) {
		c.Out[i] = v
		return
	}
	c.e.drop(v)
}

// ParallelDo runs fn over dims on the engine pool. A panicking lane is
// recorded in the sink instead of crashing the worker.
func (c *Call) ParallelDo(dims []int, cx workerpool.Complexity, fn func(kern.Lane)) {
	c.e.pool.ParallelDo(dims, cx, guard(c.Sink, fn))
}

func guard(sink *kern.ErrorSink, fn func(kern.Lane)) func(kern.Lane) {
	return func(l kern.Lane) {
		defer func() {
			if r := recover(); r != nil {
				if ke, ok := r.(*kern.KernelError); ok {
					sink.Record(ke.ErrorRecord)
					return
				}
				sink.Record(kern.ErrorRecord{Code: kern.CodeAssertionFailed, Message: errors.Errorf("lane %v: %v", l.Pos, r).Error()})
			}
		}()
		fn(l)
	}
}
