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
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
)

// function backs a LAMBDAEXPR handle: either a catalog function bound to a
// builtin, or a host delegate.
type function struct {
	rec      *funcRecord
	fn       Builtin
	delegate abi.Delegate
	fnType   abi.Handle
}

// resolve finds the function a call to name with arguments in should run.
// A name with a parameter list must match exactly; a bare name picks the
// first overload whose parameters accept the arguments.
func (e *Engine) resolve(name string, in []abi.Value) (*funcRecord, error) {
	e.mu.Lock()
	if target, ok := e.reductions[name]; ok {
		name = target
	}
	e.mu.Unlock()

	if strings.Contains(name, "(") {
		rec := e.cat.function(name)
		if rec == nil {
			return nil, errors.Errorf("unknown function %s", name)
		}
		if !accepts(e, rec, in) {
			return nil, errors.Errorf("arguments do not match %s", rec.Signature)
		}
		return rec, nil
	}
	recs := e.cat.functionsNamed(name)
	if len(recs) == 0 {
		return nil, errors.Errorf("unknown function %s", name)
	}
	for _, rec := range recs {
		if accepts(e, rec, in) {
			return rec, nil
		}
	}
	return nil, errors.Errorf("no overload of %s accepts %s", name, describe(in))
}

func describe(in []abi.Value) string {
	names := make([]string, len(in))
	for i, v := range in {
		names[i] = v.Type.String()
	}
	return "(" + strings.Join(names, ",") + ")"
}

func accepts(e *Engine, rec *funcRecord, in []abi.Value) bool {
	if len(in) < len(rec.Params) || (len(in) > len(rec.Params) && !rec.Variadic) {
		return false
	}
	for i, p := range rec.Params {
		if !e.paramAccepts(p, in[i]) {
			return false
		}
	}
	return true
}

// paramAccepts reports whether a parameter spelled p takes v. Lower ranks
// promote to higher ones, and integers promote to scalars.
func (e *Engine) paramAccepts(p string, v abi.Value) bool {
	t := v.Type
	switch p {
	case "??":
		return true
	case "scalar":
		return t == abi.TypeScalar || t.IsInteger()
	case "cscalar":
		return t == abi.TypeComplexScalar || t == abi.TypeScalar || t.IsInteger()
	case "int":
		return t.IsInteger()
	case "vec":
		return t == abi.TypeVec
	case "mat":
		return t == abi.TypeVec || t == abi.TypeMat
	case "cube":
		return t == abi.TypeVec || t == abi.TypeMat || t == abi.TypeCube
	case "cvec":
		return t == abi.TypeCVec
	case "cmat":
		return t == abi.TypeCVec || t == abi.TypeCMat
	case "ccube":
		return t == abi.TypeCVec || t == abi.TypeCMat || t == abi.TypeCCube
	}
	if strings.HasPrefix(p, "cube{") {
		return t.IsArray() && !t.IsComplexArray()
	}
	if strings.HasPrefix(p, "ccube{") {
		return t.IsComplexArray()
	}
	if p == t.TypeName() {
		return true
	}
	if t == abi.TypeTypedObject {
		inst, ok := lookup[*instance](e.arena, v.Handle)
		return ok && (inst.typ.name == p || inst.typ.qualified() == p)
	}
	return false
}

// FunctionExists reports whether name resolves to at least one function.
func (e *Engine) FunctionExists(name string) bool {
	if strings.Contains(name, "(") {
		return e.cat.function(name) != nil
	}
	return len(e.cat.functionsNamed(name)) > 0
}

// FunctionCall runs name and fills out with its results.
func (e *Engine) FunctionCall(name string, in, out []abi.Value) error {
	if e.closed.Load() {
		return ErrClosed
	}
	rec, err := e.resolve(name, in)
	if err != nil {
		return err
	}
	fn, ok := e.builtins[rec.Builtin]
	if !ok {
		return errors.Errorf("%s: builtin %s not registered", rec.Signature, rec.Builtin)
	}
	return e.run(rec.Signature, fn, in, out)
}

// LookupFunction resolves sig to a LAMBDAEXPR handle. Handles are cached
// and stay valid until Close.
func (e *Engine) LookupFunction(sig string) abi.Handle {
	key := Canonical(sig)

	e.mu.Lock()
	h, ok := e.funcs[key]
	e.mu.Unlock()
	if ok {
		return h
	}

	rec := e.cat.function(key)
	if rec == nil && !strings.Contains(key, "(") {
		if recs := e.cat.functionsNamed(key); len(recs) > 0 {
			rec = recs[0]
		}
	}
	if rec == nil {
		return 0
	}
	fn, ok := e.builtins[rec.Builtin]
	if !ok {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.funcs[key]; ok {
		return h
	}
	h = e.arena.pin(abi.TypeLambdaExpr, &function{rec: rec, fn: fn})
	e.funcs[key] = h
	return h
}

// CreateLambda exposes a host delegate as a LAMBDAEXPR. The handle is
// freed by Delete.
func (e *Engine) CreateLambda(fnType abi.Handle, d abi.Delegate) (abi.Handle, error) {
	if d == nil {
		return 0, errors.New("nil delegate")
	}
	return e.arena.put(abi.TypeLambdaExpr, &function{delegate: d, fnType: fnType}), nil
}

// FunctionCallIndirect invokes the LAMBDAEXPR fn.
func (e *Engine) FunctionCallIndirect(fn abi.Handle, in, out []abi.Value) error {
	if e.closed.Load() {
		return ErrClosed
	}
	f, ok := lookup[*function](e.arena, fn)
	if !ok {
		return errors.Errorf("handle %d is not a function", fn)
	}
	if f.delegate != nil {
		return protect(func() error { return f.delegate(in, out) })
	}
	if !accepts(e, f.rec, in) {
		return errors.Errorf("arguments do not match %s", f.rec.Signature)
	}
	return e.run(f.rec.Signature, f.fn, in, out)
}

// run invokes a builtin with a fresh error sink. Kernel panics become
// errors; a failure recorded in the sink is returned as *kern.KernelError.
// On failure any results already produced are released.
func (e *Engine) run(label string, fn Builtin, in, out []abi.Value) error {
	c := &Call{e: e, In: in, Out: out, Sink: new(kern.ErrorSink)}
	clear(out)

	start := time.Now()
	err := protect(func() error { return fn(c) })
	if err == nil {
		err = c.Sink.Err()
	}
	e.prof.observe(e, label, time.Since(start), out)

	if err != nil {
		for i := range out {
			e.drop(out[i])
			out[i] = abi.Value{}
		}
		return err
	}
	return nil
}

func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ke, ok := r.(*kern.KernelError); ok {
				err = ke
				return
			}
			err = errors.Errorf("kernel panic: %v", r)
		}
	}()
	return fn()
}

// AddReduction redirects calls of pattern to target. target must already
// resolve.
func (e *Engine) AddReduction(pattern, target string) error {
	if pattern == "" {
		return errors.New("empty reduction pattern")
	}
	if !e.FunctionExists(target) {
		return errors.Errorf("reduction target %s is not defined", target)
	}
	e.mu.Lock()
	e.reductions[pattern] = target
	e.mu.Unlock()
	return nil
}

// RemoveReduction drops a reduction and reports whether it existed.
func (e *Engine) RemoveReduction(pattern string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.reductions[pattern]
	delete(e.reductions, pattern)
	return ok
}
