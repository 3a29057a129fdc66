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

//go:generate mockgen -source=invoker.go -destination=../internal/mock/bridge/invoker.go -package=mock_bridge

package bridge

import (
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// MaxArity is the largest argument count Function.Call accepts.
const MaxArity = 8

// Resolver is the part of a Host a Function needs. *Host implements it.
type Resolver interface {
	ReadVariable(name string) (Value, bool)
	LookupFunction(sig string) (Value, error)
	FunctionCallIndirect(fn Value, in, out []Value) error
	ReleaseRef(v *Value) error
	DeleteValue(v *Value) error
}

// Function is an engine function bound lazily by signature, for instance
// "imshow(cube,vec)". The first call resolves it: a variable named after
// the function wins over the registered overloads. The binding, or the
// failure to bind, is kept until Close.
//
// A lambda read from a variable is the Function's own copy and is deleted
// by Close. Overload lookups belong to the host cache.
type Function struct {
	r   Resolver
	sig string

	once  sync.Once
	fn    Value
	owned bool
	err   error
}

// NewFunction returns an unbound Function for sig.
func NewFunction(r Resolver, sig string) *Function {
	return &Function{r: r, sig: sig}
}

// Signature returns the signature the Function was created with.
func (f *Function) Signature() string { return f.sig }

func (f *Function) bind() (Value, error) {
	f.once.Do(func() {
		base, _, _ := strings.Cut(f.sig, "(")
		if v, ok := f.r.ReadVariable(base); ok {
			if v.Type == abi.TypeLambdaExpr {
				f.fn, f.owned = v, true
				return
			}
			// Not callable; the overloads decide.
			_ = f.r.DeleteValue(&v)
		}

		fn, err := f.r.LookupFunction(f.sig)
		if err != nil {
			if !errors.Is(err, ErrUnresolved) {
				err = errors.Wrap(ErrUnresolved, err.Error())
			}
			f.err = err
			return
		}
		f.fn = fn
	})
	return f.fn, f.err
}

// Close drops the binding, deleting a lambda read from a variable. Later
// calls fail with ErrClosed. Close must not race with Call.
func (f *Function) Close() error {
	f.once.Do(func() {})
	fn, owned := f.fn, f.owned
	f.fn, f.owned, f.err = Value{}, false, ErrClosed
	if !owned {
		return nil
	}
	return f.r.DeleteValue(&fn)
}

// Call invokes the function with up to MaxArity arguments and returns its
// single result. Every argument has ReleaseRef applied afterwards, whether
// or not the call succeeded.
func (f *Function) Call(args ...Value) (Value, error) {
	out := []Value{{}}
	err := f.call(args, out)
	for i := range args {
		err = multierr.Append(err, f.r.ReleaseRef(&args[i]))
	}
	return out[0], err
}

func (f *Function) call(args, out []Value) error {
	if len(args) > MaxArity {
		return errors.Errorf("%s: %d arguments, at most %d supported", f.sig, len(args), MaxArity)
	}
	fn, err := f.bind()
	if err != nil {
		return err
	}
	return errors.WithMessage(f.r.FunctionCallIndirect(fn, args, out), f.sig)
}

func (f *Function) Call0() (Value, error) { return f.Call() }

func (f *Function) Call1(a Value) (Value, error) { return f.Call(a) }

func (f *Function) Call2(a, b Value) (Value, error) { return f.Call(a, b) }

func (f *Function) Call3(a, b, c Value) (Value, error) { return f.Call(a, b, c) }

func (f *Function) Call4(a, b, c, d Value) (Value, error) { return f.Call(a, b, c, d) }

func (f *Function) Call5(a, b, c, d, e Value) (Value, error) {
	return f.Call(a, b, c, d, e)
}

func (f *Function) Call6(a, b, c, d, e, g Value) (Value, error) {
	return f.Call(a, b, c, d, e, g)
}

func (f *Function) Call7(a, b, c, d, e, g, i Value) (Value, error) {
	return f.Call(a, b, c, d, e, g, i)
}

func (f *Function) Call8(a, b, c, d, e, g, i, j Value) (Value, error) {
	return f.Call(a, b, c, d, e, g, i, j)
}
