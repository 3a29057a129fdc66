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
	"math"
	"math/cmplx"

	vecmath "github.com/cwbudde/algo-vecmath"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
	"github.com/ajroetker/go-numbridge/kern/contrib/atomicop"
	"github.com/ajroetker/go-numbridge/kern/contrib/workerpool"
)

// coreManifest is loaded into every session.
const coreManifest = `
module: core
functions:
  - {signature: "zeros(...)", builtin: zeros}
  - {signature: "ones(...)", builtin: ones}
  - {signature: "uninit(...)", builtin: uninit}
  - {signature: "numel(??)", builtin: numel}
  - {signature: "sum(??)", builtin: sum}
  - {signature: "psum(??)", builtin: psum}
  - {signature: "copy(??)", builtin: copy}
  - {signature: "scale(??,scalar)", builtin: scale}
  - {signature: "add(??,??)", builtin: add}
  - {signature: "mul(??,??)", builtin: mul}
  - {signature: "abs(??)", builtin: abs}
  - {signature: "abs2(??)", builtin: abs2}
  - {signature: "periodize(int,int)", builtin: periodize}
  - {signature: "mirror_ext(int,int)", builtin: mirror_ext}
  - {signature: "hist(??,int)", builtin: hist}
  - {signature: "denoise(cube,scalar,int)", builtin: denoise}
  - {signature: "error(string)", builtin: error}
`

func standardBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"zeros":      fill(0),
		"ones":       fill(1),
		"uninit":     fill(0),
		"numel":      numel,
		"sum":        sum,
		"psum":       psum,
		"copy":       copyArray,
		"scale":      scale,
		"add":        binary(vecmath.AddBlockInPlace, func(a, b complex128) complex128 { return a + b }),
		"mul":        binary(vecmath.MulBlockInPlace, func(a, b complex128) complex128 { return a * b }),
		"abs":        abs,
		"abs2":       abs2,
		"periodize":  intFold(kern.Periodize),
		"mirror_ext": intFold(kern.MirrorExt),
		"hist":       hist,
		"denoise":    denoise,
		"error":      raise,
	}
}

// dimsArgs reads zeros(n), zeros(d1, d2) and so on. A single length
// creates a row vector.
func dimsArgs(c *Call) ([]int, error) {
	if len(c.In) == 0 {
		return nil, errors.New("need at least one dimension")
	}
	dims := make([]int, len(c.In))
	for i := range c.In {
		d, err := c.Int(i)
		if err != nil {
			return nil, err
		}
		dims[i] = d
	}
	if len(dims) == 1 {
		dims = []int{1, dims[0]}
	}
	return dims, nil
}

func fill(x float64) Builtin {
	return func(c *Call) error {
		dims, err := dimsArgs(c)
		if err != nil {
			return err
		}
		a, err := c.e.newArray(abi.TypeScalar, dims)
		if err != nil {
			return err
		}
		if x != 0 {
			re := make([]float64, a.numel)
			for i := range re {
				re[i] = x
			}
			if err := a.setFloats(re, nil); err != nil {
				return err
			}
		}
		c.Return(0, a.value(c.e.arena.put(a.tag(), a)))
		return nil
	}
}

func numel(c *Call) error {
	v, err := c.Arg(0)
	if err != nil {
		return err
	}
	switch {
	case v.Type.IsArray():
		a, _ := c.Array(0)
		c.Return(0, abi.Int(int64(len(a.Re))))
	case v.Type == abi.TypeString:
		s, _ := c.String(0)
		c.Return(0, abi.Int(int64(len([]rune(s)))))
	default:
		c.Return(0, abi.Int(1))
	}
	return nil
}

func sum(c *Call) error {
	v, err := c.Arg(0)
	if err != nil {
		return err
	}
	if !v.Type.IsArray() {
		c.Return(0, v)
		return nil
	}
	a, err := c.Array(0)
	if err != nil {
		return err
	}
	var re, im float64
	for i := range a.Re {
		re += a.Re[i]
		if a.Complex() {
			im += a.Im[i]
		}
	}
	if a.Complex() {
		c.Return(0, abi.Complex(complex(re, im)))
	} else {
		c.Return(0, abi.Scalar(re))
	}
	return nil
}

// psum sums through atomic accumulation on the engine pool, the way a
// reduction kernel on an accelerator would.
func psum(c *Call) error {
	a, err := c.Array(0)
	if err != nil {
		return err
	}
	if a.Complex() {
		var acc complex128
		c.ParallelDo([]int{len(a.Re)}, workerpool.Trivial, func(l kern.Lane) {
			i := l.Pos[0]
			atomicop.AddComplex(&acc, complex(a.Re[i], a.Im[i]))
		})
		c.Return(0, abi.Complex(atomicop.LoadComplex(&acc)))
		return nil
	}
	var acc float64
	c.ParallelDo([]int{len(a.Re)}, workerpool.Trivial, func(l kern.Lane) {
		atomicop.Add(&acc, a.Re[l.Pos[0]])
	})
	c.Return(0, abi.Scalar(atomicop.Load(&acc)))
	return nil
}

func copyArray(c *Call) error {
	a, err := c.Array(0)
	if err != nil {
		return err
	}
	v, err := c.NewArray(a)
	if err != nil {
		return err
	}
	c.Return(0, v)
	return nil
}

func scale(c *Call) error {
	s, err := c.Float(1)
	if err != nil {
		return err
	}
	v, _ := c.Arg(0)
	switch {
	case v.Type == abi.TypeComplexScalar:
		c.Return(0, abi.Complex(v.Complex128()*complex(s, 0)))
		return nil
	case !v.Type.IsArray():
		f, err := c.Float(0)
		if err != nil {
			return err
		}
		c.Return(0, abi.Scalar(f*s))
		return nil
	}

	a, err := c.Array(0)
	if err != nil {
		return err
	}
	vecmath.ScaleBlock(a.Re, a.Re, s)
	if a.Complex() {
		vecmath.ScaleBlock(a.Im, a.Im, s)
	}
	out, err := c.NewArray(a)
	if err != nil {
		return err
	}
	c.Return(0, out)
	return nil
}

// operand reads argument i as an array, broadcasting scalars to n
// elements when n > 0.
func operand(c *Call, i, n int) (Array, error) {
	v, err := c.Arg(i)
	if err != nil {
		return Array{}, err
	}
	if v.Type.IsArray() {
		return c.Array(i)
	}
	if n <= 0 {
		return Array{}, errors.Errorf("argument %d: cannot broadcast %s", i, v.Type)
	}
	a := Array{Elem: abi.TypeScalar, Re: make([]float64, n)}
	re, im := v.Float(), 0.0
	if v.Type == abi.TypeComplexScalar {
		re, im = v.Real, v.Imag
		a.Elem = abi.TypeComplexScalar
		a.Im = make([]float64, n)
	} else if v.Type != abi.TypeScalar && !v.Type.IsInteger() {
		return Array{}, errors.Errorf("argument %d: want number, got %s", i, v.Type)
	}
	for k := range n {
		a.Re[k] = re
		if a.Im != nil {
			a.Im[k] = im
		}
	}
	return a, nil
}

// promote widens a to complex storage.
func promote(a *Array) {
	if a.Im == nil {
		a.Im = make([]float64, len(a.Re))
		a.Elem = abi.TypeComplexScalar
	}
}

// binary lifts an element-wise real block kernel to arrays, scalars and
// complex operands. Real arrays take the block path; anything complex
// falls back to op.
func binary(block func(dst, src []float64), op func(a, b complex128) complex128) Builtin {
	return func(c *Call) error {
		x, _ := c.Arg(0)
		y, err := c.Arg(1)
		if err != nil {
			return err
		}
		if !x.Type.IsArray() && !y.Type.IsArray() {
			r := op(complex(x.Float(), x.Imag), complex(y.Float(), y.Imag))
			if x.Type == abi.TypeComplexScalar || y.Type == abi.TypeComplexScalar {
				c.Return(0, abi.Complex(r))
			} else {
				c.Return(0, abi.Scalar(real(r)))
			}
			return nil
		}

		var n int
		var dims []int
		var elem abi.Tag
		for i, v := range []abi.Value{x, y} {
			if v.Type.IsArray() {
				a, err := c.Array(i)
				if err != nil {
					return err
				}
				n, dims, elem = len(a.Re), a.Dims, a.Elem
				break
			}
		}
		a, err := operand(c, 0, n)
		if err != nil {
			return err
		}
		b, err := operand(c, 1, n)
		if err != nil {
			return err
		}
		if len(a.Re) != len(b.Re) {
			c.Sink.Record(kern.ErrorRecord{Code: kern.CodeOutOfBounds, Message: "operands differ in size"})
			return nil
		}

		out := Array{Elem: elem, Dims: dims, Re: a.Re}
		if a.Complex() || b.Complex() {
			promote(&a)
			promote(&b)
			out.Elem, out.Im = abi.TypeComplexScalar, a.Im
			for k := range a.Re {
				r := op(complex(a.Re[k], a.Im[k]), complex(b.Re[k], b.Im[k]))
				a.Re[k], a.Im[k] = real(r), imag(r)
			}
		} else {
			block(a.Re, b.Re)
		}
		v, err := c.NewArray(out)
		if err != nil {
			return err
		}
		c.Return(0, v)
		return nil
	}
}

func abs(c *Call) error {
	v, err := c.Arg(0)
	if err != nil {
		return err
	}
	switch {
	case v.Type == abi.TypeComplexScalar:
		c.Return(0, abi.Scalar(cmplx.Abs(v.Complex128())))
		return nil
	case !v.Type.IsArray():
		c.Return(0, abi.Scalar(math.Abs(v.Float())))
		return nil
	}
	a, err := c.Array(0)
	if err != nil {
		return err
	}
	out := Array{Elem: abi.TypeScalar, Dims: a.Dims, Re: make([]float64, len(a.Re))}
	if a.Complex() {
		vecmath.Magnitude(out.Re, a.Re, a.Im)
	} else {
		out.Elem = a.Elem
		for i, x := range a.Re {
			out.Re[i] = math.Abs(x)
		}
	}
	res, err := c.NewArray(out)
	if err != nil {
		return err
	}
	c.Return(0, res)
	return nil
}

func abs2(c *Call) error {
	v, err := c.Arg(0)
	if err != nil {
		return err
	}
	if !v.Type.IsArray() {
		z := complex(v.Float(), v.Imag)
		c.Return(0, abi.Scalar(real(z)*real(z)+imag(z)*imag(z)))
		return nil
	}
	a, err := c.Array(0)
	if err != nil {
		return err
	}
	out := Array{Elem: abi.TypeScalar, Dims: a.Dims, Re: make([]float64, len(a.Re))}
	if a.Complex() {
		vecmath.Power(out.Re, a.Re, a.Im)
	} else {
		vecmath.MulBlock(out.Re, a.Re, a.Re)
	}
	res, err := c.NewArray(out)
	if err != nil {
		return err
	}
	c.Return(0, res)
	return nil
}

func intFold(fold func(n, N int) int) Builtin {
	return func(c *Call) error {
		n, err := c.Int(0)
		if err != nil {
			return err
		}
		size, err := c.Int(1)
		if err != nil {
			return err
		}
		if size <= 0 {
			c.Sink.Raise("fold size must be positive")
			return nil
		}
		c.Return(0, abi.Int(int64(fold(n, size))))
		return nil
	}
}

// hist counts the elements of an array into bins over [0, 1). Values
// outside the range land in the end bins.
func hist(c *Call) error {
	a, err := c.Array(0)
	if err != nil {
		return err
	}
	bins, err := c.Int(1)
	if err != nil {
		return err
	}
	if bins <= 0 {
		c.Sink.Raise("hist needs at least one bin")
		return nil
	}
	counts := make([]int64, bins)
	c.ParallelDo([]int{len(a.Re)}, workerpool.Trivial, func(l kern.Lane) {
		b := kern.Saturate(int(a.Re[l.Pos[0]]*float64(bins)), bins-1)
		atomicop.Add(&counts[b], 1)
	})
	out := Array{Elem: abi.TypeInt, Dims: []int{1, bins}, Re: make([]float64, bins)}
	for i, n := range counts {
		out.Re[i] = float64(n)
	}
	v, err := c.NewArray(out)
	if err != nil {
		return err
	}
	c.Return(0, v)
	return nil
}

// denoise blends each element with the mean of its (2r+1)-wide box over
// the last two axes: out = (1-h)*x + h*mean. The border is mirrored.
func denoise(c *Call) error {
	img, err := c.Array(0)
	if err != nil {
		return err
	}
	h, err := c.Float(1)
	if err != nil {
		return err
	}
	r, err := c.Int(2)
	if err != nil {
		return err
	}
	switch {
	case img.Complex():
		return errors.New("denoise: complex input")
	case r < 0:
		c.Sink.Raise("denoise: negative radius")
		return nil
	case h < 0 || h > 1:
		c.Sink.Raise("denoise: strength outside [0, 1]")
		return nil
	}

	src := kern.MakeNCube(img.Re, img.Dims...)
	res := make([]float64, len(img.Re))
	dst := kern.MakeNCube(res, img.Dims...)
	mirror := kern.Accessor{Policy: kern.Mirror, Sink: c.Sink}
	checked := kern.Accessor{Policy: kern.Checked, Sink: c.Sink}

	rank := len(img.Dims)
	axes := []int{rank - 1}
	if rank >= 2 {
		axes = []int{rank - 2, rank - 1}
	}

	c.ParallelDo(img.Dims, workerpool.Linear, func(l kern.Lane) {
		q := append([]int(nil), l.Pos...)
		var acc float64
		var n int
		box(q, l.Pos, axes, r, func(q []int) {
			acc += kern.NCubeGetAt(mirror, src, q...)
			n++
		})
		x := kern.NCubeGetAt(checked, src, l.Pos...)
		kern.NCubeSetAt(checked, dst, (1-h)*x+h*acc/float64(n), l.Pos...)
	})

	v, err := c.NewArray(Array{Elem: img.Elem, Dims: img.Dims, Re: res})
	if err != nil {
		return err
	}
	c.Return(0, v)
	return nil
}

// box visits every offset within radius r of pos along axes, writing each
// position into q.
func box(q, pos, axes []int, r int, visit func([]int)) {
	if len(axes) == 0 {
		visit(q)
		return
	}
	ax := axes[0]
	for d := -r; d <= r; d++ {
		q[ax] = pos[ax] + d
		box(q, pos, axes[1:], r, visit)
	}
	q[ax] = pos[ax]
}

func raise(c *Call) error {
	msg, err := c.String(0)
	if err != nil {
		return err
	}
	c.Sink.Raise(msg)
	return nil
}
