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

// Package call implements the call command, which runs one engine function
// on arguments given as YAML literals:
//
//	numbridge call "scale(??,scalar)" "[1, 2, 3]" 0.5
package call

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-numbridge/bridge"
	"github.com/ajroetker/go-numbridge/bridge/abi"
	hostutil "github.com/ajroetker/go-numbridge/internal/util/host"
	logutil "github.com/ajroetker/go-numbridge/internal/util/log"
	"github.com/ajroetker/go-numbridge/kern"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "call an engine function",
		ArgsUsage: "<function> [args...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "nout",
				Usage: "number of results to print",
				Value: 1,
			},
			&cli.PathFlag{
				Name:    "profile",
				Usage:   "write an execution-time report to `path`",
				EnvVars: []string{"NUMBRIDGE_PROFILE"},
			},
		},
		Action: call,
	}
}

func call(c *cli.Context) (err error) {
	if c.NArg() == 0 {
		return errors.New("missing function name")
	}
	name := c.Args().First()

	h, err := hostutil.Open(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, h.Close())
	}()

	if err = hostutil.LoadModules(c, h); err != nil {
		return err
	}
	if path := c.Path("profile"); path != "" {
		if err = h.EnableProfiling(abi.ProfileExecutionTime, path); err != nil {
			return err
		}
	}

	in := make([]bridge.Value, 0, c.NArg()-1)
	defer func() {
		for i := range in {
			err = multierr.Append(err, h.DeleteValue(&in[i]))
		}
	}()
	for i, lit := range c.Args().Tail() {
		v, perr := parseArg(h, lit)
		if perr != nil {
			return errors.Wrapf(perr, "argument %d", i)
		}
		in = append(in, v)
	}

	out := make([]bridge.Value, c.Int("nout"))
	if err = h.FunctionCall(name, in, out); err != nil {
		return err
	}
	logutil.New(c).WithField("function", name).Debug("called")

	results := make([]any, len(out))
	for i := range out {
		if results[i], err = render(h, out[i]); err != nil {
			return err
		}
		if err = h.DeleteValue(&out[i]); err != nil {
			return err
		}
	}

	enc := yaml.NewEncoder(c.App.Writer)
	defer enc.Close()
	return enc.Encode(results)
}

// parseArg turns a YAML literal into an engine value: integers, floats,
// strings, lists (vectors) and lists of lists (matrices).
func parseArg(h *bridge.Host, lit string) (bridge.Value, error) {
	var node any
	if err := yaml.Unmarshal([]byte(lit), &node); err != nil {
		return bridge.Value{}, err
	}

	switch x := node.(type) {
	case int:
		return bridge.Int(int64(x)), nil
	case float64:
		return bridge.Scalar(x), nil
	case string:
		return h.CreateString(x, -1), nil
	case []any:
		data, dims, err := flatten(x)
		if err != nil {
			return bridge.Value{}, err
		}
		return newArray(h, data, dims)
	}
	return bridge.Value{}, errors.Errorf("unsupported literal %q", lit)
}

func flatten(rows []any) ([]float64, []int, error) {
	if len(rows) == 0 {
		return nil, []int{0}, nil
	}
	if _, nested := rows[0].([]any); !nested {
		data, err := numbers(rows)
		return data, []int{len(rows)}, err
	}

	var data []float64
	width := -1
	for _, r := range rows {
		row, ok := r.([]any)
		if !ok {
			return nil, nil, errors.New("mixed rows and numbers")
		}
		if width >= 0 && len(row) != width {
			return nil, nil, errors.New("ragged matrix")
		}
		width = len(row)
		vals, err := numbers(row)
		if err != nil {
			return nil, nil, err
		}
		data = append(data, vals...)
	}
	return data, []int{len(rows), width}, nil
}

func numbers(xs []any) ([]float64, error) {
	out := make([]float64, len(xs))
	for i, x := range xs {
		switch n := x.(type) {
		case int:
			out[i] = float64(n)
		case float64:
			out[i] = n
		default:
			return nil, errors.Errorf("element %d is not a number", i)
		}
	}
	return out, nil
}

func newArray(h *bridge.Host, data []float64, dims []int) (bridge.Value, error) {
	v, err := h.CreateNCube(h.GetPrimitiveTypeHandle(abi.TypeScalar), dims...)
	if err != nil {
		return v, err
	}
	if h.Precision() == abi.PrecisionDouble {
		err = store[float64](h, v, data)
	} else {
		err = store[float32](h, v, data)
	}
	if err != nil {
		_ = h.ReleaseRef(&v)
	}
	return v, err
}

func store[T kern.Floats](h *bridge.Host, v bridge.Value, data []float64) error {
	x, unlock, err := bridge.AutoLock[T](h, v, abi.LockWrite, abi.MemCPU)
	if err != nil {
		return err
	}
	defer unlock()
	for i, f := range data {
		x.Elems()[i] = T(f)
	}
	return nil
}

func render(h *bridge.Host, v bridge.Value) (any, error) {
	switch {
	case v.Type == abi.TypeVoid:
		return nil, nil
	case v.Type == abi.TypeScalar:
		return v.Real, nil
	case v.Type == abi.TypeComplexScalar:
		return map[string]float64{"re": v.Real, "im": v.Imag}, nil
	case v.Type.IsInteger():
		return v.Int, nil
	case v.Type.IsArray():
		return renderArray(h, v)
	}
	return v.Type.String(), nil
}

type array struct {
	Type string    `yaml:"type"`
	Dims []int     `yaml:"dims,flow"`
	Re   []float64 `yaml:"re,flow"`
	Im   []float64 `yaml:"im,flow,omitempty"`
}

func renderArray(h *bridge.Host, v bridge.Value) (any, error) {
	_, dims := h.GetNDims(v)
	a := array{Type: v.Type.String(), Dims: dims}

	var err error
	double := h.Precision() == abi.PrecisionDouble
	switch {
	case v.Type.IsComplexArray() && double:
		a.Re, a.Im, err = loadComplex[complex128](h, v)
	case v.Type.IsComplexArray():
		a.Re, a.Im, err = loadComplex[complex64](h, v)
	case double:
		a.Re, err = load[float64](h, v)
	default:
		a.Re, err = load[float32](h, v)
	}
	return a, err
}

func load[T kern.Floats](h *bridge.Host, v bridge.Value) ([]float64, error) {
	x, unlock, err := bridge.AutoLock[T](h, v, abi.LockRead, abi.MemCPU)
	if err != nil {
		return nil, err
	}
	defer unlock()
	out := make([]float64, x.Numel())
	for i, f := range x.Elems() {
		out[i] = float64(f)
	}
	return out, nil
}

func loadComplex[T kern.Complexes](h *bridge.Host, v bridge.Value) ([]float64, []float64, error) {
	x, unlock, err := bridge.AutoLock[T](h, v, abi.LockRead, abi.MemCPU)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()
	re := make([]float64, x.Numel())
	im := make([]float64, x.Numel())
	for i, z := range x.Elems() {
		c := complex128(z)
		re[i], im[i] = real(c), imag(c)
	}
	return re, im, nil
}
