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
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/lthibault/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
)

func quiet() Option {
	return WithLogger(log.New(log.WithLevel(log.FatalLevel)))
}

func newEngine(t *testing.T, cfg Config, opt ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, append([]Option{quiet()}, opt...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func floats32(p unsafe.Pointer, n int) []float32 {
	return unsafe.Slice((*float32)(p), n)
}

func vector(t *testing.T, e *Engine, vals ...float64) abi.Value {
	t.Helper()
	a, err := e.newArray(abi.TypeScalar, []int{1, len(vals)})
	require.NoError(t, err)
	require.NoError(t, a.setFloats(vals, nil))
	return a.value(e.arena.put(a.tag(), a))
}

func readFloats(t *testing.T, e *Engine, v abi.Value) []float64 {
	t.Helper()
	a, ok := lookup[*array](e.arena, v.Handle)
	require.True(t, ok, "not an array: %v", v)
	re, _, err := a.floats()
	require.NoError(t, err)
	return re
}

func TestConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device: cuda:sim0\ndouble_precision: true\nworkers: 2\nallocation: gpu\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cuda:sim0", cfg.Device)
	assert.True(t, cfg.DoublePrecision)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, int64(DefaultDeviceMemory), cfg.DeviceMemoryBytes)

	assert.Error(t, Config{Device: "tpu"}.Validate())
	assert.Error(t, Config{Device: "cpu", Allocation: "disk"}.Validate())
}

func TestStructuredLogFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := newEngine(t, Config{Device: "cuda:sim0"}, WithLogger(log.New(
		log.WithLevel(log.TraceLevel),
		log.WithWriter(&buf))))

	scalar := e.ParseType("scalar")
	h, err := e.CreateNDMatrix(scalar, []int{2})
	require.NoError(t, err)
	_, res := e.Lock(h, scalar, abi.LockRead, abi.MemCPU)
	require.Equal(t, abi.LockOK, res)
	e.Unlock(h, abi.LockWrite, abi.MemCPU)
	e.Unlock(h, abi.LockRead, abi.MemCPU)
	require.NoError(t, e.LoadModuleFromSource("extra", "functions:\n  - {signature: \"total(vec)\", builtin: sum}\n"))

	out := buf.String()
	for _, want := range []string{
		"session=", "cuda:sim0", "engine started", "workers=",
		"msg=locked", "ignoring unlock that matches no lock", "resource=",
		"module loaded", "module=extra", "functions=1",
	} {
		assert.Contains(t, out, want)
	}
}

func TestResidencyMigration(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cuda"})
	scalar := e.ParseType("scalar")
	h, err := e.CreateNDMatrix(scalar, []int{2, 3})
	require.NoError(t, err)

	p, res := e.Lock(h, scalar, abi.LockWrite, abi.MemCPU)
	require.Equal(t, abi.LockOK, res)
	host := floats32(p, 6)
	for i := range host {
		host[i] = float32(i + 1)
	}
	e.Unlock(h, abi.LockWrite, abi.MemCPU)
	assert.Zero(t, e.DeviceBytes(), "nothing staged yet")

	p, res = e.Lock(h, scalar, abi.LockReadWrite, abi.MemCUDA)
	require.Equal(t, abi.LockOK, res)
	dev := floats32(p, 6)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, dev, "host contents staged to device")
	dev[0] = 42
	e.Unlock(h, abi.LockReadWrite, abi.MemCUDA)
	assert.Equal(t, int64(24), e.DeviceBytes())

	p, res = e.Lock(h, 0, abi.LockRead, abi.MemCPU)
	require.Equal(t, abi.LockOK, res)
	assert.Equal(t, float32(42), floats32(p, 6)[0], "device write copied back")
	e.Unlock(h, abi.LockRead, abi.MemCPU)

	assert.True(t, e.Release(h))
	assert.Zero(t, e.DeviceBytes(), "release returns the device budget")
}

func TestManagedFollowsValidCopy(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "opencl"})
	scalar := e.ParseType("scalar")
	h, err := e.CreateNDMatrix(scalar, []int{4})
	require.NoError(t, err)

	p, res := e.Lock(h, scalar, abi.LockWrite, abi.MemOpenCL)
	require.Equal(t, abi.LockOK, res)
	floats32(p, 4)[3] = 7
	e.Unlock(h, abi.LockWrite, abi.MemOpenCL)

	p, res = e.Lock(h, scalar, abi.LockRead, abi.MemManaged)
	require.Equal(t, abi.LockOK, res)
	assert.Equal(t, float32(7), floats32(p, 4)[3])
	e.Unlock(h, abi.LockRead, abi.MemManaged)
}

func TestLockResults(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cpu"})
	scalar := e.ParseType("scalar")
	h, err := e.CreateNDMatrix(scalar, []int{3, 3})
	require.NoError(t, err)

	t.Run("ResNotAvailable", func(t *testing.T) {
		_, res := e.Lock(h, scalar, abi.LockRead, abi.MemCUDA)
		assert.Equal(t, abi.LockResNotAvailable, res)
	})
	t.Run("Invalid", func(t *testing.T) {
		_, res := e.Lock(0, scalar, abi.LockRead, abi.MemCPU)
		assert.Equal(t, abi.LockInvalid, res)
		_, res = e.Lock(h, e.ParseType("int"), abi.LockRead, abi.MemCPU)
		assert.Equal(t, abi.LockInvalid, res, "element type mismatch")
		_, res = e.Lock(h, scalar, abi.LockMode(0), abi.MemCPU)
		assert.Equal(t, abi.LockInvalid, res)
		_, res = e.Lock(e.CreateString("x"), 0, abi.LockRead, abi.MemCPU)
		assert.Equal(t, abi.LockInvalid, res, "not an array")
	})
	t.Run("InUse", func(t *testing.T) {
		p, res := e.Lock(h, scalar, abi.LockRead, abi.MemCPU)
		require.Equal(t, abi.LockOK, res)
		require.NotNil(t, p)

		q, res := e.Lock(h, scalar, abi.LockRead, abi.MemCPU)
		assert.Equal(t, abi.LockInUse, res)
		assert.Nil(t, q)

		e.Unlock(h, abi.LockWrite, abi.MemCPU) // mismatched, ignored
		_, res = e.Lock(h, scalar, abi.LockRead, abi.MemCPU)
		assert.Equal(t, abi.LockInUse, res)

		e.Unlock(h, abi.LockRead, abi.MemCPU)
		_, res = e.Lock(h, scalar, abi.LockReadWrite, abi.MemCPU)
		assert.Equal(t, abi.LockOK, res)
		e.Unlock(h, abi.LockReadWrite, abi.MemCPU)
	})
}

func TestOutOfDeviceMemory(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cuda", DeviceMemoryBytes: 16})
	scalar := e.ParseType("scalar")
	small, err := e.CreateNDMatrix(scalar, []int{4})
	require.NoError(t, err)
	big, err := e.CreateNDMatrix(scalar, []int{8})
	require.NoError(t, err)

	_, res := e.Lock(big, scalar, abi.LockRead, abi.MemCUDA)
	assert.Equal(t, abi.LockOutOfMem, res)

	_, res = e.Lock(small, scalar, abi.LockRead, abi.MemCUDA)
	require.Equal(t, abi.LockOK, res)
	e.Unlock(small, abi.LockRead, abi.MemCUDA)

	_, res = e.Lock(big, scalar, abi.LockRead, abi.MemCPU)
	assert.Equal(t, abi.LockOK, res, "host side is unaffected")
	e.Unlock(big, abi.LockRead, abi.MemCPU)
}

func TestForceGPULoad(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cuda", Allocation: "gpu", DoublePrecision: true})
	_, err := e.CreateNDMatrix(e.ParseType("cscalar"), []int{2, 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4*16), e.DeviceBytes())
}

func TestZeroSizedArray(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cuda"})
	scalar := e.ParseType("scalar")
	h, err := e.CreateNDMatrix(scalar, []int{1, 0})
	require.NoError(t, err)
	for _, res := range []abi.MemResource{abi.MemCPU, abi.MemCUDA} {
		_, got := e.Lock(h, scalar, abi.LockReadWrite, res)
		assert.Equal(t, abi.LockOK, got)
		e.Unlock(h, abi.LockReadWrite, res)
	}
	var dims [2]int
	assert.Equal(t, 2, e.GetNDims(h, dims[:]))
	assert.Equal(t, [2]int{1, 0}, dims)

	_, err = e.CreateNDMatrix(scalar, []int{-1})
	assert.Error(t, err)
}

func TestRefcounts(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	h, err := e.CreateNDMatrix(e.ParseType("scalar"), []int{2})
	require.NoError(t, err)

	e.AddRef(h)
	assert.False(t, e.Release(h))
	assert.True(t, e.Release(h))
	assert.False(t, e.Release(h), "handle is gone")

	_, res := e.Lock(h, 0, abi.LockRead, abi.MemCPU)
	assert.Equal(t, abi.LockInvalid, res)

	s := e.CreateString("text")
	assert.Error(t, e.Delete(h))
	require.NoError(t, e.Delete(s))
	assert.Error(t, e.Delete(s))
	assert.NoError(t, e.Delete(e.ParseType("scalar")), "primitive types are engine-owned")
	assert.NotZero(t, e.ParseType("scalar"))
}

func TestTypeBuilder(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	th, err := e.CreateType("geom", "point")
	require.NoError(t, err)
	require.NoError(t, e.AddField(th, "x", e.ParseType("scalar")))
	require.NoError(t, e.AddField(th, "tag", e.ParseType("string")))
	assert.Error(t, e.AddField(th, "x", e.ParseType("scalar")), "duplicate field")

	_, err = e.CreateObject(th)
	assert.Error(t, err, "not finalized")

	require.NoError(t, e.FinalizeType(th))
	assert.Error(t, e.AddField(th, "y", e.ParseType("scalar")))
	_, err = e.AddParameter(th, "T")
	assert.Error(t, err)

	assert.Equal(t, th, e.ParseType("geom.point"))
	assert.Equal(t, th, e.ParseType("point"))
	_, err = e.CreateType("geom", "point")
	assert.Error(t, err)

	obj, err := e.CreateObject(th)
	require.NoError(t, err)
	assert.Equal(t, th, e.GetType(obj))

	v, err := e.GetField(obj, "x")
	require.NoError(t, err)
	assert.Equal(t, abi.Scalar(0), v)

	require.NoError(t, e.SetField(obj, "x", abi.Int(3)))
	v, err = e.GetField(obj, "x")
	require.NoError(t, err)
	assert.Equal(t, abi.Scalar(3), v, "integers widen into scalar fields")

	assert.Error(t, e.SetField(obj, "y", abi.Scalar(1)), "unknown field")
	assert.Error(t, e.SetField(obj, "x", vector(t, e, 1)), "array into scalar")
}

func TestUntypedObjectOwnsFields(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	obj, err := e.CreateObject(e.ParseType("object"))
	require.NoError(t, err)
	assert.Equal(t, e.ParseType("object"), e.GetType(obj))

	vec := vector(t, e, 1, 2)
	require.NoError(t, e.SetField(obj, "data", vec))
	assert.False(t, e.Release(vec.Handle), "object holds a reference")

	got, err := e.GetField(obj, "data")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, readFloats(t, e, got))
	e.Release(got.Handle)

	assert.True(t, e.Release(obj))
	_, ok := e.arena.get(vec.Handle)
	assert.False(t, ok, "field released with its object")
}

const shapesModule = `
module: shapes
functions:
  - {signature: "total(vec)", builtin: sum}
  - {signature: "twice(scalar)", builtin: double}
types:
  - name: box
    params: [T]
    fields:
      - {name: w, type: scalar}
      - {name: data, type: "??"}
    methods:
      - {signature: "area(scalar)", builtin: area}
variables:
  gain: 2.5
  label: shapes
  taps: [1, 2, 3]
  count: 4
`

func shapesBuiltins() []Option {
	return []Option{
		WithBuiltin("double", func(c *Call) error {
			f, err := c.Float(0)
			c.Return(0, abi.Scalar(2*f))
			return err
		}),
		WithBuiltin("area", func(c *Call) error {
			w, err := c.e.GetField(c.In[0].Handle, "w")
			if err != nil {
				return err
			}
			h, err := c.Float(1)
			c.Return(0, abi.Scalar(w.Real*h))
			return err
		}),
	}
}

func TestModuleLifecycle(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig(), shapesBuiltins()...)
	require.NoError(t, e.LoadModuleFromSource("", shapesModule))
	assert.Error(t, e.LoadModuleFromSource("", shapesModule), "already loaded")
	assert.ElementsMatch(t, []string{"core", "shapes"}, e.Modules())

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCall("twice(scalar)", []abi.Value{abi.Scalar(4)}, out))
	assert.Equal(t, abi.Scalar(8), out[0])

	gain, ok := e.ReadVariable("gain")
	require.True(t, ok)
	assert.Equal(t, abi.Scalar(2.5), gain)
	count, _ := e.ReadVariable("count")
	assert.Equal(t, abi.Int(4), count)
	taps, _ := e.ReadVariable("taps")
	assert.Equal(t, abi.TypeVec, taps.Type)
	assert.Equal(t, []float64{1, 2, 3}, readFloats(t, e, taps))
	e.Release(taps.Handle)
	label, _ := e.ReadVariable("label")
	s, _ := e.String(label.Handle)
	assert.Equal(t, "shapes", s)

	th := e.ParseType("shapes.box")
	require.NotZero(t, th)
	obj, err := e.CreateObject(th)
	require.NoError(t, err)
	require.NoError(t, e.SetField(obj, "w", abi.Scalar(3)))

	m := e.LookupMethod(th, "area(scalar)")
	require.NotZero(t, m)
	assert.Equal(t, m, e.LookupMethod(th, "area"), "bare name and cache")
	target := abi.Value{Type: abi.TypeTypedObject, Handle: obj}
	require.NoError(t, e.MethodCall(m, target, []abi.Value{abi.Scalar(5)}, out))
	assert.Equal(t, abi.Scalar(15), out[0])
	assert.Error(t, e.MethodCall(m, abi.Value{Type: abi.TypeScalar}, nil, out))

	require.True(t, e.UnloadModule("shapes"))
	assert.False(t, e.UnloadModule("shapes"))
	assert.False(t, e.FunctionExists("twice"))
	_, ok = e.ReadVariable("gain")
	assert.False(t, ok)
	assert.Zero(t, e.ParseType("shapes.box"))
}

func TestModuleFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "extra.yaml")
	bin := filepath.Join(dir, "extra.nbm")
	manifest := "functions:\n  - {signature: \"total(vec)\", builtin: sum}\n"
	require.NoError(t, os.WriteFile(src, []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(bin, EncodeBinary([]byte(manifest)), 0o644))

	e := newEngine(t, DefaultConfig())
	assert.Error(t, e.LoadBinaryModule(src), "source file has no header")
	assert.Error(t, e.LoadSourceModule(bin), "binary file loaded as source")

	require.NoError(t, e.LoadSourceModule(src))
	assert.True(t, e.FunctionExists("total(vec)"))
	require.True(t, e.UnloadModule("extra"))

	require.NoError(t, e.LoadBinaryModule(bin))
	assert.True(t, e.FunctionExists("total"))

	assert.Error(t, e.LoadModuleFromSource("bad", "functions: [{signature: \"f()\", builtin: nope}]"))
	assert.NotContains(t, e.Modules(), "bad")
	assert.Error(t, e.LoadModuleFromSource("broken", "functions: {"))
}

func TestLookupFunction(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	h := e.LookupFunction("sum(??)")
	require.NotZero(t, h)
	assert.Equal(t, h, e.LookupFunction("sum( ?? )"), "cached by canonical signature")
	assert.Zero(t, e.LookupFunction("nope(int)"))

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCallIndirect(h, []abi.Value{vector(t, e, 1, 2, 3)}, out))
	assert.Equal(t, abi.Scalar(6), out[0])

	lam, err := e.CreateLambda(0, func(in, out []abi.Value) error {
		out[0] = abi.Int(int64(len(in)))
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, e.FunctionCallIndirect(lam, []abi.Value{abi.Int(1), abi.Int(2)}, out))
	assert.Equal(t, abi.Int(2), out[0])
	require.NoError(t, e.Delete(lam))
}

func TestBuiltins(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cpu", DoublePrecision: true, Workers: 4})
	call := func(name string, in ...abi.Value) abi.Value {
		t.Helper()
		out := make([]abi.Value, 1)
		require.NoError(t, e.FunctionCall(name, in, out), name)
		return out[0]
	}

	ones := call("ones", abi.Int(2), abi.Int(3))
	assert.Equal(t, abi.TypeMat, ones.Type)
	assert.Equal(t, [3]int{2, 3, 1}, ones.Dims)
	assert.Equal(t, abi.Scalar(6), call("sum", ones))
	assert.Equal(t, abi.Int(6), call("numel", ones))

	z := call("zeros", abi.Int(5))
	assert.Equal(t, abi.TypeVec, z.Type)
	assert.Equal(t, [3]int{1, 5, 1}, z.Dims)

	v := vector(t, e, 1, -2, 3)
	assert.Equal(t, []float64{2, -4, 6}, readFloats(t, e, call("scale", v, abi.Scalar(2))))
	assert.Equal(t, []float64{2, -4, 6}, readFloats(t, e, call("add", v, v)))
	assert.Equal(t, []float64{11, 8, 13}, readFloats(t, e, call("add", v, abi.Int(10))))
	assert.Equal(t, []float64{1, 4, 9}, readFloats(t, e, call("mul", v, v)))
	assert.Equal(t, []float64{1, 2, 3}, readFloats(t, e, call("abs", v)))
	assert.Equal(t, []float64{1, 4, 9}, readFloats(t, e, call("abs2", v)))
	assert.Equal(t, abi.Scalar(2), call("psum", v))
	assert.Equal(t, abi.Scalar(5), call("add", abi.Scalar(2), abi.Int(3)))

	assert.Equal(t, abi.Int(2), call("periodize", abi.Int(-2), abi.Int(4)))
	assert.Equal(t, abi.Int(1), call("mirror_ext", abi.Int(-1), abi.Int(4)))
	assert.Equal(t, abi.Int(3), call("mirror_ext", abi.Int(4), abi.Int(4)))

	h := call("hist", vector(t, e, 0.1, 0.2, 0.6, 0.9, 2), abi.Int(2))
	assert.Equal(t, []float64{2, 3}, readFloats(t, e, h))

	out := make([]abi.Value, 1)
	assert.Error(t, e.FunctionCall("add", []abi.Value{{Type: abi.TypeString}}, out), "no overload")
	assert.Error(t, e.FunctionCall("nothing", nil, out))
}

func TestComplexBuiltins(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	a, err := e.newArray(abi.TypeComplexScalar, []int{1, 2})
	require.NoError(t, err)
	require.NoError(t, a.setFloats([]float64{3, 0}, []float64{4, 1}))
	cv := a.value(e.arena.put(a.tag(), a))
	assert.Equal(t, abi.TypeCVec, cv.Type)

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCall("abs", []abi.Value{cv}, out))
	assert.Equal(t, []float64{5, 1}, readFloats(t, e, out[0]))
	require.NoError(t, e.FunctionCall("abs2", []abi.Value{cv}, out))
	assert.Equal(t, []float64{25, 1}, readFloats(t, e, out[0]))
	require.NoError(t, e.FunctionCall("psum", []abi.Value{cv}, out))
	assert.Equal(t, abi.Complex(3+5i), out[0])
	require.NoError(t, e.FunctionCall("mul", []abi.Value{cv, abi.Complex(1i)}, out))
	assert.Equal(t, abi.TypeCVec, out[0].Type)
}

func TestDenoise(t *testing.T) {
	t.Parallel()

	e := newEngine(t, Config{Device: "cpu", Workers: 3})
	flat, err := e.newArray(abi.TypeScalar, []int{4, 5, 6})
	require.NoError(t, err)
	re := make([]float64, flat.numel)
	for i := range re {
		re[i] = 0.5
	}
	require.NoError(t, flat.setFloats(re, nil))
	img := flat.value(e.arena.put(flat.tag(), flat))
	assert.Equal(t, abi.TypeCube, img.Type)

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCall("denoise(cube,scalar,int)", []abi.Value{img, abi.Scalar(0.8), abi.Int(2)}, out))
	for _, f := range readFloats(t, e, out[0]) {
		assert.InDelta(t, 0.5, f, 1e-6)
	}

	err = e.FunctionCall("denoise", []abi.Value{img, abi.Scalar(0.8), abi.Int(-1)}, out)
	var ke *kern.KernelError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, kern.CodeUserError, ke.Code)
	assert.Equal(t, abi.Value{}, out[0], "results cleared on failure")
}

func TestKernelFailures(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig(), WithBuiltin("boom", func(*Call) error { panic("boom") }))
	require.NoError(t, e.LoadModuleFromSource("bad", "functions: [{signature: \"boom()\", builtin: boom}]"))

	out := make([]abi.Value, 1)
	err := e.FunctionCall("boom()", nil, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kernel panic")

	msg := abi.Value{Type: abi.TypeString, Handle: e.CreateString("bad input")}
	err = e.FunctionCall("error", []abi.Value{msg}, out)
	var ke *kern.KernelError
	require.ErrorAs(t, err, &ke)
	assert.Equal(t, "bad input", ke.Message)

	err = e.ParallelDo([]int{8}, 0, func(l kern.Lane) {
		if l.Pos[0] == 5 {
			panic("lane")
		}
	})
	assert.Error(t, err)
}

func TestStack(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	s := e.NewStack()
	v := vector(t, e, 1, 2, 3)
	require.NoError(t, e.StackPush(s, []abi.Value{v}))
	e.Release(v.Handle)
	assert.Equal(t, 1, e.StackCount(s))

	require.NoError(t, e.StackCall(s, "sum", 1, 1))
	out := make([]abi.Value, 1)
	require.NoError(t, e.StackPop(s, out))
	assert.Equal(t, abi.Scalar(6), out[0])
	_, ok := e.arena.get(v.Handle)
	assert.False(t, ok, "argument released by the call")

	assert.Error(t, e.StackCall(s, "sum", 1, 1), "empty stack")
	require.NoError(t, e.StackPush(s, []abi.Value{abi.Int(1), abi.Int(2)}))
	e.StackClear(s)
	assert.Zero(t, e.StackCount(s))
	assert.Equal(t, -1, e.StackCount(0))
	require.NoError(t, e.Delete(s))
}

func TestReductions(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	assert.Error(t, e.AddReduction("total", "missing"))
	require.NoError(t, e.AddReduction("total", "psum"))

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCall("total", []abi.Value{vector(t, e, 1, 1)}, out))
	assert.Equal(t, abi.Scalar(2), out[0])

	assert.True(t, e.RemoveReduction("total"))
	assert.False(t, e.RemoveReduction("total"))
	assert.Error(t, e.FunctionCall("total", nil, out))
}

func TestVariables(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	v := vector(t, e, 4)
	require.NoError(t, e.WriteVariable("x", v))
	assert.False(t, e.Release(v.Handle), "variable keeps a reference")

	got, ok := e.ReadVariable("x")
	require.True(t, ok)
	assert.Equal(t, []float64{4}, readFloats(t, e, got))
	e.Release(got.Handle)

	require.NoError(t, e.WriteVariable("x", abi.Scalar(1)))
	_, alive := e.arena.get(v.Handle)
	assert.False(t, alive, "overwritten value released")

	assert.Error(t, e.WriteVariable("", abi.Scalar(1)))
	assert.Error(t, e.WriteVariable("y", abi.Value{Type: abi.TypeVec, Handle: 9999}))
}

func TestLambdaVariablesAreCopied(t *testing.T) {
	t.Parallel()

	e := newEngine(t, DefaultConfig())
	lam, err := e.CreateLambda(0, func(in, out []abi.Value) error {
		out[0] = abi.Int(7)
		return nil
	})
	require.NoError(t, err)
	fn := abi.Value{Type: abi.TypeLambdaExpr, Handle: lam}

	require.NoError(t, e.WriteVariable("seven", fn))
	require.NoError(t, e.Delete(lam), "the creator's handle is its own")

	got, ok := e.ReadVariable("seven")
	require.True(t, ok)
	assert.NotEqual(t, lam, got.Handle)

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCallIndirect(got.Handle, nil, out))
	assert.Equal(t, abi.Int(7), out[0])

	require.NoError(t, e.Delete(got.Handle))
	again, ok := e.ReadVariable("seven")
	require.True(t, ok, "deleting a read copy leaves the variable")
	require.NoError(t, e.FunctionCallIndirect(again.Handle, nil, out))

	require.NoError(t, e.WriteVariable("seven", abi.Scalar(0)))
	assert.Equal(t, 1, e.arena.live()[abi.TypeLambdaExpr], "only the last read copy is left")
	require.NoError(t, e.Delete(again.Handle))
	assert.Zero(t, e.arena.live()[abi.TypeLambdaExpr])
}

func TestQueryProperty(t *testing.T) {
	t.Parallel()

	cpu := newEngine(t, DefaultConfig())
	_, ok := cpu.QueryProperty(abi.PropOpenCLCurrentContext, 0)
	assert.False(t, ok)

	cl := newEngine(t, Config{Device: "opencl"})
	ctx, ok := cl.QueryProperty(abi.PropOpenCLCurrentContext, 0)
	require.True(t, ok)
	assert.Len(t, ctx, 16)
	q0, _ := cl.QueryProperty(abi.PropOpenCLCommandQueue, 0)
	q1, _ := cl.QueryProperty(abi.PropOpenCLCommandQueue, 1)
	assert.NotEqual(t, q0, q1)
}

func TestProfilingReport(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profile.yaml")
	e, err := New(DefaultConfig(), quiet())
	require.NoError(t, err)
	require.NoError(t, e.EnableProfiling(abi.ProfileExecutionTime, path))
	require.NoError(t, e.EnableProfiling(abi.ProfileMemLeaks, ""))
	require.NoError(t, e.EnableProfiling(abi.ProfileAccuracy, ""))
	assert.Error(t, e.EnableProfiling(abi.ProfilingMode(9), ""))

	out := make([]abi.Value, 1)
	require.NoError(t, e.FunctionCall("sum", []abi.Value{abi.Scalar(1)}, out))
	require.NoError(t, e.FunctionCall("scale", []abi.Value{vector(t, e, 1), abi.Scalar(0)}, out))
	require.NoError(t, e.FunctionCall("scale", []abi.Value{abi.Scalar(1e308), abi.Scalar(1e308)}, out))

	require.NoError(t, e.Close())
	assert.ErrorIs(t, e.Close(), ErrClosed)

	report, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(report), "execution_time")
	assert.Contains(t, string(report), "sum(??)")
	assert.Contains(t, string(report), "mem_leaks")
	assert.Contains(t, string(report), "accuracy")
}

func TestBootstrapTable(t *testing.T) {
	t.Parallel()

	b, err := abi.Bootstrap("cpu", false, abi.AllocNone, NewInit(DefaultConfig(), quiet()))
	require.NoError(t, err)
	tbl := &b.Table
	defer tbl.Close()

	assert.Contains(t, tbl.EngineName(), "numbridge-ref")
	assert.Equal(t, abi.PrecisionSingle, tbl.ScalarType())

	msg := abi.Value{Type: abi.TypeString, Handle: tbl.CreateString("from kernel")}
	out := make([]abi.Value, 1)
	assert.False(t, tbl.FunctionCall("error(string)", []abi.Value{msg}, out))
	text, rec := tbl.LastError()
	assert.Contains(t, text, "from kernel")
	assert.Equal(t, kern.CodeUserError, rec.Code)
	assert.Contains(t, b.Error(), "from kernel")

	_, err = abi.Bootstrap("tpu", false, abi.AllocNone, Init)
	assert.ErrorIs(t, err, abi.ErrBootstrap)
}
