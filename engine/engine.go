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

// Package engine is an in-process reference engine for the numbridge ABI.
//
// It fills an abi.Table so that a host can be exercised end to end
// without an external runtime: arrays live in an arena of refcounted
// objects, accelerator residency is simulated with separate host and
// device buffers, and functions are Go builtins bound to signatures by
// YAML module manifests.
package engine

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/lthibault/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/alexcesaro/statsd.v2"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/kern"
	"github.com/ajroetker/go-numbridge/kern/contrib/workerpool"
)

// Version is reported by EngineName.
const Version = "0.3.0"

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("engine: closed")

// Engine is one session of the reference engine. All methods are safe for
// concurrent use.
type Engine struct {
	cfg   Config
	dev   device
	prec  abi.Precision
	flags abi.AllocationFlags
	id    uuid.UUID
	log   log.Logger
	stats *statsd.Client

	arena    *arena
	cat      *catalog
	pool     *workerpool.Pool
	prof     *profiler
	builtins map[string]Builtin

	devUsed atomic.Int64
	closed  atomic.Bool

	mu         sync.Mutex
	prims      map[string]abi.Handle
	funcs      map[string]abi.Handle
	methods    map[methodKey]abi.Handle
	reductions map[string]string
	events     []func()
}

// New starts a session. The core module, which binds the standard
// builtins, is loaded before New returns.
func New(cfg Config, opt ...Option) (*Engine, error) {
	if cfg.DeviceMemoryBytes == 0 {
		cfg.DeviceMemoryBytes = DefaultDeviceMemory
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dev, _ := parseDevice(cfg.Device)
	flags, _ := abi.ParseAllocationFlags(cfg.Allocation)

	cat, err := newCatalog()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		dev:        dev,
		flags:      flags,
		id:         uuid.New(),
		arena:      newArena(),
		cat:        cat,
		builtins:   standardBuiltins(),
		prims:      make(map[string]abi.Handle),
		funcs:      make(map[string]abi.Handle),
		methods:    make(map[methodKey]abi.Handle),
		reductions: make(map[string]string),
	}
	if cfg.DoublePrecision {
		e.prec = abi.PrecisionDouble
	}
	for _, option := range withDefaults(opt) {
		option(e)
	}
	e.log = e.log.With(log.F{
		"session": e.id,
		"device":  dev.name,
	})

	if e.stats == nil {
		e.stats = newStatsd(cfg.Statsd, e.log)
	}
	e.prof = newProfiler(e.stats)
	e.pool = workerpool.New(cfg.Workers)
	e.registerPrimitives()

	if err := e.loadManifest("core", []byte(coreManifest), "builtin"); err != nil {
		e.pool.Close()
		return nil, errors.Wrap(err, "core module")
	}

	e.log.With(log.F{
		"precision": e.prec,
		"simd":      kern.CurrentLevel(),
		"workers":   e.pool.NumWorkers(),
	}).Debug("engine started")
	return e, nil
}

func newStatsd(addr string, l log.Logger) *statsd.Client {
	c, err := statsd.New(
		statsd.Address(addr),
		statsd.Mute(addr == ""),
		statsd.ErrorHandler(func(err error) {
			l.WithError(err).Debug("statsd write failed")
		}),
		statsd.Prefix("numbridge"))
	if err != nil {
		l.WithError(err).Warn("setup failed for statsd metrics")
		c, _ = statsd.New(statsd.Mute(true))
	}
	return c
}

// registerPrimitives pins one TYPEINFO per primitive spelling, including
// the n-cube types up to rank 16.
func (e *Engine) registerPrimitives() {
	for t := abi.TypeVoid; t < abi.NumTags; t++ {
		if name := t.TypeName(); name != "" {
			e.prims[name] = e.arena.pin(abi.TypeTypeInfo, &typeInfo{tag: t, name: name, finalized: true})
		}
	}
	for rank := 4; rank <= 16; rank++ {
		for _, complex := range []bool{false, true} {
			name := abi.NCubeTypeName(rank, complex)
			if _, ok := e.prims[name]; ok {
				continue
			}
			tag := abi.TypeNCube
			if complex {
				tag = abi.TypeNCCube
			}
			e.prims[name] = e.arena.pin(abi.TypeTypeInfo, &typeInfo{tag: tag, name: name, finalized: true})
		}
	}
}

func (e *Engine) primitive(name string) (abi.Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.prims[name]
	return h, ok
}

// ID returns the session identifier.
func (e *Engine) ID() uuid.UUID { return e.id }

// EngineName returns the engine name and device.
func (e *Engine) EngineName() string {
	return fmt.Sprintf("numbridge-ref %s (%s, %s)", Version, e.dev.name, e.prec)
}

// Precision reports the scalar width of the session.
func (e *Engine) Precision() abi.Precision { return e.prec }

// DeviceBytes reports the bytes currently staged on the accelerator.
func (e *Engine) DeviceBytes() int64 { return e.devUsed.Load() }

// ParseType resolves a primitive or registered type name. Unknown names
// yield the null handle.
func (e *Engine) ParseType(name string) abi.Handle {
	if h, ok := e.primitive(name); ok {
		return h
	}
	if rec := e.cat.typeNamed(name); rec != nil {
		return rec.Handle
	}
	return 0
}

// CreateNDMatrix allocates a zeroed array with elements of type elemType.
func (e *Engine) CreateNDMatrix(elemType abi.Handle, dims []int) (abi.Handle, error) {
	if e.closed.Load() {
		return 0, ErrClosed
	}
	t, ok := lookup[*typeInfo](e.arena, elemType)
	if !ok {
		return 0, errors.Errorf("unknown element type handle %d", elemType)
	}
	a, err := e.newArray(t.tag, dims)
	if err != nil {
		return 0, err
	}
	return e.arena.put(a.tag(), a), nil
}

// CreateString stores text. String handles are not refcounted.
func (e *Engine) CreateString(text string) abi.Handle {
	return e.arena.put(abi.TypeString, text)
}

// String returns the text behind a STRING handle.
func (e *Engine) String(h abi.Handle) (string, bool) {
	return lookup[string](e.arena, h)
}

// AddRef adds a reference to a refcounted object.
func (e *Engine) AddRef(h abi.Handle) {
	if !e.arena.addRef(h) {
		e.log.WithField("handle", h).Warn("addref of unknown or released handle")
	}
}

// Release drops a reference and reports whether the object was freed.
func (e *Engine) Release(h abi.Handle) bool {
	o, freed := e.arena.release(h)
	if freed {
		e.finalize(o)
	}
	return freed
}

// Delete frees a handle that is not refcounted: strings, lambdas, stacks
// and types. Engine-owned handles are left alone.
func (e *Engine) Delete(h abi.Handle) error {
	o, ok := e.arena.get(h)
	if !ok {
		return errors.Errorf("unknown handle %d", h)
	}
	if o.kind.IsRefCounted() {
		return errors.Errorf("handle %d is refcounted; release it instead", h)
	}
	if o, ok = e.arena.remove(h); ok {
		e.finalize(o)
	}
	return nil
}

func (e *Engine) finalize(o *object) {
	switch v := o.val.(type) {
	case *array:
		v.mu.Lock()
		if v.dev != nil {
			e.unreserve(len(v.dev))
			v.dev = nil
		}
		v.mu.Unlock()
	case *instance:
		v.mu.Lock()
		fields := v.fields
		v.fields = nil
		v.mu.Unlock()
		for _, f := range fields {
			e.drop(f)
		}
	case *stack:
		for _, sv := range v.clear() {
			e.drop(sv)
		}
	}
}

// retain returns a value the receiver may keep: refcounted values gain a
// reference, strings are copied and unpinned lambdas get a handle of their
// own over the same function.
func (e *Engine) retain(v abi.Value) abi.Value {
	switch {
	case v.Type.IsRefCounted():
		e.AddRef(v.Handle)
	case v.Type == abi.TypeString:
		if s, ok := e.String(v.Handle); ok {
			v.Handle = e.CreateString(s)
		}
	case v.Type == abi.TypeLambdaExpr:
		if o, ok := e.arena.get(v.Handle); ok && !o.pinned {
			v.Handle = e.arena.put(abi.TypeLambdaExpr, o.val)
		}
	}
	return v
}

// drop undoes retain.
func (e *Engine) drop(v abi.Value) {
	switch {
	case v.Type.IsRefCounted() && v.Handle != 0:
		e.Release(v.Handle)
	case (v.Type == abi.TypeString || v.Type == abi.TypeLambdaExpr) && v.Handle != 0:
		_ = e.Delete(v.Handle)
	}
}

// GetNDims writes up to len(dims) dimensions of array h and returns its
// rank. Non-arrays have rank zero.
func (e *Engine) GetNDims(h abi.Handle, dims []int) int {
	a, ok := lookup[*array](e.arena, h)
	if !ok {
		return 0
	}
	copy(dims, a.dims)
	return len(a.dims)
}

// ReadVariable returns a retained copy of a named value.
func (e *Engine) ReadVariable(name string) (abi.Value, bool) {
	v, ok := e.cat.variable(name)
	if !ok {
		return abi.Value{}, false
	}
	return e.retain(v), true
}

// WriteVariable stores a retained copy of v under name.
func (e *Engine) WriteVariable(name string, v abi.Value) error {
	if name == "" {
		return errors.New("variable needs a name")
	}
	if v.Type.HasHandle() {
		if _, ok := e.arena.get(v.Handle); !ok {
			return errors.Errorf("variable %s: unknown handle %d", name, v.Handle)
		}
	}
	old, had := e.cat.setVariable("", name, e.retain(v))
	if had {
		e.drop(old)
	}
	return nil
}

// QueryProperty answers device-specific property queries.
func (e *Engine) QueryProperty(prop abi.HostProperty, param int) ([]byte, bool) {
	if e.dev.accel != abi.MemOpenCL {
		return nil, false
	}
	switch prop {
	case abi.PropOpenCLCurrentContext:
		id := e.id
		return id[:], true
	case abi.PropOpenCLCommandQueue:
		q := uuid.NewSHA1(e.id, []byte(fmt.Sprintf("queue/%d", param)))
		return q[:], true
	}
	return nil, false
}

// post queues fn for the next DoEvents.
func (e *Engine) post(fn func()) {
	e.mu.Lock()
	e.events = append(e.events, fn)
	e.mu.Unlock()
}

// DoEvents runs the events queued so far.
func (e *Engine) DoEvents() { e.drainEvents() }

func (e *Engine) drainEvents() int {
	e.mu.Lock()
	events := e.events
	e.events = nil
	e.mu.Unlock()
	for _, fn := range events {
		fn()
	}
	return len(events)
}

// RunApp runs events until the queue stays empty.
func (e *Engine) RunApp() {
	for e.drainEvents() > 0 {
	}
}

// Close writes the profiling report, frees every object and stops the
// worker pool. Objects still alive are reported when leak profiling is on.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	e.RunApp()

	for _, v := range e.cat.variables() {
		e.drop(v)
	}
	var err error
	leaks := e.arena.live()
	if path := e.prof.output(); path != "" {
		err = multierr.Append(err, e.writeReport(path, leaks))
	}
	for _, o := range e.arena.drain() {
		e.finalize(o)
	}
	e.pool.Close()
	e.stats.Close()

	e.log.WithField("live", len(leaks)).Debug("engine closed")
	return err
}

func (e *Engine) writeReport(path string, leaks map[abi.Tag]int) error {
	b, err := e.prof.report(e, leaks)
	if err != nil {
		return errors.Wrap(err, "profile report")
	}
	return errors.Wrap(os.WriteFile(path, b, 0o644), "profile report")
}
