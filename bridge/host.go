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

// Package bridge is the typed host side of the engine boundary.
//
// A Host owns one engine session. It creates engine values, moves arrays
// in and out of host memory through Lock/Unlock, builds object types,
// loads modules and invokes engine functions:
//
//	h, err := bridge.Open(bridge.WithDevice("cuda"))
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	x, _ := h.CreateVector(h.GetPrimitiveTypeHandle(abi.TypeScalar), 1024)
//	sum := bridge.NewFunction(h, "sum(??)")
//	total, err := sum.Call1(x)
//
// Only one Host may be open per process.
package bridge

import (
	"sync"
	"sync/atomic"

	"github.com/lthibault/log"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/engine"
)

var (
	// ErrHostExists is returned by Open while another Host is open.
	ErrHostExists = errors.New("bridge: host already open")

	// ErrUnresolved is returned when a function or method signature does
	// not resolve.
	ErrUnresolved = errors.New("bridge: unresolved function")

	// ErrClosed is returned by operations on a closed Host.
	ErrClosed = errors.New("bridge: host closed")

	// ErrBootstrap is returned (wrapped) when the engine fails to start.
	ErrBootstrap = abi.ErrBootstrap
)

var (
	instanceMu sync.Mutex
	instance   *Host
)

// Instance returns the open Host, or nil.
func Instance() *Host {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	return instance
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger. A nil logger selects log.New().
func WithLogger(l log.Logger) Option {
	if l == nil {
		l = log.New()
	}
	return func(h *Host) {
		h.log = l
	}
}

// WithDevice selects the engine device, written to the bootstrap block.
func WithDevice(name string) Option {
	return func(h *Host) {
		h.device = name
	}
}

// WithDoublePrecision selects 64-bit scalars.
func WithDoublePrecision(double bool) Option {
	return func(h *Host) {
		h.double = double
	}
}

// WithAllocation sets the bootstrap allocation flags, which decide where
// new arrays start out.
func WithAllocation(flags abi.AllocationFlags) Option {
	return func(h *Host) {
		h.flags = flags
	}
}

// WithEngine sets the engine entry point called during bootstrap. The
// default starts the reference engine with engine.DefaultConfig.
func WithEngine(init abi.InitFunc) Option {
	return func(h *Host) {
		h.init = init
	}
}

// WithBackend attaches an already running engine and skips bootstrap.
func WithBackend(b Backend) Option {
	return func(h *Host) {
		h.b = b
	}
}

func withDefaults(opt []Option) []Option {
	return append([]Option{
		WithLogger(nil),
		WithDevice("cpu"),
	}, opt...)
}

// Host is an open engine session.
type Host struct {
	log    log.Logger
	device string
	double bool
	flags  abi.AllocationFlags
	init   abi.InitFunc

	b     Backend
	block *abi.Block
	prims [abi.NumTags]Handle

	mu      sync.Mutex
	fns     map[string]Handle
	methods map[methodKey]Handle

	closed atomic.Bool
}

type methodKey struct {
	typ Handle
	sig string
}

// Open starts an engine session. It fails with ErrHostExists while
// another Host is open.
func Open(opt ...Option) (*Host, error) {
	instanceMu.Lock()
	defer instanceMu.Unlock()

	if instance != nil {
		return nil, ErrHostExists
	}

	h := &Host{
		fns:     make(map[string]Handle),
		methods: make(map[methodKey]Handle),
	}
	for _, option := range withDefaults(opt) {
		option(h)
	}

	if h.b == nil {
		if h.init == nil {
			h.init = engine.NewInit(engine.DefaultConfig(), engine.WithLogger(h.log))
		}
		block, err := abi.Bootstrap(h.device, h.double, h.flags, h.init)
		if err != nil {
			return nil, err
		}
		h.block = block
		h.b = newTableBackend(block)
	}

	if err := h.registerPrimitives(); err != nil {
		return nil, multierr.Append(err, h.b.Close())
	}

	h.log = h.log.With(log.F{
		"engine":    h.b.EngineName(),
		"precision": h.b.Precision(),
	})
	h.log.Debug("host opened")

	instance = h
	return h, nil
}

// Backend returns the engine the host talks to.
func (h *Host) Backend() Backend { return h.b }

// Close releases the cached lookups and shuts the engine down. Calling it
// again returns ErrClosed.
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	h.mu.Lock()
	var err error
	for sig, fn := range h.fns {
		err = multierr.Append(err, errors.Wrapf(h.b.Delete(fn), "release %s", sig))
	}
	for k, m := range h.methods {
		err = multierr.Append(err, errors.Wrapf(h.b.Delete(m), "release method %s", k.sig))
	}
	h.fns, h.methods = nil, nil
	h.mu.Unlock()

	err = multierr.Append(err, h.b.Close())

	instanceMu.Lock()
	if instance == h {
		instance = nil
	}
	instanceMu.Unlock()

	if err != nil {
		h.log.WithError(err).Error("host closed with errors")
	} else {
		h.log.Debug("host closed")
	}
	return err
}

func (h *Host) live() error {
	if h.closed.Load() {
		return ErrClosed
	}
	return nil
}

// EngineName describes the engine and its device.
func (h *Host) EngineName() string { return h.b.EngineName() }

// Precision reports the engine's scalar width.
func (h *Host) Precision() abi.Precision { return h.b.Precision() }
