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
	"github.com/lthibault/log"
	"github.com/pkg/errors"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// LoadSourceModule loads a YAML module manifest from path.
func (h *Host) LoadSourceModule(path string) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := h.b.LoadSourceModule(path); err != nil {
		return errors.Wrap(err, "load source module")
	}
	h.log.WithField("module", path).Debug("module loaded")
	return nil
}

// LoadBinaryModule loads a binary module from path.
func (h *Host) LoadBinaryModule(path string) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := h.b.LoadBinaryModule(path); err != nil {
		return errors.Wrap(err, "load binary module")
	}
	h.log.WithField("module", path).Debug("module loaded")
	return nil
}

// LoadModuleFromSource loads a manifest held in memory under name.
func (h *Host) LoadModuleFromSource(name, src string) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := h.b.LoadModuleFromSource(name, src); err != nil {
		return errors.Wrapf(err, "load module %s", name)
	}
	h.log.WithField("module", name).Debug("module loaded")
	return nil
}

// UnloadModule removes a module and everything it defined. It reports
// false for unknown modules.
func (h *Host) UnloadModule(name string) bool {
	if h.closed.Load() {
		return false
	}

	// Cached lookups may point into the module.
	h.mu.Lock()
	for _, fn := range h.fns {
		_ = h.b.Delete(fn)
	}
	for _, m := range h.methods {
		_ = h.b.Delete(m)
	}
	h.fns = make(map[string]Handle)
	h.methods = make(map[methodKey]Handle)
	h.mu.Unlock()

	ok := h.b.UnloadModule(name)
	h.log.With(log.F{"module": name, "found": ok}).Debug("module unloaded")
	return ok
}

// EnableProfiling turns on a profiling mode. The report is written to
// output when the session closes.
func (h *Host) EnableProfiling(mode abi.ProfilingMode, output string) error {
	return errors.Wrap(h.b.EnableProfiling(mode, output), "enable profiling")
}

// QueryProperty reads a device property. It reports false when the device
// does not provide it.
func (h *Host) QueryProperty(prop abi.HostProperty, param int) ([]byte, bool) {
	return h.b.QueryProperty(prop, param)
}

// RunApp drains the engine's event queue.
func (h *Host) RunApp() { h.b.RunApp() }

// DoEvents processes the events queued so far.
func (h *Host) DoEvents() { h.b.DoEvents() }

// Synchronize waits for outstanding engine work.
func (h *Host) Synchronize() { h.b.Synchronize() }
