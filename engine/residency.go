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
	"unsafe"

	"github.com/lthibault/log"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// reserve claims n bytes of the device budget.
func (e *Engine) reserve(n int) bool {
	for {
		used := e.devUsed.Load()
		if used+int64(n) > e.cfg.DeviceMemoryBytes {
			return false
		}
		if e.devUsed.CompareAndSwap(used, used+int64(n)) {
			return true
		}
	}
}

func (e *Engine) unreserve(n int) { e.devUsed.Add(-int64(n)) }

// Lock pins the contents of array h in memory space res and returns a
// pointer to them. Locks are exclusive whatever the mode; a second Lock
// before Unlock returns LockInUse.
//
// When the requested side is stale it is refreshed from the other side,
// unless the lock is write-only.
func (e *Engine) Lock(h, elemType abi.Handle, mode abi.LockMode, res abi.MemResource) (unsafe.Pointer, abi.LockResult) {
	a, ok := lookup[*array](e.arena, h)
	if !ok {
		return nil, abi.LockInvalid
	}
	if mode < abi.LockRead || mode > abi.LockReadWrite {
		return nil, abi.LockInvalid
	}
	if elemType != 0 {
		t, ok := lookup[*typeInfo](e.arena, elemType)
		if !ok || t.tag != a.elem {
			return nil, abi.LockInvalid
		}
	}
	if !e.dev.provides(res) {
		return nil, abi.LockResNotAvailable
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locked {
		return nil, abi.LockInUse
	}

	side := res
	if res == abi.MemManaged {
		side = abi.MemCPU
		if !a.hostValid && a.devValid {
			side = e.dev.accel
		}
	}

	var buf []byte
	if side == abi.MemCPU {
		if mode.Reads() {
			a.syncHost()
		}
		buf = a.host
	} else {
		if a.dev == nil && a.bytes() > 0 {
			if !e.reserve(a.bytes()) {
				return nil, abi.LockOutOfMem
			}
			a.dev = alignedBytes(a.bytes())
		}
		if mode.Reads() && !a.devValid {
			copy(a.dev, a.host)
			a.devValid = true
		}
		buf = a.dev
	}

	a.locked = true
	a.lockMode = mode
	a.lockRes = res
	a.side = side
	e.log.With(log.F{
		"handle": h,
		"mode":   mode,
		"side":   side,
	}).Trace("locked")
	return unsafe.Pointer(unsafe.SliceData(buf)), abi.LockOK
}

// Unlock releases a lock taken with the same mode and resource. A write
// lock makes the side it was taken on the only valid copy.
func (e *Engine) Unlock(h abi.Handle, mode abi.LockMode, res abi.MemResource) {
	a, ok := lookup[*array](e.arena, h)
	if !ok {
		e.log.WithField("handle", h).Warn("unlock of unknown handle")
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.locked || a.lockMode != mode || a.lockRes != res {
		e.log.With(log.F{
			"handle":   h,
			"mode":     mode,
			"resource": res,
		}).Warn("ignoring unlock that matches no lock")
		return
	}
	if mode.Writes() {
		if a.side == abi.MemCPU {
			a.hostValid, a.devValid = true, false
		} else {
			a.hostValid, a.devValid = false, true
		}
	}
	a.locked = false
}
