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
	"sync"
	"sync/atomic"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// object is one arena slot. Refcounted kinds start with one reference held
// by the creator; the rest are freed by an explicit Delete or at Close.
type object struct {
	refs   atomic.Int32
	kind   abi.Tag
	pinned bool // owned by the engine, survives Delete
	val    any
}

// tryRef adds a reference unless the object is already dying.
func (o *object) tryRef() bool {
	for {
		n := o.refs.Load()
		if n <= 0 {
			return false
		}
		if o.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// arena maps index handles to objects. Handles are never reused within a
// session, so a stale handle is reported as unknown instead of aliasing a
// newer object.
type arena struct {
	mu   sync.RWMutex
	next abi.Handle
	objs map[abi.Handle]*object
}

func newArena() *arena {
	return &arena{objs: make(map[abi.Handle]*object)}
}

func (a *arena) put(kind abi.Tag, val any) abi.Handle {
	return a.insert(&object{kind: kind, val: val})
}

func (a *arena) pin(kind abi.Tag, val any) abi.Handle {
	return a.insert(&object{kind: kind, val: val, pinned: true})
}

func (a *arena) insert(o *object) abi.Handle {
	o.refs.Store(1)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	a.objs[a.next] = o
	return a.next
}

func (a *arena) get(h abi.Handle) (*object, bool) {
	if h == 0 {
		return nil, false
	}
	a.mu.RLock()
	o, ok := a.objs[h]
	a.mu.RUnlock()
	return o, ok
}

func (a *arena) addRef(h abi.Handle) bool {
	o, ok := a.get(h)
	return ok && o.tryRef()
}

// release drops one reference and returns the object when that was the
// last one. The object is no longer reachable through the arena then.
func (a *arena) release(h abi.Handle) (*object, bool) {
	o, ok := a.get(h)
	if !ok {
		return nil, false
	}
	if o.refs.Add(-1) > 0 {
		return nil, false
	}
	a.mu.Lock()
	delete(a.objs, h)
	a.mu.Unlock()
	return o, true
}

func (a *arena) remove(h abi.Handle) (*object, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.objs[h]
	if !ok || o.pinned {
		return o, false
	}
	delete(a.objs, h)
	return o, true
}

// live counts the unpinned objects of each kind.
func (a *arena) live() map[abi.Tag]int {
	out := make(map[abi.Tag]int)
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, o := range a.objs {
		if !o.pinned {
			out[o.kind]++
		}
	}
	return out
}

// drain empties the arena and returns every object it held.
func (a *arena) drain() []*object {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*object, 0, len(a.objs))
	for h, o := range a.objs {
		out = append(out, o)
		delete(a.objs, h)
	}
	return out
}

// lookup returns the typed payload of h.
func lookup[T any](a *arena, h abi.Handle) (T, bool) {
	var zero T
	o, ok := a.get(h)
	if !ok {
		return zero, false
	}
	v, ok := o.val.(T)
	return v, ok
}

// unpin drops a pinned object the engine no longer exposes.
func (a *arena) unpin(h abi.Handle) {
	a.mu.Lock()
	delete(a.objs, h)
	a.mu.Unlock()
}
