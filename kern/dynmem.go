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

package kern

import (
	"sync"
	"unsafe"
)

// dynMemAlign is the alignment of every DynMem block.
const dynMemAlign = 8

// DynMem is the kernel-local dynamic allocator: a bump arena of fixed
// capacity shared by the lanes of one kernel launch. Failures are reported
// through the arena's ErrorSink with the DYNMEM codes and a nil block.
type DynMem struct {
	mu   sync.Mutex
	buf  []byte
	off  int
	live int
	sink *ErrorSink
}

// NewDynMem returns an arena of size bytes reporting into sink.
func NewDynMem(size int, sink *ErrorSink) *DynMem {
	words := make([]uint64, (size+dynMemAlign-1)/dynMemAlign)
	var buf []byte
	if len(words) > 0 {
		buf = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), size)
	}
	return &DynMem{buf: buf, sink: sink}
}

// Cap returns the arena size in bytes.
func (m *DynMem) Cap() int { return len(m.buf) }

// Used returns the bytes handed out since the last Reset.
func (m *DynMem) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.off
}

// Alloc returns a zeroed block of n bytes.
func (m *DynMem) Alloc(n int) []byte {
	if n < 0 || n > len(m.buf) {
		m.fail(CodeDynMemBlockSizeTooLarge, n)
		return nil
	}
	size := (n + dynMemAlign - 1) &^ (dynMemAlign - 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.off+size > len(m.buf) {
		m.fail(CodeDynMemOutOfMemory, n)
		return nil
	}
	b := m.buf[m.off : m.off+n : m.off+n]
	clear(b)
	m.off += size
	m.live++
	return b
}

// Free returns a block. Space is reclaimed only when the last live block
// goes away; freeing a foreign block or freeing more blocks than were
// allocated records CodeDynMemInvalidState.
func (m *DynMem) Free(b []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.live == 0 || !m.owns(b) {
		m.fail(CodeDynMemInvalidState, len(b))
		return
	}
	m.live--
	if m.live == 0 {
		m.off = 0
	}
}

// Reset discards every block.
func (m *DynMem) Reset() {
	m.mu.Lock()
	m.off, m.live = 0, 0
	m.mu.Unlock()
}

func (m *DynMem) owns(b []byte) bool {
	if len(m.buf) == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(&m.buf[0]))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	return p >= base && p < base+uintptr(len(m.buf))
}

func (m *DynMem) fail(code ErrorCode, n int) {
	var target uintptr
	if len(m.buf) > 0 {
		target = uintptr(unsafe.Pointer(&m.buf[0]))
	}
	m.sink.Record(ErrorRecord{Target: target, TargetBytes: n, Code: code})
}

// AllocOf returns a zeroed block of n elements of T from m.
func AllocOf[T any](m *DynMem, n int) []T {
	var zero T
	b := m.Alloc(n * int(unsafe.Sizeof(zero)))
	if b == nil {
		return nil
	}
	if n == 0 {
		return []T{}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
