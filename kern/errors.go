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
	"fmt"
	"sync/atomic"
)

// ErrorCode classifies a failure recorded by kernel code.
type ErrorCode int32

const (
	// CodeNone means nothing has been recorded.
	CodeNone ErrorCode = iota

	// CodeOutOfBounds is recorded by checked accessors.
	CodeOutOfBounds

	// CodeOverflow is recorded by checked narrowing conversions.
	CodeOverflow

	// CodeUserError is recorded by an explicit Raise from kernel code.
	CodeUserError

	// CodeNaNOrInf is recorded when a checked write stores NaN or Inf.
	CodeNaNOrInf

	// CodeNaN is recorded when a checked write stores NaN and the sink
	// distinguishes NaN from Inf.
	CodeNaN

	// CodeAssertionFailed is recorded by Assert.
	CodeAssertionFailed

	// CodeDynMemBlockSizeTooLarge is recorded by DynMem when one request
	// exceeds the arena.
	CodeDynMemBlockSizeTooLarge

	// CodeDynMemOutOfMemory is recorded by DynMem when the arena is full.
	CodeDynMemOutOfMemory

	// CodeDynMemInvalidState is recorded by DynMem on a bad free.
	CodeDynMemInvalidState
)

// String returns the canonical upper-case name of the code.
func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "NONE"
	case CodeOutOfBounds:
		return "OUT_OF_BOUNDS"
	case CodeOverflow:
		return "OVERFLOW"
	case CodeUserError:
		return "USER_ERROR"
	case CodeNaNOrInf:
		return "NAN_OR_INF"
	case CodeNaN:
		return "NAN"
	case CodeAssertionFailed:
		return "ASSERTION_FAILED"
	case CodeDynMemBlockSizeTooLarge:
		return "DYNMEM_BLOCKSIZE_TOOLARGE"
	case CodeDynMemOutOfMemory:
		return "DYNMEM_OUTOFMEMORY"
	case CodeDynMemInvalidState:
		return "DYNMEM_INVALIDSTATE"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int32(c))
	}
}

// ErrorRecord describes the first failure seen by an ErrorSink.
type ErrorRecord struct {
	// Target is the address of the buffer (or element) involved.
	Target uintptr

	// TargetBytes is the size in bytes of the buffer at Target.
	TargetBytes int

	Code ErrorCode

	// Message is set by Raise and Assert.
	Message string
}

// KernelError is the error form of an ErrorRecord.
type KernelError struct {
	ErrorRecord
}

func (e *KernelError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("kern: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("kern: %s (target %#x, %d bytes)", e.Code, e.Target, e.TargetBytes)
}

// ErrorSink holds at most one ErrorRecord. The first Record wins; later
// records are dropped until Clear. It is safe for concurrent use by kernel
// lanes, and a nil *ErrorSink discards everything.
type ErrorSink struct {
	rec atomic.Pointer[ErrorRecord]
}

// Record stores r unless something is already recorded, and reports
// whether r was stored.
func (s *ErrorSink) Record(r ErrorRecord) bool {
	if s == nil || r.Code == CodeNone {
		return false
	}
	return s.rec.CompareAndSwap(nil, &r)
}

// Raise records a user error carrying msg.
func (s *ErrorSink) Raise(msg string) bool {
	return s.Record(ErrorRecord{Code: CodeUserError, Message: msg})
}

// Assert records CodeAssertionFailed when cond is false.
func (s *ErrorSink) Assert(cond bool, msg string) bool {
	if cond {
		return true
	}
	s.Record(ErrorRecord{Code: CodeAssertionFailed, Message: msg})
	return false
}

// Load returns the recorded failure, if any.
func (s *ErrorSink) Load() (ErrorRecord, bool) {
	if s == nil {
		return ErrorRecord{}, false
	}
	r := s.rec.Load()
	if r == nil {
		return ErrorRecord{}, false
	}
	return *r, true
}

// Code returns the recorded code or CodeNone.
func (s *ErrorSink) Code() ErrorCode {
	r, _ := s.Load()
	return r.Code
}

// Err returns the recorded failure as a *KernelError, or nil.
func (s *ErrorSink) Err() error {
	r, ok := s.Load()
	if !ok {
		return nil
	}
	return &KernelError{ErrorRecord: r}
}

// Clear forgets the recorded failure. Callers clear between invocations.
func (s *ErrorSink) Clear() {
	if s != nil {
		s.rec.Store(nil)
	}
}
