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

package abi

import "fmt"

// LockMode selects the direction of a residency lock.
type LockMode int32

const (
	LockRead      LockMode = 1
	LockWrite     LockMode = 2
	LockReadWrite LockMode = LockRead | LockWrite
)

// Reads reports whether the lock needs up-to-date contents.
func (m LockMode) Reads() bool { return m&LockRead != 0 }

// Writes reports whether the lock makes the locked side authoritative.
func (m LockMode) Writes() bool { return m&LockWrite != 0 }

func (m LockMode) String() string {
	switch m {
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	case LockReadWrite:
		return "readwrite"
	}
	return fmt.Sprintf("LockMode(%d)", int32(m))
}

// MemResource is a memory space a lock can target.
type MemResource int32

const (
	// MemManaged lets the engine pick the memory space.
	MemManaged MemResource = iota
	MemCPU
	MemCUDA
	MemOpenCL
)

func (r MemResource) String() string {
	switch r {
	case MemManaged:
		return "managed"
	case MemCPU:
		return "cpu"
	case MemCUDA:
		return "cuda"
	case MemOpenCL:
		return "opencl"
	}
	return fmt.Sprintf("MemResource(%d)", int32(r))
}

// ParseMemResource parses the String form of a MemResource.
func ParseMemResource(s string) (MemResource, bool) {
	for r := MemManaged; r <= MemOpenCL; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// LockResult is the outcome of a Lock call.
type LockResult int32

const (
	LockOK LockResult = iota
	LockResNotAvailable
	LockOutOfMem
	LockInUse
	LockInvalid
)

func (r LockResult) String() string {
	switch r {
	case LockOK:
		return "OK"
	case LockResNotAvailable:
		return "RES_NOT_AVAILABLE"
	case LockOutOfMem:
		return "OUT_OF_MEM"
	case LockInUse:
		return "IN_USE"
	case LockInvalid:
		return "INVALID"
	}
	return fmt.Sprintf("LockResult(%d)", int32(r))
}

// AllocationFlags select the initial residency of new arrays.
type AllocationFlags int32

const (
	AllocNone         AllocationFlags = 0
	AllocForceGPULoad AllocationFlags = 2
	AllocForceCPULoad AllocationFlags = 4
)

// ParseAllocationFlags accepts none, gpu and cpu.
func ParseAllocationFlags(s string) (AllocationFlags, error) {
	switch s {
	case "", "none":
		return AllocNone, nil
	case "gpu":
		return AllocForceGPULoad, nil
	case "cpu":
		return AllocForceCPULoad, nil
	}
	return 0, fmt.Errorf("abi: unknown allocation mode %q", s)
}

// ProfilingMode selects what EnableProfiling collects.
type ProfilingMode int32

const (
	ProfileExecutionTime ProfilingMode = iota
	ProfileMemLeaks
	ProfileAccuracy
)

func (m ProfilingMode) String() string {
	switch m {
	case ProfileExecutionTime:
		return "execution_time"
	case ProfileMemLeaks:
		return "mem_leaks"
	case ProfileAccuracy:
		return "accuracy"
	}
	return fmt.Sprintf("ProfilingMode(%d)", int32(m))
}

// HostProperty names a device-specific property for QueryProperty.
type HostProperty int32

const (
	PropOpenCLCurrentContext HostProperty = 0x1000
	PropOpenCLCommandQueue   HostProperty = 0x1001
)

// Precision is the engine's scalar floating-point width.
type Precision int32

const (
	PrecisionSingle Precision = iota
	PrecisionDouble
)

// ScalarBytes is the storage size of one SCALAR element.
func (p Precision) ScalarBytes() int {
	if p == PrecisionDouble {
		return 8
	}
	return 4
}

func (p Precision) String() string {
	if p == PrecisionDouble {
		return "double"
	}
	return "single"
}
