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

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestTagTable(t *testing.T) {
	tests := []struct {
		tag        Tag
		name       string
		refCounted bool
		handle     bool
	}{
		{TypeVoid, "??", false, false},
		{TypeScalar, "scalar", false, false},
		{TypeComplexScalar, "cscalar", false, false},
		{TypeInt, "int", false, false},
		{TypeVec, "vec", true, true},
		{TypeMat, "mat", true, true},
		{TypeCube, "cube", true, true},
		{TypeCVec, "cvec", true, true},
		{TypeCMat, "cmat", true, true},
		{TypeCCube, "ccube", true, true},
		{TypeString, "string", false, true},
		{TypeTypeInfo, "type", false, true},
		{TypeLambdaExpr, "lambda_expr", false, true},
		{TypeInt8, "int8", false, false},
		{TypeUInt64, "uint64", false, false},
		{TypeTypedObject, "", true, true},
		{TypeUntypedObject, "object", true, true},
		{TypeNCube, "cube{4}", true, true},
		{TypeNCCube, "ccube{4}", true, true},
		{TypeMethod, "method", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String(), func(t *testing.T) {
			if got := tt.tag.TypeName(); got != tt.name {
				t.Errorf("TypeName: got %q, want %q", got, tt.name)
			}
			if got := tt.tag.IsRefCounted(); got != tt.refCounted {
				t.Errorf("IsRefCounted: got %v, want %v", got, tt.refCounted)
			}
			if got := tt.tag.HasHandle(); got != tt.handle {
				t.Errorf("HasHandle: got %v, want %v", got, tt.handle)
			}
		})
	}
	if NumTags != 25 {
		t.Errorf("NumTags: got %d, want 25", NumTags)
	}
	if TypeMethod != 24 || TypeTypedObject != 20 {
		t.Errorf("tag order changed: METHOD=%d TYPEDOBJECT=%d", TypeMethod, TypeTypedObject)
	}
}

func TestArrayTag(t *testing.T) {
	tests := []struct {
		rank    int
		complex bool
		want    Tag
	}{
		{1, false, TypeVec},
		{2, false, TypeMat},
		{3, false, TypeCube},
		{4, false, TypeNCube},
		{1, true, TypeCVec},
		{2, true, TypeCMat},
		{3, true, TypeCCube},
		{7, true, TypeNCCube},
	}
	for _, tt := range tests {
		if got := ArrayTag(tt.rank, tt.complex); got != tt.want {
			t.Errorf("ArrayTag(%d, %v): got %v, want %v", tt.rank, tt.complex, got, tt.want)
		}
		if got := ArrayTag(tt.rank, tt.complex).IsComplexArray(); got != tt.complex {
			t.Errorf("IsComplexArray(%d, %v): got %v", tt.rank, tt.complex, got)
		}
	}
	if got := NCubeTypeName(5, true); got != "ccube{5}" {
		t.Errorf("NCubeTypeName: got %q", got)
	}
}

func TestValues(t *testing.T) {
	if v := Scalar(2.5); v.Float() != 2.5 || v.IsNull() {
		t.Errorf("Scalar: got %v", v)
	}
	if v := IntOf(TypeUInt16, 7); v.Float() != 7 {
		t.Errorf("IntOf: got %v", v)
	}
	if c := Complex(1 + 2i).Complex128(); c != 1+2i {
		t.Errorf("Complex: got %v", c)
	}
	if !(Value{Type: TypeVec}).IsNull() {
		t.Error("array without handle should be null")
	}
	if !Void().IsNull() {
		t.Error("void should be null")
	}
}

func TestEnums(t *testing.T) {
	if LockReadWrite != 3 || !LockReadWrite.Reads() || !LockReadWrite.Writes() {
		t.Errorf("LockReadWrite: got %d", LockReadWrite)
	}
	if LockInvalid != 4 || MemOpenCL != 3 {
		t.Error("enum values changed")
	}
	if PropOpenCLCommandQueue != 0x1001 {
		t.Errorf("PropOpenCLCommandQueue: got %#x", int32(PropOpenCLCommandQueue))
	}
	for _, s := range []string{"managed", "cpu", "cuda", "opencl"} {
		if r, ok := ParseMemResource(s); !ok || r.String() != s {
			t.Errorf("ParseMemResource(%q): got %v, %v", s, r, ok)
		}
	}
	if f, err := ParseAllocationFlags("gpu"); err != nil || f != AllocForceGPULoad {
		t.Errorf("ParseAllocationFlags: got %v, %v", f, err)
	}
	if _, err := ParseAllocationFlags("tpu"); err == nil {
		t.Error("ParseAllocationFlags(tpu): expected error")
	}
}

// fillTable sets every entry of t to a function returning zero values.
func fillTable(t *Table) {
	rv := reflect.ValueOf(t).Elem()
	for i := range rv.NumField() {
		f := rv.Field(i)
		ft := f.Type()
		f.Set(reflect.MakeFunc(ft, func([]reflect.Value) []reflect.Value {
			out := make([]reflect.Value, ft.NumOut())
			for j := range out {
				out[j] = reflect.Zero(ft.Out(j))
			}
			return out
		}))
	}
}

func TestBootstrap(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		b, err := Bootstrap("cuda", true, AllocForceCPULoad, func(b *Block) int {
			fillTable(&b.Table)
			return 0
		})
		if err != nil {
			t.Fatalf("Bootstrap: %v", err)
		}
		if b.Device() != "cuda" || !b.DoublePrecision() || b.Flags != AllocForceCPULoad {
			t.Errorf("block: got device=%q double=%v flags=%d", b.Device(), b.DoublePrecision(), b.Flags)
		}
	})
	t.Run("InitFails", func(t *testing.T) {
		_, err := Bootstrap("cpu", false, AllocNone, func(b *Block) int {
			b.SetError("no device")
			return 1
		})
		if !errors.Is(err, ErrBootstrap) || !strings.Contains(err.Error(), "no device") {
			t.Errorf("got %v", err)
		}
	})
	t.Run("MissingEntry", func(t *testing.T) {
		_, err := Bootstrap("cpu", false, AllocNone, func(b *Block) int {
			fillTable(&b.Table)
			b.Table.StackCall = nil
			return 0
		})
		if !errors.Is(err, ErrBootstrap) || !strings.Contains(err.Error(), "StackCall") {
			t.Errorf("got %v", err)
		}
	})
	t.Run("NoInit", func(t *testing.T) {
		if _, err := Bootstrap("cpu", false, AllocNone, nil); !errors.Is(err, ErrBootstrap) {
			t.Errorf("got %v", err)
		}
	})
}

func TestDeviceNameTruncated(t *testing.T) {
	var b Block
	b.SetDeviceName(strings.Repeat("é", 300))
	if got := len([]rune(b.Device())); got != DeviceNameLen-1 {
		t.Errorf("device name length: got %d, want %d", got, DeviceNameLen-1)
	}
	b.SetDeviceName("cpu")
	if b.Device() != "cpu" {
		t.Errorf("rewrite: got %q", b.Device())
	}
}
