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
	"math"
	"testing"
	"unsafe"
)

func seq(n int) []float64 {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i + 1)
	}
	return data
}

func TestMatrixCheckedScenario(t *testing.T) {
	var sink ErrorSink
	acc := Accessor{Policy: Checked, Sink: &sink}
	m := MakeMatrix(seq(12), 3, 4)

	if got := MatrixGetAt(acc, m, 2, 3); got != 12 {
		t.Errorf("MatrixGetAt(2, 3): got %v, want 12", got)
	}
	if err := sink.Err(); err != nil {
		t.Fatalf("in-range read recorded %v", err)
	}

	if got := MatrixGetAt(acc, m, 3, 0); got != 0 {
		t.Errorf("MatrixGetAt(3, 0): got %v, want 0", got)
	}
	rec, ok := sink.Load()
	if !ok || rec.Code != CodeOutOfBounds {
		t.Fatalf("MatrixGetAt(3, 0): got record %+v, want OUT_OF_BOUNDS", rec)
	}
	if want := uintptr(unsafe.Pointer(&m.Elems()[0])); rec.Target != want {
		t.Errorf("target: got %#x, want %#x", rec.Target, want)
	}
	if rec.TargetBytes != 12*8 {
		t.Errorf("target bytes: got %d, want %d", rec.TargetBytes, 12*8)
	}
}

func TestCheckedFirstErrorWins(t *testing.T) {
	var sink ErrorSink
	acc := Accessor{Policy: Checked, Sink: &sink}
	a := MakeVector(seq(4), 4)
	b := MakeVector(seq(8), 8)

	VectorGetAt(acc, a, 4)
	first, _ := sink.Load()
	VectorGetAt(acc, b, -1)
	VectorSetAt(acc, b, 1, 9)

	got, _ := sink.Load()
	if got != first {
		t.Errorf("second failure overwrote record: got %+v, want %+v", got, first)
	}
	if got.Target != uintptr(unsafe.Pointer(&a.Elems()[0])) {
		t.Errorf("record target should name the first view")
	}

	sink.Clear()
	VectorGetAt(acc, b, -1)
	if got, _ := sink.Load(); got.Target != uintptr(unsafe.Pointer(&b.Elems()[0])) {
		t.Errorf("after Clear the next failure should be recorded")
	}
}

func TestCircularScenario(t *testing.T) {
	acc := Accessor{Policy: Circular}
	v := MakeVector([]float64{10, 20, 30, 40, 50}, 5)

	if a, b := VectorGetAt(acc, v, 7), VectorGetAt(acc, v, 2); a != 30 || b != 30 {
		t.Errorf("circular 7 and 2: got %v and %v, want 30", a, b)
	}
	for i := range 5 {
		for k := -3; k <= 3; k++ {
			if got, want := VectorGetAt(acc, v, i+k*5), v.Elems()[i]; got != want {
				t.Errorf("circular %d: got %v, want %v", i+k*5, got, want)
			}
		}
	}
}

func TestMirrorScenario(t *testing.T) {
	acc := Accessor{Policy: Mirror}
	v := MakeVector([]float64{1, 2, 3, 4}, 4)

	if got := VectorGetAt(acc, v, -1); got != 2 {
		t.Errorf("mirror -1: got %v, want 2", got)
	}
	if got := VectorGetAt(acc, v, 4); got != 4 {
		t.Errorf("mirror 4: got %v, want 4", got)
	}
}

func TestClampedEnds(t *testing.T) {
	acc := Accessor{Policy: Clamped}
	m := MakeMatrix(seq(12), 3, 4)

	if got, want := MatrixGetAt(acc, m, -1, -1), MatrixGetAt(acc, m, 0, 0); got != want {
		t.Errorf("clamped (-1,-1): got %v, want %v", got, want)
	}
	if got, want := MatrixGetAt(acc, m, 3, 4), MatrixGetAt(acc, m, 2, 3); got != want {
		t.Errorf("clamped (3,4): got %v, want %v", got, want)
	}
}

func TestSafeDoesNotRecord(t *testing.T) {
	var sink ErrorSink
	acc := Accessor{Policy: Safe, Sink: &sink}
	v := MakeVector(seq(3), 3)

	if got := VectorGetAt(acc, v, 3); got != 0 {
		t.Errorf("safe read: got %v, want 0", got)
	}
	VectorSetAt(acc, v, 99, -1)
	if sink.Code() != CodeNone {
		t.Errorf("safe access recorded %v", sink.Code())
	}
	for i, x := range v.Elems() {
		if x != float64(i+1) {
			t.Errorf("safe write changed element %d to %v", i, x)
		}
	}
}

// TestRoundTripAllRanks writes every position through each policy and
// reads it back, checking the packed offset.
func TestRoundTripAllRanks(t *testing.T) {
	shapes := [][]int{{5}, {3, 4}, {2, 3, 4}, {2, 2, 3, 2}}
	policies := []Policy{Unchecked, Checked, Safe, Circular, Mirror, Clamped}

	for _, dims := range shapes {
		for _, pol := range policies {
			var sink ErrorSink
			acc := Accessor{Policy: pol, Sink: &sink}
			c := MakeNCube(make([]float64, Prod(dims)), dims...)
			pos := make([]int, len(dims))

			for ind := range c.Numel() {
				Ind2Pos(dims, ind, pos)
				NCubeSetAt(acc, c, float64(ind)+0.5, pos...)
			}
			for ind := range c.Numel() {
				Ind2Pos(dims, ind, pos)
				if got := NCubeGetAt(acc, c, pos...); got != float64(ind)+0.5 {
					t.Errorf("%v/%v at %v: got %v, want %v", dims, pol, pos, got, float64(ind)+0.5)
				}
				if c.Elems()[Pos2Ind(dims, pos)] != float64(ind)+0.5 {
					t.Errorf("%v/%v: element %d not at its packed offset", dims, pol, ind)
				}
			}
			for i := range pos {
				pos[i] = dims[i] - 1
			}
			if got := NCubeGetAt(acc, c, pos...); got != float64(c.Numel()-1)+0.5 {
				t.Errorf("%v/%v max index: got %v", dims, pol, got)
			}
			if sink.Code() != CodeNone {
				t.Errorf("%v/%v: in-range accesses recorded %v", dims, pol, sink.Code())
			}
		}
	}
}

func TestCheckedWriteGuardsNaN(t *testing.T) {
	var sink ErrorSink
	acc := Accessor{Policy: Checked, Sink: &sink}
	v := MakeVector([]float32{1, 2, 3}, 3)

	VectorSetAt(acc, v, float32(math.Inf(1)), 1)
	if sink.Code() != CodeNaNOrInf {
		t.Errorf("Inf write: got %v, want NAN_OR_INF", sink.Code())
	}
	if !math.IsInf(float64(v.Elems()[1]), 1) {
		t.Errorf("Inf write should still store, got %v", v.Elems()[1])
	}
}

func TestRefAt(t *testing.T) {
	var sink ErrorSink
	acc := Accessor{Policy: Checked, Sink: &sink}
	c := MakeCube(make([]int32, 24), 2, 3, 4)

	*CubeRefAt(acc, c, 1, 2, 3) = 7
	if got := c.Elems()[23]; got != 7 {
		t.Errorf("RefAt write: got %v, want 7", got)
	}

	p := CubeRefAt(acc, c, 2, 0, 0)
	*p = 9
	for i, x := range c.Elems() {
		if i != 23 && x != 0 {
			t.Errorf("out-of-range RefAt write leaked into element %d", i)
		}
	}
	if sink.Code() != CodeOutOfBounds {
		t.Errorf("out-of-range RefAt: got %v, want OUT_OF_BOUNDS", sink.Code())
	}
}

func TestRankForms(t *testing.T) {
	data := make([]float32, 24)
	for i := range data {
		data[i] = float32(i)
	}
	acc := Accessor{Policy: Mirror}

	tests := []struct {
		name  string
		ref   *float32
		get   float32
		vec   []float32
		want  float32
		wantV []float32
	}{
		{
			name:  "Vector",
			ref:   VectorRefAt(acc, MakeVector(data, 24), 5),
			get:   VectorGetAt(acc, MakeVector(data, 24), -1),
			vec:   VectorGetVecAt(acc, MakeVector(data, 24), make([]float32, 3), 22),
			want:  1,
			wantV: []float32{22, 23, 23},
		},
		{
			name:  "Matrix",
			ref:   MatrixRefAt(acc, MakeMatrix(data, 4, 6), 0, 5),
			get:   MatrixGetAt(acc, MakeMatrix(data, 4, 6), 4, 0),
			vec:   MatrixGetVecAt(acc, MakeMatrix(data, 4, 6), make([]float32, 2), 1, 4),
			want:  18,
			wantV: []float32{10, 11},
		},
		{
			name:  "Cube",
			ref:   CubeRefAt(acc, MakeCube(data, 2, 3, 4), 0, 1, 1),
			get:   CubeGetAt(acc, MakeCube(data, 2, 3, 4), 1, 3, 0),
			vec:   CubeGetVecAt(acc, MakeCube(data, 2, 3, 4), make([]float32, 2), 1, 0, 2),
			want:  20,
			wantV: []float32{14, 15},
		},
		{
			name:  "NCube",
			ref:   NCubeRefAt(acc, MakeNCube(data, 2, 3, 4), 0, 1, 1),
			get:   NCubeGetAt(acc, MakeNCube(data, 2, 3, 4), -1, 0, 0),
			vec:   NCubeGetVecAt(acc, MakeNCube(data, 2, 3, 4), make([]float32, 2), 0, 2, 3),
			want:  12,
			wantV: []float32{11, 11},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.ref == nil || *tt.ref != data[5] {
				t.Errorf("RefAt: got %v, want %v", tt.ref, data[5])
			}
			if tt.get != tt.want {
				t.Errorf("GetAt: got %v, want %v", tt.get, tt.want)
			}
			for i := range tt.wantV {
				if tt.vec[i] != tt.wantV[i] {
					t.Errorf("GetVecAt: got %v, want %v", tt.vec, tt.wantV)
					break
				}
			}
		})
	}

	c := MakeNCube(make([]int32, 6), 2, 3)
	*NCubeRefAt(Accessor{}, c, 1, 2) = 4
	NCubeSetVecAt(Accessor{}, c, []int32{7, 8}, 0, 0)
	VectorSetVecAt(Accessor{}, MakeVector(c.Elems(), 6), []int32{9}, 2)
	MatrixSetVecAt(Accessor{}, MakeMatrix(c.Elems(), 2, 3), []int32{5}, 1, 0)
	CubeSetVecAt(Accessor{}, MakeCube(c.Elems(), 1, 2, 3), []int32{6}, 0, 1, 1)
	want := []int32{7, 8, 9, 5, 6, 4}
	for i, x := range c.Elems() {
		if x != want[i] {
			t.Errorf("writes: got %v, want %v", c.Elems(), want)
			break
		}
	}
}

func TestVectorLanes(t *testing.T) {
	data := make([]int32, 10)
	for i := range data {
		data[i] = int32(i)
	}
	v := MakeVector(data, 10)
	buf := make([]int32, 4)

	t.Run("Checked", func(t *testing.T) {
		var sink ErrorSink
		acc := Accessor{Policy: Checked, Sink: &sink}
		GetVecAt[int32](acc, v, buf, 6)
		if buf[0] != 6 || buf[3] != 9 {
			t.Errorf("lanes at 6: got %v", buf)
		}
		if sink.Code() != CodeNone {
			t.Fatalf("start dim-W recorded %v", sink.Code())
		}
		GetVecAt[int32](acc, v, buf, 7)
		if sink.Code() != CodeOutOfBounds {
			t.Errorf("start dim-W+1: got %v, want OUT_OF_BOUNDS", sink.Code())
		}
		for _, x := range buf {
			if x != 0 {
				t.Errorf("rejected lanes should be zero, got %v", buf)
				break
			}
		}
	})

	t.Run("Circular", func(t *testing.T) {
		acc := Accessor{Policy: Circular}
		GetVecAt[int32](acc, v, buf, 8)
		want := []int32{8, 9, 0, 1}
		for i := range want {
			if buf[i] != want[i] {
				t.Errorf("circular lanes at 8: got %v, want %v", buf, want)
				break
			}
		}
	})

	t.Run("Matrix", func(t *testing.T) {
		m := MakeMatrix(data[:8], 2, 4)
		acc := Accessor{Policy: Checked}
		SetVecAt[int32](acc, m, []int32{-1, -2, -3, -4}, 1, 0)
		got := GetVecAt[int32](acc, m, make([]int32, 4), 1, 0)
		if got[0] != -1 || got[3] != -4 || data[4] != -1 {
			t.Errorf("matrix row lanes: got %v, data %v", got, data)
		}
	})
}

func TestDebugModes(t *testing.T) {
	v := MakeVector(seq(3), 3)

	t.Run("CheckedPanics", func(t *testing.T) {
		var sink ErrorSink
		defer func() {
			r := recover()
			if _, ok := r.(*KernelError); !ok {
				t.Errorf("expected *KernelError panic, got %v", r)
			}
			if sink.Code() != CodeOutOfBounds {
				t.Errorf("failure should be recorded before the trap")
			}
		}()
		VectorGetAt(Accessor{Policy: Checked, Sink: &sink, Debug: true}, v, 3)
	})

	t.Run("UncheckedGuard", func(t *testing.T) {
		acc := Accessor{Policy: Unchecked, Debug: true}
		if got := VectorGetAt(acc, v, 5); got != 0 {
			t.Errorf("guarded unchecked read: got %v, want 0", got)
		}
		VectorSetAt(acc, v, 1, -1)
	})
}

func TestBoundaryAccessMode(t *testing.T) {
	tests := []struct {
		mode BoundaryAccessMode
		want Policy
	}{
		{ModeDefault, Checked},
		{ModeUnchecked, Unchecked},
		{ModeZero, Safe},
		{ModeCircular, Circular},
		{ModeMirror, Mirror},
		{ModeClamp, Clamped},
	}
	for _, tt := range tests {
		if got := tt.mode.Policy(); got != tt.want {
			t.Errorf("mode %d: got %v, want %v", tt.mode, got, tt.want)
		}
		if p, err := ParsePolicy(tt.want.String()); err != nil || p != tt.want {
			t.Errorf("ParsePolicy(%q): got %v, %v", tt.want.String(), p, err)
		}
	}
}

func TestNestedViews(t *testing.T) {
	rows := []Vector[float32]{
		MakeVector([]float32{1, 2}, 2),
		MakeVector([]float32{3, 4, 5}, 3),
	}
	var nested VectorOfVector[float32] = MakeVector(rows, 2)
	acc := Accessor{Policy: Checked}

	inner := VectorGetAt(acc, nested, 1)
	if got := VectorGetAt(acc, inner, 2); got != 5 {
		t.Errorf("nested read: got %v, want 5", got)
	}
	if inner.Len() != 3 {
		t.Errorf("inner length: got %d, want 3", inner.Len())
	}
}
