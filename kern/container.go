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

import "fmt"

// This file provides the non-owning container views kernels see. A view
// never allocates element storage: it wraps a buffer obtained from a
// residency lock and is valid only until the matching unlock.

// View is implemented by every container kind. Shape returns the extent of
// each axis, outermost first; Elems returns the row-major backing slice,
// exactly Prod(Shape()) long.
type View[T any] interface {
	Shape() []int
	Elems() []T
}

// Vector is a rank-1 view.
type Vector[T any] struct {
	data []T
	dims []int
}

// Matrix is a rank-2 view; element (i, j) lives at j + i*Dim2().
type Matrix[T any] struct {
	data []T
	dims []int
}

// Cube is a rank-3 view; element (i, j, k) lives at k + (j + i*Dim2())*Dim3().
type Cube[T any] struct {
	data []T
	dims []int
}

// NCube is a view of arbitrary rank.
type NCube[T any] struct {
	data []T
	dims []int
}

// Nested views form a closed set; each one is a distinct instantiation.
type (
	VectorOfVector[T any] = Vector[Vector[T]]
	VectorOfMatrix[T any] = Vector[Matrix[T]]
	VectorOfCube[T any]   = Vector[Cube[T]]
	MatrixOfVector[T any] = Matrix[Vector[T]]
	MatrixOfMatrix[T any] = Matrix[Matrix[T]]
	CubeOfVector[T any]   = Cube[Vector[T]]
)

// MakeVector wraps the first n elements of data.
func MakeVector[T any](data []T, n int) Vector[T] {
	dims := []int{n}
	return Vector[T]{data: fit(data, dims), dims: dims}
}

// MakeMatrix wraps data as a dim1 x dim2 matrix.
func MakeMatrix[T any](data []T, dim1, dim2 int) Matrix[T] {
	dims := []int{dim1, dim2}
	return Matrix[T]{data: fit(data, dims), dims: dims}
}

// MakeCube wraps data as a dim1 x dim2 x dim3 cube.
func MakeCube[T any](data []T, dim1, dim2, dim3 int) Cube[T] {
	dims := []int{dim1, dim2, dim3}
	return Cube[T]{data: fit(data, dims), dims: dims}
}

// MakeNCube wraps data with the given dims. The dims slice is copied.
func MakeNCube[T any](data []T, dims ...int) NCube[T] {
	d := append([]int(nil), dims...)
	return NCube[T]{data: fit(data, d), dims: d}
}

func fit[T any](data []T, dims []int) []T {
	for _, d := range dims {
		if d < 0 {
			panic(fmt.Sprintf("kern: negative dimension in %v", dims))
		}
	}
	n := Prod(dims)
	if len(data) < n {
		panic(fmt.Sprintf("kern: buffer of %d elements cannot back dims %v", len(data), dims))
	}
	return data[:n:n]
}

func (v Vector[T]) Shape() []int { return v.dims }
func (v Vector[T]) Elems() []T   { return v.data }
func (v Vector[T]) Numel() int   { return len(v.data) }
func (v Vector[T]) Len() int     { return v.dims[0] }

func (m Matrix[T]) Shape() []int { return m.dims }
func (m Matrix[T]) Elems() []T   { return m.data }
func (m Matrix[T]) Numel() int   { return len(m.data) }
func (m Matrix[T]) Dim1() int    { return m.dims[0] }
func (m Matrix[T]) Dim2() int    { return m.dims[1] }

func (c Cube[T]) Shape() []int { return c.dims }
func (c Cube[T]) Elems() []T   { return c.data }
func (c Cube[T]) Numel() int   { return len(c.data) }
func (c Cube[T]) Dim1() int    { return c.dims[0] }
func (c Cube[T]) Dim2() int    { return c.dims[1] }
func (c Cube[T]) Dim3() int    { return c.dims[2] }

func (c NCube[T]) Shape() []int { return c.dims }
func (c NCube[T]) Elems() []T   { return c.data }
func (c NCube[T]) Numel() int   { return len(c.data) }
func (c NCube[T]) Rank() int    { return len(c.dims) }

// Row returns row i of m as a vector sharing m's storage.
func (m Matrix[T]) Row(i int) Vector[T] {
	n := m.dims[1]
	return MakeVector(m.data[i*n:(i+1)*n], n)
}

// Slice returns plane i of c as a matrix sharing c's storage.
func (c Cube[T]) Slice(i int) Matrix[T] {
	n := c.dims[1] * c.dims[2]
	return MakeMatrix(c.data[i*n:(i+1)*n], c.dims[1], c.dims[2])
}

// Numel returns the element count of any view.
func Numel[T any](v View[T]) int {
	return Prod(v.Shape())
}
