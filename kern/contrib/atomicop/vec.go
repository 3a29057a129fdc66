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

package atomicop

// Vector atomics apply the scalar primitive lane by lane. Each lane is
// atomic; the vector as a whole is not. Lanes beyond len(dst) are ignored.

func lanes[T Number](dst, v []T, op func(*T, T) T) []T {
	n := min(len(dst), len(v))
	out := make([]T, n)
	for i := range n {
		out[i] = op(&dst[i], v[i])
	}
	return out
}

// AddVec adds v into dst element-wise and returns the stored values.
func AddVec[T Number](dst, v []T) []T { return lanes(dst, v, Add[T]) }

// SubVec subtracts v from dst element-wise.
func SubVec[T Number](dst, v []T) []T { return lanes(dst, v, Sub[T]) }

// MulVec multiplies dst by v element-wise.
func MulVec[T Number](dst, v []T) []T { return lanes(dst, v, Mul[T]) }

// MinVec keeps the element-wise minimum.
func MinVec[T Number](dst, v []T) []T { return lanes(dst, v, Min[T]) }

// MaxVec keeps the element-wise maximum.
func MaxVec[T Number](dst, v []T) []T { return lanes(dst, v, Max[T]) }
