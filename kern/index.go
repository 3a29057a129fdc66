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

// Periodize folds n into [0, N) modulo N, accepting negative n.
// N must be positive.
func Periodize(n, N int) int {
	q := n % N
	if q < 0 {
		q += N
	}
	return q
}

// MirrorExt reflects n into [0, N): the index is first reduced into
// [0, 2N) and then mirrored about the upper edge when it reaches N.
//
//	MirrorExt(-1, 4) == 1
//	MirrorExt(4, 4)  == 3
func MirrorExt(n, N int) int {
	if n < 0 {
		n = -n
	}
	n %= 2 * N
	if n >= N {
		n = 2*N - 1 - n
	}
	return n
}

// Saturate clamps n into [0, hi].
func Saturate(n, hi int) int {
	return max(0, min(hi, n))
}

// Prod returns the product of dims, 1 for an empty slice.
func Prod(dims []int) int {
	p := 1
	for _, d := range dims {
		p *= d
	}
	return p
}

// Pos2Ind folds pos into a row-major linear index over dims. The last
// axis varies fastest.
func Pos2Ind(dims, pos []int) int {
	ind := 0
	for i, p := range pos {
		ind = ind*dims[i] + p
	}
	return ind
}

// Ind2Pos is the inverse of Pos2Ind; it writes the position into pos,
// which must be as long as dims.
func Ind2Pos(dims []int, ind int, pos []int) {
	for i := len(dims) - 1; i >= 0; i-- {
		d := dims[i]
		if d == 0 {
			pos[i] = 0
			continue
		}
		pos[i] = ind % d
		ind /= d
	}
}

// NextPow2 returns the smallest power of two >= n (1 for n <= 1).
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
