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

// Lane identifies one kernel invocation inside a parallel iteration. It is
// the CPU stand-in for the accelerator's thread/block registers.
type Lane struct {
	// Pos is the position of this invocation in the iteration grid.
	Pos []int

	// Block is the index of the worker executing the invocation.
	Block int

	// Count is the number of workers sharing the grid.
	Count int
}

// ThreadIdx returns the linear index of Pos within dims.
func (l Lane) ThreadIdx(dims []int) int {
	return Pos2Ind(dims, l.Pos)
}
