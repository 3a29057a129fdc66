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

/*
Package mock contains generated mock implementations of go-numbridge
interfaces, intended for use in unit-tests.

Each mocked package has a directory under `./` of the same name, filled by
the `go:generate` directive next to the interface. For instance the
bridge.Resolver mock is generated from `bridge/invoker.go` into
`./bridge/invoker.go`.

The package name of all mock implementations follows the `mock_*` pattern,
where `*` is the original package name.
*/
package mock
