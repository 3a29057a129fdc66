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

package call

import (
	"bytes"
	"testing"

	"github.com/lthibault/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ajroetker/go-numbridge/bridge"
	"github.com/ajroetker/go-numbridge/bridge/abi"
)

func TestFlatten(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		name string
		in   []any
		data []float64
		dims []int
		fail bool
	}{
		{"empty", nil, nil, []int{0}, false},
		{"vector", []any{1, 2.5, 3}, []float64{1, 2.5, 3}, []int{3}, false},
		{"matrix", []any{[]any{1, 2}, []any{3, 4}}, []float64{1, 2, 3, 4}, []int{2, 2}, false},
		{"ragged", []any{[]any{1, 2}, []any{3}}, nil, nil, true},
		{"mixed", []any{[]any{1}, 2}, nil, nil, true},
		{"text", []any{"a"}, nil, nil, true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			data, dims, err := flatten(tt.in)
			if tt.fail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.data, data)
			assert.Equal(t, tt.dims, dims)
		})
	}
}

func TestArgsRoundTrip(t *testing.T) {
	h, err := bridge.Open(bridge.WithLogger(log.New(log.WithLevel(log.FatalLevel))))
	require.NoError(t, err)
	defer h.Close()

	v, err := parseArg(h, "[[1, 2, 3], [4, 5, 6]]")
	require.NoError(t, err)
	assert.Equal(t, abi.TypeMat, v.Type)

	got, err := render(h, v)
	require.NoError(t, err)
	assert.Equal(t, array{Type: "mat", Dims: []int{2, 3}, Re: []float64{1, 2, 3, 4, 5, 6}}, got)
	require.NoError(t, h.ReleaseRef(&v))

	n, err := parseArg(h, "7")
	require.NoError(t, err)
	assert.Equal(t, bridge.Int(7), n)

	s, err := parseArg(h, "hello")
	require.NoError(t, err)
	assert.Equal(t, abi.TypeString, s.Type)
	require.NoError(t, h.DeleteValue(&s))

	_, err = parseArg(h, "{a: 1}")
	assert.Error(t, err)
}

func TestCommand(t *testing.T) {
	var out bytes.Buffer
	app := &cli.App{
		Name:     "numbridge",
		Writer:   &out,
		Flags:    []cli.Flag{&cli.StringFlag{Name: "logfmt", Value: "none"}, &cli.StringSliceFlag{Name: "module"}},
		Commands: []*cli.Command{Command()},
		Metadata: map[string]interface{}{},
	}

	require.NoError(t, app.Run([]string{"numbridge", "call", "scale(??,scalar)", "[1, 2, 4]", "0.5"}))
	assert.Contains(t, out.String(), "re: [0.5, 1, 2]")

	assert.Error(t, app.Run([]string{"numbridge", "call"}))
}
