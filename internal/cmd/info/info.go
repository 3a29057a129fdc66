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

// Package info implements the info command.
package info

import (
	"encoding/hex"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/engine"
	hostutil "github.com/ajroetker/go-numbridge/internal/util/host"
	"github.com/ajroetker/go-numbridge/kern"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "describe the engine session",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "types",
				Usage: "list primitive type handles",
			},
		},
		Action: info,
	}
}

type report struct {
	Version   string            `yaml:"version"`
	Engine    string            `yaml:"engine"`
	Precision string            `yaml:"precision"`
	Dispatch  string            `yaml:"dispatch"`
	Lanes     int               `yaml:"lanes"`
	Float16   bool              `yaml:"float16"`
	OpenCL    map[string]string `yaml:"opencl,omitempty"`
	Types     map[string]uint64 `yaml:"types,omitempty"`
}

func info(c *cli.Context) error {
	h, err := hostutil.Open(c)
	if err != nil {
		return err
	}
	defer h.Close()

	if err := hostutil.LoadModules(c, h); err != nil {
		return err
	}

	r := report{
		Version:   engine.Version,
		Engine:    h.EngineName(),
		Precision: h.Precision().String(),
		Dispatch:  kern.CurrentLevel().String(),
		Lanes:     kern.MaxLanes[float32](),
		Float16:   kern.HasHalfConvert(),
	}

	if ctx, ok := h.QueryProperty(abi.PropOpenCLCurrentContext, 0); ok {
		q, _ := h.QueryProperty(abi.PropOpenCLCommandQueue, 0)
		r.OpenCL = map[string]string{
			"context": hex.EncodeToString(ctx),
			"queue":   hex.EncodeToString(q),
		}
	}

	if c.Bool("types") {
		r.Types = make(map[string]uint64)
		for t := abi.TypeVoid; t < abi.NumTags; t++ {
			if th := h.GetPrimitiveTypeHandle(t); th != 0 {
				r.Types[t.TypeName()] = uint64(th)
			}
		}
	}

	enc := yaml.NewEncoder(c.App.Writer)
	defer enc.Close()
	return enc.Encode(r)
}
