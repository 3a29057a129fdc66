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

// Package hostutil opens a bridge.Host from a cli context.
package hostutil

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/ajroetker/go-numbridge/bridge"
	"github.com/ajroetker/go-numbridge/bridge/abi"
	"github.com/ajroetker/go-numbridge/engine"
	logutil "github.com/ajroetker/go-numbridge/internal/util/log"
)

// Config returns the engine configuration: the --config file if given,
// overridden by any flag set on the command line or in the environment.
func Config(c *cli.Context) (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if path := c.Path("config"); path != "" {
		var err error
		if cfg, err = engine.LoadConfig(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("double") {
		cfg.DoublePrecision = c.Bool("double")
	}
	if c.IsSet("statsd") {
		cfg.Statsd = c.String("statsd")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("allocation") {
		cfg.Allocation = c.String("allocation")
	}
	return cfg, cfg.Validate()
}

// Open starts a host over the reference engine.
func Open(c *cli.Context) (*bridge.Host, error) {
	cfg, err := Config(c)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	flags, err := abi.ParseAllocationFlags(cfg.Allocation)
	if err != nil {
		return nil, err
	}

	log := logutil.New(c)
	return bridge.Open(
		bridge.WithLogger(log),
		bridge.WithDevice(cfg.Device),
		bridge.WithDoublePrecision(cfg.DoublePrecision),
		bridge.WithAllocation(flags),
		bridge.WithEngine(engine.NewInit(cfg, engine.WithLogger(log))))
}

// LoadModules loads every --module path into h. Files starting with the
// binary magic are loaded as binary modules.
func LoadModules(c *cli.Context, h *bridge.Host) error {
	for _, path := range c.StringSlice("module") {
		if err := loadModule(h, path); err != nil {
			return err
		}
	}
	return nil
}

func loadModule(h *bridge.Host, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "module")
	}
	if bytes.HasPrefix(b, []byte(engine.BinaryMagic)) {
		return h.LoadBinaryModule(path)
	}
	return h.LoadSourceModule(path)
}
