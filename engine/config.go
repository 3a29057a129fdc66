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

package engine

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

// DefaultDeviceMemory is the simulated accelerator budget when none is
// configured.
const DefaultDeviceMemory = 1 << 30

// Config selects the simulated device and sizing of an Engine.
type Config struct {
	// Device is one of cpu, cuda or opencl, optionally followed by a
	// colon and a free-form model name (cuda:sim0).
	Device string `yaml:"device"`

	DoublePrecision bool `yaml:"double_precision"`

	// DeviceMemoryBytes bounds the bytes staged on the accelerator.
	DeviceMemoryBytes int64 `yaml:"device_memory_bytes"`

	// Workers sizes the CPU pool used by ParallelDo. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// Statsd is the host:port of a statsd daemon. Empty mutes metrics.
	Statsd string `yaml:"statsd"`

	// Allocation is none, gpu or cpu.
	Allocation string `yaml:"allocation"`
}

// DefaultConfig returns a CPU-only single precision configuration.
func DefaultConfig() Config {
	return Config{
		Device:            "cpu",
		DeviceMemoryBytes: DefaultDeviceMemory,
	}
}

// LoadConfig decodes a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports unknown devices and allocation modes.
func (c Config) Validate() error {
	if _, err := parseDevice(c.Device); err != nil {
		return err
	}
	if _, err := abi.ParseAllocationFlags(c.Allocation); err != nil {
		return err
	}
	if c.DeviceMemoryBytes < 0 {
		return errors.Errorf("negative device memory %d", c.DeviceMemoryBytes)
	}
	return nil
}

// device describes which memory spaces a session provides.
type device struct {
	name  string
	accel abi.MemResource // MemCPU when there is no accelerator
}

func parseDevice(s string) (device, error) {
	if s == "" {
		s = "cpu"
	}
	kind, _, _ := strings.Cut(s, ":")
	switch strings.ToLower(kind) {
	case "cpu":
		return device{name: s, accel: abi.MemCPU}, nil
	case "cuda", "gpu":
		return device{name: s, accel: abi.MemCUDA}, nil
	case "opencl", "cl":
		return device{name: s, accel: abi.MemOpenCL}, nil
	}
	return device{}, errors.Errorf("unknown device %q", s)
}

// provides reports whether res is reachable on this device.
func (d device) provides(res abi.MemResource) bool {
	switch res {
	case abi.MemManaged, abi.MemCPU:
		return true
	}
	return res == d.accel
}

func (d device) hasAccel() bool { return d.accel != abi.MemCPU }
