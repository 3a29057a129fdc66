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
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/alexcesaro/statsd.v2"
	"gopkg.in/yaml.v3"

	"github.com/ajroetker/go-numbridge/bridge/abi"
)

type callStats struct {
	Calls   int     `yaml:"calls"`
	TotalMS float64 `yaml:"total_ms"`
	MaxMS   float64 `yaml:"max_ms"`
}

// profiler collects per-function statistics for the enabled modes and
// mirrors them to statsd.
type profiler struct {
	stats *statsd.Client

	mu        sync.Mutex
	modes     map[abi.ProfilingMode]bool
	path      string
	calls     map[string]*callStats
	nonFinite map[string]int
}

func newProfiler(c *statsd.Client) *profiler {
	return &profiler{
		stats:     c,
		modes:     make(map[abi.ProfilingMode]bool),
		calls:     make(map[string]*callStats),
		nonFinite: make(map[string]int),
	}
}

// EnableProfiling turns on mode. The report is written to output when the
// session closes; an empty output keeps the previous one.
func (e *Engine) EnableProfiling(mode abi.ProfilingMode, output string) error {
	if mode < abi.ProfileExecutionTime || mode > abi.ProfileAccuracy {
		return errors.Errorf("unknown profiling mode %d", mode)
	}
	p := e.prof
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes[mode] = true
	if output != "" {
		p.path = output
	}
	return nil
}

func (p *profiler) enabled(mode abi.ProfilingMode) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modes[mode]
}

func (p *profiler) output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.path
}

func (p *profiler) observe(e *Engine, name string, d time.Duration, out []abi.Value) {
	if p.enabled(abi.ProfileExecutionTime) {
		ms := float64(d) / float64(time.Millisecond)
		p.mu.Lock()
		s := p.calls[name]
		if s == nil {
			s = new(callStats)
			p.calls[name] = s
		}
		s.Calls++
		s.TotalMS += ms
		s.MaxMS = math.Max(s.MaxMS, ms)
		p.mu.Unlock()

		p.stats.Timing("call."+BaseName(name), ms)
		e.post(p.stats.Flush)
	}

	if p.enabled(abi.ProfileAccuracy) {
		n := 0
		for _, v := range out {
			n += e.countNonFinite(v)
		}
		if n > 0 {
			p.mu.Lock()
			p.nonFinite[name] += n
			p.mu.Unlock()
			p.stats.Count("accuracy.nonfinite", n)
		}
	}
}

func (e *Engine) countNonFinite(v abi.Value) int {
	switch {
	case v.Type == abi.TypeScalar || v.Type == abi.TypeComplexScalar:
		if nonFinite(v.Real) || nonFinite(v.Imag) {
			return 1
		}
	case v.Type.IsArray():
		a, ok := lookup[*array](e.arena, v.Handle)
		if !ok {
			return 0
		}
		re, im, err := a.floats()
		if err != nil {
			return 0
		}
		n := 0
		for i := range re {
			if nonFinite(re[i]) || (im != nil && nonFinite(im[i])) {
				n++
			}
		}
		return n
	}
	return 0
}

func nonFinite(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }

type report struct {
	Session       string                `yaml:"session"`
	Engine        string                `yaml:"engine"`
	ExecutionTime map[string]*callStats `yaml:"execution_time,omitempty"`
	MemLeaks      map[string]int        `yaml:"mem_leaks,omitempty"`
	Accuracy      map[string]int        `yaml:"accuracy,omitempty"`
	Modules       []string              `yaml:"modules"`
}

func (p *profiler) report(e *Engine, leaks map[abi.Tag]int) ([]byte, error) {
	r := report{
		Session: e.id.String(),
		Engine:  e.EngineName(),
		Modules: e.Modules(),
	}
	sort.Strings(r.Modules)

	p.mu.Lock()
	if p.modes[abi.ProfileExecutionTime] {
		r.ExecutionTime = p.calls
	}
	if p.modes[abi.ProfileAccuracy] {
		r.Accuracy = p.nonFinite
	}
	memLeaks := p.modes[abi.ProfileMemLeaks]
	p.mu.Unlock()

	if memLeaks {
		r.MemLeaks = make(map[string]int, len(leaks))
		for tag, n := range leaks {
			r.MemLeaks[tag.String()] = n
			p.stats.Gauge("leaks."+tag.String(), n)
		}
	}
	return yaml.Marshal(r)
}
