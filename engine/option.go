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
	"github.com/lthibault/log"
	"gopkg.in/alexcesaro/statsd.v2"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. A nil logger selects log.New().
func WithLogger(l log.Logger) Option {
	if l == nil {
		l = log.New()
	}
	return func(e *Engine) {
		e.log = l
	}
}

// WithStatsd replaces the statsd client built from Config.Statsd.
func WithStatsd(c *statsd.Client) Option {
	return func(e *Engine) {
		e.stats = c
	}
}

// WithBuiltin registers an additional builtin kernel that module manifests
// can bind signatures to.
func WithBuiltin(name string, fn Builtin) Option {
	return func(e *Engine) {
		e.builtins[name] = fn
	}
}

func withDefaults(opt []Option) []Option {
	return append([]Option{
		WithLogger(nil),
	}, opt...)
}
