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

// Package logutil builds loggers from a cli context.
package logutil

import (
	"github.com/lthibault/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/ajroetker/go-numbridge/engine"
)

// New returns the logger bound to the cli context, creating it on first
// use.
func New(c *cli.Context) log.Logger {
	if logger := get(c); logger != nil {
		return logger
	}
	return bind(c)
}

// WithLevel returns a log.Option for the --loglvl flag. --logfmt=none
// keeps only fatal messages.
func WithLevel(c *cli.Context) log.Option {
	if c.String("logfmt") == "none" {
		return log.WithLevel(log.FatalLevel)
	}

	switch c.String("loglvl") {
	case "trace", "t":
		return log.WithLevel(log.TraceLevel)
	case "debug", "d":
		return log.WithLevel(log.DebugLevel)
	case "warn", "warning", "w":
		return log.WithLevel(log.WarnLevel)
	case "error", "err", "e":
		return log.WithLevel(log.ErrorLevel)
	case "fatal", "f":
		return log.WithLevel(log.FatalLevel)
	}
	return log.WithLevel(log.InfoLevel)
}

// WithFormat returns a log.Option for the --logfmt flag.
func WithFormat(c *cli.Context) log.Option {
	var f logrus.Formatter
	switch c.String("logfmt") {
	case "json":
		f = &logrus.JSONFormatter{PrettyPrint: c.Bool("prettyprint")}
	default:
		f = new(logrus.TextFormatter)
	}
	return log.WithFormatter(f)
}

const key = "numbridge.util.log:logger"

func bind(c *cli.Context) log.Logger {
	logger := log.New(
		WithLevel(c),
		WithFormat(c),
		log.WithWriter(c.App.ErrWriter)).
		WithField("version", engine.Version)

	c.App.Metadata[key] = func() log.Logger {
		return logger
	}
	return logger
}

func get(c *cli.Context) log.Logger {
	if logger, ok := c.App.Metadata[key].(func() log.Logger); ok {
		return logger()
	}
	return nil
}
