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

// Command numbridge opens an engine session from the command line.
//
// Usage:
//
//	numbridge info --types
//	numbridge --device cuda call "sum(??)" "[1, 2, 3]"
//	numbridge --module filters.yaml call "total(vec)" "[4, 5]"
//
// Every global flag can also be set through a NUMBRIDGE_* environment
// variable, or through the YAML file given with --config.
package main

import (
	"os"

	"github.com/lthibault/log"
	"github.com/urfave/cli/v2"

	"github.com/ajroetker/go-numbridge/engine"
	"github.com/ajroetker/go-numbridge/internal/cmd/call"
	"github.com/ajroetker/go-numbridge/internal/cmd/info"
)

var flags = []cli.Flag{
	// Logging
	&cli.StringFlag{
		Name:    "logfmt",
		Aliases: []string{"f"},
		Usage:   "`format` logs as text, json or none",
		Value:   "text",
		EnvVars: []string{"NUMBRIDGE_LOGFMT"},
	},
	&cli.StringFlag{
		Name:    "loglvl",
		Usage:   "set logging `level` to trace, debug, info, warn, error or fatal",
		Value:   "warn",
		EnvVars: []string{"NUMBRIDGE_LOGLVL"},
	},
	// Engine
	&cli.PathFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "load engine settings from a YAML `file`",
		EnvVars: []string{"NUMBRIDGE_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "device",
		Usage:   "run on `device` cpu, cuda or opencl",
		EnvVars: []string{"NUMBRIDGE_DEVICE"},
	},
	&cli.BoolFlag{
		Name:    "double",
		Usage:   "use 64-bit scalars",
		EnvVars: []string{"NUMBRIDGE_DOUBLE"},
	},
	&cli.IntFlag{
		Name:        "workers",
		Usage:       "size the CPU worker pool",
		DefaultText: "GOMAXPROCS",
		EnvVars:     []string{"NUMBRIDGE_WORKERS"},
	},
	&cli.StringFlag{
		Name:    "allocation",
		Usage:   "place new arrays on the `side` none, gpu or cpu",
		EnvVars: []string{"NUMBRIDGE_ALLOCATION"},
	},
	&cli.StringSliceFlag{
		Name:    "module",
		Aliases: []string{"m"},
		Usage:   "load a source or binary module `file` (repeatable)",
		EnvVars: []string{"NUMBRIDGE_MODULE"},
	},
	// Statsd
	&cli.StringFlag{
		Name:        "statsd",
		Aliases:     []string{"metrics"},
		Usage:       "send profiling metrics to udp `host:port`",
		EnvVars:     []string{"NUMBRIDGE_STATSD"},
		DefaultText: "disabled",
	},
	// Misc.
	&cli.BoolFlag{
		Name:    "prettyprint",
		Aliases: []string{"pp"},
		Usage:   "pretty-print JSON output",
		Hidden:  true,
	},
}

var commands = []*cli.Command{
	info.Command(),
	call.Command(),
}

func main() {
	run(&cli.App{
		Name:      "numbridge",
		Usage:     "host side of the numeric engine bridge",
		UsageText: "numbridge [global options] command [command options] [arguments...]",
		Version:   engine.Version,
		Flags:     flags,
		Commands:  commands,
		Metadata: map[string]interface{}{
			"version": engine.Version,
		},
	})
}

func run(app *cli.App) {
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
