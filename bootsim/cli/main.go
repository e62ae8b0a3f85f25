// Copyright 2026 The SimpleOS Authors.
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

// Package cli is the main entrypoint for bootsim.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/google/subcommands"

	"simpleos.dev/simpleos/bootsim/cmd"
	"simpleos.dev/simpleos/bootsim/cmd/util"
	"simpleos.dev/simpleos/bootsim/config"
	"simpleos.dev/simpleos/pkg/log"
)

var (
	configPath      = flag.String("config", "", "layout file, .toml or .yaml. The stock layout is used if empty.")
	debug           = flag.Bool("debug", false, "enable debug logging.")
	logPattern      = flag.String("log", "", "file path where logs are written. %COMMAND% and %TIMESTAMP% are expanded. Logs are discarded if empty.")
	logFormat       = flag.String("log-format", "text", "log format: text (default) or json.")
	alsoLogToStderr = flag.Bool("alsologtostderr", false, "send logs to stderr in addition to the log file.")
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	subcommand := flag.CommandLine.Arg(0)
	if *debug {
		log.SetLevel(log.Debug)
	}

	var emitters log.MultiEmitter
	if f, err := log.OpenFile(*logPattern, os.O_WRONLY|os.O_CREATE|os.O_APPEND, log.PatternOpts{
		Command: subcommand,
		Time:    time.Now(),
	}); err != nil {
		util.Fatalf("error opening log file: %v", err)
	} else if f != nil {
		emitters = append(emitters, newEmitter(*logFormat, f))
		util.ErrorLogger = f
	} else {
		// Stdout carries command output; discard the logs if no file is
		// given.
		emitters = append(emitters, newEmitter(*logFormat, io.Discard))
	}
	if *alsoLogToStderr {
		emitters = append(emitters, newEmitter(*logFormat, os.Stderr))
	}
	if len(emitters) == 1 {
		log.SetTarget(emitters[0])
	} else {
		log.SetTarget(&emitters)
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		util.Fatalf("%v", err)
	}

	const delimString = `**************** bootsim ****************`
	log.Infof(delimString)
	log.Infof("%s, %s, %s", runtime.Version(), runtime.GOARCH, runtime.GOOS)
	log.Infof("Args: %v", os.Args)
	conf.Log()
	log.Infof(delimString)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(context.Background(), conf)
	if subcmdCode != subcommands.ExitSuccess {
		log.Warningf("Failure to execute command, status: %v", subcmdCode)
	}
	os.Exit(int(subcmdCode))
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Layout), "")
	cb(new(cmd.Translate), "")

	const inspectGroup = "inspect"
	cb(new(cmd.Segments), inspectGroup)
	cb(new(cmd.MemoryMap), inspectGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Emitter: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
