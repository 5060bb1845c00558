// Copyright 2026 The gVisor Authors.
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

//go:build linux
// +build linux

// Package cli is the main entrypoint for shmring.
package cli

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/shmring/cmd"
	"gvisor.dev/shmring/shmring/cmd/util"
	"gvisor.dev/shmring/shmring/config"
)

// Main is the main entrypoint.
func Main() {
	// Register all commands.
	forEachCmd(subcommands.Register)

	// Register with the main command line.
	config.RegisterFlags(flag.CommandLine)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	// Create a new Config from the flags.
	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		util.Fatalf("%v", err)
	}

	subcommand := flag.CommandLine.Arg(0)
	if conf.Debug {
		log.SetLevel(log.Debug)
	}

	var emitters log.MultiEmitter
	if conf.LogFilename != "" {
		// O_APPEND so that every command of a session can share one file.
		f, err := log.OpenFile(conf.LogFilename, subcommand)
		if err != nil {
			util.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		util.ErrorLogger = f
		emitters = append(emitters, newEmitter(conf.LogFormat, f))
		if conf.AlsoLogToStderr {
			emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
		}
	} else {
		emitters = append(emitters, newEmitter(conf.LogFormat, os.Stderr))
	}

	switch len(emitters) {
	case 1:
		// Use the singular emitter to avoid needless
		// `for` loop overhead when logging to a single place.
		log.SetTarget(emitters[0])
	default:
		log.SetTarget(&emitters)
	}

	log.Debugf("%s, %s, %d CPUs, %s, PID %d, PPID %d, UID %d, GID %d", runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid(), os.Getppid(), os.Getuid(), os.Getgid())
	log.Debugf("Args: %v", os.Args)
	if log.IsLogging(log.Debug) {
		conf.Log()
	}

	// Interrupting a read or write stops it cleanly, detaching the ring.
	ctx, stop := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)

	// Call the subcommand and pass in the configuration.
	subcmdCode := subcommands.Execute(ctx, conf)
	if subcmdCode != subcommands.ExitSuccess {
		log.Debugf("Failure to execute command, err: %v", subcmdCode)
	}
	stop()
	os.Exit(int(subcmdCode))
}

// forEachCmd invokes the passed callback for each command supported by
// shmring.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	// Help and flags commands are generated automatically.
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Create), "")
	cb(new(cmd.Write), "")
	cb(new(cmd.Read), "")
	cb(new(cmd.Stat), "")
	cb(new(cmd.Destroy), "")

	const debugGroup = "debug"
	cb(new(cmd.Loopback), debugGroup)
}

func newEmitter(format string, logFile io.Writer) log.Emitter {
	switch format {
	case "text":
		return log.GoogleEmitter{Writer: &log.Writer{Next: logFile}}
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: logFile}}
	}
	util.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}
