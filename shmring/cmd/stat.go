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

package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/shmring"
	"gvisor.dev/shmring/shmring/cmd/util"
	"gvisor.dev/shmring/shmring/config"
)

// Stat implements subcommands.Command for the "stat" command.
type Stat struct {
	format string
}

// Name implements subcommands.Command.Name.
func (*Stat) Name() string {
	return "stat"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stat) Synopsis() string {
	return "print the state of a ring"
}

// Usage implements subcommands.Command.Usage.
func (*Stat) Usage() string {
	return `stat [flags] [key] - print capacity, cursors, fill level and attach count of a ring.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stat) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.format, "format", "text", "output format: text (default) or prometheus.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stat) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	key, capacity, err := resolveKey(f, conf)
	if errors.Is(err, errNoKey) {
		f.Usage()
		return subcommands.ExitUsageError
	} else if err != nil {
		return util.Errorf("stat failed: %v", err)
	}
	if err := statRing(key, capacity, s.format, os.Stdout); err != nil {
		return util.Errorf("stat failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func statRing(key int, capacity uint64, format string, out io.Writer) error {
	var write func(io.Writer, shmring.Stats) error
	switch format {
	case "text":
		write = shmring.WriteStatsText
	case "prometheus":
		write = shmring.WriteStats
	default:
		return fmt.Errorf("invalid format %q, must be 'text' or 'prometheus'", format)
	}

	b, err := shmring.Attach(key, capacity)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Detach(); err != nil {
			log.Warningf("Detaching ring at key %s: %v", formatKey(key), err)
		}
	}()
	st, err := b.Stats()
	if err != nil {
		return err
	}
	// Don't count this process.
	st.Attached--
	return write(out, st)
}
