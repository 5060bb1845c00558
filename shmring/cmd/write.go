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
	"io"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/ringio"
	"gvisor.dev/shmring/pkg/shmring"
	"gvisor.dev/shmring/shmring/cmd/util"
	"gvisor.dev/shmring/shmring/config"
)

// Write implements subcommands.Command for the "write" command.
type Write struct{}

// Name implements subcommands.Command.Name.
func (*Write) Name() string {
	return "write"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Write) Synopsis() string {
	return "copy stdin into a ring"
}

// Usage implements subcommands.Command.Usage.
func (*Write) Usage() string {
	return `write [flags] [key] - copy stdin into a ring, waiting for the reader when it is full.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Write) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Write) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
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
		return util.Errorf("write failed: %v", err)
	}
	if _, err := writeRing(ctx, conf, key, capacity, os.Stdin); err != nil {
		return util.Errorf("write failed: %v", err)
	}
	return subcommands.ExitSuccess
}

// writeRing copies in into the ring at key until EOF.
func writeRing(ctx context.Context, conf *config.Config, key int, capacity uint64, in io.Reader) (int64, error) {
	b, err := shmring.Attach(key, capacity)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := b.Detach(); err != nil {
			log.Warningf("Detaching ring at key %s: %v", formatKey(key), err)
		}
	}()

	n, err := io.Copy(ringio.NewWriter(ctx, b, conf.PollOptions()), in)
	log.Debugf("Wrote %d bytes to ring at key %s", n, formatKey(key))
	return n, err
}
