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

// Create implements subcommands.Command for the "create" command.
type Create struct {
	capacity uint64
	key      string
}

// Name implements subcommands.Command.Name.
func (*Create) Name() string {
	return "create"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Create) Synopsis() string {
	return "create a ring and print its key"
}

// Usage implements subcommands.Command.Usage.
func (*Create) Usage() string {
	return `create [flags] - create a ring in a new shared memory segment.

The key of the new ring is printed on stdout. If --key-file is set, the key is
also written there for other commands to pick up.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Create) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.capacity, "capacity", 4096, "size of the ring data area in bytes. The ring holds one byte less.")
	f.StringVar(&c.key, "key", "", "key to create the ring under. A free random key is used if empty.")
}

// Execute implements subcommands.Command.Execute.
func (c *Create) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	if err := c.run(conf, os.Stdout); err != nil {
		return util.Errorf("create failed: %v", err)
	}
	return subcommands.ExitSuccess
}

func (c *Create) run(conf *config.Config, out io.Writer) error {
	var (
		b   *shmring.Buffer
		err error
	)
	if c.key != "" {
		key, perr := parseKey(c.key)
		if perr != nil {
			return perr
		}
		b, err = shmring.CreateWithKey(key, c.capacity)
	} else {
		b, err = shmring.Create(c.capacity)
	}
	if err != nil {
		return err
	}

	if conf.KeyFile != "" {
		if err := shmring.WriteKeyFile(conf.KeyFile, b.Key(), c.capacity); err != nil {
			if derr := b.Destroy(); derr != nil {
				log.Warningf("Destroying ring at key %s: %v", formatKey(b.Key()), derr)
			}
			return err
		}
	}
	// The segment outlives this process, only the mapping goes away.
	if err := b.Detach(); err != nil {
		return err
	}
	log.Infof("Created ring at key %s, capacity %d", formatKey(b.Key()), c.capacity)
	_, err = fmt.Fprintln(out, formatKey(b.Key()))
	return err
}
