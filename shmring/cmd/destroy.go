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

	"github.com/google/subcommands"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/shm"
	"gvisor.dev/shmring/pkg/shmring"
	"gvisor.dev/shmring/shmring/cmd/util"
	"gvisor.dev/shmring/shmring/config"
)

// Destroy implements subcommands.Command for the "destroy" command.
type Destroy struct{}

// Name implements subcommands.Command.Name.
func (*Destroy) Name() string {
	return "destroy"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Destroy) Synopsis() string {
	return "remove a ring"
}

// Usage implements subcommands.Command.Usage.
func (*Destroy) Usage() string {
	return `destroy [flags] [key] - remove a ring.

The segment goes away once every process attached to it has detached. Without
a key, the ring named by --key-file is destroyed and the key file removed; when
several processes race to do so, exactly one succeeds.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Destroy) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Destroy) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	var keyArg string
	if f.NArg() == 1 {
		keyArg = f.Arg(0)
	} else if conf.KeyFile == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if err := destroyRing(keyArg, conf.KeyFile); err != nil {
		return util.Errorf("destroy failed: %v", err)
	}
	return subcommands.ExitSuccess
}

// destroyRing removes the ring named by keyArg or, if empty, the one recorded
// in keyFile.
func destroyRing(keyArg, keyFile string) error {
	var key int
	if keyArg != "" {
		k, err := parseKey(keyArg)
		if err != nil {
			return err
		}
		key = k
	} else {
		k, _, err := shmring.ClaimDestroy(keyFile)
		if err != nil {
			return err
		}
		key = k
	}
	if err := shm.Remove(key); err != nil {
		return err
	}
	log.Infof("Destroyed ring at key %s", formatKey(key))
	return nil
}
