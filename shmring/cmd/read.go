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

// Read implements subcommands.Command for the "read" command.
type Read struct {
	limit int64
}

// Name implements subcommands.Command.Name.
func (*Read) Name() string {
	return "read"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Read) Synopsis() string {
	return "copy the contents of a ring to stdout"
}

// Usage implements subcommands.Command.Usage.
func (*Read) Usage() string {
	return `read [flags] [key] - copy the contents of a ring to stdout.

Reading stops after -n bytes, once the ring stayed empty for --idle-eof, or on
SIGINT/SIGTERM.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Read) SetFlags(f *flag.FlagSet) {
	f.Int64Var(&r.limit, "n", 0, "stop after this many bytes. Zero means no limit.")
}

// Execute implements subcommands.Command.Execute.
func (r *Read) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
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
		return util.Errorf("read failed: %v", err)
	}
	if _, err := readRing(ctx, conf, key, capacity, os.Stdout, r.limit); err != nil && !errors.Is(err, context.Canceled) {
		return util.Errorf("read failed: %v", err)
	}
	return subcommands.ExitSuccess
}

// readRing copies up to limit bytes from the ring at key to out, or
// everything if limit is not positive.
func readRing(ctx context.Context, conf *config.Config, key int, capacity uint64, out io.Writer, limit int64) (int64, error) {
	b, err := shmring.Attach(key, capacity)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := b.Detach(); err != nil {
			log.Warningf("Detaching ring at key %s: %v", formatKey(key), err)
		}
	}()

	var in io.Reader = ringio.NewReader(ctx, b, conf.PollOptions())
	if limit > 0 {
		in = io.LimitReader(in, limit)
	}
	n, err := io.Copy(out, in)
	log.Debugf("Read %d bytes from ring at key %s", n, formatKey(key))
	return n, err
}
