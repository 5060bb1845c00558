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
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/rand"
	"gvisor.dev/shmring/pkg/ringio"
	"gvisor.dev/shmring/pkg/shmring"
	"gvisor.dev/shmring/shmring/cmd/util"
	"gvisor.dev/shmring/shmring/config"
)

// maxPattern bounds the random block the loopback stream repeats.
const maxPattern = 1 << 20

// Loopback implements subcommands.Command for the "loopback" command.
type Loopback struct {
	capacity uint64
	bytes    int64
}

// Name implements subcommands.Command.Name.
func (*Loopback) Name() string {
	return "loopback"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Loopback) Synopsis() string {
	return "stream random data through a new ring and verify it"
}

// Usage implements subcommands.Command.Usage.
func (*Loopback) Usage() string {
	return `loopback [flags] - check that rings work on this host.

Creates a ring, maps it a second time, and streams random data from a producer
on one mapping to a consumer on the other. The ring is destroyed afterwards.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (l *Loopback) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&l.capacity, "capacity", 4096, "size of the ring data area in bytes.")
	f.Int64Var(&l.bytes, "bytes", 64<<20, "number of bytes to stream.")
}

// Execute implements subcommands.Command.Execute.
func (l *Loopback) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || l.bytes < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	elapsed, err := runLoopback(ctx, conf.PollOptions(), l.capacity, l.bytes)
	if err != nil {
		return util.Errorf("loopback failed: %v", err)
	}
	util.Infof("Streamed %d bytes through a %d byte ring in %v (%.1f MiB/s)",
		l.bytes, l.capacity, elapsed, float64(l.bytes)/(1<<20)/elapsed.Seconds())
	return subcommands.ExitSuccess
}

// runLoopback streams total bytes through a new ring of the given capacity
// and checks that they come out unchanged and in order.
func runLoopback(ctx context.Context, opts ringio.Options, capacity uint64, total int64) (time.Duration, error) {
	pattern := make([]byte, min(total, maxPattern))
	if _, err := rand.Read(pattern); err != nil {
		return 0, fmt.Errorf("generating data: %w", err)
	}

	producer, err := shmring.Create(capacity)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := producer.Destroy(); err != nil {
			log.Warningf("Destroying ring at key %s: %v", formatKey(producer.Key()), err)
		}
	}()
	consumer, err := shmring.Attach(producer.Key(), capacity)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := consumer.Detach(); err != nil {
			log.Warningf("Detaching ring at key %s: %v", formatKey(consumer.Key()), err)
		}
	}()
	log.Debugf("Loopback through ring at key %s", formatKey(producer.Key()))

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w := ringio.NewWriter(ctx, producer, opts)
		for sent := int64(0); sent < total; {
			n, err := w.Write(pattern[:min(total-sent, int64(len(pattern)))])
			sent += int64(n)
			if err != nil {
				return fmt.Errorf("producer stopped after %d bytes: %w", sent, err)
			}
		}
		return nil
	})
	g.Go(func() error {
		r := ringio.NewReader(ctx, consumer, opts)
		buf := make([]byte, len(pattern))
		for got := int64(0); got < total; {
			want := pattern[:min(total-got, int64(len(pattern)))]
			if _, err := io.ReadFull(r, buf[:len(want)]); err != nil {
				return fmt.Errorf("consumer stopped after %d bytes: %w", got, err)
			}
			if !bytes.Equal(buf[:len(want)], want) {
				return fmt.Errorf("stream corrupted in the %d bytes after offset %d", len(want), got)
			}
			got += int64(len(want))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
