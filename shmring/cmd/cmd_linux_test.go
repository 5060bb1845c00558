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
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/ringio"
	"gvisor.dev/shmring/pkg/shm"
	"gvisor.dev/shmring/pkg/shmring"
)

// recordingEmitter keeps every message logged through it.
type recordingEmitter struct {
	msgs []string
}

// Emit implements log.Emitter.Emit.
func (e *recordingEmitter) Emit(_ int, level log.Level, _ time.Time, format string, v ...any) {
	e.msgs = append(e.msgs, level.String()+": "+fmt.Sprintf(format, v...))
}

func skipIfNoShm(t *testing.T, err error) {
	t.Helper()
	if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		t.Skipf("System V shared memory unavailable: %v", err)
	}
}

// TestCommands drives a ring through create, write, stat, read and destroy
// the way separate invocations would, rendezvousing on a key file.
func TestCommands(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "ring.key")
	conf := newTestConfig(t, "--key-file", keyFile, "--idle-eof", "50ms", "--poll-max", "5ms")

	var out bytes.Buffer
	c := &Create{capacity: 64}
	if err := c.run(conf, &out); err != nil {
		skipIfNoShm(t, err)
		t.Fatalf("create failed: %v", err)
	}
	key, capacity, err := shmring.ReadKeyFile(keyFile)
	if err != nil {
		t.Fatalf("ReadKeyFile failed: %v", err)
	}
	t.Cleanup(func() { shm.Remove(key) })
	if got, want := strings.TrimSpace(out.String()), formatKey(key); got != want {
		t.Errorf("create printed %q, want %q", got, want)
	}
	if capacity != 64 {
		t.Errorf("key file capacity %d, want 64", capacity)
	}

	ctx := context.Background()
	if n, err := writeRing(ctx, conf, key, capacity, strings.NewReader("hello ring")); err != nil || n != 10 {
		t.Fatalf("writeRing = %d, %v, want 10, nil", n, err)
	}

	out.Reset()
	if err := statRing(key, 0, "text", &out); err != nil {
		t.Fatalf("statRing failed: %v", err)
	}
	for _, want := range []string{"capacity:   64\n", "available:  10\n", "attached:   0\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("stat output %q missing %q", out.String(), want)
		}
	}
	out.Reset()
	if err := statRing(key, 0, "prometheus", &out); err != nil {
		t.Fatalf("statRing failed: %v", err)
	}
	if !strings.Contains(out.String(), "shmring_available_bytes{key=\""+formatKey(key)+"\"} 10") {
		t.Errorf("prometheus output missing available bytes:\n%s", out.String())
	}
	if err := statRing(key, 0, "yaml", &out); err == nil {
		t.Errorf("statRing with bad format succeeded")
	}

	out.Reset()
	if n, err := readRing(ctx, conf, key, 0, &out, 5); err != nil || out.String() != "hello" {
		t.Fatalf("readRing(limit 5) = %d, %v, %q", n, err, out.String())
	}
	out.Reset()
	if _, err := readRing(ctx, conf, key, 0, &out, 0); err != nil || out.String() != " ring" {
		t.Fatalf("readRing = %v, %q, want %q", err, out.String(), " ring")
	}

	if err := destroyRing("", keyFile); err != nil {
		t.Fatalf("destroyRing failed: %v", err)
	}
	if err := destroyRing("", keyFile); !errors.Is(err, shmring.ErrNoKeyFile) {
		t.Errorf("second destroyRing = %v, want %v", err, shmring.ErrNoKeyFile)
	}
	if err := destroyRing(formatKey(key), ""); !errors.Is(err, shm.ErrNotExist) {
		t.Errorf("destroyRing on removed key = %v, want %v", err, shm.ErrNotExist)
	}
}

func TestCreateWithKeyFlag(t *testing.T) {
	conf := newTestConfig(t)
	b, err := shmring.Create(16)
	if err != nil {
		skipIfNoShm(t, err)
		t.Fatalf("Create failed: %v", err)
	}
	defer b.Destroy()

	c := &Create{capacity: 16, key: formatKey(b.Key())}
	var out bytes.Buffer
	if err := c.run(conf, &out); !errors.Is(err, shm.ErrExist) {
		t.Errorf("create on a taken key = %v, want %v", err, shm.ErrExist)
	}
	c.key = "bogus"
	if err := c.run(conf, &out); err == nil {
		t.Errorf("create with bad key succeeded")
	}
}

func TestLoopback(t *testing.T) {
	opts := ringio.Options{InitialInterval: 10 * time.Microsecond, MaxInterval: time.Millisecond}
	for _, tc := range []struct {
		capacity uint64
		total    int64
	}{
		{capacity: 2, total: 4 << 10},
		{capacity: 97, total: 1 << 20},
		{capacity: 4096, total: 3<<20 + 17},
		{capacity: 64, total: 0},
	} {
		if _, err := runLoopback(context.Background(), opts, tc.capacity, tc.total); err != nil {
			skipIfNoShm(t, err)
			t.Errorf("runLoopback(%d, %d) failed: %v", tc.capacity, tc.total, err)
		}
	}
}

func TestLoopbackCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := ringio.Options{InitialInterval: time.Millisecond}
	if _, err := runLoopback(ctx, opts, 16, 1<<20); err != nil {
		skipIfNoShm(t, err)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("runLoopback = %v, want %v", err, context.Canceled)
		}
	} else {
		t.Errorf("runLoopback with cancelled context succeeded")
	}
}

// TestDestroyGone checks that destroying a ring that no longer exists reports
// the error once, to the caller, without logging it as well.
func TestDestroyGone(t *testing.T) {
	b, err := shmring.Create(16)
	if err != nil {
		skipIfNoShm(t, err)
		t.Fatalf("Create failed: %v", err)
	}
	key := b.Key()
	if err := b.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}

	rec := &recordingEmitter{}
	prev := log.Log().Emitter
	log.SetTarget(rec)
	defer log.SetTarget(prev)

	if err := destroyRing(formatKey(key), ""); !errors.Is(err, shm.ErrNotExist) {
		t.Errorf("destroyRing on removed key = %v, want %v", err, shm.ErrNotExist)
	}
	if len(rec.msgs) != 0 {
		t.Errorf("destroyRing logged %q, want nothing", rec.msgs)
	}
}
