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

package ringio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/shmring/pkg/ring"
)

func newRing(t *testing.T, capacity uint64) *ring.Ring {
	t.Helper()
	r, err := ring.Init(make([]byte, ring.RegionSize(capacity)), capacity)
	if err != nil {
		t.Fatalf("ring.Init(%d) failed: %v", capacity, err)
	}
	return r
}

var fastPoll = Options{
	InitialInterval: 50 * time.Microsecond,
	MaxInterval:     time.Millisecond,
}

func TestStream(t *testing.T) {
	r := newRing(t, 61)
	want := make([]byte, 100<<10)
	for i := range want {
		want[i] = byte(i % 253)
	}

	ctx := context.Background()
	var g errgroup.Group
	g.Go(func() error {
		n, err := NewWriter(ctx, r, fastPoll).Write(want)
		if err != nil {
			return err
		}
		if n != len(want) {
			t.Errorf("Write = %d, want %d", n, len(want))
		}
		return nil
	})

	opts := fastPoll
	opts.IdleEOF = time.Second
	got, err := io.ReadAll(NewReader(ctx, r, opts))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("stream corrupted: got %d bytes, want %d", len(got), len(want))
	}
}

func TestWriterTimeout(t *testing.T) {
	r := newRing(t, 8)
	opts := fastPoll
	opts.Timeout = 20 * time.Millisecond
	n, err := NewWriter(context.Background(), r, opts).Write([]byte("0123456789"))
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Write error = %v, want %v", err, ErrTimeout)
	}
	if n != 7 {
		t.Errorf("Write = %d, want 7", n)
	}
}

func TestWriterCancel(t *testing.T) {
	r := newRing(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	n, err := NewWriter(ctx, r, fastPoll).Write([]byte("abcdef"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want %v", err, context.Canceled)
	}
	if n != 3 {
		t.Errorf("Write = %d, want 3", n)
	}
}

func TestWriterEmpty(t *testing.T) {
	r := newRing(t, 4)
	if n, err := NewWriter(context.Background(), r, fastPoll).Write(nil); n != 0 || err != nil {
		t.Errorf("Write(nil) = %d, %v, want 0, nil", n, err)
	}
}

func TestReaderShort(t *testing.T) {
	r := newRing(t, 16)
	r.Write([]byte("abc"))
	buf := make([]byte, 10)
	n, err := NewReader(context.Background(), r, fastPoll).Read(buf)
	if err != nil || string(buf[:n]) != "abc" {
		t.Errorf("Read = %q, %v, want %q, nil", buf[:n], err, "abc")
	}
}

func TestReaderWaits(t *testing.T) {
	r := newRing(t, 16)
	time.AfterFunc(10*time.Millisecond, func() { r.Write([]byte("late")) })
	buf := make([]byte, 10)
	n, err := NewReader(context.Background(), r, fastPoll).Read(buf)
	if err != nil || string(buf[:n]) != "late" {
		t.Errorf("Read = %q, %v, want %q, nil", buf[:n], err, "late")
	}
}

func TestReaderIdleEOF(t *testing.T) {
	r := newRing(t, 16)
	opts := fastPoll
	opts.IdleEOF = 10 * time.Millisecond
	if n, err := NewReader(context.Background(), r, opts).Read(make([]byte, 4)); n != 0 || err != io.EOF {
		t.Errorf("Read = %d, %v, want 0, EOF", n, err)
	}
}

func TestReaderCancel(t *testing.T) {
	r := newRing(t, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := NewReader(ctx, r, fastPoll).Read(make([]byte, 4)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestReaderZeroLength(t *testing.T) {
	r := newRing(t, 16)
	if n, err := NewReader(context.Background(), r, fastPoll).Read(nil); n != 0 || err != nil {
		t.Errorf("Read(nil) = %d, %v, want 0, nil", n, err)
	}
}
