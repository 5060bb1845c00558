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

// Package shmring provides a byte ring buffer living in a System V shared
// memory segment, through which one producer process and one consumer
// process exchange a stream of bytes.
//
// The creator calls Create and hands the resulting key to the other process,
// which calls Attach. From then on the producer calls Write and the consumer
// calls Read, each against its own mapping. Neither call blocks: how long to
// wait for space or data is up to the caller (see package ringio).
package shmring

import (
	"fmt"
	"sync/atomic"
	"time"

	"gvisor.dev/shmring/pkg/cleanup"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/ring"
	"gvisor.dev/shmring/pkg/shm"
)

// deadHandleLog reports transfers attempted on detached buffers.
var deadHandleLog = log.BasicRateLimitedLogger(time.Second)

// Buffer is a process-local handle on a shared ring.
//
// Write and Read must not be called concurrently with Detach or Destroy.
type Buffer struct {
	seg  *shm.Segment
	ring *ring.Ring

	// closed is set once the mapping is gone.
	closed atomic.Bool
}

// Create allocates a new shared segment big enough for a ring with the given
// capacity under a random key, lays the ring out in it, and returns a handle
// on it. The ring holds at most capacity-1 bytes.
func Create(capacity uint64) (*Buffer, error) {
	if capacity < ring.MinCapacity || capacity > ring.MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ring.ErrInvalidCapacity, capacity)
	}
	seg, err := shm.Create(ring.RegionSize(capacity))
	if err != nil {
		return nil, err
	}
	return initSegment(seg, capacity)
}

// CreateWithKey is like Create, but uses the given key. It fails with
// shm.ErrExist if the key is taken.
func CreateWithKey(key int, capacity uint64) (*Buffer, error) {
	if capacity < ring.MinCapacity || capacity > ring.MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ring.ErrInvalidCapacity, capacity)
	}
	seg, err := shm.CreateWithKey(key, ring.RegionSize(capacity))
	if err != nil {
		return nil, err
	}
	return initSegment(seg, capacity)
}

func initSegment(seg *shm.Segment, capacity uint64) (*Buffer, error) {
	cu := cleanup.Make(func() {
		if err := seg.Destroy(); err != nil {
			log.Warningf("Destroying %v: %v", seg, err)
		}
	})
	defer cu.Clean()

	r, err := ring.Init(seg.Bytes(), capacity)
	if err != nil {
		return nil, err
	}
	cu.Release()

	log.Debugf("Created ring at key %#x with capacity %d", seg.Key(), capacity)
	return &Buffer{seg: seg, ring: r}, nil
}

// Attach maps the ring created under key. The capacity is read back from the
// ring itself; if capacity is not zero it must match the stored one.
func Attach(key int, capacity uint64) (*Buffer, error) {
	seg, err := shm.Attach(key)
	if err != nil {
		return nil, err
	}
	cu := cleanup.Make(func() {
		if err := seg.Detach(); err != nil {
			log.Warningf("Detaching %v: %v", seg, err)
		}
	})
	defer cu.Clean()

	r, err := ring.Open(seg.Bytes(), capacity)
	if err != nil {
		return nil, fmt.Errorf("opening ring at key %#x: %w", key, err)
	}
	cu.Release()

	log.Debugf("Attached ring at key %#x with capacity %d", key, r.Capacity())
	return &Buffer{seg: seg, ring: r}, nil
}

// Key returns the key other processes pass to Attach.
func (b *Buffer) Key() int {
	return b.seg.Key()
}

// Capacity returns the size of the ring's data area.
func (b *Buffer) Capacity() int {
	return b.ring.Capacity()
}

// Segment returns the underlying segment.
func (b *Buffer) Segment() *shm.Segment {
	return b.seg
}

// Ring returns the ring view. It must not be used after Detach or Destroy.
func (b *Buffer) Ring() *ring.Ring {
	return b.ring
}

func (b *Buffer) alive(op string) bool {
	if b.closed.Load() {
		deadHandleLog.Warningf("%s on detached ring at key %#x", op, b.seg.Key())
		return false
	}
	return true
}

// Write copies as much of p into the ring as fits and returns the number of
// bytes copied. It must only be called by the producer.
func (b *Buffer) Write(p []byte) int {
	if !b.alive("Write") {
		return 0
	}
	return b.ring.Write(p)
}

// Read copies up to len(p) bytes out of the ring and returns the number of
// bytes copied. It must only be called by the consumer.
func (b *Buffer) Read(p []byte) int {
	if !b.alive("Read") {
		return 0
	}
	return b.ring.Read(p)
}

// Free returns the number of bytes that can currently be written.
func (b *Buffer) Free() int {
	if b.closed.Load() {
		return 0
	}
	return b.ring.Free()
}

// Available returns the number of bytes that can currently be read.
func (b *Buffer) Available() int {
	if b.closed.Load() {
		return 0
	}
	return b.ring.Available()
}

// Detach unmaps the ring from this process. The ring and its contents stay
// available to other processes.
func (b *Buffer) Detach() error {
	b.closed.Store(true)
	return b.seg.Detach()
}

// Destroy detaches and marks the segment for removal once every process has
// detached. Exactly one process should call it, after use.
func (b *Buffer) Destroy() error {
	b.closed.Store(true)
	return b.seg.Destroy()
}

// Stats returns the current state of the ring.
func (b *Buffer) Stats() (Stats, error) {
	st, err := b.seg.Stat()
	if err != nil {
		return Stats{}, err
	}
	if b.closed.Load() {
		return Stats{}, shm.ErrDetached
	}
	return Stats{
		Key:      b.seg.Key(),
		Snapshot: b.ring.Snapshot(),
		Attached: st.Attached,
	}, nil
}
