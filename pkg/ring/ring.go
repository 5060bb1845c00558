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

// Package ring implements a byte ring buffer laid out in a flat memory region,
// on which a single writer and a single reader can operate concurrently,
// possibly from different processes that map the same region.
//
// The region starts with a fixed header of three 64-bit host-endian words,
// followed by the data area:
//
//	offset 0   capacity  size of the data area, written once by Init
//	offset 8   head      offset of the next byte to read, owned by the reader
//	offset 16  tail      offset of the next byte to write, owned by the writer
//	offset 24  data[capacity]
//
// One byte of the data area is never used, so that head == tail means empty
// and tail+1 == head (mod capacity) means full. Transfers never block: Write
// and Read move as many bytes as fit and report how many that was.
//
// Example usage is as follows:
//
//	r, err := ring.Init(region, capacity)
//	n := r.Write(b) // n may be less than len(b) if the ring is full.
//
//	r, err := ring.Open(region, capacity)
//	n := r.Read(b) // n is 0 if the ring is empty.
package ring

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	capacityOffset = 0
	headOffset     = 8
	tailOffset     = 16

	// HeaderSize is the number of bytes preceding the data area.
	HeaderSize = 24

	// MinCapacity is the smallest data area that can hold at least one byte.
	MinCapacity = 2

	// MaxCapacity bounds the data area so that the whole region is
	// addressable by an int.
	MaxCapacity = math.MaxInt32 - HeaderSize
)

var (
	// ErrInvalidCapacity is returned by Init for a capacity outside
	// [MinCapacity, MaxCapacity].
	ErrInvalidCapacity = errors.New("invalid ring capacity")

	// ErrRegionTooSmall is returned by Init when the region cannot hold the
	// header and the requested data area.
	ErrRegionTooSmall = errors.New("region too small for ring")

	// ErrUnaligned is returned when the region does not start on an 8-byte
	// boundary, which the atomic cursor words require.
	ErrUnaligned = errors.New("ring region is not 8-byte aligned")

	// ErrCorrupt is returned by Open when the region does not hold a ring:
	// its stored capacity is out of range or does not fit the region, or a
	// cursor lies outside the data area.
	ErrCorrupt = errors.New("region does not hold a valid ring")

	// ErrCapacityMismatch is returned by Open when the stored capacity
	// differs from the one the caller expected.
	ErrCapacityMismatch = errors.New("ring capacity mismatch")
)

// RegionSize returns the number of bytes a region must have to hold a ring
// with the given capacity.
func RegionSize(capacity uint64) int {
	return HeaderSize + int(capacity)
}

// Ring is a process-local view of a ring laid out in a shared region. The
// capacity is cached when the view is created; head and tail always live in
// the region and are accessed atomically.
//
// A Ring may be used by one writer and one reader concurrently. Only the
// writer calls Write; only the reader calls Read, Peek and Discard.
type Ring struct {
	region   []byte
	data     []byte
	capacity uint64

	// head and tail point into region.
	head *uint64
	tail *uint64
}

// Init lays out a new ring with the given capacity at the start of region,
// and resets its cursors. The region must not be in use by anyone else yet.
func Init(region []byte, capacity uint64) (*Ring, error) {
	if capacity < MinCapacity || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if len(region) < RegionSize(capacity) {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrRegionTooSmall, len(region), RegionSize(capacity))
	}
	if !aligned(region) {
		return nil, ErrUnaligned
	}
	binary.NativeEndian.PutUint64(region[capacityOffset:], capacity)
	r := newRing(region, capacity)
	r.Reset()
	return r, nil
}

// Open returns a view of a ring previously laid out by Init, possibly by
// another process. The capacity is read back from the region. If expected is
// not zero, it must match the stored capacity.
func Open(region []byte, expected uint64) (*Ring, error) {
	if len(region) < HeaderSize {
		return nil, fmt.Errorf("%w: region is %d bytes", ErrCorrupt, len(region))
	}
	if !aligned(region) {
		return nil, ErrUnaligned
	}
	capacity := binary.NativeEndian.Uint64(region[capacityOffset:])
	if capacity < MinCapacity || capacity > MaxCapacity || uint64(len(region)-HeaderSize) < capacity {
		return nil, fmt.Errorf("%w: stored capacity %d, region is %d bytes", ErrCorrupt, capacity, len(region))
	}
	if expected != 0 && expected != capacity {
		return nil, fmt.Errorf("%w: stored %d, expected %d", ErrCapacityMismatch, capacity, expected)
	}
	r := newRing(region, capacity)
	if head, tail := r.loadHead(), r.loadTail(); head >= capacity || tail >= capacity {
		return nil, fmt.Errorf("%w: head %d, tail %d, capacity %d", ErrCorrupt, head, tail, capacity)
	}
	return r, nil
}

func newRing(region []byte, capacity uint64) *Ring {
	r := &Ring{
		region:   region,
		data:     region[HeaderSize : HeaderSize+int(capacity)],
		capacity: capacity,
	}
	r.head = word(region, headOffset)
	r.tail = word(region, tailOffset)
	return r
}

// Reset empties the ring. It must not race with Write or Read.
func (r *Ring) Reset() {
	r.storeHead(0)
	r.storeTail(0)
}

// Capacity returns the size of the data area in bytes.
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// Usable returns the maximum number of bytes the ring can hold at once.
func (r *Ring) Usable() int {
	return int(r.capacity) - 1
}

// Bytes returns the region on which the ring operates.
func (r *Ring) Bytes() []byte {
	return r.region
}

// Head returns the current read offset.
func (r *Ring) Head() uint64 {
	return r.loadHead()
}

// Tail returns the current write offset.
func (r *Ring) Tail() uint64 {
	return r.loadTail()
}

// free returns the number of bytes that can be written given the cursors.
func (r *Ring) free(head, tail uint64) uint64 {
	if head > tail {
		return head - tail - 1
	}
	return r.capacity + head - tail - 1
}

// available returns the number of bytes that can be read given the cursors.
func (r *Ring) available(head, tail uint64) uint64 {
	if tail >= head {
		return tail - head
	}
	return r.capacity - head + tail
}

// valid reports whether both cursors lie in the data area. A peer that
// scribbled over the header must not make us index out of the region.
func (r *Ring) valid(head, tail uint64) bool {
	return head < r.capacity && tail < r.capacity
}

// Free returns the number of bytes that can currently be written.
func (r *Ring) Free() int {
	head, tail := r.loadHead(), r.loadTail()
	if !r.valid(head, tail) {
		return 0
	}
	return int(r.free(head, tail))
}

// Available returns the number of bytes that can currently be read.
func (r *Ring) Available() int {
	head, tail := r.loadHead(), r.loadTail()
	if !r.valid(head, tail) {
		return 0
	}
	return int(r.available(head, tail))
}

// Write copies as much of b into the ring as currently fits and returns the
// number of bytes copied. A short count means the ring is full; it is not an
// error.
func (r *Ring) Write(b []byte) int {
	head := r.loadHead()
	tail := r.loadTail()
	if !r.valid(head, tail) {
		return 0
	}
	n := min(uint64(len(b)), r.free(head, tail))
	if n == 0 {
		return 0
	}

	// Fill up to the end of the data area, then wrap to its start.
	first := min(n, r.capacity-tail)
	copy(r.data[tail:tail+first], b[:first])
	copy(r.data[:n-first], b[first:n])

	// Publish the bytes to the reader.
	r.storeTail((tail + n) % r.capacity)
	return int(n)
}

// Read copies up to len(b) bytes out of the ring and returns the number of
// bytes copied. Zero means the ring is empty.
func (r *Ring) Read(b []byte) int {
	n, head := r.peek(b)
	if n == 0 {
		return 0
	}

	// Hand the space back to the writer.
	r.storeHead((head + n) % r.capacity)
	return int(n)
}

// Peek is like Read but leaves the bytes in the ring.
func (r *Ring) Peek(b []byte) int {
	n, _ := r.peek(b)
	return int(n)
}

func (r *Ring) peek(b []byte) (n, head uint64) {
	head = r.loadHead()
	tail := r.loadTail()
	if !r.valid(head, tail) {
		return 0, head
	}
	n = min(uint64(len(b)), r.available(head, tail))
	if n == 0 {
		return 0, head
	}
	first := min(n, r.capacity-head)
	copy(b[:first], r.data[head:head+first])
	copy(b[first:n], r.data[:n-first])
	return n, head
}

// Discard drops up to n readable bytes without copying them and returns the
// number of bytes dropped.
func (r *Ring) Discard(n int) int {
	if n <= 0 {
		return 0
	}
	head := r.loadHead()
	tail := r.loadTail()
	if !r.valid(head, tail) {
		return 0
	}
	d := min(uint64(n), r.available(head, tail))
	if d == 0 {
		return 0
	}
	r.storeHead((head + d) % r.capacity)
	return int(d)
}

// Snapshot is a point-in-time view of the ring's cursors.
type Snapshot struct {
	Capacity  uint64
	Head      uint64
	Tail      uint64
	Free      uint64
	Available uint64
}

// Snapshot loads both cursors once and derives the byte counts from them, so
// that Free+Available is always Capacity-1 for a healthy ring.
func (r *Ring) Snapshot() Snapshot {
	head, tail := r.loadHead(), r.loadTail()
	s := Snapshot{Capacity: r.capacity, Head: head, Tail: tail}
	if r.valid(head, tail) {
		s.Free = r.free(head, tail)
		s.Available = r.available(head, tail)
	}
	return s
}
