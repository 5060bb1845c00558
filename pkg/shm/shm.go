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

// Package shm manages System V shared memory segments that are identified by
// an integer key and may be mapped by several processes at once.
//
// A Segment is the per-process handle on such a region. The region itself
// outlives the process that created it, and is only removed by Destroy (or
// Remove) once every process has detached.
package shm

import (
	"errors"
	"fmt"
	"sync"
)

// Perm is the permission mode segments are created with.
const Perm = 0660

// privateKey is IPC_PRIVATE, which never names a shared segment.
const privateKey = 0

// MaxKeyAttempts bounds the number of random keys Create tries before giving
// up.
const MaxKeyAttempts = 1024

var (
	// ErrInvalidKey is returned for the reserved key 0.
	ErrInvalidKey = errors.New("invalid shared memory key")

	// ErrInvalidSize is returned for non-positive segment sizes.
	ErrInvalidSize = errors.New("invalid shared memory size")

	// ErrExist is returned by CreateWithKey if the key is already in use.
	ErrExist = errors.New("shared memory segment already exists")

	// ErrNotExist is returned when no segment exists under a key.
	ErrNotExist = errors.New("shared memory segment does not exist")

	// ErrRemoved is returned when a segment was removed while in use.
	ErrRemoved = errors.New("shared memory segment was removed")

	// ErrKeySpaceExhausted is returned by Create if no free key was found
	// within MaxKeyAttempts.
	ErrKeySpaceExhausted = errors.New("no free shared memory key found")

	// ErrDetached is returned when using a Segment that was detached.
	ErrDetached = errors.New("shared memory segment already detached")

	// ErrDestroyed is returned when using a Segment that was destroyed.
	ErrDestroyed = errors.New("shared memory segment already destroyed")
)

type state int

const (
	attached state = iota
	detached
	destroyed
)

func (s state) String() string {
	switch s {
	case attached:
		return "attached"
	case detached:
		return "detached"
	case destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Segment is a process-local handle on a shared memory segment.
type Segment struct {
	key  int
	id   int
	size int

	// mu protects the fields below.
	mu    sync.Mutex
	mem   []byte
	state state
}

// Key returns the key other processes use to attach to the segment.
func (s *Segment) Key() int {
	return s.key
}

// ID returns the system identifier of the segment.
func (s *Segment) ID() int {
	return s.id
}

// Size returns the size of the segment in bytes.
func (s *Segment) Size() int {
	return s.size
}

// Bytes returns the mapping of the segment in this process. It returns nil
// once the segment has been detached or destroyed.
func (s *Segment) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem
}

// Attached reports whether the segment is still mapped in this process.
func (s *Segment) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == attached
}

// String implements fmt.Stringer.
func (s *Segment) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("segment{key: %#x, id: %d, size: %d, %v}", s.key, s.id, s.size, s.state)
}

// Stat describes a segment as reported by the kernel.
type Stat struct {
	Key        int
	ID         int
	Size       int
	Attached   int
	CreatorPID int
	LastPID    int
	Mode       uint32
}
