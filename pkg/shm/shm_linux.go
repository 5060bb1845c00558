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

package shm

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"
	"gvisor.dev/shmring/pkg/cleanup"
	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/rand"
)

// Create allocates a new segment of the given size under a fresh random key,
// and maps it into the calling process.
func Create(size int) (*Segment, error) {
	return create(size, rand.Reader)
}

// create draws candidate keys from keys until one is free.
func create(size int, keys io.Reader) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	for attempt := 0; attempt < MaxKeyAttempts; attempt++ {
		k, err := rand.Int31(keys)
		if err != nil {
			return nil, fmt.Errorf("drawing shared memory key: %w", err)
		}
		key := int(k)
		if key == privateKey {
			continue
		}
		s, err := CreateWithKey(key, size)
		if errors.Is(err, ErrExist) {
			log.Debugf("Shared memory key %#x in use, retrying", key)
			continue
		}
		return s, err
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrKeySpaceExhausted, MaxKeyAttempts)
}

// CreateWithKey allocates a new segment of the given size under key, and maps
// it into the calling process. It fails with ErrExist if the key is taken.
func CreateWithKey(key, size int) (*Segment, error) {
	if key == privateKey {
		return nil, ErrInvalidKey
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	id, err := unix.SysvShmGet(key, size, unix.IPC_CREAT|unix.IPC_EXCL|Perm)
	if err != nil {
		if errors.Is(err, unix.EEXIST) {
			return nil, fmt.Errorf("%w: key %#x", ErrExist, key)
		}
		return nil, fmt.Errorf("shmget(%#x, %d): %w", key, size, err)
	}

	// Don't leak the segment if we can't map it.
	cu := cleanup.Make(func() {
		if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
			log.Warningf("Removing shared memory segment %d: %v", id, err)
		}
	})
	defer cu.Clean()

	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("shmat(%d): %w", id, err)
	}
	cu.Release()

	log.Debugf("Created shared memory segment key %#x, id %d, size %d", key, id, size)
	return &Segment{key: key, id: id, size: len(mem), mem: mem}, nil
}

// Attach maps the existing segment named by key into the calling process.
func Attach(key int) (*Segment, error) {
	id, err := lookup(key)
	if err != nil {
		return nil, err
	}
	mem, err := unix.SysvShmAttach(id, 0, 0)
	if err != nil {
		if errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL) {
			return nil, fmt.Errorf("%w: key %#x", ErrRemoved, key)
		}
		return nil, fmt.Errorf("shmat(%d): %w", id, err)
	}
	log.Debugf("Attached shared memory segment key %#x, id %d, size %d", key, id, len(mem))
	return &Segment{key: key, id: id, size: len(mem), mem: mem}, nil
}

func lookup(key int) (int, error) {
	if key == privateKey {
		return 0, ErrInvalidKey
	}
	id, err := unix.SysvShmGet(key, 0, Perm)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENOENT):
			return 0, fmt.Errorf("%w: key %#x", ErrNotExist, key)
		case errors.Is(err, unix.EIDRM):
			return 0, fmt.Errorf("%w: key %#x", ErrRemoved, key)
		}
		return 0, fmt.Errorf("shmget(%#x): %w", key, err)
	}
	return id, nil
}

// Detach unmaps the segment from the calling process. The segment and its
// contents survive.
func (s *Segment) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case detached:
		return ErrDetached
	case destroyed:
		return ErrDestroyed
	}
	return s.detachLocked()
}

// +checklocks:s.mu
func (s *Segment) detachLocked() error {
	if err := unix.SysvShmDetach(s.mem); err != nil {
		return fmt.Errorf("shmdt(%d): %w", s.id, err)
	}
	s.mem = nil
	s.state = detached
	log.Debugf("Detached shared memory segment key %#x, id %d", s.key, s.id)
	return nil
}

// Destroy detaches the segment if it is still mapped, and marks it for
// removal. The kernel frees it once every other process has detached. It
// must be called exactly once per segment, by a single coordinating process.
func (s *Segment) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == destroyed {
		return ErrDestroyed
	}
	if s.state == attached {
		if err := s.detachLocked(); err != nil {
			return err
		}
	}
	if err := rmid(s.id); err != nil {
		return err
	}
	s.state = destroyed
	log.Debugf("Destroyed shared memory segment key %#x, id %d", s.key, s.id)
	return nil
}

// Stat returns the kernel's view of the segment.
func (s *Segment) Stat() (Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == destroyed {
		return Stat{}, ErrDestroyed
	}
	st, err := stat(s.id)
	if err != nil {
		return Stat{}, err
	}
	// The kernel reports IPC_PRIVATE for segments marked for removal.
	st.Key = s.key
	return st, nil
}

// StatKey returns the kernel's view of the segment named by key, without
// attaching to it.
func StatKey(key int) (Stat, error) {
	id, err := lookup(key)
	if err != nil {
		return Stat{}, err
	}
	return stat(id)
}

// Remove marks the segment named by key for removal without attaching to it.
func Remove(key int) error {
	id, err := lookup(key)
	if err != nil {
		return err
	}
	if err := rmid(id); err != nil {
		return err
	}
	log.Debugf("Removed shared memory segment key %#x, id %d", key, id)
	return nil
}

func rmid(id int) error {
	if _, err := unix.SysvShmCtl(id, unix.IPC_RMID, nil); err != nil {
		if errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("%w: id %d", ErrRemoved, id)
		}
		return fmt.Errorf("shmctl(%d, IPC_RMID): %w", id, err)
	}
	return nil
}

func stat(id int) (Stat, error) {
	var desc unix.SysvShmDesc
	if _, err := unix.SysvShmCtl(id, unix.IPC_STAT, &desc); err != nil {
		if errors.Is(err, unix.EIDRM) || errors.Is(err, unix.EINVAL) {
			return Stat{}, fmt.Errorf("%w: id %d", ErrRemoved, id)
		}
		return Stat{}, fmt.Errorf("shmctl(%d, IPC_STAT): %w", id, err)
	}
	return Stat{
		Key:        int(desc.Perm.Key),
		ID:         id,
		Size:       int(desc.Segsz),
		Attached:   int(desc.Nattch),
		CreatorPID: int(desc.Cpid),
		LastPID:    int(desc.Lpid),
		Mode:       uint32(desc.Perm.Mode) & 0777,
	}, nil
}
