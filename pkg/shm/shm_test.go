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
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// newTestSegment creates a segment and registers its destruction. It skips
// the test if System V shared memory is not available.
func newTestSegment(t *testing.T, size int) *Segment {
	t.Helper()
	s, err := Create(size)
	if err != nil {
		if errors.Is(err, unix.ENOSYS) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
			t.Skipf("System V shared memory unavailable: %v", err)
		}
		t.Fatalf("Create(%d) failed: %v", size, err)
	}
	t.Cleanup(func() {
		if err := s.Destroy(); err != nil && !errors.Is(err, ErrDestroyed) {
			t.Errorf("Destroy failed: %v", err)
		}
	})
	return s
}

// keyReader repeats the little endian encoding of a key forever.
type keyReader struct {
	key [4]byte
}

func newKeyReader(key int) *keyReader {
	var r keyReader
	binary.LittleEndian.PutUint32(r.key[:], uint32(key))
	return &r
}

func (r *keyReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.key[i%4]
	}
	return len(p), nil
}

func TestCreateAttach(t *testing.T) {
	s := newTestSegment(t, 4096)
	if s.Key() == privateKey {
		t.Fatalf("Create returned the private key")
	}
	if got := len(s.Bytes()); got != 4096 {
		t.Fatalf("len(Bytes()) = %d, want 4096", got)
	}

	a, err := Attach(s.Key())
	if err != nil {
		t.Fatalf("Attach(%#x) failed: %v", s.Key(), err)
	}
	if a.ID() != s.ID() || a.Size() != s.Size() {
		t.Errorf("attached %v, created %v", a, s)
	}

	copy(s.Bytes()[100:], "hello across mappings")
	if got := string(a.Bytes()[100:121]); got != "hello across mappings" {
		t.Errorf("second mapping read %q", got)
	}

	st, err := s.Stat()
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if st.Attached != 2 || st.Size != 4096 || st.CreatorPID != os.Getpid() || st.Key != s.Key() {
		t.Errorf("unexpected stat %+v", st)
	}
	if st.Mode != Perm {
		t.Errorf("Mode = %o, want %o", st.Mode, Perm)
	}

	if err := a.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if a.Attached() || a.Bytes() != nil {
		t.Errorf("segment still mapped after Detach: %v", a)
	}
	st, err = StatKey(s.Key())
	if err != nil {
		t.Fatalf("StatKey failed: %v", err)
	}
	if st.Attached != 1 {
		t.Errorf("Attached = %d after detach, want 1", st.Attached)
	}
}

func TestDetachTwice(t *testing.T) {
	s := newTestSegment(t, 64)
	if err := s.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if err := s.Detach(); !errors.Is(err, ErrDetached) {
		t.Errorf("second Detach = %v, want %v", err, ErrDetached)
	}
	// A detached handle can still destroy the segment.
	if err := s.Destroy(); err != nil {
		t.Errorf("Destroy after Detach failed: %v", err)
	}
}

func TestDestroyTwice(t *testing.T) {
	s := newTestSegment(t, 64)
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := s.Destroy(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("second Destroy = %v, want %v", err, ErrDestroyed)
	}
	if err := s.Detach(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Detach after Destroy = %v, want %v", err, ErrDestroyed)
	}
	if _, err := s.Stat(); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Stat after Destroy = %v, want %v", err, ErrDestroyed)
	}
}

func TestAttachAfterDestroy(t *testing.T) {
	s := newTestSegment(t, 64)
	key := s.Key()
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := Attach(key); !errors.Is(err, ErrNotExist) {
		t.Errorf("Attach after Destroy = %v, want %v", err, ErrNotExist)
	}
	if err := Remove(key); !errors.Is(err, ErrNotExist) {
		t.Errorf("Remove after Destroy = %v, want %v", err, ErrNotExist)
	}
}

// TestDestroyWhileAttached checks that removal is deferred until the last
// mapping goes away.
func TestDestroyWhileAttached(t *testing.T) {
	s := newTestSegment(t, 64)
	a, err := Attach(s.Key())
	if err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	copy(s.Bytes(), "still here")
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if got := a.Bytes()[:10]; !bytes.Equal(got, []byte("still here")) {
		t.Errorf("surviving mapping read %q", got)
	}
	if err := a.Detach(); err != nil {
		t.Errorf("Detach of surviving mapping failed: %v", err)
	}
}

func TestCreateWithKeyExists(t *testing.T) {
	s := newTestSegment(t, 64)
	if _, err := CreateWithKey(s.Key(), 64); !errors.Is(err, ErrExist) {
		t.Errorf("CreateWithKey(%#x) = %v, want %v", s.Key(), err, ErrExist)
	}
}

func TestKeySpaceExhausted(t *testing.T) {
	s := newTestSegment(t, 64)
	for _, tc := range []struct {
		name string
		keys io.Reader
	}{
		{"private key only", newKeyReader(privateKey)},
		{"colliding key", newKeyReader(s.Key())},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := create(64, tc.keys); !errors.Is(err, ErrKeySpaceExhausted) {
				t.Errorf("create() = %v, want %v", err, ErrKeySpaceExhausted)
			}
		})
	}
}

func TestKeyReadFailure(t *testing.T) {
	if _, err := create(64, bytes.NewReader(nil)); err == nil {
		t.Errorf("create with an empty key source succeeded")
	}
}

func TestInvalidArguments(t *testing.T) {
	if _, err := Create(0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Create(0) = %v, want %v", err, ErrInvalidSize)
	}
	if _, err := CreateWithKey(privateKey, 64); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("CreateWithKey(0) = %v, want %v", err, ErrInvalidKey)
	}
	if _, err := Attach(privateKey); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Attach(0) = %v, want %v", err, ErrInvalidKey)
	}
}
