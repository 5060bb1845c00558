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

package shmring

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrNoKeyFile is returned when a key file does not exist, including when
// another process already claimed it for destruction.
var ErrNoKeyFile = errors.New("ring key file does not exist")

// A key file lets processes rendezvous on a path instead of a bare key. It
// holds "<key> <capacity>\n". Access is serialized with a lock file next to
// it, so that writers never expose partial contents and exactly one process
// wins ClaimDestroy.

func lockPath(path string) string {
	return path + ".lock"
}

func lockKeyFile(path string, exclusive bool) (*flock.Flock, error) {
	l := flock.New(lockPath(path))
	var err error
	if exclusive {
		err = l.Lock()
	} else {
		err = l.RLock()
	}
	if err != nil {
		return nil, fmt.Errorf("error acquiring lock on key file %q: %w", path, err)
	}
	return l, nil
}

// WriteKeyFile records the key and capacity of a ring in path.
func WriteKeyFile(path string, key int, capacity uint64) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating dir %q: %w", dir, err)
		}
	}
	l, err := lockKeyFile(path, true)
	if err != nil {
		return err
	}
	defer l.Unlock()

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d %d\n", key, capacity)), 0644); err != nil {
		return fmt.Errorf("error writing key file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("error renaming key file %q: %w", path, err)
	}
	return nil
}

// ReadKeyFile returns the key and capacity recorded in path.
func ReadKeyFile(path string) (int, uint64, error) {
	l, err := lockKeyFile(path, false)
	if err != nil {
		return 0, 0, err
	}
	defer l.Unlock()
	return readKeyFile(path)
}

func readKeyFile(path string) (int, uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, fmt.Errorf("%w: %q", ErrNoKeyFile, path)
		}
		return 0, 0, fmt.Errorf("error reading key file %q: %w", path, err)
	}
	var (
		key      int
		capacity uint64
	)
	if _, err := fmt.Sscanf(string(data), "%d %d\n", &key, &capacity); err != nil {
		return 0, 0, fmt.Errorf("malformed key file %q: %w", path, err)
	}
	if key == 0 || capacity == 0 {
		return 0, 0, fmt.Errorf("malformed key file %q: key %d, capacity %d", path, key, capacity)
	}
	return key, capacity, nil
}

// ClaimDestroy reads and removes the key file at path. When several
// processes race, exactly one gets the key; the others get ErrNoKeyFile.
func ClaimDestroy(path string) (int, uint64, error) {
	l, err := lockKeyFile(path, true)
	if err != nil {
		return 0, 0, err
	}
	defer l.Unlock()

	key, capacity, err := readKeyFile(path)
	if err != nil {
		return 0, 0, err
	}
	if err := os.Remove(path); err != nil {
		return 0, 0, fmt.Errorf("error removing key file %q: %w", path, err)
	}
	// Waiters on the old lock file find the key file gone.
	os.Remove(lockPath(path))
	return key, capacity, nil
}
