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

// Package cmd holds implementations of the shmring commands.
package cmd

import (
	"errors"
	"flag"
	"fmt"
	"strconv"

	"gvisor.dev/shmring/pkg/shmring"
	"gvisor.dev/shmring/shmring/config"
)

// errNoKey is returned when a command was given neither a key nor
// --key-file.
var errNoKey = errors.New("no ring key given and --key-file is not set")

// parseKey parses a ring key in decimal, or hex with a 0x prefix, as printed
// by the create command.
func parseKey(s string) (int, error) {
	k, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid ring key %q: %w", s, err)
	}
	if k == 0 {
		return 0, fmt.Errorf("invalid ring key %q: 0 is reserved", s)
	}
	return int(k), nil
}

// formatKey formats a key the way parseKey accepts it.
func formatKey(key int) string {
	return fmt.Sprintf("%#x", key)
}

// resolveKey returns the ring named by the only positional argument, or by
// --key-file if there is none. The returned capacity is zero when unknown.
func resolveKey(f *flag.FlagSet, conf *config.Config) (int, uint64, error) {
	switch {
	case f.NArg() == 1:
		key, err := parseKey(f.Arg(0))
		return key, 0, err
	case f.NArg() == 0 && conf.KeyFile != "":
		return shmring.ReadKeyFile(conf.KeyFile)
	default:
		return 0, 0, errNoKey
	}
}
