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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// BuildPath expands the variables in a log file pattern:
//   - %PID%: the current process id.
//   - %COMMAND%: the given subcommand name.
//
// If the pattern ends with '/', it is treated as a directory and a default
// file name of the form shmring.<command>.<pid>.log is used.
func BuildPath(logPattern, command string) string {
	if strings.HasSuffix(logPattern, "/") {
		logPattern += "shmring.%COMMAND%.%PID%.log"
	}
	r := strings.NewReplacer(
		"%PID%", strconv.Itoa(os.Getpid()),
		"%COMMAND%", command,
	)
	return r.Replace(logPattern)
}

// OpenFile opens a log file for appending. The path is built from logPattern
// using BuildPath. It returns nil if logPattern is empty.
func OpenFile(logPattern, command string) (*os.File, error) {
	if len(logPattern) == 0 {
		return nil, nil
	}

	logPath := BuildPath(logPattern, command)

	// Create parent directory if it doesn't exist.
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("error creating dir %q: %v", dir, err)
	}

	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0664)
	if err != nil {
		return nil, fmt.Errorf("error opening file %q: %v", logPath, err)
	}
	return f, nil
}
