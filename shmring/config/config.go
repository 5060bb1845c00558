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

// Package config provides basic infrastructure to set configuration settings
// for shmring. Each setting has a flag and a Config field, tied together by
// the field's "flag" tag.
package config

import (
	"fmt"
	"reflect"
	"time"

	"gvisor.dev/shmring/pkg/log"
	"gvisor.dev/shmring/pkg/ringio"
)

// Config holds configuration that is shared by all shmring commands.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty. A trailing '/'
	// makes it a directory with a file per process in it.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: text or json.
	LogFormat string `flag:"log-format"`

	// AlsoLogToStderr allows to send log messages to stderr in addition to
	// the log file.
	AlsoLogToStderr bool `flag:"alsologtostderr"`

	// KeyFile is the path through which processes share the key of a ring.
	KeyFile string `flag:"key-file"`

	// PollInitial is the first wait after finding a ring full or empty.
	PollInitial time.Duration `flag:"poll-initial"`

	// PollMax caps the wait between polls of a full or empty ring.
	PollMax time.Duration `flag:"poll-max"`

	// Timeout bounds how long a writer waits on a full ring. Zero means
	// forever.
	Timeout time.Duration `flag:"timeout"`

	// IdleEOF makes a reader stop once the ring stayed empty this long. Zero
	// means never.
	IdleEOF time.Duration `flag:"idle-eof"`

	// ConfigFile is a TOML file whose [flags] table sets flags that were not
	// given on the command line.
	ConfigFile string `flag:"config"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.PollInitial <= 0 {
		return fmt.Errorf("--poll-initial must be positive, got %v", c.PollInitial)
	}
	if c.PollMax < c.PollInitial {
		return fmt.Errorf("--poll-max (%v) must not be smaller than --poll-initial (%v)", c.PollMax, c.PollInitial)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %v", c.Timeout)
	}
	if c.IdleEOF < 0 {
		return fmt.Errorf("--idle-eof must not be negative, got %v", c.IdleEOF)
	}
	return nil
}

// PollOptions returns the polling settings for ringio readers and writers.
func (c *Config) PollOptions() ringio.Options {
	return ringio.Options{
		InitialInterval: c.PollInitial,
		MaxInterval:     c.PollMax,
		Timeout:         c.Timeout,
		IdleEOF:         c.IdleEOF,
	}
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if name, ok := f.Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %s", name, getVal(obj.Field(i)))
		}
	}
}
