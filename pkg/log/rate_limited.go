// Copyright 2022 The gVisor Authors.
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
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedLogger drops messages beyond its limit and reports how many were
// suppressed on the next message that gets through.
type rateLimitedLogger struct {
	logger     Logger
	limit      *rate.Limiter
	suppressed atomic.Uint64
}

func (rl *rateLimitedLogger) allow() (uint64, bool) {
	if !rl.limit.Allow() {
		rl.suppressed.Add(1)
		return 0, false
	}
	return rl.suppressed.Swap(0), true
}

func (rl *rateLimitedLogger) emit(logf func(string, ...any), format string, v []any) {
	dropped, ok := rl.allow()
	if !ok {
		return
	}
	if dropped > 0 {
		logf(format+" (%d similar messages suppressed)", append(v, dropped)...)
		return
	}
	logf(format, v...)
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	if rl.logger.IsLogging(Debug) {
		rl.emit(rl.logger.Debugf, format, v)
	}
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	if rl.logger.IsLogging(Info) {
		rl.emit(rl.logger.Infof, format, v)
	}
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	rl.emit(rl.logger.Warningf, format, v)
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	return rl.logger.IsLogging(level)
}

// globalLogger forwards to whatever Log() returns at call time, so a rate
// limited logger created at package init still honors a later SetTarget.
type globalLogger struct{}

func (globalLogger) Debugf(format string, v ...any)   { Log().DebugfAtDepth(3, format, v...) }
func (globalLogger) Infof(format string, v ...any)    { Log().InfofAtDepth(3, format, v...) }
func (globalLogger) Warningf(format string, v ...any) { Log().WarningfAtDepth(3, format, v...) }
func (globalLogger) IsLogging(level Level) bool       { return Log().IsLogging(level) }

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per the provided duration.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return RateLimitedLogger(globalLogger{}, every)
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}
