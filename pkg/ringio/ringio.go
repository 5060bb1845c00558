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

// Package ringio adapts non-blocking rings to io.Writer and io.Reader by
// polling with exponential backoff.
package ringio

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/shmring/pkg/log"
)

// Ring is a non-blocking byte ring. Write and Read return the number of bytes
// moved, which may be anything from zero to len(p).
type Ring interface {
	Write(p []byte) int
	Read(p []byte) int
}

// ErrTimeout is returned by a Writer when the ring stays full for longer than
// Options.Timeout.
var ErrTimeout = errors.New("timed out waiting for ring space")

const (
	defaultInitialInterval = time.Millisecond
	defaultMaxInterval     = 100 * time.Millisecond
)

// Options configures polling.
type Options struct {
	// InitialInterval is the first wait after the ring was found full or
	// empty. Defaults to 1ms.
	InitialInterval time.Duration

	// MaxInterval caps the wait between polls. Defaults to 100ms.
	MaxInterval time.Duration

	// Timeout bounds how long a Writer waits without making progress. Zero
	// means forever.
	Timeout time.Duration

	// IdleEOF makes a Reader return io.EOF once the ring stayed empty for
	// that long. Zero means wait forever.
	IdleEOF time.Duration
}

// newBackOff returns a backoff that gives up after limit without progress.
func (o Options) newBackOff(limit time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = defaultInitialInterval
	}
	b.MaxInterval = o.MaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = defaultMaxInterval
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = limit
	return b
}

// stallLog reports waits on a full or empty ring.
var stallLog = log.BasicRateLimitedLogger(5 * time.Second)

var (
	errFull  = errors.New("ring full")
	errEmpty = errors.New("ring empty")
)

// poll calls op until it makes progress, the context is done or the backoff
// gives up. It returns the context error if the context is done, otherwise
// the error op last returned.
func poll(ctx context.Context, b *backoff.ExponentialBackOff, op func() error) error {
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		if log.IsLogging(log.Debug) {
			stallLog.Debugf("%v, retrying in %v", err, next)
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return err
}
