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

package ringio

import (
	"context"
	"io"

	"github.com/cenkalti/backoff"
)

// Writer writes everything it is given into a ring, waiting for the reader to
// make room as needed.
type Writer struct {
	ctx  context.Context
	ring Ring
	opts Options
}

var _ io.Writer = (*Writer)(nil)

// NewWriter returns a Writer on r. Writes stop early when ctx is done.
func NewWriter(ctx context.Context, r Ring, opts Options) *Writer {
	return &Writer{ctx: ctx, ring: r, opts: opts}
}

// Write implements io.Writer.Write. It returns once all of p is in the ring,
// the context is done, or the ring stayed full for Options.Timeout, in which
// case the error is ErrTimeout.
func (w *Writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		if err := w.ctx.Err(); err != nil {
			return written, err
		}
		if n := w.ring.Write(p[written:]); n > 0 {
			written += n
			continue
		}
		op := func() error {
			n := w.ring.Write(p[written:])
			if n == 0 {
				if err := w.ctx.Err(); err != nil {
					return backoff.Permanent(err)
				}
				return errFull
			}
			written += n
			return nil
		}
		switch err := poll(w.ctx, w.opts.newBackOff(w.opts.Timeout), op); err {
		case nil:
		case errFull:
			return written, ErrTimeout
		default:
			return written, err
		}
	}
	return written, nil
}
