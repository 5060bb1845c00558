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

// Reader reads from a ring, waiting for the writer when it is empty.
type Reader struct {
	ctx  context.Context
	ring Ring
	opts Options
}

var _ io.Reader = (*Reader)(nil)

// NewReader returns a Reader on r. Reads stop early when ctx is done.
func NewReader(ctx context.Context, r Ring, opts Options) *Reader {
	return &Reader{ctx: ctx, ring: r, opts: opts}
}

// Read implements io.Reader.Read. It returns as soon as at least one byte
// was read. If Options.IdleEOF is set and the ring stays empty that long, it
// returns io.EOF.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	if n := r.ring.Read(p); n > 0 {
		return n, nil
	}
	var n int
	op := func() error {
		if n = r.ring.Read(p); n > 0 {
			return nil
		}
		if err := r.ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return errEmpty
	}
	switch err := poll(r.ctx, r.opts.newBackOff(r.opts.IdleEOF), op); err {
	case nil:
		return n, nil
	case errEmpty:
		return 0, io.EOF
	default:
		return 0, err
	}
}
