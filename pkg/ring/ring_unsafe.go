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

package ring

import (
	"sync/atomic"
	"unsafe"
)

// word returns a pointer to the 64-bit header word at off.
func word(region []byte, off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&region[off:][:8][0]))
}

func aligned(region []byte) bool {
	return uintptr(unsafe.Pointer(unsafe.SliceData(region)))%8 == 0
}

// The cursors are shared with another process. The writer stores tail only
// after the data copy, and the reader stores head only after its copy; the
// atomic loads on the other side observe those stores in order.

func (r *Ring) loadHead() uint64 {
	return atomic.LoadUint64(r.head)
}

func (r *Ring) storeHead(v uint64) {
	atomic.StoreUint64(r.head, v)
}

func (r *Ring) loadTail() uint64 {
	return atomic.LoadUint64(r.tail)
}

func (r *Ring) storeTail(v uint64) {
	atomic.StoreUint64(r.tail, v)
}
