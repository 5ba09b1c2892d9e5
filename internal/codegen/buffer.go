/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package codegen

import (
	`encoding/binary`
	`sync/atomic`

	`github.com/bytedance/gopkg/lang/mcache`
)

const (
	_MinBufferSize = 256
)

// Buffer is a little-endian code buffer backed by pooled memory.
type Buffer struct {
	buf []byte
}

func (self *Buffer) Len() int      { return len(self.buf) }
func (self *Buffer) Bytes() []byte { return self.buf }

func (self *Buffer) grow(n int) {
	nb := len(self.buf) + n
	if nb <= cap(self.buf) {
		return
	}

	/* double the capacity */
	nc := cap(self.buf) * 2
	if nc < _MinBufferSize {
		nc = _MinBufferSize
	}
	for nc < nb {
		nc *= 2
	}

	/* move to a larger block */
	mm := mcache.Malloc(len(self.buf), nc)
	copy(mm, self.buf)
	atomic.AddUint64(&BuffersPooled, 1)

	/* release the old one */
	if self.buf != nil {
		mcache.Free(self.buf)
	}
	self.buf = mm
}

func (self *Buffer) Emit8(v uint8) {
	self.grow(1)
	self.buf = append(self.buf, v)
}

func (self *Buffer) Emit32(v uint32) {
	n := len(self.buf)
	self.grow(4)
	self.buf = self.buf[:n+4]
	binary.LittleEndian.PutUint32(self.buf[n:], v)
}

func (self *Buffer) Emit64(v uint64) {
	n := len(self.buf)
	self.grow(8)
	self.buf = self.buf[:n+8]
	binary.LittleEndian.PutUint64(self.buf[n:], v)
}

func (self *Buffer) EmitBytes(v []byte) {
	self.grow(len(v))
	self.buf = append(self.buf, v...)
}

func (self *Buffer) Word32(pc int) uint32 {
	return binary.LittleEndian.Uint32(self.buf[pc:])
}

func (self *Buffer) Word64(pc int) uint64 {
	return binary.LittleEndian.Uint64(self.buf[pc:])
}

func (self *Buffer) SetWord32(pc int, v uint32) {
	binary.LittleEndian.PutUint32(self.buf[pc:], v)
}

// Align pads the buffer with the 32-bit filler word until its length is a
// multiple of n. Both n and the current length must be multiples of 4.
func (self *Buffer) Align(n int, fill uint32) {
	if n&(n-1) != 0 || n < 4 || len(self.buf)&3 != 0 {
		panic("codegen: invalid alignment")
	}
	for len(self.buf)&(n-1) != 0 {
		self.Emit32(fill)
	}
}

// Free returns the memory to the pool, the buffer is empty afterwards.
func (self *Buffer) Free() {
	if self.buf != nil {
		mcache.Free(self.buf)
		self.buf = nil
	}
}
