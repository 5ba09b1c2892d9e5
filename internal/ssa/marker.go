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

package ssa

const (
	_MarkerBits  = 2
	_MarkerSlots = 1 << _MarkerBits
	_MarkerMask  = _MarkerSlots - 1
)

// Marker is a generation-tagged visited bit. The low bits select one of a
// few slots carried by every block and instruction, the remaining bits hold
// the generation, so a fresh marker never sees the marks of a previous one
// and nothing has to be cleared between passes.
type Marker uint32

func (self Marker) slot() int {
	return int(self & _MarkerMask)
}

type _MarkerSet [_MarkerSlots]uint32

func (self *_MarkerSet) set(m Marker) {
	self[m.slot()] = uint32(m)
}

func (self *_MarkerSet) reset(m Marker) {
	if self[m.slot()] == uint32(m) {
		self[m.slot()] = 0
	}
}

func (self *_MarkerSet) isMarked(m Marker) bool {
	return m != 0 && self[m.slot()] == uint32(m)
}

type _MarkerPool struct {
	gen  uint32
	used [_MarkerSlots]bool
}

// NewMarker allocates a marker from a free slot. Running out of slots means
// some pass leaked a marker, which is fatal.
func (self *Graph) NewMarker() Marker {
	for i, used := range self.marker.used {
		if !used {
			self.marker.gen++
			self.marker.used[i] = true
			return Marker(self.marker.gen<<_MarkerBits | uint32(i))
		}
	}
	panic("ssa: out of markers")
}

// EraseMarker returns the slot of m to the pool. Marks set with m remain
// readable until the slot is reused.
func (self *Graph) EraseMarker(m Marker) {
	if !self.marker.used[m.slot()] {
		panic("ssa: erasing a marker that is not in use")
	} else {
		self.marker.used[m.slot()] = false
	}
}
