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
	`fmt`
)

// Fixup is a reference to a label that could not be encoded yet. Kind is
// interpreted by the target.
type Fixup struct {
	Pc   int
	Kind uint8
}

type _Label struct {
	pc     int
	bound  bool
	fixups []Fixup
}

// Labels is the label table of an encoder. A label starts unbound, branches to
// it are recorded as fixups, and binding it once hands the fixups back to the
// target for patching.
type Labels struct {
	tab []_Label
}

func (self *Labels) Len() int {
	return len(self.tab)
}

func (self *Labels) Create() LabelId {
	self.tab = append(self.tab, _Label{pc: -1})
	return LabelId(len(self.tab) - 1)
}

func (self *Labels) get(id LabelId) *_Label {
	if int64(id) >= int64(len(self.tab)) {
		panic(fmt.Sprintf("codegen: invalid label %d", id))
	} else {
		return &self.tab[id]
	}
}

// Bind pins the label at pc and returns the pending fixups.
func (self *Labels) Bind(id LabelId, pc int) []Fixup {
	p := self.get(id)
	if p.bound {
		panic(fmt.Sprintf("codegen: label %d is already bound at %#x", id, p.pc))
	}

	/* take the fixups */
	ret := p.fixups
	p.pc, p.bound, p.fixups = pc, true, nil
	return ret
}

func (self *Labels) IsBound(id LabelId) bool {
	return self.get(id).bound
}

// PC returns the position of a bound label.
func (self *Labels) PC(id LabelId) int {
	if p := self.get(id); !p.bound {
		panic(fmt.Sprintf("codegen: label %d is not bound", id))
	} else {
		return p.pc
	}
}

func (self *Labels) AddFixup(id LabelId, fix Fixup) {
	if p := self.get(id); p.bound {
		panic(fmt.Sprintf("codegen: label %d is already bound", id))
	} else {
		p.fixups = append(p.fixups, fix)
	}
}

// Unresolved returns the labels that are still referenced but never bound.
func (self *Labels) Unresolved() []LabelId {
	var ret []LabelId
	for i, p := range self.tab {
		if !p.bound && len(p.fixups) != 0 {
			ret = append(ret, LabelId(i))
		}
	}
	return ret
}
