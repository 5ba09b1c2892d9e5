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

import (
	`fmt`
)

func (self *Inst) phiInputIndex(pred int) int {
	for i, v := range self.Phi {
		if v.Pred == pred {
			return i
		}
	}
	return -1
}

// PhiInput returns the value flowing in from pred, or nil if there is none.
func (self *Inst) PhiInput(pred int) *Inst {
	if i := self.phiInputIndex(pred); i < 0 {
		return nil
	} else {
		return self.Phi[i].Value
	}
}

func (self *Inst) SetPhiInput(pred int, val *Inst) {
	if i := self.phiInputIndex(pred); i < 0 {
		self.Phi = append(self.Phi, PhiInput{Pred: pred, Value: val})
	} else {
		self.Phi[i].Value = val
	}
}

func (self *Inst) RemovePhiInput(pred int) {
	if i := self.phiInputIndex(pred); i >= 0 {
		self.Phi = append(self.Phi[:i], self.Phi[i+1:]...)
	}
}

func (self *Inst) RenamePhiPred(old int, repl int) {
	if i := self.phiInputIndex(old); i >= 0 {
		self.Phi[i].Pred = repl
	}
}

// OrderedInputs projects the phi inputs of p onto the predecessor order of
// its block.
func (self *Graph) OrderedInputs(p *Inst) []*Inst {
	bb := self.mustBlock(p.block)
	ret := make([]*Inst, len(bb.Preds))

	/* one value per predecessor */
	for i, pred := range bb.Preds {
		if ret[i] = p.PhiInput(pred); ret[i] == nil {
			panic(fmt.Sprintf("ssa: phi v%d has no input for bb_%d", p.Id, pred))
		}
	}
	return ret
}

// ValidatePhis checks that every phi has exactly one input per predecessor
// of its block, and nothing else.
func (self *Graph) ValidatePhis() {
	for _, bb := range self.blocks {
		if bb != nil {
			for _, p := range bb.Phis {
				checkPhi(bb, p)
			}
		}
	}
}

func checkPhi(bb *BasicBlock, p *Inst) {
	seen := make(map[int]bool, len(p.Phi))
	preds := make(map[int]bool, len(bb.Preds))

	/* collect the predecessors */
	for _, v := range bb.Preds {
		if preds[v] {
			panic(fmt.Sprintf("ssa: duplicated predecessor bb_%d of bb_%d", v, bb.Id))
		} else {
			preds[v] = true
		}
	}

	/* every input must map to a distinct predecessor */
	for _, v := range p.Phi {
		if !preds[v.Pred] {
			panic(fmt.Sprintf("ssa: phi v%d in bb_%d has an input for non-predecessor bb_%d", p.Id, bb.Id, v.Pred))
		} else if seen[v.Pred] {
			panic(fmt.Sprintf("ssa: phi v%d in bb_%d has duplicated inputs for bb_%d", p.Id, bb.Id, v.Pred))
		} else if v.Value == nil {
			panic(fmt.Sprintf("ssa: phi v%d in bb_%d has a nil input for bb_%d", p.Id, bb.Id, v.Pred))
		} else {
			seen[v.Pred] = true
		}
	}

	/* and every predecessor must be covered */
	if len(seen) != len(preds) {
		panic(fmt.Sprintf("ssa: phi v%d in bb_%d has %d inputs for %d predecessors", p.Id, bb.Id, len(seen), len(preds)))
	}
}
