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
	`github.com/oleiade/lane`
)

type _IterFrame struct {
	bb  *BasicBlock
	idx int
}

// BasicBlockIter walks the CFG depth-first from the start block, yielding
// blocks in post-order.
type BasicBlockIter struct {
	g *Graph
	b *BasicBlock
	s *lane.Stack
	v []bool
}

func newBasicBlockIter(g *Graph) *BasicBlockIter {
	ret := &BasicBlockIter{
		g: g,
		s: lane.NewStack(),
		v: make([]bool, g.Capacity()),
	}

	/* start from the entry */
	ret.v[StartBlock] = true
	ret.s.Push(&_IterFrame{bb: g.Start()})
	return ret
}

func (self *BasicBlockIter) Next() bool {
	var tail bool
	var this *_IterFrame

	/* scan until the stack is empty */
	for !self.s.Empty() {
		tail = true
		this = self.s.Head().(*_IterFrame)

		/* add the next unvisited successor */
		for this.idx < len(this.bb.Succs) {
			id := this.bb.Succs[this.idx]
			this.idx++

			/* skip visited blocks */
			if !self.v[id] {
				tail = false
				self.v[id] = true
				self.s.Push(&_IterFrame{bb: self.g.mustBlock(id)})
				break
			}
		}

		/* all the successors are visited, pop the current node */
		if tail {
			self.b = self.s.Pop().(*_IterFrame).bb
			return true
		}
	}

	/* clear the basic block pointer to indicate no more blocks */
	self.b = nil
	return false
}

func (self *BasicBlockIter) Block() *BasicBlock {
	return self.b
}

func (self *BasicBlockIter) ForEach(action func(bb *BasicBlock)) {
	for self.Next() {
		action(self.b)
	}
}

func (self *BasicBlockIter) Reversed() []*BasicBlock {
	ret := make([]*BasicBlock, 0, self.g.Capacity())

	/* dump all the blocks */
	for self.Next() {
		ret = append(ret, self.b)
	}

	/* reverse the order */
	blockreverse(ret)
	return ret
}

func blockreverse(s []*BasicBlock) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// PostOrder iterates over all reachable blocks in post-order.
func (self *Graph) PostOrder() *BasicBlockIter {
	return newBasicBlockIter(self)
}

// ReversePostOrder returns all reachable blocks in reverse post-order.
func (self *Graph) ReversePostOrder() []*BasicBlock {
	return newBasicBlockIter(self).Reversed()
}

func (self *Graph) computeRPO() []int {
	rpo := self.ReversePostOrder()
	ret := make([]int, len(rpo))

	/* only keep the ids */
	for i, bb := range rpo {
		ret[i] = bb.Id
	}
	return ret
}

// RPOIndex returns the position of every reachable block in reverse
// post-order, indexed by block id. Unreachable blocks map to -1.
func (self *Graph) RPOIndex() []int {
	self.ensureDom()
	ret := make([]int, self.Capacity())

	/* unreachable by default */
	for i := range ret {
		ret[i] = -1
	}

	/* fill the positions */
	for i, id := range self.rpo {
		ret[id] = i
	}
	return ret
}
