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

// ConditionChain is a short-circuit boolean expression lowered into a run of
// conditional blocks. Every block of the chain either leaves the chain
// towards the same block, or falls into the next block of the chain. The
// last block falls into the single predecessor successor instead.
//
//	 Begin
//	 /   \
//	|    B2
//	|   /  \
//	|  |   End
//	 \ |  /   \
//	 Multi    Single
type ConditionChain struct {
	Blocks                        []int
	MultiplePredecessorsSuccessor int
	SinglePredecessorSuccessor    int

	/* successor index of every block that leads to the multiple predecessors successor */
	exits []int

	/* index of the first instruction that belongs to the chain in the first block */
	split int
}

func (self *ConditionChain) Begin() int {
	return self.Blocks[0]
}

func (self *ConditionChain) End() int {
	return self.Blocks[len(self.Blocks)-1]
}

func (self *ConditionChain) Len() int {
	return len(self.Blocks)
}

func (self *ConditionChain) Contains(id int) bool {
	return intsContain(self.Blocks, id)
}

// ExitIndex returns the successor index of the i-th block that leads to the
// multiple predecessors successor.
func (self *ConditionChain) ExitIndex(i int) int {
	return self.exits[i]
}

// truncate returns the first n blocks of the chain. Block n becomes the
// single predecessor successor.
func (self *ConditionChain) truncate(n int) *ConditionChain {
	if n == len(self.Blocks) {
		return self
	}
	return &ConditionChain{
		Blocks:                        self.Blocks[:n:n],
		MultiplePredecessorsSuccessor: self.MultiplePredecessorsSuccessor,
		SinglePredecessorSuccessor:    self.Blocks[n],
		exits:                         self.exits[:n:n],
		split:                         self.split,
	}
}

func (self *ConditionChain) String() string {
	return fmt.Sprintf(
		"chain{%s -> multi=bb_%d single=bb_%d}",
		blockrefs(self.Blocks),
		self.MultiplePredecessorsSuccessor,
		self.SinglePredecessorSuccessor,
	)
}

// ConditionChainCache memoizes chains by their first block. It must be
// cleared whenever the CFG changes.
type ConditionChainCache struct {
	m map[int]*ConditionChain
}

func NewConditionChainCache() *ConditionChainCache {
	return &ConditionChainCache{m: make(map[int]*ConditionChain)}
}

func (self *ConditionChainCache) Get(id int) (*ConditionChain, bool) {
	ret, ok := self.m[id]
	return ret, ok
}

func (self *ConditionChainCache) Put(id int, cc *ConditionChain) {
	self.m[id] = cc
}

func (self *ConditionChainCache) Clear() {
	for k := range self.m {
		delete(self.m, k)
	}
}

// ConditionChainManager discovers condition chains whose computation is
// invariant in a given loop.
type ConditionChainManager struct {
	g     *Graph
	lp    *Loop
	cache *ConditionChainCache
}

func NewConditionChainManager(g *Graph, cache *ConditionChainCache) *ConditionChainManager {
	return &ConditionChainManager{g: g, cache: cache}
}

// SetLoop switches the manager to another loop, which drops the cache.
func (self *ConditionChainManager) SetLoop(lp *Loop) {
	self.lp = lp
	self.cache.Clear()
}

func (self *ConditionChainManager) inLoop(id int) bool {
	return self.g.LoopOf(id) == self.lp
}

func (self *ConditionChainManager) isInvariant(p *Inst) bool {
	return !self.lp.Contains(self.g.LoopOf(p.block))
}

func isChainInst(p *Inst) bool {
	switch {
	case p.Op == OpIf || p.Op == OpIfImm:
		return true
	case p.Is(FlagRequireState | FlagCanThrow | FlagCanDeoptimize | FlagCanTrap | FlagLoad | FlagDerefsObject):
		return false
	default:
		return p.Is(FlagNoSideEffects) && p.Is(FlagMovable)
	}
}

// chainSuffix returns the index of the first instruction of the longest
// suffix of bb that can be moved out of the loop, or -1 if the branch
// condition itself can't.
func (self *ConditionChainManager) chainSuffix(bb *BasicBlock) int {
	n := len(bb.Insts)
	s := n

	/* longest run of movable instructions */
	for s > 0 && isChainInst(bb.Insts[s-1]) {
		s--
	}

	/* shrink until every input is either invariant or part of the suffix */
	for s < n {
		ok := true
		in := make(map[*Inst]bool, n-s)

		/* check the inputs in order */
		for i := s; ok && i < n; i++ {
			for _, v := range bb.Insts[i].Inputs {
				if !in[v] && !self.isInvariant(v) {
					s, ok = i+1, false
					break
				}
			}
			in[bb.Insts[i]] = true
		}

		/* the suffix is stable */
		if ok {
			return s
		}
	}

	/* not even the terminator can be moved */
	return -1
}

// isChainBlock checks if bb can continue a chain after prev, leaving the
// chain towards mid.
func (self *ConditionChainManager) isChainBlock(bb *BasicBlock, prev *BasicBlock, mid int, blocks []int) bool {
	switch {
	case !self.inLoop(bb.Id) || bb.Id == self.lp.Header || bb.Try:
		return false
	case len(bb.Preds) != 1 || bb.Preds[0] != prev.Id || len(bb.Phis) != 0:
		return false
	case !bb.IsConditional() || !bb.HasSucc(mid) || intsContain(blocks, bb.Id):
		return false
	case bb.Succs[0] == bb.Succs[1]:
		return false
	}

	/* every instruction must be movable, with inputs from outside of the loop or the chain */
	for _, p := range bb.Insts {
		if !isChainInst(p) {
			return false
		}
		for _, v := range p.Inputs {
			if !self.isInvariant(v) && !intsContain(blocks, v.block) && v.block != bb.Id {
				return false
			}
		}
	}
	return true
}

func (self *ConditionChainManager) walk(bb *BasicBlock, mid int, split int) *ConditionChain {
	cc := &ConditionChain{
		Blocks:                        []int{bb.Id},
		MultiplePredecessorsSuccessor: mid,
		exits:                         []int{bb.SuccIndex(mid)},
		split:                         split,
	}

	/* follow the other successor */
	prev := bb
	next := bb.Succs[1-cc.exits[0]]

	/* extend as far as possible */
	for {
		nb := self.g.mustBlock(next)
		if !self.isChainBlock(nb, prev, mid, cc.Blocks) {
			break
		}

		/* add to chain */
		ei := nb.SuccIndex(mid)
		cc.Blocks = append(cc.Blocks, nb.Id)
		cc.exits = append(cc.exits, ei)
		prev, next = nb, nb.Succs[1-ei]
	}

	/* the block after the last one */
	cc.SinglePredecessorSuccessor = next
	return cc
}

// FindConditionChain returns the longest chain that starts with bb, or nil
// if there is none.
func (self *ConditionChainManager) FindConditionChain(bb *BasicBlock) *ConditionChain {
	if cc, ok := self.cache.Get(bb.Id); ok {
		return cc
	}

	/* compute and cache */
	cc := self.findConditionChain(bb)
	self.cache.Put(bb.Id, cc)
	return cc
}

func (self *ConditionChainManager) findConditionChain(bb *BasicBlock) *ConditionChain {
	if !self.inLoop(bb.Id) || bb.Try || !bb.IsConditional() || bb.Succs[0] == bb.Succs[1] {
		return nil
	}

	/* the branch condition must be invariant */
	split := self.chainSuffix(bb)
	if split < 0 {
		return nil
	}

	/* try both directions, and keep the longest */
	var cc *ConditionChain
	for _, mid := range bb.Succs {
		if v := self.walk(bb, mid, split); v.Len() > 1 && (cc == nil || v.Len() > cc.Len()) {
			cc = v
		}
	}

	/* a single block, the successor with more predecessors is the merge point */
	if cc == nil {
		mid := bb.Succs[0]
		if len(self.g.mustBlock(bb.Succs[1]).Preds) > len(self.g.mustBlock(mid).Preds) {
			mid = bb.Succs[1]
		}
		cc = &ConditionChain{
			Blocks:                        []int{bb.Id},
			MultiplePredecessorsSuccessor: mid,
			SinglePredecessorSuccessor:    bb.Succs[0] + bb.Succs[1] - mid,
			exits:                         []int{bb.SuccIndex(mid)},
			split:                         split,
		}
	}

	/* validate the chain */
	if self.isAcceptable(cc) {
		return cc
	} else {
		return nil
	}
}

func (self *ConditionChainManager) isAcceptable(cc *ConditionChain) bool {
	hdr := self.lp.Header
	first := self.g.mustBlock(cc.Begin())

	/* the header must stay in the loop, and so does everything the chain merges into */
	switch {
	case cc.MultiplePredecessorsSuccessor == hdr || cc.SinglePredecessorSuccessor == hdr:
		return false
	case cc.Begin() == hdr && !needsSplit(first, cc):
		return false
	}

	/* a chain of selectors would be hoisted over and over again */
	for _, id := range cc.Blocks {
		if !self.isSelector(self.g.mustBlock(id)) {
			return true
		}
	}
	return false
}

// isSelector recognizes the blocks synthesized by hoisting a chain, which
// branch on a phi of constants defined outside of the loop.
func (self *ConditionChainManager) isSelector(bb *BasicBlock) bool {
	if len(bb.Insts) != 1 || len(bb.Phis) != 0 {
		return false
	}

	/* must be a single test against zero */
	tr := bb.Insts[0]
	if tr.Op != OpIfImm || tr.Cc != CcNe || tr.Imm != 0 || !tr.Inputs[0].IsPhi() || !self.isInvariant(tr.Inputs[0]) {
		return false
	}

	/* on a phi of constants */
	for _, v := range tr.Inputs[0].Phi {
		if v.Value.Op != OpConstant {
			return false
		}
	}
	return true
}

func needsSplit(bb *BasicBlock, cc *ConditionChain) bool {
	return len(bb.Phis) != 0 || cc.split != 0
}
