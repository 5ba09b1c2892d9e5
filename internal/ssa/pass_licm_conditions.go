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
	`sort`
	`sync/atomic`

	`github.com/cloudwego/pandajit/internal/opts`
)

// LicmConditions hoists loop invariant condition chains out of loops. The
// chain is evaluated once before the loop, its outcome is recorded in a
// boolean phi, and a single selector block inside the loop branches on it.
//
//	before:                        after:
//
//	   ph                            ph
//	   |                             |
//	   H <---+                       B1 ---+
//	   |     |                       |     |
//	   B1 ---|---+                   B2 ---+
//	   |     |   |                   |     |
//	   B2 ---|---+                   F --> J [phi 1/0]
//	   |     |   |                         |
//	   S     |   M                         H <---+
//	                                       |     |
//	                                       N (phi != 0)
//	                                      / \
//	                                     M   S
type LicmConditions struct {
	g         *Graph
	opts      *opts.Options
	cache     *ConditionChainCache
	users     map[*Inst][]*Inst
	processed Marker
	hoisted   bool
}

func NewLicmConditions(o *opts.Options) *LicmConditions {
	return &LicmConditions{
		opts:  o,
		cache: NewConditionChainCache(),
	}
}

func (self *LicmConditions) Apply(g *Graph) bool {
	return self.RunImpl(g)
}

// RunImpl returns true if at least one chain was hoisted.
func (self *LicmConditions) RunImpl(g *Graph) bool {
	self.g = g
	self.hoisted = false
	self.processed = g.NewMarker()

	/* loop objects are rebuilt after every change, so remember the headers */
	var hdrs []int
	collectHeaders(g.AnalyzeLoops(), &hdrs)

	/* inner loops first */
	mgr := NewConditionChainManager(g, self.cache)
	for _, h := range hdrs {
		self.visitLoop(mgr, h)
	}

	/* clean up */
	self.users = nil
	self.cache.Clear()
	g.EraseMarker(self.processed)
	return self.hoisted
}

func collectHeaders(lp *Loop, hdrs *[]int) {
	for _, v := range lp.Inner {
		collectHeaders(v, hdrs)
	}
	if !lp.IsRoot {
		*hdrs = append(*hdrs, lp.Header)
	}
}

func (self *LicmConditions) visitLoop(mgr *ConditionChainManager, hdr int) {
	nr := -1

	/* one chain per round, the merge phis of previous rounds may join new chains */
	for i := 0; nr < 0 || i < nr; i++ {
		lp := self.g.LoopOf(hdr)

		/* the loop must still be there, and be a reducible one */
		if lp == nil || lp.IsRoot || lp.Header != hdr || lp.Irreducible || lp.TryCatch {
			return
		}

		/* the number of rounds is determined by the initial size of the loop */
		if nr < 0 {
			nr = self.opts.CondRounds(len(lp.AllBlocks()))
		}

		/* find the best chain */
		mgr.SetLoop(lp)
		cc := self.selectChain(mgr, lp)

		/* nothing more to do */
		if cc == nil {
			return
		}

		/* hoist the chain, and rebuild the loop forest */
		self.hoistChain(lp, cc)
		self.hoisted = true
		atomic.AddUint32(&CondChainCount, 1)
		self.g.AnalyzeLoops()
	}
}

func (self *LicmConditions) collectUsers() map[*Inst][]*Inst {
	ret := make(map[*Inst][]*Inst)
	self.g.ForEachInst(func(p *Inst) {
		for _, v := range p.Inputs {
			ret[v] = append(ret[v], p)
		}
		for _, v := range p.Phi {
			ret[v.Value] = append(ret[v.Value], p)
		}
	})
	return ret
}

// selectChain returns the longest chain in the loop that can be hoisted,
// possibly truncated.
func (self *LicmConditions) selectChain(mgr *ConditionChainManager, lp *Loop) *ConditionChain {
	var chains []*ConditionChain
	rpo := self.g.RPOIndex()
	bbs := append([]int(nil), lp.Blocks...)

	/* discover chains in reverse post-order */
	sort.Slice(bbs, func(i int, j int) bool { return rpo[bbs[i]] < rpo[bbs[j]] })
	for _, id := range bbs {
		if bb := self.g.mustBlock(id); !bb.IsMarked(self.processed) {
			if cc := mgr.FindConditionChain(bb); cc != nil {
				chains = append(chains, cc)
			}
		}
	}

	/* longest first, ties broken by position */
	self.users = self.collectUsers()
	sort.SliceStable(chains, func(i int, j int) bool { return chains[i].Len() > chains[j].Len() })

	/* the longest prefix that keeps the graph in SSA form wins */
	for _, cc := range chains {
		for n := cc.Len(); n > 0; n-- {
			if v := cc.truncate(n); mgr.isAcceptable(v) && self.isChainHoistable(lp, v) {
				return v
			}
		}
	}
	return nil
}

// isChainHoistable checks that every value defined by or flowing out of the
// chain still dominates its uses once the chain runs before the loop.
func (self *LicmConditions) isChainHoistable(lp *Loop, cc *ConditionChain) bool {
	rest := cc.Blocks[1:]
	first := self.g.mustBlock(cc.Begin())
	mid := self.g.mustBlock(cc.MultiplePredecessorsSuccessor)
	single := self.g.mustBlock(cc.SinglePredecessorSuccessor)

	/* values defined after the first block only dominate the rest of the chain */
	inner := func(v *Inst) bool {
		return intsContain(rest, v.block)
	}

	/* values that are available in the join block */
	outside := func(v *Inst) bool {
		if v.block == first.Id {
			return !v.IsPhi() && first.instIndex(v) >= cc.split
		} else {
			return intsContain(rest, v.block) || !lp.Contains(self.g.LoopOf(v.block))
		}
	}

	/* the rest of the chain can only be used by itself, or by the merge phis along the chain edges */
	for _, id := range rest {
		for _, p := range self.g.mustBlock(id).Insts {
			for _, u := range self.users[p] {
				if !u.IsPhi() {
					if !inner(u) {
						return false
					}
				} else if u.block != mid.Id {
					return false
				} else {
					for _, v := range u.Phi {
						if v.Value == p && !cc.Contains(v.Pred) {
							return false
						}
					}
				}
			}
		}
	}

	/* phis in the multiple predecessors successor are either uniform or hoisted */
	for _, p := range mid.Phis {
		vals := chainPhiInputs(p, cc)
		if !isUniform(vals) {
			for _, v := range vals {
				if !outside(v) {
					return false
				}
			}
		} else if inner(vals[0]) {
			return false
		}
	}

	/* the value from the last block now flows from the selector */
	for _, p := range single.Phis {
		if inner(p.PhiInput(cc.End())) {
			return false
		}
	}
	return true
}

func chainPhiInputs(p *Inst, cc *ConditionChain) []*Inst {
	ret := make([]*Inst, cc.Len())
	for i, id := range cc.Blocks {
		ret[i] = p.PhiInput(id)
	}
	return ret
}

func isUniform(vals []*Inst) bool {
	for _, v := range vals[1:] {
		if v != vals[0] {
			return false
		}
	}
	return true
}

func (self *LicmConditions) preheaderOf(lp *Loop) *BasicBlock {
	if lp.PreHeader >= 0 {
		return self.g.mustBlock(lp.PreHeader)
	} else {
		return self.g.CreatePreHeader(lp)
	}
}

// splitChainFirstBlock moves the chain part of the first block into a new
// block, leaving the phis and everything else in place.
func (self *LicmConditions) splitChainFirstBlock(cc *ConditionChain) *ConditionChain {
	bb := self.g.mustBlock(cc.Begin())
	if !needsSplit(bb, cc) {
		return cc
	}

	/* the chain now starts with the new block */
	nb := self.g.SplitBlockAt(bb, cc.split)
	ret := *cc
	ret.split = 0
	ret.Blocks = append([]int{nb.Id}, cc.Blocks[1:]...)
	return &ret
}

// adjustPredecessorEdges redirects all the incoming edges of bb to sel.
func (self *LicmConditions) adjustPredecessorEdges(bb *BasicBlock, sel *BasicBlock) {
	for _, p := range bb.Preds {
		pb := self.g.mustBlock(p)
		for i, s := range pb.Succs {
			if s == bb.Id {
				pb.Succs[i] = sel.Id
			}
		}
	}

	/* move the list as well */
	sel.Preds = bb.Preds
	bb.Preds = nil
}

func (self *LicmConditions) hoistChain(lp *Loop, cc *ConditionChain) {
	g := self.g
	ph := self.preheaderOf(lp)
	hdr := g.mustBlock(lp.Header)
	cc = self.splitChainFirstBlock(cc)

	/* the blocks around the chain */
	n := cc.Len()
	end := g.mustBlock(cc.End())
	mid := g.mustBlock(cc.MultiplePredecessorsSuccessor)
	single := g.mustBlock(cc.SinglePredecessorSuccessor)

	/* the selector, the join block and the fall-through block */
	sel := g.NewBlock()
	join := g.NewBlock()
	fall := g.NewBlock()

	/* the selector replaces the chain inside the loop */
	first := g.mustBlock(cc.Begin())
	self.adjustPredecessorEdges(first, sel)

	/* the chain runs before the loop, the join block is the new preheader */
	g.ReplacePred(hdr, ph, join)
	g.AddEdge(ph, first)

	/* the outcome of the chain */
	one := g.FindOrCreateConstant(1, Bool)
	zero := g.FindOrCreateConstant(0, Bool)
	flag := g.NewInst(OpPhi, Bool)

	/* merge phis, the uniform ones need no hoisting */
	vals := make([]*Inst, len(mid.Phis))
	hoist := make([]*Inst, len(mid.Phis))
	for i, p := range mid.Phis {
		if in := chainPhiInputs(p, cc); isUniform(in) {
			vals[i] = in[0]
		} else {
			hoist[i] = g.NewInst(OpPhi, p.Type)
			vals[i] = hoist[i]
		}
	}

	/* every exit towards the merge point now leads to the join block */
	for i, id := range cc.Blocks {
		bb := g.mustBlock(id)
		bb.Succs[cc.ExitIndex(i)] = join.Id
		join.Preds = append(join.Preds, id)
		flag.SetPhiInput(id, one)

		/* values flowing out of this block */
		for j, p := range hoist {
			if p != nil {
				p.SetPhiInput(id, mid.Phis[j].PhiInput(id))
			}
		}
	}

	/* the last block falls through into the join block as well */
	end.Succs[1-cc.ExitIndex(n-1)] = fall.Id
	fall.Preds = []int{end.Id}
	fall.Succs = []int{join.Id}
	join.Preds = append(join.Preds, fall.Id)
	join.Succs = []int{hdr.Id}
	flag.SetPhiInput(fall.Id, zero)

	/* the hoisted phis are never used along this edge */
	for j, p := range hoist {
		if p != nil {
			p.SetPhiInput(fall.Id, mid.Phis[j].PhiInput(end.Id))
		}
	}

	/* add the phis to the join block */
	g.AppendInst(join, flag)
	for _, p := range hoist {
		if p != nil {
			g.AppendInst(join, p)
		}
	}

	/* update the successors */
	self.updateMultiplePredecessorsSuccessor(cc, mid, sel, vals)
	self.updateSinglePredecessorSuccessor(end, single, sel)

	/* the selector branches on the outcome */
	br := g.NewInst(OpIfImm, NoType, flag)
	br.Cc = CcNe
	br.Imm = 0
	sel.Succs = []int{mid.Id, single.Id}
	g.AppendInst(sel, br)

	/* the chain has been processed */
	for _, id := range cc.Blocks {
		g.mustBlock(id).SetMarker(self.processed)
	}

	/* the CFG has changed */
	self.cache.Clear()
	g.invalidateDom()
	g.InvalidateLoops()
}

// updateMultiplePredecessorsSuccessor replaces all the chain edges with a
// single edge from the selector, which takes the position of the first one.
func (self *LicmConditions) updateMultiplePredecessorsSuccessor(cc *ConditionChain, mid *BasicBlock, sel *BasicBlock, vals []*Inst) {
	done := false
	preds := make([]int, 0, len(mid.Preds))

	/* rebuild the predecessor list */
	for _, p := range mid.Preds {
		if !cc.Contains(p) {
			preds = append(preds, p)
		} else if !done {
			done = true
			preds = append(preds, sel.Id)
		}
	}

	/* and the phis */
	mid.Preds = preds
	for i, p := range mid.Phis {
		for _, id := range cc.Blocks {
			p.RemovePhiInput(id)
		}
		p.SetPhiInput(sel.Id, vals[i])
	}
}

func (self *LicmConditions) updateSinglePredecessorSuccessor(end *BasicBlock, single *BasicBlock, sel *BasicBlock) {
	single.Preds[single.PredIndex(end.Id)] = sel.Id
	for _, p := range single.Phis {
		p.RenamePhiPred(end.Id, sel.Id)
	}
}
