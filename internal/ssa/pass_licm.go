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
	`github.com/oleiade/lane`
)

// Licm hoists loop invariant instructions into loop preheaders. Loops are
// visited inner first, so whatever leaves an inner loop becomes a candidate
// for the enclosing one within the same run.
type Licm struct {
	g       *Graph
	opts    *opts.Options
	exits   Marker
	visited Marker
	hoisted bool
}

func NewLicm(o *opts.Options) *Licm {
	return &Licm{opts: o}
}

func (self *Licm) Apply(g *Graph) bool {
	return self.RunImpl(g)
}

// RunImpl returns true if at least one instruction was hoisted.
func (self *Licm) RunImpl(g *Graph) bool {
	self.g = g
	self.hoisted = false
	root := g.AnalyzeLoops()

	/* markers live for the whole run */
	self.exits = g.NewMarker()
	self.visited = g.NewMarker()
	self.markLoopExits()

	/* process the loop tree in post-order */
	self.visitLoops(root)
	g.EraseMarker(self.visited)
	g.EraseMarker(self.exits)
	return self.hoisted
}

// IsBlockLoopExit reports whether the block has a successor outside of its
// own loop. Only valid after RunImpl.
func (self *Licm) IsBlockLoopExit(bb *BasicBlock) bool {
	return bb.IsMarked(self.exits)
}

func (self *Licm) markLoopExits() {
	for _, bb := range self.g.Blocks() {
		lp := self.g.LoopOf(bb.Id)

		/* blocks in the root loop, or unreachable ones, never exit a loop */
		if lp == nil || lp.IsRoot {
			continue
		}

		/* check for successors that are not part of this loop */
		for _, s := range bb.Succs {
			if sl := self.g.LoopOf(s); sl == nil || !lp.Contains(sl) {
				bb.SetMarker(self.exits)
				break
			}
		}
	}
}

func (self *Licm) visitLoops(lp *Loop) {
	for _, v := range lp.Inner {
		self.visitLoops(v)
	}
	if !lp.IsRoot {
		self.VisitLoop(lp)
	}
}

// VisitLoop hoists all the eligible instructions out of a single loop.
func (self *Licm) VisitLoop(lp *Loop) {
	hdr := self.g.mustBlock(lp.Header)

	/* irreducible, try-catch and already processed loops are skipped */
	if lp.Irreducible || lp.TryCatch || hdr.IsMarked(self.visited) {
		return
	}

	/* get or create the preheader */
	var ph *BasicBlock
	hdr.SetMarker(self.visited)
	atomic.AddUint32(&LicmLoopCount, 1)

	/* synthesize one if needed */
	if lp.PreHeader >= 0 {
		ph = self.g.mustBlock(lp.PreHeader)
	} else {
		ph = self.g.CreatePreHeader(lp)
	}

	/* scan the blocks in reverse post-order */
	n := 0
	lv := newLoopInfo(self.g, lp)
	rpo := self.g.RPOIndex()
	bbs := append([]int(nil), lp.Blocks...)
	sort.Slice(bbs, func(i int, j int) bool { return rpo[bbs[i]] < rpo[bbs[j]] })

	/* hoist everything that is eligible */
	for _, id := range bbs {
		bb := self.g.mustBlock(id)
		ins := append([]*Inst(nil), bb.Insts...)

		/* try blocks are never touched */
		if bb.Try {
			continue
		}

		/* hoisted instructions are moved immediately, so the inputs of
		 * the following instructions see them as defined outside */
		for _, p := range ins {
			if !self.opts.CanHoist(n) {
				return
			}
			if self.isHoistable(lv, ph, p) {
				n++
				self.hoisted = true
				self.g.MoveInst(p, ph)
				atomic.AddUint32(&LicmHoistedCount, 1)
			}
		}
	}
}

type _LoopInfo struct {
	lp      *Loop
	exits   []int
	stores  bool
	gcpoint bool
}

func newLoopInfo(g *Graph, lp *Loop) *_LoopInfo {
	ret := &_LoopInfo{lp: lp}

	/* collect the exits and the memory effects */
	for _, id := range lp.AllBlocks() {
		bb := g.mustBlock(id)
		for _, s := range bb.Succs {
			if sl := g.LoopOf(s); sl == nil || !lp.Contains(sl) {
				ret.exits = append(ret.exits, id)
				break
			}
		}

		/* stores and calls invalidate the memory, runtime calls may move objects */
		for _, p := range bb.Insts {
			ret.stores = ret.stores || p.Is(FlagStore|FlagBarrier)
			ret.gcpoint = ret.gcpoint || p.Is(FlagRuntimeCall) || p.Op == OpSafePoint
		}
	}
	return ret
}

func (self *Licm) isInvariant(lp *Loop, p *Inst) bool {
	return !lp.Contains(self.g.LoopOf(p.block))
}

func (self *Licm) inputsInvariant(lp *Loop, p *Inst) bool {
	for _, v := range p.Inputs {
		if !self.isInvariant(lp, v) {
			return false
		}
	}
	return true
}

// instDominatesLoopExits reports whether the instruction executes on every
// path that leaves the loop.
func (self *Licm) instDominatesLoopExits(lv *_LoopInfo, p *Inst) bool {
	for _, id := range lv.exits {
		if !self.g.Dominates(p.block, id) {
			return false
		}
	}
	return true
}

func isNonNullObject(p *Inst) bool {
	switch p.Op {
	case OpNullCheck, OpNewObject, OpNewArray, OpLoadImmediate, OpLoadClass, OpLoadAndInitClass:
		return true
	default:
		return false
	}
}

// cannotTrap reports whether a division is known not to fault: floating
// point divisions never do, integer ones need a constant divisor other than
// 0 and -1.
func cannotTrap(p *Inst) bool {
	if !p.Is(FlagCanTrap) || p.Type == Float32 || p.Type == Float64 {
		return true
	} else if len(p.Inputs) != 2 || p.Inputs[1].Op != OpConstant {
		return false
	} else {
		return p.Inputs[1].Imm != 0 && p.Inputs[1].Imm != -1
	}
}

func (self *Licm) isHoistable(lv *_LoopInfo, ph *BasicBlock, p *Inst) bool {
	switch {
	case p.IsPhi() || p.IsTerminator():
		return false
	case p.Op == OpResolveVirtual:
		return self.isResolverHoistable(lv, ph, p)
	case p.Is(FlagNoHoist|FlagRuntimeCall) || !p.Is(FlagMovable):
		return false
	case !self.inputsInvariant(lv.lp, p):
		return false
	case p.Is(FlagLoad) && lv.stores:
		return false
	}

	/* dereferencing an object must not be speculated unless it can't be null */
	if p.Is(FlagDerefsObject) && len(p.Inputs) != 0 && !isNonNullObject(p.Inputs[0]) {
		if !self.instDominatesLoopExits(lv, p) {
			return false
		}
	}

	/* observable instructions must execute on every path out of the loop */
	if p.Is(FlagCanThrow|FlagCanDeoptimize|FlagRequireState) || !p.Is(FlagNoSideEffects) || !cannotTrap(p) {
		if !self.instDominatesLoopExits(lv, p) {
			return false
		}
	}

	/* moving objects must not stay alive across GC points in the loop */
	return p.Type != Reference || p.Is(FlagGCImmovable) || !lv.gcpoint
}

func (self *Licm) isResolverHoistable(lv *_LoopInfo, ph *BasicBlock, p *Inst) bool {
	if len(p.Inputs) != 2 || p.SaveState() == nil {
		return false
	}

	/* the object must be invariant, and the call must happen on every iteration */
	obj := p.Inputs[0]
	if !self.isInvariant(lv.lp, obj) || !self.instDominatesLoopExits(lv, p) {
		return false
	}

	/* find a state snapshot that can be used in the preheader */
	if ss := self.findResolverState(ph, obj); ss == nil {
		return false
	} else {
		p.SetSaveState(ss)
		return true
	}
}

func isStateBarrier(p *Inst) bool {
	switch p.Op {
	case OpInitClass, OpLoadAndInitClass:
		return true
	default:
		return p.Is(FlagRuntimeCall)
	}
}

// findResolverState walks backwards from the end of the preheader along the
// dominator tree, looking for a SaveState that records obj. Nothing that may
// trigger a GC, initialize a class or throw into a try region may lie between
// that SaveState and the preheader.
func (self *Licm) findResolverState(ph *BasicBlock, obj *Inst) *Inst {
	for bb := ph; bb != nil; {
		if bb.Try {
			return nil
		}

		/* scan the block backwards */
		for i := len(bb.Insts) - 1; i >= 0; i-- {
			switch p := bb.Insts[i]; {
			case p == obj:
				return nil
			case p.Op == OpSaveState && p.uses(obj):
				return p
			case isStateBarrier(p):
				return nil
			}
		}

		/* the definition of the object has been reached */
		if obj.block == bb.Id {
			return nil
		}

		/* move to the immediate dominator, checking the side paths as well */
		if id := self.g.IDom(bb.Id); id < 0 {
			return nil
		} else if next := self.g.mustBlock(id); !self.isRegionClean(next, bb) {
			return nil
		} else {
			bb = next
		}
	}
	return nil
}

// isRegionClean checks every block on a path from dom to bb, exclusive of
// both ends.
func (self *Licm) isRegionClean(dom *BasicBlock, bb *BasicBlock) bool {
	st := lane.NewStack()
	vis := map[int]bool{dom.Id: true, bb.Id: true}

	/* start from the predecessors of bb */
	for _, p := range bb.Preds {
		if !vis[p] {
			vis[p] = true
			st.Push(self.g.mustBlock(p))
		}
	}

	/* walk backwards until the dominator is reached */
	for !st.Empty() {
		cur := st.Pop().(*BasicBlock)
		if cur.Try {
			return false
		}

		/* nothing may disturb the state */
		for _, p := range cur.Insts {
			if isStateBarrier(p) {
				return false
			}
		}

		/* continue with the predecessors */
		for _, p := range cur.Preds {
			if !vis[p] {
				vis[p] = true
				st.Push(self.g.mustBlock(p))
			}
		}
	}
	return true
}
