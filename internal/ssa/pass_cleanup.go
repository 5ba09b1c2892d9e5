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

// Cleanup removes unreachable blocks, dead instructions and empty blocks,
// and merges blocks connected by a single edge. It runs until the graph
// stops changing.
type Cleanup struct{}

func (Cleanup) Apply(g *Graph) bool {
	rt := false
	for {
		done := true
		done = !removeUnreachable(g) && done
		done = !removeDeadCode(g) && done
		done = !removeEmptyBlocks(g) && done
		done = !mergeBlocks(g) && done

		/* retry until nothing changes */
		if done {
			break
		} else {
			rt = true
		}
	}

	/* the loop forest is stale */
	if rt {
		g.InvalidateLoops()
	}
	return rt
}

func removeUnreachable(g *Graph) bool {
	rt := false
	for _, bb := range g.Blocks() {
		if bb.Id != StartBlock && bb.Id != EndBlock && !g.IsReachable(bb.Id) {
			rt = true
			g.RemoveBlock(bb)
		}
	}
	return rt
}

func isDeadCodeRoot(p *Inst) bool {
	return p.IsTerminator() || p.Op == OpParameter || !p.Is(FlagNoSideEffects)
}

// removeDeadCode marks everything reachable from the roots through the
// inputs, and removes the rest.
func removeDeadCode(g *Graph) bool {
	rt := false
	wl := lane.NewQueue()
	live := make(map[*Inst]bool)

	/* Phase 1: Mark all the roots */
	g.ForEachInst(func(p *Inst) {
		if isDeadCodeRoot(p) {
			live[p] = true
			wl.Enqueue(p)
		}
	})

	/* Phase 2: Propagate through the inputs */
	for !wl.Empty() {
		p := wl.Dequeue().(*Inst)
		for _, v := range g.inputsOf(p) {
			if !live[v] {
				live[v] = true
				wl.Enqueue(v)
			}
		}
	}

	/* Phase 3: Remove everything else */
	for _, bb := range g.Blocks() {
		for _, p := range append(append([]*Inst(nil), bb.Phis...), bb.Insts...) {
			if !live[p] {
				rt = true
				g.RemoveInst(p)
			}
		}
	}
	return rt
}

func (self *Graph) inputsOf(p *Inst) []*Inst {
	if !p.IsPhi() {
		return p.Inputs
	}

	/* phi values */
	ret := make([]*Inst, len(p.Phi))
	for i, v := range p.Phi {
		ret[i] = v.Value
	}
	return ret
}

func canRemoveEmptyBlock(g *Graph, bb *BasicBlock) bool {
	if bb.Id == StartBlock || bb.Id == EndBlock || !bb.IsEmpty() || len(bb.Succs) != 1 {
		return false
	}

	/* self loops and try boundaries are left alone */
	s := g.mustBlock(bb.Succs[0])
	if s.Id == bb.Id || s.Try != bb.Try {
		return false
	}

	/* preheaders are kept */
	for _, p := range s.Preds {
		if g.Dominates(s.Id, p) {
			return false
		}
	}

	/* the values of a phi can't be duplicated along several edges */
	if len(s.Phis) != 0 && len(bb.Preds) != 1 {
		return false
	}

	/* must not create parallel edges */
	for i, p := range bb.Preds {
		if s.HasPred(p) || intsContain(bb.Preds[i+1:], p) {
			return false
		}
	}
	return true
}

func removeEmptyBlocks(g *Graph) bool {
	rt := false
	for _, bb := range g.Blocks() {
		if !canRemoveEmptyBlock(g, bb) {
			continue
		}

		/* redirect the predecessors */
		rt = true
		s := g.mustBlock(bb.Succs[0])
		i := s.PredIndex(bb.Id)

		/* the first one takes the position of the empty block */
		for j, p := range bb.Preds {
			pb := g.mustBlock(p)
			pb.Succs[pb.SuccIndex(bb.Id)] = s.Id

			/* the rest are appended */
			if j == 0 {
				s.Preds[i] = p
			} else {
				s.Preds = append(s.Preds, p)
			}
		}

		/* there is at most one predecessor if there are phis */
		if len(bb.Preds) == 1 {
			for _, v := range s.Phis {
				v.RenamePhiPred(bb.Id, bb.Preds[0])
			}
		}

		/* detach and remove the block */
		bb.Preds = nil
		bb.Succs = nil
		g.RemoveBlock(bb)
	}
	return rt
}

func mergeBlocks(g *Graph) bool {
	rt := false
	for _, bb := range g.Blocks() {
		if g.Block(bb.Id) == nil || bb.Id == StartBlock || bb.Id == EndBlock || bb.Terminator() != nil || len(bb.Succs) != 1 {
			continue
		}

		/* the successor must have only this block as predecessor */
		s := g.mustBlock(bb.Succs[0])
		if s.Id == EndBlock || s.Id == bb.Id || s.Try != bb.Try || len(s.Preds) != 1 {
			continue
		}

		/* phis with a single input are replaced by the input */
		rt = true
		for _, v := range s.Phis {
			v.block = -1
			g.ReplaceUsers(v, v.Phi[0].Value)
		}

		/* move the instructions */
		for _, v := range s.Insts {
			v.block = bb.Id
		}

		/* update the successors */
		for _, t := range s.Succs {
			tb := g.mustBlock(t)
			for i, p := range tb.Preds {
				if p == s.Id {
					tb.Preds[i] = bb.Id
				}
			}
			for _, v := range tb.Phis {
				v.RenamePhiPred(s.Id, bb.Id)
			}
		}

		/* take over the contents */
		bb.Insts = append(bb.Insts, s.Insts...)
		bb.Succs = s.Succs
		s.Phis, s.Insts, s.Preds, s.Succs = nil, nil, nil, nil
		g.RemoveBlock(s)
	}
	return rt
}
