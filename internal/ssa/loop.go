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
	`sort`

	`gonum.org/v1/gonum/graph/simple`
	`gonum.org/v1/gonum/graph/topo`
)

// Loop is a node of the loop forest. The root loop is implicit: it has no
// header and owns every block that is not part of a real loop.
type Loop struct {
	Id          int
	Header      int
	PreHeader   int
	BackEdges   []int
	Blocks      []int
	Inner       []*Loop
	Outer       *Loop
	IsRoot      bool
	Irreducible bool
	TryCatch    bool
}

func (self *Loop) String() string {
	if self.IsRoot {
		return "loop_root"
	} else {
		return fmt.Sprintf("loop_%d(bb_%d)", self.Id, self.Header)
	}
}

// Contains reports whether other is self or nested in self.
func (self *Loop) Contains(other *Loop) bool {
	for p := other; p != nil; p = p.Outer {
		if p == self {
			return true
		}
	}
	return false
}

// AllBlocks returns the blocks of this loop and of all its inner loops.
func (self *Loop) AllBlocks() []int {
	ret := append([]int(nil), self.Blocks...)
	for _, v := range self.Inner {
		ret = append(ret, v.AllBlocks()...)
	}
	return ret
}

// Depth returns the nesting depth, the root loop being 0.
func (self *Loop) Depth() int {
	n := 0
	for p := self.Outer; p != nil; p = p.Outer {
		n++
	}
	return n
}

// AnalyzeLoops rebuilds the loop forest. Strongly connected components are
// found with Tarjan's algorithm, inner loops by removing the back edges of
// the enclosing header and searching again.
func (self *Graph) AnalyzeLoops() *Loop {
	rpo := self.RPOIndex()
	self.loops = nil
	self.bloop = make([]*Loop, self.Capacity())
	self.root = self.newLoop(nil, -1)
	self.root.IsRoot = true

	/* collect all the reachable blocks */
	all := make([]int, 0, len(self.rpo))
	all = append(all, self.rpo...)

	/* everything belongs to the root loop by default */
	for _, id := range all {
		self.bloop[id] = self.root
	}

	/* search for the loops */
	self.findLoops(self.root, all, rpo)
	self.populateBlocks()
	self.loopok = true
	return self.root
}

func (self *Graph) newLoop(outer *Loop, header int) *Loop {
	lp := &Loop{
		Id:        len(self.loops),
		Header:    header,
		PreHeader: -1,
		Outer:     outer,
	}
	self.loops = append(self.loops, lp)
	return lp
}

func (self *Graph) findLoops(parent *Loop, members []int, rpo []int) {
	dg := simple.NewDirectedGraph()
	in := make(map[int]bool, len(members))
	selfloop := make(map[int]bool)

	/* add all the nodes */
	for _, id := range members {
		in[id] = true
		dg.AddNode(simple.Node(id))
	}

	/* add the edges, except the ones that go back to the enclosing header */
	for _, id := range members {
		for _, s := range self.blocks[id].Succs {
			if !in[s] || s == parent.Header {
				continue
			} else if s == id {
				selfloop[id] = true
			} else if !dg.HasEdgeFromTo(int64(id), int64(s)) {
				dg.SetEdge(dg.NewEdge(simple.Node(id), simple.Node(s)))
			}
		}
	}

	/* find all the strongly connected components */
	var sccs [][]int
	for _, c := range topo.TarjanSCC(dg) {
		ids := make([]int, len(c))
		for i, v := range c {
			ids[i] = int(v.ID())
		}

		/* a single block is a loop only if it branches to itself */
		if len(ids) > 1 || selfloop[ids[0]] {
			sort.Slice(ids, func(i int, j int) bool { return rpo[ids[i]] < rpo[ids[j]] })
			sccs = append(sccs, ids)
		}
	}

	/* make the order deterministic */
	sort.Slice(sccs, func(i int, j int) bool {
		return rpo[sccs[i][0]] < rpo[sccs[j][0]]
	})

	/* build every loop */
	for _, ids := range sccs {
		self.buildLoop(parent, ids, rpo)
	}
}

func (self *Graph) buildLoop(parent *Loop, ids []int, rpo []int) {
	in := make(map[int]bool, len(ids))
	entries := make([]int, 0, 1)

	/* mark the members */
	for _, id := range ids {
		in[id] = true
	}

	/* find the entry blocks */
	for _, id := range ids {
		for _, p := range self.blocks[id].Preds {
			if !in[p] && rpo[p] >= 0 {
				entries = append(entries, id)
				break
			}
		}
	}

	/* the first block in RPO is the header of an irreducible loop */
	header := ids[0]
	if len(entries) == 1 {
		header = entries[0]
	}

	/* create the loop */
	lp := self.newLoop(parent, header)
	lp.Irreducible = len(entries) != 1
	parent.Inner = append(parent.Inner, lp)

	/* the header must dominate the whole loop */
	for _, id := range ids {
		if !self.Dominates(header, id) {
			lp.Irreducible = true
		}
		if self.blocks[id].Try {
			lp.TryCatch = true
		}
		self.bloop[id] = lp
	}

	/* find all the back edges */
	for _, p := range self.blocks[header].Preds {
		if in[p] {
			lp.BackEdges = append(lp.BackEdges, p)
		}
	}

	/* irreducible loops are not analyzed any further */
	if !lp.Irreducible {
		self.findLoops(lp, ids, rpo)
		lp.PreHeader = self.findPreHeader(lp)
	}
}

func (self *Graph) populateBlocks() {
	for _, id := range self.rpo {
		lp := self.bloop[id]
		lp.Blocks = append(lp.Blocks, id)
	}
}

func (self *Graph) forwardPreds(lp *Loop) []int {
	var ret []int
	hdr := self.blocks[lp.Header]

	/* every predecessor that is not a back edge */
	for _, p := range hdr.Preds {
		if !intsContain(lp.BackEdges, p) {
			ret = append(ret, p)
		}
	}
	return ret
}

func (self *Graph) findPreHeader(lp *Loop) int {
	fwd := self.forwardPreds(lp)

	/* must have exactly one forward predecessor */
	if len(fwd) != 1 || fwd[0] == StartBlock {
		return -1
	}

	/* which does nothing but falling through into the header */
	if bb := self.blocks[fwd[0]]; len(bb.Succs) != 1 || bb.Terminator() != nil {
		return -1
	} else {
		return bb.Id
	}
}

// RootLoop returns the root of the loop forest, analyzing loops if needed.
func (self *Graph) RootLoop() *Loop {
	if !self.loopok {
		self.AnalyzeLoops()
	}
	return self.root
}

// LoopOf returns the innermost loop that owns the block.
func (self *Graph) LoopOf(id int) *Loop {
	if !self.loopok {
		self.AnalyzeLoops()
	}
	if id < 0 || id >= len(self.bloop) {
		return nil
	} else {
		return self.bloop[id]
	}
}

// Loops returns every loop of the forest, the root loop first.
func (self *Graph) Loops() []*Loop {
	if !self.loopok {
		self.AnalyzeLoops()
	}
	return self.loops
}

// IsLoopHeader reports whether the block is the header of a loop.
func (self *Graph) IsLoopHeader(id int) bool {
	lp := self.LoopOf(id)
	return lp != nil && !lp.IsRoot && lp.Header == id
}

// setBlockLoop registers a block that was created after the analysis.
func (self *Graph) setBlockLoop(id int, lp *Loop) {
	for len(self.bloop) <= id {
		self.bloop = append(self.bloop, nil)
	}
	self.bloop[id] = lp
	lp.Blocks = append(lp.Blocks, id)
}

// CreatePreHeader synthesizes a preheader for the loop, a block with the
// header as its only successor, which becomes the only forward predecessor
// of the header. The new block belongs to the enclosing loop.
func (self *Graph) CreatePreHeader(lp *Loop) *BasicBlock {
	var ph *BasicBlock
	hdr := self.blocks[lp.Header]
	fwd := self.forwardPreds(lp)

	/* a single forward edge can simply be split */
	if len(fwd) == 0 {
		panic("ssa: loop header without a forward predecessor: " + lp.String())
	} else if len(fwd) == 1 {
		ph = self.InsertBlockOnEdge(self.blocks[fwd[0]], hdr)
	} else {
		ph = self.mergeForwardEdges(hdr, fwd)
	}

	/* register the new block */
	lp.PreHeader = ph.Id
	self.setBlockLoop(ph.Id, lp.Outer)
	return ph
}

func (self *Graph) mergeForwardEdges(hdr *BasicBlock, fwd []int) *BasicBlock {
	ph := self.NewBlock()
	ph.Succs = []int{hdr.Id}
	fwd = uniqueInts(fwd)

	/* merge the values flowing in from the forward edges */
	for _, v := range hdr.Phis {
		val := v.PhiInput(fwd[0])
		uniform := true

		/* check if all the inputs are the same */
		for _, p := range fwd[1:] {
			if v.PhiInput(p) != val {
				uniform = false
				break
			}
		}

		/* different values require a new phi in the preheader */
		if !uniform {
			np := self.NewInst(OpPhi, v.Type)
			for _, p := range fwd {
				np.SetPhiInput(p, v.PhiInput(p))
			}
			self.AppendInst(ph, np)
			val = np
		}

		/* replace the forward inputs with the merged one */
		for _, p := range fwd {
			v.RemovePhiInput(p)
		}
		v.SetPhiInput(ph.Id, val)
	}

	/* redirect the forward edges to the preheader, a block may have several */
	for _, p := range fwd {
		pb := self.blocks[p]
		for i, s := range pb.Succs {
			if s == hdr.Id {
				pb.Succs[i] = ph.Id
				ph.Preds = append(ph.Preds, p)
			}
		}
	}

	/* the first forward edge is replaced by the preheader, the rest are removed */
	merged := false
	preds := hdr.Preds[:0]
	for _, p := range hdr.Preds {
		if !intsContain(fwd, p) {
			preds = append(preds, p)
		} else if !merged {
			merged = true
			preds = append(preds, ph.Id)
		}
	}

	/* update the predecessors */
	hdr.Preds = preds
	self.invalidateDom()
	return ph
}

func uniqueInts(s []int) []int {
	ret := make([]int, 0, len(s))
	for _, v := range s {
		if !intsContain(ret, v) {
			ret = append(ret, v)
		}
	}
	return ret
}

func intsContain(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
