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

const (
	StartBlock = 0
	EndBlock   = 1
)

type BasicBlock struct {
	Id    int
	Preds []int
	Succs []int
	Phis  []*Inst
	Insts []*Inst
	Try   bool

	markers _MarkerSet
}

func (self *BasicBlock) String() string {
	return fmt.Sprintf("bb_%d", self.Id)
}

// Terminator returns the last instruction of the block if it ends the
// block, or nil if the block falls through to its single successor.
func (self *BasicBlock) Terminator() *Inst {
	if n := len(self.Insts); n == 0 || !self.Insts[n-1].IsTerminator() {
		return nil
	} else {
		return self.Insts[n-1]
	}
}

// IsConditional reports whether the block ends with a two-way branch.
func (self *BasicBlock) IsConditional() bool {
	if tr := self.Terminator(); tr == nil {
		return false
	} else {
		return tr.Op == OpIf || tr.Op == OpIfImm
	}
}

func (self *BasicBlock) IsEmpty() bool {
	return len(self.Phis) == 0 && len(self.Insts) == 0
}

func (self *BasicBlock) TrueSucc() int {
	return self.Succs[0]
}

func (self *BasicBlock) FalseSucc() int {
	return self.Succs[1]
}

func (self *BasicBlock) PredIndex(id int) int {
	for i, p := range self.Preds {
		if p == id {
			return i
		}
	}
	return -1
}

func (self *BasicBlock) SuccIndex(id int) int {
	for i, p := range self.Succs {
		if p == id {
			return i
		}
	}
	return -1
}

func (self *BasicBlock) HasPred(id int) bool {
	return self.PredIndex(id) >= 0
}

func (self *BasicBlock) HasSucc(id int) bool {
	return self.SuccIndex(id) >= 0
}

func (self *BasicBlock) SetMarker(m Marker) {
	self.markers.set(m)
}

func (self *BasicBlock) ResetMarker(m Marker) {
	self.markers.reset(m)
}

func (self *BasicBlock) IsMarked(m Marker) bool {
	return self.markers.isMarked(m)
}

func (self *BasicBlock) instIndex(p *Inst) int {
	for i, v := range self.Insts {
		if v == p {
			return i
		}
	}
	return -1
}

func (self *BasicBlock) phiIndex(p *Inst) int {
	for i, v := range self.Phis {
		if v == p {
			return i
		}
	}
	return -1
}

// Graph is an arena of basic blocks addressed by dense ids. Removed blocks
// leave a nil slot behind, so ids are never reused.
type Graph struct {
	blocks []*BasicBlock
	ninsts int
	marker _MarkerPool

	/* dominator tree, rebuilt on demand */
	domok bool
	idom  []int
	depth []int
	rpo   []int

	/* loop forest, rebuilt explicitly */
	loopok bool
	root   *Loop
	loops  []*Loop
	bloop  []*Loop
}

// NewGraph creates an empty graph with only the start and the end block.
func NewGraph() *Graph {
	g := new(Graph)
	g.NewBlock()
	g.NewBlock()
	return g
}

func (self *Graph) Block(id int) *BasicBlock {
	if id < 0 || id >= len(self.blocks) {
		return nil
	} else {
		return self.blocks[id]
	}
}

func (self *Graph) mustBlock(id int) *BasicBlock {
	if bb := self.Block(id); bb == nil {
		panic(fmt.Sprintf("ssa: block %d does not exist", id))
	} else {
		return bb
	}
}

func (self *Graph) Start() *BasicBlock {
	return self.blocks[StartBlock]
}

func (self *Graph) End() *BasicBlock {
	return self.blocks[EndBlock]
}

// Capacity returns the upper bound of block ids, suitable for sizing
// id-indexed arrays.
func (self *Graph) Capacity() int {
	return len(self.blocks)
}

// Blocks returns all live blocks in id order.
func (self *Graph) Blocks() []*BasicBlock {
	ret := make([]*BasicBlock, 0, len(self.blocks))
	for _, bb := range self.blocks {
		if bb != nil {
			ret = append(ret, bb)
		}
	}
	return ret
}

func (self *Graph) NumBlocks() int {
	n := 0
	for _, bb := range self.blocks {
		if bb != nil {
			n++
		}
	}
	return n
}

func (self *Graph) NewBlock() *BasicBlock {
	bb := &BasicBlock{Id: len(self.blocks)}
	self.blocks = append(self.blocks, bb)
	self.invalidateDom()
	return bb
}

// NewInst creates a detached instruction with a fresh id.
func (self *Graph) NewInst(op Opcode, vt DataType, inputs ...*Inst) *Inst {
	p := &Inst{
		Id:     self.ninsts,
		Op:     op,
		Type:   vt,
		Inputs: inputs,
		block:  -1,
	}
	self.ninsts++
	return p
}

func (self *Graph) reserveInst(id int) {
	if id >= self.ninsts {
		self.ninsts = id + 1
	}
}

// AppendInst appends p to the end of bb.
func (self *Graph) AppendInst(bb *BasicBlock, p *Inst) {
	if p.block >= 0 {
		panic("ssa: instruction already attached: " + p.String())
	} else if p.IsPhi() {
		bb.Phis = append(bb.Phis, p)
	} else {
		bb.Insts = append(bb.Insts, p)
	}
	p.block = bb.Id
}

// InsertBeforeTerminator puts p right before the terminator of bb, or at the
// end of bb if it has none.
func (self *Graph) InsertBeforeTerminator(bb *BasicBlock, p *Inst) {
	if p.IsPhi() || bb.Terminator() == nil {
		self.AppendInst(bb, p)
		return
	}

	/* shift the terminator */
	n := len(bb.Insts)
	bb.Insts = append(bb.Insts, bb.Insts[n-1])
	bb.Insts[n-1] = p
	p.block = bb.Id
}

// RemoveInst detaches p from its block. Its uses are left untouched.
func (self *Graph) RemoveInst(p *Inst) {
	bb := self.mustBlock(p.block)

	/* phi nodes live in a separate list */
	if p.IsPhi() {
		i := bb.phiIndex(p)
		bb.Phis = append(bb.Phis[:i], bb.Phis[i+1:]...)
	} else {
		i := bb.instIndex(p)
		bb.Insts = append(bb.Insts[:i], bb.Insts[i+1:]...)
	}

	/* mark as detached */
	p.block = -1
}

// MoveInst moves p into bb, right before its terminator.
func (self *Graph) MoveInst(p *Inst, bb *BasicBlock) {
	self.RemoveInst(p)
	self.InsertBeforeTerminator(bb, p)
}

// AddEdge appends an edge from -> to. Phi inputs for the new edge are left
// to the caller.
func (self *Graph) AddEdge(from *BasicBlock, to *BasicBlock) {
	from.Succs = append(from.Succs, to.Id)
	to.Preds = append(to.Preds, from.Id)
	self.invalidateDom()
}

// RemovePred removes pred from the predecessor list of bb, together with
// the phi inputs flowing along that edge.
func (self *Graph) RemovePred(bb *BasicBlock, pred int) {
	i := bb.PredIndex(pred)
	if i < 0 {
		panic(fmt.Sprintf("ssa: bb_%d is not a predecessor of bb_%d", pred, bb.Id))
	}

	/* drop the edge and the phi inputs */
	bb.Preds = append(bb.Preds[:i], bb.Preds[i+1:]...)
	for _, v := range bb.Phis {
		v.RemovePhiInput(pred)
	}

	/* the dominator tree is now stale */
	self.invalidateDom()
}

// RemoveSucc removes succ from the successor list of bb.
func (self *Graph) RemoveSucc(bb *BasicBlock, succ int) {
	if i := bb.SuccIndex(succ); i < 0 {
		panic(fmt.Sprintf("ssa: bb_%d is not a successor of bb_%d", succ, bb.Id))
	} else {
		bb.Succs = append(bb.Succs[:i], bb.Succs[i+1:]...)
		self.invalidateDom()
	}
}

// RemoveEdge removes the edge from -> to from both sides.
func (self *Graph) RemoveEdge(from *BasicBlock, to *BasicBlock) {
	self.RemoveSucc(from, to.Id)
	self.RemovePred(to, from.Id)
}

// ReplaceSucc redirects the edge bb -> old to bb -> repl, keeping the
// successor position. Phi inputs in old for bb are dropped, phi inputs in
// repl for bb must be added by the caller.
func (self *Graph) ReplaceSucc(bb *BasicBlock, old *BasicBlock, repl *BasicBlock) {
	i := bb.SuccIndex(old.Id)
	if i < 0 {
		panic(fmt.Sprintf("ssa: bb_%d is not a successor of bb_%d", old.Id, bb.Id))
	}

	/* move the edge */
	bb.Succs[i] = repl.Id
	repl.Preds = append(repl.Preds, bb.Id)
	self.RemovePred(old, bb.Id)
}

// ReplacePred redirects the edge old -> bb to repl -> bb, keeping the
// predecessor position and the phi inputs flowing along the edge.
func (self *Graph) ReplacePred(bb *BasicBlock, old *BasicBlock, repl *BasicBlock) {
	i := bb.PredIndex(old.Id)
	if i < 0 {
		panic(fmt.Sprintf("ssa: bb_%d is not a predecessor of bb_%d", old.Id, bb.Id))
	}

	/* rename the predecessor */
	bb.Preds[i] = repl.Id
	for _, v := range bb.Phis {
		v.RenamePhiPred(old.Id, repl.Id)
	}

	/* fix the successor lists */
	repl.Succs = append(repl.Succs, bb.Id)
	self.RemoveSucc(old, bb.Id)
}

// InsertBlockOnEdge splits the edge from -> to with a new empty block. The
// edge positions on both sides are kept, and so are the phi inputs of to.
func (self *Graph) InsertBlockOnEdge(from *BasicBlock, to *BasicBlock) *BasicBlock {
	si := from.SuccIndex(to.Id)
	pi := to.PredIndex(from.Id)

	/* must be an existing edge */
	if si < 0 || pi < 0 {
		panic(fmt.Sprintf("ssa: no edge from bb_%d to bb_%d", from.Id, to.Id))
	}

	/* link the new block in between */
	bb := self.NewBlock()
	bb.Try = from.Try && to.Try
	bb.Preds = []int{from.Id}
	bb.Succs = []int{to.Id}
	from.Succs[si] = bb.Id
	to.Preds[pi] = bb.Id

	/* the value now flows along the new edge */
	for _, v := range to.Phis {
		v.RenamePhiPred(from.Id, bb.Id)
	}
	return bb
}

// SplitBlockAt moves bb.Insts[idx:] and all outgoing edges of bb into a new
// block, which becomes the only successor of bb.
func (self *Graph) SplitBlockAt(bb *BasicBlock, idx int) *BasicBlock {
	nb := self.NewBlock()
	nb.Try = bb.Try
	nb.Insts = append(nb.Insts, bb.Insts[idx:]...)
	bb.Insts = bb.Insts[:idx:idx]

	/* update the owner */
	for _, v := range nb.Insts {
		v.block = nb.Id
	}

	/* move the outgoing edges */
	for _, s := range bb.Succs {
		sb := self.mustBlock(s)
		sb.Preds[sb.PredIndex(bb.Id)] = nb.Id

		/* the values now flow from the new block */
		for _, v := range sb.Phis {
			v.RenamePhiPred(bb.Id, nb.Id)
		}
	}

	/* link the two halves together */
	nb.Succs = bb.Succs
	nb.Preds = []int{bb.Id}
	bb.Succs = []int{nb.Id}
	return nb
}

// RemoveBlock unlinks bb from the graph. The slot is left empty.
func (self *Graph) RemoveBlock(bb *BasicBlock) {
	if bb.Id == StartBlock || bb.Id == EndBlock {
		panic("ssa: cannot remove the start or the end block")
	}

	/* drop the outgoing edges */
	for _, s := range bb.Succs {
		if sb := self.Block(s); sb != nil {
			self.RemovePred(sb, bb.Id)
		}
	}

	/* drop the incoming edges */
	for _, p := range bb.Preds {
		if pb := self.Block(p); pb != nil {
			for pb.HasSucc(bb.Id) {
				self.RemoveSucc(pb, bb.Id)
			}
		}
	}

	/* detach all the instructions */
	for _, v := range bb.Phis {
		v.block = -1
	}
	for _, v := range bb.Insts {
		v.block = -1
	}

	/* clear the slot */
	self.blocks[bb.Id] = nil
	self.invalidateDom()
}

// ForEachInst calls fn on every phi and instruction of every live block.
func (self *Graph) ForEachInst(fn func(p *Inst)) {
	for _, bb := range self.blocks {
		if bb != nil {
			for _, v := range bb.Phis {
				fn(v)
			}
			for _, v := range bb.Insts {
				fn(v)
			}
		}
	}
}

// Users returns all instructions that take p as an input.
func (self *Graph) Users(p *Inst) []*Inst {
	var ret []*Inst
	self.ForEachInst(func(v *Inst) {
		if v.uses(p) {
			ret = append(ret, v)
		}
	})
	return ret
}

// ReplaceUsers replaces every use of old with repl.
func (self *Graph) ReplaceUsers(old *Inst, repl *Inst) {
	self.ForEachInst(func(v *Inst) {
		for i, x := range v.Inputs {
			if x == old {
				v.Inputs[i] = repl
			}
		}
		for i, x := range v.Phi {
			if x.Value == old {
				v.Phi[i].Value = repl
			}
		}
	})
}

// FindOrCreateConstant returns an integer constant of the given type living
// in the start block.
func (self *Graph) FindOrCreateConstant(val int64, vt DataType) *Inst {
	sb := self.Start()

	/* reuse an existing one if possible */
	for _, v := range sb.Insts {
		if v.Op == OpConstant && v.Type == vt && v.Imm == val {
			return v
		}
	}

	/* otherwise create a new one */
	p := self.NewInst(OpConstant, vt)
	p.Imm = val
	self.AppendInst(sb, p)
	return p
}

func (self *Inst) uses(p *Inst) bool {
	for _, v := range self.Inputs {
		if v == p {
			return true
		}
	}
	for _, v := range self.Phi {
		if v.Value == p {
			return true
		}
	}
	return false
}

func (self *Graph) invalidateDom() {
	self.domok = false
}

// InvalidateLoops drops the loop forest. It is rebuilt by AnalyzeLoops.
func (self *Graph) InvalidateLoops() {
	self.loopok = false
	self.root = nil
	self.loops = nil
	self.bloop = nil
}
