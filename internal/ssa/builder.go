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

type _PendingInst struct {
	inst   *Inst
	inputs []int
	phis   [][2]int
}

type _PendingBlock struct {
	id    int
	try   bool
	succs []int
	insts []*_PendingInst
}

// Builder constructs a graph from block and instruction ids. Instructions
// declared before the first block go into the start block, which falls
// through to the first declared block. A successor id of -1 denotes the
// end block.
//
//	b := CreateBuilder()
//	b.Const(0, Int64, 1)
//	b.Block(2, 3, 4)
//	b.Inst(5, OpCompare, Bool, 0, 0).Cc(CcLt)
//	b.Inst(6, OpIfImm, NoType, 5).Cc(CcNe).Imm(0)
//	...
//	g := b.Build()
type Builder struct {
	start  _PendingBlock
	blocks []*_PendingBlock
	bb     *_PendingBlock
	last   *_PendingInst
	ids    map[int]bool
}

func CreateBuilder() *Builder {
	ret := &Builder{ids: make(map[int]bool)}
	ret.start.id = StartBlock
	ret.bb = &ret.start
	return ret
}

func (self *Builder) block(id int, try bool, succs []int) *Builder {
	if id == StartBlock || id == EndBlock {
		panic(fmt.Sprintf("ssa: block id %d is reserved", id))
	}

	/* check for duplications */
	for _, v := range self.blocks {
		if v.id == id {
			panic(fmt.Sprintf("ssa: duplicated block %d", id))
		}
	}

	/* -1 means the end block */
	ss := make([]int, len(succs))
	for i, v := range succs {
		if v < 0 {
			ss[i] = EndBlock
		} else {
			ss[i] = v
		}
	}

	/* start a new block */
	self.bb = &_PendingBlock{id: id, try: try, succs: ss}
	self.last = nil
	self.blocks = append(self.blocks, self.bb)
	return self
}

// Block starts a new block with the given successors.
func (self *Builder) Block(id int, succs ...int) *Builder {
	return self.block(id, false, succs)
}

// TryBlock starts a new block inside a try region.
func (self *Builder) TryBlock(id int, succs ...int) *Builder {
	return self.block(id, true, succs)
}

// Inst appends a new instruction to the current block. Inputs refer to
// instruction ids, which may be declared later.
func (self *Builder) Inst(id int, op Opcode, vt DataType, inputs ...int) *Builder {
	if self.ids[id] {
		panic(fmt.Sprintf("ssa: duplicated instruction %d", id))
	}

	/* create the instruction */
	p := &_PendingInst{
		inst:   &Inst{Id: id, Op: op, Type: vt, block: -1},
		inputs: inputs,
	}

	/* add to the current block */
	self.ids[id] = true
	self.last = p
	self.bb.insts = append(self.bb.insts, p)
	return self
}

// Phi appends a new phi node to the current block, inputs are added with In.
func (self *Builder) Phi(id int, vt DataType) *Builder {
	return self.Inst(id, OpPhi, vt)
}

func (self *Builder) Const(id int, vt DataType, val int64) *Builder {
	return self.Inst(id, OpConstant, vt).Imm(val)
}

func (self *Builder) Param(id int, vt DataType, idx int64) *Builder {
	return self.Inst(id, OpParameter, vt).Imm(idx)
}

func (self *Builder) current() *Inst {
	if self.last == nil {
		panic("ssa: no instruction to modify")
	} else {
		return self.last.inst
	}
}

// In adds a phi input flowing in from block pred.
func (self *Builder) In(pred int, value int) *Builder {
	if p := self.current(); !p.IsPhi() {
		panic(fmt.Sprintf("ssa: instruction %d is not a phi", p.Id))
	} else {
		self.last.phis = append(self.last.phis, [2]int{pred, value})
		return self
	}
}

func (self *Builder) Cc(cc CondCode) *Builder {
	self.current().Cc = cc
	return self
}

func (self *Builder) Imm(v int64) *Builder {
	self.current().Imm = v
	return self
}

func (self *Builder) TypeId(v uint32) *Builder {
	self.current().TypeId = v
	return self
}

// Build resolves all the references and validates the phi nodes.
func (self *Builder) Build() *Graph {
	g := new(Graph)
	nb := EndBlock + 1

	/* find out the largest block id */
	for _, v := range self.blocks {
		if v.id >= nb {
			nb = v.id + 1
		}
	}

	/* allocate the blocks, unused ids stay empty */
	g.blocks = make([]*BasicBlock, nb)
	g.blocks[StartBlock] = &BasicBlock{Id: StartBlock}
	g.blocks[EndBlock] = &BasicBlock{Id: EndBlock}
	for _, v := range self.blocks {
		g.blocks[v.id] = &BasicBlock{Id: v.id, Try: v.try}
	}

	/* the start block falls through into the first declared block */
	if len(self.blocks) != 0 {
		g.AddEdge(g.Start(), g.blocks[self.blocks[0].id])
	}

	/* add all the edges in declaration order */
	for _, v := range self.blocks {
		for _, s := range v.succs {
			if s >= nb || g.blocks[s] == nil {
				panic(fmt.Sprintf("ssa: block %d has an undefined successor %d", v.id, s))
			} else {
				g.AddEdge(g.blocks[v.id], g.blocks[s])
			}
		}
	}

	/* attach all the instructions */
	vals := make(map[int]*Inst)
	all := append([]*_PendingBlock{&self.start}, self.blocks...)
	for _, v := range all {
		for _, p := range v.insts {
			vals[p.inst.Id] = p.inst
			g.reserveInst(p.inst.Id)
			g.AppendInst(g.blocks[v.id], p.inst)
		}
	}

	/* resolve the references */
	for _, v := range all {
		for _, p := range v.insts {
			p.inst.Inputs = make([]*Inst, len(p.inputs))
			for i, id := range p.inputs {
				p.inst.Inputs[i] = resolveInst(vals, p.inst, id)
			}
			for _, in := range p.phis {
				p.inst.SetPhiInput(in[0], resolveInst(vals, p.inst, in[1]))
			}
		}
	}

	/* check the phi nodes */
	g.ValidatePhis()
	return g
}

func resolveInst(vals map[int]*Inst, p *Inst, id int) *Inst {
	if v, ok := vals[id]; !ok {
		panic(fmt.Sprintf("ssa: instruction %d refers to undefined value %d", p.Id, id))
	} else {
		return v
	}
}
