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

	`github.com/oleiade/lane`
)

type _Comparator struct {
	a, b   *Graph
	blocks map[int]int
	insts  map[*Inst]*Inst
	order  map[int][]*Inst
	pairs  [][2]*BasicBlock
}

// GraphEquals checks that two graphs have the same structure, up to block
// and instruction renumbering. The graphs are walked from the start block in
// lockstep, successors and instructions are matched by position. The first
// difference found is returned as an error.
func GraphEquals(a *Graph, b *Graph) error {
	cc := &_Comparator{
		a:      a,
		b:      b,
		blocks: make(map[int]int),
		insts:  make(map[*Inst]*Inst),
		order:  make(map[int][]*Inst),
	}

	/* Phase 1: match the blocks and the instructions */
	if err := cc.walk(); err != nil {
		return err
	}

	/* Phase 2: check the references */
	for _, p := range cc.pairs {
		if err := cc.checkRefs(p[0], p[1]); err != nil {
			return err
		}
	}
	return nil
}

func (self *_Comparator) bind(x *BasicBlock, y *BasicBlock) (bool, error) {
	if v, ok := self.blocks[x.Id]; !ok {
		self.blocks[x.Id] = y.Id
		return true, nil
	} else if v != y.Id {
		return false, fmt.Errorf("bb_%d is matched with both bb_%d and bb_%d", x.Id, v, y.Id)
	} else {
		return false, nil
	}
}

func (self *_Comparator) walk() error {
	q := lane.NewQueue()
	q.Enqueue([2]*BasicBlock{self.a.Start(), self.b.Start()})
	self.blocks[StartBlock] = StartBlock

	/* breadth-first walk */
	for !q.Empty() {
		p := q.Dequeue().([2]*BasicBlock)
		x, y := p[0], p[1]

		/* compare the block itself */
		if err := self.compareBlock(x, y); err != nil {
			return err
		}

		/* match the successors by position */
		self.pairs = append(self.pairs, p)
		for i, s := range x.Succs {
			sx := self.a.mustBlock(s)
			sy := self.b.mustBlock(y.Succs[i])

			/* only visit once */
			if fresh, err := self.bind(sx, sy); err != nil {
				return err
			} else if fresh {
				q.Enqueue([2]*BasicBlock{sx, sy})
			}
		}
	}
	return nil
}

func (self *_Comparator) compareBlock(x *BasicBlock, y *BasicBlock) error {
	switch {
	case len(x.Succs) != len(y.Succs):
		return fmt.Errorf("bb_%d has %d successors, but bb_%d has %d", x.Id, len(x.Succs), y.Id, len(y.Succs))
	case len(x.Preds) != len(y.Preds):
		return fmt.Errorf("bb_%d has %d predecessors, but bb_%d has %d", x.Id, len(x.Preds), y.Id, len(y.Preds))
	case len(x.Phis) != len(y.Phis):
		return fmt.Errorf("bb_%d has %d phis, but bb_%d has %d", x.Id, len(x.Phis), y.Id, len(y.Phis))
	case len(x.Insts) != len(y.Insts):
		return fmt.Errorf("bb_%d has %d instructions, but bb_%d has %d", x.Id, len(x.Insts), y.Id, len(y.Insts))
	case x.Try != y.Try:
		return fmt.Errorf("bb_%d and bb_%d differ in try flag", x.Id, y.Id)
	}

	/* match the phis */
	for i, v := range x.Phis {
		if err := self.compareInst(v, y.Phis[i]); err != nil {
			return err
		}
	}

	/* constants and parameters may be declared in any order */
	if x.Id == StartBlock {
		return self.compareUnordered(x, y)
	}

	/* match the instructions */
	for i, v := range x.Insts {
		if err := self.compareInst(v, y.Insts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (self *_Comparator) compareUnordered(x *BasicBlock, y *BasicBlock) error {
	used := make([]bool, len(y.Insts))
	perm := make([]*Inst, len(x.Insts))

	/* find an unused match for every instruction */
	for i, v := range x.Insts {
		for j, w := range y.Insts {
			if !used[j] && self.compareInst(v, w) == nil {
				used[j] = true
				perm[i] = w
				break
			}
		}

		/* no such instruction */
		if perm[i] == nil {
			return fmt.Errorf("no match for '%s' in bb_%d", v, y.Id)
		}
	}

	/* replace the instruction list of y with the matched order */
	self.order[y.Id] = perm
	return nil
}

func (self *_Comparator) instsOf(y *BasicBlock) []*Inst {
	if v, ok := self.order[y.Id]; ok {
		return v
	} else {
		return y.Insts
	}
}

func (self *_Comparator) compareInst(x *Inst, y *Inst) error {
	switch {
	case x.Op != y.Op:
		return fmt.Errorf("instruction mismatch: '%s' vs '%s'", x, y)
	case x.Type != y.Type:
		return fmt.Errorf("type mismatch: '%s' vs '%s'", x, y)
	case x.Imm != y.Imm || x.Cc != y.Cc || x.TypeId != y.TypeId:
		return fmt.Errorf("attribute mismatch: '%s' vs '%s'", x, y)
	case len(x.Inputs) != len(y.Inputs) || len(x.Phi) != len(y.Phi):
		return fmt.Errorf("input count mismatch: '%s' vs '%s'", x, y)
	}

	/* bind the values */
	self.insts[x] = y
	return nil
}

func (self *_Comparator) mapInst(x *Inst) *Inst {
	return self.insts[x]
}

func (self *_Comparator) checkRefs(x *BasicBlock, y *BasicBlock) error {
	for _, p := range x.Preds {
		if v, ok := self.blocks[p]; !ok {
			return fmt.Errorf("predecessor bb_%d of bb_%d is unreachable", p, x.Id)
		} else if !y.HasPred(v) {
			return fmt.Errorf("bb_%d is a predecessor of bb_%d, but bb_%d is not a predecessor of bb_%d", p, x.Id, v, y.Id)
		}
	}

	/* check the phi inputs by predecessor */
	for i, v := range x.Phis {
		w := y.Phis[i]
		for _, in := range v.Phi {
			if exp := w.PhiInput(self.blocks[in.Pred]); exp == nil || self.mapInst(in.Value) != exp {
				return fmt.Errorf("phi input mismatch from bb_%d: '%s' vs '%s'", in.Pred, v, w)
			}
		}
	}

	/* check the instruction inputs by position */
	ys := self.instsOf(y)
	for i, v := range x.Insts {
		w := ys[i]
		for j, in := range v.Inputs {
			if self.mapInst(in) != w.Inputs[j] {
				return fmt.Errorf("input %d mismatch: '%s' vs '%s'", j, v, w)
			}
		}
	}
	return nil
}
