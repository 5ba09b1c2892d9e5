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

// VerifyError occures when a graph violates one of its structural rules.
type VerifyError struct {
	Block  int
	Inst   int
	Reason string
}

func (self VerifyError) Error() string {
	if self.Inst >= 0 {
		return fmt.Sprintf("VerifyError(bb_%d, v%d): %s", self.Block, self.Inst, self.Reason)
	} else {
		return fmt.Sprintf("VerifyError(bb_%d): %s", self.Block, self.Reason)
	}
}

func blockError(bb *BasicBlock, format string, args ...interface{}) error {
	return VerifyError{Block: bb.Id, Inst: -1, Reason: fmt.Sprintf(format, args...)}
}

func instError(bb *BasicBlock, p *Inst, format string, args ...interface{}) error {
	return VerifyError{Block: bb.Id, Inst: p.Id, Reason: fmt.Sprintf(format, args...)}
}

// Verify checks the structural rules of the graph. Unreachable blocks are
// only checked for edge symmetry, since passes may leave them behind for
// Cleanup to remove.
func (self *Graph) Verify() error {
	for _, bb := range self.blocks {
		if bb != nil {
			if err := self.verifyEdges(bb); err != nil {
				return err
			}
		}
	}

	/* check the reachable blocks */
	for _, bb := range self.ReversePostOrder() {
		if err := self.verifyBlock(bb); err != nil {
			return err
		}
	}
	return nil
}

func (self *Graph) verifyEdges(bb *BasicBlock) error {
	for _, s := range bb.Succs {
		if sb := self.Block(s); sb == nil {
			return blockError(bb, "successor bb_%d does not exist", s)
		} else if !sb.HasPred(bb.Id) {
			return blockError(bb, "missing predecessor edge in bb_%d", s)
		}
	}

	/* and the other direction */
	for _, p := range bb.Preds {
		if pb := self.Block(p); pb == nil {
			return blockError(bb, "predecessor bb_%d does not exist", p)
		} else if !pb.HasSucc(bb.Id) {
			return blockError(bb, "missing successor edge in bb_%d", p)
		}
	}
	return nil
}

func (self *Graph) verifyArity(bb *BasicBlock) error {
	tr := bb.Terminator()
	ns := len(bb.Succs)

	/* the end block has no successors, the rest must have some */
	switch {
	case bb.Id == EndBlock && ns != 0:
		return blockError(bb, "the end block must not have successors")
	case bb.Id == EndBlock:
		return nil
	case tr == nil && ns != 1:
		return blockError(bb, "fall-through block has %d successors", ns)
	case tr == nil:
		return nil
	}

	/* check by terminator kind */
	switch tr.Op {
	case OpIf, OpIfImm:
		if ns != 2 {
			return instError(bb, tr, "conditional branch has %d successors", ns)
		}
	default:
		if ns != 1 || bb.Succs[0] != EndBlock {
			return instError(bb, tr, "must flow into the end block")
		}
	}
	return nil
}

func (self *Graph) verifyBlock(bb *BasicBlock) error {
	if err := self.verifyArity(bb); err != nil {
		return err
	}

	/* phi discipline */
	if err := self.verifyPhis(bb); err != nil {
		return err
	}

	/* only the last instruction may be a terminator */
	for i, p := range bb.Insts {
		if p.block != bb.Id {
			return instError(bb, p, "wrong block back-reference bb_%d", p.block)
		} else if p.IsPhi() {
			return instError(bb, p, "phi in the instruction list")
		} else if p.IsTerminator() && i != len(bb.Insts)-1 {
			return instError(bb, p, "terminator in the middle of the block")
		}

		/* all inputs must dominate the use */
		for _, v := range p.Inputs {
			if v == nil || v.block < 0 {
				return instError(bb, p, "input is detached")
			} else if !self.InstDominates(v, p) || v == p {
				return instError(bb, p, "input v%d does not dominate its use", v.Id)
			}
		}
	}
	return nil
}

func (self *Graph) verifyPhis(bb *BasicBlock) (err error) {
	for _, p := range bb.Phis {
		if p.block != bb.Id {
			return instError(bb, p, "wrong block back-reference bb_%d", p.block)
		}

		/* structural check, converted into an error */
		func() {
			defer func() {
				if v := recover(); v != nil {
					err = instError(bb, p, "%v", v)
				}
			}()
			checkPhi(bb, p)
		}()

		/* phi inputs must dominate the end of the incoming edge */
		if err != nil {
			return
		}
		for _, v := range p.Phi {
			if !self.IsReachable(v.Pred) {
				continue
			} else if v.Value.block < 0 {
				return instError(bb, p, "input from bb_%d is detached", v.Pred)
			} else if !self.Dominates(v.Value.block, v.Pred) {
				return instError(bb, p, "input v%d does not dominate bb_%d", v.Value.Id, v.Pred)
			}
		}
	}
	return nil
}
