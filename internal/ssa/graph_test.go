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
	`testing`

	`github.com/stretchr/testify/require`
)

// bb_2 branches into bb_3 and bb_4, bb_3 falls into bb_4 which merges v0 and v5
func diamondGraph() *Graph {
	b := CreateBuilder()
	b.Param(0, Int64, 0)
	b.Const(1, Int64, 0)
	b.Block(2, 3, 4)
	b.Inst(5, OpAdd, Int64, 0, 1)
	b.Inst(6, OpCompare, Bool, 5, 1).Cc(CcEq)
	b.Inst(7, OpIfImm, NoType, 6).Cc(CcNe).Imm(0)
	b.Block(3, 4)
	b.Block(4, -1)
	b.Phi(8, Int64).In(2, 0).In(3, 5)
	b.Inst(9, OpReturn, Int64, 8)
	return b.Build()
}

func instById(g *Graph, id int) *Inst {
	var ret *Inst
	g.ForEachInst(func(p *Inst) {
		if p.Id == id {
			ret = p
		}
	})
	return ret
}

func TestGraph_Builder(t *testing.T) {
	g := diamondGraph()
	require.NoError(t, g.Verify())
	require.Equal(t, 5, g.NumBlocks())
	require.Equal(t, []int{2}, g.Start().Succs)
	require.Equal(t, []int{3, 4}, g.Block(2).Succs)
	require.Equal(t, []int{2, 3}, g.Block(4).Preds)
	require.Equal(t, []int{4}, g.End().Preds)
	require.Len(t, g.Start().Insts, 2)
	require.True(t, g.Block(2).IsConditional())
	require.True(t, g.Block(3).IsEmpty())
	require.Equal(t, 3, g.Block(2).TrueSucc())
	require.Equal(t, 4, g.Block(2).FalseSucc())
	require.Equal(t, OpIfImm, g.Block(2).Terminator().Op)
	require.Nil(t, g.Block(3).Terminator())
}

func TestGraph_BuilderErrors(t *testing.T) {
	require.PanicsWithValue(t, "ssa: instruction 3 refers to undefined value 42", func() {
		b := CreateBuilder()
		b.Block(2, -1)
		b.Inst(3, OpReturn, Int64, 42)
		b.Build()
	})
	require.PanicsWithValue(t, "ssa: block 2 has an undefined successor 7", func() {
		b := CreateBuilder()
		b.Block(2, 7)
		b.Build()
	})
	require.Panics(t, func() {
		b := CreateBuilder()
		b.Const(0, Int64, 0)
		b.Block(2, 3, 4)
		b.Inst(1, OpIfImm, NoType, 0).Cc(CcNe).Imm(0)
		b.Block(3, 4)
		b.Block(4, -1)
		b.Phi(5, Int64).In(2, 0)
		b.Inst(6, OpReturn, Int64, 5)
		b.Build()
	})
	require.Panics(t, func() {
		b := CreateBuilder()
		b.Block(2, -1)
		b.Inst(3, OpReturnVoid, NoType)
		b.Inst(3, OpReturnVoid, NoType)
	})
	require.Panics(t, func() { CreateBuilder().Block(1) })
}

func TestGraph_InstString(t *testing.T) {
	g := diamondGraph()
	require.Equal(t, "0.i64 Parameter arg0", instById(g, 0).String())
	require.Equal(t, "1.i64 Constant 0x0", instById(g, 1).String())
	require.Equal(t, "5.i64 Add v0 v1", instById(g, 5).String())
	require.Equal(t, "6.b Compare eq v5 v1", instById(g, 6).String())
	require.Equal(t, "7.none IfImm ne 0x0 v6", instById(g, 7).String())
	require.Equal(t, "8.i64 Phi v0(bb2) v5(bb3)", instById(g, 8).String())
}

func TestGraph_SplitBlockAt(t *testing.T) {
	g := diamondGraph()
	bb := g.Block(2)
	nb := g.SplitBlockAt(bb, 1)

	/* the tail moved into the new block */
	require.Equal(t, 5, nb.Id)
	require.Len(t, bb.Insts, 1)
	require.Equal(t, []int{5}, bb.Succs)
	require.Equal(t, []int{2}, nb.Preds)
	require.Equal(t, []int{3, 4}, nb.Succs)
	require.Equal(t, 5, instById(g, 6).Block())
	require.Equal(t, 5, instById(g, 7).Block())

	/* the successors see the new block */
	require.Equal(t, []int{5}, g.Block(3).Preds)
	require.Equal(t, []int{5, 3}, g.Block(4).Preds)
	require.Equal(t, instById(g, 0), instById(g, 8).PhiInput(5))
	require.Nil(t, instById(g, 8).PhiInput(2))
	require.NoError(t, g.Verify())
	require.Equal(t, 2, g.IDom(5))
}

func TestGraph_InsertBlockOnEdge(t *testing.T) {
	g := diamondGraph()
	nb := g.InsertBlockOnEdge(g.Block(2), g.Block(4))

	/* positions are kept on both sides */
	require.Equal(t, []int{3, nb.Id}, g.Block(2).Succs)
	require.Equal(t, []int{nb.Id, 3}, g.Block(4).Preds)
	require.Equal(t, []int{2}, nb.Preds)
	require.Equal(t, []int{4}, nb.Succs)
	require.Equal(t, instById(g, 0), instById(g, 8).PhiInput(nb.Id))
	require.NoError(t, g.Verify())

	/* only existing edges can be split */
	require.Panics(t, func() { g.InsertBlockOnEdge(g.Block(3), g.Block(2)) })
}

func TestGraph_ReplacePred(t *testing.T) {
	g := diamondGraph()
	nb := g.NewBlock()
	g.AddEdge(g.Block(3), nb)
	g.ReplacePred(g.Block(4), g.Block(3), nb)

	/* the value flowing along the edge is kept */
	require.Equal(t, []int{2, nb.Id}, g.Block(4).Preds)
	require.Equal(t, []int{nb.Id}, g.Block(3).Succs)
	require.Equal(t, []int{4}, nb.Succs)
	require.Equal(t, instById(g, 5), instById(g, 8).PhiInput(nb.Id))
	require.NoError(t, g.Verify())
}

func TestGraph_ReplaceSucc(t *testing.T) {
	g := diamondGraph()
	nb := g.NewBlock()
	g.AddEdge(nb, g.Block(4))
	instById(g, 8).SetPhiInput(nb.Id, instById(g, 5))
	g.ReplaceSucc(g.Block(3), g.Block(4), nb)

	/* the old phi input is dropped */
	require.Equal(t, []int{nb.Id}, g.Block(3).Succs)
	require.Equal(t, []int{3}, nb.Preds)
	require.Equal(t, []int{2, nb.Id}, g.Block(4).Preds)
	require.Nil(t, instById(g, 8).PhiInput(3))
	require.NoError(t, g.Verify())
}

func TestGraph_RemoveBlock(t *testing.T) {
	g := diamondGraph()
	g.RemoveBlock(g.Block(3))

	/* both sides are unlinked */
	require.Nil(t, g.Block(3))
	require.Equal(t, 4, g.NumBlocks())
	require.Equal(t, []int{4}, g.Block(2).Succs)
	require.Equal(t, []int{2}, g.Block(4).Preds)
	require.Len(t, instById(g, 8).Phi, 1)

	/* the branch is now malformed */
	require.Error(t, g.Verify())
	require.Panics(t, func() { g.RemoveBlock(g.Start()) })
	require.Panics(t, func() { g.RemoveBlock(g.End()) })
}

func TestGraph_InstructionLists(t *testing.T) {
	g := diamondGraph()
	bb := g.Block(2)
	p := g.NewInst(OpSub, Int64, instById(g, 0), instById(g, 1))

	/* inserted right before the branch */
	g.InsertBeforeTerminator(bb, p)
	require.Equal(t, 2, p.Block())
	require.Equal(t, OpSub, bb.Insts[2].Op)
	require.Equal(t, OpIfImm, bb.Insts[3].Op)
	require.Panics(t, func() { g.AppendInst(bb, p) })

	/* moved into another block */
	g.MoveInst(p, g.Block(4))
	require.Len(t, bb.Insts, 3)
	require.Equal(t, p, g.Block(4).Insts[0])
	require.NoError(t, g.Verify())

	/* detached */
	g.RemoveInst(p)
	require.Equal(t, -1, p.Block())
	require.Len(t, g.Block(4).Insts, 1)
}

func TestGraph_Users(t *testing.T) {
	g := diamondGraph()
	v0 := instById(g, 0)
	v5 := instById(g, 5)

	/* both plain and phi users */
	users := g.Users(v5)
	require.ElementsMatch(t, []*Inst{instById(g, 6), instById(g, 8)}, users)
	require.ElementsMatch(t, []*Inst{v5, instById(g, 8)}, g.Users(v0))

	/* replace all of them */
	g.ReplaceUsers(v5, v0)
	require.Empty(t, g.Users(v5))
	require.Equal(t, v0, instById(g, 6).Inputs[0])
	require.Equal(t, v0, instById(g, 8).PhiInput(3))
}

func TestGraph_FindOrCreateConstant(t *testing.T) {
	g := diamondGraph()
	require.Equal(t, instById(g, 1), g.FindOrCreateConstant(0, Int64))

	/* a different type is a different constant */
	p := g.FindOrCreateConstant(0, Int32)
	require.NotEqual(t, instById(g, 1), p)
	require.Equal(t, StartBlock, p.Block())
	require.Equal(t, 10, p.Id)
	require.Equal(t, p, g.FindOrCreateConstant(0, Int32))
	require.Len(t, g.Start().Insts, 3)
}

func TestGraph_Phi(t *testing.T) {
	g := diamondGraph()
	p := instById(g, 8)
	require.Equal(t, []*Inst{instById(g, 0), instById(g, 5)}, g.OrderedInputs(p))

	/* rename along an edge */
	p.RenamePhiPred(3, 7)
	require.Nil(t, p.PhiInput(3))
	require.Equal(t, instById(g, 5), p.PhiInput(7))
	require.Panics(t, func() { g.OrderedInputs(p) })
	require.Panics(t, func() { g.ValidatePhis() })

	/* and back */
	p.RenamePhiPred(7, 3)
	require.NotPanics(t, func() { g.ValidatePhis() })
	p.RemovePhiInput(3)
	require.Len(t, p.Phi, 1)
	require.Panics(t, func() { g.ValidatePhis() })
}

func TestGraph_Markers(t *testing.T) {
	g := diamondGraph()
	bb := g.Block(2)
	p := instById(g, 5)

	/* 4 markers at most */
	m := [4]Marker{g.NewMarker(), g.NewMarker(), g.NewMarker(), g.NewMarker()}
	require.Panics(t, func() { g.NewMarker() })

	/* markers are independent of each other */
	bb.SetMarker(m[0])
	p.SetMarker(m[1])
	require.True(t, bb.IsMarked(m[0]))
	require.False(t, bb.IsMarked(m[1]))
	require.True(t, p.IsMarked(m[1]))
	require.False(t, p.IsMarked(m[0]))

	/* marks survive erasing until the slot is reused */
	g.EraseMarker(m[0])
	require.True(t, bb.IsMarked(m[0]))
	m0 := g.NewMarker()
	require.NotEqual(t, m[0], m0)
	require.False(t, bb.IsMarked(m0))
	bb.SetMarker(m0)
	require.False(t, bb.IsMarked(m[0]))

	/* reset only clears its own mark */
	p.ResetMarker(m[2])
	require.True(t, p.IsMarked(m[1]))
	p.ResetMarker(m[1])
	require.False(t, p.IsMarked(m[1]))

	/* double erase */
	g.EraseMarker(m[3])
	require.Panics(t, func() { g.EraseMarker(m[3]) })
}
