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

type _CmpShape struct {
	base    int
	bb      [3]int
	swapped bool
	op      Opcode
	phi     [2]int
}

func defaultShape() _CmpShape {
	return _CmpShape{
		bb:  [3]int{2, 3, 4},
		op:  OpAdd,
		phi: [2]int{0, 5},
	}
}

// same layout as the diamond graph, with everything renumbered by the shape
func shapedGraph(s _CmpShape) *Graph {
	b := CreateBuilder()
	v := func(id int) int { return s.base + id }
	if s.swapped {
		b.Const(v(1), Int64, 0)
		b.Param(v(0), Int64, 0)
	} else {
		b.Param(v(0), Int64, 0)
		b.Const(v(1), Int64, 0)
	}
	b.Block(s.bb[0], s.bb[1], s.bb[2])
	b.Inst(v(5), s.op, Int64, v(0), v(1))
	b.Inst(v(6), OpCompare, Bool, v(5), v(1)).Cc(CcEq)
	b.Inst(v(7), OpIfImm, NoType, v(6)).Cc(CcNe).Imm(0)
	b.Block(s.bb[1], s.bb[2])
	b.Block(s.bb[2], -1)
	b.Phi(v(8), Int64).In(s.bb[0], v(s.phi[0])).In(s.bb[1], v(s.phi[1]))
	b.Inst(v(9), OpReturn, Int64, v(8))
	return b.Build()
}

func TestGraphEquals_Renumbered(t *testing.T) {
	s := defaultShape()
	s.base = 100
	s.bb = [3]int{7, 5, 9}
	require.NoError(t, GraphEquals(shapedGraph(defaultShape()), shapedGraph(s)))

	/* the start block is matched regardless of order */
	s.swapped = true
	require.NoError(t, GraphEquals(shapedGraph(defaultShape()), shapedGraph(s)))
	require.NoError(t, GraphEquals(diamondGraph(), shapedGraph(defaultShape())))
}

func TestGraphEquals_Mismatch(t *testing.T) {
	s := defaultShape()
	s.op = OpSub
	require.Error(t, GraphEquals(shapedGraph(defaultShape()), shapedGraph(s)))

	/* phi inputs are matched along the edge */
	s = defaultShape()
	s.phi = [2]int{5, 0}
	err := GraphEquals(shapedGraph(defaultShape()), shapedGraph(s))
	require.Error(t, err)
	require.Contains(t, err.Error(), "phi input mismatch")

	/* different constants */
	b := CreateBuilder()
	b.Param(0, Int64, 0)
	b.Const(1, Int64, 1)
	b.Block(2, 3, 4)
	b.Inst(5, OpAdd, Int64, 0, 1)
	b.Inst(6, OpCompare, Bool, 5, 1).Cc(CcEq)
	b.Inst(7, OpIfImm, NoType, 6).Cc(CcNe).Imm(0)
	b.Block(3, 4)
	b.Block(4, -1)
	b.Phi(8, Int64).In(2, 0).In(3, 5)
	b.Inst(9, OpReturn, Int64, 8)
	require.Error(t, GraphEquals(diamondGraph(), b.Build()))
}

func TestGraphEquals_Operands(t *testing.T) {
	build := func(lhs int, rhs int) *Graph {
		b := CreateBuilder()
		b.Param(0, Int64, 0)
		b.Param(1, Int64, 1)
		b.Block(2, -1)
		b.Inst(3, OpAdd, Int64, lhs, rhs)
		b.Inst(4, OpReturn, Int64, 3)
		return b.Build()
	}
	require.NoError(t, GraphEquals(build(0, 1), build(0, 1)))
	err := GraphEquals(build(0, 1), build(1, 0))
	require.Error(t, err)
	require.Contains(t, err.Error(), "input 0 mismatch")
}

func TestGraphEquals_Successors(t *testing.T) {
	build := func(yes int, no int) *Graph {
		b := CreateBuilder()
		b.Param(0, Int64, 0)
		b.Param(1, Int64, 1)
		b.Block(2, yes, no)
		b.Inst(5, OpIfImm, NoType, 0).Cc(CcNe).Imm(0)
		b.Block(3, -1)
		b.Inst(6, OpReturn, Int64, 0)
		b.Block(4, -1)
		b.Inst(7, OpReturn, Int64, 1)
		return b.Build()
	}
	require.NoError(t, GraphEquals(build(3, 4), build(3, 4)))
	require.Error(t, GraphEquals(build(3, 4), build(4, 3)))
}

func TestGraphEquals_Shape(t *testing.T) {
	g := diamondGraph()
	h := diamondGraph()
	h.InsertBlockOnEdge(h.Block(2), h.Block(4))
	err := GraphEquals(g, h)
	require.Error(t, err)

	/* try regions */
	b := CreateBuilder()
	b.Block(2, -1)
	b.Inst(3, OpReturnVoid, NoType)
	x := b.Build()
	b = CreateBuilder()
	b.TryBlock(2, -1)
	b.Inst(3, OpReturnVoid, NoType)
	require.Error(t, GraphEquals(x, b.Build()))
}
