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

/** This is an implementation of the Lengauer-Tarjan algorithm described in
 *  https://doi.org/10.1145%2F357062.357071
 */

package ssa

type _LtNode struct {
	semi     int
	node     int
	dom      *_LtNode
	label    *_LtNode
	parent   *_LtNode
	ancestor *_LtNode
	pred     []*_LtNode
	bucket   []*_LtNode
}

type _LengauerTarjan struct {
	g      *Graph
	nodes  []*_LtNode
	vertex []int
}

func newLengauerTarjan(g *Graph) *_LengauerTarjan {
	vx := make([]int, g.Capacity())
	for i := range vx {
		vx[i] = -1
	}
	return &_LengauerTarjan{g: g, vertex: vx}
}

func (self *_LengauerTarjan) dfs(bb *BasicBlock) {
	i := len(self.nodes)
	self.vertex[bb.Id] = i

	/* create a new node */
	p := &_LtNode{
		semi: i,
		node: bb.Id,
	}

	/* add to node list */
	p.label = p
	self.nodes = append(self.nodes, p)

	/* traverse the successors */
	for _, s := range bb.Succs {
		idx := self.vertex[s]

		/* not visited yet */
		if idx < 0 {
			self.dfs(self.g.mustBlock(s))
			idx = self.vertex[s]
			self.nodes[idx].parent = p
		}

		/* add predecessors */
		q := self.nodes[idx]
		q.pred = append(q.pred, p)
	}
}

func (self *_LengauerTarjan) eval(p *_LtNode) *_LtNode {
	if p.ancestor == nil {
		return p
	} else {
		self.compress(p)
		return p.label
	}
}

func (self *_LengauerTarjan) link(p *_LtNode, q *_LtNode) {
	q.ancestor = p
}

func (self *_LengauerTarjan) compress(p *_LtNode) {
	if p.ancestor.ancestor != nil {
		self.compress(p.ancestor)
		if p.label.semi > p.ancestor.label.semi {
			p.label = p.ancestor.label
		}
		p.ancestor = p.ancestor.ancestor
	}
}

func minInt(a int, b int) int {
	if a < b {
		return a
	} else {
		return b
	}
}

func (self *Graph) buildDominatorTree() {
	nb := self.Capacity()
	lt := newLengauerTarjan(self)
	lt.dfs(self.Start())

	/* perform Step 2 and Step 3 simultaneously */
	for i := len(lt.nodes) - 1; i > 0; i-- {
		p := lt.nodes[i]
		q := (*_LtNode)(nil)

		/* Step 2: Compute the semidominators of all vertices by applying Theorem 4.
		 * Carry out the computation vertex by vertex in decreasing order by number. */
		for _, v := range p.pred {
			q = lt.eval(v)
			p.semi = minInt(p.semi, q.semi)
		}

		/* link the ancestor */
		lt.link(p.parent, p)
		lt.nodes[p.semi].bucket = append(lt.nodes[p.semi].bucket, p)

		/* Step 3: Implicitly define the immediate dominator of each vertex by applying Corollary 1 */
		for _, v := range p.parent.bucket {
			if q = lt.eval(v); q.semi < v.semi {
				v.dom = q
			} else {
				v.dom = p.parent
			}
		}

		/* clear the bucket */
		p.parent.bucket = p.parent.bucket[:0]
	}

	/* Step 4: Explicitly define the immediate dominator of each vertex, carrying out the
	 * computation vertex by vertex in increasing order by number. */
	for _, p := range lt.nodes[1:] {
		if p.dom.node != lt.nodes[p.semi].node {
			p.dom = p.dom.dom
		}
	}

	/* reset the relations */
	self.idom = make([]int, nb)
	self.depth = make([]int, nb)

	/* unreachable blocks have no dominator */
	for i := range self.idom {
		self.idom[i] = -1
		self.depth[i] = -1
	}

	/* map the dominator relations, the DFS order guarantees that the
	 * immediate dominator is always numbered before the node itself */
	self.depth[StartBlock] = 0
	for _, p := range lt.nodes[1:] {
		self.idom[p.node] = p.dom.node
	}
	for _, p := range lt.nodes[1:] {
		self.depth[p.node] = self.depthOf(p.node)
	}

	/* also cache the reverse post-order */
	self.rpo = self.computeRPO()
	self.domok = true
}

func (self *Graph) depthOf(id int) int {
	if id == StartBlock {
		return 0
	} else if self.depth[id] >= 0 {
		return self.depth[id]
	} else {
		self.depth[id] = self.depthOf(self.idom[id]) + 1
		return self.depth[id]
	}
}

func (self *Graph) ensureDom() {
	if !self.domok {
		self.buildDominatorTree()
	}
}

// IDom returns the immediate dominator of the block, or -1 for the start
// block and unreachable blocks.
func (self *Graph) IDom(id int) int {
	self.ensureDom()
	return self.idom[id]
}

// DomDepth returns the depth of the block in the dominator tree, or -1 if
// the block is unreachable.
func (self *Graph) DomDepth(id int) int {
	self.ensureDom()
	return self.depth[id]
}

// IsReachable reports whether the block is reachable from the start block.
func (self *Graph) IsReachable(id int) bool {
	return self.DomDepth(id) >= 0
}

// Dominates reports whether every path from the start block to b passes
// through a. Every block dominates itself.
func (self *Graph) Dominates(a int, b int) bool {
	self.ensureDom()

	/* unreachable blocks are not part of the tree */
	if self.depth[a] < 0 || self.depth[b] < 0 {
		return false
	}

	/* walk up the tree until we reach the same depth */
	for self.depth[b] > self.depth[a] {
		b = self.idom[b]
	}
	return a == b
}

// InstDominates reports whether the definition of a dominates the position
// of b. Phi nodes are considered to be at the very top of their block.
func (self *Graph) InstDominates(a *Inst, b *Inst) bool {
	if a == b {
		return true
	} else if a.block != b.block {
		return self.Dominates(a.block, b.block)
	} else if a.IsPhi() {
		return true
	} else if b.IsPhi() {
		return false
	}

	/* same block, compare the positions */
	bb := self.mustBlock(a.block)
	return bb.instIndex(a) < bb.instIndex(b)
}

// DominatedBy returns all blocks immediately dominated by the block, in
// ascending id order.
func (self *Graph) DominatedBy(id int) []int {
	self.ensureDom()
	ret := []int(nil)

	/* scan the immediate dominators */
	for i, d := range self.idom {
		if d == id && self.blocks[i] != nil {
			ret = append(ret, i)
		}
	}
	return ret
}
