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
	`html`
	`strings`
)

func blockrefs(ids []int) string {
	ret := make([]string, len(ids))
	for i, v := range ids {
		ret[i] = fmt.Sprintf("bb_%d", v)
	}
	return strings.Join(ret, ", ")
}

func (self *Graph) dumpBlock(sb *strings.Builder, bb *BasicBlock) {
	fmt.Fprintf(sb, "bb_%d:", bb.Id)

	/* block attributes */
	if bb.Try {
		sb.WriteString(" try")
	}
	if self.loopok {
		if lp := self.LoopOf(bb.Id); lp != nil && !lp.IsRoot {
			fmt.Fprintf(sb, " loop=%d", lp.Id)
		}
	}

	/* edges */
	fmt.Fprintf(sb, " preds=[%s] succs=[%s]\n", blockrefs(bb.Preds), blockrefs(bb.Succs))

	/* phis go first */
	for _, v := range bb.Phis {
		fmt.Fprintf(sb, "    %s\n", v)
	}

	/* then the instructions */
	for _, v := range bb.Insts {
		fmt.Fprintf(sb, "    %s\n", v)
	}
}

// String dumps the whole graph in block id order.
func (self *Graph) String() string {
	var sb strings.Builder
	for _, bb := range self.blocks {
		if bb != nil {
			self.dumpBlock(&sb, bb)
		}
	}
	return sb.String()
}

// DotGraph renders the graph in the Graphviz dot language.
func (self *Graph) DotGraph() string {
	buf := []string{
		"digraph CFG {",
		`    graph [ fontname = "Fira Code" ]`,
		`    node [ fontname = "Fira Code" fontsize = "16" shape = "plaintext" ]`,
		`    edge [ fontname = "Fira Code" ]`,
	}

	/* add all the blocks */
	for _, bb := range self.blocks {
		if bb != nil {
			buf = append(buf, fmt.Sprintf(`    bb_%d [ label = < %s > ]`, bb.Id, dotBlock(bb)))
		}
	}

	/* add all the edges, the true edge is labeled */
	for _, bb := range self.blocks {
		if bb != nil {
			for i, s := range bb.Succs {
				if len(bb.Succs) == 2 && i == 0 {
					buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d [ label = "T" ]`, bb.Id, s))
				} else {
					buf = append(buf, fmt.Sprintf(`    bb_%d -> bb_%d`, bb.Id, s))
				}
			}
		}
	}

	/* close the graph */
	buf = append(buf, "}")
	return strings.Join(buf, "\n")
}

func dotBlock(bb *BasicBlock) string {
	buf := []string{
		`<table border="1" cellborder="0" cellspacing="0">`,
		fmt.Sprintf(`<tr><td>bb_%d</td></tr>`, bb.Id),
	}

	/* phis and instructions */
	if len(bb.Phis) != 0 || len(bb.Insts) != 0 {
		buf = append(buf, "<hr/>")
	}
	for _, v := range append(append([]*Inst(nil), bb.Phis...), bb.Insts...) {
		vv := strings.ReplaceAll(html.EscapeString(v.String()), " ", "&nbsp;")
		buf = append(buf, fmt.Sprintf(`<tr><td align="left">%s</td></tr>`, vv))
	}

	/* close the table */
	buf = append(buf, "</table>")
	return strings.Join(buf, "")
}
