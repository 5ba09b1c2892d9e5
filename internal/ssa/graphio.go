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
	`io`

	`gopkg.in/yaml.v3`
)

type yamlPhiInput struct {
	Pred  int `yaml:"pred"`
	Value int `yaml:"value"`
}

type yamlInst struct {
	Id     int            `yaml:"id"`
	Op     string         `yaml:"op"`
	Type   string         `yaml:"type,omitempty"`
	Inputs []int          `yaml:"inputs,omitempty,flow"`
	Phi    []yamlPhiInput `yaml:"phi,omitempty"`
	Imm    int64          `yaml:"imm,omitempty"`
	Cc     string         `yaml:"cc,omitempty"`
	TypeId uint32         `yaml:"type_id,omitempty"`
}

type yamlBlock struct {
	Id    int        `yaml:"id"`
	Try   bool       `yaml:"try,omitempty"`
	Succs []int      `yaml:"succs,omitempty,flow"`
	Insts []yamlInst `yaml:"insts,omitempty"`
}

type yamlGraph struct {
	Name   string      `yaml:"name,omitempty"`
	Blocks []yamlBlock `yaml:"blocks"`
}

// LoadGraph reads a graph in the YAML fixture format. Block 0 may only
// carry instructions, it always falls through into the first other block.
// The end block is implicit and is referred to as -1.
func LoadGraph(r io.Reader) (g *Graph, err error) {
	var yg yamlGraph
	if err = yaml.NewDecoder(r).Decode(&yg); err != nil {
		return nil, err
	}

	/* the builder panics on malformed graphs */
	defer func() {
		if v := recover(); v != nil {
			g, err = nil, fmt.Errorf("invalid graph %q: %v", yg.Name, v)
		}
	}()

	/* replay the blocks */
	b := CreateBuilder()
	for _, bb := range yg.Blocks {
		if bb.Id != StartBlock {
			b.block(bb.Id, bb.Try, bb.Succs)
		} else if len(bb.Succs) != 0 {
			return nil, fmt.Errorf("invalid graph %q: the start block must not declare successors", yg.Name)
		} else if len(b.blocks) != 0 {
			return nil, fmt.Errorf("invalid graph %q: the start block must be declared first", yg.Name)
		}

		/* replay the instructions */
		for _, p := range bb.Insts {
			if err = replayInst(b, p); err != nil {
				return nil, err
			}
		}
	}

	/* build the graph */
	g = b.Build()
	return
}

func replayInst(b *Builder, p yamlInst) error {
	op, ok := ParseOpcode(p.Op)
	if !ok {
		return fmt.Errorf("instruction %d: unknown opcode %q", p.Id, p.Op)
	}

	/* the type is optional */
	vt := NoType
	if p.Type != "" {
		if vt, ok = ParseDataType(p.Type); !ok {
			return fmt.Errorf("instruction %d: unknown type %q", p.Id, p.Type)
		}
	}

	/* add the instruction */
	b.Inst(p.Id, op, vt, p.Inputs...).Imm(p.Imm).TypeId(p.TypeId)
	for _, v := range p.Phi {
		b.In(v.Pred, v.Value)
	}

	/* the condition is optional as well */
	if p.Cc != "" {
		if cc, ok := ParseCondCode(p.Cc); !ok {
			return fmt.Errorf("instruction %d: unknown condition %q", p.Id, p.Cc)
		} else {
			b.Cc(cc)
		}
	}
	return nil
}

func dumpInst(p *Inst) yamlInst {
	ret := yamlInst{
		Id:     p.Id,
		Op:     p.Op.String(),
		Imm:    p.Imm,
		TypeId: p.TypeId,
	}

	/* optional attributes */
	if p.Type != NoType {
		ret.Type = p.Type.String()
	}
	if p.Op == OpCompare || p.Op == OpIf || p.Op == OpIfImm {
		ret.Cc = p.Cc.String()
	}

	/* inputs */
	for _, v := range p.Inputs {
		ret.Inputs = append(ret.Inputs, v.Id)
	}
	for _, v := range p.Phi {
		ret.Phi = append(ret.Phi, yamlPhiInput{Pred: v.Pred, Value: v.Value.Id})
	}
	return ret
}

func dumpBlock(bb *BasicBlock) yamlBlock {
	ret := yamlBlock{Id: bb.Id, Try: bb.Try}

	/* the end block is written as -1 */
	if bb.Id != StartBlock {
		for _, s := range bb.Succs {
			if s == EndBlock {
				ret.Succs = append(ret.Succs, -1)
			} else {
				ret.Succs = append(ret.Succs, s)
			}
		}
	}

	/* phis first, then the instructions */
	for _, v := range bb.Phis {
		ret.Insts = append(ret.Insts, dumpInst(v))
	}
	for _, v := range bb.Insts {
		ret.Insts = append(ret.Insts, dumpInst(v))
	}
	return ret
}

// MarshalGraph writes the reachable part of the graph in the format read by
// LoadGraph.
func MarshalGraph(g *Graph, name string) ([]byte, error) {
	yg := yamlGraph{Name: name}
	rpo := g.ReversePostOrder()

	/* the entry of the function must be declared first */
	for _, bb := range rpo {
		if bb.Id != EndBlock {
			yg.Blocks = append(yg.Blocks, dumpBlock(bb))
		}
	}

	/* serialize with YAML */
	return yaml.Marshal(&yg)
}
