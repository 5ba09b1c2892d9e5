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

package amd64

import (
	`fmt`
	`io`
	`sync/atomic`

	`github.com/chenzhuoyu/iasm/x86_64`
	`github.com/cloudwego/pandajit/internal/codegen`
	`github.com/cloudwego/pandajit/internal/opts`
	`golang.org/x/arch/x86/x86asm`
)

type _CallSite struct {
	at    *x86_64.Label
	reloc codegen.RelocationInfo
}

// Encoder emits x86-64 machine code through an iasm program. Instruction
// sizes are only known after assembling, so positions (labels, call sites)
// are resolved in Finalize.
type Encoder struct {
	codegen.Base
	rf     *codegen.RegisterFile
	prog   *x86_64.Program
	buf    codegen.Buffer
	labels codegen.Labels
	refs   []*x86_64.Label
	calls  []_CallSite
	relocs []codegen.RelocationInfo
	popcnt bool
	lzcnt  bool
	bmi1   bool
}

var _ codegen.Encoder = (*Encoder)(nil)

// NewEncoder creates an encoder configured by o.
func NewEncoder(o *opts.Options) *Encoder {
	return &Encoder{
		Base:   codegen.NewBase("amd64"),
		rf:     NewRegisterFile(),
		prog:   x86_64.DefaultArch.CreateProgram(),
		popcnt: o.UsePOPCNT,
		lzcnt:  o.UseLZCNT,
		bmi1:   o.UseBMI1,
	}
}

func (self *Encoder) Registers() *codegen.RegisterFile {
	return self.rf
}

func (self *Encoder) Code() []byte {
	return self.buf.Bytes()
}

func (self *Encoder) Relocations() []codegen.RelocationInfo {
	return self.relocs
}

func (self *Encoder) Free() {
	self.release()
	self.buf.Free()
	self.relocs = nil
}

func (self *Encoder) release() {
	if self.prog != nil {
		self.prog.Free()
		self.prog = nil
	}

	/* the labels are pooled by iasm */
	for _, ref := range self.refs {
		ref.Free()
	}
	for _, cs := range self.calls {
		cs.at.Free()
	}

	/* drop the references */
	self.refs = nil
	self.calls = nil
}

/** Labels **/

func (self *Encoder) CreateLabel() codegen.LabelId {
	id := self.labels.Create()
	self.refs = append(self.refs, x86_64.CreateLabel(fmt.Sprintf("L%d", id)))
	return id
}

func (self *Encoder) IsLabelBound(id codegen.LabelId) bool {
	return self.labels.IsBound(id)
}

// BindLabel links id to the current position. The actual position is known
// once the program is assembled.
func (self *Encoder) BindLabel(id codegen.LabelId) {
	self.CheckOpen()
	self.labels.Bind(id, -1)
	self.prog.Link(self.refs[id])
}

// ref returns the iasm label for a branch target, retained since iasm drops a
// reference when it frees the instruction. Branches to labels that are not
// bound yet are recorded, so Finalize can tell dangling ones apart.
func (self *Encoder) ref(id codegen.LabelId) *x86_64.Label {
	if !self.labels.IsBound(id) {
		self.labels.AddFixup(id, codegen.Fixup{Pc: -1})
	}
	return self.refs[id].Retain()
}

// here creates a label bound to the current position.
func (self *Encoder) here() codegen.LabelId {
	id := self.CreateLabel()
	self.BindLabel(id)
	return id
}

/** Finalization **/

// Finalize assembles the program into the code buffer and resolves the call
// sites. Nothing is assembled once a failure has been recorded.
func (self *Encoder) Finalize() error {
	self.CheckOpen()

	/* iasm panics on dangling labels */
	for _, id := range self.labels.Unresolved() {
		self.SetFalseResult("Finalize", fmt.Sprintf("label %d is referenced but never bound", id))
	}

	/* the code must be discarded anyway */
	if self.Seal(); self.Failed() {
		self.release()
		return self.Result()
	}

	/* assemble at 0, the code is position independent */
	code := self.prog.Assemble(0)
	self.buf.EmitBytes(code)

	/* call sites are known now */
	for _, cs := range self.calls {
		if pc, err := cs.at.Evaluate(); err != nil {
			panic("amd64: unresolved call site: " + err.Error())
		} else {
			cs.reloc.Offset = uint32(pc)
			self.relocs = append(self.relocs, cs.reloc)
		}
	}

	/* the program is no longer needed */
	self.release()
	atomic.AddUint64(&codegen.BytesEmitted, uint64(self.buf.Len()))
	return nil
}

/** Disassembler **/

// DisasmInstr prints the instruction at pc in AT&T syntax.
func (self *Encoder) DisasmInstr(w io.Writer, pc int) int {
	return disasmInstr(w, self.buf.Bytes(), pc)
}

// Disasm prints every instruction of code.
func Disasm(w io.Writer, code []byte) {
	for pc := 0; pc < len(code); {
		pc = disasmInstr(w, code, pc)
	}
}

func disasmInstr(w io.Writer, code []byte, pc int) int {
	ins, err := x86asm.Decode(code[pc:], 64)

	/* print a single byte if not recognized */
	if err != nil {
		fmt.Fprintf(w, "%6x:  %-20x  .byte %#02x\n", pc, code[pc:pc+1], code[pc])
		return pc + 1
	}

	/* relative branches print as pc offsets */
	text := x86asm.GNUSyntax(ins, uint64(pc), nil)
	fmt.Fprintf(w, "%6x:  %-20x  %s\n", pc, code[pc:pc+ins.Len], text)
	return pc + ins.Len
}

/** Predicates **/

// CanEncodeImmAddSubCmp reports whether imm fits the sign extended 32-bit
// immediate, negated as well since SubImm adds the negation.
func (self *Encoder) CanEncodeImmAddSubCmp(imm int64, _ int, _ bool) bool {
	return isInt32(imm) && isInt32(-imm)
}

func (self *Encoder) CanEncodeImmLogical(imm uint64, size int) bool {
	if size == 64 {
		return isInt32(int64(imm))
	} else {
		return true
	}
}

func (self *Encoder) CanEncodeScale(scale uint64, _ int) bool {
	return scale <= 3
}

func (self *Encoder) CanEncodeShift(size int) bool {
	return size == 32 || size == 64
}

func (self *Encoder) CanEncodeBitCount() bool {
	return self.popcnt
}

func (self *Encoder) CanEncodeAbs() bool {
	return true
}

// CanEncodeImmMulti reports whether imul takes imm directly.
func (self *Encoder) CanEncodeImmMulti(imm int64, _ int) bool {
	return imm > 0 && isInt32(imm)
}
