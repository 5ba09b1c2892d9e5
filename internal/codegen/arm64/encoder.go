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

package arm64

import (
	`encoding/binary`
	`fmt`
	`io`
	`strings`
	`sync/atomic`

	`github.com/cloudwego/pandajit/internal/codegen`
	`github.com/cloudwego/pandajit/internal/opts`
	`golang.org/x/arch/arm64/arm64asm`
)

const (
	_FixupBranch26 = iota
	_FixupImm19
	_FixupImm14
	_FixupAdr
)

type _Literal struct {
	value uint64
	loads []int
}

// Encoder emits A64 machine code.
type Encoder struct {
	codegen.Base
	rf     *codegen.RegisterFile
	buf    codegen.Buffer
	labels codegen.Labels
	lits   []_Literal
	litmap map[uint64]int
	relocs []codegen.RelocationInfo
	pool   int
	base   int64
	lse    bool
	lrcpc  bool
}

var _ codegen.Encoder = (*Encoder)(nil)

// NewEncoder creates an encoder configured by o.
func NewEncoder(o *opts.Options) *Encoder {
	ret := &Encoder{
		Base:  codegen.NewBase("arm64"),
		rf:    NewRegisterFile(),
		pool:  -1,
		lse:   o.UseLSE,
		lrcpc: o.UseLRCPC,
	}
	ret.rf.EnableLrAsTemp(o.UseLrAsTemp)
	return ret
}

// SetCodeOffset tells the encoder where the code will be placed relative to
// the start of the method, LoadPcRelative needs it for page computations.
func (self *Encoder) SetCodeOffset(off int64) {
	self.base = off
}

func (self *Encoder) Registers() *codegen.RegisterFile {
	return self.rf
}

// Len returns the current size of the code.
func (self *Encoder) Len() int {
	return self.buf.Len()
}

func (self *Encoder) Code() []byte {
	return self.buf.Bytes()
}

func (self *Encoder) Relocations() []codegen.RelocationInfo {
	return self.relocs
}

func (self *Encoder) Free() {
	self.buf.Free()
	self.lits = nil
	self.litmap = nil
	self.relocs = nil
}

func (self *Encoder) emit(w uint32) {
	self.buf.Emit32(w)
}

/** Labels **/

func (self *Encoder) CreateLabel() codegen.LabelId {
	return self.labels.Create()
}

func (self *Encoder) IsLabelBound(id codegen.LabelId) bool {
	return self.labels.IsBound(id)
}

// BindLabel binds id to the current position and patches every branch that
// was waiting for it.
func (self *Encoder) BindLabel(id codegen.LabelId) {
	self.CheckOpen()
	pc := self.buf.Len()

	/* resolve the forward references */
	for _, fix := range self.labels.Bind(id, pc) {
		self.patch(fix.Pc, fix.Kind, pc)
	}
}

// branchTo emits w, whose offset field is filled once the label is bound.
func (self *Encoder) branchTo(id codegen.LabelId, kind uint8, w uint32) {
	pc := self.buf.Len()
	self.emit(w)

	/* backward references are known already */
	if self.labels.IsBound(id) {
		self.patch(pc, kind, self.labels.PC(id))
	} else {
		self.labels.AddFixup(id, codegen.Fixup{Pc: pc, Kind: kind})
	}
}

func (self *Encoder) patch(pc int, kind uint8, target int) {
	w := self.buf.Word32(pc)
	d := int64(target - pc)

	/* check the range of each form */
	switch kind {
	case _FixupBranch26:
		if !isInt(d>>2, 26) {
			self.SetFalseResult("Branch", fmt.Sprintf("branch offset %d out of range", d))
		} else {
			w |= uint32((d >> 2) & 0x3ffffff)
		}
	case _FixupImm19:
		if !isInt(d>>2, 19) {
			self.SetFalseResult("Branch", fmt.Sprintf("branch offset %d out of range", d))
		} else {
			w |= uint32((d>>2)&0x7ffff) << 5
		}
	case _FixupImm14:
		if !isInt(d>>2, 14) {
			self.SetFalseResult("Branch", fmt.Sprintf("branch offset %d out of range", d))
		} else {
			w |= uint32((d>>2)&0x3fff) << 5
		}
	case _FixupAdr:
		if !isInt(d, 21) {
			self.SetFalseResult("Adr", fmt.Sprintf("pc offset %d out of range", d))
		} else {
			w |= uint32(d&3)<<29 | uint32((d>>2)&0x7ffff)<<5
		}
	default:
		panic(fmt.Sprintf("arm64: invalid fixup kind %d", kind))
	}

	/* write back */
	self.buf.SetWord32(pc, w)
}

// local labels are used by the multi-instruction sequences
func (self *Encoder) here() codegen.LabelId {
	id := self.labels.Create()
	self.labels.Bind(id, self.buf.Len())
	return id
}

/** Literal Pool **/

// loadLiteral emits a PC-relative load of a pooled 64-bit slot. 32-bit loads
// read the low half of it.
func (self *Encoder) loadLiteral(op uint32, rt uint32, value uint64) {
	if self.litmap == nil {
		self.litmap = make(map[uint64]int)
	}

	/* the pool is shared by identical values */
	idx, ok := self.litmap[value]
	if !ok {
		idx = len(self.lits)
		self.litmap[value] = idx
		self.lits = append(self.lits, _Literal{value: value})
	}

	/* patched in Finalize */
	self.lits[idx].loads = append(self.lits[idx].loads, self.buf.Len())
	self.emit(encodeLoadLiteral(op, rt, 0))
}

// Finalize places the literal pool after the code and checks that every
// referenced label has been bound.
func (self *Encoder) Finalize() error {
	self.CheckOpen()

	/* the pool is 8-byte aligned */
	if len(self.lits) != 0 {
		self.buf.Align(8, _NOP)
		self.pool = self.buf.Len()

		/* emit the values and patch the loads */
		for _, lit := range self.lits {
			pc := self.buf.Len()
			self.buf.Emit64(lit.value)

			/* every load refers to the same slot */
			for _, ld := range lit.loads {
				self.patch(ld, _FixupImm19, pc)
			}
		}
	}

	/* dangling labels */
	for _, id := range self.labels.Unresolved() {
		self.SetFalseResult("Finalize", fmt.Sprintf("label %d is referenced but never bound", id))
	}

	/* no more instructions */
	self.Seal()
	atomic.AddUint64(&codegen.BytesEmitted, uint64(self.buf.Len()))
	return self.Result()
}

/** Disassembler **/

// DisasmInstr prints the instruction at pc. Literal pool slots are printed as
// data.
func (self *Encoder) DisasmInstr(w io.Writer, pc int) int {
	if self.pool >= 0 && pc >= self.pool {
		fmt.Fprintf(w, "%6x:  %016x  .quad %#x\n", pc, self.buf.Word64(pc), self.buf.Word64(pc))
		return pc + 8
	}
	return disasmWord(w, self.buf.Bytes(), pc)
}

// Disasm prints every instruction word of code, a trailing partial word is
// ignored.
func Disasm(w io.Writer, code []byte) {
	for pc := 0; pc+4 <= len(code); {
		pc = disasmWord(w, code, pc)
	}
}

// gnuSyntax formats ins without the padding arm64asm leaves after operandless
// instructions.
func gnuSyntax(ins arm64asm.Inst) string {
	return strings.TrimSpace(arm64asm.GNUSyntax(ins))
}

func disasmWord(w io.Writer, code []byte, pc int) int {
	word := binary.LittleEndian.Uint32(code[pc:])
	ins, err := arm64asm.Decode(code[pc : pc+4])

	/* print as data if not recognized */
	if err != nil {
		fmt.Fprintf(w, "%6x:  %08x  .word %#08x\n", pc, word, word)
	} else {
		fmt.Fprintf(w, "%6x:  %08x  %s\n", pc, word, gnuSyntax(ins))
	}
	return pc + 4
}

/** Predicates **/

func (self *Encoder) CanEncodeImmAddSubCmp(imm int64, _ int, _ bool) bool {
	if imm < 0 {
		imm = -imm
	}

	/* imm12, optionally shifted by 12 */
	if imm < 0 {
		return false
	} else {
		return imm < 1<<12 || (imm&0xfff == 0 && imm < 1<<24)
	}
}

func (self *Encoder) CanEncodeImmLogical(imm uint64, size int) bool {
	if size == 64 {
		return isBitmaskImmediate(imm)
	} else {
		return isBitmaskImmediate(replicate32(imm))
	}
}

func (self *Encoder) CanEncodeScale(scale uint64, size int) bool {
	return scale == 0 || 8<<scale == uint64(size)
}

func (self *Encoder) CanEncodeShift(size int) bool {
	return size == 32 || size == 64
}

func (self *Encoder) CanEncodeBitCount() bool { return true }
func (self *Encoder) CanEncodeAbs() bool      { return true }

// CanEncodeImmMulti reports whether a multiplication by imm can be done with
// shifts, which holds for 2^n and 2^n ± 1.
func (self *Encoder) CanEncodeImmMulti(imm int64, size int) bool {
	if imm <= 0 {
		return false
	}

	/* check each candidate power of two */
	for _, v := range [...]uint64{uint64(imm), uint64(imm) - 1, uint64(imm) + 1} {
		if v != 0 && v&(v-1) == 0 && log2(v) < uint32(size) {
			return true
		}
	}
	return false
}

func log2(v uint64) uint32 {
	return bitPos(v)
}
