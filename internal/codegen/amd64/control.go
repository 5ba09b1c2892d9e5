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
	`math/bits`

	`github.com/chenzhuoyu/iasm/expr`
	`github.com/chenzhuoyu/iasm/x86_64`
	`github.com/cloudwego/pandajit/internal/codegen`
)

/** Branches **/

// Branches are relaxed by iasm, short forms are picked when the target is
// close enough.
func (self *Encoder) Jump(id codegen.LabelId) {
	self.CheckOpen()
	self.prog.JMP(self.ref(id))
}

func (self *Encoder) jcc(id codegen.LabelId, cond _Cond) {
	_JccTab[cond](self.prog, self.ref(id))
}

func (self *Encoder) JumpCc(id codegen.LabelId, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	self.jcc(id, self.compare(src0, src1, cc))
}

// JumpImm compares with an immediate, comparing with 0 for equality is a
// test of the register with itself.
func (self *Encoder) JumpImm(id codegen.LabelId, src codegen.Reg, imm codegen.Imm, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("JumpImm", src)

	/* test src, src */
	if imm.IsZero() && (cc == codegen.CcEq || cc == codegen.CcNe) {
		self.test(src, src)
		self.jcc(id, intCond(cc))
	} else {
		self.jcc(id, self.compareImm(src, imm, cc))
	}
}

func (self *Encoder) JumpTest(id codegen.LabelId, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("JumpTest", src0, src1)
	self.test(src0, src1)
	self.jcc(id, testCond(cc))
}

// JumpTestImm tests against a mask, masks of a single bit beyond the imm32
// range use bt.
func (self *Encoder) JumpTestImm(id codegen.LabelId, src codegen.Reg, imm codegen.Imm, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("JumpTestImm", src)
	cond := testCond(cc)

	/* cut the mask to the register width */
	v := uint64(imm.Value)
	if width(src) == 32 {
		v &= 0xffffffff
	}

	/* bt + jc / jnc */
	if v != 0 && v&(v-1) == 0 && !isInt32(int64(v)) {
		self.JumpBit(id, src, uint8(bits.TrailingZeros64(v)), cond == _CondNE)
	} else {
		self.testImm(src, imm.Value)
		self.jcc(id, cond)
	}
}

// JumpBit jumps if the bit is set or clear, bt copies it to CF.
func (self *Encoder) JumpBit(id codegen.LabelId, src codegen.Reg, bit uint8, set bool) {
	self.CheckOpen()
	checkScalar("JumpBit", src)

	/* the bit must exist */
	if int(bit) >= width(src) {
		panic(fmt.Sprintf("amd64: JumpBit: bit %d out of range for %s", bit, src))
	}

	/* bt $bit, src */
	if is64(src) {
		self.prog.BTQ(int64(bit), r64(src))
	} else {
		self.prog.BTL(int64(bit), r32(src))
	}

	/* jc / jnc */
	if set {
		self.jcc(id, _CondC)
	} else {
		self.jcc(id, _CondNC)
	}
}

func (self *Encoder) JumpReg(dst codegen.Reg) {
	self.CheckOpen()
	checkScalar("JumpReg", dst)
	self.prog.JMPQ(r64(dst))
}

/** Calls **/

func (self *Encoder) Call(id codegen.LabelId) {
	self.CheckOpen()
	self.rf.CheckCall()
	self.prog.CALL(self.ref(id))
}

func (self *Encoder) CallReg(dst codegen.Reg) {
	self.CheckOpen()
	self.rf.CheckCall()
	checkScalar("CallReg", dst)
	self.prog.CALLQ(r64(dst))
}

func (self *Encoder) CallMem(mem codegen.MemRef) {
	self.CheckOpen()
	self.rf.CheckCall()
	m, release := self.address(mem)
	defer release()
	self.prog.CALLQ(m)
}

// MakeCall emits a call rel32 to be patched by the loader. The position of
// the call is only known after assembling, reloc is recorded by Finalize.
func (self *Encoder) MakeCall(reloc *codegen.RelocationInfo) {
	self.CheckOpen()
	self.rf.CheckCall()

	/* the default relocation */
	if reloc.Type == codegen.RelocNone {
		reloc.Type = codegen.RelocCall32
	}

	/* mark the call site */
	at := x86_64.CreateLabel(fmt.Sprintf("call%d", len(self.calls)))
	self.calls = append(self.calls, _CallSite{at: at, reloc: *reloc})
	self.prog.Link(at)

	/* call .+0, kept as raw bytes so iasm does not resolve it */
	self.prog.Byte(expr.Int(0xe8))
	self.prog.Long(expr.Int(0))
}

func (self *Encoder) Return() {
	self.CheckOpen()
	self.prog.RET()
}

func (self *Encoder) Abort() {
	self.CheckOpen()
	self.prog.UD2()
}

/** PC-relative Addressing **/

// GetCurrentPc loads the address of the instruction itself, the rip-relative
// lea refers to a label bound right before it.
func (self *Encoder) GetCurrentPc(dst codegen.Reg) {
	self.CheckOpen()
	checkScalar("GetCurrentPc", dst)
	self.checkNoSp("GetCurrentPc", dst)
	self.lea(dst, self.here())
}

func (self *Encoder) lea(dst codegen.Reg, id codegen.LabelId) {
	self.prog.LEAQ(x86_64.Ref(self.refs[id]), r64(dst))
}

// LoadPcRelative loads from pc + offset into dst, using addr for the address.
// dst may be invalid to only compute the address, an invalid addr means dst
// is used for both.
func (self *Encoder) LoadPcRelative(dst codegen.Reg, offset int64, addr codegen.Reg) {
	self.CheckOpen()
	if !addr.IsValid() {
		if !dst.IsValid() || dst.IsFloat() {
			panic("amd64: LoadPcRelative: no register for the address")
		}
		addr = dst
	}

	/* lea pc, addr */
	addr = addr.As(codegen.Int64)
	self.checkNoSp("LoadPcRelative", addr)
	self.lea(addr, self.here())

	/* the offset is folded into the load if possible */
	if !dst.IsValid() {
		self.AddImm(addr, addr, codegen.NewImm(offset))
	} else if isInt32(offset) {
		self.load(dst, false, codegen.Mem(addr, offset))
	} else {
		self.AddImm(addr, addr, codegen.NewImm(offset))
		self.load(dst, false, codegen.Mem(addr, 0))
	}
}

// StackOverflowCheck probes the stack at rsp + offset, the load faults when
// it hits the guard page.
func (self *Encoder) StackOverflowCheck(offset int64) {
	self.CheckOpen()
	tmp := self.rf.Tmp(codegen.Int64)
	defer tmp.Release()
	self.load(tmp.Reg, false, codegen.Mem(self.rf.Sp(), offset))
}
