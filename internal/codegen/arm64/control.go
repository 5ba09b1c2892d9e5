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
	`fmt`
	`math/bits`

	`github.com/cloudwego/pandajit/internal/codegen`
)

const (
	_PageBits = 12
	_PageSize = 1 << _PageBits
)

/** Branches **/

func (self *Encoder) Jump(id codegen.LabelId) {
	self.CheckOpen()
	self.branchTo(id, _FixupBranch26, encodeBranch(false, 0))
}

func (self *Encoder) JumpCc(id codegen.LabelId, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	self.branchTo(id, _FixupImm19, encodeBranchCond(self.compare(src0, src1, cc), 0))
}

// JumpImm compares with an immediate, comparing with 0 for equality is a
// cbz or cbnz.
func (self *Encoder) JumpImm(id codegen.LabelId, src codegen.Reg, imm codegen.Imm, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("JumpImm", src)

	/* cbz / cbnz */
	if imm.IsZero() && !self.rf.IsSp(src) {
		switch cc {
		case codegen.CcEq:
			self.branchTo(id, _FixupImm19, encodeCompareBranch(sf(src), 0, enc(src), 0))
			return
		case codegen.CcNe:
			self.branchTo(id, _FixupImm19, encodeCompareBranch(sf(src), 1, enc(src), 0))
			return
		}
	}

	/* cmp + b.cond */
	self.branchTo(id, _FixupImm19, encodeBranchCond(self.compareImm(src, imm, cc), 0))
}

func (self *Encoder) JumpTest(id codegen.LabelId, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("JumpTest", src0, src1)
	self.test(src0, src1)
	self.branchTo(id, _FixupImm19, encodeBranchCond(testCond(cc), 0))
}

// JumpTestImm tests against a mask, a single bit mask is a tbz or tbnz.
func (self *Encoder) JumpTestImm(id codegen.LabelId, src codegen.Reg, imm codegen.Imm, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("JumpTestImm", src)
	cond := testCond(cc)

	/* cut the mask to the register width */
	v := uint64(imm.Value)
	if width(src) == 32 {
		v &= 0xffffffff
	}

	/* tbz / tbnz */
	if v != 0 && v&(v-1) == 0 {
		self.JumpBit(id, src, uint8(bits.TrailingZeros64(v)), cond == _CondNE)
	} else {
		self.testImm(src, imm.Value)
		self.branchTo(id, _FixupImm19, encodeBranchCond(cond, 0))
	}
}

// JumpBit jumps if the bit is set (tbnz) or clear (tbz).
func (self *Encoder) JumpBit(id codegen.LabelId, src codegen.Reg, bit uint8, set bool) {
	self.CheckOpen()
	checkScalar("JumpBit", src)
	self.checkNoSp("JumpBit", src)

	/* the bit must exist */
	if uint32(bit) >= width(src) {
		panic(fmt.Sprintf("arm64: JumpBit: bit %d out of range for %s", bit, src))
	} else {
		self.branchTo(id, _FixupImm14, encodeTestBranch(pick(set, 1, 0), enc(src), uint32(bit), 0))
	}
}

func (self *Encoder) JumpReg(dst codegen.Reg) {
	self.CheckOpen()
	checkScalar("JumpReg", dst)
	self.emit(encodeBranchReg(_BR, enc(dst)))
}

/** Calls **/

func (self *Encoder) Call(id codegen.LabelId) {
	self.CheckOpen()
	self.rf.CheckCall()
	self.branchTo(id, _FixupBranch26, encodeBranch(true, 0))
}

func (self *Encoder) CallReg(dst codegen.Reg) {
	self.CheckOpen()
	self.rf.CheckCall()
	checkScalar("CallReg", dst)
	self.emit(encodeBranchReg(_BLR, enc(dst)))
}

func (self *Encoder) CallMem(mem codegen.MemRef) {
	self.CheckOpen()
	self.rf.CheckCall()
	tmp := self.rf.Tmp(codegen.Int64)
	defer tmp.Release()
	self.Ldr(tmp.Reg, false, mem)
	self.emit(encodeBranchReg(_BLR, enc(tmp.Reg)))
}

// MakeCall emits a bl to be patched by the loader, reloc is updated with the
// position of the instruction and recorded.
func (self *Encoder) MakeCall(reloc *codegen.RelocationInfo) {
	self.CheckOpen()
	self.rf.CheckCall()

	/* record the call site */
	if reloc.Type == codegen.RelocNone {
		reloc.Type = codegen.RelocCall26
	}

	/* bl #0 */
	reloc.Offset = uint32(self.buf.Len())
	self.relocs = append(self.relocs, *reloc)
	self.emit(encodeBranch(true, 0))
}

func (self *Encoder) Return() {
	self.CheckOpen()
	self.emit(encodeBranchReg(_RET, LR))
}

func (self *Encoder) Abort() {
	self.CheckOpen()
	self.emit(encodeBrk(0))
}

/** PC-relative Addressing **/

func (self *Encoder) GetCurrentPc(dst codegen.Reg) {
	self.CheckOpen()
	checkScalar("GetCurrentPc", dst)
	self.checkNoSp("GetCurrentPc", dst)
	self.emit(encodeAdr(enc(dst), 0))
}

// LoadPcRelative loads from pc + offset into dst, using addr for the address.
// dst may be invalid to only compute the address, an invalid addr means dst
// is used for both.
//
// Offsets beyond ±1MB use adrp with the page offset added afterwards. When
// the target is below the start of the code, both the pc and the target are
// moved up by whole pages first, so the page arithmetic works on positive
// values.
func (self *Encoder) LoadPcRelative(dst codegen.Reg, offset int64, addr codegen.Reg) {
	self.CheckOpen()
	if !addr.IsValid() {
		if !dst.IsValid() || dst.IsFloat() {
			panic("arm64: LoadPcRelative: no register for the address")
		}
		addr = dst
	}

	/* adr reaches ±1MB */
	addr = addr.As(codegen.Int64)
	if isInt(offset, 21) {
		self.emit(encodeAdr(enc(addr), offset))
		if dst.IsValid() {
			self.Ldr(dst, false, codegen.Mem(addr, 0))
		}
		return
	}

	/* page-straddle correction */
	pc := self.base + int64(self.buf.Len())
	target := pc + offset
	if target < 0 {
		ext := (-target + _PageSize - 1) &^ (_PageSize - 1)
		target += ext
		pc += ext
	}

	/* adrp reaches ±4GB */
	pages := target>>_PageBits - pc>>_PageBits
	if !isInt(pages, 21) {
		self.SetFalseResult("LoadPcRelative", fmt.Sprintf("offset %d out of range", offset))
		return
	}

	/* add the offset within the page */
	low := target & (_PageSize - 1)
	self.emit(encodeAdrp(enc(addr), pages))

	/* fold the page offset into the load if possible */
	if !dst.IsValid() {
		self.AddImm(addr, addr, codegen.NewImm(low))
	} else if dst.IsFloat() || dst.Id != addr.Id {
		self.AddImm(addr, addr, codegen.NewImm(low))
		self.Ldr(dst, false, codegen.Mem(addr, 0))
	} else {
		self.Ldr(dst, false, codegen.Mem(addr, low))
	}
}

// StackOverflowCheck probes the stack at sp + offset, the load faults when it
// hits the guard page.
func (self *Encoder) StackOverflowCheck(offset int64) {
	self.CheckOpen()
	tmp := self.rf.Tmp(codegen.Int64)
	defer tmp.Release()
	self.AddImm(tmp.Reg, XSP, codegen.NewImm(offset))
	self.Ldr(tmp.Reg, false, codegen.Mem(tmp.Reg, 0))
}
