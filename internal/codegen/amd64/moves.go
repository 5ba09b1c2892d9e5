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
	`math`

	`github.com/chenzhuoyu/iasm/x86_64`
	`github.com/cloudwego/pandajit/internal/codegen`
)

/** Moves **/

func (self *Encoder) Mov(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	switch {
	case dst.IsFloat() && src.IsFloat():
		self.movFloat(dst, src)
	case dst.IsFloat() || src.IsFloat():
		self.MoveBitsRaw(dst, src)
	default:
		self.movInt(dst, src)
	}
}

// movInt copies an integer register. 32-bit moves clear the upper half, so
// widening is a zero extension.
func (self *Encoder) movInt(dst codegen.Reg, src codegen.Reg) {
	if dst.Id == src.Id && dst.Size() <= src.Size() {
		return
	} else if is64(dst) && is64(src) {
		self.prog.MOVQ(r64(src), r64(dst))
	} else {
		self.prog.MOVL(r32(src), r32(dst))
	}
}

func (self *Encoder) movFloat(dst codegen.Reg, src codegen.Reg) {
	if dst.Id != src.Id || dst.Size() != src.Size() {
		self.prog.MOVAPD(xmm(src), xmm(dst))
	}
}

// MovImm loads an immediate with the shortest encoding: xor for 0, movl for
// values that zero extend, the sign extended imm32 form, then movabs.
func (self *Encoder) MovImm(dst codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.movFloatImm(dst, imm)
		return
	}

	/* sub-word values are kept sign extended to 32 bits */
	if !is64(dst) {
		self.movImm32(dst, codegen.NewImmOf(imm.Value, dst.Type).Truncated())
		return
	}

	/* select the encoding */
	switch v := imm.Value; {
	case v == 0:
		self.prog.XORL(r32(dst), r32(dst))
	case v > 0 && v <= math.MaxUint32:
		self.prog.MOVL(v, r32(dst))
	default:
		self.prog.MOVQ(v, r64(dst))
	}
}

func (self *Encoder) movImm32(dst codegen.Reg, v int64) {
	if v == 0 {
		self.prog.XORL(r32(dst), r32(dst))
	} else {
		self.prog.MOVL(int64(int32(v)), r32(dst))
	}
}

func (self *Encoder) movFloatImm(dst codegen.Reg, imm codegen.Imm) {
	bits := imm.FloatBits(dst.Type)

	/* +0.0 is all zeros */
	if bits == 0 {
		self.prog.XORPS(xmm(dst), xmm(dst))
		return
	}

	/* go through a general purpose register */
	tmp := self.rf.Tmp(codegen.TypeOf(dst.Size(), false))
	defer tmp.Release()
	self.MovImm(tmp.Reg, codegen.NewImmOf(int64(bits), tmp.Type))
	self.MoveBitsRaw(dst, tmp.Reg)
}

// MoveBitsRaw copies the bits between a general purpose and an XMM register
// of the same width.
func (self *Encoder) MoveBitsRaw(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	if dst.Size() != src.Size() {
		panic("amd64: MoveBitsRaw: size mismatch between " + dst.String() + " and " + src.String())
	}

	/* select by the register classes */
	switch {
	case dst.IsFloat() == src.IsFloat():
		self.Mov(dst, src)
	case dst.IsFloat() && is64(dst):
		self.prog.MOVQ(r64(src), xmm(dst))
	case dst.IsFloat():
		self.prog.MOVD(r32(src), xmm(dst))
	case is64(dst):
		self.prog.MOVQ(xmm(src), r64(dst))
	default:
		self.prog.MOVD(xmm(src), r32(dst))
	}
}

// FpToBits moves the bits of a floating-point value with every NaN replaced
// by the canonical one.
func (self *Encoder) FpToBits(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("FpToBits", dst)
	checkFloat("FpToBits", src)
	self.checkNoSp("FpToBits", dst)

	/* the canonical NaN goes to a scratch register */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()

	/* 0x7ff8000000000000 or 0x7fc00000 */
	if dst.Size() == 64 {
		self.MovImm(tmp.Reg, codegen.NewImm(0x7ff8000000000000))
	} else {
		self.MovImm(tmp.Reg, codegen.NewImmOf(0x7fc00000, codegen.Int32))
	}

	/* movq src, dst; ucomis src, src; cmovp tmp, dst */
	self.MoveBitsRaw(dst, src)
	self.ucomis(src, src)
	self.prog.CMOVP(gpr(tmp.Reg), gpr(dst))
}

/** Casts **/

func (self *Encoder) Cast(dst codegen.Reg, dstSigned bool, src codegen.Reg, srcSigned bool) {
	self.CheckOpen()
	switch {
	case dst.IsFloat() && src.IsFloat():
		self.castFloat(dst, src)
	case dst.IsFloat():
		self.castToFloat(dst, src, srcSigned)
	case src.IsFloat():
		self.castToInt(dst, dstSigned, src)
	default:
		self.castInt(dst, dstSigned, src, srcSigned)
	}
}

func (self *Encoder) castFloat(dst codegen.Reg, src codegen.Reg) {
	if dst.Size() == src.Size() {
		self.movFloat(dst, src)
	} else if dst.Size() == 64 {
		self.prog.CVTSS2SD(xmm(src), xmm(dst))
	} else {
		self.prog.CVTSD2SS(xmm(src), xmm(dst))
	}
}

func (self *Encoder) cvtsi2f(dst codegen.Reg, src x86_64.Register) {
	if dst.Size() == 64 {
		self.prog.CVTSI2SD(src, xmm(dst))
	} else {
		self.prog.CVTSI2SS(src, xmm(dst))
	}
}

// castToFloat converts an integer. cvtsi2sd only takes signed operands, so
// unsigned 32-bit values are converted from their zero extended 64-bit form,
// and unsigned 64-bit values above MaxInt64 are halved (keeping the low bit
// for rounding) and doubled after conversion.
func (self *Encoder) castToFloat(dst codegen.Reg, src codegen.Reg, signed bool) {
	checkScalar("Cast", src)
	self.checkNoSp("Cast", src)

	/* signed values, sub-word ones are already sign extended */
	if signed {
		self.cvtsi2f(dst, gpr(src))
		return
	}

	/* unsigned values that fit in an int64 */
	if !is64(src) {
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()
		self.extend(tmp.Reg, src, src.Size(), false)
		self.cvtsi2f(dst, r64(tmp.Reg))
		return
	}

	/* the large ones are split */
	big := self.CreateLabel()
	done := self.CreateLabel()
	self.prog.TESTQ(r64(src), r64(src))
	self.prog.JS(self.ref(big))
	self.cvtsi2f(dst, r64(src))
	self.prog.JMP(self.ref(done))

	/* (src >> 1) | (src & 1) */
	self.BindLabel(big)
	t0 := self.rf.Tmp(codegen.Int64)
	t1 := self.rf.Tmp(codegen.Int64)
	self.prog.MOVQ(r64(src), r64(t0.Reg))
	self.prog.SHRQ(1, r64(t0.Reg))
	self.prog.MOVL(r32(src), r32(t1.Reg))
	self.prog.ANDL(1, r32(t1.Reg))
	self.prog.ORQ(r64(t1.Reg), r64(t0.Reg))
	self.cvtsi2f(dst, r64(t0.Reg))
	t1.Release()
	t0.Release()

	/* double it */
	if dst.Size() == 64 {
		self.prog.ADDSD(xmm(dst), xmm(dst))
	} else {
		self.prog.ADDSS(xmm(dst), xmm(dst))
	}

	/* both paths join here */
	self.BindLabel(done)
}

func (self *Encoder) cvttf2si(dst x86_64.Register, src codegen.Reg) {
	if src.Size() == 64 {
		self.prog.CVTTSD2SI(xmm(src), dst)
	} else {
		self.prog.CVTTSS2SI(xmm(src), dst)
	}
}

// castToInt truncates towards zero. Out of range values and NaN give the
// integer indefinite value of cvttsd2si (only the sign bit set).
func (self *Encoder) castToInt(dst codegen.Reg, signed bool, src codegen.Reg) {
	self.checkNoSp("Cast", dst)

	/* everything up to uint32 fits the signed 64-bit conversion */
	switch {
	case signed && is64(dst):
		self.cvttf2si(r64(dst), src)
		return
	case signed && dst.Size() == 32:
		self.cvttf2si(r32(dst), src)
		return
	case !is64(dst):
		self.cvttf2si(r64(dst), src)
		if dst.Size() < 32 {
			self.extend(dst, dst, dst.Size(), signed)
		}
		return
	}

	/* 2^63 in the source precision */
	lim := self.rf.Tmp(src.Type)
	defer lim.Release()
	self.movFloatImm(lim.Reg, codegen.NewFloat64Imm(1<<63))

	/* values below 2^63 convert directly */
	big := self.CreateLabel()
	done := self.CreateLabel()
	self.ucomis(src, lim.Reg)
	self.prog.JAE(self.ref(big))
	self.cvttf2si(r64(dst), src)
	self.prog.JMP(self.ref(done))

	/* the others are offset by 2^63 */
	self.BindLabel(big)
	tmp := self.rf.Tmp(src.Type)
	self.movFloat(tmp.Reg, src)
	if src.Size() == 64 {
		self.prog.SUBSD(xmm(lim.Reg), xmm(tmp.Reg))
	} else {
		self.prog.SUBSS(xmm(lim.Reg), xmm(tmp.Reg))
	}

	/* and the top bit is put back */
	self.cvttf2si(r64(dst), tmp.Reg)
	self.prog.BTCQ(63, r64(dst))
	self.BindLabel(done)
	tmp.Release()
}

func (self *Encoder) castInt(dst codegen.Reg, dstSigned bool, src codegen.Reg, srcSigned bool) {
	self.checkNoSp("Cast", dst, src)
	switch ds, ss := dst.Size(), src.Size(); {
	case ds < ss && ds < 32:
		self.extend(dst, src, ds, dstSigned)
	case ds < ss:
		self.prog.MOVL(r32(src), r32(dst))
	case ds > ss && ss < 32:
		self.extend(dst, src, ss, srcSigned)
	case ds > ss && srcSigned:
		self.prog.MOVSLQ(r32(src), r64(dst))
	case ds > ss:
		self.prog.MOVL(r32(src), r32(dst))
	default:
		self.movInt(dst, src)
	}
}

// extend sign or zero extends the low bits of src into dst.
func (self *Encoder) extend(dst codegen.Reg, src codegen.Reg, bits int, signed bool) {
	switch {
	case bits == 8 && signed && is64(dst):
		self.prog.MOVSBQ(r8(src), r64(dst))
	case bits == 8 && signed:
		self.prog.MOVSBL(r8(src), r32(dst))
	case bits == 8:
		self.prog.MOVZBL(r8(src), r32(dst))
	case bits == 16 && signed && is64(dst):
		self.prog.MOVSWQ(r16(src), r64(dst))
	case bits == 16 && signed:
		self.prog.MOVSWL(r16(src), r32(dst))
	case bits == 16:
		self.prog.MOVZWL(r16(src), r32(dst))
	case bits == 32 && signed && is64(dst):
		self.prog.MOVSLQ(r32(src), r64(dst))
	default:
		self.prog.MOVL(r32(src), r32(dst))
	}
}

// zeroExtend widens a sub-word value to dst.
func (self *Encoder) zeroExtend(dst codegen.Reg, src codegen.Reg) {
	self.extend(dst, src, src.Size(), false)
}

func (self *Encoder) CastToBool(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("CastToBool", dst, src)
	self.checkNoSp("CastToBool", dst)
	self.cmpImm(src, 0)
	self.setcc(dst, _CondNE)
}

/** Comparisons **/

// cmpRegs sets the flags for src0 - src1.
func (self *Encoder) cmpRegs(src0 codegen.Reg, src1 codegen.Reg) {
	if is64(src0) {
		self.prog.CMPQ(r64(src1), r64(src0))
	} else {
		self.prog.CMPL(r32(src1), r32(src0))
	}
}

func (self *Encoder) cmpImm(src codegen.Reg, v int64) {
	if !is64(src) {
		self.prog.CMPL(int64(int32(v)), r32(src))
	} else if isInt32(v) {
		self.prog.CMPQ(v, r64(src))
	} else {
		tmp := self.rf.Tmp(src.Type)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImm(v))
		self.cmpRegs(src, tmp.Reg)
	}
}

// test sets the flags for src0 & src1.
func (self *Encoder) test(src0 codegen.Reg, src1 codegen.Reg) {
	if is64(src0) {
		self.prog.TESTQ(r64(src1), r64(src0))
	} else {
		self.prog.TESTL(r32(src1), r32(src0))
	}
}

func (self *Encoder) testImm(src codegen.Reg, v int64) {
	if !is64(src) {
		self.prog.TESTL(int64(int32(v)), r32(src))
	} else if isInt32(v) {
		self.prog.TESTQ(v, r64(src))
	} else {
		tmp := self.rf.Tmp(src.Type)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImm(v))
		self.test(src, tmp.Reg)
	}
}

// ucomis sets the flags for src0 - src1, unordered sets ZF, PF and CF.
func (self *Encoder) ucomis(src0 codegen.Reg, src1 codegen.Reg) {
	if src0.Size() == 64 {
		self.prog.UCOMISD(xmm(src1), xmm(src0))
	} else {
		self.prog.UCOMISS(xmm(src1), xmm(src0))
	}
}

// fcompare maps the conditions onto the unsigned flags of ucomis. The ordered
// ones swap the operands to test "above", which is false when unordered, and
// the unsigned ones mean "or unordered".
func (self *Encoder) fcompare(src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) _Cond {
	switch cc {
	case codegen.CcEq, codegen.CcNe:
		return self.fequal(src0, src1, cc == codegen.CcEq)
	case codegen.CcLt:
		self.ucomis(src1, src0)
		return _CondA
	case codegen.CcLe:
		self.ucomis(src1, src0)
		return _CondAE
	case codegen.CcGt:
		self.ucomis(src0, src1)
		return _CondA
	case codegen.CcGe:
		self.ucomis(src0, src1)
		return _CondAE
	case codegen.CcB:
		self.ucomis(src0, src1)
		return _CondB
	case codegen.CcBe:
		self.ucomis(src0, src1)
		return _CondBE
	case codegen.CcA:
		self.ucomis(src1, src0)
		return _CondB
	case codegen.CcAe:
		self.ucomis(src1, src0)
		return _CondBE
	default:
		panic("amd64: invalid floating-point condition: " + cc.String())
	}
}

// fequal folds ZF and PF into ZF, equal means ZF set and PF clear.
func (self *Encoder) fequal(src0 codegen.Reg, src1 codegen.Reg, eq bool) _Cond {
	t0 := self.rf.Tmp(codegen.Int32)
	t1 := self.rf.Tmp(codegen.Int32)
	defer t0.Release()
	defer t1.Release()

	/* sete t0; setnp t1; testb t0, t1 */
	self.ucomis(src0, src1)
	self.prog.SETE(r8(t0.Reg))
	self.prog.SETNP(r8(t1.Reg))
	self.prog.TESTB(r8(t0.Reg), r8(t1.Reg))

	/* non-zero if both are set */
	if eq {
		return _CondNE
	} else {
		return _CondE
	}
}

// compare sets the flags for src0 <cc> src1 and returns the condition code
// that holds when the comparison is true.
func (self *Encoder) compare(src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) _Cond {
	if cc.IsTest() {
		checkScalar("Test", src0, src1)
		self.test(src0, src1)
		return testCond(cc)
	} else if src0.IsFloat() {
		checkFloat("Compare", src1)
		return self.fcompare(src0, src1, cc)
	} else {
		checkScalar("Compare", src1)
		self.cmpRegs(src0, src1)
		return intCond(cc)
	}
}

func (self *Encoder) compareImm(src codegen.Reg, imm codegen.Imm, cc codegen.Condition) _Cond {
	checkScalar("Compare", src)
	if cc.IsTest() {
		self.testImm(src, imm.Value)
		return testCond(cc)
	} else {
		self.cmpImm(src, imm.Value)
		return intCond(cc)
	}
}

// setcc writes 1 or 0, the byte is extended afterwards since dst may be one
// of the operands.
func (self *Encoder) setcc(dst codegen.Reg, cond _Cond) {
	_SetccTab[cond](self.prog, r8(dst))
	self.prog.MOVZBL(r8(dst), r32(dst))
}

// cmov sets dst to a if cond holds and to b otherwise.
func (self *Encoder) cmov(dst codegen.Reg, a codegen.Reg, b codegen.Reg, cond _Cond) {
	if dst.IsFloat() {
		self.fselect(dst, a, b, cond)
		return
	}

	/* checked as integers */
	checkScalar("Select", dst, a, b)
	self.checkNoSp("Select", dst, a, b)

	/* the mov must not clobber a, and flags survive mov */
	if dst.Id == a.Id {
		_CmovTab[cond.Inverse()](self.prog, as(b, dst), as(dst, dst))
	} else {
		self.movInt(dst, b)
		_CmovTab[cond](self.prog, as(a, dst), as(dst, dst))
	}
}

// fselect branches, there is no conditional move for XMM registers.
func (self *Encoder) fselect(dst codegen.Reg, a codegen.Reg, b codegen.Reg, cond _Cond) {
	checkFloat("Select", a, b)
	take := self.CreateLabel()
	done := self.CreateLabel()

	/* jcc take; mov b, dst; jmp done; take: mov a, dst; done: */
	_JccTab[cond](self.prog, self.ref(take))
	self.movFloat(dst, b)
	self.prog.JMP(self.ref(done))
	self.BindLabel(take)
	self.movFloat(dst, a)
	self.BindLabel(done)
}

func (self *Encoder) Compare(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("Compare", dst)
	self.checkNoSp("Compare", dst)
	self.setcc(dst, self.compare(src0, src1, cc))
}

func (self *Encoder) CompareTest(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("CompareTest", dst, src0, src1)
	self.checkNoSp("CompareTest", dst)
	self.test(src0, src1)
	self.setcc(dst, testCond(cc))
}

// Select sets dst to a if lhs <cc> rhs holds and to b otherwise.
func (self *Encoder) Select(dst codegen.Reg, a codegen.Reg, b codegen.Reg, lhs codegen.Reg, rhs codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	self.cmov(dst, a, b, self.compare(lhs, rhs, cc))
}

func (self *Encoder) SelectImm(dst codegen.Reg, a codegen.Reg, b codegen.Reg, lhs codegen.Reg, imm codegen.Imm, cc codegen.Condition) {
	self.CheckOpen()
	self.cmov(dst, a, b, self.compareImm(lhs, imm, cc))
}

func (self *Encoder) SelectTest(dst codegen.Reg, a codegen.Reg, b codegen.Reg, lhs codegen.Reg, rhs codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("SelectTest", lhs, rhs)
	self.test(lhs, rhs)
	self.cmov(dst, a, b, testCond(cc))
}
