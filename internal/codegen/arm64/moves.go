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
	`math`

	`github.com/cloudwego/pandajit/internal/codegen`
)

/** Moves **/

func (self *Encoder) Mov(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	switch {
	case dst.IsFloat() && src.IsFloat():
		if dst.Id != src.Id || dst.Size() != src.Size() {
			self.emit(encodeFpDataProc1(ftype(dst), _FpMov, enc(dst), enc(src)))
		}
	case dst.IsFloat() || src.IsFloat():
		self.MoveBitsRaw(dst, src)
	default:
		self.movInt(dst, src)
	}
}

func (self *Encoder) movInt(dst codegen.Reg, src codegen.Reg) {
	if self.discard(dst) {
		return
	}

	/* narrowing a register into itself needs nothing */
	if dst.Id == src.Id && dst.Size() <= src.Size() {
		return
	}

	/* mov to or from sp is add #0 */
	if self.rf.IsSp(dst) || self.rf.IsSp(src) {
		if self.rf.IsZero(src) {
			panic("arm64: Mov: cannot move the zero register into sp")
		}
		self.emit(encodeAddSubImm(1, 0, 0, enc(dst), enc(src), 0, 0))
		return
	}

	/* widening moves zero extend */
	if dst.Size() > src.Size() {
		self.emit(encodeLogicalShifted(sf(src), _LogicOrr, 0, enc(dst), ZR, enc(src), _ShiftLSL, 0))
	} else {
		self.emit(encodeLogicalShifted(sf(dst), _LogicOrr, 0, enc(dst), ZR, enc(src), _ShiftLSL, 0))
	}
}

// MovImm materializes an immediate with the shortest of movz/movn + movk and
// the bitmask orr, or a load from the literal pool when it takes 4
// instructions.
func (self *Encoder) MovImm(dst codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.movFloatImm(dst, imm)
		return
	}

	/* sp cannot be the target of movz */
	if self.discard(dst) {
		return
	} else if self.rf.IsSp(dst) {
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()
		self.MovImm(tmp.Reg, imm)
		self.Mov(dst, tmp.Reg)
		return
	}

	/* sub-word values are kept sign extended */
	if dst.Size() == 64 {
		self.movImm64(enc(dst), uint64(imm.Value))
	} else {
		self.movImm32(enc(dst), uint32(codegen.NewImmOf(imm.Value, dst.Type).Truncated()))
	}
}

func halfwords(v uint64, n int) (zeros int, ones int) {
	for i := 0; i < n; i++ {
		if h := (v >> (16 * i)) & 0xffff; h == 0 {
			zeros++
		} else if h == 0xffff {
			ones++
		}
	}
	return
}

func (self *Encoder) movImm64(rd uint32, v uint64) {
	zeros, ones := halfwords(v, 4)
	switch {
	case zeros >= 2 || ones >= 2:
		self.movWide(1, rd, v, 4, ones > zeros)
	case isBitmaskImmediate(v):
		n, immr, imms := bitmaskImmediate(v, true)
		self.emit(encodeLogicalImm(1, _LogicOrr, rd, ZR, n, immr, imms))
	case zeros == 1 || ones == 1:
		self.movWide(1, rd, v, 4, ones > zeros)
	default:
		self.loadLiteral(_LDRLitX, rd, v)
	}
}

func (self *Encoder) movImm32(rd uint32, v uint32) {
	zeros, ones := halfwords(uint64(v), 2)
	switch {
	case zeros != 0 || ones != 0:
		self.movWide(0, rd, uint64(v), 2, ones > zeros)
	case isBitmaskImmediate(replicate32(uint64(v))):
		n, immr, imms := bitmaskImmediate(replicate32(uint64(v)), false)
		self.emit(encodeLogicalImm(0, _LogicOrr, rd, ZR, n, immr, imms))
	default:
		self.movWide(0, rd, uint64(v), 2, false)
	}
}

// movWide emits movz (or movn when inverted) for the first halfword that is
// not implied, and movk for the rest.
func (self *Encoder) movWide(x uint32, rd uint32, v uint64, n int, inverted bool) {
	skip := uint64(0)
	first := true

	/* movn fills the other halfwords with ones */
	if inverted {
		skip = 0xffff
	}

	/* emit each non-trivial halfword */
	for i := 0; i < n; i++ {
		if h := (v >> (16 * i)) & 0xffff; h == skip {
			continue
		} else if !first {
			self.emit(encodeMoveWide(x, _MovK, rd, uint32(h), uint32(i)))
		} else if first = false; inverted {
			self.emit(encodeMoveWide(x, _MovN, rd, uint32(^h&0xffff), uint32(i)))
		} else {
			self.emit(encodeMoveWide(x, _MovZ, rd, uint32(h), uint32(i)))
		}
	}

	/* all halfwords were implied */
	if !first {
		return
	} else if inverted {
		self.emit(encodeMoveWide(x, _MovN, rd, 0, 0))
	} else {
		self.emit(encodeMoveWide(x, _MovZ, rd, 0, 0))
	}
}

func (self *Encoder) movFloatImm(dst codegen.Reg, imm codegen.Imm) {
	bits := imm.FloatBits(dst.Type)
	imm8, ok := fpImm8(bits, dst.Size() == 64)

	/* +0.0 comes from the zero register, the rest from fmov or the pool */
	if bits == 0 {
		self.emit(encodeFpIntConvert(sf(dst), ftype(dst), _CvtFMOVToFp, enc(dst), ZR))
	} else if ok {
		self.emit(encodeFpImm(ftype(dst), enc(dst), imm8))
	} else if dst.Size() == 64 {
		self.loadLiteral(_LDRLitD, enc(dst), bits)
	} else {
		self.loadLiteral(_LDRLitS, enc(dst), bits)
	}
}

// MoveBitsRaw moves the bits between a general purpose and a vector register
// of the same width.
func (self *Encoder) MoveBitsRaw(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	if dst.Size() != src.Size() {
		panic(fmt.Sprintf("arm64: MoveBitsRaw: width mismatch: %s and %s", dst, src))
	}

	/* fmov between the register files */
	switch {
	case dst.IsFloat() == src.IsFloat():
		self.Mov(dst, src)
	case dst.IsFloat():
		self.checkNoSp("MoveBitsRaw", src)
		self.emit(encodeFpIntConvert(sf(dst), ftype(dst), _CvtFMOVToFp, enc(dst), enc(src)))
	case !self.discard(dst):
		self.checkNoSp("MoveBitsRaw", dst)
		self.emit(encodeFpIntConvert(sf(src), ftype(src), _CvtFMOVToGp, enc(dst), enc(src)))
	}
}

// FpToBits moves the bits of a floating-point value with every NaN replaced
// by the canonical one.
func (self *Encoder) FpToBits(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("FpToBits", dst)
	checkFloat("FpToBits", src)

	/* the canonical NaN goes to a scratch register */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()

	/* 0x7ff8000000000000 or 0x7fc00000 */
	if dst.Size() == 64 {
		self.emit(encodeMoveWide(1, _MovZ, enc(tmp.Reg), 0x7ff8, 3))
	} else {
		self.emit(encodeMoveWide(0, _MovZ, enc(tmp.Reg), 0x7fc0, 1))
	}

	/* fmov dst, src; fcmp src, src; csel dst, tmp, dst, vs */
	self.MoveBitsRaw(dst, src)
	self.emit(encodeFpCompare(ftype(src), enc(src), enc(src)))
	self.emit(encodeCondSelect(sf(dst), 0, 0, enc(dst), enc(tmp.Reg), enc(dst), _CondVS))
}

/** Casts **/

func (self *Encoder) Cast(dst codegen.Reg, dstSigned bool, src codegen.Reg, srcSigned bool) {
	self.CheckOpen()
	switch {
	case dst.IsFloat() && src.IsFloat():
		self.castFloat(dst, src)
	case dst.IsFloat():
		self.checkNoSp("Cast", src)
		self.emit(encodeFpIntConvert(sf(src), ftype(dst), pick(srcSigned, _CvtSCVTF, _CvtUCVTF), enc(dst), enc(src)))
	case src.IsFloat():
		self.castToInt(dst, dstSigned, src)
	default:
		self.castInt(dst, dstSigned, src, srcSigned)
	}
}

func pick(c bool, a uint32, b uint32) uint32 {
	if c {
		return a
	} else {
		return b
	}
}

func (self *Encoder) castFloat(dst codegen.Reg, src codegen.Reg) {
	if dst.Size() == src.Size() {
		self.Mov(dst, src)
	} else if dst.Size() == 64 {
		self.emit(encodeFpDataProc1(ftype(src), _FpCvtD, enc(dst), enc(src)))
	} else {
		self.emit(encodeFpDataProc1(ftype(src), _FpCvtS, enc(dst), enc(src)))
	}
}

// castToInt truncates towards zero. Out of range values saturate and NaN
// converts to 0.
func (self *Encoder) castToInt(dst codegen.Reg, signed bool, src codegen.Reg) {
	self.checkNoSp("Cast", dst)
	if self.discard(dst) {
		return
	}

	/* fcvtzs / fcvtzu */
	op := pick(signed, _CvtFCVTZS, _CvtFCVTZU)
	self.emit(encodeFpIntConvert(sf(dst), ftype(src), op, enc(dst), enc(src)))

	/* sub-word results are extended in place */
	if dst.Size() < 32 {
		self.extend(dst, dst, dst.Size(), signed)
	}
}

func (self *Encoder) castInt(dst codegen.Reg, dstSigned bool, src codegen.Reg, srcSigned bool) {
	self.checkNoSp("Cast", dst, src)
	if self.discard(dst) {
		return
	}

	/* select by the widths */
	switch ds, ss := dst.Size(), src.Size(); {
	case ds < ss && ds < 32:
		self.extend(dst, src, ds, dstSigned)
	case ds < ss:
		self.emit(encodeLogicalShifted(0, _LogicOrr, 0, enc(dst), ZR, enc(src), _ShiftLSL, 0))
	case ds > ss && ss < 32:
		self.extend(dst, src, ss, srcSigned)
	case ds > ss && srcSigned:
		self.emit(encodeBitfield(1, _SBFM, enc(dst), enc(src), 0, 31))
	case ds > ss:
		self.emit(encodeLogicalShifted(0, _LogicOrr, 0, enc(dst), ZR, enc(src), _ShiftLSL, 0))
	default:
		self.Mov(dst, src)
	}
}

// extend sign or zero extends the low bits of src into dst.
func (self *Encoder) extend(dst codegen.Reg, src codegen.Reg, bits int, signed bool) {
	if signed {
		self.emit(encodeBitfield(sf(dst), _SBFM, enc(dst), enc(src), 0, uint32(bits)-1))
	} else {
		self.emit(encodeBitfield(0, _UBFM, enc(dst), enc(src), 0, uint32(bits)-1))
	}
}

func (self *Encoder) CastToBool(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("CastToBool", dst, src)
	self.cmpImm(src, 0)
	self.cset(dst, _CondNE)
}

/** Comparisons **/

// cmpRegs sets the flags for src0 - src1.
func (self *Encoder) cmpRegs(src0 codegen.Reg, src1 codegen.Reg) {
	if self.rf.IsSp(src1) {
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()
		self.Mov(tmp.Reg, src1)
		src1 = tmp.Reg
	}

	/* subs zr, src0, src1 */
	if self.rf.IsSp(src0) {
		self.emit(encodeAddSubExtended(1, 1, 1, ZR, enc(src0), enc(src1), 0))
	} else {
		self.emit(encodeAddSubShifted(sf(src0), 1, 1, ZR, enc(src0), enc(src1), _ShiftLSL, 0))
	}
}

// cmpImm sets the flags for src - v, negative values are compared with cmn.
func (self *Encoder) cmpImm(src codegen.Reg, v int64) {
	sub := uint32(1)
	u := uint64(v)

	/* cmn src, #-v */
	if v < 0 && v != math.MinInt64 {
		sub, u = 0, uint64(-v)
	}

	/* the immediate forms read 31 as sp */
	if !self.rf.IsZero(src) && u < 1<<12 {
		self.emit(encodeAddSubImm(sf(src), sub, 1, ZR, enc(src), uint32(u), 0))
	} else if !self.rf.IsZero(src) && u&0xfff == 0 && u < 1<<24 {
		self.emit(encodeAddSubImm(sf(src), sub, 1, ZR, enc(src), uint32(u>>12), 1))
	} else {
		tmp := self.rf.Tmp(src.Type)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImmOf(v, src.Type))
		self.cmpRegs(src, tmp.Reg)
	}
}

// test sets the flags for src0 & src1.
func (self *Encoder) test(src0 codegen.Reg, src1 codegen.Reg) {
	self.checkNoSp("Test", src0, src1)
	self.emit(encodeLogicalShifted(sf(src0), _LogicAnds, 0, ZR, enc(src0), enc(src1), _ShiftLSL, 0))
}

func (self *Encoder) testImm(src codegen.Reg, v int64) {
	self.checkNoSp("Test", src)
	pattern := uint64(v)

	/* 32-bit patterns are replicated */
	if width(src) == 32 {
		pattern = replicate32(pattern)
	}

	/* tst src, #imm */
	if isBitmaskImmediate(pattern) {
		n, immr, imms := bitmaskImmediate(pattern, width(src) == 64)
		self.emit(encodeLogicalImm(sf(src), _LogicAnds, ZR, enc(src), n, immr, imms))
	} else {
		tmp := self.rf.Tmp(src.Type)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImmOf(v, src.Type))
		self.test(src, tmp.Reg)
	}
}

// compare sets the flags for src0 <cc> src1 and returns the condition code
// that holds when the comparison is true.
func (self *Encoder) compare(src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) uint32 {
	if cc.IsTest() {
		checkScalar("Test", src0, src1)
		self.test(src0, src1)
		return testCond(cc)
	} else if src0.IsFloat() {
		checkFloat("Compare", src1)
		self.emit(encodeFpCompare(ftype(src0), enc(src0), enc(src1)))
		return floatCond(cc)
	} else {
		checkScalar("Compare", src1)
		self.cmpRegs(src0, src1)
		return intCond(cc)
	}
}

func (self *Encoder) compareImm(src codegen.Reg, imm codegen.Imm, cc codegen.Condition) uint32 {
	checkScalar("Compare", src)
	if cc.IsTest() {
		self.testImm(src, imm.Value)
		return testCond(cc)
	} else {
		self.cmpImm(src, imm.Value)
		return intCond(cc)
	}
}

// cset is csinc dst, zr, zr, !cond.
func (self *Encoder) cset(dst codegen.Reg, cond uint32) {
	if !self.discard(dst) {
		self.emit(encodeCondSelect(sf(dst), 0, 1, enc(dst), ZR, ZR, cond^1))
	}
}

func (self *Encoder) csel(dst codegen.Reg, a codegen.Reg, b codegen.Reg, cond uint32) {
	if dst.IsFloat() {
		checkFloat("Select", a, b)
		self.emit(encodeFpCondSelect(ftype(dst), enc(dst), enc(a), enc(b), cond))
	} else if !self.discard(dst) {
		self.checkNoSp("Select", dst, a, b)
		self.emit(encodeCondSelect(sf(dst), 0, 0, enc(dst), enc(a), enc(b), cond))
	}
}

func (self *Encoder) Compare(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("Compare", dst)
	self.cset(dst, self.compare(src0, src1, cc))
}

func (self *Encoder) CompareTest(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("CompareTest", dst, src0, src1)
	self.test(src0, src1)
	self.cset(dst, testCond(cc))
}

// Select sets dst to a if lhs <cc> rhs holds and to b otherwise.
func (self *Encoder) Select(dst codegen.Reg, a codegen.Reg, b codegen.Reg, lhs codegen.Reg, rhs codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	self.csel(dst, a, b, self.compare(lhs, rhs, cc))
}

func (self *Encoder) SelectImm(dst codegen.Reg, a codegen.Reg, b codegen.Reg, lhs codegen.Reg, imm codegen.Imm, cc codegen.Condition) {
	self.CheckOpen()
	self.csel(dst, a, b, self.compareImm(lhs, imm, cc))
}

func (self *Encoder) SelectTest(dst codegen.Reg, a codegen.Reg, b codegen.Reg, lhs codegen.Reg, rhs codegen.Reg, cc codegen.Condition) {
	self.CheckOpen()
	checkScalar("SelectTest", lhs, rhs)
	self.test(lhs, rhs)
	self.csel(dst, a, b, testCond(cc))
}
