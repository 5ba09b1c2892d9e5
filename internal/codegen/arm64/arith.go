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

// discard reports whether dst is the zero register, writes to it are dropped
// without emitting anything.
func (self *Encoder) discard(dst codegen.Reg) bool {
	return self.rf.IsZero(dst)
}

func (self *Encoder) checkNoSp(op string, regs ...codegen.Reg) {
	for _, r := range regs {
		if self.rf.IsSp(r) {
			panic(fmt.Sprintf("arm64: %s: sp is not a valid operand", op))
		}
	}
}

// viaTmp materializes imm into a scratch register and applies the register
// form of an operation.
func (self *Encoder) viaTmp(op func(codegen.Reg, codegen.Reg, codegen.Reg), dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	self.MovImm(tmp.Reg, imm)
	op(dst, src, tmp.Reg)
}

/** Register Forms **/

func (self *Encoder) Add(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc2(ftype(dst), _FpAdd, enc(dst), enc(src0), enc(src1)))
	} else {
		self.addSub(0, dst, src0, src1)
	}
}

func (self *Encoder) Sub(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc2(ftype(dst), _FpSub, enc(dst), enc(src0), enc(src1)))
	} else {
		self.addSub(1, dst, src0, src1)
	}
}

func (self *Encoder) addSub(sub uint32, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	if self.discard(dst) {
		return
	}

	/* sp cannot be the second operand */
	if self.rf.IsSp(src1) {
		if sub == 0 && !self.rf.IsSp(src0) {
			src0, src1 = src1, src0
		} else {
			tmp := self.rf.Tmp(codegen.Int64)
			defer tmp.Release()
			self.Mov(tmp.Reg, src1)
			src1 = tmp.Reg
		}
	}

	/* the shifted register form reads 31 as the zero register */
	if !self.rf.IsSp(dst) && !self.rf.IsSp(src0) {
		self.emit(encodeAddSubShifted(sf(dst), sub, 0, enc(dst), enc(src0), enc(src1), _ShiftLSL, 0))
		return
	}

	/* the extended register form reads 31 as sp */
	if self.rf.IsZero(src0) {
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()
		self.emit(encodeMoveWide(1, _MovZ, enc(tmp.Reg), 0, 0))
		src0 = tmp.Reg
	}

	/* add to or from sp */
	self.emit(encodeAddSubExtended(sf(dst), sub, 0, enc(dst), enc(src0), enc(src1), 0))
}

func (self *Encoder) Mul(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc2(ftype(dst), _FpMul, enc(dst), enc(src0), enc(src1)))
	} else if !self.discard(dst) {
		self.checkNoSp("Mul", dst, src0, src1)
		self.emit(encodeDataProc3(sf(dst), 0, enc(dst), enc(src0), enc(src1), ZR))
	}
}

func (self *Encoder) Div(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc2(ftype(dst), _FpDiv, enc(dst), enc(src0), enc(src1)))
	} else if !self.discard(dst) {
		self.checkNoSp("Div", dst, src0, src1)
		self.emit(encodeDataProc2(sf(dst), divOp(signed), enc(dst), enc(src0), enc(src1)))
	}
}

func divOp(signed bool) uint32 {
	if signed {
		return _OpSDiv
	} else {
		return _OpUDiv
	}
}

// Mod computes src0 - (src0 / src1) * src1.
func (self *Encoder) Mod(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.SetFalseResult("Mod", "no floating-point remainder instruction")
		return
	}

	/* quotient goes to a scratch register, dst may alias the sources */
	if !self.discard(dst) {
		tmp := self.rf.Tmp(dst.Type)
		defer tmp.Release()
		self.checkNoSp("Mod", dst, src0, src1)
		self.emit(encodeDataProc2(sf(dst), divOp(signed), enc(tmp.Reg), enc(src0), enc(src1)))
		self.emit(encodeDataProc3(sf(dst), 1, enc(dst), enc(tmp.Reg), enc(src1), enc(src0)))
	}
}

func (self *Encoder) Min(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc2(ftype(dst), _FpMin, enc(dst), enc(src0), enc(src1)))
	} else if signed {
		self.minMax(dst, src0, src1, _CondLT)
	} else {
		self.minMax(dst, src0, src1, _CondLO)
	}
}

func (self *Encoder) Max(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc2(ftype(dst), _FpMax, enc(dst), enc(src0), enc(src1)))
	} else if signed {
		self.minMax(dst, src0, src1, _CondGT)
	} else {
		self.minMax(dst, src0, src1, _CondHI)
	}
}

func (self *Encoder) minMax(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, cond uint32) {
	if !self.discard(dst) {
		self.cmpRegs(src0, src1)
		self.emit(encodeCondSelect(sf(dst), 0, 0, enc(dst), enc(src0), enc(src1), cond))
	}
}

func (self *Encoder) logical(op string, opc uint32, n uint32, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, shift uint32, amount uint32) {
	self.CheckOpen()
	checkScalar(op, dst, src0, src1)
	self.checkNoSp(op, dst, src0, src1)

	/* the amount is limited by the register width */
	if amount >= width(dst) {
		self.SetFalseResult(op, fmt.Sprintf("shift amount %d out of range", amount))
	} else if !self.discard(dst) {
		self.emit(encodeLogicalShifted(sf(dst), opc, n, enc(dst), enc(src0), enc(src1), shift, amount))
	}
}

func (self *Encoder) And(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.logical("And", _LogicAnd, 0, dst, src0, src1, _ShiftLSL, 0)
}

func (self *Encoder) Or(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.logical("Or", _LogicOrr, 0, dst, src0, src1, _ShiftLSL, 0)
}

func (self *Encoder) Xor(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.logical("Xor", _LogicEor, 0, dst, src0, src1, _ShiftLSL, 0)
}

func (self *Encoder) OrNot(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.logical("OrNot", _LogicOrr, 1, dst, src0, src1, _ShiftLSL, 0)
}

func (self *Encoder) AndNot(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.logical("AndNot", _LogicAnd, 1, dst, src0, src1, _ShiftLSL, 0)
}

func (self *Encoder) XorNot(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.logical("XorNot", _LogicEor, 1, dst, src0, src1, _ShiftLSL, 0)
}

func (self *Encoder) shiftReg(op string, opcode uint32, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	checkScalar(op, dst, src0, src1)
	self.checkNoSp(op, dst, src0, src1)

	/* the count is taken modulo the register width */
	if !self.discard(dst) {
		self.emit(encodeDataProc2(sf(dst), opcode, enc(dst), enc(src0), enc(src1)))
	}
}

func (self *Encoder) Shl(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("Shl", _OpLslv, dst, src0, src1)
}

func (self *Encoder) Shr(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("Shr", _OpLsrv, dst, src0, src1)
}

func (self *Encoder) AShr(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("AShr", _OpAsrv, dst, src0, src1)
}

func (self *Encoder) Ror(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("Ror", _OpRorv, dst, src0, src1)
}

/** Immediate Forms **/

func (self *Encoder) AddImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.viaTmp(self.Add, dst, src, imm)
	} else {
		self.addSubImm(0, dst, src, imm.Value)
	}
}

func (self *Encoder) SubImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.viaTmp(self.Sub, dst, src, imm)
	} else {
		self.addSubImm(1, dst, src, imm.Value)
	}
}

func (self *Encoder) addSubImm(sub uint32, dst codegen.Reg, src codegen.Reg, v int64) {
	if self.discard(dst) {
		return
	}

	/* the immediate forms read 31 as sp */
	if self.rf.IsZero(src) {
		if sub != 0 {
			v = -v
		}
		self.MovImm(dst, codegen.NewImmOf(v, dst.Type))
		return
	}

	/* negative values flip the operation */
	if v < 0 && v != math.MinInt64 {
		v, sub = -v, sub^1
	}

	/* imm12, optionally shifted by 12 */
	if u := uint64(v); u < 1<<12 {
		self.emit(encodeAddSubImm(sf(dst), sub, 0, enc(dst), enc(src), uint32(u), 0))
	} else if u&0xfff == 0 && u < 1<<24 {
		self.emit(encodeAddSubImm(sf(dst), sub, 0, enc(dst), enc(src), uint32(u>>12), 1))
	} else {
		tmp := self.rf.Tmp(dst.Type)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImmOf(v, dst.Type))
		self.addSub(sub, dst, src, tmp.Reg)
	}
}

// MulImm turns multiplications by 2^n and 2^n ± 1 into shifts.
func (self *Encoder) MulImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.viaTmp(self.Mul, dst, src, imm)
		return
	}

	/* check for special cases */
	if v := imm.Value; self.discard(dst) {
		return
	} else if v == 0 {
		self.MovImm(dst, codegen.NewImmOf(0, dst.Type))
	} else if !self.CanEncodeImmMulti(v, int(width(dst))) {
		self.viaTmp(self.Mul, dst, src, imm)
	} else if u := uint64(v); u&(u-1) == 0 {
		self.ShlImm(dst, src, codegen.NewImm(int64(log2(u))))
	} else if u -= 1; u&(u-1) == 0 {
		self.checkNoSp("MulImm", dst, src)
		self.emit(encodeAddSubShifted(sf(dst), 0, 0, enc(dst), enc(src), enc(src), _ShiftLSL, log2(u)))
	} else {
		u += 2
		self.checkNoSp("MulImm", dst, src)
		self.emit(encodeAddSubShifted(sf(dst), 1, 0, enc(dst), enc(src), enc(src), _ShiftLSL, log2(u)))
		self.emit(encodeAddSubShifted(sf(dst), 1, 0, enc(dst), ZR, enc(dst), _ShiftLSL, 0))
	}
}

func (self *Encoder) AndImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.logicalImm("AndImm", _LogicAnd, dst, src, imm)
}

func (self *Encoder) OrImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.logicalImm("OrImm", _LogicOrr, dst, src, imm)
}

func (self *Encoder) XorImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.logicalImm("XorImm", _LogicEor, dst, src, imm)
}

func (self *Encoder) logicalImm(op string, opc uint32, dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	checkScalar(op, dst, src)
	self.checkNoSp(op, dst, src)

	/* the logical immediate forms read 31 as sp for rd */
	if self.discard(dst) {
		return
	}

	/* cut the value to the register width */
	v := uint64(imm.Value)
	ones := uint64(math.MaxUint64)
	pattern := v

	/* 32-bit patterns are replicated */
	if width(dst) == 32 {
		v &= math.MaxUint32
		ones = math.MaxUint32
		pattern = replicate32(v)
	}

	/* all zeros and all ones are not bitmask immediates */
	switch {
	case v == 0 && opc == _LogicAnd:
		self.MovImm(dst, codegen.NewImmOf(0, dst.Type))
	case v == 0:
		self.Mov(dst, src)
	case v == ones && opc == _LogicAnd:
		self.Mov(dst, src)
	case v == ones && opc == _LogicOrr:
		self.MovImm(dst, codegen.NewImmOf(-1, dst.Type))
	case v == ones:
		self.Not(dst, src)
	case isBitmaskImmediate(pattern):
		n, immr, imms := bitmaskImmediate(pattern, width(dst) == 64)
		self.emit(encodeLogicalImm(sf(dst), opc, enc(dst), enc(src), n, immr, imms))
	default:
		tmp := self.rf.Tmp(dst.Type)
		defer tmp.Release()
		self.MovImm(tmp.Reg, imm)
		self.emit(encodeLogicalShifted(sf(dst), opc, 0, enc(dst), enc(src), enc(tmp.Reg), _ShiftLSL, 0))
	}
}

func (self *Encoder) ShlImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("ShlImm", codegen.LSL, dst, src, imm)
}

func (self *Encoder) ShrImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("ShrImm", codegen.LSR, dst, src, imm)
}

func (self *Encoder) AShrImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("AShrImm", codegen.ASR, dst, src, imm)
}

func (self *Encoder) RorImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("RorImm", codegen.ROR, dst, src, imm)
}

// shiftImm encodes the immediate shifts as their bitfield and extract aliases.
func (self *Encoder) shiftImm(op string, kind codegen.ShiftKind, dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	checkScalar(op, dst, src)
	self.checkNoSp(op, dst, src)

	/* the amount is taken modulo the register width */
	w := width(dst)
	s := uint32(imm.Value) & (w - 1)

	/* shift by 0 is a move */
	if self.discard(dst) {
		return
	} else if s == 0 {
		self.Mov(dst, src)
		return
	}

	/* select the alias */
	switch kind {
	case codegen.LSL:
		self.emit(encodeBitfield(sf(dst), _UBFM, enc(dst), enc(src), (w-s)&(w-1), w-1-s))
	case codegen.LSR:
		self.emit(encodeBitfield(sf(dst), _UBFM, enc(dst), enc(src), s, w-1))
	case codegen.ASR:
		self.emit(encodeBitfield(sf(dst), _SBFM, enc(dst), enc(src), s, w-1))
	default:
		self.emit(encodeExtr(sf(dst), enc(dst), enc(src), enc(src), s))
	}
}

/** Shifted Operand Forms **/

func (self *Encoder) AddShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.addSubShift("AddShift", 0, dst, src, sh)
}

func (self *Encoder) SubShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.addSubShift("SubShift", 1, dst, src, sh)
}

func (self *Encoder) addSubShift(op string, sub uint32, dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.CheckOpen()
	checkScalar(op, dst, src, sh.Reg)
	self.checkNoSp(op, dst, src, sh.Reg)

	/* add and sub have no rotations */
	if sh.Kind == codegen.ROR {
		self.SetFalseResult(op, "ror is not a valid operand shift for add and sub")
	} else if uint32(sh.Amount) >= width(dst) {
		self.SetFalseResult(op, fmt.Sprintf("shift amount %d out of range", sh.Amount))
	} else if !self.discard(dst) {
		self.emit(encodeAddSubShifted(sf(dst), sub, 0, enc(dst), enc(src), enc(sh.Reg), uint32(sh.Kind), uint32(sh.Amount)))
	}
}

func (self *Encoder) AndShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.logical("AndShift", _LogicAnd, 0, dst, src, sh.Reg, uint32(sh.Kind), uint32(sh.Amount))
}

func (self *Encoder) OrShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.logical("OrShift", _LogicOrr, 0, dst, src, sh.Reg, uint32(sh.Kind), uint32(sh.Amount))
}

func (self *Encoder) XorShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.logical("XorShift", _LogicEor, 0, dst, src, sh.Reg, uint32(sh.Kind), uint32(sh.Amount))
}

func (self *Encoder) OrNotShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.logical("OrNotShift", _LogicOrr, 1, dst, src, sh.Reg, uint32(sh.Kind), uint32(sh.Amount))
}

func (self *Encoder) AndNotShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.logical("AndNotShift", _LogicAnd, 1, dst, src, sh.Reg, uint32(sh.Kind), uint32(sh.Amount))
}

func (self *Encoder) XorNotShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.logical("XorNotShift", _LogicEor, 1, dst, src, sh.Reg, uint32(sh.Kind), uint32(sh.Amount))
}

/** Unary Operations **/

func (self *Encoder) Neg(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc1(ftype(dst), _FpNeg, enc(dst), enc(src)))
	} else if !self.discard(dst) {
		self.checkNoSp("Neg", dst, src)
		self.emit(encodeAddSubShifted(sf(dst), 1, 0, enc(dst), ZR, enc(src), _ShiftLSL, 0))
	}
}

// Abs negates the value if it compares less than zero.
func (self *Encoder) Abs(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.emit(encodeFpDataProc1(ftype(dst), _FpAbs, enc(dst), enc(src)))
		return
	}

	/* cmp src, #0; cneg dst, src, lt */
	self.checkNoSp("Abs", dst, src)
	if self.discard(dst) {
		return
	} else if self.rf.IsZero(src) {
		self.MovImm(dst, codegen.NewImmOf(0, dst.Type))
	} else {
		self.emit(encodeAddSubImm(sf(src), 1, 1, ZR, enc(src), 0, 0))
		self.emit(encodeCondSelect(sf(dst), 1, 1, enc(dst), enc(src), enc(src), _CondGE))
	}
}

func (self *Encoder) Not(dst codegen.Reg, src codegen.Reg) {
	self.logical("Not", _LogicOrr, 1, dst, self.rf.Zero(dst.Type), src, _ShiftLSL, 0)
}

func (self *Encoder) Sqrt(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkFloat("Sqrt", dst, src)
	self.emit(encodeFpDataProc1(ftype(dst), _FpSqrt, enc(dst), enc(src)))
}

// BitCount counts the bits with the vector unit: cnt counts each byte and
// addv sums them up.
func (self *Encoder) BitCount(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("BitCount", dst, src)
	self.checkNoSp("BitCount", dst, src)

	/* nothing to count */
	if self.discard(dst) {
		return
	}

	/* sub-word values are zero extended first */
	vec := self.rf.Tmp(codegen.Float64)
	defer vec.Release()

	/* move into the vector register */
	if src.Size() < 32 {
		self.emit(encodeBitfield(0, _UBFM, enc(dst), enc(src), 0, uint32(src.Size())-1))
		self.emit(encodeFpIntConvert(0, 0, _CvtFMOVToFp, enc(vec.Reg), enc(dst)))
	} else {
		self.emit(encodeFpIntConvert(sf(src), ftype(src), _CvtFMOVToFp, enc(vec.Reg), enc(src)))
	}

	/* cnt v.8b, v.8b; addv b, v.8b; fmov w, s */
	self.emit(encodeCnt8B(enc(vec.Reg), enc(vec.Reg)))
	self.emit(encodeAddv8B(enc(vec.Reg), enc(vec.Reg)))
	self.emit(encodeFpIntConvert(0, 0, _CvtFMOVToGp, enc(dst), enc(vec.Reg)))
}

func (self *Encoder) dataProc1(op string, opcode uint32, dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar(op, dst, src)
	self.checkNoSp(op, dst, src)

	/* 1 source operations */
	if !self.discard(dst) {
		self.emit(encodeDataProc1(sf(dst), opcode, enc(dst), enc(src)))
	}
}

func (self *Encoder) Clz(dst codegen.Reg, src codegen.Reg) {
	self.dataProc1("Clz", _OpClz, dst, src)
}

func (self *Encoder) Rbit(dst codegen.Reg, src codegen.Reg) {
	self.dataProc1("Rbit", _OpRbit, dst, src)
}

// Ctz is clz of the reversed bits.
func (self *Encoder) Ctz(dst codegen.Reg, src codegen.Reg) {
	self.dataProc1("Ctz", _OpRbit, dst, src)
	self.dataProc1("Ctz", _OpClz, dst, dst)
}

func (self *Encoder) ReverseBytes(dst codegen.Reg, src codegen.Reg) {
	switch src.Size() {
	case 64:
		self.dataProc1("ReverseBytes", _OpRev64, dst, src)
	case 32:
		self.dataProc1("ReverseBytes", _OpRev32, dst, src)
	case 16:
		self.dataProc1("ReverseBytes", _OpRev16, dst, src)
		if !self.discard(dst) {
			self.emit(encodeBitfield(0, _SBFM, enc(dst), enc(dst), 0, 15))
		}
	default:
		self.Mov(dst, src)
	}
}
