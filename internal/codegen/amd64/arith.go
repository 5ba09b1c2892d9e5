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

	`github.com/chenzhuoyu/iasm/x86_64`
	`github.com/cloudwego/pandajit/internal/codegen`
)

type _BinOp func(p *x86_64.Program, v0 interface{}, v1 interface{}) *x86_64.Instruction
type _UnOp func(p *x86_64.Program, v0 interface{}) *x86_64.Instruction

// _IntOp is a two-operand integer instruction, dst = dst op src.
type _IntOp struct {
	q   _BinOp
	l   _BinOp
	cmt bool
}

func (self *_IntOp) pick(r codegen.Reg) _BinOp {
	if is64(r) {
		return self.q
	} else {
		return self.l
	}
}

func imulq(p *x86_64.Program, v0 interface{}, v1 interface{}) *x86_64.Instruction {
	return p.IMULQ(v0, v1)
}

func imull(p *x86_64.Program, v0 interface{}, v1 interface{}) *x86_64.Instruction {
	return p.IMULL(v0, v1)
}

var (
	_OpAdd = _IntOp{(*x86_64.Program).ADDQ, (*x86_64.Program).ADDL, true}
	_OpSub = _IntOp{(*x86_64.Program).SUBQ, (*x86_64.Program).SUBL, false}
	_OpMul = _IntOp{imulq, imull, true}
	_OpAnd = _IntOp{(*x86_64.Program).ANDQ, (*x86_64.Program).ANDL, true}
	_OpOr  = _IntOp{(*x86_64.Program).ORQ, (*x86_64.Program).ORL, true}
	_OpXor = _IntOp{(*x86_64.Program).XORQ, (*x86_64.Program).XORL, true}
	_OpShl = _IntOp{(*x86_64.Program).SHLQ, (*x86_64.Program).SHLL, false}
	_OpShr = _IntOp{(*x86_64.Program).SHRQ, (*x86_64.Program).SHRL, false}
	_OpSar = _IntOp{(*x86_64.Program).SARQ, (*x86_64.Program).SARL, false}
	_OpRor = _IntOp{(*x86_64.Program).RORQ, (*x86_64.Program).RORL, false}
)

// _FpOp is a two-operand scalar SSE instruction.
type _FpOp struct {
	sd  _BinOp
	ss  _BinOp
	cmt bool
}

func (self *_FpOp) pick(r codegen.Reg) _BinOp {
	if is64(r) {
		return self.sd
	} else {
		return self.ss
	}
}

var (
	_OpAddF = _FpOp{(*x86_64.Program).ADDSD, (*x86_64.Program).ADDSS, true}
	_OpSubF = _FpOp{(*x86_64.Program).SUBSD, (*x86_64.Program).SUBSS, false}
	_OpMulF = _FpOp{(*x86_64.Program).MULSD, (*x86_64.Program).MULSS, true}
	_OpDivF = _FpOp{(*x86_64.Program).DIVSD, (*x86_64.Program).DIVSS, false}
)

func (self *Encoder) checkNoSp(op string, regs ...codegen.Reg) {
	for _, r := range regs {
		if self.rf.IsSp(r) {
			panic(fmt.Sprintf("amd64: %s: rsp is not a valid operand", op))
		}
	}
}

// as views r with the operation width of w.
func as(r codegen.Reg, w codegen.Reg) x86_64.Register {
	if is64(w) {
		return r64(r)
	} else {
		return r32(r)
	}
}

// binop emits dst = src0 op src1 with the two-operand form, keeping src1 alive
// when it is also the destination.
func (self *Encoder) binop(name string, op *_IntOp, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	checkScalar(name, dst, src0, src1)
	fn := op.pick(dst)

	/* check for aliasing */
	if dst.Id == src0.Id {
		fn(self.prog, as(src1, dst), gpr(dst))
	} else if dst.Id != src1.Id {
		self.movInt(dst, src0)
		fn(self.prog, as(src1, dst), gpr(dst))
	} else if op.cmt {
		fn(self.prog, as(src0, dst), gpr(dst))
	} else {
		tmp := self.rf.Tmp(dst.Type)
		defer tmp.Release()
		self.movInt(tmp.Reg, src1)
		self.movInt(dst, src0)
		fn(self.prog, gpr(tmp.Reg), gpr(dst))
	}
}

func (self *Encoder) fpBinop(name string, op *_FpOp, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	checkFloat(name, dst, src0, src1)
	fn := op.pick(dst)

	/* same as the integer version */
	if dst.Id == src0.Id {
		fn(self.prog, xmm(src1), xmm(dst))
	} else if dst.Id != src1.Id {
		self.movFloat(dst, src0)
		fn(self.prog, xmm(src1), xmm(dst))
	} else if op.cmt {
		fn(self.prog, xmm(src0), xmm(dst))
	} else {
		tmp := self.rf.Tmp(dst.Type)
		defer tmp.Release()
		self.movFloat(tmp.Reg, src1)
		self.movFloat(dst, src0)
		fn(self.prog, xmm(tmp.Reg), xmm(dst))
	}
}

/** Register Forms **/

func (self *Encoder) Add(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	if dst.IsFloat() {
		self.fpBinop("Add", &_OpAddF, dst, src0, src1)
	} else {
		self.binop("Add", &_OpAdd, dst, src0, src1)
	}
}

func (self *Encoder) Sub(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	if dst.IsFloat() {
		self.fpBinop("Sub", &_OpSubF, dst, src0, src1)
	} else {
		self.binop("Sub", &_OpSub, dst, src0, src1)
	}
}

func (self *Encoder) Mul(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	if dst.IsFloat() {
		self.fpBinop("Mul", &_OpMulF, dst, src0, src1)
	} else {
		self.checkNoSp("Mul", dst, src0, src1)
		self.binop("Mul", &_OpMul, dst, src0, src1)
	}
}

func (self *Encoder) And(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.binop("And", &_OpAnd, dst, src0, src1)
}

func (self *Encoder) Or(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.binop("Or", &_OpOr, dst, src0, src1)
}

func (self *Encoder) Xor(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.binop("Xor", &_OpXor, dst, src0, src1)
}

// notop computes src0 op ~src1 with the complement in a scratch register.
func (self *Encoder) notop(name string, op *_IntOp, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	checkScalar(name, dst, src0, src1)
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	self.Not(tmp.Reg, src1)
	self.binop(name, op, dst, src0, tmp.Reg)
}

func (self *Encoder) OrNot(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.notop("OrNot", &_OpOr, dst, src0, src1)
}

// AndNot uses andn when BMI1 is available, which takes the complemented
// operand in the middle.
func (self *Encoder) AndNot(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	if !self.bmi1 {
		self.notop("AndNot", &_OpAnd, dst, src0, src1)
		return
	}

	/* andn src0, src1, dst */
	self.CheckOpen()
	checkScalar("AndNot", dst, src0, src1)
	if is64(dst) {
		self.prog.ANDNQ(r64(src0), r64(src1), r64(dst))
	} else {
		self.prog.ANDNL(r32(src0), r32(src1), r32(dst))
	}
}

func (self *Encoder) XorNot(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.notop("XorNot", &_OpXor, dst, src0, src1)
}

/** Division **/

// divide uses idiv/div, which take the dividend in rdx:rax and leave the
// quotient in rax and the remainder in rdx. Both are saved on the stack unless
// they receive the result. A zero divisor, or the most negative value divided
// by -1, raises a divide error.
func (self *Encoder) divide(name string, rem bool, dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	checkScalar(name, dst, src0, src1)
	self.checkNoSp(name, dst, src0, src1)

	/* the divisor goes out of the way first */
	div := self.rf.Tmp(dst.Type)
	defer div.Release()
	self.movInt(div.Reg, src1)

	/* save the fixed registers */
	saveAx := dst.Id != RAX
	saveDx := dst.Id != RDX
	if saveAx {
		self.prog.PUSHQ(x86_64.RAX)
	}
	if saveDx {
		self.prog.PUSHQ(x86_64.RDX)
	}

	/* extend the dividend into rdx */
	self.movInt(codegen.NewReg(RAX, dst.Type), src0)
	if signed && is64(dst) {
		self.prog.CQTO()
		self.prog.IDIVQ(r64(div.Reg))
	} else if signed {
		self.prog.CLTD()
		self.prog.IDIVL(r32(div.Reg))
	} else if is64(dst) {
		self.prog.XORL(x86_64.EDX, x86_64.EDX)
		self.prog.DIVQ(r64(div.Reg))
	} else {
		self.prog.XORL(x86_64.EDX, x86_64.EDX)
		self.prog.DIVL(r32(div.Reg))
	}

	/* pick the result */
	if rem {
		self.movInt(dst, codegen.NewReg(RDX, dst.Type))
	} else {
		self.movInt(dst, codegen.NewReg(RAX, dst.Type))
	}

	/* restore in reverse */
	if saveDx {
		self.prog.POPQ(x86_64.RDX)
	}
	if saveAx {
		self.prog.POPQ(x86_64.RAX)
	}
}

func (self *Encoder) Div(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	if dst.IsFloat() {
		self.fpBinop("Div", &_OpDivF, dst, src0, src1)
	} else {
		self.divide("Div", false, dst, signed, src0, src1)
	}
}

func (self *Encoder) Mod(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	if dst.IsFloat() {
		self.CheckOpen()
		self.SetFalseResult("Mod", "no floating-point remainder instruction")
	} else {
		self.divide("Mod", true, dst, signed, src0, src1)
	}
}

/** Min / Max **/

// minsd and maxsd return the second operand when either one is NaN, which
// does not match the NaN propagating semantics of Min and Max.
func (self *Encoder) minMax(name string, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg, cond _Cond) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.SetFalseResult(name, "no NaN propagating floating-point "+name)
	} else {
		checkScalar(name, dst, src0, src1)
		self.cmpRegs(src0, src1)
		self.cmov(dst, src0, src1, cond)
	}
}

func (self *Encoder) Min(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	if signed {
		self.minMax("Min", dst, src0, src1, _CondL)
	} else {
		self.minMax("Min", dst, src0, src1, _CondB)
	}
}

func (self *Encoder) Max(dst codegen.Reg, signed bool, src0 codegen.Reg, src1 codegen.Reg) {
	if signed {
		self.minMax("Max", dst, src0, src1, _CondG)
	} else {
		self.minMax("Max", dst, src0, src1, _CondA)
	}
}

/** Shifts **/

// shiftReg shifts by cl. The value is shifted in a scratch register, rcx is
// saved around it unless it already holds the amount.
func (self *Encoder) shiftReg(name string, op *_IntOp, dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.CheckOpen()
	checkScalar(name, dst, src0, src1)
	self.checkNoSp(name, dst, src0, src1)

	/* the amount is taken modulo the width by the hardware */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	self.movInt(tmp.Reg, src0)

	/* load the amount into cl */
	save := src1.Id != RCX
	if save {
		self.prog.PUSHQ(x86_64.RCX)
		self.prog.MOVL(r32(src1), x86_64.ECX)
	}

	/* shift, restore rcx, then write the result */
	op.pick(dst)(self.prog, x86_64.CL, gpr(tmp.Reg))
	if save {
		self.prog.POPQ(x86_64.RCX)
	}
	self.movInt(dst, tmp.Reg)
}

func (self *Encoder) Shl(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("Shl", &_OpShl, dst, src0, src1)
}

func (self *Encoder) Shr(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("Shr", &_OpShr, dst, src0, src1)
}

func (self *Encoder) AShr(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("AShr", &_OpSar, dst, src0, src1)
}

func (self *Encoder) Ror(dst codegen.Reg, src0 codegen.Reg, src1 codegen.Reg) {
	self.shiftReg("Ror", &_OpRor, dst, src0, src1)
}

/** Immediate Forms **/

// immOf truncates imm to the operation width, 32-bit operations take the low
// half sign extended.
func immOf(dst codegen.Reg, imm codegen.Imm) int64 {
	if is64(dst) {
		return imm.Value
	} else {
		return int64(int32(imm.Value))
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

// binopImm emits dst = src op imm when imm fits the sign extended 32-bit
// immediate, or falls back to the register form.
func (self *Encoder) binopImm(name string, op *_IntOp, reg func(codegen.Reg, codegen.Reg, codegen.Reg), dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	checkScalar(name, dst, src)

	/* check the immediate range */
	if v := immOf(dst, imm); !isInt32(v) {
		self.viaTmp(reg, dst, src, imm)
	} else {
		self.movInt(dst, src)
		op.pick(dst)(self.prog, v, gpr(dst))
	}
}

// AddImm uses lea when the source is kept, which also covers rsp.
func (self *Encoder) AddImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	checkScalar("AddImm", dst, src)
	v := immOf(dst, imm)

	/* select the form */
	switch {
	case v == 0:
		self.movInt(dst, src)
	case !isInt32(v):
		self.viaTmp(self.Add, dst, src, imm)
	case dst.Id == src.Id:
		_OpAdd.pick(dst)(self.prog, v, gpr(dst))
	case is64(dst):
		self.prog.LEAQ(x86_64.Ptr(r64(src), int32(v)), r64(dst))
	default:
		self.prog.LEAL(x86_64.Ptr(r64(src), int32(v)), r32(dst))
	}
}

// SubImm adds the negated immediate. 32-bit operations wrap, so the negation
// of the most negative value is itself.
func (self *Encoder) SubImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	if v := immOf(dst, imm); !is64(dst) {
		self.AddImm(dst, src, codegen.NewImm(int64(-int32(v))))
	} else if isInt32(-v) {
		self.AddImm(dst, src, codegen.NewImm(-v))
	} else {
		self.CheckOpen()
		self.viaTmp(self.Sub, dst, src, imm)
	}
}

// MulImm uses the three operand imul.
func (self *Encoder) MulImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	if dst.IsFloat() {
		self.viaTmp(self.Mul, dst, src, imm)
		return
	}

	/* check the immediate range */
	checkScalar("MulImm", dst, src)
	self.checkNoSp("MulImm", dst, src)
	v := immOf(dst, imm)

	/* select the form */
	switch {
	case v == 0:
		self.MovImm(dst, codegen.NewImmOf(0, dst.Type))
	case !isInt32(v):
		self.viaTmp(self.Mul, dst, src, imm)
	case is64(dst):
		self.prog.IMULQ(v, r64(src), r64(dst))
	default:
		self.prog.IMULL(v, r32(src), r32(dst))
	}
}

func (self *Encoder) AndImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.binopImm("AndImm", &_OpAnd, self.And, dst, src, imm)
}

func (self *Encoder) OrImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.binopImm("OrImm", &_OpOr, self.Or, dst, src, imm)
}

func (self *Encoder) XorImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.binopImm("XorImm", &_OpXor, self.Xor, dst, src, imm)
}

// shiftImm takes the amount modulo the register width.
func (self *Encoder) shiftImm(name string, op *_IntOp, dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.CheckOpen()
	checkScalar(name, dst, src)
	self.checkNoSp(name, dst, src)

	/* shift by 0 is a move */
	self.movInt(dst, src)
	if s := uint64(imm.Value) & uint64(width(dst)-1); s != 0 {
		op.pick(dst)(self.prog, int64(s), gpr(dst))
	}
}

func (self *Encoder) ShlImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("ShlImm", &_OpShl, dst, src, imm)
}

func (self *Encoder) ShrImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("ShrImm", &_OpShr, dst, src, imm)
}

func (self *Encoder) AShrImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("AShrImm", &_OpSar, dst, src, imm)
}

func (self *Encoder) RorImm(dst codegen.Reg, src codegen.Reg, imm codegen.Imm) {
	self.shiftImm("RorImm", &_OpRor, dst, src, imm)
}

/** Shifted Operand Forms **/

var _ShiftOps = [...]*_IntOp{
	codegen.LSL: &_OpShl,
	codegen.LSR: &_OpShr,
	codegen.ASR: &_OpSar,
	codegen.ROR: &_OpRor,
}

// shifted applies a register operation to a shifted operand, which is
// computed into a scratch register first.
func (self *Encoder) shifted(name string, op func(codegen.Reg, codegen.Reg, codegen.Reg), dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.CheckOpen()
	checkScalar(name, dst, src, sh.Reg)

	/* the amount must be within the width */
	if int(sh.Amount) >= width(dst) {
		self.SetFalseResult(name, fmt.Sprintf("shift amount %d out of range", sh.Amount))
		return
	}

	/* shift into a scratch register */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	self.shiftImm(name, _ShiftOps[sh.Kind], tmp.Reg, sh.Reg.As(dst.Type), codegen.NewImm(int64(sh.Amount)))
	op(dst, src, tmp.Reg)
}

func (self *Encoder) AddShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	if sh.Kind == codegen.ROR {
		self.CheckOpen()
		self.SetFalseResult("AddShift", "ror is not a valid operand shift for add and sub")
	} else {
		self.shifted("AddShift", self.Add, dst, src, sh)
	}
}

func (self *Encoder) SubShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	if sh.Kind == codegen.ROR {
		self.CheckOpen()
		self.SetFalseResult("SubShift", "ror is not a valid operand shift for add and sub")
	} else {
		self.shifted("SubShift", self.Sub, dst, src, sh)
	}
}

func (self *Encoder) AndShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.shifted("AndShift", self.And, dst, src, sh)
}

func (self *Encoder) OrShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.shifted("OrShift", self.Or, dst, src, sh)
}

func (self *Encoder) XorShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.shifted("XorShift", self.Xor, dst, src, sh)
}

func (self *Encoder) OrNotShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.shifted("OrNotShift", self.OrNot, dst, src, sh)
}

func (self *Encoder) AndNotShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.shifted("AndNotShift", self.AndNot, dst, src, sh)
}

func (self *Encoder) XorNotShift(dst codegen.Reg, src codegen.Reg, sh codegen.Shift) {
	self.shifted("XorNotShift", self.XorNot, dst, src, sh)
}

/** Unary Operations **/

func (self *Encoder) unary(name string, q _UnOp, l _UnOp, dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar(name, dst, src)
	self.checkNoSp(name, dst, src)
	self.movInt(dst, src)

	/* in place */
	if is64(dst) {
		q(self.prog, r64(dst))
	} else {
		l(self.prog, r32(dst))
	}
}

// signBit flips or clears the sign bit of a floating-point value through a
// general purpose scratch register.
func (self *Encoder) signBit(name string, q _BinOp, l _BinOp, dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkFloat(name, dst, src)
	tmp := self.rf.Tmp(codegen.TypeOf(dst.Size(), false))
	defer tmp.Release()

	/* movq / movd round trip */
	self.MoveBitsRaw(tmp.Reg, src)
	if is64(dst) {
		q(self.prog, 63, r64(tmp.Reg))
	} else {
		l(self.prog, 31, r32(tmp.Reg))
	}
	self.MoveBitsRaw(dst, tmp.Reg)
}

func (self *Encoder) Neg(dst codegen.Reg, src codegen.Reg) {
	if dst.IsFloat() {
		self.signBit("Neg", (*x86_64.Program).BTCQ, (*x86_64.Program).BTCL, dst, src)
	} else {
		self.unary("Neg", (*x86_64.Program).NEGQ, (*x86_64.Program).NEGL, dst, src)
	}
}

// Abs negates into a scratch register and keeps the source when the negation
// is negative. The most negative value stays as is.
func (self *Encoder) Abs(dst codegen.Reg, src codegen.Reg) {
	if dst.IsFloat() {
		self.signBit("Abs", (*x86_64.Program).BTRQ, (*x86_64.Program).BTRL, dst, src)
		return
	}

	/* neg tmp; cmovs src, tmp */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	self.unary("Abs", (*x86_64.Program).NEGQ, (*x86_64.Program).NEGL, tmp.Reg, src)
	_CmovTab[_CondS](self.prog, as(src, dst), gpr(tmp.Reg))
	self.movInt(dst, tmp.Reg)
}

func (self *Encoder) Not(dst codegen.Reg, src codegen.Reg) {
	self.unary("Not", (*x86_64.Program).NOTQ, (*x86_64.Program).NOTL, dst, src)
}

func (self *Encoder) Sqrt(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkFloat("Sqrt", dst, src)
	if is64(dst) {
		self.prog.SQRTSD(xmm(src), xmm(dst))
	} else {
		self.prog.SQRTSS(xmm(src), xmm(dst))
	}
}

// BitCount needs popcnt, sub-word values are zero extended first.
func (self *Encoder) BitCount(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("BitCount", dst, src)
	self.checkNoSp("BitCount", dst, src)

	/* check for the extension */
	if !self.popcnt {
		self.SetFalseResult("BitCount", "popcnt is not enabled")
		return
	}

	/* count the bits of the value width */
	switch src.Size() {
	case 64:
		self.prog.POPCNTQ(r64(src), r64(dst))
	case 32:
		self.prog.POPCNTL(r32(src), r32(dst))
	default:
		self.zeroExtend(dst.As(codegen.Int32), src)
		self.prog.POPCNTL(r32(dst), r32(dst))
	}
}

// Clz uses lzcnt, or bsr which leaves its result undefined for 0.
//
//	mov   $2w-1, tmp
//	bsr   src, dst
//	cmovz tmp, dst
//	xor   $w-1, dst
func (self *Encoder) Clz(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("Clz", dst, src)
	self.checkNoSp("Clz", dst, src)

	/* lzcnt */
	if self.lzcnt {
		if is64(dst) {
			self.prog.LZCNTQ(r64(src), r64(dst))
		} else {
			self.prog.LZCNTL(r32(src), r32(dst))
		}
		return
	}

	/* bsr fallback */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	w := int64(width(dst))

	/* both forms give the index of the highest bit */
	self.prog.MOVL(2*w-1, r32(tmp.Reg))
	if is64(dst) {
		self.prog.BSRQ(r64(src), r64(dst))
	} else {
		self.prog.BSRL(r32(src), r32(dst))
	}

	/* index ^ (w - 1) counts the zeros */
	_CmovTab[_CondE](self.prog, gpr(tmp.Reg), gpr(dst))
	_OpXor.pick(dst)(self.prog, w-1, gpr(dst))
}

// Ctz uses tzcnt, or bsf with the width substituted for 0.
func (self *Encoder) Ctz(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("Ctz", dst, src)
	self.checkNoSp("Ctz", dst, src)

	/* tzcnt */
	if self.bmi1 {
		if is64(dst) {
			self.prog.TZCNTQ(r64(src), r64(dst))
		} else {
			self.prog.TZCNTL(r32(src), r32(dst))
		}
		return
	}

	/* bsf fallback */
	tmp := self.rf.Tmp(dst.Type)
	defer tmp.Release()
	w := int64(width(dst))

	/* mov $w, tmp; bsf src, dst; cmovz tmp, dst */
	self.prog.MOVL(w, r32(tmp.Reg))
	if is64(dst) {
		self.prog.BSFQ(r64(src), r64(dst))
	} else {
		self.prog.BSFL(r32(src), r32(dst))
	}
	_CmovTab[_CondE](self.prog, gpr(tmp.Reg), gpr(dst))
}

// Rbit has no x86 counterpart.
func (self *Encoder) Rbit(_ codegen.Reg, _ codegen.Reg) {
	self.CheckOpen()
	self.SetFalseResult("Rbit", "no bit reversal instruction")
}

// ReverseBytes swaps 16-bit values with rol and sign extends the result.
func (self *Encoder) ReverseBytes(dst codegen.Reg, src codegen.Reg) {
	self.CheckOpen()
	checkScalar("ReverseBytes", dst, src)
	self.checkNoSp("ReverseBytes", dst, src)

	/* select by the width */
	switch src.Size() {
	case 64:
		self.movInt(dst, src)
		self.prog.BSWAPQ(r64(dst))
	case 32:
		self.movInt(dst, src)
		self.prog.BSWAPL(r32(dst))
	case 16:
		self.movInt(dst, src)
		self.prog.ROLW(8, r16(dst))
		self.prog.MOVSWL(r16(dst), r32(dst))
	default:
		self.movInt(dst, src)
	}
}
