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

package codegen

import (
	`fmt`
	`io`
	`sync/atomic`
)

// EncodeError records why an encoder gave up. Only the first failure of an
// encoder is kept.
type EncodeError struct {
	Arch   string
	Op     string
	Reason string
}

func (self *EncodeError) Error() string {
	return fmt.Sprintf("EncodeError(%s, %s): %s", self.Arch, self.Op, self.Reason)
}

// Encoder lowers abstract operations into machine code for one target.
//
// Operand mistakes (mismatched types, the zero register where it cannot be
// used, running out of scratch registers) panic. Operations the target cannot
// encode set a sticky failure instead, which is reported by Result and by
// Finalize, and the code must then be discarded.
//
// The interface is sealed, implementations embed Base.
type Encoder interface {
	sealed()

	Arch() string
	Registers() *RegisterFile
	Result() error
	SetFalseResult(op string, reason string)

	// Finalize resolves the pending references and seals the encoder, no
	// operation may be encoded afterwards.
	Finalize() error
	Code() []byte
	Free()
	Relocations() []RelocationInfo

	// DisasmInstr prints the instruction at pc and returns the offset of the
	// next one.
	DisasmInstr(w io.Writer, pc int) int

	CreateLabel() LabelId
	BindLabel(id LabelId)
	IsLabelBound(id LabelId) bool

	ArithEncoder
	MemoryEncoder
	ControlEncoder
	Predicates
}

type ArithEncoder interface {
	Add(dst Reg, src0 Reg, src1 Reg)
	Sub(dst Reg, src0 Reg, src1 Reg)
	Mul(dst Reg, src0 Reg, src1 Reg)
	Div(dst Reg, signed bool, src0 Reg, src1 Reg)
	Mod(dst Reg, signed bool, src0 Reg, src1 Reg)
	Min(dst Reg, signed bool, src0 Reg, src1 Reg)
	Max(dst Reg, signed bool, src0 Reg, src1 Reg)
	And(dst Reg, src0 Reg, src1 Reg)
	Or(dst Reg, src0 Reg, src1 Reg)
	Xor(dst Reg, src0 Reg, src1 Reg)
	Shl(dst Reg, src0 Reg, src1 Reg)
	Shr(dst Reg, src0 Reg, src1 Reg)
	AShr(dst Reg, src0 Reg, src1 Reg)
	Ror(dst Reg, src0 Reg, src1 Reg)
	OrNot(dst Reg, src0 Reg, src1 Reg)
	AndNot(dst Reg, src0 Reg, src1 Reg)
	XorNot(dst Reg, src0 Reg, src1 Reg)

	AddImm(dst Reg, src Reg, imm Imm)
	SubImm(dst Reg, src Reg, imm Imm)
	MulImm(dst Reg, src Reg, imm Imm)
	AndImm(dst Reg, src Reg, imm Imm)
	OrImm(dst Reg, src Reg, imm Imm)
	XorImm(dst Reg, src Reg, imm Imm)
	ShlImm(dst Reg, src Reg, imm Imm)
	ShrImm(dst Reg, src Reg, imm Imm)
	AShrImm(dst Reg, src Reg, imm Imm)
	RorImm(dst Reg, src Reg, imm Imm)

	AddShift(dst Reg, src Reg, sh Shift)
	SubShift(dst Reg, src Reg, sh Shift)
	AndShift(dst Reg, src Reg, sh Shift)
	OrShift(dst Reg, src Reg, sh Shift)
	XorShift(dst Reg, src Reg, sh Shift)
	OrNotShift(dst Reg, src Reg, sh Shift)
	AndNotShift(dst Reg, src Reg, sh Shift)
	XorNotShift(dst Reg, src Reg, sh Shift)

	Neg(dst Reg, src Reg)
	Abs(dst Reg, src Reg)
	Not(dst Reg, src Reg)
	Sqrt(dst Reg, src Reg)
	BitCount(dst Reg, src Reg)
	Clz(dst Reg, src Reg)
	Ctz(dst Reg, src Reg)
	Rbit(dst Reg, src Reg)
	ReverseBytes(dst Reg, src Reg)

	Mov(dst Reg, src Reg)
	MovImm(dst Reg, imm Imm)
	Cast(dst Reg, dstSigned bool, src Reg, srcSigned bool)
	CastToBool(dst Reg, src Reg)
	FpToBits(dst Reg, src Reg)
	MoveBitsRaw(dst Reg, src Reg)

	Compare(dst Reg, src0 Reg, src1 Reg, cc Condition)
	CompareTest(dst Reg, src0 Reg, src1 Reg, cc Condition)
	Select(dst Reg, a Reg, b Reg, lhs Reg, rhs Reg, cc Condition)
	SelectImm(dst Reg, a Reg, b Reg, lhs Reg, imm Imm, cc Condition)
	SelectTest(dst Reg, a Reg, b Reg, lhs Reg, rhs Reg, cc Condition)
}

type MemoryEncoder interface {
	Ldr(dst Reg, signed bool, mem MemRef)
	Str(src Reg, mem MemRef)
	LdrAcquire(dst Reg, signed bool, mem MemRef)
	StrRelease(src Reg, mem MemRef)
	LdrExclusive(dst Reg, addr Reg, acquire bool)
	StrExclusive(status Reg, src Reg, addr Reg, release bool)
	MemCopy(from MemRef, to MemRef, size int)
	MemCopyz(from MemRef, to MemRef, size int)
	Sti(imm Imm, mem MemRef)
	Ldp(dst0 Reg, dst1 Reg, signed bool, mem MemRef)
	Stp(src0 Reg, src1 Reg, mem MemRef)

	CompareAndSwap(dst Reg, addr Reg, expected Reg, value Reg)
	UnsafeGetAndSet(dst Reg, addr Reg, value Reg)
	UnsafeGetAndAdd(dst Reg, addr Reg, value Reg, tmp Reg)
	MemoryBarrier(order MemoryOrder)
}

type ControlEncoder interface {
	Jump(id LabelId)
	JumpCc(id LabelId, src0 Reg, src1 Reg, cc Condition)
	JumpImm(id LabelId, src Reg, imm Imm, cc Condition)
	JumpTest(id LabelId, src0 Reg, src1 Reg, cc Condition)
	JumpTestImm(id LabelId, src Reg, imm Imm, cc Condition)
	JumpBit(id LabelId, src Reg, bit uint8, set bool)
	JumpReg(dst Reg)

	Call(id LabelId)
	CallReg(dst Reg)
	CallMem(mem MemRef)
	MakeCall(reloc *RelocationInfo)
	Return()
	Abort()

	GetCurrentPc(dst Reg)
	LoadPcRelative(dst Reg, offset int64, addr Reg)
	StackOverflowCheck(offset int64)
}

// Predicates are asked by the caller before choosing an operation form.
type Predicates interface {
	CanEncodeImmAddSubCmp(imm int64, size int, signed bool) bool
	CanEncodeImmLogical(imm uint64, size int) bool
	CanEncodeScale(scale uint64, size int) bool
	CanEncodeShift(size int) bool
	CanEncodeBitCount() bool
	CanEncodeAbs() bool
	CanEncodeImmMulti(imm int64, size int) bool
}

// Base carries the state shared by every target: the sticky failure and the
// finalization flag. Every operation defaults to recording a failure, targets
// override what they support.
type Base struct {
	arch string
	err  *EncodeError
	done bool
}

func NewBase(arch string) Base {
	return Base{arch: arch}
}

func (self *Base) sealed() {}

func (self *Base) Arch() string {
	return self.arch
}

// Result returns the first failure, or nil.
func (self *Base) Result() error {
	if self.err == nil {
		return nil
	} else {
		return self.err
	}
}

func (self *Base) Failed() bool {
	return self.err != nil
}

func (self *Base) SetFalseResult(op string, reason string) {
	if self.err == nil {
		self.err = &EncodeError{Arch: self.arch, Op: op, Reason: reason}
		atomic.AddUint64(&EncodeFailures, 1)
	}
}

// Seal marks the encoder as finalized, targets call it from Finalize.
func (self *Base) Seal() {
	if self.done {
		panic(self.arch + ": encoder is already finalized")
	} else {
		self.done = true
	}
}

func (self *Base) IsSealed() bool {
	return self.done
}

// CheckOpen panics once the encoder is finalized.
func (self *Base) CheckOpen() {
	if self.done {
		panic(self.arch + ": encoder is finalized")
	}
}

func (self *Base) unsupported(op string) {
	self.CheckOpen()
	self.SetFalseResult(op, "not supported on "+self.arch)
}
