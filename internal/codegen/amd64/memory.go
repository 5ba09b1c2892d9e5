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

func intType(size int) codegen.TypeInfo {
	switch size {
	case 1, 2, 4, 8:
		return codegen.TypeOf(size*8, false)
	default:
		panic(fmt.Sprintf("amd64: invalid access size: %d", size))
	}
}

// view returns the register of exactly the width of r.
func view(r codegen.Reg) x86_64.Register {
	switch r.Size() {
	case 8:
		return r8(r)
	case 16:
		return r16(r)
	case 32:
		return r32(r)
	default:
		return r64(r)
	}
}

// address builds the memory operand for mem. iasm frees the operand with the
// instruction, so every access builds a new one. Displacements beyond 32 bits
// are added to the base in a scratch register, the returned function releases
// it.
func (self *Encoder) address(mem codegen.MemRef) (*x86_64.MemoryOperand, func()) {
	var base x86_64.Register
	var index x86_64.Register

	/* rsp can only be a base */
	if !mem.IsValid() {
		panic("amd64: invalid memory reference: " + mem.String())
	} else if mem.HasIndex() && self.rf.IsSp(mem.Index) {
		panic("amd64: rsp cannot be an index register")
	} else if mem.HasIndex() && mem.Scale > 3 {
		panic(fmt.Sprintf("amd64: invalid scale: %d", mem.Scale))
	}

	/* the registers */
	if mem.HasBase() {
		base = r64(mem.Base)
	}
	if mem.HasIndex() {
		index = r64(mem.Index)
	}

	/* the displacement fits */
	if isInt32(mem.Disp) {
		return x86_64.Sib(base, index, scale(mem), int32(mem.Disp)), func() {}
	}

	/* add the displacement to the base */
	tmp := self.rf.Tmp(codegen.Int64)
	self.MovImm(tmp.Reg, codegen.NewImm(mem.Disp))
	if mem.HasBase() {
		self.prog.ADDQ(base, r64(tmp.Reg))
	}

	/* the scratch register becomes the base */
	return x86_64.Sib(r64(tmp.Reg), index, scale(mem), 0), tmp.Release
}

func scale(mem codegen.MemRef) uint8 {
	if mem.HasIndex() {
		return 1 << mem.Scale
	} else {
		return 0
	}
}

// load reads into dst with the width of dst. Sub-word integers are extended
// into the 32-bit register.
func (self *Encoder) load(dst codegen.Reg, signed bool, mem codegen.MemRef) {
	m, release := self.address(mem)
	defer release()

	/* select by the type */
	switch {
	case dst.IsFloat() && dst.Size() == 64:
		self.prog.MOVSD(m, xmm(dst))
	case dst.IsFloat():
		self.prog.MOVSS(m, xmm(dst))
	case dst.Size() == 8 && signed:
		self.prog.MOVSBL(m, r32(dst))
	case dst.Size() == 8:
		self.prog.MOVZBL(m, r32(dst))
	case dst.Size() == 16 && signed:
		self.prog.MOVSWL(m, r32(dst))
	case dst.Size() == 16:
		self.prog.MOVZWL(m, r32(dst))
	case dst.Size() == 32:
		self.prog.MOVL(m, r32(dst))
	default:
		self.prog.MOVQ(m, r64(dst))
	}
}

func (self *Encoder) store(src codegen.Reg, mem codegen.MemRef) {
	m, release := self.address(mem)
	defer release()

	/* select by the type */
	switch {
	case src.IsFloat() && src.Size() == 64:
		self.prog.MOVSD(xmm(src), m)
	case src.IsFloat():
		self.prog.MOVSS(xmm(src), m)
	case src.Size() == 8:
		self.prog.MOVB(r8(src), m)
	case src.Size() == 16:
		self.prog.MOVW(r16(src), m)
	case src.Size() == 32:
		self.prog.MOVL(r32(src), m)
	default:
		self.prog.MOVQ(r64(src), m)
	}
}

func (self *Encoder) Ldr(dst codegen.Reg, signed bool, mem codegen.MemRef) {
	self.CheckOpen()
	self.load(dst, signed, mem)
}

func (self *Encoder) Str(src codegen.Reg, mem codegen.MemRef) {
	self.CheckOpen()
	self.store(src, mem)
}

// LdrAcquire is a plain load, x86 loads are not reordered with later
// accesses.
func (self *Encoder) LdrAcquire(dst codegen.Reg, signed bool, mem codegen.MemRef) {
	self.CheckOpen()
	self.load(dst, signed, mem)
}

// StrRelease is a plain store, x86 stores are not reordered with earlier
// accesses.
func (self *Encoder) StrRelease(src codegen.Reg, mem codegen.MemRef) {
	self.CheckOpen()
	self.store(src, mem)
}

func (self *Encoder) MemCopy(from codegen.MemRef, to codegen.MemRef, size int) {
	self.CheckOpen()
	tmp := self.rf.Tmp(intType(size))
	defer tmp.Release()
	self.load(tmp.Reg, false, from)
	self.store(tmp.Reg, to)
}

// MemCopyz zero extends the loaded value and stores all 64 bits.
func (self *Encoder) MemCopyz(from codegen.MemRef, to codegen.MemRef, size int) {
	self.CheckOpen()
	tmp := self.rf.Tmp(codegen.Int64)
	defer tmp.Release()
	self.load(tmp.Reg.As(intType(size)), false, from)
	self.store(tmp.Reg, to)
}

// Sti stores an immediate with the width of its type, 64-bit values that do
// not sign extend from 32 bits go through a register.
func (self *Encoder) Sti(imm codegen.Imm, mem codegen.MemRef) {
	self.CheckOpen()
	t := intType(imm.Type.Bytes())
	v := codegen.NewImmOf(imm.Value, t).Truncated()

	/* materialize the bits if needed */
	if t.Size() == 64 && !isInt32(v) {
		tmp := self.rf.Tmp(t)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImm(v))
		self.store(tmp.Reg, mem)
		return
	}

	/* mov $imm, mem */
	m, release := self.address(mem)
	defer release()

	/* select by the width */
	switch t.Size() {
	case 8:
		self.prog.MOVB(v, m)
	case 16:
		self.prog.MOVW(v, m)
	case 32:
		self.prog.MOVL(v, m)
	default:
		self.prog.MOVQ(v, m)
	}
}

// Ldp loads two adjacent values, the loads are not sign extended. The one
// that overwrites the base is loaded last.
func (self *Encoder) Ldp(dst0 codegen.Reg, dst1 codegen.Reg, _ bool, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkPair("Ldp", dst0, dst1)

	/* the second value follows the first */
	next := mem
	next.Disp += int64(dst0.Type.Bytes())

	/* keep the base alive */
	if !dst0.IsFloat() && mem.HasBase() && dst0.Id == mem.Base.Id {
		self.load(dst1, false, next)
		self.load(dst0, false, mem)
	} else {
		self.load(dst0, false, mem)
		self.load(dst1, false, next)
	}
}

func (self *Encoder) Stp(src0 codegen.Reg, src1 codegen.Reg, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkPair("Stp", src0, src1)

	/* the second value follows the first */
	next := mem
	next.Disp += int64(src0.Type.Bytes())

	/* two plain stores */
	self.store(src0, mem)
	self.store(src1, next)
}

func (self *Encoder) checkPair(op string, r0 codegen.Reg, r1 codegen.Reg) {
	if r0.Type != r1.Type {
		panic(fmt.Sprintf("amd64: %s: type mismatch: %s and %s", op, r0, r1))
	} else if op == "Ldp" && r0.Id == r1.Id {
		panic("amd64: Ldp: both destinations are the same register")
	}
}
