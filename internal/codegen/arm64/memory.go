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

	`github.com/cloudwego/pandajit/internal/codegen`
)

// loadOp returns the unsigned offset load for dst, the access size is the
// width of dst. Signed sub-word loads extend into the 32-bit register.
func loadOp(dst codegen.Reg, signed bool) uint32 {
	if dst.IsFloat() {
		return pick(dst.Size() == 64, _LDRD, _LDRS)
	}

	/* integer loads */
	switch dst.Size() {
	case 8:
		return pick(signed, _LDRSBW, _LDRB)
	case 16:
		return pick(signed, _LDRSHW, _LDRH)
	case 32:
		return _LDRW
	default:
		return _LDRX
	}
}

func storeOp(src codegen.Reg) uint32 {
	if src.IsFloat() {
		return pick(src.Size() == 64, _STRD, _STRS)
	}

	/* integer stores */
	switch src.Size() {
	case 8:
		return _STRB
	case 16:
		return _STRH
	case 32:
		return _STRW
	default:
		return _STRX
	}
}

func intType(size int) codegen.TypeInfo {
	switch size {
	case 1, 2, 4, 8:
		return codegen.TypeOf(size*8, false)
	default:
		panic(fmt.Sprintf("arm64: invalid access size: %d", size))
	}
}

// usable reports whether r can serve as a base or index register.
func (self *Encoder) usable(r codegen.Reg) bool {
	return r.IsValid() && !self.rf.IsZero(r)
}

// loadStore encodes a single load or store. The zero register is neither a
// valid base nor a valid index, so such operands are rewritten through a
// scratch register and encoded again, which happens at most once.
func (self *Encoder) loadStore(op uint32, shift uint32, rt uint32, mem codegen.MemRef) {
	if !mem.IsValid() {
		panic("arm64: invalid memory operand: " + mem.String())
	}

	/* a zero index adds nothing */
	if mem.HasIndex() && self.rf.IsZero(mem.Index) {
		mem = codegen.Mem(mem.Base, mem.Disp)
	}

	/* no usable base */
	if !self.usable(mem.Base) {
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()

		/* materialize the address without the base */
		self.MovImm(tmp.Reg, codegen.NewImm(mem.Disp))
		if mem.HasIndex() {
			self.AddShift(tmp.Reg, tmp.Reg, codegen.NewShift(mem.Index.As(codegen.Int64), codegen.LSL, mem.Scale))
		}

		/* encode once more with the fixed operand */
		self.loadStore(op, shift, rt, codegen.Mem(tmp.Reg, 0))
		return
	}

	/* [base, index, lsl #scale] */
	if mem.HasIndex() {
		if mem.Disp == 0 && (mem.Scale == 0 || uint32(mem.Scale) == shift) {
			self.emit(encodeLoadStoreReg(op, rt, enc(mem.Base), enc(mem.Index), pick(mem.Scale != 0, 1, 0)))
			return
		}

		/* disp + base + index << scale */
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImm(mem.Disp))
		self.Add(tmp.Reg, tmp.Reg, mem.Base.As(codegen.Int64))
		self.AddShift(tmp.Reg, tmp.Reg, codegen.NewShift(mem.Index.As(codegen.Int64), codegen.LSL, mem.Scale))
		self.emit(encodeLoadStoreUImm(op, rt, enc(tmp.Reg), 0))
		return
	}

	/* [base, #disp] */
	if d := mem.Disp; d >= 0 && d&(1<<shift-1) == 0 && d>>shift < 4096 {
		self.emit(encodeLoadStoreUImm(op, rt, enc(mem.Base), uint32(d>>shift)))
	} else if d >= -256 && d < 256 {
		self.emit(encodeLoadStoreSImm9(op, rt, enc(mem.Base), d))
	} else {
		tmp := self.rf.Tmp(codegen.Int64)
		defer tmp.Release()
		self.MovImm(tmp.Reg, codegen.NewImm(d))
		self.emit(encodeLoadStoreReg(op, rt, enc(mem.Base), enc(tmp.Reg), 0))
	}
}

// lea computes the address of mem into dst.
func (self *Encoder) lea(dst codegen.Reg, mem codegen.MemRef) {
	if !mem.IsValid() {
		panic("arm64: invalid memory operand: " + mem.String())
	}

	/* base + disp */
	if self.usable(mem.Base) {
		self.AddImm(dst, mem.Base.As(codegen.Int64), codegen.NewImm(mem.Disp))
	} else {
		self.MovImm(dst, codegen.NewImm(mem.Disp))
	}

	/* index << scale */
	if self.usable(mem.Index) {
		self.AddShift(dst, dst, codegen.NewShift(mem.Index.As(codegen.Int64), codegen.LSL, mem.Scale))
	}
}

// addressOf returns a register holding the address of mem for instructions
// that take a bare base register. The release function must be called when
// the register is no longer needed.
func (self *Encoder) addressOf(mem codegen.MemRef) (codegen.Reg, func()) {
	if self.usable(mem.Base) && !mem.HasIndex() && mem.Disp == 0 {
		return mem.Base.As(codegen.Int64), func() {}
	}

	/* compute into a scratch register */
	tmp := self.rf.Tmp(codegen.Int64)
	self.lea(tmp.Reg, mem)
	return tmp.Reg, tmp.Release
}

func (self *Encoder) Ldr(dst codegen.Reg, signed bool, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkNoSp("Ldr", dst)
	self.loadStore(loadOp(dst, signed), sizeLog2(dst), enc(dst), mem)
}

func (self *Encoder) Str(src codegen.Reg, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkNoSp("Str", src)
	self.loadStore(storeOp(src), sizeLog2(src), enc(src), mem)
}

// LdrAcquire is a load-acquire, ldapr is used instead of ldar when RCpc is
// available.
func (self *Encoder) LdrAcquire(dst codegen.Reg, signed bool, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkNoSp("LdrAcquire", dst)
	addr, release := self.addressOf(mem)
	defer release()

	/* select the opcode */
	op := uint32(_LDAR)
	if self.lrcpc {
		op = _LDAPR
	}

	/* vector registers go through a general purpose one */
	if dst.IsFloat() {
		tmp := self.rf.Tmp(codegen.TypeOf(dst.Size(), false))
		defer tmp.Release()
		self.emit(encodeExclusive(op, sizeLog2(dst), 0, enc(tmp.Reg), enc(addr)))
		self.MoveBitsRaw(dst, tmp.Reg)
		return
	}

	/* ldar does not extend */
	self.emit(encodeExclusive(op, sizeLog2(dst), 0, enc(dst), enc(addr)))
	if signed && dst.Size() < 32 && !self.discard(dst) {
		self.extend(dst, dst, dst.Size(), true)
	}
}

func (self *Encoder) StrRelease(src codegen.Reg, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkNoSp("StrRelease", src)
	addr, release := self.addressOf(mem)
	defer release()

	/* vector registers go through a general purpose one */
	if src.IsFloat() {
		tmp := self.rf.Tmp(codegen.TypeOf(src.Size(), false))
		defer tmp.Release()
		self.MoveBitsRaw(tmp.Reg, src)
		src = tmp.Reg
	}

	/* stlr src, [addr] */
	self.emit(encodeExclusive(_STLR, sizeLog2(src), 0, enc(src), enc(addr)))
}

func (self *Encoder) LdrExclusive(dst codegen.Reg, addr codegen.Reg, acquire bool) {
	self.CheckOpen()
	checkScalar("LdrExclusive", dst, addr)
	self.emit(encodeExclusive(pick(acquire, _LDAXR, _LDXR), sizeLog2(dst), 0, enc(dst), enc(addr)))
}

// StrExclusive writes 0 to status when the store succeeds and 1 otherwise.
func (self *Encoder) StrExclusive(status codegen.Reg, src codegen.Reg, addr codegen.Reg, release bool) {
	self.CheckOpen()
	checkScalar("StrExclusive", status, src, addr)

	/* the status must not alias the other operands */
	if status.Id == src.Id || status.Id == addr.Id {
		panic("arm64: StrExclusive: status register overlaps an operand")
	}

	/* stxr / stlxr */
	self.emit(encodeExclusive(pick(release, _STLXR, _STXR), sizeLog2(src), enc(status), enc(src), enc(addr)))
}

func (self *Encoder) MemCopy(from codegen.MemRef, to codegen.MemRef, size int) {
	self.CheckOpen()
	tmp := self.rf.Tmp(intType(size))
	defer tmp.Release()
	self.Ldr(tmp.Reg, false, from)
	self.Str(tmp.Reg, to)
}

// MemCopyz zero extends the loaded value and stores all 64 bits.
func (self *Encoder) MemCopyz(from codegen.MemRef, to codegen.MemRef, size int) {
	self.CheckOpen()
	tmp := self.rf.Tmp(codegen.Int64)
	defer tmp.Release()
	self.Ldr(tmp.Reg.As(intType(size)), false, from)
	self.Str(tmp.Reg, to)
}

// Sti stores an immediate with the width of its type.
func (self *Encoder) Sti(imm codegen.Imm, mem codegen.MemRef) {
	self.CheckOpen()
	t := intType(imm.Type.Bytes())

	/* zeros come from the zero register */
	if imm.IsZero() {
		self.Str(self.rf.Zero(t), mem)
		return
	}

	/* materialize the bits */
	tmp := self.rf.Tmp(t)
	defer tmp.Release()
	self.MovImm(tmp.Reg, codegen.NewImmOf(imm.Value, t))
	self.Str(tmp.Reg, mem)
}

func pairOp(r codegen.Reg, load bool) uint32 {
	switch {
	case r.IsFloat() && r.Size() == 64:
		return pick(load, _LDPD, _STPD)
	case r.IsFloat():
		return pick(load, _LDPS, _STPS)
	case r.Size() == 64:
		return pick(load, _LDPX, _STPX)
	case r.Size() == 32:
		return pick(load, _LDPW, _STPW)
	default:
		panic(fmt.Sprintf("arm64: no pair access for %s", r))
	}
}

func (self *Encoder) pair(op string, load bool, r0 codegen.Reg, r1 codegen.Reg, mem codegen.MemRef) {
	self.CheckOpen()
	self.checkNoSp(op, r0, r1)

	/* both registers have the same type */
	if r0.Type != r1.Type {
		panic(fmt.Sprintf("arm64: %s: type mismatch: %s and %s", op, r0, r1))
	}

	/* the offset is a scaled imm7 */
	n := int64(r0.Type.Bytes())
	fits := mem.Disp%n == 0 && isInt(mem.Disp/n, 7)

	/* otherwise compute the address first */
	if !self.usable(mem.Base) || mem.HasIndex() || !fits {
		addr, release := self.addressOf(mem)
		defer release()
		mem = codegen.Mem(addr, 0)
	}

	/* ldp / stp */
	self.emit(encodeLoadStorePair(pairOp(r0, load), enc(r0), enc(r1), enc(mem.Base), mem.Disp/n))
}

// Ldp loads a pair of registers, the loads are not sign extended.
func (self *Encoder) Ldp(dst0 codegen.Reg, dst1 codegen.Reg, _ bool, mem codegen.MemRef) {
	if dst0.Id == dst1.Id && dst0.IsFloat() == dst1.IsFloat() {
		panic("arm64: Ldp: both destinations are the same register")
	}
	self.pair("Ldp", true, dst0, dst1, mem)
}

func (self *Encoder) Stp(src0 codegen.Reg, src1 codegen.Reg, mem codegen.MemRef) {
	self.pair("Stp", false, src0, src1, mem)
}
