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
	`github.com/chenzhuoyu/iasm/expr`
	`github.com/chenzhuoyu/iasm/x86_64`
	`github.com/cloudwego/pandajit/internal/codegen`
)

// lock emits the lock prefix of the next instruction as a raw byte. Prefixes
// set with LOCK() stay on pooled iasm instructions after they are freed.
func (self *Encoder) lock() {
	self.prog.Byte(expr.Int(0xf0))
}

// outOfRax moves r into a scratch register if it lives in rax.
func (self *Encoder) outOfRax(r codegen.Reg) (codegen.Reg, func()) {
	if r.Id != RAX {
		return r, func() {}
	}

	/* copy it out */
	tmp := self.rf.Tmp(r.Type)
	self.movInt(tmp.Reg, r)
	return tmp.Reg, tmp.Release
}

// CompareAndSwap stores value to [addr] if it holds expected, and sets dst to
// 1 on success and 0 otherwise. cmpxchg compares with rax, which is saved
// around the sequence unless it is the destination.
//
//	pushq    %rax
//	movq     expected, %rax
//	lock     cmpxchgq value, (addr)
//	sete     dst
//	movzbl   dst, dst
//	popq     %rax
func (self *Encoder) CompareAndSwap(dst codegen.Reg, addr codegen.Reg, expected codegen.Reg, value codegen.Reg) {
	self.CheckOpen()
	checkScalar("CompareAndSwap", dst, addr, expected, value)
	self.checkNoSp("CompareAndSwap", dst, addr, expected, value)

	/* rax is taken by the expected value */
	addr, rel0 := self.outOfRax(addr)
	value, rel1 := self.outOfRax(value)
	defer rel0()
	defer rel1()

	/* save rax unless it receives the result */
	save := dst.Id != RAX
	if save {
		self.prog.PUSHQ(x86_64.RAX)
	}

	/* the expected value goes to rax */
	self.movInt(codegen.NewReg(RAX, value.Type), expected)
	m := x86_64.Ptr(r64(addr), 0)

	/* lock cmpxchg */
	self.lock()
	switch value.Size() {
	case 8:
		self.prog.CMPXCHGB(r8(value), m)
	case 16:
		self.prog.CMPXCHGW(r16(value), m)
	case 32:
		self.prog.CMPXCHGL(r32(value), m)
	default:
		self.prog.CMPXCHGQ(r64(value), m)
	}

	/* ZF tells the outcome */
	self.setcc(dst, _CondE)
	if save {
		self.prog.POPQ(x86_64.RAX)
	}
}

// UnsafeGetAndSet swaps value into [addr] and sets dst to the old value, xchg
// with memory is always locked.
func (self *Encoder) UnsafeGetAndSet(dst codegen.Reg, addr codegen.Reg, value codegen.Reg) {
	self.CheckOpen()
	checkScalar("UnsafeGetAndSet", dst, addr, value)
	self.checkNoSp("UnsafeGetAndSet", dst, value)

	/* the swapped value lives in a scratch register */
	tmp := self.rf.Tmp(value.Type)
	defer tmp.Release()
	self.movInt(tmp.Reg, value)
	m := x86_64.Ptr(r64(addr), 0)

	/* xchg tmp, (addr) */
	switch value.Size() {
	case 8:
		self.prog.XCHGB(r8(tmp.Reg), m)
	case 16:
		self.prog.XCHGW(r16(tmp.Reg), m)
	case 32:
		self.prog.XCHGL(r32(tmp.Reg), m)
	default:
		self.prog.XCHGQ(r64(tmp.Reg), m)
	}

	/* the old value */
	self.Cast(dst, false, tmp.Reg, false)
}

// UnsafeGetAndAdd adds value to [addr] and sets dst to the old value. tmp
// holds the addend and must not overlap addr, an invalid tmp takes a scratch
// register.
func (self *Encoder) UnsafeGetAndAdd(dst codegen.Reg, addr codegen.Reg, value codegen.Reg, tmp codegen.Reg) {
	self.CheckOpen()
	checkScalar("UnsafeGetAndAdd", dst, addr, value)
	self.checkNoSp("UnsafeGetAndAdd", dst, value)

	/* the addend register */
	if !tmp.IsValid() {
		st := self.rf.Tmp(value.Type)
		defer st.Release()
		tmp = st.Reg
	} else if tmp.Id == addr.Id {
		panic("amd64: UnsafeGetAndAdd: tmp overlaps the address")
	}

	/* lock xadd tmp, (addr) */
	tmp = tmp.As(value.Type)
	self.movInt(tmp, value)
	m := x86_64.Ptr(r64(addr), 0)

	/* select by the width */
	self.lock()
	switch value.Size() {
	case 8:
		self.prog.XADDB(r8(tmp), m)
	case 16:
		self.prog.XADDW(r16(tmp), m)
	case 32:
		self.prog.XADDL(r32(tmp), m)
	default:
		self.prog.XADDQ(r64(tmp), m)
	}

	/* the old value */
	self.Cast(dst, false, tmp, false)
}

// MemoryBarrier emits a fence. Ordinary loads and stores are already ordered
// except for stores followed by loads, which only mfence covers.
func (self *Encoder) MemoryBarrier(order codegen.MemoryOrder) {
	self.CheckOpen()
	switch order {
	case codegen.Acquire:
		self.prog.LFENCE()
	case codegen.Release:
		self.prog.SFENCE()
	case codegen.Full:
		self.prog.MFENCE()
	default:
		panic("amd64: invalid memory order: " + order.String())
	}
}
