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

func checkDistinct(op string, dst codegen.Reg, regs ...codegen.Reg) {
	for _, r := range regs {
		if r.Id == dst.Id {
			panic(fmt.Sprintf("arm64: %s: %s overlaps an operand", op, dst))
		}
	}
}

// CompareAndSwap stores value to [addr] if it holds expected, and sets dst to
// 1 on success and 0 otherwise.
//
// Without LSE this is a two level loop. The value is first observed with a
// load-acquire, a mismatch fails right away. The exclusive pair then retries
// when the store loses the reservation, and restarts from the top when the
// value changed in between.
//
//	restart: ldar  tmp, [addr]
//	         cmp   tmp, expected
//	         b.ne  exit
//	retry:   ldaxr tmp, [addr]
//	         cmp   tmp, expected
//	         b.ne  restart
//	         stlxr wst, value, [addr]
//	         cbnz  wst, retry
//	exit:    cset  dst, eq
func (self *Encoder) CompareAndSwap(dst codegen.Reg, addr codegen.Reg, expected codegen.Reg, value codegen.Reg) {
	self.CheckOpen()
	checkScalar("CompareAndSwap", dst, addr, expected, value)
	self.checkNoSp("CompareAndSwap", dst, expected, value)

	/* the loaded value */
	size := sizeLog2(value)
	tmp := self.rf.Tmp(value.Type)
	defer tmp.Release()

	/* casal tmp, value, [addr] */
	if self.lse {
		self.Mov(tmp.Reg, expected)
		self.emit(encodeAtomic(_CASAL, size, enc(tmp.Reg), enc(value), enc(addr)))
		self.cmpRegs(tmp.Reg, expected)
		self.cset(dst, _CondEQ)
		return
	}

	/* the store status */
	st := self.rf.Tmp(codegen.Int32)
	defer st.Release()

	/* observe the value */
	exit := self.labels.Create()
	restart := self.here()
	self.emit(encodeExclusive(_LDAR, size, 0, enc(tmp.Reg), enc(addr)))
	self.cmpRegs(tmp.Reg, expected)
	self.branchTo(exit, _FixupImm19, encodeBranchCond(_CondNE, 0))

	/* exclusive pair */
	retry := self.here()
	self.emit(encodeExclusive(_LDAXR, size, 0, enc(tmp.Reg), enc(addr)))
	self.cmpRegs(tmp.Reg, expected)
	self.branchTo(restart, _FixupImm19, encodeBranchCond(_CondNE, 0))
	self.emit(encodeExclusive(_STLXR, size, enc(st.Reg), enc(value), enc(addr)))
	self.branchTo(retry, _FixupImm19, encodeCompareBranch(0, 1, enc(st.Reg), 0))

	/* the flags still hold the last comparison */
	self.BindLabel(exit)
	self.cset(dst, _CondEQ)
}

// UnsafeGetAndSet exchanges [addr] with value and returns the old value.
func (self *Encoder) UnsafeGetAndSet(dst codegen.Reg, addr codegen.Reg, value codegen.Reg) {
	self.CheckOpen()
	checkScalar("UnsafeGetAndSet", dst, addr, value)
	self.checkNoSp("UnsafeGetAndSet", dst, value)
	size := sizeLog2(value)

	/* swpal value, dst, [addr] */
	if self.lse {
		self.emit(encodeAtomic(_SWPAL, size, enc(value), enc(dst), enc(addr)))
		return
	}

	/* the loaded value and the store status */
	tmp := self.rf.Tmp(value.Type)
	st := self.rf.Tmp(codegen.Int32)
	defer tmp.Release()
	defer st.Release()

	/* ldaxr / stlxr loop */
	retry := self.here()
	self.emit(encodeExclusive(_LDAXR, size, 0, enc(tmp.Reg), enc(addr)))
	self.emit(encodeExclusive(_STLXR, size, enc(st.Reg), enc(value), enc(addr)))
	self.branchTo(retry, _FixupImm19, encodeCompareBranch(0, 1, enc(st.Reg), 0))
	self.Mov(dst, tmp.Reg)
}

// UnsafeGetAndAdd adds value to [addr] and returns the old value, tmp holds
// the store status. Without LSE it loops like CompareAndSwap, with dst
// holding the observed value:
//
//	restart: ldar  dst, [addr]
//	retry:   ldaxr cur, [addr]
//	         cmp   cur, dst
//	         b.ne  restart
//	         add   sum, cur, value
//	         stlxr wtmp, sum, [addr]
//	         cbnz  wtmp, retry
func (self *Encoder) UnsafeGetAndAdd(dst codegen.Reg, addr codegen.Reg, value codegen.Reg, tmp codegen.Reg) {
	self.CheckOpen()
	checkScalar("UnsafeGetAndAdd", dst, addr, value)
	self.checkNoSp("UnsafeGetAndAdd", dst, value)
	size := sizeLog2(value)

	/* ldaddal value, dst, [addr] */
	if self.lse {
		self.emit(encodeAtomic(_LDADDAL, size, enc(value), enc(dst), enc(addr)))
		return
	}

	/* dst is written before the operands are consumed */
	checkScalar("UnsafeGetAndAdd", tmp)
	checkDistinct("UnsafeGetAndAdd", dst, addr, value, tmp)
	checkDistinct("UnsafeGetAndAdd", tmp, addr, value)

	/* the current value and the sum */
	cur := self.rf.Tmp(value.Type)
	sum := self.rf.Tmp(value.Type)
	defer cur.Release()
	defer sum.Release()

	/* observe the value */
	restart := self.here()
	self.emit(encodeExclusive(_LDAR, size, 0, enc(dst), enc(addr)))

	/* exclusive pair */
	retry := self.here()
	self.emit(encodeExclusive(_LDAXR, size, 0, enc(cur.Reg), enc(addr)))
	self.cmpRegs(cur.Reg, dst.As(value.Type))
	self.branchTo(restart, _FixupImm19, encodeBranchCond(_CondNE, 0))
	self.emit(encodeAddSubShifted(sf(value), 0, 0, enc(sum.Reg), enc(cur.Reg), enc(value), _ShiftLSL, 0))
	self.emit(encodeExclusive(_STLXR, size, enc(tmp), enc(sum.Reg), enc(addr)))
	self.branchTo(retry, _FixupImm19, encodeCompareBranch(0, 1, enc(tmp), 0))
}

func (self *Encoder) MemoryBarrier(order codegen.MemoryOrder) {
	self.CheckOpen()
	switch order {
	case codegen.Acquire:
		self.emit(encodeDmb(_BarrierISHLD))
	case codegen.Release:
		self.emit(encodeDmb(_BarrierISHST))
	case codegen.Full:
		self.emit(encodeDmb(_BarrierISH))
	default:
		panic("arm64: invalid memory order: " + order.String())
	}
}
