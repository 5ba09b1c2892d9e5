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
)

const (
	_ClassGp = 0
	_ClassFp = 1
)

// RegisterFile knows the special registers of a target and hands out its
// scratch registers. Each class of scratch registers is a fixed capacity stack,
// acquiring pops from it and releasing pushes back.
type RegisterFile struct {
	ZeroId uint8
	SpId   uint8
	LrId   uint8
	lrtmp  bool
	list   [2][]uint8
	free   [2][]uint8
	held   [2]uint64
}

// NewRegisterFile creates a register file. Pass 0xff as zero or lr when the
// target has no such register.
func NewRegisterFile(zero uint8, sp uint8, lr uint8, gp []uint8, fp []uint8) *RegisterFile {
	ret := &RegisterFile{
		ZeroId: zero,
		SpId:   sp,
		LrId:   lr,
		list:   [2][]uint8{gp, fp},
	}

	/* the first register in each list is handed out first */
	for c, regs := range ret.list {
		ret.free[c] = make([]uint8, 0, len(regs)+1)
		for i := len(regs) - 1; i >= 0; i-- {
			ret.free[c] = append(ret.free[c], regs[i])
		}
	}
	return ret
}

func classOf(r Reg) int {
	if r.IsFloat() {
		return _ClassFp
	} else {
		return _ClassGp
	}
}

func (self *RegisterFile) HasZero() bool { return self.ZeroId != _InvalidId }
func (self *RegisterFile) Sp() Reg       { return Reg{Id: self.SpId, Type: Int64} }
func (self *RegisterFile) Lr() Reg       { return Reg{Id: self.LrId, Type: Int64} }

// Zero returns the zero register viewed with type t.
func (self *RegisterFile) Zero(t TypeInfo) Reg {
	if !self.HasZero() {
		panic("codegen: the target has no zero register")
	} else {
		return Reg{Id: self.ZeroId, Type: t}
	}
}

func (self *RegisterFile) IsZero(r Reg) bool {
	return self.HasZero() && r.IsScalar() && r.Id == self.ZeroId
}

func (self *RegisterFile) IsSp(r Reg) bool {
	return r.IsScalar() && r.Id == self.SpId
}

func (self *RegisterFile) IsLr(r Reg) bool {
	return r.IsScalar() && r.Id == self.LrId
}

// EnableLrAsTemp lends the link register to the scratch pool. It goes to the
// bottom of the stack so it is handed out last.
func (self *RegisterFile) EnableLrAsTemp(v bool) {
	if v == self.lrtmp || self.LrId == _InvalidId {
		return
	}

	/* turning it off while borrowed is a bug */
	if !v {
		self.checkLr("disable lr as a temporary")
		self.lrtmp = false
		self.free[_ClassGp] = removeId(self.free[_ClassGp], self.LrId)
		return
	}

	/* insert at the bottom */
	self.lrtmp = true
	fs := append(self.free[_ClassGp], 0)
	copy(fs[1:], fs)
	fs[0] = self.LrId
	self.free[_ClassGp] = fs
}

func (self *RegisterFile) IsLrTemp() bool {
	return self.lrtmp
}

// IsScratch reports whether r belongs to the scratch pool.
func (self *RegisterFile) IsScratch(r Reg) bool {
	c := classOf(r)
	if c == _ClassGp && self.lrtmp && r.Id == self.LrId {
		return true
	}
	for _, id := range self.list[c] {
		if id == r.Id {
			return true
		}
	}
	return false
}

func (self *RegisterFile) IsAcquired(r Reg) bool {
	return r.Id < 64 && self.held[classOf(r)]&(1<<r.Id) != 0
}

// Available returns the number of scratch registers left in a class.
func (self *RegisterFile) Available(float bool) int {
	if float {
		return len(self.free[_ClassFp])
	} else {
		return len(self.free[_ClassGp])
	}
}

// Acquire pops a scratch register of type t. Running out of scratch
// registers is a bug in the caller.
func (self *RegisterFile) Acquire(t TypeInfo) Reg {
	r := Reg{Type: t}
	c := classOf(r)
	n := len(self.free[c])

	/* check for exhaustion */
	if n == 0 {
		panic(fmt.Sprintf("codegen: scratch registers exhausted for %s", t))
	}

	/* pop from the stack */
	r.Id = self.free[c][n-1]
	self.free[c] = self.free[c][:n-1]
	self.held[c] |= 1 << r.Id
	return r
}

// AcquireReg takes a specific scratch register out of the pool.
func (self *RegisterFile) AcquireReg(r Reg) {
	c := classOf(r)
	if self.IsAcquired(r) {
		panic(fmt.Sprintf("codegen: register %s is already acquired", r))
	} else if !self.IsScratch(r) {
		panic(fmt.Sprintf("codegen: register %s is not a scratch register", r))
	} else {
		self.free[c] = removeId(self.free[c], r.Id)
		self.held[c] |= 1 << r.Id
	}
}

func (self *RegisterFile) Release(r Reg) {
	c := classOf(r)
	if !self.IsAcquired(r) {
		panic(fmt.Sprintf("codegen: register %s is not acquired", r))
	} else {
		self.held[c] &^= 1 << r.Id
		self.free[c] = append(self.free[c], r.Id)
	}
}

// CheckCall must be called before emitting a call, the callee clobbers the
// link register.
func (self *RegisterFile) CheckCall() {
	self.checkLr("emit a call")
}

func (self *RegisterFile) checkLr(what string) {
	if self.LrId != _InvalidId && self.held[_ClassGp]&(1<<self.LrId) != 0 {
		panic("codegen: cannot " + what + " while lr is acquired as a temporary")
	}
}

// Tmp acquires a scratch register guarded by a ScopedTmpReg.
func (self *RegisterFile) Tmp(t TypeInfo) ScopedTmpReg {
	return ScopedTmpReg{Reg: self.Acquire(t), rf: self}
}

func removeId(ids []uint8, id uint8) []uint8 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// ScopedTmpReg owns a scratch register until Release, usually deferred:
//
//	tmp := rf.Tmp(codegen.Int64)
//	defer tmp.Release()
type ScopedTmpReg struct {
	Reg
	rf *RegisterFile
}

func (self ScopedTmpReg) Release() {
	if self.rf != nil {
		self.rf.Release(self.Reg)
	}
}

// ChangeType views the held register with type t.
func (self *ScopedTmpReg) ChangeType(t TypeInfo) {
	if classOf(self.Reg) != classOf(Reg{Type: t}) {
		panic("codegen: cannot change the register class of a temporary")
	} else {
		self.Reg.Type = t
	}
}
