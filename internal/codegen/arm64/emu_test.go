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
	`encoding/binary`
	`fmt`
	`math`
	`math/bits`
)

// _Emulator interprets the subset of A64 produced by the encoder, it is only
// used to check the behavior of generated sequences.
type _Emulator struct {
	X     [32]uint64
	V     [32]uint64
	N     bool
	Z     bool
	C     bool
	F     bool
	PC    uint64
	Mem   []byte
	Steps int
	Abort bool
	Hook  func(e *_Emulator, op string, addr uint64)
	code  uint64
	mon   bool
	maddr uint64
}

const (
	_EmuMemSize  = 1 << 16
	_EmuDataBase = 0x8000
	_EmuStackTop = 0xf000
	_EmuHalt     = 0xfff0
	_EmuMaxSteps = 100000
)

func newEmulator(code []byte) *_Emulator {
	e := &_Emulator{Mem: make([]byte, _EmuMemSize), code: uint64(len(code))}
	copy(e.Mem, code)
	e.X[31] = _EmuStackTop
	e.X[LR] = _EmuHalt
	return e
}

var _EmuTab = [...]struct {
	mask uint32
	bits uint32
	emu  func(e *_Emulator, w uint32)
}{
	{0xffffffff, 0xd503201f, (*_Emulator).emuNop},
	{0xfffff0ff, 0xd50330bf, (*_Emulator).emuNop},
	{0xffe0001f, 0xd4200000, (*_Emulator).emuBrk},
	{0xfffffc00, 0x0e205800, (*_Emulator).emuCnt},
	{0xfffffc00, 0x0e31b800, (*_Emulator).emuAddv},
	{0x1f800000, 0x12800000, (*_Emulator).emuMoveWide},
	{0x1f800000, 0x11000000, (*_Emulator).emuAddSubImm},
	{0x1f800000, 0x12000000, (*_Emulator).emuLogicalImm},
	{0x1f800000, 0x13000000, (*_Emulator).emuBitfield},
	{0x1f800000, 0x13800000, (*_Emulator).emuExtr},
	{0x1f000000, 0x10000000, (*_Emulator).emuAdr},
	{0x1f200000, 0x0b000000, (*_Emulator).emuAddSubShifted},
	{0x1f200000, 0x0b200000, (*_Emulator).emuAddSubExtended},
	{0x1f000000, 0x0a000000, (*_Emulator).emuLogicalShifted},
	{0x5fe00000, 0x1ac00000, (*_Emulator).emuDataProc2},
	{0x5fe00000, 0x5ac00000, (*_Emulator).emuDataProc1},
	{0x1f000000, 0x1b000000, (*_Emulator).emuDataProc3},
	{0x1fe00000, 0x1a800000, (*_Emulator).emuCondSelect},
	{0x7c000000, 0x14000000, (*_Emulator).emuBranch},
	{0xff000010, 0x54000000, (*_Emulator).emuBranchCond},
	{0x7e000000, 0x34000000, (*_Emulator).emuCompareBranch},
	{0x7e000000, 0x36000000, (*_Emulator).emuTestBranch},
	{0xfe1ffc1f, 0xd61f0000, (*_Emulator).emuBranchReg},
	{0xff207c00, 0x1e204000, (*_Emulator).emuFpDataProc1},
	{0xff200c00, 0x1e200800, (*_Emulator).emuFpDataProc2},
	{0xff20fc1f, 0x1e202000, (*_Emulator).emuFpCompare},
	{0xff200c00, 0x1e200c00, (*_Emulator).emuFpCondSelect},
	{0xff201fe0, 0x1e201000, (*_Emulator).emuFpImm},
	{0x7f20fc00, 0x1e200000, (*_Emulator).emuFpIntConvert},
	{0x3b000000, 0x39000000, (*_Emulator).emuLoadStoreUImm},
	{0x3b200c00, 0x38000000, (*_Emulator).emuLoadStoreSImm9},
	{0x3b200c00, 0x38200800, (*_Emulator).emuLoadStoreReg},
	{0x3b200c00, 0x38200000, (*_Emulator).emuAtomic},
	{0x3b000000, 0x18000000, (*_Emulator).emuLoadLiteral},
	{0x3b800000, 0x29000000, (*_Emulator).emuLoadStorePair},
	{0x3f000000, 0x08000000, (*_Emulator).emuExclusive},
}

// Run executes until the code returns to the halt address, falls off the end
// or aborts.
func (self *_Emulator) Run() *_Emulator {
	for self.PC != _EmuHalt && self.PC < self.code && !self.Abort {
		if self.Steps++; self.Steps > _EmuMaxSteps {
			panic("emu: too many steps")
		}
		self.step(binary.LittleEndian.Uint32(self.Mem[self.PC:]))
	}
	return self
}

func (self *_Emulator) step(w uint32) {
	for _, ent := range _EmuTab {
		if w&ent.mask == ent.bits {
			pc := self.PC
			ent.emu(self, w)
			if self.PC == pc {
				self.PC += 4
			}
			return
		}
	}
	panic(fmt.Sprintf("emu: unknown instruction %08x at %#x", w, self.PC))
}

/** State Helpers **/

func field(w uint32, lo uint, n uint) uint32 {
	return (w >> lo) & (1<<n - 1)
}

func sext(v uint64, n uint) uint64 {
	return uint64(int64(v<<(64-n)) >> (64 - n))
}

func mask(n uint32) uint64 {
	if n >= 64 {
		return math.MaxUint64
	} else {
		return 1<<n - 1
	}
}

// R reads a register, 31 is sp when sp is set and the zero register otherwise.
func (self *_Emulator) R(n uint32, sp bool) uint64 {
	if n == 31 && !sp {
		return 0
	} else {
		return self.X[n]
	}
}

func (self *_Emulator) W(n uint32, v uint64, is64 bool, sp bool) {
	if !is64 {
		v = uint64(uint32(v))
	}
	if n != 31 || sp {
		self.X[n] = v
	}
}

func (self *_Emulator) Load(addr uint64, n int) uint64 {
	if addr+uint64(n) > _EmuMemSize {
		panic(fmt.Sprintf("emu: load out of bounds: %#x", addr))
	}
	var buf [8]byte
	copy(buf[:], self.Mem[addr:addr+uint64(n)])
	return binary.LittleEndian.Uint64(buf[:])
}

func (self *_Emulator) Store(addr uint64, n int, v uint64) {
	if addr+uint64(n) > _EmuMemSize {
		panic(fmt.Sprintf("emu: store out of bounds: %#x", addr))
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	copy(self.Mem[addr:addr+uint64(n)], buf[:n])
}

// Interfere is a store from another observer, it breaks the exclusive
// reservation.
func (self *_Emulator) Interfere(addr uint64, n int, v uint64) {
	self.Store(addr, n, v)
	self.mon = false
}

func (self *_Emulator) hook(op string, addr uint64) {
	if self.Hook != nil {
		self.Hook(self, op, addr)
	}
}

func (self *_Emulator) flags(n, z, c, v bool) {
	self.N, self.Z, self.C, self.F = n, z, c, v
}

func (self *_Emulator) cond(cc uint32) bool {
	var r bool
	switch cc >> 1 {
	case 0:
		r = self.Z
	case 1:
		r = self.C
	case 2:
		r = self.N
	case 3:
		r = self.F
	case 4:
		r = self.C && !self.Z
	case 5:
		r = self.N == self.F
	case 6:
		r = self.N == self.F && !self.Z
	default:
		return true
	}
	if cc&1 != 0 {
		r = !r
	}
	return r
}

func (self *_Emulator) addWithCarry(x uint64, y uint64, carry uint64, is64 bool, setf bool) uint64 {
	if is64 {
		r, c := bits.Add64(x, y, carry)
		if setf {
			self.flags(int64(r) < 0, r == 0, c != 0, (int64(x) < 0) == (int64(y) < 0) && (int64(r) < 0) != (int64(x) < 0))
		}
		return r
	}
	r, c := bits.Add32(uint32(x), uint32(y), uint32(carry))
	if setf {
		self.flags(int32(r) < 0, r == 0, c != 0, (int32(x) < 0) == (int32(y) < 0) && (int32(r) < 0) != (int32(x) < 0))
	}
	return uint64(r)
}

func shiftOp(v uint64, kind uint32, amount uint32, is64 bool) uint64 {
	if !is64 {
		switch kind {
		case _ShiftLSL:
			return uint64(uint32(v) << amount)
		case _ShiftLSR:
			return uint64(uint32(v) >> amount)
		case _ShiftASR:
			return uint64(uint32(int32(v) >> amount))
		default:
			return uint64(bits.RotateLeft32(uint32(v), -int(amount)))
		}
	}
	switch kind {
	case _ShiftLSL:
		return v << amount
	case _ShiftLSR:
		return v >> amount
	case _ShiftASR:
		return uint64(int64(v) >> amount)
	default:
		return bits.RotateLeft64(v, -int(amount))
	}
}

/** Integer Instructions **/

func (self *_Emulator) emuNop(_ uint32) {}

func (self *_Emulator) emuBrk(_ uint32) {
	self.Abort = true
}

func (self *_Emulator) emuMoveWide(w uint32) {
	is64 := w>>31 != 0
	rd, hw := field(w, 0, 5), field(w, 21, 2)
	imm := uint64(field(w, 5, 16)) << (16 * hw)
	switch field(w, 29, 2) {
	case _MovN:
		self.W(rd, ^imm, is64, false)
	case _MovZ:
		self.W(rd, imm, is64, false)
	default:
		self.W(rd, self.R(rd, false)&^(0xffff<<(16*hw))|imm, is64, false)
	}
}

func (self *_Emulator) emuAddSubImm(w uint32) {
	is64, sub, setf := w>>31 != 0, field(w, 30, 1), field(w, 29, 1) != 0
	imm := uint64(field(w, 10, 12)) << (12 * field(w, 22, 1))
	x := self.R(field(w, 5, 5), true)
	if sub != 0 {
		self.W(field(w, 0, 5), self.addWithCarry(x, ^imm, 1, is64, setf), is64, !setf)
	} else {
		self.W(field(w, 0, 5), self.addWithCarry(x, imm, 0, is64, setf), is64, !setf)
	}
}

func decodeBitMasks(n uint32, imms uint32, immr uint32, is64 bool) uint64 {
	l := uint32(bits.Len32(n<<6|(^imms&0x3f))) - 1
	size := uint32(1) << l
	s, r := imms&(size-1), immr&(size-1)
	elem := mask(s + 1)
	if r != 0 {
		elem = (elem>>r | elem<<(size-r)) & mask(size)
	}
	for ; size < 64; size *= 2 {
		elem |= elem << size
	}
	if !is64 {
		elem &= math.MaxUint32
	}
	return elem
}

func (self *_Emulator) logic(opc uint32, x uint64, y uint64, is64 bool) uint64 {
	var r uint64
	switch opc {
	case _LogicAnd, _LogicAnds:
		r = x & y
	case _LogicOrr:
		r = x | y
	default:
		r = x ^ y
	}
	if !is64 {
		r = uint64(uint32(r))
	}
	if opc == _LogicAnds {
		if is64 {
			self.flags(int64(r) < 0, r == 0, false, false)
		} else {
			self.flags(int32(r) < 0, r == 0, false, false)
		}
	}
	return r
}

func (self *_Emulator) emuLogicalImm(w uint32) {
	is64, opc := w>>31 != 0, field(w, 29, 2)
	imm := decodeBitMasks(field(w, 22, 1), field(w, 10, 6), field(w, 16, 6), is64)
	r := self.logic(opc, self.R(field(w, 5, 5), false), imm, is64)
	self.W(field(w, 0, 5), r, is64, opc != _LogicAnds)
}

func (self *_Emulator) emuBitfield(w uint32) {
	is64, opc := w>>31 != 0, field(w, 29, 2)
	immr, imms := field(w, 16, 6), field(w, 10, 6)
	size := uint32(32)
	if is64 {
		size = 64
	}

	/* extract or insert the field */
	src := self.R(field(w, 5, 5), false) & mask(size)
	var r uint64
	var top uint32
	if imms >= immr {
		r = (src >> immr) & mask(imms-immr+1)
		top = imms - immr
	} else {
		r = (src & mask(imms+1)) << (size - immr)
		top = size - immr + imms
	}

	/* sbfm extends the top bit of the field */
	if opc == _SBFM && r>>top&1 != 0 {
		r |= ^mask(top + 1)
	}
	self.W(field(w, 0, 5), r&mask(size), is64, false)
}

func (self *_Emulator) emuExtr(w uint32) {
	is64 := w>>31 != 0
	lsb := field(w, 10, 6)
	hi, lo := self.R(field(w, 5, 5), false), self.R(field(w, 16, 5), false)
	if lsb == 0 {
		self.W(field(w, 0, 5), lo, is64, false)
	} else if is64 {
		self.W(field(w, 0, 5), lo>>lsb|hi<<(64-lsb), true, false)
	} else {
		v := uint64(uint32(hi))<<32 | uint64(uint32(lo))
		self.W(field(w, 0, 5), v>>lsb, false, false)
	}
}

func (self *_Emulator) emuAdr(w uint32) {
	imm := sext(uint64(field(w, 5, 19)<<2|field(w, 29, 2)), 21)
	if w>>31 == 0 {
		self.W(field(w, 0, 5), self.PC+imm, true, false)
	} else {
		self.W(field(w, 0, 5), self.PC&^0xfff+imm<<12, true, false)
	}
}

func (self *_Emulator) emuAddSubShifted(w uint32) {
	is64, sub, setf := w>>31 != 0, field(w, 30, 1), field(w, 29, 1) != 0
	y := shiftOp(self.R(field(w, 16, 5), false), field(w, 22, 2), field(w, 10, 6), is64)
	x := self.R(field(w, 5, 5), false)
	if sub != 0 {
		self.W(field(w, 0, 5), self.addWithCarry(x, ^y, 1, is64, setf), is64, false)
	} else {
		self.W(field(w, 0, 5), self.addWithCarry(x, y, 0, is64, setf), is64, false)
	}
}

func (self *_Emulator) emuAddSubExtended(w uint32) {
	is64, sub, setf := w>>31 != 0, field(w, 30, 1), field(w, 29, 1) != 0
	y := self.R(field(w, 16, 5), false)
	if field(w, 13, 3) == 0b010 {
		y = uint64(uint32(y))
	}
	y <<= field(w, 10, 3)
	x := self.R(field(w, 5, 5), true)
	if sub != 0 {
		self.W(field(w, 0, 5), self.addWithCarry(x, ^y, 1, is64, setf), is64, !setf)
	} else {
		self.W(field(w, 0, 5), self.addWithCarry(x, y, 0, is64, setf), is64, !setf)
	}
}

func (self *_Emulator) emuLogicalShifted(w uint32) {
	is64, opc := w>>31 != 0, field(w, 29, 2)
	y := shiftOp(self.R(field(w, 16, 5), false), field(w, 22, 2), field(w, 10, 6), is64)
	if field(w, 21, 1) != 0 {
		y = ^y
	}
	self.W(field(w, 0, 5), self.logic(opc, self.R(field(w, 5, 5), false), y, is64), is64, false)
}

func (self *_Emulator) emuDataProc2(w uint32) {
	is64 := w>>31 != 0
	x, y := self.R(field(w, 5, 5), false), self.R(field(w, 16, 5), false)
	size := uint64(32)
	if is64 {
		size = 64
	} else {
		x, y = uint64(uint32(x)), uint64(uint32(y))
	}

	/* division by zero yields zero */
	var r uint64
	switch field(w, 10, 6) {
	case _OpUDiv:
		if y != 0 {
			r = x / y
		}
	case _OpSDiv:
		if !is64 {
			x, y = sext(x, 32), sext(y, 32)
		}
		if y == 0 {
			r = 0
		} else if int64(x) == math.MinInt64 && int64(y) == -1 {
			r = x
		} else {
			r = uint64(int64(x) / int64(y))
		}
	case _OpLslv:
		r = shiftOp(x, _ShiftLSL, uint32(y%size), is64)
	case _OpLsrv:
		r = shiftOp(x, _ShiftLSR, uint32(y%size), is64)
	case _OpAsrv:
		r = shiftOp(x, _ShiftASR, uint32(y%size), is64)
	case _OpRorv:
		r = shiftOp(x, _ShiftROR, uint32(y%size), is64)
	default:
		panic(fmt.Sprintf("emu: invalid data processing instruction %08x", w))
	}
	self.W(field(w, 0, 5), r, is64, false)
}

func (self *_Emulator) emuDataProc1(w uint32) {
	is64 := w>>31 != 0
	x := self.R(field(w, 5, 5), false)
	var r uint64
	switch op := field(w, 10, 6); {
	case op == _OpRbit && is64:
		r = bits.Reverse64(x)
	case op == _OpRbit:
		r = uint64(bits.Reverse32(uint32(x)))
	case op == _OpRev16:
		v := uint32(x)
		r = uint64(v>>8&0x00ff00ff | v<<8&0xff00ff00)
	case op == _OpRev32 && !is64:
		r = uint64(bits.ReverseBytes32(uint32(x)))
	case op == _OpRev64:
		r = bits.ReverseBytes64(x)
	case op == _OpClz && is64:
		r = uint64(bits.LeadingZeros64(x))
	case op == _OpClz:
		r = uint64(bits.LeadingZeros32(uint32(x)))
	default:
		panic(fmt.Sprintf("emu: invalid data processing instruction %08x", w))
	}
	self.W(field(w, 0, 5), r, is64, false)
}

func (self *_Emulator) emuDataProc3(w uint32) {
	is64 := w>>31 != 0
	p := self.R(field(w, 5, 5), false) * self.R(field(w, 16, 5), false)
	a := self.R(field(w, 10, 5), false)
	if field(w, 15, 1) != 0 {
		self.W(field(w, 0, 5), a-p, is64, false)
	} else {
		self.W(field(w, 0, 5), a+p, is64, false)
	}
}

func (self *_Emulator) emuCondSelect(w uint32) {
	is64 := w>>31 != 0
	op, o2 := field(w, 30, 1), field(w, 10, 1)
	x, y := self.R(field(w, 5, 5), false), self.R(field(w, 16, 5), false)
	if !self.cond(field(w, 12, 4)) {
		switch {
		case op == 0 && o2 == 0:
			x = y
		case op == 0:
			x = y + 1
		case o2 == 0:
			x = ^y
		default:
			x = -y
		}
	}
	self.W(field(w, 0, 5), x, is64, false)
}

/** Branches **/

func (self *_Emulator) emuBranch(w uint32) {
	if w>>31 != 0 {
		self.X[LR] = self.PC + 4
	}
	self.PC += sext(uint64(field(w, 0, 26)), 26) << 2
}

func (self *_Emulator) emuBranchCond(w uint32) {
	if self.cond(field(w, 0, 4)) {
		self.PC += sext(uint64(field(w, 5, 19)), 19) << 2
	}
}

func (self *_Emulator) emuCompareBranch(w uint32) {
	v := self.R(field(w, 0, 5), false)
	if w>>31 == 0 {
		v = uint64(uint32(v))
	}
	if (v == 0) == (field(w, 24, 1) == 0) {
		self.PC += sext(uint64(field(w, 5, 19)), 19) << 2
	}
}

func (self *_Emulator) emuTestBranch(w uint32) {
	bit := field(w, 31, 1)<<5 | field(w, 19, 5)
	set := self.R(field(w, 0, 5), false)>>bit&1 != 0
	if set == (field(w, 24, 1) != 0) {
		self.PC += sext(uint64(field(w, 5, 14)), 14) << 2
	}
}

func (self *_Emulator) emuBranchReg(w uint32) {
	target := self.R(field(w, 5, 5), false)
	if field(w, 21, 2) == _BLR {
		self.X[LR] = self.PC + 4
	}
	self.PC = target
}

/** Loads and Stores **/

func (self *_Emulator) access(w uint32, addr uint64) {
	size := field(w, 30, 2)
	opc := field(w, 22, 2)
	rt := field(w, 0, 5)
	n := 1 << size

	/* vector registers */
	if field(w, 26, 1) != 0 {
		if opc == 0 {
			self.Store(addr, n, self.V[rt])
		} else {
			self.V[rt] = self.Load(addr, n)
		}
		return
	}

	/* general purpose registers */
	switch opc {
	case 0:
		self.Store(addr, n, self.R(rt, false))
	case 1:
		self.W(rt, self.Load(addr, n), true, false)
	case 2:
		self.W(rt, sext(self.Load(addr, n), uint(8*n)), true, false)
	default:
		self.W(rt, sext(self.Load(addr, n), uint(8*n)), false, false)
	}
}

func (self *_Emulator) emuLoadStoreUImm(w uint32) {
	self.access(w, self.R(field(w, 5, 5), true)+uint64(field(w, 10, 12))<<field(w, 30, 2))
}

func (self *_Emulator) emuLoadStoreSImm9(w uint32) {
	self.access(w, self.R(field(w, 5, 5), true)+sext(uint64(field(w, 12, 9)), 9))
}

func (self *_Emulator) emuLoadStoreReg(w uint32) {
	off := self.R(field(w, 16, 5), false)
	if field(w, 12, 1) != 0 {
		off <<= field(w, 30, 2)
	}
	self.access(w, self.R(field(w, 5, 5), true)+off)
}

func (self *_Emulator) emuLoadLiteral(w uint32) {
	addr := self.PC + sext(uint64(field(w, 5, 19)), 19)<<2
	rt := field(w, 0, 5)
	n := 4 << field(w, 30, 2)
	if field(w, 26, 1) != 0 {
		self.V[rt] = self.Load(addr, n)
	} else {
		self.W(rt, self.Load(addr, n), true, false)
	}
}

func (self *_Emulator) emuLoadStorePair(w uint32) {
	vr := field(w, 26, 1) != 0
	n := 4 << (field(w, 30, 2) >> 1)
	if vr {
		n = 4 << field(w, 30, 2)
	}

	/* the offset is scaled by the access size */
	rt, rt2 := field(w, 0, 5), field(w, 10, 5)
	addr := self.R(field(w, 5, 5), true) + sext(uint64(field(w, 15, 7)), 7)*uint64(n)

	/* L selects loads */
	switch {
	case field(w, 22, 1) == 0 && vr:
		self.Store(addr, n, self.V[rt])
		self.Store(addr+uint64(n), n, self.V[rt2])
	case field(w, 22, 1) == 0:
		self.Store(addr, n, self.R(rt, false))
		self.Store(addr+uint64(n), n, self.R(rt2, false))
	case vr:
		self.V[rt] = self.Load(addr, n)
		self.V[rt2] = self.Load(addr+uint64(n), n)
	default:
		self.W(rt, self.Load(addr, n), true, false)
		self.W(rt2, self.Load(addr+uint64(n), n), true, false)
	}
}

func (self *_Emulator) emuExclusive(w uint32) {
	n := 1 << field(w, 30, 2)
	o2, l, o1 := field(w, 23, 1), field(w, 22, 1), field(w, 21, 1)
	rs, rt := field(w, 16, 5), field(w, 0, 5)
	addr := self.R(field(w, 5, 5), true)

	/* dispatch by the o2:L:o1 bits */
	switch {
	case o2 == 1 && o1 == 1:
		self.hook("cas", addr)
		old := self.Load(addr, n)
		if old == self.R(rs, false)&mask(uint32(8*n)) {
			self.Store(addr, n, self.R(rt, false))
		}
		self.W(rs, old, n == 8, false)
	case o2 == 1 && l == 1:
		self.hook("ldar", addr)
		self.W(rt, self.Load(addr, n), true, false)
	case o2 == 1:
		self.Store(addr, n, self.R(rt, false))
	case l == 1:
		self.hook("ldaxr", addr)
		self.W(rt, self.Load(addr, n), true, false)
		self.mon, self.maddr = true, addr
	default:
		self.hook("stlxr", addr)
		if self.mon && self.maddr == addr {
			self.Store(addr, n, self.R(rt, false))
			self.W(rs, 0, false, false)
		} else {
			self.W(rs, 1, false, false)
		}
		self.mon = false
	}
}

func (self *_Emulator) emuAtomic(w uint32) {
	n := 1 << field(w, 30, 2)
	rs, rt := field(w, 16, 5), field(w, 0, 5)
	addr := self.R(field(w, 5, 5), true)

	/* ldadd, swp and ldapr */
	switch field(w, 12, 4) {
	case 0b0000:
		old := self.Load(addr, n)
		self.Store(addr, n, old+self.R(rs, false))
		self.W(rt, old, true, false)
	case 0b1000:
		old := self.Load(addr, n)
		self.Store(addr, n, self.R(rs, false))
		self.W(rt, old, true, false)
	case 0b1100:
		self.hook("ldar", addr)
		self.W(rt, self.Load(addr, n), true, false)
	default:
		panic(fmt.Sprintf("emu: invalid atomic instruction %08x", w))
	}
}

/** Floating-Point Instructions **/

func (self *_Emulator) fp(n uint32, is64 bool) float64 {
	if is64 {
		return math.Float64frombits(self.V[n])
	} else {
		return float64(math.Float32frombits(uint32(self.V[n])))
	}
}

func (self *_Emulator) setFp(n uint32, v float64, is64 bool) {
	if is64 {
		self.V[n] = math.Float64bits(v)
	} else {
		self.V[n] = uint64(math.Float32bits(float32(v)))
	}
}

func (self *_Emulator) emuFpDataProc1(w uint32) {
	is64 := field(w, 22, 2) == 1
	rd, rn := field(w, 0, 5), field(w, 5, 5)
	switch field(w, 15, 6) {
	case _FpMov:
		self.V[rd] = self.V[rn] & mask(32<<field(w, 22, 1))
	case _FpAbs:
		self.setFp(rd, math.Abs(self.fp(rn, is64)), is64)
	case _FpNeg:
		self.setFp(rd, -self.fp(rn, is64), is64)
	case _FpSqrt:
		self.setFp(rd, math.Sqrt(self.fp(rn, is64)), is64)
	case _FpCvtS:
		self.setFp(rd, self.fp(rn, is64), false)
	case _FpCvtD:
		self.setFp(rd, self.fp(rn, is64), true)
	default:
		panic(fmt.Sprintf("emu: invalid fp instruction %08x", w))
	}
}

func (self *_Emulator) emuFpDataProc2(w uint32) {
	is64 := field(w, 22, 2) == 1
	x, y := self.fp(field(w, 5, 5), is64), self.fp(field(w, 16, 5), is64)
	var r float64
	switch field(w, 12, 4) {
	case _FpMul:
		r = x * y
	case _FpDiv:
		r = x / y
	case _FpAdd:
		r = x + y
	case _FpSub:
		r = x - y
	case _FpMax:
		r = math.Max(x, y)
	case _FpMin:
		r = math.Min(x, y)
	default:
		panic(fmt.Sprintf("emu: invalid fp instruction %08x", w))
	}
	self.setFp(field(w, 0, 5), r, is64)
}

func (self *_Emulator) emuFpCompare(w uint32) {
	is64 := field(w, 22, 2) == 1
	x, y := self.fp(field(w, 5, 5), is64), self.fp(field(w, 16, 5), is64)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		self.flags(false, false, true, true)
	case x == y:
		self.flags(false, true, true, false)
	case x < y:
		self.flags(true, false, false, false)
	default:
		self.flags(false, false, true, false)
	}
}

func (self *_Emulator) emuFpCondSelect(w uint32) {
	if self.cond(field(w, 12, 4)) {
		self.V[field(w, 0, 5)] = self.V[field(w, 5, 5)]
	} else {
		self.V[field(w, 0, 5)] = self.V[field(w, 16, 5)]
	}
}

func expandImm8(imm8 uint32, is64 bool) uint64 {
	sign, b6, rest := uint64(imm8>>7&1), uint64(imm8>>6&1), uint64(imm8&0x3f)
	if is64 {
		return sign<<63 | ((b6^1)<<10|(b6*0xff)<<2|rest>>4)<<52 | (rest&0xf)<<48
	} else {
		return sign<<31 | ((b6^1)<<7|(b6*0x1f)<<2|rest>>4)<<23 | (rest&0xf)<<19
	}
}

func (self *_Emulator) emuFpImm(w uint32) {
	self.V[field(w, 0, 5)] = expandImm8(field(w, 13, 8), field(w, 22, 2) == 1)
}

func saturate(v float64, signed bool, is64 bool) uint64 {
	switch {
	case math.IsNaN(v):
		return 0
	case signed && is64 && v >= math.MaxInt64:
		return math.MaxInt64
	case signed && is64 && v <= math.MinInt64:
		return 1 << 63
	case signed && is64:
		return uint64(int64(v))
	case signed && v >= math.MaxInt32:
		return math.MaxInt32
	case signed && v <= math.MinInt32:
		return 1 << 31
	case signed:
		return uint64(uint32(int32(v)))
	case v <= 0:
		return 0
	case is64 && v >= math.MaxUint64:
		return math.MaxUint64
	case is64:
		return uint64(v)
	case v >= math.MaxUint32:
		return math.MaxUint32
	default:
		return uint64(uint32(v))
	}
}

func (self *_Emulator) emuFpIntConvert(w uint32) {
	is64, dbl := w>>31 != 0, field(w, 22, 2) == 1
	rd, rn := field(w, 0, 5), field(w, 5, 5)
	x := self.R(rn, false)
	switch field(w, 16, 5) {
	case _CvtSCVTF:
		if !is64 {
			x = sext(x, 32)
		}
		self.setFp(rd, float64(int64(x)), dbl)
	case _CvtUCVTF:
		if !is64 {
			x = uint64(uint32(x))
		}
		self.setFp(rd, float64(x), dbl)
	case _CvtFCVTZS:
		self.W(rd, saturate(math.Trunc(self.fp(rn, dbl)), true, is64), is64, false)
	case _CvtFCVTZU:
		self.W(rd, saturate(math.Trunc(self.fp(rn, dbl)), false, is64), is64, false)
	case _CvtFMOVToGp:
		self.W(rd, self.V[rn], is64, false)
	case _CvtFMOVToFp:
		self.V[rd] = x & mask(32<<field(w, 31, 1))
	default:
		panic(fmt.Sprintf("emu: invalid conversion instruction %08x", w))
	}
}

func (self *_Emulator) emuCnt(w uint32) {
	v := self.V[field(w, 5, 5)]
	r := uint64(0)
	for i := 0; i < 8; i++ {
		r |= uint64(bits.OnesCount8(uint8(v>>(8*i)))) << (8 * i)
	}
	self.V[field(w, 0, 5)] = r
}

func (self *_Emulator) emuAddv(w uint32) {
	v := self.V[field(w, 5, 5)]
	r := uint64(0)
	for i := 0; i < 8; i++ {
		r += v >> (8 * i) & 0xff
	}
	self.V[field(w, 0, 5)] = r & 0xff
}
