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
	`math`
)

// TypeInfo describes the width and class of a register or immediate operand.
type TypeInfo struct {
	bits  uint8
	float bool
}

var (
	NoType  = TypeInfo{}
	Int8    = TypeInfo{bits: 8}
	Int16   = TypeInfo{bits: 16}
	Int32   = TypeInfo{bits: 32}
	Int64   = TypeInfo{bits: 64}
	Float32 = TypeInfo{bits: 32, float: true}
	Float64 = TypeInfo{bits: 64, float: true}
)

// TypeOf returns the integer or floating-point type of the given width.
func TypeOf(bits int, float bool) TypeInfo {
	switch bits {
	case 8, 16:
		if !float {
			return TypeInfo{bits: uint8(bits)}
		}
	case 32, 64:
		return TypeInfo{bits: uint8(bits), float: float}
	}
	panic(fmt.Sprintf("codegen: invalid type: %d bits, float = %v", bits, float))
}

func (self TypeInfo) Size() int      { return int(self.bits) }
func (self TypeInfo) Bytes() int     { return int(self.bits) / 8 }
func (self TypeInfo) IsFloat() bool  { return self.float }
func (self TypeInfo) IsScalar() bool { return self.bits != 0 && !self.float }
func (self TypeInfo) IsValid() bool  { return self.bits != 0 }
func (self TypeInfo) Is64() bool     { return self.bits == 64 }

func (self TypeInfo) String() string {
	if self.bits == 0 {
		return "none"
	} else if self.float {
		return fmt.Sprintf("f%d", self.bits)
	} else {
		return fmt.Sprintf("i%d", self.bits)
	}
}

// Reg is a physical register. Ids are target specific, the zero register and
// the stack pointer are identified through the target's RegisterFile.
type Reg struct {
	Id   uint8
	Type TypeInfo
}

const (
	_InvalidId = 0xff
)

// InvalidReg stands for an absent register operand.
var InvalidReg = Reg{Id: _InvalidId}

func NewReg(id uint8, t TypeInfo) Reg {
	return Reg{Id: id, Type: t}
}

func (self Reg) IsValid() bool  { return self.Id != _InvalidId && self.Type.IsValid() }
func (self Reg) IsFloat() bool  { return self.Type.IsFloat() }
func (self Reg) IsScalar() bool { return self.Type.IsScalar() }
func (self Reg) Size() int      { return self.Type.Size() }

// As returns the same register viewed with another type.
func (self Reg) As(t TypeInfo) Reg {
	return Reg{Id: self.Id, Type: t}
}

func (self Reg) String() string {
	if !self.IsValid() {
		return "r<invalid>"
	} else if self.IsFloat() {
		return fmt.Sprintf("v%d.%s", self.Id, self.Type)
	} else {
		return fmt.Sprintf("r%d.%s", self.Id, self.Type)
	}
}

// Imm is an immediate operand. Floating-point immediates keep their IEEE bits
// in Value.
type Imm struct {
	Value int64
	Type  TypeInfo
}

func NewImm(v int64) Imm {
	return Imm{Value: v, Type: Int64}
}

func NewImmOf(v int64, t TypeInfo) Imm {
	return Imm{Value: v, Type: t}
}

func NewFloat32Imm(v float32) Imm {
	return Imm{Value: int64(math.Float32bits(v)), Type: Float32}
}

func NewFloat64Imm(v float64) Imm {
	return Imm{Value: int64(math.Float64bits(v)), Type: Float64}
}

func (self Imm) IsFloat() bool    { return self.Type.IsFloat() }
func (self Imm) IsZero() bool     { return self.Value == 0 }
func (self Imm) Bits() uint64     { return uint64(self.Value) }
func (self Imm) Float32() float32 { return math.Float32frombits(uint32(self.Value)) }
func (self Imm) Float64() float64 { return math.Float64frombits(uint64(self.Value)) }

// FloatBits converts the immediate to the IEEE bits of a value of type t.
// Integer immediates are converted by value.
func (self Imm) FloatBits(t TypeInfo) uint64 {
	var v float64
	switch {
	case self.IsFloat() && self.Type == t:
		return self.Bits() & (math.MaxUint64 >> (64 - t.Size()))
	case self.IsFloat() && self.Type.Size() == 32:
		v = float64(self.Float32())
	case self.IsFloat():
		v = self.Float64()
	default:
		v = float64(self.Value)
	}

	/* convert to the target precision */
	if t.Size() == 32 {
		return uint64(math.Float32bits(float32(v)))
	} else {
		return math.Float64bits(v)
	}
}

// Truncated returns the value cut down to the immediate's width, sign extended.
func (self Imm) Truncated() int64 {
	switch self.Type.Size() {
	case 8:
		return int64(int8(self.Value))
	case 16:
		return int64(int16(self.Value))
	case 32:
		return int64(int32(self.Value))
	default:
		return self.Value
	}
}

func (self Imm) String() string {
	if self.IsFloat() && self.Type.Size() == 32 {
		return fmt.Sprintf("%g", self.Float32())
	} else if self.IsFloat() {
		return fmt.Sprintf("%g", self.Float64())
	} else {
		return fmt.Sprintf("%#x", self.Value)
	}
}

// MemRef is an address of the form Base + Index << Scale + Disp. Base and
// Index are optional.
type MemRef struct {
	Base  Reg
	Index Reg
	Scale uint8
	Disp  int64
}

func Mem(base Reg, disp int64) MemRef {
	return MemRef{Base: base, Index: InvalidReg, Disp: disp}
}

func MemIndex(base Reg, index Reg, scale uint8, disp int64) MemRef {
	return MemRef{Base: base, Index: index, Scale: scale, Disp: disp}
}

func (self MemRef) HasBase() bool  { return self.Base.IsValid() }
func (self MemRef) HasIndex() bool { return self.Index.IsValid() }
func (self MemRef) HasScale() bool { return self.HasIndex() && self.Scale != 0 }
func (self MemRef) HasDisp() bool  { return self.Disp != 0 }

func (self MemRef) IsValid() bool {
	return (self.HasBase() || self.HasIndex()) && (self.HasIndex() || self.Scale == 0)
}

func (self MemRef) String() string {
	if self.HasIndex() {
		return fmt.Sprintf("[%s + %s << %d + %d]", self.Base, self.Index, self.Scale, self.Disp)
	} else {
		return fmt.Sprintf("[%s + %d]", self.Base, self.Disp)
	}
}

type ShiftKind uint8

const (
	LSL ShiftKind = iota
	LSR
	ASR
	ROR
)

func (self ShiftKind) String() string {
	switch self {
	case LSL:
		return "lsl"
	case LSR:
		return "lsr"
	case ASR:
		return "asr"
	case ROR:
		return "ror"
	default:
		return fmt.Sprintf("ShiftKind(%d)", self)
	}
}

// Shift is a shifted register operand.
type Shift struct {
	Reg    Reg
	Kind   ShiftKind
	Amount uint8
}

func NewShift(r Reg, kind ShiftKind, amount uint8) Shift {
	return Shift{Reg: r, Kind: kind, Amount: amount}
}

// Condition is a comparison predicate. The unsigned variants use the x86
// names, the Tst variants compare the bitwise AND of both operands with 0.
type Condition uint8

const (
	CcEq Condition = iota
	CcNe
	CcLt
	CcLe
	CcGt
	CcGe
	CcB
	CcBe
	CcA
	CcAe
	CcTstEq
	CcTstNe
)

var _CcNames = [...]string{
	CcEq:    "eq",
	CcNe:    "ne",
	CcLt:    "lt",
	CcLe:    "le",
	CcGt:    "gt",
	CcGe:    "ge",
	CcB:     "b",
	CcBe:    "be",
	CcA:     "a",
	CcAe:    "ae",
	CcTstEq: "tst_eq",
	CcTstNe: "tst_ne",
}

func (self Condition) String() string {
	if int(self) < len(_CcNames) {
		return _CcNames[self]
	} else {
		return fmt.Sprintf("Condition(%d)", self)
	}
}

// Inverse returns the condition that holds exactly when self does not.
func (self Condition) Inverse() Condition {
	switch self {
	case CcEq:
		return CcNe
	case CcNe:
		return CcEq
	case CcLt:
		return CcGe
	case CcLe:
		return CcGt
	case CcGt:
		return CcLe
	case CcGe:
		return CcLt
	case CcB:
		return CcAe
	case CcBe:
		return CcA
	case CcA:
		return CcBe
	case CcAe:
		return CcB
	case CcTstEq:
		return CcTstNe
	case CcTstNe:
		return CcTstEq
	default:
		panic("codegen: invalid condition: " + self.String())
	}
}

// Swapped returns the condition with its operands exchanged.
func (self Condition) Swapped() Condition {
	switch self {
	case CcLt:
		return CcGt
	case CcLe:
		return CcGe
	case CcGt:
		return CcLt
	case CcGe:
		return CcLe
	case CcB:
		return CcA
	case CcBe:
		return CcAe
	case CcA:
		return CcB
	case CcAe:
		return CcBe
	default:
		return self
	}
}

func (self Condition) IsTest() bool {
	return self == CcTstEq || self == CcTstNe
}

type MemoryOrder uint8

const (
	Acquire MemoryOrder = iota
	Release
	Full
)

func (self MemoryOrder) String() string {
	switch self {
	case Acquire:
		return "acquire"
	case Release:
		return "release"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("MemoryOrder(%d)", self)
	}
}

// LabelId names a position in the code buffer.
type LabelId uint32

const (
	InvalidLabel LabelId = math.MaxUint32
)

type RelocationType uint8

const (
	RelocNone RelocationType = iota
	RelocCall26
	RelocCall32
)

// RelocationInfo describes a call site to be patched by the loader. Offset is
// the position of the instruction in the code buffer.
type RelocationInfo struct {
	Type   RelocationType
	Offset uint32
	Data   uint32
	Addend int64
}
