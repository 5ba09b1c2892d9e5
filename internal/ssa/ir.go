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

package ssa

import (
	`fmt`
	`strings`
)

type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpConstant
	OpParameter
	OpNullPtr
	OpPhi
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpNot
	OpAbs
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpAShr
	OpCast
	OpCompare
	OpIf
	OpIfImm
	OpReturn
	OpReturnVoid
	OpThrow
	OpDeoptimize
	OpSaveState
	OpSafePoint
	OpNullCheck
	OpZeroCheck
	OpBoundsCheck
	OpLenArray
	OpLoadArray
	OpStoreArray
	OpLoadObject
	OpStoreObject
	OpLoadStatic
	OpStoreStatic
	OpLoadImmediate
	OpLoadClass
	OpInitClass
	OpLoadAndInitClass
	OpNewObject
	OpNewArray
	OpResolveVirtual
	OpCallVirtual
	OpCallResolvedVirtual
	OpCallStatic
	_OpCount
)

// Flags describe what an opcode may do, independent of its operands.
type Flags uint32

const (
	FlagNoSideEffects Flags = 1 << iota
	FlagMovable
	FlagCanThrow
	FlagCanDeoptimize
	FlagRequireState
	FlagRuntimeCall
	FlagLoad
	FlagStore
	FlagAlloc
	FlagBarrier
	FlagNoHoist
	FlagTerminator
	FlagGCImmovable
	FlagDerefsObject
	FlagCanTrap
)

const (
	_F_pure  = FlagNoSideEffects | FlagMovable
	_F_check = FlagCanThrow | FlagCanDeoptimize | FlagRequireState
	_F_call  = FlagRuntimeCall | FlagRequireState | FlagCanThrow | FlagBarrier | FlagNoHoist
	_F_store = FlagStore | FlagBarrier | FlagNoHoist | FlagDerefsObject
)

type _OpInfo struct {
	name  string
	flags Flags
}

var opinfo = [_OpCount]_OpInfo{
	OpInvalid:             {"Invalid", FlagNoHoist},
	OpConstant:            {"Constant", _F_pure},
	OpParameter:           {"Parameter", FlagNoSideEffects | FlagNoHoist},
	OpNullPtr:             {"NullPtr", _F_pure | FlagGCImmovable},
	OpPhi:                 {"Phi", FlagNoSideEffects | FlagNoHoist},
	OpAdd:                 {"Add", _F_pure},
	OpSub:                 {"Sub", _F_pure},
	OpMul:                 {"Mul", _F_pure},
	OpDiv:                 {"Div", _F_pure | FlagCanTrap},
	OpMod:                 {"Mod", _F_pure | FlagCanTrap},
	OpNeg:                 {"Neg", _F_pure},
	OpNot:                 {"Not", _F_pure},
	OpAbs:                 {"Abs", _F_pure},
	OpAnd:                 {"And", _F_pure},
	OpOr:                  {"Or", _F_pure},
	OpXor:                 {"Xor", _F_pure},
	OpShl:                 {"Shl", _F_pure},
	OpShr:                 {"Shr", _F_pure},
	OpAShr:                {"AShr", _F_pure},
	OpCast:                {"Cast", _F_pure},
	OpCompare:             {"Compare", _F_pure},
	OpIf:                  {"If", FlagTerminator | FlagNoHoist},
	OpIfImm:               {"IfImm", FlagTerminator | FlagNoHoist},
	OpReturn:              {"Return", FlagTerminator | FlagNoHoist},
	OpReturnVoid:          {"ReturnVoid", FlagTerminator | FlagNoHoist},
	OpThrow:               {"Throw", FlagTerminator | FlagNoHoist | FlagCanThrow | FlagRequireState},
	OpDeoptimize:          {"Deoptimize", FlagTerminator | FlagNoHoist | FlagCanDeoptimize | FlagRequireState},
	OpSaveState:           {"SaveState", FlagNoHoist},
	OpSafePoint:           {"SafePoint", FlagNoHoist | FlagRuntimeCall},
	OpNullCheck:           {"NullCheck", _F_check},
	OpZeroCheck:           {"ZeroCheck", _F_check},
	OpBoundsCheck:         {"BoundsCheck", _F_check},
	OpLenArray:            {"LenArray", _F_pure | FlagDerefsObject},
	OpLoadArray:           {"LoadArray", FlagLoad | FlagMovable | FlagDerefsObject},
	OpStoreArray:          {"StoreArray", _F_store},
	OpLoadObject:          {"LoadObject", FlagLoad | FlagMovable | FlagDerefsObject},
	OpStoreObject:         {"StoreObject", _F_store},
	OpLoadStatic:          {"LoadStatic", FlagLoad | FlagMovable | FlagDerefsObject},
	OpStoreStatic:         {"StoreStatic", _F_store},
	OpLoadImmediate:       {"LoadImmediate", _F_pure | FlagGCImmovable},
	OpLoadClass:           {"LoadClass", _F_check | FlagRuntimeCall | FlagGCImmovable},
	OpInitClass:           {"InitClass", _F_call},
	OpLoadAndInitClass:    {"LoadAndInitClass", _F_call | FlagGCImmovable},
	OpNewObject:           {"NewObject", _F_call | FlagAlloc},
	OpNewArray:            {"NewArray", _F_call | FlagAlloc},
	OpResolveVirtual:      {"ResolveVirtual", _F_check | FlagRuntimeCall},
	OpCallVirtual:         {"CallVirtual", _F_call | FlagStore},
	OpCallResolvedVirtual: {"CallResolvedVirtual", _F_call | FlagStore},
	OpCallStatic:          {"CallStatic", _F_call | FlagStore},
}

func (self Opcode) String() string {
	if self < _OpCount {
		return opinfo[self].name
	} else {
		return fmt.Sprintf("Opcode(%d)", self)
	}
}

func (self Opcode) Flags() Flags {
	if self < _OpCount {
		return opinfo[self].flags
	} else {
		panic(fmt.Sprintf("ssa: invalid opcode %d", self))
	}
}

// ParseOpcode is the inverse of Opcode.String.
func ParseOpcode(name string) (Opcode, bool) {
	for op := OpConstant; op < _OpCount; op++ {
		if strings.EqualFold(opinfo[op].name, name) {
			return op, true
		}
	}
	return OpInvalid, false
}

type DataType uint8

const (
	NoType DataType = iota
	Bool
	Int32
	Int64
	Float32
	Float64
	Reference
	Void
)

var typenames = [...]string{
	NoType:    "none",
	Bool:      "b",
	Int32:     "i32",
	Int64:     "i64",
	Float32:   "f32",
	Float64:   "f64",
	Reference: "ref",
	Void:      "void",
}

func (self DataType) String() string {
	if int(self) < len(typenames) {
		return typenames[self]
	} else {
		return fmt.Sprintf("DataType(%d)", self)
	}
}

func ParseDataType(name string) (DataType, bool) {
	for i, v := range typenames {
		if v == name {
			return DataType(i), true
		}
	}
	return NoType, false
}

type CondCode uint8

const (
	CcEq CondCode = iota
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

var ccnames = [...]string{
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

func (self CondCode) String() string {
	if int(self) < len(ccnames) {
		return ccnames[self]
	} else {
		return fmt.Sprintf("CondCode(%d)", self)
	}
}

func ParseCondCode(name string) (CondCode, bool) {
	for i, v := range ccnames {
		if v == name {
			return CondCode(i), true
		}
	}
	return CcEq, false
}

// Inverse returns the condition that holds exactly when self does not.
func (self CondCode) Inverse() CondCode {
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
		panic("ssa: invalid condition code")
	}
}

// PhiInput binds a phi value to the predecessor edge it flows along.
type PhiInput struct {
	Pred  int
	Value *Inst
}

type Inst struct {
	Id     int
	Op     Opcode
	Type   DataType
	Inputs []*Inst
	Phi    []PhiInput
	Imm    int64
	Cc     CondCode
	TypeId uint32

	block   int
	markers _MarkerSet
}

// Block returns the id of the block that owns this instruction, or -1 if
// the instruction is detached.
func (self *Inst) Block() int {
	return self.block
}

func (self *Inst) Flags() Flags {
	return self.Op.Flags()
}

func (self *Inst) Is(f Flags) bool {
	return self.Op.Flags()&f != 0
}

func (self *Inst) IsPhi() bool {
	return self.Op == OpPhi
}

func (self *Inst) IsTerminator() bool {
	return self.Is(FlagTerminator)
}

// SaveState returns the state snapshot an instruction depends on. By
// convention it is always the last input.
func (self *Inst) SaveState() *Inst {
	if !self.Is(FlagRequireState) || len(self.Inputs) == 0 {
		return nil
	} else if ss := self.Inputs[len(self.Inputs)-1]; ss.Op != OpSaveState && ss.Op != OpSafePoint {
		return nil
	} else {
		return ss
	}
}

// SetSaveState rebinds the state snapshot of the instruction.
func (self *Inst) SetSaveState(ss *Inst) {
	if self.SaveState() == nil {
		panic("ssa: instruction does not take a save state: " + self.String())
	} else {
		self.Inputs[len(self.Inputs)-1] = ss
	}
}

func (self *Inst) SetMarker(m Marker) {
	self.markers.set(m)
}

func (self *Inst) ResetMarker(m Marker) {
	self.markers.reset(m)
}

func (self *Inst) IsMarked(m Marker) bool {
	return self.markers.isMarked(m)
}

func (self *Inst) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d.%s %s", self.Id, self.Type, self.Op)

	/* opcode specific attributes */
	switch self.Op {
	case OpConstant:
		fmt.Fprintf(&sb, " %#x", self.Imm)
	case OpParameter:
		fmt.Fprintf(&sb, " arg%d", self.Imm)
	case OpCompare, OpIf:
		fmt.Fprintf(&sb, " %s", self.Cc)
	case OpIfImm:
		fmt.Fprintf(&sb, " %s %#x", self.Cc, self.Imm)
	default:
		if self.TypeId != 0 {
			fmt.Fprintf(&sb, " #%d", self.TypeId)
		}
	}

	/* phi inputs are printed along with the edge they flow along */
	if self.Op == OpPhi {
		for _, p := range self.Phi {
			fmt.Fprintf(&sb, " v%d(bb%d)", p.Value.Id, p.Pred)
		}
	} else {
		for _, v := range self.Inputs {
			fmt.Fprintf(&sb, " v%d", v.Id)
		}
	}
	return sb.String()
}
