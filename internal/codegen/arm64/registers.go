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

// Register ids. General purpose and vector registers share the id space
// 0 ~ 31, the register class comes from the type.
const (
	IP0 = 16
	IP1 = 17
	FP  = 29
	LR  = 30
	ZR  = 31
	SP  = 32
)

var (
	XZR = X(ZR)
	WZR = W(ZR)
	XSP = X(SP)
)

func X(id uint8) codegen.Reg { return codegen.NewReg(id, codegen.Int64) }
func W(id uint8) codegen.Reg { return codegen.NewReg(id, codegen.Int32) }
func D(id uint8) codegen.Reg { return codegen.NewReg(id, codegen.Float64) }
func S(id uint8) codegen.Reg { return codegen.NewReg(id, codegen.Float32) }

// NewRegisterFile returns the AArch64 register file, ip0/ip1 and v30/v31 are
// the scratch registers.
func NewRegisterFile() *codegen.RegisterFile {
	return codegen.NewRegisterFile(ZR, SP, LR, []uint8{IP0, IP1}, []uint8{30, 31})
}

// Condition codes.
const (
	_CondEQ = 0b0000
	_CondNE = 0b0001
	_CondHS = 0b0010
	_CondLO = 0b0011
	_CondMI = 0b0100
	_CondVS = 0b0110
	_CondHI = 0b1000
	_CondLS = 0b1001
	_CondGE = 0b1010
	_CondLT = 0b1011
	_CondGT = 0b1100
	_CondLE = 0b1101
)

var _IntConds = [...]uint32{
	codegen.CcEq:    _CondEQ,
	codegen.CcNe:    _CondNE,
	codegen.CcLt:    _CondLT,
	codegen.CcLe:    _CondLE,
	codegen.CcGt:    _CondGT,
	codegen.CcGe:    _CondGE,
	codegen.CcB:     _CondLO,
	codegen.CcBe:    _CondLS,
	codegen.CcA:     _CondHI,
	codegen.CcAe:    _CondHS,
	codegen.CcTstEq: _CondEQ,
	codegen.CcTstNe: _CondNE,
}

// After FCMP an unordered result sets C and V. The ordered conditions are
// false for NaN operands, the unsigned ones read as "less/greater or
// unordered".
var _FloatConds = [...]uint32{
	codegen.CcEq:    _CondEQ,
	codegen.CcNe:    _CondNE,
	codegen.CcLt:    _CondMI,
	codegen.CcLe:    _CondLS,
	codegen.CcGt:    _CondGT,
	codegen.CcGe:    _CondGE,
	codegen.CcB:     _CondLT,
	codegen.CcBe:    _CondLE,
	codegen.CcA:     _CondHI,
	codegen.CcAe:    _CondHS,
	codegen.CcTstEq: _CondEQ,
	codegen.CcTstNe: _CondNE,
}

func intCond(cc codegen.Condition) uint32 {
	if int(cc) >= len(_IntConds) {
		panic("arm64: invalid condition: " + cc.String())
	} else {
		return _IntConds[cc]
	}
}

func floatCond(cc codegen.Condition) uint32 {
	if int(cc) >= len(_FloatConds) {
		panic("arm64: invalid condition: " + cc.String())
	} else {
		return _FloatConds[cc]
	}
}

func testCond(cc codegen.Condition) uint32 {
	switch cc {
	case codegen.CcEq, codegen.CcTstEq:
		return _CondEQ
	case codegen.CcNe, codegen.CcTstNe:
		return _CondNE
	default:
		panic("arm64: invalid test condition: " + cc.String())
	}
}

/** Operand Helpers **/

func enc(r codegen.Reg) uint32 {
	if r.Id == SP && r.IsScalar() {
		return 31
	} else if r.Id > 31 {
		panic(fmt.Sprintf("arm64: invalid register: %s", r))
	} else {
		return uint32(r.Id)
	}
}

func sf(r codegen.Reg) uint32 {
	if r.Size() == 64 {
		return 1
	} else {
		return 0
	}
}

// ftype is the FP type field, 0 for single and 1 for double precision.
func ftype(r codegen.Reg) uint32 {
	return sf(r)
}

// width is the width of the register view an operation works on, sub-word
// integers live in 32-bit registers.
func width(r codegen.Reg) uint32 {
	if r.Size() == 64 {
		return 64
	} else {
		return 32
	}
}

// sizeLog2 is log2 of the access size of r in bytes.
func sizeLog2(r codegen.Reg) uint32 {
	switch r.Size() {
	case 8:
		return 0
	case 16:
		return 1
	case 32:
		return 2
	case 64:
		return 3
	default:
		panic(fmt.Sprintf("arm64: invalid register: %s", r))
	}
}

func checkScalar(op string, regs ...codegen.Reg) {
	for _, r := range regs {
		if !r.IsScalar() {
			panic(fmt.Sprintf("arm64: %s: %s is not an integer register", op, r))
		}
	}
}

func checkFloat(op string, regs ...codegen.Reg) {
	for _, r := range regs {
		if !r.IsFloat() {
			panic(fmt.Sprintf("arm64: %s: %s is not a floating-point register", op, r))
		}
	}
}

func isInt(v int64, bits uint) bool {
	return v >= -(1<<(bits-1)) && v < 1<<(bits-1)
}
