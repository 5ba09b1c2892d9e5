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

// Register ids follow the hardware numbering, RAX is 0 and R15 is 15. The
// XMM registers share the id space, the class comes from the type.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R10 = 10
	R11 = 11
	NA  = 0xff
)

func Q(id uint8) codegen.Reg  { return codegen.NewReg(id, codegen.Int64) }
func L(id uint8) codegen.Reg  { return codegen.NewReg(id, codegen.Int32) }
func SD(id uint8) codegen.Reg { return codegen.NewReg(id, codegen.Float64) }
func SS(id uint8) codegen.Reg { return codegen.NewReg(id, codegen.Float32) }

// NewRegisterFile returns the x86-64 register file. There is no zero or link
// register, R10/R11 and XMM14/XMM15 are the scratch registers.
func NewRegisterFile() *codegen.RegisterFile {
	return codegen.NewRegisterFile(NA, RSP, NA, []uint8{R11, R10}, []uint8{15, 14})
}

/** Operand Helpers **/

func checkId(r codegen.Reg) {
	if r.Id > 15 {
		panic(fmt.Sprintf("amd64: invalid register: %s", r))
	}
}

// r64 and friends view a register id through the iasm register types,
// sub-word integers are operated on in their 32-bit register.
func r64(r codegen.Reg) x86_64.Register64 {
	checkId(r)
	return x86_64.Register64(r.Id)
}

func r32(r codegen.Reg) x86_64.Register32 {
	checkId(r)
	return x86_64.Register32(r.Id)
}

func r16(r codegen.Reg) x86_64.Register16 {
	checkId(r)
	return x86_64.Register16(r.Id)
}

func r8(r codegen.Reg) x86_64.Register8 {
	checkId(r)
	return x86_64.Register8(r.Id)
}

func xmm(r codegen.Reg) x86_64.XMMRegister {
	checkId(r)
	return x86_64.XMMRegister(r.Id)
}

// gpr returns the register with the width an integer operation works on.
func gpr(r codegen.Reg) x86_64.Register {
	if r.Size() == 64 {
		return r64(r)
	} else {
		return r32(r)
	}
}

func is64(r codegen.Reg) bool {
	return r.Size() == 64
}

// width is the width of the register view an operation works on.
func width(r codegen.Reg) int {
	if r.Size() == 64 {
		return 64
	} else {
		return 32
	}
}

func checkScalar(op string, regs ...codegen.Reg) {
	for _, r := range regs {
		if !r.IsScalar() {
			panic(fmt.Sprintf("amd64: %s: %s is not an integer register", op, r))
		}
	}
}

func checkFloat(op string, regs ...codegen.Reg) {
	for _, r := range regs {
		if !r.IsFloat() {
			panic(fmt.Sprintf("amd64: %s: %s is not a floating-point register", op, r))
		}
	}
}

func isInt32(v int64) bool {
	return v >= -1<<31 && v < 1<<31
}

/** Condition Codes **/

type _Cond uint8

const (
	_CondE _Cond = iota
	_CondNE
	_CondL
	_CondLE
	_CondG
	_CondGE
	_CondB
	_CondBE
	_CondA
	_CondAE
	_CondS
	_CondNS
	_CondP
	_CondNP
	_CondC
	_CondNC
)

type (
	_Jcc   func(p *x86_64.Program, v0 interface{}) *x86_64.Instruction
	_Setcc func(p *x86_64.Program, v0 interface{}) *x86_64.Instruction
	_Cmov  func(p *x86_64.Program, v0 interface{}, v1 interface{}) *x86_64.Instruction
)

var _JccTab = [...]_Jcc{
	_CondE:  (*x86_64.Program).JE,
	_CondNE: (*x86_64.Program).JNE,
	_CondL:  (*x86_64.Program).JL,
	_CondLE: (*x86_64.Program).JLE,
	_CondG:  (*x86_64.Program).JG,
	_CondGE: (*x86_64.Program).JGE,
	_CondB:  (*x86_64.Program).JB,
	_CondBE: (*x86_64.Program).JBE,
	_CondA:  (*x86_64.Program).JA,
	_CondAE: (*x86_64.Program).JAE,
	_CondS:  (*x86_64.Program).JS,
	_CondNS: (*x86_64.Program).JNS,
	_CondP:  (*x86_64.Program).JP,
	_CondNP: (*x86_64.Program).JNP,
	_CondC:  (*x86_64.Program).JC,
	_CondNC: (*x86_64.Program).JNC,
}

var _SetccTab = [...]_Setcc{
	_CondE:  (*x86_64.Program).SETE,
	_CondNE: (*x86_64.Program).SETNE,
	_CondL:  (*x86_64.Program).SETL,
	_CondLE: (*x86_64.Program).SETLE,
	_CondG:  (*x86_64.Program).SETG,
	_CondGE: (*x86_64.Program).SETGE,
	_CondB:  (*x86_64.Program).SETB,
	_CondBE: (*x86_64.Program).SETBE,
	_CondA:  (*x86_64.Program).SETA,
	_CondAE: (*x86_64.Program).SETAE,
	_CondS:  (*x86_64.Program).SETS,
	_CondNS: (*x86_64.Program).SETNS,
	_CondP:  (*x86_64.Program).SETP,
	_CondNP: (*x86_64.Program).SETNP,
	_CondC:  (*x86_64.Program).SETC,
	_CondNC: (*x86_64.Program).SETNC,
}

var _CmovTab = [...]_Cmov{
	_CondE:  (*x86_64.Program).CMOVE,
	_CondNE: (*x86_64.Program).CMOVNE,
	_CondL:  (*x86_64.Program).CMOVL,
	_CondLE: (*x86_64.Program).CMOVLE,
	_CondG:  (*x86_64.Program).CMOVG,
	_CondGE: (*x86_64.Program).CMOVGE,
	_CondB:  (*x86_64.Program).CMOVB,
	_CondBE: (*x86_64.Program).CMOVBE,
	_CondA:  (*x86_64.Program).CMOVA,
	_CondAE: (*x86_64.Program).CMOVAE,
	_CondS:  (*x86_64.Program).CMOVS,
	_CondNS: (*x86_64.Program).CMOVNS,
	_CondP:  (*x86_64.Program).CMOVP,
	_CondNP: (*x86_64.Program).CMOVNP,
	_CondC:  (*x86_64.Program).CMOVC,
	_CondNC: (*x86_64.Program).CMOVNC,
}

var _Inverse = [...]_Cond{
	_CondE:  _CondNE,
	_CondNE: _CondE,
	_CondL:  _CondGE,
	_CondLE: _CondG,
	_CondG:  _CondLE,
	_CondGE: _CondL,
	_CondB:  _CondAE,
	_CondBE: _CondA,
	_CondA:  _CondBE,
	_CondAE: _CondB,
	_CondS:  _CondNS,
	_CondNS: _CondS,
	_CondP:  _CondNP,
	_CondNP: _CondP,
	_CondC:  _CondNC,
	_CondNC: _CondC,
}

func (self _Cond) Inverse() _Cond {
	return _Inverse[self]
}

var _IntConds = [...]_Cond{
	codegen.CcEq:    _CondE,
	codegen.CcNe:    _CondNE,
	codegen.CcLt:    _CondL,
	codegen.CcLe:    _CondLE,
	codegen.CcGt:    _CondG,
	codegen.CcGe:    _CondGE,
	codegen.CcB:     _CondB,
	codegen.CcBe:    _CondBE,
	codegen.CcA:     _CondA,
	codegen.CcAe:    _CondAE,
	codegen.CcTstEq: _CondE,
	codegen.CcTstNe: _CondNE,
}

func intCond(cc codegen.Condition) _Cond {
	if int(cc) >= len(_IntConds) {
		panic("amd64: invalid condition: " + cc.String())
	} else {
		return _IntConds[cc]
	}
}

func testCond(cc codegen.Condition) _Cond {
	switch cc {
	case codegen.CcEq, codegen.CcTstEq:
		return _CondE
	case codegen.CcNe, codegen.CcTstNe:
		return _CondNE
	default:
		panic("amd64: invalid test condition: " + cc.String())
	}
}
