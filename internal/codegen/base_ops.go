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

/* operations a target does not override fail at runtime */

func (self *Base) Add(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Add") }
func (self *Base) Sub(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Sub") }
func (self *Base) Mul(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Mul") }
func (self *Base) Div(_ Reg, _ bool, _ Reg, _ Reg)                       { self.unsupported("Div") }
func (self *Base) Mod(_ Reg, _ bool, _ Reg, _ Reg)                       { self.unsupported("Mod") }
func (self *Base) Min(_ Reg, _ bool, _ Reg, _ Reg)                       { self.unsupported("Min") }
func (self *Base) Max(_ Reg, _ bool, _ Reg, _ Reg)                       { self.unsupported("Max") }
func (self *Base) And(_ Reg, _ Reg, _ Reg)                               { self.unsupported("And") }
func (self *Base) Or(_ Reg, _ Reg, _ Reg)                                { self.unsupported("Or") }
func (self *Base) Xor(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Xor") }
func (self *Base) Shl(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Shl") }
func (self *Base) Shr(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Shr") }
func (self *Base) AShr(_ Reg, _ Reg, _ Reg)                              { self.unsupported("AShr") }
func (self *Base) Ror(_ Reg, _ Reg, _ Reg)                               { self.unsupported("Ror") }
func (self *Base) OrNot(_ Reg, _ Reg, _ Reg)                             { self.unsupported("OrNot") }
func (self *Base) AndNot(_ Reg, _ Reg, _ Reg)                            { self.unsupported("AndNot") }
func (self *Base) XorNot(_ Reg, _ Reg, _ Reg)                            { self.unsupported("XorNot") }
func (self *Base) AddImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("AddImm") }
func (self *Base) SubImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("SubImm") }
func (self *Base) MulImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("MulImm") }
func (self *Base) AndImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("AndImm") }
func (self *Base) OrImm(_ Reg, _ Reg, _ Imm)                             { self.unsupported("OrImm") }
func (self *Base) XorImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("XorImm") }
func (self *Base) ShlImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("ShlImm") }
func (self *Base) ShrImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("ShrImm") }
func (self *Base) AShrImm(_ Reg, _ Reg, _ Imm)                           { self.unsupported("AShrImm") }
func (self *Base) RorImm(_ Reg, _ Reg, _ Imm)                            { self.unsupported("RorImm") }
func (self *Base) AddShift(_ Reg, _ Reg, _ Shift)                        { self.unsupported("AddShift") }
func (self *Base) SubShift(_ Reg, _ Reg, _ Shift)                        { self.unsupported("SubShift") }
func (self *Base) AndShift(_ Reg, _ Reg, _ Shift)                        { self.unsupported("AndShift") }
func (self *Base) OrShift(_ Reg, _ Reg, _ Shift)                         { self.unsupported("OrShift") }
func (self *Base) XorShift(_ Reg, _ Reg, _ Shift)                        { self.unsupported("XorShift") }
func (self *Base) OrNotShift(_ Reg, _ Reg, _ Shift)                      { self.unsupported("OrNotShift") }
func (self *Base) AndNotShift(_ Reg, _ Reg, _ Shift)                     { self.unsupported("AndNotShift") }
func (self *Base) XorNotShift(_ Reg, _ Reg, _ Shift)                     { self.unsupported("XorNotShift") }
func (self *Base) Neg(_ Reg, _ Reg)                                      { self.unsupported("Neg") }
func (self *Base) Abs(_ Reg, _ Reg)                                      { self.unsupported("Abs") }
func (self *Base) Not(_ Reg, _ Reg)                                      { self.unsupported("Not") }
func (self *Base) Sqrt(_ Reg, _ Reg)                                     { self.unsupported("Sqrt") }
func (self *Base) BitCount(_ Reg, _ Reg)                                 { self.unsupported("BitCount") }
func (self *Base) Clz(_ Reg, _ Reg)                                      { self.unsupported("Clz") }
func (self *Base) Ctz(_ Reg, _ Reg)                                      { self.unsupported("Ctz") }
func (self *Base) Rbit(_ Reg, _ Reg)                                     { self.unsupported("Rbit") }
func (self *Base) ReverseBytes(_ Reg, _ Reg)                             { self.unsupported("ReverseBytes") }
func (self *Base) Mov(_ Reg, _ Reg)                                      { self.unsupported("Mov") }
func (self *Base) MovImm(_ Reg, _ Imm)                                   { self.unsupported("MovImm") }
func (self *Base) Cast(_ Reg, _ bool, _ Reg, _ bool)                     { self.unsupported("Cast") }
func (self *Base) CastToBool(_ Reg, _ Reg)                               { self.unsupported("CastToBool") }
func (self *Base) FpToBits(_ Reg, _ Reg)                                 { self.unsupported("FpToBits") }
func (self *Base) MoveBitsRaw(_ Reg, _ Reg)                              { self.unsupported("MoveBitsRaw") }
func (self *Base) Compare(_ Reg, _ Reg, _ Reg, _ Condition)              { self.unsupported("Compare") }
func (self *Base) CompareTest(_ Reg, _ Reg, _ Reg, _ Condition)          { self.unsupported("CompareTest") }
func (self *Base) Select(_ Reg, _ Reg, _ Reg, _ Reg, _ Reg, _ Condition) { self.unsupported("Select") }
func (self *Base) SelectImm(_ Reg, _ Reg, _ Reg, _ Reg, _ Imm, _ Condition) {
	self.unsupported("SelectImm")
}
func (self *Base) SelectTest(_ Reg, _ Reg, _ Reg, _ Reg, _ Reg, _ Condition) {
	self.unsupported("SelectTest")
}
func (self *Base) Ldr(_ Reg, _ bool, _ MemRef)                      { self.unsupported("Ldr") }
func (self *Base) Str(_ Reg, _ MemRef)                              { self.unsupported("Str") }
func (self *Base) LdrAcquire(_ Reg, _ bool, _ MemRef)               { self.unsupported("LdrAcquire") }
func (self *Base) StrRelease(_ Reg, _ MemRef)                       { self.unsupported("StrRelease") }
func (self *Base) LdrExclusive(_ Reg, _ Reg, _ bool)                { self.unsupported("LdrExclusive") }
func (self *Base) StrExclusive(_ Reg, _ Reg, _ Reg, _ bool)         { self.unsupported("StrExclusive") }
func (self *Base) MemCopy(_ MemRef, _ MemRef, _ int)                { self.unsupported("MemCopy") }
func (self *Base) MemCopyz(_ MemRef, _ MemRef, _ int)               { self.unsupported("MemCopyz") }
func (self *Base) Sti(_ Imm, _ MemRef)                              { self.unsupported("Sti") }
func (self *Base) Ldp(_ Reg, _ Reg, _ bool, _ MemRef)               { self.unsupported("Ldp") }
func (self *Base) Stp(_ Reg, _ Reg, _ MemRef)                       { self.unsupported("Stp") }
func (self *Base) CompareAndSwap(_ Reg, _ Reg, _ Reg, _ Reg)        { self.unsupported("CompareAndSwap") }
func (self *Base) UnsafeGetAndSet(_ Reg, _ Reg, _ Reg)              { self.unsupported("UnsafeGetAndSet") }
func (self *Base) UnsafeGetAndAdd(_ Reg, _ Reg, _ Reg, _ Reg)       { self.unsupported("UnsafeGetAndAdd") }
func (self *Base) MemoryBarrier(_ MemoryOrder)                      { self.unsupported("MemoryBarrier") }
func (self *Base) Jump(_ LabelId)                                   { self.unsupported("Jump") }
func (self *Base) JumpCc(_ LabelId, _ Reg, _ Reg, _ Condition)      { self.unsupported("JumpCc") }
func (self *Base) JumpImm(_ LabelId, _ Reg, _ Imm, _ Condition)     { self.unsupported("JumpImm") }
func (self *Base) JumpTest(_ LabelId, _ Reg, _ Reg, _ Condition)    { self.unsupported("JumpTest") }
func (self *Base) JumpTestImm(_ LabelId, _ Reg, _ Imm, _ Condition) { self.unsupported("JumpTestImm") }
func (self *Base) JumpBit(_ LabelId, _ Reg, _ uint8, _ bool)        { self.unsupported("JumpBit") }
func (self *Base) JumpReg(_ Reg)                                    { self.unsupported("JumpReg") }
func (self *Base) Call(_ LabelId)                                   { self.unsupported("Call") }
func (self *Base) CallReg(_ Reg)                                    { self.unsupported("CallReg") }
func (self *Base) CallMem(_ MemRef)                                 { self.unsupported("CallMem") }
func (self *Base) MakeCall(_ *RelocationInfo)                       { self.unsupported("MakeCall") }
func (self *Base) Return()                                          { self.unsupported("Return") }
func (self *Base) Abort()                                           { self.unsupported("Abort") }
func (self *Base) GetCurrentPc(_ Reg)                               { self.unsupported("GetCurrentPc") }
func (self *Base) LoadPcRelative(_ Reg, _ int64, _ Reg)             { self.unsupported("LoadPcRelative") }
func (self *Base) StackOverflowCheck(_ int64)                       { self.unsupported("StackOverflowCheck") }

func (self *Base) CanEncodeImmAddSubCmp(_ int64, _ int, _ bool) bool { return false }
func (self *Base) CanEncodeImmLogical(_ uint64, _ int) bool          { return false }
func (self *Base) CanEncodeScale(_ uint64, _ int) bool               { return false }
func (self *Base) CanEncodeShift(_ int) bool                         { return false }
func (self *Base) CanEncodeBitCount() bool                           { return false }
func (self *Base) CanEncodeAbs() bool                                { return false }
func (self *Base) CanEncodeImmMulti(_ int64, _ int) bool             { return false }
