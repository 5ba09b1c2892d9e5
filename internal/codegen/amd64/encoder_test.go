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
	`bytes`
	`math`
	`testing`

	`github.com/brianvoe/gofakeit/v6`
	`github.com/cloudwego/pandajit/internal/codegen`
	`github.com/cloudwego/pandajit/internal/opts`
	`github.com/davecgh/go-spew/spew`
	`github.com/stretchr/testify/require`
	`golang.org/x/arch/x86/x86asm`
)

func newTestEncoder(ext bool) *Encoder {
	return NewEncoder(&opts.Options{UsePOPCNT: ext, UseLZCNT: ext})
}

type _Listing struct {
	pcs  []int
	ins  []x86asm.Inst
	code []byte
}

// assemble finalizes the encoder and decodes the code back.
func assemble(t *testing.T, e *Encoder) *_Listing {
	require.NoError(t, e.Finalize())
	ret := &_Listing{code: e.Code()}

	/* decode every instruction */
	for pc := 0; pc < len(ret.code); {
		ins, err := x86asm.Decode(ret.code[pc:], 64)
		require.NoError(t, err, "at %#x:\n%s", pc, spew.Sdump(ret.code))
		ret.pcs = append(ret.pcs, pc)
		ret.ins = append(ret.ins, ins)
		pc += ins.Len
	}
	return ret
}

func (self *_Listing) ops() []x86asm.Op {
	ret := make([]x86asm.Op, len(self.ins))
	for i, ins := range self.ins {
		ret[i] = ins.Op
	}
	return ret
}

// target returns the destination of the relative branch at i.
func (self *_Listing) target(i int) int {
	rel, ok := self.ins[i].Args[0].(x86asm.Rel)
	if !ok {
		panic("not a relative branch: " + self.ins[i].String())
	}
	return self.pcs[i] + self.ins[i].Len + int(rel)
}

func locked(ins x86asm.Inst) bool {
	for _, p := range ins.Prefix {
		if p&0xff == x86asm.PrefixLOCK {
			return true
		}
	}
	return false
}

func args(v ...x86asm.Arg) x86asm.Args {
	var ret x86asm.Args
	copy(ret[:], v)
	return ret
}

func imm(v int64) codegen.Imm {
	return codegen.NewImm(v)
}

func TestEncoder_MovImm(t *testing.T) {
	e := newTestEncoder(true)
	e.MovImm(Q(RAX), imm(0))
	e.MovImm(Q(RCX), imm(5))
	e.MovImm(Q(RDX), imm(0x123456789a))
	e.MovImm(Q(RBX), imm(-2))
	e.Mov(Q(RSI), Q(RDX))
	e.Mov(L(RDI), Q(RSI))
	e.Mov(L(RDI), Q(RDI))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{x86asm.XOR, x86asm.MOV, x86asm.MOV, x86asm.MOV, x86asm.MOV, x86asm.MOV}, ls.ops())
	require.Equal(t, args(x86asm.EAX, x86asm.EAX), ls.ins[0].Args)
	require.Equal(t, args(x86asm.ECX, x86asm.Imm(5)), ls.ins[1].Args)
	require.Equal(t, args(x86asm.RDX, x86asm.Imm(0x123456789a)), ls.ins[2].Args)
	require.Equal(t, args(x86asm.RBX, x86asm.Imm(-2)), ls.ins[3].Args)
	require.Equal(t, args(x86asm.RSI, x86asm.RDX), ls.ins[4].Args)
	require.Equal(t, args(x86asm.EDI, x86asm.ESI), ls.ins[5].Args)
}

func TestEncoder_MovImmRandom(t *testing.T) {
	f := gofakeit.New(0)
	for i := 0; i < 200; i++ {
		v := f.Int64() >> f.Number(0, 63)
		if v == 0 {
			continue
		}

		/* movl zero extends the positive 32-bit values */
		e := newTestEncoder(true)
		e.MovImm(Q(RDX), imm(v))
		ls := assemble(t, e)
		require.Len(t, ls.ins, 1)
		require.Equal(t, x86asm.MOV, ls.ins[0].Op)
		if v > 0 && v <= math.MaxUint32 {
			require.Equal(t, args(x86asm.EDX, x86asm.Imm(int32(v))), ls.ins[0].Args, "%#x", v)
		} else {
			require.Equal(t, args(x86asm.RDX, x86asm.Imm(v)), ls.ins[0].Args, "%#x", v)
		}
	}
}

func TestEncoder_FloatImm(t *testing.T) {
	e := newTestEncoder(true)
	e.MovImm(SD(0), codegen.NewFloat64Imm(0))
	e.MovImm(SD(1), codegen.NewFloat64Imm(1.0))
	e.MovImm(SS(2), codegen.NewFloat32Imm(2.5))
	e.MovImm(SS(3), imm(3))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.XORPS,
		x86asm.MOV, x86asm.MOVQ,
		x86asm.MOV, x86asm.MOVD,
		x86asm.MOV, x86asm.MOVD,
	}, ls.ops())
	require.Equal(t, args(x86asm.R11, x86asm.Imm(int64(math.Float64bits(1.0)))), ls.ins[1].Args)
	require.Equal(t, args(x86asm.X1, x86asm.R11), ls.ins[2].Args)
	require.Equal(t, args(x86asm.R11L, x86asm.Imm(int64(math.Float32bits(2.5)))), ls.ins[3].Args)
	require.Equal(t, args(x86asm.R11L, x86asm.Imm(int64(math.Float32bits(3)))), ls.ins[5].Args)
}

func TestEncoder_BinaryAliasing(t *testing.T) {
	e := newTestEncoder(true)
	e.Add(Q(RAX), Q(RAX), Q(RCX))
	e.Add(Q(RAX), Q(RCX), Q(RDX))
	e.Add(Q(RAX), Q(RCX), Q(RAX))
	e.Sub(Q(RAX), Q(RCX), Q(RAX))
	e.Xor(L(RBX), L(RBX), L(RSI))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.ADD,
		x86asm.MOV, x86asm.ADD,
		x86asm.ADD,
		x86asm.MOV, x86asm.MOV, x86asm.SUB,
		x86asm.XOR,
	}, ls.ops())
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[0].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[1].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RDX), ls.ins[2].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[3].Args)
	require.Equal(t, args(x86asm.R11, x86asm.RAX), ls.ins[4].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[5].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.R11), ls.ins[6].Args)
	require.Equal(t, args(x86asm.EBX, x86asm.ESI), ls.ins[7].Args)
}

func TestEncoder_Divide(t *testing.T) {
	e := newTestEncoder(true)
	e.Div(Q(RBX), true, Q(RCX), Q(RDX))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.MOV,
		x86asm.PUSH, x86asm.PUSH,
		x86asm.MOV, x86asm.CQO, x86asm.IDIV,
		x86asm.MOV,
		x86asm.POP, x86asm.POP,
	}, ls.ops())
	require.Equal(t, args(x86asm.R11, x86asm.RDX), ls.ins[0].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[3].Args)
	require.Equal(t, args(x86asm.R11), ls.ins[5].Args)
	require.Equal(t, args(x86asm.RBX, x86asm.RAX), ls.ins[6].Args)
	require.Equal(t, args(x86asm.RDX), ls.ins[7].Args)
	require.Equal(t, args(x86asm.RAX), ls.ins[8].Args)

	/* the remainder into rdx needs no save of rdx */
	e = newTestEncoder(true)
	e.Mod(L(RDX), false, L(RCX), L(RSI))
	ls = assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.MOV,
		x86asm.PUSH,
		x86asm.MOV, x86asm.XOR, x86asm.DIV,
		x86asm.POP,
	}, ls.ops())
}

func TestEncoder_Unary(t *testing.T) {
	e := newTestEncoder(true)
	e.BitCount(Q(RAX), Q(RCX))
	e.Clz(L(RAX), L(RCX))
	e.Ctz(Q(RAX), Q(RCX))
	e.ReverseBytes(Q(RAX), Q(RCX))
	e.Sqrt(SD(0), SD(1))
	ls := assemble(t, e)
	require.Equal(t, x86asm.POPCNT, ls.ins[0].Op)
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[0].Args)
	require.Equal(t, x86asm.LZCNT, ls.ins[1].Op)
	require.Equal(t, args(x86asm.EAX, x86asm.ECX), ls.ins[1].Args)
	require.Contains(t, ls.ops(), x86asm.BSF)
	require.Contains(t, ls.ops(), x86asm.BSWAP)
	require.Contains(t, ls.ops(), x86asm.SQRTSD)

	/* the fallbacks without the extensions */
	e = newTestEncoder(false)
	e.Clz(Q(RAX), Q(RCX))
	ls = assemble(t, e)
	require.Contains(t, ls.ops(), x86asm.BSR)
	require.Contains(t, ls.ops(), x86asm.CMOVE)
	require.NotContains(t, ls.ops(), x86asm.LZCNT)
}

func TestEncoder_Unsupported(t *testing.T) {
	for _, fn := range []func(e *Encoder){
		func(e *Encoder) { e.BitCount(Q(RAX), Q(RCX)) },
		func(e *Encoder) { e.Rbit(Q(RAX), Q(RCX)) },
		func(e *Encoder) { e.Min(SD(0), true, SD(1), SD(2)) },
		func(e *Encoder) { e.Mod(SD(0), true, SD(1), SD(2)) },
		func(e *Encoder) { e.LdrExclusive(Q(RAX), Q(RCX), true) },
	} {
		e := newTestEncoder(false)
		fn(e)
		e.Return()
		require.True(t, e.Failed())
		require.Error(t, e.Finalize())
		require.Empty(t, e.Code())
	}
}

func TestEncoder_Casts(t *testing.T) {
	e := newTestEncoder(true)
	e.Cast(Q(RAX), true, L(RCX), true)
	e.Cast(Q(RAX), false, L(RCX), false)
	e.Cast(codegen.NewReg(RAX, codegen.Int8), true, L(RCX), true)
	e.Cast(SD(0), true, Q(RCX), true)
	e.Cast(SS(0), true, SD(1), true)
	e.Cast(L(RAX), true, SD(1), true)
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.MOVSXD,
		x86asm.MOV,
		x86asm.MOVSX,
		x86asm.CVTSI2SD,
		x86asm.CVTSD2SS,
		x86asm.CVTTSD2SI,
	}, ls.ops())
	require.Equal(t, args(x86asm.RAX, x86asm.ECX), ls.ins[0].Args)
	require.Equal(t, args(x86asm.EAX, x86asm.ECX), ls.ins[1].Args)
	require.Equal(t, args(x86asm.X0, x86asm.RCX), ls.ins[3].Args)
	require.Equal(t, args(x86asm.EAX, x86asm.X1), ls.ins[5].Args)
}

func TestEncoder_UnsignedCasts(t *testing.T) {
	e := newTestEncoder(true)
	e.Cast(SD(0), false, Q(RCX), false)
	ls := assemble(t, e)
	require.Equal(t, x86asm.TEST, ls.ins[0].Op)
	require.Equal(t, x86asm.JS, ls.ins[1].Op)
	require.Contains(t, ls.ops(), x86asm.SHR)
	require.Contains(t, ls.ops(), x86asm.ADDSD)

	/* the slow path is the tail */
	require.Equal(t, ls.pcs[4], ls.target(1))
	require.Equal(t, len(ls.code), ls.target(3))

	/* float to uint64 */
	e = newTestEncoder(true)
	e.Cast(Q(RAX), false, SD(1), false)
	ls = assemble(t, e)
	require.Contains(t, ls.ops(), x86asm.UCOMISD)
	require.Contains(t, ls.ops(), x86asm.JAE)
	require.Contains(t, ls.ops(), x86asm.SUBSD)
	require.Equal(t, x86asm.BTC, ls.ins[len(ls.ins)-1].Op)
}

func TestEncoder_FpToBits(t *testing.T) {
	e := newTestEncoder(true)
	e.FpToBits(Q(RAX), SD(1))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.MOVQ, x86asm.UCOMISD, x86asm.CMOVP}, ls.ops())
	require.Equal(t, args(x86asm.R11, x86asm.Imm(0x7ff8000000000000)), ls.ins[0].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.X1), ls.ins[1].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.R11), ls.ins[3].Args)
}

func TestEncoder_CompareAndSelect(t *testing.T) {
	e := newTestEncoder(true)
	e.Compare(Q(RAX), Q(RCX), Q(RDX), codegen.CcLt)
	e.Select(Q(RAX), Q(RCX), Q(RDX), Q(RBX), Q(RSI), codegen.CcB)
	e.Select(Q(RCX), Q(RCX), Q(RDX), Q(RBX), Q(RSI), codegen.CcGe)
	e.SelectImm(Q(RAX), Q(RCX), Q(RDX), Q(RBX), imm(1<<40), codegen.CcEq)
	e.CastToBool(Q(RAX), Q(RCX))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.CMP, x86asm.SETL, x86asm.MOVZX,
		x86asm.CMP, x86asm.MOV, x86asm.CMOVB,
		x86asm.CMP, x86asm.CMOVL,
		x86asm.MOV, x86asm.CMP, x86asm.MOV, x86asm.CMOVE,
		x86asm.CMP, x86asm.SETNE, x86asm.MOVZX,
	}, ls.ops())
	require.Equal(t, args(x86asm.RCX, x86asm.RDX), ls.ins[0].Args)
	require.Equal(t, args(x86asm.AL), ls.ins[1].Args)
	require.Equal(t, args(x86asm.EAX, x86asm.AL), ls.ins[2].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RDX), ls.ins[4].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.RCX), ls.ins[5].Args)
	require.Equal(t, args(x86asm.RCX, x86asm.RDX), ls.ins[7].Args)
}

func TestEncoder_FloatCompare(t *testing.T) {
	e := newTestEncoder(true)
	e.Compare(Q(RAX), SD(1), SD(2), codegen.CcEq)
	e.Compare(Q(RAX), SD(1), SD(2), codegen.CcLt)
	e.Compare(Q(RAX), SS(1), SS(2), codegen.CcBe)
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.UCOMISD, x86asm.SETE, x86asm.SETNP, x86asm.TEST, x86asm.SETNE, x86asm.MOVZX,
		x86asm.UCOMISD, x86asm.SETA, x86asm.MOVZX,
		x86asm.UCOMISS, x86asm.SETBE, x86asm.MOVZX,
	}, ls.ops())
	require.Equal(t, args(x86asm.X1, x86asm.X2), ls.ins[0].Args)
	require.Equal(t, args(x86asm.X2, x86asm.X1), ls.ins[6].Args)
	require.Equal(t, args(x86asm.X1, x86asm.X2), ls.ins[9].Args)

	/* there is no cmov for xmm registers */
	e = newTestEncoder(true)
	e.Select(SD(0), SD(1), SD(2), Q(RAX), Q(RCX), codegen.CcGt)
	ls = assemble(t, e)
	require.Equal(t, []x86asm.Op{x86asm.CMP, x86asm.JG, x86asm.MOVAPD, x86asm.JMP, x86asm.MOVAPD}, ls.ops())
	require.Equal(t, ls.pcs[4], ls.target(1))
	require.Equal(t, len(ls.code), ls.target(3))
}

func TestEncoder_Memory(t *testing.T) {
	e := newTestEncoder(true)
	e.Ldr(Q(RAX), false, codegen.MemIndex(Q(RCX), Q(RDX), 3, 16))
	e.Ldr(codegen.NewReg(RAX, codegen.Int8), true, codegen.Mem(Q(RCX), 0))
	e.Str(SD(3), codegen.Mem(Q(RCX), -8))
	e.Sti(codegen.NewImmOf(7, codegen.Int32), codegen.Mem(Q(RSP), 8))
	e.Ldr(Q(RAX), false, codegen.Mem(Q(RCX), 1<<40))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.MOV,
		x86asm.MOVSX,
		x86asm.MOVSD_XMM,
		x86asm.MOV,
		x86asm.MOV, x86asm.ADD, x86asm.MOV,
	}, ls.ops())
	require.Equal(t, args(x86asm.RAX, x86asm.Mem{Base: x86asm.RCX, Scale: 8, Index: x86asm.RDX, Disp: 16}), ls.ins[0].Args)
	require.Equal(t, args(x86asm.EAX, x86asm.Mem{Base: x86asm.RCX}), ls.ins[1].Args)
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RCX, Disp: -8}, x86asm.X3), ls.ins[2].Args)
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RSP, Scale: 1, Disp: 8}, x86asm.Imm(7)), ls.ins[3].Args)
	require.Equal(t, args(x86asm.R11, x86asm.Imm(1<<40)), ls.ins[4].Args)
	require.Equal(t, args(x86asm.RAX, x86asm.Mem{Base: x86asm.R11}), ls.ins[6].Args)

	/* rsp is not an index */
	require.Panics(t, func() { e := newTestEncoder(true); e.Ldr(Q(RAX), false, codegen.MemIndex(Q(RCX), Q(RSP), 0, 0)) })
}

func TestEncoder_Pairs(t *testing.T) {
	e := newTestEncoder(true)
	e.Ldp(Q(RCX), Q(RAX), false, codegen.Mem(Q(RCX), 0))
	e.Stp(L(RAX), L(RDX), codegen.Mem(Q(RSI), 4))
	ls := assemble(t, e)
	require.Equal(t, args(x86asm.RAX, x86asm.Mem{Base: x86asm.RCX, Disp: 8}), ls.ins[0].Args)
	require.Equal(t, args(x86asm.RCX, x86asm.Mem{Base: x86asm.RCX}), ls.ins[1].Args)
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RSI, Disp: 4}, x86asm.EAX), ls.ins[2].Args)
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RSI, Disp: 8}, x86asm.EDX), ls.ins[3].Args)
	require.Panics(t, func() { newTestEncoder(true).Ldp(Q(RAX), Q(RAX), false, codegen.Mem(Q(RCX), 0)) })
}

func TestEncoder_Atomics(t *testing.T) {
	e := newTestEncoder(true)
	e.CompareAndSwap(Q(RBX), Q(RCX), Q(RDX), Q(RSI))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.PUSH, x86asm.MOV, x86asm.CMPXCHG, x86asm.SETE, x86asm.MOVZX, x86asm.POP,
	}, ls.ops())
	require.Equal(t, args(x86asm.RAX, x86asm.RDX), ls.ins[1].Args)
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RCX}, x86asm.RSI), ls.ins[2].Args)
	require.True(t, locked(ls.ins[2]))

	/* the address is moved out of rax */
	e = newTestEncoder(true)
	e.CompareAndSwap(Q(RAX), Q(RAX), Q(RDX), Q(RSI))
	ls = assemble(t, e)
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.MOV, x86asm.CMPXCHG, x86asm.SETE, x86asm.MOVZX}, ls.ops())
	require.Equal(t, args(x86asm.Mem{Base: x86asm.R11}, x86asm.RSI), ls.ins[2].Args)

	/* exchange and add */
	e = newTestEncoder(true)
	e.UnsafeGetAndSet(Q(RAX), Q(RCX), Q(RDX))
	e.UnsafeGetAndAdd(L(RAX), Q(RCX), L(RDX), codegen.InvalidReg)
	e.MemoryBarrier(codegen.Full)
	ls = assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.MOV, x86asm.XCHG, x86asm.MOV,
		x86asm.MOV, x86asm.XADD, x86asm.MOV,
		x86asm.MFENCE,
	}, ls.ops())
	require.True(t, locked(ls.ins[4]))
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RCX}, x86asm.R11L), ls.ins[4].Args)
	require.Equal(t, byte(0xf0), ls.code[ls.pcs[4]])
	require.False(t, locked(ls.ins[5]))
}

func TestEncoder_LockDoesNotLeak(t *testing.T) {
	atomics := []func(e *Encoder){
		func(e *Encoder) { e.CompareAndSwap(Q(RBX), Q(RCX), Q(RDX), Q(RSI)) },
		func(e *Encoder) {
			e.CompareAndSwap(L(RBX), Q(RCX), codegen.NewReg(RDX, codegen.Int16), codegen.NewReg(RSI, codegen.Int16))
		},
		func(e *Encoder) { e.UnsafeGetAndSet(Q(RAX), Q(RCX), Q(RDX)) },
		func(e *Encoder) { e.UnsafeGetAndAdd(Q(RAX), Q(RCX), Q(RDX), codegen.InvalidReg) },
		func(e *Encoder) {
			e.UnsafeGetAndAdd(L(RAX), Q(RCX), codegen.NewReg(RDX, codegen.Int8), codegen.InvalidReg)
		},
	}

	/* the instructions after the atomic in the same program */
	for _, fn := range atomics {
		e := newTestEncoder(true)
		fn(e)
		e.Ldr(Q(RAX), false, codegen.Mem(Q(RCX), 0))
		e.Return()
		ls := assemble(t, e)
		n := 0
		for _, ins := range ls.ins {
			if locked(ins) {
				n++
			}
		}
		require.LessOrEqual(t, n, 1, spew.Sdump(ls.code))
		require.False(t, locked(ls.ins[len(ls.ins)-2]))
		require.Equal(t, byte(0xc3), ls.code[len(ls.code)-1])
	}

	/* and in programs created afterwards */
	r := codegen.RelocationInfo{}
	e := newTestEncoder(true)
	e.MakeCall(&r)
	e.Return()
	require.NoError(t, e.Finalize())
	require.Equal(t, []byte{0xe8, 0x00, 0x00, 0x00, 0x00, 0xc3}, e.Code())
	e.Free()
}

func TestEncoder_Jumps(t *testing.T) {
	e := newTestEncoder(true)
	l0 := e.CreateLabel()
	l1 := e.CreateLabel()
	e.BindLabel(l0)
	e.JumpImm(l1, Q(RAX), imm(0), codegen.CcEq)
	e.JumpBit(l1, Q(RCX), 40, true)
	e.JumpTestImm(l0, L(RDX), imm(0x10), codegen.CcTstNe)
	e.MovImm(Q(RAX), imm(1))
	e.BindLabel(l1)
	e.Return()
	require.True(t, e.IsLabelBound(l0))
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.TEST, x86asm.JE,
		x86asm.BT, x86asm.JB,
		x86asm.TEST, x86asm.JNE,
		x86asm.MOV,
		x86asm.RET,
	}, ls.ops())
	require.Equal(t, ls.pcs[7], ls.target(1))
	require.Equal(t, ls.pcs[7], ls.target(3))
	require.Equal(t, 0, ls.target(5))
	require.Equal(t, args(x86asm.RCX, x86asm.Imm(40)), ls.ins[2].Args)
}

func TestEncoder_Calls(t *testing.T) {
	e := newTestEncoder(true)
	fn := e.CreateLabel()
	e.Call(fn)
	e.CallReg(Q(RAX))
	e.CallMem(codegen.Mem(Q(RCX), 8))
	e.Abort()
	e.BindLabel(fn)
	e.Return()
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{x86asm.CALL, x86asm.CALL, x86asm.CALL, x86asm.UD2, x86asm.RET}, ls.ops())
	require.Equal(t, ls.pcs[4], ls.target(0))
	require.Equal(t, args(x86asm.RAX), ls.ins[1].Args)
	require.Equal(t, args(x86asm.Mem{Base: x86asm.RCX, Disp: 8}), ls.ins[2].Args)
}

func TestEncoder_MakeCall(t *testing.T) {
	e := newTestEncoder(true)
	r0 := codegen.RelocationInfo{Data: 42}
	r1 := codegen.RelocationInfo{Type: codegen.RelocCall32, Data: 7, Addend: -4}
	e.MovImm(Q(RAX), imm(1))
	e.MakeCall(&r0)
	e.Add(Q(RAX), Q(RAX), Q(RCX))
	e.MakeCall(&r1)
	e.Return()
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{x86asm.MOV, x86asm.CALL, x86asm.ADD, x86asm.CALL, x86asm.RET}, ls.ops())

	/* the offsets are known after assembling */
	relocs := e.Relocations()
	require.Len(t, relocs, 2)
	require.Equal(t, codegen.RelocCall32, relocs[0].Type)
	require.Equal(t, uint32(42), relocs[0].Data)
	require.Equal(t, uint32(ls.pcs[1]), relocs[0].Offset)
	require.Equal(t, uint32(ls.pcs[3]), relocs[1].Offset)
	require.Equal(t, int64(-4), relocs[1].Addend)
	require.Equal(t, args(x86asm.Rel(0)), ls.ins[1].Args)
}

func TestEncoder_PcRelative(t *testing.T) {
	e := newTestEncoder(true)
	e.Mov(Q(RCX), Q(RDX))
	e.GetCurrentPc(Q(RAX))
	e.LoadPcRelative(Q(RBX), 0x100, codegen.InvalidReg)
	e.LoadPcRelative(codegen.InvalidReg, 1<<40, Q(RSI))
	e.StackOverflowCheck(-0x2000)
	ls := assemble(t, e)
	require.Equal(t, []x86asm.Op{
		x86asm.MOV,
		x86asm.LEA,
		x86asm.LEA, x86asm.MOV,
		x86asm.LEA, x86asm.MOV, x86asm.ADD,
		x86asm.MOV,
	}, ls.ops())

	/* rip points past the lea */
	for _, i := range []int{1, 2, 4} {
		mem := ls.ins[i].Args[1].(x86asm.Mem)
		require.Equal(t, x86asm.RIP, mem.Base)
		require.Equal(t, int32(-ls.ins[i].Len), int32(mem.Disp))
	}
	require.Equal(t, args(x86asm.RBX, x86asm.Mem{Base: x86asm.RBX, Disp: 0x100}), ls.ins[3].Args)

	/* disp32 decodes unsigned */
	probe := ls.ins[7].Args[1].(x86asm.Mem)
	require.Equal(t, x86asm.R11, ls.ins[7].Args[0])
	require.Equal(t, x86asm.RSP, probe.Base)
	require.Equal(t, int32(-0x2000), int32(probe.Disp))
}

func TestEncoder_Finalize(t *testing.T) {
	e := newTestEncoder(true)
	e.Jump(e.CreateLabel())
	err := e.Finalize()
	require.Error(t, err)
	require.Contains(t, err.Error(), "never bound")
	require.Panics(t, func() { e.Add(Q(RAX), Q(RCX), Q(RDX)) })
	require.Panics(t, func() { _ = e.Finalize() })

	/* the encoder can be freed after use */
	e = newTestEncoder(true)
	e.Return()
	require.NoError(t, e.Finalize())
	require.Equal(t, []byte{0xc3}, e.Code())
	e.Free()
	require.Empty(t, e.Code())
}

func TestEncoder_Disasm(t *testing.T) {
	e := newTestEncoder(true)
	e.MovImm(Q(RAX), imm(1))
	e.MemoryBarrier(codegen.Acquire)
	e.Return()
	require.NoError(t, e.Finalize())

	/* GNU syntax */
	var out bytes.Buffer
	for pc := 0; pc < len(e.Code()); {
		pc = e.DisasmInstr(&out, pc)
	}
	text := out.String()
	t.Log("\n" + text)
	require.Contains(t, text, "mov $0x1,%eax")
	require.Contains(t, text, "lfence")
	require.Contains(t, text, "ret")
}

func TestEncoder_Predicates(t *testing.T) {
	e := newTestEncoder(false)
	require.True(t, e.CanEncodeImmAddSubCmp(math.MaxInt32, 64, true))
	require.True(t, e.CanEncodeImmAddSubCmp(-math.MaxInt32, 64, true))
	require.False(t, e.CanEncodeImmAddSubCmp(math.MinInt32, 64, true))
	require.False(t, e.CanEncodeImmAddSubCmp(1<<32, 64, true))
	require.True(t, e.CanEncodeImmLogical(0x7fffffff, 64))
	require.False(t, e.CanEncodeImmLogical(0x80000000, 64))
	require.True(t, e.CanEncodeImmLogical(0x80000000, 32))
	require.True(t, e.CanEncodeScale(3, 64))
	require.False(t, e.CanEncodeScale(4, 64))
	require.True(t, e.CanEncodeShift(64))
	require.False(t, e.CanEncodeShift(8))
	require.True(t, e.CanEncodeImmMulti(10, 64))
	require.False(t, e.CanEncodeImmMulti(-8, 64))
	require.False(t, e.CanEncodeBitCount())
	require.True(t, newTestEncoder(true).CanEncodeBitCount())
	require.True(t, e.CanEncodeAbs())
}
