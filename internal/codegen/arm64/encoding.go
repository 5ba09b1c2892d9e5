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

/** Data Processing -- Immediate **/

// encodeAddSubImm encodes ADD/ADDS/SUB/SUBS (immediate). sh selects LSL #12.
func encodeAddSubImm(sf uint32, sub uint32, setf uint32, rd uint32, rn uint32, imm12 uint32, sh uint32) uint32 {
	return sf<<31 | sub<<30 | setf<<29 | 0b100010<<23 | sh<<22 | (imm12&0xfff)<<10 | rn<<5 | rd
}

// encodeLogicalImm encodes AND/ORR/EOR/ANDS (immediate), opc in that order.
func encodeLogicalImm(sf uint32, opc uint32, rd uint32, rn uint32, n uint32, immr uint32, imms uint32) uint32 {
	return sf<<31 | opc<<29 | 0b100100<<23 | n<<22 | immr<<16 | imms<<10 | rn<<5 | rd
}

const (
	_MovN = 0b00
	_MovZ = 0b10
	_MovK = 0b11
)

// encodeMoveWide encodes MOVN/MOVZ/MOVK, hw is the shift divided by 16.
func encodeMoveWide(sf uint32, opc uint32, rd uint32, imm16 uint32, hw uint32) uint32 {
	return sf<<31 | opc<<29 | 0b100101<<23 | hw<<21 | (imm16&0xffff)<<5 | rd
}

const (
	_SBFM = 0b00
	_UBFM = 0b10
)

// encodeBitfield encodes SBFM/UBFM, the aliases of every immediate shift and
// extension.
func encodeBitfield(sf uint32, opc uint32, rd uint32, rn uint32, immr uint32, imms uint32) uint32 {
	return sf<<31 | opc<<29 | 0b100110<<23 | sf<<22 | immr<<16 | imms<<10 | rn<<5 | rd
}

// encodeExtr encodes EXTR, ROR (immediate) is EXTR with rn == rm.
func encodeExtr(sf uint32, rd uint32, rn uint32, rm uint32, lsb uint32) uint32 {
	return sf<<31 | 0b00100111<<23 | sf<<22 | rm<<16 | lsb<<10 | rn<<5 | rd
}

func encodeAdr(rd uint32, imm21 int64) uint32 {
	return 0b10000<<24 | uint32(imm21&0b11)<<29 | uint32((imm21>>2)&0x7ffff)<<5 | rd
}

func encodeAdrp(rd uint32, pages int64) uint32 {
	return 0b10010000<<24 | uint32(pages&0b11)<<29 | uint32((pages>>2)&0x7ffff)<<5 | rd
}

/** Data Processing -- Register **/

const (
	_ShiftLSL = 0b00
	_ShiftLSR = 0b01
	_ShiftASR = 0b10
	_ShiftROR = 0b11
)

// encodeAddSubShifted encodes ADD/ADDS/SUB/SUBS (shifted register). Register
// 31 is the zero register here.
func encodeAddSubShifted(sf uint32, sub uint32, setf uint32, rd uint32, rn uint32, rm uint32, shift uint32, amount uint32) uint32 {
	return sf<<31 | sub<<30 | setf<<29 | 0b01011<<24 | shift<<22 | rm<<16 | amount<<10 | rn<<5 | rd
}

// encodeAddSubExtended encodes ADD/SUB (extended register) with UXTX/UXTW,
// the form that accepts sp as rd and rn.
func encodeAddSubExtended(sf uint32, sub uint32, setf uint32, rd uint32, rn uint32, rm uint32, amount uint32) uint32 {
	option := uint32(0b010) | sf
	return sf<<31 | sub<<30 | setf<<29 | 0b01011001<<21 | rm<<16 | option<<13 | amount<<10 | rn<<5 | rd
}

const (
	_LogicAnd  = 0b00
	_LogicOrr  = 0b01
	_LogicEor  = 0b10
	_LogicAnds = 0b11
)

// encodeLogicalShifted encodes AND/ORR/EOR/ANDS (shifted register), n selects
// BIC/ORN/EON/BICS.
func encodeLogicalShifted(sf uint32, opc uint32, n uint32, rd uint32, rn uint32, rm uint32, shift uint32, amount uint32) uint32 {
	return sf<<31 | opc<<29 | 0b01010<<24 | shift<<22 | n<<21 | rm<<16 | amount<<10 | rn<<5 | rd
}

const (
	_OpUDiv = 0b000010
	_OpSDiv = 0b000011
	_OpLslv = 0b001000
	_OpLsrv = 0b001001
	_OpAsrv = 0b001010
	_OpRorv = 0b001011
)

// encodeDataProc2 encodes Data-processing (2 source).
func encodeDataProc2(sf uint32, opcode uint32, rd uint32, rn uint32, rm uint32) uint32 {
	return sf<<31 | 0b0011010110<<21 | rm<<16 | opcode<<10 | rn<<5 | rd
}

const (
	_OpRbit  = 0b000000
	_OpRev16 = 0b000001
	_OpRev32 = 0b000010
	_OpRev64 = 0b000011
	_OpClz   = 0b000100
)

// encodeDataProc1 encodes Data-processing (1 source). REV is opcode 2 for
// 32-bit and 3 for 64-bit registers.
func encodeDataProc1(sf uint32, opcode uint32, rd uint32, rn uint32) uint32 {
	return sf<<31 | 0b1011010110<<21 | opcode<<10 | rn<<5 | rd
}

// encodeDataProc3 encodes MADD (o0 = 0) and MSUB (o0 = 1).
func encodeDataProc3(sf uint32, o0 uint32, rd uint32, rn uint32, rm uint32, ra uint32) uint32 {
	return sf<<31 | 0b0011011<<24 | rm<<16 | o0<<15 | ra<<10 | rn<<5 | rd
}

// encodeCondSelect encodes CSEL (0, 0), CSINC (0, 1), CSINV (1, 0) and
// CSNEG (1, 1).
func encodeCondSelect(sf uint32, op uint32, o2 uint32, rd uint32, rn uint32, rm uint32, cond uint32) uint32 {
	return sf<<31 | op<<30 | 0b011010100<<21 | rm<<16 | cond<<12 | o2<<10 | rn<<5 | rd
}

/** Data Processing -- Scalar Floating-Point and Advanced SIMD **/

const (
	_FpMov  = 0b000000
	_FpAbs  = 0b000001
	_FpNeg  = 0b000010
	_FpSqrt = 0b000011
	_FpCvtS = 0b000100
	_FpCvtD = 0b000101
)

func encodeFpDataProc1(ftype uint32, opcode uint32, rd uint32, rn uint32) uint32 {
	return 0b00011110<<24 | ftype<<22 | 1<<21 | opcode<<15 | 0b10000<<10 | rn<<5 | rd
}

const (
	_FpMul = 0b0000
	_FpDiv = 0b0001
	_FpAdd = 0b0010
	_FpSub = 0b0011
	_FpMax = 0b0100
	_FpMin = 0b0101
)

func encodeFpDataProc2(ftype uint32, opcode uint32, rd uint32, rn uint32, rm uint32) uint32 {
	return 0b00011110<<24 | ftype<<22 | 1<<21 | rm<<16 | opcode<<12 | 0b10<<10 | rn<<5 | rd
}

func encodeFpCompare(ftype uint32, rn uint32, rm uint32) uint32 {
	return 0b00011110<<24 | ftype<<22 | 1<<21 | rm<<16 | 0b1000<<10 | rn<<5
}

func encodeFpCondSelect(ftype uint32, rd uint32, rn uint32, rm uint32, cond uint32) uint32 {
	return 0b00011110<<24 | ftype<<22 | 1<<21 | rm<<16 | cond<<12 | 0b11<<10 | rn<<5 | rd
}

func encodeFpImm(ftype uint32, rd uint32, imm8 uint32) uint32 {
	return 0b00011110<<24 | ftype<<22 | 1<<21 | imm8<<13 | 0b100<<10 | rd
}

const (
	_CvtSCVTF    = 0b00_010
	_CvtUCVTF    = 0b00_011
	_CvtFCVTZS   = 0b11_000
	_CvtFCVTZU   = 0b11_001
	_CvtFMOVToGp = 0b00_110
	_CvtFMOVToFp = 0b00_111
)

// encodeFpIntConvert encodes Conversion between floating-point and integer,
// op packs rmode and opcode.
func encodeFpIntConvert(sf uint32, ftype uint32, op uint32, rd uint32, rn uint32) uint32 {
	return sf<<31 | 0b00011110<<24 | ftype<<22 | 1<<21 | op<<16 | rn<<5 | rd
}

func encodeCnt8B(rd uint32, rn uint32) uint32 {
	return 0b00001110_00100000_01011<<11 | rn<<5 | rd
}

func encodeAddv8B(rd uint32, rn uint32) uint32 {
	return 0b00001110_00110001_10111<<11 | rn<<5 | rd
}

/** Loads and Stores **/

// Unsigned offset forms, indexed by access size in bytes. The unscaled and
// register offset forms clear bit 24.
const (
	_LDRB   = 0x39400000
	_LDRSBW = 0x39c00000
	_LDRSBX = 0x39800000
	_LDRH   = 0x79400000
	_LDRSHW = 0x79c00000
	_LDRSHX = 0x79800000
	_LDRW   = 0xb9400000
	_LDRSW  = 0xb9800000
	_LDRX   = 0xf9400000
	_STRB   = 0x39000000
	_STRH   = 0x79000000
	_STRW   = 0xb9000000
	_STRX   = 0xf9000000
	_LDRS   = 0xbd400000
	_LDRD   = 0xfd400000
	_STRS   = 0xbd000000
	_STRD   = 0xfd000000
)

func encodeLoadStoreUImm(op uint32, rt uint32, rn uint32, imm12 uint32) uint32 {
	return op | (imm12&0xfff)<<10 | rn<<5 | rt
}

func encodeLoadStoreSImm9(op uint32, rt uint32, rn uint32, imm9 int64) uint32 {
	return op&^(1<<24) | uint32(imm9&0x1ff)<<12 | rn<<5 | rt
}

// encodeLoadStoreReg encodes the register offset form with LSL, s scales the
// index by the access size.
func encodeLoadStoreReg(op uint32, rt uint32, rn uint32, rm uint32, s uint32) uint32 {
	return op&^(1<<24) | 1<<21 | rm<<16 | 0b011<<13 | s<<12 | 0b10<<10 | rn<<5 | rt
}

const (
	_LDPW = 0x29400000
	_STPW = 0x29000000
	_LDPX = 0xa9400000
	_STPX = 0xa9000000
	_LDPS = 0x2d400000
	_STPS = 0x2d000000
	_LDPD = 0x6d400000
	_STPD = 0x6d000000
)

// encodeLoadStorePair encodes LDP/STP (signed offset), imm7 is already
// divided by the access size.
func encodeLoadStorePair(op uint32, rt uint32, rt2 uint32, rn uint32, imm7 int64) uint32 {
	return op | uint32(imm7&0x7f)<<15 | rt2<<10 | rn<<5 | rt
}

const (
	_LDXR  = 0x085f7c00
	_LDAXR = 0x085ffc00
	_STXR  = 0x08007c00
	_STLXR = 0x0800fc00
	_LDAR  = 0x08dffc00
	_STLR  = 0x089ffc00
	_LDAPR = 0x38bfc000
)

// encodeExclusive encodes the exclusive and ordered accesses, size is log2 of
// the access width in bytes and rs is the status register of the stores.
func encodeExclusive(op uint32, size uint32, rs uint32, rt uint32, rn uint32) uint32 {
	return size<<30 | op | rs<<16 | rn<<5 | rt
}

const (
	_CASAL   = 0x08e0fc00
	_LDADDAL = 0x38e00000
	_SWPAL   = 0x38e08000
)

// encodeAtomic encodes the LSE forms with acquire and release semantics.
func encodeAtomic(op uint32, size uint32, rs uint32, rt uint32, rn uint32) uint32 {
	return size<<30 | op | rs<<16 | rn<<5 | rt
}

const (
	_LDRLitW = 0x18000000
	_LDRLitX = 0x58000000
	_LDRLitS = 0x1c000000
	_LDRLitD = 0x5c000000
)

func encodeLoadLiteral(op uint32, rt uint32, imm19 int64) uint32 {
	return op | uint32(imm19&0x7ffff)<<5 | rt
}

/** Branches, Exception Generating and System instructions **/

func encodeBranch(link bool, imm26 int64) uint32 {
	if link {
		return 0b100101<<26 | uint32(imm26&0x3ffffff)
	} else {
		return 0b000101<<26 | uint32(imm26&0x3ffffff)
	}
}

func encodeBranchCond(cond uint32, imm19 int64) uint32 {
	return 0b01010100<<24 | uint32(imm19&0x7ffff)<<5 | cond
}

func encodeCompareBranch(sf uint32, nz uint32, rt uint32, imm19 int64) uint32 {
	return sf<<31 | 0b011010<<25 | nz<<24 | uint32(imm19&0x7ffff)<<5 | rt
}

func encodeTestBranch(nz uint32, rt uint32, bit uint32, imm14 int64) uint32 {
	return (bit>>5)<<31 | 0b011011<<25 | nz<<24 | (bit&0x1f)<<19 | uint32(imm14&0x3fff)<<5 | rt
}

func encodeBranchReg(opc uint32, rn uint32) uint32 {
	return 0b1101011<<25 | opc<<21 | 0b11111<<16 | rn<<5
}

const (
	_BR  = 0b0000
	_BLR = 0b0001
	_RET = 0b0010
)

func encodeBrk(imm16 uint32) uint32 {
	return 0b11010100001<<21 | (imm16&0xffff)<<5
}

const (
	_BarrierISHLD = 0b1001
	_BarrierISHST = 0b1010
	_BarrierISH   = 0b1011
)

func encodeDmb(option uint32) uint32 {
	return 0xd50330bf | option<<8
}

const (
	_NOP = 0xd503201f
)

/** Bitmask Immediates **/

// isBitmaskImmediate reports whether x is a repeated rotated run of ones.
// 32-bit values must be replicated into both halves first.
func isBitmaskImmediate(x uint64) bool {
	if x == 0 || x == ^uint64(0) {
		return false
	}

	/* find the element size and sign extend one element */
	switch {
	case x != x>>32|x<<32:
		break
	case x != x>>16|x<<48:
		x = uint64(int32(x))
	case x != x>>8|x<<56:
		x = uint64(int16(x))
	case x != x>>4|x<<60:
		x = uint64(int8(x))
	default:
		return true
	}
	return isRunOfOnes(x) || isRunOfOnes(^x)
}

func isRunOfOnes(x uint64) bool {
	y := x & -x
	y += x
	return (y-1)&y == 0
}

// bitmaskImmediate returns the N:immr:imms fields of a valid bitmask
// immediate.
func bitmaskImmediate(c uint64, is64 bool) (n uint32, immr uint32, imms uint32) {
	var size uint32
	switch {
	case c != c>>32|c<<32:
		size = 64
	case c != c>>16|c<<48:
		size = 32
		c = uint64(int32(c))
	case c != c>>8|c<<56:
		size = 16
		c = uint64(int16(c))
	case c != c>>4|c<<60:
		size = 8
		c = uint64(int8(c))
	case c != c>>2|c<<62:
		size = 4
		c = uint64(int64(c<<60) >> 60)
	default:
		size = 2
		c = uint64(int64(c<<62) >> 62)
	}

	/* count the ones of a run starting at pos */
	neg := int64(c) < 0
	if neg {
		c = ^c
	}

	/* locate the run */
	low := c & -c
	pos := bitPos(low)
	ones := bitPos(c+low) - pos
	if neg {
		pos, ones = pos+ones, size-ones
	}

	/* 64-bit elements need the N bit */
	mode := uint32(32)
	if is64 && size == 64 {
		n, mode = 1, 64
	}

	immr = (size - pos) & (size - 1) & (mode - 1)
	imms = (ones - 1) | 63&^(size<<1-1)
	return
}

func bitPos(x uint64) (ret uint32) {
	for x > 1 {
		x >>= 1
		ret++
	}
	return
}

// replicate32 spreads a 32-bit value into both halves of a 64-bit pattern.
func replicate32(v uint64) uint64 {
	v &= 0xffffffff
	return v | v<<32
}

/** Floating-Point Immediates **/

// fpImm8 returns the 8-bit FMOV immediate of the IEEE bits v.
func fpImm8(v uint64, is64 bool) (uint32, bool) {
	if is64 {
		exp := (v >> 54) & 0xff
		if v&0xffffffffffff != 0 || (v>>62&1 == 1 && exp != 0) || (v>>62&1 == 0 && exp != 0xff) {
			return 0, false
		} else {
			return uint32(v>>63)<<7 | uint32(v>>62&1^1)<<6 | uint32(v>>48&0x3f), true
		}
	} else {
		exp := (v >> 25) & 0x1f
		if v&0x7ffff != 0 || v>>32 != 0 || (v>>30&1 == 1 && exp != 0) || (v>>30&1 == 0 && exp != 0x1f) {
			return 0, false
		} else {
			return uint32(v>>31&1)<<7 | uint32(v>>30&1^1)<<6 | uint32(v>>19&0x3f), true
		}
	}
}
