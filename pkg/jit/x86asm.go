package jit

import (
	"encoding/binary"
)

// x86-64 register encoding
type Reg byte

const (
	RAX Reg = 0
	RCX Reg = 1
	RDX Reg = 2
	RBX Reg = 3
	RSP Reg = 4
	RBP Reg = 5
	RSI Reg = 6
	RDI Reg = 7
	R8  Reg = 8
	R9  Reg = 9
	R10 Reg = 10
	R11 Reg = 11
	R12 Reg = 12
	R13 Reg = 13
	R14 Reg = 14
	R15 Reg = 15
)

// XMM register encoding
type XMM byte

const (
	XMM0 XMM = 0
	XMM1 XMM = 1
	XMM2 XMM = 2
)

// Condition codes for Jcc (low nibble of 0F 8x)
type Cond byte

const (
	CondB  Cond = 0x2 // below (CF=1, unsigned)
	CondAE Cond = 0x3 // above or equal (CF=0, unsigned)
	CondE  Cond = 0x4 // equal (ZF=1)
	CondNE Cond = 0x5 // not equal (ZF=0)
	CondBE Cond = 0x6 // below or equal (CF=1 or ZF=1, unsigned)
	CondA  Cond = 0x7 // above (CF=0 and ZF=0, unsigned)
)

// Scalar double opcodes (F2 0F xx)
const (
	sseAdd  byte = 0x58
	sseMul  byte = 0x59
	sseSub  byte = 0x5C
	sseDiv  byte = 0x5E
	sseSqrt byte = 0x51
	sseLoad byte = 0x10
	sseStor byte = 0x11
)

// Assembler emits x86-64 machine code. Every method has a fixed encoding
// for its arguments, so the same calls always produce the same length.
// Methods that emit an immediate, displacement or rel32 field return the
// offset of that field.
type Assembler struct {
	buf    []byte
	offset int
}

// NewAssembler creates an assembler targeting the given buffer
func NewAssembler(buf []byte) *Assembler {
	return &Assembler{buf: buf, offset: 0}
}

// Offset returns current write position
func (a *Assembler) Offset() int {
	return a.offset
}

// Bytes returns the assembled code
func (a *Assembler) Bytes() []byte {
	return a.buf[:a.offset]
}

// Remaining returns how many bytes are left in the buffer
func (a *Assembler) Remaining() int {
	return len(a.buf) - a.offset
}

// emit appends bytes to the buffer
func (a *Assembler) emit(bytes ...byte) {
	copy(a.buf[a.offset:], bytes)
	a.offset += len(bytes)
}

// emitUint64 appends a little-endian uint64
func (a *Assembler) emitUint64(v uint64) int {
	at := a.offset
	binary.LittleEndian.PutUint64(a.buf[a.offset:], v)
	a.offset += 8
	return at
}

// emitInt32 appends a little-endian int32
func (a *Assembler) emitInt32(v int32) int {
	at := a.offset
	binary.LittleEndian.PutUint32(a.buf[a.offset:], uint32(v))
	a.offset += 4
	return at
}

// PatchUint64 overwrites 8 bytes at an absolute offset
func (a *Assembler) PatchUint64(at int, v uint64) {
	binary.LittleEndian.PutUint64(a.buf[at:], v)
}

// PatchInt32 overwrites 4 bytes at an absolute offset
func (a *Assembler) PatchInt32(at int, v int32) {
	binary.LittleEndian.PutUint32(a.buf[at:], uint32(v))
}

// EmitTemplate copies a template and returns the offset it starts at
func (a *Assembler) EmitTemplate(t *Template) int {
	at := a.offset
	a.emit(t.code...)
	return at
}

// rex builds REX prefix: 0100WRXB
// W=1 for 64-bit operand size
// R=1 if reg field uses R8-R15
// X=1 if SIB index uses R8-R15
// B=1 if rm field uses R8-R15
func rex(w, r, x, b bool) byte {
	var prefix byte = 0x40
	if w {
		prefix |= 0x08
	}
	if r {
		prefix |= 0x04
	}
	if x {
		prefix |= 0x02
	}
	if b {
		prefix |= 0x01
	}
	return prefix
}

// rexW returns REX.W prefix for 64-bit operations
func rexW(reg, rm Reg) byte {
	return rex(true, reg >= 8, false, rm >= 8)
}

// modRM builds ModR/M byte: [mod:2][reg:3][rm:3]
// mod should be pre-shifted: 0x00=no disp, 0x40=disp8, 0x80=disp32, 0xC0=register
func modRM(mod byte, reg, rm Reg) byte {
	return mod | ((byte(reg) & 7) << 3) | (byte(rm) & 7)
}

// sibNoIndex is the SIB byte for [rsp] with no index.
const sibNoIndex = 0x24

// sibAbsolute is the SIB byte for [disp32] with no base and no index.
const sibAbsolute = 0x25

// MovRegImm64: mov reg, imm64
func (a *Assembler) MovRegImm64(reg Reg, imm uint64) int {
	// REX.W + B8+rd + imm64
	a.emit(rex(true, false, false, reg >= 8), 0xB8|byte(reg&7))
	return a.emitUint64(imm)
}

// MovReg32Imm32: mov reg32, imm32 (zero-extends to 64-bit)
func (a *Assembler) MovReg32Imm32(reg Reg, imm int32) int {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xB8 | byte(reg&7))
	return a.emitInt32(imm)
}

// MovRegMemAbs: mov reg, [disp32] (absolute, sign-extended address)
func (a *Assembler) MovRegMemAbs(reg Reg, disp int32) int {
	a.emit(rexW(reg, 0), 0x8B, modRM(0x00, reg, RSP), sibAbsolute)
	return a.emitInt32(disp)
}

// MovMemAbsReg: mov [disp32], reg
func (a *Assembler) MovMemAbsReg(disp int32, reg Reg) int {
	a.emit(rexW(reg, 0), 0x89, modRM(0x00, reg, RSP), sibAbsolute)
	return a.emitInt32(disp)
}

// MovRegMemBase: mov reg, [base]. base must not be RSP/RBP/R12/R13.
func (a *Assembler) MovRegMemBase(reg, base Reg) {
	a.emit(rexW(reg, base), 0x8B, modRM(0x00, reg, base))
}

// MovMemBaseReg: mov [base], reg. base must not be RSP/RBP/R12/R13.
func (a *Assembler) MovMemBaseReg(base, reg Reg) {
	a.emit(rexW(reg, base), 0x89, modRM(0x00, reg, base))
}

// MovRegMemDisp32: mov reg, [base + disp32] (always the disp32 form)
func (a *Assembler) MovRegMemDisp32(reg, base Reg, disp int32) int {
	a.emit(rexW(reg, base), 0x8B, modRM(0x80, reg, base))
	return a.emitInt32(disp)
}

// MovMemDisp32Reg: mov [base + disp32], reg (always the disp32 form)
func (a *Assembler) MovMemDisp32Reg(base Reg, disp int32, reg Reg) int {
	a.emit(rexW(reg, base), 0x89, modRM(0x80, reg, base))
	return a.emitInt32(disp)
}

// LeaRegRspDisp8: lea reg, [rsp + disp8]
func (a *Assembler) LeaRegRspDisp8(reg Reg, disp int8) {
	a.emit(rexW(reg, RSP), 0x8D, modRM(0x40, reg, RSP), sibNoIndex, byte(disp))
}

// AddRegImm8: add reg, imm8 (64-bit, sign-extended)
func (a *Assembler) AddRegImm8(reg Reg, imm int8) {
	a.emit(rexW(0, reg), 0x83, modRM(0xC0, 0, reg), byte(imm))
}

// SubRegImm8: sub reg, imm8 (64-bit, sign-extended)
func (a *Assembler) SubRegImm8(reg Reg, imm int8) {
	a.emit(rexW(0, reg), 0x83, modRM(0xC0, 5, reg), byte(imm))
}

// XorRegReg: xor dst, src (64-bit)
func (a *Assembler) XorRegReg(dst, src Reg) {
	a.emit(rexW(src, dst), 0x31, modRM(0xC0, src, dst))
}

// CmpRegReg: cmp left, right (64-bit)
func (a *Assembler) CmpRegReg(left, right Reg) {
	a.emit(rexW(right, left), 0x39, modRM(0xC0, right, left))
}

// JccRel32: jcc rel32
func (a *Assembler) JccRel32(cc Cond, rel32 int32) int {
	a.emit(0x0F, 0x80|byte(cc))
	return a.emitInt32(rel32)
}

// JmpRel32: jmp rel32
func (a *Assembler) JmpRel32(rel32 int32) int {
	a.emit(0xE9)
	return a.emitInt32(rel32)
}

// CallRel32: call rel32
func (a *Assembler) CallRel32(rel32 int32) int {
	a.emit(0xE8)
	return a.emitInt32(rel32)
}

// CallReg: call reg
func (a *Assembler) CallReg(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF, modRM(0xC0, 2, reg))
}

// Ret: ret
func (a *Assembler) Ret() {
	a.emit(0xC3)
}

// Push: push reg
func (a *Assembler) Push(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 | byte(reg&7))
}

// Pop: pop reg
func (a *Assembler) Pop(reg Reg) {
	if reg >= 8 {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 | byte(reg&7))
}

// Syscall: syscall
func (a *Assembler) Syscall() {
	a.emit(0x0F, 0x05)
}

// sseRspOperand emits ModR/M+SIB for [rsp + disp8], dropping the
// displacement when it is zero.
func (a *Assembler) sseRspOperand(x XMM, disp int8) {
	if disp == 0 {
		a.emit(modRM(0x00, Reg(x), RSP), sibNoIndex)
		return
	}
	a.emit(modRM(0x40, Reg(x), RSP), sibNoIndex, byte(disp))
}

// MovsdLoadRsp: movsd x, qword [rsp + disp8]
func (a *Assembler) MovsdLoadRsp(x XMM, disp int8) {
	a.emit(0xF2, 0x0F, sseLoad)
	a.sseRspOperand(x, disp)
}

// MovsdStoreRsp: movsd qword [rsp + disp8], x
func (a *Assembler) MovsdStoreRsp(disp int8, x XMM) {
	a.emit(0xF2, 0x0F, sseStor)
	a.sseRspOperand(x, disp)
}

// SqrtsdRsp: sqrtsd x, qword [rsp + disp8]
func (a *Assembler) SqrtsdRsp(x XMM, disp int8) {
	a.emit(0xF2, 0x0F, sseSqrt)
	a.sseRspOperand(x, disp)
}

// ArithsdRegReg: addsd/subsd/mulsd/divsd dst, src
func (a *Assembler) ArithsdRegReg(op byte, dst, src XMM) {
	a.emit(0xF2, 0x0F, op, modRM(0xC0, Reg(dst), Reg(src)))
}
