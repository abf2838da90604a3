package amd64

import (
	"fmt"

	"github.com/xyproto/fullgen/internal/masm"
)

// Machine register numbers
const (
	rax uint8 = iota
	rcx
	rdx
	rbx
	rsp
	rbp
	rsi
	rdi
	r8
	r9
	r10
	r11
	r12
	r13
	r14
	r15
)

// scratch is private to the encoder and never holds a value across a
// masm operation
const scratch = r11

var regNames = [16]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var machineRegs = [masm.NumRegs]uint8{
	masm.R0:    rax,
	masm.R1:    rdx,
	masm.R2:    rcx,
	masm.R3:    rbx,
	masm.FP:    rbp,
	masm.SP:    rsp,
	masm.CP:    rsi,
	masm.PP:    rdi,
	masm.Roots: r13,
	masm.Tmp:   r10,
}

// phys maps a convention register onto its machine register
func phys(r masm.Reg) uint8 {
	if r >= masm.NumRegs {
		panic(fmt.Sprintf("amd64: no machine register for %s", r))
	}
	return machineRegs[r]
}

func name(r uint8) string {
	return regNames[r&15]
}

// Condition codes, as the low nibble of Jcc
var condCodes = [...]uint8{
	masm.Equal:        0x4,
	masm.NotEqual:     0x5,
	masm.Less:         0xC,
	masm.GreaterEqual: 0xD,
	masm.LessEqual:    0xE,
	masm.Greater:      0xF,
	masm.Below:        0x2,
	masm.AboveEqual:   0x3,
	masm.BelowEqual:   0x6,
	masm.Above:        0x7,
	masm.Overflow:     0x0,
	masm.NoOverflow:   0x1,
	masm.Negative:     0x8,
	masm.Positive:     0x9,
}

var condSuffix = [...]string{
	masm.Equal:        "e",
	masm.NotEqual:     "ne",
	masm.Less:         "l",
	masm.GreaterEqual: "ge",
	masm.LessEqual:    "le",
	masm.Greater:      "g",
	masm.Below:        "b",
	masm.AboveEqual:   "ae",
	masm.BelowEqual:   "be",
	masm.Above:        "a",
	masm.Overflow:     "o",
	masm.NoOverflow:   "no",
	masm.Negative:     "s",
	masm.Positive:     "ns",
}

func fitsInt8(v int64) bool {
	return v >= -128 && v <= 127
}

func fitsInt32(v int64) bool {
	return v >= -1<<31 && v <= 1<<31-1
}

// rexW emits REX.W with the extension bits of reg, index and base
func (a *Assembler) rexW(reg, index, base uint8) {
	a.byte1(0x48 | (reg>>3)<<2 | (index>>3)<<1 | base>>3)
}

// rr emits a 64-bit register to register operation: op /r with the
// ModRM reg field set to reg and rm to rm
func (a *Assembler) rr(op []byte, reg, rm uint8) {
	a.rexW(reg, 0, rm)
	a.bytes(op...)
	a.byte1(0xC0 | (reg&7)<<3 | rm&7)
}

// ext emits a 64-bit operation with an opcode extension in the reg field
func (a *Assembler) ext(op []byte, digit, rm uint8) {
	a.rr(op, digit, rm)
}

// mem emits op /r against a memory operand
func (a *Assembler) mem(op []byte, reg uint8, m masm.Mem) {
	base := phys(m.Base)
	index := uint8(rsp)
	if m.HasIndex() {
		index = phys(m.Index)
		if index == rsp {
			panic("amd64: rsp cannot be an index register")
		}
	}
	noIndex := uint8(0)
	if m.HasIndex() {
		noIndex = index
	}
	a.rexW(reg, noIndex, base)
	a.bytes(op...)

	disp := int64(m.Disp)
	var mod uint8
	switch {
	case disp == 0 && base&7 != rbp:
		mod = 0
	case fitsInt8(disp):
		mod = 1
	default:
		mod = 2
	}
	if m.HasIndex() || base&7 == rsp {
		// SIB with scale 1
		a.byte1(mod<<6 | (reg&7)<<3 | 4)
		a.byte1((index&7)<<3 | base&7)
	} else {
		a.byte1(mod<<6 | (reg&7)<<3 | base&7)
	}
	switch mod {
	case 1:
		a.byte1(uint8(int8(disp)))
	case 2:
		a.imm32(int32(disp))
	}
}

// memText renders a memory operand in Intel syntax
func memText(m masm.Mem) string {
	s := "[" + name(phys(m.Base))
	if m.HasIndex() {
		s += "+" + name(phys(m.Index))
	}
	switch {
	case m.Disp > 0:
		s += fmt.Sprintf("+0x%x", m.Disp)
	case m.Disp < 0:
		s += fmt.Sprintf("-0x%x", -int64(m.Disp))
	}
	return s + "]"
}

// group1 emits an ALU operation with an immediate: 83 /digit ib when the
// value fits a byte, 81 /digit id otherwise
func (a *Assembler) group1(digit, rm uint8, imm int32) {
	if fitsInt8(int64(imm)) {
		a.ext([]byte{0x83}, digit, rm)
		a.byte1(uint8(int8(imm)))
		return
	}
	a.ext([]byte{0x81}, digit, rm)
	a.imm32(imm)
}

// movImm loads a 64-bit immediate with the shortest encoding that keeps
// the flags: mov r32 zero-extends, C7 sign-extends, movabs covers the rest
func (a *Assembler) movImm(r uint8, imm int64) {
	switch {
	case imm >= 0 && imm <= 1<<32-1:
		if r >= 8 {
			a.byte1(0x41) // REX.B
		}
		a.byte1(0xB8 + r&7)
		a.imm32(int32(uint32(imm)))
	case fitsInt32(imm):
		a.ext([]byte{0xC7}, 0, r)
		a.imm32(int32(imm))
	default:
		a.rexW(0, 0, r)
		a.byte1(0xB8 + r&7)
		a.imm64(imm)
	}
}

// push and pop use the one byte forms, with REX.B for r8-r15
func (a *Assembler) push(r uint8) {
	if r >= 8 {
		a.byte1(0x41)
	}
	a.byte1(0x50 + r&7)
}

func (a *Assembler) pop(r uint8) {
	if r >= 8 {
		a.byte1(0x41)
	}
	a.byte1(0x58 + r&7)
}
