// Completion: 100% - Register convention complete
package masm

import "fmt"

// Reg is an architecture-independent register of the fixed convention.
// Each encoder maps these onto its machine registers:
//
//	        x86_64  aarch64  role
//	R0      rax     x0       accumulator, top-of-stack cache, call result, argc
//	R1      rdx     x1       receiver for IC calls, callee function, remainder
//	R2      rcx     x2       name or key for IC calls, shift count
//	R3      rbx     x3       fast path temporary
//	FP      rbp     x29      frame pointer
//	SP      rsp     x28      expression stack pointer
//	CP      rsi     x27      current context
//	PP      rdi     x26      incoming parameter pointer (receiver cell)
//	Roots   r13     x25      roots table and runtime entry table
//	Tmp     r10     x16      codegen scratch, clobbered by every call
type Reg uint8

const (
	R0 Reg = iota
	R1
	R2
	R3
	FP
	SP
	CP
	PP
	Roots
	Tmp
	NumRegs
	NoReg Reg = 0xFF
)

var regNames = [...]string{"r0", "r1", "r2", "r3", "fp", "sp", "cp", "pp", "roots", "tmp"}

func (r Reg) String() string {
	if r < NumRegs {
		return regNames[r]
	}
	if r == NoReg {
		return "noreg"
	}
	return fmt.Sprintf("reg%d", uint8(r))
}

// Mem is a memory operand: [Base + Index + Disp]. Index is NoReg when absent.
type Mem struct {
	Base  Reg
	Index Reg
	Disp  int32
}

// MemAt builds a base-plus-displacement operand
func MemAt(base Reg, disp int32) Mem {
	return Mem{Base: base, Index: NoReg, Disp: disp}
}

// MemIndexed builds a base-plus-index-plus-displacement operand
func MemIndexed(base, index Reg, disp int32) Mem {
	return Mem{Base: base, Index: index, Disp: disp}
}

// HasIndex reports whether the operand uses an index register
func (m Mem) HasIndex() bool {
	return m.Index != NoReg
}

func (m Mem) String() string {
	s := "[" + m.Base.String()
	if m.HasIndex() {
		s += "+" + m.Index.String()
	}
	switch {
	case m.Disp > 0:
		s += fmt.Sprintf("+%d", m.Disp)
	case m.Disp < 0:
		s += fmt.Sprintf("%d", m.Disp)
	}
	return s + "]"
}
