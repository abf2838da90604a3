// Completion: 100% - Emission interface complete
package masm

import (
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/rt"
)

// Layout describes fixed-shape sequences the debugger may patch
type Layout struct {
	ReturnSequenceLength int // PC units reserved for the return sequence
	BreakSlotLength      int // PC units of one break slot
	MaxReturnPop         int // largest byte count Ret can pop, 0 when unbounded
}

// Assembler is the mnemonic-level emission interface the code generator
// drives. The frame, calling convention and tagging scheme are shared by
// every target; an implementation supplies only the encoding.
//
// Arithmetic and logic operations leave the flags undefined. Branches must
// follow a Cmp, CmpImm, Test, TestImm or CompareRoot with nothing but moves,
// loads, stores, pushes, pops, drops and unconditional jumps in between.
// Immediates of CmpImm, TestImm and AndImm are sign-extended to 64 bits.
type Assembler interface {
	Arch() engine.Arch
	Layout() Layout
	PC() int

	// Labels
	Bind(l *Label)
	Jump(l *Label)
	Branch(cc Cond, l *Label)

	// Moves and memory
	Mov(dst, src Reg)
	MovImm(dst Reg, imm int64)
	LoadConstant(dst Reg, c Constant)
	Load(dst Reg, m Mem)
	Store(m Mem, src Reg)
	Lea(dst Reg, m Mem)
	LoadRoot(dst Reg, r rt.Root)
	StoreRoot(r rt.Root, src Reg)
	CompareRoot(reg Reg, r rt.Root)
	Push(src Reg)
	Pop(dst Reg)
	Drop(cells int)

	// Arithmetic on full words
	Add(dst, src Reg)
	Sub(dst, src Reg)
	AddImm(dst Reg, imm int32)
	SubImm(dst Reg, imm int32)
	Mul(dst, src Reg)
	AddOverflow(dst, src Reg, overflow *Label)
	SubOverflow(dst, src Reg, overflow *Label)
	MulOverflow(dst, src Reg, overflow *Label)
	// DivMod divides R0 by divisor, leaving the quotient in R0 and the
	// remainder in R1. The divisor must not be R0 or R1, zero, or -1 with
	// a minimal dividend.
	DivMod(divisor Reg)
	And(dst, src Reg)
	AndImm(dst Reg, imm int32)
	Or(dst, src Reg)
	Xor(dst, src Reg)
	ShlImm(dst Reg, n uint8)
	SarImm(dst Reg, n uint8)
	ShrImm(dst Reg, n uint8)
	// Variable shifts take their count in R2
	Shl(dst, count Reg)
	Sar(dst, count Reg)
	Shr(dst, count Reg)
	Neg(dst Reg)
	Not(dst Reg)

	// Flags
	Cmp(a, b Reg)
	CmpImm(a Reg, imm int32)
	Test(a, b Reg)
	TestImm(a Reg, imm int32)

	// Calls and frames
	CallRuntime(e rt.Entry, argc int)
	CallIC(k ICKind)
	// CallFunction calls the closure in R1 with argc arguments on the stack
	CallFunction(argc int)
	PushLabelAddress(l *Label)
	EnterFrame()
	LeaveFrame()
	Ret(popBytes int)

	// Padding and markers
	Nop()
	BreakSlot()
	Trap()
	Comment(format string, args ...any)
}
