package sim

import (
	"fmt"
	"strings"

	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// Op is a reference machine opcode. There is one per Assembler method; the
// machine executes the recorded stream directly.
type Op uint8

const (
	OpNop Op = iota
	OpJump
	OpBranch
	OpMov
	OpMovImm
	OpLoadConstant
	OpLoad
	OpStore
	OpLea
	OpLoadRoot
	OpStoreRoot
	OpCompareRoot
	OpPush
	OpPop
	OpDrop
	OpAdd
	OpSub
	OpAddImm
	OpSubImm
	OpMul
	OpAddOverflow
	OpSubOverflow
	OpMulOverflow
	OpDivMod
	OpAnd
	OpAndImm
	OpOr
	OpXor
	OpShlImm
	OpSarImm
	OpShrImm
	OpShl
	OpSar
	OpShr
	OpNeg
	OpNot
	OpCmp
	OpCmpImm
	OpTest
	OpTestImm
	OpCallRuntime
	OpCallIC
	OpCallFunction
	OpPushLabelAddress
	OpEnterFrame
	OpLeaveFrame
	OpRet
	OpBreakSlot
	OpTrap
)

var opNames = [...]string{
	OpNop: "nop", OpJump: "jmp", OpBranch: "b", OpMov: "mov", OpMovImm: "movi",
	OpLoadConstant: "ldconst", OpLoad: "ld", OpStore: "st", OpLea: "lea",
	OpLoadRoot: "ldroot", OpStoreRoot: "stroot", OpCompareRoot: "cmproot",
	OpPush: "push", OpPop: "pop", OpDrop: "drop", OpAdd: "add", OpSub: "sub",
	OpAddImm: "addi", OpSubImm: "subi", OpMul: "mul", OpAddOverflow: "addo",
	OpSubOverflow: "subo", OpMulOverflow: "mulo", OpDivMod: "divmod",
	OpAnd: "and", OpAndImm: "andi", OpOr: "or", OpXor: "xor", OpShlImm: "shli",
	OpSarImm: "sari", OpShrImm: "shri", OpShl: "shl", OpSar: "sar", OpShr: "shr",
	OpNeg: "neg", OpNot: "not", OpCmp: "cmp", OpCmpImm: "cmpi", OpTest: "test",
	OpTestImm: "testi", OpCallRuntime: "callrt", OpCallIC: "callic",
	OpCallFunction: "callfn", OpPushLabelAddress: "pushaddr",
	OpEnterFrame: "enter", OpLeaveFrame: "leave", OpRet: "ret",
	OpBreakSlot: "breakslot", OpTrap: "trap",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op%d", uint8(o))
}

// Instr is one recorded instruction
type Instr struct {
	Op     Op
	A, B   masm.Reg
	M      masm.Mem
	Imm    int64
	Cond   masm.Cond
	Target int // instruction index for jumps, branches and label addresses
	Root   rt.Root
	Entry  rt.Entry
	IC     masm.ICKind
	Const  int // constant index
}

// flagging reports whether the instruction defines the flags
func (in *Instr) flagging() bool {
	switch in.Op {
	case OpCmp, OpCmpImm, OpTest, OpTestImm, OpCompareRoot:
		return true
	}
	return false
}

// preservesFlags reports whether the flags survive the instruction
func (in *Instr) preservesFlags() bool {
	switch in.Op {
	case OpNop, OpJump, OpBranch, OpMov, OpMovImm, OpLoadConstant, OpLoad,
		OpStore, OpLea, OpLoadRoot, OpStoreRoot, OpPush, OpPop, OpDrop,
		OpPushLabelAddress, OpBreakSlot:
		return true
	}
	return false
}

func (in *Instr) String() string {
	var sb strings.Builder
	sb.WriteString(in.Op.String())
	arg := func(format string, args ...any) {
		sb.WriteByte(' ')
		fmt.Fprintf(&sb, format, args...)
	}
	switch in.Op {
	case OpJump, OpPushLabelAddress:
		arg("@%d", in.Target)
	case OpBranch:
		sb.WriteString(in.Cond.String())
		arg("@%d", in.Target)
	case OpMov, OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor, OpShl, OpSar, OpShr, OpCmp, OpTest:
		arg("%s, %s", in.A, in.B)
	case OpAddOverflow, OpSubOverflow, OpMulOverflow:
		arg("%s, %s, @%d", in.A, in.B, in.Target)
	case OpMovImm, OpAddImm, OpSubImm, OpAndImm, OpShlImm, OpSarImm, OpShrImm, OpCmpImm, OpTestImm:
		arg("%s, %#x", in.A, in.Imm)
	case OpLoadConstant:
		arg("%s, const%d", in.A, in.Const)
	case OpLoad, OpLea:
		arg("%s, %s", in.A, in.M)
	case OpStore:
		arg("%s, %s", in.M, in.A)
	case OpLoadRoot:
		arg("%s, %s", in.A, in.Root)
	case OpStoreRoot:
		arg("%s, %s", in.Root, in.A)
	case OpCompareRoot:
		arg("%s, %s", in.A, in.Root)
	case OpPush, OpPop, OpNeg, OpNot, OpDivMod:
		arg("%s", in.A)
	case OpDrop, OpCallFunction, OpRet:
		arg("%d", in.Imm)
	case OpCallRuntime:
		arg("%s, %d", in.Entry, in.Imm)
	case OpCallIC:
		arg("%s", in.IC)
	}
	return sb.String()
}
