// Completion: 100% - Recording assembler for the reference machine complete
package sim

import (
	"fmt"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// Assembler records the abstract instruction stream instead of encoding
// it. Positions are instruction indexes.
type Assembler struct {
	instrs    []Instr
	constants []masm.Constant
	listing   []masm.Line
	pending   int // label references waiting for a Bind
}

// New returns an empty recording assembler
func New() *Assembler {
	return &Assembler{}
}

func (a *Assembler) Arch() engine.Arch { return engine.ArchSim }

func (a *Assembler) Layout() masm.Layout {
	return masm.Layout{ReturnSequenceLength: 4, BreakSlotLength: 1}
}

func (a *Assembler) PC() int { return len(a.instrs) }

func (a *Assembler) emit(in Instr) int {
	pc := len(a.instrs)
	a.instrs = append(a.instrs, in)
	a.listing = append(a.listing, masm.Line{Offset: pc, Size: 1, Text: in.String()})
	engine.Tracef("sim: %4d  %s\n", pc, in.String())
	return pc
}

// refer emits an instruction whose Target is the label's position
func (a *Assembler) refer(in Instr, l *masm.Label) {
	if l.Bound() {
		in.Target = l.Addr
		a.emit(in)
		return
	}
	in.Target = -1
	pc := a.emit(in)
	l.AddSite(pc)
	a.pending++
}

func (a *Assembler) Bind(l *masm.Label) {
	if l.Bound() {
		panic(fmt.Sprintf("sim: label bound twice (at %d and %d)", l.Addr, a.PC()))
	}
	pc := a.PC()
	for _, site := range l.Bind(pc) {
		a.instrs[site].Target = pc
		a.listing[site].Text = a.instrs[site].String()
		a.pending--
	}
}

func (a *Assembler) Jump(l *masm.Label) { a.refer(Instr{Op: OpJump}, l) }

func (a *Assembler) Branch(cc masm.Cond, l *masm.Label) {
	a.refer(Instr{Op: OpBranch, Cond: cc}, l)
}

func (a *Assembler) Mov(dst, src masm.Reg) { a.emit(Instr{Op: OpMov, A: dst, B: src}) }

func (a *Assembler) MovImm(dst masm.Reg, imm int64) {
	a.emit(Instr{Op: OpMovImm, A: dst, Imm: imm})
}

func (a *Assembler) LoadConstant(dst masm.Reg, c masm.Constant) {
	a.constants = append(a.constants, c)
	a.emit(Instr{Op: OpLoadConstant, A: dst, Const: len(a.constants) - 1})
}

func (a *Assembler) Load(dst masm.Reg, m masm.Mem)  { a.emit(Instr{Op: OpLoad, A: dst, M: m}) }
func (a *Assembler) Store(m masm.Mem, src masm.Reg) { a.emit(Instr{Op: OpStore, A: src, M: m}) }
func (a *Assembler) Lea(dst masm.Reg, m masm.Mem)   { a.emit(Instr{Op: OpLea, A: dst, M: m}) }

func (a *Assembler) LoadRoot(dst masm.Reg, r rt.Root) {
	a.emit(Instr{Op: OpLoadRoot, A: dst, Root: r})
}

func (a *Assembler) StoreRoot(r rt.Root, src masm.Reg) {
	a.emit(Instr{Op: OpStoreRoot, A: src, Root: r})
}

func (a *Assembler) CompareRoot(reg masm.Reg, r rt.Root) {
	a.emit(Instr{Op: OpCompareRoot, A: reg, Root: r})
}

func (a *Assembler) Push(src masm.Reg) { a.emit(Instr{Op: OpPush, A: src}) }
func (a *Assembler) Pop(dst masm.Reg)  { a.emit(Instr{Op: OpPop, A: dst}) }

func (a *Assembler) Drop(cells int) {
	if cells == 0 {
		return
	}
	a.emit(Instr{Op: OpDrop, Imm: int64(cells)})
}

func (a *Assembler) Add(dst, src masm.Reg) { a.emit(Instr{Op: OpAdd, A: dst, B: src}) }
func (a *Assembler) Sub(dst, src masm.Reg) { a.emit(Instr{Op: OpSub, A: dst, B: src}) }
func (a *Assembler) Mul(dst, src masm.Reg) { a.emit(Instr{Op: OpMul, A: dst, B: src}) }

func (a *Assembler) AddImm(dst masm.Reg, imm int32) {
	a.emit(Instr{Op: OpAddImm, A: dst, Imm: int64(imm)})
}

func (a *Assembler) SubImm(dst masm.Reg, imm int32) {
	a.emit(Instr{Op: OpSubImm, A: dst, Imm: int64(imm)})
}

func (a *Assembler) AddOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.refer(Instr{Op: OpAddOverflow, A: dst, B: src}, overflow)
}

func (a *Assembler) SubOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.refer(Instr{Op: OpSubOverflow, A: dst, B: src}, overflow)
}

func (a *Assembler) MulOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.refer(Instr{Op: OpMulOverflow, A: dst, B: src}, overflow)
}

func (a *Assembler) DivMod(divisor masm.Reg) {
	if divisor == masm.R0 || divisor == masm.R1 {
		panic("sim: DivMod divisor overlaps its results")
	}
	a.emit(Instr{Op: OpDivMod, A: divisor})
}

func (a *Assembler) And(dst, src masm.Reg) { a.emit(Instr{Op: OpAnd, A: dst, B: src}) }
func (a *Assembler) Or(dst, src masm.Reg)  { a.emit(Instr{Op: OpOr, A: dst, B: src}) }
func (a *Assembler) Xor(dst, src masm.Reg) { a.emit(Instr{Op: OpXor, A: dst, B: src}) }

func (a *Assembler) AndImm(dst masm.Reg, imm int32) {
	a.emit(Instr{Op: OpAndImm, A: dst, Imm: int64(imm)})
}

func (a *Assembler) ShlImm(dst masm.Reg, n uint8) {
	a.emit(Instr{Op: OpShlImm, A: dst, Imm: int64(n)})
}

func (a *Assembler) SarImm(dst masm.Reg, n uint8) {
	a.emit(Instr{Op: OpSarImm, A: dst, Imm: int64(n)})
}

func (a *Assembler) ShrImm(dst masm.Reg, n uint8) {
	a.emit(Instr{Op: OpShrImm, A: dst, Imm: int64(n)})
}

func (a *Assembler) shift(op Op, dst, count masm.Reg) {
	if count != masm.R2 {
		panic("sim: variable shift count must be in r2")
	}
	a.emit(Instr{Op: op, A: dst, B: count})
}

func (a *Assembler) Shl(dst, count masm.Reg) { a.shift(OpShl, dst, count) }
func (a *Assembler) Sar(dst, count masm.Reg) { a.shift(OpSar, dst, count) }
func (a *Assembler) Shr(dst, count masm.Reg) { a.shift(OpShr, dst, count) }

func (a *Assembler) Neg(dst masm.Reg) { a.emit(Instr{Op: OpNeg, A: dst}) }
func (a *Assembler) Not(dst masm.Reg) { a.emit(Instr{Op: OpNot, A: dst}) }

func (a *Assembler) Cmp(x, y masm.Reg)  { a.emit(Instr{Op: OpCmp, A: x, B: y}) }
func (a *Assembler) Test(x, y masm.Reg) { a.emit(Instr{Op: OpTest, A: x, B: y}) }

func (a *Assembler) CmpImm(x masm.Reg, imm int32) {
	a.emit(Instr{Op: OpCmpImm, A: x, Imm: int64(imm)})
}

func (a *Assembler) TestImm(x masm.Reg, imm int32) {
	a.emit(Instr{Op: OpTestImm, A: x, Imm: int64(imm)})
}

func (a *Assembler) CallRuntime(e rt.Entry, argc int) {
	a.emit(Instr{Op: OpCallRuntime, Entry: e, Imm: int64(argc)})
}

func (a *Assembler) CallIC(k masm.ICKind) { a.emit(Instr{Op: OpCallIC, IC: k}) }

func (a *Assembler) CallFunction(argc int) {
	a.emit(Instr{Op: OpCallFunction, Imm: int64(argc)})
}

func (a *Assembler) PushLabelAddress(l *masm.Label) {
	a.refer(Instr{Op: OpPushLabelAddress}, l)
}

func (a *Assembler) EnterFrame() { a.emit(Instr{Op: OpEnterFrame}) }
func (a *Assembler) LeaveFrame() { a.emit(Instr{Op: OpLeaveFrame}) }

func (a *Assembler) Ret(popBytes int) { a.emit(Instr{Op: OpRet, Imm: int64(popBytes)}) }

func (a *Assembler) Nop()       { a.emit(Instr{Op: OpNop}) }
func (a *Assembler) BreakSlot() { a.emit(Instr{Op: OpBreakSlot}) }
func (a *Assembler) Trap()      { a.emit(Instr{Op: OpTrap}) }

// Comment annotates the listing at the current position
func (a *Assembler) Comment(format string, args ...any) {
	a.listing = append(a.listing, masm.Line{Offset: a.PC(), Text: fmt.Sprintf(format, args...)})
}

// Finish closes the stream as a program for a function declaring params
// parameters
func (a *Assembler) Finish(name string, params int) (*Program, error) {
	if a.pending != 0 {
		return nil, fmt.Errorf("sim: %s has %d references to unbound labels", name, a.pending)
	}
	return &Program{
		Name:      name,
		Params:    params,
		Instrs:    a.instrs,
		Constants: a.constants,
		Listing:   a.listing,
	}, nil
}

var _ masm.Assembler = (*Assembler)(nil)
