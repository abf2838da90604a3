// Completion: 95% - AArch64 encoder for the shared register convention complete
package arm64

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

const (
	returnSequenceLength = 24
	breakSlotLength      = 4
	maxReturnPop         = 1<<12 - 1 // add imm12
)

// Assembler encodes the masm operations as AArch64 machine code. The
// expression stack lives on x28 rather than the hardware sp, which keeps
// it free of the 16-byte alignment rule. Calls leave the return address
// in x30 and EnterFrame stores it beside the caller's frame pointer, so
// the frame has the same shape as on x86-64.
type Assembler struct {
	buf       []byte
	relocs    []masm.Reloc
	constants []masm.Constant
	listing   []masm.Line
	pending   int
}

// New returns an empty AArch64 assembler
func New() *Assembler {
	return &Assembler{}
}

func (a *Assembler) Arch() engine.Arch { return engine.ArchARM64 }

func (a *Assembler) Layout() masm.Layout {
	return masm.Layout{ReturnSequenceLength: returnSequenceLength, BreakSlotLength: breakSlotLength, MaxReturnPop: maxReturnPop}
}

func (a *Assembler) PC() int { return len(a.buf) }

// encodeInstr writes one little-endian instruction word
func (a *Assembler) encodeInstr(instr uint32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, instr)
}

func (a *Assembler) emit(text string, encode func()) {
	start := a.PC()
	encode()
	a.listing = append(a.listing, masm.Line{Offset: start, Size: a.PC() - start, Text: text})
	engine.Tracef("arm64: %06x  % x  %s\n", start, a.buf[start:], text)
}

func (a *Assembler) word(pc int) uint32 {
	return binary.LittleEndian.Uint32(a.buf[pc:])
}

func (a *Assembler) setWord(pc int, instr uint32) {
	binary.LittleEndian.PutUint32(a.buf[pc:], instr)
}

// branchTo stores the instruction with its offset field filled in once l
// is bound. Unbound sites are told apart by their opcode on Bind.
func (a *Assembler) branchTo(instr uint32, l *masm.Label) {
	pc := a.PC()
	if l.Bound() {
		a.encodeInstr(patch(instr, l.Addr-pc))
		return
	}
	a.encodeInstr(instr)
	l.AddSite(pc)
	a.pending++
}

// patch fills the pc-relative field of a B, B.cond or ADR instruction
func patch(instr uint32, offset int) uint32 {
	switch {
	case instr&0xFC000000 == opB:
		return instr&^0x03FFFFFF | uint32(offset>>2)&0x03FFFFFF
	case instr&0xFF000010 == opBCond:
		return instr&^(0x7FFFF<<5) | (uint32(offset>>2)&0x7FFFF)<<5
	case instr&0x9F000000 == opAdr:
		lo := uint32(offset) & 3
		hi := uint32(offset>>2) & 0x7FFFF
		return instr&^(3<<29|0x7FFFF<<5) | lo<<29 | hi<<5
	}
	panic(fmt.Sprintf("arm64: cannot patch %#08x", instr))
}

func (a *Assembler) Bind(l *masm.Label) {
	if l.Bound() {
		panic(fmt.Sprintf("arm64: label bound twice (at %#x and %#x)", l.Addr, a.PC()))
	}
	pc := a.PC()
	for _, site := range l.Bind(pc) {
		a.setWord(site, patch(a.word(site), pc-site))
		a.pending--
	}
}

func labelText(l *masm.Label) string {
	if l.Bound() {
		return fmt.Sprintf("0x%x", l.Addr)
	}
	return "<fwd>"
}

func (a *Assembler) Jump(l *masm.Label) {
	a.emit("b "+labelText(l), func() { a.branchTo(opB, l) })
}

func (a *Assembler) Branch(cc masm.Cond, l *masm.Label) {
	a.emit(fmt.Sprintf("b.%s %s", condNames[cc], labelText(l)), func() {
		a.branchTo(opBCond|condCodes[cc], l)
	})
}

// mov is ORR with the zero register, which cannot name x28 or x29 as sp
func (a *Assembler) mov(d, n uint32) {
	a.encodeInstr(rrr(opOrrReg, d, xzr, n))
}

func (a *Assembler) Mov(dst, src masm.Reg) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("mov %s, %s", name(d), name(s)), func() { a.mov(d, s) })
}

func (a *Assembler) movImm(d uint32, v int64) {
	for _, instr := range movImm(d, uint64(v)) {
		a.encodeInstr(instr)
	}
}

func (a *Assembler) MovImm(dst masm.Reg, imm int64) {
	d := phys(dst)
	a.emit(fmt.Sprintf("mov %s, #0x%x", name(d), uint64(imm)), func() { a.movImm(d, imm) })
}

// LoadConstant reserves a full movz/movk sequence so the runtime can patch
// any 64-bit address
func (a *Assembler) LoadConstant(dst masm.Reg, c masm.Constant) {
	d := phys(dst)
	a.constants = append(a.constants, c)
	index := len(a.constants) - 1
	a.emit(fmt.Sprintf("mov %s, %s", name(d), c), func() {
		a.relocs = append(a.relocs, masm.Reloc{Kind: masm.RelocConstant, Offset: a.PC(), Index: index})
		a.encodeInstr(opMovz | d)
		for hw := uint32(1); hw < 4; hw++ {
			a.encodeInstr(opMovk | hw<<21 | d)
		}
	})
}

// address reduces m to a base register and a displacement, folding an
// index register into the scratch register
func (a *Assembler) address(m masm.Mem) (uint32, int32) {
	base := phys(m.Base)
	if m.HasIndex() {
		a.encodeInstr(rrr(opAddReg, scratch, base, phys(m.Index)))
		base = scratch
	}
	return base, m.Disp
}

// access emits a load or store of t at m
func (a *Assembler) access(unscaled, scaled, reg uint32, t uint32, m masm.Mem) {
	n, disp := a.address(m)
	if instr, ok := memOffset(unscaled, scaled, t, n, disp); ok {
		a.encodeInstr(instr)
		return
	}
	if n == scratch {
		panic(fmt.Sprintf("arm64: cannot address %s", m))
	}
	a.movImm(scratch, int64(disp))
	a.encodeInstr(reg | scratch<<16 | n<<5 | t)
}

func memText(m masm.Mem) string {
	s := "[" + name(phys(m.Base))
	if m.HasIndex() {
		s += ", " + name(phys(m.Index))
	}
	if m.Disp != 0 {
		s += fmt.Sprintf(", #%d", m.Disp)
	}
	return s + "]"
}

func (a *Assembler) Load(dst masm.Reg, m masm.Mem) {
	d := phys(dst)
	a.emit(fmt.Sprintf("ldr %s, %s", name(d), memText(m)), func() {
		a.access(opLdur, opLdrUoff, opLdrReg, d, m)
	})
}

func (a *Assembler) Store(m masm.Mem, src masm.Reg) {
	s := phys(src)
	a.emit(fmt.Sprintf("str %s, %s", name(s), memText(m)), func() {
		a.access(opStur, opStrUoff, opStrReg, s, m)
	})
}

// addImm computes d = n + imm, through the scratch register when the
// immediate has no encoding
func (a *Assembler) addImm(d, n uint32, imm int64) {
	op, mag := uint32(opAddImm), imm
	if imm < 0 {
		op, mag = opSubImm, -imm
	}
	if mag < 1<<24 {
		if instr, ok := addSubImm(op, d, n, uint32(mag)); ok {
			a.encodeInstr(instr)
			return
		}
	}
	if n == scratch {
		panic(fmt.Sprintf("arm64: cannot add %d to the scratch register", imm))
	}
	a.movImm(scratch, imm)
	a.encodeInstr(rrr(opAddReg, d, n, scratch))
}

func (a *Assembler) Lea(dst masm.Reg, m masm.Mem) {
	d := phys(dst)
	a.emit(fmt.Sprintf("add %s, %s", name(d), memText(m)), func() {
		n, disp := a.address(m)
		if disp == 0 {
			a.mov(d, n)
			return
		}
		a.addImm(d, n, int64(disp))
	})
}

func rootMem(r rt.Root) masm.Mem {
	return masm.MemAt(masm.Roots, r.Offset())
}

func (a *Assembler) LoadRoot(dst masm.Reg, r rt.Root) {
	d := phys(dst)
	a.emit(fmt.Sprintf("ldr %s, [roots.%s]", name(d), r), func() {
		a.access(opLdur, opLdrUoff, opLdrReg, d, rootMem(r))
	})
}

func (a *Assembler) StoreRoot(r rt.Root, src masm.Reg) {
	s := phys(src)
	a.emit(fmt.Sprintf("str %s, [roots.%s]", name(s), r), func() {
		a.access(opStur, opStrUoff, opStrReg, s, rootMem(r))
	})
}

func (a *Assembler) CompareRoot(reg masm.Reg, r rt.Root) {
	x := phys(reg)
	a.emit(fmt.Sprintf("ldr %s, [roots.%s]; cmp %s, %s", name(scratch), r, name(x), name(scratch)), func() {
		a.access(opLdur, opLdrUoff, opLdrReg, scratch, rootMem(r))
		a.encodeInstr(rrr(opSubsReg, xzr, x, scratch))
	})
}

// push and pop move x28 with pre- and post-indexed addressing
func (a *Assembler) push(t uint32) {
	a.encodeInstr(opStrPre | pushImm9<<12 | 28<<5 | t)
}

func (a *Assembler) pop(t uint32) {
	a.encodeInstr(opLdrPost | 8<<12 | 28<<5 | t)
}

func (a *Assembler) Push(src masm.Reg) {
	s := phys(src)
	a.emit(fmt.Sprintf("str %s, [x28, #-8]!", name(s)), func() { a.push(s) })
}

func (a *Assembler) Pop(dst masm.Reg) {
	d := phys(dst)
	a.emit(fmt.Sprintf("ldr %s, [x28], #8", name(d)), func() { a.pop(d) })
}

// Drop uses plain add, which leaves the flags alone
func (a *Assembler) Drop(cells int) {
	if cells == 0 {
		return
	}
	a.emit(fmt.Sprintf("add x28, x28, #%d", cells*rt.WordSize), func() {
		a.addImm(28, 28, int64(cells*rt.WordSize))
	})
}

func (a *Assembler) alu(mnemonic string, op uint32, dst, src masm.Reg) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("%s %s, %s, %s", mnemonic, name(d), name(d), name(s)), func() {
		a.encodeInstr(rrr(op, d, d, s))
	})
}

func (a *Assembler) Add(dst, src masm.Reg) { a.alu("add", opAddReg, dst, src) }
func (a *Assembler) Sub(dst, src masm.Reg) { a.alu("sub", opSubReg, dst, src) }
func (a *Assembler) And(dst, src masm.Reg) { a.alu("and", opAndReg, dst, src) }
func (a *Assembler) Or(dst, src masm.Reg)  { a.alu("orr", opOrrReg, dst, src) }
func (a *Assembler) Xor(dst, src masm.Reg) { a.alu("eor", opEorReg, dst, src) }

func (a *Assembler) Mul(dst, src masm.Reg) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("mul %s, %s, %s", name(d), name(d), name(s)), func() {
		a.encodeInstr(opMadd | s<<16 | xzr<<10 | d<<5 | d)
	})
}

func (a *Assembler) AddImm(dst masm.Reg, imm int32) {
	d := phys(dst)
	a.emit(fmt.Sprintf("add %s, %s, #%d", name(d), name(d), imm), func() { a.addImm(d, d, int64(imm)) })
}

func (a *Assembler) SubImm(dst masm.Reg, imm int32) {
	d := phys(dst)
	a.emit(fmt.Sprintf("sub %s, %s, #%d", name(d), name(d), imm), func() { a.addImm(d, d, -int64(imm)) })
}

// AndImm falls back to the scratch register for masks that are not
// bitmask immediates
func (a *Assembler) AndImm(dst masm.Reg, imm int32) {
	d := phys(dst)
	a.emit(fmt.Sprintf("and %s, %s, #0x%x", name(d), name(d), uint64(int64(imm))), func() {
		if enc, ok := logicalImm(uint64(int64(imm))); ok {
			a.encodeInstr(logical(opAndImm, d, d, enc))
			return
		}
		a.movImm(scratch, int64(imm))
		a.encodeInstr(rrr(opAndReg, d, d, scratch))
	})
}

func (a *Assembler) AddOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.alu("adds", opAddsReg, dst, src)
	a.Branch(masm.Overflow, overflow)
}

func (a *Assembler) SubOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.alu("subs", opSubsReg, dst, src)
	a.Branch(masm.Overflow, overflow)
}

// MulOverflow checks that the high half of the 128-bit product is the
// sign extension of the low half
func (a *Assembler) MulOverflow(dst, src masm.Reg, overflow *masm.Label) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("smulh x17, %s, %s; mul %s, %s, %s; cmp x17, %s, asr #63", name(d), name(s), name(d), name(d), name(s), name(d)), func() {
		a.encodeInstr(rrr(opSmulh, scratch, d, s))
		a.encodeInstr(opMadd | s<<16 | xzr<<10 | d<<5 | d)
		a.encodeInstr(opSubsReg | asrShift | d<<16 | 63<<10 | scratch<<5 | xzr)
	})
	a.Branch(masm.NotEqual, overflow)
}

// DivMod leaves the quotient in x0 and the remainder in x1
func (a *Assembler) DivMod(divisor masm.Reg) {
	if divisor == masm.R0 || divisor == masm.R1 {
		panic("arm64: DivMod divisor overlaps its results")
	}
	d := phys(divisor)
	a.emit(fmt.Sprintf("sdiv x17, x0, %s; msub x1, x17, %s, x0; mov x0, x17", name(d), name(d)), func() {
		a.encodeInstr(rrr(opSdiv, scratch, 0, d))
		a.encodeInstr(opMsub | d<<16 | 0<<10 | scratch<<5 | 1)
		a.mov(0, scratch)
	})
}

// Immediate shifts are bitfield moves
func (a *Assembler) ShlImm(dst masm.Reg, n uint8) {
	d := phys(dst)
	sh := uint32(n & 63)
	a.emit(fmt.Sprintf("lsl %s, %s, #%d", name(d), name(d), sh), func() {
		a.encodeInstr(opUbfm | ((64-sh)&63)<<16 | (63-sh)<<10 | d<<5 | d)
	})
}

func (a *Assembler) SarImm(dst masm.Reg, n uint8) {
	d := phys(dst)
	sh := uint32(n & 63)
	a.emit(fmt.Sprintf("asr %s, %s, #%d", name(d), name(d), sh), func() {
		a.encodeInstr(opSbfm | sh<<16 | 63<<10 | d<<5 | d)
	})
}

func (a *Assembler) ShrImm(dst masm.Reg, n uint8) {
	d := phys(dst)
	sh := uint32(n & 63)
	a.emit(fmt.Sprintf("lsr %s, %s, #%d", name(d), name(d), sh), func() {
		a.encodeInstr(opUbfm | sh<<16 | 63<<10 | d<<5 | d)
	})
}

func (a *Assembler) shift(mnemonic string, op uint32, dst, count masm.Reg) {
	if count != masm.R2 {
		panic("arm64: variable shift count must be in r2")
	}
	a.alu(mnemonic, op, dst, count)
}

func (a *Assembler) Shl(dst, count masm.Reg) { a.shift("lsl", opLslv, dst, count) }
func (a *Assembler) Sar(dst, count masm.Reg) { a.shift("asr", opAsrv, dst, count) }
func (a *Assembler) Shr(dst, count masm.Reg) { a.shift("lsr", opLsrv, dst, count) }

func (a *Assembler) Neg(dst masm.Reg) {
	d := phys(dst)
	a.emit(fmt.Sprintf("neg %s, %s", name(d), name(d)), func() { a.encodeInstr(rrr(opSubReg, d, xzr, d)) })
}

func (a *Assembler) Not(dst masm.Reg) {
	d := phys(dst)
	a.emit(fmt.Sprintf("mvn %s, %s", name(d), name(d)), func() { a.encodeInstr(rrr(opOrnReg, d, xzr, d)) })
}

func (a *Assembler) Cmp(x, y masm.Reg) {
	n, m := phys(x), phys(y)
	a.emit(fmt.Sprintf("cmp %s, %s", name(n), name(m)), func() { a.encodeInstr(rrr(opSubsReg, xzr, n, m)) })
}

func (a *Assembler) Test(x, y masm.Reg) {
	n, m := phys(x), phys(y)
	a.emit(fmt.Sprintf("tst %s, %s", name(n), name(m)), func() { a.encodeInstr(rrr(opAndsReg, xzr, n, m)) })
}

// CmpImm uses cmn for negative immediates, which sets the same flags for
// any nonzero value
func (a *Assembler) CmpImm(x masm.Reg, imm int32) {
	n := phys(x)
	a.emit(fmt.Sprintf("cmp %s, #%d", name(n), imm), func() {
		op, mag := uint32(opSubsImm), int64(imm)
		if imm < 0 {
			op, mag = opAddsImm, -int64(imm)
		}
		if instr, ok := addSubImm(op, xzr, n, uint32(mag)); ok {
			a.encodeInstr(instr)
			return
		}
		a.movImm(scratch, int64(imm))
		a.encodeInstr(rrr(opSubsReg, xzr, n, scratch))
	})
}

func (a *Assembler) TestImm(x masm.Reg, imm int32) {
	n := phys(x)
	a.emit(fmt.Sprintf("tst %s, #0x%x", name(n), uint64(int64(imm))), func() {
		if enc, ok := logicalImm(uint64(int64(imm))); ok {
			a.encodeInstr(logical(opAndsImm, xzr, n, enc))
			return
		}
		a.movImm(scratch, int64(imm))
		a.encodeInstr(rrr(opAndsReg, xzr, n, scratch))
	})
}

// CallRuntime passes the argument count in x0 and calls through the entry
// table that follows the roots
func (a *Assembler) CallRuntime(e rt.Entry, argc int) {
	a.emit(fmt.Sprintf("mov x0, #%d; ldr x17, [roots.%s]; blr x17", argc, e), func() {
		a.movImm(0, int64(argc))
		a.access(opLdur, opLdrUoff, opLdrReg, scratch, masm.MemAt(masm.Roots, e.Offset()))
		a.encodeInstr(opBLR | scratch<<5)
	})
}

func (a *Assembler) CallIC(k masm.ICKind) {
	a.emit("bl "+k.String(), func() {
		a.relocs = append(a.relocs, masm.Reloc{Kind: masm.RelocIC, Offset: a.PC(), IC: k})
		a.encodeInstr(opBL)
	})
}

func (a *Assembler) CallFunction(argc int) {
	code := masm.MemAt(masm.R1, rt.FieldOffset(rt.FunctionCodeIndex))
	a.emit(fmt.Sprintf("mov x0, #%d; ldr x17, %s; blr x17", argc, memText(code)), func() {
		a.movImm(0, int64(argc))
		a.access(opLdur, opLdrUoff, opLdrReg, scratch, code)
		a.encodeInstr(opBLR | scratch<<5)
	})
}

func (a *Assembler) PushLabelAddress(l *masm.Label) {
	a.emit(fmt.Sprintf("adr x17, %s; str x17, [x28, #-8]!", labelText(l)), func() {
		a.branchTo(opAdr|scratch, l)
		a.push(scratch)
	})
}

// EnterFrame pushes the caller's frame pointer and the return address as
// one pair, frame pointer lowest
func (a *Assembler) EnterFrame() {
	a.emit("stp x29, x30, [x28, #-16]!; mov x29, x28", func() {
		a.encodeInstr(opStpPre | enterImm7<<15 | lr<<10 | 28<<5 | 29)
		a.mov(29, 28)
	})
}

func (a *Assembler) LeaveFrame() {
	a.emit("mov x28, x29; ldp x29, x30, [x28], #16", func() {
		a.mov(28, 29)
		a.encodeInstr(opLdpPost | 2<<15 | lr<<10 | 28<<5 | 29)
	})
}

// Ret pops the receiver and arguments off x28 before returning through x30
func (a *Assembler) Ret(popBytes int) {
	if popBytes < 0 || popBytes > maxReturnPop {
		panic(fmt.Sprintf("arm64: cannot pop %d bytes on return", popBytes))
	}
	a.emit(fmt.Sprintf("add x28, x28, #%d; ret", popBytes), func() {
		a.encodeInstr(opAddImm | uint32(popBytes)<<10 | 28<<5 | 28)
		a.encodeInstr(opRet | lr<<5)
	})
}

func (a *Assembler) Nop() {
	a.emit("nop", func() { a.encodeInstr(opNop) })
}

func (a *Assembler) BreakSlot() {
	a.emit("nop ; break slot", func() { a.encodeInstr(opNop) })
}

func (a *Assembler) Trap() {
	a.emit("brk #0", func() { a.encodeInstr(opBrk) })
}

func (a *Assembler) Comment(format string, args ...any) {
	a.listing = append(a.listing, masm.Line{Offset: a.PC(), Text: fmt.Sprintf(format, args...)})
}

// Finish returns the code object once every label reference is resolved
func (a *Assembler) Finish(name string) (*masm.Code, error) {
	if a.pending != 0 {
		return nil, fmt.Errorf("arm64: %s has %d references to unbound labels", name, a.pending)
	}
	return &masm.Code{
		Arch:      engine.ArchARM64,
		Name:      name,
		Bytes:     a.buf,
		Relocs:    a.relocs,
		Constants: a.constants,
		Listing:   a.listing,
	}, nil
}

var _ masm.Assembler = (*Assembler)(nil)
