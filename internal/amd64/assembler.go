// Completion: 95% - x86-64 encoder for the shared register convention complete
package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

const (
	returnSequenceLength = 12
	breakSlotLength      = 5
	maxReturnPop         = 0xFFFF // ret imm16
)

// Assembler encodes the masm operations as x86-64 machine code. Positions
// are byte offsets. Branches to unbound labels always use rel32 so they
// can be patched in place on Bind.
type Assembler struct {
	buf       []byte
	relocs    []masm.Reloc
	constants []masm.Constant
	listing   []masm.Line
	pending   int
}

// New returns an empty x86-64 assembler
func New() *Assembler {
	return &Assembler{}
}

func (a *Assembler) Arch() engine.Arch { return engine.ArchX86_64 }

func (a *Assembler) Layout() masm.Layout {
	return masm.Layout{ReturnSequenceLength: returnSequenceLength, BreakSlotLength: breakSlotLength, MaxReturnPop: maxReturnPop}
}

func (a *Assembler) PC() int { return len(a.buf) }

func (a *Assembler) byte1(b byte) { a.buf = append(a.buf, b) }

func (a *Assembler) bytes(bs ...byte) { a.buf = append(a.buf, bs...) }

func (a *Assembler) imm32(v int32) {
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
}

func (a *Assembler) imm64(v int64) {
	a.buf = binary.LittleEndian.AppendUint64(a.buf, uint64(v))
}

// emit runs encode and lists what it wrote under text
func (a *Assembler) emit(text string, encode func()) {
	start := a.PC()
	encode()
	a.listing = append(a.listing, masm.Line{Offset: start, Size: a.PC() - start, Text: text})
	engine.Tracef("amd64: %06x  % x  %s\n", start, a.buf[start:], text)
}

// rel32 writes a 32-bit displacement to l, relative to the end of the field
func (a *Assembler) rel32(l *masm.Label) {
	site := a.PC()
	if l.Bound() {
		a.imm32(int32(l.Addr - (site + 4)))
		return
	}
	a.imm32(0)
	l.AddSite(site)
	a.pending++
}

func (a *Assembler) Bind(l *masm.Label) {
	if l.Bound() {
		panic(fmt.Sprintf("amd64: label bound twice (at %#x and %#x)", l.Addr, a.PC()))
	}
	pc := a.PC()
	for _, site := range l.Bind(pc) {
		binary.LittleEndian.PutUint32(a.buf[site:], uint32(int32(pc-(site+4))))
		a.pending--
	}
}

func (a *Assembler) Jump(l *masm.Label) {
	a.emit(fmt.Sprintf("jmp %s", labelText(l)), func() {
		if l.Bound() && fitsInt8(int64(l.Addr-(a.PC()+2))) {
			a.bytes(0xEB, uint8(int8(l.Addr-(a.PC()+2))))
			return
		}
		a.byte1(0xE9)
		a.rel32(l)
	})
}

func (a *Assembler) Branch(cc masm.Cond, l *masm.Label) {
	a.emit(fmt.Sprintf("j%s %s", condSuffix[cc], labelText(l)), func() {
		a.jcc(cc, l)
	})
}

func (a *Assembler) jcc(cc masm.Cond, l *masm.Label) {
	if l.Bound() && fitsInt8(int64(l.Addr-(a.PC()+2))) {
		a.bytes(0x70|condCodes[cc], uint8(int8(l.Addr-(a.PC()+2))))
		return
	}
	a.bytes(0x0F, 0x80|condCodes[cc])
	a.rel32(l)
}

func labelText(l *masm.Label) string {
	if l.Bound() {
		return fmt.Sprintf("0x%x", l.Addr)
	}
	return "<fwd>"
}

func (a *Assembler) Mov(dst, src masm.Reg) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("mov %s, %s", name(d), name(s)), func() {
		a.rr([]byte{0x89}, s, d)
	})
}

func (a *Assembler) MovImm(dst masm.Reg, imm int64) {
	d := phys(dst)
	a.emit(fmt.Sprintf("mov %s, 0x%x", name(d), uint64(imm)), func() {
		a.movImm(d, imm)
	})
}

// LoadConstant emits movabs with a zero payload and records the site
func (a *Assembler) LoadConstant(dst masm.Reg, c masm.Constant) {
	d := phys(dst)
	a.constants = append(a.constants, c)
	index := len(a.constants) - 1
	a.emit(fmt.Sprintf("movabs %s, %s", name(d), c), func() {
		a.relocs = append(a.relocs, masm.Reloc{Kind: masm.RelocConstant, Offset: a.PC(), Index: index})
		a.rexW(0, 0, d)
		a.byte1(0xB8 + d&7)
		a.imm64(0)
	})
}

func (a *Assembler) Load(dst masm.Reg, m masm.Mem) {
	d := phys(dst)
	a.emit(fmt.Sprintf("mov %s, %s", name(d), memText(m)), func() {
		a.mem([]byte{0x8B}, d, m)
	})
}

func (a *Assembler) Store(m masm.Mem, src masm.Reg) {
	s := phys(src)
	a.emit(fmt.Sprintf("mov %s, %s", memText(m), name(s)), func() {
		a.mem([]byte{0x89}, s, m)
	})
}

func (a *Assembler) Lea(dst masm.Reg, m masm.Mem) {
	d := phys(dst)
	a.emit(fmt.Sprintf("lea %s, %s", name(d), memText(m)), func() {
		a.mem([]byte{0x8D}, d, m)
	})
}

func rootMem(r rt.Root) masm.Mem {
	return masm.MemAt(masm.Roots, r.Offset())
}

func (a *Assembler) LoadRoot(dst masm.Reg, r rt.Root) {
	d := phys(dst)
	a.emit(fmt.Sprintf("mov %s, [roots.%s]", name(d), r), func() {
		a.mem([]byte{0x8B}, d, rootMem(r))
	})
}

func (a *Assembler) StoreRoot(r rt.Root, src masm.Reg) {
	s := phys(src)
	a.emit(fmt.Sprintf("mov [roots.%s], %s", r, name(s)), func() {
		a.mem([]byte{0x89}, s, rootMem(r))
	})
}

func (a *Assembler) CompareRoot(reg masm.Reg, r rt.Root) {
	x := phys(reg)
	a.emit(fmt.Sprintf("cmp %s, [roots.%s]", name(x), r), func() {
		a.mem([]byte{0x3B}, x, rootMem(r))
	})
}

func (a *Assembler) Push(src masm.Reg) {
	s := phys(src)
	a.emit("push "+name(s), func() { a.push(s) })
}

func (a *Assembler) Pop(dst masm.Reg) {
	d := phys(dst)
	a.emit("pop "+name(d), func() { a.pop(d) })
}

// Drop moves rsp with lea so the flags survive
func (a *Assembler) Drop(cells int) {
	if cells == 0 {
		return
	}
	m := masm.MemAt(masm.SP, int32(cells*rt.WordSize))
	a.emit(fmt.Sprintf("lea rsp, %s", memText(m)), func() {
		a.mem([]byte{0x8D}, rsp, m)
	})
}

func (a *Assembler) alu(mnemonic string, op byte, dst, src masm.Reg) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("%s %s, %s", mnemonic, name(d), name(s)), func() {
		a.rr([]byte{op}, s, d)
	})
}

func (a *Assembler) aluImm(mnemonic string, digit uint8, dst masm.Reg, imm int32) {
	d := phys(dst)
	a.emit(fmt.Sprintf("%s %s, %d", mnemonic, name(d), imm), func() {
		a.group1(digit, d, imm)
	})
}

func (a *Assembler) Add(dst, src masm.Reg) { a.alu("add", 0x01, dst, src) }
func (a *Assembler) Sub(dst, src masm.Reg) { a.alu("sub", 0x29, dst, src) }
func (a *Assembler) And(dst, src masm.Reg) { a.alu("and", 0x21, dst, src) }
func (a *Assembler) Or(dst, src masm.Reg)  { a.alu("or", 0x09, dst, src) }
func (a *Assembler) Xor(dst, src masm.Reg) { a.alu("xor", 0x31, dst, src) }
func (a *Assembler) Cmp(x, y masm.Reg)     { a.alu("cmp", 0x39, x, y) }
func (a *Assembler) Test(x, y masm.Reg)    { a.alu("test", 0x85, x, y) }

func (a *Assembler) AddImm(dst masm.Reg, imm int32) { a.aluImm("add", 0, dst, imm) }
func (a *Assembler) SubImm(dst masm.Reg, imm int32) { a.aluImm("sub", 5, dst, imm) }
func (a *Assembler) AndImm(dst masm.Reg, imm int32) { a.aluImm("and", 4, dst, imm) }
func (a *Assembler) CmpImm(x masm.Reg, imm int32)   { a.aluImm("cmp", 7, x, imm) }

// TestImm has no sign-extended byte form
func (a *Assembler) TestImm(x masm.Reg, imm int32) {
	r := phys(x)
	a.emit(fmt.Sprintf("test %s, 0x%x", name(r), imm), func() {
		a.ext([]byte{0xF7}, 0, r)
		a.imm32(imm)
	})
}

func (a *Assembler) Mul(dst, src masm.Reg) {
	d, s := phys(dst), phys(src)
	a.emit(fmt.Sprintf("imul %s, %s", name(d), name(s)), func() {
		a.rr([]byte{0x0F, 0xAF}, d, s)
	})
}

func (a *Assembler) AddOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.Add(dst, src)
	a.Branch(masm.Overflow, overflow)
}

func (a *Assembler) SubOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.Sub(dst, src)
	a.Branch(masm.Overflow, overflow)
}

// MulOverflow relies on imul setting OF when the signed product does not
// fit 64 bits
func (a *Assembler) MulOverflow(dst, src masm.Reg, overflow *masm.Label) {
	a.Mul(dst, src)
	a.Branch(masm.Overflow, overflow)
}

// DivMod sign-extends rax into rdx and divides, which leaves the
// remainder in rdx, the machine register of R1
func (a *Assembler) DivMod(divisor masm.Reg) {
	if divisor == masm.R0 || divisor == masm.R1 {
		panic("amd64: DivMod divisor overlaps its results")
	}
	d := phys(divisor)
	a.emit("cqo; idiv "+name(d), func() {
		a.bytes(0x48, 0x99)
		a.ext([]byte{0xF7}, 7, d)
	})
}

func (a *Assembler) shiftImm(mnemonic string, digit uint8, dst masm.Reg, n uint8) {
	d := phys(dst)
	a.emit(fmt.Sprintf("%s %s, %d", mnemonic, name(d), n), func() {
		a.ext([]byte{0xC1}, digit, d)
		a.byte1(n & 63)
	})
}

func (a *Assembler) ShlImm(dst masm.Reg, n uint8) { a.shiftImm("shl", 4, dst, n) }
func (a *Assembler) SarImm(dst masm.Reg, n uint8) { a.shiftImm("sar", 7, dst, n) }
func (a *Assembler) ShrImm(dst masm.Reg, n uint8) { a.shiftImm("shr", 5, dst, n) }

// shift takes its count in cl, which is R2
func (a *Assembler) shift(mnemonic string, digit uint8, dst, count masm.Reg) {
	if count != masm.R2 {
		panic("amd64: variable shift count must be in r2")
	}
	d := phys(dst)
	a.emit(fmt.Sprintf("%s %s, cl", mnemonic, name(d)), func() {
		a.ext([]byte{0xD3}, digit, d)
	})
}

func (a *Assembler) Shl(dst, count masm.Reg) { a.shift("shl", 4, dst, count) }
func (a *Assembler) Sar(dst, count masm.Reg) { a.shift("sar", 7, dst, count) }
func (a *Assembler) Shr(dst, count masm.Reg) { a.shift("shr", 5, dst, count) }

func (a *Assembler) Neg(dst masm.Reg) {
	d := phys(dst)
	a.emit("neg "+name(d), func() { a.ext([]byte{0xF7}, 3, d) })
}

func (a *Assembler) Not(dst masm.Reg) {
	d := phys(dst)
	a.emit("not "+name(d), func() { a.ext([]byte{0xF7}, 2, d) })
}

// CallRuntime loads the argument count into eax and calls through the
// entry table that follows the roots
func (a *Assembler) CallRuntime(e rt.Entry, argc int) {
	a.emit(fmt.Sprintf("mov eax, %d; call [roots.%s]", argc, e), func() {
		a.movImm(rax, int64(argc))
		m := masm.MemAt(masm.Roots, e.Offset())
		a.mem([]byte{0xFF}, 2, m)
	})
}

// CallIC calls the stub with a rel32 the runtime patches on install
func (a *Assembler) CallIC(k masm.ICKind) {
	a.emit("call "+k.String(), func() {
		a.relocs = append(a.relocs, masm.Reloc{Kind: masm.RelocIC, Offset: a.PC(), IC: k})
		a.byte1(0xE8)
		a.imm32(0)
	})
}

func (a *Assembler) CallFunction(argc int) {
	code := masm.MemAt(masm.R1, rt.FieldOffset(rt.FunctionCodeIndex))
	a.emit(fmt.Sprintf("mov eax, %d; call %s", argc, memText(code)), func() {
		a.movImm(rax, int64(argc))
		a.mem([]byte{0xFF}, 2, code)
	})
}

// PushLabelAddress goes through the encoder scratch register since push
// has no rip-relative form
func (a *Assembler) PushLabelAddress(l *masm.Label) {
	a.emit(fmt.Sprintf("lea %s, [rip+%s]; push %s", name(scratch), labelText(l), name(scratch)), func() {
		a.bytes(0x4C, 0x8D, 0x1D) // REX.W|REX.R lea r11, [rip+rel32]
		a.rel32(l)
		a.push(scratch)
	})
}

func (a *Assembler) EnterFrame() {
	a.emit("push rbp; mov rbp, rsp", func() {
		a.push(rbp)
		a.rr([]byte{0x89}, rsp, rbp)
	})
}

func (a *Assembler) LeaveFrame() {
	a.emit("mov rsp, rbp; pop rbp", func() {
		a.rr([]byte{0x89}, rbp, rsp)
		a.pop(rbp)
	})
}

// Ret always uses the imm16 form so the return sequence keeps its length
func (a *Assembler) Ret(popBytes int) {
	if popBytes < 0 || popBytes > maxReturnPop {
		panic(fmt.Sprintf("amd64: cannot pop %d bytes on return", popBytes))
	}
	a.emit(fmt.Sprintf("ret %d", popBytes), func() {
		a.byte1(0xC2)
		a.bytes(uint8(popBytes), uint8(popBytes>>8))
	})
}

func (a *Assembler) Nop() {
	a.emit("nop", func() { a.byte1(0x90) })
}

// BreakSlot is a five byte nop, wide enough to be patched into a call
func (a *Assembler) BreakSlot() {
	a.emit("nop5 ; break slot", func() { a.bytes(0x0F, 0x1F, 0x44, 0x00, 0x00) })
}

func (a *Assembler) Trap() {
	a.emit("int3", func() { a.byte1(0xCC) })
}

func (a *Assembler) Comment(format string, args ...any) {
	a.listing = append(a.listing, masm.Line{Offset: a.PC(), Text: fmt.Sprintf(format, args...)})
}

// Finish returns the code object once every label reference is resolved
func (a *Assembler) Finish(name string) (*masm.Code, error) {
	if a.pending != 0 {
		return nil, fmt.Errorf("amd64: %s has %d references to unbound labels", name, a.pending)
	}
	return &masm.Code{
		Arch:      engine.ArchX86_64,
		Name:      name,
		Bytes:     a.buf,
		Relocs:    a.relocs,
		Constants: a.constants,
		Listing:   a.listing,
	}, nil
}

var _ masm.Assembler = (*Assembler)(nil)
