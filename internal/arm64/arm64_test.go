package arm64

import (
	"bytes"
	"encoding/binary"
	"slices"
	"testing"

	"github.com/xyproto/fullgen/internal/codegen"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
	"github.com/xyproto/fullgen/internal/syntax"
)

// words runs f on a fresh assembler and decodes the instruction words
func words(f func(a *Assembler)) []uint32 {
	a := New()
	f(a)
	out := make([]uint32, 0, len(a.buf)/4)
	for i := 0; i+4 <= len(a.buf); i += 4 {
		out = append(out, binary.LittleEndian.Uint32(a.buf[i:]))
	}
	return out
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want []uint32
	}{
		{"mov x0, x1", func(a *Assembler) { a.Mov(masm.R0, masm.R1) }, []uint32{0xAA0103E0}},
		{"mov x0, #5", func(a *Assembler) { a.MovImm(masm.R0, 5) }, []uint32{0xD28000A0}},
		{"mov x0, #-5", func(a *Assembler) { a.MovImm(masm.R0, -5) }, []uint32{0x92800080}},
		{"mov x0, smi 1", func(a *Assembler) { a.MovImm(masm.R0, rt.SmiWord(1)) }, []uint32{0xD2C00020}},
		{"ldur x0, [x29, #-16]", func(a *Assembler) { a.Load(masm.R0, masm.MemAt(masm.FP, -16)) }, []uint32{0xF85F03A0}},
		{"ldur x27, [x1, #15]", func(a *Assembler) { a.Load(masm.CP, masm.MemAt(masm.R1, 15)) }, []uint32{0xF840F03B}},
		{"str x2, [x28]", func(a *Assembler) { a.Store(masm.MemAt(masm.SP, 0), masm.R2) }, []uint32{0xF9000382}},
		{"ldr x2, [x25, #32]", func(a *Assembler) { a.LoadRoot(masm.R2, rt.RootHole) }, []uint32{0xF9401322}},
		{"cmp x28, stack limit", func(a *Assembler) { a.CompareRoot(masm.SP, rt.RootStackLimit) },
			[]uint32{0xF9401F31, 0xEB11039F}},
		{"push x0", func(a *Assembler) { a.Push(masm.R0) }, []uint32{0xF81F8F80}},
		{"pop x26", func(a *Assembler) { a.Pop(masm.PP) }, []uint32{0xF840879A}},
		{"drop 2", func(a *Assembler) { a.Drop(2) }, []uint32{0x9100439C}},
		{"add x0, x0, x1", func(a *Assembler) { a.Add(masm.R0, masm.R1) }, []uint32{0x8B010000}},
		{"sub x0, x0, x1", func(a *Assembler) { a.Sub(masm.R0, masm.R1) }, []uint32{0xCB010000}},
		{"add x0, x0, #8", func(a *Assembler) { a.AddImm(masm.R0, 8) }, []uint32{0x91002000}},
		{"sub x0, x0, #8", func(a *Assembler) { a.SubImm(masm.R0, 8) }, []uint32{0xD1002000}},
		{"add x0, x0, #5000", func(a *Assembler) { a.AddImm(masm.R0, 5000) }, []uint32{0xD2827111, 0x8B110000}},
		{"and x0, x0, #1", func(a *Assembler) { a.AndImm(masm.R0, 1) }, []uint32{0x92400000}},
		{"and x2, x2, #-2", func(a *Assembler) { a.AndImm(masm.R2, -2) }, []uint32{0x927FF842}},
		{"cmp x0, #0", func(a *Assembler) { a.CmpImm(masm.R0, 0) }, []uint32{0xF100001F}},
		{"cmn x0, #1", func(a *Assembler) { a.CmpImm(masm.R0, -1) }, []uint32{0xB100041F}},
		{"tst x0, #1", func(a *Assembler) { a.TestImm(masm.R0, 1) }, []uint32{0xF240001F}},
		{"cmp x0, x1", func(a *Assembler) { a.Cmp(masm.R0, masm.R1) }, []uint32{0xEB01001F}},
		{"tst x0, x1", func(a *Assembler) { a.Test(masm.R0, masm.R1) }, []uint32{0xEA01001F}},
		{"mul x0, x0, x1", func(a *Assembler) { a.Mul(masm.R0, masm.R1) }, []uint32{0x9B017C00}},
		{"lsl x0, x0, #32", func(a *Assembler) { a.ShlImm(masm.R0, 32) }, []uint32{0xD3607C00}},
		{"asr x0, x0, #32", func(a *Assembler) { a.SarImm(masm.R0, 32) }, []uint32{0x9360FC00}},
		{"lsr x0, x0, x2", func(a *Assembler) { a.Shr(masm.R0, masm.R2) }, []uint32{0x9AC22400}},
		{"neg x0, x0", func(a *Assembler) { a.Neg(masm.R0) }, []uint32{0xCB0003E0}},
		{"mvn x0, x0", func(a *Assembler) { a.Not(masm.R0) }, []uint32{0xAA2003E0}},
		{"divmod x3", func(a *Assembler) { a.DivMod(masm.R3) }, []uint32{0x9AC30C11, 0x9B038221, 0xAA1103E0}},
		{"enter", func(a *Assembler) { a.EnterFrame() }, []uint32{0xA9BF7B9D, 0xAA1C03FD}},
		{"leave", func(a *Assembler) { a.LeaveFrame() }, []uint32{0xAA1D03FC, 0xA8C17B9D}},
		{"ret 16", func(a *Assembler) { a.Ret(16) }, []uint32{0x9100439C, 0xD65F03C0}},
		{"call function", func(a *Assembler) { a.CallFunction(2) }, []uint32{0xD2800040, 0xF8417031, 0xD63F0220}},
		{"call ToBoolean", func(a *Assembler) { a.CallRuntime(rt.ToBoolean, 1) }, []uint32{0xD2800020, 0xF9402731, 0xD63F0220}},
		{"brk", func(a *Assembler) { a.Trap() }, []uint32{0xD4200000}},
		{"break slot", func(a *Assembler) { a.BreakSlot() }, []uint32{0xD503201F}},
	}
	for _, tt := range tests {
		if got := words(tt.emit); !slices.Equal(got, tt.want) {
			t.Errorf("%s: got %08x, want %08x", tt.name, got, tt.want)
		}
	}
}

func TestLogicalImmediates(t *testing.T) {
	tests := []struct {
		v   uint64
		enc uint32
		ok  bool
	}{
		{1, 0x1000, true},
		{0xFF, 0x1007, true},
		{0x5555555555555555, 0x03C, true},
		{0x8000000000000001, 0x1041, true},
		{0xFFFFFFFFFFFFFFFE, 0x1FFE, true},
		{0, 0, false},
		{^uint64(0), 0, false},
		{5, 0, false},
	}
	for _, tt := range tests {
		enc, ok := logicalImm(tt.v)
		if ok != tt.ok || (ok && enc != tt.enc) {
			t.Errorf("%#x: got %#x %v, want %#x %v", tt.v, enc, ok, tt.enc, tt.ok)
		}
	}
}

func TestLabelFixups(t *testing.T) {
	forward := words(func(a *Assembler) {
		var l masm.Label
		a.Jump(&l)
		a.Nop()
		a.Bind(&l)
	})
	if want := []uint32{0x14000002, 0xD503201F}; !slices.Equal(forward, want) {
		t.Errorf("forward jump: got %08x", forward)
	}

	backward := words(func(a *Assembler) {
		var l masm.Label
		a.Bind(&l)
		a.Nop()
		a.Branch(masm.NotEqual, &l)
	})
	if backward[1] != 0x54FFFFE1 {
		t.Errorf("backward branch: got %08x", backward[1])
	}

	adr := words(func(a *Assembler) {
		var l masm.Label
		a.PushLabelAddress(&l)
		a.Bind(&l)
	})
	if want := []uint32{0x10000051, 0xF81F8F91}; !slices.Equal(adr, want) {
		t.Errorf("label address: got %08x", adr)
	}

	a := New()
	var l masm.Label
	a.Branch(masm.Overflow, &l)
	if _, err := a.Finish("dangling"); err == nil {
		t.Error("Finish accepted an unbound label")
	}
}

func TestConstantSites(t *testing.T) {
	a := New()
	a.LoadConstant(masm.R2, masm.NumberConst(0.5))
	a.CallIC(masm.LoadIC)
	c, err := a.Finish("consts")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Bytes) != 20 {
		t.Fatalf("%d bytes, want a four word constant and a call", len(c.Bytes))
	}
	if c.Relocs[0].Kind != masm.RelocConstant || c.Relocs[0].Offset != 0 {
		t.Errorf("constant reloc %+v", c.Relocs[0])
	}
	if c.Relocs[1].Kind != masm.RelocIC || c.Relocs[1].Offset != 16 || c.Relocs[1].IC != masm.LoadIC {
		t.Errorf("ic reloc %+v", c.Relocs[1])
	}
}

func TestGeneratedFunction(t *testing.T) {
	fn, err := syntax.ParseScript("f.js", "function f(a) { try { return a * 2; } finally { a = 0; } }")
	if err != nil {
		t.Fatal(err)
	}
	if err := syntax.Resolve(fn); err != nil {
		t.Fatal(err)
	}
	a := New()
	if err := codegen.Generate(fn.Literals[0], a, codegen.Options{}); err != nil {
		t.Fatal(err)
	}
	c, err := a.Finish("f")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Bytes)%4 != 0 {
		t.Fatalf("%d bytes is not a whole number of instructions", len(c.Bytes))
	}
	var seq []byte
	for _, w := range []uint32{0xF85F83BA, 0xAA1D03FC, 0xA8C17B9D, 0x9100439C, 0xD65F03C0, 0xD503201F} {
		seq = binary.LittleEndian.AppendUint32(seq, w)
	}
	if !bytes.Contains(c.Bytes, seq) {
		t.Error("return sequence not found")
	}
}
