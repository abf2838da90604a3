package amd64

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xyproto/fullgen/internal/codegen"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
	"github.com/xyproto/fullgen/internal/syntax"
)

func encode(f func(a *Assembler)) []byte {
	a := New()
	f(a)
	return a.buf
}

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(a *Assembler)
		want []byte
	}{
		{"mov rax, rdx", func(a *Assembler) { a.Mov(masm.R0, masm.R1) }, []byte{0x48, 0x89, 0xD0}},
		{"mov rdx, rax", func(a *Assembler) { a.Mov(masm.R1, masm.R0) }, []byte{0x48, 0x89, 0xC2}},
		{"mov r10, rdx", func(a *Assembler) { a.Mov(masm.Tmp, masm.R1) }, []byte{0x49, 0x89, 0xD2}},
		{"mov eax, 5", func(a *Assembler) { a.MovImm(masm.R0, 5) }, []byte{0xB8, 0x05, 0x00, 0x00, 0x00}},
		{"mov rax, -1", func(a *Assembler) { a.MovImm(masm.R0, -1) }, []byte{0x48, 0xC7, 0xC0, 0xFF, 0xFF, 0xFF, 0xFF}},
		{"movabs r10, smi 1", func(a *Assembler) { a.MovImm(masm.Tmp, rt.SmiWord(1)) },
			[]byte{0x49, 0xBA, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00}},
		{"mov rax, [rbp-16]", func(a *Assembler) { a.Load(masm.R0, masm.MemAt(masm.FP, -16)) }, []byte{0x48, 0x8B, 0x45, 0xF0}},
		{"mov [rsp], rcx", func(a *Assembler) { a.Store(masm.MemAt(masm.SP, 0), masm.R2) }, []byte{0x48, 0x89, 0x0C, 0x24}},
		{"mov rbx, [rcx+rbx+15]", func(a *Assembler) { a.Load(masm.R3, masm.MemIndexed(masm.R2, masm.R3, 15)) },
			[]byte{0x48, 0x8B, 0x5C, 0x19, 0x0F}},
		{"mov rsi, [rdx+0x200]", func(a *Assembler) { a.Load(masm.CP, masm.MemAt(masm.R1, 0x200)) },
			[]byte{0x48, 0x8B, 0xB2, 0x00, 0x02, 0x00, 0x00}},
		{"lea rsp, [rbp-48]", func(a *Assembler) { a.Lea(masm.SP, masm.MemAt(masm.FP, -48)) }, []byte{0x48, 0x8D, 0x65, 0xD0}},
		{"mov rcx, [r13+0x20]", func(a *Assembler) { a.LoadRoot(masm.R2, rt.RootHole) }, []byte{0x49, 0x8B, 0x4D, 0x20}},
		{"mov [r13+0x30], rax", func(a *Assembler) { a.StoreRoot(rt.RootHandler, masm.R0) }, []byte{0x49, 0x89, 0x45, 0x30}},
		{"cmp rsp, [r13+0x38]", func(a *Assembler) { a.CompareRoot(masm.SP, rt.RootStackLimit) }, []byte{0x49, 0x3B, 0x65, 0x38}},
		{"push rax", func(a *Assembler) { a.Push(masm.R0) }, []byte{0x50}},
		{"push r13", func(a *Assembler) { a.Push(masm.Roots) }, []byte{0x41, 0x55}},
		{"pop rdi", func(a *Assembler) { a.Pop(masm.PP) }, []byte{0x5F}},
		{"drop 2", func(a *Assembler) { a.Drop(2) }, []byte{0x48, 0x8D, 0x64, 0x24, 0x10}},
		{"drop 0", func(a *Assembler) { a.Drop(0) }, nil},
		{"add rax, rdx", func(a *Assembler) { a.Add(masm.R0, masm.R1) }, []byte{0x48, 0x01, 0xD0}},
		{"sub rax, rdx", func(a *Assembler) { a.Sub(masm.R0, masm.R1) }, []byte{0x48, 0x29, 0xD0}},
		{"xor rax, rdx", func(a *Assembler) { a.Xor(masm.R0, masm.R1) }, []byte{0x48, 0x31, 0xD0}},
		{"add rax, 8", func(a *Assembler) { a.AddImm(masm.R0, 8) }, []byte{0x48, 0x83, 0xC0, 0x08}},
		{"add rax, 1000", func(a *Assembler) { a.AddImm(masm.R0, 1000) }, []byte{0x48, 0x81, 0xC0, 0xE8, 0x03, 0x00, 0x00}},
		{"and rcx, -2", func(a *Assembler) { a.AndImm(masm.R2, -2) }, []byte{0x48, 0x83, 0xE1, 0xFE}},
		{"cmp rax, 0", func(a *Assembler) { a.CmpImm(masm.R0, 0) }, []byte{0x48, 0x83, 0xF8, 0x00}},
		{"test rax, 1", func(a *Assembler) { a.TestImm(masm.R0, 1) }, []byte{0x48, 0xF7, 0xC0, 0x01, 0x00, 0x00, 0x00}},
		{"test r10, rax", func(a *Assembler) { a.Test(masm.Tmp, masm.R0) }, []byte{0x49, 0x85, 0xC2}},
		{"imul rax, rdx", func(a *Assembler) { a.Mul(masm.R0, masm.R1) }, []byte{0x48, 0x0F, 0xAF, 0xC2}},
		{"cqo; idiv rbx", func(a *Assembler) { a.DivMod(masm.R3) }, []byte{0x48, 0x99, 0x48, 0xF7, 0xFB}},
		{"shl rax, 32", func(a *Assembler) { a.ShlImm(masm.R0, 32) }, []byte{0x48, 0xC1, 0xE0, 0x20}},
		{"sar rax, 32", func(a *Assembler) { a.SarImm(masm.R0, 32) }, []byte{0x48, 0xC1, 0xF8, 0x20}},
		{"shr rax, cl", func(a *Assembler) { a.Shr(masm.R0, masm.R2) }, []byte{0x48, 0xD3, 0xE8}},
		{"neg rax", func(a *Assembler) { a.Neg(masm.R0) }, []byte{0x48, 0xF7, 0xD8}},
		{"not rax", func(a *Assembler) { a.Not(masm.R0) }, []byte{0x48, 0xF7, 0xD0}},
		{"enter", func(a *Assembler) { a.EnterFrame() }, []byte{0x55, 0x48, 0x89, 0xE5}},
		{"leave", func(a *Assembler) { a.LeaveFrame() }, []byte{0x48, 0x89, 0xEC, 0x5D}},
		{"ret 24", func(a *Assembler) { a.Ret(24) }, []byte{0xC2, 0x18, 0x00}},
		{"call function", func(a *Assembler) { a.CallFunction(2) },
			[]byte{0xB8, 0x02, 0x00, 0x00, 0x00, 0x48, 0xFF, 0x52, 0x17}},
		{"call ToBoolean", func(a *Assembler) { a.CallRuntime(rt.ToBoolean, 1) },
			[]byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0x49, 0xFF, 0x55, 0x48}},
		{"break slot", func(a *Assembler) { a.BreakSlot() }, []byte{0x0F, 0x1F, 0x44, 0x00, 0x00}},
		{"int3", func(a *Assembler) { a.Trap() }, []byte{0xCC}},
	}
	for _, tt := range tests {
		if got := encode(tt.emit); !bytes.Equal(got, tt.want) {
			t.Errorf("%s: got % x, want % x", tt.name, got, tt.want)
		}
	}
}

func TestLabelFixups(t *testing.T) {
	forward := encode(func(a *Assembler) {
		var l masm.Label
		a.Jump(&l)
		a.Nop()
		a.Bind(&l)
	})
	if want := []byte{0xE9, 0x01, 0x00, 0x00, 0x00, 0x90}; !bytes.Equal(forward, want) {
		t.Errorf("forward jump: got % x, want % x", forward, want)
	}

	backward := encode(func(a *Assembler) {
		var l masm.Label
		a.Bind(&l)
		a.Nop()
		a.Branch(masm.NotEqual, &l)
	})
	if want := []byte{0x90, 0x75, 0xFD}; !bytes.Equal(backward, want) {
		t.Errorf("backward branch: got % x, want % x", backward, want)
	}

	far := encode(func(a *Assembler) {
		var l masm.Label
		a.Branch(masm.Below, &l)
		a.Bind(&l)
	})
	if want := []byte{0x0F, 0x82, 0x00, 0x00, 0x00, 0x00}; !bytes.Equal(far, want) {
		t.Errorf("forward branch: got % x, want % x", far, want)
	}

	pushed := encode(func(a *Assembler) {
		var l masm.Label
		a.PushLabelAddress(&l)
		a.Bind(&l)
	})
	// the displacement counts from the end of the lea
	if want := []byte{0x4C, 0x8D, 0x1D, 0x02, 0x00, 0x00, 0x00, 0x41, 0x53}; !bytes.Equal(pushed, want) {
		t.Errorf("label address: got % x, want % x", pushed, want)
	}
}

func TestUnboundLabelFails(t *testing.T) {
	a := New()
	var l masm.Label
	a.Jump(&l)
	if _, err := a.Finish("dangling"); err == nil {
		t.Fatal("Finish accepted an unbound label")
	}
}

func TestRelocations(t *testing.T) {
	a := New()
	a.Nop()
	a.LoadConstant(masm.R0, masm.StringConst("x"))
	a.CallIC(masm.StoreIC)
	c, err := a.Finish("relocs")
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Relocs) != 2 || len(c.Constants) != 1 {
		t.Fatalf("%d relocs and %d constants", len(c.Relocs), len(c.Constants))
	}
	if r := c.Relocs[0]; r.Kind != masm.RelocConstant || r.Offset != 1 || r.Index != 0 {
		t.Errorf("constant reloc %+v", r)
	}
	if r := c.Relocs[1]; r.Kind != masm.RelocIC || r.Offset != 11 || r.IC != masm.StoreIC {
		t.Errorf("ic reloc %+v", r)
	}
	if c.Bytes[1] != 0x48 || c.Bytes[2] != 0xB8 || c.Bytes[11] != 0xE8 {
		t.Errorf("unexpected encoding % x", c.Bytes)
	}
}

func TestFlagsSurviveMoves(t *testing.T) {
	// lea and mov leave the flags alone, add would not
	code := encode(func(a *Assembler) {
		a.Drop(1)
		a.MovImm(masm.R0, 0)
	})
	if code[0] != 0x48 || code[1] != 0x8D {
		t.Errorf("drop encoded as % x, want lea", code)
	}
	if code[5] == 0x31 || code[5] == 0x33 {
		t.Error("zeroing with xor clobbers the flags")
	}
}

func TestGeneratedFunction(t *testing.T) {
	fn, err := syntax.ParseScript("f.js", "function f(a) { var s = 0; for (var i = 0; i < a; i++) { s += i; } return s; }")
	if err != nil {
		t.Fatal(err)
	}
	if err := syntax.Resolve(fn); err != nil {
		t.Fatal(err)
	}
	a := New()
	if err := codegen.Generate(fn.Literals[0], a, codegen.Options{BreakSlots: true}); err != nil {
		t.Fatal(err)
	}
	c, err := a.Finish("f")
	if err != nil {
		t.Fatal(err)
	}
	// the return sequence: mov rdi, [rbp-8]; leave; ret 16; nop
	seq := []byte{0x48, 0x8B, 0x7D, 0xF8, 0x48, 0x89, 0xEC, 0x5D, 0xC2, 0x10, 0x00, 0x90}
	if !bytes.Contains(c.Bytes, seq) {
		t.Error("return sequence not found")
	}
	var buf bytes.Buffer
	if err := c.WriteListing(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "return sequence") || !strings.Contains(buf.String(), "break slot") {
		t.Errorf("listing lacks markers:\n%s", buf.String())
	}
	total := 0
	for _, line := range c.Listing {
		total += line.Size
	}
	if total != len(c.Bytes) {
		t.Errorf("listing covers %d of %d bytes", total, len(c.Bytes))
	}
}
