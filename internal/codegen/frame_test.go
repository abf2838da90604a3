package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
	"github.com/xyproto/fullgen/internal/sim"
	"github.com/xyproto/fullgen/internal/syntax"
)

// bareGenerator is a generator over an empty script, for driving the
// frame and target machinery directly
func bareGenerator() (*Generator, *sim.Assembler) {
	a := sim.New()
	fn := &ast.Function{IsScript: true, Scope: &ast.Scope{}}
	return &Generator{
		asm:   a,
		fn:    fn,
		scope: fn.Scope,
		opts:  Options{MaxDepth: DefaultMaxDepth},
		frame: newFrame(a, 0, 0),
	}, a
}

// catchBailout runs f and returns the compile error it aborts with
func catchBailout(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
	}()
	f()
	return nil
}

func TestFrameSlots(t *testing.T) {
	g, _ := bareGenerator()
	f := newFrame(g.asm, 2, 3)
	checks := []struct {
		got  masm.Mem
		base masm.Reg
		disp int32
	}{
		{f.Receiver(), masm.PP, 0},
		{f.ParameterSlot(0), masm.PP, -8},
		{f.ParameterSlot(1), masm.PP, -16},
		{f.ContextMem(), masm.FP, -16},
		{f.FunctionMem(), masm.FP, -24},
		{f.LocalSlot(0), masm.FP, -32},
		{f.LocalSlot(2), masm.FP, -48},
		{f.StackPointerAt(0), masm.FP, -48},
		{f.StackPointerAt(2), masm.FP, -64},
	}
	for i, c := range checks {
		if c.got.Base != c.base || c.got.Disp != c.disp {
			t.Errorf("check %d: got %s, want [%s%+d]", i, c.got, c.base, c.disp)
		}
	}
	if rt.ParameterPointerOffset(2) != 32 {
		t.Errorf("PP is FP%+d for two parameters", rt.ParameterPointerOffset(2))
	}
}

func TestFrameDepthTracking(t *testing.T) {
	g, a := bareGenerator()
	f := g.frame
	f.Push(masm.R0)
	f.Push(masm.R1)
	f.Drop(0)
	if f.Depth() != 2 || f.Height() != rt.FixedSlotCount+2 {
		t.Fatalf("depth %d height %d", f.Depth(), f.Height())
	}
	f.Adjust(-1)
	f.Pop(masm.R0)
	if f.Depth() != 0 || f.underflow {
		t.Fatalf("depth %d after balanced traffic", f.Depth())
	}
	f.Drop(1)
	if !f.underflow {
		t.Error("dropping below zero was not noticed")
	}
	if n := a.PC(); n != 4 {
		t.Errorf("emitted %d instructions, want 4", n)
	}
}

func TestMergeDepthMismatch(t *testing.T) {
	g, _ := bareGenerator()
	err := catchBailout(func() {
		target := g.newTargetAt("join", 0)
		g.frame.Push(masm.R0)
		g.bind(target)
	})
	var ce engine.CompilerError
	if !errors.As(err, &ce) || ce.Level != engine.LevelFatal || !strings.Contains(ce.Message, "merge at join") {
		t.Fatalf("got %v, want an internal merge error", err)
	}

	g, _ = bareGenerator()
	err = catchBailout(func() {
		g.jump(g.newTargetAt("deep", 2))
	})
	if err == nil || !strings.Contains(err.Error(), "below its depth") {
		t.Fatalf("got %v, want a jump depth error", err)
	}
}

func TestJumpDropsToTargetDepth(t *testing.T) {
	g, a := bareGenerator()
	target := g.newTarget("exit")
	g.bind(target) // depth 0
	g.frame.Push(masm.R0)
	g.frame.Push(masm.R0)
	g.jump(target)
	p, err := a.Finish("jump", 0)
	if err != nil {
		t.Fatal(err)
	}
	last := &p.Instrs[len(p.Instrs)-2]
	if last.Op != sim.OpDrop || last.Imm != 2 {
		t.Errorf("jump emitted %s before the branch, want drop 2", last)
	}
	if !g.dead {
		t.Error("code after an unconditional jump is reachable")
	}
}

func TestFlexibleTargetResetsSP(t *testing.T) {
	g, a := bareGenerator()
	target := g.newFlexibleTarget("unlink", 1)
	g.frame.Push(masm.R0)
	g.frame.Push(masm.R0)
	g.frame.Push(masm.R0)
	g.jump(target)
	g.bind(target)
	if g.frame.Depth() != 1 || g.dead {
		t.Fatalf("depth %d dead %v after the flexible target", g.frame.Depth(), g.dead)
	}
	p, err := a.Finish("flex", 0)
	if err != nil {
		t.Fatal(err)
	}
	lea := &p.Instrs[len(p.Instrs)-1]
	if lea.Op != sim.OpLea || lea.A != masm.SP || lea.M != g.frame.StackPointerAt(1) {
		t.Errorf("flexible target bound with %s", lea)
	}
}

// References push their footprint on construction and take it back on
// Unload, whatever is done with them in between
func TestReferenceFootprint(t *testing.T) {
	tests := []struct {
		src       string
		kind      RefKind
		footprint int
	}{
		{"g", RefNamed, 1},
		{"o.p", RefNamed, 1},
		{"o[k]", RefIndexed, 2},
		{"a.b[c.d]", RefIndexed, 2},
		{"1", RefIllegal, 0},
	}
	for _, tt := range tests {
		e, err := syntax.ParseExpression(tt.src)
		if err != nil {
			t.Fatal(err)
		}
		g, _ := bareGenerator()
		err = catchBailout(func() {
			ref := g.reference(e)
			if ref.Kind() != tt.kind || ref.Footprint() != tt.footprint {
				t.Errorf("%s: %s reference with footprint %d", tt.src, ref.Kind(), ref.Footprint())
			}
			if g.frame.Depth() != tt.footprint {
				t.Errorf("%s: depth %d after construction", tt.src, g.frame.Depth())
			}
			ref.Get(false)
			ref.Set(false)
			ref.Get(true)
			ref.Unload()
		})
		if err != nil {
			t.Fatalf("%s: %v", tt.src, err)
		}
		if g.frame.Depth() != 0 || g.frame.underflow {
			t.Errorf("%s: depth %d after Unload", tt.src, g.frame.Depth())
		}
	}
}

func TestReturnSequenceIsPadded(t *testing.T) {
	fn, err := syntax.ParseScript("t.js", "function f(a, b) { return a; }")
	if err != nil {
		t.Fatal(err)
	}
	if err := syntax.Resolve(fn); err != nil {
		t.Fatal(err)
	}
	a := sim.New()
	if err := Generate(fn.Literals[0], a, Options{}); err != nil {
		t.Fatal(err)
	}
	p, err := a.Finish("f", 2)
	if err != nil {
		t.Fatal(err)
	}
	if p.Count(sim.OpRet) != 1 || p.Count(sim.OpLeaveFrame) != 1 {
		t.Errorf("%d returns and %d frame exits, want one unified return", p.Count(sim.OpRet), p.Count(sim.OpLeaveFrame))
	}
	for i, in := range p.Instrs {
		if in.Op != sim.OpRet {
			continue
		}
		if in.Imm != 3*rt.WordSize {
			t.Errorf("return pops %d bytes, want the receiver and two parameters", in.Imm)
		}
		if i+1 >= len(p.Instrs) || p.Instrs[i+1].Op != sim.OpNop {
			t.Error("return sequence is not padded to its fixed length")
		}
	}
}
