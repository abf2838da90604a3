package sim

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// build assembles a program with emit and installs it as a closure
func build(t *testing.T, m *Machine, params int, emit func(a *Assembler)) Value {
	t.Helper()
	a := New()
	emit(a)
	p, err := a.Finish("test", params)
	if err != nil {
		t.Fatal(err)
	}
	return m.Instantiate(p)
}

func TestReturnSmi(t *testing.T) {
	m := NewMachine(Options{})
	fn := build(t, m, 0, func(a *Assembler) {
		a.MovImm(masm.R0, rt.SmiWord(7))
		a.Ret(rt.WordSize)
	})
	v, err := m.Call(fn, m.Undefined())
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsSmi() || v.SmiValue() != 7 {
		t.Errorf("got %#x, want smi 7", uint64(v))
	}
	if d := m.StackDepth(); d != 0 {
		t.Errorf("stack depth after call is %d", d)
	}
}

func TestBranchNeedsFlags(t *testing.T) {
	m := NewMachine(Options{})
	fn := build(t, m, 0, func(a *Assembler) {
		var l masm.Label
		a.CmpImm(masm.R0, 0)
		a.Add(masm.R0, masm.R1)
		a.Branch(masm.Equal, &l)
		a.Bind(&l)
		a.Ret(rt.WordSize)
	})
	_, err := m.Call(fn, m.Undefined())
	var f *Fault
	if !errors.As(err, &f) || !strings.Contains(f.Msg, "undefined flags") {
		t.Fatalf("got %v, want an undefined flags fault", err)
	}
	if d := m.StackDepth(); d != 0 {
		t.Errorf("stack depth after fault is %d", d)
	}
}

func TestFlagsSurviveStackTraffic(t *testing.T) {
	m := NewMachine(Options{})
	fn := build(t, m, 0, func(a *Assembler) {
		var yes masm.Label
		a.MovImm(masm.R0, 5)
		a.CmpImm(masm.R0, 5)
		a.Push(masm.R0)
		a.Drop(1)
		a.MovImm(masm.R0, rt.SmiWord(0))
		a.Load(masm.R1, masm.MemAt(masm.SP, 0))
		a.Branch(masm.Equal, &yes)
		a.Ret(rt.WordSize)
		a.Bind(&yes)
		a.MovImm(masm.R0, rt.SmiWord(1))
		a.Ret(rt.WordSize)
	})
	v, err := m.Call(fn, m.Undefined())
	if err != nil {
		t.Fatal(err)
	}
	if v.SmiValue() != 1 {
		t.Errorf("branch not taken after push and drop")
	}
}

func TestCatchHandler(t *testing.T) {
	m := NewMachine(Options{})
	fn := build(t, m, 0, func(a *Assembler) {
		var resume masm.Label
		a.PushLabelAddress(&resume)
		a.Push(masm.PP)
		a.Push(masm.FP)
		a.MovImm(masm.Tmp, rt.SmiWord(int32(rt.HandlerCatch)))
		a.Push(masm.Tmp)
		a.LoadRoot(masm.Tmp, rt.RootHandler)
		a.Push(masm.Tmp)
		a.StoreRoot(rt.RootHandler, masm.SP)
		a.MovImm(masm.R0, rt.SmiWord(3))
		a.Push(masm.R0)
		a.CallRuntime(rt.Throw, 1)
		a.Trap()
		a.Bind(&resume)
		a.Ret(rt.WordSize)
	})
	v, err := m.Call(fn, m.Undefined())
	if err != nil {
		t.Fatal(err)
	}
	if v.SmiValue() != 3 {
		t.Errorf("caught %#x, want smi 3", uint64(v))
	}
	if h := m.mem.root(rt.RootHandler); h != 0 {
		t.Errorf("handler chain not restored: %#x", uint64(h))
	}
}

func TestUncaughtThrow(t *testing.T) {
	m := NewMachine(Options{})
	fn := build(t, m, 0, func(a *Assembler) {
		a.LoadConstant(masm.R0, masm.StringConst("boom"))
		a.Push(masm.R0)
		a.CallRuntime(rt.ThrowReferenceError, 1)
	})
	_, err := m.Call(fn, m.Undefined())
	var thrown *ThrownError
	if !errors.As(err, &thrown) {
		t.Fatalf("got %v, want a thrown error", err)
	}
	if thrown.Text != "ReferenceError: boom" {
		t.Errorf("thrown %q", thrown.Text)
	}
	if d := m.StackDepth(); d != 0 {
		t.Errorf("stack depth after throw is %d", d)
	}
}

func TestArityAdaptation(t *testing.T) {
	m := NewMachine(Options{})
	// returns its second parameter: [SP] return address, [SP+8] parameter 1
	fn := build(t, m, 2, func(a *Assembler) {
		a.Load(masm.R0, masm.MemAt(masm.SP, rt.WordSize))
		a.Ret(3 * rt.WordSize)
	})
	v, err := m.Call(fn, m.Undefined(), rt.Smi(1))
	if err != nil {
		t.Fatal(err)
	}
	if v != m.Undefined() {
		t.Errorf("missing argument is %#x, want undefined", uint64(v))
	}
	v, err = m.Call(fn, m.Undefined(), rt.Smi(1), rt.Smi(2), rt.Smi(3))
	if err != nil {
		t.Fatal(err)
	}
	if v.SmiValue() != 2 {
		t.Errorf("second argument is %#x, want smi 2", uint64(v))
	}
	if n := m.Stats().Adaptations; n != 2 {
		t.Errorf("%d adaptations, want 2", n)
	}
	if d := m.StackDepth(); d != 0 {
		t.Errorf("stack depth after adapted calls is %d", d)
	}
}

func TestDivisionFault(t *testing.T) {
	m := NewMachine(Options{})
	fn := build(t, m, 0, func(a *Assembler) {
		a.MovImm(masm.R0, 10)
		a.MovImm(masm.R2, 0)
		a.DivMod(masm.R2)
		a.Ret(rt.WordSize)
	})
	_, err := m.Call(fn, m.Undefined())
	var f *Fault
	if !errors.As(err, &f) {
		t.Fatalf("got %v, want a fault", err)
	}
}

func TestStepBudget(t *testing.T) {
	m := NewMachine(Options{MaxSteps: 1000})
	fn := build(t, m, 0, func(a *Assembler) {
		var loop masm.Label
		a.Bind(&loop)
		a.Jump(&loop)
	})
	_, err := m.Call(fn, m.Undefined())
	var f *Fault
	if !errors.As(err, &f) || !strings.Contains(f.Msg, "budget") {
		t.Fatalf("got %v, want a step budget fault", err)
	}
}

func TestLoadICFeedback(t *testing.T) {
	m := NewMachine(Options{})
	a := New()
	a.Load(masm.R1, masm.MemAt(masm.SP, rt.WordSize))
	a.LoadConstant(masm.R2, masm.StringConst("x"))
	a.CallIC(masm.LoadIC)
	a.Ret(2 * rt.WordSize)
	p, err := a.Finish("getx", 1)
	if err != nil {
		t.Fatal(err)
	}
	fn := m.Instantiate(p)

	obj := func(keys ...string) Value {
		v := m.heap.newObject()
		for i, k := range keys {
			m.setProperty(v, k, rt.Smi(int32(i+1)))
		}
		return v
	}
	first, second := obj("x"), obj("x")
	for _, o := range []Value{first, second} {
		v, err := m.Call(fn, m.Undefined(), o)
		if err != nil {
			t.Fatal(err)
		}
		if v.SmiValue() != 1 {
			t.Errorf("o.x = %#x", uint64(v))
		}
	}
	sites := m.ICSites(p)
	if len(sites) != 1 || sites[0].State != ICMonomorphic || sites[0].Hits != 2 {
		t.Fatalf("sites after same-shape loads: %+v", sites)
	}
	if _, err := m.Call(fn, m.Undefined(), obj("y", "x")); err != nil {
		t.Fatal(err)
	}
	if s := m.ICSites(p)[0]; s.State != ICMegamorphic {
		t.Errorf("site is %s after a second shape", s.State)
	}
}

func TestPrint(t *testing.T) {
	var out bytes.Buffer
	m := NewMachine(Options{Stdout: &out})
	printFn, _ := m.GetGlobal("print")
	_, err := m.Call(printFn, m.Undefined(), m.String("a"), rt.Smi(1), m.Number(math.Copysign(0, -1)), m.Number(0.5))
	if err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "a 1 0 0.5\n" {
		t.Errorf("printed %q", got)
	}
}

func TestNumberToString(t *testing.T) {
	tests := []struct {
		f    float64
		want string
	}{
		{0, "0"},
		{math.Copysign(0, -1), "0"},
		{1.5, "1.5"},
		{-42, "-42"},
		{1e21, "1e+21"},
		{1.5e-7, "1.5e-7"},
		{123456789012, "123456789012"},
		{math.NaN(), "NaN"},
		{math.Inf(-1), "-Infinity"},
	}
	for _, tt := range tests {
		if got := NumberToString(tt.f); got != tt.want {
			t.Errorf("NumberToString(%v) = %q, want %q", tt.f, got, tt.want)
		}
	}
}

func TestShapes(t *testing.T) {
	m := NewMachine(Options{})
	a, b := m.heap.newObject(), m.heap.newObject()
	m.setProperty(a, "p", rt.Smi(1))
	m.setProperty(b, "p", rt.Smi(2))
	if m.mem.field(a, rt.MapIndex) != m.mem.field(b, rt.MapIndex) {
		t.Error("objects built alike should share a shape")
	}
	m.deleteProperty(a, "p")
	if m.mem.field(a, rt.MapIndex) == m.mem.field(b, rt.MapIndex) {
		t.Error("delete should move the object to a new shape")
	}
	shapeV := m.forInPrepare(b)
	if m.mem.field(shapeV, rt.MapIndex) != m.heap.metaMap {
		t.Fatal("ForInPrepare on a plain object should return its shape")
	}
	keys := m.heap.fixedArrayElems(m.mem.field(shapeV, rt.ShapeEnumCacheIndex))
	if len(keys) != 1 || m.ToString(keys[0]) != "p" {
		t.Errorf("enum cache holds %d keys", len(keys))
	}
}

func TestAssemblerUnboundLabel(t *testing.T) {
	a := New()
	var l masm.Label
	a.Jump(&l)
	if _, err := a.Finish("bad", 0); err == nil {
		t.Error("Finish accepted a jump to an unbound label")
	}
	if a.Layout().ReturnSequenceLength != 4 {
		t.Error("unexpected return sequence length")
	}
}
