// Completion: 95% - Prologue and unified return sequence complete
package codegen

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// prologue builds the frame. On entry R1 holds the closure, the receiver
// and exactly as many arguments as the function declares are on the stack
// and the return address was pushed by the call.
func (g *Generator) prologue() {
	fn := g.fn
	n := len(fn.Params)
	// the return sequence pops the receiver and the arguments in one go
	if limit := g.asm.Layout().MaxReturnPop; limit > 0 && rt.WordSize*(n+1) > limit {
		g.fail(engine.ParameterLimitError(fn.DisplayName(), n, limit/rt.WordSize-1, fn.Loc()))
	}
	g.asm.Comment("prologue %s", fn.DisplayName())
	g.asm.EnterFrame()
	g.asm.Push(masm.PP)
	g.asm.Load(masm.CP, masm.MemAt(masm.R1, rt.FieldOffset(rt.FunctionContextIndex)))
	g.asm.Push(masm.CP)
	g.asm.Push(masm.R1)
	g.asm.Lea(masm.PP, masm.MemAt(masm.FP, rt.ParameterPointerOffset(n)))

	g.initLocals()
	if g.scope.NeedsContext() {
		g.allocateContext()
	}
	if v := fn.ArgumentsVar; v != nil {
		g.asm.Comment("arguments")
		g.asm.Load(masm.R0, g.frame.FunctionMem())
		g.frame.Push(masm.R0)
		g.frame.Push(masm.PP)
		g.asm.MovImm(masm.R0, rt.SmiWord(int32(n)))
		g.frame.Push(masm.R0)
		g.callRuntime(rt.NewArguments, 3)
		g.variable(v).Set(true)
	}
	g.declarations()
	g.stackCheck()
}

// initLocals pushes the local slots: undefined, or the hole for bindings
// that must not be read before their declaration
func (g *Generator) initLocals() {
	if g.scope.NumLocals == 0 {
		return
	}
	holes := make([]bool, g.scope.NumLocals)
	anyHole := false
	for _, v := range g.scope.Vars {
		if v.Location == ast.LocLocal && v.Mode.NeedsHole() {
			holes[v.Index] = true
			anyHole = true
		}
	}
	g.asm.Comment("%d locals", g.scope.NumLocals)
	g.asm.LoadRoot(masm.R0, rt.RootUndefined)
	if anyHole {
		g.asm.LoadRoot(masm.R2, rt.RootHole)
	}
	for _, hole := range holes {
		if hole {
			g.asm.Push(masm.R2)
		} else {
			g.asm.Push(masm.R0)
		}
	}
}

// allocateContext creates the function context and moves captured
// parameters into it
func (g *Generator) allocateContext() {
	g.asm.Comment("allocate context, %d slots", g.scope.NumSlots)
	g.asm.Load(masm.R0, g.frame.FunctionMem())
	g.frame.Push(masm.R0)
	g.asm.MovImm(masm.R0, rt.SmiWord(int32(g.scope.NumSlots)))
	g.frame.Push(masm.R0)
	g.callRuntime(rt.NewFunctionContext, 2)
	g.asm.Mov(masm.CP, masm.R0)
	g.asm.Store(g.frame.ContextMem(), masm.CP)

	hole := false
	for _, v := range g.scope.Vars {
		if v.Location != ast.LocContext || !v.Mode.NeedsHole() {
			continue
		}
		if !hole {
			g.asm.LoadRoot(masm.R0, rt.RootHole)
			hole = true
		}
		g.asm.Store(masm.MemAt(masm.CP, rt.ContextSlotOffset(v.Index)), masm.R0)
	}

	for _, i := range g.scope.CapturedParams() {
		v := g.scope.Params[i]
		g.asm.Comment("copy parameter %s", v.Name)
		g.asm.Load(masm.R0, g.frame.ParameterSlot(i))
		disp := rt.ContextSlotOffset(v.Index)
		g.asm.Store(masm.MemAt(masm.CP, disp), masm.R0)
		g.recordWrite(masm.CP, disp)
	}
	if sv := g.fn.SelfVar; sv != nil && sv.Location == ast.LocContext {
		g.asm.Load(masm.R0, g.frame.FunctionMem())
		disp := rt.ContextSlotOffset(sv.Index)
		g.asm.Store(masm.MemAt(masm.CP, disp), masm.R0)
		g.recordWrite(masm.CP, disp)
	}
}

// variable is a slot reference to a binding of this function
func (g *Generator) variable(v *ast.Variable) *Reference {
	return &Reference{g: g, kind: RefSlot, v: v, name: v.Name}
}

// declarations declares script globals and instantiates hoisted functions
func (g *Generator) declarations() {
	fn := g.fn
	if fn.IsScript && len(fn.Globals) > 0 {
		if g.opts.Eval {
			for _, name := range fn.Globals {
				g.asm.LoadConstant(masm.R0, masm.StringConst(name))
				g.frame.Push(masm.R0)
				g.callRuntime(rt.DeclareEvalVar, 1)
			}
		} else {
			g.asm.LoadConstant(masm.R0, masm.NamesConst(fn.Globals))
			g.frame.Push(masm.R0)
			g.callRuntime(rt.DeclareGlobals, 1)
		}
	}
	for _, d := range fn.FuncDecls {
		g.asm.Comment("function %s", d.Name.Name)
		ref := g.reference(d.Name)
		g.closure(d.Fn)
		ref.Set(true)
		ref.Unload()
	}
}

func (g *Generator) stackCheck() {
	d := g.deferCode("stack guard", func(d *deferredCode) {
		g.callRuntime(rt.StackGuard, 0)
		g.deferredExit(d)
	})
	g.asm.CompareRoot(masm.SP, rt.RootStackLimit)
	g.asm.Branch(masm.Below, &d.entry)
	g.asm.Bind(&d.exit)
}

// epilogue emits the single return sequence every return jumps to. Its
// length is fixed per target so a debugger can patch it.
func (g *Generator) epilogue() {
	g.bind(g.returnT)
	if g.dead {
		return
	}
	n := len(g.fn.Params)
	g.asm.Comment("return sequence")
	start := g.asm.PC()
	g.asm.Load(masm.PP, masm.MemAt(masm.FP, rt.CallerPPOffset))
	g.asm.LeaveFrame()
	g.asm.Ret(rt.WordSize * (n + 1))
	want := g.asm.Layout().ReturnSequenceLength
	for g.asm.PC()-start < want {
		g.asm.Nop()
	}
	if got := g.asm.PC() - start; want > 0 && got != want {
		g.internal("return sequence is %d long, want %d", got, want)
	}
	g.dead = true
}
