package codegen

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// callRuntime calls a runtime entry with argc arguments already pushed.
// The entry pops them and returns its result in R0.
func (g *Generator) callRuntime(e rt.Entry, argc int) {
	if arity := e.Arity(); arity >= 0 && arity != argc {
		g.internal("%s takes %d arguments, got %d", e, arity, argc)
	}
	g.asm.CallRuntime(e, argc)
	g.frame.Adjust(-argc)
}

// closure instantiates a nested function literal in the current context
func (g *Generator) closure(fn *ast.Function) {
	g.frame.Push(masm.CP)
	g.asm.LoadConstant(masm.R0, masm.FunctionConst(fn.DisplayName(), fn))
	g.frame.Push(masm.R0)
	g.callRuntime(rt.NewClosure, 2)
}

// call lays out [function][receiver][arguments...] and calls through the
// function's code entry. The callee pops the receiver and the arguments;
// the function cell is dropped here. Calls do not preserve CP.
func (g *Generator) call(e *ast.Call) {
	switch fn := e.Fn.(type) {
	case *ast.Dot:
		g.load(fn.X)
		g.frame.Push(masm.R0) // becomes the function
		g.frame.Push(masm.R0)
		g.asm.Mov(masm.R1, masm.R0)
		g.asm.LoadConstant(masm.R2, masm.StringConst(fn.Name))
		g.asm.CallIC(masm.LoadIC)
		g.asm.Store(g.frame.ElementAt(1), masm.R0)
	case *ast.Index:
		g.load(fn.X)
		g.frame.Push(masm.R0)
		g.frame.Push(masm.R0)
		g.load(fn.Key)
		g.asm.Mov(masm.R2, masm.R0)
		g.asm.Load(masm.R1, g.frame.ElementAt(0))
		g.asm.CallIC(masm.KeyedLoadIC)
		g.asm.Store(g.frame.ElementAt(1), masm.R0)
	default:
		g.load(e.Fn)
		g.frame.Push(masm.R0)
		g.asm.LoadRoot(masm.R0, rt.RootGlobal)
		g.frame.Push(masm.R0)
	}

	for _, a := range e.Args {
		g.load(a)
		g.frame.Push(masm.R0)
	}
	argc := len(e.Args)
	g.asm.Load(masm.R1, g.frame.ElementAt(argc+1))
	g.asm.CallFunction(argc)
	g.frame.Adjust(-(argc + 1))
	g.frame.Drop(1)
	g.asm.Load(masm.CP, g.frame.ContextMem())
}
