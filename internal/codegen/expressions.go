package codegen

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// expr compiles e for its value into R0. The frame depth is unchanged.
func (g *Generator) expr(e ast.Expr, typeofMode bool) {
	switch e := e.(type) {
	case *ast.Ident, *ast.Dot, *ast.Index:
		ref := g.reference(e)
		ref.Get(typeofMode)
		ref.Unload()
	case *ast.NumberLit:
		g.number(e.Value)
	case *ast.StringLit:
		g.asm.LoadConstant(masm.R0, masm.StringConst(e.Value))
	case *ast.BoolLit:
		if e.Value {
			g.asm.LoadRoot(masm.R0, rt.RootTrue)
		} else {
			g.asm.LoadRoot(masm.R0, rt.RootFalse)
		}
	case *ast.NullLit:
		g.asm.LoadRoot(masm.R0, rt.RootNull)
	case *ast.ThisExpr:
		g.asm.Load(masm.R0, g.frame.Receiver())
	case *ast.ObjectLit:
		g.objectLiteral(e)
	case *ast.ArrayLit:
		for _, x := range e.Elems {
			g.load(x)
			g.frame.Push(masm.R0)
		}
		g.callRuntime(rt.NewArray, len(e.Elems))
	case *ast.FuncLit:
		g.closure(e.Fn)
	case *ast.Unary:
		g.unaryExpr(e)
	case *ast.Update:
		g.update(e)
	case *ast.Binary:
		if e.Op.IsComparison() {
			g.materialize(g.compare(e))
		} else {
			g.binary(e)
		}
	case *ast.Logical:
		g.logicalValue(e)
	case *ast.Assign:
		g.assign(e)
	case *ast.Cond:
		then := g.newTarget("cond then")
		els := g.newTarget("cond else")
		done := g.newTarget("cond done")
		g.test(e.Test, then, els, then)
		g.bind(then)
		if !g.dead {
			g.load(e.Then)
			g.jump(done)
		}
		g.bind(els)
		if !g.dead {
			g.load(e.Else)
		}
		g.bind(done)
	case *ast.Call:
		g.call(e)
	case *ast.Seq:
		for i, x := range e.List {
			if i == len(e.List)-1 {
				g.load(x)
			} else {
				g.effect(x)
			}
		}
	default:
		g.internal("unsupported expression %T", e)
	}
}

// number loads a numeric literal, as a smi when it fits
func (g *Generator) number(f float64) {
	if rt.FitsSmi(f) {
		g.asm.MovImm(masm.R0, rt.SmiWord(int32(f)))
		return
	}
	g.asm.LoadConstant(masm.R0, masm.NumberConst(f))
}

func (g *Generator) objectLiteral(e *ast.ObjectLit) {
	g.callRuntime(rt.NewObject, 0)
	g.frame.Push(masm.R0)
	for _, p := range e.Props {
		g.load(p.Value)
		g.asm.Load(masm.R1, g.frame.ElementAt(0))
		g.asm.LoadConstant(masm.R2, masm.StringConst(p.Key))
		g.asm.CallIC(masm.StoreIC)
	}
	g.frame.Pop(masm.R0)
}

func (g *Generator) unaryExpr(e *ast.Unary) {
	switch e.Op {
	case ast.OpNot:
		g.materializeTest(e.X, true)
	case ast.OpTypeof:
		g.loadTypeof(e.X)
		g.frame.Push(masm.R0)
		g.callRuntime(rt.Typeof, 1)
	case ast.OpVoid:
		g.effect(e.X)
		g.asm.LoadRoot(masm.R0, rt.RootUndefined)
	case ast.OpDelete:
		g.deleteExpr(e.X)
	default:
		g.load(e.X)
		g.unary(e.Op)
	}
}

// deleteExpr removes a property. Deleting a declared variable fails and
// deleting anything that is not a reference succeeds.
func (g *Generator) deleteExpr(x ast.Expr) {
	switch x := x.(type) {
	case *ast.Dot:
		g.load(x.X)
		g.frame.Push(masm.R0)
		g.asm.LoadConstant(masm.R0, masm.StringConst(x.Name))
		g.frame.Push(masm.R0)
		g.callRuntime(rt.Delete, 2)
	case *ast.Index:
		g.load(x.X)
		g.frame.Push(masm.R0)
		g.load(x.Key)
		g.frame.Push(masm.R0)
		g.callRuntime(rt.Delete, 2)
	case *ast.Ident:
		if x.Var != nil && x.Var.Location != ast.LocGlobal {
			g.asm.LoadRoot(masm.R0, rt.RootFalse)
			return
		}
		g.asm.LoadRoot(masm.R0, rt.RootGlobal)
		g.frame.Push(masm.R0)
		g.asm.LoadConstant(masm.R0, masm.StringConst(x.Name))
		g.frame.Push(masm.R0)
		g.callRuntime(rt.Delete, 2)
	default:
		g.effect(x)
		g.asm.LoadRoot(masm.R0, rt.RootTrue)
	}
}

// assign compiles plain and compound assignment. A compound assignment
// reads and writes through the same reference.
func (g *Generator) assign(e *ast.Assign) {
	ref := g.reference(e.Target)
	if e.Op == ast.OpAssign {
		g.load(e.Value)
	} else {
		if _, ok := binaryEntries[e.Op]; !ok {
			g.internal("no compound assignment for %s", e.Op)
		}
		ref.Get(false)
		if c, ok := smiLiteral(e.Value); ok {
			g.binaryLiteral(e.Op, c, true)
		} else {
			g.frame.Push(masm.R0)
			g.load(e.Value)
			g.binaryStack(e.Op)
		}
	}
	ref.Set(false)
	ref.Unload()
}

// update compiles ++ and --. The postfix form keeps the old value, as a
// number, in a cell below the reference.
func (g *Generator) update(e *ast.Update) {
	postfix := !e.Prefix
	if postfix {
		g.asm.MovImm(masm.R0, rt.SmiWord(0))
		g.frame.Push(masm.R0)
	}
	ref := g.reference(e.X)
	ref.Get(false)
	g.toNumber()
	if postfix {
		g.asm.Store(g.frame.ElementAt(ref.Footprint()), masm.R0)
	}
	delta := int32(1)
	if e.Op == ast.OpDec {
		delta = -1
	}
	g.binaryLiteral(ast.OpAdd, delta, true)
	ref.Set(false)
	ref.Unload()
	if postfix {
		g.frame.Pop(masm.R0)
	}
}
