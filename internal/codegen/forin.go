package codegen

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// forIn keeps a five-cell cursor on the stack for the whole loop:
//
//	[SP+32] object
//	[SP+24] expected shape, or smi 0 when the keys were computed
//	[SP+16] key array
//	[SP+8]  length
//	[SP+0]  index
//
// The length is taken once. A key is used as is while the object keeps the
// expected shape and is filtered through the runtime otherwise.
func (g *Generator) forIn(s *ast.ForIn, labels []string) {
	pre := g.frame.Depth()
	exit := g.newTargetAt("for-in exit", pre)

	g.asm.Comment("for-in")
	g.load(s.Obj)
	g.asm.CompareRoot(masm.R0, rt.RootNull)
	g.branch(masm.Equal, exit)
	g.asm.CompareRoot(masm.R0, rt.RootUndefined)
	g.branch(masm.Equal, exit)

	var isObject masm.Label
	g.asm.TestImm(masm.R0, rt.SmiMask)
	g.asm.Branch(masm.NotEqual, &isObject)
	g.frame.Push(masm.R0)
	g.callRuntime(rt.ToObject, 1)
	g.asm.Bind(&isObject)
	g.frame.Push(masm.R0)

	// Shapes with an enum cache skip the runtime entirely
	var haveKeys masm.Label
	g.asm.Load(masm.R1, masm.MemAt(masm.R0, rt.FieldOffset(rt.MapIndex)))
	g.asm.Load(masm.R2, masm.MemAt(masm.R1, rt.FieldOffset(rt.ShapeEnumCacheIndex)))
	g.asm.CompareRoot(masm.R2, rt.RootUndefined)
	g.asm.Branch(masm.NotEqual, &haveKeys)

	g.frame.Push(masm.R0)
	g.callRuntime(rt.ForInPrepare, 1)
	g.asm.Mov(masm.R2, masm.R0)
	g.asm.MovImm(masm.R1, 0)
	g.asm.Load(masm.Tmp, masm.MemAt(masm.R0, rt.FieldOffset(rt.MapIndex)))
	g.asm.CompareRoot(masm.Tmp, rt.RootMetaMap)
	g.asm.Branch(masm.NotEqual, &haveKeys)
	// the runtime returned a shape that now has its cache
	g.asm.Mov(masm.R1, masm.R0)
	g.asm.Load(masm.R2, masm.MemAt(masm.R1, rt.FieldOffset(rt.ShapeEnumCacheIndex)))
	g.asm.Bind(&haveKeys)

	g.frame.Push(masm.R1)
	g.frame.Push(masm.R2)
	g.asm.Load(masm.R1, masm.MemAt(masm.R2, rt.FieldOffset(rt.FixedArrayLengthIndex)))
	g.frame.Push(masm.R1)
	g.asm.MovImm(masm.R1, rt.SmiWord(0))
	g.frame.Push(masm.R1)

	cursor := pre + rt.ForInCursorSize
	loop := g.newTargetAt("for-in loop", cursor)
	next := g.newTargetAt("for-in continue", cursor)
	g.bind(loop)

	g.asm.Load(masm.R0, g.frame.ElementAt(rt.CursorIndexCell))
	g.asm.Load(masm.R1, g.frame.ElementAt(rt.CursorLengthCell))
	g.asm.Cmp(masm.R0, masm.R1)
	g.branch(masm.GreaterEqual, exit)

	// a smi index shifted right by 29 is the byte offset of the element
	g.asm.Load(masm.R2, g.frame.ElementAt(rt.CursorKeysCell))
	g.asm.Mov(masm.R3, masm.R0)
	g.asm.SarImm(masm.R3, rt.SmiShift-rt.WordShift)
	g.asm.Load(masm.R3, masm.MemIndexed(masm.R2, masm.R3, rt.FieldOffset(rt.FixedArrayHeaderSize)))

	var useKey masm.Label
	g.asm.Load(masm.R1, g.frame.ElementAt(rt.CursorObjectCell))
	g.asm.Load(masm.R2, masm.MemAt(masm.R1, rt.FieldOffset(rt.MapIndex)))
	g.asm.Load(masm.Tmp, g.frame.ElementAt(rt.CursorExpectedCell))
	g.asm.Cmp(masm.R2, masm.Tmp)
	g.asm.Branch(masm.Equal, &useKey)

	g.frame.Push(masm.R1)
	g.frame.Push(masm.R3)
	g.callRuntime(rt.ForInFilter, 2)
	g.asm.Mov(masm.R3, masm.R0)
	g.asm.CompareRoot(masm.R3, rt.RootUndefined)
	g.branch(masm.Equal, next)
	g.asm.Bind(&useKey)

	// The target may evaluate subexpressions, so the key waits on the stack
	g.asm.Mov(masm.R0, masm.R3)
	g.frame.Push(masm.R0)
	var target ast.Expr
	init := false
	switch each := s.Each.(type) {
	case *ast.VarDecl:
		target = each.Decls[0].Name
		init = each.Kind != ast.DeclVar
	case *ast.ExprStmt:
		target = each.X
	default:
		g.internal("unexpected for-in target %T", s.Each)
	}
	ref := g.reference(target)
	g.asm.Load(masm.R0, g.frame.ElementAt(ref.Footprint()))
	ref.Set(init)
	ref.Unload()
	g.frame.Drop(1)

	g.pushBreakable(&breakable{labels: labels, breakT: exit, continueT: next, loop: true})
	g.statement(s.Body)
	g.popBreakable()

	g.bind(next)
	if !g.dead {
		g.frame.Pop(masm.R0)
		g.asm.MovImm(masm.R1, rt.SmiWord(1))
		g.asm.Add(masm.R0, masm.R1)
		g.frame.Push(masm.R0)
		g.jump(loop)
	}
	g.bind(exit)
}
