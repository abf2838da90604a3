// Completion: 95% - try/catch and try/finally with escape shadowing complete
package codegen

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// shadow stands in for an escape target while a handler is live. Jumping
// to it lands on code that unlinks the handler before going on to the
// original target.
type shadow struct {
	original *JumpTarget
	target   *JumpTarget
	slot     **JumpTarget // where the original was installed
}

// shadowEscapes replaces the return target and every enclosing break and
// continue target with a shadow that resets SP to handlerDepth
func (g *Generator) shadowEscapes(handlerDepth int) []*shadow {
	var out []*shadow
	install := func(slot **JumpTarget) {
		if *slot == nil {
			return
		}
		s := &shadow{original: *slot, slot: slot}
		s.target = g.newFlexibleTarget("shadow "+s.original.name, handlerDepth)
		*slot = s.target
		out = append(out, s)
	}
	install(&g.returnT)
	for _, b := range g.breakables {
		install(&b.breakT)
		install(&b.continueT)
	}
	g.shadows += len(out)
	return out
}

func (g *Generator) restoreEscapes(shadows []*shadow) {
	for i := len(shadows) - 1; i >= 0; i-- {
		*shadows[i].slot = shadows[i].original
	}
	g.shadows -= len(shadows)
}

// pushHandler links a handler record resuming at resume:
//
//	[SP+32] resume address
//	[SP+24] PP
//	[SP+16] FP
//	[SP+8]  kind
//	[SP+0]  next handler
func (g *Generator) pushHandler(kind rt.HandlerKind, resume *masm.Label) {
	g.asm.Comment("push %s handler", kind)
	g.asm.PushLabelAddress(resume)
	g.frame.Adjust(1)
	g.frame.Push(masm.PP)
	g.frame.Push(masm.FP)
	g.asm.MovImm(masm.Tmp, rt.SmiWord(int32(kind)))
	g.frame.Push(masm.Tmp)
	g.asm.LoadRoot(masm.Tmp, rt.RootHandler)
	g.frame.Push(masm.Tmp)
	g.asm.StoreRoot(rt.RootHandler, masm.SP)
}

// popHandler unlinks the record on top of the stack. R0 is preserved.
func (g *Generator) popHandler() {
	g.asm.Comment("pop handler")
	g.asm.Load(masm.Tmp, g.frame.ElementAt(rt.HandlerNextIndex))
	g.asm.StoreRoot(rt.RootHandler, masm.Tmp)
	g.frame.Drop(rt.HandlerSize)
}

// unlinkShadows emits the landing of every shadow that was jumped to. Each
// lands with SP at the record, unlinks it and calls then, which continues
// to wherever the escape must go next.
func (g *Generator) unlinkShadows(shadows []*shadow, then func(j int, s *shadow)) {
	for j, s := range shadows {
		if !s.target.Used() {
			continue
		}
		g.bind(s.target)
		g.popHandler()
		then(j, s)
	}
}

func (g *Generator) tryStatement(s *ast.Try) {
	if s.Finally != nil {
		g.tryFinally(s)
		return
	}
	g.tryCatch(s.Body, s.CatchParam, s.Catch)
}

// tryCatch runs body under a catch handler. The thrower unwinds SP to the
// record, unlinks it and resumes at the catch entry with the exception in
// R0.
func (g *Generator) tryCatch(body *ast.Block, param *ast.Ident, catch *ast.Block) {
	pre := g.frame.Depth()
	var catchEntry masm.Label
	exit := g.newTarget("try exit")

	g.pushHandler(rt.HandlerCatch, &catchEntry)
	shadows := g.shadowEscapes(pre + rt.HandlerSize)
	g.statements(body.List)
	g.restoreEscapes(shadows)
	if !g.dead {
		g.popHandler()
		g.jump(exit)
	}
	g.unlinkShadows(shadows, func(_ int, s *shadow) {
		g.jump(s.original)
	})

	g.asm.Comment("catch entry")
	g.asm.Bind(&catchEntry)
	g.frame.SetDepth(pre)
	g.dead = false
	g.asm.Load(masm.CP, g.frame.ContextMem())
	ref := g.reference(param)
	ref.Set(true)
	ref.Unload()
	g.statements(catch.List)
	g.bind(exit)
}

// tryFinally funnels every completion of the protected block through the
// finally block with a state and a value below it:
//
//	[SP+8] state: normal, throwing or jumping+j
//	[SP+0] value: undefined, the exception or the escape's R0
func (g *Generator) tryFinally(s *ast.Try) {
	pre := g.frame.Depth()
	var throwEntry masm.Label
	finally := g.newTargetAt("finally", pre+rt.FinallyStateCells)

	g.pushHandler(rt.HandlerFinally, &throwEntry)
	shadows := g.shadowEscapes(pre + rt.HandlerSize)
	if s.Catch != nil {
		g.tryCatch(s.Body, s.CatchParam, s.Catch)
	} else {
		g.statements(s.Body.List)
	}
	g.restoreEscapes(shadows)

	if !g.dead {
		g.popHandler()
		g.asm.MovImm(masm.R1, rt.SmiWord(rt.FinallyNormal))
		g.frame.Push(masm.R1)
		g.asm.LoadRoot(masm.R0, rt.RootUndefined)
		g.frame.Push(masm.R0)
		g.jump(finally)
	}
	g.unlinkShadows(shadows, func(j int, _ *shadow) {
		g.asm.MovImm(masm.R1, rt.SmiWord(int32(rt.FinallyJumping+j)))
		g.frame.Push(masm.R1)
		g.frame.Push(masm.R0)
		g.jump(finally)
	})

	g.asm.Comment("finally throw entry")
	g.asm.Bind(&throwEntry)
	g.frame.SetDepth(pre)
	g.dead = false
	g.asm.Load(masm.CP, g.frame.ContextMem())
	g.asm.MovImm(masm.R1, rt.SmiWord(rt.FinallyThrowing))
	g.frame.Push(masm.R1)
	g.frame.Push(masm.R0)
	g.jump(finally)

	g.bind(finally)
	g.statements(s.Finally.List)
	if g.dead {
		return
	}
	g.frame.Pop(masm.R0)
	g.frame.Pop(masm.R1)

	var notThrowing masm.Label
	g.asm.MovImm(masm.Tmp, rt.SmiWord(rt.FinallyThrowing))
	g.asm.Cmp(masm.R1, masm.Tmp)
	g.asm.Branch(masm.NotEqual, &notThrowing)
	g.frame.Push(masm.R0)
	g.callRuntime(rt.ReThrow, 1)
	g.asm.Bind(&notThrowing)

	for j, sh := range shadows {
		if !sh.target.Used() {
			continue
		}
		g.asm.MovImm(masm.Tmp, rt.SmiWord(int32(rt.FinallyJumping+j)))
		g.asm.Cmp(masm.R1, masm.Tmp)
		g.branch(masm.Equal, sh.original)
	}
}
