// Completion: 95% - All statements of the subset, no per-iteration bindings
package codegen

import (
	"fmt"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// breakable is an enclosing statement that break, and for loops continue,
// can leave. Handler regions swap the targets for shadows while they are
// live.
type breakable struct {
	labels    []string
	breakT    *JumpTarget
	continueT *JumpTarget
	loop      bool
	implicit  bool // a loop or switch, the target of an unlabeled break
}

func (g *Generator) pushBreakable(b *breakable) {
	if b.loop {
		b.implicit = true
	}
	g.breakables = append(g.breakables, b)
}

func (g *Generator) popBreakable() {
	g.breakables = g.breakables[:len(g.breakables)-1]
}

func (b *breakable) hasLabel(label string) bool {
	for _, l := range b.labels {
		if l == label {
			return true
		}
	}
	return false
}

// findBreakable resolves the target of break or continue
func (g *Generator) findBreakable(label string, isContinue bool, loc engine.SourceLocation) *breakable {
	for i := len(g.breakables) - 1; i >= 0; i-- {
		b := g.breakables[i]
		switch {
		case label == "" && isContinue && b.loop:
			return b
		case label == "" && !isContinue && b.implicit:
			return b
		case label != "" && b.hasLabel(label):
			if isContinue && !b.loop {
				g.fail(engine.SyntaxError(fmt.Sprintf("label %q does not denote a loop", label), loc))
			}
			return b
		}
	}
	if label != "" {
		var visible []string
		for _, b := range g.breakables {
			visible = append(visible, b.labels...)
		}
		g.fail(engine.UndefinedLabelError(label, visible, loc))
	}
	if isContinue {
		g.fail(engine.SyntaxError("continue outside of a loop", loc))
	}
	g.fail(engine.SyntaxError("break outside of a loop or switch", loc))
	return nil
}

func (g *Generator) statements(list []ast.Stmt) {
	for _, s := range list {
		g.statement(s)
	}
}

// statement compiles one statement. Unreachable statements are skipped;
// nothing inside them can be reached from outside.
func (g *Generator) statement(s ast.Stmt) {
	if g.dead {
		return
	}
	g.enter(s)
	defer g.leave()
	g.loc = s.Loc()
	depth := g.frame.Depth()
	if g.opts.BreakSlots {
		g.asm.BreakSlot()
	}
	if engine.VerboseMode {
		engine.Tracef("codegen: %s %T depth=%d\n", s.Loc(), s, depth)
	}

	switch s := s.(type) {
	case *ast.VarDecl:
		g.varDecl(s)
	case *ast.FuncDecl:
		// instantiated by the prologue
	case *ast.ExprStmt:
		g.effect(s.X)
	case *ast.Block:
		g.statements(s.List)
	case *ast.If:
		g.ifStatement(s)
	case *ast.While:
		g.whileStatement(s, nil)
	case *ast.DoWhile:
		g.doWhileStatement(s, nil)
	case *ast.For:
		g.forStatement(s, nil)
	case *ast.ForIn:
		g.forIn(s, nil)
	case *ast.Labeled:
		g.labeled(s)
	case *ast.Break:
		g.jump(g.findBreakable(s.Label, false, s.Loc()).breakT)
	case *ast.Continue:
		g.jump(g.findBreakable(s.Label, true, s.Loc()).continueT)
	case *ast.Switch:
		g.switchStatement(s, nil)
	case *ast.Return:
		if s.Value != nil {
			g.load(s.Value)
		} else {
			g.asm.LoadRoot(masm.R0, rt.RootUndefined)
		}
		g.jump(g.returnT)
	case *ast.Throw:
		g.load(s.Value)
		g.frame.Push(masm.R0)
		g.callRuntime(rt.Throw, 1)
		g.dead = true
	case *ast.Try:
		g.tryStatement(s)
	case *ast.Debugger:
		g.asm.Comment("debugger")
		g.asm.BreakSlot()
	case *ast.Empty:
	default:
		g.internal("unsupported statement %T", s)
	}

	g.checkDepth(depth)
}

// checkDepth verifies at a statement boundary that the statement left the
// expression stack as it found it
func (g *Generator) checkDepth(depth int) {
	if g.dead {
		return
	}
	if g.frame.underflow {
		g.internal("expression stack underflow")
	}
	if g.frame.Depth() != depth {
		g.internal("statement left depth %d, started at %d", g.frame.Depth(), depth)
	}
	if g.opts.DepthChecks {
		var ok masm.Label
		g.asm.Lea(masm.Tmp, g.frame.StackPointerAt(depth))
		g.asm.Cmp(masm.SP, masm.Tmp)
		g.asm.Branch(masm.Equal, &ok)
		g.asm.Trap()
		g.asm.Bind(&ok)
	}
}

func (g *Generator) varDecl(s *ast.VarDecl) {
	lexical := s.Kind != ast.DeclVar
	for _, d := range s.Decls {
		if d.Init == nil && !lexical {
			continue
		}
		ref := g.reference(d.Name)
		if d.Init != nil {
			g.load(d.Init)
		} else {
			g.asm.LoadRoot(masm.R0, rt.RootUndefined)
		}
		ref.Set(lexical)
		ref.Unload()
	}
}

func (g *Generator) ifStatement(s *ast.If) {
	then := g.newTarget("then")
	els := g.newTarget("else")
	g.test(s.Test, then, els, then)
	g.bind(then)
	g.statement(s.Then)
	if s.Else == nil {
		g.bind(els)
		return
	}
	exit := g.newTarget("endif")
	g.jump(exit)
	g.bind(els)
	g.statement(s.Else)
	g.bind(exit)
}

// labeled hands the labels to a loop or switch, or makes the statement
// itself breakable
func (g *Generator) labeled(s *ast.Labeled) {
	labels := []string{s.Label}
	body := s.Body
	for {
		inner, ok := body.(*ast.Labeled)
		if !ok {
			break
		}
		labels = append(labels, inner.Label)
		body = inner.Body
	}
	switch b := body.(type) {
	case *ast.While:
		g.whileStatement(b, labels)
	case *ast.DoWhile:
		g.doWhileStatement(b, labels)
	case *ast.For:
		g.forStatement(b, labels)
	case *ast.ForIn:
		g.forIn(b, labels)
	case *ast.Switch:
		g.switchStatement(b, labels)
	default:
		bk := &breakable{labels: labels, breakT: g.newTargetAt("label "+s.Label, g.frame.Depth())}
		exit := bk.breakT
		g.pushBreakable(bk)
		g.statement(body)
		g.popBreakable()
		g.bind(exit)
	}
}

func (g *Generator) whileStatement(s *ast.While, labels []string) {
	pre := g.frame.Depth()
	loop := g.newTargetAt("while", pre)
	body := g.newTargetAt("while body", pre)
	exit := g.newTargetAt("while exit", pre)
	g.bind(loop)
	g.test(s.Test, body, exit, body)
	g.bind(body)
	g.pushBreakable(&breakable{labels: labels, breakT: exit, continueT: loop, loop: true})
	g.statement(s.Body)
	g.popBreakable()
	g.jump(loop)
	g.bind(exit)
}

func (g *Generator) doWhileStatement(s *ast.DoWhile, labels []string) {
	pre := g.frame.Depth()
	body := g.newTargetAt("do body", pre)
	cond := g.newTargetAt("do test", pre)
	exit := g.newTargetAt("do exit", pre)
	g.bind(body)
	g.pushBreakable(&breakable{labels: labels, breakT: exit, continueT: cond, loop: true})
	g.statement(s.Body)
	g.popBreakable()
	g.bind(cond)
	if !g.dead {
		g.test(s.Test, body, exit, exit)
	}
	g.bind(exit)
}

func (g *Generator) forStatement(s *ast.For, labels []string) {
	if s.Init != nil {
		g.statement(s.Init)
	}
	// break and continue may leave from inside a finally block, above the
	// loop's own height
	pre := g.frame.Depth()
	loop := g.newTargetAt("for", pre)
	body := g.newTargetAt("for body", pre)
	update := g.newTargetAt("for update", pre)
	exit := g.newTargetAt("for exit", pre)
	g.bind(loop)
	if s.Test != nil {
		g.test(s.Test, body, exit, body)
	}
	g.bind(body)
	g.pushBreakable(&breakable{labels: labels, breakT: exit, continueT: update, loop: true})
	g.statement(s.Body)
	g.popBreakable()
	g.bind(update)
	if s.Update != nil && !g.dead {
		g.effect(s.Update)
	}
	g.jump(loop)
	g.bind(exit)
}

// switchStatement keeps the tag on the stack while the cases are tested in
// order, then runs the bodies as one fall-through sequence
func (g *Generator) switchStatement(s *ast.Switch, labels []string) {
	pre := g.frame.Depth()
	exit := g.newTargetAt("switch exit", pre)
	bodies := make([]*JumpTarget, len(s.Cases))
	for i := range s.Cases {
		bodies[i] = g.newTargetAt(fmt.Sprintf("case %d", i), pre)
	}

	g.load(s.Tag)
	g.frame.Push(masm.R0)
	fallback := exit
	for i, c := range s.Cases {
		if c.Test == nil {
			fallback = bodies[i]
			continue
		}
		g.load(c.Test)
		g.asm.Load(masm.R1, g.frame.ElementAt(0))
		cc := g.compareOperands(ast.OpStrictEq)
		g.branch(cc, bodies[i])
	}
	g.frame.Drop(1)
	g.jump(fallback)

	bk := &breakable{labels: labels, breakT: exit, implicit: true}
	g.pushBreakable(bk)
	for i, c := range s.Cases {
		g.bind(bodies[i])
		g.statements(c.Body)
	}
	g.popBreakable()
	g.bind(exit)
}
