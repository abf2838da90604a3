// Completion: 95% - Control and value contexts complete, no constant folding of comparisons
package codegen

import (
	"math"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

type condKind uint8

const (
	condValue  condKind = iota // a value in R0 still to be tested
	condBranch                 // the flags hold the outcome
	condJumped                 // control already reached a target
)

// Condition is the result of compiling an expression for its truth value.
// A pending branch is only valid until the next flag-clobbering operation.
type Condition struct {
	kind    condKind
	cc      masm.Cond // condBranch: holds when the expression is true
	negated bool      // condValue: the truth of R0 must be inverted
}

func valueCondition() Condition { return Condition{kind: condValue} }

func (c Condition) negate() Condition {
	switch c.kind {
	case condBranch:
		c.cc = c.cc.Negate()
	case condValue:
		c.negated = !c.negated
	}
	return c
}

// compile visits e. With force set the result is always a value in R0:
// comparisons are materialized to true or false and && and || keep the
// operand evaluated last. Without force the expression may leave a pending
// branch or transfer directly to t or f, which then must be non-nil.
func (g *Generator) compile(e ast.Expr, typeofMode bool, t, f *JumpTarget, force bool) Condition {
	g.enter(e)
	defer g.leave()

	if force {
		switch e := e.(type) {
		case *ast.Logical:
			g.logicalValue(e)
			return valueCondition()
		case *ast.Binary:
			if e.Op.IsComparison() {
				g.materialize(g.compare(e))
				return valueCondition()
			}
		case *ast.Unary:
			if e.Op == ast.OpNot {
				g.materializeTest(e.X, true)
				return valueCondition()
			}
		}
		g.expr(e, typeofMode)
		return valueCondition()
	}

	switch e := e.(type) {
	case *ast.Unary:
		if e.Op == ast.OpNot {
			return g.compile(e.X, false, f, t, false).negate()
		}
	case *ast.Logical:
		mid := g.newTarget("logical rhs")
		if e.Op == ast.OpAnd {
			g.branchOn(g.compile(e.L, false, mid, f, false), mid, f, mid)
		} else {
			g.branchOn(g.compile(e.L, false, t, mid, false), t, mid, mid)
		}
		g.bind(mid)
		if g.dead {
			return Condition{kind: condJumped}
		}
		return g.compile(e.R, false, t, f, false)
	case *ast.Binary:
		if e.Op.IsComparison() {
			return Condition{kind: condBranch, cc: g.compare(e)}
		}
	case *ast.BoolLit, *ast.NullLit, *ast.NumberLit, *ast.StringLit:
		if literalTruth(e) {
			g.jump(t)
		} else {
			g.jump(f)
		}
		return Condition{kind: condJumped}
	}
	g.expr(e, typeofMode)
	return valueCondition()
}

func literalTruth(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.BoolLit:
		return e.Value
	case *ast.NumberLit:
		return e.Value != 0 && !math.IsNaN(e.Value)
	case *ast.StringLit:
		return e.Value != ""
	}
	return false
}

// load compiles e for its value into R0
func (g *Generator) load(e ast.Expr) {
	g.compile(e, false, nil, nil, true)
}

// loadTypeof is load where a missing global reads as undefined
func (g *Generator) loadTypeof(e ast.Expr) {
	g.compile(e, true, nil, nil, true)
}

// test compiles e in control context. next is the target bound right after,
// so the branch to it can be elided.
func (g *Generator) test(e ast.Expr, t, f, next *JumpTarget) {
	g.branchOn(g.compile(e, false, t, f, false), t, f, next)
}

// effect compiles e for its side effects only. Conditional expressions are
// drained into one join so nothing is left on the stack or in the flags.
func (g *Generator) effect(e ast.Expr) {
	switch x := e.(type) {
	case *ast.Logical:
	case *ast.Binary:
		if !x.Op.IsComparison() {
			g.load(e)
			return
		}
	case *ast.Unary:
		if x.Op != ast.OpNot {
			g.load(e)
			return
		}
	default:
		g.load(e)
		return
	}
	join := g.newTarget("drain")
	g.test(e, join, join, join)
	g.bind(join)
}

// branchOn consumes a condition, sending control to t or f
func (g *Generator) branchOn(c Condition, t, f, next *JumpTarget) {
	switch c.kind {
	case condJumped:
	case condBranch:
		switch next {
		case t:
			g.branch(c.cc.Negate(), f)
		case f:
			g.branch(c.cc, t)
		default:
			g.branch(c.cc, t)
			g.jump(f)
		}
	case condValue:
		if c.negated {
			t, f = f, t
		}
		g.toBoolean(t, f, next, false)
	}
}

// toBoolean branches on the truth of R0. The common cases are decided
// inline; heap numbers, strings and objects go to the runtime. With keep
// set R0 still holds the tested value on both exits.
func (g *Generator) toBoolean(t, f, next *JumpTarget, keep bool) {
	if g.dead {
		return
	}
	g.asm.Comment("ToBoolean")
	g.asm.CompareRoot(masm.R0, rt.RootFalse)
	g.branch(masm.Equal, f)
	g.asm.CompareRoot(masm.R0, rt.RootTrue)
	g.branch(masm.Equal, t)
	g.asm.CompareRoot(masm.R0, rt.RootUndefined)
	g.branch(masm.Equal, f)
	g.asm.CmpImm(masm.R0, 0)
	g.branch(masm.Equal, f)
	g.asm.TestImm(masm.R0, rt.SmiMask)
	g.branch(masm.Equal, t)

	if keep {
		g.frame.Push(masm.R0)
	}
	g.frame.Push(masm.R0)
	g.callRuntime(rt.ToBoolean, 1)
	g.asm.CompareRoot(masm.R0, rt.RootTrue)
	if keep {
		g.frame.Pop(masm.R0)
	}
	switch next {
	case t:
		g.branch(masm.NotEqual, f)
	case f:
		g.branch(masm.Equal, t)
	default:
		g.branch(masm.Equal, t)
		g.jump(f)
	}
}

// materialize turns pending flags into the true or false value
func (g *Generator) materialize(cc masm.Cond) {
	if g.dead {
		return
	}
	var isTrue, done masm.Label
	g.asm.Branch(cc, &isTrue)
	g.asm.LoadRoot(masm.R0, rt.RootFalse)
	g.asm.Jump(&done)
	g.asm.Bind(&isTrue)
	g.asm.LoadRoot(masm.R0, rt.RootTrue)
	g.asm.Bind(&done)
}

// materializeTest compiles e in control context and synthesizes a boolean
// on both arms. With negate set the arms are swapped.
func (g *Generator) materializeTest(e ast.Expr, negate bool) {
	t := g.newTarget("true")
	f := g.newTarget("false")
	done := g.newTarget("materialized")
	if negate {
		g.test(e, f, t, t)
	} else {
		g.test(e, t, f, t)
	}
	g.bind(t)
	if !g.dead {
		g.asm.LoadRoot(masm.R0, rt.RootTrue)
		g.jump(done)
	}
	g.bind(f)
	if !g.dead {
		g.asm.LoadRoot(masm.R0, rt.RootFalse)
	}
	g.bind(done)
}

// logicalValue compiles && or || for its value
func (g *Generator) logicalValue(e *ast.Logical) {
	g.load(e.L)
	rhs := g.newTarget("logical rhs")
	done := g.newTarget("logical value")
	if e.Op == ast.OpAnd {
		g.toBoolean(rhs, done, rhs, true)
	} else {
		g.toBoolean(done, rhs, rhs, true)
	}
	g.bind(rhs)
	if !g.dead {
		g.load(e.R)
	}
	g.bind(done)
}
