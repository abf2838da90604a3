package codegen

import (
	"github.com/xyproto/fullgen/internal/masm"
)

// JumpTarget is a label together with the canonical frame depth every
// incoming edge must have. A jump from a deeper position drops the extra
// cells first; a jump from a shallower one is a generator bug.
//
// Flexible targets accept any incoming depth. When bound with a reset they
// restore SP from FP, which is how handler unlink paths discard whatever a
// try body left on the stack.
type JumpTarget struct {
	label    masm.Label
	name     string
	depth    int
	hasDepth bool
	flexible bool
	resetSP  bool
	used     bool
}

func (g *Generator) newTarget(name string) *JumpTarget {
	return &JumpTarget{name: name}
}

// newTargetAt creates a target whose canonical depth is fixed up front
func (g *Generator) newTargetAt(name string, depth int) *JumpTarget {
	return &JumpTarget{name: name, depth: depth, hasDepth: true}
}

// newFlexibleTarget creates a target that resets SP to depth when bound
func (g *Generator) newFlexibleTarget(name string, depth int) *JumpTarget {
	return &JumpTarget{name: name, depth: depth, hasDepth: true, flexible: true, resetSP: true}
}

// Used reports whether any reachable code jumps to the target
func (t *JumpTarget) Used() bool {
	return t.used
}

func (g *Generator) adjustTo(t *JumpTarget) int {
	if !t.hasDepth {
		t.depth = g.frame.Depth()
		t.hasDepth = true
	}
	n := g.frame.Depth() - t.depth
	if n < 0 {
		g.internal("jump to %s from depth %d, below its depth %d", t.name, g.frame.Depth(), t.depth)
	}
	return n
}

// jump transfers control unconditionally, dropping cells down to the
// target's depth
func (g *Generator) jump(t *JumpTarget) {
	if g.dead {
		return
	}
	t.used = true
	if !t.flexible {
		if n := g.adjustTo(t); n > 0 {
			g.asm.Drop(n)
		}
	}
	g.asm.Jump(&t.label)
	g.dead = true
}

// branch transfers control when cc holds. The frame depth is unchanged on
// the fall-through path.
func (g *Generator) branch(cc masm.Cond, t *JumpTarget) {
	if g.dead {
		return
	}
	t.used = true
	if t.flexible {
		g.asm.Branch(cc, &t.label)
		return
	}
	n := g.adjustTo(t)
	if n == 0 {
		g.asm.Branch(cc, &t.label)
		return
	}
	var skip masm.Label
	g.asm.Branch(cc.Negate(), &skip)
	g.asm.Drop(n)
	g.asm.Jump(&t.label)
	g.asm.Bind(&skip)
}

// bind places the target. Falling into it from a different depth than the
// one it was reached with is a generator bug.
func (g *Generator) bind(t *JumpTarget) {
	g.asm.Bind(&t.label)
	if t.flexible {
		if !t.used && g.dead {
			return
		}
		if t.resetSP {
			g.asm.Lea(masm.SP, g.frame.StackPointerAt(t.depth))
			g.frame.SetDepth(t.depth)
		}
		g.dead = false
		return
	}
	if g.dead {
		if t.used {
			g.frame.SetDepth(t.depth)
			g.dead = false
		}
		return
	}
	if !t.hasDepth {
		t.depth = g.frame.Depth()
		t.hasDepth = true
		return
	}
	if t.depth != g.frame.Depth() {
		g.internal("merge at %s: incoming depth %d, expected %d", t.name, g.frame.Depth(), t.depth)
	}
}
