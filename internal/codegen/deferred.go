package codegen

import (
	"github.com/xyproto/fullgen/internal/masm"
)

// deferredCode is an out-of-line slow path. The fast path branches to entry
// at a known frame depth; the slow path ends with a jump back to exit at the
// same depth with its result in R0. Deferred blocks are emitted after the
// return sequence so they never fall into the following fast-path code.
type deferredCode struct {
	entry masm.Label
	exit  masm.Label
	depth int
	name  string
	emit  func(d *deferredCode)
}

// deferCode registers a slow path entered at the current depth
func (g *Generator) deferCode(name string, emit func(d *deferredCode)) *deferredCode {
	d := &deferredCode{depth: g.frame.Depth(), name: name, emit: emit}
	g.deferred = append(g.deferred, d)
	return d
}

// deferredExit returns from a slow path to its fast path
func (g *Generator) deferredExit(d *deferredCode) {
	if g.frame.Depth() != d.depth {
		g.internal("deferred %s exits at depth %d, entered at %d", d.name, g.frame.Depth(), d.depth)
	}
	g.asm.Jump(&d.exit)
	g.dead = true
}

// emitDeferred flushes the pending slow paths. Emitting one may register
// more, so the list is walked by index.
func (g *Generator) emitDeferred() {
	for i := 0; i < len(g.deferred); i++ {
		d := g.deferred[i]
		g.asm.Comment("deferred %s", d.name)
		g.asm.Bind(&d.entry)
		g.frame.SetDepth(d.depth)
		g.dead = false
		d.emit(d)
		if !g.dead {
			g.internal("deferred %s falls through", d.name)
		}
	}
	g.deferred = nil
}
