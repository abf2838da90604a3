// Completion: 95% - Baseline code generator complete for the supported subset
package codegen

import (
	"fmt"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// Options control code generation for one function
type Options struct {
	Eval        bool // declarations go through DeclareEvalVar one at a time
	BreakSlots  bool // emit a break slot at every statement boundary
	DepthChecks bool // verify SP against FP at run time at statement boundaries
	MaxDepth    int  // nesting limit of the recursive visit
}

// DefaultMaxDepth bounds recursion when Options.MaxDepth is zero
const DefaultMaxDepth = 200

// Generator walks one resolved function and emits its code through an
// Assembler. It is not safe for concurrent use.
type Generator struct {
	asm   masm.Assembler
	fn    *ast.Function
	scope *ast.Scope
	opts  Options
	frame *Frame

	dead       bool // the current position is unreachable
	nesting    int
	loc        engine.SourceLocation
	breakables []*breakable
	returnT    *JumpTarget
	deferred   []*deferredCode
	shadows    int // escape shadows currently installed
}

type bailout struct{ err engine.CompilerError }

// Generate compiles fn into asm
func Generate(fn *ast.Function, asm masm.Assembler, opts Options) (err error) {
	if fn.Scope == nil {
		return fmt.Errorf("codegen: function %s is not resolved", fn.DisplayName())
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	g := &Generator{
		asm:   asm,
		fn:    fn,
		scope: fn.Scope,
		opts:  opts,
		frame: newFrame(asm, len(fn.Params), fn.Scope.NumLocals),
		loc:   fn.Loc(),
	}

	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			err = b.err
		}
	}()

	engine.Tracef("codegen: %s params=%d locals=%d slots=%d\n",
		fn.DisplayName(), len(fn.Params), g.scope.NumLocals, g.scope.NumSlots)
	g.generate()
	return nil
}

func (g *Generator) fail(err engine.CompilerError) {
	if engine.VerboseMode {
		engine.Tracef("codegen error: %s\n", err.Error())
	}
	panic(bailout{err})
}

// internal reports a broken invariant of the generator itself
func (g *Generator) internal(format string, args ...any) {
	g.fail(engine.InternalError(fmt.Sprintf(format, args...), g.loc))
}

func (g *Generator) enter(n ast.Node) {
	g.nesting++
	if g.nesting > g.opts.MaxDepth {
		g.fail(engine.NestingError(g.opts.MaxDepth, n.Loc()))
	}
}

func (g *Generator) leave() {
	g.nesting--
}

// generate emits the whole code object: prologue, body, the return
// sequence and the deferred code.
func (g *Generator) generate() {
	g.returnT = &JumpTarget{name: "return", flexible: true}

	g.prologue()
	g.statements(g.fn.Body)

	if !g.dead {
		g.asm.Comment("implicit return")
		g.asm.LoadRoot(masm.R0, rt.RootUndefined)
		g.jump(g.returnT)
	}
	g.epilogue()
	g.emitDeferred()

	if len(g.breakables) != 0 || g.shadows != 0 {
		g.internal("unbalanced control targets at end of %s", g.fn.DisplayName())
	}
}
