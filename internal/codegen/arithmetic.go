// Completion: 95% - Smi fast paths for every binary operator, no heap number inlining
package codegen

import (
	"math"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

var binaryEntries = map[ast.Op]rt.Entry{
	ast.OpAdd:    rt.Add,
	ast.OpSub:    rt.Sub,
	ast.OpMul:    rt.Mul,
	ast.OpDiv:    rt.Div,
	ast.OpMod:    rt.Mod,
	ast.OpBitOr:  rt.BitOr,
	ast.OpBitAnd: rt.BitAnd,
	ast.OpBitXor: rt.BitXor,
	ast.OpShl:    rt.Shl,
	ast.OpSar:    rt.Sar,
	ast.OpShr:    rt.Shr,
}

// smiLiteral reports the value of a literal that is a smi
func smiLiteral(e ast.Expr) (int32, bool) {
	lit, ok := e.(*ast.NumberLit)
	if !ok || !rt.FitsSmi(lit.Value) {
		return 0, false
	}
	return int32(lit.Value), true
}

// binary compiles an arithmetic, bitwise, in or instanceof expression
func (g *Generator) binary(e *ast.Binary) {
	switch e.Op {
	case ast.OpIn, ast.OpInstanceOf:
		g.load(e.L)
		g.frame.Push(masm.R0)
		g.load(e.R)
		g.frame.Push(masm.R0)
		if e.Op == ast.OpIn {
			g.callRuntime(rt.In, 2)
		} else {
			g.callRuntime(rt.InstanceOf, 2)
		}
		return
	}
	if _, ok := binaryEntries[e.Op]; !ok {
		g.internal("no arithmetic for operator %s", e.Op)
	}
	if c, ok := smiLiteral(e.R); ok {
		g.load(e.L)
		g.binaryLiteral(e.Op, c, true)
		return
	}
	if c, ok := smiLiteral(e.L); ok {
		g.load(e.R)
		g.binaryLiteral(e.Op, c, false)
		return
	}
	g.load(e.L)
	g.frame.Push(masm.R0)
	g.load(e.R)
	g.binaryStack(e.Op)
}

// binaryStack applies op to the left operand on top of the stack and the
// right operand in R0, popping the left one
func (g *Generator) binaryStack(op ast.Op) {
	g.frame.Pop(masm.R1)
	g.asm.Mov(masm.Tmp, masm.R1)
	g.asm.Or(masm.Tmp, masm.R0)
	g.asm.TestImm(masm.Tmp, rt.SmiMask)
	g.smiOperation(op, nil)
}

// binaryLiteral applies op to R0 and the smi c. Only R0 needs a tag check.
func (g *Generator) binaryLiteral(op ast.Op, c int32, constRight bool) {
	if constRight {
		g.asm.Mov(masm.R1, masm.R0)
		g.asm.MovImm(masm.R0, rt.SmiWord(c))
		g.asm.TestImm(masm.R1, rt.SmiMask)
	} else {
		g.asm.MovImm(masm.R1, rt.SmiWord(c))
		g.asm.TestImm(masm.R0, rt.SmiMask)
	}
	lit := &c
	if !constRight {
		lit = nil
	}
	g.smiOperation(op, lit)
}

// deferBinary registers the runtime fallback of op, pushing left and
// right in that order
func (g *Generator) deferBinary(op ast.Op, left, right masm.Reg) *deferredCode {
	entry := binaryEntries[op]
	return g.deferCode(op.String(), func(d *deferredCode) {
		g.frame.Push(left)
		g.frame.Push(right)
		g.callRuntime(entry, 2)
		g.deferredExit(d)
	})
}

// smiOperation emits the fast path once the flags hold the tag check. The
// left operand is in R1, the right one in R0 and the result ends up in R0.
// rightConst is set when the right operand is a known literal.
func (g *Generator) smiOperation(op ast.Op, rightConst *int32) {
	if op == ast.OpDiv || op == ast.OpMod {
		g.divMod(op)
		return
	}
	d := g.deferBinary(op, masm.R1, masm.R0)
	g.asm.Branch(masm.NotEqual, &d.entry)

	switch op {
	case ast.OpAdd:
		g.asm.Mov(masm.Tmp, masm.R1)
		g.asm.AddOverflow(masm.Tmp, masm.R0, &d.entry)
		g.asm.Mov(masm.R0, masm.Tmp)
	case ast.OpSub:
		g.asm.Mov(masm.Tmp, masm.R1)
		g.asm.SubOverflow(masm.Tmp, masm.R0, &d.entry)
		g.asm.Mov(masm.R0, masm.Tmp)
	case ast.OpMul:
		g.mul(d)
	case ast.OpBitOr:
		g.asm.Or(masm.R0, masm.R1)
	case ast.OpBitAnd:
		g.asm.And(masm.R0, masm.R1)
	case ast.OpBitXor:
		g.asm.Xor(masm.R0, masm.R1)
	case ast.OpShl, ast.OpSar, ast.OpShr:
		if rightConst != nil {
			g.shiftConst(op, uint8(*rightConst&31), d)
		} else {
			g.shift(op, d)
		}
	}
	g.asm.Bind(&d.exit)
}

// mul multiplies the untagged left operand by the tagged right one, which
// yields a tagged product. A zero product with a negative operand is -0,
// which is not a smi.
func (g *Generator) mul(d *deferredCode) {
	var done masm.Label
	g.asm.Mov(masm.Tmp, masm.R1)
	g.asm.SarImm(masm.Tmp, rt.SmiShift)
	g.asm.MulOverflow(masm.Tmp, masm.R0, &d.entry)
	g.asm.CmpImm(masm.Tmp, 0)
	g.asm.Branch(masm.NotEqual, &done)
	g.asm.Mov(masm.R3, masm.R1)
	g.asm.Or(masm.R3, masm.R0)
	g.asm.CmpImm(masm.R3, 0)
	g.asm.Branch(masm.Less, &d.entry)
	g.asm.Bind(&done)
	g.asm.Mov(masm.R0, masm.Tmp)
}

// divMod keeps the tagged operands in R2 and R3 for the slow path, since
// the division itself clobbers R0 and R1
func (g *Generator) divMod(op ast.Op) {
	d := g.deferBinary(op, masm.R2, masm.R3)
	g.asm.Mov(masm.R2, masm.R1)
	g.asm.Mov(masm.R3, masm.R0)
	g.asm.Branch(masm.NotEqual, &d.entry)

	g.asm.CmpImm(masm.R3, 0)
	g.asm.Branch(masm.Equal, &d.entry)

	var notMin masm.Label
	g.asm.MovImm(masm.Tmp, rt.SmiWord(math.MinInt32))
	g.asm.Cmp(masm.R2, masm.Tmp)
	g.asm.Branch(masm.NotEqual, &notMin)
	g.asm.MovImm(masm.Tmp, rt.SmiWord(-1))
	g.asm.Cmp(masm.R3, masm.Tmp)
	g.asm.Branch(masm.Equal, &d.entry)
	g.asm.Bind(&notMin)

	if op == ast.OpDiv {
		// 0 / -n is -0
		var nonzero masm.Label
		g.asm.CmpImm(masm.R2, 0)
		g.asm.Branch(masm.NotEqual, &nonzero)
		g.asm.CmpImm(masm.R3, 0)
		g.asm.Branch(masm.Less, &d.entry)
		g.asm.Bind(&nonzero)
	}

	g.asm.Mov(masm.R0, masm.R2)
	g.asm.SarImm(masm.R0, rt.SmiShift)
	g.asm.Mov(masm.Tmp, masm.R3)
	g.asm.SarImm(masm.Tmp, rt.SmiShift)
	g.asm.DivMod(masm.Tmp)

	if op == ast.OpDiv {
		g.asm.CmpImm(masm.R1, 0)
		g.asm.Branch(masm.NotEqual, &d.entry)
		g.asm.ShlImm(masm.R0, rt.SmiShift)
	} else {
		// -n % n is -0
		var ok masm.Label
		g.asm.CmpImm(masm.R1, 0)
		g.asm.Branch(masm.NotEqual, &ok)
		g.asm.CmpImm(masm.R2, 0)
		g.asm.Branch(masm.Less, &d.entry)
		g.asm.Bind(&ok)
		g.asm.Mov(masm.R0, masm.R1)
		g.asm.ShlImm(masm.R0, rt.SmiShift)
	}
	g.asm.Bind(&d.exit)
}

// shift handles a variable count. The count is masked to five bits.
func (g *Generator) shift(op ast.Op, d *deferredCode) {
	g.asm.Mov(masm.R2, masm.R0)
	g.asm.SarImm(masm.R2, rt.SmiShift)
	g.asm.AndImm(masm.R2, 31)
	g.asm.Mov(masm.R3, masm.R1)
	switch op {
	case ast.OpShl:
		g.asm.Shl(masm.R3, masm.R2)
	case ast.OpSar:
		g.asm.SarImm(masm.R3, rt.SmiShift)
		g.asm.Sar(masm.R3, masm.R2)
		g.asm.ShlImm(masm.R3, rt.SmiShift)
	case ast.OpShr:
		g.asm.ShrImm(masm.R3, rt.SmiShift)
		g.asm.Shr(masm.R3, masm.R2)
		// results from 2^31 up are not smis
		g.asm.TestImm(masm.R3, math.MinInt32)
		g.asm.Branch(masm.NotEqual, &d.entry)
		g.asm.ShlImm(masm.R3, rt.SmiShift)
	}
	g.asm.Mov(masm.R0, masm.R3)
}

func (g *Generator) shiftConst(op ast.Op, n uint8, d *deferredCode) {
	g.asm.Mov(masm.R3, masm.R1)
	switch op {
	case ast.OpShl:
		if n != 0 {
			g.asm.ShlImm(masm.R3, n)
		}
	case ast.OpSar:
		if n != 0 {
			g.asm.SarImm(masm.R3, rt.SmiShift+n)
			g.asm.ShlImm(masm.R3, rt.SmiShift)
		}
	case ast.OpShr:
		g.asm.ShrImm(masm.R3, rt.SmiShift+n)
		if n == 0 {
			g.asm.TestImm(masm.R3, math.MinInt32)
			g.asm.Branch(masm.NotEqual, &d.entry)
		}
		g.asm.ShlImm(masm.R3, rt.SmiShift)
	}
	g.asm.Mov(masm.R0, masm.R3)
}

// compare emits a comparison and returns the condition that holds when it
// is true. Both paths leave the flags behind: the fast one from comparing
// the tagged smis, the slow one from comparing the runtime result to zero.
func (g *Generator) compare(e *ast.Binary) masm.Cond {
	g.load(e.L)
	g.frame.Push(masm.R0)
	g.load(e.R)
	g.frame.Pop(masm.R1)
	return g.compareOperands(e.Op)
}

// compareOperands compares the left operand in R1 with the right one in R0
func (g *Generator) compareOperands(op ast.Op) masm.Cond {
	var cc masm.Cond
	entry := rt.Compare
	ncr := int32(0)
	switch op {
	case ast.OpEq:
		cc, entry = masm.Equal, rt.Equals
	case ast.OpNe:
		cc, entry = masm.NotEqual, rt.Equals
	case ast.OpStrictEq:
		cc, entry = masm.Equal, rt.StrictEquals
	case ast.OpStrictNe:
		cc, entry = masm.NotEqual, rt.StrictEquals
	case ast.OpLt:
		cc, ncr = masm.Less, rt.CompareGreater
	case ast.OpLe:
		cc, ncr = masm.LessEqual, rt.CompareGreater
	case ast.OpGt:
		cc, ncr = masm.Greater, rt.CompareLess
	case ast.OpGe:
		cc, ncr = masm.GreaterEqual, rt.CompareLess
	default:
		g.internal("%s is not a comparison", op)
	}

	d := g.deferCode("compare "+op.String(), func(d *deferredCode) {
		g.frame.Push(masm.R1)
		g.frame.Push(masm.R0)
		if entry == rt.Compare {
			// the result when either side is NaN
			g.asm.MovImm(masm.R1, rt.SmiWord(ncr))
			g.frame.Push(masm.R1)
			g.callRuntime(entry, 3)
		} else {
			g.callRuntime(entry, 2)
		}
		g.asm.CmpImm(masm.R0, 0)
		g.deferredExit(d)
	})
	g.asm.Mov(masm.Tmp, masm.R1)
	g.asm.Or(masm.Tmp, masm.R0)
	g.asm.TestImm(masm.Tmp, rt.SmiMask)
	g.asm.Branch(masm.NotEqual, &d.entry)
	g.asm.Cmp(masm.R1, masm.R0)
	g.asm.Bind(&d.exit)
	return cc
}

// unary compiles -, +, ~ on the value in R0
func (g *Generator) unary(op ast.Op) {
	switch op {
	case ast.OpNeg:
		// multiplying by -1 covers -0 and the overflow of -MIN
		g.asm.Mov(masm.R1, masm.R0)
		g.asm.MovImm(masm.R0, rt.SmiWord(-1))
		g.asm.TestImm(masm.R1, rt.SmiMask)
		c := int32(-1)
		g.smiOperation(ast.OpMul, &c)
	case ast.OpBitNot:
		g.asm.MovImm(masm.R1, rt.SmiWord(-1))
		g.asm.TestImm(masm.R0, rt.SmiMask)
		d := g.deferBinary(ast.OpBitXor, masm.R0, masm.R1)
		g.asm.Branch(masm.NotEqual, &d.entry)
		g.asm.Xor(masm.R0, masm.R1)
		g.asm.Bind(&d.exit)
	case ast.OpPlus:
		g.toNumber()
	default:
		g.internal("no unary arithmetic for %s", op)
	}
}

// toNumber converts R0 to a number, leaving smis alone
func (g *Generator) toNumber() {
	d := g.deferCode("ToNumber", func(d *deferredCode) {
		g.frame.Push(masm.R0)
		g.callRuntime(rt.ToNumber, 1)
		g.deferredExit(d)
	})
	g.asm.TestImm(masm.R0, rt.SmiMask)
	g.asm.Branch(masm.NotEqual, &d.entry)
	g.asm.Bind(&d.exit)
}
