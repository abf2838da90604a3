package syntax

import (
	"errors"
	"math"
	"testing"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
)

func TestLexerTokens(t *testing.T) {
	lx := NewLexer("t.js", "x >>>= 0x10; // comment\n'a\\n' 1.5e3")
	want := []struct {
		tt    TokenType
		value string
	}{
		{TOKEN_IDENT, "x"},
		{TOKEN_PUNCT, ">>>="},
		{TOKEN_NUMBER, "0x10"},
		{TOKEN_PUNCT, ";"},
		{TOKEN_STRING, "a\n"},
		{TOKEN_NUMBER, "1.5e3"},
		{TOKEN_EOF, ""},
	}
	for i, w := range want {
		tok, err := lx.NextToken()
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		if tok.Type != w.tt || tok.Value != w.value {
			t.Errorf("token %d = (%d, %q), want (%d, %q)", i, tok.Type, tok.Value, w.tt, w.value)
		}
	}
}

func TestLexerNewlineFlag(t *testing.T) {
	lx := NewLexer("t.js", "a\nb")
	a, _ := lx.NextToken()
	b, _ := lx.NextToken()
	if a.NewlineBefore || !b.NewlineBefore {
		t.Errorf("newline flags: a=%v b=%v", a.NewlineBefore, b.NewlineBefore)
	}
}

func TestParsePrecedence(t *testing.T) {
	e, err := ParseExpression("a + b * c < d && !e")
	if err != nil {
		t.Fatal(err)
	}
	and, ok := e.(*ast.Logical)
	if !ok || and.Op != ast.OpAnd {
		t.Fatalf("top is %T, want &&", e)
	}
	lt, ok := and.L.(*ast.Binary)
	if !ok || lt.Op != ast.OpLt {
		t.Fatalf("left of && is %T, want <", and.L)
	}
	add, ok := lt.L.(*ast.Binary)
	if !ok || add.Op != ast.OpAdd {
		t.Fatalf("left of < is %T, want +", lt.L)
	}
	if mul, ok := add.R.(*ast.Binary); !ok || mul.Op != ast.OpMul {
		t.Fatalf("right of + is %T, want *", add.R)
	}
}

func TestParseNegativeZeroLiteral(t *testing.T) {
	e, err := ParseExpression("-0")
	if err != nil {
		t.Fatal(err)
	}
	lit, ok := e.(*ast.NumberLit)
	if !ok || lit.Value != 0 || !math.Signbit(lit.Value) {
		t.Errorf("-0 parsed as %#v", e)
	}
}

func TestParseStatements(t *testing.T) {
	src := `
outer: for (var i = 0; i < 3; i++) {
  for (var k in o) { if (k) continue outer; else break }
}
switch (x) { case 1: y = 2; break; default: y = 3 }
try { throw 1 } catch (e) { } finally { z++ }
do x--; while (x > 0)
`
	fn, err := ParseScript("t.js", src)
	if err != nil {
		t.Fatal(err)
	}
	if len(fn.Body) != 4 {
		t.Fatalf("got %d top-level statements, want 4", len(fn.Body))
	}
	if _, ok := fn.Body[0].(*ast.Labeled); !ok {
		t.Errorf("statement 0 is %T", fn.Body[0])
	}
	if _, ok := fn.Body[2].(*ast.Try); !ok {
		t.Errorf("statement 2 is %T", fn.Body[2])
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := ParseScript("t.js", "var = 3;")
	var ce engine.CompilerError
	if !errors.As(err, &ce) || ce.Category != engine.CategorySyntax {
		t.Fatalf("got %v, want a syntax error", err)
	}
	if ce.Location.Line != 1 || ce.Location.Column != 5 {
		t.Errorf("error location = %s", ce.Location)
	}
}

func TestReturnRestrictedProduction(t *testing.T) {
	fn, err := ParseScript("t.js", "function f() { return\n1 }")
	if err != nil {
		t.Fatal(err)
	}
	decl := fn.Body[0].(*ast.FuncDecl)
	ret := decl.Fn.Body[0].(*ast.Return)
	if ret.Value != nil {
		t.Errorf("return followed by a newline should have no value")
	}
}

func parseAndResolve(t *testing.T, src string) *ast.Function {
	t.Helper()
	fn, err := ParseScript("t.js", src)
	if err != nil {
		t.Fatal(err)
	}
	if err := Resolve(fn); err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestResolveSlots(t *testing.T) {
	fn := parseAndResolve(t, `
var g = 1;
function f(a, b) {
  var x = a;
  function inner() { return b + x; }
  return inner;
}`)
	if len(fn.Globals) != 2 || fn.Globals[0] != "g" || fn.Globals[1] != "f" {
		t.Errorf("globals = %v", fn.Globals)
	}
	f := fn.FuncDecls[0].Fn
	s := f.Scope
	if s.Params[0].Location != ast.LocParameter {
		t.Errorf("a should stay a parameter, got %s", s.Params[0].Location)
	}
	if s.Params[1].Location != ast.LocContext {
		t.Errorf("b is captured and should be in the context, got %s", s.Params[1].Location)
	}
	if s.NumSlots != 2 {
		t.Errorf("f allocates %d context slots, want 2", s.NumSlots)
	}
	if got := s.CapturedParams(); len(got) != 1 || got[0] != 1 {
		t.Errorf("CapturedParams = %v", got)
	}

	inner := f.FuncDecls[0].Fn
	ret := inner.Body[0].(*ast.Return)
	add := ret.Value.(*ast.Binary)
	b := add.L.(*ast.Ident)
	if b.Var != s.Params[1] || b.Depth != 0 {
		t.Errorf("b resolves to %+v at depth %d", b.Var, b.Depth)
	}
}

func TestResolveDepthThroughContexts(t *testing.T) {
	fn := parseAndResolve(t, `
function a() {
  var x = 1;
  function b() {
    var y = 2;
    function c() { return x + y; }
    return c;
  }
  return b;
}`)
	b := fn.FuncDecls[0].Fn.FuncDecls[0].Fn
	c := b.FuncDecls[0].Fn
	add := c.Body[0].(*ast.Return).Value.(*ast.Binary)
	x := add.L.(*ast.Ident)
	y := add.R.(*ast.Ident)
	// c has no context of its own; b's context holds y and links to a's
	if y.Depth != 0 || x.Depth != 1 {
		t.Errorf("depths: x=%d y=%d, want 1 and 0", x.Depth, y.Depth)
	}
}

func TestResolveRedeclaration(t *testing.T) {
	fn, err := ParseScript("t.js", "{ let a = 1; let a = 2; }")
	if err != nil {
		t.Fatal(err)
	}
	err = Resolve(fn)
	var ce engine.CompilerError
	if !errors.As(err, &ce) || ce.Category != engine.CategorySemantic {
		t.Fatalf("got %v, want a redeclaration error", err)
	}
}

func TestResolveArgumentsAndSelf(t *testing.T) {
	fn := parseAndResolve(t, "var f = function fact(n) { return arguments.length ? fact : 0; };")
	lit := fn.Literals[0]
	if lit.ArgumentsVar == nil || lit.ArgumentsVar.Location != ast.LocLocal {
		t.Errorf("arguments should be a local, got %+v", lit.ArgumentsVar)
	}
	if lit.SelfVar == nil || lit.SelfVar.Location != ast.LocFunction {
		t.Errorf("fact should resolve to the closure slot, got %+v", lit.SelfVar)
	}
}

func TestResolveBlockShadowing(t *testing.T) {
	fn := parseAndResolve(t, "function f() { var e = 1; try { } catch (e) { e; } return e; }")
	f := fn.FuncDecls[0].Fn
	try := f.Body[1].(*ast.Try)
	inner := try.Catch.List[0].(*ast.ExprStmt).X.(*ast.Ident)
	outer := f.Body[2].(*ast.Return).Value.(*ast.Ident)
	if inner.Var == outer.Var {
		t.Errorf("catch parameter must not alias the var")
	}
	if inner.Var.Mode != ast.ModeCatch {
		t.Errorf("catch binding mode = %v", inner.Var.Mode)
	}
}
