package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/rt"
	"github.com/xyproto/fullgen/internal/sim"
	"github.com/xyproto/fullgen/internal/syntax"
)

// harness compiles scripts for the reference machine and runs them on one
// machine, compiling nested functions when they are first called
type harness struct {
	t     *testing.T
	opts  Options
	m     *sim.Machine
	out   bytes.Buffer
	progs []*sim.Program
}

func newHarness(t *testing.T, opts Options) *harness {
	h := &harness{t: t, opts: opts}
	h.m = sim.NewMachine(sim.Options{Stdout: &h.out, MaxSteps: 5_000_000, Compile: h.compile})
	return h
}

func (h *harness) compile(payload any) (*sim.Program, error) {
	fn, ok := payload.(*ast.Function)
	if !ok {
		return nil, fmt.Errorf("cannot compile %T", payload)
	}
	a := sim.New()
	if err := Generate(fn, a, h.opts); err != nil {
		return nil, err
	}
	p, err := a.Finish(fn.DisplayName(), len(fn.Params))
	if err != nil {
		return nil, err
	}
	h.progs = append(h.progs, p)
	return p, nil
}

func (h *harness) exec(src string) error {
	fn, err := syntax.ParseScript("test.js", src)
	if err != nil {
		return err
	}
	if err := syntax.Resolve(fn); err != nil {
		return err
	}
	p, err := h.compile(fn)
	if err != nil {
		return err
	}
	_, err = h.m.RunScript(p)
	return err
}

// run executes src and fails the test on any error
func (h *harness) run(src string) {
	h.t.Helper()
	if err := h.exec(src); err != nil {
		h.t.Fatalf("running %q: %v", src, err)
	}
	if d := h.m.StackDepth(); d != 0 {
		h.t.Fatalf("stack depth %d after the script", d)
	}
}

func (h *harness) global(name string) sim.Value {
	h.t.Helper()
	v, ok := h.m.GetGlobal(name)
	if !ok {
		h.t.Fatalf("global %s is not defined", name)
	}
	return v
}

func (h *harness) str(name string) string {
	h.t.Helper()
	return h.m.ToString(h.global(name))
}

func (h *harness) number(name string) float64 {
	h.t.Helper()
	f, ok := h.m.NumberValue(h.global(name))
	if !ok {
		h.t.Fatalf("global %s is %s, not a number", name, h.str(name))
	}
	return f
}

func (h *harness) program(name string) *sim.Program {
	h.t.Helper()
	for _, p := range h.progs {
		if p.Name == name {
			return p
		}
	}
	h.t.Fatalf("no program named %s", name)
	return nil
}

func TestSmiFastPathsMatchRuntime(t *testing.T) {
	pairs := [][2]int32{
		{3, 4}, {-7, 2}, {0, -5}, {-5, 0}, {0, 5}, {0, 0},
		{math.MaxInt32, 1}, {math.MinInt32, 1}, {math.MinInt32, -1},
		{65536, 65536}, {-65536, 65536}, {46341, 46341}, {1 << 30, 2},
	}
	ops := []struct {
		op string
		fn func(a, b float64) float64
	}{
		{"+", func(a, b float64) float64 { return a + b }},
		{"-", func(a, b float64) float64 { return a - b }},
		{"*", func(a, b float64) float64 { return a * b }},
	}
	for _, p := range pairs {
		for _, o := range ops {
			h := newHarness(t, Options{})
			a, b := p[0], p[1]
			h.run(fmt.Sprintf("var x = %d, y = %d; var lit = %d %s %d; var gen = x %s y;", a, b, a, o.op, b, o.op))
			want := o.fn(float64(a), float64(b))
			for _, name := range []string{"lit", "gen"} {
				got := h.number(name)
				if math.Float64bits(got) != math.Float64bits(want) {
					t.Errorf("%d %s %d (%s) = %v, want %v", a, o.op, b, name, got, want)
				}
			}
		}
	}
}

func TestNegativeZeroProduct(t *testing.T) {
	h := newHarness(t, Options{})
	h.run("print(0 * -5, 1 / (0 * -5), -0 * 5, 1 / (-0 * 5), 0 * 5, 1 / (0 * 5));")
	if got := h.out.String(); got != "0 -Infinity 0 -Infinity 0 Infinity\n" {
		t.Errorf("printed %q", got)
	}
}

func TestDivisionAndRemainder(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`print(7 / 2, 8 / 2, 1 / 0, -7 % 3, 7 % -3, -3 % 3, 1 / (-3 % 3), 0 / -4, 1 / (0 / -4), 5 % 0);
var a = -2147483648, b = -1; print(a / b, a % b);`)
	want := "3.5 4 Infinity -1 1 0 -Infinity 0 -Infinity NaN\n2147483648 0\n"
	if got := h.out.String(); got != want {
		t.Errorf("printed %q, want %q", got, want)
	}
}

func TestBitwiseAndShifts(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var n = -8, s = 33;
print(n >> 1, n >>> 28, n >>> 0, 1 << 31, 5 & 3, 5 | 3, 5 ^ 3, ~5, n << s, n >> s, "12" >> 1);`)
	want := "-4 15 4294967288 -2147483648 1 7 6 -6 -16 -4 6\n"
	if got := h.out.String(); got != want {
		t.Errorf("printed %q, want %q", got, want)
	}
}

func TestStringConcatenationAndComparison(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var s = "a" + 1 + 2; var t = 1 + 2 + "a";
print(s, t, "b" > "a", "a" < "a", 2 < "10", 0 == "", null == undefined, null === undefined, NaN < 1, NaN >= 1);`)
	want := "a12 3a true false true true true false false false\n"
	if got := h.out.String(); got != want {
		t.Errorf("printed %q, want %q", got, want)
	}
}

func TestLoopSum(t *testing.T) {
	h := newHarness(t, Options{})
	h.run("function f(n) { var s = 0; for (var i = 0; i < n; i++) { s += i; } return s; }")
	v, err := h.m.Call(h.global("f"), h.m.Undefined(), rt.Smi(5))
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsSmi() || v.SmiValue() != 10 {
		t.Errorf("f(5) = %s, want 10", h.m.ToString(v))
	}
}

func TestFinallyRunsOnceOnReturn(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var count = 0;
function f() { try { return 7; } finally { count++; } }
var r = f();`)
	if r := h.number("r"); r != 7 {
		t.Errorf("f() = %v, want 7", r)
	}
	if c := h.number("count"); c != 1 {
		t.Errorf("finally ran %v times", c)
	}
}

func TestFinallyCallsBeforeReturn(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var log = "";
function g() { log += "g"; }
function f() { try { return 1; } finally { g(); } }
var r = f();
log += "r" + r;`)
	if got := h.str("log"); got != "gr1" {
		t.Errorf("log is %q, want g before the return of 1", got)
	}
}

func TestFinallyCompletions(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var log = "";
for (var i = 0; i < 4; i++) {
  try {
    if (i == 1) continue;
    if (i == 3) break;
    log += "b" + i;
  } finally {
    log += "f" + i;
  }
}
function thrower() { try { throw "e"; } finally { log += "t"; } }
try { thrower(); } catch (x) { log += "c" + x; }
function override() { try { return 1; } finally { return 2; } }
var o = override();`)
	if got := h.str("log"); got != "b0f0f1b2f2f3tce" {
		t.Errorf("log is %q", got)
	}
	if o := h.number("o"); o != 2 {
		t.Errorf("return in finally gave %v", o)
	}
}

func TestJumpsOutOfFinally(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var log = "";
for (var i = 0; i < 3; i++) {
  try { log += "b" + i; } finally { if (i == 1) continue; log += "f" + i; }
  log += "e" + i;
}
var n = 0;
while (true) {
  n++;
  try { log += "w"; } finally { break; }
}
do {
  try { throw "lost"; } finally { log += "d"; break; }
} while (true);
outer: {
  try { log += "l"; } finally { break outer; }
  log += "unreachable";
}
log += "!";`)
	if got := h.str("log"); got != "b0f0e0b1b2f2e2wdl!" {
		t.Errorf("log is %q", got)
	}
	if n := h.number("n"); n != 1 {
		t.Errorf("while ran %v times", n)
	}
}

func TestUndefinedLabelHint(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.exec("outer: for (;;) { inner: while (true) { break outr; } }")
	var ce engine.CompilerError
	if !errors.As(err, &ce) || !strings.Contains(ce.Message, `"outr"`) {
		t.Fatalf("got %v, want an undefined label error", err)
	}
	if ce.Hint != `did you mean "outer"?` {
		t.Errorf("hint %q", ce.Hint)
	}
}

func TestCatchBindingAndHandlerRestore(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var out = "";
try {
  try { throw "inner"; } catch (x) { out += x; }
  out += ":";
  throw "outer";
} catch (y) { out += y; }
function nested() {
  var seen = "";
  try {
    try { throw 1; } catch (e) { seen += e; }
    try { throw 2; } catch (e) { seen += e; }
  } catch (never) { seen += "!"; }
  return seen;
}
var n = nested();`)
	if got := h.str("out"); got != "inner:outer" {
		t.Errorf("out is %q", got)
	}
	if got := h.str("n"); got != "12" {
		t.Errorf("nested handlers gave %q", got)
	}
}

func TestUncaughtThrow(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.exec(`function f() { throw "away"; } f();`)
	var thrown *sim.ThrownError
	if !errors.As(err, &thrown) || thrown.Text != "away" {
		t.Fatalf("got %v, want the thrown string", err)
	}
	if d := h.m.StackDepth(); d != 0 {
		t.Errorf("stack depth %d after an uncaught throw", d)
	}
}

func TestMissingGlobal(t *testing.T) {
	h := newHarness(t, Options{})
	err := h.exec("nope;")
	var thrown *sim.ThrownError
	if !errors.As(err, &thrown) || thrown.Text != "ReferenceError: nope is not defined" {
		t.Fatalf("got %v", err)
	}
	h.run(`var kind = typeof nope;`)
	if got := h.str("kind"); got != "undefined" {
		t.Errorf("typeof of a missing global is %q", got)
	}
}

func TestForInSkipsDeletedKeys(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var o = {a: 1, b: 2, c: 3}; var s = "";
for (var k in o) { if (k == "a") delete o.b; s += k; }
var p = {a: 1, b: 2, c: 3}; var t = "";
for (var k in p) { delete p[k]; t += k; }
var q = {x: 1, y: 2}; var u = "";
for (var k in q) u += k;
for (var k in q) u += k;
var w = "";
for (var k in null) w += k;
for (var k in undefined) w += k;
for (var k in 5) w += k;
for (var k in [7, 8]) w += k;`)
	for name, want := range map[string]string{"s": "ac", "t": "abc", "u": "xyxy", "w": "01"} {
		if got := h.str(name); got != want {
			t.Errorf("%s is %q, want %q", name, got, want)
		}
	}
}

func TestClosures(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`function counter() {
  var n = 0;
  var box = {};
  return function () { n = n + 1; box = {n: n}; return box.n; };
}
var c = counter(); c(); c();
var r = c();
var fact = function f(x) { return x <= 1 ? 1 : x * f(x - 1); };
var six = fact(3);`)
	if r := h.number("r"); r != 3 {
		t.Errorf("counter gave %v", r)
	}
	if v := h.number("six"); v != 6 {
		t.Errorf("fact(3) = %v", v)
	}
	if h.m.Stats().RecordWrites == 0 {
		t.Error("storing objects into a context never notified the collector")
	}
}

func TestArityAdaptationAndArguments(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`function f(a, b) { return arguments.length * 10 + (b === undefined ? 1 : 0); }
var few = f(1);
var many = f(1, 2, 3);
function second() { return arguments[1]; }
var s = second("x", "y");`)
	if v := h.number("few"); v != 11 {
		t.Errorf("f(1) = %v, want 11", v)
	}
	if v := h.number("many"); v != 30 {
		t.Errorf("f(1, 2, 3) = %v, want 30", v)
	}
	if v := h.str("s"); v != "y" {
		t.Errorf("arguments[1] is %q", v)
	}
	if h.m.Stats().Adaptations == 0 {
		t.Error("no call was adapted")
	}
}

func TestLabelsAndSwitch(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var s = "";
outer: for (var i = 0; i < 3; i++) {
  switch (i) {
  case 0: s += "a"; break;
  case 1: s += "b"; continue outer;
  default: s += "c"; break outer;
  }
  s += ";";
}
block: { s += "x"; break block; }
var j = 0;
do { j++; } while (j < 5);
while (true) { if (j > 7) break; j++; }`)
	if got := h.str("s"); got != "a;bcx" {
		t.Errorf("s is %q", got)
	}
	if j := h.number("j"); j != 8 {
		t.Errorf("j is %v", j)
	}
}

func TestLogicalValues(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`var a = 0 || "x", b = 1 && null, c = "" && 1, d = !0, e = !!"s", f = (1, 2);
var g = (1 < 2) ? "yes" : "no";
var obj = {k: 1}; var has = "k" in obj, hasnt = "z" in obj;`)
	for name, want := range map[string]string{
		"a": "x", "b": "null", "c": "", "d": "true", "e": "true", "f": "2",
		"g": "yes", "has": "true", "hasnt": "false",
	} {
		if got := h.str(name); got != want {
			t.Errorf("%s is %q, want %q", name, got, want)
		}
	}
}

func TestConstAssignmentIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`function f() { const c = 1; c = 2; let l = 3; l += 1; return c * 10 + l; }
var r = f();`)
	if r := h.number("r"); r != 14 {
		t.Errorf("f() = %v, want 14", r)
	}
}

func TestStackGuard(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`function r() { return r(); }
var msg = "";
try { r(); } catch (e) { msg = e.message; }`)
	if got := h.str("msg"); got != "Maximum call stack size exceeded" {
		t.Errorf("caught %q", got)
	}
}

func TestICFeedback(t *testing.T) {
	h := newHarness(t, Options{})
	h.run(`function getx(o) { return o.x; }
getx({x: 1}); getx({x: 2});`)
	p := h.program("getx")
	sites := h.m.ICSites(p)
	if len(sites) != 1 || sites[0].State != sim.ICMonomorphic {
		t.Fatalf("sites after two loads of one shape: %+v", sites)
	}
	h.run(`getx({y: 0, x: 3});`)
	if s := h.m.ICSites(p)[0]; s.State != sim.ICMegamorphic || s.Hits != 3 {
		t.Errorf("site after a second shape: %+v", s)
	}
}

func TestEvalDeclarations(t *testing.T) {
	for _, eval := range []bool{false, true} {
		h := newHarness(t, Options{Eval: eval})
		h.run(`var a = 1, b; function c() {}`)
		p := h.program("<script>")
		var evalVars, globals int
		for _, in := range p.Instrs {
			if in.Op != sim.OpCallRuntime {
				continue
			}
			switch in.Entry {
			case rt.DeclareEvalVar:
				evalVars++
			case rt.DeclareGlobals:
				globals++
			}
		}
		if eval && (evalVars != 3 || globals != 0) {
			t.Errorf("eval code: %d DeclareEvalVar, %d DeclareGlobals", evalVars, globals)
		}
		if !eval && (evalVars != 0 || globals != 1) {
			t.Errorf("script: %d DeclareEvalVar, %d DeclareGlobals", evalVars, globals)
		}
		if h.m.ToString(h.global("b")) != "undefined" {
			t.Error("b was not declared")
		}
	}
}

func TestDepthChecksAndBreakSlots(t *testing.T) {
	h := newHarness(t, Options{DepthChecks: true, BreakSlots: true})
	h.run(`var o = {a: [1, 2]}; var s = 0;
for (var k in o) { s += o[k][1]; }
function f(x) { try { return x.a[0]; } finally { s++; } }
s += f(o);
debugger;`)
	// s is read before f runs its finally
	if s := h.number("s"); s != 3 {
		t.Errorf("s is %v", s)
	}
	if h.program("<script>").Count(sim.OpTrap) == 0 {
		t.Error("no depth checks were emitted")
	}
	if h.m.Stats().BreakSlots == 0 {
		t.Error("no break slot was executed")
	}
}

func TestCompileDepthLimit(t *testing.T) {
	h := newHarness(t, Options{MaxDepth: 8})
	err := h.exec("var x = 1 + (1 + (1 + (1 + (1 + (1 + (1 + (1 + (1 + 1))))))));")
	var ce engine.CompilerError
	if !errors.As(err, &ce) || !strings.Contains(ce.Message, "8") {
		t.Fatalf("got %v, want a nesting limit error", err)
	}
}

func TestUnresolvedFunction(t *testing.T) {
	fn := &ast.Function{IsScript: true}
	if err := Generate(fn, sim.New(), Options{}); err == nil {
		t.Error("an unresolved function compiled")
	}
}
