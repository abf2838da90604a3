// Completion: 95% - Parser complete for the supported subset
package syntax

import (
	"fmt"
	"math"
	"strconv"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
)

// Parser builds a syntax tree from tokens. Errors abort the parse through a
// bailout panic that is recovered at the entry points.
type Parser struct {
	tokens []Token
	pos    int
	file   string
	source string
	depth  int
}

type bailout struct{ err engine.CompilerError }

const maxNesting = 512

// ParseScript parses a whole script into its top-level function
func ParseScript(file, source string) (fn *ast.Function, err error) {
	p, err := newParser(file, source)
	if err != nil {
		return nil, err
	}
	defer p.recover(&err)

	fn = &ast.Function{IsScript: true}
	fn.Location = engine.SourceLocation{File: file, Line: 1, Column: 1}
	for !p.at(TOKEN_EOF) {
		fn.Body = append(fn.Body, p.parseStatement())
	}
	return fn, nil
}

// ParseExpression parses a single expression, for tests and the REPL
func ParseExpression(source string) (e ast.Expr, err error) {
	p, err := newParser("<expr>", source)
	if err != nil {
		return nil, err
	}
	defer p.recover(&err)

	e = p.parseExpression(false)
	if !p.at(TOKEN_EOF) {
		p.fail("unexpected "+p.tok().String()+" after expression", p.tok().Loc)
	}
	return e, nil
}

func newParser(file, source string) (*Parser, error) {
	lexer := NewLexer(file, source)
	var tokens []Token
	for {
		tok, err := lexer.NextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TOKEN_EOF {
			break
		}
	}
	return &Parser{tokens: tokens, file: file, source: source}, nil
}

func (p *Parser) recover(err *error) {
	if r := recover(); r != nil {
		b, ok := r.(bailout)
		if !ok {
			panic(r)
		}
		*err = b.err
	}
}

func (p *Parser) fail(message string, loc engine.SourceLocation) {
	panic(bailout{engine.SyntaxError(message, loc)})
}

func (p *Parser) tok() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peekToken(n int) Token {
	if p.pos+n < len(p.tokens) {
		return p.tokens[p.pos+n]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) next() Token {
	t := p.tokens[p.pos]
	if t.Type != TOKEN_EOF {
		p.pos++
	}
	return t
}

func (p *Parser) at(tt TokenType) bool {
	return p.tok().Type == tt
}

func (p *Parser) is(value string) bool {
	return p.tok().Is(value)
}

func (p *Parser) accept(value string) bool {
	if p.is(value) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(value string) Token {
	t := p.tok()
	if !t.Is(value) {
		panic(bailout{engine.UnexpectedTokenError("'"+value+"'", t.String(), t.Loc)})
	}
	return p.next()
}

func (p *Parser) expectIdent() *ast.Ident {
	t := p.tok()
	if t.Type != TOKEN_IDENT {
		panic(bailout{engine.UnexpectedTokenError("identifier", t.String(), t.Loc)})
	}
	p.next()
	return &ast.Ident{Pos: ast.Pos{Location: t.Loc}, Name: t.Value}
}

// consumeSemicolon applies automatic semicolon insertion
func (p *Parser) consumeSemicolon() {
	if p.accept(";") {
		return
	}
	t := p.tok()
	if t.Is("}") || t.Type == TOKEN_EOF || t.NewlineBefore {
		return
	}
	panic(bailout{engine.UnexpectedTokenError("';'", t.String(), t.Loc)})
}

func (p *Parser) enter() {
	p.depth++
	if p.depth > maxNesting {
		p.fail("nesting too deep", p.tok().Loc)
	}
}

func (p *Parser) leave() {
	p.depth--
}

func pos(t Token) ast.Pos {
	return ast.Pos{Location: t.Loc}
}

// Statements

func (p *Parser) parseStatement() ast.Stmt {
	p.enter()
	defer p.leave()

	t := p.tok()
	switch {
	case t.Is("{"):
		return p.parseBlock()
	case t.Is(";"):
		p.next()
		return &ast.Empty{Pos: pos(t)}
	case t.Is("var"), t.Is("let"), t.Is("const"):
		d := p.parseVarDecl(false)
		p.consumeSemicolon()
		return d
	case t.Is("function"):
		p.next()
		name := p.expectIdent()
		fn := p.parseFunctionRest(name.Name, t)
		return &ast.FuncDecl{Pos: pos(t), Name: name, Fn: fn}
	case t.Is("if"):
		p.next()
		p.expect("(")
		test := p.parseExpression(false)
		p.expect(")")
		then := p.parseStatement()
		var els ast.Stmt
		if p.accept("else") {
			els = p.parseStatement()
		}
		return &ast.If{Pos: pos(t), Test: test, Then: then, Else: els}
	case t.Is("while"):
		p.next()
		p.expect("(")
		test := p.parseExpression(false)
		p.expect(")")
		return &ast.While{Pos: pos(t), Test: test, Body: p.parseStatement()}
	case t.Is("do"):
		p.next()
		body := p.parseStatement()
		p.expect("while")
		p.expect("(")
		test := p.parseExpression(false)
		p.expect(")")
		p.accept(";")
		return &ast.DoWhile{Pos: pos(t), Body: body, Test: test}
	case t.Is("for"):
		return p.parseFor()
	case t.Is("break"), t.Is("continue"):
		p.next()
		label := ""
		if p.at(TOKEN_IDENT) && !p.tok().NewlineBefore {
			label = p.next().Value
		}
		p.consumeSemicolon()
		if t.Value == "break" {
			return &ast.Break{Pos: pos(t), Label: label}
		}
		return &ast.Continue{Pos: pos(t), Label: label}
	case t.Is("return"):
		p.next()
		var value ast.Expr
		if !p.is(";") && !p.is("}") && !p.at(TOKEN_EOF) && !p.tok().NewlineBefore {
			value = p.parseExpression(false)
		}
		p.consumeSemicolon()
		return &ast.Return{Pos: pos(t), Value: value}
	case t.Is("throw"):
		p.next()
		if p.tok().NewlineBefore {
			p.fail("illegal newline after throw", p.tok().Loc)
		}
		value := p.parseExpression(false)
		p.consumeSemicolon()
		return &ast.Throw{Pos: pos(t), Value: value}
	case t.Is("try"):
		return p.parseTry()
	case t.Is("switch"):
		return p.parseSwitch()
	case t.Is("debugger"):
		p.next()
		p.consumeSemicolon()
		return &ast.Debugger{Pos: pos(t)}
	case t.Is("with"):
		p.fail("'with' statements are not supported", t.Loc)
	case t.Type == TOKEN_IDENT && p.peekToken(1).Is(":"):
		p.next()
		p.next()
		return &ast.Labeled{Pos: pos(t), Label: t.Value, Body: p.parseStatement()}
	}

	x := p.parseExpression(false)
	p.consumeSemicolon()
	return &ast.ExprStmt{Pos: pos(t), X: x}
}

func (p *Parser) parseBlock() *ast.Block {
	t := p.expect("{")
	block := &ast.Block{Pos: pos(t)}
	for !p.is("}") {
		if p.at(TOKEN_EOF) {
			p.fail("unexpected end of input, missing '}'", p.tok().Loc)
		}
		block.List = append(block.List, p.parseStatement())
	}
	p.next()
	return block
}

func (p *Parser) parseVarDecl(noIn bool) *ast.VarDecl {
	t := p.next()
	kind := ast.DeclVar
	switch t.Value {
	case "let":
		kind = ast.DeclLet
	case "const":
		kind = ast.DeclConst
	}
	decl := &ast.VarDecl{Pos: pos(t), Kind: kind}
	for {
		name := p.expectIdent()
		var init ast.Expr
		if p.accept("=") {
			init = p.parseAssignment(noIn)
		}
		decl.Decls = append(decl.Decls, ast.Declarator{Name: name, Init: init})
		if !p.accept(",") {
			break
		}
	}
	return decl
}

func (p *Parser) parseFor() ast.Stmt {
	t := p.expect("for")
	p.expect("(")

	var init ast.Stmt
	switch {
	case p.is(";"):
	case p.is("var") || p.is("let") || p.is("const"):
		d := p.parseVarDecl(true)
		if p.is("in") {
			if len(d.Decls) != 1 {
				p.fail("for-in declares exactly one variable", d.Loc())
			}
			return p.parseForInRest(t, d)
		}
		init = d
	default:
		start := p.tok()
		x := p.parseExpression(true)
		if p.is("in") {
			return p.parseForInRest(t, &ast.ExprStmt{Pos: pos(start), X: x})
		}
		init = &ast.ExprStmt{Pos: pos(start), X: x}
	}
	p.expect(";")

	var test, update ast.Expr
	if !p.is(";") {
		test = p.parseExpression(false)
	}
	p.expect(";")
	if !p.is(")") {
		update = p.parseExpression(false)
	}
	p.expect(")")
	return &ast.For{Pos: pos(t), Init: init, Test: test, Update: update, Body: p.parseStatement()}
}

func (p *Parser) parseForInRest(t Token, each ast.Stmt) ast.Stmt {
	p.expect("in")
	obj := p.parseExpression(false)
	p.expect(")")
	return &ast.ForIn{Pos: pos(t), Each: each, Obj: obj, Body: p.parseStatement()}
}

func (p *Parser) parseTry() ast.Stmt {
	t := p.expect("try")
	try := &ast.Try{Pos: pos(t), Body: p.parseBlock()}
	if p.accept("catch") {
		p.expect("(")
		try.CatchParam = p.expectIdent()
		p.expect(")")
		try.Catch = p.parseBlock()
	}
	if p.accept("finally") {
		try.Finally = p.parseBlock()
	}
	if try.Catch == nil && try.Finally == nil {
		p.fail("missing catch or finally after try", p.tok().Loc)
	}
	return try
}

func (p *Parser) parseSwitch() ast.Stmt {
	t := p.expect("switch")
	p.expect("(")
	tag := p.parseExpression(false)
	p.expect(")")
	p.expect("{")
	sw := &ast.Switch{Pos: pos(t), Tag: tag}
	seenDefault := false
	for !p.accept("}") {
		var c ast.Case
		switch {
		case p.accept("case"):
			c.Test = p.parseExpression(false)
		case p.is("default"):
			if seenDefault {
				p.fail("more than one default clause in switch", p.tok().Loc)
			}
			seenDefault = true
			p.next()
		default:
			panic(bailout{engine.UnexpectedTokenError("'case' or 'default'", p.tok().String(), p.tok().Loc)})
		}
		p.expect(":")
		for !p.is("case") && !p.is("default") && !p.is("}") {
			if p.at(TOKEN_EOF) {
				p.fail("unexpected end of input in switch", p.tok().Loc)
			}
			c.Body = append(c.Body, p.parseStatement())
		}
		sw.Cases = append(sw.Cases, c)
	}
	return sw
}

func (p *Parser) parseFunctionRest(name string, t Token) *ast.Function {
	fn := &ast.Function{Pos: pos(t), Name: name}
	p.expect("(")
	if !p.is(")") {
		for {
			fn.Params = append(fn.Params, p.expectIdent())
			if !p.accept(",") {
				break
			}
		}
	}
	p.expect(")")
	p.expect("{")
	for !p.is("}") {
		if p.at(TOKEN_EOF) {
			p.fail("unexpected end of input in function body", p.tok().Loc)
		}
		fn.Body = append(fn.Body, p.parseStatement())
	}
	p.next()
	return fn
}

// Expressions

func (p *Parser) parseExpression(noIn bool) ast.Expr {
	t := p.tok()
	x := p.parseAssignment(noIn)
	if !p.is(",") {
		return x
	}
	seq := &ast.Seq{Pos: pos(t), List: []ast.Expr{x}}
	for p.accept(",") {
		seq.List = append(seq.List, p.parseAssignment(noIn))
	}
	return seq
}

var compoundOps = map[string]ast.Op{
	"+=": ast.OpAdd, "-=": ast.OpSub, "*=": ast.OpMul, "/=": ast.OpDiv, "%=": ast.OpMod,
	"<<=": ast.OpShl, ">>=": ast.OpSar, ">>>=": ast.OpShr,
	"&=": ast.OpBitAnd, "|=": ast.OpBitOr, "^=": ast.OpBitXor,
}

func (p *Parser) parseAssignment(noIn bool) ast.Expr {
	p.enter()
	defer p.leave()

	t := p.tok()
	x := p.parseConditional(noIn)
	op := p.tok()
	if op.Is("=") {
		p.next()
		return &ast.Assign{Pos: pos(t), Op: ast.OpAssign, Target: x, Value: p.parseAssignment(noIn)}
	}
	if op.Type == TOKEN_PUNCT {
		if bin, ok := compoundOps[op.Value]; ok {
			p.next()
			return &ast.Assign{Pos: pos(t), Op: bin, Target: x, Value: p.parseAssignment(noIn)}
		}
	}
	return x
}

func (p *Parser) parseConditional(noIn bool) ast.Expr {
	t := p.tok()
	test := p.parseBinary(1, noIn)
	if !p.accept("?") {
		return test
	}
	then := p.parseAssignment(false)
	p.expect(":")
	els := p.parseAssignment(noIn)
	return &ast.Cond{Pos: pos(t), Test: test, Then: then, Else: els}
}

type binaryInfo struct {
	prec int
	op   ast.Op
}

var binaryOps = map[string]binaryInfo{
	"||": {1, ast.OpOr}, "&&": {2, ast.OpAnd},
	"|": {3, ast.OpBitOr}, "^": {4, ast.OpBitXor}, "&": {5, ast.OpBitAnd},
	"==": {6, ast.OpEq}, "!=": {6, ast.OpNe}, "===": {6, ast.OpStrictEq}, "!==": {6, ast.OpStrictNe},
	"<": {7, ast.OpLt}, ">": {7, ast.OpGt}, "<=": {7, ast.OpLe}, ">=": {7, ast.OpGe},
	"instanceof": {7, ast.OpInstanceOf}, "in": {7, ast.OpIn},
	"<<": {8, ast.OpShl}, ">>": {8, ast.OpSar}, ">>>": {8, ast.OpShr},
	"+": {9, ast.OpAdd}, "-": {9, ast.OpSub},
	"*": {10, ast.OpMul}, "/": {10, ast.OpDiv}, "%": {10, ast.OpMod},
}

func (p *Parser) binaryOp(noIn bool) (binaryInfo, bool) {
	t := p.tok()
	if t.Type != TOKEN_PUNCT && t.Type != TOKEN_KEYWORD {
		return binaryInfo{}, false
	}
	if noIn && t.Value == "in" {
		return binaryInfo{}, false
	}
	info, ok := binaryOps[t.Value]
	return info, ok
}

// parseBinary is precedence climbing over the left-associative binary operators
func (p *Parser) parseBinary(minPrec int, noIn bool) ast.Expr {
	t := p.tok()
	left := p.parseUnary()
	for {
		info, ok := p.binaryOp(noIn)
		if !ok || info.prec < minPrec {
			return left
		}
		p.next()
		right := p.parseBinary(info.prec+1, noIn)
		if info.op == ast.OpAnd || info.op == ast.OpOr {
			left = &ast.Logical{Pos: pos(t), Op: info.op, L: left, R: right}
		} else {
			left = &ast.Binary{Pos: pos(t), Op: info.op, L: left, R: right}
		}
	}
}

var unaryOps = map[string]ast.Op{
	"!": ast.OpNot, "-": ast.OpNeg, "+": ast.OpPlus, "~": ast.OpBitNot,
	"typeof": ast.OpTypeof, "void": ast.OpVoid, "delete": ast.OpDelete,
}

func (p *Parser) parseUnary() ast.Expr {
	p.enter()
	defer p.leave()

	t := p.tok()
	if t.Type == TOKEN_PUNCT || t.Type == TOKEN_KEYWORD {
		if op, ok := unaryOps[t.Value]; ok {
			p.next()
			x := p.parseUnary()
			if op == ast.OpNeg {
				if lit, ok := x.(*ast.NumberLit); ok {
					return &ast.NumberLit{Pos: pos(t), Value: -lit.Value}
				}
			}
			return &ast.Unary{Pos: pos(t), Op: op, X: x}
		}
		if t.Value == "++" || t.Value == "--" {
			p.next()
			x := p.parseUnary()
			return &ast.Update{Pos: pos(t), Op: updateOp(t.Value), Prefix: true, X: x}
		}
	}
	x := p.parsePostfix()
	return x
}

func updateOp(s string) ast.Op {
	if s == "++" {
		return ast.OpInc
	}
	return ast.OpDec
}

func (p *Parser) parsePostfix() ast.Expr {
	t := p.tok()
	x := p.parseCallMember()
	next := p.tok()
	if (next.Is("++") || next.Is("--")) && !next.NewlineBefore {
		p.next()
		return &ast.Update{Pos: pos(t), Op: updateOp(next.Value), Prefix: false, X: x}
	}
	return x
}

func (p *Parser) parseCallMember() ast.Expr {
	t := p.tok()
	x := p.parsePrimary()
	for {
		switch {
		case p.accept("."):
			nt := p.tok()
			if nt.Type != TOKEN_IDENT && nt.Type != TOKEN_KEYWORD {
				panic(bailout{engine.UnexpectedTokenError("property name", nt.String(), nt.Loc)})
			}
			p.next()
			x = &ast.Dot{Pos: pos(t), X: x, Name: nt.Value}
		case p.accept("["):
			key := p.parseExpression(false)
			p.expect("]")
			x = &ast.Index{Pos: pos(t), X: x, Key: key}
		case p.accept("("):
			call := &ast.Call{Pos: pos(t), Fn: x}
			if !p.is(")") {
				for {
					call.Args = append(call.Args, p.parseAssignment(false))
					if !p.accept(",") {
						break
					}
				}
			}
			p.expect(")")
			x = call
		default:
			return x
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	t := p.tok()
	switch t.Type {
	case TOKEN_IDENT:
		p.next()
		return &ast.Ident{Pos: pos(t), Name: t.Value}
	case TOKEN_NUMBER:
		p.next()
		return &ast.NumberLit{Pos: pos(t), Value: t.Num}
	case TOKEN_STRING:
		p.next()
		return &ast.StringLit{Pos: pos(t), Value: t.Value}
	case TOKEN_KEYWORD:
		switch t.Value {
		case "true", "false":
			p.next()
			return &ast.BoolLit{Pos: pos(t), Value: t.Value == "true"}
		case "null":
			p.next()
			return &ast.NullLit{Pos: pos(t)}
		case "this":
			p.next()
			return &ast.ThisExpr{Pos: pos(t)}
		case "function":
			p.next()
			name := ""
			if p.at(TOKEN_IDENT) {
				name = p.next().Value
			}
			return &ast.FuncLit{Pos: pos(t), Fn: p.parseFunctionRest(name, t)}
		case "new":
			p.fail("'new' expressions are not supported", t.Loc)
		}
	case TOKEN_PUNCT:
		switch t.Value {
		case "(":
			p.next()
			x := p.parseExpression(false)
			p.expect(")")
			return x
		case "[":
			return p.parseArray()
		case "{":
			return p.parseObject()
		}
	}
	panic(bailout{engine.UnexpectedTokenError("expression", t.String(), t.Loc)})
}

func (p *Parser) parseArray() ast.Expr {
	t := p.expect("[")
	arr := &ast.ArrayLit{Pos: pos(t)}
	for !p.accept("]") {
		arr.Elems = append(arr.Elems, p.parseAssignment(false))
		if !p.is("]") {
			p.expect(",")
		}
	}
	return arr
}

func (p *Parser) parseObject() ast.Expr {
	t := p.expect("{")
	obj := &ast.ObjectLit{Pos: pos(t)}
	for !p.accept("}") {
		kt := p.next()
		var key string
		switch kt.Type {
		case TOKEN_IDENT, TOKEN_KEYWORD, TOKEN_STRING:
			key = kt.Value
		case TOKEN_NUMBER:
			key = NumberKey(kt.Num)
		default:
			panic(bailout{engine.UnexpectedTokenError("property name", kt.String(), kt.Loc)})
		}
		p.expect(":")
		obj.Props = append(obj.Props, ast.Property{Key: key, Value: p.parseAssignment(false)})
		if !p.is("}") {
			p.expect(",")
		}
	}
	return obj
}

// NumberKey formats a numeric property key the way ToString does for the
// common cases.
func NumberKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(f)
}
