// Completion: 100% - AST complete for the supported language subset
package ast

import "github.com/xyproto/fullgen/internal/engine"

// Node is any syntax tree node
type Node interface {
	Loc() engine.SourceLocation
}

// Expr is an expression node
type Expr interface {
	Node
	exprNode()
}

// Stmt is a statement node
type Stmt interface {
	Node
	stmtNode()
}

// Pos is embedded by every node to carry its source location
type Pos struct {
	Location engine.SourceLocation
}

func (p Pos) Loc() engine.SourceLocation { return p.Location }

// Op is an operator token
type Op int

const (
	OpNone Op = iota
	// Binary
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpBitOr
	OpBitAnd
	OpBitXor
	OpShl
	OpSar
	OpShr
	OpEq
	OpNe
	OpStrictEq
	OpStrictNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpIn
	OpInstanceOf
	// Logical
	OpAnd
	OpOr
	// Unary
	OpNot
	OpNeg
	OpPlus
	OpBitNot
	OpTypeof
	OpVoid
	OpDelete
	// Update
	OpInc
	OpDec
	// Assignment
	OpAssign
)

var opNames = map[Op]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpBitOr: "|", OpBitAnd: "&", OpBitXor: "^", OpShl: "<<", OpSar: ">>", OpShr: ">>>",
	OpEq: "==", OpNe: "!=", OpStrictEq: "===", OpStrictNe: "!==",
	OpLt: "<", OpGt: ">", OpLe: "<=", OpGe: ">=", OpIn: "in", OpInstanceOf: "instanceof",
	OpAnd: "&&", OpOr: "||",
	OpNot: "!", OpNeg: "-", OpPlus: "+", OpBitNot: "~", OpTypeof: "typeof", OpVoid: "void", OpDelete: "delete",
	OpInc: "++", OpDec: "--", OpAssign: "=",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "?"
}

// IsComparison reports whether o yields a boolean by comparing its operands
func (o Op) IsComparison() bool {
	switch o {
	case OpEq, OpNe, OpStrictEq, OpStrictNe, OpLt, OpGt, OpLe, OpGe:
		return true
	}
	return false
}

// Expressions

type Ident struct {
	Pos
	Name  string
	Var   *Variable // nil until resolved; a global variable when unbound
	Depth int       // context chain hops for context-allocated variables
}

type NumberLit struct {
	Pos
	Value float64
}

type StringLit struct {
	Pos
	Value string
}

type BoolLit struct {
	Pos
	Value bool
}

type NullLit struct{ Pos }

type ThisExpr struct{ Pos }

type Property struct {
	Key   string
	Value Expr
}

type ObjectLit struct {
	Pos
	Props []Property
}

type ArrayLit struct {
	Pos
	Elems []Expr
}

type FuncLit struct {
	Pos
	Fn *Function
}

type Unary struct {
	Pos
	Op Op
	X  Expr
}

type Update struct {
	Pos
	Op     Op // OpInc or OpDec
	Prefix bool
	X      Expr
}

type Binary struct {
	Pos
	Op   Op
	L, R Expr
}

type Logical struct {
	Pos
	Op   Op // OpAnd or OpOr
	L, R Expr
}

// Assign is plain (Op == OpAssign) or compound assignment (Op is the binary operator)
type Assign struct {
	Pos
	Op     Op
	Target Expr
	Value  Expr
}

type Cond struct {
	Pos
	Test, Then, Else Expr
}

type Call struct {
	Pos
	Fn   Expr
	Args []Expr
}

type Dot struct {
	Pos
	X    Expr
	Name string
}

type Index struct {
	Pos
	X   Expr
	Key Expr
}

type Seq struct {
	Pos
	List []Expr
}

func (*Ident) exprNode()     {}
func (*NumberLit) exprNode() {}
func (*StringLit) exprNode() {}
func (*BoolLit) exprNode()   {}
func (*NullLit) exprNode()   {}
func (*ThisExpr) exprNode()  {}
func (*ObjectLit) exprNode() {}
func (*ArrayLit) exprNode()  {}
func (*FuncLit) exprNode()   {}
func (*Unary) exprNode()     {}
func (*Update) exprNode()    {}
func (*Binary) exprNode()    {}
func (*Logical) exprNode()   {}
func (*Assign) exprNode()    {}
func (*Cond) exprNode()      {}
func (*Call) exprNode()      {}
func (*Dot) exprNode()       {}
func (*Index) exprNode()     {}
func (*Seq) exprNode()       {}

// Statements

// DeclKind is the declaring keyword of a variable
type DeclKind int

const (
	DeclVar DeclKind = iota
	DeclLet
	DeclConst
)

func (k DeclKind) String() string {
	switch k {
	case DeclLet:
		return "let"
	case DeclConst:
		return "const"
	default:
		return "var"
	}
}

type Declarator struct {
	Name *Ident
	Init Expr
}

type VarDecl struct {
	Pos
	Kind  DeclKind
	Decls []Declarator
}

type FuncDecl struct {
	Pos
	Name *Ident
	Fn   *Function
}

type ExprStmt struct {
	Pos
	X Expr
}

type Block struct {
	Pos
	List []Stmt
}

type If struct {
	Pos
	Test Expr
	Then Stmt
	Else Stmt
}

type While struct {
	Pos
	Test Expr
	Body Stmt
}

type DoWhile struct {
	Pos
	Body Stmt
	Test Expr
}

type For struct {
	Pos
	Init   Stmt // *VarDecl, *ExprStmt or nil
	Test   Expr
	Update Expr
	Body   Stmt
}

// ForIn iterates the enumerable keys of Obj. Each is a *VarDecl with a single
// declarator or an assignable expression wrapped in *ExprStmt.
type ForIn struct {
	Pos
	Each Stmt
	Obj  Expr
	Body Stmt
}

type Labeled struct {
	Pos
	Label string
	Body  Stmt
}

type Break struct {
	Pos
	Label string
}

type Continue struct {
	Pos
	Label string
}

type Case struct {
	Test Expr // nil for default
	Body []Stmt
}

type Switch struct {
	Pos
	Tag   Expr
	Cases []Case
}

type Return struct {
	Pos
	Value Expr // may be nil
}

type Throw struct {
	Pos
	Value Expr
}

type Try struct {
	Pos
	Body       *Block
	CatchParam *Ident // nil without a catch clause
	Catch      *Block
	Finally    *Block
}

type Debugger struct{ Pos }

type Empty struct{ Pos }

func (*VarDecl) stmtNode()  {}
func (*FuncDecl) stmtNode() {}
func (*ExprStmt) stmtNode() {}
func (*Block) stmtNode()    {}
func (*If) stmtNode()       {}
func (*While) stmtNode()    {}
func (*DoWhile) stmtNode()  {}
func (*For) stmtNode()      {}
func (*ForIn) stmtNode()    {}
func (*Labeled) stmtNode()  {}
func (*Break) stmtNode()    {}
func (*Continue) stmtNode() {}
func (*Switch) stmtNode()   {}
func (*Return) stmtNode()   {}
func (*Throw) stmtNode()    {}
func (*Try) stmtNode()      {}
func (*Debugger) stmtNode() {}
func (*Empty) stmtNode()    {}

// Function is a function literal or the top level of a script
type Function struct {
	Pos
	Name     string
	Params   []*Ident
	Body     []Stmt
	IsScript bool

	// Filled in by the resolver
	Scope        *Scope
	SelfVar      *Variable   // binding of a named function expression's own name
	ArgumentsVar *Variable   // set when the body refers to arguments
	FuncDecls    []*FuncDecl // hoisted declarations, in source order
	Globals      []string    // names declared at script top level
	Literals     []*Function // nested function literals, in source order
}

// DisplayName is the name used in listings and object files
func (f *Function) DisplayName() string {
	switch {
	case f.Name != "":
		return f.Name
	case f.IsScript:
		return "<script>"
	default:
		return "<anonymous>"
	}
}
