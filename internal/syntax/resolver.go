// Completion: 95% - Scope resolution complete, no per-iteration let bindings
package syntax

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
)

// Resolve links every identifier to its binding and assigns each binding a
// run-time location: a parameter, local or context slot, the closure slot,
// or a property of the global object.
//
// Bindings captured by a nested function move to the heap context of the
// function that declares them. Block-scoped bindings are allocated in their
// enclosing function but looked up lexically.
func Resolve(fn *ast.Function) (err error) {
	r := &resolver{}
	defer func() {
		if rec := recover(); rec != nil {
			b, ok := rec.(bailout)
			if !ok {
				panic(rec)
			}
			err = b.err
		}
	}()

	r.function(fn, nil, false)
	for _, fs := range r.funcs {
		fs.allocate()
	}
	for _, ref := range r.refs {
		ref.id.Depth = contextDepth(ref.fs.scope, ref.id.Var)
	}
	return nil
}

type reference struct {
	id *ast.Ident
	fs *funcState
}

type resolver struct {
	funcs []*funcState
	refs  []reference
}

type funcState struct {
	fn     *ast.Function
	scope  *ast.Scope
	outer  *funcState
	vars   map[string]*ast.Variable // parameters and hoisted bindings
	blocks []map[string]*ast.Variable
	locals []*ast.Variable // non-parameter bindings in declaration order
}

func (r *resolver) fail(err engine.CompilerError) {
	panic(bailout{err})
}

func (r *resolver) function(fn *ast.Function, outer *funcState, isExpr bool) {
	fs := &funcState{
		fn:    fn,
		outer: outer,
		vars:  make(map[string]*ast.Variable),
		scope: &ast.Scope{Fn: fn},
	}
	if outer != nil {
		fs.scope.Outer = outer.scope
	}
	fn.Scope = fs.scope
	r.funcs = append(r.funcs, fs)

	for _, p := range fn.Params {
		v := &ast.Variable{Name: p.Name, Mode: ast.ModeParam, Scope: fs.scope}
		fs.scope.Params = append(fs.scope.Params, v)
		fs.vars[p.Name] = v
		p.Var = v
	}
	if isExpr && fn.Name != "" {
		fn.SelfVar = &ast.Variable{Name: fn.Name, Mode: ast.ModeSelf, Scope: fs.scope}
	}

	r.hoist(fs, fn.Body)

	fs.blocks = append(fs.blocks, make(map[string]*ast.Variable))
	r.declareLexical(fs, fn.Body, true)
	for _, s := range fn.Body {
		r.stmt(fs, s)
	}
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
}

// hoist declares var and function declarations at function scope
func (r *resolver) hoist(fs *funcState, list []ast.Stmt) {
	for _, s := range list {
		r.hoistStmt(fs, s)
	}
}

func (r *resolver) hoistStmt(fs *funcState, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		if s.Kind == ast.DeclVar {
			for _, d := range s.Decls {
				r.declareVar(fs, d.Name.Name, ast.ModeVar)
			}
		}
	case *ast.FuncDecl:
		r.declareVar(fs, s.Name.Name, ast.ModeVar)
		fs.fn.FuncDecls = append(fs.fn.FuncDecls, s)
	case *ast.Block:
		r.hoist(fs, s.List)
	case *ast.If:
		r.hoistStmt(fs, s.Then)
		if s.Else != nil {
			r.hoistStmt(fs, s.Else)
		}
	case *ast.While:
		r.hoistStmt(fs, s.Body)
	case *ast.DoWhile:
		r.hoistStmt(fs, s.Body)
	case *ast.For:
		if s.Init != nil {
			r.hoistStmt(fs, s.Init)
		}
		r.hoistStmt(fs, s.Body)
	case *ast.ForIn:
		r.hoistStmt(fs, s.Each)
		r.hoistStmt(fs, s.Body)
	case *ast.Labeled:
		r.hoistStmt(fs, s.Body)
	case *ast.Switch:
		for _, c := range s.Cases {
			r.hoist(fs, c.Body)
		}
	case *ast.Try:
		r.hoistStmt(fs, s.Body)
		if s.Catch != nil {
			r.hoistStmt(fs, s.Catch)
		}
		if s.Finally != nil {
			r.hoistStmt(fs, s.Finally)
		}
	}
}

func (r *resolver) declareVar(fs *funcState, name string, mode ast.Mode) *ast.Variable {
	if v, ok := fs.vars[name]; ok {
		return v
	}
	v := &ast.Variable{Name: name, Mode: mode, Scope: fs.scope}
	if fs.fn.IsScript {
		v.Location = ast.LocGlobal
		fs.fn.Globals = append(fs.fn.Globals, name)
	} else {
		fs.locals = append(fs.locals, v)
	}
	fs.vars[name] = v
	return v
}

// declareLexical declares the let and const bindings of one block
func (r *resolver) declareLexical(fs *funcState, list []ast.Stmt, functionTop bool) {
	block := fs.blocks[len(fs.blocks)-1]
	for _, s := range list {
		d, ok := s.(*ast.VarDecl)
		if !ok || d.Kind == ast.DeclVar {
			continue
		}
		r.declareLexicalDecl(fs, block, d, functionTop)
	}
}

func (r *resolver) declareLexicalDecl(fs *funcState, block map[string]*ast.Variable, d *ast.VarDecl, functionTop bool) {
	mode := ast.ModeLet
	if d.Kind == ast.DeclConst {
		mode = ast.ModeConst
	}
	for _, decl := range d.Decls {
		name := decl.Name.Name
		if _, dup := block[name]; dup {
			r.fail(engine.RedeclarationError(name, decl.Name.Loc()))
		}
		if v, clash := fs.vars[name]; clash && functionTop && v.Mode != ast.ModeParam {
			r.fail(engine.RedeclarationError(name, decl.Name.Loc()))
		}
		v := &ast.Variable{Name: name, Mode: mode, Scope: fs.scope}
		if fs.fn.IsScript && functionTop {
			v.Location = ast.LocGlobal
			fs.fn.Globals = append(fs.fn.Globals, name)
		} else {
			fs.locals = append(fs.locals, v)
		}
		block[name] = v
	}
}

func (r *resolver) pushBlock(fs *funcState) map[string]*ast.Variable {
	b := make(map[string]*ast.Variable)
	fs.blocks = append(fs.blocks, b)
	return b
}

func (r *resolver) popBlock(fs *funcState) {
	fs.blocks = fs.blocks[:len(fs.blocks)-1]
}

func (r *resolver) stmts(fs *funcState, list []ast.Stmt) {
	for _, s := range list {
		r.stmt(fs, s)
	}
}

func (r *resolver) stmt(fs *funcState, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.VarDecl:
		for _, d := range s.Decls {
			r.ident(fs, d.Name)
			if d.Init != nil {
				r.expr(fs, d.Init)
			}
		}
	case *ast.FuncDecl:
		r.ident(fs, s.Name)
		r.function(s.Fn, fs, false)
		fs.fn.Literals = append(fs.fn.Literals, s.Fn)
	case *ast.ExprStmt:
		r.expr(fs, s.X)
	case *ast.Block:
		r.pushBlock(fs)
		r.declareLexical(fs, s.List, false)
		r.stmts(fs, s.List)
		r.popBlock(fs)
	case *ast.If:
		r.expr(fs, s.Test)
		r.stmt(fs, s.Then)
		if s.Else != nil {
			r.stmt(fs, s.Else)
		}
	case *ast.While:
		r.expr(fs, s.Test)
		r.stmt(fs, s.Body)
	case *ast.DoWhile:
		r.stmt(fs, s.Body)
		r.expr(fs, s.Test)
	case *ast.For:
		r.pushBlock(fs)
		if s.Init != nil {
			r.declareLexical(fs, []ast.Stmt{s.Init}, false)
			r.stmt(fs, s.Init)
		}
		if s.Test != nil {
			r.expr(fs, s.Test)
		}
		if s.Update != nil {
			r.expr(fs, s.Update)
		}
		r.stmt(fs, s.Body)
		r.popBlock(fs)
	case *ast.ForIn:
		r.pushBlock(fs)
		r.declareLexical(fs, []ast.Stmt{s.Each}, false)
		r.stmt(fs, s.Each)
		r.expr(fs, s.Obj)
		r.stmt(fs, s.Body)
		r.popBlock(fs)
	case *ast.Labeled:
		r.stmt(fs, s.Body)
	case *ast.Switch:
		r.expr(fs, s.Tag)
		r.pushBlock(fs)
		for _, c := range s.Cases {
			r.declareLexical(fs, c.Body, false)
		}
		for _, c := range s.Cases {
			if c.Test != nil {
				r.expr(fs, c.Test)
			}
			r.stmts(fs, c.Body)
		}
		r.popBlock(fs)
	case *ast.Return:
		if s.Value != nil {
			r.expr(fs, s.Value)
		}
	case *ast.Throw:
		r.expr(fs, s.Value)
	case *ast.Try:
		r.stmt(fs, s.Body)
		if s.Catch != nil {
			block := r.pushBlock(fs)
			v := &ast.Variable{Name: s.CatchParam.Name, Mode: ast.ModeCatch, Scope: fs.scope}
			fs.locals = append(fs.locals, v)
			block[v.Name] = v
			r.ident(fs, s.CatchParam)
			r.stmt(fs, s.Catch)
			r.popBlock(fs)
		}
		if s.Finally != nil {
			r.stmt(fs, s.Finally)
		}
	case *ast.Break, *ast.Continue, *ast.Debugger, *ast.Empty:
	}
}

func (r *resolver) expr(fs *funcState, e ast.Expr) {
	switch e := e.(type) {
	case *ast.Ident:
		r.ident(fs, e)
	case *ast.ObjectLit:
		for _, p := range e.Props {
			r.expr(fs, p.Value)
		}
	case *ast.ArrayLit:
		for _, x := range e.Elems {
			r.expr(fs, x)
		}
	case *ast.FuncLit:
		r.function(e.Fn, fs, true)
		fs.fn.Literals = append(fs.fn.Literals, e.Fn)
	case *ast.Unary:
		r.expr(fs, e.X)
	case *ast.Update:
		r.expr(fs, e.X)
	case *ast.Binary:
		r.expr(fs, e.L)
		r.expr(fs, e.R)
	case *ast.Logical:
		r.expr(fs, e.L)
		r.expr(fs, e.R)
	case *ast.Assign:
		r.expr(fs, e.Target)
		r.expr(fs, e.Value)
	case *ast.Cond:
		r.expr(fs, e.Test)
		r.expr(fs, e.Then)
		r.expr(fs, e.Else)
	case *ast.Call:
		r.expr(fs, e.Fn)
		for _, a := range e.Args {
			r.expr(fs, a)
		}
	case *ast.Dot:
		r.expr(fs, e.X)
	case *ast.Index:
		r.expr(fs, e.X)
		r.expr(fs, e.Key)
	case *ast.Seq:
		for _, x := range e.List {
			r.expr(fs, x)
		}
	}
}

// ident binds an identifier to the innermost visible declaration
func (r *resolver) ident(fs *funcState, id *ast.Ident) {
	for f := fs; f != nil; f = f.outer {
		v := f.lookup(id.Name)
		if v == nil {
			continue
		}
		if f != fs && v.Location != ast.LocGlobal {
			v.Captured = true
		}
		id.Var = v
		r.refs = append(r.refs, reference{id: id, fs: fs})
		return
	}
	// Unbound names are properties of the global object
	id.Var = nil
}

func (f *funcState) lookup(name string) *ast.Variable {
	for i := len(f.blocks) - 1; i >= 0; i-- {
		if v, ok := f.blocks[i][name]; ok {
			return v
		}
	}
	if v, ok := f.vars[name]; ok {
		return v
	}
	if f.fn.SelfVar != nil && f.fn.SelfVar.Name == name {
		return f.fn.SelfVar
	}
	if name == "arguments" && !f.fn.IsScript {
		if f.fn.ArgumentsVar == nil {
			v := &ast.Variable{Name: name, Mode: ast.ModeArguments, Scope: f.scope}
			f.fn.ArgumentsVar = v
			f.locals = append(f.locals, v)
			f.vars[name] = v
		}
		return f.fn.ArgumentsVar
	}
	return nil
}

// allocate assigns slots once capture information is complete
func (f *funcState) allocate() {
	s := f.scope
	for i, v := range s.Params {
		if v.Captured {
			v.Location = ast.LocContext
			v.Index = s.NumSlots
			s.NumSlots++
		} else {
			v.Location = ast.LocParameter
			v.Index = i
		}
	}
	if sv := f.fn.SelfVar; sv != nil {
		if sv.Captured {
			sv.Location = ast.LocContext
			sv.Index = s.NumSlots
			s.NumSlots++
		} else {
			sv.Location = ast.LocFunction
		}
	}
	for _, v := range f.locals {
		if v.Location == ast.LocGlobal {
			continue
		}
		if v.Captured {
			v.Location = ast.LocContext
			v.Index = s.NumSlots
			s.NumSlots++
		} else {
			v.Location = ast.LocLocal
			v.Index = s.NumLocals
			s.NumLocals++
		}
	}
	s.Vars = append(s.Vars, s.Params...)
	s.Vars = append(s.Vars, f.locals...)
	if f.fn.SelfVar != nil {
		s.Vars = append(s.Vars, f.fn.SelfVar)
	}
}

// contextDepth counts the contexts between a use and the declaring function
func contextDepth(use *ast.Scope, v *ast.Variable) int {
	if v == nil || v.Location != ast.LocContext {
		return 0
	}
	depth := 0
	for s := use; s != nil && s != v.Scope; s = s.Outer {
		if s.NeedsContext() {
			depth++
		}
	}
	return depth
}
