// Completion: 95% - Slot, named, indexed and illegal references complete
package codegen

import (
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// RefKind is the variant of a Reference
type RefKind uint8

const (
	RefIllegal RefKind = iota
	RefSlot            // parameter, local, context or closure slot
	RefNamed           // object plus a literal property name
	RefIndexed         // object plus a computed key
)

func (k RefKind) String() string {
	switch k {
	case RefSlot:
		return "slot"
	case RefNamed:
		return "named"
	case RefIndexed:
		return "indexed"
	default:
		return "illegal"
	}
}

// Reference is an assignable location. Constructing it pushes its
// footprint: nothing for slots, the object for named properties, the
// object and key for indexed ones. The footprint stays in place until
// Unload, so Get and Set can be used repeatedly in between.
type Reference struct {
	g      *Generator
	kind   RefKind
	v      *ast.Variable
	depth  int // context hops for context slots
	name   string
	global bool // named property of the global object
	text   string
}

// reference builds the reference for target, pushing its footprint
func (g *Generator) reference(target ast.Expr) *Reference {
	r := &Reference{g: g}
	switch e := target.(type) {
	case *ast.Ident:
		if e.Var != nil && e.Var.Location != ast.LocGlobal {
			r.kind = RefSlot
			r.v = e.Var
			r.depth = e.Depth
			r.name = e.Name
			break
		}
		r.kind = RefNamed
		r.global = true
		r.name = e.Name
		r.v = e.Var
		g.asm.LoadRoot(masm.R0, rt.RootGlobal)
		g.frame.Push(masm.R0)
	case *ast.Dot:
		r.kind = RefNamed
		r.name = e.Name
		g.load(e.X)
		g.frame.Push(masm.R0)
	case *ast.Index:
		r.kind = RefIndexed
		g.load(e.X)
		g.frame.Push(masm.R0)
		g.load(e.Key)
		g.frame.Push(masm.R0)
	default:
		r.kind = RefIllegal
		r.text = "invalid assignment target"
	}
	return r
}

// Kind reports the variant
func (r *Reference) Kind() RefKind { return r.kind }

// Footprint is the number of cells the reference occupies
func (r *Reference) Footprint() int {
	switch r.kind {
	case RefNamed:
		return 1
	case RefIndexed:
		return 2
	default:
		return 0
	}
}

// slotMem addresses a slot reference. Context walks go through R1.
func (r *Reference) slotMem() (masm.Mem, masm.Reg) {
	f := r.g.frame
	switch r.v.Location {
	case ast.LocParameter:
		return f.ParameterSlot(r.v.Index), masm.PP
	case ast.LocLocal:
		return f.LocalSlot(r.v.Index), masm.FP
	case ast.LocContext:
		m := f.ContextSlot(r.depth, r.v.Index, masm.R1)
		return m, m.Base
	case ast.LocFunction:
		return f.FunctionMem(), masm.FP
	}
	r.g.internal("variable %s has no slot (%s)", r.v.Name, r.v.Location)
	return masm.Mem{}, masm.NoReg
}

// Get loads the referenced value into R0. In typeof mode a missing global
// yields undefined instead of throwing.
func (r *Reference) Get(typeofMode bool) {
	g := r.g
	switch r.kind {
	case RefSlot:
		m, _ := r.slotMem()
		g.asm.Load(masm.R0, m)
		if r.v.Mode.NeedsHole() {
			var done masm.Label
			g.asm.CompareRoot(masm.R0, rt.RootHole)
			g.asm.Branch(masm.NotEqual, &done)
			g.asm.LoadRoot(masm.R0, rt.RootUndefined)
			g.asm.Bind(&done)
		}
	case RefNamed:
		g.asm.Load(masm.R1, g.frame.ElementAt(0))
		g.asm.LoadConstant(masm.R2, masm.StringConst(r.name))
		switch {
		case r.global && typeofMode:
			g.asm.CallIC(masm.LoadGlobalTypeofIC)
		case r.global:
			g.asm.CallIC(masm.LoadGlobalIC)
		default:
			g.asm.CallIC(masm.LoadIC)
		}
	case RefIndexed:
		g.asm.Load(masm.R1, g.frame.ElementAt(1))
		g.asm.Load(masm.R2, g.frame.ElementAt(0))
		g.asm.CallIC(masm.KeyedLoadIC)
	default:
		g.throwReferenceError(r.text)
	}
}

// Set stores R0 into the location and leaves it in R0. Immutable bindings
// ignore the store unless init marks their initialization.
func (r *Reference) Set(init bool) {
	g := r.g
	if r.v != nil && r.v.Mode.Immutable() && !init {
		g.asm.Comment("assignment to constant %s ignored", r.v.Name)
		return
	}
	switch r.kind {
	case RefSlot:
		if r.v.Location == ast.LocFunction {
			return
		}
		m, base := r.slotMem()
		g.asm.Store(m, masm.R0)
		if r.v.Location == ast.LocContext {
			g.recordWrite(base, m.Disp)
		}
	case RefNamed:
		g.asm.Load(masm.R1, g.frame.ElementAt(0))
		g.asm.LoadConstant(masm.R2, masm.StringConst(r.name))
		g.asm.CallIC(masm.StoreIC)
	case RefIndexed:
		g.asm.Load(masm.R1, g.frame.ElementAt(1))
		g.asm.Load(masm.R2, g.frame.ElementAt(0))
		g.asm.CallIC(masm.KeyedStoreIC)
	default:
		g.throwReferenceError(r.text)
	}
}

// Unload pops the footprint, keeping the value in R0
func (r *Reference) Unload() {
	r.g.frame.Drop(r.Footprint())
}

// recordWrite notifies the collector that R0 was stored at offset in the
// object held in base. Smis need no notification. The hook may move
// objects, so only the stored value survives it, reloaded from the stack.
func (g *Generator) recordWrite(base masm.Reg, offset int32) {
	var skip masm.Label
	g.asm.TestImm(masm.R0, rt.SmiMask)
	g.asm.Branch(masm.Equal, &skip)
	g.frame.Push(masm.R0)
	g.frame.Push(base)
	g.asm.MovImm(masm.R1, rt.SmiWord(offset))
	g.frame.Push(masm.R1)
	g.callRuntime(rt.RecordWrite, 2)
	g.frame.Pop(masm.R0)
	g.asm.Bind(&skip)
}

func (g *Generator) throwReferenceError(what string) {
	g.asm.LoadConstant(masm.R0, masm.StringConst(what))
	g.frame.Push(masm.R0)
	g.callRuntime(rt.ThrowReferenceError, 1)
}
