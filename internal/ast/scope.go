package ast

// Location is where a variable lives at run time
type Location int

const (
	LocUnallocated Location = iota
	LocGlobal               // property of the global object
	LocParameter            // stack slot relative to PP
	LocLocal                // stack slot relative to FP
	LocContext              // slot of a heap context
	LocFunction             // the closure slot of the frame
)

func (l Location) String() string {
	switch l {
	case LocGlobal:
		return "global"
	case LocParameter:
		return "parameter"
	case LocLocal:
		return "local"
	case LocContext:
		return "context"
	case LocFunction:
		return "function"
	default:
		return "unallocated"
	}
}

// Mode is the binding discipline of a variable
type Mode int

const (
	ModeVar Mode = iota
	ModeLet
	ModeConst
	ModeParam
	ModeCatch
	ModeArguments
	ModeSelf // own name of a named function expression, read-only
)

// Immutable reports whether ordinary assignment is ignored
func (m Mode) Immutable() bool {
	return m == ModeConst || m == ModeSelf
}

// NeedsHole reports whether the binding starts out uninitialized
func (m Mode) NeedsHole() bool {
	return m == ModeLet || m == ModeConst
}

// Variable is one binding
type Variable struct {
	Name     string
	Mode     Mode
	Location Location
	Index    int // parameter, local or context slot index
	Captured bool
	Scope    *Scope
}

// Scope is the variable set of one function. Block-scoped bindings are
// allocated in their enclosing function.
type Scope struct {
	Fn        *Function
	Outer     *Scope
	Vars      []*Variable
	Params    []*Variable
	NumLocals int
	NumSlots  int // context slots
}

// NeedsContext reports whether the function allocates a heap context
func (s *Scope) NeedsContext() bool {
	return s.NumSlots > 0
}

// CapturedParams lists the positions of parameters that live in the context
func (s *Scope) CapturedParams() []int {
	var out []int
	for i, p := range s.Params {
		if p.Location == LocContext {
			out = append(out, i)
		}
	}
	return out
}
