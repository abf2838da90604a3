package driver

import (
	"fmt"
	"os"

	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/sim"
)

// Session is a reference machine that scripts run on one after another.
// Globals persist between runs.
type Session struct {
	opts     Options
	machine  *sim.Machine
	compiled map[*ast.Function]*sim.Program
	Compiles int // functions compiled so far, lazily or eagerly
}

// NewSession creates a machine whose functions compile on first call
func NewSession(opts Options) *Session {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	s := &Session{opts: opts, compiled: make(map[*ast.Function]*sim.Program)}
	s.machine = sim.NewMachine(sim.Options{
		StackWords: opts.StackWords,
		MaxSteps:   opts.MaxSteps,
		Stdout:     opts.Stdout,
		Compile:    s.compile,
	})
	return s
}

// Machine exposes the underlying reference machine
func (s *Session) Machine() *sim.Machine {
	return s.machine
}

func (s *Session) compile(payload any) (*sim.Program, error) {
	fn, ok := payload.(*ast.Function)
	if !ok {
		return nil, fmt.Errorf("driver: cannot compile a %T", payload)
	}
	if p, ok := s.compiled[fn]; ok {
		return p, nil
	}
	engine.Tracef("driver: compiling %s\n", fn.DisplayName())
	p, err := CompileSim(fn, s.opts.Codegen)
	if err != nil {
		return nil, err
	}
	s.compiled[fn] = p
	s.Compiles++
	return p, nil
}

// Program returns the compiled program of fn, if it has been compiled
func (s *Session) Program(fn *ast.Function) (*sim.Program, bool) {
	p, ok := s.compiled[fn]
	return p, ok
}

// Run compiles the unit's script and runs it
func (s *Session) Run(u *Unit) (sim.Value, error) {
	if s.opts.Eager {
		for _, fn := range u.Functions {
			if _, err := s.compile(fn); err != nil {
				return s.machine.Undefined(), err
			}
		}
	}
	p, err := s.compile(u.Script)
	if err != nil {
		return s.machine.Undefined(), err
	}
	return s.machine.RunScript(p)
}

// Eval loads and runs one piece of source, returning the completion value
// as a string
func (s *Session) Eval(file, source string) (string, error) {
	u, err := Load(file, source)
	if err != nil {
		return "", err
	}
	v, err := s.Run(u)
	if err != nil {
		return "", err
	}
	return s.machine.ToString(v), nil
}

// Run loads source and runs it on a fresh session
func Run(file, source string, opts Options) (sim.Value, *Session, error) {
	s := NewSession(opts)
	u, err := Load(file, source)
	if err != nil {
		return s.machine.Undefined(), s, err
	}
	v, err := s.Run(u)
	return v, s, err
}
