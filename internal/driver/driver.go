// Completion: 90% - Driver stand-in: parse, resolve, compile and run on each target
package driver

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xyproto/fullgen/internal/amd64"
	"github.com/xyproto/fullgen/internal/arm64"
	"github.com/xyproto/fullgen/internal/ast"
	"github.com/xyproto/fullgen/internal/codegen"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/sim"
	"github.com/xyproto/fullgen/internal/syntax"
)

// Options configure compilation and execution of a unit
type Options struct {
	Codegen    codegen.Options
	Eager      bool // compile every function before running instead of on first call
	MaxSteps   int64
	StackWords int
	Stdout     io.Writer
}

// Unit is a parsed and resolved script
type Unit struct {
	File      string
	Source    string
	Script    *ast.Function
	Functions []*ast.Function // the script first, then nested literals depth first
}

// Load parses and resolves source
func Load(file, source string) (*Unit, error) {
	fn, err := syntax.ParseScript(file, source)
	if err != nil {
		return nil, err
	}
	if err := syntax.Resolve(fn); err != nil {
		return nil, err
	}
	u := &Unit{File: file, Source: source, Script: fn}
	u.collect(fn)
	engine.Tracef("driver: %s has %d functions\n", file, len(u.Functions))
	return u, nil
}

// LoadFile reads and loads a script from disk
func LoadFile(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(path, string(data))
}

func (u *Unit) collect(fn *ast.Function) {
	u.Functions = append(u.Functions, fn)
	for _, lit := range fn.Literals {
		u.collect(lit)
	}
}

// Describe renders err with the offending source line when it is a
// compile error of this unit
func (u *Unit) Describe(err error, useColor bool) string {
	return Describe(err, u.Source, useColor)
}

// Describe renders err against source
func Describe(err error, source string, useColor bool) string {
	var ce engine.CompilerError
	if !errors.As(err, &ce) {
		return err.Error() + "\n"
	}
	return ce.Render(source, useColor)
}

// CompileSim compiles one function for the reference machine
func CompileSim(fn *ast.Function, opts codegen.Options) (*sim.Program, error) {
	a := sim.New()
	if err := codegen.Generate(fn, a, opts); err != nil {
		return nil, err
	}
	p, err := a.Finish(fn.DisplayName(), len(fn.Params))
	if err != nil {
		return nil, fmt.Errorf("finish %s: %w", fn.DisplayName(), err)
	}
	return p, nil
}

// nativeAssembler is what both machine encoders provide beyond masm
type nativeAssembler interface {
	masm.Assembler
	Finish(name string) (*masm.Code, error)
}

func newNative(arch engine.Arch) (nativeAssembler, error) {
	switch arch {
	case engine.ArchX86_64:
		return amd64.New(), nil
	case engine.ArchARM64:
		return arm64.New(), nil
	}
	return nil, fmt.Errorf("no native encoder for %s", arch)
}

// CompileNative compiles one function to machine code for arch
func CompileNative(fn *ast.Function, arch engine.Arch, opts codegen.Options) (*masm.Code, error) {
	a, err := newNative(arch)
	if err != nil {
		return nil, err
	}
	if err := codegen.Generate(fn, a, opts); err != nil {
		return nil, err
	}
	code, err := a.Finish(fn.DisplayName())
	if err != nil {
		return nil, fmt.Errorf("finish %s: %w", fn.DisplayName(), err)
	}
	return code, nil
}

// Native compiles every function of the unit for arch
func (u *Unit) Native(arch engine.Arch, opts codegen.Options) ([]*masm.Code, error) {
	codes := make([]*masm.Code, 0, len(u.Functions))
	for _, fn := range u.Functions {
		code, err := CompileNative(fn, arch, opts)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// Programs compiles every function of the unit for the reference machine
func (u *Unit) Programs(opts codegen.Options) (map[*ast.Function]*sim.Program, error) {
	progs := make(map[*ast.Function]*sim.Program, len(u.Functions))
	for _, fn := range u.Functions {
		p, err := CompileSim(fn, opts)
		if err != nil {
			return nil, err
		}
		progs[fn] = p
	}
	return progs, nil
}

// WriteListing writes the listing of every function for arch
func (u *Unit) WriteListing(w io.Writer, arch engine.Arch, opts codegen.Options) error {
	if arch == engine.ArchSim {
		for _, fn := range u.Functions {
			p, err := CompileSim(fn, opts)
			if err != nil {
				return err
			}
			if err := p.WriteListing(w); err != nil {
				return err
			}
		}
		return nil
	}
	codes, err := u.Native(arch, opts)
	if err != nil {
		return err
	}
	for _, c := range codes {
		if err := c.WriteListing(w); err != nil {
			return err
		}
	}
	return nil
}
