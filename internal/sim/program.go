package sim

import (
	"fmt"
	"io"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
)

// Program is one finished function for the reference machine
type Program struct {
	Name      string
	Params    int
	Instrs    []Instr
	Constants []masm.Constant
	Listing   []masm.Line

	id     uint32
	values []Value // materialized constants, set on install
}

// Len is the number of instructions
func (p *Program) Len() int { return len(p.Instrs) }

// Count reports how many instructions have the given opcode
func (p *Program) Count(op Op) int {
	n := 0
	for i := range p.Instrs {
		if p.Instrs[i].Op == op {
			n++
		}
	}
	return n
}

// WriteListing prints the instruction stream with its comments
func (p *Program) WriteListing(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "; %s (sim, %d instructions, %d parameters)\n", p.Name, len(p.Instrs), p.Params); err != nil {
		return err
	}
	for _, line := range p.Listing {
		var err error
		if line.Size == 0 {
			_, err = fmt.Fprintf(w, "%6s  ; %s\n", "", line.Text)
		} else {
			_, err = fmt.Fprintf(w, "%6d  %s\n", line.Offset, line.Text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Code wraps the program as a code object without bytes, for tools that
// handle every target alike
func (p *Program) Code() *masm.Code {
	return &masm.Code{
		Arch:      engine.ArchSim,
		Name:      p.Name,
		Constants: p.Constants,
		Listing:   p.Listing,
	}
}
