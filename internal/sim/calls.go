package sim

import (
	"fmt"
	"strings"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// callFunction calls the closure in R1 with argc arguments above SP and
// the receiver above them. It reports whether control moved into a
// program; native routines complete in place.
func (m *Machine) callFunction(argc int, ret uint64) bool {
	fn := Value(m.regs[masm.R1])
	o := m.heap.lookup(fn)
	if o == nil || o.kind != kindFunction {
		m.throw(m.newError("TypeError", m.describe(fn)+" is not a function"))
	}
	m.stats.Calls++
	id, pc := m.decode(uint64(m.mem.field(fn, rt.FunctionCodeIndex)))
	if id == 0 {
		switch pc {
		case nativePrint:
			m.nativePrint(argc)
			return false
		case nativeLazyCompile:
			p := m.compile(o.shared)
			m.mem.setField(fn, rt.FunctionCodeIndex, Value(codeAddr(p.id, 0)))
			id, pc = p.id, 0
		default:
			panic(faultf("call into native routine %d", pc))
		}
	}
	p := m.progs[id]
	if argc != p.Params {
		m.adapt(argc, p.Params, ret)
	} else {
		m.push(ret)
	}
	m.prog = p
	m.pc = pc
	return true
}

// compile runs the lazy compiler once per function literal
func (m *Machine) compile(s *sharedInfo) *Program {
	if s.prog != nil {
		return s.prog
	}
	if m.opts.Compile == nil {
		panic(compileFailure{fmt.Errorf("sim: no compiler for function %s", s.name)})
	}
	p, err := m.opts.Compile(s.payload)
	if err != nil {
		panic(compileFailure{err})
	}
	m.Install(p)
	s.prog = p
	engine.Tracef("sim: compiled %s lazily\n", s.name)
	return p
}

// adapt copies the receiver and exactly params arguments below the
// original ones, padding with undefined, and returns through
// adaptorReturn, which drops the originals
func (m *Machine) adapt(argc, params int, ret uint64) {
	m.stats.Adaptations++
	orig := m.regs[masm.SP]
	original := m.args(argc)
	receiver := m.mem.load(orig + uint64(argc)*rt.WordSize)
	m.push(receiver)
	pp := m.regs[masm.SP]
	for i := 0; i < params; i++ {
		if i < argc {
			m.push(uint64(original[i]))
		} else {
			m.push(uint64(m.undefined))
		}
	}
	m.adaptors = append(m.adaptors, adaptorFrame{ret: ret, origSP: orig, argc: argc, calleePP: pp})
	m.push(codeAddr(0, nativeAdaptorReturn))
}

func (m *Machine) adaptorReturn() {
	n := len(m.adaptors)
	if n == 0 {
		panic(faultf("adaptor return without an adaptor frame"))
	}
	a := m.adaptors[n-1]
	m.adaptors = m.adaptors[:n-1]
	if m.regs[masm.SP] != a.origSP {
		panic(faultf("adapted call returned with SP %#x, want %#x", m.regs[masm.SP], a.origSP))
	}
	m.regs[masm.SP] = a.origSP + uint64(a.argc+1)*rt.WordSize
	m.jumpTo(a.ret)
}

// adaptedArgs returns the original arguments of the frame whose receiver
// is at pp, when its call was adapted
func (m *Machine) adaptedArgs(pp uint64) ([]Value, bool) {
	for i := len(m.adaptors) - 1; i >= 0; i-- {
		a := m.adaptors[i]
		if a.calleePP != pp {
			continue
		}
		out := make([]Value, a.argc)
		for j := range out {
			out[j] = Value(m.mem.load(a.origSP + uint64(a.argc-1-j)*rt.WordSize))
		}
		return out, true
	}
	return nil, false
}

// nativePrint writes its arguments separated by spaces and pops them with
// the receiver, as a compiled callee would
func (m *Machine) nativePrint(argc int) {
	parts := make([]string, argc)
	for i, a := range m.args(argc) {
		parts[i] = m.ToString(a)
	}
	fmt.Fprintln(m.opts.Stdout, strings.Join(parts, " "))
	m.regs[masm.SP] += uint64(argc+1) * rt.WordSize
	m.clobber()
	m.flags.valid = false
	m.regs[masm.R0] = uint64(m.undefined)
}
