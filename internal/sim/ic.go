package sim

import (
	"github.com/xyproto/fullgen/internal/masm"
)

// ICState is the feedback state of one inline cache site
type ICState uint8

const (
	ICUninitialized ICState = iota
	ICMonomorphic
	ICMegamorphic
)

func (s ICState) String() string {
	switch s {
	case ICUninitialized:
		return "uninitialized"
	case ICMonomorphic:
		return "monomorphic"
	default:
		return "megamorphic"
	}
}

type icKey struct {
	prog uint32
	pc   int
}

// ICSite is the feedback recorded for one CallIC instruction
type ICSite struct {
	Prog  string
	PC    int
	Kind  masm.ICKind
	State ICState
	Hits  int
	mapW  uint64 // receiver map seen while monomorphic
}

// ICSites lists the sites of a program that have run, in code order
func (m *Machine) ICSites(p *Program) []ICSite {
	var out []ICSite
	for pc := range p.Instrs {
		if s, ok := m.ics[icKey{p.id, pc}]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// feedback records the receiver's map at the site. Smis have map word 0.
func (m *Machine) feedback(k masm.ICKind, pc int, receiver Value) {
	key := icKey{m.prog.id, pc}
	s, ok := m.ics[key]
	if !ok {
		s = &ICSite{Prog: m.prog.Name, PC: pc, Kind: k}
		m.ics[key] = s
	}
	s.Hits++
	var mapW uint64
	if receiver.IsHeap() && m.heap.lookup(receiver) != nil {
		mapW = m.mem.load(receiver.Address())
	}
	switch s.State {
	case ICUninitialized:
		s.State, s.mapW = ICMonomorphic, mapW
	case ICMonomorphic:
		if s.mapW != mapW {
			s.State = ICMegamorphic
		}
	}
}

// callIC runs an inline cache stub: receiver in R1, name or key in R2 and
// for stores the value in R0. The result is left in R0.
func (m *Machine) callIC(k masm.ICKind, pc int) {
	r := &m.regs
	receiver, key, value := Value(r[masm.R1]), Value(r[masm.R2]), Value(r[masm.R0])
	m.feedback(k, pc, receiver)

	var result Value
	switch k {
	case masm.LoadIC:
		result = m.getProperty(receiver, m.propertyKey(key))
	case masm.KeyedLoadIC:
		result = m.getKeyed(receiver, key)
	case masm.StoreIC:
		m.setProperty(receiver, m.propertyKey(key), value)
		result = value
	case masm.KeyedStoreIC:
		m.setKeyed(receiver, key, value)
		result = value
	case masm.LoadGlobalIC, masm.LoadGlobalTypeofIC:
		name := m.ToString(key)
		v, ok := m.heap.lookup(receiver).props[name]
		switch {
		case ok:
			result = v
		case k == masm.LoadGlobalTypeofIC:
			result = m.undefined
		default:
			m.throw(m.newError("ReferenceError", name+" is not defined"))
		}
	default:
		panic(faultf("unknown inline cache %s", k))
	}
	m.clobber()
	r[masm.R0] = uint64(result)
}
