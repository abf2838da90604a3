// Completion: 95% - Reference machine executes every emitted instruction
package sim

import (
	"errors"
	"io"
	"math"
	"os"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// Options configure a Machine
type Options struct {
	StackWords int       // stack size in cells, DefaultStackWords when zero
	MaxSteps   int64     // instruction budget per Call, unlimited when zero
	Stdout     io.Writer // output of print, os.Stdout when nil
	// Compile produces the program of a function literal the first time a
	// closure over it is called
	Compile func(payload any) (*Program, error)
}

// DefaultStackWords is the stack size when Options.StackWords is zero
const DefaultStackWords = 1 << 16

// Stats count events of interest to tests
type Stats struct {
	Steps        int64
	Calls        int64
	RuntimeCalls int64
	ICCalls      int64
	RecordWrites int64
	BreakSlots   int64
	Adaptations  int64
}

// Native routines live in program 0
const (
	nativeNone = iota
	nativePrint
	nativeLazyCompile
	nativeEntryReturn
	nativeAdaptorReturn
	nativeEntryThrow
)

// poison is left in clobbered registers; using it as a pointer faults
const poison = 0xbad0_0000_0000_0001

type flags struct {
	valid          bool
	zf, sf, cf, of bool
}

// adaptorFrame records a call whose argument count did not match the
// callee's parameter count
type adaptorFrame struct {
	ret      uint64 // where the caller continues
	origSP   uint64 // SP at the call, pointing at the last original argument
	argc     int
	calleePP uint64 // receiver cell of the adapted copy
}

// Machine executes programs recorded by Assembler, with the same frame,
// tagging and handler conventions as native code. It is not safe for
// concurrent use.
type Machine struct {
	opts  Options
	mem   *memory
	heap  *heap
	regs  [masm.NumRegs]uint64
	flags flags

	prog  *Program
	pc    int
	progs []*Program

	adaptors []adaptorFrame
	ics      map[icKey]*ICSite
	shared   map[any]Value
	stats    Stats

	undefined, null, vtrue, vfalse, hole Value
	global                               Value
	scriptContext                        Value

	running bool
	halted  bool
	entrySP uint64
	print   Value
}

// NewMachine builds a machine with an empty global object holding print
func NewMachine(opts Options) *Machine {
	if opts.StackWords <= 0 {
		opts.StackWords = DefaultStackWords
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	mem := newMemory(opts.StackWords)
	m := &Machine{
		opts:   opts,
		mem:    mem,
		heap:   newHeap(mem),
		progs:  []*Program{nil},
		ics:    map[icKey]*ICSite{},
		shared: map[any]Value{},
	}
	h := m.heap
	m.undefined = h.undefined
	m.null = h.newOddball("null")
	m.vtrue = h.newOddball("true")
	m.vfalse = h.newOddball("false")
	m.hole = h.newOddball("hole")
	m.global = h.newObject()
	m.scriptContext = h.newContext(m.undefined, m.undefined, 0, m.undefined)

	mem.setRoot(rt.RootUndefined, m.undefined)
	mem.setRoot(rt.RootNull, m.null)
	mem.setRoot(rt.RootTrue, m.vtrue)
	mem.setRoot(rt.RootFalse, m.vfalse)
	mem.setRoot(rt.RootHole, m.hole)
	mem.setRoot(rt.RootGlobal, m.global)
	mem.setRoot(rt.RootHandler, 0)
	mem.setRoot(rt.RootStackLimit, Value(stackBase+stackSlack*rt.WordSize))
	mem.setRoot(rt.RootMetaMap, h.metaMap)
	for e := rt.Entry(0); e < rt.EntryCount; e++ {
		mem.roots[int(rt.RootCount)+int(e)] = uint64(rt.Smi(int32(e)))
	}

	m.regs[masm.SP] = mem.stackTop
	m.regs[masm.Roots] = rootsBase

	printShared := h.newShared(&sharedInfo{name: "print"})
	m.print = h.newFunction(printShared, m.scriptContext, Value(codeAddr(0, nativePrint)))
	m.SetGlobal("print", m.print)
	m.SetGlobal("undefined", m.undefined)
	m.SetGlobal("NaN", h.Number(math.NaN()))
	m.SetGlobal("Infinity", h.Number(math.Inf(1)))
	return m
}

func codeAddr(id uint32, pc int) uint64 {
	return uint64(id)<<32 | uint64(pc)<<rt.WordShift
}

func (m *Machine) decode(addr uint64) (uint32, int) {
	if addr&(rt.WordSize-1) != 0 {
		panic(faultf("bad code address %#x", addr))
	}
	id := uint32(addr >> 32)
	pc := int(uint32(addr) >> rt.WordShift)
	if int(id) >= len(m.progs) {
		panic(faultf("code address %#x names no program", addr))
	}
	return id, pc
}

// Install assigns the program an identity and materializes its constants
func (m *Machine) Install(p *Program) {
	if p.id != 0 {
		return
	}
	p.id = uint32(len(m.progs))
	m.progs = append(m.progs, p)
	p.values = make([]Value, len(p.Constants))
	for i, c := range p.Constants {
		p.values[i] = m.materialize(c)
	}
	engine.Tracef("sim: installed %s as program %d\n", p.Name, p.id)
}

func (m *Machine) materialize(c masm.Constant) Value {
	h := m.heap
	switch c.Kind {
	case masm.ConstString:
		return h.String(c.Str)
	case masm.ConstNumber:
		return h.Number(c.Num)
	case masm.ConstNames:
		names := make([]Value, len(c.Names))
		for i, n := range c.Names {
			names[i] = h.String(n)
		}
		return h.newFixedArray(names)
	case masm.ConstFunction:
		if v, ok := m.shared[c.Payload]; ok {
			return v
		}
		v := h.newShared(&sharedInfo{name: c.Str, payload: c.Payload})
		m.shared[c.Payload] = v
		return v
	}
	return m.undefined
}

// Instantiate installs a compiled top-level program and returns a closure
// over it in the script context
func (m *Machine) Instantiate(p *Program) Value {
	m.Install(p)
	shared := m.heap.newShared(&sharedInfo{name: p.Name, prog: p})
	return m.heap.newFunction(shared, m.scriptContext, Value(codeAddr(p.id, 0)))
}

// RunScript runs a top-level program with the global object as receiver
func (m *Machine) RunScript(p *Program) (Value, error) {
	return m.Call(m.Instantiate(p), m.global)
}

// Call invokes fn from the outside. An exception that no handler catches
// comes back as a *ThrownError.
func (m *Machine) Call(fn, receiver Value, args ...Value) (result Value, err error) {
	if m.running {
		return m.undefined, errors.New("sim: Call while the machine is running")
	}
	m.running = true
	m.halted = false
	m.stats.Steps = 0
	sp0 := m.regs[masm.SP]
	handler0 := m.mem.root(rt.RootHandler)
	fp0, pp0 := m.regs[masm.FP], m.regs[masm.PP]
	defer func() {
		m.running = false
		if err != nil {
			m.regs[masm.SP] = sp0
			m.regs[masm.FP], m.regs[masm.PP] = fp0, pp0
			m.mem.setRoot(rt.RootHandler, handler0)
			m.adaptors = m.adaptors[:0]
			result = m.undefined
		}
	}()

	err = m.guard(func() {
		m.push(codeAddr(0, nativeEntryThrow))
		m.push(m.regs[masm.PP])
		m.push(m.regs[masm.FP])
		m.push(uint64(rt.Smi(int32(rt.HandlerEntry))))
		m.push(uint64(m.mem.root(rt.RootHandler)))
		m.mem.setRoot(rt.RootHandler, Value(m.regs[masm.SP]))
		m.entrySP = m.regs[masm.SP]

		m.push(uint64(fn))
		m.push(uint64(receiver))
		for _, a := range args {
			m.push(uint64(a))
		}
		m.regs[masm.R1] = uint64(fn)
		if !m.callFunction(len(args), codeAddr(0, nativeEntryReturn)) {
			m.entryReturn()
		}
	})
	for err == nil && !m.halted {
		err = m.guard(m.loop)
	}
	if err != nil {
		return m.undefined, err
	}
	return Value(m.regs[masm.R0]), nil
}

// guard runs f, turning exceptions into control transfers to their
// handler and machine checks into errors
func (m *Machine) guard(f func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch x := r.(type) {
		case jsThrow:
			err = m.unwind(x.v)
		case fault:
			flt := &Fault{Msg: x.msg}
			if m.prog != nil {
				flt.Prog, flt.PC = m.prog.Name, m.pc-1
			}
			err = flt
		case compileFailure:
			err = x.err
		default:
			panic(r)
		}
	}()
	f()
	return nil
}

func (m *Machine) loop() {
	for !m.halted {
		m.step()
	}
}

// unwind transfers control to the innermost handler. Reaching the entry
// record ends the Call with the exception.
func (m *Machine) unwind(v Value) error {
	h := uint64(m.mem.root(rt.RootHandler))
	if h == 0 {
		return &ThrownError{Value: v, Text: m.ToString(v)}
	}
	word := func(i int) uint64 { return m.mem.load(h + uint64(i)*rt.WordSize) }
	kind := rt.HandlerKind(Value(word(rt.HandlerKindIndex)).SmiValue())
	m.mem.setRoot(rt.RootHandler, Value(word(rt.HandlerNextIndex)))
	m.regs[masm.FP] = word(rt.HandlerFPIndex)
	m.regs[masm.PP] = word(rt.HandlerPPIndex)
	resume := word(rt.HandlerResumeIndex)
	m.regs[masm.SP] = h + rt.HandlerSize*rt.WordSize

	for len(m.adaptors) > 0 && m.adaptors[len(m.adaptors)-1].origSP < h {
		m.adaptors = m.adaptors[:len(m.adaptors)-1]
	}
	engine.Tracef("sim: throw to %s handler at %#x\n", kind, h)
	if kind == rt.HandlerEntry {
		return &ThrownError{Value: v, Text: m.ToString(v)}
	}
	m.clobber()
	m.flags.valid = false
	m.regs[masm.R0] = uint64(v)
	m.jumpTo(resume)
	return nil
}

// throw raises v as an exception from inside the machine
func (m *Machine) throw(v Value) {
	panic(jsThrow{v})
}

func (m *Machine) entryReturn() {
	if m.regs[masm.SP] != m.entrySP-rt.WordSize {
		panic(faultf("entry frame: stack is off by %d cells", (int64(m.entrySP-rt.WordSize)-int64(m.regs[masm.SP]))/rt.WordSize))
	}
	m.regs[masm.SP] += rt.WordSize
	m.mem.setRoot(rt.RootHandler, Value(m.mem.load(m.regs[masm.SP])))
	m.regs[masm.SP] += rt.HandlerSize * rt.WordSize
	m.halted = true
	m.prog = nil
}

func (m *Machine) push(v uint64) {
	m.regs[masm.SP] -= rt.WordSize
	m.mem.store(m.regs[masm.SP], v)
}

func (m *Machine) pop() uint64 {
	v := m.mem.load(m.regs[masm.SP])
	m.regs[masm.SP] += rt.WordSize
	return v
}

// args reads argc pushed arguments in evaluation order
func (m *Machine) args(argc int) []Value {
	out := make([]Value, argc)
	sp := m.regs[masm.SP]
	for i := range out {
		out[i] = Value(m.mem.load(sp + uint64(argc-1-i)*rt.WordSize))
	}
	return out
}

// clobber poisons the registers calls do not preserve
func (m *Machine) clobber() {
	for _, r := range []masm.Reg{masm.R1, masm.R2, masm.R3, masm.Tmp} {
		m.regs[r] = poison
	}
}

func (m *Machine) ea(mem masm.Mem) uint64 {
	addr := m.regs[mem.Base] + uint64(int64(mem.Disp))
	if mem.HasIndex() {
		addr += m.regs[mem.Index]
	}
	return addr
}

func (m *Machine) setCmp(a, b uint64) {
	r := a - b
	m.flags = flags{
		valid: true,
		zf:    r == 0,
		sf:    int64(r) < 0,
		cf:    a < b,
		of:    ((a^b)&(a^r))>>63 == 1,
	}
}

func (m *Machine) setTest(a, b uint64) {
	r := a & b
	m.flags = flags{valid: true, zf: r == 0, sf: int64(r) < 0}
}

func (m *Machine) holds(cc masm.Cond) bool {
	f := m.flags
	if !f.valid {
		panic(faultf("branch on %s with undefined flags", cc))
	}
	switch cc {
	case masm.Equal:
		return f.zf
	case masm.NotEqual:
		return !f.zf
	case masm.Less:
		return f.sf != f.of
	case masm.GreaterEqual:
		return f.sf == f.of
	case masm.LessEqual:
		return f.zf || f.sf != f.of
	case masm.Greater:
		return !f.zf && f.sf == f.of
	case masm.Below:
		return f.cf
	case masm.AboveEqual:
		return !f.cf
	case masm.BelowEqual:
		return f.cf || f.zf
	case masm.Above:
		return !f.cf && !f.zf
	case masm.Overflow:
		return f.of
	case masm.NoOverflow:
		return !f.of
	case masm.Negative:
		return f.sf
	case masm.Positive:
		return !f.sf
	}
	panic(faultf("unknown condition %d", cc))
}

func (m *Machine) jumpTo(addr uint64) {
	id, pc := m.decode(addr)
	if id != 0 {
		m.prog = m.progs[id]
		m.pc = pc
		return
	}
	switch pc {
	case nativeEntryReturn:
		m.entryReturn()
	case nativeAdaptorReturn:
		m.adaptorReturn()
	default:
		panic(faultf("return into native routine %d", pc))
	}
}

func (m *Machine) step() {
	m.stats.Steps++
	if m.opts.MaxSteps > 0 && m.stats.Steps > m.opts.MaxSteps {
		panic(faultf("step budget of %d exhausted", m.opts.MaxSteps))
	}
	if m.pc < 0 || m.pc >= len(m.prog.Instrs) {
		panic(faultf("pc %d outside %s", m.pc, m.prog.Name))
	}
	in := &m.prog.Instrs[m.pc]
	m.pc++
	r := &m.regs

	switch in.Op {
	case OpNop:
	case OpJump:
		m.pc = in.Target
	case OpBranch:
		if m.holds(in.Cond) {
			m.pc = in.Target
		}
	case OpMov:
		r[in.A] = r[in.B]
	case OpMovImm:
		r[in.A] = uint64(in.Imm)
	case OpLoadConstant:
		r[in.A] = uint64(m.prog.values[in.Const])
	case OpLoad:
		r[in.A] = m.mem.load(m.ea(in.M))
	case OpStore:
		m.mem.store(m.ea(in.M), r[in.A])
	case OpLea:
		r[in.A] = m.ea(in.M)
	case OpLoadRoot:
		r[in.A] = m.mem.load(r[masm.Roots] + uint64(in.Root.Offset()))
	case OpStoreRoot:
		m.mem.store(r[masm.Roots]+uint64(in.Root.Offset()), r[in.A])
	case OpCompareRoot:
		m.setCmp(r[in.A], m.mem.load(r[masm.Roots]+uint64(in.Root.Offset())))
	case OpPush:
		m.push(r[in.A])
	case OpPop:
		r[in.A] = m.pop()
	case OpDrop:
		r[masm.SP] += uint64(in.Imm) * rt.WordSize
	case OpAdd:
		r[in.A] += r[in.B]
	case OpSub:
		r[in.A] -= r[in.B]
	case OpAddImm:
		r[in.A] += uint64(in.Imm)
	case OpSubImm:
		r[in.A] -= uint64(in.Imm)
	case OpMul:
		r[in.A] = uint64(int64(r[in.A]) * int64(r[in.B]))
	case OpAddOverflow:
		a, b := r[in.A], r[in.B]
		sum := a + b
		r[in.A] = sum
		if ((a^sum)&(b^sum))>>63 == 1 {
			m.pc = in.Target
		}
	case OpSubOverflow:
		a, b := r[in.A], r[in.B]
		diff := a - b
		r[in.A] = diff
		if ((a^b)&(a^diff))>>63 == 1 {
			m.pc = in.Target
		}
	case OpMulOverflow:
		a, b := int64(r[in.A]), int64(r[in.B])
		p := a * b
		r[in.A] = uint64(p)
		if a != 0 && (p/a != b || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64)) {
			m.pc = in.Target
		}
	case OpDivMod:
		a, d := int64(r[masm.R0]), int64(r[in.A])
		if d == 0 || (d == -1 && a == math.MinInt64) {
			panic(faultf("division fault: %d / %d", a, d))
		}
		r[masm.R0] = uint64(a / d)
		r[masm.R1] = uint64(a % d)
	case OpAnd:
		r[in.A] &= r[in.B]
	case OpAndImm:
		r[in.A] &= uint64(in.Imm)
	case OpOr:
		r[in.A] |= r[in.B]
	case OpXor:
		r[in.A] ^= r[in.B]
	case OpShlImm:
		r[in.A] <<= uint(in.Imm)
	case OpSarImm:
		r[in.A] = uint64(int64(r[in.A]) >> uint(in.Imm))
	case OpShrImm:
		r[in.A] >>= uint(in.Imm)
	case OpShl:
		r[in.A] <<= r[masm.R2] & 63
	case OpSar:
		r[in.A] = uint64(int64(r[in.A]) >> (r[masm.R2] & 63))
	case OpShr:
		r[in.A] >>= r[masm.R2] & 63
	case OpNeg:
		r[in.A] = -r[in.A]
	case OpNot:
		r[in.A] = ^r[in.A]
	case OpCmp:
		m.setCmp(r[in.A], r[in.B])
	case OpCmpImm:
		m.setCmp(r[in.A], uint64(in.Imm))
	case OpTest:
		m.setTest(r[in.A], r[in.B])
	case OpTestImm:
		m.setTest(r[in.A], uint64(in.Imm))
	case OpCallRuntime:
		m.stats.RuntimeCalls++
		m.callRuntime(in.Entry, int(in.Imm))
	case OpCallIC:
		m.stats.ICCalls++
		m.callIC(in.IC, m.pc-1)
	case OpCallFunction:
		m.callFunction(int(in.Imm), codeAddr(m.prog.id, m.pc))
	case OpPushLabelAddress:
		m.push(codeAddr(m.prog.id, in.Target))
	case OpEnterFrame:
		m.push(r[masm.FP])
		r[masm.FP] = r[masm.SP]
	case OpLeaveFrame:
		r[masm.SP] = r[masm.FP]
		r[masm.FP] = m.pop()
	case OpRet:
		addr := m.pop()
		r[masm.SP] += uint64(in.Imm)
		m.jumpTo(addr)
	case OpBreakSlot:
		m.stats.BreakSlots++
	case OpTrap:
		panic(faultf("trap"))
	default:
		panic(faultf("unknown opcode %s", in.Op))
	}

	if !in.flagging() && !in.preservesFlags() {
		m.flags.valid = false
	}
}

// Stats returns the counters, with Steps covering the last Call
func (m *Machine) Stats() Stats { return m.stats }

// StackDepth is the number of cells on the stack
func (m *Machine) StackDepth() int {
	return int((m.mem.stackTop - m.regs[masm.SP]) / rt.WordSize)
}

// Global returns the global object
func (m *Machine) Global() Value { return m.global }

// SetGlobal defines or overwrites a property of the global object
func (m *Machine) SetGlobal(name string, v Value) {
	m.heap.put(m.heap.lookup(m.global), name, v)
}

// GetGlobal reads a property of the global object
func (m *Machine) GetGlobal(name string) (Value, bool) {
	v, ok := m.heap.lookup(m.global).props[name]
	return v, ok
}

// Undefined returns the undefined value
func (m *Machine) Undefined() Value { return m.undefined }

// String returns the string value s
func (m *Machine) String(s string) Value { return m.heap.String(s) }

// Number returns the number value f
func (m *Machine) Number(f float64) Value { return m.heap.Number(f) }

// Bool returns true or false
func (m *Machine) Bool(b bool) Value {
	if b {
		return m.vtrue
	}
	return m.vfalse
}
