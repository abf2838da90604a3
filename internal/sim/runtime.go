// Completion: 90% - Runtime entries of the baseline subset, no prototypes or getters
package sim

import (
	"math"
	"strings"

	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// callRuntime runs entry e on argc pushed arguments, pops them and leaves
// the result in R0. CP, PP and FP survive; the scratch registers do not.
func (m *Machine) callRuntime(e rt.Entry, argc int) {
	if arity := e.Arity(); arity >= 0 && arity != argc {
		panic(faultf("%s called with %d arguments, takes %d", e, argc, arity))
	}
	args := m.args(argc)
	m.regs[masm.SP] += uint64(argc) * rt.WordSize
	result := m.runtime(e, args)
	m.clobber()
	m.regs[masm.R0] = uint64(result)
}

func (m *Machine) runtime(e rt.Entry, a []Value) Value {
	h := m.heap
	switch e {
	case rt.ToBoolean:
		return m.Bool(m.toBoolean(a[0]))
	case rt.ToNumber:
		return h.Number(m.toNumber(a[0]))
	case rt.ToObject:
		return m.toObject(a[0])
	case rt.Add:
		l, r := m.toPrimitive(a[0]), m.toPrimitive(a[1])
		if m.isString(l) || m.isString(r) {
			return h.String(m.ToString(l) + m.ToString(r))
		}
		return h.Number(m.toNumber(l) + m.toNumber(r))
	case rt.Sub:
		return h.Number(m.toNumber(a[0]) - m.toNumber(a[1]))
	case rt.Mul:
		return h.Number(m.toNumber(a[0]) * m.toNumber(a[1]))
	case rt.Div:
		return h.Number(m.toNumber(a[0]) / m.toNumber(a[1]))
	case rt.Mod:
		return h.Number(math.Mod(m.toNumber(a[0]), m.toNumber(a[1])))
	case rt.BitOr:
		return rt.Smi(toInt32(m.toNumber(a[0])) | toInt32(m.toNumber(a[1])))
	case rt.BitAnd:
		return rt.Smi(toInt32(m.toNumber(a[0])) & toInt32(m.toNumber(a[1])))
	case rt.BitXor:
		return rt.Smi(toInt32(m.toNumber(a[0])) ^ toInt32(m.toNumber(a[1])))
	case rt.Shl:
		return rt.Smi(toInt32(m.toNumber(a[0])) << (toUint32(m.toNumber(a[1])) & 31))
	case rt.Sar:
		return rt.Smi(toInt32(m.toNumber(a[0])) >> (toUint32(m.toNumber(a[1])) & 31))
	case rt.Shr:
		return h.Number(float64(toUint32(m.toNumber(a[0])) >> (toUint32(m.toNumber(a[1])) & 31)))
	case rt.Compare:
		return rt.Smi(m.compare(a[0], a[1], a[2].SmiValue()))
	case rt.Equals:
		return equalityResult(m.looseEquals(a[0], a[1]))
	case rt.StrictEquals:
		return equalityResult(m.strictEquals(a[0], a[1]))
	case rt.Typeof:
		return h.String(m.TypeOf(a[0]))
	case rt.Delete:
		return m.Bool(m.deleteProperty(a[0], m.propertyKey(a[1])))
	case rt.In:
		if !m.isObject(a[1]) {
			m.typeError("Cannot use 'in' operator to search for '%s' in %s", m.propertyKey(a[0]), m.ToString(a[1]))
		}
		return m.Bool(m.hasOwn(a[1], m.propertyKey(a[0])))
	case rt.InstanceOf:
		if m.TypeOf(a[1]) != "function" {
			m.typeError("Right-hand side of 'instanceof' is not callable")
		}
		return m.vfalse
	case rt.NewArguments:
		return m.newArguments(uint64(a[1]), int(a[2].SmiValue()))
	case rt.NewClosure:
		return m.newClosure(a[0], a[1])
	case rt.NewFunctionContext:
		closure := a[0]
		previous := m.mem.field(closure, rt.FunctionContextIndex)
		return h.newContext(closure, previous, int(a[1].SmiValue()), m.undefined)
	case rt.NewObject:
		return h.newObject()
	case rt.NewArray:
		elems := make([]Value, len(a))
		copy(elems, a)
		return h.newArray(elems)
	case rt.DeclareGlobals:
		for _, name := range h.fixedArrayElems(a[0]) {
			m.declareGlobal(m.ToString(name))
		}
		return m.undefined
	case rt.DeclareEvalVar:
		m.declareGlobal(m.ToString(a[0]))
		return m.undefined
	case rt.ForInPrepare:
		return m.forInPrepare(a[0])
	case rt.ForInFilter:
		key := m.ToString(a[1])
		if m.hasOwn(a[0], key) {
			return a[1]
		}
		return m.undefined
	case rt.Throw, rt.ReThrow:
		m.throw(a[0])
	case rt.ThrowReferenceError:
		m.throw(m.newError("ReferenceError", m.ToString(a[0])))
	case rt.StackGuard:
		if m.regs[masm.SP] < uint64(m.mem.root(rt.RootStackLimit)) {
			m.throw(m.newError("RangeError", "Maximum call stack size exceeded"))
		}
		return m.undefined
	case rt.RecordWrite:
		m.recordWrite(a[0], a[1].SmiValue())
		return m.undefined
	}
	panic(faultf("runtime entry %s is not implemented", e))
}

// equalityResult follows the Equals convention: smi 0 when equal
func equalityResult(eq bool) Value {
	if eq {
		return rt.Smi(rt.CompareEqual)
	}
	return rt.Smi(1)
}

// compare orders two values. ncr is the answer when either side is NaN.
func (m *Machine) compare(l, r Value, ncr int32) int32 {
	l, r = m.toPrimitive(l), m.toPrimitive(r)
	if m.isString(l) && m.isString(r) {
		return int32(strings.Compare(m.ToString(l), m.ToString(r)))
	}
	x, y := m.toNumber(l), m.toNumber(r)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return ncr
	case x < y:
		return rt.CompareLess
	case x > y:
		return rt.CompareGreater
	}
	return rt.CompareEqual
}

func (m *Machine) toObject(v Value) Value {
	if m.isNullish(v) {
		m.typeError("Cannot convert %s to object", m.ToString(v))
	}
	if m.isObject(v) {
		return v
	}
	if m.isString(v) {
		// keeps the characters enumerable
		return v
	}
	return m.heap.newObject()
}

func (m *Machine) newClosure(context, shared Value) Value {
	o := m.object(shared)
	if o.kind != kindShared {
		panic(faultf("NewClosure on a %d object", o.kind))
	}
	code := Value(codeAddr(0, nativeLazyCompile))
	if p := o.shared.prog; p != nil {
		code = Value(codeAddr(p.id, 0))
	}
	return m.heap.newFunction(shared, context, code)
}

// newArguments builds the unmapped arguments object of the frame whose
// receiver is at pp. Adapted calls report the caller's real arguments.
func (m *Machine) newArguments(pp uint64, n int) Value {
	if args, ok := m.adaptedArgs(pp); ok {
		return m.heap.newArguments(args)
	}
	elems := make([]Value, n)
	for i := range elems {
		elems[i] = Value(m.mem.load(pp - uint64(i+1)*rt.WordSize))
	}
	return m.heap.newArguments(elems)
}

func (m *Machine) declareGlobal(name string) {
	g := m.heap.lookup(m.global)
	if !g.has(name) {
		m.heap.put(g, name, m.undefined)
	}
}

// forInPrepare returns the shape of a plain object with its enum cache
// filled in, or the key array for anything else
func (m *Machine) forInPrepare(v Value) Value {
	h := m.heap
	o := h.lookup(v)
	if o != nil && o.kind == kindObject && o.shape != nil {
		if h.enumCache(o.shape) == m.undefined {
			h.setCache(rt.HeapValue(o.shape.addr), m.keyArray(v))
		}
		return rt.HeapValue(o.shape.addr)
	}
	return m.keyArray(v)
}

func (m *Machine) keyArray(v Value) Value {
	keys := m.enumerableKeys(v)
	elems := make([]Value, len(keys))
	for i, k := range keys {
		elems[i] = m.heap.String(k)
	}
	return m.heap.newFixedArray(elems)
}

// recordWrite checks that the write barrier names a field inside a
// context or object it was emitted for
func (m *Machine) recordWrite(base Value, offset int32) {
	m.stats.RecordWrites++
	o := m.object(base)
	index := int(offset+1) / rt.WordSize
	if o.kind == kindContext {
		size := rt.ContextHeaderSize + o.slots
		if index < rt.ContextHeaderSize || index >= size {
			panic(faultf("write barrier outside context slots (word %d of %d)", index, size))
		}
	}
}
