package sim

import (
	"github.com/xyproto/fullgen/internal/rt"
)

// kind is the Go-side classification of a heap object
type kind uint8

const (
	kindMap kind = iota // shapes and the fixed maps of other kinds
	kindOddball
	kindString
	kindNumber
	kindFixedArray
	kindContext
	kindShared
	kindFunction
	kindObject
	kindArray
	kindArguments
)

// shape is the map of plain objects: the ordered list of property names.
// Objects built by the same sequence of additions share a shape.
type shape struct {
	addr        uint64
	keys        []string
	transitions map[string]*shape
	unique      bool // left the transition tree after a delete
}

// object is the Go-side part of a heap object. Words generated code reads
// live in memory; property storage and primitive payloads live here.
type object struct {
	kind  kind
	addr  uint64
	shape *shape // plain objects and kindMap entries that are shapes

	str     string
	num     float64
	oddball string // "undefined", "null", "true", "false", "hole"

	props map[string]Value
	order []string // property order for objects that have no shape
	elems []Value  // arrays and arguments

	shared *sharedInfo
	cls    string // error class for error objects
	slots  int    // context slot count
}

// sharedInfo ties a function literal to its compiled program
type sharedInfo struct {
	name    string
	payload any
	prog    *Program
}

type heap struct {
	mem     *memory
	objects map[uint64]*object
	strings map[string]Value

	metaMap, oddballMap, stringMap, numberMap Value
	fixedArrayMap, contextMap, sharedMap      Value
	functionMap, arrayMap, argumentsMap       Value
	rootShape                                 *shape
	shapes                                    map[uint64]*shape

	// undefined fills the enum cache word of every map
	undefined Value
}

func newHeap(mem *memory) *heap {
	h := &heap{
		mem:     mem,
		objects: map[uint64]*object{},
		strings: map[string]Value{},
		shapes:  map[uint64]*shape{},
	}
	// The meta map is its own map
	addr := mem.alloc(rt.ShapeSize)
	h.metaMap = rt.HeapValue(addr)
	h.objects[addr] = &object{kind: kindMap, addr: addr}
	mem.store(addr, uint64(h.metaMap))

	h.oddballMap = h.newMap()
	h.undefined = h.newOddball("undefined")
	h.setCache(h.metaMap, h.undefined)
	h.setCache(h.oddballMap, h.undefined)
	h.stringMap = h.newMap()
	h.numberMap = h.newMap()
	h.fixedArrayMap = h.newMap()
	h.contextMap = h.newMap()
	h.sharedMap = h.newMap()
	h.functionMap = h.newMap()
	h.arrayMap = h.newMap()
	h.argumentsMap = h.newMap()
	h.rootShape = h.newShape(nil, false)
	return h
}

func (h *heap) allocObject(words int, m Value, o *object) Value {
	addr := h.mem.alloc(words)
	o.addr = addr
	h.objects[addr] = o
	h.mem.store(addr, uint64(m))
	return rt.HeapValue(addr)
}

// newMap allocates a map with no enum cache
func (h *heap) newMap() Value {
	v := h.allocObject(rt.ShapeSize, h.metaMap, &object{kind: kindMap})
	h.setCache(v, h.undefined)
	return v
}

func (h *heap) setCache(m, keys Value) {
	h.mem.setField(m, rt.ShapeEnumCacheIndex, keys)
}

func (h *heap) newShape(keys []string, unique bool) *shape {
	v := h.newMap()
	s := &shape{addr: v.Address(), keys: keys, transitions: map[string]*shape{}, unique: unique}
	h.shapes[s.addr] = s
	h.objects[s.addr].shape = s
	return s
}

func (h *heap) enumCache(s *shape) Value {
	return h.mem.field(rt.HeapValue(s.addr), rt.ShapeEnumCacheIndex)
}

// transition returns the shape reached by adding key to s
func (h *heap) transition(s *shape, key string) *shape {
	if next, ok := s.transitions[key]; ok {
		return next
	}
	keys := make([]string, len(s.keys), len(s.keys)+1)
	copy(keys, s.keys)
	next := h.newShape(append(keys, key), false)
	if !s.unique {
		s.transitions[key] = next
	}
	return next
}

func (h *heap) lookup(v Value) *object {
	if !v.IsHeap() {
		return nil
	}
	return h.objects[v.Address()]
}

func (h *heap) newOddball(name string) Value {
	return h.allocObject(1, h.oddballMap, &object{kind: kindOddball, oddball: name})
}

// String returns the interned string object for s
func (h *heap) String(s string) Value {
	if v, ok := h.strings[s]; ok {
		return v
	}
	v := h.allocObject(1, h.stringMap, &object{kind: kindString, str: s})
	h.strings[s] = v
	return v
}

// Number returns f as a smi when it fits and as a heap number otherwise
func (h *heap) Number(f float64) Value {
	if rt.FitsSmi(f) {
		return rt.Smi(int32(f))
	}
	return h.allocObject(1, h.numberMap, &object{kind: kindNumber, num: f})
}

func (h *heap) newFixedArray(elems []Value) Value {
	v := h.allocObject(rt.FixedArrayHeaderSize+len(elems), h.fixedArrayMap, &object{kind: kindFixedArray})
	h.mem.setField(v, rt.FixedArrayLengthIndex, rt.Smi(int32(len(elems))))
	for i, e := range elems {
		h.mem.setField(v, rt.FixedArrayHeaderSize+i, e)
	}
	return v
}

func (h *heap) fixedArrayElems(v Value) []Value {
	n := int(h.mem.field(v, rt.FixedArrayLengthIndex).SmiValue())
	out := make([]Value, n)
	for i := range out {
		out[i] = h.mem.field(v, rt.FixedArrayHeaderSize+i)
	}
	return out
}

func (h *heap) newContext(closure, previous Value, slots int, fill Value) Value {
	v := h.allocObject(rt.ContextHeaderSize+slots, h.contextMap, &object{kind: kindContext, slots: slots})
	h.mem.setField(v, rt.ContextClosureIndex, closure)
	h.mem.setField(v, rt.ContextPreviousIndex, previous)
	for i := 0; i < slots; i++ {
		h.mem.setField(v, rt.ContextHeaderSize+i, fill)
	}
	return v
}

func (h *heap) newShared(s *sharedInfo) Value {
	return h.allocObject(1, h.sharedMap, &object{kind: kindShared, shared: s})
}

func (h *heap) newFunction(shared, context, code Value) Value {
	o := h.lookup(shared)
	v := h.allocObject(rt.FunctionSize, h.functionMap, &object{kind: kindFunction, shared: o.shared, props: map[string]Value{}})
	h.mem.setField(v, rt.FunctionSharedIndex, shared)
	h.mem.setField(v, rt.FunctionContextIndex, context)
	h.mem.setField(v, rt.FunctionCodeIndex, code)
	return v
}

func (h *heap) newObject() Value {
	o := &object{kind: kindObject, shape: h.rootShape, props: map[string]Value{}}
	return h.allocObject(1, rt.HeapValue(h.rootShape.addr), o)
}

func (h *heap) newArray(elems []Value) Value {
	return h.allocObject(1, h.arrayMap, &object{kind: kindArray, elems: elems, props: map[string]Value{}})
}

func (h *heap) newArguments(elems []Value) Value {
	return h.allocObject(1, h.argumentsMap, &object{kind: kindArguments, elems: elems, props: map[string]Value{}})
}

// keys lists own enumerable property names in order
func (o *object) keys() []string {
	if o.shape != nil {
		return o.shape.keys
	}
	return o.order
}

func (o *object) has(key string) bool {
	_, ok := o.props[key]
	return ok
}

// put adds or overwrites a property, moving plain objects to the next shape
func (h *heap) put(o *object, key string, v Value) {
	if _, ok := o.props[key]; !ok {
		if o.shape != nil {
			o.shape = h.transition(o.shape, key)
			h.mem.store(o.addr, uint64(rt.HeapValue(o.shape.addr)))
		} else {
			o.order = append(o.order, key)
		}
	}
	o.props[key] = v
}

// remove deletes a property. A plain object leaves the transition tree for
// a shape of its own, so code holding the old shape notices.
func (h *heap) remove(o *object, key string) bool {
	if _, ok := o.props[key]; !ok {
		return false
	}
	delete(o.props, key)
	strip := func(list []string) []string {
		out := make([]string, 0, len(list))
		for _, k := range list {
			if k != key {
				out = append(out, k)
			}
		}
		return out
	}
	if o.shape != nil {
		o.shape = h.newShape(strip(o.shape.keys), true)
		h.mem.store(o.addr, uint64(rt.HeapValue(o.shape.addr)))
	} else {
		o.order = strip(o.order)
	}
	return true
}
