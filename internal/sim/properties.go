package sim

import (
	"strconv"
	"unicode/utf8"
)

func (m *Machine) getOwn(o *object, key string) Value {
	if v, ok := o.props[key]; ok {
		return v
	}
	return m.undefined
}

// getProperty reads obj[key]. There are no prototypes: a missing property
// is undefined.
func (m *Machine) getProperty(obj Value, key string) Value {
	if obj.IsSmi() {
		return m.undefined
	}
	o := m.object(obj)
	switch o.kind {
	case kindOddball:
		if m.isNullish(obj) {
			m.typeError("Cannot read properties of %s (reading '%s')", m.ToString(obj), key)
		}
		return m.undefined
	case kindNumber:
		return m.undefined
	case kindString:
		runes := []rune(o.str)
		if key == "length" {
			return m.heap.Number(float64(len(runes)))
		}
		if i, ok := arrayIndex(key); ok && i < len(runes) {
			return m.heap.String(string(runes[i]))
		}
		return m.undefined
	case kindArray, kindArguments:
		if key == "length" {
			return m.heap.Number(float64(len(o.elems)))
		}
		if i, ok := arrayIndex(key); ok {
			return m.element(o, i)
		}
	case kindFunction:
		if key == "name" {
			if _, own := o.props[key]; !own && o.shared != nil {
				return m.heap.String(o.shared.name)
			}
		}
	case kindObject:
	default:
		return m.undefined
	}
	return m.getOwn(o, key)
}

func (m *Machine) element(o *object, i int) Value {
	if i >= len(o.elems) || o.elems[i] == m.hole {
		return m.undefined
	}
	return o.elems[i]
}

// getKeyed reads obj[key] with a fast path for smi indexes
func (m *Machine) getKeyed(obj, key Value) Value {
	if i, ok := smiIndex(key); ok {
		if o := m.heap.lookup(obj); o != nil && (o.kind == kindArray || o.kind == kindArguments) {
			return m.element(o, i)
		}
	}
	return m.getProperty(obj, m.propertyKey(key))
}

// setProperty writes obj[key] = v. Stores to primitives are dropped.
func (m *Machine) setProperty(obj Value, key string, v Value) {
	if m.isNullish(obj) {
		m.typeError("Cannot set properties of %s (setting '%s')", m.ToString(obj), key)
	}
	if !m.isObject(obj) {
		return
	}
	o := m.heap.lookup(obj)
	if o.kind == kindArray || o.kind == kindArguments {
		if key == "length" {
			n := m.toNumber(v)
			if n < 0 || n != float64(uint32(n)) {
				m.throw(m.newError("RangeError", "Invalid array length"))
			}
			m.resize(o, int(n))
			return
		}
		if i, ok := arrayIndex(key); ok {
			if i >= len(o.elems) {
				m.resize(o, i+1)
			}
			o.elems[i] = v
			return
		}
	}
	m.heap.put(o, key, v)
}

func (m *Machine) resize(o *object, n int) {
	if n <= len(o.elems) {
		o.elems = o.elems[:n]
		return
	}
	for len(o.elems) < n {
		o.elems = append(o.elems, m.hole)
	}
}

func (m *Machine) setKeyed(obj, key, v Value) {
	if i, ok := smiIndex(key); ok {
		if o := m.heap.lookup(obj); o != nil && (o.kind == kindArray || o.kind == kindArguments) {
			if i >= len(o.elems) {
				m.resize(o, i+1)
			}
			o.elems[i] = v
			return
		}
	}
	m.setProperty(obj, m.propertyKey(key), v)
}

// deleteProperty removes obj[key]. Deleting what is not there succeeds.
func (m *Machine) deleteProperty(obj Value, key string) bool {
	if m.isNullish(obj) {
		m.typeError("Cannot convert %s to object", m.ToString(obj))
	}
	if !m.isObject(obj) {
		return true
	}
	o := m.heap.lookup(obj)
	if o.kind == kindArray || o.kind == kindArguments {
		if key == "length" {
			return false
		}
		if i, ok := arrayIndex(key); ok {
			if i < len(o.elems) {
				o.elems[i] = m.hole
			}
			return true
		}
	}
	m.heap.remove(o, key)
	return true
}

// hasOwn reports whether key is an own property of obj
func (m *Machine) hasOwn(obj Value, key string) bool {
	o := m.heap.lookup(obj)
	if o == nil {
		return false
	}
	switch o.kind {
	case kindArray, kindArguments:
		if key == "length" {
			return true
		}
		if i, ok := arrayIndex(key); ok {
			return i < len(o.elems) && o.elems[i] != m.hole
		}
	case kindString:
		if key == "length" {
			return true
		}
		i, ok := arrayIndex(key)
		return ok && i < utf8.RuneCountInString(o.str)
	}
	return o.props != nil && o.has(key)
}

// enumerableKeys lists the keys for-in visits: element indexes first,
// then named properties in insertion order
func (m *Machine) enumerableKeys(obj Value) []string {
	o := m.heap.lookup(obj)
	if o == nil {
		return nil
	}
	var keys []string
	switch o.kind {
	case kindArray, kindArguments:
		for i, e := range o.elems {
			if e != m.hole {
				keys = append(keys, strconv.Itoa(i))
			}
		}
	case kindString:
		for i := 0; i < utf8.RuneCountInString(o.str); i++ {
			keys = append(keys, strconv.Itoa(i))
		}
		return keys
	}
	if o.props != nil {
		keys = append(keys, o.keys()...)
	}
	return keys
}
