package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// object returns the Go side of a heap value; anything else is a wild
// pointer generated code must never hold
func (m *Machine) object(v Value) *object {
	o := m.heap.lookup(v)
	if o == nil {
		panic(faultf("%#x is not a value", uint64(v)))
	}
	return o
}

func (m *Machine) isString(v Value) bool {
	o := m.heap.lookup(v)
	return o != nil && o.kind == kindString
}

func (m *Machine) isNumber(v Value) bool {
	if v.IsSmi() {
		return true
	}
	o := m.heap.lookup(v)
	return o != nil && o.kind == kindNumber
}

// isObject reports whether v is an object in the language sense
func (m *Machine) isObject(v Value) bool {
	o := m.heap.lookup(v)
	if o == nil {
		return false
	}
	switch o.kind {
	case kindObject, kindArray, kindArguments, kindFunction:
		return true
	}
	return false
}

func (m *Machine) isNullish(v Value) bool {
	return v == m.undefined || v == m.null || v == m.hole
}

// TypeOf is the result of the typeof operator
func (m *Machine) TypeOf(v Value) string {
	if v.IsSmi() {
		return "number"
	}
	o := m.heap.lookup(v)
	if o == nil {
		return "undefined"
	}
	switch o.kind {
	case kindOddball:
		switch o.oddball {
		case "null":
			return "object"
		case "true", "false":
			return "boolean"
		}
		return "undefined"
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindFunction:
		return "function"
	}
	return "object"
}

// NumberValue returns the numeric payload of a smi or heap number
func (m *Machine) NumberValue(v Value) (float64, bool) {
	if v.IsSmi() {
		return float64(v.SmiValue()), true
	}
	if o := m.heap.lookup(v); o != nil && o.kind == kindNumber {
		return o.num, true
	}
	return 0, false
}

func (m *Machine) toBoolean(v Value) bool {
	if v.IsSmi() {
		return v.SmiValue() != 0
	}
	o := m.object(v)
	switch o.kind {
	case kindOddball:
		return o.oddball == "true"
	case kindString:
		return o.str != ""
	case kindNumber:
		return o.num != 0 && !math.IsNaN(o.num)
	}
	return true
}

func (m *Machine) toNumber(v Value) float64 {
	if f, ok := m.NumberValue(v); ok {
		return f
	}
	o := m.object(v)
	switch o.kind {
	case kindOddball:
		switch o.oddball {
		case "null", "false":
			return 0
		case "true":
			return 1
		}
		return math.NaN()
	case kindString:
		return stringToNumber(o.str)
	}
	return m.toNumber(m.toPrimitive(v))
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		n, err := strconv.ParseUint(s[2:], 16, 64)
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-') {
			return math.NaN()
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(math.Mod(math.Trunc(f), 1<<32))))
}

func toUint32(f float64) uint32 {
	return uint32(toInt32(f))
}

// toPrimitive converts objects to their string form; primitives pass
func (m *Machine) toPrimitive(v Value) Value {
	if !m.isObject(v) {
		return v
	}
	return m.heap.String(m.ToString(v))
}

// ToString converts v the way string concatenation does
func (m *Machine) ToString(v Value) string {
	if v.IsSmi() {
		return strconv.Itoa(int(v.SmiValue()))
	}
	o := m.heap.lookup(v)
	if o == nil {
		return "<invalid>"
	}
	switch o.kind {
	case kindOddball:
		if o.oddball == "hole" {
			return "undefined"
		}
		return o.oddball
	case kindString:
		return o.str
	case kindNumber:
		return NumberToString(o.num)
	case kindArray:
		parts := make([]string, len(o.elems))
		for i, e := range o.elems {
			if !m.isNullish(e) {
				parts[i] = m.ToString(e)
			}
		}
		return strings.Join(parts, ",")
	case kindArguments:
		return "[object Arguments]"
	case kindFunction:
		name := ""
		if o.shared != nil {
			name = o.shared.name
		}
		return "function " + name + "() { [code] }"
	case kindObject:
		if o.cls != "" {
			msg := m.ToString(m.getOwn(o, "message"))
			if msg == "" {
				return o.cls
			}
			return o.cls + ": " + msg
		}
		return "[object Object]"
	}
	return "<internal>"
}

// NumberToString formats a number as the language prints it
func NumberToString(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	a := math.Abs(f)
	if a >= 1e21 || a < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[0]
		exp = strings.TrimLeft(exp[1:], "0")
		if exp == "" {
			exp = "0"
		}
		return mant + "e" + string(sign) + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// describe renders a value for an error message
func (m *Machine) describe(v Value) string {
	if m.isString(v) {
		return strconv.Quote(m.ToString(v))
	}
	if m.isObject(v) && m.TypeOf(v) != "function" {
		return "object"
	}
	return m.ToString(v)
}

// propertyKey converts a key value to a property name
func (m *Machine) propertyKey(v Value) string {
	return m.ToString(m.toPrimitive(v))
}

func (m *Machine) strictEquals(a, b Value) bool {
	if x, ok := m.NumberValue(a); ok {
		y, ok := m.NumberValue(b)
		return ok && x == y
	}
	if m.isString(a) && m.isString(b) {
		return m.heap.lookup(a).str == m.heap.lookup(b).str
	}
	if m.isNullish(a) && m.isNullish(b) {
		return (a == m.null) == (b == m.null)
	}
	return a == b
}

func (m *Machine) looseEquals(a, b Value) bool {
	if m.isNullish(a) || m.isNullish(b) {
		return m.isNullish(a) && m.isNullish(b)
	}
	ta, tb := m.TypeOf(a), m.TypeOf(b)
	if ta == tb || (m.isObject(a) && m.isObject(b)) {
		return m.strictEquals(a, b)
	}
	if m.isObject(a) {
		return m.looseEquals(m.toPrimitive(a), b)
	}
	if m.isObject(b) {
		return m.looseEquals(a, m.toPrimitive(b))
	}
	return m.toNumber(a) == m.toNumber(b)
}

// newError builds an error object of the given class
func (m *Machine) newError(cls, msg string) Value {
	v := m.heap.newObject()
	o := m.heap.lookup(v)
	o.cls = cls
	m.heap.put(o, "name", m.heap.String(cls))
	m.heap.put(o, "message", m.heap.String(msg))
	return v
}

func (m *Machine) typeError(format string, args ...any) {
	m.throw(m.newError("TypeError", fmt.Sprintf(format, args...)))
}

// arrayIndex parses a canonical array index
func arrayIndex(key string) (int, bool) {
	if key == "" || len(key) > 10 || (len(key) > 1 && key[0] == '0') {
		return 0, false
	}
	n, err := strconv.ParseUint(key, 10, 32)
	if err != nil || n == math.MaxUint32 {
		return 0, false
	}
	return int(n), true
}

// smiIndex returns a non-negative smi key as an index
func smiIndex(v Value) (int, bool) {
	if !v.IsSmi() || v.SmiValue() < 0 {
		return 0, false
	}
	return int(v.SmiValue()), true
}
