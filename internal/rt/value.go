// Completion: 100% - Value tagging complete
package rt

import "math"

// Tagged values are 64-bit words.
//
//	...payload(32)... 00000000 00000000 00000000 0000000 0   small integer (smi)
//	...........address............................... 1   heap object
//
// A smi keeps its signed 32-bit payload in the upper half of the word, so
// tagged add and sub overflow exactly when the untagged int32 operation does.

const (
	WordSize  = 8
	SmiShift  = 32
	SmiTag    = 0
	SmiMask   = 1
	HeapTag   = 1
	SmiMin    = math.MinInt32
	SmiMax    = math.MaxInt32
	WordShift = 3
)

// Value is a tagged word as seen by generated code
type Value uint64

// Smi tags a small integer
func Smi(v int32) Value {
	return Value(uint64(int64(v)) << SmiShift)
}

// SmiWord returns the tagged word for v as a signed immediate
func SmiWord(v int32) int64 {
	return int64(Smi(v))
}

// IsSmi reports whether the tag bit marks a small integer
func (v Value) IsSmi() bool {
	return v&SmiMask == SmiTag
}

// IsHeap reports whether the value points to a heap object
func (v Value) IsHeap() bool {
	return v&SmiMask == HeapTag
}

// SmiValue untags a small integer
func (v Value) SmiValue() int32 {
	return int32(int64(v) >> SmiShift)
}

// Address returns the untagged heap address
func (v Value) Address() uint64 {
	return uint64(v) &^ HeapTag
}

// HeapValue tags a heap address
func HeapValue(addr uint64) Value {
	return Value(addr | HeapTag)
}

// FitsSmi reports whether f can be represented as a smi without losing
// information. Negative zero is not representable.
func FitsSmi(f float64) bool {
	if f != math.Trunc(f) || f < SmiMin || f > SmiMax {
		return false
	}
	if f == 0 && math.Signbit(f) {
		return false
	}
	return true
}

// FieldOffset returns the memory operand displacement of word index in a
// heap object addressed through a tagged pointer.
func FieldOffset(index int) int32 {
	return int32(index*WordSize - HeapTag)
}
