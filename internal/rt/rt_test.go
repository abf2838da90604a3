package rt

import (
	"math"
	"testing"
)

func TestSmiTagging(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 42, math.MaxInt32, math.MinInt32} {
		w := Smi(v)
		if !w.IsSmi() || w.IsHeap() {
			t.Errorf("Smi(%d) = %#x is not tagged as a smi", v, uint64(w))
		}
		if got := w.SmiValue(); got != v {
			t.Errorf("Smi(%d).SmiValue() = %d", v, got)
		}
		if uint64(w)&0xFFFFFFFF != 0 {
			t.Errorf("Smi(%d) has low bits set: %#x", v, uint64(w))
		}
	}
}

func TestHeapTagging(t *testing.T) {
	v := HeapValue(0x1000)
	if !v.IsHeap() || v.Address() != 0x1000 {
		t.Errorf("HeapValue(0x1000) = %#x", uint64(v))
	}
	// A field load through the tagged pointer lands on the untagged word
	if got := uint64(int64(v) + int64(FieldOffset(2))); got != 0x1010 {
		t.Errorf("field 2 address = %#x, want 0x1010", got)
	}
}

func TestFitsSmi(t *testing.T) {
	tests := []struct {
		f    float64
		want bool
	}{
		{0, true},
		{math.Copysign(0, -1), false},
		{1.5, false},
		{2147483647, true},
		{2147483648, false},
		{-2147483648, true},
		{math.NaN(), false},
	}
	for _, tt := range tests {
		if got := FitsSmi(tt.f); got != tt.want {
			t.Errorf("FitsSmi(%v) = %v, want %v", tt.f, got, tt.want)
		}
	}
}

func TestFrameOffsets(t *testing.T) {
	if LocalOffset(0) != -32 || LocalOffset(2) != -48 {
		t.Errorf("LocalOffset: got %d, %d", LocalOffset(0), LocalOffset(2))
	}
	if ParameterPointerOffset(2) != 32 {
		t.Errorf("ParameterPointerOffset(2) = %d, want 32", ParameterPointerOffset(2))
	}
	if ParameterOffset(0) != -8 {
		t.Errorf("ParameterOffset(0) = %d, want -8", ParameterOffset(0))
	}
}

func TestEntryTable(t *testing.T) {
	for e := Entry(0); e < EntryCount; e++ {
		if e.String() == "" {
			t.Errorf("entry %d has no name", int(e))
		}
	}
	if ToBoolean.Offset() != int32(RootCount)*WordSize {
		t.Errorf("entry table does not follow the roots")
	}
	if !ReThrow.NoReturn() || Add.NoReturn() {
		t.Errorf("NoReturn classification is wrong")
	}
}
