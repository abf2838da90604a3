package sim

import (
	"fmt"

	"github.com/xyproto/fullgen/internal/rt"
)

// Value is a tagged word
type Value = rt.Value

// Address space of the machine. Every region is word-addressed through
// byte addresses that must be aligned.
//
//	rootsBase   roots table, then the runtime entry table
//	stackBase   expression and frame stack, growing down from stackTop
//	heapBase    bump allocated heap objects
const (
	rootsBase uint64 = 0x1000
	stackBase uint64 = 0x100000
	heapBase  uint64 = 0x10000000

	// stackSlack is kept free below the stack limit so a frame can push
	// its fixed part and locals before checking
	stackSlack = 1024
)

type memory struct {
	roots    []uint64
	stack    []uint64
	stackTop uint64
	heap     []uint64
}

func newMemory(stackWords int) *memory {
	m := &memory{
		roots: make([]uint64, int(rt.RootCount)+int(rt.EntryCount)),
		stack: make([]uint64, stackWords),
		heap:  make([]uint64, 0, 1<<12),
	}
	m.stackTop = stackBase + uint64(stackWords)*rt.WordSize
	return m
}

// fault is a machine check: an access or control transfer generated code
// must never perform
type fault struct{ msg string }

func faultf(format string, args ...any) fault {
	return fault{fmt.Sprintf(format, args...)}
}

func (m *memory) cell(addr uint64) *uint64 {
	if addr%rt.WordSize != 0 {
		panic(faultf("misaligned access at %#x", addr))
	}
	switch {
	case addr >= heapBase:
		i := (addr - heapBase) / rt.WordSize
		if i < uint64(len(m.heap)) {
			return &m.heap[i]
		}
	case addr >= stackBase && addr < m.stackTop:
		return &m.stack[(addr-stackBase)/rt.WordSize]
	case addr >= rootsBase:
		i := (addr - rootsBase) / rt.WordSize
		if i < uint64(len(m.roots)) {
			return &m.roots[i]
		}
	}
	panic(faultf("access outside mapped memory at %#x", addr))
}

func (m *memory) load(addr uint64) uint64 { return *m.cell(addr) }

func (m *memory) store(addr, v uint64) { *m.cell(addr) = v }

// alloc reserves words on the heap and returns the untagged address
func (m *memory) alloc(words int) uint64 {
	addr := heapBase + uint64(len(m.heap))*rt.WordSize
	for i := 0; i < words; i++ {
		m.heap = append(m.heap, 0)
	}
	return addr
}

// field reads word index of the object v points to
func (m *memory) field(v Value, index int) Value {
	return Value(m.load(v.Address() + uint64(index)*rt.WordSize))
}

func (m *memory) setField(v Value, index int, w Value) {
	m.store(v.Address()+uint64(index)*rt.WordSize, uint64(w))
}

func (m *memory) root(r rt.Root) Value {
	return Value(m.roots[r])
}

func (m *memory) setRoot(r rt.Root, v Value) {
	m.roots[r] = uint64(v)
}
