package codegen

import (
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

// Frame is the symbolic shape of the native stack while one function is
// being compiled:
//
//	PP             receiver
//	PP-8(i+1)      parameter i
//	FP+8           return address
//	FP             caller FP
//	FP-8           caller PP
//	FP-16          context
//	FP-24          closure
//	FP-32-8i       local i
//	               expression stack (depth cells)
//
// FP and PP are fixed for the whole compilation; only depth moves. The value
// most recently produced by an expression lives in R0, the top-of-stack
// cache, and reaches memory only when a consumer pushes it.
type Frame struct {
	asm       masm.Assembler
	params    int
	locals    int
	depth     int
	underflow bool
}

func newFrame(asm masm.Assembler, params, locals int) *Frame {
	return &Frame{asm: asm, params: params, locals: locals}
}

// ParameterSlot addresses declared parameter i
func (f *Frame) ParameterSlot(i int) masm.Mem {
	return masm.MemAt(masm.PP, rt.ParameterOffset(i))
}

// Receiver addresses the implicit receiver
func (f *Frame) Receiver() masm.Mem {
	return masm.MemAt(masm.PP, rt.ReceiverPPOffset)
}

// LocalSlot addresses local i
func (f *Frame) LocalSlot(i int) masm.Mem {
	return masm.MemAt(masm.FP, rt.LocalOffset(i))
}

// ContextSlot addresses slot index of the context depth hops up the chain.
// Walking the chain emits loads into scratch, which must not be CP.
func (f *Frame) ContextSlot(depth, index int, scratch masm.Reg) masm.Mem {
	base := masm.CP
	for i := 0; i < depth; i++ {
		f.asm.Load(scratch, masm.MemAt(base, rt.FieldOffset(rt.ContextPreviousIndex)))
		base = scratch
	}
	return masm.MemAt(base, rt.ContextSlotOffset(index))
}

// ContextMem is the frame cell holding the current context
func (f *Frame) ContextMem() masm.Mem {
	return masm.MemAt(masm.FP, rt.ContextOffset)
}

// FunctionMem is the frame cell holding the running closure
func (f *Frame) FunctionMem() masm.Mem {
	return masm.MemAt(masm.FP, rt.FunctionOffset)
}

// ElementAt addresses the expression stack cell i positions below the top
func (f *Frame) ElementAt(i int) masm.Mem {
	return masm.MemAt(masm.SP, int32(i*rt.WordSize))
}

// StackPointerAt is the FP-relative address SP has at the given depth
func (f *Frame) StackPointerAt(depth int) masm.Mem {
	return masm.MemAt(masm.FP, int32(-rt.WordSize*(rt.FixedSlotCount+f.locals+depth)))
}

// Push emits a push and records it
func (f *Frame) Push(r masm.Reg) {
	f.asm.Push(r)
	f.depth++
}

// Pop emits a pop and records it
func (f *Frame) Pop(r masm.Reg) {
	f.asm.Pop(r)
	f.depth--
	if f.depth < 0 {
		f.underflow = true
	}
}

// Drop discards n cells
func (f *Frame) Drop(n int) {
	if n == 0 {
		return
	}
	f.asm.Drop(n)
	f.depth -= n
	if f.depth < 0 {
		f.underflow = true
	}
}

// Adjust records n cells pushed (or popped, when negative) by an
// instruction the frame did not emit itself, such as a call whose callee
// pops its arguments
func (f *Frame) Adjust(n int) {
	f.depth += n
	if f.depth < 0 {
		f.underflow = true
	}
}

// Depth is the number of expression stack cells above the locals
func (f *Frame) Depth() int {
	return f.depth
}

// SetDepth resets the recorded depth at a merge point
func (f *Frame) SetDepth(d int) {
	f.depth = d
}

// Height is the number of cells between FP and SP
func (f *Frame) Height() int {
	return rt.FixedSlotCount + f.locals + f.depth
}
