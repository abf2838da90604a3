package rt

// Heap object layouts, in words. Every heap object starts with its map
// (the shape token), a tagged pointer to a shape object.
const (
	MapIndex = 0

	// Shape objects: [meta map, enum cache]
	ShapeEnumCacheIndex = 1
	ShapeSize           = 2

	// Fixed arrays: [map, length (smi), elements...]
	FixedArrayLengthIndex = 1
	FixedArrayHeaderSize  = 2

	// Contexts: [map, closure, previous, slots...]
	ContextClosureIndex  = 1
	ContextPreviousIndex = 2
	ContextHeaderSize    = 3

	// Closures: [map, shared info, context, code entry]
	FunctionSharedIndex  = 1
	FunctionContextIndex = 2
	FunctionCodeIndex    = 3
	FunctionSize         = 4
)

// Frame layout relative to the frame pointer. The words below FP are the
// fixed part every function pushes before its locals.
const (
	CallerFPOffset    = 0
	ReturnAddrOffset  = 8
	CallerPPOffset    = -8
	ContextOffset     = -16
	FunctionOffset    = -24
	FixedSlotCount    = 3
	FirstLocalOffset  = -32
	ParamsAboveFP     = 16 // return address and caller FP
	ReceiverPPOffset  = 0
	HandlerSize       = 5
	ForInCursorSize   = 5
	FinallyStateCells = 2
)

// LocalOffset is the FP-relative offset of local slot i
func LocalOffset(i int) int32 {
	return int32(FirstLocalOffset - WordSize*i)
}

// ParameterOffset is the PP-relative offset of parameter i
func ParameterOffset(i int) int32 {
	return int32(-WordSize * (i + 1))
}

// ParameterPointerOffset is the FP-relative position of the receiver for a
// function declaring n parameters.
func ParameterPointerOffset(n int) int32 {
	return int32(ParamsAboveFP + WordSize*n)
}

// ContextSlotOffset is the field displacement of context slot i
func ContextSlotOffset(i int) int32 {
	return FieldOffset(ContextHeaderSize + i)
}

// Handler record, from SP upward once pushed
const (
	HandlerNextIndex   = 0
	HandlerKindIndex   = 1
	HandlerFPIndex     = 2
	HandlerPPIndex     = 3
	HandlerResumeIndex = 4
)

// HandlerKind distinguishes handler records
type HandlerKind int32

const (
	HandlerCatch HandlerKind = iota
	HandlerFinally
	HandlerEntry
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFinally:
		return "finally"
	case HandlerEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// For-in cursor cells, counted from the top of the stack
const (
	CursorIndexCell    = 0
	CursorLengthCell   = 1
	CursorKeysCell     = 2
	CursorExpectedCell = 3
	CursorObjectCell   = 4
)

// Try-finally completion states, pushed as smis below the saved value
const (
	FinallyNormal   = 0
	FinallyThrowing = 1
	FinallyJumping  = 2 // FinallyJumping + j escapes to shadowed target j
)

// Comparison results returned by the Compare and Equals entries
const (
	CompareLess    = -1
	CompareEqual   = 0
	CompareGreater = 1
)
