package rt

import "fmt"

// Root indexes the roots table, addressed from the roots register
type Root int

const (
	RootUndefined Root = iota
	RootNull
	RootTrue
	RootFalse
	RootHole
	RootGlobal
	RootHandler
	RootStackLimit
	RootMetaMap // map of shape objects; identifies an enum-cache result of ForInPrepare
	RootCount
)

var rootNames = [...]string{
	RootUndefined:  "undefined",
	RootNull:       "null",
	RootTrue:       "true",
	RootFalse:      "false",
	RootHole:       "the_hole",
	RootGlobal:     "global_object",
	RootHandler:    "handler",
	RootStackLimit: "stack_limit",
	RootMetaMap:    "meta_map",
}

func (r Root) String() string {
	if r >= 0 && r < RootCount {
		return rootNames[r]
	}
	return fmt.Sprintf("root%d", int(r))
}

// Offset is the byte displacement of the root from the roots register
func (r Root) Offset() int32 {
	return int32(r) * WordSize
}

// Entry names a runtime routine. Entries are called with the argument count
// in R0 and arguments pushed in evaluation order; the callee pops them and
// returns its result in R0. CP, PP and FP are preserved.
type Entry int

const (
	ToBoolean Entry = iota
	ToNumber
	ToObject
	Add
	Sub
	Mul
	Div
	Mod
	BitOr
	BitAnd
	BitXor
	Shl
	Sar
	Shr
	Compare
	Equals
	StrictEquals
	Typeof
	Delete
	InstanceOf
	In
	NewArguments
	NewClosure
	NewFunctionContext
	NewObject
	NewArray
	DeclareGlobals
	DeclareEvalVar
	ForInPrepare
	ForInFilter
	Throw
	ReThrow
	ThrowReferenceError
	StackGuard
	RecordWrite
	EntryCount
)

type entryInfo struct {
	name  string
	arity int // -1 for variadic
}

var entries = [...]entryInfo{
	ToBoolean:           {"ToBoolean", 1},
	ToNumber:            {"ToNumber", 1},
	ToObject:            {"ToObject", 1},
	Add:                 {"Add", 2},
	Sub:                 {"Sub", 2},
	Mul:                 {"Mul", 2},
	Div:                 {"Div", 2},
	Mod:                 {"Mod", 2},
	BitOr:               {"BitOr", 2},
	BitAnd:              {"BitAnd", 2},
	BitXor:              {"BitXor", 2},
	Shl:                 {"Shl", 2},
	Sar:                 {"Sar", 2},
	Shr:                 {"Shr", 2},
	Compare:             {"Compare", 3},
	Equals:              {"Equals", 2},
	StrictEquals:        {"StrictEquals", 2},
	Typeof:              {"Typeof", 1},
	Delete:              {"Delete", 2},
	InstanceOf:          {"InstanceOf", 2},
	In:                  {"In", 2},
	NewArguments:        {"NewArguments", 3},
	NewClosure:          {"NewClosure", 2},
	NewFunctionContext:  {"NewFunctionContext", 2},
	NewObject:           {"NewObject", 0},
	NewArray:            {"NewArray", -1},
	DeclareGlobals:      {"DeclareGlobals", 1},
	DeclareEvalVar:      {"DeclareEvalVar", 1},
	ForInPrepare:        {"ForInPrepare", 1},
	ForInFilter:         {"ForInFilter", 2},
	Throw:               {"Throw", 1},
	ReThrow:             {"ReThrow", 1},
	ThrowReferenceError: {"ThrowReferenceError", 1},
	StackGuard:          {"StackGuard", 0},
	RecordWrite:         {"RecordWrite", 2},
}

func (e Entry) String() string {
	if e >= 0 && e < EntryCount {
		return entries[e].name
	}
	return fmt.Sprintf("entry%d", int(e))
}

// Arity is the fixed argument count of the entry, or -1 when variadic
func (e Entry) Arity() int {
	if e >= 0 && e < EntryCount {
		return entries[e].arity
	}
	return 0
}

// Offset is the byte displacement of the entry's slot in the table that
// follows the roots.
func (e Entry) Offset() int32 {
	return int32(RootCount)*WordSize + int32(e)*WordSize
}

// NoReturn reports whether the entry never returns to its call site
func (e Entry) NoReturn() bool {
	return e == Throw || e == ReThrow || e == ThrowReferenceError
}
