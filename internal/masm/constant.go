package masm

import (
	"fmt"
	"strconv"
	"strings"
)

// ConstKind selects how a heap constant is materialized
type ConstKind uint8

const (
	ConstString ConstKind = iota
	ConstNumber
	ConstFunction // shared function info of a nested literal
	ConstNames    // fixed array of strings, for declarations
)

// Constant describes a heap value embedded in a code object. The runtime
// materializes it when the code is installed; native code carries a
// relocation per use.
type Constant struct {
	Kind    ConstKind
	Str     string
	Num     float64
	Names   []string
	Payload any // the function literal for ConstFunction
}

// StringConst builds a string constant
func StringConst(s string) Constant {
	return Constant{Kind: ConstString, Str: s}
}

// NumberConst builds a heap number constant
func NumberConst(f float64) Constant {
	return Constant{Kind: ConstNumber, Num: f}
}

// NamesConst builds a name list constant
func NamesConst(names []string) Constant {
	return Constant{Kind: ConstNames, Names: names}
}

// FunctionConst builds a shared function info constant
func FunctionConst(name string, fn any) Constant {
	return Constant{Kind: ConstFunction, Str: name, Payload: fn}
}

func (c Constant) String() string {
	switch c.Kind {
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstNumber:
		return strconv.FormatFloat(c.Num, 'g', -1, 64)
	case ConstFunction:
		if c.Str == "" {
			return "<function>"
		}
		return fmt.Sprintf("<function %s>", c.Str)
	case ConstNames:
		return "[" + strings.Join(c.Names, ", ") + "]"
	default:
		return "<constant>"
	}
}

// ICKind selects an inline cache stub. Receiver in R1, name or key in R2,
// stored value in R0; the result is returned in R0.
type ICKind uint8

const (
	LoadIC ICKind = iota
	KeyedLoadIC
	StoreIC
	KeyedStoreIC
	LoadGlobalIC
	LoadGlobalTypeofIC
	NumICKinds
)

var icNames = [...]string{"LoadIC", "KeyedLoadIC", "StoreIC", "KeyedStoreIC", "LoadGlobalIC", "LoadGlobalTypeofIC"}

func (k ICKind) String() string {
	if k < NumICKinds {
		return icNames[k]
	}
	return "UnknownIC"
}
