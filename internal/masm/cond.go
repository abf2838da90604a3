package masm

// Cond is a branch condition over the flags left by the last Cmp, CmpImm,
// Test, TestImm or CompareRoot. No other operation defines the flags.
type Cond uint8

const (
	Equal Cond = iota
	NotEqual
	Less
	GreaterEqual
	LessEqual
	Greater
	Below
	AboveEqual
	BelowEqual
	Above
	Overflow
	NoOverflow
	Negative
	Positive
)

var condNames = [...]string{
	Equal:        "eq",
	NotEqual:     "ne",
	Less:         "lt",
	GreaterEqual: "ge",
	LessEqual:    "le",
	Greater:      "gt",
	Below:        "b",
	AboveEqual:   "ae",
	BelowEqual:   "be",
	Above:        "a",
	Overflow:     "o",
	NoOverflow:   "no",
	Negative:     "s",
	Positive:     "ns",
}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "??"
}

// Negate returns the condition that holds exactly when c does not
func (c Cond) Negate() Cond {
	return c ^ 1
}

// Commute returns the condition for the same comparison with the operands swapped
func (c Cond) Commute() Cond {
	switch c {
	case Less:
		return Greater
	case Greater:
		return Less
	case LessEqual:
		return GreaterEqual
	case GreaterEqual:
		return LessEqual
	case Below:
		return Above
	case Above:
		return Below
	case BelowEqual:
		return AboveEqual
	case AboveEqual:
		return BelowEqual
	default:
		return c
	}
}
