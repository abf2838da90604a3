package sim

import "fmt"

// ThrownError is an exception that reached the entry frame uncaught
type ThrownError struct {
	Value Value
	Text  string // the exception converted to a string when it was thrown
}

func (e *ThrownError) Error() string {
	return "uncaught exception: " + e.Text
}

// Fault is a machine check raised by code that broke the calling or
// stack discipline: a misaligned or wild access, a branch on undefined
// flags, a trap or an exhausted step budget.
type Fault struct {
	Prog string
	PC   int
	Msg  string
}

func (f *Fault) Error() string {
	if f.Prog == "" {
		return "sim fault: " + f.Msg
	}
	return fmt.Sprintf("sim fault in %s at %d: %s", f.Prog, f.PC, f.Msg)
}

// jsThrow carries an exception from the runtime to the unwinder
type jsThrow struct{ v Value }

// compileFailure carries a lazy compilation error out of the run loop
type compileFailure struct{ err error }
