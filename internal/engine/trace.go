package engine

import (
	"fmt"
	"io"
	"os"
)

// VerboseMode enables tracing of emitted instructions and frame depths
var VerboseMode = false

// TraceOutput receives trace lines when VerboseMode is set
var TraceOutput io.Writer = os.Stderr

// Tracef writes a trace line when VerboseMode is set
func Tracef(format string, args ...any) {
	if !VerboseMode {
		return
	}
	fmt.Fprintf(TraceOutput, format, args...)
}
