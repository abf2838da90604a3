package masm

import (
	"fmt"
	"io"
	"strings"

	"github.com/xyproto/fullgen/internal/engine"
)

// RelocKind classifies a patch site in native code
type RelocKind uint8

const (
	RelocConstant RelocKind = iota // absolute 64-bit heap constant
	RelocIC                        // call to an inline cache stub
)

func (k RelocKind) String() string {
	switch k {
	case RelocConstant:
		return "constant"
	case RelocIC:
		return "ic"
	default:
		return "unknown"
	}
}

// Reloc is one patch site the runtime resolves when installing code
type Reloc struct {
	Kind   RelocKind
	Offset int    // byte offset of the first patched instruction
	Index  int    // constant index for RelocConstant
	IC     ICKind // stub kind for RelocIC
}

// Line is one entry of an instruction listing
type Line struct {
	Offset int
	Size   int
	Text   string
}

// Code is a finished native code object
type Code struct {
	Arch      engine.Arch
	Name      string
	Bytes     []byte
	Relocs    []Reloc
	Constants []Constant
	Listing   []Line
}

// WriteListing prints the listing with offsets and encoded bytes
func (c *Code) WriteListing(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "; %s (%s, %d bytes)\n", c.Name, c.Arch, len(c.Bytes)); err != nil {
		return err
	}
	for _, line := range c.Listing {
		var hex strings.Builder
		if line.Size > 0 && line.Offset+line.Size <= len(c.Bytes) {
			for i, b := range c.Bytes[line.Offset : line.Offset+line.Size] {
				if i > 0 {
					hex.WriteByte(' ')
				}
				fmt.Fprintf(&hex, "%02x", b)
			}
		}
		if line.Size == 0 {
			if _, err := fmt.Fprintf(w, "%6s  %-30s ; %s\n", "", "", line.Text); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%06x  %-30s %s\n", line.Offset, hex.String(), line.Text); err != nil {
			return err
		}
	}
	return nil
}
