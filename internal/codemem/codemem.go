// Completion: 90% - Code regions: map, copy, freeze
package codemem

import (
	"errors"
	"fmt"
	"os"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
)

const entryAlign = 16

// ErrFrozen is returned when writing to a region after Freeze
var ErrFrozen = errors.New("codemem: region is frozen")

// Entry locates one installed code object
type Entry struct {
	Name   string
	Offset int
	Size   int
}

// Region is a page-aligned block of memory holding native code. It is
// writable until Freeze, and executable afterwards where the platform
// allows mapping executable pages.
type Region struct {
	mem     []byte
	used    int
	frozen  bool
	freed   bool
	entries []Entry
}

// New maps a writable region of at least size bytes
func New(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("codemem: invalid size %d", size)
	}
	page := os.Getpagesize()
	size = (size + page - 1) / page * page
	mem, err := mapRegion(size)
	if err != nil {
		return nil, fmt.Errorf("codemem: map %d bytes: %w", size, err)
	}
	engine.Tracef("codemem: mapped %d bytes\n", size)
	return &Region{mem: mem}, nil
}

// Install copies the code objects into a fresh region and freezes it
func Install(codes []*masm.Code) (*Region, error) {
	total := 0
	for _, c := range codes {
		total = align(total) + len(c.Bytes)
	}
	if total == 0 {
		total = 1
	}
	r, err := New(total)
	if err != nil {
		return nil, err
	}
	for _, c := range codes {
		if _, err := r.Add(c.Name, c.Bytes); err != nil {
			r.Free()
			return nil, err
		}
	}
	if err := r.Freeze(); err != nil {
		r.Free()
		return nil, err
	}
	return r, nil
}

func align(n int) int {
	return (n + entryAlign - 1) &^ (entryAlign - 1)
}

// Add copies code to the next aligned position and returns its entry
func (r *Region) Add(name string, code []byte) (Entry, error) {
	switch {
	case r.freed:
		return Entry{}, errors.New("codemem: region was freed")
	case r.frozen:
		return Entry{}, ErrFrozen
	}
	off := align(r.used)
	if off+len(code) > len(r.mem) {
		return Entry{}, fmt.Errorf("codemem: %s needs %d bytes, %d left", name, len(code), len(r.mem)-off)
	}
	copy(r.mem[off:], code)
	r.used = off + len(code)
	e := Entry{Name: name, Offset: off, Size: len(code)}
	r.entries = append(r.entries, e)
	return e, nil
}

// Freeze makes the region read-only and executable. Code is never
// modified in place after this point.
func (r *Region) Freeze() error {
	if r.freed {
		return errors.New("codemem: region was freed")
	}
	if r.frozen {
		return nil
	}
	if err := protect(r.mem); err != nil {
		return fmt.Errorf("codemem: freeze: %w", err)
	}
	r.frozen = true
	engine.Tracef("codemem: froze %d bytes at %#x\n", len(r.mem), r.Addr())
	return nil
}

// Frozen reports whether Freeze has succeeded
func (r *Region) Frozen() bool { return r.frozen }

// Executable reports whether frozen regions can be run on this platform
func Executable() bool { return executable }

// Addr is the address of the first byte of the region
func (r *Region) Addr() uintptr {
	if len(r.mem) == 0 {
		return 0
	}
	return addrOf(r.mem)
}

// Size is the mapped size in bytes
func (r *Region) Size() int { return len(r.mem) }

// Used is the number of bytes up to the end of the last entry
func (r *Region) Used() int { return r.used }

// Entries lists the installed code objects in order
func (r *Region) Entries() []Entry { return r.entries }

// Lookup finds the first entry called name
func (r *Region) Lookup(name string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Bytes returns a copy of an installed entry
func (r *Region) Bytes(e Entry) []byte {
	return append([]byte(nil), r.mem[e.Offset:e.Offset+e.Size]...)
}

// Free unmaps the region
func (r *Region) Free() error {
	if r.freed {
		return errors.New("codemem: region freed twice")
	}
	r.freed = true
	return unmap(r.mem)
}
