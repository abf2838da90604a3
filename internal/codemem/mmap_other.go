//go:build !unix

package codemem

import "unsafe"

// Without mmap the region is ordinary memory; Freeze only forbids
// further writes
const executable = false

func mapRegion(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func protect(mem []byte) error { return nil }

func unmap(mem []byte) error { return nil }

func addrOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}
