//go:build unix

package codemem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

const executable = true

func mapRegion(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

// protect leaves the pages readable and executable, never both
// writable and executable
func protect(mem []byte) error {
	return unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC)
}

func unmap(mem []byte) error {
	return unix.Munmap(mem)
}

func addrOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(&mem[0]))
}
