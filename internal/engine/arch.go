// Completion: 100% - Utility module complete
package engine

import (
	"fmt"
	"runtime"
	"strings"
)

// Arch identifies an emission target
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86_64
	ArchARM64
	// ArchSim is the reference machine that executes the abstract instruction stream
	ArchSim
)

func (a Arch) String() string {
	switch a {
	case ArchX86_64:
		return "x86_64"
	case ArchARM64:
		return "aarch64"
	case ArchSim:
		return "sim"
	default:
		return "unknown"
	}
}

// WordSize is the size of a tagged value and of a stack cell, in bytes
func (a Arch) WordSize() int {
	return 8
}

// Native reports whether the target produces machine code bytes
func (a Arch) Native() bool {
	return a == ArchX86_64 || a == ArchARM64
}

// ParseArch parses an architecture string (like GOARCH values)
func ParseArch(s string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x86_64", "amd64", "x86-64":
		return ArchX86_64, nil
	case "aarch64", "arm64":
		return ArchARM64, nil
	case "sim", "reference", "ref":
		return ArchSim, nil
	default:
		return ArchUnknown, fmt.Errorf("unsupported architecture: %s (supported: amd64, arm64, sim)", s)
	}
}

// OS type
type OS int

const (
	OSLinux OS = iota
	OSDarwin
	OSFreeBSD
	OSWindows
)

func (o OS) String() string {
	switch o {
	case OSLinux:
		return "linux"
	case OSDarwin:
		return "darwin"
	case OSFreeBSD:
		return "freebsd"
	case OSWindows:
		return "windows"
	default:
		return "unknown"
	}
}

// ParseOS parses an OS string (like GOOS values)
func ParseOS(s string) (OS, error) {
	switch strings.ToLower(s) {
	case "linux":
		return OSLinux, nil
	case "darwin", "macos":
		return OSDarwin, nil
	case "freebsd":
		return OSFreeBSD, nil
	case "windows", "win":
		return OSWindows, nil
	default:
		return 0, fmt.Errorf("unsupported OS: %s (supported: linux, darwin, freebsd, windows)", s)
	}
}

// Platform represents a target platform (architecture + OS)
type Platform struct {
	Arch Arch
	OS   OS
}

// String returns a human-readable platform string
func (p Platform) String() string {
	return fmt.Sprintf("%s-%s", p.Arch, p.OS)
}

// HostPlatform returns the platform the compiler itself runs on.
// Hosts without a native encoder fall back to the reference machine.
func HostPlatform() Platform {
	var arch Arch
	switch runtime.GOARCH {
	case "amd64":
		arch = ArchX86_64
	case "arm64":
		arch = ArchARM64
	default:
		arch = ArchSim
	}
	os, err := ParseOS(runtime.GOOS)
	if err != nil {
		os = OSLinux
	}
	return Platform{Arch: arch, OS: os}
}
