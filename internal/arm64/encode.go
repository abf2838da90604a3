package arm64

import (
	"fmt"
	"math/bits"

	"github.com/xyproto/fullgen/internal/masm"
)

// Machine register numbers outside the convention
const (
	scratch uint32 = 17 // private to the encoder, never live across a masm operation
	lr      uint32 = 30
	xzr     uint32 = 31
)

var machineRegs = [masm.NumRegs]uint32{
	masm.R0:    0,
	masm.R1:    1,
	masm.R2:    2,
	masm.R3:    3,
	masm.FP:    29,
	masm.SP:    28,
	masm.CP:    27,
	masm.PP:    26,
	masm.Roots: 25,
	masm.Tmp:   16,
}

func phys(r masm.Reg) uint32 {
	if r >= masm.NumRegs {
		panic(fmt.Sprintf("arm64: no machine register for %s", r))
	}
	return machineRegs[r]
}

func name(r uint32) string {
	switch r {
	case xzr:
		return "xzr"
	case lr:
		return "x30"
	}
	return fmt.Sprintf("x%d", r)
}

// Condition field of B.cond
var condCodes = [...]uint32{
	masm.Equal:        0x0,
	masm.NotEqual:     0x1,
	masm.AboveEqual:   0x2, // hs
	masm.Below:        0x3, // lo
	masm.Negative:     0x4,
	masm.Positive:     0x5,
	masm.Overflow:     0x6,
	masm.NoOverflow:   0x7,
	masm.Above:        0x8, // hi
	masm.BelowEqual:   0x9, // ls
	masm.GreaterEqual: 0xA,
	masm.Less:         0xB,
	masm.Greater:      0xC,
	masm.LessEqual:    0xD,
}

var condNames = [...]string{
	masm.Equal:        "eq",
	masm.NotEqual:     "ne",
	masm.AboveEqual:   "hs",
	masm.Below:        "lo",
	masm.Negative:     "mi",
	masm.Positive:     "pl",
	masm.Overflow:     "vs",
	masm.NoOverflow:   "vc",
	masm.Above:        "hi",
	masm.BelowEqual:   "ls",
	masm.GreaterEqual: "ge",
	masm.Less:         "lt",
	masm.Greater:      "gt",
	masm.LessEqual:    "le",
}

// Instruction templates, 64-bit forms
const (
	opAddReg   = 0x8B000000
	opAddsReg  = 0xAB000000
	opSubReg   = 0xCB000000
	opSubsReg  = 0xEB000000
	opAndReg   = 0x8A000000
	opAndsReg  = 0xEA000000
	opOrrReg   = 0xAA000000
	opOrnReg   = 0xAA200000
	opEorReg   = 0xCA000000
	opAddImm   = 0x91000000
	opSubImm   = 0xD1000000
	opAddsImm  = 0xB1000000
	opSubsImm  = 0xF1000000
	opAndImm   = 0x92000000
	opAndsImm  = 0xF2000000
	opMovz     = 0xD2800000
	opMovn     = 0x92800000
	opMovk     = 0xF2800000
	opMadd     = 0x9B000000
	opMsub     = 0x9B008000
	opSmulh    = 0x9B407C00
	opSdiv     = 0x9AC00C00
	opLslv     = 0x9AC02000
	opLsrv     = 0x9AC02400
	opAsrv     = 0x9AC02800
	opUbfm     = 0xD3400000
	opSbfm     = 0x93400000
	opLdur     = 0xF8400000
	opStur     = 0xF8000000
	opLdrUoff  = 0xF9400000
	opStrUoff  = 0xF9000000
	opLdrReg   = 0xF8606800
	opStrReg   = 0xF8206800
	opLdrPost  = 0xF8400400
	opStrPre   = 0xF8000C00
	opStpPre   = 0xA9800000
	opLdpPost  = 0xA8C00000
	opB        = 0x14000000
	opBL       = 0x94000000
	opBCond    = 0x54000000
	opBLR      = 0xD63F0000
	opRet      = 0xD65F0000
	opAdr      = 0x10000000
	opNop      = 0xD503201F
	opBrk      = 0xD4200000
	asrShift   = 2 << 22
	lsl12Shift = 1 << 22

	pushImm9  = 0x1F8 // -8 as a signed 9-bit offset
	enterImm7 = 0x7E  // -16 as a scaled signed 7-bit offset
)

// rrr encodes a three register data processing instruction
func rrr(op, d, n, m uint32) uint32 {
	return op | m<<16 | n<<5 | d
}

// addSubImm encodes ADD/SUB (immediate) when imm fits 12 bits, optionally
// shifted left by 12
func addSubImm(op, d, n uint32, imm uint32) (uint32, bool) {
	switch {
	case imm < 1<<12:
		return op | imm<<10 | n<<5 | d, true
	case imm&0xFFF == 0 && imm < 1<<24:
		return op | lsl12Shift | (imm>>12)<<10 | n<<5 | d, true
	}
	return 0, false
}

// logicalImm finds the N:immr:imms encoding of a bitmask immediate. Only
// replicated, rotated runs of ones are encodable; zero and all ones never
// are.
func logicalImm(v uint64) (uint32, bool) {
	if v == 0 || v == ^uint64(0) {
		return 0, false
	}
	size := uint(64)
	for size > 2 {
		size /= 2
		mask := uint64(1)<<size - 1
		if v&mask != (v>>size)&mask {
			size *= 2
			break
		}
	}
	mask := ^uint64(0) >> (64 - size)
	elt := v & mask

	var rot, ones uint
	if isShiftedMask(elt) {
		rot = uint(bits.TrailingZeros64(elt))
		ones = uint(bits.TrailingZeros64(^(elt >> rot)))
	} else {
		elt |= ^mask
		if !isShiftedMask(^elt) {
			return 0, false
		}
		leading := uint(bits.LeadingZeros64(^elt))
		rot = 64 - leading
		ones = leading + uint(bits.TrailingZeros64(^elt)) - (64 - size)
	}
	immr := (size - rot) & (size - 1)
	nimms := (^(size - 1) << 1) | (ones - 1)
	n := ((nimms >> 6) & 1) ^ 1
	return uint32(n<<12 | immr<<6 | nimms&0x3F), true
}

func isMask(v uint64) bool {
	return v != 0 && (v+1)&v == 0
}

func isShiftedMask(v uint64) bool {
	return v != 0 && isMask((v-1)|v)
}

// logical encodes AND/ANDS (immediate) from a logicalImm result
func logical(op, d, n, enc uint32) uint32 {
	return op | enc<<10 | n<<5 | d
}

// memOffset encodes a load or store of a 64-bit word at [n + disp] when a
// single instruction can address it
func memOffset(unscaled, scaled uint32, t, n uint32, disp int32) (uint32, bool) {
	switch {
	case disp >= 0 && disp%8 == 0 && disp/8 < 1<<12:
		return scaled | uint32(disp/8)<<10 | n<<5 | t, true
	case disp >= -256 && disp <= 255:
		return unscaled | (uint32(disp)&0x1FF)<<12 | n<<5 | t, true
	}
	return 0, false
}

// movImm returns the MOVZ or MOVN plus MOVK sequence for v. MOVN is used
// when more halfwords are all ones than all zeros.
func movImm(d uint32, v uint64) []uint32 {
	zeros, ones := 0, 0
	for hw := 0; hw < 4; hw++ {
		switch uint16(v >> (16 * hw)) {
		case 0:
			zeros++
		case 0xFFFF:
			ones++
		}
	}
	inverted := ones > zeros
	skip := uint16(0)
	if inverted {
		skip = 0xFFFF
	}
	var out []uint32
	for hw := uint32(0); hw < 4; hw++ {
		half := uint16(v >> (16 * hw))
		if half == skip {
			continue
		}
		switch {
		case len(out) > 0:
			out = append(out, opMovk|hw<<21|uint32(half)<<5|d)
		case inverted:
			out = append(out, opMovn|hw<<21|uint32(^half)<<5|d)
		default:
			out = append(out, opMovz|hw<<21|uint32(half)<<5|d)
		}
	}
	if len(out) == 0 {
		// zero or all ones
		if inverted {
			return []uint32{opMovn | d}
		}
		return []uint32{opMovz | d}
	}
	return out
}
