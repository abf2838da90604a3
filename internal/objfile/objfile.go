// Completion: 90% - ELF64 relocatable output of native code objects
package objfile

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
)

const (
	elfHeaderSize     = 64
	sectionHeaderSize = 64
	symbolSize        = 24
	relaSize          = 24
	textAlign         = 16
)

// Section indexes, in file order
const (
	secNull = iota
	secText
	secRela
	secSymtab
	secStrtab
	secShstrtab
	numSections
)

// Symbol is a function placed in .text
type Symbol struct {
	Name   string
	Offset int
	Size   int
}

// Object is the laid out content of one relocatable file
type Object struct {
	Arch    engine.Arch
	Text    []byte
	Symbols []Symbol
	// Externals are the undefined symbols relocations refer to: the inline
	// cache stubs and the heap constants the runtime materializes
	Externals []string
	Relas     []Rela
}

// Rela is one .rela.text entry
type Rela struct {
	Offset int
	Symbol int // index into Externals
	Type   uint32
	Addend int64
}

// Build lays out the code objects of one architecture back to back
func Build(arch engine.Arch, codes []*masm.Code) (*Object, error) {
	if !arch.Native() {
		return nil, fmt.Errorf("objfile: no ELF machine for %s", arch)
	}
	o := &Object{Arch: arch}
	externals := make(map[string]int)
	external := func(name string) int {
		if i, ok := externals[name]; ok {
			return i
		}
		externals[name] = len(o.Externals)
		o.Externals = append(o.Externals, name)
		return len(o.Externals) - 1
	}
	used := make(map[string]int)
	for _, c := range codes {
		if c.Arch != arch {
			return nil, fmt.Errorf("objfile: %s is %s code, not %s", c.Name, c.Arch, arch)
		}
		for len(o.Text)%textAlign != 0 {
			o.Text = append(o.Text, padByte(arch))
		}
		base := len(o.Text)
		o.Text = append(o.Text, c.Bytes...)

		name := symbolName(c.Name)
		if n := used[name]; n > 0 {
			used[name]++
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			used[name] = 1
		}
		o.Symbols = append(o.Symbols, Symbol{Name: name, Offset: base, Size: len(c.Bytes)})

		for _, r := range c.Relocs {
			switch r.Kind {
			case masm.RelocIC:
				o.Relas = append(o.Relas, icRelas(arch, base+r.Offset, external("fullgen_"+r.IC.String()))...)
			case masm.RelocConstant:
				sym := external(fmt.Sprintf("fullgen_const.%s.%d", name, r.Index))
				o.Relas = append(o.Relas, constantRelas(arch, base+r.Offset, sym)...)
			default:
				return nil, fmt.Errorf("objfile: %s has a %s relocation", c.Name, r.Kind)
			}
		}
	}
	engine.Tracef("objfile: %d functions, %d bytes of text, %d relocations\n", len(o.Symbols), len(o.Text), len(o.Relas))
	return o, nil
}

// padByte fills the gaps between functions: int3 on x86-64, zero
// (a permanently undefined instruction) on AArch64
func padByte(arch engine.Arch) byte {
	if arch == engine.ArchX86_64 {
		return 0xCC
	}
	return 0
}

// icRelas patches the call to a stub
func icRelas(arch engine.Arch, site, sym int) []Rela {
	if arch == engine.ArchX86_64 {
		// call rel32: the field follows the E8 opcode
		return []Rela{{Offset: site + 1, Symbol: sym, Type: uint32(elf.R_X86_64_PLT32), Addend: -4}}
	}
	return []Rela{{Offset: site, Symbol: sym, Type: uint32(elf.R_AARCH64_CALL26)}}
}

// constantRelas patches the 64-bit immediate of a constant load
func constantRelas(arch engine.Arch, site, sym int) []Rela {
	if arch == engine.ArchX86_64 {
		// movabs: REX.W, opcode, imm64
		return []Rela{{Offset: site + 2, Symbol: sym, Type: uint32(elf.R_X86_64_64)}}
	}
	kinds := []elf.R_AARCH64{
		elf.R_AARCH64_MOVW_UABS_G0_NC,
		elf.R_AARCH64_MOVW_UABS_G1_NC,
		elf.R_AARCH64_MOVW_UABS_G2_NC,
		elf.R_AARCH64_MOVW_UABS_G3,
	}
	relas := make([]Rela, len(kinds))
	for i, k := range kinds {
		relas[i] = Rela{Offset: site + 4*i, Symbol: sym, Type: uint32(k)}
	}
	return relas
}

// symbolName keeps a function name linkable
func symbolName(name string) string {
	if name == "" {
		return "anonymous"
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '$', r == '.':
			b.WriteRune(r)
		case r == '<' || r == '>':
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "anonymous"
	}
	return b.String()
}

// buffer collects little-endian fields
type buffer struct {
	b []byte
}

func (w *buffer) write(bs ...byte) { w.b = append(w.b, bs...) }
func (w *buffer) write2(v uint16)  { w.b = binary.LittleEndian.AppendUint16(w.b, v) }
func (w *buffer) write4(v uint32)  { w.b = binary.LittleEndian.AppendUint32(w.b, v) }
func (w *buffer) write8(v uint64)  { w.b = binary.LittleEndian.AppendUint64(w.b, v) }

func (w *buffer) align(n int) {
	for len(w.b)%n != 0 {
		w.b = append(w.b, 0)
	}
}

// strtab builds a string table, offset 0 being the empty name
type strtab struct {
	buffer
	offsets map[string]uint32
}

func newStrtab() *strtab {
	return &strtab{buffer: buffer{b: []byte{0}}, offsets: map[string]uint32{"": 0}}
}

func (s *strtab) add(name string) uint32 {
	if off, ok := s.offsets[name]; ok {
		return off
	}
	off := uint32(len(s.b))
	s.write([]byte(name)...)
	s.write(0)
	s.offsets[name] = off
	return off
}

type sectionHeader struct {
	name      uint32
	typ       elf.SectionType
	flags     elf.SectionFlag
	offset    uint64
	size      uint64
	link      uint32
	info      uint32
	addralign uint64
	entsize   uint64
}

func machine(arch engine.Arch) elf.Machine {
	if arch == engine.ArchARM64 {
		return elf.EM_AARCH64
	}
	return elf.EM_X86_64
}

// Marshal encodes the object as an ELF64 little-endian ET_REL file
func (o *Object) Marshal() []byte {
	shstr := newStrtab()
	str := newStrtab()

	var out buffer
	out.b = make([]byte, elfHeaderSize)

	out.align(textAlign)
	textOff := len(out.b)
	out.write(o.Text...)

	// Local symbols come first: the null symbol and the .text section
	var syms buffer
	syms.write(make([]byte, symbolSize)...)
	syms.write4(0)
	syms.write(byte(elf.ST_INFO(elf.STB_LOCAL, elf.STT_SECTION)), 0)
	syms.write2(secText)
	syms.write8(0)
	syms.write8(0)
	firstGlobal := 2
	for _, s := range o.Symbols {
		syms.write4(str.add(s.Name))
		syms.write(byte(elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)), 0)
		syms.write2(secText)
		syms.write8(uint64(s.Offset))
		syms.write8(uint64(s.Size))
	}
	externalBase := firstGlobal + len(o.Symbols)
	for _, name := range o.Externals {
		syms.write4(str.add(name))
		syms.write(byte(elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE)), 0)
		syms.write2(uint16(elf.SHN_UNDEF))
		syms.write8(0)
		syms.write8(0)
	}

	out.align(8)
	relaOff := len(out.b)
	for _, r := range o.Relas {
		out.write8(uint64(r.Offset))
		out.write8(uint64(externalBase+r.Symbol)<<32 | uint64(r.Type))
		out.write8(uint64(r.Addend))
	}
	relaLen := len(out.b) - relaOff

	out.align(8)
	symOff := len(out.b)
	out.write(syms.b...)

	strOff := len(out.b)
	out.write(str.b...)

	headers := [numSections]sectionHeader{
		secText: {name: shstr.add(".text"), typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
			offset: uint64(textOff), size: uint64(len(o.Text)), addralign: textAlign},
		secRela: {name: shstr.add(".rela.text"), typ: elf.SHT_RELA, flags: elf.SHF_INFO_LINK,
			offset: uint64(relaOff), size: uint64(relaLen), link: secSymtab, info: secText, addralign: 8, entsize: relaSize},
		secSymtab: {name: shstr.add(".symtab"), typ: elf.SHT_SYMTAB,
			offset: uint64(symOff), size: uint64(len(syms.b)), link: secStrtab, info: uint32(firstGlobal), addralign: 8, entsize: symbolSize},
		secStrtab: {name: shstr.add(".strtab"), typ: elf.SHT_STRTAB,
			offset: uint64(strOff), size: uint64(len(str.b)), addralign: 1},
	}
	shstrName := shstr.add(".shstrtab")
	shstrOff := len(out.b)
	out.write(shstr.b...)
	headers[secShstrtab] = sectionHeader{name: shstrName, typ: elf.SHT_STRTAB,
		offset: uint64(shstrOff), size: uint64(len(shstr.b)), addralign: 1}

	out.align(8)
	shOff := len(out.b)
	for _, h := range headers {
		out.write4(h.name)
		out.write4(uint32(h.typ))
		out.write8(uint64(h.flags))
		out.write8(0) // address
		out.write8(h.offset)
		out.write8(h.size)
		out.write4(h.link)
		out.write4(h.info)
		out.write8(h.addralign)
		out.write8(h.entsize)
	}

	var hdr buffer
	hdr.write(0x7f, 'E', 'L', 'F')
	hdr.write(byte(elf.ELFCLASS64), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT), byte(elf.ELFOSABI_NONE))
	hdr.write(make([]byte, 8)...)
	hdr.write2(uint16(elf.ET_REL))
	hdr.write2(uint16(machine(o.Arch)))
	hdr.write4(uint32(elf.EV_CURRENT))
	hdr.write8(0) // entry
	hdr.write8(0) // program headers
	hdr.write8(uint64(shOff))
	hdr.write4(0) // flags
	hdr.write2(elfHeaderSize)
	hdr.write2(0) // program header entry size
	hdr.write2(0) // program header count
	hdr.write2(sectionHeaderSize)
	hdr.write2(numSections)
	hdr.write2(secShstrtab)
	copy(out.b, hdr.b)
	return out.b
}

// Write builds and writes the relocatable object for codes
func Write(w io.Writer, arch engine.Arch, codes []*masm.Code) error {
	o, err := Build(arch, codes)
	if err != nil {
		return err
	}
	_, err = w.Write(o.Marshal())
	return err
}
