package objfile

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/xyproto/fullgen/internal/amd64"
	"github.com/xyproto/fullgen/internal/arm64"
	"github.com/xyproto/fullgen/internal/engine"
	"github.com/xyproto/fullgen/internal/masm"
	"github.com/xyproto/fullgen/internal/rt"
)

func sample(a interface {
	masm.Assembler
	Finish(string) (*masm.Code, error)
}, name string, t *testing.T) *masm.Code {
	a.EnterFrame()
	a.LoadConstant(masm.R0, masm.StringConst("hello"))
	a.CallIC(masm.LoadGlobalIC)
	a.CallRuntime(rt.StackGuard, 0)
	a.LeaveFrame()
	a.Ret(8)
	c, err := a.Finish(name)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRelocatableObject(t *testing.T) {
	tests := []struct {
		arch    engine.Arch
		machine elf.Machine
		codes   func() []*masm.Code
		relas   int
	}{
		{engine.ArchX86_64, elf.EM_X86_64, func() []*masm.Code {
			return []*masm.Code{sample(amd64.New(), "<script>", t), sample(amd64.New(), "f", t), sample(amd64.New(), "f", t)}
		}, 6},
		{engine.ArchARM64, elf.EM_AARCH64, func() []*masm.Code {
			return []*masm.Code{sample(arm64.New(), "<script>", t), sample(arm64.New(), "f", t), sample(arm64.New(), "f", t)}
		}, 15},
	}
	for _, tt := range tests {
		codes := tt.codes()
		var buf bytes.Buffer
		if err := Write(&buf, tt.arch, codes); err != nil {
			t.Fatal(err)
		}
		f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("%s: %v", tt.arch, err)
		}
		if f.Type != elf.ET_REL || f.Machine != tt.machine || f.Class != elf.ELFCLASS64 {
			t.Errorf("%s: type %s machine %s class %s", tt.arch, f.Type, f.Machine, f.Class)
		}
		text := f.Section(".text")
		if text == nil {
			t.Fatalf("%s: no .text", tt.arch)
		}
		data, err := text.Data()
		if err != nil {
			t.Fatal(err)
		}
		syms, err := f.Symbols()
		if err != nil {
			t.Fatal(err)
		}
		funcs := map[string]elf.Symbol{}
		undefined := 0
		for _, s := range syms {
			switch {
			case elf.ST_TYPE(s.Info) == elf.STT_FUNC:
				funcs[s.Name] = s
			case s.Section == elf.SHN_UNDEF:
				undefined++
			}
		}
		for _, name := range []string{"script", "f", "f.1"} {
			if _, ok := funcs[name]; !ok {
				t.Errorf("%s: no function symbol %q in %v", tt.arch, name, funcs)
			}
		}
		for i, name := range []string{"script", "f", "f.1"} {
			s := funcs[name]
			if int(s.Size) != len(codes[i].Bytes) || s.Value%textAlign != 0 {
				t.Errorf("%s: %s at %#x with size %d", tt.arch, name, s.Value, s.Size)
				continue
			}
			if !bytes.Equal(data[s.Value:s.Value+s.Size], codes[i].Bytes) {
				t.Errorf("%s: %s bytes differ", tt.arch, name)
			}
		}
		// one shared stub and three constants
		if undefined != 4 {
			t.Errorf("%s: %d undefined symbols", tt.arch, undefined)
		}
		rela := f.Section(".rela.text")
		if rela == nil || int(rela.Size) != tt.relas*relaSize || rela.Link != secSymtab || rela.Info != secText {
			t.Errorf("%s: relocation section %+v", tt.arch, rela)
		}
	}
}

func TestBuildRejects(t *testing.T) {
	c, err := amd64.New().Finish("empty")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Build(engine.ArchSim, nil); err == nil {
		t.Error("built an object for the reference machine")
	}
	if _, err := Build(engine.ArchARM64, []*masm.Code{c}); err == nil {
		t.Error("mixed x86-64 code into an AArch64 object")
	}
}

func TestSymbolName(t *testing.T) {
	for in, want := range map[string]string{
		"<script>":    "script",
		"<anonymous>": "anonymous",
		"":            "anonymous",
		"a b":         "a_b",
		"f$1":         "f$1",
	} {
		if got := symbolName(in); got != want {
			t.Errorf("symbolName(%q) = %q, want %q", in, got, want)
		}
	}
}
