package engine

import (
	"errors"
	"strings"
	"testing"
)

func TestParseArch(t *testing.T) {
	tests := []struct {
		in   string
		want Arch
	}{
		{"amd64", ArchX86_64},
		{"x86_64", ArchX86_64},
		{"arm64", ArchARM64},
		{"aarch64", ArchARM64},
		{"sim", ArchSim},
	}
	for _, tt := range tests {
		got, err := ParseArch(tt.in)
		if err != nil {
			t.Fatalf("ParseArch(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseArch(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseArch("riscv64"); err == nil {
		t.Error("expected an error for riscv64")
	}
}

func TestSuggest(t *testing.T) {
	got := Suggest("rnu", []string{"run", "asm", "repl", "watch"}, 2)
	if len(got) == 0 || got[0] != "run" {
		t.Errorf("Suggest(rnu) = %v, want run first", got)
	}
	if got := Suggest("zzzzzzzz", []string{"run"}, 2); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}

func TestCompilerErrorRender(t *testing.T) {
	src := "var a;\r\nlet b = 1; let b = 2;\n"
	err := RedeclarationError("b", SourceLocation{File: "t.js", Line: 2, Column: 16, Length: 1})
	text := err.Render(src, false)
	want := "error: identifier 'b' has already been declared\n" +
		"  --> t.js:2:16\n" +
		"  |\n" +
		"2 | let b = 1; let b = 2;\n" +
		"  |                ^\n"
	if text != want {
		t.Errorf("Render gave\n%s\nwant\n%s", text, want)
	}

	var ce CompilerError
	if !errors.As(error(err), &ce) || ce.Category != CategorySemantic {
		t.Errorf("%v is not a semantic CompilerError", err)
	}

	// a line past the end of the script prints no excerpt
	if got := err.Render("var a;", false); strings.Contains(got, "|") {
		t.Errorf("excerpt for a missing line:\n%s", got)
	}
}

func TestErrorHints(t *testing.T) {
	loc := SourceLocation{Line: 1, Column: 1}
	e := UndefinedLabelError("outr", []string{"inner", "outer"}, loc)
	if e.Hint != `did you mean "outer"?` {
		t.Errorf("hint %q", e.Hint)
	}
	if e := UndefinedLabelError("zzzzzz", []string{"outer"}, loc); e.Hint != "" {
		t.Errorf("unexpected hint %q", e.Hint)
	}
	if text := NestingError(8, loc).Render("", false); !strings.Contains(text, "help: raise FULLGEN_MAX_DEPTH") {
		t.Errorf("nesting error lacks its hint:\n%s", text)
	}
	text := InternalError("merge at join", loc).Render("", true)
	if !strings.Contains(text, "\033[1;31mfatal error\033[0m") || !strings.Contains(text, "invariants") {
		t.Errorf("internal error rendered as %q", text)
	}
}
