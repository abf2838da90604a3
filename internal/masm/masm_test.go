package masm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xyproto/fullgen/internal/engine"
)

func TestCondNegate(t *testing.T) {
	pairs := [][2]Cond{
		{Equal, NotEqual},
		{Less, GreaterEqual},
		{LessEqual, Greater},
		{Below, AboveEqual},
		{BelowEqual, Above},
		{Overflow, NoOverflow},
		{Negative, Positive},
	}
	for _, p := range pairs {
		if p[0].Negate() != p[1] || p[1].Negate() != p[0] {
			t.Errorf("%s and %s are not negations of each other", p[0], p[1])
		}
	}
	if Less.Commute() != Greater || Equal.Commute() != Equal {
		t.Errorf("Commute is wrong")
	}
}

func TestLabelBind(t *testing.T) {
	var l Label
	if l.Bound() || l.Live() {
		t.Fatal("zero label should be unbound and dead")
	}
	l.AddSite(4)
	l.AddSite(9)
	if !l.Live() {
		t.Fatal("label with sites should be live")
	}
	sites := l.Bind(20)
	if len(sites) != 2 || sites[0] != 4 || sites[1] != 9 {
		t.Errorf("Bind returned %v", sites)
	}
	if !l.Bound() || l.Addr != 20 || len(l.Sites) != 0 {
		t.Errorf("label after Bind: %+v", l)
	}
}

func TestMemString(t *testing.T) {
	tests := []struct {
		m    Mem
		want string
	}{
		{MemAt(FP, -16), "[fp-16]"},
		{MemAt(SP, 0), "[sp]"},
		{MemIndexed(R2, R1, 15), "[r2+r1+15]"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestWriteListing(t *testing.T) {
	code := &Code{
		Arch:  engine.ArchX86_64,
		Name:  "f",
		Bytes: []byte{0x55, 0x48, 0x89, 0xE5},
		Listing: []Line{
			{Offset: 0, Size: 1, Text: "push rbp"},
			{Offset: 1, Size: 3, Text: "mov rbp, rsp"},
		},
	}
	var buf bytes.Buffer
	if err := code.WriteListing(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "48 89 e5") {
		t.Errorf("listing is missing encoded bytes:\n%s", buf.String())
	}
}
