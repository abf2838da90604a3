package codemem

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/xyproto/fullgen/internal/amd64"
	"github.com/xyproto/fullgen/internal/masm"
)

func code(t *testing.T, name string, n int) *masm.Code {
	a := amd64.New()
	for i := 0; i < n; i++ {
		a.Nop()
	}
	a.Ret(8)
	c, err := a.Finish(name)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestInstallFreezes(t *testing.T) {
	codes := []*masm.Code{code(t, "a", 3), code(t, "b", 20), code(t, "c", 0)}
	r, err := Install(codes)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Free()

	if !r.Frozen() {
		t.Error("installed region is writable")
	}
	if r.Size()%os.Getpagesize() != 0 || r.Addr() == 0 {
		t.Errorf("region of %d bytes at %#x", r.Size(), r.Addr())
	}
	if len(r.Entries()) != 3 {
		t.Fatalf("%d entries", len(r.Entries()))
	}
	for i, c := range codes {
		e, ok := r.Lookup(c.Name)
		if !ok || e != r.Entries()[i] {
			t.Fatalf("entry %s not found", c.Name)
		}
		if e.Offset%entryAlign != 0 {
			t.Errorf("%s at unaligned offset %d", c.Name, e.Offset)
		}
		if !bytes.Equal(r.Bytes(e), c.Bytes) {
			t.Errorf("%s was not copied intact", c.Name)
		}
	}
	if b := r.Entries()[1]; b.Offset != 16 {
		t.Errorf("second entry at %d, want 16", b.Offset)
	}
	if _, err := r.Add("late", []byte{0x90}); !errors.Is(err, ErrFrozen) {
		t.Errorf("write after freeze: %v", err)
	}
}

func TestRegionBounds(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("mapped an empty region")
	}
	r, err := New(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Add("big", make([]byte, r.Size()+1)); err == nil {
		t.Error("overfilled the region")
	}
	if err := r.Free(); err != nil {
		t.Fatal(err)
	}
	if err := r.Free(); err == nil {
		t.Error("freed twice without an error")
	}
	if _, err := r.Add("x", nil); err == nil {
		t.Error("added to a freed region")
	}
}
