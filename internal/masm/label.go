package masm

// Label is a branch target inside one code object. The zero value is an
// unbound label. Positions are in the owning assembler's units (bytes for
// the native encoders, instruction indexes for the reference machine).
type Label struct {
	Sites []int // unresolved reference sites
	Addr  int
	bound bool
}

// AddSite records a reference that must be patched once the label is bound
func (l *Label) AddSite(pos int) {
	l.Sites = append(l.Sites, pos)
}

// Bind fixes the label's address and returns the sites waiting for it
func (l *Label) Bind(addr int) []int {
	l.Addr = addr
	l.bound = true
	sites := l.Sites
	l.Sites = nil
	return sites
}

// Bound reports whether the label has an address
func (l *Label) Bound() bool {
	return l.bound
}

// Live reports whether anything refers to the label
func (l *Label) Live() bool {
	return l.bound || len(l.Sites) > 0
}
