// Package shadow implements the page-granular shadow memory (C1):
// per-byte taint bitmaps addressed by address>>12, allocated on first
// touch. Commit/rollback of pending writes is the write journal's job
// (package journal); shadow only ever holds the current taint label.
package shadow

import "github.com/beyonddream/angr/internal/taint"

// PageSize is the shadow page size in bytes, matching the guest page
// size assumed throughout spec.md.
const PageSize = 4096

// PageShift is log2(PageSize), used to compute a page base from an
// address.
const PageShift = 12

// Page is one page's worth of per-byte taint labels.
type Page [PageSize]taint.Byte

// Memory is the page-indexed shadow memory. Present pages whose
// bitmap is all taint.None may still be present — activation does not
// imply any byte is tainted.
type Memory struct {
	active map[uint64]*Page
}

// New returns an empty shadow memory with no pages activated.
func New() *Memory {
	return &Memory{active: make(map[uint64]*Page)}
}

// PageBase returns the page-aligned base address containing addr.
func PageBase(addr uint64) uint64 {
	return (addr >> PageShift) << PageShift
}

// Activate allocates the page containing addr if it does not already
// exist, then raises each byte to init's label wherever init's is
// stronger (None < Dirty < Symbolic; nil init changes nothing).
// Idempotent: calling it again with the same or a weaker init never
// lowers a label already set.
func (m *Memory) Activate(addr uint64, init *Page) *Page {
	base := PageBase(addr)
	p, ok := m.active[base]
	if !ok {
		p = &Page{}
		m.active[base] = p
	}
	if init != nil {
		for i := range p {
			if init[i] > p[i] {
				p[i] = init[i]
			}
		}
	}
	return p
}

// Lookup returns the taint byte at addr and whether its page has been
// activated. To mutate a byte, use SetByte, or Activate and index into
// the returned *Page directly.
func (m *Memory) Lookup(addr uint64) (taint.Byte, bool) {
	base := PageBase(addr)
	p, ok := m.active[base]
	if !ok {
		return taint.None, false
	}
	return p[addr-base], true
}

// Page returns the activated page containing addr, or nil.
func (m *Memory) Page(addr uint64) *Page {
	return m.active[PageBase(addr)]
}

// SetByte sets the taint label at addr, activating the page if
// necessary.
func (m *Memory) SetByte(addr uint64, b taint.Byte) {
	base := PageBase(addr)
	p, ok := m.active[base]
	if !ok {
		p = &Page{}
		m.active[base] = p
	}
	p[addr-base] = b
}

// FindTainted scans [addr, addr+size) byte-wise and returns the
// offset (relative to addr) of the first byte whose taint is not
// taint.None, or -1 if none is tainted. Early-exits on the first hit.
func (m *Memory) FindTainted(addr uint64, size int) int64 {
	for i := 0; i < size; i++ {
		b, ok := m.Lookup(addr + uint64(i))
		if ok && b != taint.None {
			return int64(i)
		}
	}
	return -1
}

// Active reports whether the page containing addr has been activated.
func (m *Memory) Active(addr uint64) bool {
	_, ok := m.active[PageBase(addr)]
	return ok
}
