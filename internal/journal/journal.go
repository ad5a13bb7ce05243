// Package journal implements the write journal (C2): an append-only
// log of in-flight memory writes that lets the controller commit or
// roll back an entire engine basic block's worth of shadow-memory
// mutation. Per spec.md §4.2, neither commit nor rollback touches
// engine memory contents — the engine stays the authority for
// concrete bytes; the journal only governs the taint shadow.
package journal

import (
	"github.com/beyonddream/angr/internal/shadow"
	"github.com/beyonddream/angr/internal/taint"
)

// MaxWriteBytes bounds a single logged write, matching
// taint.MaxMemAccessBytes.
const MaxWriteBytes = taint.MaxMemAccessBytes

// Entry is one pending memory write: the address, size, whether the
// write itself is symbolic, and the prior taint of every overwritten
// byte so Rollback can restore it exactly.
type Entry struct {
	Address    uint64
	Size       int
	IsSymbolic bool
	Clean      [MaxWriteBytes]taint.Byte
	// InstrAddr is the instruction that performed the write, used to
	// build mem_writes_taint_map on commit.
	InstrAddr uint64
}

// Journal is the append-only log of pending writes for the block
// currently executing.
type Journal struct {
	entries []Entry
}

// New returns an empty journal.
func New() *Journal {
	return &Journal{}
}

// Len reports the number of pending entries.
func (j *Journal) Len() int { return len(j.entries) }

// LogWrite records a write of size bytes at addr, saving the shadow's
// prior taint for each byte before marking it Dirty (if the write is
// concrete) or Symbolic (if it is not). Returns false if size exceeds
// MaxWriteBytes or the shadow has no activated page at addr — per
// spec.md §4.2 the caller is expected to have activated the page
// first.
func (j *Journal) LogWrite(mem *shadow.Memory, instrAddr, addr uint64, size int, isSymbolic bool) bool {
	if size <= 0 || size > MaxWriteBytes {
		return false
	}
	if !mem.Active(addr) {
		return false
	}
	entry := Entry{Address: addr, Size: size, IsSymbolic: isSymbolic, InstrAddr: instrAddr}
	for i := 0; i < size; i++ {
		b, _ := mem.Lookup(addr + uint64(i))
		entry.Clean[i] = b
		if isSymbolic {
			mem.SetByte(addr+uint64(i), taint.Symbolic)
		} else {
			mem.SetByte(addr+uint64(i), taint.Dirty)
		}
	}
	j.entries = append(j.entries, entry)
	return true
}

// Commit clears every pending Dirty byte back to None (it was only a
// pending-commit marker), leaves Symbolic marks as they are, and
// empties the journal. It returns mem_writes_taint_map: for every
// committed write, the instruction address that performed it mapped
// to whether that write was symbolic. The controller's commitBlock
// does not use the returned map.
func (j *Journal) Commit(mem *shadow.Memory) map[uint64]bool {
	writesTaintMap := make(map[uint64]bool, len(j.entries))
	for _, e := range j.entries {
		for i := 0; i < e.Size; i++ {
			b, ok := mem.Lookup(e.Address + uint64(i))
			if ok && b == taint.Dirty {
				mem.SetByte(e.Address+uint64(i), taint.None)
			}
		}
		writesTaintMap[e.InstrAddr] = e.IsSymbolic
	}
	j.entries = nil
	return writesTaintMap
}

// Rollback restores every pending write's prior taint, in reverse
// order, and empties the journal.
func (j *Journal) Rollback(mem *shadow.Memory) {
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		for off := 0; off < e.Size; off++ {
			mem.SetByte(e.Address+uint64(off), e.Clean[off])
		}
	}
	j.entries = nil
}

// Entries returns the pending entries in log order. Callers must not
// mutate the returned slice.
func (j *Journal) Entries() []Entry {
	return j.entries
}
