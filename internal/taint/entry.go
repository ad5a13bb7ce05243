package taint

import "github.com/beyonddream/angr/internal/stopreason"

// MaxMemAccessBytes bounds the captured value of any single memory
// read or write, matching the original's MAX_MEM_ACCESS_SIZE.
const MaxMemAccessBytes = 8

// MaxRegisterBytes bounds the captured value of any single register
// snapshot, matching the original's MAX_REGISTER_BYTE_SIZE.
const MaxRegisterBytes = 32

// SinkSources pairs one taint sink with its ordered source set. Kept
// as a slice element (not a map value) because taint_sink_src_map's
// ordering is significant: later sinks must observe earlier sinks'
// taint updates within the same instruction. See spec.md §9's open
// question about list-of-pairs ordering.
type SinkSources struct {
	Sink    Entity
	Sources Set
}

// ModifiedReg records a register an instruction writes, and whether
// the new value depends on the register's own prior value (a
// read-modify-write). Propagation does not consult DependsOnPrior: it
// reads every source of a sink before applying that sink, so a
// register an instruction both reads and writes is always read first.
type ModifiedReg struct {
	Offset          uint64
	DependsOnPrior  bool
}

// InstructionEntry is the per-instruction analysis record produced by
// the block analyzer (C5) and consumed by the propagation engine (C6).
type InstructionEntry struct {
	// TaintSinkSrcMap is ordered: sinks are resolved in this order so
	// that later sinks observe earlier taint updates within the block.
	TaintSinkSrcMap []SinkSources
	// DependenciesToSave are register entities whose concrete value
	// must be captured if this instruction is later classified
	// symbolic.
	DependenciesToSave Set
	// IteCondEntities are entities appearing in any if-then-else
	// condition evaluated by this instruction.
	IteCondEntities Set
	// ModifiedRegs lists registers this instruction writes, in
	// program order.
	ModifiedRegs    []ModifiedReg
	HasMemoryRead   bool
	HasMemoryWrite  bool
}

// NewInstructionEntry returns a zeroed entry ready for the analyzer to
// populate.
func NewInstructionEntry() *InstructionEntry {
	return &InstructionEntry{
		DependenciesToSave: NewSet(),
		IteCondEntities:    NewSet(),
	}
}

// Equal compares two entries field by field. Per spec.md §9's open
// question about block_taint_entry_t::operator==, we treat every
// field as significant rather than mirroring the original's omission.
func (i *InstructionEntry) Equal(other *InstructionEntry) bool {
	if i == nil || other == nil {
		return i == other
	}
	if len(i.TaintSinkSrcMap) != len(other.TaintSinkSrcMap) {
		return false
	}
	for idx, ss := range i.TaintSinkSrcMap {
		o := other.TaintSinkSrcMap[idx]
		if !ss.Sink.Equal(o.Sink) || !ss.Sources.Equal(o.Sources) {
			return false
		}
	}
	if !i.DependenciesToSave.Equal(other.DependenciesToSave) {
		return false
	}
	if !i.IteCondEntities.Equal(other.IteCondEntities) {
		return false
	}
	if len(i.ModifiedRegs) != len(other.ModifiedRegs) {
		return false
	}
	for idx, mr := range i.ModifiedRegs {
		if mr != other.ModifiedRegs[idx] {
			return false
		}
	}
	return i.HasMemoryRead == other.HasMemoryRead && i.HasMemoryWrite == other.HasMemoryWrite
}

// BlockEntry is the per-block analysis record produced by the block
// analyzer (C5), memoized by block start address in the analyzer's
// cache.
type BlockEntry struct {
	// InstrOrder preserves the order instructions were first seen in,
	// since Go maps don't iterate deterministically and ordering
	// matters for replay/slice reconstruction.
	InstrOrder []uint64
	Instrs     map[uint64]*InstructionEntry
	// ExitGuardDeps are the entities feeding the block's conditional
	// exit guard.
	ExitGuardDeps    Set
	ExitStmtInstrAddr uint64
	// Unsupported is non-nil if any IR construct in the block could
	// not be analyzed; propagation refuses to run for such a block.
	Unsupported *stopreason.Reason
}

// NewBlockEntry returns an empty entry ready for the analyzer to fill.
func NewBlockEntry() *BlockEntry {
	return &BlockEntry{
		Instrs:        make(map[uint64]*InstructionEntry),
		ExitGuardDeps: NewSet(),
	}
}

// Instr returns the entry for instrAddr, creating it in program order
// if this is the first reference.
func (b *BlockEntry) Instr(instrAddr uint64) *InstructionEntry {
	entry, ok := b.Instrs[instrAddr]
	if !ok {
		entry = NewInstructionEntry()
		b.Instrs[instrAddr] = entry
		b.InstrOrder = append(b.InstrOrder, instrAddr)
	}
	return entry
}

// MarkUnsupported records that the block could not be fully analyzed.
// The first unsupported construct wins; later calls are no-ops.
func (b *BlockEntry) MarkUnsupported(reason stopreason.Reason) {
	if b.Unsupported == nil {
		b.Unsupported = &reason
	}
}

// Equal compares two block entries, including ExitStmtInstrAddr and
// Unsupported (see spec.md §9's open question).
func (b *BlockEntry) Equal(other *BlockEntry) bool {
	if b == nil || other == nil {
		return b == other
	}
	if len(b.InstrOrder) != len(other.InstrOrder) {
		return false
	}
	for idx, addr := range b.InstrOrder {
		if other.InstrOrder[idx] != addr {
			return false
		}
		if !b.Instrs[addr].Equal(other.Instrs[addr]) {
			return false
		}
	}
	if !b.ExitGuardDeps.Equal(other.ExitGuardDeps) {
		return false
	}
	if b.ExitStmtInstrAddr != other.ExitStmtInstrAddr {
		return false
	}
	if (b.Unsupported == nil) != (other.Unsupported == nil) {
		return false
	}
	if b.Unsupported != nil && *b.Unsupported != *other.Unsupported {
		return false
	}
	return true
}

// MemoryValue captures up to MaxMemAccessBytes of a memory read or
// write's concrete value.
type MemoryValue struct {
	Address uint64
	Value   [MaxMemAccessBytes]byte
	Size    uint64
}

// Equal reports whether two memory values cover the same address/size
// with identical bytes.
func (m MemoryValue) Equal(other MemoryValue) bool {
	if m.Address != other.Address || m.Size != other.Size {
		return false
	}
	n := int(m.Size)
	if n > MaxMemAccessBytes {
		n = MaxMemAccessBytes
	}
	for i := 0; i < n; i++ {
		if m.Value[i] != other.Value[i] {
			return false
		}
	}
	return true
}

// RegisterValue is a concrete register snapshot, taken at block entry,
// captured for replay because a later-in-block symbolic instruction
// depends on it.
type RegisterValue struct {
	Offset uint64
	Value  [MaxRegisterBytes]byte
}

// InstrDetails is what the controller records for one instruction that
// was classified symbolic.
type InstrDetails struct {
	InstrAddr     uint64
	HasMemoryDep  bool
	MemoryValue   MemoryValue
}

// Equal compares two instruction detail records.
func (d InstrDetails) Equal(other InstrDetails) bool {
	return d.InstrAddr == other.InstrAddr &&
		d.HasMemoryDep == other.HasMemoryDep &&
		d.MemoryValue.Equal(other.MemoryValue)
}

// Less orders instruction details by address, matching the original's
// operator< on instr_details_t (used to keep symbolic_instrs sorted).
func (d InstrDetails) Less(other InstrDetails) bool {
	return d.InstrAddr < other.InstrAddr
}
