// Package slice implements the slice builder (C7): given one
// instruction classified symbolic, it computes the transitive closure
// of everything that instruction's sinks depend on and produces a
// deduplicated register snapshot — taken at block entry — for every
// leaf dependency the closure bottoms out at.
package slice

import (
	"github.com/beyonddream/angr/internal/regstate"
	"github.com/beyonddream/angr/internal/taint"
)

// BlockState tracks, for the block currently executing, which
// instruction most recently wrote each register or temporary. The
// controller updates it incrementally as each instruction is
// propagated, in program order, so a ComputeSlice call mid-block only
// ever sees producers that already ran.
type BlockState struct {
	WritesByReg  map[uint64]uint64
	WritesByTemp map[uint64]uint64
}

// NewBlockState returns an empty BlockState for a new block.
func NewBlockState() *BlockState {
	return &BlockState{
		WritesByReg:  make(map[uint64]uint64),
		WritesByTemp: make(map[uint64]uint64),
	}
}

// RecordRegWrite notes that instrAddr most recently wrote the
// (already-canonicalized) register at offset.
func (s *BlockState) RecordRegWrite(offset, instrAddr uint64) {
	s.WritesByReg[offset] = instrAddr
}

// RecordTempWrite notes that instrAddr defined tmpID.
func (s *BlockState) RecordTempWrite(tmpID, instrAddr uint64) {
	s.WritesByTemp[tmpID] = instrAddr
}

// RegReader reads a register's current concrete bytes from the engine.
type RegReader interface {
	RegRead(offset uint64) ([taint.MaxRegisterBytes]byte, error)
}

// MemReader reads concrete memory bytes from the engine.
type MemReader interface {
	MemRead(addr uint64, size int) ([taint.MaxMemAccessBytes]byte, error)
}

// Result is the outcome of one ComputeSlice call: the register values
// that must be saved for replay because the sliced instruction's
// symbolic result depends on them.
type Result struct {
	Registers []taint.RegisterValue
}

// Builder is the slice builder. It owns a block-entry register
// snapshot, refreshed once per block via BeginBlock.
type Builder struct {
	regs     *regstate.State
	snapshot map[uint64]taint.RegisterValue
}

// NewBuilder returns a Builder sharing regs with the rest of the
// controller, for canonicalizing sub-register offsets and skipping
// artificial/blacklisted registers.
func NewBuilder(regs *regstate.State) *Builder {
	return &Builder{regs: regs, snapshot: make(map[uint64]taint.RegisterValue)}
}

// BeginBlock snapshots every register in offsets from engine. Must be
// called once, before any instruction in the new block is propagated,
// so later ComputeSlice calls resolve leaves to their block-entry
// value rather than whatever the engine holds mid-block.
func (b *Builder) BeginBlock(engine RegReader, offsets []uint64) error {
	snap := make(map[uint64]taint.RegisterValue, len(offsets))
	for _, off := range offsets {
		val, err := engine.RegRead(off)
		if err != nil {
			return err
		}
		snap[off] = taint.RegisterValue{Offset: off, Value: val}
	}
	b.snapshot = snap
	return nil
}

// ComputeSlice walks entry's sources to their transitive closure
// within block, using state to find which earlier instruction (if
// any) produced a given register or temporary. A register never
// produced within the block is a genuine leaf and is resolved from
// the block-entry snapshot, skipping artificial/blacklisted offsets
// per regstate.IsValidDependency. A temporary not found in state is
// silently dropped — it belongs to a statement form the analyzer
// didn't track as a sink, and contributes nothing further.
func (b *Builder) ComputeSlice(instrAddr uint64, entry *taint.InstructionEntry, block *taint.BlockEntry, state *BlockState) Result {
	visited := taint.NewSet()
	leaves := taint.NewSet()
	var queue []taint.Entity
	for _, ss := range entry.TaintSinkSrcMap {
		queue = append(queue, ss.Sources.Slice()...)
	}

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		switch e.Kind {
		case taint.KindReg:
			full := b.regs.FullRegOffset(e.RegOffset)
			canon := taint.Reg(full)
			if visited.Has(canon) {
				continue
			}
			visited.Add(canon)
			if producer, ok := state.WritesByReg[full]; ok && producer != instrAddr {
				queue = append(queue, producerSources(block, producer, canon)...)
				continue
			}
			if b.regs.IsValidDependency(full) {
				leaves.Add(canon)
			}

		case taint.KindTmp:
			if visited.Has(e) {
				continue
			}
			visited.Add(e)
			if producer, ok := state.WritesByTemp[e.TempID]; ok {
				queue = append(queue, producerSources(block, producer, e)...)
			}

		case taint.KindMem:
			if visited.Has(e) {
				continue
			}
			visited.Add(e)
			queue = append(queue, e.MemRefs...)
		}
	}

	var regs []taint.RegisterValue
	for _, e := range leaves.Slice() {
		if val, ok := b.snapshot[e.RegOffset]; ok {
			regs = append(regs, val)
		}
	}
	return Result{Registers: regs}
}

// producerSources returns the sources feeding whichever sink in
// block's producer instruction matches target (by Reg offset or Tmp
// ID), or nil if none is found.
func producerSources(block *taint.BlockEntry, producer uint64, target taint.Entity) []taint.Entity {
	prodInstr, ok := block.Instrs[producer]
	if !ok {
		return nil
	}
	for _, ss := range prodInstr.TaintSinkSrcMap {
		if ss.Sink.Kind != target.Kind {
			continue
		}
		if ss.Sink.Kind == taint.KindReg && ss.Sink.RegOffset == target.RegOffset {
			return ss.Sources.Slice()
		}
		if ss.Sink.Kind == taint.KindTmp && ss.Sink.TempID == target.TempID {
			return ss.Sources.Slice()
		}
	}
	return nil
}

// CaptureMemoryValue reads size bytes at addr from mem and returns
// them as a taint.MemoryValue, for a memory-read instruction promoted
// to symbolic whose address was concrete — the controller calls this
// once, at promotion time, to fill InstrDetails.MemoryValue.
func CaptureMemoryValue(mem MemReader, addr uint64, size int) (taint.MemoryValue, error) {
	bytes, err := mem.MemRead(addr, size)
	if err != nil {
		return taint.MemoryValue{}, err
	}
	return taint.MemoryValue{Address: addr, Value: bytes, Size: uint64(size)}, nil
}
