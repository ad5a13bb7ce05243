// Package propagate implements the propagation engine (C6): it
// resolves each instruction's taint_sink_src_map into a final taint
// status per sink and folds that status into the register/temp taint
// state. Memory-sourced sinks cannot be resolved until the concrete
// address they touch is known, so those are deferred until the
// controller's mem-read hook calls ResolveMemRead.
package propagate

import (
	"github.com/beyonddream/angr/internal/regstate"
	"github.com/beyonddream/angr/internal/shadow"
	"github.com/beyonddream/angr/internal/stopreason"
	"github.com/beyonddream/angr/internal/taint"
)

// pendingMemRead is a sink whose resolution awaits a concrete address.
type pendingMemRead struct {
	sink         taint.Entity
	addrEntities []taint.Entity
}

// Engine is the propagation engine. It owns no memory of its own;
// regs and mem are shared with the controller's other components for
// the lifetime of one run.
type Engine struct {
	regs *regstate.State
	mem  *shadow.Memory

	// pending holds, per instruction address, the single sink still
	// awaiting ResolveMemRead. A second memory-sourced sink on the same
	// instruction before the first resolves is a capability gap
	// (stopreason.MultipleMemoryReads): the engine does not attempt to
	// disambiguate which concrete address belongs to which sink.
	pending map[uint64]*pendingMemRead
}

// New returns a propagation engine sharing regs and mem with the rest
// of the controller.
func New(regs *regstate.State, mem *shadow.Memory) *Engine {
	return &Engine{regs: regs, mem: mem, pending: make(map[uint64]*pendingMemRead)}
}

// SymbolicSink pairs a sink entity with the status propagation
// resolved for it, for the controller's InstrDetails/slice bookkeeping.
type SymbolicSink struct {
	Sink   taint.Entity
	Status taint.Status
}

// PropagateInstr resolves every taint_sink_src_map entry for entry, in
// order, against the current register/temp state. Sinks whose sources
// include a Mem entity are deferred and excluded from the returned
// slice; they surface later through ResolveMemRead. ok is false only
// when a second deferral is attempted for the same instrAddr, in which
// case reason is stopreason.MultipleMemoryReads and the controller
// must treat this as a capability gap.
func (e *Engine) PropagateInstr(instrAddr uint64, entry *taint.InstructionEntry) (symbolic []SymbolicSink, reason stopreason.Reason, ok bool) {
	for _, ss := range entry.TaintSinkSrcMap {
		memSrcs := memSources(ss.Sources)
		if len(memSrcs) > 0 {
			if _, exists := e.pending[instrAddr]; exists {
				return symbolic, stopreason.MultipleMemoryReads, false
			}
			e.pending[instrAddr] = &pendingMemRead{
				sink:         ss.Sink,
				addrEntities: flattenMemRefs(memSrcs),
			}
			continue
		}
		status := e.finalStatus(ss.Sources)
		e.applySink(ss.Sink, status)
		if status != taint.Concrete {
			symbolic = append(symbolic, SymbolicSink{Sink: ss.Sink, Status: status})
		}
	}
	return symbolic, stopreason.Normal, true
}

// ResolveMemRead supplies the concrete address and byte count the
// controller's mem-read hook observed for instrAddr's deferred sink.
// The sink is symbolic if any byte in [addr, addr+size) is marked
// taint.Symbolic in shadow memory, or DependsOnReadFromSymbolicAddr if
// the address itself was computed from symbolic registers but the
// bytes read are not symbolic (None or Dirty).
// Reports false if instrAddr has no deferred sink.
func (e *Engine) ResolveMemRead(instrAddr uint64, addr uint64, size int) (SymbolicSink, bool) {
	pr, ok := e.pending[instrAddr]
	if !ok {
		return SymbolicSink{}, false
	}
	delete(e.pending, instrAddr)

	addrSymbolic := false
	for _, ent := range pr.addrEntities {
		if e.entitySymbolic(ent) {
			addrSymbolic = true
			break
		}
	}
	dataSymbolic := false
	for i := 0; i < size; i++ {
		if b, _ := e.mem.Lookup(addr + uint64(i)); b == taint.Symbolic {
			dataSymbolic = true
			break
		}
	}

	var status taint.Status
	switch {
	case dataSymbolic:
		status = taint.StatusSymbolic
	case addrSymbolic:
		status = taint.DependsOnReadFromSymbolicAddr
	default:
		status = taint.Concrete
	}
	e.applySink(pr.sink, status)
	return SymbolicSink{Sink: pr.sink, Status: status}, true
}

// HasPendingMemRead reports whether instrAddr still awaits
// ResolveMemRead.
func (e *Engine) HasPendingMemRead(instrAddr uint64) bool {
	_, ok := e.pending[instrAddr]
	return ok
}

// AddrSymbolic reports whether instrAddr's deferred sink has a
// symbolic address, without resolving or consuming the pending entry.
// The controller calls this from its mem-read hook, before the data
// itself is known to be tainted, to classify a SYMBOLIC_READ_ADDR
// stop independently of ResolveMemRead's data-taint check.
func (e *Engine) AddrSymbolic(instrAddr uint64) bool {
	pr, ok := e.pending[instrAddr]
	if !ok {
		return false
	}
	for _, ent := range pr.addrEntities {
		if e.entitySymbolic(ent) {
			return true
		}
	}
	return false
}

// AnySymbolic reports whether any entity in set is currently
// symbolic. Reg and Tmp entities are checked directly against the
// shared register/temp state; a Mem entity is checked through its
// address sub-entities only, since its own data taint is known only
// once a read resolves through PropagateInstr/ResolveMemRead. Used by
// the controller to classify exit-guard and ITE-condition entities as
// SYMBOLIC_BLOCK_EXIT_STMT / SYMBOLIC_CONDITION, and a store sink's
// own address entities as SYMBOLIC_WRITE_ADDR.
func (e *Engine) AnySymbolic(set taint.Set) bool {
	for _, ent := range set {
		if ent.Kind == taint.KindMem {
			for _, sub := range ent.MemRefs {
				if e.entitySymbolic(sub) {
					return true
				}
			}
			continue
		}
		if e.entitySymbolic(ent) {
			return true
		}
	}
	return false
}

// EndBlock discards any deferred sink left unresolved when the block
// ends before its mem-read hook fired — the read never happened, so
// there is nothing to finalize.
func (e *Engine) EndBlock() {
	e.pending = make(map[uint64]*pendingMemRead)
}

func memSources(sources taint.Set) []taint.Entity {
	var out []taint.Entity
	for _, ent := range sources {
		if ent.Kind == taint.KindMem {
			out = append(out, ent)
		}
	}
	return out
}

func flattenMemRefs(mems []taint.Entity) []taint.Entity {
	var out []taint.Entity
	for _, m := range mems {
		out = append(out, m.MemRefs...)
	}
	return out
}

func (e *Engine) entitySymbolic(ent taint.Entity) bool {
	switch ent.Kind {
	case taint.KindReg:
		return e.regs.IsSymbolicRegister(ent.RegOffset)
	case taint.KindTmp:
		return e.regs.IsSymbolicTemp(ent.TempID)
	default:
		return false
	}
}

// finalStatus is get_final_taint_status over a non-memory source set:
// symbolic if any source is symbolic, concrete otherwise. Mem sources
// never reach this function; they are resolved by ResolveMemRead.
func (e *Engine) finalStatus(sources taint.Set) taint.Status {
	for _, src := range sources {
		if e.entitySymbolic(src) {
			return taint.StatusSymbolic
		}
	}
	return taint.Concrete
}

// applySink folds status into the register/temp taint state. Mem
// sinks (stores) carry no regstate entry of their own — the
// controller threads their resolved status into journal.LogWrite when
// its own mem-write hook supplies the concrete address.
func (e *Engine) applySink(sink taint.Entity, status taint.Status) {
	symbolic := status != taint.Concrete
	switch sink.Kind {
	case taint.KindReg:
		if symbolic {
			e.regs.MarkRegisterSymbolic(sink.RegOffset, true)
		} else {
			e.regs.MarkRegisterConcrete(sink.RegOffset, true)
		}
	case taint.KindTmp:
		if symbolic {
			e.regs.MarkTempSymbolic(sink.TempID)
		}
	case taint.KindMem:
		// No regstate entry for memory sinks.
	}
}
