// Package analyzer implements the IR block analyzer (C5): a pure,
// memoizing walk of a lifted IR block that produces a
// taint.BlockEntry. Given the same IR in, it always produces an equal
// entry out (spec.md §8 property 4).
package analyzer

import (
	"sync"

	"github.com/beyonddream/angr/internal/ir"
	"github.com/beyonddream/angr/internal/stopreason"
	"github.com/beyonddream/angr/internal/taint"
)

// exprResult is get_taint_sources_and_ite_cond_t: the flat set of
// leaf entities an expression touches, any entities living inside an
// ITE condition within it, whether it read memory, and an
// unsupported-construct reason if one was found.
type exprResult struct {
	Leaves        taint.Set
	IteCond       taint.Set
	HasMemoryRead bool
	Unsupported   *stopreason.Reason
}

func newExprResult() exprResult {
	return exprResult{Leaves: taint.NewSet(), IteCond: taint.NewSet()}
}

func (r *exprResult) merge(other exprResult) {
	for k, v := range other.Leaves {
		r.Leaves[k] = v
	}
	for k, v := range other.IteCond {
		r.IteCond[k] = v
	}
	r.HasMemoryRead = r.HasMemoryRead || other.HasMemoryRead
	if r.Unsupported == nil {
		r.Unsupported = other.Unsupported
	}
}

// visitExpr computes an expression's taint sources. Entities found
// inside an ITE's condition are also collected in the result's
// IteCond set, so the caller can record them as condition entities.
func visitExpr(e *ir.Expr, instrAddr uint64) exprResult {
	res := newExprResult()
	if e == nil {
		return res
	}
	switch e.Kind {
	case ir.RdTmp:
		res.Leaves.Add(taint.Tmp(e.TmpID))
	case ir.Get:
		res.Leaves.Add(taint.Reg(e.RegOffset))
	case ir.GetI:
		reason := stopreason.UnsupportedExprGetI
		res.Unsupported = &reason
	case ir.Load:
		addrRes := visitExpr(e.LoadAddr, instrAddr)
		res.merge(addrRes)
		memEntity := taint.Mem(addrRes.Leaves.Slice()...)
		res.Leaves.Add(memEntity)
		res.HasMemoryRead = true
	case ir.Const:
		// Contributes no leaves.
	case ir.Binop, ir.Unop, ir.CCall:
		for i := range e.Args {
			res.merge(visitExpr(&e.Args[i], instrAddr))
		}
	case ir.ITE:
		condRes := visitExpr(e.Cond, instrAddr)
		for k, v := range condRes.Leaves {
			res.IteCond[k] = v
		}
		res.merge(condRes)
		res.merge(visitExpr(e.Then, instrAddr))
		res.merge(visitExpr(e.Else, instrAddr))
	default:
		reason := stopreason.UnsupportedExprUnknown
		res.Unsupported = &reason
	}
	return res
}

// Analyze walks block and produces its taint entry. Pure: the same
// block always yields an entry that Equal()s a prior result.
func Analyze(block *ir.Block) *taint.BlockEntry {
	entry := taint.NewBlockEntry()
	var curInstr uint64

	for i := range block.Stmts {
		st := &block.Stmts[i]
		switch st.Kind {
		case ir.IMark:
			curInstr = st.MarkAddr
			entry.Instr(curInstr)

		case ir.WrTmp:
			instr := entry.Instr(curInstr)
			dataRes := visitExpr(&st.Data, curInstr)
			if dataRes.Unsupported != nil {
				entry.MarkUnsupported(*dataRes.Unsupported)
			}
			sink := taint.Tmp(st.TmpID).WithInstr(curInstr)
			instr.TaintSinkSrcMap = append(instr.TaintSinkSrcMap, taint.SinkSources{
				Sink:    sink,
				Sources: dataRes.Leaves,
			})
			for k, v := range dataRes.IteCond {
				instr.IteCondEntities[k] = v
			}
			if dataRes.HasMemoryRead {
				instr.HasMemoryRead = true
			}

		case ir.Put:
			instr := entry.Instr(curInstr)
			dataRes := visitExpr(&st.Data, curInstr)
			if dataRes.Unsupported != nil {
				entry.MarkUnsupported(*dataRes.Unsupported)
			}
			sources := dataRes.Leaves
			dependsOnPrior := sources.Has(taint.Reg(st.RegOffset))
			if dependsOnPrior {
				// Read-modify-write: the sink's sources include the
				// sink's own old value, per spec.md §4.5.
				sources = sources.Union(taint.NewSet(taint.Reg(st.RegOffset)))
			}
			sink := taint.Reg(st.RegOffset).WithInstr(curInstr)
			instr.TaintSinkSrcMap = append(instr.TaintSinkSrcMap, taint.SinkSources{
				Sink:    sink,
				Sources: sources,
			})
			instr.ModifiedRegs = append(instr.ModifiedRegs, taint.ModifiedReg{
				Offset:         st.RegOffset,
				DependsOnPrior: dependsOnPrior,
			})
			for k, v := range dataRes.IteCond {
				instr.IteCondEntities[k] = v
			}
			if dataRes.HasMemoryRead {
				instr.HasMemoryRead = true
			}

		case ir.Store:
			instr := entry.Instr(curInstr)
			addrRes := visitExpr(&st.Addr, curInstr)
			dataRes := visitExpr(&st.Data, curInstr)
			if addrRes.Unsupported != nil {
				entry.MarkUnsupported(*addrRes.Unsupported)
			}
			if dataRes.Unsupported != nil {
				entry.MarkUnsupported(*dataRes.Unsupported)
			}
			sink := taint.Mem(addrRes.Leaves.Slice()...).WithInstr(curInstr)
			instr.TaintSinkSrcMap = append(instr.TaintSinkSrcMap, taint.SinkSources{
				Sink:    sink,
				Sources: dataRes.Leaves,
			})
			instr.HasMemoryWrite = true
			if addrRes.HasMemoryRead || dataRes.HasMemoryRead {
				instr.HasMemoryRead = true
			}

		case ir.Exit:
			entry.ExitStmtInstrAddr = curInstr
			guardRes := visitExpr(&st.Guard, curInstr)
			if guardRes.Unsupported != nil {
				entry.MarkUnsupported(*guardRes.Unsupported)
			}
			entry.ExitGuardDeps = entry.ExitGuardDeps.Union(guardRes.Leaves)

		case ir.NoOp:
			// Carries no taint-relevant information.

		case ir.PutI:
			entry.MarkUnsupported(stopreason.UnsupportedStmtPutI)
		case ir.StoreG:
			entry.MarkUnsupported(stopreason.UnsupportedStmtStoreG)
		case ir.LoadG:
			entry.MarkUnsupported(stopreason.UnsupportedStmtLoadG)
		case ir.CAS:
			entry.MarkUnsupported(stopreason.UnsupportedStmtCAS)
		case ir.LLSC:
			entry.MarkUnsupported(stopreason.UnsupportedStmtLLSC)
		case ir.Dirty:
			entry.MarkUnsupported(stopreason.UnsupportedStmtDirty)
		default:
			entry.MarkUnsupported(stopreason.UnsupportedStmtUnknown)
		}
	}

	computeDependenciesToSave(entry)
	return entry
}

// computeDependenciesToSave fills each instruction's
// DependenciesToSave: every register entity appearing among that
// instruction's sources, which must be captured if the instruction is
// later classified symbolic and becomes part of a slice.
func computeDependenciesToSave(entry *taint.BlockEntry) {
	for _, addr := range entry.InstrOrder {
		instr := entry.Instrs[addr]
		for _, ss := range instr.TaintSinkSrcMap {
			for _, src := range ss.Sources {
				collectRegDeps(src, instr.DependenciesToSave)
			}
		}
	}
}

func collectRegDeps(e taint.Entity, into taint.Set) {
	switch e.Kind {
	case taint.KindReg:
		into.Add(e)
	case taint.KindMem:
		for _, sub := range e.MemRefs {
			collectRegDeps(sub, into)
		}
	}
}

// Cache is the block-taint cache (block_taint_cache), memoizing
// Analyze results by block start address. Invalidated by the
// controller on self-modifying writes.
type Cache struct {
	mu      sync.Mutex
	entries map[uint64]*taint.BlockEntry
}

// NewCache returns an empty block-taint cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[uint64]*taint.BlockEntry)}
}

// Get returns the cached entry for addr, analyzing and storing block
// if no cached entry exists yet.
func (c *Cache) Get(addr uint64, block *ir.Block) *taint.BlockEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[addr]; ok {
		return e
	}
	e := Analyze(block)
	c.entries[addr] = e
	return e
}

// Invalidate drops the cached entry for addr, if any.
func (c *Cache) Invalidate(addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, addr)
}

// Lookup returns the cached entry for addr without analyzing.
func (c *Cache) Lookup(addr uint64) (*taint.BlockEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[addr]
	return e, ok
}
