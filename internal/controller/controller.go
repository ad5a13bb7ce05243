// Package controller implements the execution controller (C8): the
// state machine that drives one Engine block by block, classifies
// every instruction's taint through the analyzer and propagation
// engine, and decides whether a block's pending writes commit or roll
// back once the block stops, per spec.md §4.8.
package controller

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beyonddream/angr/internal/analyzer"
	"github.com/beyonddream/angr/internal/archprofile"
	"github.com/beyonddream/angr/internal/engine"
	"github.com/beyonddream/angr/internal/ir"
	"github.com/beyonddream/angr/internal/journal"
	"github.com/beyonddream/angr/internal/log"
	"github.com/beyonddream/angr/internal/pagecache"
	"github.com/beyonddream/angr/internal/propagate"
	"github.com/beyonddream/angr/internal/regstate"
	"github.com/beyonddream/angr/internal/script"
	"github.com/beyonddream/angr/internal/shadow"
	"github.com/beyonddream/angr/internal/slice"
	"github.com/beyonddream/angr/internal/stopreason"
	"github.com/beyonddream/angr/internal/taint"
)

// Lifter supplies the IR for the block starting at addr. It is a
// host-supplied external collaborator; this accelerator never lifts
// guest code itself.
type Lifter func(addr uint64) (*ir.Block, error)

// StopDetails is what Start returns once a run halts, and what
// get_stop_details reports for the boundary.
type StopDetails struct {
	Reason     stopreason.Reason
	BlockAddr  uint64
	BlockSize  uint64
	RunID      uuid.UUID
	StepsTaken uint64
}

// BlockDetails mirrors block_details_ret_t: one block's symbolic
// instructions plus the register snapshot needed to replay them.
type BlockDetails struct {
	BlockAddr      uint64
	BlockSize      uint64
	SymbolicInstrs []taint.InstrDetails
	RegisterValues []taint.RegisterValue
}

type writeRange struct {
	addr, end uint64
}

// Controller owns one Engine and every piece of taint-tracking state
// needed to drive it: the page cache, block-taint cache, register/
// temp state, write journal, shadow memory, propagation engine, and
// slice builder.
type Controller struct {
	eng       *engine.Engine
	profile   *archprofile.Profile
	pageCache *pagecache.Cache
	blocks    *analyzer.Cache
	regs      *regstate.State
	jrnl      *journal.Journal
	mem       *shadow.Memory
	prop      *propagate.Engine
	slicer    *slice.Builder
	lifter    Lifter
	logger    *log.Logger

	sessionKey uint64

	stops    map[uint64]bool
	maxSteps uint64
	curSteps uint64

	stopped    bool
	haltReason stopreason.Reason
	runID      uuid.UUID

	curBlockAddr  uint64
	curBlockSize  uint64
	curBlockEntry *taint.BlockEntry
	curInstrAddr  uint64

	blockState         *slice.BlockState
	blockSymbolic      []taint.InstrDetails
	blockSliceRegs     []taint.RegisterValue
	pendingStoreStatus map[uint64]taint.Status
	blockEntryRegs     map[uint64]uint64
	regSnapshot        regstate.Snapshot

	lastBlockWrites []writeRange

	bblAddrs      []uint64
	stackPointers []uint64
	executedPages map[uint64]bool
	syscallCount  uint64

	blocksWithSymbolic map[uint64]*BlockDetails

	stopPredicate *script.Predicate

	liveMu sync.Mutex
	live   LiveStatus
}

// LiveStatus is a point-in-time snapshot of a running controller,
// safe to read from a goroutine other than the one inside Start —
// e.g. a watch-style TUI polling on a timer while Start runs on its
// own goroutine. It is the only state this package exposes across a
// goroutine boundary without the caller's own synchronization.
type LiveStatus struct {
	BlockAddr         uint64
	BlockSize         uint64
	StepsTaken        uint64
	SymbolicRegisters int
	JournalDepth      int
	Halted            bool
	Reason            stopreason.Reason
}

// LiveStatus returns the most recent snapshot recorded at a block
// boundary or at halt.
func (c *Controller) LiveStatus() LiveStatus {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	return c.live
}

func (c *Controller) recordLiveStatus(halted bool) {
	c.liveMu.Lock()
	defer c.liveMu.Unlock()
	c.live = LiveStatus{
		BlockAddr:         c.curBlockAddr,
		BlockSize:         c.curBlockSize,
		StepsTaken:        c.curSteps,
		SymbolicRegisters: len(c.regs.SymbolicRegisters()),
		JournalDepth:      c.jrnl.Len(),
		Halted:            halted,
		Reason:            c.haltReason,
	}
}

// New allocates a controller bound to a freshly opened Engine for
// profile, sharing the page cache of whichever other controllers hold
// sessionKey. lifter is asked for IR on every new block; logger may be
// nil, in which case a no-op logger is used.
func New(sessionKey uint64, profile *archprofile.Profile, lifter Lifter, logger *log.Logger) (*Controller, error) {
	eng, err := engine.New(profile)
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	regs := regstate.New(profile.SubRegMap, profile.ArtificialSet(), profile.BlacklistedSet())
	mem := shadow.New()

	c := &Controller{
		eng:                eng,
		profile:            profile,
		pageCache:          pagecache.ForSession(sessionKey),
		blocks:             analyzer.NewCache(),
		regs:               regs,
		jrnl:               journal.New(),
		mem:                mem,
		prop:               propagate.New(regs, mem),
		slicer:             slice.NewBuilder(regs),
		lifter:             lifter,
		logger:             logger,
		sessionKey:         sessionKey,
		stops:              make(map[uint64]bool),
		executedPages:      make(map[uint64]bool),
		blocksWithSymbolic: make(map[uint64]*BlockDetails),
	}

	eng.HookBlock(c.onBlockHook)
	eng.HookCode(c.onCodeHook)
	eng.HookMemRead(c.onMemReadHook)
	eng.HookMemWrite(c.onMemWriteHook)
	eng.SetUnmappedHook(c.onUnmapped)
	eng.SetInterruptHook(c.onInterrupt)

	return c, nil
}

// Close releases the underlying Engine. It does not release the
// session's page cache, which other controllers sharing sessionKey
// may still reference; call pagecache.ReleaseSession separately once
// no controller holds the session.
func (c *Controller) Close() error {
	return c.eng.Close()
}

// Engine returns the controller's underlying concrete emulator, for a
// host that needs direct access (e.g. to seed memory before Start).
func (c *Controller) Engine() *engine.Engine { return c.eng }

// --- Configuration (§6, all idempotent) ---

// SetStops replaces the hard-breakpoint address set.
func (c *Controller) SetStops(addresses []uint64) {
	m := make(map[uint64]bool, len(addresses))
	for _, a := range addresses {
		m[a] = true
	}
	c.stops = m
}

// SeedSymbolicRegisters marks offsets symbolic before the first Start.
func (c *Controller) SeedSymbolicRegisters(offsets []uint64) {
	c.regs.SeedSymbolic(offsets)
}

// SetStopPredicate installs (or, with nil, clears) a JavaScript
// watchpoint expression evaluated against concrete register values at
// every block entry, supplementing the fixed address list of
// SetStops. See internal/script for the evaluation contract.
func (c *Controller) SetStopPredicate(pred *script.Predicate) {
	c.stopPredicate = pred
}

// CachePage caches bytes at addr with perms, for later on-demand
// mapping into the Engine.
func (c *Controller) CachePage(addr uint64, bytes []byte, perms pagecache.Perms) bool {
	_, _, ok := c.pageCache.CachePage(addr, bytes, perms)
	return ok
}

// UncachePagesTouchingRegion drops every cached page overlapping
// [addr, addr+length).
func (c *Controller) UncachePagesTouchingRegion(addr, length uint64) {
	c.pageCache.UncachePagesTouchingRegion(addr, length)
}

// ClearPageCache drops every cached page.
func (c *Controller) ClearPageCache() { c.pageCache.Clear() }

// InCache reports whether addr is covered by a cached page.
func (c *Controller) InCache(addr uint64) bool { return c.pageCache.InCache(addr) }

// Activate marks [addr, addr+length) present in shadow memory,
// symbolic if symbolic is set, matching the activate(addr, len,
// taint_init) call of §6.
func (c *Controller) Activate(addr, length uint64, symbolic bool) {
	for a := addr; a < addr+length; a++ {
		if symbolic {
			c.mem.SetByte(a, taint.Symbolic)
		} else {
			c.mem.Activate(a, nil)
		}
	}
}

// --- Queries (§6) ---

// BBLAddrs returns every basic block address entered this run, in
// execution order.
func (c *Controller) BBLAddrs() []uint64 { return append([]uint64(nil), c.bblAddrs...) }

// StackPointers returns the stack pointer sampled at every block
// entry this run.
func (c *Controller) StackPointers() []uint64 { return append([]uint64(nil), c.stackPointers...) }

// ExecutedPages returns the page base of every block entry address
// seen this run, sorted ascending.
func (c *Controller) ExecutedPages() []uint64 {
	out := make([]uint64, 0, len(c.executedPages))
	for p := range c.executedPages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SyscallCount returns the number of interrupt/syscall traps seen
// this run.
func (c *Controller) SyscallCount() uint64 { return c.syscallCount }

// SymbolicRegisters returns every register offset currently symbolic.
func (c *Controller) SymbolicRegisters() []uint64 { return c.regs.SymbolicRegisters() }

// BlocksWithSymbolicInstrs returns every committed block that
// produced at least one symbolic instruction, sorted by block
// address, for get_details_of_blocks_with_symbolic_instrs.
func (c *Controller) BlocksWithSymbolicInstrs() []BlockDetails {
	out := make([]BlockDetails, 0, len(c.blocksWithSymbolic))
	for _, d := range c.blocksWithSymbolic {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockAddr < out[j].BlockAddr })
	return out
}

// --- Lifecycle ---

// Stop sets the sticky cancellation flag and asks the Engine to halt
// at the next safe point, per spec.md §5's cooperative-cancellation
// model.
func (c *Controller) Stop(reason stopreason.Reason) {
	c.stopped = true
	c.haltReason = reason
	c.eng.Stop()
}

// Start runs the Engine from pc until a hook stops it, an Engine
// fault halts it, or cur_steps reaches maxSteps at a block boundary.
// A maxSteps of 0 sets no step limit.
func (c *Controller) Start(pc uint64, maxSteps uint64) StopDetails {
	c.runID = uuid.New()
	c.maxSteps = maxSteps
	c.curSteps = 0
	c.stopped = false
	c.haltReason = stopreason.Normal
	c.curBlockAddr = 0
	c.curBlockSize = 0
	c.curBlockEntry = nil

	logger := c.logger.With(zap.String("run_id", c.runID.String()))
	logger.Info("start", zap.Uint64("pc", pc), zap.Uint64("max_steps", maxSteps))

	if err := c.eng.SetPC(pc); err != nil {
		logger.Error("set pc failed", zap.Error(err))
		c.haltReason = stopreason.Error
		return c.details()
	}

	if err := c.eng.Start(pc, 0); err != nil && !c.stopped {
		// The Engine halted on its own, with no hook able to attribute
		// a taint-aware reason to the fault.
		c.haltReason = stopreason.Error
	}

	if c.curBlockEntry != nil {
		if c.haltReason.RequiresRollback() {
			c.rollbackBlock()
		} else {
			c.commitBlock()
		}
	}

	c.recordLiveStatus(true)
	logger.Info("stop", zap.String("reason", c.haltReason.String()), zap.Uint64("steps", c.curSteps))
	return c.details()
}

func (c *Controller) details() StopDetails {
	return StopDetails{
		Reason:     c.haltReason,
		BlockAddr:  c.curBlockAddr,
		BlockSize:  c.curBlockSize,
		RunID:      c.runID,
		StepsTaken: c.curSteps,
	}
}

// --- Hooks ---

func (c *Controller) onBlockHook(addr uint64, size uint32) {
	if c.stopped {
		return
	}
	if c.curBlockEntry != nil {
		c.commitBlock()
	}

	for _, w := range c.lastBlockWrites {
		if w.addr < addr+uint64(size) && addr < w.end {
			c.pageCache.UncachePagesTouchingRegion(w.addr, w.end-w.addr)
			c.blocks.Invalidate(addr)
			break
		}
	}
	c.lastBlockWrites = nil

	c.curSteps++
	if c.maxSteps != 0 && c.curSteps > c.maxSteps {
		c.Stop(stopreason.Normal)
		return
	}
	if c.stops[addr] {
		c.Stop(stopreason.Stoppoint)
		return
	}
	if c.stopPredicate != nil {
		hit, err := c.stopPredicate.Eval(snapshotEngineRegs(c.eng, c.profile.RegisterOffsets()))
		if err != nil {
			c.logger.Warn("stop predicate evaluation failed", zap.Error(err))
		} else if hit {
			c.Stop(stopreason.Stoppoint)
			return
		}
	}

	block, err := c.lifter(addr)
	if err != nil {
		c.curBlockAddr = addr
		c.Stop(stopreason.VexLiftFailed)
		return
	}
	if block.Size > ir.MaxBlockSize {
		c.logger.Warn("block exceeds analyzer limit, truncating",
			log.Addr(addr), log.Size(block.Size))
		block = truncateBlock(block)
	}

	entry := c.blocks.Get(addr, block)
	if entry.Unsupported != nil {
		c.curBlockAddr = addr
		c.curBlockSize = block.Size
		c.Stop(*entry.Unsupported)
		return
	}

	c.curBlockAddr = addr
	c.curBlockSize = block.Size
	c.curBlockEntry = entry
	c.blockState = slice.NewBlockState()
	c.blockSymbolic = nil
	c.blockSliceRegs = nil
	c.pendingStoreStatus = make(map[uint64]taint.Status)
	c.regs.EndBlock()

	offsets := c.profile.RegisterOffsets()
	if err := c.slicer.BeginBlock(c.eng, offsets); err != nil {
		c.logger.Warn("slice snapshot failed", zap.Error(err))
	}
	c.regSnapshot = c.regs.Snapshot()
	c.blockEntryRegs = snapshotEngineRegs(c.eng, offsets)

	c.bblAddrs = append(c.bblAddrs, addr)
	c.executedPages[shadow.PageBase(addr)] = true
	if sp, err := c.eng.SP(); err == nil {
		c.stackPointers = append(c.stackPointers, sp)
	}
	c.recordLiveStatus(false)
}

func (c *Controller) onCodeHook(addr uint64, size uint32) {
	if c.stopped {
		return
	}
	c.curInstrAddr = addr
	if c.curBlockEntry == nil {
		return
	}
	instr, ok := c.curBlockEntry.Instrs[addr]
	if !ok {
		return
	}

	for _, ss := range instr.TaintSinkSrcMap {
		if ss.Sink.Kind == taint.KindMem && c.prop.AnySymbolic(taint.NewSet(ss.Sink.MemRefs...)) {
			c.Stop(stopreason.SymbolicWriteAddr)
			return
		}
	}

	sinks, reason, ok := c.prop.PropagateInstr(addr, instr)
	if !ok {
		c.Stop(reason)
		return
	}

	for _, mr := range instr.ModifiedRegs {
		c.blockState.RecordRegWrite(c.regs.FullRegOffset(mr.Offset), addr)
	}
	for _, ss := range instr.TaintSinkSrcMap {
		if ss.Sink.Kind == taint.KindTmp {
			c.blockState.RecordTempWrite(ss.Sink.TempID, addr)
		}
	}

	pcOffset := c.regs.FullRegOffset(c.profile.PCRegOffset)
	for _, sym := range sinks {
		switch sym.Sink.Kind {
		case taint.KindReg:
			if c.regs.FullRegOffset(sym.Sink.RegOffset) == pcOffset {
				c.Stop(stopreason.SymbolicPC)
				return
			}
			c.promoteInstr(addr, instr)
		case taint.KindTmp:
			c.promoteInstr(addr, instr)
		case taint.KindMem:
			c.pendingStoreStatus[addr] = sym.Status
			c.promoteInstr(addr, instr)
		}
	}

	if c.prop.AnySymbolic(instr.IteCondEntities) {
		c.Stop(stopreason.SymbolicCondition)
		return
	}
	if addr == c.curBlockEntry.ExitStmtInstrAddr && c.prop.AnySymbolic(c.curBlockEntry.ExitGuardDeps) {
		c.Stop(stopreason.SymbolicBlockExitStmt)
		return
	}
}

func (c *Controller) onMemReadHook(addr uint64, size int, value int64) {
	if c.stopped || c.curBlockEntry == nil {
		return
	}
	instrAddr := c.curInstrAddr

	if c.prop.AddrSymbolic(instrAddr) {
		c.Stop(stopreason.SymbolicReadAddr)
		return
	}
	sym, ok := c.prop.ResolveMemRead(instrAddr, addr, size)
	if !ok {
		return
	}
	// A deferred sink can itself be the Mem sink of a store whose value
	// came from this load (e.g. a memory-to-memory move) — carry its
	// resolved status forward so the mem-write hook journals it right.
	if sym.Sink.Kind == taint.KindMem {
		c.pendingStoreStatus[instrAddr] = sym.Status
	}
	if sym.Status == taint.Concrete {
		return
	}
	instr := c.curBlockEntry.Instrs[instrAddr]
	if instr == nil {
		return
	}
	detail := c.promoteInstr(instrAddr, instr)
	detail.HasMemoryDep = true
	if mv, err := slice.CaptureMemoryValue(c.eng, addr, size); err == nil {
		detail.MemoryValue = mv
	}
}

func (c *Controller) onMemWriteHook(addr uint64, size int, value int64) {
	if c.stopped || c.curBlockEntry == nil {
		return
	}
	instrAddr := c.curInstrAddr
	status := c.pendingStoreStatus[instrAddr]
	isSymbolic := status != taint.Concrete
	c.mem.Activate(addr, nil)
	if size > 1 {
		c.mem.Activate(addr+uint64(size)-1, nil)
	}
	c.jrnl.LogWrite(c.mem, instrAddr, addr, size, isSymbolic)
	if !isSymbolic {
		return
	}
	instr := c.curBlockEntry.Instrs[instrAddr]
	if instr == nil {
		return
	}
	detail := c.promoteInstr(instrAddr, instr)
	detail.HasMemoryDep = true
	if mv, err := slice.CaptureMemoryValue(c.eng, addr, size); err == nil {
		detail.MemoryValue = mv
	}
}

func (c *Controller) onUnmapped(addr uint64, size int, isWrite, isFetch bool) bool {
	if c.pageCache.MapCache(c.eng, addr, uint64(size)) {
		return true
	}
	if isFetch {
		c.Stop(stopreason.Execnone)
	} else {
		c.Stop(stopreason.Segfault)
	}
	return false
}

func (c *Controller) onInterrupt(intno uint32) {
	if c.stopped {
		return
	}
	c.syscallCount++
	c.Stop(stopreason.Syscall)
}

// --- Block finalization ---

// promoteInstr records addr as symbolic for the current block (once),
// capturing the slice of prior register values its sinks depend on.
// Returns a pointer into the block's in-progress symbolic list so the
// caller can attach a captured memory value.
func (c *Controller) promoteInstr(addr uint64, instr *taint.InstructionEntry) *taint.InstrDetails {
	for i := range c.blockSymbolic {
		if c.blockSymbolic[i].InstrAddr == addr {
			return &c.blockSymbolic[i]
		}
	}
	result := c.slicer.ComputeSlice(addr, instr, c.curBlockEntry, c.blockState)
	c.mergeSliceRegisters(result.Registers)
	c.blockSymbolic = append(c.blockSymbolic, taint.InstrDetails{
		InstrAddr:    addr,
		HasMemoryDep: instr.HasMemoryRead || instr.HasMemoryWrite,
	})
	return &c.blockSymbolic[len(c.blockSymbolic)-1]
}

func (c *Controller) mergeSliceRegisters(vals []taint.RegisterValue) {
	for _, v := range vals {
		found := false
		for _, have := range c.blockSliceRegs {
			if have.Offset == v.Offset {
				found = true
				break
			}
		}
		if !found {
			c.blockSliceRegs = append(c.blockSliceRegs, v)
		}
	}
}

// commitBlock applies the current block's journal, records its
// writes for the next block's self-modifying-code check, and, if it
// produced any symbolic instruction, files a BlockDetails entry.
func (c *Controller) commitBlock() {
	for _, e := range c.jrnl.Entries() {
		c.lastBlockWrites = append(c.lastBlockWrites, writeRange{addr: e.Address, end: e.Address + uint64(e.Size)})
	}
	c.jrnl.Commit(c.mem)

	if len(c.blockSymbolic) > 0 {
		sort.Slice(c.blockSymbolic, func(i, j int) bool { return c.blockSymbolic[i].Less(c.blockSymbolic[j]) })
		c.blocksWithSymbolic[c.curBlockAddr] = &BlockDetails{
			BlockAddr:      c.curBlockAddr,
			BlockSize:      c.curBlockSize,
			SymbolicInstrs: append([]taint.InstrDetails(nil), c.blockSymbolic...),
			RegisterValues: append([]taint.RegisterValue(nil), c.blockSliceRegs...),
		}
	}

	c.prop.EndBlock()
	c.curBlockEntry = nil
}

// rollbackBlock restores shadow memory, the persistent symbolic
// register set, and the Engine's own registers to their values at
// block entry, per §8 property 3.
func (c *Controller) rollbackBlock() {
	c.jrnl.Rollback(c.mem)
	c.regs.Restore(c.regSnapshot)
	for off, val := range c.blockEntryRegs {
		if err := c.eng.RegWrite(off, val); err != nil {
			c.logger.Warn("rollback: restoring register failed", log.Ptr("offset", off), zap.Error(err))
		}
	}
	c.prop.EndBlock()
	c.curBlockEntry = nil
}

func snapshotEngineRegs(e *engine.Engine, offsets []uint64) map[uint64]uint64 {
	out := make(map[uint64]uint64, len(offsets))
	for _, off := range offsets {
		val, err := e.RegRead(off)
		if err != nil {
			continue
		}
		out[off] = regValueToUint64(val)
	}
	return out
}

func regValueToUint64(b [taint.MaxRegisterBytes]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// truncateBlock drops every statement at or after the first IMark
// whose instruction runs past ir.MaxBlockSize bytes from block.Addr,
// per spec.md §4.8's block-size limit.
func truncateBlock(block *ir.Block) *ir.Block {
	limit := block.Addr + ir.MaxBlockSize
	stmts := make([]ir.Stmt, 0, len(block.Stmts))
	end := block.Addr
	for _, st := range block.Stmts {
		if st.Kind == ir.IMark {
			if st.MarkAddr+st.MarkLen > limit {
				break
			}
			end = st.MarkAddr + st.MarkLen
		}
		stmts = append(stmts, st)
	}
	return &ir.Block{Addr: block.Addr, Size: end - block.Addr, Stmts: stmts}
}
