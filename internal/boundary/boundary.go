// Package boundary implements the external boundary (C9): a flat API
// over a *controller.Controller using only fixed-width scalars and
// slice-of-struct returns, per spec.md §4.9 and §6. It is the shape an
// in-process Go caller uses directly, and the shape a cgo-exported
// build would flatten further (each []T return becoming a
// pointer+count pair freed by the Destroy-equivalent call).
package boundary

import (
	"sort"

	"github.com/beyonddream/angr/internal/archprofile"
	"github.com/beyonddream/angr/internal/controller"
	"github.com/beyonddream/angr/internal/engine"
	"github.com/beyonddream/angr/internal/log"
	"github.com/beyonddream/angr/internal/pagecache"
	"github.com/beyonddream/angr/internal/script"
	"github.com/beyonddream/angr/internal/stopreason"
	"github.com/beyonddream/angr/internal/taint"
)

// BlockSummary mirrors block_details_ret_t: one block's symbolic
// instructions plus the register snapshot needed to replay them.
type BlockSummary struct {
	BlockAddr      uint64
	BlockSize      uint64
	SymbolicInstrs []taint.InstrDetails
	RegisterValues []taint.RegisterValue
}

func fromBlockDetails(d controller.BlockDetails) BlockSummary {
	return BlockSummary{
		BlockAddr:      d.BlockAddr,
		BlockSize:      d.BlockSize,
		SymbolicInstrs: d.SymbolicInstrs,
		RegisterValues: d.RegisterValues,
	}
}

// Boundary wraps one Controller with the idempotent, flat-array
// config surface of §6. Every set_* call is safe to repeat with the
// same argument list: the held state compares equal and the
// underlying Controller is not re-touched.
type Boundary struct {
	ctrl *controller.Controller

	stops       []uint64
	symbolicReg []uint64

	lastStop controller.StopDetails
}

// New allocates a controller for sessionKey under profile, lifting
// blocks via lifter, matching alloc(engine, session_key).
func New(sessionKey uint64, profile *archprofile.Profile, lifter controller.Lifter, logger *log.Logger) (*Boundary, error) {
	c, err := controller.New(sessionKey, profile, lifter, logger)
	if err != nil {
		return nil, err
	}
	return &Boundary{ctrl: c}, nil
}

// Destroy releases the controller. In-process Go callers don't need
// it (the GC reclaims everything once b is unreferenced); it exists
// for API parity with the original's dealloc and with a hypothetical
// cgo-exported build where the host must free explicitly.
func (b *Boundary) Destroy() error { return b.ctrl.Close() }

func dedupSorted(vals []uint64) []uint64 {
	out := append([]uint64(nil), vals...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, v := range out {
		if i == 0 || v != out[i-1] {
			out[n] = v
			n++
		}
	}
	return out[:n]
}

func sameUint64(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SetStops installs the hard-breakpoint list, de-duplicated and
// sorted. Calling it twice with the same (unordered, possibly
// duplicate-laden) list is a no-op on the held state.
func (b *Boundary) SetStops(addresses []uint64) {
	next := dedupSorted(addresses)
	if sameUint64(b.stops, next) {
		return
	}
	b.stops = next
	b.ctrl.SetStops(next)
}

// SymbolicRegisterData seeds the initially-symbolic register set,
// matching symbolic_register_data(count, offsets). Idempotent the
// same way SetStops is.
func (b *Boundary) SymbolicRegisterData(offsets []uint64) {
	next := dedupSorted(offsets)
	if sameUint64(b.symbolicReg, next) {
		return
	}
	b.symbolicReg = next
	b.ctrl.SeedSymbolicRegisters(next)
}

// SetStopPredicate installs a supplemented concrete watchpoint
// expression, evaluated at every block entry alongside SetStops. Pass
// nil to clear it.
func (b *Boundary) SetStopPredicate(pred *script.Predicate) {
	b.ctrl.SetStopPredicate(pred)
}

// CachePage matches cache_page(addr, len, bytes, perms).
func (b *Boundary) CachePage(addr uint64, bytes []byte, perms pagecache.Perms) bool {
	return b.ctrl.CachePage(addr, bytes, perms)
}

// UncachePagesTouchingRegion matches uncache_pages_touching_region(addr, len).
func (b *Boundary) UncachePagesTouchingRegion(addr, length uint64) {
	b.ctrl.UncachePagesTouchingRegion(addr, length)
}

// ClearPageCache matches clear_page_cache().
func (b *Boundary) ClearPageCache() { b.ctrl.ClearPageCache() }

// InCache matches in_cache(addr).
func (b *Boundary) InCache(addr uint64) bool { return b.ctrl.InCache(addr) }

// Activate matches activate(addr, len, taint_init).
func (b *Boundary) Activate(addr, length uint64, symbolic bool) {
	b.ctrl.Activate(addr, length, symbolic)
}

// Start matches start(pc, step) -> status.
func (b *Boundary) Start(pc uint64, maxSteps uint64) StopDetails {
	b.lastStop = b.ctrl.Start(pc, maxSteps)
	return fromStopDetails(b.lastStop)
}

// Stop matches stop(reason).
func (b *Boundary) Stop(reason stopreason.Reason) { b.ctrl.Stop(reason) }

// GetStopDetails matches get_stop_details() -> {reason, block_addr, block_size}.
func (b *Boundary) GetStopDetails() StopDetails { return fromStopDetails(b.lastStop) }

// StopDetails is the boundary-facing shape of a halted run's status.
type StopDetails struct {
	Reason    stopreason.Reason
	BlockAddr uint64
	BlockSize uint64
}

func fromStopDetails(d controller.StopDetails) StopDetails {
	return StopDetails{Reason: d.Reason, BlockAddr: d.BlockAddr, BlockSize: d.BlockSize}
}

// LiveStatus returns a point-in-time snapshot of a run in progress,
// safe to call from a goroutine other than the one driving Start —
// the shape internal/ui/watch polls for its live display.
func (b *Boundary) LiveStatus() controller.LiveStatus { return b.ctrl.LiveStatus() }

// BBLAddrs matches bbl_addrs() / bbl_addr_count().
func (b *Boundary) BBLAddrs() []uint64 { return b.ctrl.BBLAddrs() }

// StackPointers matches stack_pointers().
func (b *Boundary) StackPointers() []uint64 { return b.ctrl.StackPointers() }

// ExecutedPages matches executed_pages().
func (b *Boundary) ExecutedPages() []uint64 { return b.ctrl.ExecutedPages() }

// SyscallCount matches syscall_count().
func (b *Boundary) SyscallCount() uint64 { return b.ctrl.SyscallCount() }

// GetSymbolicRegisters matches get_symbolic_registers(out_buf).
func (b *Boundary) GetSymbolicRegisters() []uint64 { return b.ctrl.SymbolicRegisters() }

// GetCountOfBlocksWithSymbolicInstrs matches
// get_count_of_blocks_with_symbolic_instrs().
func (b *Boundary) GetCountOfBlocksWithSymbolicInstrs() int {
	return len(b.ctrl.BlocksWithSymbolicInstrs())
}

// GetDetailsOfBlocksWithSymbolicInstrs matches
// get_details_of_blocks_with_symbolic_instrs(out_array).
func (b *Boundary) GetDetailsOfBlocksWithSymbolicInstrs() []BlockSummary {
	details := b.ctrl.BlocksWithSymbolicInstrs()
	out := make([]BlockSummary, len(details))
	for i, d := range details {
		out[i] = fromBlockDetails(d)
	}
	return out
}

// Engine exposes the underlying controller's Engine for callers that
// need to seed memory directly (e.g. internal/loader), matching the
// original's expectation that the host maps guest memory before the
// first start().
func (b *Boundary) Engine() *engine.Engine { return b.ctrl.Engine() }

// Controller exposes the underlying *controller.Controller for callers
// that need the richer Go API directly, such as internal/ui/watch's
// LiveStatus poller, which the flat boundary surface doesn't carry.
func (b *Boundary) Controller() *controller.Controller { return b.ctrl }
