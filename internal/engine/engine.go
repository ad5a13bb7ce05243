// Package engine wraps Unicorn Engine as the concrete CPU emulator
// the execution controller drives (the "Engine" external collaborator
// of spec.md §1). It is deliberately architecture-generic: the six
// profiles in internal/archprofile select which Unicorn arch/mode pair
// to open and which VEX register offset maps to which Unicorn
// register id.
package engine

import (
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/beyonddream/angr/internal/archprofile"
	"github.com/beyonddream/angr/internal/taint"
)

// Default memory layout for a freshly created Engine. A host is free
// to map additional regions (internal/loader does, from an ELF's
// PT_LOAD segments) before execution starts.
const (
	CodeBase  = 0x00010000
	CodeSize  = 0x01000000
	StackBase = 0x80000000
	StackSize = 0x00100000
	HeapBase  = 0x90000000
	HeapSize  = 0x10000000
)

// CodeHookFunc is called for every instruction executed.
type CodeHookFunc func(addr uint64, size uint32)

// BlockHookFunc is called once per basic block, before its
// instructions execute.
type BlockHookFunc func(addr uint64, size uint32)

// MemAccessHookFunc is called on a memory read or write.
type MemAccessHookFunc func(addr uint64, size int, value int64)

// UnmappedHookFunc is called when the guest touches unmapped memory.
// isFetch distinguishes an instruction fetch from a data access, so a
// caller can tell an EXECNONE-shaped fault (fetch from a page with no
// cached coverage) from an ordinary data-access fault. Returning true
// tells Unicorn to treat the access as handled and resume; false lets
// Unicorn raise its normal fault.
type UnmappedHookFunc func(addr uint64, size int, isWrite, isFetch bool) bool

// InterruptHookFunc is called on a software interrupt or syscall trap
// (x86 INT/SYSCALL, ARM SVC, MIPS SYSCALL), intno carrying the
// interrupt vector where the architecture has one.
type InterruptHookFunc func(intno uint32)

// Engine wraps one Unicorn instance plus the architecture profile that
// describes its register layout.
type Engine struct {
	mu      uc.Unicorn
	profile *archprofile.Profile
	regMap  map[uint64]int

	heapPtr uint64
	stopped bool

	codeHooks     []CodeHookFunc
	blockHooks    []BlockHookFunc
	memReadHooks  []MemAccessHookFunc
	memWriteHooks []MemAccessHookFunc
	unmappedHook  UnmappedHookFunc
	interruptHook InterruptHookFunc
}

// New opens a Unicorn instance for profile's architecture/mode and
// maps the default code/stack/heap regions.
func New(profile *archprofile.Profile) (*Engine, error) {
	arch, mode, err := ucArchMode(profile)
	if err != nil {
		return nil, err
	}
	mu, err := uc.NewUnicorn(arch, mode)
	if err != nil {
		return nil, fmt.Errorf("engine: create unicorn: %w", err)
	}

	e := &Engine{
		mu:      mu,
		profile: profile,
		regMap:  regMapFor(profile),
		heapPtr: HeapBase,
	}

	for _, r := range []struct {
		base, size uint64
		name       string
	}{
		{CodeBase, CodeSize, "code"},
		{StackBase, StackSize, "stack"},
		{HeapBase, HeapSize, "heap"},
	} {
		if err := mu.MemMap(r.base, r.size); err != nil {
			mu.Close()
			return nil, fmt.Errorf("engine: map %s (0x%x): %w", r.name, r.base, err)
		}
	}

	if spID, ok := e.regMap[profile.SPRegOffset]; ok {
		if err := mu.RegWrite(spID, StackBase+StackSize-0x1000); err != nil {
			mu.Close()
			return nil, fmt.Errorf("engine: set stack pointer: %w", err)
		}
	}

	if err := e.installHooks(); err != nil {
		mu.Close()
		return nil, err
	}

	return e, nil
}

// Close releases the underlying Unicorn instance.
func (e *Engine) Close() error {
	return e.mu.Close()
}

// Profile returns the architecture profile this engine was opened
// with.
func (e *Engine) Profile() *archprofile.Profile {
	return e.profile
}

func (e *Engine) installHooks() error {
	if _, err := e.mu.HookAdd(uc.HOOK_CODE, func(_ uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}
		for _, h := range e.codeHooks {
			h(addr, size)
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("engine: install code hook: %w", err)
	}

	if _, err := e.mu.HookAdd(uc.HOOK_BLOCK, func(_ uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}
		for _, h := range e.blockHooks {
			h(addr, size)
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("engine: install block hook: %w", err)
	}

	if _, err := e.mu.HookAdd(uc.HOOK_MEM_READ, func(_ uc.Unicorn, access int, addr uint64, size int, value int64) {
		for _, h := range e.memReadHooks {
			h(addr, size, value)
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("engine: install mem-read hook: %w", err)
	}

	if _, err := e.mu.HookAdd(uc.HOOK_MEM_WRITE, func(_ uc.Unicorn, access int, addr uint64, size int, value int64) {
		for _, h := range e.memWriteHooks {
			h(addr, size, value)
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("engine: install mem-write hook: %w", err)
	}

	if _, err := e.mu.HookAdd(uc.HOOK_MEM_UNMAPPED, func(_ uc.Unicorn, access int, addr uint64, size int, value int64) bool {
		if e.unmappedHook == nil {
			return false
		}
		return e.unmappedHook(addr, size, access == uc.MEM_WRITE_UNMAPPED, access == uc.MEM_FETCH_UNMAPPED)
	}, 1, 0); err != nil {
		return fmt.Errorf("engine: install unmapped-access hook: %w", err)
	}

	if _, err := e.mu.HookAdd(uc.HOOK_INTR, func(_ uc.Unicorn, intno uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}
		if e.interruptHook != nil {
			e.interruptHook(intno)
		}
	}, 1, 0); err != nil {
		return fmt.Errorf("engine: install interrupt hook: %w", err)
	}

	return nil
}

// HookCode registers fn to run on every instruction.
func (e *Engine) HookCode(fn CodeHookFunc) { e.codeHooks = append(e.codeHooks, fn) }

// HookBlock registers fn to run once per basic block.
func (e *Engine) HookBlock(fn BlockHookFunc) { e.blockHooks = append(e.blockHooks, fn) }

// HookMemRead registers fn to run on every memory read.
func (e *Engine) HookMemRead(fn MemAccessHookFunc) { e.memReadHooks = append(e.memReadHooks, fn) }

// HookMemWrite registers fn to run on every memory write.
func (e *Engine) HookMemWrite(fn MemAccessHookFunc) { e.memWriteHooks = append(e.memWriteHooks, fn) }

// SetUnmappedHook installs the single handler for unmapped-memory
// faults, replacing any previous one.
func (e *Engine) SetUnmappedHook(fn UnmappedHookFunc) { e.unmappedHook = fn }

// SetInterruptHook installs the single handler for software
// interrupts/syscall traps, replacing any previous one.
func (e *Engine) SetInterruptHook(fn InterruptHookFunc) { e.interruptHook = fn }

// MapRegion maps size bytes at addr, read/write/exec, matching
// pagecache.MemMapper.
func (e *Engine) MapRegion(addr, size uint64) error {
	return e.mu.MemMap(addr, size)
}

// MemWrite writes data at addr.
func (e *Engine) MemWrite(addr uint64, data []byte) error {
	return e.mu.MemWrite(addr, data)
}

// MemReadBytes reads size bytes at addr.
func (e *Engine) MemReadBytes(addr, size uint64) ([]byte, error) {
	return e.mu.MemRead(addr, size)
}

// MemRead reads up to taint.MaxMemAccessBytes bytes at addr, zero-
// padding if size is smaller, satisfying slice.MemReader.
func (e *Engine) MemRead(addr uint64, size int) ([taint.MaxMemAccessBytes]byte, error) {
	var out [taint.MaxMemAccessBytes]byte
	if size > taint.MaxMemAccessBytes {
		size = taint.MaxMemAccessBytes
	}
	data, err := e.mu.MemRead(addr, uint64(size))
	if err != nil {
		return out, err
	}
	copy(out[:], data)
	return out, nil
}

// RegRead reads the register at VEX offset off, satisfying
// slice.RegReader. Returns an error if the profile has no mapping for
// off — the "no such register" case of spec.md §6.
func (e *Engine) RegRead(off uint64) ([taint.MaxRegisterBytes]byte, error) {
	var out [taint.MaxRegisterBytes]byte
	id, ok := e.regMap[off]
	if !ok {
		return out, fmt.Errorf("engine: no such register at offset 0x%x", off)
	}
	val, err := e.mu.RegRead(id)
	if err != nil {
		return out, err
	}
	for i := 0; i < 8; i++ {
		out[i] = byte(val >> (8 * i))
	}
	return out, nil
}

// RegWrite writes val to the register at VEX offset off.
func (e *Engine) RegWrite(off uint64, val uint64) error {
	id, ok := e.regMap[off]
	if !ok {
		return fmt.Errorf("engine: no such register at offset 0x%x", off)
	}
	return e.mu.RegWrite(id, val)
}

// PC returns the current program counter.
func (e *Engine) PC() (uint64, error) {
	id, ok := e.regMap[e.profile.PCRegOffset]
	if !ok {
		return 0, fmt.Errorf("engine: profile %s has no PC register mapping", e.profile.Name)
	}
	return e.mu.RegRead(id)
}

// SetPC sets the program counter.
func (e *Engine) SetPC(val uint64) error {
	return e.RegWrite(e.profile.PCRegOffset, val)
}

// SP returns the current stack pointer.
func (e *Engine) SP() (uint64, error) {
	id, ok := e.regMap[e.profile.SPRegOffset]
	if !ok {
		return 0, fmt.Errorf("engine: profile %s has no SP register mapping", e.profile.Name)
	}
	return e.mu.RegRead(id)
}

// Malloc bump-allocates size bytes (16-byte aligned) from the heap
// region. Panics if the heap is exhausted, since that indicates the
// guest program or test fixture asked for more scratch memory than
// the accelerator was configured with.
func (e *Engine) Malloc(size uint64) uint64 {
	size = (size + 15) &^ 15
	addr := e.heapPtr
	e.heapPtr += size
	if e.heapPtr >= HeapBase+HeapSize {
		panic("engine: heap exhausted")
	}
	return addr
}

// Start runs the guest from addr until end (0 for "run until
// stopped"), or until a hook calls Stop.
func (e *Engine) Start(addr, end uint64) error {
	e.stopped = false
	return e.mu.Start(addr, end)
}

// Stop requests the running emulation halt at the next hook
// invocation.
func (e *Engine) Stop() {
	e.stopped = true
	e.mu.Stop()
}

func ucArchMode(p *archprofile.Profile) (int, int, error) {
	switch p.Name {
	case "x86":
		return uc.ARCH_X86, uc.MODE_32, nil
	case "x86_64":
		return uc.ARCH_X86, uc.MODE_64, nil
	case "arm":
		return uc.ARCH_ARM, uc.MODE_ARM, nil
	case "arm64":
		return uc.ARCH_ARM64, uc.MODE_ARM, nil
	case "mips32":
		return uc.ARCH_MIPS, uc.MODE_MIPS32 | uc.MODE_LITTLE_ENDIAN, nil
	case "mips64":
		return uc.ARCH_MIPS, uc.MODE_MIPS64 | uc.MODE_LITTLE_ENDIAN, nil
	default:
		return 0, 0, fmt.Errorf("engine: unsupported architecture profile %q", p.Name)
	}
}

// regMapFor pairs a profile's VEX register offsets with the Unicorn
// register id holding that register's value, for the subset of
// registers this accelerator actually reads or writes through the
// Engine interface (general-purpose registers, SP, PC). Registers
// absent here simply have no mapping and RegRead/RegWrite report
// "no such register" for them, matching spec.md §6 for anything a
// profile tracks only for taint bookkeeping (e.g. flag bits).
func regMapFor(p *archprofile.Profile) map[uint64]int {
	switch p.Name {
	case "x86_64":
		return map[uint64]int{
			16: uc.X86_REG_RAX, 24: uc.X86_REG_RCX, 32: uc.X86_REG_RDX,
			40: uc.X86_REG_RBX, 48: uc.X86_REG_RSP, 56: uc.X86_REG_RBP,
			64: uc.X86_REG_RSI, 72: uc.X86_REG_RDI, 80: uc.X86_REG_R8,
			88: uc.X86_REG_R9, 184: uc.X86_REG_RIP,
		}
	case "x86":
		return map[uint64]int{
			8: uc.X86_REG_EAX, 12: uc.X86_REG_ECX, 16: uc.X86_REG_EDX,
			20: uc.X86_REG_ESP, 24: uc.X86_REG_EBX, 28: uc.X86_REG_EBP,
			32: uc.X86_REG_ESI, 36: uc.X86_REG_EDI, 68: uc.X86_REG_EIP,
		}
	case "arm":
		return map[uint64]int{
			0: uc.ARM_REG_R0, 4: uc.ARM_REG_R1, 8: uc.ARM_REG_R2, 12: uc.ARM_REG_R3,
			60: uc.ARM_REG_SP, 64: uc.ARM_REG_LR, 68: uc.ARM_REG_PC,
		}
	case "arm64":
		return map[uint64]int{
			16: uc.ARM64_REG_X0, 24: uc.ARM64_REG_X1, 32: uc.ARM64_REG_X2, 40: uc.ARM64_REG_X3,
			840: uc.ARM64_REG_SP, 848: uc.ARM64_REG_PC,
		}
	case "mips32":
		return map[uint64]int{
			0: uc.MIPS_REG_ZERO, 4: uc.MIPS_REG_AT, 8: uc.MIPS_REG_V0, 12: uc.MIPS_REG_V1,
			116: uc.MIPS_REG_SP, 136: uc.MIPS_REG_PC,
		}
	case "mips64":
		return map[uint64]int{
			0: uc.MIPS_REG_ZERO, 8: uc.MIPS_REG_AT, 16: uc.MIPS_REG_V0, 24: uc.MIPS_REG_V1,
			232: uc.MIPS_REG_SP, 272: uc.MIPS_REG_PC,
		}
	default:
		return map[uint64]int{}
	}
}
