// Package script implements conditional concrete stop points: an
// optional per-run JavaScript predicate evaluated against concrete
// register values at block entry, supplementing the address-list
// hard breakpoints of spec.md §6 with a watchpoint-style expression.
//
// The predicate only ever sees concrete uint64 register values taken
// at block entry. It never receives IR, taint state, or anything
// symbolic — evaluating it can't cross into the "do not evaluate
// symbolic expressions" territory this accelerator otherwise stays
// out of.
package script

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dop251/goja"
)

// Predicate is a compiled stop condition. One Predicate is not safe
// for concurrent Eval calls; a Controller evaluates it from a single
// goroutine between blocks, matching every other piece of controller
// state.
type Predicate struct {
	vm   *goja.Runtime
	prog *goja.Program
	regs *goja.Object
}

// Compile parses src as a JavaScript expression or statement list.
// The source may reference a `regs` object, keyed by decimal VEX
// register offset (e.g. `regs["16"] == 5`), and a `reg(offset)`
// helper equivalent to `regs[offset]`. The predicate stops the run
// when the final expression evaluates truthy.
func Compile(src string) (*Predicate, error) {
	prog, err := goja.Compile("stop-predicate", src, false)
	if err != nil {
		return nil, fmt.Errorf("script: compile: %w", err)
	}
	vm := goja.New()
	regs := vm.NewObject()
	if err := vm.Set("regs", regs); err != nil {
		return nil, fmt.Errorf("script: set regs: %w", err)
	}
	if err := vm.Set("reg", func(offset uint64) uint64 {
		v := regs.Get(strconv.FormatUint(offset, 10))
		if v == nil {
			return 0
		}
		return uint64(v.ToInteger())
	}); err != nil {
		return nil, fmt.Errorf("script: set reg helper: %w", err)
	}
	return &Predicate{vm: vm, prog: prog, regs: regs}, nil
}

// Eval runs the predicate against a concrete register snapshot keyed
// by VEX register offset, as captured at block entry.
func (p *Predicate) Eval(regValues map[uint64]uint64) (bool, error) {
	offsets := make([]uint64, 0, len(regValues))
	for off := range regValues {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	for _, off := range offsets {
		if err := p.regs.Set(strconv.FormatUint(off, 10), regValues[off]); err != nil {
			return false, fmt.Errorf("script: set regs[%d]: %w", off, err)
		}
	}
	v, err := p.vm.RunProgram(p.prog)
	if err != nil {
		return false, fmt.Errorf("script: eval: %w", err)
	}
	return v.ToBoolean(), nil
}
