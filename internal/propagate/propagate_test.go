package propagate

import (
	"testing"

	"github.com/beyonddream/angr/internal/regstate"
	"github.com/beyonddream/angr/internal/shadow"
	"github.com/beyonddream/angr/internal/stopreason"
	"github.com/beyonddream/angr/internal/taint"
)

func newTestEngine() (*Engine, *regstate.State, *shadow.Memory) {
	regs := regstate.New(nil, nil, nil)
	mem := shadow.New()
	return New(regs, mem), regs, mem
}

func TestPropagateConcreteAssignment(t *testing.T) {
	e, regs, _ := newTestEngine()
	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Reg(0x10), Sources: taint.NewSet(taint.Reg(0x18))},
	}
	symbolic, reason, ok := e.PropagateInstr(0x1000, entry)
	if !ok || reason != stopreason.Normal {
		t.Fatalf("PropagateInstr failed: reason=%v ok=%v", reason, ok)
	}
	if len(symbolic) != 0 {
		t.Errorf("expected no symbolic sinks, got %v", symbolic)
	}
	if regs.IsSymbolicRegister(0x10) {
		t.Errorf("reg(0x10) should remain concrete")
	}
}

func TestPropagateSymbolicSourcePropagates(t *testing.T) {
	e, regs, _ := newTestEngine()
	regs.MarkRegisterSymbolic(0x18, false)

	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Reg(0x10), Sources: taint.NewSet(taint.Reg(0x18))},
	}
	symbolic, _, ok := e.PropagateInstr(0x1000, entry)
	if !ok {
		t.Fatalf("PropagateInstr failed")
	}
	if len(symbolic) != 1 || !symbolic[0].Sink.Equal(taint.Reg(0x10)) {
		t.Fatalf("expected reg(0x10) symbolic, got %v", symbolic)
	}
	if !regs.IsSymbolicRegister(0x10) {
		t.Errorf("reg(0x10) should now be symbolic")
	}
}

func TestPropagateChainedSinksSeeEarlierUpdates(t *testing.T) {
	e, regs, _ := newTestEngine()
	regs.MarkRegisterSymbolic(0x30, false)

	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Reg(0x30))},
		{Sink: taint.Reg(0x10), Sources: taint.NewSet(taint.Tmp(1))},
	}
	symbolic, _, ok := e.PropagateInstr(0x2000, entry)
	if !ok {
		t.Fatalf("PropagateInstr failed")
	}
	if len(symbolic) != 2 || !symbolic[0].Sink.Equal(taint.Tmp(1)) || !symbolic[1].Sink.Equal(taint.Reg(0x10)) {
		t.Fatalf("expected tmp(1) and then reg(0x10), which inherits symbolic taint via tmp(1), got %v", symbolic)
	}
}

func TestPropagateDefersMemorySink(t *testing.T) {
	e, _, _ := newTestEngine()
	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Mem(taint.Reg(0x30)))},
	}
	symbolic, reason, ok := e.PropagateInstr(0x3000, entry)
	if !ok || reason != stopreason.Normal {
		t.Fatalf("expected deferral to succeed, got reason=%v ok=%v", reason, ok)
	}
	if len(symbolic) != 0 {
		t.Errorf("expected no immediate symbolic sinks, got %v", symbolic)
	}
	if !e.HasPendingMemRead(0x3000) {
		t.Fatalf("expected instr 0x3000 to have a pending memory read")
	}
}

func TestPropagateSecondMemSinkIsMultipleMemoryReads(t *testing.T) {
	e, _, _ := newTestEngine()
	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Mem(taint.Reg(0x30)))},
		{Sink: taint.Tmp(2), Sources: taint.NewSet(taint.Mem(taint.Reg(0x38)))},
	}
	_, reason, ok := e.PropagateInstr(0x3000, entry)
	if ok || reason != stopreason.MultipleMemoryReads {
		t.Fatalf("expected MultipleMemoryReads, got reason=%v ok=%v", reason, ok)
	}
}

func TestResolveMemReadCleanBytesConcrete(t *testing.T) {
	e, _, mem := newTestEngine()
	mem.Activate(0x4000, nil)
	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Mem(taint.Reg(0x30)))},
	}
	e.PropagateInstr(0x3000, entry)

	sink, ok := e.ResolveMemRead(0x3000, 0x4000, 8)
	if !ok {
		t.Fatalf("expected a pending resolution")
	}
	if sink.Status != taint.Concrete {
		t.Fatalf("expected concrete resolution, got status %v", sink.Status)
	}
	if e.HasPendingMemRead(0x3000) {
		t.Errorf("pending entry should be cleared after resolution")
	}
}

func TestResolveMemReadTaintedBytesSymbolic(t *testing.T) {
	e, _, mem := newTestEngine()
	mem.SetByte(0x4000, taint.Symbolic)
	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Mem(taint.Reg(0x30)))},
	}
	e.PropagateInstr(0x3000, entry)

	sink, ok := e.ResolveMemRead(0x3000, 0x4000, 8)
	if !ok || sink.Status != taint.StatusSymbolic {
		t.Fatalf("expected symbolic resolution from tainted bytes, got status=%v ok=%v", sink.Status, ok)
	}
}

func TestResolveMemReadSymbolicAddrOnly(t *testing.T) {
	e, regs, mem := newTestEngine()
	regs.MarkRegisterSymbolic(0x30, false)
	mem.Activate(0x4000, nil)

	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Mem(taint.Reg(0x30)))},
	}
	e.PropagateInstr(0x3000, entry)

	sink, ok := e.ResolveMemRead(0x3000, 0x4000, 8)
	if !ok || sink.Status != taint.DependsOnReadFromSymbolicAddr {
		t.Fatalf("expected DependsOnReadFromSymbolicAddr, got status=%v ok=%v", sink.Status, ok)
	}
}

func TestEndBlockClearsPendingReads(t *testing.T) {
	e, _, _ := newTestEngine()
	entry := taint.NewInstructionEntry()
	entry.TaintSinkSrcMap = []taint.SinkSources{
		{Sink: taint.Tmp(1), Sources: taint.NewSet(taint.Mem(taint.Reg(0x30)))},
	}
	e.PropagateInstr(0x3000, entry)
	e.EndBlock()
	if e.HasPendingMemRead(0x3000) {
		t.Errorf("EndBlock should discard unresolved pending reads")
	}
}
