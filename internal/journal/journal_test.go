package journal

import (
	"testing"

	"github.com/beyonddream/angr/internal/shadow"
	"github.com/beyonddream/angr/internal/taint"
)

func TestLogWriteRequiresAnActivatedPage(t *testing.T) {
	mem := shadow.New()
	j := New()
	if j.LogWrite(mem, 0x1000, 0x2000, 4, false) {
		t.Fatalf("expected LogWrite to fail on an unactivated page")
	}
}

func TestLogWriteRejectsOversizedWrites(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x2000, nil)
	j := New()
	if j.LogWrite(mem, 0x1000, 0x2000, MaxWriteBytes+1, false) {
		t.Fatalf("expected LogWrite to reject a write larger than MaxWriteBytes")
	}
}

func TestLogWriteMarksDirtyForConcreteWrites(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x3000, nil)
	j := New()
	if !j.LogWrite(mem, 0x1004, 0x3000, 4, false) {
		t.Fatalf("expected LogWrite to succeed")
	}
	b, _ := mem.Lookup(0x3000)
	if b != taint.Dirty {
		t.Fatalf("expected a concrete write to mark Dirty, got %v", b)
	}
	if j.Len() != 1 {
		t.Fatalf("expected one pending entry, got %d", j.Len())
	}
}

func TestLogWriteMarksSymbolicForSymbolicWrites(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x4000, nil)
	j := New()
	j.LogWrite(mem, 0x1008, 0x4000, 2, true)
	b, _ := mem.Lookup(0x4000)
	if b != taint.Symbolic {
		t.Fatalf("expected a symbolic write to mark Symbolic, got %v", b)
	}
}

func TestCommitClearsDirtyBitsAndBuildsTaintMap(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x5000, nil)
	j := New()
	j.LogWrite(mem, 0x100c, 0x5000, 4, false)

	writes := j.Commit(mem)
	if writes[0x100c] != false {
		t.Fatalf("expected the committed write's taint map entry to be false (concrete)")
	}
	b, _ := mem.Lookup(0x5000)
	if b != taint.None {
		t.Fatalf("expected Commit to clear the pending Dirty mark back to None, got %v", b)
	}
	if j.Len() != 0 {
		t.Fatalf("expected Commit to empty the journal")
	}
}

func TestCommitLeavesSymbolicMarksInPlace(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x6000, nil)
	j := New()
	j.LogWrite(mem, 0x1010, 0x6000, 1, true)
	j.Commit(mem)

	b, _ := mem.Lookup(0x6000)
	if b != taint.Symbolic {
		t.Fatalf("expected Commit to leave a Symbolic mark in place, got %v", b)
	}
}

func TestRollbackRestoresPriorTaint(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x7000, nil)
	mem.SetByte(0x7000, taint.Symbolic)

	j := New()
	j.LogWrite(mem, 0x1014, 0x7000, 1, false)
	b, _ := mem.Lookup(0x7000)
	if b != taint.Dirty {
		t.Fatalf("expected the pending write to mark Dirty before rollback, got %v", b)
	}

	j.Rollback(mem)
	b, _ = mem.Lookup(0x7000)
	if b != taint.Symbolic {
		t.Fatalf("expected Rollback to restore the prior Symbolic taint, got %v", b)
	}
	if j.Len() != 0 {
		t.Fatalf("expected Rollback to empty the journal")
	}
}

func TestEntriesReturnsLogOrder(t *testing.T) {
	mem := shadow.New()
	mem.Activate(0x8000, nil)
	j := New()
	j.LogWrite(mem, 0x1, 0x8000, 1, false)
	j.LogWrite(mem, 0x2, 0x8001, 1, false)

	entries := j.Entries()
	if len(entries) != 2 || entries[0].InstrAddr != 0x1 || entries[1].InstrAddr != 0x2 {
		t.Fatalf("expected entries in log order, got %+v", entries)
	}
}
