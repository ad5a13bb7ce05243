package stopreason

import "testing"

func TestStringReturnsKnownNames(t *testing.T) {
	if got := Normal.String(); got != "NORMAL" {
		t.Fatalf("expected NORMAL, got %q", got)
	}
	if got := SymbolicPC.String(); got != "SYMBOLIC_PC" {
		t.Fatalf("expected SYMBOLIC_PC, got %q", got)
	}
}

func TestStringFallsBackOnUnknownValue(t *testing.T) {
	if got := Reason(250).String(); got != "UNKNOWN_STOP_REASON" {
		t.Fatalf("expected the fallback name, got %q", got)
	}
}

func TestIsNormalTerminationPartition(t *testing.T) {
	for _, r := range []Reason{Normal, Stoppoint, Hlt, Syscall} {
		if !r.IsNormalTermination() {
			t.Fatalf("expected %v to be a normal termination", r)
		}
	}
	if Segfault.IsNormalTermination() {
		t.Fatalf("expected Segfault not to be a normal termination")
	}
}

func TestIsSymbolicBoundaryAndIsCapabilityGapAreDisjoint(t *testing.T) {
	symbolic := []Reason{SymbolicPC, SymbolicCondition, SymbolicReadAddr, SymbolicWriteAddr,
		SymbolicBlockExitStmt, SymbolicReadSymbolicTrackingDisabled}
	gap := []Reason{MultipleMemoryReads, VexLiftFailed, UnknownMemoryWrite, UnknownMemoryRead,
		UnsupportedStmtPutI, UnsupportedStmtStoreG, UnsupportedStmtLoadG, UnsupportedStmtCAS,
		UnsupportedStmtLLSC, UnsupportedStmtDirty, UnsupportedStmtUnknown,
		UnsupportedExprGetI, UnsupportedExprUnknown}

	for _, r := range symbolic {
		if !r.IsSymbolicBoundary() || r.IsCapabilityGap() {
			t.Fatalf("expected %v to be a symbolic boundary and not a capability gap", r)
		}
	}
	for _, r := range gap {
		if !r.IsCapabilityGap() || r.IsSymbolicBoundary() {
			t.Fatalf("expected %v to be a capability gap and not a symbolic boundary", r)
		}
	}
}

func TestRequiresRollbackCoversBothBoundaryAndGapButNotNormalOrFault(t *testing.T) {
	if !SymbolicPC.RequiresRollback() {
		t.Fatalf("expected a symbolic boundary to require rollback")
	}
	if !UnsupportedStmtDirty.RequiresRollback() {
		t.Fatalf("expected a capability gap to require rollback")
	}
	if Normal.RequiresRollback() {
		t.Fatalf("expected a normal termination not to require rollback")
	}
	if Segfault.RequiresRollback() {
		t.Fatalf("expected an engine fault not to require rollback")
	}
}
