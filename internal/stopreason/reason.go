// Package stopreason defines the closed enumeration of reasons an
// execution run can halt, and the partition of that enumeration used
// by the execution controller to decide commit vs. rollback.
package stopreason

// Reason is why a run stopped.
type Reason uint8

const (
	Normal Reason = iota
	Stoppoint
	Error
	Syscall
	Execnone
	Zeropage
	Nostart
	Segfault
	ZeroDiv
	Nodecode
	Hlt
	VexLiftFailed
	SymbolicCondition
	SymbolicPC
	SymbolicReadAddr
	SymbolicReadSymbolicTrackingDisabled
	SymbolicWriteAddr
	SymbolicBlockExitStmt
	MultipleMemoryReads
	UnsupportedStmtPutI
	UnsupportedStmtStoreG
	UnsupportedStmtLoadG
	UnsupportedStmtCAS
	UnsupportedStmtLLSC
	UnsupportedStmtDirty
	UnsupportedStmtUnknown
	UnsupportedExprGetI
	UnsupportedExprUnknown
	UnknownMemoryWrite
	UnknownMemoryRead
)

var names = map[Reason]string{
	Normal:                                "NORMAL",
	Stoppoint:                             "STOPPOINT",
	Error:                                 "ERROR",
	Syscall:                               "SYSCALL",
	Execnone:                              "EXECNONE",
	Zeropage:                              "ZEROPAGE",
	Nostart:                               "NOSTART",
	Segfault:                              "SEGFAULT",
	ZeroDiv:                               "ZERO_DIV",
	Nodecode:                              "NODECODE",
	Hlt:                                   "HLT",
	VexLiftFailed:                         "VEX_LIFT_FAILED",
	SymbolicCondition:                     "SYMBOLIC_CONDITION",
	SymbolicPC:                            "SYMBOLIC_PC",
	SymbolicReadAddr:                      "SYMBOLIC_READ_ADDR",
	SymbolicReadSymbolicTrackingDisabled:  "SYMBOLIC_READ_SYMBOLIC_TRACKING_DISABLED",
	SymbolicWriteAddr:                     "SYMBOLIC_WRITE_ADDR",
	SymbolicBlockExitStmt:                 "SYMBOLIC_BLOCK_EXIT_STMT",
	MultipleMemoryReads:                   "MULTIPLE_MEMORY_READS",
	UnsupportedStmtPutI:                   "UNSUPPORTED_STMT_PUTI",
	UnsupportedStmtStoreG:                 "UNSUPPORTED_STMT_STOREG",
	UnsupportedStmtLoadG:                  "UNSUPPORTED_STMT_LOADG",
	UnsupportedStmtCAS:                    "UNSUPPORTED_STMT_CAS",
	UnsupportedStmtLLSC:                   "UNSUPPORTED_STMT_LLSC",
	UnsupportedStmtDirty:                  "UNSUPPORTED_STMT_DIRTY",
	UnsupportedStmtUnknown:                "UNSUPPORTED_STMT_UNKNOWN",
	UnsupportedExprGetI:                   "UNSUPPORTED_EXPR_GETI",
	UnsupportedExprUnknown:                "UNSUPPORTED_EXPR_UNKNOWN",
	UnknownMemoryWrite:                    "UNKNOWN_MEMORY_WRITE",
	UnknownMemoryRead:                     "UNKNOWN_MEMORY_READ",
}

func (r Reason) String() string {
	if s, ok := names[r]; ok {
		return s
	}
	return "UNKNOWN_STOP_REASON"
}

// IsNormalTermination reports whether r is a clean, expected stop.
func (r Reason) IsNormalTermination() bool {
	switch r {
	case Normal, Stoppoint, Hlt, Syscall:
		return true
	default:
		return false
	}
}

// IsEngineFault reports whether r is a fatal engine-level fault that
// should be reported as-is, with no taint rollback.
func (r Reason) IsEngineFault() bool {
	switch r {
	case Error, Segfault, ZeroDiv, Nodecode, Execnone, Zeropage, Nostart:
		return true
	default:
		return false
	}
}

// IsSymbolicBoundary reports whether r means a symbolic value reached
// a point concrete execution cannot continue past.
func (r Reason) IsSymbolicBoundary() bool {
	switch r {
	case SymbolicPC, SymbolicCondition, SymbolicReadAddr, SymbolicWriteAddr,
		SymbolicBlockExitStmt, SymbolicReadSymbolicTrackingDisabled:
		return true
	default:
		return false
	}
}

// IsCapabilityGap reports whether r means the analyzer or engine hit
// an IR construct or access pattern it cannot reason about.
func (r Reason) IsCapabilityGap() bool {
	switch r {
	case MultipleMemoryReads, VexLiftFailed, UnknownMemoryWrite, UnknownMemoryRead,
		UnsupportedStmtPutI, UnsupportedStmtStoreG, UnsupportedStmtLoadG, UnsupportedStmtCAS,
		UnsupportedStmtLLSC, UnsupportedStmtDirty, UnsupportedStmtUnknown,
		UnsupportedExprGetI, UnsupportedExprUnknown:
		return true
	default:
		return false
	}
}

// RequiresRollback reports whether the controller must rewind the
// current block to its entry state after a run halts with reason r,
// per spec.md §4.8's commit/rollback policy.
func (r Reason) RequiresRollback() bool {
	return r.IsSymbolicBoundary() || r.IsCapabilityGap()
}
