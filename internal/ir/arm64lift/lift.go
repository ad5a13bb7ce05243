// Package arm64lift is a best-effort ARM64-to-IR lifter used by the
// CLI to drive a controller against real guest code without a
// production VEX lifter wired in. It only understands the register
// subset internal/engine's ARM64 profile actually maps (X0-X3, SP,
// PC) and a small instruction set built on them (moves, adds,
// subtracts, loads, stores, compares, branches); anything else is
// lifted as an ir.Dirty statement, which the analyzer correctly
// treats as unsupported; the controller then stops the run with
// UNSUPPORTED_STMT_DIRTY when it enters that block. A host wiring in a real lifter (pyvex-backed
// or otherwise) replaces this package wholesale — it is not part of
// the accelerator's core contract (see internal/ir's doc comment).
package arm64lift

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"

	"github.com/beyonddream/angr/internal/ir"
)

// Register offsets, matching internal/archprofile's arm64 profile and
// the subset internal/engine's regMapFor actually wires to Unicorn.
const (
	offX0    = 16
	offX1    = 24
	offX2    = 32
	offX3    = 40
	offSP    = 840
	offPC    = 848
	offFlags = 856
)

func regOffset(r arm64asm.Reg) (uint64, bool) {
	switch r {
	case arm64asm.X0:
		return offX0, true
	case arm64asm.X1:
		return offX1, true
	case arm64asm.X2:
		return offX2, true
	case arm64asm.X3:
		return offX3, true
	case arm64asm.XZR:
		return 0, false
	}
	return 0, false
}

func regSPOffset(r arm64asm.RegSP) (uint64, bool) {
	// SP and XZR share an encoding (31) in the ARM64 instruction set;
	// arm64asm.RegSP carries which one a given operand means, so check
	// it before falling through to the general register map.
	if arm64asm.Reg(r) == arm64asm.SP {
		return offSP, true
	}
	return regOffset(arm64asm.Reg(r))
}

// MemRead is the byte-reading callback the lifter uses to decode
// guest instructions at addr, matching the shape a page-cache-backed
// Engine.MemRead already provides.
type MemRead func(addr uint64, size int) ([]byte, error)

// Lift decodes up to ir.MaxBlockSize bytes of guest code starting at
// addr into an IR block, stopping at the first unconditional control
// transfer (B, BL, RET) or once the byte budget is exhausted,
// matching the controller's expectation that a Lifter returns one
// basic block per call.
func Lift(addr uint64, read MemRead) (*ir.Block, error) {
	block := &ir.Block{Addr: addr}
	cur := addr
	for cur-addr+4 <= ir.MaxBlockSize {
		code, err := read(cur, 4)
		if err != nil {
			if cur == addr {
				return nil, fmt.Errorf("arm64lift: read at 0x%x: %w", cur, err)
			}
			break
		}
		inst, decErr := arm64asm.Decode(code)
		block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.IMark, MarkAddr: cur, MarkLen: 4})
		if decErr != nil {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			cur += 4
			continue
		}
		terminal := liftInst(block, cur, inst)
		cur += 4
		if terminal {
			break
		}
	}
	block.Size = cur - addr
	return block, nil
}

func constExpr() ir.Expr { return ir.Expr{Kind: ir.Const} }
func getExpr(off uint64) ir.Expr { return ir.Expr{Kind: ir.Get, RegOffset: off} }
func binop(a, b ir.Expr) ir.Expr { return ir.Expr{Kind: ir.Binop, Args: []ir.Expr{a, b}} }

func liftInst(block *ir.Block, addr uint64, inst arm64asm.Inst) (terminal bool) {
	switch inst.Op {
	case arm64asm.MOVZ, arm64asm.MOVN, arm64asm.MOV:
		dst, data, ok := movOperands(inst)
		if !ok {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		block.Stmts = append(block.Stmts, ir.Stmt{
			Kind: ir.Put, InstrAddr: addr, RegOffset: dst, Data: data,
		})

	case arm64asm.ADD, arm64asm.SUB, arm64asm.SUBS:
		dst, lhs, rhs, ok := arithOperands(inst)
		if !ok {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		result := binop(lhs, rhs)
		if dst == offFlags {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Put, InstrAddr: addr, RegOffset: offFlags, Data: result})
		} else {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Put, InstrAddr: addr, RegOffset: dst, Data: result})
			if inst.Op == arm64asm.SUBS {
				block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Put, InstrAddr: addr, RegOffset: offFlags, Data: result})
			}
		}

	case arm64asm.CMP:
		rn, ok1 := inst.Args[0].(arm64asm.Reg)
		lhsOff, ok2 := regOffset(rn)
		if !ok1 || !ok2 {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		rhs, ok3 := operandExpr(inst.Args[1])
		if !ok3 {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		block.Stmts = append(block.Stmts, ir.Stmt{
			Kind: ir.Put, InstrAddr: addr, RegOffset: offFlags,
			Data: binop(getExpr(lhsOff), rhs),
		})

	case arm64asm.LDR:
		dst, ok1 := inst.Args[0].(arm64asm.Reg)
		mem, ok2 := inst.Args[1].(arm64asm.MemImmediate)
		dstOff, ok3 := regOffset(dst)
		if !ok1 || !ok2 || !ok3 {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		baseOff, ok4 := regSPOffset(mem.Base)
		if !ok4 {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		addrExpr := getExpr(baseOff)
		block.Stmts = append(block.Stmts, ir.Stmt{
			Kind: ir.Put, InstrAddr: addr, RegOffset: dstOff,
			Data: ir.Expr{Kind: ir.Load, LoadAddr: &addrExpr, LoadSize: 8},
		})

	case arm64asm.STR:
		src, ok1 := inst.Args[0].(arm64asm.Reg)
		mem, ok2 := inst.Args[1].(arm64asm.MemImmediate)
		srcOff, ok3 := regOffset(src)
		if !ok1 || !ok2 || !ok3 {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		baseOff, ok4 := regSPOffset(mem.Base)
		if !ok4 {
			block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
			return false
		}
		block.Stmts = append(block.Stmts, ir.Stmt{
			Kind: ir.Store, InstrAddr: addr, Addr: getExpr(baseOff), Data: getExpr(srcOff),
		})

	case arm64asm.NOP:
		block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.NoOp})

	case arm64asm.B, arm64asm.BL:
		target := uint64(0)
		if rel, ok := inst.Args[0].(arm64asm.PCRel); ok {
			target = addr + uint64(rel)
		}
		block.Stmts = append(block.Stmts, ir.Stmt{
			Kind: ir.Exit, InstrAddr: addr, Guard: constExpr(), Target: target,
		})
		return true

	case arm64asm.RET:
		block.Stmts = append(block.Stmts, ir.Stmt{
			Kind: ir.Exit, InstrAddr: addr, Guard: constExpr(),
		})
		return true

	default:
		block.Stmts = append(block.Stmts, ir.Stmt{Kind: ir.Dirty})
	}
	return false
}

func movOperands(inst arm64asm.Inst) (dst uint64, data ir.Expr, ok bool) {
	dstReg, ok1 := inst.Args[0].(arm64asm.Reg)
	dstOff, ok2 := regOffset(dstReg)
	if !ok1 || !ok2 {
		return 0, ir.Expr{}, false
	}
	src, ok3 := operandExpr(inst.Args[1])
	if !ok3 {
		return 0, ir.Expr{}, false
	}
	return dstOff, src, true
}

func arithOperands(inst arm64asm.Inst) (dstOff uint64, lhs, rhs ir.Expr, ok bool) {
	dstReg, ok1 := inst.Args[0].(arm64asm.Reg)
	dOff, ok2 := regOffset(dstReg)
	lhsReg, ok3 := inst.Args[1].(arm64asm.Reg)
	lOff, ok4 := regOffset(lhsReg)
	if !ok1 || !ok3 || !ok4 {
		return 0, ir.Expr{}, ir.Expr{}, false
	}
	rhsExpr, ok5 := operandExpr(inst.Args[2])
	if !ok5 {
		return 0, ir.Expr{}, ir.Expr{}, false
	}
	if !ok2 {
		// WZR/XZR destination: the instruction only computes flags
		// (e.g. CMP lowered as SUBS with a discarded destination).
		return offFlags, getExpr(lOff), rhsExpr, true
	}
	return dOff, getExpr(lOff), rhsExpr, true
}

func operandExpr(arg arm64asm.Arg) (ir.Expr, bool) {
	switch v := arg.(type) {
	case arm64asm.Reg:
		if off, ok := regOffset(v); ok {
			return getExpr(off), true
		}
		if v == arm64asm.XZR {
			return constExpr(), true
		}
	case arm64asm.Imm:
		return constExpr(), true
	case arm64asm.Imm64:
		return constExpr(), true
	}
	return ir.Expr{}, false
}
