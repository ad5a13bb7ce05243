package ir

import "testing"

func TestBlockAccumulatesStatementsInOrder(t *testing.T) {
	b := &Block{Addr: 0x1000}
	b.Stmts = append(b.Stmts,
		Stmt{Kind: IMark, MarkAddr: 0x1000, MarkLen: 4},
		Stmt{Kind: Put, RegOffset: 16, Data: Expr{Kind: Const}},
		Stmt{Kind: Exit, Guard: Expr{Kind: Const}},
	)
	if len(b.Stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d", len(b.Stmts))
	}
	if b.Stmts[0].Kind != IMark || b.Stmts[2].Kind != Exit {
		t.Fatalf("expected statement order to be preserved, got %+v", b.Stmts)
	}
}

func TestConstExprCarriesNoPayload(t *testing.T) {
	c := Expr{Kind: Const}
	if c.TmpID != 0 || c.RegOffset != 0 || c.Args != nil {
		t.Fatalf("expected a Const expression to carry no payload, got %+v", c)
	}
}

func TestMaxBlockSizeIsPositive(t *testing.T) {
	if MaxBlockSize <= 0 {
		t.Fatalf("expected MaxBlockSize to be a positive byte bound, got %d", MaxBlockSize)
	}
}
