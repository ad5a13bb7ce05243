package arm64lift

import (
	"fmt"
	"testing"

	"github.com/beyonddream/angr/internal/ir"
)

// ARM64: MOV X0,#5; MOV X1,#3; ADD X2,X0,X1; RET — the same fixture
// internal/controller's tests write into the Engine for this sequence.
var addTestCode = []byte{
	0xa0, 0x00, 0x80, 0xd2,
	0x61, 0x00, 0x80, 0xd2,
	0x02, 0x00, 0x01, 0x8b,
	0xc0, 0x03, 0x5f, 0xd6,
}

func readFrom(code []byte, base uint64) MemRead {
	return func(addr uint64, size int) ([]byte, error) {
		off := addr - base
		if off+uint64(size) > uint64(len(code)) {
			return nil, fmt.Errorf("out of range: 0x%x", addr)
		}
		return code[off : off+uint64(size)], nil
	}
}

func TestLiftAddSequenceStopsAtRET(t *testing.T) {
	const base = 0x10000
	block, err := Lift(base, readFrom(addTestCode, base))
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	if block.Size != 16 {
		t.Fatalf("expected a 16-byte block, got %d", block.Size)
	}

	var puts []uint64
	sawExit := false
	for _, st := range block.Stmts {
		switch st.Kind {
		case ir.Put:
			puts = append(puts, st.RegOffset)
		case ir.Exit:
			sawExit = true
		case ir.Dirty:
			t.Fatalf("expected every instruction in this sequence to lift cleanly, got ir.Dirty")
		}
	}
	if !sawExit {
		t.Fatalf("expected RET to lift to an ir.Exit statement")
	}
	want := []uint64{offX0, offX1, offX2}
	if len(puts) != len(want) {
		t.Fatalf("expected Puts to %v, got %v", want, puts)
	}
	for i, off := range want {
		if puts[i] != off {
			t.Fatalf("Put[%d] = %d, want %d", i, puts[i], off)
		}
	}
}

func TestLiftAddInstructionHasTwoSources(t *testing.T) {
	const base = 0x20000
	block, err := Lift(base, readFrom(addTestCode, base))
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	for _, st := range block.Stmts {
		if st.Kind == ir.Put && st.RegOffset == offX2 {
			if st.Data.Kind != ir.Binop || len(st.Data.Args) != 2 {
				t.Fatalf("expected ADD to lift to a two-argument Binop, got %+v", st.Data)
			}
			if st.Data.Args[0].RegOffset != offX0 || st.Data.Args[1].RegOffset != offX1 {
				t.Fatalf("expected ADD's operands to read X0 and X1, got %+v", st.Data.Args)
			}
			return
		}
	}
	t.Fatalf("expected a Put to X2 in the lifted block")
}

func TestLiftStopsAtMaxBlockSize(t *testing.T) {
	code := make([]byte, ir.MaxBlockSize+64)
	for i := 0; i < len(code); i += 4 {
		copy(code[i:i+4], []byte{0x1f, 0x20, 0x03, 0xd5}) // NOP
	}
	const base = 0x30000
	block, err := Lift(base, readFrom(code, base))
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	if block.Size > ir.MaxBlockSize {
		t.Fatalf("expected block size capped at %d, got %d", ir.MaxBlockSize, block.Size)
	}
}

func TestLiftUndecodableBytesBecomeDirty(t *testing.T) {
	code := []byte{0xff, 0xff, 0xff, 0xff, 0xc0, 0x03, 0x5f, 0xd6}
	const base = 0x40000
	block, err := Lift(base, readFrom(code, base))
	if err != nil {
		t.Fatalf("Lift: %v", err)
	}
	var sawDirty bool
	for _, st := range block.Stmts {
		if st.Kind == ir.Dirty {
			sawDirty = true
		}
	}
	if !sawDirty {
		t.Fatalf("expected an undecodable opcode to lift to ir.Dirty")
	}
}

func TestLiftErrorsWhenFirstReadFails(t *testing.T) {
	_, err := Lift(0x50000, func(addr uint64, size int) ([]byte, error) {
		return nil, fmt.Errorf("unmapped")
	})
	if err == nil {
		t.Fatalf("expected an error when the first instruction can't be read")
	}
}
