package regstate

import "testing"

func TestMarkRegisterSymbolicCanonicalizesSubRegisters(t *testing.T) {
	s := New(map[uint64]uint64{24: 16}, nil, nil) // offset 24 is a sub-register of 16
	s.MarkRegisterSymbolic(24, true)
	if !s.IsSymbolicRegister(16) {
		t.Fatalf("expected marking the sub-register symbolic to canonicalize to its parent")
	}
	if !s.IsSymbolicRegister(24) {
		t.Fatalf("expected querying via the sub-register to canonicalize too")
	}
}

func TestMarkRegisterConcreteClearsPersistentAndBlockSymbolic(t *testing.T) {
	s := New(nil, nil, nil)
	s.MarkRegisterSymbolic(16, true)
	s.MarkRegisterConcrete(16, true)
	if s.IsSymbolicRegister(16) {
		t.Fatalf("expected MarkRegisterConcrete to clear the persistent symbolic set")
	}
	if s.blockSymbolicRegisters[16] {
		t.Fatalf("expected the block-scoped symbolic set to lose the register too")
	}
	if !s.blockConcreteRegisters[16] {
		t.Fatalf("expected the block-scoped concrete set to gain the register")
	}
}

func TestEndBlockClearsOnlyBlockScopedState(t *testing.T) {
	s := New(nil, nil, nil)
	s.MarkRegisterSymbolic(16, true)
	s.MarkTempSymbolic(5)
	s.EndBlock()

	if !s.IsSymbolicRegister(16) {
		t.Fatalf("expected the persistent symbolic set to survive EndBlock")
	}
	if s.IsSymbolicTemp(5) {
		t.Fatalf("expected EndBlock to discard block-scoped temps")
	}
	if len(s.blockSymbolicRegisters) != 0 {
		t.Fatalf("expected EndBlock to discard the block-scoped symbolic register set")
	}
}

func TestIsValidDependencyRejectsArtificialAndBlacklisted(t *testing.T) {
	s := New(nil, map[uint64]bool{100: true}, map[uint64]bool{200: true})
	if s.IsValidDependency(100) {
		t.Fatalf("expected an artificial register to be an invalid dependency")
	}
	if s.IsValidDependency(200) {
		t.Fatalf("expected a blacklisted register to be an invalid dependency")
	}
	if !s.IsValidDependency(300) {
		t.Fatalf("expected an ordinary register to be a valid dependency")
	}
}

func TestSnapshotRestoreRoundTripsPersistentSetAndClearsBlockState(t *testing.T) {
	s := New(nil, nil, nil)
	s.MarkRegisterSymbolic(16, false)
	snap := s.Snapshot()

	s.MarkRegisterSymbolic(24, true)
	s.MarkTempSymbolic(1)

	s.Restore(snap)
	if s.IsSymbolicRegister(24) {
		t.Fatalf("expected Restore to drop state recorded after the snapshot")
	}
	if !s.IsSymbolicRegister(16) {
		t.Fatalf("expected Restore to keep state recorded before the snapshot")
	}
	if s.IsSymbolicTemp(1) {
		t.Fatalf("expected Restore to clear block-scoped temps")
	}
}

func TestSeedSymbolicMarksEveryOffset(t *testing.T) {
	s := New(nil, nil, nil)
	s.SeedSymbolic([]uint64{1, 2, 3})
	for _, off := range []uint64{1, 2, 3} {
		if !s.IsSymbolicRegister(off) {
			t.Fatalf("expected SeedSymbolic to mark offset %d symbolic", off)
		}
	}
}

func TestSymbolicRegistersReturnsThePersistentSet(t *testing.T) {
	s := New(nil, nil, nil)
	s.MarkRegisterSymbolic(10, false)
	s.MarkRegisterSymbolic(20, false)
	got := s.SymbolicRegisters()
	if len(got) != 2 {
		t.Fatalf("expected 2 symbolic registers, got %v", got)
	}
}
