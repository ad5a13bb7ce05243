package script

import "testing"

func TestPredicateEvaluatesConcreteRegisters(t *testing.T) {
	p, err := Compile(`regs["16"] == 5`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	stop, err := p.Eval(map[uint64]uint64{16: 5, 24: 3})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !stop {
		t.Errorf("expected predicate to fire when x0 == 5")
	}

	stop, err = p.Eval(map[uint64]uint64{16: 6, 24: 3})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if stop {
		t.Errorf("expected predicate not to fire when x0 != 5")
	}
}

func TestPredicateRegHelper(t *testing.T) {
	p, err := Compile(`reg(16) + reg(24) == 8`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	stop, err := p.Eval(map[uint64]uint64{16: 5, 24: 3})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !stop {
		t.Errorf("expected reg(16)+reg(24)==8 to hold for x0=5,x1=3")
	}
}

func TestPredicateCompileError(t *testing.T) {
	if _, err := Compile(`this is not valid js (((`); err == nil {
		t.Errorf("expected a compile error for malformed source")
	}
}

func TestPredicateMissingOffsetIsZero(t *testing.T) {
	p, err := Compile(`reg(999) == 0`)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	stop, err := p.Eval(map[uint64]uint64{16: 5})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !stop {
		t.Errorf("expected an unseen offset to read as 0")
	}
}
