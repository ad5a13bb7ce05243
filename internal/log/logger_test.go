package log

import "testing"

func TestNewNopDoesNotPanic(t *testing.T) {
	l := NewNop()
	l.Info("hello")
	l.WithCategory("controller").Warn("still fine")
}

func TestHexFormatsWithoutLeadingZeros(t *testing.T) {
	if got := Hex(0); got != "0x0" {
		t.Fatalf("Hex(0) = %q, want 0x0", got)
	}
	if got := Hex(0x1000); got != "0x1000" {
		t.Fatalf("Hex(0x1000) = %q, want 0x1000", got)
	}
	if got := Hex(0xdeadbeef); got != "0xdeadbeef" {
		t.Fatalf("Hex(0xdeadbeef) = %q, want 0xdeadbeef", got)
	}
}

func TestFieldHelpersCarryExpectedKeys(t *testing.T) {
	if f := Addr(0x40000000); f.Key != "addr" || f.String != "0x40000000" {
		t.Fatalf("Addr field = %+v", f)
	}
	if f := Size(128); f.Key != "size" || f.Integer != 128 {
		t.Fatalf("Size field = %+v", f)
	}
	if f := Ptr("offset", 8); f.Key != "offset" || f.String != "0x8" {
		t.Fatalf("Ptr field = %+v", f)
	}
	if f := Fn("memcpy"); f.Key != "fn" || f.String != "memcpy" {
		t.Fatalf("Fn field = %+v", f)
	}
}

func TestWithCategoryPreservesUnderlyingLogger(t *testing.T) {
	l := NewNop().WithCategory("loader")
	if l == nil || l.Logger == nil {
		t.Fatalf("expected a usable logger with category preset")
	}
}
