package colorize

import (
	"strings"
	"testing"
)

func withNoColor(t *testing.T) {
	t.Helper()
	t.Setenv("SIMUNICORN_NO_COLOR", "1")
}

func TestIsDisabledRespectsEnv(t *testing.T) {
	t.Setenv("SIMUNICORN_NO_COLOR", "")
	t.Setenv("NO_COLOR", "")
	if IsDisabled() {
		t.Fatalf("expected colors enabled with no env vars set")
	}
	withNoColor(t)
	if !IsDisabled() {
		t.Fatalf("expected SIMUNICORN_NO_COLOR to disable colors")
	}
}

func TestAddressFormatsAsHexWhenDisabled(t *testing.T) {
	withNoColor(t)
	got := Address(0xdeadbeef)
	if got != "DEADBEEF" {
		t.Fatalf("got %q", got)
	}
}

func TestSymbolicPassesThroughWhenDisabled(t *testing.T) {
	withNoColor(t)
	if got := Symbolic("x0"); got != "x0" {
		t.Fatalf("got %q", got)
	}
}

func TestDisassembleDecodesKnownInstructions(t *testing.T) {
	// MOV X0,#5; RET
	code := []byte{
		0xa0, 0x00, 0x80, 0xd2,
		0xc0, 0x03, 0x5f, 0xd6,
	}
	got := Disassemble(code, 0x1000)
	if len(got) != 2 {
		t.Fatalf("expected 2 decoded instructions, got %d", len(got))
	}
	if got[0].Addr != 0x1000 || got[1].Addr != 0x1004 {
		t.Fatalf("unexpected addresses: %+v", got)
	}
	for _, d := range got {
		if strings.Contains(d.Text, ".word") {
			t.Errorf("expected a real decode for %+v", d)
		}
	}
}

func TestDisassembleFallsBackOnUndecodable(t *testing.T) {
	// all-zero words are not a valid ARM64 encoding
	code := []byte{0x00, 0x00, 0x00, 0x00}
	got := Disassemble(code, 0x2000)
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if !strings.HasPrefix(got[0].Text, ".word") {
		t.Errorf("expected a .word fallback, got %q", got[0].Text)
	}
}
