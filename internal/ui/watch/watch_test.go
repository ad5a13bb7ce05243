package watch

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/beyonddream/angr/internal/controller"
	"github.com/beyonddream/angr/internal/stopreason"
)

func TestUpdateQuitsOnHaltedStatus(t *testing.T) {
	m := New(nil)
	next, cmd := m.Update(statusMsg(controller.LiveStatus{
		Halted:    true,
		Reason:    stopreason.Execnone,
		BlockAddr: 0x1000,
	}))
	nm := next.(Model)
	if !nm.status.Halted {
		t.Fatalf("expected model status to record halted")
	}
	if cmd == nil {
		t.Fatalf("expected a quit command once halted")
	}
}

func TestUpdateReschedulesPollWhileRunning(t *testing.T) {
	m := New(nil)
	next, cmd := m.Update(statusMsg(controller.LiveStatus{Halted: false, StepsTaken: 3}))
	nm := next.(Model)
	if nm.status.StepsTaken != 3 {
		t.Fatalf("expected status to update, got %+v", nm.status)
	}
	if cmd == nil {
		t.Fatalf("expected a poll command to be scheduled while running")
	}
}

func TestUpdateQuitsOnKeyPress(t *testing.T) {
	m := New(nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected 'q' to produce a quit command")
	}
}
