// Package watch implements a live TUI over a running controller: the
// `simunicorn watch` subcommand renders the current block, symbolic-
// register count, and journal depth while a run is in flight, and the
// final stop reason once it halts. It is read-only instrumentation
// polling controller.Controller.LiveStatus; it never drives or alters
// execution itself.
package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/beyonddream/angr/internal/controller"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	haltStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
)

// pollInterval is how often the model asks the controller for a fresh
// LiveStatus snapshot while a run is in flight.
const pollInterval = 80 * time.Millisecond

type statusMsg controller.LiveStatus

// Model is a tea.Model over one controller's LiveStatus.
type Model struct {
	ctrl    *controller.Controller
	spinner spinner.Model
	status  controller.LiveStatus
}

// New builds a Model polling ctrl. The caller is responsible for
// running ctrl.Start on its own goroutine before or concurrently with
// the returned program; Model only reads LiveStatus.
func New(ctrl *controller.Controller) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return Model{ctrl: ctrl, spinner: s}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.poll())
}

func (m Model) poll() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg {
		return statusMsg(m.ctrl.LiveStatus())
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
		return m, nil
	case statusMsg:
		m.status = controller.LiveStatus(msg)
		if m.status.Halted {
			return m, tea.Quit
		}
		return m, m.poll()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.status.Halted {
		return fmt.Sprintf(
			"%s\n\n%s %s\n%s 0x%x (%d bytes)\n%s %d\n%s %d\n%s %d\n",
			headerStyle.Render("simunicorn watch"),
			haltStyle.Render("halted:"), m.status.Reason,
			labelStyle.Render("block:"), m.status.BlockAddr, m.status.BlockSize,
			labelStyle.Render("steps:"), m.status.StepsTaken,
			labelStyle.Render("symbolic registers:"), m.status.SymbolicRegisters,
			labelStyle.Render("journal depth:"), m.status.JournalDepth,
		)
	}
	return fmt.Sprintf(
		"%s %s running\n\n%s 0x%x (%d bytes)\n%s %d\n%s %d\n%s %d\n\n%s\n",
		m.spinner.View(), headerStyle.Render("simunicorn watch"),
		labelStyle.Render("block:"), m.status.BlockAddr, m.status.BlockSize,
		labelStyle.Render("steps:"), m.status.StepsTaken,
		labelStyle.Render("symbolic registers:"), m.status.SymbolicRegisters,
		labelStyle.Render("journal depth:"), m.status.JournalDepth,
		labelStyle.Render("(press q to quit)"),
	)
}

// Run starts ctrl's run on its own goroutine via start, then drives a
// bubbletea program rendering its LiveStatus until the run halts or
// the user quits.
func Run(ctrl *controller.Controller, start func()) error {
	go start()
	_, err := tea.NewProgram(New(ctrl)).Run()
	return err
}
