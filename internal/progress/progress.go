// Package progress shows a spinner while a blocking model call is in flight.
package progress

import (
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	labelStyle   = lipgloss.NewStyle().Faint(true)
)

type doneMsg struct{}

type model struct {
	spinner spinner.Model
	label   string
	done    bool
}

func newModel(label string) model {
	return model{
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle)),
		label:   label,
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) View() string {
	if m.done {
		return ""
	}
	return m.spinner.View() + " " + labelStyle.Render(m.label) + "\n"
}

// Indicator is a running spinner. Stop it exactly once.
type Indicator struct {
	program *tea.Program
	exited  chan struct{}
}

// Start renders a spinner labelled with label to w (stderr when nil) until
// Stop is called. Keyboard input and signal handling are left to the caller.
func Start(w io.Writer, label string) *Indicator {
	if w == nil {
		w = os.Stderr
	}
	program := tea.NewProgram(newModel(label),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	ind := &Indicator{program: program, exited: make(chan struct{})}
	go func() {
		defer close(ind.exited)
		_, _ = program.Run()
	}()
	return ind
}

// Stop clears the spinner and waits for the renderer to exit.
func (ind *Indicator) Stop() {
	ind.program.Send(doneMsg{})
	<-ind.exited
}

// Run calls fn, showing a spinner on stderr meanwhile when show is set.
func Run[T any](show bool, label string, fn func() (T, error)) (T, error) {
	if !show {
		return fn()
	}
	ind := Start(nil, label)
	defer ind.Stop()
	return fn()
}
