// ABOUTME: Receiver TUI wrapper around the bubbletea program
// ABOUTME: Non-blocking status pushes and a quit signal channel
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// TUI runs the receiver display in its own goroutine and accepts
// status pushes from the network side.
type TUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{}
}

// New creates a TUI. Start must be called to run it.
func New() *TUI {
	return &TUI{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
}

// Start runs the bubbletea program until quit. Blocks.
func (t *TUI) Start(port int, controls Controls) error {
	m := Model{
		status:    Status{ListenPort: port, Volume: 100},
		controls:  controls,
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}

	t.program = tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		for status := range t.updates {
			if t.program != nil {
				t.program.Send(statusMsg(status))
			}
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update pushes a status snapshot; drops it if the TUI is busy.
func (t *TUI) Update(status Status) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop quits the program.
func (t *TUI) Stop() {
	if t.program != nil {
		t.program.Quit()
	}
	close(t.updates)
}

// QuitChan signals when the user asked to quit.
func (t *TUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
