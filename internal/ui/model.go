// ABOUTME: Bubbletea model for the receiver TUI
// ABOUTME: Renders reception stats, a level meter, and volume controls
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// meterWidth is the character width of the level meter bar.
const meterWidth = 30

// Status is the snapshot the receiver pushes into the TUI.
type Status struct {
	ListenPort      int
	Sender          string
	PacketsReceived uint64
	PacketsLost     uint64
	BytesReceived   uint64
	Malformed       uint64
	SampleRate      uint32
	Channels        uint16
	PeakDB          float64
	Volume          int
	Muted           bool
	Underruns       uint64
}

// Controls carries the callbacks the TUI invokes on key presses.
// Any field may be nil.
type Controls struct {
	OnVolumeChange func(delta int)
	OnMuteToggle   func()
}

// Model is the bubbletea state for the receiver display.
type Model struct {
	status    Status
	controls  Controls
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the periodic redraw.
func (m Model) Init() tea.Cmd {
	return tickEvery()
}

// Update handles key presses, ticks, and status pushes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		case "m":
			if m.controls.OnMuteToggle != nil {
				m.controls.OnMuteToggle()
			}
		case "up", "+", "=":
			if m.controls.OnVolumeChange != nil {
				m.controls.OnVolumeChange(5)
			}
		case "down", "-":
			if m.controls.OnVolumeChange != nil {
				m.controls.OnVolumeChange(-5)
			}
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
		return m, nil
	}

	return m, nil
}

// View renders the receiver dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Shutting down receiver...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	warnStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("196"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Stream Receiver"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Listening: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf(":%d", m.status.ListenPort)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Sender: "))
	sender := m.status.Sender
	if sender == "" {
		sender = "waiting for packets"
	}
	b.WriteString(valueStyle.Render(sender))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Format: "))
	if m.status.SampleRate > 0 {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%d Hz, %d ch",
			m.status.SampleRate, m.status.Channels)))
	} else {
		b.WriteString(valueStyle.Render("unknown"))
	}
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Uptime: "))
	b.WriteString(valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Packets: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%d", m.status.PacketsReceived)))
	b.WriteString(headerStyle.Render("   Lost: "))
	lost := fmt.Sprintf("%d", m.status.PacketsLost)
	if m.status.PacketsLost > 0 {
		b.WriteString(warnStyle.Render(lost))
	} else {
		b.WriteString(valueStyle.Render(lost))
	}
	b.WriteString(headerStyle.Render("   Data: "))
	b.WriteString(valueStyle.Render(formatBytes(m.status.BytesReceived)))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("Level: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("[%s] %+.1f dB",
		levelMeter(m.status.PeakDB), m.status.PeakDB)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Volume: "))
	if m.status.Muted {
		b.WriteString(warnStyle.Render("muted"))
	} else {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%d%%", m.status.Volume)))
	}
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().Faint(true).
		Render("up/down volume | m mute | q quit"))

	return b.String()
}

// levelMeter renders a bar for a level in dBFS between -60 and 0.
func levelMeter(db float64) string {
	normalized := (db + 60) / 60
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}
	filled := int(normalized * meterWidth)
	return strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)
}

// formatBytes renders a byte count as B, KB, or MB.
func formatBytes(n uint64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}
