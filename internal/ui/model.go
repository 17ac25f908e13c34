// ABOUTME: Bubbletea model for the receiver status TUI
// ABOUTME: Shows lock state, recovered rate, clock divider and error counters
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Model represents the TUI state
type Model struct {
	title string

	// Connection
	connected  bool
	sourceName string

	// Receiver
	locked     bool
	sampleRate int
	measured   float64
	divider    int
	unit       float64
	retargets  int
	clients    int

	// Stream
	codec    string
	channels int
	bitDepth int

	// Monitor
	gainDB float64
	muted  bool

	// Counters
	subframes     uint64
	syncLosses    uint64
	parityErrors  uint64
	channelErrors uint64
	blockErrors   uint64
	dropped       uint64
	overwritten   uint64

	showDebug bool
	controls  *Controls

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderReceiver())
	b.WriteString(m.renderCounters())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	conn := "Waiting for line"
	if m.connected {
		conn = m.sourceName
	}

	lock := "✗ Unlocked"
	if m.locked {
		lock = "✓ Locked"
	}

	return fmt.Sprintf("┌─ %-51s┐\n│ Source: %-44s │\n│ Lock:   %-44s │\n├──────────────────────────────────────────────────────┤\n",
		truncate(m.title+" ", 51), truncate(conn, 44), lock)
}

func (m Model) renderReceiver() string {
	rate := "unknown"
	if m.sampleRate > 0 {
		rate = fmt.Sprintf("%d Hz (measured %.0f)", m.sampleRate, m.measured)
	}

	s := fmt.Sprintf("│ Rate:    %-43s │\n", rate)
	s += fmt.Sprintf("│ Divider: %-43d │\n", m.divider)
	if m.codec != "" {
		s += fmt.Sprintf("│ Stream:  %-43s │\n",
			fmt.Sprintf("%s %s %d-bit", m.codec, channelName(m.channels), m.bitDepth))
	}

	gain := fmt.Sprintf("%+.0f dB", m.gainDB)
	if m.muted {
		gain += " (muted)"
	}
	s += fmt.Sprintf("│ Monitor: [%s] %-30s │\n", renderBar(int(m.gainDB+60), 60, 10), gain)
	if m.clients > 0 {
		s += fmt.Sprintf("│ Clients: %-43d │\n", m.clients)
	}
	return s
}

func (m Model) renderCounters() string {
	return fmt.Sprintf("├──────────────────────────────────────────────────────┤\n"+
		"│ Subframes: %-41d │\n"+
		"│ Sync: %-6d Parity: %-6d Channel: %-6d Block: %-3d│\n"+
		"│ Dropped: %-12d Overwritten: %-18d │\n",
		m.subframes, m.syncLosses, m.parityErrors, m.channelErrors, m.blockErrors,
		m.dropped, m.overwritten)
}

func (m Model) renderHelp() string {
	return "│ ↑/↓:Gain  m:Mute  d:Debug  q:Quit                    │\n" +
		"└──────────────────────────────────────────────────────┘\n"
}

func (m Model) renderDebug() string {
	return fmt.Sprintf("│ DEBUG: %.2f ticks/UI, %d retargets%-17s │\n", m.unit, m.retargets, "")
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case "up":
		m.gainDB = min(m.gainDB+3, 0)
		m.sendGain()
	case "down":
		m.gainDB = max(m.gainDB-3, -60)
		m.sendGain()
	case "m":
		m.muted = !m.muted
		m.sendGain()
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

func (m Model) sendGain() {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Gain <- GainChange{DB: m.gainDB, Muted: m.muted}:
	default:
	}
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.SourceName != "" {
		m.sourceName = msg.SourceName
	}
	if msg.Receiver != nil {
		r := msg.Receiver
		m.locked = r.Locked
		m.sampleRate = r.SampleRate
		m.measured = r.Measured
		m.divider = r.Divider
		m.unit = r.Unit
		m.retargets = r.Retargets
		m.clients = r.Clients
		m.subframes = r.Subframes
		m.syncLosses = r.SyncLosses
		m.parityErrors = r.ParityErrors
		m.channelErrors = r.ChannelErrors
		m.blockErrors = r.BlockErrors
		m.dropped = r.Dropped
		m.overwritten = r.Overwritten
	}
	if msg.Codec != "" {
		m.codec = msg.Codec
		m.channels = msg.Channels
		m.bitDepth = msg.BitDepth
	}
}

func renderBar(value, max, width int) string {
	if value < 0 {
		value = 0
	}
	filled := (value * width) / max
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
