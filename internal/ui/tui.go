// ABOUTME: TUI initialization and control channels
// ABOUTME: Wraps the bubbletea program for the bridge and monitor
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Resonate-Protocol/spdif-go/pkg/protocol"
)

// StatusMsg updates TUI state. Nil and zero fields leave state unchanged.
type StatusMsg struct {
	Connected  *bool
	SourceName string
	Receiver   *protocol.ReceiverStatus
	Codec      string
	Channels   int
	BitDepth   int
}

// GainChange is sent when the user adjusts monitor gain or mute
type GainChange struct {
	DB    float64
	Muted bool
}

// Controls carries user input out of the TUI
type Controls struct {
	Gain chan GainChange
	Quit chan struct{}
}

// NewControls creates the control channels
func NewControls() *Controls {
	return &Controls{
		Gain: make(chan GainChange, 10),
		Quit: make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(title string, controls *Controls) Model {
	return Model{
		title:    title,
		controls: controls,
	}
}

// Run creates the TUI program; the caller starts it with p.Run()
func Run(title string, controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(title, controls), tea.WithAltScreen())
}
