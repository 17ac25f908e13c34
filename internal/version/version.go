// ABOUTME: Version information for the S/PDIF tools
// ABOUTME: Reported in hello messages and the TUI header
package version

// Version is overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.3.0"

const (
	Product      = "spdif-go"
	Manufacturer = "Resonate Protocol"
)
