// ABOUTME: YAML configuration for the S/PDIF tools
// ABOUTME: Loads engine, bridge and indicator settings and validates them together
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
	"github.com/Resonate-Protocol/spdif-go/pkg/spdif/rx"
)

// Config is the top-level configuration file
type Config struct {
	Receiver    Receiver    `yaml:"receiver"`
	Transmitter Transmitter `yaml:"transmitter"`
	Bridge      Bridge      `yaml:"bridge"`
	Indicator   Indicator   `yaml:"indicator"`
	LogFile     string      `yaml:"log_file"`
}

// Receiver configures the receive engine
type Receiver struct {
	RateEstimate int    `yaml:"rate_estimate"`
	Reference    int    `yaml:"reference"`
	Generation   string `yaml:"generation"` // "current" or "legacy"
	Parity       string `yaml:"parity"`     // "flag" or "drop"
	Capture      string `yaml:"capture"`    // replay this capture instead of a live line
}

// Transmitter configures the transmit engine
type Transmitter struct {
	Rate        int    `yaml:"rate"`
	MasterClock int    `yaml:"master_clock"` // 0 picks the family clock for Rate
	Delay       int    `yaml:"delay"`
	Generation  string `yaml:"generation"`
	Source      string `yaml:"source"`
	Loop        bool   `yaml:"loop"`
}

// Bridge configures the network bridge
type Bridge struct {
	Port int    `yaml:"port"`
	Name string `yaml:"name"`
	MDNS bool   `yaml:"mdns"`
}

// Indicator configures the GPIO lock LED. An empty Chip disables it.
type Indicator struct {
	Chip      string `yaml:"chip"`
	Offset    int    `yaml:"offset"`
	ActiveLow bool   `yaml:"active_low"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Receiver: Receiver{
			RateEstimate: 48000,
			Reference:    rx.DefaultReference,
			Generation:   "current",
			Parity:       "flag",
		},
		Transmitter: Transmitter{
			Rate:       48000,
			Generation: "current",
		},
		Bridge: Bridge{
			Port: 8928,
			Name: "S/PDIF Bridge",
			MDNS: true,
		},
		LogFile: "spdif.log",
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem in the configuration at once
func (c Config) Validate() error {
	var result *multierror.Error

	if _, ok := spdif.ParseGeneration(c.Receiver.Generation); !ok {
		result = multierror.Append(result, fmt.Errorf("receiver.generation: unknown %q", c.Receiver.Generation))
	}
	if _, ok := rx.ParseParityPolicy(c.Receiver.Parity); !ok {
		result = multierror.Append(result, fmt.Errorf("receiver.parity: unknown %q", c.Receiver.Parity))
	}
	if c.Receiver.RateEstimate < 0 {
		result = multierror.Append(result, errors.New("receiver.rate_estimate: must not be negative"))
	}
	if c.Receiver.Reference < 0 {
		result = multierror.Append(result, errors.New("receiver.reference: must not be negative"))
	}

	if _, ok := spdif.ParseGeneration(c.Transmitter.Generation); !ok {
		result = multierror.Append(result, fmt.Errorf("transmitter.generation: unknown %q", c.Transmitter.Generation))
	}
	if c.Transmitter.Delay < 0 {
		result = multierror.Append(result, errors.New("transmitter.delay: must not be negative"))
	}
	if c.Transmitter.Rate <= 0 {
		result = multierror.Append(result, errors.New("transmitter.rate: must be positive"))
	} else if _, err := spdif.TxDivider(c.Transmitter.Rate, c.TransmitterClock()); err != nil {
		result = multierror.Append(result, fmt.Errorf("transmitter.rate: %w", err))
	}

	if c.Bridge.Port < 0 || c.Bridge.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("bridge.port: %d out of range", c.Bridge.Port))
	}
	if c.Indicator.Chip != "" && c.Indicator.Offset < 0 {
		result = multierror.Append(result, errors.New("indicator.offset: must not be negative"))
	}

	return result.ErrorOrNil()
}

// TransmitterClock returns the configured master clock or the family clock
// for the configured rate
func (c Config) TransmitterClock() int {
	if c.Transmitter.MasterClock > 0 {
		return c.Transmitter.MasterClock
	}
	return spdif.MasterClockFor(c.Transmitter.Rate)
}
