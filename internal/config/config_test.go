// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Checks defaults, YAML overrides and aggregated validation errors
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/spdif-go/pkg/spdif"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spdif.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
receiver:
  rate_estimate: 96000
  parity: drop
transmitter:
  rate: 44100
  delay: 12
bridge:
  port: 9000
indicator:
  chip: gpiochip0
  offset: 17
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 96000, cfg.Receiver.RateEstimate)
	assert.Equal(t, "drop", cfg.Receiver.Parity)
	assert.Equal(t, "current", cfg.Receiver.Generation, "unset fields keep defaults")
	assert.Equal(t, 44100, cfg.Transmitter.Rate)
	assert.Equal(t, spdif.MasterClock44k1, cfg.TransmitterClock())
	assert.Equal(t, 9000, cfg.Bridge.Port)
	assert.Equal(t, "S/PDIF Bridge", cfg.Bridge.Name)
	assert.Equal(t, 17, cfg.Indicator.Offset)
}

func TestValidateAggregates(t *testing.T) {
	cfg := Default()
	cfg.Receiver.Generation = "xmos1"
	cfg.Receiver.Parity = "ignore"
	cfg.Transmitter.Rate = 12345
	cfg.Bridge.Port = 70000

	err := cfg.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 4)
	assert.ErrorIs(t, err, spdif.ErrDividerRange)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "receiver: [1, 2"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "transmitter:\n  delay: -1\n"))
	assert.ErrorContains(t, err, "transmitter.delay")
}
