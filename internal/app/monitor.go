// ABOUTME: Monitor application orchestration
// ABOUTME: Finds a bridge, plays its stream locally and forwards receiver status to the UI
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Resonate-Protocol/spdif-go/internal/discovery"
	"github.com/Resonate-Protocol/spdif-go/internal/ui"
	"github.com/Resonate-Protocol/spdif-go/internal/version"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio/output"
	"github.com/Resonate-Protocol/spdif-go/pkg/audio/resample"
	"github.com/Resonate-Protocol/spdif-go/pkg/protocol"
)

const (
	DefaultOutputRate = 48000
	discoveryTimeout  = 10 * time.Second
)

// Gained is an output with monitor gain control; *output.Oto implements it
type Gained interface {
	output.Output
	SetGain(db float64)
	SetMuted(muted bool)
}

// Config holds monitor configuration
type Config struct {
	// ServerAddr skips discovery when set
	ServerAddr string
	Name       string
	// Codec is the preferred stream codec, "pcm" or "opus"
	Codec string
	// OutputRate is the fixed rate of the local output; streams at other
	// rates are resampled to it
	OutputRate int
	StatusOnly bool
	// Output defaults to oto
	Output Gained
	// Controls carries gain changes from the TUI; nil disables them
	Controls *ui.Controls
	// OnStatus receives UI updates
	OnStatus func(ui.StatusMsg)
	Logger   *log.Logger
}

// Monitor is a bridge client playing the received line
type Monitor struct {
	config Config
	log    *log.Logger
	client *protocol.Client

	decoder   decode.Decoder
	resampler *resample.Resampler
	format    audio.Format
	opened    bool
	buf       []int32
}

// New creates a monitor
func New(config Config) *Monitor {
	if config.OutputRate <= 0 {
		config.OutputRate = DefaultOutputRate
	}
	if config.Output == nil {
		config.Output = output.NewOto()
	}
	if config.OnStatus == nil {
		config.OnStatus = func(ui.StatusMsg) {}
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default().WithPrefix("monitor")
	}
	return &Monitor{config: config, log: logger}
}

// Formats lists what the monitor asks the bridge for, best first
func (m *Monitor) Formats() []protocol.AudioFormat {
	pcm := []protocol.AudioFormat{
		{Codec: "pcm", Channels: 2, BitDepth: 24},
		{Codec: "pcm", Channels: 2, BitDepth: 16},
	}
	if m.config.Codec == "opus" {
		return append([]protocol.AudioFormat{{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16}}, pcm...)
	}
	return pcm
}

// Run connects and plays until ctx is done or the bridge goes away
func (m *Monitor) Run(ctx context.Context) error {
	addr := m.config.ServerAddr
	if addr == "" {
		var err error
		if addr, err = discover(ctx); err != nil {
			return err
		}
	}

	m.client = protocol.NewClient(protocol.Config{
		ServerAddr: addr,
		ClientID:   uuid.New().String(),
		Name:       m.config.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		SupportedFormats: m.Formats(),
		StatusOnly:       m.config.StatusOnly,
	})
	if err := m.client.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	defer m.close()

	bridgeName := m.client.Server().Name
	m.log.Info("connected to bridge", "addr", addr, "name", bridgeName)
	connected := true
	m.config.OnStatus(ui.StatusMsg{Connected: &connected, SourceName: bridgeName})

	var gain chan ui.GainChange
	if m.config.Controls != nil {
		gain = m.config.Controls.Gain
	}

	for {
		select {
		case <-ctx.Done():
			m.client.SendGoodbye("shutdown")
			return nil
		case <-m.client.Done():
			connected = false
			m.config.OnStatus(ui.StatusMsg{Connected: &connected})
			return errors.New("bridge connection lost")
		case start := <-m.client.StreamStart:
			if err := m.startStream(start); err != nil {
				m.log.Error("cannot play stream", "err", err)
			}
		case end := <-m.client.StreamEnd:
			m.log.Info("stream ended", "reason", end.Reason)
			m.endStream()
		case chunk := <-m.client.AudioChunks:
			if err := m.play(chunk); err != nil {
				m.log.Warn("chunk dropped", "err", err)
			}
		case st := <-m.client.Status:
			m.config.OnStatus(ui.StatusMsg{Receiver: &st})
		case g := <-gain:
			m.config.Output.SetGain(g.DB)
			m.config.Output.SetMuted(g.Muted)
		}
	}
}

func discover(ctx context.Context) (string, error) {
	disc := discovery.NewManager(discovery.Config{})
	disc.Browse()
	defer disc.Stop()

	select {
	case b := <-disc.Bridges():
		log.Info("discovered bridge", "name", b.Name, "addr", b.Addr())
		return b.Addr(), nil
	case <-time.After(discoveryTimeout):
		return "", fmt.Errorf("no bridge found after %s", discoveryTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Monitor) startStream(start protocol.StreamStart) error {
	m.endStream()

	format, err := start.Format()
	if err != nil {
		return err
	}
	dec, err := decode.New(format)
	if err != nil {
		return err
	}
	rs, err := resample.New(format.SampleRate, m.config.OutputRate, format.Channels)
	if err != nil {
		dec.Close()
		return err
	}
	if !m.opened {
		if err := m.config.Output.Open(m.config.OutputRate, format.Channels); err != nil {
			dec.Close()
			return err
		}
		m.opened = true
	}

	m.decoder, m.resampler, m.format = dec, rs, format
	m.log.Info("stream started", "codec", format.Codec, "rate", format.SampleRate,
		"channels", format.Channels, "bits", format.BitDepth)
	m.config.OnStatus(ui.StatusMsg{Codec: format.Codec, Channels: format.Channels, BitDepth: format.BitDepth})
	return nil
}

func (m *Monitor) play(chunk protocol.AudioChunk) error {
	if m.decoder == nil {
		return nil
	}
	samples, err := m.decoder.Decode(chunk.Data)
	if err != nil {
		return err
	}
	m.buf = m.resampler.Resample(m.buf[:0], samples)
	return m.config.Output.Write(m.buf)
}

func (m *Monitor) endStream() {
	if m.decoder != nil {
		m.decoder.Close()
		m.decoder = nil
	}
	m.resampler = nil
}

func (m *Monitor) close() {
	m.endStream()
	m.client.Close()
	if m.opened {
		m.config.Output.Close()
	}
}
