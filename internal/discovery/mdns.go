// ABOUTME: mDNS service discovery for S/PDIF bridges
// ABOUTME: Bridges advertise themselves; monitors browse for them
package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hashicorp/mdns"
)

// ServiceType is the DNS-SD type bridges advertise under
const ServiceType = "_spdif-bridge._tcp"

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	// TXT records published with the advertisement, e.g. rate=48000
	Info map[string]string
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	bridges chan *BridgeInfo
	server  *mdns.Server
}

// BridgeInfo describes a discovered bridge
type BridgeInfo struct {
	Name string
	Host string
	Port int
	Info map[string]string
}

// Addr returns host:port
func (b *BridgeInfo) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		bridges: make(chan *BridgeInfo, 10),
	}
}

// Advertise publishes this bridge via mDNS until Stop
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		TXTRecords(m.config.Info),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	log.Info("advertising mDNS service", "name", m.config.ServiceName, "port", m.config.Port, "type", ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()
	return nil
}

// Browse searches for bridges until Stop; results arrive on Bridges
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for m.ctx.Err() == nil {
		entries := make(chan *mdns.ServiceEntry, 10)
		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				bridge := &BridgeInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
					Info: ParseTXT(entry.InfoFields),
				}
				log.Debug("discovered bridge", "name", bridge.Name, "addr", bridge.Addr())

				select {
				case m.bridges <- bridge:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Entries = entries
		params.Timeout = 3 * time.Second
		params.DisableIPv6 = true
		if err := mdns.Query(params); err != nil {
			log.Debug("mdns query failed", "err", err)
		}
		close(entries)
	}
}

// Bridges returns the channel of discovered bridges
func (m *Manager) Bridges() <-chan *BridgeInfo {
	return m.bridges
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// TXTRecords renders info as sorted key=value strings
func TXTRecords(info map[string]string) []string {
	out := []string{"path=/spdif"}
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "path" {
			continue
		}
		out = append(out, k+"="+info[k])
	}
	return out
}

// ParseTXT is the inverse of TXTRecords
func ParseTXT(fields []string) map[string]string {
	info := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		info[k] = v
	}
	return info
}

func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil && !ipnet.IP.IsLoopback() {
				ips = append(ips, ipnet.IP)
			}
		}
	}
	return ips, nil
}
