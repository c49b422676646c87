// ABOUTME: mDNS discovery of Play routers on the local network
// ABOUTME: Dev servers advertise themselves, clients browse when no server is configured
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"
)

// ServiceType is the mDNS service advertised by Play routers
const ServiceType = "_play-router._tcp"

// ErrNoServer is returned by Lookup when nothing answered in time
var ErrNoServer = errors.New("discovery: no play server found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int

	// AppID is advertised so browsers can skip routers of other apps. Empty matches any.
	AppID  string
	Logger *zap.Logger
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered router
type ServerInfo struct {
	Name  string
	Host  string
	Port  int
	AppID string
}

// URL returns the router base URL
func (s *ServerInfo) URL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(s.Host, fmt.Sprint(s.Port)))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		config:  config,
		log:     logger,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces a router on the configured port until Stop
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
		txtRecords(m.config.AppID),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	m.log.Info("advertising play router",
		zap.String("name", m.config.ServiceName),
		zap.Int("port", m.config.Port),
		zap.String("type", ServiceType))

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for routers until Stop. Results arrive on Servers.
func (m *Manager) Browse() error {
	go m.browseLoop()
	return nil
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := toServerInfo(entry)
				if server == nil || !m.matches(server) {
					continue
				}

				m.log.Debug("discovered play router", zap.String("name", server.Name), zap.String("url", server.URL()))

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		params := mdns.DefaultParams(ServiceType)
		params.Timeout = 3 * time.Second
		params.Entries = entries
		params.DisableIPv6 = true

		if err := mdns.Query(params); err != nil {
			m.log.Debug("mdns query failed", zap.Error(err))
		}
		close(entries)
		<-done
	}
}

func (m *Manager) matches(s *ServerInfo) bool {
	return m.config.AppID == "" || s.AppID == "" || s.AppID == m.config.AppID
}

// Servers returns the channel of discovered routers
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Lookup browses until the first router for appID answers or ctx ends
func Lookup(ctx context.Context, appID string, logger *zap.Logger) (*ServerInfo, error) {
	m := NewManager(Config{AppID: appID, Logger: logger})
	defer m.Stop()

	if err := m.Browse(); err != nil {
		return nil, err
	}

	select {
	case server := <-m.Servers():
		return server, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrNoServer, ctx.Err())
	}
}

func txtRecords(appID string) []string {
	txt := []string{"path=/"}
	if appID != "" {
		txt = append(txt, "app="+appID)
	}
	return txt
}

func toServerInfo(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || entry.AddrV4 == nil {
		return nil
	}

	info := &ServerInfo{
		Name: entry.Name,
		Host: entry.AddrV4.String(),
		Port: entry.Port,
	}
	for _, field := range entry.InfoFields {
		if v, ok := strings.CutPrefix(field, "app="); ok {
			info.AppID = v
		}
	}
	return info
}

// getLocalIPs returns local IPv4 addresses
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
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
