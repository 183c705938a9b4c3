package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"
	"sync"

	"github.com/enbility/zeroconf/v3"

	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/config"
)

// Defaults used when the discovery config leaves a field empty.
const (
	DefaultService = "_graylogic-fastcon._tcp"
	DefaultDomain  = "local."

	// maxInstanceNameLen is the DNS label limit for the instance name.
	maxInstanceNameLen = 63
)

// apiPath is advertised so clients need not guess the prefix.
const apiPath = "/api/v1"

// ErrInvalidPort is returned when Announce is given a port outside 1..65535.
var ErrInvalidPort = errors.New("discovery: invalid port")

// Info describes the service being announced.
type Info struct {
	Port      int
	Version   string
	TLS       bool
	Transport string
}

// Logger is the subset of logging used by the announcer.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// registerFunc publishes a service and returns a handle to withdraw it.
type registerFunc func(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error)

// shutdowner is the part of *zeroconf.Server the announcer needs.
type shutdowner interface {
	Shutdown()
}

// Announcer registers one mDNS service and withdraws it on Stop.
type Announcer struct {
	cfg      config.DiscoveryConfig
	logger   Logger
	register registerFunc

	mu     sync.Mutex
	server shutdowner
}

// NewAnnouncer creates an announcer for cfg. Nothing is sent until Announce.
func NewAnnouncer(cfg config.DiscoveryConfig, logger Logger) *Announcer {
	return &Announcer{
		cfg:      cfg,
		logger:   logger,
		register: registerZeroconf,
	}
}

func registerZeroconf(instance, service, domain string, port int, text []string, ifaces []net.Interface) (shutdowner, error) {
	server, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Announce registers the service, replacing any earlier registration.
func (a *Announcer) Announce(info Info) error {
	if info.Port < 1 || info.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, info.Port)
	}

	ifaces, err := interfaces(a.cfg.Interfaces)
	if err != nil {
		return err
	}

	instance := instanceName(a.cfg.Instance)
	service := orDefault(a.cfg.Service, DefaultService)
	domain := orDefault(a.cfg.Domain, DefaultDomain)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	server, err := a.register(instance, service, domain, info.Port, txtRecords(info), ifaces)
	if err != nil {
		return fmt.Errorf("registering mdns service: %w", err)
	}
	a.server = server

	if a.logger != nil {
		a.logger.Info("mdns service announced",
			"instance", instance,
			"service", service,
			"port", info.Port,
		)
	}
	return nil
}

// Stop withdraws the service. Safe to call more than once.
func (a *Announcer) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return
	}
	a.server.Shutdown()
	a.server = nil
	if a.logger != nil {
		a.logger.Info("mdns service withdrawn")
	}
}

// txtRecords returns the TXT strings in a stable order.
func txtRecords(info Info) []string {
	records := []string{
		"path=" + apiPath,
		"version=" + orDefault(info.Version, "dev"),
		fmt.Sprintf("tls=%t", info.TLS),
	}
	if info.Transport != "" {
		records = append(records, "transport="+info.Transport)
	}
	slices.Sort(records)
	return records
}

// instanceName falls back to "Gray Logic Fastcon (<hostname>)".
func instanceName(configured string) string {
	name := configured
	if name == "" {
		name = "Gray Logic Fastcon"
		if host, err := os.Hostname(); err == nil && host != "" {
			name += " (" + host + ")"
		}
	}
	if len(name) > maxInstanceNameLen {
		name = name[:maxInstanceNameLen]
	}
	return name
}

// interfaces resolves names to interfaces. An empty list means all.
func interfaces(names []string) ([]net.Interface, error) {
	if len(names) == 0 {
		return nil, nil
	}
	ifaces := make([]net.Interface, 0, len(names))
	for _, name := range names {
		iface, err := net.InterfaceByName(name)
		if err != nil {
			return nil, fmt.Errorf("resolving interface %q: %w", name, err)
		}
		ifaces = append(ifaces, *iface)
	}
	return ifaces, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
