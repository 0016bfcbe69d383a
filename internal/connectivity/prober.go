// Package connectivity answers two cheap questions before any real network
// work is attempted: does this machine have a usable network interface, and
// is the planner server answering right now.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Defaults used when Config leaves a field zero.
const (
	DefaultProbeTimeout = 800 * time.Millisecond
	DefaultHealthPath   = "/api/health"
)

// Status is the outcome of a full reachability probe.
type Status int

const (
	StatusReachable Status = iota
	StatusNoNetwork
	StatusUnreachable // TCP connect failed
	StatusUnhealthy   // connected, but the liveness call failed
)

// String returns the label used in logs and the status command.
func (s Status) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusNoNetwork:
		return "no network"
	case StatusUnreachable:
		return "unreachable"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Config controls the prober.
type Config struct {
	// ServerURL is the base URL of the planner server.
	ServerURL string

	// HealthPath is requested with GET for the liveness check.
	HealthPath string

	// ProbeTimeout bounds the TCP dial and the liveness call separately. It
	// should stay well below the timeout used for data calls.
	ProbeTimeout time.Duration
}

// Prober runs connectivity checks against one server. It is safe for
// concurrent use.
type Prober struct {
	addr      string
	healthURL string
	timeout   time.Duration
	hc        *http.Client
	log       *slog.Logger

	// Replaced in tests.
	interfaces func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
	dial       func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New creates a Prober for cfg.ServerURL.
func New(cfg Config, logger *slog.Logger) (*Prober, error) {
	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server URL %q has no host", cfg.ServerURL)
	}

	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}

	dialer := &net.Dialer{Timeout: cfg.ProbeTimeout}
	return &Prober{
		addr:       net.JoinHostPort(u.Hostname(), port),
		healthURL:  strings.TrimRight(cfg.ServerURL, "/") + "/" + strings.TrimLeft(cfg.HealthPath, "/"),
		timeout:    cfg.ProbeTimeout,
		hc:         &http.Client{Timeout: cfg.ProbeTimeout},
		log:        logger,
		interfaces: net.Interfaces,
		addrs:      func(i net.Interface) ([]net.Addr, error) { return i.Addrs() },
		dial:       dialer.DialContext,
	}, nil
}

// HasNetworkTransport reports whether any interface other than loopback is up
// and carries an address. It does no network I/O.
func (p *Prober) HasNetworkTransport() bool {
	ifaces, err := p.interfaces()
	if err != nil {
		p.log.Debug("listing network interfaces", "error", err)
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := p.addrs(iface)
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}

// CanReachServer reports whether the server answers its liveness check.
func (p *Prober) CanReachServer(ctx context.Context) bool {
	return p.Probe(ctx) == StatusReachable
}

// Probe runs the transport check, a TCP dial and the liveness call in that
// order, stopping at the first failure.
func (p *Prober) Probe(ctx context.Context) Status {
	if !p.HasNetworkTransport() {
		return StatusNoNetwork
	}

	if err := p.dialServer(ctx); err != nil {
		p.log.Debug("server not reachable", "addr", p.addr, "error", err)
		return StatusUnreachable
	}

	if err := p.checkHealth(ctx); err != nil {
		p.log.Debug("liveness check failed", "url", p.healthURL, "error", err)
		return StatusUnhealthy
	}
	return StatusReachable
}

func (p *Prober) dialServer(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, "tcp", p.addr)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *Prober) checkHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.healthURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return errors.New(resp.Status)
	}
	return nil
}
