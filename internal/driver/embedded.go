package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/veilnet/veil/internal/adapter"
	"github.com/veilnet/veil/internal/engine"
	"github.com/veilnet/veil/internal/noise"
	"github.com/veilnet/veil/internal/routes"
	"github.com/veilnet/veil/internal/wgcfg"
)

// openAdapter is swapped out by tests that simulate adapter failures.
var openAdapter = adapter.Open

// Embedded runs the tunnel entirely in-process: a virtual adapter, a
// userspace protocol session, and a UDP socket, pumped by the forwarding
// engine. Setup is fail-fast; each step releases what earlier steps acquired
// before returning its error.
type Embedded struct {
	log *slog.Logger

	mu     sync.Mutex
	eng    *engine.Engine
	routes *routes.Manager
}

// NewEmbedded creates an embedded backend with no active tunnel.
func NewEmbedded(log *slog.Logger) *Embedded {
	return &Embedded{log: log}
}

// Connect brings the tunnel up: validate config, create the adapter, start
// the protocol session, dial the peer, start the pump, install routes.
func (d *Embedded) Connect(ctx context.Context, cfg *wgcfg.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.eng != nil {
		return &TunnelError{Op: "connect", Err: errors.New("tunnel already up")}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	resolved, endpoint, err := resolveEndpoint(ctx, cfg)
	if err != nil {
		return &wgcfg.ConfigError{Field: "peer.endpoint", Message: err.Error()}
	}

	prefix, err := netip.ParsePrefix(cfg.Interface.Address)
	if err != nil {
		return &wgcfg.ConfigError{Field: "interface.address", Message: err.Error()}
	}

	dev, err := openAdapter(adapter.Config{
		Name:    TunnelName(),
		Address: prefix,
		MTU:     cfg.MTU(),
	})
	if err != nil {
		if errors.Is(err, adapter.ErrPermissionDenied) {
			return ErrPermissionDenied
		}
		return &TunnelError{Op: "create adapter", Err: err}
	}

	session, err := noise.NewSession(resolved)
	if err != nil {
		dev.Close()
		return &TunnelError{Op: "create session", Err: err}
	}

	wire, err := engine.DialWire(endpoint)
	if err != nil {
		session.Close()
		dev.Close()
		return &TunnelError{Op: "dial peer", Err: err}
	}

	eng := engine.New(dev, wire, session, &engine.Counters{}, d.log)
	eng.Start()

	rm := routes.NewManager(dev.Name(), prefix.Addr())
	if err := rm.Install(cfg.Peer.AllowedIPs); err != nil {
		eng.Stop()
		return &TunnelError{Op: "install routes", Err: err}
	}

	d.eng = eng
	d.routes = rm
	d.log.Info("embedded tunnel up", "interface", dev.Name(), "endpoint", endpoint)
	return nil
}

// Disconnect removes the routes, stops the pump, and releases the adapter
// and socket. Calling it with no tunnel up is a no-op.
func (d *Embedded) Disconnect(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.eng == nil {
		return nil
	}

	if err := d.routes.Remove(); err != nil {
		// The interface is going away; stale routes go with it.
		d.log.Warn("route removal incomplete", "error", err)
	}
	d.eng.Stop()

	d.eng = nil
	d.routes = nil
	d.log.Info("embedded tunnel down")
	return nil
}

// TransferStats returns the pump's cumulative counters, or (0,0) when no
// tunnel is up.
func (d *Embedded) TransferStats() (rx, tx uint64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.eng == nil {
		return 0, 0, nil
	}
	rx, tx = d.eng.Counters().Totals()
	return rx, tx, nil
}

// resolveEndpoint turns a host:port endpoint into an ip:port literal and
// returns a config copy carrying it, so the protocol session never does name
// resolution itself.
func resolveEndpoint(ctx context.Context, cfg *wgcfg.Config) (*wgcfg.Config, string, error) {
	host, port, err := net.SplitHostPort(cfg.Peer.Endpoint)
	if err != nil {
		return nil, "", err
	}

	if _, err := netip.ParseAddr(host); err != nil {
		addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
		if err != nil {
			return nil, "", fmt.Errorf("resolve %q: %w", host, err)
		}
		if len(addrs) == 0 {
			return nil, "", fmt.Errorf("resolve %q: no addresses", host)
		}
		host = addrs[0].Unmap().String()
	}

	endpoint := net.JoinHostPort(host, port)
	resolved := *cfg
	resolved.Peer.Endpoint = endpoint
	return &resolved, endpoint, nil
}
