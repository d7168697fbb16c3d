// Package netmon watches for network connectivity transitions and pokes
// the reconnection controller when the machine comes back online.
package netmon

import (
	"context"
	"log/slog"
	"net"
	"time"
)

// CheckFunc reports whether the machine currently has network
// connectivity. Injectable for tests.
type CheckFunc func() bool

type Monitor struct {
	Check    CheckFunc
	Interval time.Duration
	OnOnline func(ctx context.Context)
}

func New(interval time.Duration, onOnline func(ctx context.Context)) *Monitor {
	return &Monitor{
		Check:    InterfacesOnline,
		Interval: interval,
		OnOnline: onOnline,
	}
}

// Run polls connectivity and fires OnOnline on each offline -> online
// edge. Steady states fire nothing.
func (m *Monitor) Run(ctx context.Context) {
	online := m.Check()
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		now := m.Check()
		if now && !online {
			slog.Info("network online")
			if m.OnOnline != nil {
				m.OnOnline(ctx)
			}
		} else if !now && online {
			slog.Info("network offline")
		}
		online = now
	}
}

// InterfacesOnline treats any up, non-loopback interface with an address
// as connectivity. Good enough for a loopback-server agent: it only needs
// to know when to retry, not whether the internet is reachable.
func InterfacesOnline() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return true
	}
	return false
}
