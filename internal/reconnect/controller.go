// Package reconnect wraps the discovery engine with backoff policy,
// connectivity state, and UI-visible side effects.
package reconnect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/grabwire/grabwire/internal/discovery"
	"github.com/grabwire/grabwire/internal/events"
	"github.com/grabwire/grabwire/internal/serverclient"
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// ServerState is in-memory only, rebuilt fresh on every process start.
// Port and status are projected to /status and hub events for UI
// consumers; ScanInProgress and BackoffInterval never survive a restart.
type ServerState struct {
	Port            int
	Status          Status
	ScanInProgress  bool
	BackoffInterval time.Duration
}

// ServerAPI is the slice of the download-server client the controller
// needs: pointing it at a discovered port and the one-shot config refresh.
type ServerAPI interface {
	SetPort(port int)
	FetchConfig(ctx context.Context) (serverclient.ServerConfig, error)
}

type Controller struct {
	mu    sync.Mutex
	state ServerState

	engine *discovery.Engine
	prober discovery.Prober
	hub    *events.Hub
	server ServerAPI

	backoffFloor   time.Duration
	backoffCap     time.Duration
	healthInterval time.Duration
}

func NewController(engine *discovery.Engine, prober discovery.Prober, hub *events.Hub, server ServerAPI, floor, ceiling, healthInterval time.Duration) *Controller {
	return &Controller{
		state: ServerState{
			Status:          StatusDisconnected,
			BackoffInterval: floor,
		},
		engine:         engine,
		prober:         prober,
		hub:            hub,
		server:         server,
		backoffFloor:   floor,
		backoffCap:     ceiling,
		healthInterval: healthInterval,
	}
}

func (c *Controller) State() ServerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ScanInProgress
}

// FindServerPort runs one discovery attempt. It is used identically at
// startup, on timer ticks, on network-restored events, and for explicit
// user rescans. A call while another attempt is in flight is a no-op:
// overlapping scans would race on the cache clear/write step.
func (c *Controller) FindServerPort(ctx context.Context, forceScan bool) (int, bool) {
	c.mu.Lock()
	if c.state.ScanInProgress {
		c.mu.Unlock()
		slog.Debug("discovery already running, skipping")
		return 0, false
	}
	c.state.ScanInProgress = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state.ScanInProgress = false
		c.mu.Unlock()
		if forceScan {
			// The progress indicator is cleared on every exit path.
			c.hub.Publish(events.ScanProgress, map[string]any{"done": true})
		}
	}()

	var onProgress discovery.ProgressFunc
	if forceScan {
		onProgress = func(scanned, total int) {
			pct := 0
			if total > 0 {
				pct = scanned * 100 / total
			}
			c.hub.Publish(events.ScanProgress, map[string]any{
				"scanned": scanned,
				"total":   total,
				"percent": pct,
			})
		}
	}

	port, ok := c.engine.Discover(ctx, discovery.DiscoverOptions{
		ForceScan:  forceScan,
		OnProgress: onProgress,
	})
	if !ok {
		next := c.bumpBackoff()
		slog.Warn("server not found", "forceScan", forceScan, "nextRetryIn", next)
		c.hub.Publish(events.ServerUnavailable, map[string]any{"retryIn": next.String()})
		return 0, false
	}

	c.mu.Lock()
	c.state.BackoffInterval = c.backoffFloor
	c.mu.Unlock()

	c.server.SetPort(port)
	slog.Info("server found", "port", port, "forceScan", forceScan)
	c.hub.Publish(events.ServerDiscovered, map[string]any{"port": port})

	// Discovery probes are identity-checked, so a hit doubles as a
	// successful authenticated health check.
	c.markConnected(port)
	return port, true
}

// bumpBackoff doubles the interval up to the cap and stores it for the
// next invocation; scheduling the retry is the caller's job.
func (c *Controller) bumpBackoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state.BackoffInterval * 2
	if next > c.backoffCap {
		next = c.backoffCap
	}
	c.state.BackoffInterval = next
	return next
}

// Run drives the reconnection loop: an immediate attempt at startup, then
// health checks while connected and backoff-spaced rediscovery otherwise.
func (c *Controller) Run(ctx context.Context) {
	c.FindServerPort(ctx, false)

	for {
		st := c.State()
		wait := st.BackoffInterval
		if st.Status == StatusConnected {
			wait = c.healthInterval
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if c.State().Status == StatusConnected {
			c.CheckHealth(ctx)
		} else {
			c.FindServerPort(ctx, false)
		}
	}
}

// OnNetworkOnline is invoked by the network monitor when connectivity
// returns; a disconnected agent retries immediately instead of waiting
// out the backoff interval.
func (c *Controller) OnNetworkOnline(ctx context.Context) {
	if c.State().Status == StatusConnected {
		return
	}
	slog.Info("network restored, retrying discovery")
	c.FindServerPort(ctx, false)
}
