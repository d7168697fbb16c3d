package reconnect

import (
	"context"
	"log/slog"
	"time"

	"github.com/grabwire/grabwire/internal/events"
)

const configRefreshTimeout = 10 * time.Second

// CheckHealth re-validates the current port with an identity-checked
// probe and moves the connectivity state accordingly. An HTTP 200 from
// an unrelated service does not count as connected.
func (c *Controller) CheckHealth(ctx context.Context) Status {
	c.mu.Lock()
	port := c.state.Port
	c.mu.Unlock()

	if port == 0 {
		c.markDisconnected()
		return StatusDisconnected
	}

	res := c.prober.Probe(ctx, port)
	if res.Available() {
		c.markConnected(port)
		return StatusConnected
	}

	slog.Debug("health check failed", "port", port, "probe", res.Status.String())
	c.markDisconnected()
	return StatusDisconnected
}

func (c *Controller) markConnected(port int) {
	c.mu.Lock()
	was := c.state.Status
	c.state.Status = StatusConnected
	c.state.Port = port
	c.mu.Unlock()

	if was == StatusConnected {
		return
	}

	slog.Info("server connected", "port", port)
	c.hub.Publish(events.ServerStatusChanged, map[string]any{
		"status": string(StatusConnected),
		"port":   port,
	})

	// One-shot config refresh on the disconnected -> connected edge.
	go c.refreshConfig()
}

func (c *Controller) markDisconnected() {
	c.mu.Lock()
	was := c.state.Status
	c.state.Status = StatusDisconnected
	c.mu.Unlock()

	if was == StatusDisconnected {
		return
	}

	slog.Warn("server disconnected")
	c.hub.Publish(events.ServerStatusChanged, map[string]any{
		"status": string(StatusDisconnected),
	})
}

func (c *Controller) refreshConfig() {
	ctx, cancel := context.WithTimeout(context.Background(), configRefreshTimeout)
	defer cancel()

	cfg, err := c.server.FetchConfig(ctx)
	if err != nil {
		slog.Warn("server config refresh failed", "err", err)
		return
	}
	slog.Info("server config refreshed", "keys", len(cfg))
}
