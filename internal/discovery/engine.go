package discovery

import (
	"context"
	"log/slog"
)

// Engine orchestrates discovery: validate the cached port first, fall back
// to a full range scan, and keep the cache honest along the way. Discover
// never returns an error; every failure inside degrades to "not found".
type Engine struct {
	Cache   PortCache
	Prober  Prober
	Scanner *Scanner
	MinPort int
	MaxPort int
}

func NewEngine(cache PortCache, prober Prober, scanner *Scanner, minPort, maxPort int) *Engine {
	if maxPort < minPort {
		maxPort = minPort
	}
	return &Engine{
		Cache:   cache,
		Prober:  prober,
		Scanner: scanner,
		MinPort: minPort,
		MaxPort: maxPort,
	}
}

// DiscoverOptions controls one discovery attempt. ForceScan bypasses the
// cache entirely; the cache is not even read.
type DiscoverOptions struct {
	ForceScan  bool
	OnProgress ProgressFunc
}

func (e *Engine) Discover(ctx context.Context, opts DiscoverOptions) (int, bool) {
	if !opts.ForceScan {
		if port, ok := e.checkCachedPort(ctx); ok {
			return port, true
		}
	}

	ports := PortRange(e.MinPort, e.MaxPort)
	port, ok := e.Scanner.Scan(ctx, ports, opts.OnProgress)
	if !ok {
		slog.Info("discovery exhausted", "minPort", e.MinPort, "maxPort", e.MaxPort)
		return 0, false
	}

	if err := e.Cache.SetPort(port); err != nil {
		// Cache write failure costs a rescan next start, nothing more.
		slog.Warn("port cache write failed", "port", port, "err", err)
	}
	return port, true
}

// checkCachedPort validates the cached port, if any. A stale entry is
// cleared before the caller falls through to the scan so it can never
// linger past a failed validation.
func (e *Engine) checkCachedPort(ctx context.Context) (int, bool) {
	port, ok, err := e.Cache.GetPort()
	if err != nil {
		slog.Warn("port cache read failed", "err", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}

	res := e.Prober.Probe(ctx, port)
	if res.Available() {
		slog.Debug("cached port still live", "port", port)
		return port, true
	}

	slog.Debug("cached port stale", "port", port, "probe", res.Status.String())
	if err := e.Cache.ClearPort(); err != nil {
		slog.Warn("port cache clear failed", "port", port, "err", err)
	}
	return 0, false
}
